//go:build cgo

package main

import (
	// Registers malgo microphones with the mediadevices backend
	_ "github.com/pion/mediadevices/pkg/driver/microphone"
)
