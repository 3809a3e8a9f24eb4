package main

import (
	// Registers V4L2 cameras with the mediadevices backend
	_ "github.com/pion/mediadevices/pkg/driver/camera"
)
