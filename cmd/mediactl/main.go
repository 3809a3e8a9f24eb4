package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	serverAddr string
	origin     string
	processID  int
	viewID     int
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "mediactl",
		Short: "Media access CLI",
		Long:  `A command-line tool to enumerate capture devices, request streams and manage permissions on a media access daemon.`,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVarP(&serverAddr, "server", "s", "http://localhost:8090", "Media access server address")
	rootCmd.PersistentFlags().StringVarP(&origin, "origin", "o", "http://localhost", "Security origin of the caller")
	rootCmd.PersistentFlags().IntVar(&processID, "process", 1, "Requesting process id")
	rootCmd.PersistentFlags().IntVar(&viewID, "view", 1, "Requesting view id")

	// Add commands
	rootCmd.AddCommand(statusCommand())
	rootCmd.AddCommand(devicesCommand())
	rootCmd.AddCommand(generateCommand())
	rootCmd.AddCommand(openCommand())
	rootCmd.AddCommand(stopCommand())
	rootCmd.AddCommand(cancelCommand())
	rootCmd.AddCommand(permissionsCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
