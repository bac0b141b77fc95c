package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const serviceName = "service-booking"

var rootCmd = &cobra.Command{
	Use:           serviceName,
	Short:         "GearGrab booking service",
	Long:          `Runs the GearGrab booking API: rental requests, owner approval with two-stage payment capture, and the rental lifecycle.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", serviceName, err)
		os.Exit(1)
	}
}
