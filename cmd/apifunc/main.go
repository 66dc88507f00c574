// Command apifunc runs a declared function pipeline behind an HTTP gateway
// and offers a network scanner for locating running function services.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:   "apifunc",
	Short: "Dynamic function-to-service pipeline runtime",
	Long: "apifunc turns single-input/single-output functions into gRPC services,\n" +
		"chains them into a linear pipeline, and fronts the pipeline with an HTTP gateway.",
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("apifunc v%s\n", version)
	},
}

func main() {
	rootCmd.AddCommand(runCmd, scanCmd, versionCmd)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
