package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "tribunal",
	Short: "Tribunal coordinates turn-based courtroom simulation sessions",
	Long: `Tribunal keeps multiplayer courtroom simulation sessions in sync:
it owns the dialogue graph position of each session, decides whose turn it
is, and serializes concurrent decisions so every participant converges on
the same state.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
