package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/oralsim/tribunal/pkg/graph"
)

var validateCmd = &cobra.Command{
	Use:   "validate [dir]",
	Short: "Check dialogue graph files for consistency",
	Long:  `Parses every YAML graph in the directory and reports structural problems: missing start nodes, broken option targets, unreachable nodes, unknown condition kinds.`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := "."
		if len(args) > 0 {
			dir = args[0]
		} else if wd, err := os.Getwd(); err == nil {
			dir = wd
		}

		registry, err := graph.LoadDir(dir)
		if err != nil {
			return err
		}

		for _, id := range registry.List() {
			fmt.Printf("ok: %s\n", id)
		}
		fmt.Println("All graphs are valid.")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
