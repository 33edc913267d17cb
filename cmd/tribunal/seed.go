package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/oralsim/tribunal/pkg/domain"
	"github.com/oralsim/tribunal/pkg/dsl"
)

var seedCmd = &cobra.Command{
	Use:   "seed [dir]",
	Short: "Write a demo dialogue graph into a graphs directory",
	Long:  `Generates a small courtroom hearing graph and writes it as YAML, so a fresh deployment has something to serve and instructors have a template to copy.`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := "./graphs"
		if len(args) > 0 {
			dir = args[0]
		}
		path, err := writeSeedGraph(dir)
		if err != nil {
			return err
		}
		fmt.Printf("wrote %s\n", path)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(seedCmd)
}

// seedGraph builds the demo hearing programmatically; the YAML on disk is
// just its serialized form, so the template always validates.
func seedGraph() (*domain.Graph, error) {
	b := dsl.New("demo-hearing").
		Title("Demo hearing").
		Roles("judge", "prosecutor", "defense")

	b.Add("call-to-order").Start().
		Text("The bailiff calls the case and the judge opens the hearing.").
		Go("opening-statement")

	b.Add("opening-statement").Decision("prosecutor").
		Text("The prosecution opens.").
		Option("summarize-charges", "Summarize the charges", "defense-response").Score(3).
		Node().
		Option("press-detention", "Press for detention immediately", "defense-response").Score(1)

	b.Add("defense-response").Decision("defense").
		Text("The defense responds.").
		Option("contest-charges", "Contest the charges", "ruling").Score(4).
		Node().
		Option("request-recess", "Request a recess", "ruling").Score(2).RequiresRegisteredUser()

	b.Add("ruling").Decision("judge").
		Text("The judge rules on how to proceed.").
		Option("proceed-to-trial", "Proceed to trial", "adjourn").Score(5).
		Node().
		Option("dismiss", "Dismiss the case", "adjourn").Score(3)

	b.Add("adjourn").Terminal().Text("The hearing is adjourned.")

	return b.Build()
}

func writeSeedGraph(dir string) (string, error) {
	g, err := seedGraph()
	if err != nil {
		return "", fmt.Errorf("build seed graph: %w", err)
	}

	data, err := yaml.Marshal(g)
	if err != nil {
		return "", fmt.Errorf("marshal seed graph: %w", err)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create graphs dir: %w", err)
	}
	path := filepath.Join(dir, g.ID+".yaml")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write seed graph: %w", err)
	}
	return path, nil
}
