package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/gatekit-db/gatekit/internal/config"
)

var outputJSON bool

type checkResult struct {
	Valid    bool     `json:"valid"`
	File     string   `json:"file"`
	Entities []string `json:"entities,omitempty"`
	Error    string   `json:"error,omitempty"`
}

var checkCmd = &cobra.Command{
	Use:   "check [dir]",
	Short: "Check a gateway configuration for errors",
	Long: `Check the .gatekit.yml configuration in a directory: parse it,
validate entity declarations, compile every referenced JSON schema and
verify descriptor invariants.

This command is designed for editor and CI integrations; use --json for
structured output.

Examples:
  gatekit check
  gatekit check ./deploy --json`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		workDir := "."
		if len(args) > 0 {
			workDir = args[0]
		}

		loader := config.NewLoader(workDir)
		cfg, err := loader.Load()
		if err != nil {
			return printCheckError(workDir, err)
		}

		// A nil connector builds descriptors and policies without touching
		// the store; this is the full wiring-time validation path.
		registry, err := config.BuildRegistry(loader, cfg, nil)
		if err != nil {
			return printCheckError(workDir, err)
		}

		if outputJSON {
			return printJSON(checkResult{
				Valid:    true,
				File:     config.ConfigFileName,
				Entities: registry.Entities(),
			})
		}

		okColor := color.New(color.FgGreen, color.Bold)
		okColor.Print("OK ")
		fmt.Printf("%s: %d entities\n", config.ConfigFileName, len(registry.Entities()))
		if verbose {
			for _, name := range registry.Entities() {
				fmt.Printf("  - %s\n", name)
			}
		}
		return nil
	},
}

func init() {
	checkCmd.Flags().BoolVar(&outputJSON, "json", false, "output structured JSON")
}

func printCheckError(workDir string, err error) error {
	if outputJSON {
		printJSON(checkResult{Valid: false, File: config.ConfigFileName, Error: err.Error()})
		os.Exit(1)
	}
	errColor := color.New(color.FgRed, color.Bold)
	errColor.Fprint(os.Stderr, "Error: ")
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
	return nil
}

func printJSON(v interface{}) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
