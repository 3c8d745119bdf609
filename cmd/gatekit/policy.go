package main

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/gatekit-db/gatekit/internal/config"
)

var policyCmd = &cobra.Command{
	Use:   "policy <entity> [dir]",
	Short: "Print the effective security policy for an entity",
	Long: `Resolve the configuration and print the effective allow-lists,
depth limits and page-size cap for one entity, after fail-closed
defaults have been applied.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		entity := args[0]
		workDir := "."
		if len(args) > 1 {
			workDir = args[1]
		}

		loader := config.NewLoader(workDir)
		cfg, err := loader.Load()
		if err != nil {
			return err
		}

		entityCfg, ok := cfg.Entities[entity]
		if !ok {
			return fmt.Errorf("entity '%s' is not declared in %s", entity, config.ConfigFileName)
		}
		policy := entityCfg.Policy.Policy()

		header := color.New(color.FgCyan, color.Bold)
		header.Printf("%s\n", entity)
		printList("filters", policy.AllowedFilters)
		printList("sorts", policy.AllowedSorts)
		printList("includes", policy.AllowedIncludes)
		printList("selects", policy.AllowedSelects)
		fmt.Printf("  max include depth:  %d\n", policy.MaxIncludeDepth)
		fmt.Printf("  max nested depth:   %d\n", policy.MaxNestedDepth)
		fmt.Printf("  max page size:      %d\n", policy.MaxPageSize)
		fmt.Printf("  soft delete:        %v\n", policy.SoftDelete)

		if entityCfg.RawQuery != nil && entityCfg.RawQuery.Enabled {
			fmt.Printf("  raw queries:        enabled (%s)\n", strings.Join(entityCfg.RawQuery.Operations, ", "))
		} else {
			fmt.Printf("  raw queries:        disabled\n")
		}
		return nil
	},
}

func printList(label string, values []string) {
	if len(values) == 0 {
		deny := color.New(color.FgYellow)
		fmt.Printf("  %-10s", label+":")
		deny.Println(" (none allowed)")
		return
	}
	fmt.Printf("  %-10s %s\n", label+":", strings.Join(values, ", "))
}
