package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/psantana5/covrun/internal/framework"
)

var resolveVersion string

var resolveCmd = &cobra.Command{
	Use:   "resolve <module> <library>",
	Short: "Resolve a library against the module's shared frameworks",
	Long: `Looks up <library>.dll the way an instrumentation run does: inside the
module tree for self-contained deployments, in the selected shared-framework
directories otherwise.`,
	Args: cobra.ExactArgs(2),
	RunE: runResolve,
}

func init() {
	rootCmd.AddCommand(resolveCmd)
	resolveCmd.Flags().StringVar(&resolveVersion, "version", "", "requested library version (informational)")
}

func runResolve(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	module, library := args[0], args[1]
	res, err := framework.NewResolver(module, a.resolverOptions()...)
	if err != nil {
		return err
	}
	result, err := res.TryResolve(framework.Request{Library: library, Version: resolveVersion})
	if err != nil {
		return err
	}

	if IsJSONOutput() {
		data, err := json.MarshalIndent(map[string]interface{}{
			"library":    library,
			"deployment": res.Deployment().String(),
			"resolved":   result.Resolved,
			"ambiguous":  result.Ambiguous,
			"paths":      result.Paths,
		}, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}
		fmt.Println(string(data))
		return nil
	}

	fmt.Printf("Deployment: %s\n", res.Deployment())
	if !result.Resolved {
		fmt.Printf("%s is not resolvable for %s\n", library, module)
		return nil
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("#", "Path")
	for i, p := range result.Paths {
		table.Append([]string{fmt.Sprintf("%d", i+1), p})
	}
	table.Render()
	if result.Ambiguous {
		fmt.Printf("\nWarning: %s resolved to multiple framework assemblies\n", library)
	}
	return nil
}
