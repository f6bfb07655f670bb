package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/psantana5/covrun/internal/framework"
)

var frameworksCmd = &cobra.Command{
	Use:   "frameworks <module>",
	Short: "Show the deployment kind and shared frameworks of a module",
	Args:  cobra.ExactArgs(1),
	RunE:  runFrameworks,
}

func init() {
	rootCmd.AddCommand(frameworksCmd)
}

func runFrameworks(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := framework.NewResolver(args[0], a.resolverOptions()...)
	if err != nil {
		return err
	}

	var selections []framework.Selection
	if res.Deployment() == framework.FrameworkDependent {
		if selections, err = res.Frameworks(); err != nil {
			return err
		}
	}

	runtimeConfig := "(none, defaulting to " + framework.DefaultFramework + ")"
	if rc := res.RuntimeConfig(); rc != nil {
		runtimeConfig = rc.Path
	}

	if IsJSONOutput() {
		data, err := json.MarshalIndent(map[string]interface{}{
			"module":         args[0],
			"deployment":     res.Deployment().String(),
			"dotnet_root":    res.DotnetRoot(),
			"runtime_config": runtimeConfig,
			"frameworks":     selections,
		}, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}
		fmt.Println(string(data))
		return nil
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Property", "Value")
	table.Append([]string{"Module", args[0]})
	table.Append([]string{"Deployment", res.Deployment().String()})
	if res.Deployment() == framework.FrameworkDependent {
		root := res.DotnetRoot()
		if root == "" {
			root = "(not found)"
		}
		table.Append([]string{"Dotnet root", root})
		table.Append([]string{"Runtime config", runtimeConfig})
	}
	table.Render()

	if len(selections) == 0 {
		return nil
	}
	fmt.Println()
	fw := tablewriter.NewWriter(os.Stdout)
	fw.Header("Framework", "Minimum", "Installed", "Selected")
	for _, s := range selections {
		selected := s.Selected
		if selected == "" {
			selected = "-"
		}
		fw.Append([]string{s.Name, s.Version, strings.Join(s.Installed, ", "), selected})
	}
	fw.Render()
	return nil
}
