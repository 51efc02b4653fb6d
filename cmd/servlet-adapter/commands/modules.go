package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/tailrecursion/servlet-adapter/internal/adapter"
	"github.com/tailrecursion/servlet-adapter/internal/config"
	"github.com/tailrecursion/servlet-adapter/internal/module"
)

var checkTimeout time.Duration

var modulesCmd = &cobra.Command{
	Use:   "modules",
	Short: "Inspect implementation modules",
}

var modulesCheckCmd = &cobra.Command{
	Use:   "check [module]",
	Short: "Load a module and resolve the adapter symbols",
	Long: `Load the implementation module (modules.name unless given) and check that
every symbol the adapters need is present with an accepted signature.

Examples:
  servlet-adapter modules check
  servlet-adapter modules check tailrecursion.clojure-adapter-servlet.impl`,
	Args: cobra.MaximumNArgs(1),
	RunE: runModulesCheck,
}

func init() {
	modulesCheckCmd.Flags().DurationVar(&checkTimeout, "timeout", 30*time.Second, "Give up loading after this long")
	modulesCmd.AddCommand(modulesCheckCmd)
}

func runModulesCheck(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(GetConfigFile())
	if err != nil {
		return err
	}
	if len(args) == 1 {
		cfg.Modules.Name = args[0]
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), checkTimeout)
	defer cancel()

	m, err := newHost(cfg, nil).Module(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "module %s\n", m.Name())

	table := tablewriter.NewWriter(out)
	table.SetHeader([]string{"Symbol", "Export", "Status"})
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("  ")
	table.SetNoWhiteSpace(true)

	failed := 0
	for _, sym := range adapter.Symbols {
		status := "ok"
		if err := adapter.CheckSymbol(m, sym); err != nil {
			failed++
			status = err.Error()
		}
		table.Append([]string{sym, module.ExportName(sym), status})
	}
	table.Render()

	if failed > 0 {
		return fmt.Errorf("%d of %d symbols cannot be bound", failed, len(adapter.Symbols))
	}
	return nil
}
