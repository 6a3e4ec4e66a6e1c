package commands

import (
	"os"

	"dre-etl/internal/diploma"
	"dre-etl/internal/parser"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var parseVersion *string

func init() {
	parseVersion = parseCmd.Flags().String("version", "", "The consolidated version date the markup was captured at.")
	rootCmd.AddCommand(parseCmd)
}

var parseCmd = &cobra.Command{
	Use:   "parse <diploma.html> [--version <YYYY-MM-DD>]",
	Short: "Parses the markup of a diploma saved with scrape --html-dir.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		version, err := diploma.ValidateVersion(*parseVersion)
		if err != nil {
			fatal("invalid version", err)
		}
		contents, err := os.ReadFile(args[0])
		if err != nil {
			fatal("failed to read markup", err)
		}

		passages, err := parser.NewGoqueryParser().Parse(cmd.Context(), string(contents), version)
		if err != nil {
			fatal("failed to parse markup", err)
		}

		t := newTable()
		t.AppendHeader(table.Row{"#", "Text"})
		t.SetColumnConfigs([]table.ColumnConfig{{Number: 2, WidthMax: 100}})
		for _, p := range passages {
			t.AppendRow(table.Row{p.Index, p.Text})
		}
		t.Render()
	},
}
