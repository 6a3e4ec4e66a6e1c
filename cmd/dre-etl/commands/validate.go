package commands

import (
	"errors"
	"os"

	"dre-etl/internal/diploma"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var (
	validateVersion *string
	validateInput   *string
)

func init() {
	validateVersion = validateCmd.Flags().String("version", "", "The consolidated version date (YYYY-MM-DD) of every code given as argument.")
	validateInput = validateCmd.Flags().StringP("input", "i", "", "A json5 list of {code, version} objects.")
	rootCmd.AddCommand(validateCmd)
}

var validateCmd = &cobra.Command{
	Use:   "validate [codes...] [--version <YYYY-MM-DD>] [--input <list.json5>]",
	Short: "Normalizes diploma codes without touching the portal.",
	Run: func(cmd *cobra.Command, args []string) {
		inputs, err := collectInputs(*validateInput, args, *validateVersion)
		if err != nil {
			fatal("invalid arguments", err)
		}

		t := newTable()
		t.AppendHeader(table.Row{"Input", "Code", "Version", "Error"})

		invalid := 0
		for _, in := range inputs {
			md, err := diploma.NewMetadata(in.Code, in.Version, clock)
			if err != nil {
				invalid++
				msg := err.Error()
				var validationErr *diploma.ValidationError
				if errors.As(err, &validationErr) {
					msg = validationErr.Reason
					if validationErr.Suggestion != "" {
						msg += ", did you mean " + validationErr.Suggestion + "?"
					}
				}
				t.AppendRow(table.Row{in.Code, "", in.Version, msg})
				continue
			}
			t.AppendRow(table.Row{in.Code, md.Code(), md.Version(), ""})
		}
		t.Render()

		if invalid > 0 {
			shutdownTelemetry()
			os.Exit(1)
		}
	},
}
