package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"dre-etl/internal/components/chrono"
	"dre-etl/internal/components/serviceutil"
	"dre-etl/internal/components/telemetry"
	"dre-etl/internal/config"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

const serviceName = "dre-etl"

var (
	configPath *string
	verbose    *bool

	cfg       config.Config
	clock     chrono.API
	providers telemetry.Telemetry
)

var rootCmd = &cobra.Command{
	Use:   "dre-etl",
	Short: "dre-etl acquires legal diplomas from the Diário da República portal and exports their passages.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		telemetry.InitSlog(*verbose)

		var err error
		cfg, err = config.Load(*configPath)
		if err != nil {
			fatal("failed to read config", err)
		}
		standard, err := chrono.NewStandardImpl()
		if err != nil {
			fatal("failed to load portal timezone", err)
		}
		clock = standard

		if cfg.Telemetry.Enabled() {
			providers, err = telemetry.Setup(cmd.Context(), serviceName, cfg.Telemetry)
			if err != nil {
				fatal("failed to setup telemetry", err)
			}
			telemetry.InstrumentPerfStats(cmd.Context(), 5*time.Second)
		}
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		shutdownTelemetry()
	},
}

func init() {
	configPath = rootCmd.PersistentFlags().String("config", "config.json5", "The config file, a sibling <name>.local.json5 overrides it.")
	verbose = rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enables debug logs.")
}

// fatalExit is replaced in tests.
var fatalExit = serviceutil.Fatal

// shutdownTelemetry flushes pending spans and metrics, it is safe to call more than once.
func shutdownTelemetry() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := providers.Shutdown(ctx); err != nil {
		slog.Warn("failed to flush telemetry", "err", err)
	}
	providers = telemetry.Telemetry{}
}

// fatal exits like serviceutil.Fatal once telemetry has been flushed, os.Exit skips
// PersistentPostRun.
func fatal(message string, err error) {
	shutdownTelemetry()
	fatalExit(message, err)
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newTable() table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(os.Stdout)
	return t
}
