package commands

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"dre-etl/internal/browser"
	"dre-etl/internal/components/telemetry"
	"dre-etl/internal/config"
	"dre-etl/internal/diploma"
	"dre-etl/internal/etl"
	"dre-etl/internal/parser"
	"dre-etl/internal/portal"
	"dre-etl/internal/sink"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var (
	scrapeInput    *string
	scrapeVersion  *string
	scrapeOut      *string
	scrapeHtmlDir  *string
	scrapePassages *bool
	scrapeMode     *string
	scrapeHeadful  *bool
	scrapeAttempts *int
	scrapeSkip     *bool
)

func init() {
	flags := scrapeCmd.Flags()
	scrapeInput = flags.StringP("input", "i", "", "A json5 list of {code, version} objects.")
	scrapeVersion = flags.String("version", "", "The consolidated version date (YYYY-MM-DD) of every code given as argument.")
	scrapeOut = flags.StringP("out", "o", "", "The tsv file passages are appended to, defaults to batch.output.")
	scrapeHtmlDir = flags.String("html-dir", "", "Writes the raw markup of every diploma to this directory instead of parsing it.")
	scrapePassages = flags.Bool("passages", false, "Prints the passage count of every diploma instead of exporting them.")
	scrapeMode = flags.String("mode", "", "The browser mode, local or remote.")
	scrapeHeadful = flags.Bool("headful", false, "Shows the browser window in local mode.")
	scrapeAttempts = flags.Int("attempts", 0, "The attempts limit per diploma.")
	scrapeSkip = flags.Bool("skip-failures", false, "Moves on to the next diploma when one cannot be acquired.")
	rootCmd.AddCommand(scrapeCmd)
}

func applyScrapeFlags(cmd *cobra.Command) {
	flags := cmd.Flags()

	var overrides config.Config
	if flags.Changed("mode") {
		overrides.Browser.Mode = *scrapeMode
	}
	if flags.Changed("attempts") {
		overrides.Retry.AttemptsLimit = *scrapeAttempts
	}
	if *scrapeSkip {
		overrides.Batch.FailurePolicy = config.FailureSkip
	}
	if flags.Changed("out") {
		overrides.Batch.Output = *scrapeOut
	}
	if err := cfg.Overlay(overrides); err != nil {
		fatal("invalid flags", err)
	}
	// a bool flag can also turn the setting off, which an overlay cannot express
	if flags.Changed("headful") {
		cfg.Browser.Headful = *scrapeHeadful
	}
}

func newRunner(tel telemetry.API) *etl.Runner {
	mode := browser.Local
	if cfg.Browser.Mode == config.ModeRemote {
		mode = browser.Remote
	}
	opener := etl.BrowserOpener(browser.Options{
		Mode:          mode,
		Headless:      !cfg.Browser.Headful,
		RemoteURL:     cfg.Browser.RemoteURL,
		PortalURL:     cfg.Portal.URL,
		LookupTimeout: cfg.LookupTimeout(),
	}, tel)

	reset := portal.ResetToRoot
	if cfg.Retry.ResetPolicy == config.ResetNone {
		reset = portal.ResetNone
	}
	engine := portal.NewEngine(portal.EngineOptions{
		AttemptsLimit: cfg.Retry.AttemptsLimit,
		ResetPolicy:   reset,
	}, tel)

	policy := etl.Abort
	if cfg.Batch.FailurePolicy == config.FailureSkip {
		policy = etl.Skip
	}
	return etl.NewRunner(opener, engine, parser.NewGoqueryParser(), etl.Options{
		FailurePolicy:  policy,
		ItemsPerMinute: cfg.Batch.ItemsPerMinute,
	}, clock, tel)
}

var scrapeCmd = &cobra.Command{
	Use:   "scrape [codes...] [--input <list.json5>] [--out <corpus.tsv> | --html-dir <dir> | --passages]",
	Short: "Acquires diplomas from the portal and exports their passages.",
	Run: func(cmd *cobra.Command, args []string) {
		applyScrapeFlags(cmd)

		inputs, err := collectInputs(*scrapeInput, args, *scrapeVersion)
		if err != nil {
			fatal("invalid arguments", err)
		}
		items, err := diploma.FromInputs(inputs, clock)
		if err != nil {
			fatal("invalid diplomas", err)
		}

		tel := telemetry.SlogAPI{}
		runner := newRunner(tel)
		ctx := cmd.Context()

		slog.Info("starting scraping routine", "diplomas", len(items), "mode", cfg.Browser.Mode)

		var report etl.Report
		switch {
		case *scrapeHtmlDir != "":
			var raws map[string]portal.RawHTML
			raws, report, err = runner.ScrapeHTML(ctx, items)
			if writeErr := writeMarkup(*scrapeHtmlDir, raws); writeErr != nil {
				fatal("failed to write markup", writeErr)
			}
		case *scrapePassages:
			var passages map[string][]parser.Passage
			passages, report, err = runner.ScrapePassages(ctx, items)
			printPassageCounts(passages)
		default:
			out, openErr := sink.OpenTSV(cfg.Batch.Output)
			if openErr != nil {
				fatal("failed to open output", openErr)
			}
			report, err = runner.ExportToDisk(ctx, items, out)
			if closeErr := out.Close(); closeErr != nil {
				slog.Warn("failed to close output", "err", closeErr)
			}
			slog.Info("passages exported", "path", out.Path(), "rows", out.Rows())
		}

		printReport(report)
		if err != nil {
			fatal("scraping failed", err)
		}
		slog.Info("etl completed", "run_id", report.RunID, "seconds", report.Duration().Seconds())
	},
}

// markupFilename turns "Decreto-Lei n.º 10/2024" at 2024-05-01 into
// "decreto-lei_10-2024@2024-05-01.html".
func markupFilename(raw portal.RawHTML) string {
	name := strings.ReplaceAll(portal.LinkPattern(raw.Code), "/", "_")
	if raw.Version != "" {
		name += "@" + raw.Version
	}
	return name + ".html"
}

func writeMarkup(dir string, raws map[string]portal.RawHTML) error {
	err := os.MkdirAll(dir, 0755)
	if err != nil {
		return err
	}
	for _, raw := range raws {
		path := filepath.Join(dir, markupFilename(raw))
		err := os.WriteFile(path, []byte(raw.HTML), 0644)
		if err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
		slog.Info("wrote markup", "diploma", raw.Code, "path", path)
	}
	return nil
}

func printPassageCounts(passages map[string][]parser.Passage) {
	codes := make([]string, 0, len(passages))
	for code := range passages {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	t := newTable()
	t.AppendHeader(table.Row{"Diploma", "Passages"})
	for _, code := range codes {
		t.AppendRow(table.Row{code, len(passages[code])})
	}
	t.Render()
}

func printReport(report etl.Report) {
	t := newTable()
	t.SetTitle(fmt.Sprintf("Run %s", report.RunID))
	t.AppendHeader(table.Row{"Diploma", "Status"})
	for _, code := range report.Completed {
		t.AppendRow(table.Row{code, "completed"})
	}
	for _, failure := range report.Failed {
		t.AppendRow(table.Row{failure.Code, fmt.Sprintf("skipped: %v", failure.Err)})
	}
	t.AppendFooter(table.Row{
		fmt.Sprintf("%d/%d completed", len(report.Completed), report.Total),
		fmt.Sprintf("%d passages in %s", report.Passages, report.Duration().Round(time.Millisecond)),
	})
	t.Render()
}
