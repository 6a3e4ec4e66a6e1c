package etl

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"dre-etl/internal/browser"
	"dre-etl/internal/components/chrono"
	"dre-etl/internal/components/telemetry"
	"dre-etl/internal/diploma"
	"dre-etl/internal/parser"
	"dre-etl/internal/portal"
	"dre-etl/internal/sink"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

var clock = chrono.FixedImpl{At: time.Date(2024, time.March, 10, 12, 0, 0, 0, time.UTC)}

// portalPage serves the markup of whichever diploma was searched last, diplomas listed in
// broken never load.
type portalPage struct {
	mu       sync.Mutex
	current  string
	markup   map[string]string
	broken   map[string]bool
	searches []string
	closed   bool
}

func (p *portalPage) NavigateToRoot(ctx context.Context) error {
	return nil
}

func (p *portalPage) Submit(ctx context.Context, loc browser.Locator, text string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, err := time.Parse(time.DateOnly, text); err == nil {
		return nil
	}
	p.current = text
	p.searches = append(p.searches, text)
	return nil
}

func (p *portalPage) Click(ctx context.Context, loc browser.Locator) error {
	return nil
}

func (p *portalPage) InnerHTML(ctx context.Context, loc browser.Locator) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.broken[p.current] {
		return "", &browser.LookupError{Kind: browser.KindTimeout, Locator: loc, Err: context.DeadlineExceeded}
	}
	return p.markup[p.current], nil
}

func (p *portalPage) WaitInvisible(ctx context.Context, loc browser.Locator) error {
	return nil
}

func (p *portalPage) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

type opener struct {
	markup map[string]string
	broken map[string]bool
	err    error
	pages  []*portalPage
}

func (o *opener) open(ctx context.Context) (portal.Page, error) {
	if o.err != nil {
		return nil, o.err
	}
	page := &portalPage{markup: o.markup, broken: o.broken}
	o.pages = append(o.pages, page)
	return page, nil
}

func (o *opener) searches() []string {
	var out []string
	for _, page := range o.pages {
		out = append(out, page.searches...)
	}
	return out
}

var corpus = map[string]string{
	"decreto-lei n.º 10/2024": `<div><p>Artigo 1.º</p><p>Objeto do diploma.</p></div>`,
	"lei n.º 7/2009":          `<div><p>Código do Trabalho</p></div>`,
	"portaria n.º 94-A/2020":  `<div><p>Portaria</p></div>`,
}

func items(t *testing.T, codes ...string) []diploma.Metadata {
	t.Helper()
	var out []diploma.Metadata
	for _, code := range codes {
		md, err := diploma.NewMetadata(code, "", clock)
		require.NoError(t, err)
		out = append(out, md)
	}
	return out
}

func newRunner(o *opener, policy FailurePolicy, tel telemetry.API) *Runner {
	engine := portal.NewEngine(portal.EngineOptions{AttemptsLimit: 2}, tel)
	return NewRunner(o.open, engine, parser.NewGoqueryParser(), Options{FailurePolicy: policy}, clock, tel)
}

func TestExportToDisk(t *testing.T) {
	o := &opener{markup: corpus}
	runner := newRunner(o, Abort, &telemetry.Recorder{})

	path := filepath.Join(t.TempDir(), "corpus.tsv")
	out, err := sink.OpenTSV(path)
	require.NoError(t, err)

	report, err := runner.ExportToDisk(context.Background(), items(t, "decreto-lei 10/2024", "lei 7/2009"), out)
	require.NoError(t, err)
	require.NoError(t, out.Close())

	require.Equal(t, []string{"decreto-lei n.º 10/2024", "lei n.º 7/2009"}, report.Completed)
	require.Equal(t, 3, report.Passages)
	require.Equal(t, 2, report.Total)
	require.NotEqual(t, uuid.Nil, report.RunID)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, []string{
		"diploma\ttext",
		"decreto-lei n.º 10/2024\tArtigo 1.º",
		"decreto-lei n.º 10/2024\tObjeto do diploma.",
		"lei n.º 7/2009\tCódigo do Trabalho",
	}, strings.Split(strings.TrimSuffix(string(raw), "\n"), "\n"))

	require.Len(t, o.pages, 1)
	require.True(t, o.pages[0].closed)
}

func TestExportToDiskAbortKeepsCompletedWork(t *testing.T) {
	o := &opener{markup: corpus, broken: map[string]bool{"lei n.º 7/2009": true}}
	tel := &telemetry.Recorder{}
	runner := newRunner(o, Abort, tel)

	path := filepath.Join(t.TempDir(), "corpus.tsv")
	out, err := sink.OpenTSV(path)
	require.NoError(t, err)

	report, err := runner.ExportToDisk(
		context.Background(),
		items(t, "decreto-lei 10/2024", "lei 7/2009", "portaria 94-A/2020"),
		out,
	)
	require.NoError(t, out.Close())

	var acqErr *portal.AcquisitionError
	require.ErrorAs(t, err, &acqErr)
	require.Equal(t, 2, acqErr.Attempts)
	require.Equal(t, []string{"decreto-lei n.º 10/2024"}, report.Completed)

	require.Equal(t, []string{
		"decreto-lei n.º 10/2024",
		"lei n.º 7/2009",
		"lei n.º 7/2009",
	}, o.searches())
	require.Equal(t, 2, out.Rows())
	require.True(t, o.pages[0].closed)
}

func TestSkipPolicyReopensSession(t *testing.T) {
	o := &opener{markup: corpus, broken: map[string]bool{"lei n.º 7/2009": true}}
	tel := &telemetry.Recorder{}
	runner := newRunner(o, Skip, tel)

	raws, report, err := runner.ScrapeHTML(
		context.Background(),
		items(t, "decreto-lei 10/2024", "lei 7/2009", "portaria 94-A/2020"),
	)
	require.NoError(t, err)
	require.Len(t, raws, 2)
	require.Equal(t, corpus["portaria n.º 94-A/2020"], raws["portaria n.º 94-A/2020"].HTML)

	require.Equal(t, []string{"decreto-lei n.º 10/2024", "portaria n.º 94-A/2020"}, report.Completed)
	require.Len(t, report.Failed, 1)
	require.Equal(t, "lei n.º 7/2009", report.Failed[0].Code)

	require.Len(t, o.pages, 2)
	require.True(t, o.pages[0].closed)
	require.True(t, o.pages[1].closed)
	require.Len(t, tel.Reports("warning", report_runner_skip), 1)
}

func TestScrapePassages(t *testing.T) {
	o := &opener{markup: corpus}
	runner := newRunner(o, Abort, &telemetry.Recorder{})

	passages, report, err := runner.ScrapePassages(context.Background(), items(t, "decreto-lei 10/2024", "lei 7/2009"))
	require.NoError(t, err)
	require.Equal(t, 3, report.Passages)
	require.Equal(t, []parser.Passage{
		{Diploma: "lei n.º 7/2009", Index: 0, Text: "Código do Trabalho"},
	}, passages["lei n.º 7/2009"])
	require.Len(t, passages["decreto-lei n.º 10/2024"], 2)
}

func TestETLOne(t *testing.T) {
	o := &opener{markup: corpus}
	runner := newRunner(o, Abort, &telemetry.Recorder{})

	passages, err := runner.ETLOne(context.Background(), items(t, "decreto-lei 10/2024")[0])
	require.NoError(t, err)
	require.Equal(t, []parser.Passage{
		{Diploma: "decreto-lei n.º 10/2024", Index: 0, Text: "Artigo 1.º"},
		{Diploma: "decreto-lei n.º 10/2024", Index: 1, Text: "Objeto do diploma."},
	}, passages)
}

func TestScrapeOneSkipReturnsFailure(t *testing.T) {
	o := &opener{markup: corpus, broken: map[string]bool{"lei n.º 7/2009": true}}
	runner := newRunner(o, Skip, &telemetry.Recorder{})

	_, err := runner.ScrapeOne(context.Background(), items(t, "lei 7/2009")[0])
	var acqErr *portal.AcquisitionError
	require.ErrorAs(t, err, &acqErr)
}

func TestConnectionFailureIsNotRetried(t *testing.T) {
	connErr := &browser.ConnectionError{Mode: browser.Remote, Endpoint: "http://127.0.0.1:9222", Err: errors.New("refused")}
	o := &opener{err: connErr}
	runner := newRunner(o, Skip, &telemetry.Recorder{})

	report, err := runner.ExportToDisk(context.Background(), items(t, "lei 7/2009"), discard{})
	require.ErrorAs(t, err, &connErr)
	require.Empty(t, report.Completed)
	require.Empty(t, report.Failed)
}

func TestCancelledBatch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	o := &opener{markup: corpus}
	runner := newRunner(o, Abort, &telemetry.Recorder{})

	_, _, err := runner.ScrapeHTML(ctx, items(t, "lei 7/2009"))
	require.ErrorIs(t, err, context.Canceled)
	require.Empty(t, o.pages)
}

func TestPacing(t *testing.T) {
	o := &opener{markup: corpus}
	tel := &telemetry.Recorder{}
	engine := portal.NewEngine(portal.EngineOptions{}, tel)
	runner := NewRunner(o.open, engine, parser.NewGoqueryParser(), Options{ItemsPerMinute: 600}, clock, tel)

	started := time.Now()
	_, _, err := runner.ScrapeHTML(context.Background(), items(t, "decreto-lei 10/2024", "lei 7/2009", "portaria 94-A/2020"))
	require.NoError(t, err)
	// 10 items per second, the first one is not delayed
	require.GreaterOrEqual(t, time.Since(started), 150*time.Millisecond)
}

type discard struct{}

func (discard) Append(code string, passages []parser.Passage) error {
	return nil
}

func TestScrapePassagesParseFailure(t *testing.T) {
	markup := map[string]string{
		"decreto-lei n.º 10/2024": corpus["decreto-lei n.º 10/2024"],
		"lei n.º 7/2009":          `<div><span></span></div>`,
	}

	t.Run("skip", func(t *testing.T) {
		tel := &telemetry.Recorder{}
		runner := newRunner(&opener{markup: markup}, Skip, tel)

		passages, report, err := runner.ScrapePassages(context.Background(), items(t, "decreto-lei 10/2024", "lei 7/2009"))
		require.NoError(t, err)
		require.Len(t, passages, 1)
		require.Len(t, passages["decreto-lei n.º 10/2024"], 2)

		require.Equal(t, []string{"decreto-lei n.º 10/2024"}, report.Completed)
		require.Len(t, report.Failed, 1)
		require.Equal(t, "lei n.º 7/2009", report.Failed[0].Code)
		var parseErr *parser.ParseError
		require.ErrorAs(t, report.Failed[0].Err, &parseErr)
		require.Equal(t, 2, report.Passages)
		require.Len(t, tel.Reports("warning", report_runner_skip), 1)
	})

	t.Run("abort", func(t *testing.T) {
		runner := newRunner(&opener{markup: markup}, Abort, &telemetry.Recorder{})

		_, report, err := runner.ScrapePassages(context.Background(), items(t, "decreto-lei 10/2024", "lei 7/2009"))
		var parseErr *parser.ParseError
		require.ErrorAs(t, err, &parseErr)
		require.Equal(t, "lei n.º 7/2009", parseErr.Diploma)
		require.Empty(t, report.Failed)
	})
}
