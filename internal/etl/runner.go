package etl

import (
	"context"
	"errors"
	"fmt"
	"time"

	"dre-etl/internal/browser"
	"dre-etl/internal/components/assert"
	"dre-etl/internal/components/chrono"
	"dre-etl/internal/components/telemetry"
	"dre-etl/internal/diploma"
	"dre-etl/internal/parser"
	"dre-etl/internal/portal"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

const (
	report_runner_item     = "runner.item"
	report_runner_skip     = "runner.skip"
	report_runner_progress = "runner.progress"
	report_runner_close    = "runner.close"
)

var tracer = otel.Tracer("dre-etl.etl")

// SessionOpener opens a browser session on the portal root.
type SessionOpener func(ctx context.Context) (portal.Page, error)

// BrowserOpener opens sessions with browser.Connect.
func BrowserOpener(opts browser.Options, tel telemetry.API) SessionOpener {
	return func(ctx context.Context) (portal.Page, error) {
		session, err := browser.Connect(ctx, opts, tel)
		if err != nil {
			return nil, err
		}
		return session, nil
	}
}

// FailurePolicy decides what a batch does with a diploma whose acquisition failed.
type FailurePolicy int

const (
	// Abort stops the batch and returns the acquisition error.
	Abort FailurePolicy = iota
	// Skip records the failure in the Report and moves on to the next diploma.
	Skip
)

type Options struct {
	FailurePolicy FailurePolicy
	// ItemsPerMinute paces acquisitions, 0 disables pacing.
	ItemsPerMinute float64
}

// Failure is a diploma skipped under the Skip policy.
type Failure struct {
	Code    string
	Version string
	Err     error
}

// Report summarizes a batch run.
type Report struct {
	RunID     uuid.UUID
	Started   time.Time
	Finished  time.Time
	Total     int
	Completed []string
	Failed    []Failure
	// Passages is the amount of passages produced, zero for runs that do not parse.
	Passages int
}

func (r Report) Duration() time.Duration {
	return r.Finished.Sub(r.Started)
}

// Runner acquires a list of diplomas over a single session, in input order.
type Runner struct {
	open    SessionOpener
	engine  portal.Engine
	parser  parser.Parser
	policy  FailurePolicy
	limiter *rate.Limiter
	clock   chrono.API
	tel     telemetry.API
}

func NewRunner(
	open SessionOpener,
	engine portal.Engine,
	p parser.Parser,
	opts Options,
	clock chrono.API,
	tel telemetry.API,
) *Runner {
	if open == nil {
		panic("expected session opener to be not nil")
	}
	assert.NotNil(p, "parser")
	assert.NotNil(clock, "clock")
	assert.NotNil(tel, "telemetry")

	var limiter *rate.Limiter
	if opts.ItemsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.ItemsPerMinute/60), 1)
	}
	return &Runner{
		open:    open,
		engine:  engine,
		parser:  p,
		policy:  opts.FailurePolicy,
		limiter: limiter,
		clock:   clock,
		tel:     telemetry.NewScopedAPI("etl", tel),
	}
}

// consumer handles one acquired diploma, its error is treated like an acquisition failure.
type consumer func(ctx context.Context, md diploma.Metadata, raw portal.RawHTML) error

func (r *Runner) run(ctx context.Context, items []diploma.Metadata, consume consumer) (report Report, err error) {
	report = Report{
		RunID:   uuid.New(),
		Started: r.clock.Now(),
		Total:   len(items),
	}

	ctx, span := tracer.Start(ctx, "Run", trace.WithAttributes(
		attribute.String("run_id", report.RunID.String()),
		attribute.Int("items", len(items)),
	))
	defer span.End()

	var page portal.Page
	defer func() {
		if page != nil {
			if closeErr := page.Close(); closeErr != nil {
				r.tel.ReportWarning(report_runner_close, closeErr)
			}
		}
		report.Finished = r.clock.Now()
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			span.RecordError(err)
		}
	}()

	for i, md := range items {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if r.limiter != nil {
			if err := r.limiter.Wait(ctx); err != nil {
				return report, err
			}
		}
		if page == nil {
			page, err = r.open(ctx)
			if err != nil {
				page = nil
				return report, err
			}
		}

		itemErr := r.item(ctx, page, md, consume)
		if itemErr != nil {
			var acqErr *portal.AcquisitionError
			if errors.As(itemErr, &acqErr) {
				// the engine closed the session
				page = nil
			}
			if r.policy == Skip && ctx.Err() == nil {
				r.tel.ReportWarning(report_runner_skip, md.String(), itemErr)
				report.Failed = append(report.Failed, Failure{Code: md.Code(), Version: md.Version(), Err: itemErr})
				continue
			}
			return report, fmt.Errorf("%s: %w", md, itemErr)
		}

		report.Completed = append(report.Completed, md.Code())
		r.tel.ReportDebug("diploma completed", "run_id", report.RunID, "diploma", md.String(), "position", i+1, "total", len(items))
		r.tel.ReportCount(report_runner_progress, int64(i+1))
	}

	r.tel.ReportDebug(
		"batch completed",
		"run_id", report.RunID,
		"completed", len(report.Completed),
		"failed", len(report.Failed),
	)
	return report, nil
}

func (r *Runner) item(ctx context.Context, page portal.Page, md diploma.Metadata, consume consumer) error {
	ctx, span := tracer.Start(ctx, "Item", trace.WithAttributes(
		attribute.String("diploma", md.String()),
	))
	defer span.End()

	raw, err := r.engine.Acquire(ctx, page, md)
	if err == nil {
		err = consume(ctx, md, raw)
	}
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		r.tel.ReportWarning(report_runner_item, md.String(), err)
	}
	return err
}

// ScrapeHTML acquires the raw markup of every diploma keyed by code.
func (r *Runner) ScrapeHTML(ctx context.Context, items []diploma.Metadata) (map[string]portal.RawHTML, Report, error) {
	out := make(map[string]portal.RawHTML, len(items))
	report, err := r.run(ctx, items, func(_ context.Context, md diploma.Metadata, raw portal.RawHTML) error {
		out[md.Code()] = raw
		return nil
	})
	return out, report, err
}

// ScrapePassages acquires every diploma first and then parses them all.
func (r *Runner) ScrapePassages(ctx context.Context, items []diploma.Metadata) (map[string][]parser.Passage, Report, error) {
	raws, report, err := r.ScrapeHTML(ctx, items)
	if err != nil {
		return nil, report, err
	}

	docs := make(map[string]parser.Document, len(raws))
	for code, raw := range raws {
		docs[code] = parser.Document{HTML: raw.HTML, Version: raw.Version}
	}
	passages, err := parser.ParseMultiple(ctx, r.parser, docs)
	for _, list := range passages {
		report.Passages += len(list)
	}
	if err != nil && r.policy == Skip {
		err = r.skipParseFailures(&report, raws, err)
	}
	return passages, report, err
}

// skipParseFailures moves the diplomas that failed to parse from the completed to the failed
// list of the report. err is returned as is when some failure cannot be tied to a diploma.
func (r *Runner) skipParseFailures(report *Report, raws map[string]portal.RawHTML, err error) error {
	failures, complete := parser.Failures(err)
	if !complete {
		return err
	}

	completed := make([]string, 0, len(report.Completed))
	for _, code := range report.Completed {
		failure, ok := failures[code]
		if !ok {
			completed = append(completed, code)
			continue
		}
		r.tel.ReportWarning(report_runner_skip, code, failure)
		report.Failed = append(report.Failed, Failure{Code: code, Version: raws[code].Version, Err: failure})
	}
	report.Completed = completed
	return nil
}

// Appender receives the passages of each diploma as soon as they are parsed.
type Appender interface {
	Append(code string, passages []parser.Passage) error
}

// ExportToDisk parses each diploma right after acquiring it and appends its passages to out,
// diplomas completed before a failure stay on disk.
func (r *Runner) ExportToDisk(ctx context.Context, items []diploma.Metadata, out Appender) (Report, error) {
	assert.NotNil(out, "appender")

	passages := 0
	report, err := r.run(ctx, items, func(ctx context.Context, md diploma.Metadata, raw portal.RawHTML) error {
		list, err := r.parser.Parse(ctx, raw.HTML, raw.Version)
		if err != nil {
			return err
		}
		if err := out.Append(md.Code(), parser.Tag(md.Code(), list)); err != nil {
			return err
		}
		passages += len(list)
		return nil
	})
	report.Passages = passages
	return report, err
}

// ScrapeOne acquires a single diploma on a session of its own.
func (r *Runner) ScrapeOne(ctx context.Context, md diploma.Metadata) (portal.RawHTML, error) {
	raws, report, err := r.ScrapeHTML(ctx, []diploma.Metadata{md})
	if err != nil {
		return portal.RawHTML{}, err
	}
	if len(report.Failed) > 0 {
		return portal.RawHTML{}, fmt.Errorf("%s: %w", md, report.Failed[0].Err)
	}
	raw := raws[md.Code()]
	return raw, nil
}

// ETLOne acquires and parses a single diploma.
func (r *Runner) ETLOne(ctx context.Context, md diploma.Metadata) ([]parser.Passage, error) {
	raw, err := r.ScrapeOne(ctx, md)
	if err != nil {
		return nil, err
	}
	passages, err := r.parser.Parse(ctx, raw.HTML, raw.Version)
	if err != nil {
		return nil, err
	}
	return parser.Tag(md.Code(), passages), nil
}
