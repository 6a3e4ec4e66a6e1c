package portal

import (
	"context"
	"time"

	"dre-etl/internal/browser"
	"dre-etl/internal/components/assert"
	"dre-etl/internal/components/telemetry"
	"dre-etl/internal/diploma"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	report_engine_attempt = "engine.attempt"
	report_engine_reset   = "engine.reset"
	report_engine_acquire = "engine.acquire"
	report_engine_close   = "engine.close"
)

const DefaultAttemptsLimit = 5

var (
	tracer = otel.Tracer("dre-etl.portal")
	meter  = otel.Meter("dre-etl.portal")

	attemptCounter, _ = meter.Int64Counter(
		"portal.attempts",
		metric.WithDescription("acquisition attempts by outcome and failure kind"),
	)
)

// Page is the subset of a browser session the engine drives.
//
// note: fault injection point
type Page interface {
	NavigateToRoot(ctx context.Context) error
	Submit(ctx context.Context, loc browser.Locator, text string) error
	Click(ctx context.Context, loc browser.Locator) error
	InnerHTML(ctx context.Context, loc browser.Locator) (string, error)
	WaitInvisible(ctx context.Context, loc browser.Locator) error
	Close() error
}

// ResetPolicy decides where a retried attempt starts from.
type ResetPolicy int

const (
	// ResetToRoot reloads the portal root before every attempt but the first.
	ResetToRoot ResetPolicy = iota
	// ResetNone retries from wherever the previous attempt left the page.
	ResetNone
)

// RawHTML is the inner HTML of the diploma body as captured from the portal.
type RawHTML struct {
	Code    string
	Version string
	HTML    string
}

type EngineOptions struct {
	// AttemptsLimit bounds the total attempts per diploma, DefaultAttemptsLimit when <= 0.
	AttemptsLimit int
	ResetPolicy   ResetPolicy
	// RetryDelay is waited between attempts, zero retries immediately.
	RetryDelay time.Duration
}

// Engine acquires the raw HTML of diplomas, retrying failed attempts until the attempts
// limit is reached.
type Engine struct {
	attemptsLimit int
	resetPolicy   ResetPolicy
	retryDelay    time.Duration
	tel           telemetry.API
}

func NewEngine(opts EngineOptions, tel telemetry.API) Engine {
	assert.NotNil(tel, "telemetry")
	if opts.AttemptsLimit <= 0 {
		opts.AttemptsLimit = DefaultAttemptsLimit
	}
	return Engine{
		attemptsLimit: opts.AttemptsLimit,
		resetPolicy:   opts.ResetPolicy,
		retryDelay:    opts.RetryDelay,
		tel:           telemetry.NewScopedAPI("portal", tel),
	}
}

func (e Engine) AttemptsLimit() int {
	return e.attemptsLimit
}

// Acquire searches the diploma, opens it and, when a version is requested, resolves the
// consolidated text as of that date.
//
// Every failed attempt is reported with its kind and retried. Once the attempts limit is
// reached the page is closed and an *AcquisitionError is returned. Cancelling ctx stops
// retrying and returns the context error, the page is left to the caller in that case.
func (e Engine) Acquire(ctx context.Context, page Page, md diploma.Metadata) (RawHTML, error) {
	assert.NotNil(page, "page")

	ctx, span := tracer.Start(ctx, "Acquire", trace.WithAttributes(
		attribute.String("code", md.Code()),
		attribute.String("version", md.Version()),
	))
	defer span.End()

	attempts := 0
	var kinds []string
	var last error

	operation := func() (string, error) {
		attempts++
		if attempts > 1 && e.resetPolicy == ResetToRoot {
			e.tel.ReportDebug(report_engine_reset, "attempt", attempts)
			if err := page.NavigateToRoot(ctx); err != nil {
				return "", e.failed(ctx, &kinds, &last, err)
			}
		}
		html, err := e.attempt(ctx, page, md)
		if err != nil {
			return "", e.failed(ctx, &kinds, &last, err)
		}
		attemptCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "ok")))
		return html, nil
	}
	notify := func(err error, wait time.Duration) {
		e.tel.ReportWarning(
			report_engine_attempt,
			md.String(), "attempt", attempts, "kind", FailureKind(err), "err", err, "retry_in", wait,
		)
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(e.retryDelay), uint64(e.attemptsLimit-1)),
		ctx,
	)
	html, err := backoff.RetryNotifyWithData(operation, policy, notify)
	if err == nil {
		span.SetAttributes(attribute.Int("attempts", attempts))
		return RawHTML{Code: md.Code(), Version: md.Version(), HTML: html}, nil
	}

	span.SetStatus(codes.Error, err.Error())
	span.RecordError(err)
	if ctx.Err() != nil {
		return RawHTML{}, ctx.Err()
	}

	if closeErr := page.Close(); closeErr != nil {
		e.tel.ReportWarning(report_engine_close, closeErr)
	}
	acqErr := &AcquisitionError{
		Code:     md.Code(),
		Version:  md.Version(),
		Attempts: attempts,
		Kinds:    kinds,
		Last:     last,
	}
	e.tel.ReportBroken(report_engine_acquire, acqErr, "kinds", kinds)
	return RawHTML{}, acqErr
}

// failed records a failed attempt, a cancelled context is turned into a permanent error so
// it is never retried.
func (e Engine) failed(ctx context.Context, kinds *[]string, last *error, err error) error {
	if ctx.Err() != nil {
		return backoff.Permanent(ctx.Err())
	}
	kind := FailureKind(err)
	*kinds = append(*kinds, kind)
	*last = err
	attemptCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", "failed"),
		attribute.String("kind", kind),
	))
	return err
}

func (e Engine) attempt(ctx context.Context, page Page, md diploma.Metadata) (string, error) {
	ctx, span := tracer.Start(ctx, "attempt")
	defer span.End()

	if err := page.Submit(ctx, searchInputLoc, md.Code()); err != nil {
		return "", err
	}
	if err := page.Click(ctx, resultLinkLoc(md.Code())); err != nil {
		return "", err
	}

	if md.HasVersion() {
		res, err := ResolveVersion(ctx, page, md.Version())
		if err != nil {
			return "", err
		}
		e.tel.ReportDebug("resolved consolidated version", "trail", res.Trail)
		return res.HTML, nil
	}

	return page.InnerHTML(ctx, diplomaContainerLoc)
}
