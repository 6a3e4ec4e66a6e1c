package parser

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"dre-etl/pkg/htmlutil"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("dre-etl.parser")

// Passage is one text unit of a diploma, Index is its position in document order.
type Passage struct {
	Diploma string
	Index   int
	Text    string
}

// Document is the markup of one diploma along with the version it was captured at.
type Document struct {
	HTML    string
	Version string
}

// ParseError is opaque to callers, it only says the markup could not be turned into passages.
type ParseError struct {
	Diploma string
	Reason  string
	Err     error
}

func (e *ParseError) Error() string {
	msg := "parse"
	if e.Diploma != "" {
		msg += fmt.Sprintf(" %q", e.Diploma)
	}
	msg += ": " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Parser turns the markup of a single diploma into passages. Implementations must be
// deterministic, the same input always yields the same passages in document order.
type Parser interface {
	Parse(ctx context.Context, html, version string) ([]Passage, error)
}

const (
	DefaultBlocks = "p, li, h1, h2, h3, h4, h5, h6, td"
	// DefaultAmendmentNotes matches the notes the portal interleaves with consolidated text
	// to describe which diploma changed each article.
	DefaultAmendmentNotes = "[class*='nota'], [class*='alteracao'], [class*='Nota']"
)

// GoqueryParser extracts the innermost block elements of the markup, each non empty block is
// a passage.
type GoqueryParser struct {
	Blocks string
	// AmendmentNotes are removed before extraction when a version is given.
	AmendmentNotes string
}

func NewGoqueryParser() GoqueryParser {
	return GoqueryParser{
		Blocks:         DefaultBlocks,
		AmendmentNotes: DefaultAmendmentNotes,
	}
}

func (p GoqueryParser) Parse(ctx context.Context, html, version string) ([]Passage, error) {
	ctx, span := tracer.Start(ctx, "Parse", trace.WithAttributes(
		attribute.String("version", version),
		attribute.Int("bytes", len(html)),
	))
	defer span.End()

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, &ParseError{Reason: "invalid markup", Err: err}
	}

	if version != "" && p.AmendmentNotes != "" {
		doc.Find(p.AmendmentNotes).Remove()
	}

	var passages []Passage
	doc.Find(p.Blocks).Each(func(_ int, block *goquery.Selection) {
		// nested blocks are handled by their innermost element
		if block.Find(p.Blocks).Length() > 0 {
			return
		}
		text := htmlutil.NodeText(block.Get(0))
		if text == "" {
			return
		}
		passages = append(passages, Passage{Index: len(passages), Text: text})
	})

	if len(passages) == 0 {
		err := &ParseError{Reason: "no passages found"}
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("passages", len(passages)))
	return passages, nil
}

// Tag sets the diploma of every passage.
func Tag(code string, passages []Passage) []Passage {
	for i := range passages {
		passages[i].Diploma = code
	}
	return passages
}

// ParseMultiple parses every document, the result is keyed by diploma code. Documents are
// parsed in code order so errors are reported deterministically. Every failure is a
// *ParseError naming its diploma, see Failures.
func ParseMultiple(ctx context.Context, p Parser, docs map[string]Document) (map[string][]Passage, error) {
	keys := make([]string, 0, len(docs))
	for code := range docs {
		keys = append(keys, code)
	}
	sort.Strings(keys)

	out := make(map[string][]Passage, len(docs))
	var errs []error
	for _, code := range keys {
		doc := docs[code]
		passages, err := p.Parse(ctx, doc.HTML, doc.Version)
		if err != nil {
			var parseErr *ParseError
			if !errors.As(err, &parseErr) {
				err = &ParseError{Diploma: code, Reason: "parser failed", Err: err}
			} else if parseErr.Diploma == "" {
				parseErr.Diploma = code
			}
			errs = append(errs, err)
			continue
		}
		out[code] = Tag(code, passages)
	}
	return out, errors.Join(errs...)
}

// Failures maps each diploma code named by the *ParseError values in err (as returned by
// ParseMultiple) to its error. complete is false when some error in err names no diploma.
func Failures(err error) (failures map[string]error, complete bool) {
	if err == nil {
		return nil, true
	}
	list := []error{err}
	var joined interface{ Unwrap() []error }
	if errors.As(err, &joined) {
		list = joined.Unwrap()
	}

	failures = make(map[string]error, len(list))
	complete = true
	for _, e := range list {
		var parseErr *ParseError
		if !errors.As(e, &parseErr) || parseErr.Diploma == "" {
			complete = false
			continue
		}
		failures[parseErr.Diploma] = e
	}
	return failures, complete
}
