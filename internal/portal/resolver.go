package portal

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// State is a step of the consolidated version state machine.
type State int

const (
	StateStart State = iota
	StateViewingConsolidated
	StateFullTextToggled
	StateDateEntered
	StateFiltered
	StateDone
)

func (s State) String() string {
	switch s {
	case StateStart:
		return "start"
	case StateViewingConsolidated:
		return "viewing-consolidated"
	case StateFullTextToggled:
		return "full-text-toggled"
	case StateDateEntered:
		return "date-entered"
	case StateFiltered:
		return "filtered"
	case StateDone:
		return "done"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

type transition struct {
	next State
	do   func(ctx context.Context, page Page, version string) error
}

// transitions are strictly linear, every state but StateDone has exactly one way forward.
var transitions = map[State]transition{
	StateStart: {
		next: StateViewingConsolidated,
		do: func(ctx context.Context, page Page, _ string) error {
			return page.Click(ctx, consolidatedVersionLoc)
		},
	},
	StateViewingConsolidated: {
		next: StateFullTextToggled,
		do: func(ctx context.Context, page Page, _ string) error {
			return page.Click(ctx, fullTextToggleLoc)
		},
	},
	StateFullTextToggled: {
		next: StateDateEntered,
		do: func(ctx context.Context, page Page, version string) error {
			return page.Submit(ctx, dateInputLoc, version)
		},
	},
	StateDateEntered: {
		next: StateFiltered,
		do: func(ctx context.Context, page Page, _ string) error {
			return page.Click(ctx, filterButtonLoc)
		},
	},
	StateFiltered: {
		next: StateDone,
		do: func(ctx context.Context, page Page, _ string) error {
			return page.WaitInvisible(ctx, activeFilterLoc)
		},
	},
}

// Resolution is the outcome of a run of the state machine, Trail holds every state entered
// in order, starting with StateStart.
type Resolution struct {
	HTML  string
	Trail []State
}

// ResolveVersion walks a diploma page that is already open to the consolidated text as of the
// given version date. Any step failing aborts the run with a *ResolveError, a fresh run always
// starts again from StateStart.
func ResolveVersion(ctx context.Context, page Page, version string) (Resolution, error) {
	ctx, span := tracer.Start(ctx, "ResolveVersion", trace.WithAttributes(
		attribute.String("version", version),
	))
	defer span.End()

	state := StateStart
	res := Resolution{Trail: []State{state}}
	fail := func(err error) (Resolution, error) {
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
		return res, &ResolveError{State: state, Err: err}
	}

	for state != StateDone {
		t, ok := transitions[state]
		if !ok {
			return fail(fmt.Errorf("no transition out of state %s", state))
		}
		if err := t.do(ctx, page, version); err != nil {
			return fail(err)
		}
		state = t.next
		res.Trail = append(res.Trail, state)
	}

	html, err := page.InnerHTML(ctx, consolidatedContentLoc)
	if err != nil {
		return fail(err)
	}
	res.HTML = html
	return res, nil
}
