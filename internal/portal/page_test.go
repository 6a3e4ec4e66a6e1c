package portal

import (
	"context"
	"fmt"
	"sync"

	"dre-etl/internal/browser"
)

type call struct {
	op   string
	loc  browser.Locator
	text string
}

func (c call) String() string {
	if c.text != "" {
		return fmt.Sprintf("%s %s %q", c.op, c.loc, c.text)
	}
	if c.loc.Value != "" {
		return fmt.Sprintf("%s %s", c.op, c.loc)
	}
	return c.op
}

// fakePage records every interaction and fails whichever one fail picks.
type fakePage struct {
	mu    sync.Mutex
	calls []call
	// fail is consulted before every interaction with the number of interactions made so far.
	fail   func(c call, n int) error
	html   map[browser.Locator]string
	closed int
}

func newFakePage() *fakePage {
	return &fakePage{
		html: map[browser.Locator]string{
			diplomaContainerLoc:    "<p>current text</p>",
			consolidatedContentLoc: "<p>consolidated text</p>",
		},
	}
}

func (p *fakePage) record(c call) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := len(p.calls)
	p.calls = append(p.calls, c)
	if p.fail != nil {
		return p.fail(c, n)
	}
	return nil
}

func (p *fakePage) count(op string, loc browser.Locator) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	total := 0
	for _, c := range p.calls {
		if c.op == op && c.loc == loc {
			total++
		}
	}
	return total
}

func (p *fakePage) ops() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.calls))
	for i, c := range p.calls {
		out[i] = c.String()
	}
	return out
}

func (p *fakePage) NavigateToRoot(ctx context.Context) error {
	return p.record(call{op: "root"})
}

func (p *fakePage) Submit(ctx context.Context, loc browser.Locator, text string) error {
	return p.record(call{op: "submit", loc: loc, text: text})
}

func (p *fakePage) Click(ctx context.Context, loc browser.Locator) error {
	return p.record(call{op: "click", loc: loc})
}

func (p *fakePage) InnerHTML(ctx context.Context, loc browser.Locator) (string, error) {
	if err := p.record(call{op: "html", loc: loc}); err != nil {
		return "", err
	}
	return p.html[loc], nil
}

func (p *fakePage) WaitInvisible(ctx context.Context, loc browser.Locator) error {
	return p.record(call{op: "invisible", loc: loc})
}

func (p *fakePage) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed++
	return nil
}

func timeoutOn(loc browser.Locator) error {
	return &browser.LookupError{Kind: browser.KindTimeout, Locator: loc, Err: context.DeadlineExceeded}
}
