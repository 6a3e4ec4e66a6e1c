package browser

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
)

var errSessionNotConnected = errors.New("session is not connected")

// run executes actions on the session tab, bounded by timeout and by the caller's ctx.
func (s *Session) run(ctx context.Context, timeout time.Duration, loc Locator, failKind Kind, actions ...chromedp.Action) error {
	if s.state != Connected {
		return &LookupError{Kind: KindNavigation, Locator: loc, Err: errSessionNotConnected}
	}

	runCtx, cancel := context.WithTimeout(s.tab, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return &LookupError{Kind: KindTimeout, Locator: loc, Err: err}
	}
	return &LookupError{Kind: failKind, Locator: loc, Err: err}
}

func interactable(loc Locator) chromedp.Tasks {
	by := loc.queryOption()
	return chromedp.Tasks{
		chromedp.WaitVisible(loc.Value, by),
		chromedp.WaitEnabled(loc.Value, by),
	}
}

// Navigate loads url and waits for the load event.
func (s *Session) Navigate(ctx context.Context, url string) error {
	return s.run(ctx, s.opts.NavigationTimeout, Locator{Value: url}, KindNavigation,
		chromedp.Navigate(url),
	)
}

// Submit waits for loc to be interactable, clears it, then types text followed by Enter.
func (s *Session) Submit(ctx context.Context, loc Locator, text string) error {
	by := loc.queryOption()
	return s.run(ctx, s.opts.LookupTimeout, loc, KindNotInteractable,
		interactable(loc),
		chromedp.Clear(loc.Value, by),
		chromedp.SendKeys(loc.Value, text+kb.Enter, by),
	)
}

// Click waits for loc to be interactable and clicks it.
func (s *Session) Click(ctx context.Context, loc Locator) error {
	return s.run(ctx, s.opts.LookupTimeout, loc, KindNotInteractable,
		interactable(loc),
		chromedp.Click(loc.Value, loc.queryOption()),
	)
}

// InnerHTML waits for loc to be interactable and returns its inner markup.
func (s *Session) InnerHTML(ctx context.Context, loc Locator) (string, error) {
	var html string
	err := s.run(ctx, s.opts.LookupTimeout, loc, KindNotInteractable,
		interactable(loc),
		chromedp.InnerHTML(loc.Value, &html, loc.queryOption()),
	)
	if err != nil {
		return "", err
	}
	if html == "" {
		return "", &LookupError{Kind: KindNotInteractable, Locator: loc, Err: fmt.Errorf("element has no content")}
	}
	return html, nil
}

// WaitInvisible waits until loc is either absent or not rendered.
func (s *Session) WaitInvisible(ctx context.Context, loc Locator) error {
	var hidden bool
	return s.run(ctx, s.opts.LookupTimeout, loc, KindNotInteractable,
		chromedp.Poll(loc.hiddenExpr(), &hidden, chromedp.WithPollingInterval(100*time.Millisecond)),
	)
}
