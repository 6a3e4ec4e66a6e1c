package browser

import (
	"context"
	"errors"
	"fmt"
	"time"

	"dre-etl/internal/components/assert"
	"dre-etl/internal/components/telemetry"

	"github.com/chromedp/chromedp"
)

const (
	report_session_connect = "session.connect"
	report_session_close   = "session.close"
)

type Mode int

const (
	Local Mode = iota
	Remote
)

func (m Mode) String() string {
	if m == Remote {
		return "remote"
	}
	return "local"
}

type State int

const (
	Disconnected State = iota
	Connected
	Closed
)

func (s State) String() string {
	switch s {
	case Connected:
		return "connected"
	case Closed:
		return "closed"
	default:
		return "disconnected"
	}
}

type Options struct {
	Mode     Mode
	Headless bool
	// RemoteURL is the DevTools http endpoint, ex. http://127.0.0.1:9222
	RemoteURL string
	PortalURL string
	// LookupTimeout bounds every wait for an element, defaults to 10s.
	LookupTimeout time.Duration
	// NavigationTimeout bounds page loads, defaults to 30s.
	NavigationTimeout time.Duration
}

// Session is one browser tab driven through the DevTools protocol.
// It is not safe for concurrent use, every interaction is serialized by the caller.
type Session struct {
	opts  Options
	tel   telemetry.API
	state State

	tab         context.Context
	cancelTab   context.CancelFunc
	cancelAlloc context.CancelFunc
}

// Connect starts (Local) or attaches to (Remote) a browser and opens the portal root.
// The returned session must be closed by the caller, on every path.
func Connect(ctx context.Context, opts Options, tel telemetry.API) (*Session, error) {
	assert.NotNil(tel, "telemetry")
	assert.NotEmptyStr(opts.PortalURL, "portal url")
	if opts.LookupTimeout <= 0 {
		opts.LookupTimeout = 10 * time.Second
	}
	if opts.NavigationTimeout <= 0 {
		opts.NavigationTimeout = 30 * time.Second
	}

	s := &Session{
		opts: opts,
		tel:  telemetry.NewScopedAPI("browser", tel),
	}

	var allocCtx context.Context
	switch opts.Mode {
	case Remote:
		wsURL, err := resolveDebuggerURL(ctx, opts.RemoteURL, s.tel)
		if err != nil {
			s.tel.ReportBroken(report_session_connect, err, opts.RemoteURL)
			return nil, &ConnectionError{Mode: opts.Mode, Endpoint: opts.RemoteURL, Err: err}
		}
		allocCtx, s.cancelAlloc = chromedp.NewRemoteAllocator(ctx, wsURL)
	default:
		allocOpts := append(
			chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", opts.Headless),
			chromedp.NoSandbox,
			chromedp.Flag("disable-dev-shm-usage", true),
		)
		allocCtx, s.cancelAlloc = chromedp.NewExecAllocator(ctx, allocOpts...)
	}
	s.tab, s.cancelTab = chromedp.NewContext(allocCtx)

	// the first Run allocates the browser, it must not happen under a timeout context or
	// the browser would die with it
	err := chromedp.Run(s.tab)
	if err != nil {
		s.release()
		s.tel.ReportBroken(report_session_connect, err, opts.Mode.String())
		return nil, &ConnectionError{Mode: opts.Mode, Endpoint: opts.RemoteURL, Err: err}
	}
	s.state = Connected

	err = s.NavigateToRoot(ctx)
	if err != nil {
		s.Close()
		return nil, &ConnectionError{Mode: opts.Mode, Endpoint: opts.PortalURL, Err: err}
	}

	s.tel.ReportDebug("connected", opts.Mode.String(), opts.PortalURL)
	return s, nil
}

func (s *Session) State() State {
	return s.state
}

// NavigateToRoot loads the portal root page.
func (s *Session) NavigateToRoot(ctx context.Context) error {
	return s.Navigate(ctx, s.opts.PortalURL)
}

// Close releases the tab and, for local sessions, the browser process.
// Calling it more than once is a no-op.
func (s *Session) Close() error {
	if s.state == Closed {
		return nil
	}
	s.state = Closed

	var err error
	if s.tab != nil {
		err = chromedp.Cancel(s.tab)
		if errors.Is(err, context.Canceled) {
			err = nil
		}
	}
	s.release()

	if err != nil {
		s.tel.ReportWarning(report_session_close, err)
		return fmt.Errorf("close browser session: %w", err)
	}
	s.tel.ReportDebug("closed")
	return nil
}

func (s *Session) release() {
	if s.cancelTab != nil {
		s.cancelTab()
	}
	if s.cancelAlloc != nil {
		s.cancelAlloc()
	}
}
