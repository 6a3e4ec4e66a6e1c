package browser

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"dre-etl/internal/components/telemetry"

	"github.com/go-resty/resty/v2"
)

type versionInfo struct {
	Browser              string `json:"Browser"`
	WebSocketDebuggerUrl string `json:"webSocketDebuggerUrl"`
}

// resolveDebuggerURL asks the DevTools http endpoint for the browser websocket url.
//
// The endpoint reports its own listening address, which is wrong whenever the browser runs
// behind a port mapping (containers), so the host is rewritten to the one we dialed.
func resolveDebuggerURL(ctx context.Context, endpoint string, tel telemetry.API) (string, error) {
	base, err := url.Parse(endpoint)
	if err != nil {
		return "", err
	}

	client := resty.New()
	client.SetTimeout(time.Second * 5)
	telemetry.InstrumentResty(client, tel)

	var info versionInfo
	res, err := client.R().
		SetContext(ctx).
		SetResult(&info).
		Get(base.JoinPath("json", "version").String())
	if err != nil {
		return "", err
	}
	if res.IsError() {
		return "", fmt.Errorf("unexpected status %s", res.Status())
	}
	if info.WebSocketDebuggerUrl == "" {
		return "", fmt.Errorf("endpoint did not report a websocket debugger url")
	}

	ws, err := url.Parse(info.WebSocketDebuggerUrl)
	if err != nil {
		return "", fmt.Errorf("parse websocket debugger url: %w", err)
	}
	ws.Host = base.Host
	return ws.String(), nil
}
