package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestScopedAPI(t *testing.T) {
	rec := &Recorder{}
	scoped := NewScopedAPI("portal", NewScopedAPI("engine", rec))

	scoped.ReportBroken("engine.acquire", "decreto-lei n.º 10/2024")
	scoped.ReportWarning("engine.attempt", 2)
	scoped.ReportCount("engine.attempts", 3)

	broken := rec.Reports("broken", "")
	require.Len(t, broken, 1)
	require.Equal(t, "engine: portal: engine.acquire", broken[0].ID)
	require.Equal(t, []any{"decreto-lei n.º 10/2024"}, broken[0].Params)

	require.Len(t, rec.Reports("warning", "engine.attempt"), 1)
	counts := rec.Reports("count", "engine.attempts")
	require.Len(t, counts, 1)
	require.Equal(t, []any{int64(3)}, counts[0].Params)
}

func TestSetupWithoutEndpoints(t *testing.T) {
	tel, err := Setup(context.Background(), "test:telemetry", Config{})
	require.NoError(t, err)
	require.Nil(t, tel.TracerProvider)
	require.Nil(t, tel.MeterProvider)
	require.NoError(t, tel.Shutdown(context.Background()))
}

func TestConfigEnabled(t *testing.T) {
	require.False(t, Config{}.Enabled())
	require.True(t, Config{Otlp: OtlpConfig{
		Traces: OtlpConnConfig{HttpEndpoint: "http://127.0.0.1:4318/v1/traces"},
	}}.Enabled())
}
