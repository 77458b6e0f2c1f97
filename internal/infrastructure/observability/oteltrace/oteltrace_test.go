package oteltrace_test

import (
	"context"
	"testing"

	"github.com/Zhima-Mochi/gameshop/internal/infrastructure/observability/oteltrace"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestTracerRecordsAttributes(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	tr := oteltrace.FromProvider(tp, "test")
	_, span := tr.Start(context.Background(), "UC.RequestPurchase", attribute.String("player.id", "p1"))
	span.End()

	ended := rec.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, "UC.RequestPurchase", ended[0].Name())
	assert.Contains(t, ended[0].Attributes(), attribute.String("player.id", "p1"))
}

func TestSetupWithoutEndpoint(t *testing.T) {
	shutdown, err := oteltrace.Setup(context.Background(), "gameshop-test", "")
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}
