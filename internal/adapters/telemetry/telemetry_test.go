package telemetry_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.trai.ch/bincache/internal/adapters/telemetry"
	"go.trai.ch/bincache/internal/core/ports/mocks"
	"go.uber.org/mock/gomock"
)

func TestOTelTracer_RecordsSpans(t *testing.T) {
	t.Parallel()

	sr := tracetest.NewSpanRecorder()
	tracer := telemetry.NewOTelTracer("test", sr)

	ctx, span := tracer.Start(context.Background(), "install")
	span.SetAttribute("spec", "zlib@1.2.11")
	span.SetAttribute("force", true)
	span.SetAttribute("count", 3)
	span.SetAttribute("mirrors", []string{"a", "b"})
	span.SetAttribute("other", struct{ X int }{X: 1})
	_, child := tracer.Start(ctx, "relocate")
	child.RecordError(errors.New("boom"))
	child.RecordError(nil)
	child.End()
	span.End()

	require.NoError(t, tracer.Shutdown(context.Background()))

	ended := sr.Ended()
	require.Len(t, ended, 2)
	assert.Equal(t, "relocate", ended[0].Name())
	assert.Equal(t, codes.Error, ended[0].Status().Code)
	assert.Equal(t, ended[1].SpanContext().SpanID(), ended[0].Parent().SpanID())

	attrs := map[attribute.Key]attribute.Value{}
	for _, kv := range ended[1].Attributes() {
		attrs[kv.Key] = kv.Value
	}
	assert.Equal(t, "zlib@1.2.11", attrs["spec"].AsString())
	assert.True(t, attrs["force"].AsBool())
	assert.Equal(t, int64(3), attrs["count"].AsInt64())
	assert.Equal(t, []string{"a", "b"}, attrs["mirrors"].AsStringSlice())
	assert.Equal(t, "{1}", attrs["other"].AsString())
}

func TestLogBridge_LogsFinishedSpans(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	log := mocks.NewMockLogger(ctrl)

	var lines []string
	log.EXPECT().Debug(gomock.Any()).Do(func(msg string) {
		lines = append(lines, msg)
	}).Times(2)

	tracer := telemetry.NewOTelTracer("test", telemetry.NewLogBridge(log))
	_, ok := tracer.Start(context.Background(), "index")
	ok.End()
	_, failed := tracer.Start(context.Background(), "create")
	failed.RecordError(errors.New("destination exists"))
	failed.End()
	require.NoError(t, tracer.Shutdown(context.Background()))

	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "index finished in "), lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "create failed after "), lines[1])
	assert.True(t, strings.HasSuffix(lines[1], ": destination exists"), lines[1])
}

func TestNoOpTracer(t *testing.T) {
	t.Parallel()

	tracer := telemetry.NewNoOpTracer()
	ctx := context.Background()
	got, span := tracer.Start(ctx, "noop")
	assert.Equal(t, ctx, got)
	span.SetAttribute("k", "v")
	span.RecordError(errors.New("x"))
	span.End()
	require.NoError(t, tracer.Shutdown(ctx))
}
