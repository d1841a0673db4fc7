package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger(t *testing.T, format logFormat, errs io.Writer) (*slog.Logger, func() string, func() string) {
	t.Helper()
	main := &bytes.Buffer{}
	mw := newAsyncWriter([]io.Writer{main}, 16)
	cfg := handlerConfig{level: slog.LevelDebug, writer: mw, format: format}
	var ew *asyncWriter
	errBuf := &bytes.Buffer{}
	if errs != nil {
		ew = newAsyncWriter([]io.Writer{errBuf}, 16)
		cfg.errors = ew
	}
	lg := slog.New(newStructuredHandler(cfg))
	mainOut := func() string {
		require.NoError(t, mw.Close())
		return main.String()
	}
	errOut := func() string {
		if ew == nil {
			return ""
		}
		require.NoError(t, ew.Close())
		return errBuf.String()
	}
	return lg, mainOut, errOut
}

func TestKVLineFollowsKeyOrder(t *testing.T) {
	lg, out, _ := newTestLogger(t, formatKV, nil)
	ctx := WithUpdateMeta(WithRID(context.Background(), "rid-123"), 42, 7, 9)

	lg.LogAttrs(ctx, slog.LevelInfo, "listing.created",
		slog.String("component", "wizard"),
		slog.String("cause", "unit"),
		slog.String("status", "OK"),
	)

	tokens := strings.Fields(strings.TrimSpace(out()))
	want := []string{"ts=", "level=INFO", "component=wizard", "event=listing.created", "status=ok", "rid=rid-123", "update_id=42", "user_id=7", "chat_id=9", "cause=unit"}
	require.Len(t, tokens, len(want))
	for i, prefix := range want {
		assert.True(t, strings.HasPrefix(tokens[i], prefix), "token %d = %s, want prefix %s", i, tokens[i], prefix)
	}
}

func TestJSONLineCompactsRID(t *testing.T) {
	lg, out, _ := newTestLogger(t, formatJSON, nil)
	ctx := WithRID(context.Background(), BuildRID(100, 36, 35))

	lg.LogAttrs(ctx, slog.LevelError, "",
		slog.String("event", "publish.failed"),
		slog.Any("err", errors.New("boom")),
		slog.Duration("duration", 1500*time.Microsecond),
	)

	line := strings.TrimSpace(out())
	require.True(t, strings.HasPrefix(line, `{"ts":`), line)
	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(line), &rec))
	assert.Equal(t, "2s.10.z", rec["rid"])
	assert.Equal(t, "100:36:35", rec["rid_full"])
	assert.Equal(t, "ERROR", rec["level"])
	assert.Equal(t, "app", rec["component"])
	assert.Equal(t, "boom", rec["err"])
	assert.EqualValues(t, 2, rec["duration_ms"])
	assert.Contains(t, rec, "ts_unix_nano")
}

func TestBatchIDFromContext(t *testing.T) {
	lg, out, _ := newTestLogger(t, formatKV, nil)
	ctx := WithBatch(WithHandler(context.Background(), "approve"), "b-1")

	lg.LogAttrs(ctx, slog.LevelInfo, "delivery.sent", slog.String("outcome", "sideways"))

	line := out()
	assert.Contains(t, line, "handler=approve")
	assert.Contains(t, line, "batch_id=b-1")
	assert.Contains(t, line, "event=delivery.sent")
	assert.NotContains(t, line, "outcome=")
}

func TestWarningsAlsoGoToErrorsSink(t *testing.T) {
	lg, out, errs := newTestLogger(t, formatKV, &bytes.Buffer{})

	lg.Info("quiet")
	lg.Warn("loud", slog.String("cause", "two words"))

	main := out()
	errLines := errs()
	assert.Equal(t, 2, strings.Count(main, "\n"))
	assert.Equal(t, 1, strings.Count(errLines, "\n"))
	assert.Contains(t, errLines, `cause="two words"`)
}

func TestGroupsFlattenToDottedKeys(t *testing.T) {
	lg, out, _ := newTestLogger(t, formatKV, nil)

	lg.WithGroup("product").Info("shown", slog.Int64("id", 5), slog.String("title", ""))

	line := out()
	assert.Contains(t, line, "product.id=5")
	assert.NotContains(t, line, "product.title")
}

func TestEventHelpersAreNilSafe(t *testing.T) {
	prev := L
	L = nil
	t.Cleanup(func() { L = prev })

	assert.NotPanics(t, func() {
		Info(context.Background(), "app", "noop")
		Error(context.TODO(), "app", "noop")
	})
}

func TestRatioSampler(t *testing.T) {
	s := newRatioSampler(2, 5)
	kept := 0
	for i := 0; i < 10; i++ {
		if s.Allow() {
			kept++
		}
	}
	assert.Equal(t, 4, kept)

	s.Set(0, 0)
	assert.True(t, s.Allow())
}

func TestParseDebugSample(t *testing.T) {
	cases := map[string][2]int{
		"":      {1, 50},
		"1/10":  {1, 10},
		"20":    {1, 20},
		"0":     {0, 0},
		"0/0":   {0, 0},
		"bogus": {1, 50},
	}
	for in, want := range cases {
		keep, of := parseDebugSample(in)
		assert.Equal(t, want, [2]int{keep, of}, "input %q", in)
	}
}

func TestAsyncWriterRejectsAfterClose(t *testing.T) {
	buf := &bytes.Buffer{}
	w := newAsyncWriter([]io.Writer{buf}, 1)
	require.NoError(t, w.Write([]byte("a\n")))
	require.NoError(t, w.Flush())
	assert.Equal(t, "a\n", buf.String())
	require.NoError(t, w.Close())
	assert.ErrorIs(t, w.Write([]byte("b\n")), errWriterClosed)
}

type brokenSink struct{}

func (brokenSink) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestAsyncWriterStickyError(t *testing.T) {
	w := newAsyncWriter([]io.Writer{brokenSink{}}, 4)
	require.NoError(t, w.Write([]byte("x\n")))
	assert.EqualError(t, w.Flush(), "disk full")
	assert.EqualError(t, w.Write([]byte("y\n")), "disk full")
	assert.EqualError(t, w.Close(), "disk full")
}

func TestContextHelpers(t *testing.T) {
	ctx := WithUpdateMeta(context.Background(), 1, 2, 3)
	ctx = WithRID(ctx, "r")
	assert.Equal(t, 1, UpdateIDFrom(ctx))
	assert.Equal(t, int64(2), UserIDFrom(ctx))
	assert.Equal(t, int64(3), ChatIDFrom(ctx))
	assert.Equal(t, "r", RIDFrom(ctx))
	assert.Empty(t, BatchFrom(ctx))
	assert.Equal(t, "bad:rid", CompactRID("bad:rid"))
}

func TestSanitizeLimit(t *testing.T) {
	assert.Equal(t, "héllo", SanitizeLimit("h\u200béllo\x07 world", 5))
	assert.Equal(t, "a\tb", SanitizeLimit("a\tb", 10))
	assert.Empty(t, SanitizeLimit("abc", 0))
}
