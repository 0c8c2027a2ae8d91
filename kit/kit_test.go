package kit

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestChain_Order(t *testing.T) {
	var order []string
	mw := func(name string) Middleware {
		return func(next Endpoint) Endpoint {
			return func(ctx context.Context, req any) (any, error) {
				order = append(order, name+"_before")
				resp, err := next(ctx, req)
				order = append(order, name+"_after")
				return resp, err
			}
		}
	}
	base := func(context.Context, any) (any, error) {
		order = append(order, "endpoint")
		return "ok", nil
	}

	resp, err := Chain(mw("a"), mw("b"))(base)(context.Background(), nil)
	if err != nil || resp != "ok" {
		t.Fatalf("resp = %v, %v", resp, err)
	}
	want := "a_before b_before endpoint b_after a_after"
	if got := strings.Join(order, " "); got != want {
		t.Fatalf("order = %q, want %q", got, want)
	}
}

func TestLogging(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	fail := errors.New("page gone")
	ep := Logging(logger, "navigate")(func(context.Context, any) (any, error) { return nil, fail })

	ctx := WithTraceID(WithSource(context.Background(), "remote"), "abcd")
	if _, err := ep(ctx, nil); !errors.Is(err, fail) {
		t.Fatalf("err = %v", err)
	}
	out := buf.String()
	for _, want := range []string{"level=WARN", "op=navigate", "source=remote", "trace_id=abcd", "page gone"} {
		if !strings.Contains(out, want) {
			t.Errorf("log %q missing %q", out, want)
		}
	}
}

func TestWithSession(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	var got string
	ep := Chain(WithSession("ses_7"), Logging(logger, "key"))(func(ctx context.Context, _ any) (any, error) {
		got = GetSessionID(ctx)
		return nil, nil
	})
	if _, err := ep(context.Background(), nil); err != nil {
		t.Fatal(err)
	}
	if got != "ses_7" {
		t.Fatalf("session = %q", got)
	}
	if out := buf.String(); !strings.Contains(out, "session_id=ses_7") {
		t.Fatalf("log %q missing session_id", out)
	}

	ep = WithSession("")(func(ctx context.Context, _ any) (any, error) {
		got = GetSessionID(ctx)
		return nil, nil
	})
	ep(context.Background(), nil)
	if got != "" {
		t.Fatalf("empty session stamped %q", got)
	}
}

func TestContextDefaults(t *testing.T) {
	ctx := context.Background()
	if GetSource(ctx) != SourceHook || GetTraceID(ctx) != "" || GetSessionID(ctx) != "" {
		t.Fatal("unexpected defaults")
	}
	ctx = WithSessionID(ctx, "ses_1")
	if GetSessionID(ctx) != "ses_1" {
		t.Fatal("session id lost")
	}
}
