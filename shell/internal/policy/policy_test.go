package policy

import (
	"context"
	"errors"
	"os/exec"
	"strings"
	"testing"

	"github.com/go-rod/rod/lib/proto"
)

type recordingOpener struct {
	urls []string
	err  error
}

func (o *recordingOpener) Open(_ context.Context, u string) error {
	o.urls = append(o.urls, u)
	return o.err
}

func svtOnly(host string) bool {
	return host == "svtplay.se" || strings.HasSuffix(host, ".svtplay.se")
}

func TestDecide(t *testing.T) {
	p := New(Config{Allowed: svtOnly})
	cases := []struct {
		url  string
		want Decision
	}{
		{"https://www.svtplay.se/video/123", Allow},
		{"http://svtplay.se/", Allow},
		{"https://example.com/", External},
		{"https://svtplay.se.example.com/", External},
		{"mailto:tips@svt.se", External},
		{"about:blank", Allow},
		{"data:text/html,hi", Allow},
		{"blob:https://www.svtplay.se/0b8e", Allow},
		{"javascript:alert(1)", Drop},
		{"file:///etc/passwd", Drop},
		{"/relative/path", Drop},
		{"https://", External},
		{"%zz", Drop},
	}
	for _, tc := range cases {
		if got := p.Decide(tc.url); got != tc.want {
			t.Errorf("Decide(%q) = %v, want %v", tc.url, got, tc.want)
		}
	}
}

func TestDecideNavigation(t *testing.T) {
	p := New(Config{Allowed: svtOnly})
	const main, player proto.PageFrameID = "F0", "F1"
	cases := []struct {
		name  string
		frame proto.PageFrameID
		url   string
		want  Decision
	}{
		{"main allowed", main, "https://www.svtplay.se/kanaler", Allow},
		{"main foreign", main, "https://example.com/", External},
		{"main script", main, "javascript:void(0)", Drop},
		{"subframe foreign", player, "https://ads.example.com/frame", Allow},
		{"subframe script", player, "javascript:void(0)", Allow},
		{"unknown frame", "", "https://example.com/", External},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := p.DecideNavigation(tc.frame, main, tc.url); got != tc.want {
				t.Errorf("DecideNavigation(%q, %q) = %v, want %v", tc.frame, tc.url, got, tc.want)
			}
		})
	}
	if got := p.DecideNavigation(player, "", "https://example.com/"); got != External {
		t.Errorf("no main frame id: %v, want external", got)
	}
}

func TestNew_Defaults(t *testing.T) {
	p := New(Config{})
	if got := p.Decide("https://www.svtplay.se/"); got != External {
		t.Fatalf("nil Allowed kept a host: %v", got)
	}
	p.OpenExternal(context.Background(), "https://example.com/")
}

func TestOpenExternal(t *testing.T) {
	o := &recordingOpener{err: errors.New("no desktop")}
	var seen []string
	var lastErr error
	p := New(Config{Allowed: svtOnly, Opener: o, OnExternal: func(u string, err error) {
		seen = append(seen, u)
		lastErr = err
	}})

	p.OpenExternal(context.Background(), "https://example.com/a")
	if len(o.urls) != 1 || o.urls[0] != "https://example.com/a" {
		t.Fatalf("opener got %v", o.urls)
	}
	if len(seen) != 1 || lastErr == nil {
		t.Fatalf("OnExternal saw %v, %v", seen, lastErr)
	}
}

func TestCommandOpener(t *testing.T) {
	bin, err := exec.LookPath("true")
	if err != nil {
		t.Skip("no true(1) on this system")
	}
	if err := (CommandOpener{Command: bin}).Open(context.Background(), "https://example.com/"); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := (CommandOpener{Command: "/nonexistent/opener"}).Open(context.Background(), "x"); err == nil {
		t.Fatal("missing opener did not fail")
	}
}

func TestSystemOpener(t *testing.T) {
	if SystemOpener().Command == "" {
		t.Fatal("no system opener command")
	}
}
