package shell

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/tvshell/observability"
	"github.com/hazyhaar/tvshell/remote"
	"github.com/hazyhaar/tvshell/router"
	"github.com/hazyhaar/tvshell/shell/internal/policy"
	"github.com/hazyhaar/tvshell/spatial"
)

func TestOpener(t *testing.T) {
	if o, ok := opener("").(policy.CommandOpener); !ok || o.Command == "" {
		t.Fatalf("default opener = %#v", opener(""))
	}
	if _, ok := opener("none").(policy.NopOpener); !ok {
		t.Fatalf("none opener = %#v", opener("none"))
	}
	if o, ok := opener("/usr/bin/firefox").(policy.CommandOpener); !ok || o.Command != "/usr/bin/firefox" {
		t.Fatalf("custom opener = %#v", opener("/usr/bin/firefox"))
	}
}

func TestNavigationParams(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Navigation.OverlapThreshold = 0.6
	p := NavigationParams(cfg.Navigation)
	if p.OverlapThreshold != 0.6 {
		t.Fatalf("overlap = %v", p.OverlapThreshold)
	}

	e := spatial.New(spatial.Config{Params: NavigationParams(NavigationConfig{})})
	d := spatial.DefaultParams()
	got := e.Params()
	if got.PerpendicularWeight != d.PerpendicularWeight || got.RowTolerance != d.RowTolerance {
		t.Fatalf("zero config params = %+v, want defaults %+v", got, d)
	}
}

func TestShell_NoWindow(t *testing.T) {
	s := New(nil, nil)
	ctx := context.Background()

	if _, err := s.Key(ctx, router.Event{Key: "ArrowLeft", Code: "ArrowLeft"}); !errors.Is(err, remote.ErrUnavailable) {
		t.Fatalf("Key without window: %v", err)
	}
	if _, err := s.Navigate(ctx, spatial.Up); !errors.Is(err, remote.ErrUnavailable) {
		t.Fatalf("Navigate without window: %v", err)
	}
	if _, err := s.NavStats(ctx, time.Now()); !errors.Is(err, remote.ErrNoStats) {
		t.Fatalf("NavStats without telemetry: %v", err)
	}
	if s.Window() != nil {
		t.Fatal("window open before Run")
	}
}

func TestShell_QuitTwice(t *testing.T) {
	s := New(nil, nil)
	s.Quit()
	s.Quit()
	select {
	case <-s.quit:
	default:
		t.Fatal("quit channel still open")
	}
}

func TestShell_QuitKeyFromConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Keys.Quit = []string{"Escape"}
	s := New(cfg, nil)
	km := s.router.Keymap()
	if !km.IsQuit("Escape") || km.IsQuit("q") {
		t.Fatalf("quit keys = %v", km.Quit)
	}
}

func TestShell_Telemetry(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Telemetry.Path = filepath.Join(t.TempDir(), "nested", "telemetry.db")
	s := New(cfg, nil)
	ctx := t.Context()

	if err := s.openTelemetry(ctx); err != nil {
		t.Fatal(err)
	}
	defer s.closeTelemetry()

	s.recordResult(router.Result{
		Class:   router.Class{Action: router.ActionNavigate, Direction: spatial.Right},
		Moved:   true,
		Outcome: spatial.Outcome{Direction: spatial.Right, Moved: true, Stage: spatial.StageDirectional},
		Elapsed: 4 * time.Millisecond,
	})
	s.recordResult(router.Result{
		Class:   router.Class{Action: router.ActionNavigate, Direction: spatial.Up},
		Retried: true,
		Outcome: spatial.Outcome{Direction: spatial.Up, Stage: spatial.StageNone},
	})
	s.recordResult(router.Result{Class: router.Class{Action: router.ActionPress, Stroke: router.StrokeTab}})

	stats, err := s.NavStats(ctx, time.Now().Add(-time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if stats["directional/true"] != 1 || stats["none/false"] != 1 || len(stats) != 2 {
		t.Fatalf("stats = %v", stats)
	}

	s.recordExternal("https://example.com/", nil)
	s.logEvent(ctx, observability.EventQuit, "", true)
	evs, err := s.events.Events(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(evs) != 2 || evs[0].Type != observability.EventExternalLink || evs[0].Detail != "https://example.com/" {
		t.Fatalf("events = %+v", evs)
	}
}

func TestSiteOrigin(t *testing.T) {
	got, err := siteOrigin("https://www.svtplay.se/kategori/serier?x=1")
	if err != nil {
		t.Fatal(err)
	}
	if got != "https://www.svtplay.se" {
		t.Fatalf("origin = %q", got)
	}
}

func TestStrokeKeys(t *testing.T) {
	km := router.DefaultKeymap()
	for code, s := range km.Replay {
		if _, ok := strokeKeys[s.Key]; !ok {
			t.Errorf("replay %s: no key for %s", code, s)
		}
	}
	for code, s := range km.Press {
		if _, ok := strokeKeys[s.Key]; !ok {
			t.Errorf("press %s: no key for %s", code, s)
		}
	}
}
