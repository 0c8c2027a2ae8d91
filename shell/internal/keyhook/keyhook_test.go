package keyhook

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/hazyhaar/tvshell/router"
)

func TestScript(t *testing.T) {
	keys, codes := router.DefaultKeymap().Consumable()
	js, err := script(Config{Keys: keys, Codes: codes})
	if err != nil {
		t.Fatal(err)
	}
	head, body, ok := strings.Cut(js, "\n")
	if !ok || !strings.HasPrefix(head, "window.__tvshellKeys = ") || body != hookJS {
		t.Fatalf("script prefix = %q", head)
	}

	var cfg struct {
		Binding string   `json:"binding"`
		Keys    []string `json:"keys"`
		Codes   []string `json:"codes"`
	}
	raw := strings.TrimSuffix(strings.TrimPrefix(head, "window.__tvshellKeys = "), ";")
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		t.Fatalf("config %q: %v", raw, err)
	}
	if cfg.Binding != Binding || len(cfg.Keys) != len(keys) || len(cfg.Codes) != len(codes) {
		t.Fatalf("config = %+v", cfg)
	}
}

func TestScript_EmptyLists(t *testing.T) {
	js, err := script(Config{})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(js, `"keys":[]`) || !strings.Contains(js, `"codes":[]`) {
		t.Fatalf("nil lists must encode as arrays: %s", strings.SplitN(js, "\n", 2)[0])
	}
}

func TestDeliver(t *testing.T) {
	h := newHook(Config{Buffer: 2})

	h.deliver(`{"kind":"key","type":"keydown","key":"ArrowLeft","code":"ArrowLeft","shift":true}`)
	h.deliver(`{"kind":"open","url":"https://example.com/"}`)
	h.deliver(`not json`)
	h.deliver(`{"kind":"mystery"}`)

	ev := <-h.Keys()
	want := router.Event{Type: "keydown", Key: "ArrowLeft", Code: "ArrowLeft", Shift: true}
	if ev != want {
		t.Fatalf("event = %+v, want %+v", ev, want)
	}
	if u := <-h.Opens(); u != "https://example.com/" {
		t.Fatalf("open = %q", u)
	}
	if len(h.keys) != 0 {
		t.Fatalf("unexpected queued keys: %d", len(h.keys))
	}
}

func TestDeliver_FullBufferDrops(t *testing.T) {
	h := newHook(Config{Buffer: 1})
	h.deliver(`{"kind":"key","key":"a","code":"KeyA"}`)
	h.deliver(`{"kind":"key","key":"b","code":"KeyB"}`)

	if h.Dropped() != 1 {
		t.Fatalf("dropped = %d, want 1", h.Dropped())
	}
	if ev := <-h.Keys(); ev.Key != "a" {
		t.Fatalf("kept %q, want the first event", ev.Key)
	}
}
