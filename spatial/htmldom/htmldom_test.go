package htmldom

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/hazyhaar/tvshell/spatial"
)

const fixture = `<!doctype html>
<html data-tv-viewport="1920 1080"><head><style>a{color:red}</style></head><body>
	<nav>
		<a id="home" href="/" data-tv-rect="10 10 100 40">Home</a>
		<a id="live" href="/live" style="display: none" data-tv-rect="120 10 100 40">Live</a>
	</nav>
	<x-shelf id="shelf"><template shadowrootmode="open">
		<button id="card" data-tv-focus data-tv-rect="10 100 300 170"></button>
	</template></x-shelf>
	<template><button id="inert"></button></template>
	<div hidden><button id="gone" data-tv-rect="0 0 10 10"></button></div>
</body></html>`

func TestParse(t *testing.T) {
	doc, err := ParseString(fixture)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	vp, _ := doc.Viewport(ctx)
	if vp != (spatial.Size{Width: 1920, Height: 1080}) {
		t.Fatalf("viewport = %+v", vp)
	}
	if _, ok := doc.Lookup("inert"); ok {
		t.Fatal("inert template content became part of the tree")
	}

	card, _ := doc.Lookup("card")
	if doc.Focused() != card {
		t.Fatalf("focused %s, want card", doc.Label(doc.Focused()))
	}
	shelf, _ := doc.Lookup("shelf")
	top, ok, err := doc.ActiveElement(ctx, 0)
	if err != nil || !ok || top.ID != shelf {
		t.Fatalf("document active element = %+v %v %v, want the shadow host", top, ok, err)
	}

	gone, _ := doc.Lookup("gone")
	f, err := doc.Probe(ctx, gone)
	if err != nil {
		t.Fatal(err)
	}
	if f.Visible() {
		t.Fatal("child of a hidden element reported visible")
	}
}

func TestActiveElement_DefaultsToBody(t *testing.T) {
	doc, err := ParseString(`<html><body><button id="b"></button></body></html>`)
	if err != nil {
		t.Fatal(err)
	}
	f, ok, err := doc.ActiveElement(context.Background(), 0)
	if err != nil || !ok || f.Tag != "body" {
		t.Fatalf("active = %+v %v %v, want body", f, ok, err)
	}
	if doc.Focused() != 0 {
		t.Fatal("Focused reported an element on a fresh document")
	}
}

func TestFocus_Refusals(t *testing.T) {
	doc, err := ParseString(`<html><body>
		<div id="plain"></div>
		<div id="neg" tabindex="-1"></div>
		<button id="off" disabled></button>
	</body></html>`)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	for _, name := range []string{"plain", "off"} {
		id, _ := doc.Lookup(name)
		if err := doc.Focus(ctx, id, spatial.FocusNoScroll); err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if doc.Focused() != 0 {
			t.Fatalf("%s took focus", name)
		}
	}

	// Programmatic focus works on any explicit tabindex, negative included.
	neg, _ := doc.Lookup("neg")
	if err := doc.Focus(ctx, neg, spatial.FocusNoScroll); err != nil {
		t.Fatal(err)
	}
	if doc.Focused() != neg {
		t.Fatal("tabindex=-1 element did not take programmatic focus")
	}
}

func TestEncode_RoundTrip(t *testing.T) {
	doc, err := ParseString(fixture)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	c := Capture{Root: doc.root, Facts: make(map[spatial.NodeID]spatial.Facts), Focus: doc.Focused()}
	c.Viewport, _ = doc.Viewport(ctx)
	for id := range doc.elems {
		f, err := doc.Probe(ctx, id)
		if err != nil {
			t.Fatal(err)
		}
		c.Facts[id] = f
	}

	var buf bytes.Buffer
	if err := Encode(&buf, c); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if strings.Contains(out, "<style>") || strings.Contains(out, "inert") {
		t.Fatalf("encoded page kept skipped content:\n%s", out)
	}
	if !strings.Contains(out, `shadowrootmode="open"`) {
		t.Fatalf("encoded page lost the shadow root:\n%s", out)
	}

	again, err := Parse(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if got, _ := again.Viewport(ctx); got != c.Viewport {
		t.Fatalf("viewport = %+v, want %+v", got, c.Viewport)
	}
	if got := again.Label(again.Focused()); got != "card" {
		t.Fatalf("focused %s after round trip, want card", got)
	}

	want := labels(t, doc)
	got := labels(t, again)
	if len(got) != len(want) {
		t.Fatalf("candidates = %v, want %v", got, want)
	}
	for name, r := range want {
		if got[name] != r {
			t.Fatalf("%s: rect %+v, want %+v", name, got[name], r)
		}
	}
}

func labels(t *testing.T, d *Document) map[string]spatial.Rect {
	t.Helper()
	cands, err := spatial.Collect(context.Background(), d)
	if err != nil {
		t.Fatal(err)
	}
	out := make(map[string]spatial.Rect, len(cands))
	for _, c := range cands {
		out[d.Label(c.ID)] = c.Rect
	}
	return out
}
