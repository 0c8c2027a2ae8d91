package cdpdom

import (
	"context"
	"encoding/json"
	"net/url"
	"testing"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/hazyhaar/tvshell/spatial"
)

func TestWireNode(t *testing.T) {
	raw := `{"id":1,"tag":"","children":[
		{"id":2,"tag":"html","attrs":{},"children":[
			{"id":3,"tag":"x-row","attrs":{"id":"row"},"children":[],
			 "shadow":{"id":4,"tag":"","children":[{"id":5,"tag":"button","attrs":{"id":"b"},"children":[]}]}}
		]}
	]}`
	var w wireNode
	if err := json.Unmarshal([]byte(raw), &w); err != nil {
		t.Fatal(err)
	}
	root := w.node()
	var got []spatial.NodeID
	for n := range spatial.Elements(root) {
		got = append(got, n.ID)
	}
	want := []spatial.NodeID{2, 3, 5}
	if len(got) != len(want) {
		t.Fatalf("elements = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("elements = %v, want %v", got, want)
		}
	}
}

func TestWireFacts(t *testing.T) {
	var m map[spatial.NodeID]wireFacts
	raw := `{"1760000000000001":{"left":10,"top":20,"width":30,"height":40,"display":"block","visibility":"visible","tabIndex":0,"disabled":false}}`
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		t.Fatal(err)
	}
	f := m[1760000000000001].facts()
	if f.Rect != (spatial.Rect{Left: 10, Top: 20, Width: 30, Height: 40}) || !spatial.Eligible(f) {
		t.Fatalf("facts = %+v", f)
	}
}

const fixture = `<!doctype html>
<html><body style="margin:0">
<div style="display:flex;gap:20px;padding:20px">
  <button id="a" style="width:100px;height:50px">a</button>
  <button id="b" style="width:100px;height:50px">b</button>
  <x-card id="host" style="display:block">
    <template shadowrootmode="open"><button id="c" style="width:100px;height:50px">c</button></template>
  </x-card>
  <button id="off" disabled style="width:100px;height:50px">off</button>
</div>
<input id="text" style="margin:20px">
</body></html>`

func livePage(t *testing.T) *Page {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping browser test in short mode")
	}
	bin, ok := launcher.LookPath()
	if !ok {
		t.Skip("no Chrome found")
	}
	l := launcher.New().Bin(bin).Headless(true)
	u, err := l.Launch()
	if err != nil {
		t.Skipf("launch chrome: %v", err)
	}
	t.Cleanup(l.Cleanup)

	b := rod.New().ControlURL(u)
	if err := b.Connect(); err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { b.Close() })

	page, err := b.Page(proto.TargetCreateTarget{})
	if err != nil {
		t.Fatalf("page: %v", err)
	}
	p := New(page)
	if err := p.Install(); err != nil {
		t.Fatalf("install: %v", err)
	}
	if err := page.Navigate("data:text/html," + url.PathEscape(fixture)); err != nil {
		t.Fatalf("navigate: %v", err)
	}
	if err := page.WaitLoad(); err != nil {
		t.Fatalf("wait load: %v", err)
	}
	return p
}

func htmlID(t *testing.T, p *Page) string {
	t.Helper()
	res, err := p.Rod().Eval(`() => {
		let el = document.activeElement;
		while (el && el.shadowRoot && el.shadowRoot.activeElement) el = el.shadowRoot.activeElement;
		return el ? el.id : "";
	}`)
	if err != nil {
		t.Fatal(err)
	}
	return res.Value.Str()
}

func TestPage_Live(t *testing.T) {
	p := livePage(t)
	ctx := context.Background()

	cands, err := spatial.Collect(ctx, p)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	// a, b, c (shadow) and the text input; the disabled button is out.
	if len(cands) != 4 {
		t.Fatalf("candidates = %d, want 4", len(cands))
	}

	eng := spatial.New(spatial.Config{Page: p, Painter: p})
	if _, err := p.Rod().Eval(`() => document.getElementById("a").focus()`); err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"b", "c"} {
		out := eng.Step(ctx, spatial.Right)
		if !out.Moved {
			t.Fatalf("step right: %+v", out)
		}
		if got := htmlID(t, p); got != want {
			t.Fatalf("focus = %q, want %q", got, want)
		}
	}

	out := eng.Step(ctx, spatial.Down)
	if !out.Moved || htmlID(t, p) != "text" {
		t.Fatalf("step down: %+v focus %q", out, htmlID(t, p))
	}
	editable, err := p.DeepActiveEditable(ctx)
	if err != nil || !editable {
		t.Fatalf("editable = %v, %v", editable, err)
	}
	if out := eng.Step(ctx, spatial.Up); out.Stage != spatial.StageEditable || out.Moved {
		t.Fatalf("step in text field: %+v", out)
	}

	vp, err := p.Viewport(ctx)
	if err != nil || vp.Width <= 0 {
		t.Fatalf("viewport = %+v, %v", vp, err)
	}
	if err := p.NextFrame(ctx); err != nil {
		t.Fatalf("NextFrame: %v", err)
	}
}

func TestPage_HoverRepeats(t *testing.T) {
	p := livePage(t)
	ctx := context.Background()

	_, err := p.Rod().Eval(`() => {
		window.__overs = [];
		for (const type of ["pointermove", "mousemove", "mouseover"]) {
			document.getElementById("a").addEventListener(type, e => {
				if (!e.isTrusted) window.__overs.push(type);
			});
		}
	}`)
	if err != nil {
		t.Fatal(err)
	}
	// #a spans x 20-120, y 20-70.
	for range 2 {
		if err := p.Hover(ctx, spatial.Point{X: 70, Y: 45}); err != nil {
			t.Fatalf("Hover: %v", err)
		}
	}
	res, err := p.Rod().Eval(`() => window.__overs.join(",")`)
	if err != nil {
		t.Fatal(err)
	}
	want := "pointermove,mousemove,mouseover,pointermove,mousemove,mouseover"
	if got := res.Value.Str(); got != want {
		t.Fatalf("events = %q, want %q", got, want)
	}
}
