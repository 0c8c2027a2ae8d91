package spatial

import (
	"math"
	"slices"
	"testing"
)

func cand(id NodeID, left, top, w, h float64) Candidate {
	r := Rect{Left: left, Top: top, Width: w, Height: h}
	return Candidate{ID: id, Rect: r, Center: r.Center()}
}

// centered builds a w x h candidate centered on (x, y).
func centered(id NodeID, x, y, w, h float64) Candidate {
	return cand(id, x-w/2, y-h/2, w, h)
}

func TestOverlapFraction(t *testing.T) {
	cur := Rect{Left: 0, Top: 100, Width: 40, Height: 40}
	cases := []struct {
		name string
		b    Rect
		d    Direction
		want float64
	}{
		{"contained", Rect{Left: 100, Top: 105, Width: 40, Height: 30}, Right, 1},
		{"disjoint", Rect{Left: 100, Top: 10, Width: 40, Height: 20}, Right, 0},
		{"half", Rect{Left: 100, Top: 120, Width: 40, Height: 40}, Left, 0.5},
		{"vertical axis", Rect{Left: 20, Top: 300, Width: 40, Height: 40}, Down, 0.5},
		{"zero extent", Rect{Left: 100, Top: 110, Width: 40, Height: 0}, Right, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := overlapFraction(cur, tc.b, tc.d); math.Abs(got-tc.want) > 1e-9 {
				t.Errorf("overlapFraction = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestChooseNext_StrictDirection(t *testing.T) {
	p := DefaultParams()
	cur := centered(1, 500, 500, 20, 20)
	above := centered(2, 500, 400, 20, 20)

	if _, ok := ChooseNext(cur, []Candidate{above}, Down, p); ok {
		t.Fatal("down: candidate above must not be selectable")
	}
	got, ok := ChooseNext(cur, []Candidate{above}, Up, p)
	if !ok || got.ID != 2 {
		t.Fatalf("up: got %v %v, want 2", got.ID, ok)
	}

	// Within the 1px tolerance is not "ahead".
	nudge := centered(3, 501, 500, 20, 20)
	if _, ok := ChooseNext(cur, []Candidate{nudge}, Right, p); ok {
		t.Fatal("right: candidate within tolerance must not be selectable")
	}
}

func TestChooseNext_ExcludesCurrent(t *testing.T) {
	cur := centered(1, 500, 500, 20, 20)
	if _, ok := ChooseNext(cur, []Candidate{cur}, Right, DefaultParams()); ok {
		t.Fatal("current element selected as its own neighbor")
	}
}

func TestChooseNext_RowPreference(t *testing.T) {
	p := DefaultParams()
	cur := centered(1, 500, 500, 40, 40)
	a := centered(2, 600, 520, 40, 40) // same row, slight drift
	c := centered(3, 520, 900, 40, 40) // off row

	got, ok := ChooseNext(cur, []Candidate{c, a}, Right, p)
	if !ok || got.ID != a.ID {
		t.Fatalf("got %d, want %d", got.ID, a.ID)
	}
}

func TestChooseNext_PerpendicularWeight(t *testing.T) {
	p := DefaultParams()
	// Tall rects so both candidates are primary.
	cur := centered(1, 500, 500, 20, 200)
	far := centered(2, 700, 500, 20, 200)  // 200 along the row
	near := centered(3, 520, 540, 20, 200) // closer, but 40 off axis

	got, ok := ChooseNext(cur, []Candidate{near, far}, Right, p)
	if !ok || got.ID != far.ID {
		t.Fatalf("got %d, want %d (weighted score must prefer the on-axis neighbor)", got.ID, far.ID)
	}

	p.PerpendicularWeight = 1
	got, _ = ChooseNext(cur, []Candidate{near, far}, Right, p)
	if got.ID != near.ID {
		t.Fatalf("weight 1: got %d, want %d", got.ID, near.ID)
	}
}

func TestChooseNext_PrimaryPoolWins(t *testing.T) {
	p := DefaultParams()
	cur := cand(1, 100, 100, 40, 40) // rows 100..140
	x := cand(2, 3000, 105, 40, 30)  // rows 105..135, overlap 1.0, far away
	y := cand(3, 150, 10, 40, 20)    // rows 10..30, overlap 0, close

	if weightedDistance(cur.Center, y.Center, Right, p.PerpendicularWeight) >=
		weightedDistance(cur.Center, x.Center, Right, p.PerpendicularWeight) {
		t.Fatal("fixture: secondary candidate should score better than the primary one")
	}
	got, ok := ChooseNext(cur, []Candidate{y, x}, Right, p)
	if !ok || got.ID != x.ID {
		t.Fatalf("got %d, want primary %d", got.ID, x.ID)
	}

	// Without a primary candidate the secondary pool is used.
	got, ok = ChooseNext(cur, []Candidate{y}, Right, p)
	if !ok || got.ID != y.ID {
		t.Fatalf("secondary only: got %d %v", got.ID, ok)
	}
}

func TestReadingOrder(t *testing.T) {
	cs := []Candidate{
		cand(1, 200, 101, 50, 20),
		cand(2, 0, 0, 50, 20),
		cand(3, 0, 100, 50, 20),
		cand(4, 100, 0, 50, 20),
		cand(5, 100, 98, 50, 20), // within 2px of row 100
	}
	var got []NodeID
	for _, c := range ReadingOrder(cs, 2) {
		got = append(got, c.ID)
	}
	want := []NodeID{2, 4, 3, 5, 1}
	if !slices.Equal(got, want) {
		t.Fatalf("order = %v, want %v", got, want)
	}
}

func TestReadingOrderNext_Clamps(t *testing.T) {
	p := DefaultParams()
	row := []Candidate{cand(1, 0, 0, 50, 20), cand(2, 100, 0, 50, 20), cand(3, 200, 0, 50, 20)}

	if _, ok := ReadingOrderNext(3, row, Right, p); ok {
		t.Fatal("right from last element must not wrap around")
	}
	if _, ok := ReadingOrderNext(1, row, Up, p); ok {
		t.Fatal("up from first element must not wrap around")
	}
	if got, ok := ReadingOrderNext(2, row, Down, p); !ok || got.ID != 3 {
		t.Fatalf("down from 2: got %d %v", got.ID, ok)
	}
	if got, ok := ReadingOrderNext(2, row, Left, p); !ok || got.ID != 1 {
		t.Fatalf("left from 2: got %d %v", got.ID, ok)
	}
	if _, ok := ReadingOrderNext(9, row, Right, p); ok {
		t.Fatal("unknown current must not move")
	}
}

func TestNearestToCenter(t *testing.T) {
	cs := []Candidate{
		centered(1, 10, 10, 20, 20),
		centered(2, 990, 990, 20, 20),
		centered(3, 500, 500, 20, 20),
	}
	got, ok := NearestToCenter(cs, Size{Width: 1000, Height: 1000})
	if !ok || got.ID != 3 {
		t.Fatalf("got %d %v, want 3", got.ID, ok)
	}
	if _, ok := NearestToCenter(nil, Size{Width: 1000, Height: 1000}); ok {
		t.Fatal("empty candidate set selected something")
	}
}

func TestDeep_VisitsScopesOnce(t *testing.T) {
	shared := &Node{ID: 9, Tag: "button"}
	inner := &Node{ID: 6, Children: []*Node{{ID: 7, Tag: "a", Attrs: map[string]string{"href": "/x"}}, shared}}
	host := &Node{ID: 5, Tag: "x-card", Shadow: inner}
	root := &Node{ID: 1, Children: []*Node{
		{ID: 2, Tag: "div", Children: []*Node{host, shared}},
	}}

	var got []NodeID
	for n := range Elements(root) {
		got = append(got, n.ID)
	}
	want := []NodeID{2, 5, 7, 9}
	if !slices.Equal(got, want) {
		t.Fatalf("walk = %v, want %v", got, want)
	}
}

func TestParseDirection(t *testing.T) {
	for _, s := range []string{"left", "Right", " up ", "DOWN"} {
		if _, err := ParseDirection(s); err != nil {
			t.Errorf("ParseDirection(%q): %v", s, err)
		}
	}
	if _, err := ParseDirection("forward"); err == nil {
		t.Error("ParseDirection(forward) succeeded")
	}
}
