package domain

import (
	"fmt"
	"math/rand"
	"slices"
	"testing"
)

func rec(parentID any, key any) RawRecord {
	r := RawRecord{FieldName: "N", FieldSurname: "S", FieldOrderID: key}
	if parentID != nil {
		r[FieldParentID] = parentID
	}
	return r
}

// collect walks the forest from its roots and returns every visited id,
// failing on a repeat.
func collect(t *testing.T, f *Forest) []string {
	t.Helper()
	seen := map[string]bool{}
	var out []string
	var visit func(id string, depth int)
	visit = func(id string, depth int) {
		if depth > f.Len() {
			t.Fatalf("descent deeper than node count at %s", id)
		}
		if seen[id] {
			t.Fatalf("id %s reached twice", id)
		}
		seen[id] = true
		out = append(out, id)
		for _, c := range f.Children(id) {
			visit(c, depth+1)
		}
	}
	for _, r := range f.Roots() {
		visit(r, 0)
	}
	return out
}

func TestBuildForestConcreteScenario(t *testing.T) {
	f := BuildForest(RawSnapshot{
		"A": {FieldName: "Jan", FieldOrderID: 0.0},
		"B": {FieldName: "Ewa", FieldParentID: "A", FieldOrderID: 10.0},
		"C": {FieldName: "Tom", FieldParentID: "A", FieldOrderID: 20.0},
	})
	if got := f.Roots(); !slices.Equal(got, []string{"A"}) {
		t.Fatalf("roots = %v", got)
	}
	if got := f.Children("A"); !slices.Equal(got, []string{"B", "C"}) {
		t.Fatalf("children(A) = %v", got)
	}
	a, _ := f.Person("A")
	if a.Name != "Jan" || a.Surname != "" || a.DateStart != "" {
		t.Fatalf("unexpected defaults for A: %+v", a)
	}
	if parent, ok := f.Parent("C"); !ok || parent != "A" {
		t.Fatalf("parent(C) = %q, %v", parent, ok)
	}
}

func TestBuildForestEmpty(t *testing.T) {
	for _, snap := range []RawSnapshot{nil, {}} {
		f := BuildForest(snap)
		if f.Len() != 0 || len(f.Roots()) != 0 {
			t.Fatalf("expected empty forest, got %d nodes", f.Len())
		}
	}
}

func TestBuildForestDanglingParentBecomesRoot(t *testing.T) {
	f := BuildForest(RawSnapshot{
		"A": rec(nil, 0.0),
		"X": rec("ghost", 5.0),
	})
	if got := f.Roots(); !slices.Equal(got, []string{"A", "X"}) {
		t.Fatalf("roots = %v", got)
	}
	demotions := f.Demotions()
	if len(demotions) != 1 || demotions[0] != (Demotion{ID: "X", ParentID: "ghost", Reason: DemotionDanglingParent}) {
		t.Fatalf("demotions = %+v", demotions)
	}
	if _, ok := f.Parent("X"); ok {
		t.Fatalf("X must not report a resolved parent")
	}
	x, _ := f.Person("X")
	if x.ParentID != "ghost" {
		t.Fatalf("declared parent must be preserved, got %q", x.ParentID)
	}
}

func TestBuildForestTwoNodeCycle(t *testing.T) {
	f := BuildForest(RawSnapshot{
		"A": rec("B", 0.0),
		"B": rec("A", 0.0),
	})
	if got := f.Roots(); !slices.Equal(got, []string{"A"}) {
		t.Fatalf("roots = %v, want lowest id on the cycle", got)
	}
	if got := f.Children("A"); !slices.Equal(got, []string{"B"}) {
		t.Fatalf("children(A) = %v", got)
	}
	if got := collect(t, f); len(got) != 2 {
		t.Fatalf("expected both nodes reachable, got %v", got)
	}
	demotions := f.Demotions()
	if len(demotions) != 1 || demotions[0].Reason != DemotionCycle || demotions[0].ID != "A" {
		t.Fatalf("demotions = %+v", demotions)
	}
}

func TestBuildForestSelfParent(t *testing.T) {
	f := BuildForest(RawSnapshot{
		"A": rec("A", 0.0),
		"B": rec("A", 1.0),
	})
	if got := f.Roots(); !slices.Equal(got, []string{"A"}) {
		t.Fatalf("roots = %v", got)
	}
	if got := f.Children("A"); !slices.Equal(got, []string{"B"}) {
		t.Fatalf("children(A) = %v", got)
	}
}

func TestBuildForestCycleWithTail(t *testing.T) {
	// C -> D -> E -> C is a loop; T hangs below D; R is an ordinary tree.
	f := BuildForest(RawSnapshot{
		"R": rec(nil, 0.0),
		"C": rec("E", 0.0),
		"D": rec("C", 0.0),
		"E": rec("D", 0.0),
		"T": rec("D", 1.0),
	})
	if got := f.Roots(); !slices.Equal(got, []string{"C", "R"}) {
		t.Fatalf("roots = %v", got)
	}
	if got := collect(t, f); len(got) != 5 {
		t.Fatalf("expected 5 reachable nodes, got %v", got)
	}
	if got := f.Children("D"); !slices.Equal(got, []string{"E", "T"}) {
		t.Fatalf("children(D) = %v", got)
	}
	if got := f.Ancestors("T"); !slices.Equal(got, []string{"D", "C"}) {
		t.Fatalf("ancestors(T) = %v", got)
	}
}

func TestBuildForestSortsByKeyThenID(t *testing.T) {
	f := BuildForest(RawSnapshot{
		"P":  rec(nil, 0.0),
		"c3": rec("P", 30.0),
		"b":  rec("P", 10.0),
		"a":  rec("P", 10.0),
		"z":  rec("P", -5.0),
		"r2": rec(nil, -1.0),
	})
	if got := f.Children("P"); !slices.Equal(got, []string{"z", "a", "b", "c3"}) {
		t.Fatalf("children(P) = %v", got)
	}
	if got := f.Roots(); !slices.Equal(got, []string{"r2", "P"}) {
		t.Fatalf("roots = %v", got)
	}
}

func TestBuildForestDefaultsMalformedFields(t *testing.T) {
	f := BuildForest(RawSnapshot{
		"A": {FieldName: 42, FieldOrderID: "7", FieldDateStart: nil, FieldParentID: nil},
		"B": {FieldParentID: "", FieldOrderID: int64(3)},
		"C": nil,
	})
	a, _ := f.Person("A")
	if a.Name != "" || a.OrderKey != 0 || a.DateStart != "" || a.HasParent() {
		t.Fatalf("unexpected parse of A: %+v", a)
	}
	b, _ := f.Person("B")
	if b.OrderKey != 3 || b.HasParent() {
		t.Fatalf("unexpected parse of B: %+v", b)
	}
	if got := f.Roots(); !slices.Equal(got, []string{"A", "C", "B"}) {
		t.Fatalf("roots = %v", got)
	}
}

func TestBuildForestNoDataLossRandomised(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for round := 0; round < 200; round++ {
		n := 1 + rng.Intn(40)
		snap := make(RawSnapshot, n)
		for i := 0; i < n; i++ {
			id := fmt.Sprintf("p%02d", i)
			var parent any
			switch rng.Intn(4) {
			case 0:
				parent = nil
			case 1:
				parent = fmt.Sprintf("missing%d", rng.Intn(3))
			default:
				parent = fmt.Sprintf("p%02d", rng.Intn(n))
			}
			snap[id] = rec(parent, float64(rng.Intn(5)))
		}
		f := BuildForest(snap)
		got := collect(t, f)
		if len(got) != n {
			t.Fatalf("round %d: reached %d of %d nodes", round, len(got), n)
		}
		again := BuildForest(snap)
		if !slices.Equal(collect(t, again), got) {
			t.Fatalf("round %d: rebuild produced a different order", round)
		}
	}
}

func TestForestAccessorsReturnCopies(t *testing.T) {
	f := BuildForest(RawSnapshot{
		"A": rec(nil, 0.0),
		"B": rec("A", 1.0),
	})
	roots := f.Roots()
	roots[0] = "mutated"
	kids := f.Children("A")
	kids[0] = "mutated"
	p, _ := f.Person("A")
	p.Children[0] = "mutated"
	if f.Roots()[0] != "A" || f.Children("A")[0] != "B" {
		t.Fatalf("forest mutated through accessor copies")
	}
	if got := f.Siblings("B"); !slices.Equal(got, []string{"B"}) {
		t.Fatalf("siblings(B) = %v", got)
	}
	if got := f.Siblings("A"); !slices.Equal(got, []string{"A"}) {
		t.Fatalf("siblings(A) = %v", got)
	}
	if f.Siblings("missing") != nil {
		t.Fatalf("expected nil siblings for unknown id")
	}
	if got := f.IDs(); !slices.Equal(got, []string{"A", "B"}) {
		t.Fatalf("ids = %v", got)
	}
}
