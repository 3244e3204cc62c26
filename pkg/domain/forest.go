package domain

import (
	"cmp"
	"slices"
	"strings"
)

// DemotionReason explains why a record with a declared parent ended up as a
// root of the forest.
type DemotionReason string

const (
	// DemotionDanglingParent marks a record whose parent is absent from the snapshot.
	DemotionDanglingParent DemotionReason = "dangling_parent"
	// DemotionCycle marks the record chosen to cut a parent-pointer cycle.
	DemotionCycle DemotionReason = "cycle"
)

// Demotion records a node that was promoted to a root while building a forest.
type Demotion struct {
	ID       string
	ParentID string
	Reason   DemotionReason
}

// Forest is the hierarchy reconstructed from one snapshot. It is immutable
// once built; every accessor returns copies.
type Forest struct {
	people    map[string]Person
	parent    map[string]string
	roots     []string
	demotions []Demotion
}

// BuildForest reconstructs the forest described by a raw snapshot. It never
// fails: dangling parents and cycles demote the affected records to roots so
// every input identifier is present exactly once.
func BuildForest(snapshot RawSnapshot) *Forest {
	f := &Forest{
		people: make(map[string]Person, len(snapshot)),
		parent: make(map[string]string, len(snapshot)),
	}
	ids := make([]string, 0, len(snapshot))
	for id, raw := range snapshot {
		f.people[id] = ParsePerson(id, raw)
		ids = append(ids, id)
	}
	slices.Sort(ids)

	children := make(map[string][]string)
	for _, id := range ids {
		p := f.people[id]
		if p.ParentID != "" {
			if _, ok := f.people[p.ParentID]; ok {
				children[p.ParentID] = append(children[p.ParentID], id)
				f.parent[id] = p.ParentID
				continue
			}
			f.demotions = append(f.demotions, Demotion{ID: id, ParentID: p.ParentID, Reason: DemotionDanglingParent})
		}
		f.roots = append(f.roots, id)
	}
	for _, kids := range children {
		slices.SortFunc(kids, f.compare)
	}
	slices.SortFunc(f.roots, f.compare)

	f.breakCycles(children)

	for id, kids := range children {
		if len(kids) == 0 {
			continue
		}
		p := f.people[id]
		p.Children = kids
		f.people[id] = p
	}
	return f
}

// compare orders siblings by order key, then by identifier.
func (f *Forest) compare(a, b string) int {
	if c := cmp.Compare(f.people[a].OrderKey, f.people[b].OrderKey); c != 0 {
		return c
	}
	return strings.Compare(a, b)
}

// breakCycles demotes one node per parent-pointer cycle. Nodes unreachable
// from the roots sit on or below a cycle; the lowest identifier on each cycle
// becomes a root.
func (f *Forest) breakCycles(children map[string][]string) {
	reached := make(map[string]bool, len(f.people))
	walk := func(start string) {
		stack := []string{start}
		for len(stack) > 0 {
			id := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if reached[id] {
				continue
			}
			reached[id] = true
			stack = append(stack, children[id]...)
		}
	}
	for _, root := range f.roots {
		walk(root)
	}
	if len(reached) == len(f.people) {
		return
	}

	pending := make([]string, 0, len(f.people)-len(reached))
	for id := range f.people {
		if !reached[id] {
			pending = append(pending, id)
		}
	}
	slices.Sort(pending)

	for _, id := range pending {
		if reached[id] {
			continue
		}
		cut := f.cycleMinimum(id)
		if parentID, ok := f.parent[cut]; ok {
			children[parentID] = slices.DeleteFunc(children[parentID], func(c string) bool { return c == cut })
			delete(f.parent, cut)
		}
		at, _ := slices.BinarySearchFunc(f.roots, cut, f.compare)
		f.roots = slices.Insert(f.roots, at, cut)
		f.demotions = append(f.demotions, Demotion{ID: cut, ParentID: f.people[cut].ParentID, Reason: DemotionCycle})
		walk(cut)
	}
}

// cycleMinimum follows resolved parent links from id until a node repeats and
// returns the lowest identifier on the loop.
func (f *Forest) cycleMinimum(id string) string {
	position := make(map[string]int)
	var path []string
	cur := id
	for {
		if at, seen := position[cur]; seen {
			return slices.Min(path[at:])
		}
		position[cur] = len(path)
		path = append(path, cur)
		next, ok := f.parent[cur]
		if !ok {
			return cur
		}
		cur = next
	}
}

// Len returns the number of people in the forest.
func (f *Forest) Len() int { return len(f.people) }

// Has reports whether id is part of the forest.
func (f *Forest) Has(id string) bool {
	_, ok := f.people[id]
	return ok
}

// Person returns the person stored under id.
func (f *Forest) Person(id string) (Person, bool) {
	p, ok := f.people[id]
	if !ok {
		return Person{}, false
	}
	p.Children = slices.Clone(p.Children)
	return p, true
}

// IDs returns every identifier in ascending order.
func (f *Forest) IDs() []string {
	ids := make([]string, 0, len(f.people))
	for id := range f.people {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Roots returns the root identifiers in sibling order.
func (f *Forest) Roots() []string { return slices.Clone(f.roots) }

// Children returns the ordered children of id.
func (f *Forest) Children(id string) []string {
	return slices.Clone(f.people[id].Children)
}

// Parent returns the resolved parent of id. Roots, including demoted ones,
// report false.
func (f *Forest) Parent(id string) (string, bool) {
	p, ok := f.parent[id]
	return p, ok
}

// Siblings returns the ordered sibling sequence id belongs to (its own entry
// included): the parent's children, or the roots for a root.
func (f *Forest) Siblings(id string) []string {
	if !f.Has(id) {
		return nil
	}
	if parentID, ok := f.parent[id]; ok {
		return f.Children(parentID)
	}
	return f.Roots()
}

// Ancestors returns the resolved parent chain of id, nearest first.
func (f *Forest) Ancestors(id string) []string {
	var out []string
	for cur, ok := f.parent[id]; ok; cur, ok = f.parent[cur] {
		out = append(out, cur)
	}
	return out
}

// Demotions lists the records promoted to roots during the build.
func (f *Forest) Demotions() []Demotion { return slices.Clone(f.demotions) }

// OrderKey returns the order key of id, or 0 when id is unknown.
func (f *Forest) OrderKey(id string) float64 { return f.people[id].OrderKey }
