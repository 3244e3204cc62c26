package domain

import "encoding/json"

// TreeNode is the renderer-facing shape of one person: only the identifier
// and the ordered children. Display fields are looked up in the Forest.
type TreeNode struct {
	ID       string     `json:"personId"`
	Children []TreeNode `json:"children,omitempty"`
}

// TreeView is the root value handed to a renderer: empty, a single tree, or
// an ordered sequence of trees.
type TreeView struct {
	Roots []TreeNode
}

// BuildTreeView maps a forest onto tree nodes in sibling order.
func BuildTreeView(f *Forest) TreeView {
	roots := f.Roots()
	view := TreeView{Roots: make([]TreeNode, 0, len(roots))}
	for _, id := range roots {
		view.Roots = append(view.Roots, buildTreeNode(f, id))
	}
	return view
}

func buildTreeNode(f *Forest, id string) TreeNode {
	node := TreeNode{ID: id}
	kids := f.Children(id)
	if len(kids) == 0 {
		return node
	}
	node.Children = make([]TreeNode, 0, len(kids))
	for _, child := range kids {
		node.Children = append(node.Children, buildTreeNode(f, child))
	}
	return node
}

// Single returns the only tree when the view has exactly one root.
func (v TreeView) Single() (TreeNode, bool) {
	if len(v.Roots) != 1 {
		return TreeNode{}, false
	}
	return v.Roots[0], true
}

// Empty reports whether the view has no trees.
func (v TreeView) Empty() bool { return len(v.Roots) == 0 }

// MarshalJSON encodes an empty view as null, a single tree as an object and
// several trees as an array.
func (v TreeView) MarshalJSON() ([]byte, error) {
	switch len(v.Roots) {
	case 0:
		return []byte("null"), nil
	case 1:
		return json.Marshal(v.Roots[0])
	default:
		return json.Marshal(v.Roots)
	}
}

// UnmarshalJSON accepts any of the three encodings produced by MarshalJSON.
func (v *TreeView) UnmarshalJSON(data []byte) error {
	var probe any
	if err := json.Unmarshal(data, &probe); err != nil {
		return err
	}
	switch probe.(type) {
	case nil:
		v.Roots = nil
		return nil
	case []any:
		return json.Unmarshal(data, &v.Roots)
	default:
		var node TreeNode
		if err := json.Unmarshal(data, &node); err != nil {
			return err
		}
		v.Roots = []TreeNode{node}
		return nil
	}
}

// Walk visits every node depth first in sibling order.
func (v TreeView) Walk(fn func(node TreeNode, depth int)) {
	var visit func(TreeNode, int)
	visit = func(n TreeNode, depth int) {
		fn(n, depth)
		for _, c := range n.Children {
			visit(c, depth+1)
		}
	}
	for _, r := range v.Roots {
		visit(r, 0)
	}
}
