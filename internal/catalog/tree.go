package catalog

// BuildTree assembles the category hierarchy from one flat load. Adjacency
// is built here, per request; nodes never point back at their parents.
// Categories whose parent is missing from the input are treated as roots.
func BuildTree(cats []Category) []*CategoryNode {
	nodes := make(map[string]*CategoryNode, len(cats))
	for _, c := range cats {
		nodes[c.ID] = &CategoryNode{Category: c, Children: []*CategoryNode{}}
	}

	var roots []*CategoryNode
	for _, c := range cats {
		n := nodes[c.ID]
		if c.ParentID == nil {
			roots = append(roots, n)
			continue
		}
		parent, ok := nodes[*c.ParentID]
		if !ok || *c.ParentID == c.ID {
			roots = append(roots, n)
			continue
		}
		parent.Children = append(parent.Children, n)
	}
	return roots
}
