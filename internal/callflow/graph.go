package callflow

// Index maps block ids to their slot in the flat block slice. Blocks live in
// the slice; edges are ids resolved through the index.
type Index map[string]int

// NewIndex builds an index. On duplicate ids the first occurrence wins.
func NewIndex(blocks []Block) Index {
	idx := make(Index, len(blocks))
	for i, b := range blocks {
		if _, dup := idx[b.ID]; !dup {
			idx[b.ID] = i
		}
	}
	return idx
}

// Has reports whether id names a block.
func (idx Index) Has(id string) bool {
	_, ok := idx[id]
	return ok
}

// Edges returns every outgoing edge of b: Next, then menu option targets and
// the menu default target, without duplicates.
func Edges(b Block) []string {
	seen := make(map[string]struct{}, len(b.Next)+len(b.Config.Options)+1)
	out := make([]string, 0, len(b.Next))
	add := func(id string) {
		if id == "" {
			return
		}
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	for _, id := range b.Next {
		add(id)
	}
	if b.Type == BlockMenu {
		for _, o := range b.Config.Options {
			add(o.Target)
		}
		add(b.Config.DefaultTarget)
	}
	return out
}

// InDegree counts incoming edges per block id. Self-loops count.
func InDegree(blocks []Block) map[string]int {
	deg := make(map[string]int, len(blocks))
	for _, b := range blocks {
		if _, ok := deg[b.ID]; !ok {
			deg[b.ID] = 0
		}
	}
	for _, b := range blocks {
		for _, to := range Edges(b) {
			if _, ok := deg[to]; ok {
				deg[to]++
			}
		}
	}
	return deg
}

// EntryCandidates returns the ids of blocks with no incoming edges, in
// insertion order.
func EntryCandidates(blocks []Block) []string {
	deg := InDegree(blocks)
	var out []string
	seen := make(map[string]struct{}, len(blocks))
	for _, b := range blocks {
		if _, dup := seen[b.ID]; dup {
			continue
		}
		seen[b.ID] = struct{}{}
		if deg[b.ID] == 0 {
			out = append(out, b.ID)
		}
	}
	return out
}

// EntryBlock resolves where a fresh call starts.
//
// An explicit EntryBlockID wins when it names a block. Otherwise the block
// with in-degree zero is used; when several exist the earliest in insertion
// order is chosen.
func EntryBlock(f CallFlow) (Block, bool) {
	if f.EntryBlockID != "" {
		if b, ok := f.Block(f.EntryBlockID); ok {
			return b, true
		}
	}
	cands := EntryCandidates(f.Blocks)
	if len(cands) == 0 {
		return Block{}, false
	}
	return f.Block(cands[0])
}

// Reachable returns the set of block ids reachable from start.
func Reachable(blocks []Block, start string) map[string]bool {
	idx := NewIndex(blocks)
	seen := map[string]bool{}
	if !idx.Has(start) {
		return seen
	}
	stack := []string{start}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[id] {
			continue
		}
		seen[id] = true
		for _, to := range Edges(blocks[idx[id]]) {
			if idx.Has(to) && !seen[to] {
				stack = append(stack, to)
			}
		}
	}
	return seen
}

// RemoveEdgesTo strips id from every block's Next, menu option targets and
// default target. The input slice is not modified.
func RemoveEdgesTo(blocks []Block, id string) []Block {
	out := CloneBlocks(blocks)
	for i := range out {
		out[i].Next = removeID(out[i].Next, id)
		for j := range out[i].Config.Options {
			if out[i].Config.Options[j].Target == id {
				out[i].Config.Options[j].Target = ""
			}
		}
		if out[i].Config.DefaultTarget == id {
			out[i].Config.DefaultTarget = ""
		}
	}
	return out
}

func removeID(ids []string, id string) []string {
	out := ids[:0:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

// Successors returns the outgoing edges of the block with id, or nil.
func Successors(blocks []Block, id string) []string {
	idx := NewIndex(blocks)
	i, ok := idx[id]
	if !ok {
		return nil
	}
	return Edges(blocks[i])
}
