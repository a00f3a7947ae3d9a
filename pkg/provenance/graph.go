package provenance

import (
	"fmt"
	"sort"
	"sync"
)

// Graph records Series metadata and the lineage edges between them. A
// Series may only be registered after all of its origins, so the graph is
// acyclic by construction.
type Graph struct {
	mu sync.RWMutex
	// Maps series ID to metadata
	series map[ID]*nodeMetadata
	// Inverted index: label name -> label value -> series IDs
	labelIndex map[string]map[string][]ID
	// Reverse edges: origin -> derived series
	children map[ID][]ID
}

// nodeMetadata holds what the graph knows about one series
type nodeMetadata struct {
	ID        ID
	Name      string
	Unit      string
	Operation string
	Origins   []ID
	Length    int
	MinTime   float64
	MaxTime   float64
}

// NodeInfo is a read-only view of a registered series
type NodeInfo struct {
	ID        ID
	Name      string
	Unit      string
	Operation string
	Origins   []ID
	Length    int
	MinTime   float64
	MaxTime   float64
}

// NewGraph creates an empty provenance graph
func NewGraph() *Graph {
	return &Graph{
		series:     make(map[ID]*nodeMetadata),
		labelIndex: make(map[string]map[string][]ID),
		children:   make(map[ID][]ID),
	}
}

// Register adds a series. Re-registering the same ID is a no-op.
func (g *Graph) Register(s *Series) error {
	if s == nil || s.ID == "" {
		return fmt.Errorf("series has no identifier")
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.series[s.ID]; exists {
		return nil
	}

	meta := &nodeMetadata{
		ID:     s.ID,
		Name:   s.Name,
		Unit:   s.Unit,
		Length: s.Len(),
	}
	if n := len(s.Timestamps); n > 0 {
		meta.MinTime = s.Timestamps[0]
		meta.MaxTime = s.Timestamps[n-1]
	}

	if s.Lineage != nil {
		for _, origin := range s.Lineage.Origins {
			if origin == s.ID {
				return fmt.Errorf("series %s lists itself as origin", s.ID)
			}
			if _, ok := g.series[origin]; !ok {
				return fmt.Errorf("series %s references unregistered origin %s", s.ID, origin)
			}
		}
		meta.Operation = s.Lineage.Operation
		meta.Origins = append([]ID(nil), s.Lineage.Origins...)
	}

	g.series[s.ID] = meta
	g.indexLabel("name", meta.Name, s.ID)
	g.indexLabel("unit", meta.Unit, s.ID)
	if meta.Operation != "" {
		g.indexLabel("operation", meta.Operation, s.ID)
	}
	for _, origin := range meta.Origins {
		g.children[origin] = append(g.children[origin], s.ID)
	}

	return nil
}

func (g *Graph) indexLabel(name, value string, id ID) {
	if value == "" {
		return
	}
	if g.labelIndex[name] == nil {
		g.labelIndex[name] = make(map[string][]ID)
	}
	g.labelIndex[name][value] = append(g.labelIndex[name][value], id)
}

// Lookup returns metadata for a registered series
func (g *Graph) Lookup(id ID) (NodeInfo, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	meta, ok := g.series[id]
	if !ok {
		return NodeInfo{}, false
	}
	return NodeInfo{
		ID:        meta.ID,
		Name:      meta.Name,
		Unit:      meta.Unit,
		Operation: meta.Operation,
		Origins:   append([]ID(nil), meta.Origins...),
		Length:    meta.Length,
		MinTime:   meta.MinTime,
		MaxTime:   meta.MaxTime,
	}, true
}

// Find returns the IDs matching every selector. Supported labels are
// "name", "unit" and "operation". No selectors returns every series.
func (g *Graph) Find(selectors map[string]string) []ID {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if len(selectors) == 0 {
		result := make([]ID, 0, len(g.series))
		for id := range g.series {
			result = append(result, id)
		}
		sortIDs(result)
		return result
	}

	var result []ID
	first := true
	for label, value := range selectors {
		ids, ok := g.labelIndex[label][value]
		if !ok {
			return nil
		}
		if first {
			result = append([]ID(nil), ids...)
			first = false
		} else {
			result = intersect(result, ids)
		}
		if len(result) == 0 {
			return nil
		}
	}
	sortIDs(result)
	return result
}

// Ancestors returns every series that id was derived from, nearest first
func (g *Graph) Ancestors(id ID) []ID {
	g.mu.RLock()
	defer g.mu.RUnlock()

	return g.walk(id, func(m *nodeMetadata) []ID { return m.Origins })
}

// Descendants returns every series derived, directly or not, from id
func (g *Graph) Descendants(id ID) []ID {
	g.mu.RLock()
	defer g.mu.RUnlock()

	return g.walk(id, func(m *nodeMetadata) []ID { return g.children[m.ID] })
}

// walk runs a breadth-first traversal (must hold lock)
func (g *Graph) walk(id ID, next func(*nodeMetadata) []ID) []ID {
	start, ok := g.series[id]
	if !ok {
		return nil
	}

	seen := map[ID]bool{id: true}
	queue := append([]ID(nil), next(start)...)
	var out []ID
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if seen[cur] {
			continue
		}
		seen[cur] = true
		out = append(out, cur)
		if meta, ok := g.series[cur]; ok {
			queue = append(queue, next(meta)...)
		}
	}
	return out
}

// Len returns the number of registered series
func (g *Graph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.series)
}

func sortIDs(ids []ID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}

// intersect finds common elements in two slices
func intersect(a, b []ID) []ID {
	sortIDs(a)
	b = append([]ID(nil), b...)
	sortIDs(b)

	result := make([]ID, 0)
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		if a[i] < b[j] {
			i++
		} else if a[i] > b[j] {
			j++
		} else {
			result = append(result, a[i])
			i++
			j++
		}
	}
	return result
}
