package etch

// CycleCollector runs Bacon/Rajan trial deletion over the purple candidate
// set accumulated by Heap.DecRef, visiting only objects reachable from
// that set. markGray, scan, scanBlack and collectWhite follow child refs
// by direct recursion, so the Go call depth grows with the depth of the
// object graph being scanned.
type CycleCollector struct {
	heap *Heap
	// GCStats exposes counters for the embedding API's get_gc_stats, and
	// for the GC-budget throttling hook.
	Stats GCStats
}

// GCStats is returned by the embedding API's get_gc_stats, giving hosts
// visibility into collector cost.
type GCStats struct {
	Collections   int
	CandidatesSeen int
	Freed         int
}

func NewCycleCollector(h *Heap) *CycleCollector {
	return &CycleCollector{heap: h}
}

// Collect drains the purple worklist: mark-gray (decrement internal
// edges), scan (recompute true external counts), and collect (free
// subgraphs whose external count reached zero, restore the rest).
func (c *CycleCollector) Collect() {
	if len(c.heap.purple) == 0 {
		return
	}
	c.Stats.Collections++
	roots := c.heap.purple
	c.heap.purple = nil
	c.heap.allocsSinceGC = 0

	for _, id := range roots {
		if o, ok := c.heap.Get(id); ok {
			o.Buffered = false
		}
	}

	c.Stats.CandidatesSeen += len(roots)

	for _, id := range roots {
		c.markGray(id)
	}
	for _, id := range roots {
		c.scan(id)
	}
	for _, id := range roots {
		c.collectWhite(id)
	}
}

func (c *CycleCollector) markGray(id int) {
	o, ok := c.heap.Get(id)
	if !ok || o.Color == ColorGray {
		return
	}
	o.Color = ColorGray
	for _, child := range c.childRefs(o) {
		if co, ok := c.heap.Get(child); ok {
			co.RefCount--
			c.markGray(child)
		}
	}
}

func (c *CycleCollector) scan(id int) {
	o, ok := c.heap.Get(id)
	if !ok || o.Color != ColorGray {
		return
	}
	if o.RefCount > 0 {
		c.scanBlack(id)
		return
	}
	o.Color = ColorWhite
	for _, child := range c.childRefs(o) {
		c.scan(child)
	}
}

func (c *CycleCollector) scanBlack(id int) {
	o, ok := c.heap.Get(id)
	if !ok {
		return
	}
	o.Color = ColorBlack
	for _, child := range c.childRefs(o) {
		if co, ok := c.heap.Get(child); ok {
			co.RefCount++
			if co.Color != ColorBlack {
				c.scanBlack(child)
			}
		}
	}
}

func (c *CycleCollector) collectWhite(id int) {
	o, ok := c.heap.Get(id)
	if !ok || o.Color != ColorWhite {
		return
	}
	o.Color = ColorBlack
	children := c.childRefs(o)
	o.Freed = true
	delete(c.heap.objects, o.ID)
	c.Stats.Freed++
	for _, child := range children {
		c.collectWhite(child)
	}
}

func (c *CycleCollector) childRefs(o *HeapObject) []int {
	var out []int
	for _, v := range o.Table {
		if v.Kind == VRef {
			out = append(out, v.HeapID)
		}
	}
	for _, v := range o.Array {
		if v.Kind == VRef {
			out = append(out, v.HeapID)
		}
	}
	return out
}
