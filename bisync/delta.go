package bisync

import "sort"

// Delta is the per-path change record produced by comparing a prior
// baseline listing against a current one. Exactly one of New/Deleted
// may be true; Newer/Older are mutually exclusive; SizeChanged is
// independent.
type Delta struct {
	New         bool
	Deleted     bool
	Newer       bool
	Older       bool
	SizeChanged bool
}

// Any reports whether at least one flag is set.
func (d Delta) Any() bool {
	return d.New || d.Deleted || d.Newer || d.Older || d.SizeChanged
}

// DeltaMap is a path-sorted collection of Delta records for one side.
type DeltaMap struct {
	byPath map[string]Delta
	paths  []string
}

// Get returns the Delta for path, if any.
func (m *DeltaMap) Get(path string) (Delta, bool) {
	d, ok := m.byPath[path]
	return d, ok
}

// Paths returns every changed path in sorted order.
func (m *DeltaMap) Paths() []string {
	return m.paths
}

// Len is the number of changed paths.
func (m *DeltaMap) Len() int {
	return len(m.paths)
}

// SideDelta bundles a side's DeltaMap with the bookkeeping the safety
// guards need: how many paths were deleted, and whether at least one
// surviving path was found unchanged.
type SideDelta struct {
	Deltas        *DeltaMap
	DeletedCount  int
	SawUnchanged  bool
	PriorNonEmpty bool
}

// ComputeDelta compares a prior baseline listing against the current
// listing for the same side and produces the sorted per-path change
// set.
func ComputeDelta(prior, now *Listing) SideDelta {
	byPath := make(map[string]Delta)
	sawUnchanged := false
	deletedCount := 0

	for _, p := range prior.Paths() {
		priorEntry, _ := prior.Get(p)
		nowEntry, stillPresent := now.Get(p)
		if !stillPresent {
			byPath[p] = Delta{Deleted: true}
			deletedCount++
			continue
		}
		var d Delta
		switch {
		case nowEntry.MTime > priorEntry.MTime:
			d.Newer = true
		case nowEntry.MTime < priorEntry.MTime:
			d.Older = true
		}
		if nowEntry.Size != priorEntry.Size {
			d.SizeChanged = true
		}
		if d.Any() {
			byPath[p] = d
		} else {
			sawUnchanged = true
		}
	}

	for _, p := range now.Paths() {
		if _, wasPrior := prior.Get(p); !wasPrior {
			byPath[p] = Delta{New: true}
		}
	}

	paths := make([]string, 0, len(byPath))
	for p := range byPath {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	return SideDelta{
		Deltas:        &DeltaMap{byPath: byPath, paths: paths},
		DeletedCount:  deletedCount,
		SawUnchanged:  sawUnchanged,
		PriorNonEmpty: prior.Len() > 0,
	}
}
