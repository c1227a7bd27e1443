package bisync

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/cjnaz/rclonesync-go/internal/rclog"
	"github.com/cjnaz/rclonesync-go/internal/transport"
)

// Conflict suffixes are part of the external contract and are never
// configurable.
const (
	ConflictSuffixPath1 = "_Path1"
	ConflictSuffixPath2 = "_Path2"
)

// ActionKind is one outcome of the per-path decision table.
type ActionKind int

// The per-path actions the planner can emit. Plain "copy P1→P2" and
// "delete on P2" are never emitted per-path: they are deferred to the
// single end-of-run mirror sync.
const (
	ActionCopyP2ToP1 ActionKind = iota
	ActionForceCopyP2ToP1
	ActionDeleteOnP1
	ActionConflictPreserve
)

func (k ActionKind) String() string {
	switch k {
	case ActionCopyP2ToP1:
		return "copy P2->P1"
	case ActionForceCopyP2ToP1:
		return "force-copy P2->P1 (--ignore-times)"
	case ActionDeleteOnP1:
		return "delete on P1"
	case ActionConflictPreserve:
		return "conflict-preserve"
	default:
		return "?"
	}
}

// PlannedAction is one row of the executed plan.
type PlannedAction struct {
	Path string
	Kind ActionKind
}

// Plan walks path2's delta first against the per-path decision table,
// then path1's delta for the deleted-vs-changed resurrection rule, and
// returns the resulting per-path actions in lexicographic path order.
//
// Older and SizeChanged are treated the same way Newer is in the
// table — any surviving-path change on Path2 is "changed" for
// planning purposes, not just a strict mtime increase. A size change
// with no mtime change still conflicts if Path1 also changed, and
// still force-copies if Path1 didn't; treating it as a silent
// overwrite risked losing a real edit the transport's mtime
// granularity simply couldn't see.
func Plan(now1, now2 *Listing, d1, d2 *DeltaMap) []PlannedAction {
	planned := make(map[string]PlannedAction)
	var order []string

	add := func(path string, kind ActionKind) {
		if _, exists := planned[path]; exists {
			return // first applicable rule wins (spec: "Rules applied in order")
		}
		planned[path] = PlannedAction{Path: path, Kind: kind}
		order = append(order, path)
	}

	for _, path := range d2.Paths() {
		delta2, _ := d2.Get(path)
		_, path1Has := now1.Get(path)
		_, path1Changed := d1.Get(path)

		switch {
		case delta2.New:
			if !path1Has {
				add(path, ActionCopyP2ToP1)
			} else {
				add(path, ActionConflictPreserve)
			}
		case delta2.Deleted:
			if path1Has && !path1Changed {
				add(path, ActionDeleteOnP1)
			}
			// else: Path1 also changed or deleted it; nothing to do
			// per-path, the final Path1->Path2 mirror settles it.
		case delta2.Newer, delta2.Older, delta2.SizeChanged:
			switch {
			case !path1Has:
				add(path, ActionCopyP2ToP1)
			case !path1Changed:
				add(path, ActionForceCopyP2ToP1)
			default:
				add(path, ActionConflictPreserve)
			}
		}
	}

	// Resurrection rule: Path1 deleted it, but Path2 changed it and it
	// still exists there.
	for _, path := range d1.Paths() {
		delta1, _ := d1.Get(path)
		if !delta1.Deleted {
			continue
		}
		delta2, path2Changed := d2.Get(path)
		_, path2Has := now2.Get(path)
		if path2Changed && path2Has && (delta2.New || delta2.Newer || delta2.Older || delta2.SizeChanged) {
			add(path, ActionCopyP2ToP1)
		}
	}

	sort.Strings(order)
	actions := make([]PlannedAction, 0, len(order))
	for _, p := range order {
		actions = append(actions, planned[p])
	}
	return actions
}

// SummarizePlan totals the bytes a plan will move, counting a
// conflict-preserve as both a copy-in and a copy-out. now2 supplies
// sizes for anything read from Path2; now1 supplies the size of the
// Path1 version a conflict-preserve renames. Deletes add no bytes.
// Used only to render the human-readable pre-execution log line.
func SummarizePlan(now1, now2 *Listing, actions []PlannedAction) (copies int, deletes int, bytesMoved int64) {
	for _, a := range actions {
		switch a.Kind {
		case ActionCopyP2ToP1, ActionForceCopyP2ToP1:
			copies++
			if e, ok := now2.Get(a.Path); ok {
				bytesMoved += e.Size
			}
		case ActionDeleteOnP1:
			deletes++
		case ActionConflictPreserve:
			copies++
			if e, ok := now2.Get(a.Path); ok {
				bytesMoved += e.Size
			}
			if e, ok := now1.Get(a.Path); ok {
				bytesMoved += e.Size
			}
		}
	}
	return copies, deletes, bytesMoved
}

func joinRemote(root, rel string) string {
	if strings.HasSuffix(root, "/") || strings.HasSuffix(root, ":") {
		return root + rel
	}
	return root + "/" + rel
}

// Execute applies per-path actions in order, runs the single end-of-run
// Path1->Path2 mirror sync, optionally prunes empty directories, then
// captures fresh listings and writes them as the new baselines.
func Execute(ctx context.Context, t *transport.Adapter, store *Store, path1, path2 string, actions []PlannedAction, filterArgs []string, removeEmptyDirs bool) error {
	for _, a := range actions {
		rclog.Infof(a.Path, "%s", a.Kind)
		switch a.Kind {
		case ActionCopyP2ToP1:
			if err := t.Cmd(ctx, transport.VerbCopyTo, []string{joinRemote(path2, a.Path), joinRemote(path1, a.Path)}, filterArgs); err != nil {
				return NewFatal(fmt.Errorf("copying %s from Path2 to Path1: %w", a.Path, err))
			}
		case ActionForceCopyP2ToP1:
			if err := t.Cmd(ctx, transport.VerbCopyTo, []string{joinRemote(path2, a.Path), joinRemote(path1, a.Path)}, filterArgs, "--ignore-times"); err != nil {
				return NewFatal(fmt.Errorf("force-copying %s from Path2 to Path1: %w", a.Path, err))
			}
		case ActionDeleteOnP1:
			if err := t.Cmd(ctx, transport.VerbDelete, []string{joinRemote(path1, a.Path)}, filterArgs); err != nil {
				return NewFatal(fmt.Errorf("deleting %s on Path1: %w", a.Path, err))
			}
		case ActionConflictPreserve:
			if err := resolveConflict(ctx, t, path1, path2, a.Path, filterArgs); err != nil {
				return err
			}
		}
	}

	if err := t.Cmd(ctx, transport.VerbSync, []string{path1, path2}, filterArgs, "--min-size", "0"); err != nil {
		return NewFatal(fmt.Errorf("final Path1->Path2 mirror sync: %w", err))
	}

	if removeEmptyDirs {
		if err := t.Cmd(ctx, transport.VerbRmdirs, []string{path1}, filterArgs); err != nil {
			return NewFatal(fmt.Errorf("pruning empty directories on Path1: %w", err))
		}
		if err := t.Cmd(ctx, transport.VerbRmdirs, []string{path2}, filterArgs); err != nil {
			return NewFatal(fmt.Errorf("pruning empty directories on Path2: %w", err))
		}
	}

	return refreshBaselines(ctx, t, store, path1, path2, filterArgs)
}

// resolveConflict is the conflict-preserve policy: copy the
// Path2 version to "<path>_Path2" on Path1, then rename the existing
// Path1 version to "<path>_Path1". Both survive; the operator
// reconciles manually.
func resolveConflict(ctx context.Context, t *transport.Adapter, path1, path2, path string, filterArgs []string) error {
	rclog.Noticef(path, "conflict: preserving both versions as %s and %s", path+ConflictSuffixPath2, path+ConflictSuffixPath1)
	dst2 := joinRemote(path1, path+ConflictSuffixPath2)
	if err := t.Cmd(ctx, transport.VerbCopyTo, []string{joinRemote(path2, path), dst2}, filterArgs); err != nil {
		return NewFatal(fmt.Errorf("conflict-preserve: copying Path2 version of %s: %w", path, err))
	}
	dst1 := joinRemote(path1, path+ConflictSuffixPath1)
	if err := t.Cmd(ctx, transport.VerbMoveTo, []string{joinRemote(path1, path), dst1}, filterArgs); err != nil {
		return NewFatal(fmt.Errorf("conflict-preserve: renaming Path1 version of %s: %w", path, err))
	}
	return nil
}

// refreshBaselines captures fresh listings on each side and persists
// them as the new baselines, the last step of every successful run.
func refreshBaselines(ctx context.Context, t *transport.Adapter, store *Store, path1, path2 string, filterArgs []string) error {
	out1, err := t.List(ctx, path1, filterArgs)
	if err != nil {
		return NewFatal(fmt.Errorf("capturing final Path1 listing: %w", err))
	}
	l1, err := ParseListing(bytes.NewReader(out1), path1)
	if err != nil {
		return NewFatal(fmt.Errorf("parsing final Path1 listing: %w", err))
	}
	out2, err := t.List(ctx, path2, filterArgs)
	if err != nil {
		return NewFatal(fmt.Errorf("capturing final Path2 listing: %w", err))
	}
	l2, err := ParseListing(bytes.NewReader(out2), path2)
	if err != nil {
		return NewFatal(fmt.Errorf("parsing final Path2 listing: %w", err))
	}
	if err := store.WriteBaseline(Path1, l1); err != nil {
		return NewFatal(err)
	}
	if err := store.WriteBaseline(Path2, l2); err != nil {
		return NewFatal(err)
	}
	return nil
}

// RunFirstSync bootstraps a baseline without running the planner:
// every path present on Path2 but not Path1 is copied Path2->Path1, a
// fresh Path1 listing is captured, and both baselines are written.
func RunFirstSync(ctx context.Context, t *transport.Adapter, store *Store, path1, path2 string, filterArgs []string) error {
	out2, err := t.List(ctx, path2, filterArgs)
	if err != nil {
		return NewFatal(fmt.Errorf("first-sync: listing Path2: %w", err))
	}
	l2, err := ParseListing(bytes.NewReader(out2), path2)
	if err != nil {
		return NewFatal(fmt.Errorf("first-sync: parsing Path2 listing: %w", err))
	}

	out1, err := t.List(ctx, path1, filterArgs)
	if err != nil {
		return NewFatal(fmt.Errorf("first-sync: listing Path1: %w", err))
	}
	l1, err := ParseListing(bytes.NewReader(out1), path1)
	if err != nil {
		return NewFatal(fmt.Errorf("first-sync: parsing Path1 listing: %w", err))
	}

	for _, path := range l2.Paths() {
		if _, ok := l1.Get(path); ok {
			continue
		}
		rclog.Infof(path, "first-sync: copying from Path2 to Path1")
		if err := t.Cmd(ctx, transport.VerbCopyTo, []string{joinRemote(path2, path), joinRemote(path1, path)}, filterArgs); err != nil {
			return NewFatal(fmt.Errorf("first-sync: copying %s from Path2 to Path1: %w", path, err))
		}
	}

	out1fresh, err := t.List(ctx, path1, filterArgs)
	if err != nil {
		return NewFatal(fmt.Errorf("first-sync: capturing fresh Path1 listing: %w", err))
	}
	l1fresh, err := ParseListing(bytes.NewReader(out1fresh), path1)
	if err != nil {
		return NewFatal(fmt.Errorf("first-sync: parsing fresh Path1 listing: %w", err))
	}

	if err := store.WriteBaseline(Path1, l1fresh); err != nil {
		return NewFatal(err)
	}
	if err := store.WriteBaseline(Path2, l2); err != nil {
		return NewFatal(err)
	}
	return nil
}
