// Package bisync is the reconciliation engine: it builds deltas from
// prior-vs-current listings on each side, classifies each path into a
// sync action with a deterministic decision table, applies those
// actions through an external transport, and maintains the safety
// invariants (lock file, excessive-delete guard, first-sync baseline,
// access-health probe, fatal-vs-recoverable state tracking) that let
// the next run trust the baseline it resumes from.
package bisync

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"

	"github.com/cjnaz/rclonesync-go/bisync/bilib"
	"github.com/cjnaz/rclonesync-go/internal/rclog"
	"github.com/cjnaz/rclonesync-go/internal/transport"
)

// Run drives one full reconciliation between opt.Path1 and opt.Path2.
// The returned error, if any, is always categorized (NewFatal or
// NewRecoverable); ExitCode(err) gives the process exit status.
func Run(ctx context.Context, opt Options) error {
	rclog.SetLevel(opt.LogLevel())
	rclog.SetShowTime(!opt.NoDatetimeLog)

	if err := os.MkdirAll(opt.Workdir, 0o755); err != nil {
		return NewFatal(fmt.Errorf("creating workdir %s: %w", opt.Workdir, err))
	}

	lock := NewLock(opt.Path1, opt.Path2)
	if err := lock.Acquire(ctx); err != nil {
		return NewRecoverable(err)
	}
	defer lock.Release()

	store := NewStore(opt.Workdir, opt.Path1, opt.Path2, opt.DryRun)
	if err := store.PrepareDryRun(); err != nil {
		return NewFatal(err)
	}

	// On SIGINT/SIGTERM mid-run, rename both baselines to their
	// error-sentinel form before the process dies, the same outcome a
	// fatal abort produces.
	bilib.Register(func() {
		store.RenameToError(Path1)
		store.RenameToError(Path2)
		lock.Release()
	})

	t := opt.Transport
	if t == nil {
		extra := opt.RCloneArgsExtra()
		if opt.DryRun {
			extra = append(extra, "--dry-run")
		}
		t = transport.New(transport.Options{
			Bin:        opt.RCloneBin,
			ConfigPath: opt.ConfigPath,
			ExtraArgs:  extra,
		})
	}

	err := run(ctx, opt, t, store)
	if err != nil && IsFatal(err) {
		store.RenameToError(Path1)
		store.RenameToError(Path2)
	}
	return err
}

func run(ctx context.Context, opt Options, t *transport.Adapter, store *Store) error {
	mainFilter, filterArgs, err := loadFilters(opt)
	if err != nil {
		return err
	}

	if opt.FirstSync {
		if err := RunFirstSync(ctx, t, store, opt.Path1, opt.Path2, filterArgs); err != nil {
			return err
		}
		return finish(store, opt)
	}

	if !store.HasBaseline(Path1) || !store.HasBaseline(Path2) {
		return NewFatal(fmt.Errorf("no prior baseline for Path1/Path2; rerun with --first-sync"))
	}

	if opt.CheckAccess {
		probeFilter := DeriveProbeFilterSet(mainFilter, opt.CheckFilename, opt.TestMode)
		if err := RunAccessHealthProbe(ctx, t, store, opt.Path1, opt.Path2, probeFilter.Args()); err != nil {
			return err
		}
	}

	prior1, err := store.LoadBaseline(Path1)
	if err != nil {
		return NewFatal(err)
	}
	prior2, err := store.LoadBaseline(Path2)
	if err != nil {
		return NewFatal(err)
	}

	now1, now2, err := listBothSides(ctx, t, opt.Path1, opt.Path2, filterArgs)
	if err != nil {
		return NewFatal(err)
	}
	// A current listing that came back empty is recoverable rather than
	// fatal: it usually means a remote unmounted rather than a
	// genuinely empty tree, so the baseline is left untouched.
	if now1.Len() == 0 || now2.Len() == 0 {
		return NewRecoverable(fmt.Errorf("current listing returned zero entries (Path1: %d, Path2: %d); refusing to reconcile", now1.Len(), now2.Len()))
	}
	if err := store.WriteNewListing(Path1, now1); err != nil {
		return NewFatal(err)
	}
	if err := store.WriteNewListing(Path2, now2); err != nil {
		return NewFatal(err)
	}

	sd1 := ComputeDelta(prior1, now1)
	sd2 := ComputeDelta(prior2, now2)

	if err := RunSafetyGate(opt.Force, opt.MaxDeletePercent, prior1.Len(), sd1, prior2.Len(), sd2); err != nil {
		return err
	}

	actions := Plan(now1, now2, sd1.Deltas, sd2.Deltas)
	copies, deletes, bytesMoved := SummarizePlan(now1, now2, actions)
	rclog.Noticef(nil, "plan: %s file(s) to copy, %s to delete, %s to move",
		humanize.Comma(int64(copies)), humanize.Comma(int64(deletes)), humanize.Bytes(uint64(bytesMoved)))

	if err := Execute(ctx, t, store, opt.Path1, opt.Path2, actions, filterArgs, opt.RemoveEmptyDirectories); err != nil {
		return err
	}

	return finish(store, opt)
}

func loadFilters(opt Options) (*FilterSet, []string, error) {
	if opt.FiltersFile == "" {
		return nil, nil, nil
	}
	fingerprint, err := FingerprintFilterFile(opt.FiltersFile)
	if err != nil {
		return nil, nil, NewFatal(err)
	}
	prior, hadPrior, err := LoadFingerprint(opt.FiltersFile)
	if err != nil {
		return nil, nil, NewFatal(err)
	}
	if hadPrior && prior != fingerprint && !opt.FirstSync {
		return nil, nil, NewFatal(fmt.Errorf("filters file %s changed since the last run; rerun with --first-sync", opt.FiltersFile))
	}
	if err := SaveFingerprint(opt.FiltersFile, fingerprint); err != nil {
		return nil, nil, NewFatal(err)
	}
	set, err := ParseFilterFile(opt.FiltersFile)
	if err != nil {
		return nil, nil, NewFatal(err)
	}
	return set, MainFilterArgs(opt.FiltersFile), nil
}

func listBothSides(ctx context.Context, t *transport.Adapter, path1, path2 string, filterArgs []string) (*Listing, *Listing, error) {
	// The two listings are independent, read-only transport calls, the
	// one place this otherwise-sequential engine fetches concurrently:
	// a slow Path2 remote no longer adds its latency on top of Path1's.
	g, gctx := errgroup.WithContext(ctx)
	var out1, out2 []byte
	g.Go(func() error {
		var err error
		out1, err = t.List(gctx, path1, filterArgs)
		if err != nil {
			return fmt.Errorf("listing Path1: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		out2, err = t.List(gctx, path2, filterArgs)
		if err != nil {
			return fmt.Errorf("listing Path2: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	l1, err := ParseListing(bytes.NewReader(out1), Path1)
	if err != nil {
		return nil, nil, fmt.Errorf("parsing Path1 listing: %w", err)
	}
	l2, err := ParseListing(bytes.NewReader(out2), Path2)
	if err != nil {
		return nil, nil, fmt.Errorf("parsing Path2 listing: %w", err)
	}
	return l1, l2, nil
}

// finish cleans up the transient per-run artifacts after a fully
// successful reconciliation.
func finish(store *Store, opt Options) error {
	if err := store.RemoveTransient(Path1, opt.KeepCheckFiles); err != nil {
		return NewFatal(err)
	}
	if err := store.RemoveTransient(Path2, opt.KeepCheckFiles); err != nil {
		return NewFatal(err)
	}
	return nil
}
