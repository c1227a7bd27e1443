package bisync

import (
	"bytes"
	"context"
	"fmt"

	"github.com/cjnaz/rclonesync-go/internal/transport"
)

// DefaultCheckFilename is the check-file basename.
const DefaultCheckFilename = "RCLONE_TEST"

// RunAccessHealthProbe lists both sides looking for check files before
// letting a non-first-sync run proceed; it is skipped entirely during
// first-sync. A failure in the probe's own listing step is Recoverable
// (the transport couldn't be reached this time); a listing that came
// back but fails the cardinality/membership check is Fatal, since it
// means one side is missing real content, not a transient hiccup.
func RunAccessHealthProbe(ctx context.Context, t *transport.Adapter, store *Store, path1, path2 string, probeArgs []string) error {
	out1, err := t.List(ctx, path1, probeArgs)
	if err != nil {
		return NewRecoverable(fmt.Errorf("access-health probe: listing %s: %w", Path1, err))
	}
	out2, err := t.List(ctx, path2, probeArgs)
	if err != nil {
		return NewRecoverable(fmt.Errorf("access-health probe: listing %s: %w", Path2, err))
	}

	// Retained regardless of outcome for post-mortem; removed by the
	// caller on success unless --keep-chkfiles is set.
	if err := store.WriteCheckListing(Path1, out1); err != nil {
		return NewRecoverable(err)
	}
	if err := store.WriteCheckListing(Path2, out2); err != nil {
		return NewRecoverable(err)
	}

	l1, err := ParseListing(bytes.NewReader(out1), path1)
	if err != nil {
		return NewRecoverable(fmt.Errorf("access-health probe: parsing %s listing: %w", Path1, err))
	}
	l2, err := ParseListing(bytes.NewReader(out2), path2)
	if err != nil {
		return NewRecoverable(fmt.Errorf("access-health probe: parsing %s listing: %w", Path2, err))
	}

	if l1.Len() < 1 || l2.Len() < 1 {
		return NewFatal(fmt.Errorf("access-health probe failed: Path1 has %d check file(s), Path2 has %d (need at least 1 on each side)", l1.Len(), l2.Len()))
	}
	if !sameMembership(l1, l2) {
		return NewFatal(fmt.Errorf("access-health probe failed: Path1 (%d files) and Path2 (%d files) check-file sets differ", l1.Len(), l2.Len()))
	}
	return nil
}

func sameMembership(a, b *Listing) bool {
	if a.Len() != b.Len() {
		return false
	}
	for _, p := range a.Paths() {
		if _, ok := b.Get(p); !ok {
			return false
		}
	}
	return true
}
