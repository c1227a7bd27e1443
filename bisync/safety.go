package bisync

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
)

// DefaultMaxDeletePercent is the --max-deletes default.
const DefaultMaxDeletePercent = 50

// checkExcessiveDeletes is the excessive-delete guard: if more than
// maxDeletePercent of the prior listing vanished on this
// side, something is probably wrong (a remote unmounted, a filter
// misconfigured) rather than a real mass deletion.
func checkExcessiveDeletes(side Side, priorLen, deletedCount, maxDeletePercent int) error {
	if priorLen == 0 {
		return nil
	}
	if deletedCount*100 > maxDeletePercent*priorLen {
		pct := deletedCount * 100 / priorLen
		return fmt.Errorf("%s: excessive deletes: %d of %d files (%d%%, exceeds --max-deletes %d%%)",
			side, deletedCount, priorLen, pct, maxDeletePercent)
	}
	return nil
}

// checkAllChanged is the all-changed guard: if the prior baseline was
// non-empty but not a single surviving path came back
// unchanged, this run likely saw a wholesale timestamp shift (DST,
// timezone remount) rather than genuine edits.
func checkAllChanged(side Side, sd SideDelta) error {
	if sd.PriorNonEmpty && !sd.SawUnchanged {
		return fmt.Errorf("%s: every file appears changed since the last run (possible clock or timezone shift); refusing to propagate", side)
	}
	return nil
}

// RunSafetyGate evaluates both guards on both sides before returning,
// so independent trips on Path1 and Path2 are both reported together
// rather than stopping at the first. force bypasses every check. A
// non-nil return is always Recoverable.
func RunSafetyGate(force bool, maxDeletePercent int, path1PriorLen int, sd1 SideDelta, path2PriorLen int, sd2 SideDelta) error {
	if force {
		return nil
	}
	var merr *multierror.Error
	if err := checkExcessiveDeletes(Path1, path1PriorLen, sd1.DeletedCount, maxDeletePercent); err != nil {
		merr = multierror.Append(merr, err)
	}
	if err := checkExcessiveDeletes(Path2, path2PriorLen, sd2.DeletedCount, maxDeletePercent); err != nil {
		merr = multierror.Append(merr, err)
	}
	if err := checkAllChanged(Path1, sd1); err != nil {
		merr = multierror.Append(merr, err)
	}
	if err := checkAllChanged(Path2, sd2); err != nil {
		merr = multierror.Append(merr, err)
	}
	if merr.ErrorOrNil() == nil {
		return nil
	}
	return NewRecoverable(merr)
}
