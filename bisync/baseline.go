package bisync

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cjnaz/rclonesync-go/bisync/bilib"
)

// Side identifies Path1 or Path2.
type Side int

// The two sides of a reconciliation.
const (
	Path1 Side = iota
	Path2
)

func (s Side) String() string {
	if s == Path1 {
		return "Path1"
	}
	return "Path2"
}

// Store manages the persisted baseline and transient listing files for
// a path pair. File names derive from Workdir and the sanitized
// path-pair fingerprint so multiple independent pairs coexist.
type Store struct {
	Workdir string
	Pair    string
	DryRun  bool
}

// NewStore returns a Store for the given path pair.
func NewStore(workdir, path1, path2 string, dryRun bool) *Store {
	return &Store{Workdir: workdir, Pair: bilib.SanitizePair(path1, path2), DryRun: dryRun}
}

func (s *Store) path(side Side, suffix string) string {
	return filepath.Join(s.Workdir, fmt.Sprintf("LSL_%s_%s%s", s.Pair, side, suffix))
}

// BaselinePath is the real, persistent baseline file for side.
func (s *Store) BaselinePath(side Side) string { return s.path(side, "") }

// NewListingPath is the transient current-listing file for this run.
func (s *Store) NewListingPath(side Side) string { return s.path(side, "_NEW") }

// CheckPath is the transient access-health probe listing file.
func (s *Store) CheckPath(side Side) string { return s.path(side, "_CHK") }

// ErrorPath is the error-sentinel name a baseline is renamed to on
// fatal abort. In dry-run mode it is the dry-run sibling's sentinel.
func (s *Store) ErrorPath(side Side) string {
	if s.DryRun {
		return s.effectivePath(side) + "_ERROR"
	}
	return s.path(side, "_ERROR")
}

// effectivePath is where reads/writes actually go: the real baseline,
// or its dry-run sibling when DryRun is set.
func (s *Store) effectivePath(side Side) string {
	if s.DryRun {
		return s.BaselinePath(side) + "_DRYRUN"
	}
	return s.BaselinePath(side)
}

// PrepareDryRun seeds the dry-run sibling baselines from the real ones,
// if present, so a dry-run reads the same prior state without ever
// writing to the real baseline.
func (s *Store) PrepareDryRun() error {
	if !s.DryRun {
		return nil
	}
	for _, side := range []Side{Path1, Path2} {
		real := s.BaselinePath(side)
		if bilib.FileExists(real) {
			if err := bilib.CopyFile(real, s.effectivePath(side)); err != nil {
				return fmt.Errorf("seeding dry-run baseline for %s: %w", side, err)
			}
		}
	}
	return nil
}

// HasBaseline reports whether a baseline (real, or dry-run sibling in
// dry-run mode) exists for side.
func (s *Store) HasBaseline(side Side) bool {
	return bilib.FileExists(s.effectivePath(side))
}

// LoadBaseline parses the persisted Listing for side.
func (s *Store) LoadBaseline(side Side) (*Listing, error) {
	path := s.effectivePath(side)
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("loading %s baseline: %w", side, err)
	}
	defer f.Close()
	return ParseListing(f, path)
}

// WriteBaseline persists l as the new baseline for side. It is only
// ever called after a fully successful run.
func (s *Store) WriteBaseline(side Side, l *Listing) error {
	var buf bytes.Buffer
	if err := WriteListing(&buf, l); err != nil {
		return fmt.Errorf("serializing %s baseline: %w", side, err)
	}
	if err := bilib.WriteFileAtomic(s.effectivePath(side), buf.Bytes()); err != nil {
		return fmt.Errorf("writing %s baseline: %w", side, err)
	}
	return nil
}

// WriteNewListing persists l to the transient _NEW path for side, the
// working copy of the current listing captured at the start of a run.
// Removed on success by RemoveTransient regardless of DryRun.
func (s *Store) WriteNewListing(side Side, l *Listing) error {
	var buf bytes.Buffer
	if err := WriteListing(&buf, l); err != nil {
		return fmt.Errorf("serializing %s current listing: %w", side, err)
	}
	if err := bilib.WriteFileAtomic(s.NewListingPath(side), buf.Bytes()); err != nil {
		return fmt.Errorf("writing %s current listing: %w", side, err)
	}
	return nil
}

// RenameToError moves the baseline to its error-sentinel name, so the
// next invocation refuses to proceed without --first-sync. In dry-run
// mode only the dry-run sibling is renamed; the real baseline is left
// untouched.
func (s *Store) RenameToError(side Side) error {
	from := s.effectivePath(side)
	if !bilib.FileExists(from) {
		return nil
	}
	if err := os.Rename(from, s.ErrorPath(side)); err != nil {
		return fmt.Errorf("renaming %s baseline to error sentinel: %w", side, err)
	}
	return nil
}

// RemoveTransient deletes the _NEW listing and, unless keepChk is set,
// the _CHK probe listing for side, as happens on a successful run.
func (s *Store) RemoveTransient(side Side, keepChk bool) error {
	if err := bilib.RemoveIfExists(s.NewListingPath(side)); err != nil {
		return err
	}
	if !keepChk {
		if err := bilib.RemoveIfExists(s.CheckPath(side)); err != nil {
			return err
		}
	}
	return nil
}

// WriteCheckListing persists raw probe-listing output for side, kept
// around on probe failure for post-mortem.
func (s *Store) WriteCheckListing(side Side, data []byte) error {
	if err := os.WriteFile(s.CheckPath(side), data, 0o644); err != nil {
		return fmt.Errorf("writing %s check listing: %w", side, err)
	}
	return nil
}

// FingerprintSidecarPath is where the filters-file MD5 fingerprint is
// stored, alongside the filters file itself.
func FingerprintSidecarPath(filtersFile string) string {
	return filtersFile + "-MD5"
}

// LoadFingerprint reads the previously stored fingerprint, if any.
func LoadFingerprint(filtersFile string) (fingerprint string, ok bool, err error) {
	data, err := os.ReadFile(FingerprintSidecarPath(filtersFile))
	if os.IsNotExist(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("reading filter fingerprint sidecar: %w", err)
	}
	return string(bytes.TrimSpace(data)), true, nil
}

// SaveFingerprint persists the filters file's current fingerprint.
func SaveFingerprint(filtersFile, fingerprint string) error {
	if err := os.WriteFile(FingerprintSidecarPath(filtersFile), []byte(fingerprint), 0o644); err != nil {
		return fmt.Errorf("writing filter fingerprint sidecar: %w", err)
	}
	return nil
}
