package bisync

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"regexp"
	"sort"
	"strconv"
	"time"

	"github.com/cjnaz/rclonesync-go/internal/rclog"
)

// Entry describes one file as reported by the transport's listing
// command.
type Entry struct {
	Path  string  // tree-relative, verbatim as emitted by the transport
	Size  int64   // non-negative; semantic only, not used in decisions beyond equality
	MTime float64 // seconds since epoch plus fractional seconds
}

// Listing is an ordered mapping from path to Entry, sorted
// lexicographically by path.
type Listing struct {
	byPath map[string]Entry
	paths  []string // kept sorted
}

// NewListing returns an empty Listing.
func NewListing() *Listing {
	return &Listing{byPath: make(map[string]Entry)}
}

// Add inserts or replaces the Entry for e.Path, keeping Paths() sorted.
func (l *Listing) Add(e Entry) {
	if _, exists := l.byPath[e.Path]; !exists {
		i := sort.SearchStrings(l.paths, e.Path)
		l.paths = append(l.paths, "")
		copy(l.paths[i+1:], l.paths[i:])
		l.paths[i] = e.Path
	}
	l.byPath[e.Path] = e
}

// Get returns the Entry for path and whether it was present.
func (l *Listing) Get(path string) (Entry, bool) {
	e, ok := l.byPath[path]
	return e, ok
}

// Paths returns every path in sorted order.
func (l *Listing) Paths() []string {
	return l.paths
}

// Len returns the number of entries.
func (l *Listing) Len() int {
	return len(l.paths)
}

// listingLineRE matches "<size> <date> <time>.<fractional> <path>". The
// path is everything after the 3rd space-delimited field and may itself
// contain spaces.
var listingLineRE = regexp.MustCompile(`^(\d+) (\d{4}-\d{2}-\d{2}) (\d{2}:\d{2}:\d{2})\.(\d+) (.*)$`)

// ParseListing reads lines in the transport's `lsl`-style grammar into
// a Listing. Lines that don't match are
// logged at notice level and skipped; a malformed line never fails the
// run. subject is passed through to the logger only for context.
func ParseListing(r io.Reader, subject any) (*Listing, error) {
	listing := NewListing()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if line == "" {
			continue
		}
		m := listingLineRE.FindStringSubmatch(line)
		if m == nil {
			rclog.Noticef(subject, "skipping unparsable listing line %d: %q", lineNo, line)
			continue
		}
		size, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			rclog.Noticef(subject, "skipping listing line %d with bad size: %q", lineNo, line)
			continue
		}
		mtime, err := parseTimestamp(m[2], m[3], m[4])
		if err != nil {
			rclog.Noticef(subject, "skipping listing line %d with bad timestamp: %q", lineNo, line)
			continue
		}
		listing.Add(Entry{Path: m[5], Size: size, MTime: mtime})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading listing: %w", err)
	}
	return listing, nil
}

// parseTimestamp combines a date, a time, and an arbitrary-length
// fractional-seconds string into seconds-since-epoch.
func parseTimestamp(date, clock, fractional string) (float64, error) {
	t, err := time.Parse("2006-01-02 15:04:05", date+" "+clock)
	if err != nil {
		return 0, err
	}
	frac, err := strconv.ParseFloat("0."+fractional, 64)
	if err != nil {
		return 0, err
	}
	return float64(t.Unix()) + frac, nil
}

// WriteListing serializes a Listing back to the transport's grammar, in
// sorted-path order, so that a round trip through ParseListing yields an
// identical ordered map.
func WriteListing(w io.Writer, l *Listing) error {
	bw := bufio.NewWriter(w)
	for _, p := range l.paths {
		e := l.byPath[p]
		sec, frac := math.Modf(e.MTime)
		if frac < 0 {
			frac = -frac
		}
		fracDigits := fmt.Sprintf("%.9f", frac)[2:] // "0.123456789" -> "123456789"
		t := time.Unix(int64(sec), 0).UTC()
		if _, err := fmt.Fprintf(bw, "%d %s.%s %s\n", e.Size, t.Format("2006-01-02 15:04:05"), fracDigits, e.Path); err != nil {
			return err
		}
	}
	return bw.Flush()
}
