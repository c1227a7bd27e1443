package bisync

import (
	"bufio"
	"bytes"
	"crypto/md5" //nolint:gosec // fingerprinting only, not a security boundary
	"encoding/hex"
	"fmt"
	"os"
	"strings"
)

// FilterRule is one (sign, pattern) rule, carried opaquely to the
// transport.
type FilterRule struct {
	Include bool // true for "+", false for "-"
	Pattern string
}

// FilterSet is an ordered sequence of FilterRules.
type FilterSet struct {
	Rules []FilterRule
}

// ParseFilterFile reads a filters file in rclone's "+ pattern" / "-
// pattern" grammar, one rule per line; blank lines and lines starting
// with "#" are ignored.
func ParseFilterFile(path string) (*FilterSet, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening filters file: %w", err)
	}
	defer f.Close()

	set := &FilterSet{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if len(line) < 2 || (line[0] != '+' && line[0] != '-') {
			continue
		}
		set.Rules = append(set.Rules, FilterRule{
			Include: line[0] == '+',
			Pattern: strings.TrimSpace(line[1:]),
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading filters file: %w", err)
	}
	return set, nil
}

// FingerprintFilterFile computes the MD5 fingerprint of a filters
// file's content, normalizing line endings (stripping CR) first so the
// same content fingerprints identically regardless of platform.
func FingerprintFilterFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading filters file for fingerprint: %w", err)
	}
	normalized := bytes.ReplaceAll(data, []byte("\r"), nil)
	sum := md5.Sum(normalized) //nolint:gosec
	return hex.EncodeToString(sum[:]), nil
}

// MainFilterArgs returns the transport flags used for every listing and
// mutation command, carrying the filters file through opaquely.
func MainFilterArgs(filtersFile string) []string {
	if filtersFile == "" {
		return nil
	}
	return []string{"--filter-from", filtersFile}
}

func isWildcardOrDirRule(r FilterRule) bool {
	if strings.HasSuffix(r.Pattern, "/") {
		return true
	}
	return strings.ContainsAny(r.Pattern, "*?[")
}

// DeriveProbeFilterSet builds the access-health filter set: directory
// and wildcard rules from the main filter set are propagated,
// then an include for the check-file basename, then a catch-all
// exclude. With no filter file configured, the probe defaults to
// `{+ <check-file>, - **}`, additionally excluding any test-directory
// prefix unless testMode is set (so the probe doesn't choke on the
// scenario harness's own scratch trees).
func DeriveProbeFilterSet(main *FilterSet, checkFilename string, testMode bool) *FilterSet {
	probe := &FilterSet{}
	if main == nil || len(main.Rules) == 0 {
		if !testMode {
			probe.Rules = append(probe.Rules, FilterRule{Include: false, Pattern: "test*/**"})
		}
		probe.Rules = append(probe.Rules,
			FilterRule{Include: true, Pattern: checkFilename},
			FilterRule{Include: false, Pattern: "**"},
		)
		return probe
	}
	for _, r := range main.Rules {
		if isWildcardOrDirRule(r) {
			probe.Rules = append(probe.Rules, r)
		}
	}
	probe.Rules = append(probe.Rules,
		FilterRule{Include: true, Pattern: checkFilename},
		FilterRule{Include: false, Pattern: "**"},
	)
	return probe
}

// Args renders a FilterSet as repeated --filter flags for the
// transport, one per rule, in order.
func (s *FilterSet) Args() []string {
	if s == nil {
		return nil
	}
	var args []string
	for _, r := range s.Rules {
		sign := "-"
		if r.Include {
			sign = "+"
		}
		args = append(args, "--filter", sign+" "+r.Pattern)
	}
	return args
}
