package service

import (
	"strconv"
	"strings"
	"time"
)

// Canonical run statuses. Provider-specific states outside this set
// (unstable, aborted, disabled) pass through NormalizeStatus unchanged.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
	StatusRunning = "running"
	StatusUnknown = "unknown"
)

var statusSynonyms = map[string]string{
	"success":     StatusSuccess,
	"succeeded":   StatusSuccess,
	"passed":      StatusSuccess,
	"pass":        StatusSuccess,
	"ok":          StatusSuccess,
	"green":       StatusSuccess,
	"failure":     StatusFailure,
	"failed":      StatusFailure,
	"error":       StatusFailure,
	"errored":     StatusFailure,
	"red":         StatusFailure,
	"cancelled":   StatusFailure,
	"canceled":    StatusFailure,
	"running":     StatusRunning,
	"in_progress": StatusRunning,
	"queued":      StatusRunning,
	"pending":     StatusRunning,
}

// NormalizeStatus maps a provider status vocabulary onto the canonical
// enum. Empty input means the build has not reported a result yet and is
// assumed in flight. Unrecognized values pass through lowercased and
// trimmed so provider-specific states survive without loss.
func NormalizeStatus(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return StatusRunning
	}
	if canonical, ok := statusSynonyms[s]; ok {
		return canonical
	}
	return s
}

// JobColorStatus maps a Jenkins job ball color onto a status for job-level
// summary display.
func JobColorStatus(color string) string {
	c := strings.ToLower(color)
	switch {
	case c == "":
		return StatusUnknown
	case strings.Contains(c, "blue"):
		return StatusSuccess
	case strings.Contains(c, "red"):
		return StatusFailure
	case strings.Contains(c, "yellow"):
		return "unstable"
	case strings.Contains(c, "grey"), strings.Contains(c, "disabled"):
		return "disabled"
	case strings.Contains(c, "aborted"):
		return "aborted"
	default:
		return StatusUnknown
	}
}

// BuildNumberFromURL extracts a build number from the trailing path segment
// of a build URL, e.g. ".../job/Deploy/42/" yields 42. The segment must be
// fully numeric after stripping a trailing slash.
func BuildNumberFromURL(rawURL string) (int, bool) {
	trimmed := strings.TrimSuffix(rawURL, "/")
	idx := strings.LastIndex(trimmed, "/")
	if idx < 0 || idx == len(trimmed)-1 {
		return 0, false
	}
	n, err := strconv.Atoi(trimmed[idx+1:])
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// CanonicalBuildURL appends the build number to a base job URL unless it is
// already present. The canonical form always ends with "/<number>/".
func CanonicalBuildURL(baseURL string, buildNumber int) string {
	base := strings.TrimSuffix(baseURL, "/")
	if base == "" {
		return ""
	}
	suffix := "/" + strconv.Itoa(buildNumber)
	if strings.HasSuffix(base, suffix) {
		return base + "/"
	}
	return base + suffix + "/"
}

// EpochMillis converts provider-native epoch milliseconds into an absolute
// UTC instant. Display timezones apply at presentation only.
func EpochMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

// MillisToSeconds converts a millisecond interval to fractional seconds.
func MillisToSeconds(ms int64) float64 {
	return float64(ms) / 1000
}

// ComputeDuration derives the run duration in seconds from its timestamps.
// Returns nil when either bound is missing or the interval is negative.
func ComputeDuration(startedAt, finishedAt *time.Time) *float64 {
	if startedAt == nil || finishedAt == nil {
		return nil
	}
	secs := finishedAt.Sub(*startedAt).Seconds()
	if secs < 0 {
		return nil
	}
	return &secs
}
