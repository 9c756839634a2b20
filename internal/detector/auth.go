package detector

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/opensecagent/agent/internal/model"
)

var authFailurePattern = regexp.MustCompile(`(?i)failed password|invalid user|authentication failure`)

// syslogTimestamp matches the classic "Mon _2 15:04:05" prefix used by
// /var/log/auth.log and /var/log/secure.
var syslogTimestamp = regexp.MustCompile(`^([A-Z][a-z]{2}\s+\d{1,2}\s+\d{2}:\d{2}:\d{2})`)

// AuthFailureDetector reads the auth log and emits an auth_failures event
// when the count of matching lines within the configured window reaches the
// threshold.
//
// Unlike the distilled source (which counts matches in the last 500 lines
// regardless of their age), this skips lines whose parsed timestamp falls
// outside the window, per spec.md §9. Lines without a parseable timestamp
// are counted.
type AuthFailureDetector struct {
	Threshold int
	WindowSec int
}

// Check scans the first readable candidate log file and returns an
// auth_failures event if the threshold is met, or nil otherwise.
func (d *AuthFailureDetector) Check(now time.Time) *model.Event {
	path, f := firstReadable("/var/log/auth.log", "/var/log/secure")
	if f == nil {
		return nil
	}
	defer f.Close()

	count := 0
	window := time.Duration(d.WindowSec) * time.Second
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		if !authFailurePattern.MatchString(line) {
			continue
		}
		ts, ok := parseSyslogTimestamp(line, now)
		if ok && now.Sub(ts) > window {
			continue
		}
		count++
	}

	if count < d.Threshold {
		return nil
	}

	confidence := float64(count) / float64(2*d.Threshold)
	if confidence > 1.0 {
		confidence = 1.0
	}

	return &model.Event{
		EventID:    fmt.Sprintf("auth-failures-%d", now.UnixNano()),
		Source:     "detector.auth",
		EventType:  "auth_failures",
		Severity:   model.SeverityP2,
		Summary:    fmt.Sprintf("%d authentication failures in the last %ds", count, d.WindowSec),
		Raw:        map[string]interface{}{"count": count, "path": path, "window_sec": d.WindowSec},
		Timestamp:  now,
		AssetIDs:   []string{"host"},
		Confidence: confidence,
	}
}

func firstReadable(paths ...string) (string, *os.File) {
	for _, p := range paths {
		f, err := os.Open(p)
		if err == nil {
			return p, f
		}
	}
	return "", nil
}

// parseSyslogTimestamp extracts the "Mon _2 15:04:05" prefix from a syslog
// line and resolves it to an absolute time using now's year (syslog omits
// the year), rolling back a year if that would place it in the future.
func parseSyslogTimestamp(line string, now time.Time) (time.Time, bool) {
	m := syslogTimestamp.FindStringSubmatch(line)
	if m == nil {
		return time.Time{}, false
	}
	t, err := time.Parse("Jan _2 15:04:05 2006", m[1]+" "+fmt.Sprint(now.Year()))
	if err != nil {
		return time.Time{}, false
	}
	if t.After(now.Add(time.Hour)) {
		t = t.AddDate(-1, 0, 0)
	}
	return t, true
}
