package detector

import (
	"testing"
	"time"
)

func TestParseSyslogTimestampCurrentYear(t *testing.T) {
	now := time.Date(2026, time.March, 15, 10, 0, 0, 0, time.UTC)
	line := "Mar 15 09:59:00 host sshd[123]: Failed password for invalid user admin"
	ts, ok := parseSyslogTimestamp(line, now)
	if !ok {
		t.Fatal("expected timestamp to parse")
	}
	if ts.Year() != 2026 || ts.Month() != time.March || ts.Day() != 15 {
		t.Fatalf("unexpected parsed timestamp: %v", ts)
	}
}

func TestParseSyslogTimestampRollsBackYearAtBoundary(t *testing.T) {
	// now is early January; a "Dec 31" line in the same file must resolve to
	// the prior year, not the future.
	now := time.Date(2026, time.January, 2, 0, 30, 0, 0, time.UTC)
	line := "Dec 31 23:55:00 host sshd[123]: Failed password for root"
	ts, ok := parseSyslogTimestamp(line, now)
	if !ok {
		t.Fatal("expected timestamp to parse")
	}
	if ts.Year() != 2025 {
		t.Fatalf("expected rollback to previous year, got %d", ts.Year())
	}
	if ts.After(now) {
		t.Fatalf("parsed timestamp %v should not be after now %v", ts, now)
	}
}

func TestParseSyslogTimestampNoMatch(t *testing.T) {
	_, ok := parseSyslogTimestamp("not a syslog line", time.Now())
	if ok {
		t.Fatal("expected no match for a non-syslog line")
	}
}

func TestAuthFailurePatternMatchesKnownPhrases(t *testing.T) {
	cases := []string{
		"Failed password for root from 1.2.3.4 port 22 ssh2",
		"Invalid user admin from 1.2.3.4",
		"authentication failure; logname= uid=0",
	}
	for _, line := range cases {
		if !authFailurePattern.MatchString(line) {
			t.Errorf("expected pattern to match: %q", line)
		}
	}
}

func TestAuthFailureDetectorCheckReturnsNilWithoutLogFile(t *testing.T) {
	d := &AuthFailureDetector{Threshold: 5, WindowSec: 300}
	if ev := d.Check(time.Now()); ev != nil {
		t.Fatalf("expected nil when no log files are readable, got %+v", ev)
	}
}
