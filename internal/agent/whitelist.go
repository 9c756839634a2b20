package agent

import "regexp"

// Whitelist is the sole authorization boundary for commands the agent loop
// may execute. A command not matching any entry is rejected outright — no
// "allow if it looks safe" fallback is permitted.
type Whitelist struct {
	patterns []*regexp.Regexp
}

// whitelistPatterns are anchored at the start of the command, case-
// insensitive. Read-only entries are usable in both scan and resolve mode;
// remediation entries are intended for resolve mode, but enforcement is
// solely by regex — the loop does not gate on mode.
var whitelistPatterns = []string{
	// read-only
	`^apt\s+list\b`,
	`^apt-cache\b`,
	`^dpkg\s+-[lL]\b`,
	`^rpm\s+-qa\b`,
	`^ss\s+-`,
	`^netstat\s+-`,
	`^docker\s+ps\b`,
	`^docker\s+images\b`,
	`^docker\s+inspect\b`,
	`^cat\s+/etc/`,
	`^ls\s+-la\s+/etc/`,
	`^getent\b`,
	`^systemctl\s+list-units\b`,
	`^systemctl\s+status\b`,
	`^id\b`,
	`^whoami\b`,
	`^uname\s+-a\b`,
	`^hostname\b`,
	// remediation
	`^apt(-get)?\s+install\s+-y\s`,
	`^apt(-get)?\s+upgrade\s+-y\b`,
	`^docker\s+stop\b`,
	`^docker\s+rm\s+-f\b`,
	`^ufw\s+deny\b`,
	`^iptables\s+-I\s+INPUT\b`,
}

// NewWhitelist compiles the fixed whitelist.
func NewWhitelist() *Whitelist {
	w := &Whitelist{}
	for _, p := range whitelistPatterns {
		w.patterns = append(w.patterns, regexp.MustCompile("(?i)"+p))
	}
	return w
}

// shellControl matches characters that let a shell chain, pipe, substitute
// or redirect after a whitelisted prefix.
var shellControl = regexp.MustCompile("[;&|`<>\n]|\\$\\(")

// Allowed reports whether cmd matches any whitelist entry. A command that
// contains shell control characters (; & | ` < > $( or a newline) is
// rejected even when its prefix matches.
func (w *Whitelist) Allowed(cmd string) bool {
	if shellControl.MatchString(cmd) {
		return false
	}
	for _, re := range w.patterns {
		if re.MatchString(cmd) {
			return true
		}
	}
	return false
}
