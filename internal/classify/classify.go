// Package classify maps detection labels to risk tiers and retention periods.
package classify

import (
	"strings"

	"github.com/lazaret/lazaret/internal/models"
)

// Input carries the detection attributes considered by the classifier.
// SizeBytes and MIMEType are optional; zero values mean unknown.
type Input struct {
	Label     string
	SizeBytes int64
	MIMEType  string
}

// Result is a classification outcome. Identical inputs always produce an
// identical Result: retention is fixed at record creation time and must be
// reproducible.
type Result struct {
	Tier          models.RiskTier
	RetentionDays int
	Category      string
}

// labelRule matches one token against the lowercased detection label.
// Rules are evaluated in order; the first matching token wins.
type labelRule struct {
	token     string
	tier      models.RiskTier
	retention int
	category  string
}

// Label rules in precedence order: named malware families first, then the
// advanced-threat markers, then nuisance tokens. A label carrying both a
// family token and an "apt"/"exploit" marker classifies by the family.
var labelRules = []labelRule{
	{"ransomware", models.TierHigh, 365, "ransomware"},
	{"trojan", models.TierHigh, 365, "trojan"},
	{"banker", models.TierHigh, 365, "banker"},
	{"backdoor", models.TierHigh, 365, "backdoor"},
	{"rootkit", models.TierHigh, 365, "rootkit"},
	{"keylogger", models.TierHigh, 365, "spyware"},

	{"apt", models.TierCritical, 730, "advanced_threat"},
	{"targeted", models.TierCritical, 730, "advanced_threat"},
	{"zero-day", models.TierCritical, 730, "advanced_threat"},
	{"exploit", models.TierCritical, 730, "advanced_threat"},

	{"adware", models.TierLow, 30, "adware"},
	{"pua", models.TierLow, 30, "pua"},
	{"potentially", models.TierLow, 30, "pua"},
	{"unwanted", models.TierLow, 30, "pua"},
	{"suspicious", models.TierLow, 30, "suspicious"},
	{"heuristic", models.TierLow, 30, "heuristic"},
}

// Default when no token matches.
const (
	defaultRetention = 90
	defaultCategory  = "malware"
)

func executableMIME(mt string) bool {
	switch mt {
	case "application/x-executable",
		"application/x-pie-executable",
		"application/x-sharedlib",
		"application/x-mach-binary",
		"application/x-msdownload",
		"application/x-dosexec",
		"application/vnd.microsoft.portable-executable",
		"application/x-elf":
		return true
	}
	return false
}

func scriptMIME(mt string) bool {
	switch mt {
	case "text/x-shellscript",
		"application/x-sh",
		"application/x-csh",
		"text/x-python",
		"application/x-python",
		"text/x-perl",
		"application/x-perl",
		"text/x-php",
		"application/javascript",
		"text/javascript",
		"application/x-bat",
		"text/x-powershell",
		"application/x-vbs":
		return true
	}
	return false
}

// Classifier applies the label and file-type rules, optionally replacing the
// computed retention with a per-tier override.
type Classifier struct {
	// Overrides replaces the computed retention (days) when set for the
	// final tier. Zero means indefinite retention, so presence in the map,
	// not the value, decides whether an override applies.
	Overrides map[models.RiskTier]int
}

// Classify assigns a risk tier, retention period, and category.
//
// Two passes: the label sets the baseline (first matching token wins,
// case-insensitive substring match), then the file type can escalate the
// outcome. Type escalation never lowers a tier: label content is the
// stronger risk signal, type only increases caution.
func (c *Classifier) Classify(in Input) Result {
	r := baseline(in.Label)
	r = escalate(r, in.MIMEType)

	if c != nil && c.Overrides != nil {
		if days, ok := c.Overrides[r.Tier]; ok {
			r.RetentionDays = days
		}
	}
	return r
}

func baseline(label string) Result {
	lower := strings.ToLower(label)
	for _, rule := range labelRules {
		if strings.Contains(lower, rule.token) {
			return Result{Tier: rule.tier, RetentionDays: rule.retention, Category: rule.category}
		}
	}
	return Result{Tier: models.TierMedium, RetentionDays: defaultRetention, Category: defaultCategory}
}

func escalate(r Result, mimeType string) Result {
	mt := normalizeMIME(mimeType)
	switch r.Tier {
	case models.TierLow:
		if executableMIME(mt) {
			r.Tier = models.TierMedium
			r.RetentionDays = 90
		} else if scriptMIME(mt) {
			r.Tier = models.TierMedium
			r.RetentionDays = 60
		}
	case models.TierMedium:
		if executableMIME(mt) {
			r.RetentionDays = 180
		}
	}
	return r
}

// normalizeMIME strips parameters such as "; charset=utf-8".
func normalizeMIME(mimeType string) string {
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = mimeType[:i]
	}
	return strings.ToLower(strings.TrimSpace(mimeType))
}
