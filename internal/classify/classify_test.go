package classify

import (
	"testing"

	"github.com/lazaret/lazaret/internal/models"
)

func TestClassifyLabels(t *testing.T) {
	tests := []struct {
		name  string
		input Input
		want  Result
	}{
		{
			name:  "trojan family",
			input: Input{Label: "Win.Trojan.Generic-123"},
			want:  Result{Tier: models.TierHigh, RetentionDays: 365, Category: "trojan"},
		},
		{
			name:  "ransomware family",
			input: Input{Label: "Ransomware.Locky.A"},
			want:  Result{Tier: models.TierHigh, RetentionDays: 365, Category: "ransomware"},
		},
		{
			name:  "keylogger maps to spyware",
			input: Input{Label: "Spy.Keylogger.Agent"},
			want:  Result{Tier: models.TierHigh, RetentionDays: 365, Category: "spyware"},
		},
		{
			name:  "ransomware outranks trojan in same label",
			input: Input{Label: "Trojan.Ransomware.Cryptor"},
			want:  Result{Tier: models.TierHigh, RetentionDays: 365, Category: "ransomware"},
		},
		{
			name:  "apt marker",
			input: Input{Label: "APT.Lazarus.Dropper"},
			want:  Result{Tier: models.TierCritical, RetentionDays: 730, Category: "advanced_threat"},
		},
		{
			name:  "exploit marker",
			input: Input{Label: "Exploit.CVE-2024-1234"},
			want:  Result{Tier: models.TierCritical, RetentionDays: 730, Category: "advanced_threat"},
		},
		{
			name:  "zero-day marker",
			input: Input{Label: "Zero-Day.Generic"},
			want:  Result{Tier: models.TierCritical, RetentionDays: 730, Category: "advanced_threat"},
		},
		{
			name:  "backdoor outranks apt marker",
			input: Input{Label: "Backdoor.APT.Shell"},
			want:  Result{Tier: models.TierHigh, RetentionDays: 365, Category: "backdoor"},
		},
		{
			name:  "adware",
			input: Input{Label: "Adware.Generic.BrowserHelper"},
			want:  Result{Tier: models.TierLow, RetentionDays: 30, Category: "adware"},
		},
		{
			name:  "potentially unwanted",
			input: Input{Label: "Potentially-Unwanted-Application"},
			want:  Result{Tier: models.TierLow, RetentionDays: 30, Category: "pua"},
		},
		{
			name:  "heuristic detection",
			input: Input{Label: "Heuristic.Generic.Score80"},
			want:  Result{Tier: models.TierLow, RetentionDays: 30, Category: "heuristic"},
		},
		{
			name:  "suspicious detection",
			input: Input{Label: "Suspicious.Packed.Binary"},
			want:  Result{Tier: models.TierLow, RetentionDays: 30, Category: "suspicious"},
		},
		{
			name:  "unrecognized label falls back to medium",
			input: Input{Label: "Win.Malware.Foo-999"},
			want:  Result{Tier: models.TierMedium, RetentionDays: 90, Category: "malware"},
		},
		{
			name:  "empty label falls back to medium",
			input: Input{Label: ""},
			want:  Result{Tier: models.TierMedium, RetentionDays: 90, Category: "malware"},
		},
		{
			name:  "matching is case-insensitive",
			input: Input{Label: "WIN.TROJAN.UPPER"},
			want:  Result{Tier: models.TierHigh, RetentionDays: 365, Category: "trojan"},
		},
	}

	var c Classifier
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Classify(tt.input)
			if got != tt.want {
				t.Errorf("Classify(%q) = %+v, want %+v", tt.input.Label, got, tt.want)
			}
		})
	}
}

func TestClassifyTypeEscalation(t *testing.T) {
	tests := []struct {
		name  string
		input Input
		want  Result
	}{
		{
			name:  "low plus executable escalates to medium",
			input: Input{Label: "Adware.Generic.PUA", MIMEType: "application/x-executable"},
			want:  Result{Tier: models.TierMedium, RetentionDays: 90, Category: "adware"},
		},
		{
			name:  "low plus script escalates with shorter retention",
			input: Input{Label: "Suspicious.Obfuscated", MIMEType: "text/x-shellscript"},
			want:  Result{Tier: models.TierMedium, RetentionDays: 60, Category: "suspicious"},
		},
		{
			name:  "medium plus executable extends retention only",
			input: Input{Label: "Win.Malware.Foo", MIMEType: "application/x-dosexec"},
			want:  Result{Tier: models.TierMedium, RetentionDays: 180, Category: "malware"},
		},
		{
			name:  "high tier unchanged by executable type",
			input: Input{Label: "Win.Trojan.Generic", MIMEType: "application/x-executable"},
			want:  Result{Tier: models.TierHigh, RetentionDays: 365, Category: "trojan"},
		},
		{
			name:  "critical tier unchanged by executable type",
			input: Input{Label: "APT.Dropper", MIMEType: "application/x-executable"},
			want:  Result{Tier: models.TierCritical, RetentionDays: 730, Category: "advanced_threat"},
		},
		{
			name:  "plain document never escalates",
			input: Input{Label: "Adware.Toolbar", MIMEType: "application/pdf"},
			want:  Result{Tier: models.TierLow, RetentionDays: 30, Category: "adware"},
		},
		{
			name:  "mime parameters are ignored",
			input: Input{Label: "Suspicious.Macro", MIMEType: "text/x-shellscript; charset=utf-8"},
			want:  Result{Tier: models.TierMedium, RetentionDays: 60, Category: "suspicious"},
		},
		{
			name:  "unknown mime leaves baseline intact",
			input: Input{Label: "Adware.Toolbar"},
			want:  Result{Tier: models.TierLow, RetentionDays: 30, Category: "adware"},
		},
	}

	var c Classifier
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Classify(tt.input)
			if got != tt.want {
				t.Errorf("Classify(%+v) = %+v, want %+v", tt.input, got, tt.want)
			}
		})
	}
}

func TestClassifyOverrides(t *testing.T) {
	c := Classifier{Overrides: map[models.RiskTier]int{
		models.TierHigh: 0,
		models.TierLow:  14,
	}}

	got := c.Classify(Input{Label: "Win.Trojan.Generic"})
	if got.RetentionDays != 0 {
		t.Errorf("high override: RetentionDays = %d, want 0", got.RetentionDays)
	}
	if got.Tier != models.TierHigh || got.Category != "trojan" {
		t.Errorf("override changed tier or category: %+v", got)
	}

	got = c.Classify(Input{Label: "Adware.Toolbar"})
	if got.RetentionDays != 14 {
		t.Errorf("low override: RetentionDays = %d, want 14", got.RetentionDays)
	}

	// Override keyed by the final tier, after type escalation.
	c = Classifier{Overrides: map[models.RiskTier]int{models.TierMedium: 45}}
	got = c.Classify(Input{Label: "Adware.Toolbar", MIMEType: "application/x-executable"})
	if got.Tier != models.TierMedium || got.RetentionDays != 45 {
		t.Errorf("escalated override = %+v, want medium/45", got)
	}

	// No override for the final tier leaves the computed value.
	got = c.Classify(Input{Label: "Win.Malware.Foo"})
	if got.RetentionDays != 90 {
		t.Errorf("unmatched override: RetentionDays = %d, want 90", got.RetentionDays)
	}
}

func TestClassifyDeterministic(t *testing.T) {
	var c Classifier
	in := Input{Label: "Trojan.Ransomware.Mixed", MIMEType: "application/x-executable", SizeBytes: 4096}
	first := c.Classify(in)
	for i := 0; i < 50; i++ {
		if got := c.Classify(in); got != first {
			t.Fatalf("classification not deterministic: %+v != %+v", got, first)
		}
	}
}
