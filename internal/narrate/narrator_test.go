package narrate

import (
	"strings"
	"testing"
	"time"
)

func TestHumanProvenance(t *testing.T) {
	c := Human("looks good")
	if c.Provenance != ProvenanceHuman || c.Body != "looks good" {
		t.Fatalf("unexpected comment: %+v", c)
	}
}

func TestBlockerOpenedPriority(t *testing.T) {
	p := "High"
	withPriority := BlockerOpened("jparker", "NMC", "engine out", &p)
	if !strings.Contains(withPriority.Body, "Priority: High") {
		t.Fatalf("priority missing: %q", withPriority.Body)
	}
	without := BlockerOpened("jparker", "NMC", "engine out", nil)
	if strings.Contains(without.Body, "Priority") {
		t.Fatalf("priority should be omitted: %q", without.Body)
	}
	if without.Provenance != ProvenanceMachine {
		t.Fatalf("generated comment must be machine provenance")
	}
}

func TestPartDemandIssuedProgress(t *testing.T) {
	c := PartDemandIssued("Fan belt", 2, 3, 4, "kchen")
	if !strings.Contains(c.Body, "(3 of 4)") {
		t.Fatalf("progress missing: %q", c.Body)
	}
}

func TestCompletionSummarySkipsEmptyMeters(t *testing.T) {
	start := time.Date(2026, 8, 1, 8, 0, 0, 0, time.UTC)
	end := time.Date(2026, 8, 1, 11, 30, 0, 0, time.UTC)
	m3 := 88.5
	c := CompletionSummary("jparker", "done.", start, end, 3.5, [4]*float64{nil, nil, &m3, nil})
	if !strings.Contains(c.Body, "Meter 3: 88.5") {
		t.Fatalf("meter 3 missing: %q", c.Body)
	}
	if strings.Contains(c.Body, "Meter 1") || strings.Contains(c.Body, "Meter 4") {
		t.Fatalf("empty meters must be skipped: %q", c.Body)
	}
	if !strings.Contains(c.Body, "3.5 billable hours") {
		t.Fatalf("hours missing: %q", c.Body)
	}
	if strings.Contains(c.Body, "done..") {
		t.Fatalf("comment terminator duplicated: %q", c.Body)
	}
}
