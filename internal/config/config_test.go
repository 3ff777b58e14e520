package config

import "testing"

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Capability.Baseline != "FMC" {
		t.Fatalf("baseline %s", cfg.Capability.Baseline)
	}
}

func TestSeverityRankOrder(t *testing.T) {
	cfg := Default()
	fmc, ok := cfg.SeverityRank("FMC")
	if !ok {
		t.Fatal("FMC unknown")
	}
	nmc, ok := cfg.SeverityRank("NMC")
	if !ok {
		t.Fatal("NMC unknown")
	}
	if nmc <= fmc {
		t.Fatalf("NMC rank %d should exceed FMC rank %d", nmc, fmc)
	}
	if _, ok := cfg.SeverityRank("BOGUS"); ok {
		t.Fatal("unknown code accepted")
	}
}

func TestValidateRejectsDuplicateCodes(t *testing.T) {
	_, err := FromYAML([]byte("capability:\n  codes: [FMC, FMC]\npriorities: [Low]\n"))
	if err == nil {
		t.Fatal("duplicate codes accepted")
	}
}

func TestValidateRejectsWrongBaseline(t *testing.T) {
	_, err := FromYAML([]byte("capability:\n  codes: [FMC, NMC]\n  baseline: NMC\npriorities: [Low]\n"))
	if err == nil {
		t.Fatal("baseline must be least restrictive code")
	}
}

func TestValidPriority(t *testing.T) {
	cfg := Default()
	if !cfg.ValidPriority("High") {
		t.Fatal("High should be valid")
	}
	if cfg.ValidPriority("Urgent") {
		t.Fatal("Urgent should be invalid")
	}
}
