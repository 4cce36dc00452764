package application

import (
	"errors"
	"strings"
	"testing"
)

func TestNormalizeWallet(t *testing.T) {
	got, err := NormalizeWallet(" 0xABCDEF0123456789abcdef0123456789ABCDEF01 ")
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if got != "0xabcdef0123456789abcdef0123456789abcdef01" {
		t.Fatalf("unexpected wallet %s", got)
	}
	for _, bad := range []string{"", "not-an-address", "0x123", "abcdef0123456789abcdef0123456789abcdef0123", "0x" + strings.Repeat("g", 40)} {
		var validation *ValidationError
		if _, err := NormalizeWallet(bad); !errors.As(err, &validation) {
			t.Fatalf("expected validation error for %q", bad)
		}
	}
}

func TestNormalizeTxHash(t *testing.T) {
	if _, err := NormalizeTxHash("0x" + strings.Repeat("A", 64)); err != nil {
		t.Fatalf("expected valid hash: %v", err)
	}
	if _, err := NormalizeTxHash("0x" + strings.Repeat("a", 63)); err == nil {
		t.Fatalf("expected error for short hash")
	}
}

func TestParseLimit(t *testing.T) {
	cases := map[string]int{"": 80, "0": 1, "-4": 1, "25": 25, "500": 500, "9000": 500}
	for raw, want := range cases {
		got, err := ParseLimit(raw)
		if err != nil {
			t.Fatalf("parse %q: %v", raw, err)
		}
		if got != want {
			t.Errorf("ParseLimit(%q) = %d, want %d", raw, got, want)
		}
	}
	if _, err := ParseLimit("ten"); err == nil {
		t.Fatalf("expected error for non-numeric limit")
	}
}

func TestParseSource(t *testing.T) {
	for raw, want := range map[string]string{"": "auto", "RPC": "rpc", "polygonscan": "polygonscan"} {
		got, err := ParseSource(raw)
		if err != nil || got != want {
			t.Errorf("ParseSource(%q) = %q, %v", raw, got, err)
		}
	}
	if _, err := ParseSource("etherscan"); err == nil {
		t.Fatalf("expected error for unknown source")
	}
}

func TestParseBlock(t *testing.T) {
	got, err := ParseBlock("startblock", "42")
	if err != nil || got == nil || *got != 42 {
		t.Fatalf("unexpected %v %v", got, err)
	}
	if got, err := ParseBlock("startblock", ""); err != nil || got != nil {
		t.Fatalf("expected nil for empty")
	}
	if _, err := ParseBlock("startblock", "-1"); err == nil {
		t.Fatalf("expected error for negative block")
	}
}

func TestParsePagesAndPageSize(t *testing.T) {
	pages := map[string]int{"": 0, "0": 1, "3": 3, "25": 25, "80": 25}
	for raw, want := range pages {
		if got, err := ParsePages(raw); err != nil || got != want {
			t.Errorf("ParsePages(%q) = %d, %v; want %d", raw, got, err, want)
		}
	}
	sizes := map[string]int{"": 0, "-5": 1, "50": 50, "1000": 100}
	for raw, want := range sizes {
		if got, err := ParsePageSize(raw); err != nil || got != want {
			t.Errorf("ParsePageSize(%q) = %d, %v; want %d", raw, got, err, want)
		}
	}
	var validation *ValidationError
	if _, err := ParsePageSize("many"); !errors.As(err, &validation) || validation.Field != "pageSize" {
		t.Fatalf("expected pageSize validation error, got %v", err)
	}
}

func TestParseContracts(t *testing.T) {
	bridged := "0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174"
	got, err := ParseContracts(" " + bridged + ", ," + strings.ToLower(bridged))
	if err != nil {
		t.Fatalf("parse contracts: %v", err)
	}
	if len(got) != 1 || got[0] != strings.ToLower(bridged) {
		t.Fatalf("unexpected contracts %v", got)
	}
	if got, err := ParseContracts(""); err != nil || got != nil {
		t.Fatalf("expected nil for empty list, got %v %v", got, err)
	}
	var validation *ValidationError
	if _, err := ParseContracts(bridged + ",0x123"); !errors.As(err, &validation) || validation.Field != "contracts" {
		t.Fatalf("expected contracts validation error, got %v", err)
	}
}
