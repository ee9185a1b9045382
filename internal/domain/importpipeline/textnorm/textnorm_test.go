package textnorm

import (
	"testing"
	"time"
)

func TestParseAmount_European(t *testing.T) {
	tests := []struct {
		input    string
		expected int64
	}{
		{"45,23", 4523},
		{"1.234,56", 123456},
		{"1.000.000,00", 100000000},
		{"0,99", 99},
		{"-45,23", -4523},
		{"", 0},
		{"  45,23  ", 4523},
	}

	for _, tc := range tests {
		got, err := ParseAmount(tc.input, true)
		if err != nil {
			t.Errorf("ParseAmount(%q, true) error: %v", tc.input, err)
			continue
		}
		if got != tc.expected {
			t.Errorf("ParseAmount(%q, true) = %d, want %d", tc.input, got, tc.expected)
		}
	}
}

func TestParseAmount_American(t *testing.T) {
	tests := []struct {
		input    string
		expected int64
	}{
		{"45.23", 4523},
		{"1,234.56", 123456},
		{"0.99", 99},
		{"-29.99", -2999},
		{"", 0},
	}

	for _, tc := range tests {
		got, err := ParseAmount(tc.input, false)
		if err != nil {
			t.Errorf("ParseAmount(%q, false) error: %v", tc.input, err)
			continue
		}
		if got != tc.expected {
			t.Errorf("ParseAmount(%q, false) = %d, want %d", tc.input, got, tc.expected)
		}
	}
}

func TestParseMoneyInput(t *testing.T) {
	tests := []struct {
		input    string
		expected int64
	}{
		{"R$ 45,23", 4523},
		{"45,23 D", -4523},
		{"45,23 C", 4523},
		{"1.234,56", 123456},
		{"45.23", 4523},
	}

	for _, tc := range tests {
		got, err := ParseMoneyInput(tc.input)
		if err != nil {
			t.Errorf("ParseMoneyInput(%q) error: %v", tc.input, err)
			continue
		}
		if got != tc.expected {
			t.Errorf("ParseMoneyInput(%q) = %d, want %d", tc.input, got, tc.expected)
		}
	}
}

func TestNormalizeDebitCredit(t *testing.T) {
	tests := []struct {
		debit    string
		credit   string
		european bool
		expected int64
	}{
		{"45,23", "", true, -4523},
		{"", "500,00", true, 50000},
		{"", "", true, 0},
		{"29.99", "", false, -2999},
	}

	for _, tc := range tests {
		got, err := NormalizeDebitCredit(tc.debit, tc.credit, tc.european)
		if err != nil {
			t.Errorf("NormalizeDebitCredit(%q, %q) error: %v", tc.debit, tc.credit, err)
			continue
		}
		if got != tc.expected {
			t.Errorf("NormalizeDebitCredit(%q, %q) = %d, want %d", tc.debit, tc.credit, got, tc.expected)
		}
	}
}

func TestParseFlexibleDate(t *testing.T) {
	tests := []struct {
		input    string
		format   string
		expected string
	}{
		{"02-01-2024", "DD-MM-YYYY", "2024-01-02"},
		{"25-12-2024", "", "2024-12-25"},
		{"2024-01-02", "", "2024-01-02"},
		{"2024/01/02", "", "2024-01-02"},
		{"5 de fevereiro de 2026", "", "2026-02-05"},
	}

	for _, tc := range tests {
		got, err := ParseFlexibleDate(tc.input, tc.format, time.UTC)
		if err != nil {
			t.Errorf("ParseFlexibleDate(%q, %q) error: %v", tc.input, tc.format, err)
			continue
		}
		gotStr := got.Format("2006-01-02")
		if gotStr != tc.expected {
			t.Errorf("ParseFlexibleDate(%q, %q) = %s, want %s", tc.input, tc.format, gotStr, tc.expected)
		}
	}
}

func TestParseFlexibleDate_TwoDigitYearPivot(t *testing.T) {
	tests := []struct {
		input string
		year  int
	}{
		{"01/02/69", 2069},
		{"01/02/70", 1970},
	}

	for _, tc := range tests {
		got, err := ParseFlexibleDate(tc.input, "", time.UTC)
		if err != nil {
			t.Fatalf("ParseFlexibleDate(%q) error: %v", tc.input, err)
		}
		if got.Year() != tc.year {
			t.Errorf("ParseFlexibleDate(%q).Year() = %d, want %d", tc.input, got.Year(), tc.year)
		}
	}
}

func TestParseFlexibleDate_Invalid(t *testing.T) {
	_, err := ParseFlexibleDate("", "", nil)
	if err != ErrInvalidDate {
		t.Errorf("Expected ErrInvalidDate for empty string, got %v", err)
	}

	_, err = ParseFlexibleDate("not-a-date", "", nil)
	if err != ErrInvalidDate {
		t.Errorf("Expected ErrInvalidDate for invalid string, got %v", err)
	}
}

func TestCleanDescription(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"  Pingo Doce  ", "Pingo Doce"},
		{"Compra  MB   -   Lidl", "Compra MB - Lidl"},
		{"Netflix", "Netflix"},
	}

	for _, tc := range tests {
		got := CleanDescription(tc.input)
		if got != tc.expected {
			t.Errorf("CleanDescription(%q) = %q, want %q", tc.input, got, tc.expected)
		}
	}
}

func TestNormalizeForMatch(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"café", "CAFE"},
		{"  Pix  Enviado  ", "PIX ENVIADO"},
		{"São Paulo", "SAO PAULO"},
	}

	for _, tc := range tests {
		got := NormalizeForMatch(tc.input)
		if got != tc.expected {
			t.Errorf("NormalizeForMatch(%q) = %q, want %q", tc.input, got, tc.expected)
		}
	}
}

func TestBuildMerchantKey(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"PAGAMENTO SUPERMERCADO 12345", "SUPERMERCADO"},
		{"", "transacao"},
		{"COMPRA NO DEBITO - Padaria", "- PADARIA"},
	}

	for _, tc := range tests {
		got := BuildMerchantKey(tc.input)
		if got != tc.expected {
			t.Errorf("BuildMerchantKey(%q) = %q, want %q", tc.input, got, tc.expected)
		}
	}
}

func TestFixMojibake(t *testing.T) {
	// "café" re-encoded as windows-1252 then misread as UTF-8 becomes "cafÃ©".
	mojibake := "cafÃ©"
	got := FixMojibake(mojibake)
	if got != "café" {
		t.Errorf("FixMojibake(%q) = %q, want %q", mojibake, got, "café")
	}

	plain := "cafe com leite"
	if got := FixMojibake(plain); got != plain {
		t.Errorf("FixMojibake(%q) should be a no-op, got %q", plain, got)
	}
}
