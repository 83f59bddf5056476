package canonicalization

import (
	"testing"

	"github.com/ratevault/pipeline/internal/model"
)

func testSuffixes() []string {
	return []string{"LIMITED", "LTD", "PLC", "BUILDING SOCIETY", "BANK", "BS", "UK"}
}

func TestNormalizeBankName(t *testing.T) {
	cfg := BankNameConfig{CorporateSuffixes: testSuffixes()}

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "strips plc", input: "HSBC Bank Plc", want: "HSBC"},
		{name: "strips building society", input: "Nationwide Building Society", want: "NATIONWIDE"},
		{name: "ampersand becomes and", input: "M&S Bank", want: "M AND S"},
		{name: "camel case split", input: "HSBCUk", want: "HSBC"},
		{name: "strips multiple suffixes in sequence", input: "Example Bank Limited", want: "EXAMPLE"},
		{name: "does not eat word containing suffix", input: "Fairbank Savings", want: "FAIRBANK SAVINGS"},
		{name: "collapses whitespace", input: "  Halifax   Bank  ", want: "HALIFAX"},
		{name: "idempotent", input: "HSBC", want: "HSBC"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeBankName(tt.input, cfg)
			if got != tt.want {
				t.Errorf("NormalizeBankName(%q) = %q, want %q", tt.input, got, tt.want)
			}

			again := NormalizeBankName(got, cfg)
			if again != got {
				t.Errorf("NormalizeBankName not idempotent: %q -> %q -> %q", tt.input, got, again)
			}
		})
	}
}

func TestNormalizeAccountType(t *testing.T) {
	tests := []struct {
		input   string
		want    model.AccountType
		wantOK  bool
	}{
		{input: "Easy_Access", want: model.AccountEasyAccess, wantOK: true},
		{input: "notice", want: model.AccountNotice, wantOK: true},
		{input: "FIXED_TERM", want: model.AccountFixedTerm, wantOK: true},
		{input: "current_account", want: model.AccountType("current_account"), wantOK: false},
		{input: "", want: model.AccountType(""), wantOK: false},
	}

	for _, tt := range tests {
		got, ok := NormalizeAccountType(tt.input)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("NormalizeAccountType(%q) = (%q, %v), want (%q, %v)", tt.input, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestNormalizePlatform(t *testing.T) {
	cfg := PlatformConfig{
		SelfReportingAggregators: map[string]bool{"moneyfacts": true},
		DirectPlatforms:          map[string]bool{"hsbc.co.uk": true},
	}

	tests := []struct {
		name     string
		platform string
		source   string
		wantP    string
		wantCat  model.PlatformCategory
	}{
		{name: "self-reporting remaps to direct", platform: "moneyfacts", source: "moneyfacts", wantP: "direct", wantCat: model.PlatformDirect},
		{name: "configured direct platform", platform: "hsbc.co.uk", source: "hsbc.co.uk", wantP: "hsbc.co.uk", wantCat: model.PlatformDirect},
		{name: "aggregator passthrough", platform: "raisin", source: "raisin", wantP: "raisin", wantCat: model.PlatformAggregator},
		{name: "literal direct", platform: "Direct", source: "somebank", wantP: "direct", wantCat: model.PlatformDirect},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotP, gotCat := NormalizePlatform(tt.platform, tt.source, cfg)
			if gotP != tt.wantP || gotCat != tt.wantCat {
				t.Errorf("NormalizePlatform(%q, %q) = (%q, %q), want (%q, %q)",
					tt.platform, tt.source, gotP, gotCat, tt.wantP, tt.wantCat)
			}
		})
	}
}
