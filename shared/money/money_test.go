package money_test

import (
	"chalet/shared/money"
	"testing"
)

func TestToMinor(t *testing.T) {
	tests := []struct {
		name  string
		major float64
		want  int64
	}{
		{name: "whole amount", major: 300, want: 30000},
		{name: "cents", major: 249.95, want: 24995},
		{name: "float noise rounds to nearest cent", major: 0.1 + 0.2, want: 30},
		{name: "zero", major: 0, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := money.ToMinor(tt.major); got != tt.want {
				t.Errorf("ToMinor(%v) = %d, want %d", tt.major, got, tt.want)
			}
		})
	}
}

func TestPercent(t *testing.T) {
	tests := []struct {
		name   string
		amount int64
		rate   float64
		want   int64
	}{
		{name: "swiss vat", amount: 100000, rate: 7.7, want: 7700},
		{name: "rounds half up", amount: 1950, rate: 7.7, want: 150},
		{name: "zero rate", amount: 100000, rate: 0, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := money.Percent(tt.amount, tt.rate); got != tt.want {
				t.Errorf("Percent(%d, %v) = %d, want %d", tt.amount, tt.rate, got, tt.want)
			}
		})
	}
}

func TestFormat(t *testing.T) {
	if got := money.Format(24995, "chf"); got != "CHF 249.95" {
		t.Errorf("Format() = %s", got)
	}

	if got := money.Format(-500, "CHF"); got != "CHF -5.00" {
		t.Errorf("Format() = %s", got)
	}

	if got := money.ToMajor(30000); got != 300 {
		t.Errorf("ToMajor() = %v", got)
	}
}
