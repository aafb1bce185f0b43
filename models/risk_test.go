// ABOUTME: Tests for dossier risk classification
// ABOUTME: Covers tier boundaries and risk-ordered listings
package models

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestClassifyRiskBoundaries(t *testing.T) {
	tests := []struct {
		name   string
		days   int
		amount int64
		want   RiskTier
	}{
		{"60 days is high", 60, 0, RiskHigh},
		{"61 days is extreme", 61, 0, RiskExtreme},
		{"amount over 10000 is extreme", 0, 10001, RiskExtreme},
		{"amount exactly 10000 is high", 0, 10000, RiskHigh},
		{"small and recent is medium", 10, 100, RiskMedium},
		{"31 days is high", 31, 0, RiskHigh},
		{"30 days is medium", 30, 0, RiskMedium},
		{"amount over 5000 is high", 0, 5001, RiskHigh},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyRisk(tt.days, decimal.NewFromInt(tt.amount))
			if got != tt.want {
				t.Errorf("ClassifyRisk(%d, %d) = %s, want %s", tt.days, tt.amount, got, tt.want)
			}
		})
	}
}

func TestSortByRisk(t *testing.T) {
	dossiers := []Dossier{
		{ClientName: "medium", DaysOverdue: 5, TotalAmount: decimal.NewFromInt(100)},
		{ClientName: "extreme", DaysOverdue: 90, TotalAmount: decimal.NewFromInt(100)},
		{ClientName: "high-older", DaysOverdue: 45, TotalAmount: decimal.NewFromInt(100)},
		{ClientName: "high-newer", DaysOverdue: 35, TotalAmount: decimal.NewFromInt(100)},
	}

	SortByRisk(dossiers)

	want := []string{"extreme", "high-older", "high-newer", "medium"}
	for i, name := range want {
		if dossiers[i].ClientName != name {
			t.Errorf("position %d: expected %s, got %s", i, name, dossiers[i].ClientName)
		}
	}
}
