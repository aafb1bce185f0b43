// ABOUTME: Risk classification of dossiers
// ABOUTME: Maps days overdue and outstanding amount to a risk tier used for prioritizing
package models

import (
	"sort"

	"github.com/shopspring/decimal"
)

// RiskTier is the collection risk of a dossier.
type RiskTier string

const (
	RiskMedium  RiskTier = "medium"
	RiskHigh    RiskTier = "high"
	RiskExtreme RiskTier = "extreme"
)

var (
	extremeAmount = decimal.NewFromInt(10000)
	highAmount    = decimal.NewFromInt(5000)
)

// Rank orders tiers from least to most risky.
func (r RiskTier) Rank() int {
	switch r {
	case RiskMedium:
		return 0
	case RiskHigh:
		return 1
	case RiskExtreme:
		return 2
	}
	return -1
}

// ClassifyRisk maps overdue days and outstanding amount to a tier.
func ClassifyRisk(daysOverdue int, totalAmount decimal.Decimal) RiskTier {
	if daysOverdue > 60 || totalAmount.GreaterThan(extremeAmount) {
		return RiskExtreme
	}
	if daysOverdue > 30 || totalAmount.GreaterThan(highAmount) {
		return RiskHigh
	}
	return RiskMedium
}

// Classify returns the risk tier of a dossier. It is evaluated on demand and
// must not be cached across listings since days overdue change daily.
func Classify(d *Dossier) RiskTier {
	return ClassifyRisk(d.DaysOverdue, d.TotalAmount)
}

// SortByRisk orders dossiers by tier, then days overdue, then amount, all descending.
func SortByRisk(dossiers []Dossier) {
	sort.SliceStable(dossiers, func(i, j int) bool {
		a, b := &dossiers[i], &dossiers[j]
		ra, rb := Classify(a).Rank(), Classify(b).Rank()
		if ra != rb {
			return ra > rb
		}
		if a.DaysOverdue != b.DaysOverdue {
			return a.DaysOverdue > b.DaysOverdue
		}
		return a.TotalAmount.GreaterThan(b.TotalAmount)
	})
}
