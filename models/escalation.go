// ABOUTME: Escalation ladder state machine for dossier status
// ABOUTME: Status only moves forward automatically; resets and overrides are explicit
package models

import "fmt"

// Ladder is the escalation sequence from least to most urgent.
var Ladder = []DossierStatus{StatusInitial, StatusReminder1, StatusReminder2, StatusCritical}

// Rank returns the position of s on the ladder, or -1 if unknown.
func (s DossierStatus) Rank() int {
	switch s {
	case StatusInitial:
		return 0
	case StatusReminder1:
		return 1
	case StatusReminder2:
		return 2
	case StatusCritical:
		return 3
	}
	return -1
}

// IsTerminal reports whether s is the last automatic step.
func (s DossierStatus) IsTerminal() bool {
	return s == StatusCritical
}

// Advance computes the automatic transition from current towards target.
// It returns the resulting status and whether it moved. Targets at or behind
// the current step never move the dossier.
func Advance(current, target DossierStatus) (DossierStatus, bool) {
	if !target.Valid() || current.IsTerminal() {
		return current, false
	}
	if target.Rank() <= current.Rank() {
		return current, false
	}
	return target, true
}

// Highest returns the most advanced of the given statuses.
func Highest(statuses ...DossierStatus) DossierStatus {
	best := StatusInitial
	for _, s := range statuses {
		if s.Rank() > best.Rank() {
			best = s
		}
	}
	return best
}

// Override validates a manual status change. Any valid step is allowed.
func Override(target DossierStatus) (DossierStatus, error) {
	if !target.Valid() {
		return "", fmt.Errorf("invalid dossier status: %s", target)
	}
	return target, nil
}
