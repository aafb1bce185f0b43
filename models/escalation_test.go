// ABOUTME: Tests for the escalation ladder
// ABOUTME: Verifies forward-only transitions and explicit overrides
package models

import "testing"

func TestAdvanceMovesForwardOnly(t *testing.T) {
	tests := []struct {
		current DossierStatus
		target  DossierStatus
		want    DossierStatus
		moved   bool
	}{
		{StatusInitial, StatusReminder1, StatusReminder1, true},
		{StatusInitial, StatusCritical, StatusCritical, true},
		{StatusReminder2, StatusReminder1, StatusReminder2, false},
		{StatusReminder1, StatusReminder1, StatusReminder1, false},
		{StatusCritical, StatusInitial, StatusCritical, false},
		{StatusReminder1, DossierStatus("bogus"), StatusReminder1, false},
	}

	for _, tt := range tests {
		got, moved := Advance(tt.current, tt.target)
		if got != tt.want || moved != tt.moved {
			t.Errorf("Advance(%s, %s) = (%s, %v), want (%s, %v)",
				tt.current, tt.target, got, moved, tt.want, tt.moved)
		}
	}
}

func TestAdvanceNeverRegresses(t *testing.T) {
	for _, current := range Ladder {
		for _, target := range Ladder {
			got, _ := Advance(current, target)
			if got.Rank() < current.Rank() {
				t.Errorf("Advance(%s, %s) regressed to %s", current, target, got)
			}
		}
	}
}

func TestHighestAndOverride(t *testing.T) {
	if got := Highest(StatusReminder1, StatusCritical, StatusReminder2); got != StatusCritical {
		t.Errorf("expected critical, got %s", got)
	}
	if got := Highest(); got != StatusInitial {
		t.Errorf("expected initial for no input, got %s", got)
	}

	if _, err := Override(StatusInitial); err != nil {
		t.Errorf("override to initial should be allowed: %v", err)
	}
	if _, err := Override(DossierStatus("closed")); err == nil {
		t.Error("expected error for invalid override")
	}
}
