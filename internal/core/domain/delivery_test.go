package domain

import "testing"

func TestCanTransitionToHappyPath(t *testing.T) {
	chain := []DeliveryStatus{
		StatusCreated, StatusAssigned, StatusPickedUp, StatusInTransit,
		StatusNearby, StatusArrived, StatusDelivered,
	}
	for i := 0; i < len(chain)-1; i++ {
		if !chain[i].CanTransitionTo(chain[i+1]) {
			t.Errorf("%s -> %s should be allowed", chain[i], chain[i+1])
		}
	}
}

func TestCanTransitionToTerminalFromAnyNonTerminal(t *testing.T) {
	nonTerminal := []DeliveryStatus{
		StatusCreated, StatusAssigned, StatusPickedUp, StatusInTransit,
		StatusNearby, StatusArrived,
	}
	for _, s := range nonTerminal {
		if !s.CanTransitionTo(StatusFailed) {
			t.Errorf("%s -> FAILED should be allowed", s)
		}
		if !s.CanTransitionTo(StatusCancelled) {
			t.Errorf("%s -> CANCELLED should be allowed", s)
		}
	}
}

func TestCanTransitionToRejectsSkipsAndBackwards(t *testing.T) {
	tests := []struct{ from, to DeliveryStatus }{
		{StatusCreated, StatusDelivered},
		{StatusCreated, StatusInTransit},
		{StatusAssigned, StatusCreated},
		{StatusInTransit, StatusDelivered},
		{StatusNearby, StatusInTransit},
		{StatusDelivered, StatusFailed},
		{StatusCancelled, StatusDelivered},
		{StatusFailed, StatusCancelled},
	}
	for _, tt := range tests {
		if tt.from.CanTransitionTo(tt.to) {
			t.Errorf("%s -> %s should be rejected", tt.from, tt.to)
		}
	}
}

func TestIsTerminal(t *testing.T) {
	for _, s := range []DeliveryStatus{StatusDelivered, StatusFailed, StatusCancelled} {
		if !s.IsTerminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	for _, s := range []DeliveryStatus{StatusCreated, StatusAssigned, StatusInTransit, StatusArrived} {
		if s.IsTerminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}

func TestTrackable(t *testing.T) {
	if StatusCreated.Trackable() {
		t.Error("CREATED should not be trackable (no courier yet)")
	}
	if StatusCancelled.Trackable() {
		t.Error("CANCELLED should not be trackable")
	}
	for _, s := range []DeliveryStatus{StatusAssigned, StatusPickedUp, StatusInTransit, StatusNearby, StatusArrived} {
		if !s.Trackable() {
			t.Errorf("%s should be trackable", s)
		}
	}
}

func TestParseStatus(t *testing.T) {
	if s, ok := ParseStatus("IN_TRANSIT"); !ok || s != StatusInTransit {
		t.Fatalf("ParseStatus(IN_TRANSIT) = %q, %v", s, ok)
	}
	if _, ok := ParseStatus("in_transit"); ok {
		t.Fatal("status parsing should be case-sensitive")
	}
	if _, ok := ParseStatus("TELEPORTED"); ok {
		t.Fatal("unknown status should not parse")
	}
}
