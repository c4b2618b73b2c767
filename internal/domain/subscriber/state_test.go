package subscriber

import "testing"

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to State
		want     bool
	}{
		{StateConnecting, StateOpen, true},
		{StateConnecting, StateClosed, true},
		{StateOpen, StateClosed, true},
		{StateOpen, StateConnecting, false},
		{StateOpen, StateOpen, false},
		{StateClosed, StateOpen, false},
		{StateClosed, StateConnecting, false},
		{StateClosed, StateClosed, false},
		{StateConnecting, StateConnecting, false},
	}
	for _, tt := range tests {
		t.Run(tt.from.String()+"->"+tt.to.String(), func(t *testing.T) {
			if got := tt.from.CanTransition(tt.to); got != tt.want {
				t.Errorf("CanTransition = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStateString(t *testing.T) {
	if StateOpen.String() != "OPEN" {
		t.Errorf("StateOpen.String() = %q", StateOpen.String())
	}
	if State(99).String() != "UNKNOWN" {
		t.Errorf("State(99).String() = %q", State(99).String())
	}
}
