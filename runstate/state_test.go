package runstate

import (
	"testing"
)

func TestWorkState_IsValid(t *testing.T) {
	tests := []struct {
		state WorkState
		valid bool
	}{
		{WorkQueued, true},
		{WorkExecuting, true},
		{WorkCompleted, true},
		{WorkFailed, true},
		{WorkTimeout, true},
		{WorkState("cancelled"), false},
		{WorkState(""), false},
	}

	for _, tt := range tests {
		t.Run(string(tt.state), func(t *testing.T) {
			if got := tt.state.IsValid(); got != tt.valid {
				t.Errorf("IsValid() = %v, want %v", got, tt.valid)
			}
		})
	}
}

func TestWorkState_IsTerminal(t *testing.T) {
	tests := []struct {
		state    WorkState
		terminal bool
	}{
		{WorkQueued, false},
		{WorkExecuting, false},
		{WorkCompleted, true},
		{WorkFailed, true},
		{WorkTimeout, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.state), func(t *testing.T) {
			if got := tt.state.IsTerminal(); got != tt.terminal {
				t.Errorf("IsTerminal() = %v, want %v", got, tt.terminal)
			}
		})
	}
}

func TestWorkState_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from  WorkState
		to    WorkState
		valid bool
	}{
		{WorkQueued, WorkExecuting, true},
		{WorkQueued, WorkFailed, true},
		{WorkExecuting, WorkCompleted, true},
		{WorkExecuting, WorkFailed, true},
		{WorkExecuting, WorkTimeout, true},
		{WorkFailed, WorkQueued, true},

		{WorkQueued, WorkCompleted, false},
		{WorkExecuting, WorkQueued, false},
		{WorkTimeout, WorkQueued, false},
		{WorkCompleted, WorkQueued, false},
		{WorkCompleted, WorkFailed, false},
		{WorkExecuting, WorkExecuting, false},
	}

	for _, tt := range tests {
		name := string(tt.from) + "->" + string(tt.to)
		t.Run(name, func(t *testing.T) {
			if got := tt.from.CanTransitionTo(tt.to); got != tt.valid {
				t.Errorf("CanTransitionTo() = %v, want %v", got, tt.valid)
			}
		})
	}
}

func TestTransition_Validate(t *testing.T) {
	for _, tr := range ValidTransitions() {
		if err := tr.Validate(); err != nil {
			t.Errorf("Validate(%s->%s) error = %v", tr.From, tr.To, err)
		}
	}

	invalid := []Transition{
		{From: WorkState("bogus"), To: WorkQueued},
		{From: WorkQueued, To: WorkState("bogus")},
		{From: WorkTimeout, To: WorkQueued},
	}
	for _, tr := range invalid {
		if err := tr.Validate(); err == nil {
			t.Errorf("Validate(%s->%s) expected error", tr.From, tr.To)
		}
	}
}

func TestWorkState_Scan(t *testing.T) {
	var s WorkState
	if err := s.Scan("completed"); err != nil || s != WorkCompleted {
		t.Errorf("Scan(string) = %v, %v", s, err)
	}
	if err := s.Scan([]byte("timeout")); err != nil || s != WorkTimeout {
		t.Errorf("Scan([]byte) = %v, %v", s, err)
	}
	if err := s.Scan("nope"); err == nil {
		t.Error("Scan(invalid) expected error")
	}
	if err := s.Scan(42); err == nil {
		t.Error("Scan(int) expected error")
	}

	v, err := WorkQueued.Value()
	if err != nil || v != "queued" {
		t.Errorf("Value() = %v, %v", v, err)
	}
}

func TestToolCallState(t *testing.T) {
	tests := []struct {
		from  ToolCallState
		to    ToolCallState
		valid bool
	}{
		{ToolCallQueued, ToolCallExecuting, true},
		{ToolCallQueued, ToolCallCancelled, true},
		{ToolCallQueued, ToolCallSuccess, false},
		{ToolCallExecuting, ToolCallSuccess, true},
		{ToolCallExecuting, ToolCallError, true},
		{ToolCallExecuting, ToolCallCancelled, true},
		{ToolCallSuccess, ToolCallError, false},
		{ToolCallCancelled, ToolCallExecuting, false},
	}

	for _, tt := range tests {
		name := string(tt.from) + "->" + string(tt.to)
		t.Run(name, func(t *testing.T) {
			if got := tt.from.CanTransitionTo(tt.to); got != tt.valid {
				t.Errorf("CanTransitionTo() = %v, want %v", got, tt.valid)
			}
		})
	}

	if ToolCallExecuting.IsTerminal() {
		t.Error("executing should not be terminal")
	}
	if !ToolCallCancelled.IsTerminal() {
		t.Error("cancelled should be terminal")
	}

	var s ToolCallState
	if err := s.Scan("success"); err != nil || s != ToolCallSuccess {
		t.Errorf("Scan() = %v, %v", s, err)
	}
}
