package models

import "testing"

func TestRunStatusTerminal(t *testing.T) {
	tests := []struct {
		status RunStatus
		want   bool
	}{
		{StatusIdle, false},
		{StatusRunning, false},
		{StatusFinished, true},
		{StatusError, true},
		{StatusAborted, true},
		{RunStatus("bogus"), false},
	}

	for _, tt := range tests {
		if got := tt.status.Terminal(); got != tt.want {
			t.Errorf("Terminal(%q) = %v, want %v", tt.status, got, tt.want)
		}
	}
}
