package pipeline

import (
	"testing"

	"github.com/finbrief/finbrief/constants"
)

func TestDeriveRunStatus(t *testing.T) {
	tests := []struct {
		name      string
		attempted int
		succeeded int
		failed    int
		want      constants.RunStatus
	}{
		{"nothing attempted", 0, 0, 0, constants.RunStatusFailed},
		{"all succeeded", 5, 5, 0, constants.RunStatusCompleted},
		{"single success", 1, 1, 0, constants.RunStatusCompleted},
		{"mixed outcome", 5, 3, 2, constants.RunStatusPartial},
		{"one failure among many", 5, 4, 1, constants.RunStatusPartial},
		{"all failed", 5, 0, 5, constants.RunStatusFailed},
		{"single failure", 1, 0, 1, constants.RunStatusFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DeriveRunStatus(tt.attempted, tt.succeeded, tt.failed)
			if got != tt.want {
				t.Errorf("DeriveRunStatus(%d, %d, %d) = %s, want %s",
					tt.attempted, tt.succeeded, tt.failed, got, tt.want)
			}
		})
	}
}
