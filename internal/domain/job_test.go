package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestJobStatusIsTerminal(t *testing.T) {
	assert.True(t, JobStatusCompleted.IsTerminal())
	assert.True(t, JobStatusFailed.IsTerminal())
	assert.False(t, JobStatusQueued.IsTerminal())
	assert.False(t, JobStatusProcessing.IsTerminal())
	assert.False(t, JobStatusUnknown.IsTerminal())
	assert.False(t, JobStatus("IN_PROGRESS").IsTerminal())
}

func TestParseStatus(t *testing.T) {
	tests := []struct {
		raw  string
		want JobStatus
	}{
		{raw: "", want: JobStatusUnknown},
		{raw: "   ", want: JobStatusUnknown},
		{raw: "QUEUED", want: JobStatusQueued},
		{raw: " COMPLETED\n", want: JobStatusCompleted},
		{raw: "IN_QUEUE", want: JobStatus("IN_QUEUE")},
	}
	for _, tt := range tests {
		got := ParseStatus(tt.raw)
		assert.Equal(t, tt.want, got, "raw=%q", tt.raw)
	}
	assert.False(t, JobStatus("IN_QUEUE").Known())
	assert.True(t, JobStatusUnknown.Known())
}
