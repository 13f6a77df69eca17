package session

import (
	"context"
	"errors"
	"testing"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	live := context.Background()
	done, cancel := context.WithCancel(live)
	cancel()

	tests := []struct {
		name      string
		parent    context.Context
		err       error
		transient bool
	}{
		{"network error", live, netErr("submit answer"), true},
		{"attempt deadline", live, context.DeadlineExceeded, true},
		{"wrapped attempt deadline", live, errors.Join(errors.New("post"), context.DeadlineExceeded), true},
		{"parent cancelled", done, context.Canceled, false},
		{"parent gone during deadline", done, context.DeadlineExceeded, false},
		{"rejected", live, errors.New("bad request"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classify(tt.parent, jobAnswer, tt.err)
			var perm *backoff.PermanentError
			assert.Equal(t, !tt.transient, errors.As(err, &perm))
			assert.Equal(t, tt.transient, IsNetwork(err))
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestSummaryApply_ServerXPCoversDuplicates(t *testing.T) {
	// A duplicate reply earns nothing locally; the completion verdict
	// restores the XP the server credited for the first delivery.
	sum := &Summary{Stats: Stats{QuestionsAnswered: 1, CorrectCount: 1}}
	sum.apply(&ServerResult{Score: 100, Passed: true, CorrectCount: 1, TotalQuestions: 1, XPEarned: 5})
	assert.True(t, sum.Verified)
	assert.Equal(t, 5, sum.Stats.XPEarned)

	sum.apply(&ServerResult{Score: 100, Passed: true, XPEarned: 2})
	assert.Equal(t, 5, sum.Stats.XPEarned)
}
