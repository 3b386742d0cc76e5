package models_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docket/internal/workspace/models"
	dErrors "docket/pkg/domain-errors"
)

func TestNext(t *testing.T) {
	valid := map[models.State]map[models.Event]models.State{
		models.StateReceived: {
			models.EventTriage: models.StateTriaged,
			models.EventLock:   models.StateLocked,
		},
		models.StateTriaged: {
			models.EventBeginAnalysis: models.StateAnalyzing,
			models.EventLock:          models.StateLocked,
		},
		models.StateAnalyzing: {
			models.EventBlock:     models.StateBlocked,
			models.EventMarkReady: models.StateReady,
			models.EventLock:      models.StateLocked,
		},
		models.StateBlocked: {
			models.EventUnblock: models.StateAnalyzing,
			models.EventLock:    models.StateLocked,
		},
		models.StateReady: {
			models.EventBeginAnalysis: models.StateAnalyzing,
			models.EventLock:          models.StateLocked,
		},
		models.StateLocked: {
			models.EventUnlock: models.StateAnalyzing,
		},
	}

	// Walk the full cross product so no (state, event) pair slips through
	// unvalidated in either direction.
	for _, state := range models.States() {
		for _, event := range models.Events() {
			expected, ok := valid[state][event]
			next, err := models.Next(state, event)
			if ok {
				require.NoErrorf(t, err, "(%s, %s)", state, event)
				assert.Equalf(t, expected, next, "(%s, %s)", state, event)
				assert.True(t, models.CanTransition(state, event))
			} else {
				require.Errorf(t, err, "(%s, %s)", state, event)
				assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
				assert.False(t, models.CanTransition(state, event))
			}
		}
	}
}

func TestLockReachableFromEveryLiveState(t *testing.T) {
	for _, state := range models.States() {
		if state == models.StateLocked {
			assert.False(t, models.CanTransition(state, models.EventLock))
			continue
		}
		assert.Truef(t, models.CanTransition(state, models.EventLock), "state %s", state)
	}
}

func TestStateValid(t *testing.T) {
	for _, state := range models.States() {
		assert.True(t, state.Valid())
	}
	assert.False(t, models.State("archived").Valid())
	assert.False(t, models.State("").Valid())
}
