package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testAlert(now time.Time) *Alert {
	primary := Responder{ID: "r1", Name: "Dana Ito", Contact: "+15550100001"}
	secondary := Responder{ID: "r2", Name: "Marcus Webb", Contact: "+15550100002"}

	return &Alert{
		ID:       "a1",
		Message:  "disk full",
		Priority: PriorityHigh,
		Policy: EscalationPolicy{
			Levels: []EscalationLevel{
				{Targets: []Target{NewTarget(primary, ChannelVoice, "")}, AcknowledgeTimeout: 5 * time.Minute},
				{Targets: []Target{NewTarget(secondary, ChannelVoice, "")}, AcknowledgeTimeout: 5 * time.Minute},
			},
		},
		Assignments: []*Assignment{
			{
				ID:           "as1",
				Target:       NewTarget(primary, ChannelVoice, ""),
				LevelIndex:   0,
				DispatchedAt: now,
				Deadline:     now.Add(5 * time.Minute),
				AckToken:     "token-1",
			},
			{
				ID:           "as2",
				Target:       NewTarget(secondary, ChannelVoice, ""),
				LevelIndex:   1,
				DispatchedAt: now.Add(5 * time.Minute),
				Deadline:     now.Add(10 * time.Minute),
				AckToken:     "token-2",
			},
		},
		Status:            AlertStatusPending,
		CurrentLevelIndex: 1,
		CreatedAt:         now,
	}
}

func TestAlertLookups(t *testing.T) {
	now := time.Now()
	alert := testAlert(now)

	t.Run("AssignmentsAtLevel", func(t *testing.T) {
		level0 := alert.AssignmentsAtLevel(0)
		require.Len(t, level0, 1)
		assert.Equal(t, "as1", level0[0].ID)

		assert.Empty(t, alert.AssignmentsAtLevel(2))
	})

	t.Run("AssignmentByToken", func(t *testing.T) {
		found := alert.AssignmentByToken("token-2")
		require.NotNil(t, found)
		assert.Equal(t, "as2", found.ID)

		assert.Nil(t, alert.AssignmentByToken("no-such-token"))
	})

	t.Run("AssignmentByResponder", func(t *testing.T) {
		found := alert.AssignmentByResponder("r1")
		require.NotNil(t, found)
		assert.Equal(t, "as1", found.ID)

		assert.Nil(t, alert.AssignmentByResponder("r9"))
	})
}

func TestAlertClone(t *testing.T) {
	now := time.Now()
	alert := testAlert(now)
	ackAt := now.Add(2 * time.Minute)
	responder := alert.Assignments[0].Target.Responder
	alert.Assignments[0].AcknowledgedAt = &ackAt
	alert.Status = AlertStatusAcknowledged
	alert.AcknowledgedBy = &responder
	alert.AcknowledgedAt = &ackAt

	clone := alert.Clone()

	require.Equal(t, alert.ID, clone.ID)
	require.Len(t, clone.Assignments, 2)
	require.NotNil(t, clone.AcknowledgedBy)
	assert.Equal(t, "r1", clone.AcknowledgedBy.ID)

	// Mutating the clone must not leak into the original
	laterAck := now.Add(30 * time.Minute)
	clone.Assignments[1].AcknowledgedAt = &laterAck
	clone.AcknowledgedBy.ID = "changed"
	*clone.AcknowledgedAt = laterAck

	assert.Nil(t, alert.Assignments[1].AcknowledgedAt)
	assert.Equal(t, "r1", alert.AcknowledgedBy.ID)
	assert.True(t, alert.AcknowledgedAt.Equal(ackAt))
}

func TestAssignmentAcknowledged(t *testing.T) {
	assignment := &Assignment{ID: "as1"}
	assert.False(t, assignment.Acknowledged())

	now := time.Now()
	assignment.AcknowledgedAt = &now
	assert.True(t, assignment.Acknowledged())
}
