package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTarget(t *testing.T) {
	responder := Responder{ID: "r1", Name: "Dana Ito", Contact: "+15550100001"}

	t.Run("Explicit Address", func(t *testing.T) {
		target := NewTarget(responder, ChannelEmail, "dana@example.com")
		assert.Equal(t, "dana@example.com", target.Address)
		assert.Equal(t, ChannelEmail, target.Channel)
	})

	t.Run("Defaults To Responder Contact", func(t *testing.T) {
		target := NewTarget(responder, ChannelVoice, "")
		assert.Equal(t, "+15550100001", target.Address)
	})
}

func TestResponderValidate(t *testing.T) {
	t.Run("Valid", func(t *testing.T) {
		responder := Responder{ID: "r1", Name: "Dana Ito", Contact: "+15550100001"}
		require.NoError(t, responder.Validate())
	})

	t.Run("Blank Name", func(t *testing.T) {
		responder := Responder{ID: "r1", Contact: "+15550100001"}
		err := responder.Validate()
		require.ErrorIs(t, err, ErrBlankResponderName)
	})

	t.Run("Blank Contact", func(t *testing.T) {
		responder := Responder{ID: "r1", Name: "Dana Ito"}
		err := responder.Validate()
		require.ErrorIs(t, err, ErrBlankResponderContact)
	})
}

func TestEscalationPolicyValidate(t *testing.T) {
	responder := Responder{ID: "r1", Name: "Dana Ito", Contact: "+15550100001"}

	t.Run("Valid", func(t *testing.T) {
		policy := EscalationPolicy{
			Levels: []EscalationLevel{
				{
					Targets:            []Target{NewTarget(responder, ChannelVoice, "")},
					AcknowledgeTimeout: 5 * time.Minute,
				},
			},
		}
		require.NoError(t, policy.Validate())
	})

	t.Run("No Levels", func(t *testing.T) {
		policy := EscalationPolicy{}
		require.ErrorIs(t, policy.Validate(), ErrEmptyPolicy)
	})

	t.Run("Level Without Targets", func(t *testing.T) {
		policy := EscalationPolicy{
			Levels: []EscalationLevel{
				{AcknowledgeTimeout: 5 * time.Minute},
			},
		}
		require.ErrorIs(t, policy.Validate(), ErrEmptyLevel)
	})

	t.Run("Non-Positive Timeout", func(t *testing.T) {
		policy := EscalationPolicy{
			Levels: []EscalationLevel{
				{Targets: []Target{NewTarget(responder, ChannelVoice, "")}},
			},
		}
		require.ErrorIs(t, policy.Validate(), ErrNonPositiveTimeout)
	})

	t.Run("Invalid Target In Second Level", func(t *testing.T) {
		policy := EscalationPolicy{
			Levels: []EscalationLevel{
				{
					Targets:            []Target{NewTarget(responder, ChannelVoice, "")},
					AcknowledgeTimeout: 5 * time.Minute,
				},
				{
					Targets:            []Target{{Responder: Responder{ID: "r2"}, Channel: ChannelSMS}},
					AcknowledgeTimeout: 5 * time.Minute,
				},
			},
		}
		err := policy.Validate()
		require.Error(t, err)
		require.ErrorIs(t, err, ErrBlankResponderName)
	})
}
