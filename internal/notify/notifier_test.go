package notify

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/t77yq/oncall/internal/model"
)

// stubNotifier counts deliveries and optionally fails
type stubNotifier struct {
	calls int
	err   error
}

func (s *stubNotifier) Notify(alert *model.Alert, assignment *model.Assignment) error {
	s.calls++
	return s.err
}

func testPage() (*model.Alert, *model.Assignment) {
	responder := model.Responder{ID: "r1", Name: "Dana Ito", Contact: "+15550100001"}
	assignment := &model.Assignment{
		ID:           "as1",
		Target:       model.NewTarget(responder, model.ChannelVoice, ""),
		LevelIndex:   0,
		DispatchedAt: time.Now(),
		Deadline:     time.Now().Add(5 * time.Minute),
		AckToken:     "token-1",
	}
	alert := &model.Alert{
		ID:          "a1",
		Message:     "disk full",
		Priority:    model.PriorityHigh,
		Assignments: []*model.Assignment{assignment},
		Status:      model.AlertStatusPending,
	}
	return alert, assignment
}

func TestComposite(t *testing.T) {
	alert, assignment := testPage()

	t.Run("Fans Out To Every Delegate", func(t *testing.T) {
		first := &stubNotifier{}
		second := &stubNotifier{}
		composite := NewComposite(zap.NewNop(), first, second)

		require.NoError(t, composite.Notify(alert, assignment))
		assert.Equal(t, 1, first.calls)
		assert.Equal(t, 1, second.calls)
	})

	t.Run("Delegate Failure Does Not Mask The Rest", func(t *testing.T) {
		failing := &stubNotifier{err: errors.New("provider down")}
		healthy := &stubNotifier{}
		composite := NewComposite(zap.NewNop(), failing, healthy)

		require.NoError(t, composite.Notify(alert, assignment))
		assert.Equal(t, 1, failing.calls)
		assert.Equal(t, 1, healthy.calls)
	})

	t.Run("Add Appends A Delegate", func(t *testing.T) {
		composite := NewComposite(zap.NewNop())
		late := &stubNotifier{}
		composite.Add(late)

		require.NoError(t, composite.Notify(alert, assignment))
		assert.Equal(t, 1, late.calls)
	})
}

func TestConsole(t *testing.T) {
	alert, assignment := testPage()
	console := NewConsole(zap.NewNop())
	require.NoError(t, console.Notify(alert, assignment))
}
