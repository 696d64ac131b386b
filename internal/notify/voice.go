package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/t77yq/oncall/internal/model"
)

// ErrBlankVoiceAddress is returned when a voice target has no phone number
var ErrBlankVoiceAddress = errors.New("voice target address is blank")

type instructionKind int

const (
	instructionHostedURL instructionKind = iota
	instructionInlineScript
)

// CallInstruction tells the voice provider how to drive the call: either a
// hosted URL the provider fetches instructions from, or an inline script
// document.
type CallInstruction struct {
	kind  instructionKind
	value string
}

// HostedCallback builds an instruction pointing the provider at a URL
func HostedCallback(url string) CallInstruction {
	return CallInstruction{kind: instructionHostedURL, value: url}
}

// InlineScript builds an instruction carrying the script document inline
func InlineScript(document string) CallInstruction {
	return CallInstruction{kind: instructionInlineScript, value: document}
}

// HostedURL returns the callback URL and whether this instruction carries one
func (i CallInstruction) HostedURL() (string, bool) {
	return i.value, i.kind == instructionHostedURL
}

// Script returns the inline document and whether this instruction carries one
func (i CallInstruction) Script() (string, bool) {
	return i.value, i.kind == instructionInlineScript
}

// CallPlacer issues an outbound call and returns the provider's call ID
type CallPlacer interface {
	PlaceCall(ctx context.Context, from, to string, instruction CallInstruction) (string, error)
}

// InstructionProvider produces the call instruction for an assignment,
// typically the hosted prompt URL carrying the assignment's ack token.
type InstructionProvider func(alert *model.Alert, assignment *model.Assignment) CallInstruction

// Voice places outbound phone calls for voice-channel targets. Targets on
// other channels are ignored.
type Voice struct {
	logger      *zap.Logger
	placer      CallPlacer
	from        string
	instruction InstructionProvider
	timeout     time.Duration

	mu      sync.Mutex
	callIDs map[string]string
}

// NewVoice creates a voice notifier. from is the outbound caller identity in
// E.164 form.
func NewVoice(placer CallPlacer, from string, instruction InstructionProvider, logger *zap.Logger) *Voice {
	return &Voice{
		logger:      logger.Named("voice"),
		placer:      placer,
		from:        from,
		instruction: instruction,
		timeout:     15 * time.Second,
		callIDs:     make(map[string]string),
	}
}

// Notify implements Notifier
func (v *Voice) Notify(alert *model.Alert, assignment *model.Assignment) error {
	if assignment.Target.Channel != model.ChannelVoice {
		return nil
	}
	if assignment.Target.Address == "" {
		return ErrBlankVoiceAddress
	}

	instruction := v.instruction(alert, assignment)

	ctx, cancel := context.WithTimeout(context.Background(), v.timeout)
	defer cancel()

	callID, err := v.placer.PlaceCall(ctx, v.from, assignment.Target.Address, instruction)
	if err != nil {
		return err
	}

	v.mu.Lock()
	v.callIDs[assignment.ID] = callID
	v.mu.Unlock()

	v.logger.Info("Placed voice call",
		zap.String("alert_id", alert.ID),
		zap.String("assignment_id", assignment.ID),
		zap.String("to", assignment.Target.Address),
		zap.String("call_id", callID))

	return nil
}

// CallID returns the provider call ID recorded for an assignment
func (v *Voice) CallID(assignmentID string) (string, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	id, ok := v.callIDs[assignmentID]
	return id, ok
}
