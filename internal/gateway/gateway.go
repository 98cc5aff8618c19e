// Package gateway reaches a human operator over a chat service when a session needs help.
package gateway

import (
	"context"
	"fmt"
	"strings"

	"github.com/rahul/stepwise/internal/intervention"
)

// Messenger defines the interface for communication gateways (Telegram, Discord, etc.)
type Messenger interface {
	// Start begins delivering operator messages to Replies.
	Start(ctx context.Context) error
	// Send posts a message to the configured chat.
	Send(text string) error
	// Replies yields operator messages in arrival order.
	Replies() <-chan string
	// Stop gracefully shuts down the gateway
	Stop() error
}

// Operator asks questions over a Messenger and waits for the next reply.
type Operator struct {
	m Messenger
}

var _ intervention.Operator = (*Operator)(nil)

func NewOperator(m Messenger) *Operator {
	return &Operator{m: m}
}

func (o *Operator) Ask(ctx context.Context, prompt string) (string, error) {
	// Messages that arrived before the question are not answers to it.
	for drained := false; !drained; {
		select {
		case _, ok := <-o.m.Replies():
			drained = !ok
		default:
			drained = true
		}
	}

	if err := o.m.Send(prompt + "\n\nReply with your answer, or 'cancel' to abort."); err != nil {
		return "", fmt.Errorf("send prompt: %w", err)
	}

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case reply, ok := <-o.m.Replies():
		if !ok {
			return "", intervention.ErrCancelled
		}
		reply = strings.TrimSpace(reply)
		if strings.EqualFold(reply, "cancel") {
			return "", intervention.ErrCancelled
		}
		return reply, nil
	}
}
