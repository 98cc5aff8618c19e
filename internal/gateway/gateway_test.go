package gateway

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rahul/stepwise/internal/intervention"
	"github.com/rahul/stepwise/internal/observability"
	"github.com/rahul/stepwise/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// chatMessenger answers each sent prompt with the next scripted reply.
type chatMessenger struct {
	mu      sync.Mutex
	sent    []string
	script  []string
	replies chan string
	sendErr error
}

func newChatMessenger(script ...string) *chatMessenger {
	return &chatMessenger{script: script, replies: make(chan string, 16)}
}

func (c *chatMessenger) Start(context.Context) error { return nil }
func (c *chatMessenger) Stop() error                 { return nil }
func (c *chatMessenger) Replies() <-chan string      { return c.replies }

func (c *chatMessenger) Send(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return c.sendErr
	}
	c.sent = append(c.sent, text)
	if len(c.script) > 0 {
		c.replies <- c.script[0]
		c.script = c.script[1:]
	}
	return nil
}

func TestOperator_Ask(t *testing.T) {
	m := newChatMessenger("  42  ")
	m.replies <- "stale message"

	got, err := NewOperator(m).Ask(context.Background(), "What is the answer?")
	require.NoError(t, err)
	assert.Equal(t, "42", got)
	require.Len(t, m.sent, 1)
	assert.Contains(t, m.sent[0], "What is the answer?")
	assert.Contains(t, m.sent[0], "'cancel'")
}

func TestOperator_Cancel(t *testing.T) {
	_, err := NewOperator(newChatMessenger("Cancel")).Ask(context.Background(), "q")
	assert.ErrorIs(t, err, intervention.ErrCancelled)

	closed := newChatMessenger()
	close(closed.replies)
	_, err = NewOperator(closed).Ask(context.Background(), "q")
	assert.ErrorIs(t, err, intervention.ErrCancelled)
}

func TestOperator_ContextAndSendErrors(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := NewOperator(newChatMessenger()).Ask(ctx, "q")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	m := newChatMessenger()
	m.sendErr = errors.New("chat not found")
	_, err = NewOperator(m).Ask(context.Background(), "q")
	assert.ErrorContains(t, err, "chat not found")
}

func TestOperator_ThroughBroker(t *testing.T) {
	m := newChatMessenger("", "the file is empty")
	b := intervention.NewBroker(NewOperator(m), 3, observability.NewNop())

	step := &session.Step{Index: 2, Type: session.StepCode, Code: &session.ToolCode{ToolName: "filesystem"}}
	hi, err := b.RequestInput(context.Background(), intervention.Request{SessionID: "s", Step: step, ToolName: "filesystem", ErrorMessage: "read failed"})
	require.NoError(t, err)
	assert.Equal(t, "the file is empty", hi.HumanInput)
	assert.Equal(t, string(intervention.KindToolError), hi.Kind)
	assert.Len(t, m.sent, 2, "a blank reply is asked again")
}

func TestNewTelegram_InvalidChatID(t *testing.T) {
	_, err := NewTelegram("token", "not-a-number", nil)
	assert.ErrorContains(t, err, "invalid chat ID")
}

func TestNewDiscord_RequiresChannel(t *testing.T) {
	_, err := NewDiscord("token", "", nil)
	assert.ErrorContains(t, err, "channel id is required")

	d, err := NewDiscord("token", "123", nil)
	require.NoError(t, err)
	assert.Equal(t, "Bot token", d.Session.Token)
}
