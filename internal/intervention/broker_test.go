package intervention

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rahul/stepwise/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type scriptedOperator struct {
	mu      sync.Mutex
	answers []string
	err     error
	prompts []string
}

func (s *scriptedOperator) Ask(_ context.Context, prompt string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prompts = append(s.prompts, prompt)
	if len(s.answers) == 0 {
		if s.err != nil {
			return "", s.err
		}
		return "", io.EOF
	}
	a := s.answers[0]
	s.answers = s.answers[1:]
	return a, nil
}

func codeStep(attempts int) *session.Step {
	return &session.Step{
		Index:       1,
		Description: "Fetch the page",
		Type:        session.StepCode,
		Code:        &session.ToolCode{ToolName: "scrape", ToolArguments: map[string]any{"url": "http://x"}},
		Attempts:    attempts,
	}
}

func TestClassify(t *testing.T) {
	nop := &session.Step{Type: session.StepNop}
	assert.Equal(t, KindClarification, Classify(Request{Step: nop, ToolName: "x"}))
	assert.Equal(t, KindToolError, Classify(Request{Step: codeStep(0), ToolName: "scrape"}))
	assert.Equal(t, KindPlanning, Classify(Request{Step: codeStep(0)}))
}

func TestRequestInput_ToolError(t *testing.T) {
	op := &scriptedOperator{answers: []string{"the page says hello"}}
	b := NewBroker(op, 3, nil)
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	b.now = func() time.Time { return fixed }

	step := codeStep(1)
	hi, err := b.RequestInput(context.Background(), Request{
		Step:         step,
		ToolName:     "scrape",
		ToolArgs:     step.ToolArguments(),
		ErrorMessage: "timeout",
	})
	require.NoError(t, err)

	assert.Equal(t, "tool_error", hi.Kind)
	assert.Equal(t, fixed, hi.Timestamp)
	assert.Equal(t, 1, hi.StepIndex)
	assert.Equal(t, "the page says hello", hi.HumanInput)
	assert.Equal(t, 2, hi.AttemptNumber)
	assert.Equal(t, 2, hi.LifelinesRemaining)
	assert.True(t, hi.WasSuccessful)
	assert.Nil(t, hi.NextStepDecision)

	require.Len(t, op.prompts, 1)
	p := op.prompts[0]
	assert.Contains(t, p, "Tool: scrape")
	assert.Contains(t, p, "Arguments: {url=http://x}")
	assert.Contains(t, p, "Error: timeout")
	assert.Contains(t, p, "Attempt: 2 of 3")
	assert.Contains(t, p, "Lifelines remaining: 2")
}

func TestRequestInput_ReasksOnEmpty(t *testing.T) {
	op := &scriptedOperator{answers: []string{"", "   ", "go left"}}
	b := NewBroker(op, 3, nil)

	hi, err := b.RequestInput(context.Background(), Request{Step: codeStep(2), PlanText: []string{"1. a", "2. b"}})
	require.NoError(t, err)
	assert.Equal(t, "planning", hi.Kind)
	assert.Equal(t, "go left", hi.HumanInput)
	assert.Len(t, op.prompts, 3)
	assert.Contains(t, op.prompts[0], "Current plan:")
}

func TestRequestInput_ErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind ErrorKind
	}{
		{"cancel", ErrCancelled, ErrorCancelled},
		{"eof", io.EOF, ErrorCancelled},
		{"ctx", context.Canceled, ErrorCancelled},
		{"other", errors.New("network down"), ErrorGeneral},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBroker(&scriptedOperator{err: tt.err}, 3, nil)
			_, err := b.RequestInput(context.Background(), Request{Step: codeStep(0), ToolName: "scrape"})

			var ie *InterventionError
			require.ErrorAs(t, err, &ie)
			assert.Equal(t, tt.kind, ie.Kind)
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestRequestInput_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	op := &scriptedOperator{answers: []string{"never read"}}
	_, err := NewBroker(op, 3, nil).RequestInput(ctx, Request{Step: codeStep(0)})

	var ie *InterventionError
	require.ErrorAs(t, err, &ie)
	assert.True(t, ie.Cancelled())
	assert.Empty(t, op.prompts)
}

type blockingOperator struct {
	entered chan struct{}
	release chan struct{}
}

func (o *blockingOperator) Ask(ctx context.Context, _ string) (string, error) {
	close(o.entered)
	<-o.release
	return "ok", nil
}

func TestRequestInput_NotReentrant(t *testing.T) {
	op := &blockingOperator{entered: make(chan struct{}), release: make(chan struct{})}
	b := NewBroker(op, 3, nil)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := b.RequestInput(context.Background(), Request{Step: codeStep(0)})
		assert.NoError(t, err)
	}()
	<-op.entered

	_, err := b.RequestInput(context.Background(), Request{Step: codeStep(0)})
	var ie *InterventionError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, ErrorGeneral, ie.Kind)
	assert.ErrorIs(t, err, ErrBusy)

	close(op.release)
	wg.Wait()
}

func TestPrompt_Clarification(t *testing.T) {
	b := NewBroker(&scriptedOperator{}, 3, nil)
	step := &session.Step{Index: 0, Description: "Which city?", Type: session.StepNop}
	p := b.Prompt(KindClarification, Request{Step: step, PlanText: []string{"0. ask"}, ErrorMessage: "Which city?"})

	assert.True(t, strings.HasPrefix(p, "Clarification Needed"))
	assert.Contains(t, p, "Plan context: 0. ask")
	assert.Contains(t, p, "Attempt: 1 of 3")
	assert.True(t, strings.HasSuffix(p, "Please clarify:"))
}

func TestTerminalOperator(t *testing.T) {
	in := NewLineReader(strings.NewReader("  Paris  \ncancel\n"))
	var out bytes.Buffer
	op := NewTerminalOperator(in, &out)

	answer, err := op.Ask(context.Background(), "Which city?")
	require.NoError(t, err)
	assert.Equal(t, "Paris", answer)
	assert.Contains(t, out.String(), "Which city?")

	_, err = op.Ask(context.Background(), "Again?")
	assert.ErrorIs(t, err, ErrCancelled)

	_, err = op.Ask(context.Background(), "Once more?")
	assert.ErrorIs(t, err, io.EOF)
}

func TestTerminalOperator_ThroughBroker(t *testing.T) {
	in := NewLineReader(strings.NewReader("\n42\n"))
	var out bytes.Buffer
	b := NewBroker(NewTerminalOperator(in, &out), 3, nil)

	hi, err := b.RequestInput(context.Background(), Request{Step: codeStep(0), ToolName: "calc"})
	require.NoError(t, err)
	assert.Equal(t, "42", hi.HumanInput)
	assert.Contains(t, out.String(), "Please enter a response")

	// Drain so the reader goroutine exits.
	_, err = in.ReadLine(context.Background())
	assert.ErrorIs(t, err, io.EOF)
}

func TestLineReader_ContextCancel(t *testing.T) {
	pr, pw := io.Pipe()
	in := NewLineReader(pr)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := in.ReadLine(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, pw.Close())
	_, err = in.ReadLine(context.Background())
	assert.ErrorIs(t, err, io.EOF)
}
