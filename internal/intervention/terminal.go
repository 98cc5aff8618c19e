package intervention

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
)

// LineReader turns a blocking reader into lines that can be awaited with a context.
// A single reader should be shared by everything that reads from the same input.
type LineReader struct {
	lines chan string
	once  sync.Once
	src   io.Reader
	err   error
	done  chan struct{}
}

func NewLineReader(r io.Reader) *LineReader {
	return &LineReader{
		lines: make(chan string),
		src:   r,
		done:  make(chan struct{}),
	}
}

func (lr *LineReader) start() {
	lr.once.Do(func() {
		go func() {
			defer close(lr.done)
			scanner := bufio.NewScanner(lr.src)
			for scanner.Scan() {
				lr.lines <- scanner.Text()
			}
			lr.err = scanner.Err()
		}()
	})
}

// ReadLine waits for the next line. It returns io.EOF once the input is exhausted.
func (lr *LineReader) ReadLine(ctx context.Context) (string, error) {
	lr.start()
	select {
	case line := <-lr.lines:
		return line, nil
	case <-lr.done:
		if lr.err != nil {
			return "", lr.err
		}
		return "", io.EOF
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// TerminalOperator prompts on out and reads answers from in. Typing "cancel" aborts the request.
type TerminalOperator struct {
	in  *LineReader
	out io.Writer
	mu  sync.Mutex
}

func NewTerminalOperator(in *LineReader, out io.Writer) *TerminalOperator {
	return &TerminalOperator{in: in, out: out}
}

func (t *TerminalOperator) Ask(ctx context.Context, prompt string) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	fmt.Fprintf(t.out, "\n%s\n%s\n> ", strings.Repeat("=", 60), prompt)
	line, err := t.in.ReadLine(ctx)
	if err != nil {
		return "", err
	}
	answer := strings.TrimSpace(line)
	if strings.EqualFold(answer, "cancel") {
		return "", ErrCancelled
	}
	if answer == "" {
		fmt.Fprintln(t.out, "Please enter a response (or 'cancel' to abort).")
	}
	return answer, nil
}
