package observability

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// EventType defines the category of the log event.
type EventType string

const (
	EventTypeSession      EventType = "session"
	EventTypePerception   EventType = "perception"
	EventTypeDecision     EventType = "decision"
	EventTypePlan         EventType = "plan"
	EventTypeStep         EventType = "step"
	EventTypeToolCall     EventType = "tool_call"
	EventTypeToolResult   EventType = "tool_result"
	EventTypeIntervention EventType = "intervention"
	EventTypeFault        EventType = "fault"
	EventTypePersistence  EventType = "persistence"
	EventTypePolicyCheck  EventType = "policy_check"
	EventTypeLLM          EventType = "llm"
)

// Event represents a structured log entry.
type Event struct {
	Type      EventType     `json:"type"`
	SessionID string        `json:"session_id,omitempty"`
	Step      *int          `json:"step,omitempty"`
	Level     zapcore.Level `json:"-"`
	Message   string        `json:"message,omitempty"`
	Data      any           `json:"data"`
	Timestamp time.Time     `json:"timestamp"`
}

// Options configures a Logger.
type Options struct {
	Level          string
	LLMLogPath     string
	LLMLogMaxBytes int64
}

// Logger handles structured logging.
type Logger struct {
	zl *zap.Logger

	mu         sync.Mutex
	llmLogPath string
	maxSize    int64
}

// NewLogger builds a production zap logger writing JSON to stderr.
func NewLogger(opts Options) (*Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Sampling = nil
	if opts.Level != "" {
		lvl, err := zapcore.ParseLevel(opts.Level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", opts.Level, err)
		}
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}
	zl, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return newLogger(zl, opts), nil
}

// NewWithCore wraps an existing zap core, e.g. zaptest/observer in tests.
func NewWithCore(core zapcore.Core, opts Options) *Logger {
	return newLogger(zap.New(core), opts)
}

// NewNop returns a logger that discards everything.
func NewNop() *Logger {
	return newLogger(zap.NewNop(), Options{})
}

func newLogger(zl *zap.Logger, opts Options) *Logger {
	maxSize := opts.LLMLogMaxBytes
	if maxSize <= 0 {
		maxSize = 10 * 1024 * 1024 // 10MB
	}
	return &Logger{
		zl:         zl,
		llmLogPath: opts.LLMLogPath,
		maxSize:    maxSize,
	}
}

// Zap exposes the underlying zap logger.
func (l *Logger) Zap() *zap.Logger {
	return l.zl
}

// Sync flushes buffered entries.
func (l *Logger) Sync() error {
	return l.zl.Sync()
}

// Log emits a structured event.
func (l *Logger) Log(evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	msg := evt.Message
	if msg == "" {
		msg = string(evt.Type)
	}

	fields := []zap.Field{zap.String("type", string(evt.Type))}
	if evt.SessionID != "" {
		fields = append(fields, zap.String("session_id", evt.SessionID))
	}
	if evt.Step != nil {
		fields = append(fields, zap.Int("step", *evt.Step))
	}
	if evt.Data != nil {
		fields = append(fields, zap.Any("data", evt.Data))
	}

	if ce := l.zl.Check(evt.Level, msg); ce != nil {
		ce.Write(fields...)
	}

	if evt.Type == EventTypeLLM && l.llmLogPath != "" {
		data, err := json.Marshal(evt)
		if err != nil {
			l.zl.Warn("failed to marshal llm event", zap.Error(err))
			return
		}
		l.writeToFile(data)
	}
}

func (l *Logger) writeToFile(data []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(l.llmLogPath), 0755); err != nil {
		l.zl.Warn("failed to create log directory", zap.Error(err))
		return
	}

	// Check size before writing
	info, err := os.Stat(l.llmLogPath)
	if err == nil && info.Size() > l.maxSize {
		l.rotateLogs()
	}

	f, err := os.OpenFile(l.llmLogPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		l.zl.Warn("failed to open log file", zap.Error(err))
		return
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		l.zl.Warn("failed to write to log file", zap.Error(err))
	}
}

func (l *Logger) rotateLogs() {
	// Simple rotation: keep one .old file
	oldPath := l.llmLogPath + ".old"
	_ = os.Remove(oldPath)
	_ = os.Rename(l.llmLogPath, oldPath)
}

func stepPtr(i int) *int {
	return &i
}

// Helper methods for common events

func (l *Logger) LogSession(sessionID, message string, data any) {
	l.Log(Event{
		Type:      EventTypeSession,
		SessionID: sessionID,
		Level:     zapcore.InfoLevel,
		Message:   message,
		Data:      data,
	})
}

func (l *Logger) LogPerception(sessionID, snapshotType string, verdict any) {
	l.Log(Event{
		Type:      EventTypePerception,
		SessionID: sessionID,
		Level:     zapcore.InfoLevel,
		Message:   "perception result",
		Data: map[string]any{
			"snapshot_type": snapshotType,
			"verdict":       verdict,
		},
	})
}

func (l *Logger) LogDecision(sessionID, mode string, output any) {
	l.Log(Event{
		Type:      EventTypeDecision,
		SessionID: sessionID,
		Level:     zapcore.InfoLevel,
		Message:   "decision output",
		Data: map[string]any{
			"mode":   mode,
			"output": output,
		},
	})
}

func (l *Logger) LogPlan(sessionID string, version int, planText []string) {
	l.Log(Event{
		Type:      EventTypePlan,
		SessionID: sessionID,
		Level:     zapcore.InfoLevel,
		Message:   fmt.Sprintf("plan version %d", version),
		Data:      map[string]any{"version": version, "plan_text": planText},
	})
}

func (l *Logger) LogStep(sessionID string, index int, message string, data any) {
	l.Log(Event{
		Type:      EventTypeStep,
		SessionID: sessionID,
		Step:      stepPtr(index),
		Level:     zapcore.InfoLevel,
		Message:   message,
		Data:      data,
	})
}

func (l *Logger) LogToolCall(sessionID string, step int, tool string, args any) {
	l.Log(Event{
		Type:      EventTypeToolCall,
		SessionID: sessionID,
		Step:      stepPtr(step),
		Level:     zapcore.InfoLevel,
		Message:   "executing tool",
		Data: map[string]any{
			"tool": tool,
			"args": args,
		},
	})
}

func (l *Logger) LogToolResult(sessionID string, step int, tool string, result any, err error) {
	lvl := zapcore.InfoLevel
	data := map[string]any{"tool": tool, "result": result}
	if err != nil {
		lvl = zapcore.WarnLevel
		data["error"] = err.Error()
	}
	l.Log(Event{
		Type:      EventTypeToolResult,
		SessionID: sessionID,
		Step:      stepPtr(step),
		Level:     lvl,
		Message:   "tool finished",
		Data:      data,
	})
}

func (l *Logger) LogIntervention(sessionID string, step int, message string, data any) {
	l.Log(Event{
		Type:      EventTypeIntervention,
		SessionID: sessionID,
		Step:      stepPtr(step),
		Level:     zapcore.WarnLevel,
		Message:   message,
		Data:      data,
	})
}

func (l *Logger) LogFault(sessionID string, step int, err error) {
	l.Log(Event{
		Type:      EventTypeFault,
		SessionID: sessionID,
		Step:      stepPtr(step),
		Level:     zapcore.WarnLevel,
		Message:   "simulated tool failure",
		Data:      map[string]string{"error": err.Error()},
	})
}

func (l *Logger) LogPersistence(sessionID string, err error) {
	l.Log(Event{
		Type:      EventTypePersistence,
		SessionID: sessionID,
		Level:     zapcore.ErrorLevel,
		Message:   "failed to update session",
		Data:      map[string]string{"error": err.Error()},
	})
}

func (l *Logger) LogPolicyCheck(tool, effect, reason string) {
	lvl := zapcore.DebugLevel
	if effect != "allow" {
		lvl = zapcore.WarnLevel
	}
	l.Log(Event{
		Type:    EventTypePolicyCheck,
		Level:   lvl,
		Message: "policy check",
		Data: map[string]string{
			"tool":   tool,
			"effect": effect,
			"reason": reason,
		},
	})
}

func (l *Logger) LogLLM(sessionID, role string, prompt string, response string) {
	l.Log(Event{
		Type:      EventTypeLLM,
		SessionID: sessionID,
		Level:     zapcore.DebugLevel,
		Message:   role,
		Data: map[string]any{
			"prompt":   prompt,
			"response": response,
		},
	})
}
