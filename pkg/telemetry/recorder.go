package telemetry

import (
	"log/slog"
	"time"
)

// ToolResult describes one tool invocation for telemetry.
type ToolResult struct {
	OK        bool
	Latency   time.Duration
	ErrorType string
}

// ModelResult describes one model call for telemetry.
type ModelResult struct {
	OK        bool
	Latency   time.Duration
	TokensIn  int64
	TokensOut int64
}

// Recorder is the contract the harness reports latency, token usage and
// success/failure through. Implementations are best-effort collaborators: a
// misbehaving recorder must never abort a harness run, which Protect
// enforces at the call boundary.
type Recorder interface {
	RecordToolResult(turnID, toolName string, result ToolResult)
	RecordModelResult(turnID, modelName string, result ModelResult)
}

// NopRecorder discards everything.
type NopRecorder struct{}

func (NopRecorder) RecordToolResult(string, string, ToolResult)   {}
func (NopRecorder) RecordModelResult(string, string, ModelResult) {}

// LogRecorder writes telemetry to structured logs.
type LogRecorder struct {
	logger *slog.Logger
}

func NewLogRecorder(logger *slog.Logger) *LogRecorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogRecorder{logger: logger}
}

func (r *LogRecorder) RecordToolResult(turnID, toolName string, result ToolResult) {
	r.logger.Info("[Telemetry] tool result",
		"turn_id", turnID,
		"tool", toolName,
		"ok", result.OK,
		"latency_ms", result.Latency.Milliseconds(),
		"error_type", result.ErrorType)
}

func (r *LogRecorder) RecordModelResult(turnID, modelName string, result ModelResult) {
	r.logger.Info("[Telemetry] model result",
		"turn_id", turnID,
		"model", modelName,
		"ok", result.OK,
		"latency_ms", result.Latency.Milliseconds(),
		"tokens_in", result.TokensIn,
		"tokens_out", result.TokensOut)
}

type protectedRecorder struct {
	inner Recorder
}

// Protect wraps a recorder so that panics inside it are swallowed and
// logged. The harness records through this wrapper.
func Protect(r Recorder) Recorder {
	if r == nil {
		return NopRecorder{}
	}
	return &protectedRecorder{inner: r}
}

func (p *protectedRecorder) RecordToolResult(turnID, toolName string, result ToolResult) {
	defer recoverRecorder("tool")
	p.inner.RecordToolResult(turnID, toolName, result)
}

func (p *protectedRecorder) RecordModelResult(turnID, modelName string, result ModelResult) {
	defer recoverRecorder("model")
	p.inner.RecordModelResult(turnID, modelName, result)
}

func recoverRecorder(kind string) {
	if r := recover(); r != nil {
		slog.Warn("[Telemetry] recorder panicked, dropping event", "kind", kind, "panic", r)
	}
}
