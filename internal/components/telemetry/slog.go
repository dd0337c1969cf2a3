package telemetry

import (
	"fmt"
	"log/slog"
)

// SlogAPI reports through a slog logger, slog.Default() when Logger is nil.
type SlogAPI struct {
	Logger *slog.Logger
}

func (s SlogAPI) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

// attrs flattens params into params.N attributes, errors are logged by message.
func attrs(head []any, params []any) []any {
	out := append([]any{}, head...)
	for i, p := range params {
		key := fmt.Sprintf("params.%d", i)
		if err, ok := p.(error); ok {
			out = append(out, key, err.Error())
			continue
		}
		out = append(out, key, p)
	}
	return out
}

func (s SlogAPI) ReportBroken(id string, params ...any) {
	s.logger().Error("broken component", attrs([]any{"id", id}, params)...)
}

func (s SlogAPI) ReportWarning(id string, params ...any) {
	s.logger().Warn("warning", attrs([]any{"id", id}, params)...)
}

func (s SlogAPI) ReportDebug(message string, params ...any) {
	s.logger().Debug(message, attrs(nil, params)...)
}

func (s SlogAPI) ReportCount(id string, count int64) {
	s.logger().Info("count", "id", id, "n", count)
}
