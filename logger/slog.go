package logger

import (
	"context"
	"fmt"
	"log/slog"
)

// SLogLogger routes through a standard library slog.Logger.
type SLogLogger struct {
	l *slog.Logger
}

func NewSLogLogger(l *slog.Logger) *SLogLogger {
	if l == nil {
		l = slog.Default()
	}
	return &SLogLogger{l: l}
}

func (s *SLogLogger) Debug(msg string, keyvals ...any) { s.emit(slog.LevelDebug, msg, keyvals) }
func (s *SLogLogger) Info(msg string, keyvals ...any)  { s.emit(slog.LevelInfo, msg, keyvals) }
func (s *SLogLogger) Error(msg string, keyvals ...any) { s.emit(slog.LevelError, msg, keyvals) }

func (s *SLogLogger) emit(level slog.Level, msg string, keyvals []any) {
	attrs := make([]slog.Attr, 0, len(keyvals)/2)
	for i := 0; i < len(keyvals)-1; i += 2 {
		ks := fmt.Sprint(keyvals[i])
		switch vv := keyvals[i+1].(type) {
		case string:
			attrs = append(attrs, slog.String(ks, vv))
		case bool:
			attrs = append(attrs, slog.Bool(ks, vv))
		case int:
			attrs = append(attrs, slog.Int(ks, vv))
		case int64:
			attrs = append(attrs, slog.Int64(ks, vv))
		default:
			attrs = append(attrs, slog.Any(ks, vv))
		}
	}
	s.l.LogAttrs(context.Background(), level, msg, attrs...)
}
