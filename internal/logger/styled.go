// internal/logger/styled.go
package logger

import (
	"fmt"
	"log/slog"

	"github.com/pterm/pterm"

	"github.com/bdurand/async-http-pool/theme"
)

// StyledLogger wraps slog.Logger with theme-aware formatting methods
type StyledLogger struct {
	logger *slog.Logger
	theme  *theme.Theme
}

// NewStyledLogger creates a new styled logger with the given theme
func NewStyledLogger(logger *slog.Logger, theme *theme.Theme) *StyledLogger {
	return &StyledLogger{
		logger: logger,
		theme:  theme,
	}
}

func (sl *StyledLogger) Debug(msg string, args ...any) {
	sl.logger.Debug(msg, args...)
}

func (sl *StyledLogger) Info(msg string, args ...any) {
	sl.logger.Info(msg, args...)
}

func (sl *StyledLogger) Warn(msg string, args ...any) {
	sl.logger.Warn(msg, args...)
}

func (sl *StyledLogger) Error(msg string, args ...any) {
	sl.logger.Error(msg, args...)
}

// InfoWithCount styles a trailing count, e.g. "queue drained (12)"
func (sl *StyledLogger) InfoWithCount(msg string, count int, args ...any) {
	styledMsg := fmt.Sprintf("%s %s", msg, pterm.Style{sl.theme.Counts}.Sprint("(", count, ")"))
	sl.logger.Info(styledMsg, args...)
}

// InfoWithOrigin styles a client-pool origin (scheme://host:port) inline in the message
func (sl *StyledLogger) InfoWithOrigin(msg string, origin string, args ...any) {
	styledMsg := fmt.Sprintf("%s %s", msg, pterm.Style{sl.theme.Origin}.Sprint(origin))
	sl.logger.Info(styledMsg, args...)
}

func (sl *StyledLogger) WarnWithOrigin(msg string, origin string, args ...any) {
	styledMsg := fmt.Sprintf("%s %s", msg, pterm.Style{sl.theme.Origin}.Sprint(origin))
	sl.logger.Warn(styledMsg, args...)
}

func (sl *StyledLogger) ErrorWithOrigin(msg string, origin string, args ...any) {
	styledMsg := fmt.Sprintf("%s %s", msg, pterm.Style{sl.theme.Origin}.Sprint(origin))
	sl.logger.Error(styledMsg, args...)
}

// InfoLifecycleTransition logs a processor state change coloured by the destination state.
func (sl *StyledLogger) InfoLifecycleTransition(msg string, from, to string, args ...any) {
	var stateColor pterm.Color
	switch to {
	case "running":
		stateColor = sl.theme.StateRunning
	case "draining", "stopping":
		stateColor = sl.theme.StateDraining
	default:
		stateColor = sl.theme.StateStopped
	}
	styledMsg := fmt.Sprintf("%s %s -> %s", msg, from, pterm.Style{stateColor}.Sprint(to))
	sl.logger.Info(styledMsg, args...)
}

// InfoClientHealthy logs a client pool entry recovering/passing its health check.
func (sl *StyledLogger) InfoClientHealthy(msg string, origin string, args ...any) {
	styledMsg := fmt.Sprintf("%s %s", msg, pterm.Style{sl.theme.ClientHealthy}.Sprint(origin))
	sl.logger.Info(styledMsg, args...)
}

// WarnClientUnhealthy logs a client pool entry accumulating transport failures.
func (sl *StyledLogger) WarnClientUnhealthy(msg string, origin string, args ...any) {
	styledMsg := fmt.Sprintf("%s %s", msg, pterm.Style{sl.theme.ClientUnhealthy}.Sprint(origin))
	sl.logger.Warn(styledMsg, args...)
}

// WarnClientRetired logs a client pool entry being evicted by its circuit breaker.
func (sl *StyledLogger) WarnClientRetired(msg string, origin string, args ...any) {
	styledMsg := fmt.Sprintf("%s %s", msg, pterm.Style{sl.theme.ClientRetired}.Sprint(origin))
	sl.logger.Warn(styledMsg, args...)
}

// InfoWithQueueStats reports queue depth / in-flight count / capacity as styled numbers.
func (sl *StyledLogger) InfoWithQueueStats(msg string, queued, inFlight, capacity int64, args ...any) {
	queuedStyled := pterm.Style{sl.theme.Numbers}.Sprint(queued)
	inFlightStyled := pterm.Style{sl.theme.Numbers}.Sprint(inFlight)
	capacityStyled := pterm.Style{sl.theme.Numbers}.Sprint(capacity)

	allArgs := make([]any, 0, len(args)+6)
	allArgs = append(allArgs, args...)
	allArgs = append(allArgs,
		"queued", queuedStyled,
		"in_flight", inFlightStyled,
		"capacity", capacityStyled,
	)

	sl.logger.Info(msg, allArgs...)
}

// GetUnderlying returns the underlying slog.Logger for cases where direct access is needed
func (sl *StyledLogger) GetUnderlying() *slog.Logger {
	return sl.logger
}

// WithAttrs creates a new StyledLogger with additional structured attributes
func (sl *StyledLogger) WithAttrs(attrs ...slog.Attr) *StyledLogger {
	args := make([]any, 0, len(attrs)*2)
	for _, attr := range attrs {
		args = append(args, attr.Key, attr.Value)
	}

	return &StyledLogger{
		logger: sl.logger.With(args...),
		theme:  sl.theme,
	}
}

// With creates a new StyledLogger with additional key-value pairs
func (sl *StyledLogger) With(args ...any) *StyledLogger {
	return &StyledLogger{
		logger: sl.logger.With(args...),
		theme:  sl.theme,
	}
}

// NewWithTheme creates both a regular logger and a styled logger
func NewWithTheme(cfg *Config) (*slog.Logger, *StyledLogger, func(), error) {
	logger, cleanup, err := New(cfg)
	if err != nil {
		return nil, nil, nil, err
	}

	appTheme := theme.GetTheme(cfg.Theme)
	styledLogger := NewStyledLogger(logger, appTheme)

	return logger, styledLogger, cleanup, nil
}
