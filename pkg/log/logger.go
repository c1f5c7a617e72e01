package log

import (
	"io"
	"log/slog"
	"strings"

	"github.com/YuminosukeSato/titanicrf/pkg/errors"
)

const (
	ErrAttrKey        = "error"
	StacktraceAttrKey = "stacktrace"
)

// ParseLevel converts "debug", "info", "warn" or "error" into a Level.
func ParseLevel(level string) (Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return LevelDebug, nil
	case "info", "":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, errors.NewValidationError("log-level", "must be one of debug, info, warn, error", level)
	}
}

// SetupLogger configures both logging front ends for a CLI run: the slog
// default (JSON, with stack traces extracted from cockroachdb errors) used for
// top-level failures, and the zerolog provider used by the library packages.
// format is "json" or "console".
func SetupLogger(w io.Writer, level, format string) error {
	lvl, err := ParseLevel(level)
	if err != nil {
		return err
	}

	ops := slog.HandlerOptions{
		AddSource: true,
		Level:     slog.Level(lvl),
		ReplaceAttr: func(groups []string, attr slog.Attr) slog.Attr {
			switch attr.Key {
			case slog.LevelKey:
				attr.Key = "level"
			case slog.MessageKey:
				attr.Key = "message"
			}
			return attr
		},
	}
	slog.SetDefault(slog.New(WrapByErrFmtHandler(slog.NewJSONHandler(w, &ops))))

	SetProvider(NewZerologProvider(w, lvl, format == "console"))
	return nil
}

// ErrAttr is a wrapper to pass err to slog.
func ErrAttr(err error) slog.Attr {
	return slog.Any(ErrAttrKey, err)
}

// ErrorCode maps the typed errors of pkg/errors to an Error* code for the
// ErrorCodeKey attribute. Other errors map to "".
func ErrorCode(err error) string {
	var (
		notFitted *errors.NotFittedError
		dimension *errors.DimensionError
		invalid   *errors.ValidationError
		value     *errors.ValueError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &notFitted):
		return ErrorNotFitted
	case errors.As(err, &dimension):
		return ErrorDimensionMismatch
	case errors.Is(err, errors.ErrEmptyData):
		return ErrorEmptyData
	case errors.As(err, &invalid), errors.As(err, &value):
		return ErrorInvalidInput
	}
	return ""
}
