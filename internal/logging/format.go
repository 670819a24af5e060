package logging

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"tmcore/internal/nstring"
)

const consoleTimeLayout = "15:04:05.000"

func formatTimestamp(ts time.Time) string {
	if ts.IsZero() {
		return ""
	}
	return ts.Local().Format(consoleTimeLayout)
}

// attrString renders a header value without quoting.
func attrString(v slog.Value) string {
	return plainValue(v.Resolve())
}

// formatValue renders a field value, quoting it when it would not read as a
// single token.
func formatValue(v slog.Value) string {
	v = v.Resolve()
	switch v.Kind() {
	case slog.KindBool, slog.KindInt64, slog.KindUint64, slog.KindFloat64, slog.KindDuration, slog.KindTime:
		return plainValue(v)
	}
	s := plainValue(v)
	if needsQuotes(s) {
		return strconv.Quote(s)
	}
	return s
}

func plainValue(v slog.Value) string {
	switch v.Kind() {
	case slog.KindString:
		return v.String()
	case slog.KindFloat64:
		return strconv.FormatFloat(v.Float64(), 'f', -1, 64)
	case slog.KindTime:
		return formatTimestamp(v.Time())
	case slog.KindAny:
		switch value := v.Any().(type) {
		case error:
			return value.Error()
		case nstring.String:
			return nstring.Flatten(value)
		case []string:
			return strings.Join(value, ",")
		default:
			return fmt.Sprint(value)
		}
	default:
		return v.String()
	}
}

func needsQuotes(s string) bool {
	if s == "" {
		return true
	}
	return strings.ContainsFunc(s, func(r rune) bool {
		return r <= ' ' || r == '=' || r == '"'
	})
}
