package logging

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

// consoleHandler writes one header line per record followed by an indented
// field list. Component, pair, job and channel move into the header.
type consoleHandler struct {
	mu        *sync.Mutex
	w         io.Writer
	level     *slog.LevelVar
	preset    fieldList
	group     string
	addSource bool
}

func newPrettyHandler(w io.Writer, lvl *slog.LevelVar, addSource bool) slog.Handler {
	return &consoleHandler{mu: &sync.Mutex{}, w: w, level: lvl, addSource: addSource}
}

func (h *consoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *consoleHandler) Handle(_ context.Context, record slog.Record) error {
	if !h.Enabled(context.Background(), record.Level) {
		return nil
	}

	fields := h.preset.clone()
	record.Attrs(func(attr slog.Attr) bool {
		fields.add(h.group, attr)
		return true
	})
	component := fields.take(FieldComponent)
	subject := FormatSubject(fields.take(FieldPair), fields.take(FieldJobGUID), fields.take(FieldChannel))

	ts := record.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	msg := strings.TrimSpace(record.Message)
	if msg == "" {
		msg = "(no message)"
	}

	var buf bytes.Buffer
	buf.WriteString(formatTimestamp(ts))
	buf.WriteByte(' ')
	buf.WriteString(levelLabel(record.Level))
	if component != "" {
		buf.WriteString(" [" + component + "]")
	}
	if subject != "" {
		buf.WriteString(" " + subject)
	}
	buf.WriteString(" – " + msg)
	if src := record.Source(); h.addSource && record.Level < slog.LevelInfo && src != nil {
		buf.WriteString(" [" + filepath.Base(src.File) + ":" + strconv.Itoa(src.Line) + "]")
	}
	buf.WriteByte('\n')
	for _, f := range fields {
		if record.Level >= slog.LevelInfo && isDebugOnlyKey(f.key) {
			continue
		}
		buf.WriteString("    - " + f.key + ": " + formatValue(f.value) + "\n")
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.w.Write(buf.Bytes())
	return err
}

func (h *consoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.preset = h.preset.clone()
	for _, attr := range attrs {
		next.preset.add(h.group, attr)
	}
	return &next
}

func (h *consoleHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.group = joinKey(h.group, name)
	return &next
}

// debug-only keys are noisy at info level; they still show up in JSON output.
func isDebugOnlyKey(key string) bool {
	switch key {
	case FieldCorrelationID, "sql", "dsn":
		return true
	}
	return false
}

type field struct {
	key   string
	value slog.Value
}

// fieldList keeps insertion order; a repeated key overwrites in place.
type fieldList []field

func (l fieldList) clone() fieldList {
	return append(fieldList(nil), l...)
}

func (l *fieldList) add(prefix string, attr slog.Attr) {
	value := attr.Value.Resolve()
	key := joinKey(prefix, attr.Key)
	if value.Kind() == slog.KindGroup {
		for _, member := range value.Group() {
			l.add(key, member)
		}
		return
	}
	if attr.Key == "" {
		return
	}
	for i := range *l {
		if (*l)[i].key == key {
			(*l)[i].value = value
			return
		}
	}
	*l = append(*l, field{key: key, value: value})
}

// take removes key and returns its rendered value.
func (l *fieldList) take(key string) string {
	for i, f := range *l {
		if f.key == key {
			*l = append((*l)[:i], (*l)[i+1:]...)
			return attrString(f.value)
		}
	}
	return ""
}

func joinKey(prefix, key string) string {
	switch {
	case prefix == "":
		return key
	case key == "":
		return prefix
	default:
		return prefix + "." + key
	}
}

func levelLabel(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "ERROR"
	case level >= slog.LevelWarn:
		return "WARN"
	case level >= slog.LevelInfo:
		return "INFO"
	default:
		return "DEBUG"
	}
}
