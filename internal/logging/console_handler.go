package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"
)

// consoleHandler renders records as single-line human-readable output:
//
//	15:04:05 INFO  [engine] conversion finished job_id=9b0e... duration=2.1s
type consoleHandler struct {
	mu     *sync.Mutex
	out    io.Writer
	level  slog.Leveler
	attrs  []slog.Attr
	groups []string
}

func newConsoleHandler(out io.Writer, level slog.Leveler) *consoleHandler {
	return &consoleHandler{mu: &sync.Mutex{}, out: out, level: level}
}

func (h *consoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *consoleHandler) Handle(_ context.Context, record slog.Record) error {
	var sb strings.Builder
	sb.WriteString(record.Time.Format(time.TimeOnly))
	sb.WriteByte(' ')
	sb.WriteString(fmt.Sprintf("%-5s", record.Level.String()))

	component := ""
	fields := make([]slog.Attr, 0, record.NumAttrs()+len(h.attrs))
	collect := func(attr slog.Attr) {
		if attr.Key == FieldComponent && attr.Value.Kind() == slog.KindString {
			component = attr.Value.String()
			return
		}
		fields = append(fields, attr)
	}
	for _, attr := range h.attrs {
		collect(attr)
	}
	record.Attrs(func(attr slog.Attr) bool {
		collect(h.qualify(attr))
		return true
	})

	if component != "" {
		sb.WriteString(" [")
		sb.WriteString(component)
		sb.WriteByte(']')
	}
	sb.WriteByte(' ')
	sb.WriteString(record.Message)

	sort.SliceStable(fields, func(i, j int) bool {
		return fieldRank(fields[i].Key) < fieldRank(fields[j].Key)
	})
	for _, attr := range fields {
		sb.WriteByte(' ')
		sb.WriteString(attr.Key)
		sb.WriteByte('=')
		sb.WriteString(formatValue(attr.Value))
	}
	sb.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.out, sb.String())
	return err
}

func (h *consoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.attrs = make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	clone.attrs = append(clone.attrs, h.attrs...)
	for _, attr := range attrs {
		clone.attrs = append(clone.attrs, clone.qualify(attr))
	}
	return &clone
}

func (h *consoleHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.groups = append(append([]string{}, h.groups...), name)
	return &clone
}

func (h *consoleHandler) qualify(attr slog.Attr) slog.Attr {
	if len(h.groups) == 0 {
		return attr
	}
	attr.Key = strings.Join(h.groups, ".") + "." + attr.Key
	return attr
}

func formatValue(value slog.Value) string {
	value = value.Resolve()
	switch value.Kind() {
	case slog.KindString:
		s := value.String()
		if strings.ContainsAny(s, " \t\"") {
			return fmt.Sprintf("%q", s)
		}
		return s
	case slog.KindDuration:
		return value.Duration().Round(time.Millisecond).String()
	case slog.KindTime:
		return value.Time().Format(time.RFC3339)
	default:
		return value.String()
	}
}

// fieldRank orders the well-known correlation fields ahead of ad-hoc ones.
func fieldRank(key string) int {
	switch key {
	case FieldJobID:
		return 0
	case FieldStage:
		return 1
	case FieldDisplay:
		return 2
	case FieldEventType:
		return 3
	case "error":
		return 5
	default:
		return 4
	}
}
