package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

type logFormat string

const (
	formatJSON logFormat = "json"
	formatKV   logFormat = "kv"

	tsLayout = "2006-01-02T15:04:05.000Z07:00"
)

type lineSink interface {
	Write(p []byte) error
}

type handlerConfig struct {
	level    slog.Leveler
	writer   lineSink
	format   logFormat
	keyOrder []string
}

// structuredHandler renders flat one-line records. Groups become dotted
// key prefixes and durations are written in milliseconds.
type structuredHandler struct {
	level  slog.Leveler
	out    lineSink
	format logFormat
	rank   map[string]int
	preset []field
	prefix string
}

func newStructuredHandler(cfg handlerConfig) *structuredHandler {
	if cfg.level == nil {
		cfg.level = slog.LevelInfo
	}
	if cfg.keyOrder == nil {
		cfg.keyOrder = defaultKeyOrder
	}
	return &structuredHandler{
		level:  cfg.level,
		out:    cfg.writer,
		format: cfg.format,
		rank:   orderIndex(cfg.keyOrder),
	}
}

func (h *structuredHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *structuredHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.out == nil {
		return errors.New("logger: writer not initialized")
	}
	rec := newRecord(len(h.preset) + r.NumAttrs() + 8)
	ts := r.Time.UTC()
	rec.set("ts", ts.Truncate(time.Millisecond).Format(tsLayout))
	rec.set("level", levelName(r.Level.String()))
	for _, f := range h.preset {
		rec.set(f.key, f.val)
	}
	r.Attrs(func(a slog.Attr) bool {
		flatten(h.prefix, a, rec.set)
		return true
	})
	appendMeta(ctx, rec)

	if msg := strings.TrimSpace(r.Message); msg != "" {
		rec.setDefault("event", msg)
	}
	rec.setDefault("event", "unknown")
	rec.setDefault("component", "app")
	if s, ok := rec.get("status").(string); ok {
		rec.set("status", statusName(s))
	}

	var line []byte
	var err error
	if h.format == formatJSON {
		line, err = rec.encodeJSON(h.rank)
	} else {
		line = rec.encodeKV(h.rank)
	}
	if err != nil {
		return err
	}
	return h.out.Write(append(line, '\n'))
}

func (h *structuredHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.preset = append([]field(nil), h.preset...)
	for _, a := range attrs {
		flatten(h.prefix, a, func(k string, v any) {
			clone.preset = append(clone.preset, field{key: k, val: v})
		})
	}
	return &clone
}

func (h *structuredHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.prefix = joinKey(h.prefix, name)
	return &clone
}

func joinKey(prefix, key string) string {
	switch {
	case prefix == "":
		return key
	case key == "":
		return prefix
	}
	return prefix + "." + key
}

// flatten emits one normalized key/value per leaf attribute.
func flatten(prefix string, a slog.Attr, emit func(string, any)) {
	a.Value = a.Value.Resolve()
	key := joinKey(prefix, a.Key)
	if a.Value.Kind() == slog.KindGroup {
		for _, child := range a.Value.Group() {
			flatten(key, child, emit)
		}
		return
	}
	if key == "" {
		return
	}
	if k, v, ok := normalizeAttr(key, a.Value); ok {
		emit(k, v)
	}
}

func normalizeAttr(key string, val slog.Value) (string, any, bool) {
	switch val.Kind() {
	case slog.KindString:
		s := strings.TrimSpace(val.String())
		return key, s, s != ""
	case slog.KindBool:
		return key, val.Bool(), true
	case slog.KindInt64:
		return key, val.Int64(), true
	case slog.KindUint64:
		if u := val.Uint64(); u <= math.MaxInt64 {
			return key, int64(u), true
		}
		return key, val.Uint64(), true
	case slog.KindFloat64:
		return key, val.Float64(), true
	case slog.KindDuration:
		return durationKey(key), RoundMS(val.Duration()).Milliseconds(), true
	case slog.KindTime:
		return key, val.Time().UTC().Format(time.RFC3339Nano), true
	}

	switch x := val.Any().(type) {
	case nil:
		return key, nil, false
	case error:
		return key, x.Error(), true
	case time.Duration:
		return durationKey(key), RoundMS(x).Milliseconds(), true
	case fmt.Stringer:
		s := x.String()
		return key, s, s != ""
	default:
		return key, fmt.Sprint(x), true
	}
}

// durationKey makes the millisecond unit explicit in the key.
func durationKey(key string) string {
	if strings.HasSuffix(key, "_ms") {
		return key
	}
	return key + "_ms"
}

type field struct {
	key string
	val any
}

// record is an insertion-ordered field set with last-write-wins keys.
type record struct {
	fields []field
	pos    map[string]int
}

func newRecord(n int) *record {
	return &record{fields: make([]field, 0, n), pos: make(map[string]int, n)}
}

func (r *record) set(key string, val any) {
	if i, ok := r.pos[key]; ok {
		r.fields[i].val = val
		return
	}
	r.pos[key] = len(r.fields)
	r.fields = append(r.fields, field{key: key, val: val})
}

func (r *record) setDefault(key string, val any) {
	if _, ok := r.pos[key]; !ok {
		r.set(key, val)
	}
}

func (r *record) get(key string) any {
	if i, ok := r.pos[key]; ok {
		return r.fields[i].val
	}
	return nil
}

// sorted returns fields ranked by order, then alphabetically.
func (r *record) sorted(rank map[string]int) []field {
	out := append([]field(nil), r.fields...)
	sort.SliceStable(out, func(i, j int) bool {
		ri, iok := rank[out[i].key]
		rj, jok := rank[out[j].key]
		switch {
		case iok && jok:
			return ri < rj
		case iok != jok:
			return iok
		}
		return out[i].key < out[j].key
	})
	return out
}

func (r *record) encodeJSON(rank map[string]int) ([]byte, error) {
	var b bytes.Buffer
	b.WriteByte('{')
	for i, f := range r.sorted(rank) {
		data, err := json.Marshal(f.val)
		if err != nil {
			return nil, fmt.Errorf("logger: encode %s: %w", f.key, err)
		}
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Quote(f.key))
		b.WriteByte(':')
		b.Write(data)
	}
	b.WriteByte('}')
	return b.Bytes(), nil
}

func (r *record) encodeKV(rank map[string]int) []byte {
	var b bytes.Buffer
	for i, f := range r.sorted(rank) {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(f.key)
		b.WriteByte('=')
		b.WriteString(kvValue(f.val))
	}
	return b.Bytes()
}

func kvValue(v any) string {
	s := fmt.Sprint(v)
	if strings.ContainsFunc(s, func(r rune) bool { return r <= ' ' || r == '=' || r == '"' }) {
		return strconv.Quote(s)
	}
	return s
}
