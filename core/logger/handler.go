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

	timeFormatMillis = "2006-01-02T15:04:05.000Z07:00"
)

var errNoWriter = errors.New("logger: writer not initialized")

type handlerConfig struct {
	level    slog.Leveler
	writer   *asyncWriter
	format   logFormat
	keyOrder []string
	// errors, when set, also receives every line at WARN and above.
	errors *asyncWriter
}

// structuredHandler renders records as single kv or JSON lines with a
// stable key order.
type structuredHandler struct {
	cfg    handlerConfig
	attrs  []slog.Attr
	groups []string
}

func newStructuredHandler(cfg handlerConfig) *structuredHandler {
	if cfg.level == nil {
		cfg.level = slog.LevelInfo
	}
	if cfg.keyOrder == nil {
		cfg.keyOrder = append([]string(nil), defaultKeyOrder...)
	}
	return &structuredHandler{cfg: cfg}
}

func (h *structuredHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.cfg.level.Level()
}

func (h *structuredHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.cfg.writer == nil {
		return errNoWriter
	}
	asJSON := h.cfg.format == formatJSON

	rec := make(map[string]any, 16)
	ts := r.Time.UTC()
	rec["ts"] = ts.Truncate(time.Millisecond).Format(timeFormatMillis)
	rec["level"] = normalizeLevel(r.Level.String())
	if asJSON {
		rec["ts_unix_nano"] = ts.UnixNano()
	}

	prefix := strings.Join(h.groups, ".")
	for _, a := range h.attrs {
		addAttr(rec, prefix, a)
	}
	r.Attrs(func(a slog.Attr) bool {
		addAttr(rec, prefix, a)
		return true
	})
	addMeta(rec, metaFrom(ctx), asJSON)

	if s, _ := rec["event"].(string); s == "" {
		rec["event"] = cmp(r.Message, "unknown")
	}
	if s, _ := rec["component"].(string); s == "" {
		rec["component"] = "app"
	}
	cleanEnums(rec)

	keys := orderKeys(rec, h.cfg.keyOrder)
	var line []byte
	if asJSON {
		var err error
		if line, err = encodeJSON(rec, keys); err != nil {
			return err
		}
	} else {
		line = encodeKV(rec, keys)
	}
	if h.cfg.errors != nil && r.Level >= slog.LevelWarn {
		_ = h.cfg.errors.Write(line)
	}
	return h.cfg.writer.Write(line)
}

func (h *structuredHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.attrs = append(append([]slog.Attr(nil), h.attrs...), attrs...)
	return &clone
}

func (h *structuredHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.groups = append(append([]string(nil), h.groups...), name)
	return &clone
}

func cmp(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

// addAttr flattens groups into dotted keys and stores normalized values.
// Empty strings and nil values are dropped.
func addAttr(rec map[string]any, prefix string, a slog.Attr) {
	key := a.Key
	if prefix != "" && key != "" {
		key = prefix + "." + key
	} else if key == "" {
		key = prefix
	}
	v := a.Value.Resolve()
	if v.Kind() == slog.KindGroup {
		for _, child := range v.Group() {
			addAttr(rec, key, child)
		}
		return
	}
	if key == "" {
		return
	}
	k, val, ok := normalizeValue(key, v)
	if !ok {
		return
	}
	if s, isStr := val.(string); isStr && s == "" {
		return
	}
	rec[k] = val
}

func normalizeValue(key string, v slog.Value) (string, any, bool) {
	switch v.Kind() {
	case slog.KindString:
		return key, strings.TrimSpace(v.String()), true
	case slog.KindBool:
		return key, v.Bool(), true
	case slog.KindInt64:
		return key, v.Int64(), true
	case slog.KindUint64:
		if u := v.Uint64(); u <= math.MaxInt64 {
			return key, int64(u), true
		}
		return key, v.Uint64(), true
	case slog.KindFloat64:
		return key, v.Float64(), true
	case slog.KindDuration:
		return msKey(key), RoundMS(v.Duration()).Milliseconds(), true
	case slog.KindTime:
		return key, v.Time().UTC().Format(time.RFC3339Nano), true
	}
	switch x := v.Any().(type) {
	case nil:
		return key, nil, false
	case error:
		return key, x.Error(), true
	case time.Duration:
		return msKey(key), RoundMS(x).Milliseconds(), true
	case fmt.Stringer:
		return key, strings.TrimSpace(x.String()), true
	default:
		return key, fmt.Sprint(x), true
	}
}

// msKey renames duration keys: duration -> duration_ms, x_duration -> x_duration_ms.
func msKey(key string) string {
	if strings.HasSuffix(key, "_ms") {
		return key
	}
	return key + "_ms"
}

// addMeta copies correlation data from the context unless an attribute
// already set the key. The rid is compacted; JSON keeps the raw value too.
func addMeta(rec map[string]any, m meta, asJSON bool) {
	setIfAbsent := func(key string, val any, present bool) {
		if !present {
			return
		}
		if _, ok := rec[key]; !ok {
			rec[key] = val
		}
	}
	setIfAbsent("rid", m.rid, m.rid != "")
	setIfAbsent("update_id", m.updateID, m.updateID != 0)
	setIfAbsent("user_id", m.userID, m.userID != 0)
	setIfAbsent("chat_id", m.chatID, m.chatID != 0)
	setIfAbsent("handler", m.handler, m.handler != "")
	setIfAbsent("batch_id", m.batchID, m.batchID != "")

	if rid, _ := rec["rid"].(string); rid != "" {
		if compact := CompactRID(rid); compact != rid {
			if asJSON {
				setIfAbsent("rid_full", rid, true)
			}
			rec["rid"] = compact
		}
	}
}

func cleanEnums(rec map[string]any) {
	if s, ok := rec["status"].(string); ok {
		if lower := strings.ToLower(s); knownStatus[lower] {
			rec["status"] = lower
		}
	}
	if o, ok := rec["outcome"].(string); ok {
		if lower := strings.ToLower(o); knownOutcome[lower] {
			rec["outcome"] = lower
		} else {
			delete(rec, "outcome")
		}
	}
}

// orderKeys lists keys from order first, then the rest alphabetically.
func orderKeys(rec map[string]any, order []string) []string {
	keys := make([]string, 0, len(rec))
	seen := make(map[string]bool, len(rec))
	for _, k := range order {
		if _, ok := rec[k]; ok && !seen[k] {
			keys = append(keys, k)
			seen[k] = true
		}
	}
	rest := make([]string, 0, len(rec)-len(keys))
	for k := range rec {
		if !seen[k] {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	return append(keys, rest...)
}

func encodeJSON(rec map[string]any, keys []string) ([]byte, error) {
	var b bytes.Buffer
	b.WriteByte('{')
	for i, k := range keys {
		val, err := json.Marshal(rec[k])
		if err != nil {
			return nil, fmt.Errorf("logger: encode %s: %w", k, err)
		}
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Quote(k))
		b.WriteByte(':')
		b.Write(val)
	}
	b.WriteString("}\n")
	return b.Bytes(), nil
}

func encodeKV(rec map[string]any, keys []string) []byte {
	var b bytes.Buffer
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(kvValue(rec[k]))
	}
	b.WriteByte('\n')
	return b.Bytes()
}

func kvValue(v any) string {
	var s string
	switch x := v.(type) {
	case string:
		s = x
	case bool:
		return strconv.FormatBool(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case int:
		return strconv.Itoa(x)
	default:
		s = fmt.Sprint(x)
	}
	if strings.IndexFunc(s, func(r rune) bool { return r <= ' ' || r == '=' || r == '"' }) >= 0 {
		return strconv.Quote(s)
	}
	return s
}
