// Package ledger records the acting visitor's last known reaction to each
// target.
//
// The ledger is the only writer of reaction keys. Storage failures never
// surface: a failed read is "no reaction", a failed write is a no-op, and
// both are logged at debug level.
package ledger

import (
	"context"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/roach88/rxn/internal/ir"
	"github.com/roach88/rxn/internal/store"
	"github.com/roach88/rxn/internal/visitor"
)

// KeyPrefix starts every ledger key.
const KeyPrefix = "rxn:"

// Ledger is a visitor-scoped view over a KV.
//
// Thread-safety: Ledger adds no locking of its own; it is as safe as the
// underlying KV (both store implementations are).
type Ledger struct {
	kv      store.KV
	visitor ir.VisitorID
	logger  *slog.Logger
}

// New creates a ledger for the given visitor. A nil logger discards output.
func New(kv store.KV, who visitor.Identity, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Ledger{kv: kv, visitor: who.ID, logger: logger}
}

// Key returns the storage key for target: rxn:<kind>:<id>:<visitor>.
// The parent event of a comment is not part of the key.
func Key(target ir.Target, who ir.VisitorID) string {
	return KeyPrefix + string(target.Kind) + ":" + strconv.FormatInt(target.ID, 10) + ":" + string(who)
}

// Visitor returns the visitor this ledger is scoped to.
func (l *Ledger) Visitor() ir.VisitorID {
	return l.visitor
}

// Get returns the recorded value, or None if there is none or it cannot be read.
func (l *Ledger) Get(ctx context.Context, target ir.Target) ir.Value {
	raw, ok, err := l.kv.Get(ctx, Key(target, l.visitor))
	if err != nil {
		l.logger.Debug("ledger read failed", "target", target.String(), "error", err)
		return ir.None
	}
	if !ok {
		return ir.None
	}
	v, err := ir.ParseValue(raw)
	if err != nil {
		l.logger.Debug("ledger entry unreadable", "target", target.String(), "raw", raw)
		return ir.None
	}
	return v
}

// Set records value; None removes the entry.
func (l *Ledger) Set(ctx context.Context, target ir.Target, value ir.Value) {
	key := Key(target, l.visitor)

	var err error
	switch value {
	case ir.None:
		err = l.kv.Remove(ctx, key)
	case ir.Like, ir.Dislike:
		err = l.kv.Set(ctx, key, strconv.Itoa(int(value)))
	default:
		l.logger.Debug("ledger ignoring invalid value", "target", target.String(), "value", int(value))
		return
	}
	if err != nil {
		l.logger.Debug("ledger write failed", "target", target.String(), "value", value.String(), "error", err)
	}
}

// Entry is one recorded reaction.
type Entry struct {
	Target ir.Target `json:"target"`
	Value  ir.Value  `json:"value"`
}

// All lists this visitor's recorded reactions in key order. It requires a
// KV that can enumerate keys; otherwise it returns nil.
func (l *Ledger) All(ctx context.Context) []Entry {
	lister, ok := l.kv.(store.Lister)
	if !ok {
		return nil
	}
	entries, err := lister.Entries(ctx, KeyPrefix)
	if err != nil {
		l.logger.Debug("ledger list failed", "error", err)
		return []Entry{}
	}

	suffix := ":" + string(l.visitor)
	out := []Entry{}
	for _, e := range entries {
		target, ok := parseKey(e.Key, suffix)
		if !ok {
			continue
		}
		v, err := ir.ParseValue(e.Value)
		if err != nil || v == ir.None {
			continue
		}
		out = append(out, Entry{Target: target, Value: v})
	}
	return out
}

// parseKey inverts Key for keys ending in suffix.
func parseKey(key, suffix string) (ir.Target, bool) {
	body, ok := strings.CutSuffix(strings.TrimPrefix(key, KeyPrefix), suffix)
	if !ok {
		return ir.Target{}, false
	}
	t, err := ir.ParseTarget(body)
	if err != nil {
		return ir.Target{}, false
	}
	return t, true
}
