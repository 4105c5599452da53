// Package visitor resolves the identity that scopes a visitor's personal
// reaction state and tags outgoing reaction requests.
//
// Identity is an explicit value handed to the ledger and the API client; no
// package-level "current token" exists.
package visitor

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/roach88/rxn/internal/ir"
	"github.com/roach88/rxn/internal/store"
)

// StorageKey is the KV key holding the persisted guest id.
const StorageKey = "visitor_id"

// guestIDLen is the number of characters after the "g:" prefix.
const guestIDLen = 16

// Identity is the resolved visitor.
type Identity struct {
	ID            ir.VisitorID `json:"id"`
	Token         string       `json:"-"`
	Authenticated bool         `json:"authenticated"`
}

// IDGenerator produces the random part of a guest id.
// Implemented by UUIDGenerator (production) and testutil.FixedIDGenerator (tests).
type IDGenerator interface {
	Generate() string
}

// UUIDGenerator derives guest ids from the random tail of a UUIDv7.
//
// Thread-safety: UUIDGenerator is stateless and safe for concurrent use.
type UUIDGenerator struct{}

// Generate returns 16 lowercase hex characters.
//
// Panics if UUID generation fails (should never happen in practice).
func (UUIDGenerator) Generate() string {
	hex := strings.ReplaceAll(uuid.Must(uuid.NewV7()).String(), "-", "")
	return hex[len(hex)-guestIDLen:]
}

// Resolve returns the identity for token, falling back to a guest id
// persisted in kv.
//
// An authenticated identity is "u:<sub>" where sub comes from the token's
// JWT payload. Otherwise the guest id stored under StorageKey is reused, or a
// new one is generated and stored. If kv fails, Resolve still returns a
// usable (unpersisted) guest identity together with the error so callers can
// log it; reactions must keep working without storage.
func Resolve(ctx context.Context, kv store.KV, token string, gen IDGenerator) (Identity, error) {
	if gen == nil {
		gen = UUIDGenerator{}
	}

	if sub, ok := Subject(token); ok {
		return Identity{ID: ir.VisitorID(ir.UserPrefix + sub), Token: token, Authenticated: true}, nil
	}

	guest := Identity{Token: token}

	stored, ok, err := kv.Get(ctx, StorageKey)
	if err != nil {
		guest.ID = newGuestID(gen)
		return guest, fmt.Errorf("read visitor id: %w", err)
	}
	if ok && validGuestID(stored) {
		guest.ID = ir.VisitorID(stored)
		return guest, nil
	}

	guest.ID = newGuestID(gen)
	if err := kv.Set(ctx, StorageKey, string(guest.ID)); err != nil {
		return guest, fmt.Errorf("persist visitor id: %w", err)
	}
	return guest, nil
}

// Subject extracts the "sub" claim from a JWT payload. The signature is not
// checked. String and numeric subjects are both accepted.
func Subject(token string) (string, bool) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return "", false
	}

	payload, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(parts[1], "="))
	if err != nil {
		return "", false
	}

	dec := json.NewDecoder(strings.NewReader(string(payload)))
	dec.UseNumber()
	var claims map[string]any
	if err := dec.Decode(&claims); err != nil {
		return "", false
	}

	switch sub := claims["sub"].(type) {
	case string:
		if sub = strings.TrimSpace(sub); sub != "" {
			return sub, true
		}
	case json.Number:
		return sub.String(), true
	}
	return "", false
}

func newGuestID(gen IDGenerator) ir.VisitorID {
	raw := strings.ToLower(gen.Generate())
	if len(raw) > guestIDLen {
		raw = raw[:guestIDLen]
	}
	return ir.VisitorID(ir.GuestPrefix + raw)
}

// validGuestID accepts ids this package could have written.
func validGuestID(s string) bool {
	rest, ok := strings.CutPrefix(s, ir.GuestPrefix)
	if !ok || rest == "" {
		return false
	}
	for _, r := range rest {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}
