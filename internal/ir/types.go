package ir

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrUnknownKind is returned when a target kind is neither event nor comment.
var ErrUnknownKind = errors.New("unknown target kind")

// ErrUnknownValue is returned when a reaction value cannot be parsed.
var ErrUnknownValue = errors.New("unknown reaction value")

// Kind identifies the type of reactable entity.
type Kind string

const (
	KindEvent   Kind = "event"
	KindComment Kind = "comment"
)

// ParseKind validates a kind string.
func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case KindEvent:
		return KindEvent, nil
	case KindComment:
		return KindComment, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// Target identifies a reactable entity. Targets are comparable and are used
// directly as map keys.
//
// EventID is the parent event of a comment. Comment routes are nested under
// their event, so it is required for comment targets that talk to the API.
// It is not part of the target's ledger identity.
type Target struct {
	Kind    Kind  `json:"kind"`
	ID      int64 `json:"id"`
	EventID int64 `json:"event_id,omitempty"`
}

// Event returns the target for an event.
func Event(id int64) Target {
	return Target{Kind: KindEvent, ID: id}
}

// Comment returns the target for a comment on an event.
func Comment(eventID, id int64) Target {
	return Target{Kind: KindComment, ID: id, EventID: eventID}
}

// Key returns the ledger identity of the target: kind and id only.
func (t Target) Key() Target {
	return Target{Kind: t.Kind, ID: t.ID}
}

// String renders "event:42" or "comment:7@42".
func (t Target) String() string {
	if t.Kind == KindComment && t.EventID != 0 {
		return fmt.Sprintf("%s:%d@%d", t.Kind, t.ID, t.EventID)
	}
	return fmt.Sprintf("%s:%d", t.Kind, t.ID)
}

// ParseTarget parses the String form of a target.
func ParseTarget(s string) (Target, error) {
	kindPart, rest, ok := strings.Cut(s, ":")
	if !ok {
		return Target{}, fmt.Errorf("parse target %q: expected kind:id", s)
	}
	kind, err := ParseKind(kindPart)
	if err != nil {
		return Target{}, fmt.Errorf("parse target %q: %w", s, err)
	}

	idPart, parentPart, hasParent := strings.Cut(rest, "@")
	id, err := strconv.ParseInt(idPart, 10, 64)
	if err != nil || id <= 0 {
		return Target{}, fmt.Errorf("parse target %q: invalid id %q", s, idPart)
	}

	t := Target{Kind: kind, ID: id}
	if hasParent {
		if kind != KindComment {
			return Target{}, fmt.Errorf("parse target %q: only comments have a parent event", s)
		}
		eid, err := strconv.ParseInt(parentPart, 10, 64)
		if err != nil || eid <= 0 {
			return Target{}, fmt.Errorf("parse target %q: invalid event id %q", s, parentPart)
		}
		t.EventID = eid
	}
	return t, nil
}

// Value is the acting visitor's stance toward a target.
type Value int8

const (
	None    Value = 0
	Like    Value = 1
	Dislike Value = -1
)

// String returns "none", "like" or "dislike".
func (v Value) String() string {
	switch v {
	case Like:
		return "like"
	case Dislike:
		return "dislike"
	case None:
		return "none"
	}
	return fmt.Sprintf("value(%d)", int8(v))
}

// Valid reports whether v is one of None, Like, Dislike.
func (v Value) Valid() bool {
	return v == None || v == Like || v == Dislike
}

// ParseValue accepts like, dislike, none and their numeric forms 1, -1, 0.
func ParseValue(s string) (Value, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "like", "1":
		return Like, nil
	case "dislike", "-1":
		return Dislike, nil
	case "none", "0", "":
		return None, nil
	}
	return None, fmt.Errorf("%w: %q", ErrUnknownValue, s)
}

// MarshalText implements encoding.TextMarshaler.
func (v Value) MarshalText() ([]byte, error) {
	if !v.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownValue, int8(v))
	}
	return []byte(v.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (v *Value) UnmarshalText(data []byte) error {
	parsed, err := ParseValue(string(data))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// Counts are the like/dislike totals displayed next to a target.
type Counts struct {
	Likes    int64 `json:"likes"`
	Dislikes int64 `json:"dislikes"`
}

// Apply returns c shifted by d, with each side floored at zero.
func (c Counts) Apply(d Delta) Counts {
	return Counts{Likes: c.Likes + d.Likes, Dislikes: c.Dislikes + d.Dislikes}.Clamp()
}

// Clamp floors both sides at zero.
func (c Counts) Clamp() Counts {
	return Counts{Likes: max(0, c.Likes), Dislikes: max(0, c.Dislikes)}
}

// Delta is a change to displayed counts.
type Delta struct {
	Likes    int64 `json:"likes"`
	Dislikes int64 `json:"dislikes"`
}

// Add returns the sum of two deltas.
func (d Delta) Add(o Delta) Delta {
	return Delta{Likes: d.Likes + o.Likes, Dislikes: d.Dislikes + o.Dislikes}
}

// IsZero reports whether the delta changes nothing.
func (d Delta) IsZero() bool {
	return d.Likes == 0 && d.Dislikes == 0
}

// ComputeDelta returns the change to displayed counts implied by moving a
// visitor's reaction from prev to next. It mirrors the server's accounting:
// each visitor contributes at most one like or one dislike.
func ComputeDelta(prev, next Value) Delta {
	if prev == next {
		return Delta{}
	}
	return contribution(next).Add(contribution(prev).negate())
}

// contribution is what a single visitor holding v adds to the totals.
func contribution(v Value) Delta {
	switch v {
	case Like:
		return Delta{Likes: 1}
	case Dislike:
		return Delta{Dislikes: 1}
	}
	return Delta{}
}

func (d Delta) negate() Delta {
	return Delta{Likes: -d.Likes, Dislikes: -d.Dislikes}
}

// NextValue returns the value produced by clicking direction while holding
// prev: clicking the active value clears it, anything else switches to it.
func NextValue(prev, direction Value) Value {
	if prev == direction {
		return None
	}
	return direction
}

// Dispatch is the (prev, next) pair captured when a toggle is applied.
// A reconciliation always rolls back against its own dispatch.
type Dispatch struct {
	Seq    int64  `json:"seq"`
	Target Target `json:"target"`
	Prev   Value  `json:"prev"`
	Next   Value  `json:"next"`
}

// Delta returns the optimistic change this dispatch applied.
func (d Dispatch) Delta() Delta {
	return ComputeDelta(d.Prev, d.Next)
}

// Inverse returns the change that undoes this dispatch.
func (d Dispatch) Inverse() Delta {
	return ComputeDelta(d.Next, d.Prev)
}

// VisitorID scopes personal reaction state: "u:<sub>" for authenticated
// users, "g:<id>" for guests.
type VisitorID string

// Visitor id prefixes.
const (
	UserPrefix  = "u:"
	GuestPrefix = "g:"
)

// IsGuest reports whether the id is a generated pseudonymous id.
func (v VisitorID) IsGuest() bool {
	return strings.HasPrefix(string(v), GuestPrefix)
}
