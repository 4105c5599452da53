package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/rxn/internal/ir"
)

// Scenario defines a reconciliation test scenario.
// Scenarios set up a visitor's local and server state, drive toggles and
// resolutions in a chosen order, and assert on the resulting state.
type Scenario struct {
	// Name uniquely identifies this scenario. It names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Visitor fixes the acting identity. Defaults to guest "g:harness".
	Visitor VisitorSpec `yaml:"visitor,omitempty"`

	// Targets seeds local state: the ledger entry and displayed counts.
	Targets []TargetSpec `yaml:"targets,omitempty"`

	// Server seeds the scripted backend.
	Server []ServerSpec `yaml:"server,omitempty"`

	// Steps run in order.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final state.
	Assertions []Assertion `yaml:"assertions"`
}

// VisitorSpec selects the identity a scenario runs as.
type VisitorSpec struct {
	// Token is a bearer token; a JWT with a sub claim authenticates.
	Token string `yaml:"token,omitempty"`

	// GuestID is the generated part of the guest id when not authenticated.
	GuestID string `yaml:"guest_id,omitempty"`
}

// CountsSpec is a likes/dislikes pair.
type CountsSpec struct {
	Likes    int64 `yaml:"likes"`
	Dislikes int64 `yaml:"dislikes"`
}

func (c CountsSpec) counts() ir.Counts {
	return ir.Counts{Likes: c.Likes, Dislikes: c.Dislikes}
}

// TargetSpec is the local starting state of one target.
type TargetSpec struct {
	Target string     `yaml:"target"`
	Mine   string     `yaml:"mine,omitempty"`
	Counts CountsSpec `yaml:"counts"`
}

// ServerSpec is the backend's starting state of one target.
type ServerSpec struct {
	Target string `yaml:"target"`

	// Others are the counts contributed by everyone but the visitor.
	Others CountsSpec `yaml:"others"`

	// Mine is the visitor's reaction as the server knows it.
	Mine string `yaml:"mine,omitempty"`
}

// Step is exactly one of its fields.
type Step struct {
	Toggle  *ToggleStep  `yaml:"toggle,omitempty"`
	Clear   *ClearStep   `yaml:"clear,omitempty"`
	Resolve *ResolveStep `yaml:"resolve,omitempty"`
	Refresh *RefreshStep `yaml:"refresh,omitempty"`
	Dismiss *DismissStep `yaml:"dismiss,omitempty"`
}

// ToggleStep clicks like or dislike. Unless Hold is set the dispatch is
// reconciled immediately.
type ToggleStep struct {
	Target    string `yaml:"target"`
	Direction string `yaml:"direction"`

	// Hold leaves the dispatch pending for a later resolve step.
	Hold bool `yaml:"hold,omitempty"`

	// Fail makes the server reject the mutation.
	Fail bool `yaml:"fail,omitempty"`

	// FailTotals makes the follow-up totals fetch fail.
	FailTotals bool `yaml:"fail_totals,omitempty"`
}

// ClearStep removes the visitor's current reaction, if any, and reconciles.
type ClearStep struct {
	Target     string `yaml:"target"`
	Fail       bool   `yaml:"fail,omitempty"`
	FailTotals bool   `yaml:"fail_totals,omitempty"`
}

// ResolveStep reconciles a held dispatch.
type ResolveStep struct {
	// Seq is the dispatch's sequence number. Sequence numbers restart at 1
	// for each scenario, so the nth toggle is seq n.
	Seq        int64 `yaml:"seq"`
	Fail       bool  `yaml:"fail,omitempty"`
	FailTotals bool  `yaml:"fail_totals,omitempty"`
}

// RefreshStep fetches authoritative totals.
type RefreshStep struct {
	Target string `yaml:"target"`
	Fail   bool   `yaml:"fail,omitempty"`
}

// DismissStep dismisses the notice for a dispatch.
type DismissStep struct {
	Seq int64 `yaml:"seq"`
}

// Assertion validates final state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "ledger": the visitor's ledger value for Target equals Expect
	// - "counts": displayed counts for Target equal Likes/Dislikes
	// - "server": the backend's vote for Target equals Expect
	// - "notices": pending notice seqs equal Seqs
	// - "requests": backend operations, in order, equal Ops
	Type string `yaml:"type"`

	Target   string   `yaml:"target,omitempty"`
	Expect   string   `yaml:"expect,omitempty"`
	Likes    *int64   `yaml:"likes,omitempty"`
	Dislikes *int64   `yaml:"dislikes,omitempty"`
	Seqs     []int64  `yaml:"seqs,omitempty"`
	Ops      []string `yaml:"ops,omitempty"`
}

// Assertion type constants.
const (
	AssertLedger   = "ledger"
	AssertCounts   = "counts"
	AssertServer   = "server"
	AssertNotices  = "notices"
	AssertRequests = "requests"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict field validation catches typos like "assertion:" vs "assertions:".
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, t := range s.Targets {
		if err := checkTarget(t.Target); err != nil {
			return fmt.Errorf("targets[%d]: %w", i, err)
		}
		if err := checkValue(t.Mine); err != nil {
			return fmt.Errorf("targets[%d].mine: %w", i, err)
		}
	}
	for i, sv := range s.Server {
		if err := checkTarget(sv.Target); err != nil {
			return fmt.Errorf("server[%d]: %w", i, err)
		}
		if err := checkValue(sv.Mine); err != nil {
			return fmt.Errorf("server[%d].mine: %w", i, err)
		}
	}

	for i, step := range s.Steps {
		if err := validateStep(step); err != nil {
			return fmt.Errorf("steps[%d]: %w", i, err)
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(a); err != nil {
			return fmt.Errorf("assertions[%d]: %w", i, err)
		}
	}
	return nil
}

func validateStep(step Step) error {
	set := 0
	for _, present := range []bool{step.Toggle != nil, step.Clear != nil, step.Resolve != nil, step.Refresh != nil, step.Dismiss != nil} {
		if present {
			set++
		}
	}
	if set != 1 {
		return fmt.Errorf("exactly one of toggle, clear, resolve, refresh, dismiss is required")
	}

	switch {
	case step.Toggle != nil:
		if err := checkTarget(step.Toggle.Target); err != nil {
			return fmt.Errorf("toggle: %w", err)
		}
		v, err := ir.ParseValue(step.Toggle.Direction)
		if err != nil || v == ir.None {
			return fmt.Errorf("toggle: direction must be like or dislike, got %q", step.Toggle.Direction)
		}
		if step.Toggle.Hold && (step.Toggle.Fail || step.Toggle.FailTotals) {
			return fmt.Errorf("toggle: fail options belong on the resolve step of a held toggle")
		}
	case step.Clear != nil:
		if err := checkTarget(step.Clear.Target); err != nil {
			return fmt.Errorf("clear: %w", err)
		}
	case step.Resolve != nil:
		if step.Resolve.Seq <= 0 {
			return fmt.Errorf("resolve: seq must be positive")
		}
	case step.Refresh != nil:
		if err := checkTarget(step.Refresh.Target); err != nil {
			return fmt.Errorf("refresh: %w", err)
		}
	case step.Dismiss != nil:
		if step.Dismiss.Seq <= 0 {
			return fmt.Errorf("dismiss: seq must be positive")
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(a Assertion) error {
	switch a.Type {
	case "":
		return fmt.Errorf("type is required")
	case AssertLedger, AssertServer:
		if err := checkTarget(a.Target); err != nil {
			return err
		}
		if err := checkValue(a.Expect); err != nil {
			return fmt.Errorf("expect: %w", err)
		}
	case AssertCounts:
		if err := checkTarget(a.Target); err != nil {
			return err
		}
		if a.Likes == nil && a.Dislikes == nil {
			return fmt.Errorf("likes or dislikes is required for counts")
		}
	case AssertNotices, AssertRequests:
		// Empty lists assert that nothing happened.
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return nil
}

func checkTarget(s string) error {
	if s == "" {
		return fmt.Errorf("target is required")
	}
	_, err := ir.ParseTarget(s)
	return err
}

func checkValue(s string) error {
	_, err := ir.ParseValue(s)
	return err
}
