// Package types provides the shared policy tree and verdict types for the decision engine
package types

import (
	"encoding/json"
	"fmt"
)

// Verdict is the three-valued outcome of a policy evaluation. It is a closed
// enum, never a boolean: an inapplicable subtree yields Undetermined, which
// callers must not conflate with Deny.
type Verdict int

const (
	// Undetermined means no applicable node produced a decision
	Undetermined Verdict = iota
	// Permit grants the request
	Permit
	// Deny refuses the request
	Deny
)

// String returns the canonical upper-case spelling of the verdict
func (v Verdict) String() string {
	switch v {
	case Permit:
		return "PERMIT"
	case Deny:
		return "DENY"
	case Undetermined:
		return "UNDETERMINED"
	}
	return fmt.Sprintf("Verdict(%d)", int(v))
}

// ParseVerdict converts a canonical verdict string back into a Verdict
func ParseVerdict(s string) (Verdict, error) {
	switch s {
	case "PERMIT":
		return Permit, nil
	case "DENY":
		return Deny, nil
	case "UNDETERMINED":
		return Undetermined, nil
	}
	return Undetermined, fmt.Errorf("unknown verdict %q: %w", s, ErrConfiguration)
}

// MarshalJSON encodes the verdict as its canonical string
func (v Verdict) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.String())
}

// UnmarshalJSON decodes a canonical verdict string
func (v *Verdict) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseVerdict(s)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// Effect is the terminal outcome a rule declares in a policy document
type Effect string

const (
	EffectPermit Effect = "permit"
	EffectDeny   Effect = "deny"
)

// Verdict converts a declared effect into its verdict. Both the document
// spellings (permit/deny) and the enum spellings (PERMIT/DENY) are accepted;
// anything else is a configuration error.
func (e Effect) Verdict() (Verdict, error) {
	switch e {
	case EffectPermit, "PERMIT":
		return Permit, nil
	case EffectDeny, "DENY":
		return Deny, nil
	case "":
		return Undetermined, fmt.Errorf("missing effect: %w", ErrConfiguration)
	}
	return Undetermined, fmt.Errorf("invalid effect %q: %w", string(e), ErrConfiguration)
}
