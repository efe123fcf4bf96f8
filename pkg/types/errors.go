package types

import "errors"

// ErrConfiguration marks structural defects in policies and evaluation
// wiring: malformed nodes, invalid effects, unknown combining algorithms,
// empty target group lists, malformed matchers and attribute references.
// Detect it with errors.Is; it is never downgraded to an Undetermined
// verdict.
var ErrConfiguration = errors.New("policy configuration error")
