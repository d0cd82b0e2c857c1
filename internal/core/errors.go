package core

// errors.go defines the failure taxonomy the web layer maps to HTTP
// statuses. Sentinels are matched with errors.Is; the conversion
// gateway's typed error is matched with errors.As.

import (
	"errors"
	"fmt"
)

// ErrBadInput marks caller mistakes: wrong extension, oversized payload,
// malformed archive, malformed id list. Mapped to 4xx, never retried.
var ErrBadInput = errors.New("bad input")

// ErrNothingToInsert is returned when the target relation has no columns
// besides its identifier, so a merge statement would be vacuous. This is
// a misconfiguration, not a caller mistake.
var ErrNothingToInsert = errors.New("target relation has no mappable columns")

// ErrMissingRelation is returned when introspection finds no columns for
// the target or staging relation. An empty column list means the
// relation does not exist, which aborts reconciliation.
var ErrMissingRelation = errors.New("relation does not exist")

// ErrNoFeatures is returned when an id-filtered export produces no
// archive: the requested features do not exist.
var ErrNoFeatures = errors.New("no matching features")

// ErrEmptyIDList and ErrBadIDList distinguish the two ways an id-set
// request can be malformed. Both match ErrBadInput.
var (
	ErrEmptyIDList = fmt.Errorf("%w: empty id list", ErrBadInput)
	ErrBadIDList   = fmt.Errorf("%w: bad id list format", ErrBadInput)
)
