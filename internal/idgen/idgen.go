package idgen

import "github.com/google/uuid"

// NewFunc produces globally unique identifiers. Tests may replace it to make
// generated ids deterministic.
var NewFunc = func() string { return uuid.New().String() }

// New returns a new globally unique identifier as string.
func New() string { return NewFunc() }
