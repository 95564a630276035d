// CLAUDE:SUMMARY Pluggable ID generators for send acknowledgements, audit entries and tool request ids.
// Package idgen provides pluggable ID generation.
//
// Components that mint identifiers (send acknowledgements, audit entries,
// tool request ids) accept a Generator so tests can make them deterministic.
package idgen

import (
	"strconv"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Generator produces unique string identifiers.
type Generator func() string

// UUIDv7 returns a Generator of time-sortable RFC 9562 UUID v7 strings.
func UUIDv7() Generator {
	return func() string {
		return uuid.Must(uuid.NewV7()).String()
	}
}

// Prefixed prepends a fixed prefix to every ID ("sent-", "aud_", "req_").
func Prefixed(prefix string, gen Generator) Generator {
	return func() string {
		return prefix + gen()
	}
}

// Unix returns a Generator of the current Unix time in seconds. IDs minted
// within the same second collide; use it only for acknowledgements that are
// not looked up.
func Unix() Generator {
	return func() string {
		return strconv.FormatInt(time.Now().Unix(), 10)
	}
}

// Sequence returns a Generator of "1", "2", ... for tests.
func Sequence() Generator {
	var n atomic.Int64
	return func() string {
		return strconv.FormatInt(n.Add(1), 10)
	}
}

// Default is UUIDv7.
var Default Generator = UUIDv7()

