// Package storage defines the RunStore contract for persisted run logs,
// together with sentinel errors and tenant context helpers shared by the
// backends in the memory, postgres, sqlite and jsonfile subpackages.
package storage
