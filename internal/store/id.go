package store

import (
	"fmt"

	"github.com/google/uuid"
)

// generatePrefixedID creates a globally unique, opaque ID in the format:
//
//	{prefix}_{uuid}
//
// Used for job, step, and source IDs so they stay greppable in logs while
// carrying the collision resistance of a random UUIDv4.
func generatePrefixedID(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, uuid.NewString())
}
