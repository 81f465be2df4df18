package relation

import "github.com/google/uuid"

// uuidString generates a unique relation or block-rule identifier.
func uuidString() string {
	return uuid.NewString()
}
