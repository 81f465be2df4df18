package metadata

import "github.com/google/uuid"

// newSessionID generates a unique session identifier.
func newSessionID() string {
	return uuid.NewString()
}
