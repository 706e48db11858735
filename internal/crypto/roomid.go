package crypto

import (
	"strings"

	"github.com/google/uuid"
)

// NewRoomID generates a short shareable room identifier: the uppercase
// first eight hex characters of a random UUID.
func NewRoomID() string {
	return strings.ToUpper(uuid.New().String()[:8])
}
