package cache

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// NewTempIdentifier generates an identifier for temporary data owned by
// a user: {user_id}_{label}_{random_hex}. The embedded user ID lets the
// cache layer verify ownership without a separate lookup.
func NewTempIdentifier(userID int64, label string) string {
	random := strings.ReplaceAll(uuid.New().String(), "-", "")
	return fmt.Sprintf("%d_%s_%s", userID, label, random)
}

// TempIdentifierOwner extracts the owning user ID prefix from a temp
// identifier. Returns false if the identifier is malformed.
func TempIdentifierOwner(identifier string) (string, bool) {
	idx := strings.Index(identifier, "_")
	if idx <= 0 {
		return "", false
	}
	return identifier[:idx], true
}
