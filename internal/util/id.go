package util

import (
	"strings"

	"github.com/google/uuid"
)

// NewID returns a 32 character hex id for server-side rows and jobs.
func NewID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
