package xa

import "github.com/google/uuid"

// NewXid builds a branch identifier unique across concurrently active
// branches. The prefix groups branches of one logical job, which is what
// the stale-branch sweep filters on.
func NewXid(prefix string) string {
	return prefix + uuid.NewString()
}
