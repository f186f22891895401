package middleware

import (
	"github.com/und3rrr/media-cleaner/store"
)

// CapacityMiddleware enforces the §4.G admission rule "PROCESSING count <
// max_concurrent_tasks", the third rule in the fixed admission order (after
// the extension and size checks the handler applies before reaching here).
type CapacityMiddleware struct {
	Store              *store.Store
	MaxConcurrentTasks int
}

// Allow reports whether another task may start. It is called from inside
// the upload handlers rather than wrapped as httprouter middleware, since
// the admission order requires it to run after the extension and size
// checks but before param validation.
func (c *CapacityMiddleware) Allow() bool {
	return c.Store.Stats().Processing < c.MaxConcurrentTasks
}
