// Package domain holds the core entities, interfaces, and errors of the
// setlist voting core. It has no dependencies on adapters; concrete
// implementations live in their own packages and are wired in cmd/server.
package domain
