// Package cursor persists the id of the most recently processed feed item.
// The cursor only ever moves forward in feed order; the pipeline writes it
// after every admit/reject decision, delivered or not.
package cursor

// Store is the persistence contract. Load returns "" when no cursor is
// known (first run, lost file, corrupt payload) — never an error for a
// merely unreadable cursor, since that must degrade to bootstrap mode
// rather than crash the run.
type Store interface {
	Load() (string, error)
	Save(id, title string) error
	Close() error
}
