package ports

import "context"

// StatusReport aggregates the read-only snapshots shown to observers.
// All fields are plain values so any presentation layer can render them.
type StatusReport struct {
	Engine    map[string]any
	Risk      map[string]any
	Portfolio map[string]any
	Timing    map[string]any
}

// Notifier presents periodic status to the user. The console implementation
// prints formatted tables.
type Notifier interface {
	Notify(ctx context.Context, report StatusReport) error
}
