package templates

//go:generate templ generate

import "time"

// SecurityAlert is the data for a two-factor security notice.
type SecurityAlert struct {
	Title      string
	Summary    string
	OccurredAt time.Time
	IP         string
	// Action is shown when the recipient did not trigger the change.
	Action string
}
