package entities

import "time"

// EscrowView is one append-only audit row: a single access to a session's
// state, recorded whether or not the access changed anything. Rows are never
// updated or deleted.
type EscrowView struct {
	ViewID        string
	EscrowID      string
	ViewerUserID  string
	ViewerContact string
	ViewedAt      time.Time
	IPAddress     string
}
