package models

import "time"

// DeadLetter records a delivery that exhausted its retries.
type DeadLetter struct {
	ID       string    `json:"id"`
	Signal   Signal    `json:"signal"`
	Consumer string    `json:"consumer"`
	Error    string    `json:"error"`
	Attempts int       `json:"attempts"`
	FailedAt time.Time `json:"failed_at"`
}
