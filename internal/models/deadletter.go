package models

import "time"

type DeadLetterStatus string

const (
	DeadLetterRetryable DeadLetterStatus = "retryable"
	DeadLetterPermanent DeadLetterStatus = "permanent"
)

// DeadLetter keeps an item the pipeline could not process, with its raw
// payload preserved byte for byte when one was fetched.
type DeadLetter struct {
	Signature    string           `json:"signature"`
	Mint         string           `json:"mint"`
	Reason       string           `json:"reason"`
	Payload      []byte           `json:"payload,omitempty"`
	Attempts     int              `json:"attempts"`
	Status       DeadLetterStatus `json:"status"`
	FirstFailure time.Time        `json:"first_failure"`
	LastFailure  time.Time        `json:"last_failure"`
}
