package errorcache

import "time"

// Entry is the cached error state for one cache key.
type Entry struct {
	FirstSeenAt  time.Time `json:"first_seen_at"`
	ErrorMessage string    `json:"error_message"`
	RetryCount   int       `json:"retry_count"`
	LastRetryAt  time.Time `json:"last_retry_at"`
	Dismissed    bool      `json:"dismissed"`
}

// newEntry returns a fresh, visible entry for message first seen at now.
func newEntry(message string, now time.Time) Entry {
	return Entry{
		FirstSeenAt:  now,
		ErrorMessage: message,
		RetryCount:   0,
		LastRetryAt:  now,
	}
}

// Reason explains a suppression decision.
type Reason string

const (
	ReasonFirstSeen      Reason = "first_seen"
	ReasonDismissed      Reason = "dismissed"
	ReasonMessageChanged Reason = "message_changed"
	ReasonTTLExpired     Reason = "ttl_expired"
	ReasonDuplicate      Reason = "duplicate"
	ReasonStoreError     Reason = "store_error"
	ReasonKeyError       Reason = "key_error"
	ReasonSuccess        Reason = "success"
)

// Decision is the outcome of evaluating an error against the cache.
type Decision struct {
	Show   bool
	Reason Reason
	// Entry is the entry as stored after the decision. It is the zero value
	// when the store could not be consulted.
	Entry Entry
}
