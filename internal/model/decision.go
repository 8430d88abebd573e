package model

import "time"

// Decision is one persisted suppression decision.
type Decision struct {
	ID         string    `json:"id" bson:"_id"`
	Key        string    `json:"key" bson:"key"`
	Operation  string    `json:"operation" bson:"operation"`
	Message    string    `json:"message" bson:"message"`
	Reason     string    `json:"reason" bson:"reason"`
	Visible    bool      `json:"visible" bson:"visible"`
	RetryCount int       `json:"retry_count" bson:"retry_count"`
	RecordedAt time.Time `json:"recorded_at" bson:"recorded_at"`
}
