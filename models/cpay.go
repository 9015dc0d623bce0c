package models

import "time"

// IdempotencyRecord represents an idempotency key record stored in Mongo.
type IdempotencyRecord struct {
	Key         string         `bson:"key" json:"key"`
	Method      string         `bson:"method" json:"method"`
	Path        string         `bson:"path" json:"path"`
	UserID      string         `bson:"userid" json:"userid"`
	RequestHash string         `bson:"request_hash" json:"request_hash"`
	Response    map[string]any `bson:"response,omitempty" json:"response,omitempty"`
	CreatedAt   time.Time      `bson:"created_at" json:"created_at"`
	ExpiresAt   time.Time      `bson:"expires_at" json:"expires_at"`
}

// PaymentEvent is the payload the payment collaborator posts when a charge settles.
type PaymentEvent struct {
	EventID string  `json:"eventId"`
	Type    string  `json:"type"`
	OrderID string  `json:"orderId"`
	Amount  float64 `json:"amount"`
}
