package kycq

import "time"

// Entity carries the timestamps shared by all persisted kycq records.
type Entity struct {
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
