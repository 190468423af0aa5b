package models

type Thread struct {
	ID         string `json:"id"`
	ResourceID string `json:"resource"`
	Title      string `json:"title,omitempty"`
	// Metadata is opaque to the engine; clients manage meaning.
	Metadata map[string]any `json:"metadata,omitempty"`
	// Created timestamp (ns)
	CreatedTS int64 `json:"created_ts,omitempty"`
	// Updated timestamp (ns) - last time metadata or thread activity changed
	UpdatedTS int64 `json:"updated_ts,omitempty"`
	// LastSeq is the highest message sequence number assigned in this
	// thread. Strictly increasing even when created timestamps collide.
	LastSeq uint64 `json:"last_seq,omitempty"`
}
