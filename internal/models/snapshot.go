package models

import (
	"encoding/json"
	"time"
)

// Snapshot is the last-known-good copy of remote data for one resource type,
// kept locally for offline reads.
type Snapshot struct {
	Type        string          `json:"type"`
	Data        json.RawMessage `json:"data"`
	LastUpdated time.Time       `json:"last_updated"`
}
