package models

// Snapshot cache resource types.
const (
	SnapshotProducts       = "products"
	SnapshotPendingSales   = "pending-sales"
	SnapshotProductChanges = "product-changes"
)

// TempIDPrefix marks identifiers assigned locally to entities created
// offline, until the server returns a canonical id.
const TempIDPrefix = "temp-"

const (
	DefaultSyncIntervalSeconds = 30
	DefaultRetryLimit          = 3
	DefaultRemoteTimeout       = 10
	DefaultProbeInterval       = 15
	DefaultRedisTTL            = 3600
)
