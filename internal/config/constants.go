package config

// Default paths for databases
const (
	// DefaultDatabasePath is the default path for the normalized store, job and checkpoint tables
	DefaultDatabasePath = "./storesync.db"

	// DefaultMirrorDatabasePath is the default path for the raw document mirror
	DefaultMirrorDatabasePath = "./storesync-mirror.db"

	// DefaultShopifyAPIVersion is the Admin API version used when none is configured
	DefaultShopifyAPIVersion = "2024-10"
)
