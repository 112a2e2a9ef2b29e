// Package database provides the data access layer for the sync engine.
//
// # Architecture
//
// The database layer is organized into domain-specific sub-packages:
//
//	database/
//	├── database.go      # Connection setup, pragmas, migrations
//	├── jobs/            # Sync job lifecycle (pending → processing → completed|failed)
//	├── checkpoints/     # Per-resource resume points
//	├── records/         # Normalized orders and products, upserted by external id
//	└── events/          # Per-batch sync events
//
// # Using Sub-packages
//
//	db, err := database.NewDatabase("./storesync.db", log)
//
//	jobsRepo := jobs.NewRepository(db.DB)
//	checkpointRepo := checkpoints.NewRepository(db.DB)
//	recordsRepo := records.NewRepository(db.DB)
//
// # Interface Implementations
//
//   - jobs.Repository: implements syncer.JobStore
//   - checkpoints.Repository: implements syncer.CheckpointStore
//   - records.Repository: implements persister.NormalizedWriter
//   - events.Repository: implements syncer.EventLog
//
// The raw document mirror lives in its own database file, see package mirror.
package database
