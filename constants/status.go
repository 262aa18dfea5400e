package constants

// StageName identifies a pipeline stage. Output keys are derived from
// (asset key, stage name), so these values must stay stable.
type StageName string

const (
	StageExtraction StageName = "extraction"
	StageEnrichment StageName = "enrichment"
)

// AttemptStatus is the canonical status for rows in processing_attempts.
type AttemptStatus string

// Stable values (store these exact strings in the ledger).
const (
	AttemptPending         AttemptStatus = "PENDING"          // delivery received, processing underway
	AttemptSucceeded       AttemptStatus = "SUCCEEDED"        // terminal outputs are durable
	AttemptFailedPermanent AttemptStatus = "FAILED_PERMANENT" // dead-lettered, never retried automatically
)
