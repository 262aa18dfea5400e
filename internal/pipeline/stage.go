package pipeline

import (
	"context"

	"github.com/joseph-ayodele/receipt-pipeline/constants"
)

// Stage is one step of the pipeline as the coordinator sees it: a filter on
// incoming keys, a deterministic output-key derivation for the idempotency
// check, and a processing function. Stage implementations are stateless per
// invocation; all shared state lives in the object store.
type Stage interface {
	Name() constants.StageName

	// Accepts reports whether this stage is triggered by a create event
	// for the given key.
	Accepts(key string) bool

	// OutputKeys returns every key Process will write for this input, in
	// write order. The coordinator treats their joint existence as proof
	// of a prior successful run.
	OutputKeys(key string) []string

	// Process runs one invocation. Failures carry a common.StageError so
	// the coordinator can classify without inspecting message strings.
	Process(ctx context.Context, key string) error
}
