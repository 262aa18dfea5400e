package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/joseph-ayodele/receipt-pipeline/constants"
	"github.com/joseph-ayodele/receipt-pipeline/internal/common"
	"github.com/joseph-ayodele/receipt-pipeline/internal/provider"
	"github.com/joseph-ayodele/receipt-pipeline/internal/storage"
)

// EnrichmentStage turns a summary record into a narrative plus a normalized
// analytics record. The normalized JSON is validated against the enrichment
// schema before anything is written: a stored EnrichmentRecord is always
// complete.
type EnrichmentStage struct {
	store         storage.Store
	generator     provider.GenerationProvider
	keys          Keys
	schemaVersion string
	schema        *jsonschema.Schema
	logger        *slog.Logger
}

// NewEnrichmentStage wires the stage and compiles the normalized-output
// schema up front.
func NewEnrichmentStage(store storage.Store, generator provider.GenerationProvider, keys Keys, schemaVersion string, logger *slog.Logger) (*EnrichmentStage, error) {
	if logger == nil {
		logger = slog.Default()
	}
	schema, err := compileSchema(BuildEnrichmentJSONSchema())
	if err != nil {
		return nil, fmt.Errorf("compiling enrichment schema: %w", err)
	}
	return &EnrichmentStage{
		store:         store,
		generator:     generator,
		keys:          keys,
		schemaVersion: schemaVersion,
		schema:        schema,
		logger:        logger,
	}, nil
}

func (s *EnrichmentStage) Name() constants.StageName {
	return constants.StageEnrichment
}

func (s *EnrichmentStage) Accepts(key string) bool {
	return s.keys.IsSummary(key)
}

func (s *EnrichmentStage) OutputKeys(key string) []string {
	return []string{s.keys.Narrative(key), s.keys.Enriched(key)}
}

// normalizedPayload is the shape the generative capability must return
// (mirrors BuildEnrichmentJSONSchema).
type normalizedPayload struct {
	Vendor   string   `json:"vendor"`
	Date     string   `json:"date"`
	Amount   *float64 `json:"amount"`
	Currency string   `json:"currency"`
	Items    []string `json:"items"`
	Category string   `json:"category"`
}

func (s *EnrichmentStage) Process(ctx context.Context, key string) error {
	s.logger.Info("enrich.start", "key", key)

	obj, err := s.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return common.NewStageError(s.Name(), key, common.CategoryNotFound, fmt.Errorf("summary object missing: %w", err))
		}
		return common.NewStageError(s.Name(), key, common.CategoryStorageFailure, err)
	}

	var summary SummaryRecord
	if err := json.Unmarshal(obj.Data, &summary); err != nil {
		return common.NewStageError(s.Name(), key, common.CategoryUnsupportedInput,
			fmt.Errorf("summary is not valid JSON: %w", err))
	}
	// A version mismatch is structural: retrying cannot fix it.
	if summary.SchemaVersion != s.schemaVersion {
		return common.NewStageError(s.Name(), key, common.CategoryUnsupportedInput,
			fmt.Errorf("%w: got %q, want %q", common.ErrSchemaVersionMismatch, summary.SchemaVersion, s.schemaVersion))
	}

	gen, err := s.generator.Generate(ctx, buildEnrichmentPrompt(summary))
	if err != nil {
		return common.NewStageError(s.Name(), key, providerCategory(err), err)
	}

	// Narrative without valid JSON fails the whole attempt; the generation
	// request is retried rather than a partial record persisted.
	if len(gen.NormalizedJSON) == 0 {
		return common.NewStageError(s.Name(), key, common.CategoryValidationFailure,
			errors.New("generation returned no normalized JSON"))
	}
	if err := validateJSON(s.schema, gen.NormalizedJSON); err != nil {
		return common.NewStageError(s.Name(), key, common.CategoryValidationFailure, err)
	}

	var payload normalizedPayload
	if err := json.Unmarshal(gen.NormalizedJSON, &payload); err != nil {
		return common.NewStageError(s.Name(), key, common.CategoryValidationFailure,
			fmt.Errorf("decode normalized payload: %w", err))
	}

	// Normalize money fields, falling back to the summary's printed total
	// when the model abstains.
	if payload.Amount == nil {
		payload.Amount = ParseAmount(summary.Total)
	}
	if payload.Currency == "" {
		payload.Currency = DetectCurrency(summary.Total)
	}

	record := EnrichmentRecord{
		SchemaVersion:    s.schemaVersion,
		SourceSummaryKey: key,
		Vendor:           payload.Vendor,
		Date:             payload.Date,
		Amount:           payload.Amount,
		Currency:         payload.Currency,
		Items:            payload.Items,
		Category:         payload.Category,
		EnrichedAt:       time.Now().UTC(),
	}
	recordBytes, err := json.Marshal(record)
	if err != nil {
		return common.NewStageError(s.Name(), key, common.CategoryStorageFailure,
			fmt.Errorf("encode enrichment record: %w", err))
	}

	narrativeKey := s.keys.Narrative(key)
	if err := s.store.Put(ctx, narrativeKey, []byte(gen.Narrative), map[string]string{"content-type": "text/plain; charset=utf-8"}); err != nil {
		return common.NewStageError(s.Name(), key, common.CategoryStorageFailure,
			fmt.Errorf("put %s: %w", narrativeKey, err))
	}
	enrichedKey := s.keys.Enriched(key)
	if err := s.store.Put(ctx, enrichedKey, recordBytes, map[string]string{"content-type": "application/json"}); err != nil {
		return common.NewStageError(s.Name(), key, common.CategoryStorageFailure,
			fmt.Errorf("put %s: %w", enrichedKey, err))
	}

	s.logger.Info("enrich.ok",
		"key", key, "narrative_key", narrativeKey, "enriched_key", enrichedKey,
		"vendor", record.Vendor, "category", record.Category, "currency", record.Currency,
	)
	return nil
}
