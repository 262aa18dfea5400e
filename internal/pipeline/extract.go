package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/receipt-pipeline/constants"
	"github.com/joseph-ayodele/receipt-pipeline/internal/common"
	"github.com/joseph-ayodele/receipt-pipeline/internal/provider"
	"github.com/joseph-ayodele/receipt-pipeline/internal/storage"
)

// ExtractionStage turns a stored receipt image into a raw extraction record
// and a normalized summary record. The summary write is what triggers
// enrichment downstream.
type ExtractionStage struct {
	store         storage.Store
	extractor     provider.ExtractionProvider
	keys          Keys
	schemaVersion string
	logger        *slog.Logger
}

// NewExtractionStage wires the stage. schemaVersion is stamped into both
// artifacts.
func NewExtractionStage(store storage.Store, extractor provider.ExtractionProvider, keys Keys, schemaVersion string, logger *slog.Logger) *ExtractionStage {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExtractionStage{
		store:         store,
		extractor:     extractor,
		keys:          keys,
		schemaVersion: schemaVersion,
		logger:        logger,
	}
}

func (s *ExtractionStage) Name() constants.StageName {
	return constants.StageExtraction
}

func (s *ExtractionStage) Accepts(key string) bool {
	return s.keys.IsUpload(key)
}

func (s *ExtractionStage) OutputKeys(key string) []string {
	return []string{s.keys.RawExtraction(key), s.keys.Summary(key)}
}

func (s *ExtractionStage) Process(ctx context.Context, key string) error {
	s.logger.Info("extract.start", "key", key)

	if !constants.IsSupportedAsset(key) {
		return common.NewStageError(s.Name(), key, common.CategoryUnsupportedInput,
			fmt.Errorf("%w: %s", common.ErrUnsupportedFormat, key))
	}

	obj, err := s.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return common.NewStageError(s.Name(), key, common.CategoryNotFound, common.ErrAssetNotFound)
		}
		return common.NewStageError(s.Name(), key, common.CategoryStorageFailure, err)
	}

	res, err := s.extractor.Extract(ctx, obj.Data, constants.ContentTypeForKey(key))
	if err != nil {
		return common.NewStageError(s.Name(), key, providerCategory(err), err)
	}

	// Empty structured fields are a successful-but-poor extraction, not an
	// error; regex fallbacks over the raw payload recover what they can.
	if res.Total == "" {
		res.Total = fallbackTotal(res.Raw)
	}
	if res.Date == "" {
		res.Date = fallbackDate(res.Raw)
	}
	quality := QualityOK
	if len(res.Items) == 0 && res.Vendor == "" && res.Total == "" {
		quality = QualityLowConfidence
		s.logger.Warn("extract.low_confidence", "key", key)
	}

	items := make([]LineItem, 0, len(res.Items))
	for _, it := range res.Items {
		items = append(items, LineItem{
			Description: it.Description,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
			Amount:      it.Amount,
		})
	}

	record := ExtractionRecord{
		SchemaVersion:   s.schemaVersion,
		Source:          key,
		Vendor:          res.Vendor,
		Date:            res.Date,
		Total:           res.Total,
		Items:           items,
		Quality:         quality,
		ProviderPayload: normalizeRawPayload(res.Raw),
		ExtractedAt:     time.Now().UTC(),
	}
	summary := SummaryRecord{
		SchemaVersion: s.schemaVersion,
		Source:        key,
		Vendor:        res.Vendor,
		Date:          res.Date,
		Total:         res.Total,
		Items:         items,
		Quality:       quality,
	}

	rawKey := s.keys.RawExtraction(key)
	if err := s.putJSON(ctx, rawKey, record); err != nil {
		return common.NewStageError(s.Name(), key, common.CategoryStorageFailure, err)
	}
	// Both artifacts go to deterministic keys, so a retry after a failure
	// here rewrites the raw record identically before reattempting the
	// summary: atomic in effect, no partial state survives.
	summaryKey := s.keys.Summary(key)
	if err := s.putJSON(ctx, summaryKey, summary); err != nil {
		return common.NewStageError(s.Name(), key, common.CategoryStorageFailure, err)
	}

	s.logger.Info("extract.ok",
		"key", key, "raw_key", rawKey, "summary_key", summaryKey,
		"vendor", res.Vendor, "total", res.Total, "items", len(items), "quality", quality,
	)
	return nil
}

func (s *ExtractionStage) putJSON(ctx context.Context, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := s.store.Put(ctx, key, b, map[string]string{"content-type": "application/json"}); err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

// normalizeRawPayload keeps the provider payload embeddable in a JSON
// record: verbatim when it already is JSON, string-quoted otherwise.
func normalizeRawPayload(raw []byte) json.RawMessage {
	if len(raw) == 0 {
		return nil
	}
	if json.Valid(raw) {
		return raw
	}
	quoted, err := json.Marshal(string(raw))
	if err != nil {
		return nil
	}
	return quoted
}

// providerCategory maps a capability error onto the retry taxonomy.
func providerCategory(err error) common.Category {
	var pe *provider.Error
	if errors.As(err, &pe) {
		if pe.Transient {
			return common.CategoryProviderTransient
		}
		return common.CategoryProviderPermanent
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return common.CategoryProviderTransient
	}
	return common.CategoryProviderTransient
}
