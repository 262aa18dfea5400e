package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/receipt-pipeline/constants"
	"github.com/joseph-ayodele/receipt-pipeline/internal/common"
	"github.com/joseph-ayodele/receipt-pipeline/internal/event"
	"github.com/joseph-ayodele/receipt-pipeline/internal/ledger"
	"github.com/joseph-ayodele/receipt-pipeline/internal/pipeline"
	"github.com/joseph-ayodele/receipt-pipeline/internal/provider"
	"github.com/joseph-ayodele/receipt-pipeline/internal/storage"
)

// scriptedExtractor consumes one entry of errs per call, then succeeds with
// res. A nil entry means that call succeeds.
type scriptedExtractor struct {
	mu   sync.Mutex
	n    int
	errs []error
	res  provider.ExtractionResult
}

func (f *scriptedExtractor) Extract(ctx context.Context, image []byte, contentType string) (provider.ExtractionResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.n++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return provider.ExtractionResult{}, err
		}
	}
	return f.res, nil
}

func (f *scriptedExtractor) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.n
}

type scriptedGenerator struct {
	mu   sync.Mutex
	n    int
	errs []error
	res  provider.GenerationResult
}

func (f *scriptedGenerator) Generate(ctx context.Context, prompt string) (provider.GenerationResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.n++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return provider.GenerationResult{}, err
		}
	}
	return f.res, nil
}

func (f *scriptedGenerator) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.n
}

func goodExtraction() provider.ExtractionResult {
	return provider.ExtractionResult{
		Vendor: "Blue Bottle Coffee",
		Date:   "2024-06-01",
		Total:  "$12.50",
		Items:  []provider.LineItem{{Description: "Latte", Amount: "5.50"}},
		Raw:    []byte(`{"Blocks":[]}`),
	}
}

func goodGeneration() provider.GenerationResult {
	return provider.GenerationResult{
		Narrative:      "Spent $12.50 at Blue Bottle Coffee on 2024-06-01.",
		NormalizedJSON: []byte(`{"vendor":"Blue Bottle Coffee","date":"2024-06-01","amount":12.5,"currency":"USD","items":["Latte"],"category":"Dining"}`),
	}
}

type fixture struct {
	store       *storage.MemoryStore
	keys        pipeline.Keys
	coord       *Coordinator
	attempts    ledger.AttemptRepository
	deadLetters ledger.DeadLetterRepository
}

func testRetry() common.RetryConfig {
	return common.RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
		MaxDelay:    5 * time.Millisecond,
	}
}

func newFixture(t *testing.T, ext provider.ExtractionProvider, gen provider.GenerationProvider, retry common.RetryConfig) *fixture {
	t.Helper()
	ctx := context.Background()
	logger := slog.Default()

	db, err := ledger.Open(ctx, ":memory:", logger)
	require.NoError(t, err)
	t.Cleanup(func() { ledger.Close(db, logger) })

	store := storage.NewMemoryStore("test")
	keys := pipeline.NewKeys(common.PipelineConfig{
		UploadsPrefix:    constants.DefaultUploadsPrefix,
		ExtractionPrefix: constants.DefaultExtractionPrefix,
		EnrichmentPrefix: constants.DefaultEnrichmentPrefix,
	})
	extraction := pipeline.NewExtractionStage(store, ext, keys, constants.SummarySchemaVersion, logger)
	enrichment, err := pipeline.NewEnrichmentStage(store, gen, keys, constants.SummarySchemaVersion, logger)
	require.NoError(t, err)

	attempts := ledger.NewAttemptRepository(db, logger)
	deadLetters := ledger.NewDeadLetterRepository(db, logger)
	coord := New(store, []pipeline.Stage{extraction, enrichment}, attempts, deadLetters, retry, logger)
	return &fixture{store: store, keys: keys, coord: coord, attempts: attempts, deadLetters: deadLetters}
}

func created(key string) event.ObjectCreated {
	return event.ObjectCreated{Bucket: "test", Key: key, OccurredAt: time.Now().UTC()}
}

func TestHandleEventIgnoresUnroutedKeys(t *testing.T) {
	ctx := context.Background()
	ext := &scriptedExtractor{res: goodExtraction()}
	gen := &scriptedGenerator{res: goodGeneration()}
	f := newFixture(t, ext, gen, testRetry())

	for _, key := range []string{
		"bedrock-output/receipt.jpg.bedrock.json",
		"bedrock-output/receipt.jpg.summary.txt",
		"textract-output/receipt.jpg.textract.json",
		"scratch/receipt.jpg",
	} {
		require.NoError(t, f.coord.HandleEvent(ctx, created(key)))
	}
	assert.Zero(t, ext.calls())
	assert.Zero(t, gen.calls())
}

func TestDuplicateDeliveriesAreIdempotent(t *testing.T) {
	ctx := context.Background()
	ext := &scriptedExtractor{res: goodExtraction()}
	gen := &scriptedGenerator{res: goodGeneration()}
	f := newFixture(t, ext, gen, testRetry())

	assetKey := "uploads/receipt.jpg"
	require.NoError(t, f.store.Put(ctx, assetKey, []byte("jpeg"), nil))

	// At-least-once delivery: the same notification arrives repeatedly.
	for i := 0; i < 3; i++ {
		require.NoError(t, f.coord.HandleEvent(ctx, created(assetKey)))
	}

	assert.Equal(t, 1, ext.calls(), "exactly one committed capability invocation")

	att, err := f.attempts.Get(ctx, assetKey, constants.StageExtraction)
	require.NoError(t, err)
	require.NotNil(t, att)
	assert.Equal(t, constants.AttemptSucceeded, att.Status)
	assert.Equal(t, 1, att.Attempts)
}

func TestTransientFailuresRetryThenSucceed(t *testing.T) {
	ctx := context.Background()
	ext := &scriptedExtractor{
		errs: []error{
			provider.NewTransientError(errors.New("timeout")),
			provider.NewTransientError(errors.New("timeout")),
		},
		res: goodExtraction(),
	}
	gen := &scriptedGenerator{res: goodGeneration()}
	f := newFixture(t, ext, gen, testRetry())

	assetKey := "uploads/receipt.jpg"
	require.NoError(t, f.store.Put(ctx, assetKey, []byte("jpeg"), nil))
	require.NoError(t, f.coord.HandleEvent(ctx, created(assetKey)))

	assert.Equal(t, 3, ext.calls())

	att, err := f.attempts.Get(ctx, assetKey, constants.StageExtraction)
	require.NoError(t, err)
	require.NotNil(t, att)
	assert.Equal(t, constants.AttemptSucceeded, att.Status)
	assert.Equal(t, 3, att.Attempts)

	// The record was written once, from the successful response.
	_, err = f.store.Get(ctx, f.keys.Summary(assetKey))
	require.NoError(t, err)

	dls, err := f.deadLetters.List(ctx, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, dls)
}

func TestPermanentFailureDeadLettersWithoutRetry(t *testing.T) {
	ctx := context.Background()
	permanent := provider.NewPermanentError(errors.New("document rejected"))
	ext := &scriptedExtractor{errs: []error{permanent, permanent, permanent}}
	gen := &scriptedGenerator{res: goodGeneration()}
	f := newFixture(t, ext, gen, testRetry())

	assetKey := "uploads/bad.jpg"
	require.NoError(t, f.store.Put(ctx, assetKey, []byte("garbage"), nil))

	err := f.coord.HandleEvent(ctx, created(assetKey))
	require.Error(t, err)
	assert.Equal(t, 1, ext.calls(), "permanent failures are not retried")

	att, aerr := f.attempts.Get(ctx, assetKey, constants.StageExtraction)
	require.NoError(t, aerr)
	require.NotNil(t, att)
	assert.Equal(t, constants.AttemptFailedPermanent, att.Status)

	dls, derr := f.deadLetters.List(ctx, nil, nil)
	require.NoError(t, derr)
	require.Len(t, dls, 1)
	assert.Equal(t, assetKey, dls[0].AssetKey)
	assert.Equal(t, constants.StageExtraction, dls[0].Stage)
	assert.Equal(t, common.CategoryProviderPermanent, dls[0].Category)
	assert.Equal(t, 1, dls[0].Attempts)

	// A redelivery short-circuits on the terminal ledger entry.
	require.NoError(t, f.coord.HandleEvent(ctx, created(assetKey)))
	assert.Equal(t, 1, ext.calls())
	dls, derr = f.deadLetters.List(ctx, nil, nil)
	require.NoError(t, derr)
	assert.Len(t, dls, 1)
}

func TestUnsupportedInputDeadLetters(t *testing.T) {
	ctx := context.Background()
	ext := &scriptedExtractor{res: goodExtraction()}
	gen := &scriptedGenerator{res: goodGeneration()}
	f := newFixture(t, ext, gen, testRetry())

	assetKey := "uploads/archive.zip"
	require.NoError(t, f.store.Put(ctx, assetKey, []byte("PK"), nil))

	err := f.coord.HandleEvent(ctx, created(assetKey))
	require.Error(t, err)
	assert.Zero(t, ext.calls())

	dls, derr := f.deadLetters.List(ctx, nil, nil)
	require.NoError(t, derr)
	require.Len(t, dls, 1)
	assert.Equal(t, common.CategoryUnsupportedInput, dls[0].Category)
}

func TestRetriesExhausted(t *testing.T) {
	ctx := context.Background()
	transient := provider.NewTransientError(errors.New("still down"))
	ext := &scriptedExtractor{errs: []error{transient, transient, transient, transient}}
	gen := &scriptedGenerator{res: goodGeneration()}
	retry := testRetry()
	retry.MaxAttempts = 2
	f := newFixture(t, ext, gen, retry)

	assetKey := "uploads/receipt.jpg"
	require.NoError(t, f.store.Put(ctx, assetKey, []byte("jpeg"), nil))

	err := f.coord.HandleEvent(ctx, created(assetKey))
	require.Error(t, err)
	assert.Equal(t, 2, ext.calls())

	att, aerr := f.attempts.Get(ctx, assetKey, constants.StageExtraction)
	require.NoError(t, aerr)
	require.NotNil(t, att)
	assert.Equal(t, constants.AttemptFailedPermanent, att.Status)
	assert.Equal(t, 2, att.Attempts)

	dls, derr := f.deadLetters.List(ctx, nil, nil)
	require.NoError(t, derr)
	require.Len(t, dls, 1)
	assert.Equal(t, common.CategoryProviderTransient, dls[0].Category)
	assert.Equal(t, 2, dls[0].Attempts)
}

func TestValidationFailureRetries(t *testing.T) {
	ctx := context.Background()
	ext := &scriptedExtractor{res: goodExtraction()}
	// Narrative but no JSON: a validation failure on every attempt.
	gen := &scriptedGenerator{res: provider.GenerationResult{Narrative: "Narrative only."}}
	retry := testRetry()
	retry.MaxAttempts = 2
	f := newFixture(t, ext, gen, retry)

	assetKey := "uploads/receipt.jpg"
	require.NoError(t, f.store.Put(ctx, assetKey, []byte("jpeg"), nil))
	require.NoError(t, f.coord.HandleEvent(ctx, created(assetKey)))

	summaryKey := f.keys.Summary(assetKey)
	err := f.coord.HandleEvent(ctx, created(summaryKey))
	require.Error(t, err)
	assert.Equal(t, 2, gen.calls(), "validation failures are retried up to the budget")

	dls, derr := f.deadLetters.List(ctx, nil, nil)
	require.NoError(t, derr)
	require.Len(t, dls, 1)
	assert.Equal(t, constants.StageEnrichment, dls[0].Stage)
	assert.Equal(t, common.CategoryValidationFailure, dls[0].Category)
}

// wireNotifications feeds store create notifications straight back into the
// coordinator, standing in for the bus.
func wireNotifications(ctx context.Context, f *fixture) {
	f.store.OnCreate(func(ev event.ObjectCreated) {
		_ = f.coord.HandleEvent(ctx, ev)
	})
}

func TestEndToEndGoodReceipt(t *testing.T) {
	ctx := context.Background()
	ext := &scriptedExtractor{res: goodExtraction()}
	gen := &scriptedGenerator{res: goodGeneration()}
	f := newFixture(t, ext, gen, testRetry())
	wireNotifications(ctx, f)

	assetKey := "uploads/receipt.jpg"
	require.NoError(t, f.store.Put(ctx, assetKey, []byte("jpeg bytes"), nil))

	// All four artifacts exist at their deterministic keys.
	for _, key := range []string{
		f.keys.RawExtraction(assetKey),
		f.keys.Summary(assetKey),
		f.keys.Narrative(f.keys.Summary(assetKey)),
		f.keys.Enriched(f.keys.Summary(assetKey)),
	} {
		_, err := f.store.Get(ctx, key)
		require.NoError(t, err, "artifact %s", key)
	}

	obj, err := f.store.Get(ctx, f.keys.Enriched(f.keys.Summary(assetKey)))
	require.NoError(t, err)
	var record pipeline.EnrichmentRecord
	require.NoError(t, json.Unmarshal(obj.Data, &record))
	assert.Equal(t, "Blue Bottle Coffee", record.Vendor)
	assert.Equal(t, "2024-06-01", record.Date)
	require.NotNil(t, record.Amount)
	assert.InDelta(t, 12.5, *record.Amount, 0.001)

	for _, stage := range []constants.StageName{constants.StageExtraction, constants.StageEnrichment} {
		att, aerr := f.attempts.Get(ctx, attemptKey(f, assetKey, stage), stage)
		require.NoError(t, aerr)
		require.NotNil(t, att, "stage %s", stage)
		assert.Equal(t, constants.AttemptSucceeded, att.Status, "stage %s", stage)
	}

	// A duplicate upload notification is a no-op end to end.
	require.NoError(t, f.coord.HandleEvent(ctx, created(assetKey)))
	assert.Equal(t, 1, ext.calls())
	assert.Equal(t, 1, gen.calls())
}

// attemptKey returns the ledger key each stage records under: the upload key
// for extraction, the summary key for enrichment.
func attemptKey(f *fixture, assetKey string, stage constants.StageName) string {
	if stage == constants.StageEnrichment {
		return f.keys.Summary(assetKey)
	}
	return assetKey
}

func TestEndToEndCorruptedImage(t *testing.T) {
	ctx := context.Background()
	permanent := provider.NewPermanentError(errors.New("unreadable document"))
	ext := &scriptedExtractor{errs: []error{permanent}}
	gen := &scriptedGenerator{res: goodGeneration()}
	f := newFixture(t, ext, gen, testRetry())
	wireNotifications(ctx, f)

	require.NoError(t, f.store.Put(ctx, "uploads/bad.jpg", []byte("not a jpeg"), nil))

	summaries, err := f.store.List(ctx, constants.DefaultExtractionPrefix)
	require.NoError(t, err)
	assert.Empty(t, summaries, "no extraction artifacts for a rejected image")

	dls, err := f.deadLetters.List(ctx, nil, nil)
	require.NoError(t, err)
	require.Len(t, dls, 1)
	assert.Equal(t, "uploads/bad.jpg", dls[0].AssetKey)
	assert.Equal(t, common.CategoryProviderPermanent, dls[0].Category)
	assert.Equal(t, 1, ext.calls())
	assert.Zero(t, gen.calls())
}

func TestEndToEndTransientThenSuccess(t *testing.T) {
	ctx := context.Background()
	ext := &scriptedExtractor{res: goodExtraction()}
	gen := &scriptedGenerator{
		errs: []error{
			provider.NewTransientError(context.DeadlineExceeded),
			provider.NewTransientError(context.DeadlineExceeded),
		},
		res: goodGeneration(),
	}
	f := newFixture(t, ext, gen, testRetry())
	wireNotifications(ctx, f)

	assetKey := "uploads/receipt.jpg"
	require.NoError(t, f.store.Put(ctx, assetKey, []byte("jpeg"), nil))

	summaryKey := f.keys.Summary(assetKey)
	_, err := f.store.Get(ctx, f.keys.Enriched(summaryKey))
	require.NoError(t, err, "enrichment record written from the third response")

	att, err := f.attempts.Get(ctx, summaryKey, constants.StageEnrichment)
	require.NoError(t, err)
	require.NotNil(t, att)
	assert.Equal(t, constants.AttemptSucceeded, att.Status)
	assert.Equal(t, 3, att.Attempts)
	assert.Equal(t, 3, gen.calls())

	dls, err := f.deadLetters.List(ctx, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, dls)
}
