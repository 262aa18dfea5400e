package coordinator

import (
	"context"
	"errors"
	"log/slog"

	"github.com/joseph-ayodele/receipt-pipeline/constants"
	"github.com/joseph-ayodele/receipt-pipeline/internal/common"
	"github.com/joseph-ayodele/receipt-pipeline/internal/event"
	"github.com/joseph-ayodele/receipt-pipeline/internal/ledger"
	"github.com/joseph-ayodele/receipt-pipeline/internal/pipeline"
	"github.com/joseph-ayodele/receipt-pipeline/internal/storage"
)

// Coordinator owns the trigger policy both stages share: route each create
// notification to the accepting stage, short-circuit deliveries whose
// outputs already exist, retry transient failures with bounded exponential
// backoff, and dead-letter everything terminal. It holds no per-asset state
// between deliveries; the object store and the ledger are the only shared
// resources.
type Coordinator struct {
	store       storage.Store
	stages      []pipeline.Stage
	attempts    ledger.AttemptRepository
	deadLetters ledger.DeadLetterRepository
	retry       common.RetryConfig
	logger      *slog.Logger
}

// New wires a coordinator over the given stages.
func New(
	store storage.Store,
	stages []pipeline.Stage,
	attempts ledger.AttemptRepository,
	deadLetters ledger.DeadLetterRepository,
	retry common.RetryConfig,
	logger *slog.Logger,
) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	if retry.MaxAttempts < 1 {
		retry.MaxAttempts = 1
	}
	return &Coordinator{
		store:       store,
		stages:      stages,
		attempts:    attempts,
		deadLetters: deadLetters,
		retry:       retry,
		logger:      logger,
	}
}

// HandleEvent is the bus handler. Keys no stage accepts are ignored: output
// prefixes also produce create events and must not re-trigger anything
// except the stage that explicitly consumes them.
func (c *Coordinator) HandleEvent(ctx context.Context, ev event.ObjectCreated) error {
	for _, stage := range c.stages {
		if stage.Accepts(ev.Key) {
			return c.run(ctx, stage, ev.Key)
		}
	}
	c.logger.Debug("coordinator.ignore", "key", ev.Key)
	return nil
}

func (c *Coordinator) run(ctx context.Context, stage pipeline.Stage, key string) error {
	// Idempotent short-circuit: existing terminal outputs make this
	// delivery a no-op. Two concurrent duplicates may both pass this check;
	// that is fine, their writes land on the same deterministic keys.
	if c.outputsExist(ctx, stage, key) {
		c.logger.Info("coordinator.skip.already_processed", "stage", stage.Name(), "key", key)
		return nil
	}
	if att, err := c.attempts.Get(ctx, key, stage.Name()); err == nil && att != nil && att.Status == constants.AttemptFailedPermanent {
		c.logger.Info("coordinator.skip.failed_permanent", "stage", stage.Name(), "key", key)
		return nil
	}

	var lastErr error
	for attempt := 1; attempt <= c.retry.MaxAttempts; attempt++ {
		if err := c.attempts.Record(ctx, key, stage.Name(), constants.AttemptPending, attempt, errString(lastErr)); err != nil {
			c.logger.Warn("coordinator.attempt.record_failed", "stage", stage.Name(), "key", key, "error", err)
		}

		actx := ctx
		cancel := context.CancelFunc(func() {})
		if c.retry.InvocationTimeout > 0 {
			actx, cancel = context.WithTimeout(ctx, c.retry.InvocationTimeout)
		}
		err := stage.Process(actx, key)
		cancel()

		if err == nil {
			if rerr := c.attempts.Record(ctx, key, stage.Name(), constants.AttemptSucceeded, attempt, ""); rerr != nil {
				c.logger.Warn("coordinator.attempt.record_failed", "stage", stage.Name(), "key", key, "error", rerr)
			}
			c.logger.Info("coordinator.succeeded", "stage", stage.Name(), "key", key, "attempts", attempt)
			return nil
		}

		lastErr = err
		category := common.Categorize(err)
		if !common.Retriable(category) {
			c.logger.Error("coordinator.terminal_failure",
				"stage", stage.Name(), "key", key, "category", category, "attempts", attempt, "error", err)
			return c.failPermanent(ctx, stage, key, category, attempt, err)
		}

		c.logger.Warn("coordinator.attempt.failed",
			"stage", stage.Name(), "key", key, "category", category,
			"attempt", attempt, "max_attempts", c.retry.MaxAttempts, "error", err)
		if attempt < c.retry.MaxAttempts {
			if serr := sleep(ctx, backoffDelay(attempt, c.retry.BaseDelay, c.retry.MaxDelay)); serr != nil {
				// Shutting down mid-retry: the next redelivery picks it up.
				return serr
			}
		}
	}

	c.logger.Error("coordinator.retries_exhausted",
		"stage", stage.Name(), "key", key, "attempts", c.retry.MaxAttempts, "error", lastErr)
	return c.failPermanent(ctx, stage, key, common.Categorize(lastErr), c.retry.MaxAttempts, lastErr)
}

// failPermanent records the terminal state and publishes the dead letter.
// Both must happen; a failed asset is never silently dropped.
func (c *Coordinator) failPermanent(ctx context.Context, stage pipeline.Stage, key string, category common.Category, attempts int, cause error) error {
	if err := c.attempts.Record(ctx, key, stage.Name(), constants.AttemptFailedPermanent, attempts, errString(cause)); err != nil {
		c.logger.Error("coordinator.attempt.record_failed", "stage", stage.Name(), "key", key, "error", err)
	}
	dl := ledger.DeadLetter{
		AssetKey:  key,
		Stage:     stage.Name(),
		Category:  category,
		Attempts:  attempts,
		LastError: errString(cause),
	}
	if err := c.deadLetters.Publish(ctx, dl); err != nil {
		c.logger.Error("coordinator.deadletter.publish_failed", "stage", stage.Name(), "key", key, "error", err)
	}
	return cause
}

// outputsExist reports whether every output key for this input already
// holds an object.
func (c *Coordinator) outputsExist(ctx context.Context, stage pipeline.Stage, key string) bool {
	outputs := stage.OutputKeys(key)
	if len(outputs) == 0 {
		return false
	}
	for _, out := range outputs {
		if _, err := c.store.Get(ctx, out); err != nil {
			if !errors.Is(err, storage.ErrNotFound) {
				c.logger.Warn("coordinator.output_check.failed", "key", out, "error", err)
			}
			return false
		}
	}
	return true
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	const maxLen = 2000
	if len(msg) > maxLen {
		msg = msg[:maxLen]
	}
	return msg
}
