package export

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/receipt-pipeline/internal/ledger"
)

// Service is a tiny façade over the ledger that produces XLSX bytes for
// operator audits.
type Service struct {
	attempts    ledger.AttemptRepository
	deadLetters ledger.DeadLetterRepository
	logger      *slog.Logger
}

// NewService wires the audit exporter.
func NewService(attempts ledger.AttemptRepository, deadLetters ledger.DeadLetterRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{attempts: attempts, deadLetters: deadLetters, logger: logger}
}

// ExportAuditXLSX returns an XLSX workbook with an Attempts sheet and a
// DeadLetters sheet for the given window.
// If only from is provided -> from..today (inclusive).
// If neither is provided   -> the whole ledger.
func (s *Service) ExportAuditXLSX(ctx context.Context, from, to *time.Time) ([]byte, error) {
	start := time.Now()

	// Normalize dates (date-only, UTC)
	var fromDate, toDate *time.Time
	if from != nil {
		f := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
		fromDate = &f
	}
	if to != nil {
		t := time.Date(to.Year(), to.Month(), to.Day(), 23, 59, 59, 0, time.UTC)
		toDate = &t
	}
	if fromDate != nil && toDate == nil {
		today := time.Now().UTC()
		t := time.Date(today.Year(), today.Month(), today.Day(), 23, 59, 59, 0, time.UTC)
		toDate = &t
	}

	attempts, err := s.attempts.List(ctx, fromDate, toDate)
	if err != nil {
		return nil, fmt.Errorf("query attempts: %w", err)
	}
	deadLetters, err := s.deadLetters.List(ctx, fromDate, toDate)
	if err != nil {
		return nil, fmt.Errorf("query dead letters: %w", err)
	}

	f := excelize.NewFile()

	const attemptsSheet = "Attempts"
	if err := renameDefaultSheet(f, attemptsSheet); err != nil {
		return nil, err
	}
	attemptHeaders := []string{"Asset Key", "Stage", "Status", "Attempts", "Last Error", "Updated At"}
	if err := writeRow(f, attemptsSheet, 1, toAnySlice(attemptHeaders)); err != nil {
		return nil, err
	}
	for i, a := range attempts {
		row := []any{a.AssetKey, string(a.Stage), string(a.Status), a.Attempts, a.LastError, a.UpdatedAt.Format(time.RFC3339)}
		if err := writeRow(f, attemptsSheet, i+2, row); err != nil {
			return nil, err
		}
	}

	const dlSheet = "DeadLetters"
	if _, err := f.NewSheet(dlSheet); err != nil {
		return nil, err
	}
	dlHeaders := []string{"Asset Key", "Stage", "Category", "Attempts", "Last Error", "Created At"}
	if err := writeRow(f, dlSheet, 1, toAnySlice(dlHeaders)); err != nil {
		return nil, err
	}
	for i, dl := range deadLetters {
		row := []any{dl.AssetKey, string(dl.Stage), string(dl.Category), dl.Attempts, dl.LastError, dl.CreatedAt.Format(time.RFC3339)}
		if err := writeRow(f, dlSheet, i+2, row); err != nil {
			return nil, err
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}

	s.logger.Info("export.audit.ok",
		"attempts", len(attempts), "dead_letters", len(deadLetters),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

func renameDefaultSheet(f *excelize.File, name string) error {
	def := f.GetSheetName(0)
	if def == name {
		return nil
	}
	return f.SetSheetName(def, name)
}

func writeRow(f *excelize.File, sheet string, rowNum int, values []any) error {
	for i, v := range values {
		cell, err := excelize.CoordinatesToCellName(i+1, rowNum)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, v); err != nil {
			return err
		}
	}
	return nil
}

func toAnySlice(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
