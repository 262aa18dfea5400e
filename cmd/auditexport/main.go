package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joseph-ayodele/receipt-pipeline/internal/export"
	"github.com/joseph-ayodele/receipt-pipeline/internal/ledger"
)

// printError prints an error message to stderr, falling back to stdout if stderr fails
func printError(format string, args ...interface{}) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		fmt.Printf(format, args...)
	}
}

func main() {
	var (
		ledgerPath = flag.String("ledger", "pipeline-ledger.db", "path to the pipeline ledger database")
		out        = flag.String("out", "pipeline-audit.xlsx", "output XLSX file path")
		fromStr    = flag.String("from", "", "from date YYYY-MM-DD")
		toStr      = flag.String("to", "", "to date YYYY-MM-DD")
	)
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	var from, to *time.Time
	if *fromStr != "" {
		t, err := time.Parse("2006-01-02", *fromStr)
		if err != nil {
			printError("Error: invalid -from date %q: %v\n", *fromStr, err)
			os.Exit(1)
		}
		from = &t
	}
	if *toStr != "" {
		t, err := time.Parse("2006-01-02", *toStr)
		if err != nil {
			printError("Error: invalid -to date %q: %v\n", *toStr, err)
			os.Exit(1)
		}
		to = &t
	}

	ctx := context.Background()
	db, err := ledger.Open(ctx, *ledgerPath, logger)
	if err != nil {
		printError("Error: opening ledger %s: %v\n", *ledgerPath, err)
		os.Exit(1)
	}
	defer ledger.Close(db, logger)

	svc := export.NewService(
		ledger.NewAttemptRepository(db, logger),
		ledger.NewDeadLetterRepository(db, logger),
		logger,
	)
	data, err := svc.ExportAuditXLSX(ctx, from, to)
	if err != nil {
		printError("Error: exporting audit workbook: %v\n", err)
		os.Exit(1)
	}
	if err := os.WriteFile(*out, data, 0644); err != nil {
		printError("Error: writing %s: %v\n", *out, err)
		os.Exit(1)
	}
	fmt.Printf("wrote %s (%d bytes)\n", *out, len(data))
}
