package cleaner

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ginjaninja78/insurance-report-etl/internal/ledger"
	"github.com/ginjaninja78/insurance-report-etl/pkg/utils"
)

// DefaultMaxConcurrency bounds the worker pool when no limit is configured.
const DefaultMaxConcurrency = 4

// Ledger is the idempotency record consulted and updated by RunBatch.
type Ledger interface {
	IsProcessed(inputPath string) bool
	Record(filename string, status ledger.Status, output string) error
}

// BatchOptions configures RunBatch.
type BatchOptions struct {
	// MaxConcurrency is the number of files cleaned at the same time.
	MaxConcurrency int

	// SummaryDir receives the processing summary and error logs. Empty means
	// no log files.
	SummaryDir string
}

// Summary is the outcome of one batch.
type Summary struct {
	RunID     string
	Variant   Variant
	Total     int
	Processed int
	Skipped   int
	Failed    int

	// Results holds one entry per file that was cleaned (skipped files have
	// none), in input order.
	Results []Result

	// SkippedFiles lists the inputs the ledger already covered.
	SkippedFiles []string

	Start time.Time
	End   time.Time

	// SummaryLog is the path of the written summary, if any.
	SummaryLog string
}

// RunBatch cleans every file not already recorded in the ledger.
//
// PROCESSING:
//   1. Files the ledger reports as processed are skipped
//   2. The rest are cleaned on a bounded worker pool; one file failing (or
//      panicking) never stops the others
//   3. Once every worker is done, outcomes are appended to the ledger in
//      input order from this goroutine only
//   4. A summary log is written when SummaryDir is set
//
// In dry-run mode (the Cleaner's option) nothing is recorded.
//
// RETURNS:
//   - The batch summary.
//   - An error only when ledger appends or the summary log failed; per-file
//     failures are reported in the summary.
func RunBatch(ctx context.Context, files []string, c *Cleaner, led Ledger, opts BatchOptions) (Summary, error) {
	summary := Summary{
		RunID:   uuid.New().String(),
		Variant: c.Variant(),
		Total:   len(files),
		Start:   time.Now(),
	}

	var pending []string
	for _, f := range files {
		if led != nil && led.IsProcessed(f) {
			c.logger.Info("[SKIP] Already processed: %s", filepath.Base(f))
			summary.Skipped++
			summary.SkippedFiles = append(summary.SkippedFiles, f)
			continue
		}
		pending = append(pending, f)
	}

	limit := opts.MaxConcurrency
	if limit <= 0 {
		limit = DefaultMaxConcurrency
	}

	results := make([]Result, len(pending))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, f := range pending {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				results[i] = Result{FilePath: f, Error: err}
				return nil
			}
			results[i] = c.safeRun(f)
			return nil
		})
	}
	// Workers never return an error.
	_ = g.Wait()

	var errs []error
	for _, r := range results {
		if r.Success {
			summary.Processed++
		} else {
			summary.Failed++
			c.logger.Error("Failed to process %s: %v", r.FilePath, r.Error)
		}
		if led == nil || c.opts.DryRun {
			continue
		}
		status := ledger.StatusSuccess
		if !r.Success {
			status = ledger.StatusFailed
		}
		if err := led.Record(filepath.Base(r.FilePath), status, r.OutputFile); err != nil {
			errs = append(errs, fmt.Errorf("ledger %s: %w", filepath.Base(r.FilePath), err))
		}
	}
	summary.Results = results
	summary.End = time.Now()

	if opts.SummaryDir != "" && !c.opts.DryRun {
		path, err := writeLogs(summary, opts.SummaryDir)
		if err != nil {
			errs = append(errs, err)
		}
		summary.SummaryLog = path
	}

	c.logger.Info("%s summary: total=%d processed=%d skipped=%d failed=%d",
		summary.Variant, summary.Total, summary.Processed, summary.Skipped, summary.Failed)

	return summary, errors.Join(errs...)
}

// safeRun runs one file, turning a panic into a failed result.
func (c *Cleaner) safeRun(path string) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			result = Result{FilePath: path, Error: fmt.Errorf("panic while cleaning: %v", r)}
		}
	}()
	return c.Run(path)
}

// writeLogs writes the summary log and, when files failed, the error log.
func writeLogs(s Summary, dir string) (string, error) {
	ps := utils.ProcessingSummary{
		Label:     string(s.Variant),
		RunID:     s.RunID,
		StartTime: s.Start,
		EndTime:   s.End,
		Skipped:   s.SkippedFiles,
	}
	var failures []utils.ErrorLogEntry
	for _, r := range s.Results {
		if r.Success {
			ps.Cleaned = append(ps.Cleaned, utils.CleanedFile{
				Input:    r.FilePath,
				Output:   r.OutputFile,
				Rows:     r.Stats.Rows,
				Columns:  r.Stats.Columns,
				Duration: r.Stats.ProcessingTime,
			})
			continue
		}
		msg := "unknown error"
		if r.Error != nil {
			msg = r.Error.Error()
		}
		ps.Failed = append(ps.Failed, utils.FailedFile{Input: r.FilePath, Message: msg})
		failures = append(failures, utils.ErrorLogEntry{
			Timestamp: s.End,
			FileName:  r.FilePath,
			Stage:     failureStage(r.Error),
			Message:   msg,
		})
	}

	path, err := utils.WriteSummaryLog(ps, dir)
	if err != nil {
		return "", err
	}
	if _, err := utils.WriteErrorLog(failures, dir, ps.Label); err != nil {
		return path, err
	}
	return path, nil
}

// failureStage names the pipeline step an error came from.
func failureStage(err error) string {
	switch {
	case err == nil:
		return "cleaning"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	case strings.HasPrefix(err.Error(), "failed to read"):
		return "read"
	case strings.HasPrefix(err.Error(), "failed to write"):
		return "write"
	default:
		return "cleaning"
	}
}
