// Package batch runs many issuance requests under bounded concurrency with a
// configurable failure policy.
package batch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"attestia/internal/credential/models"
	dErrors "attestia/pkg/domain-errors"
)

// Issuer is the single-credential pipeline the orchestrator fans out over.
type Issuer interface {
	Create(ctx context.Context, req models.IssuanceRequest) (*models.CreationResult, error)
	Revoke(ctx context.Context, credentialID, reason string) (bool, error)
}

// ProgressFunc receives a progress snapshot after every completed request.
type ProgressFunc func(models.Progress)

const defaultMaxConcurrency = 8

// Orchestrator schedules issuance requests through a weighted semaphore.
type Orchestrator struct {
	issuer Issuer
	log    *slog.Logger
}

func New(issuer Issuer, log *slog.Logger) *Orchestrator {
	return &Orchestrator{issuer: issuer, log: log}
}

// Run executes the batch. The returned slice is aligned with
// req.Requests by index. The error is non-nil when the batch as a whole
// failed per the failure mode: batch_aborted for stop mode, rollback_failure
// when a compensating revoke failed, or a plain aggregate error for rollback
// mode with all revokes succeeding.
func (o *Orchestrator) Run(ctx context.Context, req models.BatchRequest, onProgress ProgressFunc) ([]*models.CreationResult, error) {
	total := len(req.Requests)
	if total == 0 {
		return nil, nil
	}
	maxConcurrency := req.MaxConcurrency
	if maxConcurrency <= 0 {
		maxConcurrency = defaultMaxConcurrency
	}

	var (
		sem       = semaphore.NewWeighted(int64(maxConcurrency))
		results   = make([]*models.CreationResult, total)
		wg        sync.WaitGroup
		completed atomic.Int64
		failed    atomic.Int64
		inFlight  atomic.Int64
		elapsed   atomic.Int64 // summed per-item durations, for the ETA heuristic
		stopped   atomic.Bool
	)

	progress := func() {
		if onProgress == nil {
			return
		}
		done := completed.Load()
		var avg time.Duration
		if done > 0 {
			avg = time.Duration(elapsed.Load() / done)
		}
		inProgress := int(inFlight.Load())
		onProgress(models.Progress{
			Total:                  total,
			Completed:              int(done),
			Failed:                 int(failed.Load()),
			InProgress:             inProgress,
			EstimatedTimeRemaining: time.Duration(inProgress) * avg,
		})
	}

	for i := range req.Requests {
		if req.FailureMode == models.FailStop && stopped.Load() {
			results[i] = abortedResult()
			failed.Add(1)
			completed.Add(1)
			continue
		}
		if err := sem.Acquire(ctx, 1); err != nil {
			results[i] = failedResult("batch cancelled: " + err.Error())
			failed.Add(1)
			completed.Add(1)
			continue
		}
		// Re-check after the wait: a failure observed while this request was
		// queued must still prevent it from being scheduled.
		if req.FailureMode == models.FailStop && stopped.Load() {
			sem.Release(1)
			results[i] = abortedResult()
			failed.Add(1)
			completed.Add(1)
			continue
		}

		wg.Add(1)
		inFlight.Add(1)
		go func(idx int) {
			defer wg.Done()
			defer sem.Release(1)

			started := time.Now()
			result, err := o.issuer.Create(ctx, req.Requests[idx])
			if err != nil {
				result = failedResult(err.Error())
			}
			results[idx] = result

			elapsed.Add(int64(time.Since(started)))
			if !result.Success {
				failed.Add(1)
				stopped.Store(true)
			}
			// This item is done before the snapshot is taken, so InProgress
			// and the ETA never count it.
			inFlight.Add(-1)
			completed.Add(1)
			progress()
		}(i)
	}
	wg.Wait()

	switch req.FailureMode {
	case models.FailStop:
		if failed.Load() > 0 {
			return results, dErrors.New(dErrors.CodeBatchAborted,
				fmt.Sprintf("batch aborted after %d failure(s)", failed.Load()))
		}
	case models.FailRollback:
		if failed.Load() > 0 {
			return results, o.rollback(ctx, results)
		}
	}
	return results, nil
}

// rollback revokes every successfully issued credential. A failed revoke is
// surfaced, never swallowed.
func (o *Orchestrator) rollback(ctx context.Context, results []*models.CreationResult) error {
	var rollbackErrs []string
	for _, result := range results {
		if result == nil || !result.Success || result.Credential == nil {
			continue
		}
		if _, err := o.issuer.Revoke(ctx, result.Credential.ID, "batch rollback"); err != nil {
			o.log.Error("rollback revoke failed",
				"credential_id", result.Credential.ID, "error", err)
			rollbackErrs = append(rollbackErrs, result.Credential.ID+": "+err.Error())
			continue
		}
		result.Success = false
		result.State = models.StateRevoked
		result.Errors = append(result.Errors, "rolled back: another batch member failed")
	}
	if len(rollbackErrs) > 0 {
		return dErrors.New(dErrors.CodeRollbackFailure,
			fmt.Sprintf("batch rollback incomplete, %d revoke(s) failed: %v", len(rollbackErrs), rollbackErrs))
	}
	return dErrors.New(dErrors.CodeInternal, "batch failed, all issued credentials rolled back")
}

func abortedResult() *models.CreationResult {
	return &models.CreationResult{
		Success: false,
		State:   models.StateFailed,
		Errors:  []string{"not attempted: batch aborted after earlier failure"},
	}
}

func failedResult(msg string) *models.CreationResult {
	return &models.CreationResult{
		Success: false,
		State:   models.StateFailed,
		Errors:  []string{msg},
	}
}
