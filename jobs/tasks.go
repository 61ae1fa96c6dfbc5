package jobs

import (
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/ledgerline/ledgerline/internal/jobs"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskReconAutoMatch runs auto-match on every session in progress.
	TaskReconAutoMatch = "recon:auto_match"
	// TaskBankingBalanceScan compares book and bank balances for every account.
	TaskBankingBalanceScan = "banking:balance_scan"
	// TaskIdempotencyCleanup prunes expired completion keys.
	TaskIdempotencyCleanup = "maintenance:idempotency_cleanup"
)

// Default cron schedules, evaluated in UTC.
const (
	ReconAutoMatchCron     = "0 * * * *"
	BankingBalanceScanCron = "30 2 * * *"
	IdempotencyCleanupCron = "0 3 * * *"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// TaskTypes lists every task the worker knows how to handle.
func TaskTypes() []string {
	return []string{TaskReconAutoMatch, TaskBankingBalanceScan, TaskIdempotencyCleanup}
}

// NewTask builds a payload-less task for one of TaskTypes.
func NewTask(taskType string) (*asynq.Task, error) {
	for _, known := range TaskTypes() {
		if known == taskType {
			return asynq.NewTask(taskType, nil), nil
		}
	}
	return nil, &UnknownTaskError{Type: taskType}
}

// UnknownTaskError reports a task type the worker does not register.
type UnknownTaskError struct {
	Type string
}

func (e *UnknownTaskError) Error() string {
	return "jobs: unknown task type " + e.Type
}

// DefaultCron returns the standard schedule for every job.
func DefaultCron() []CronRegistration {
	return []CronRegistration{
		{Spec: ReconAutoMatchCron, Task: asynq.NewTask(TaskReconAutoMatch, nil), Options: []asynq.Option{asynq.Queue(QueueDefault), asynq.Unique(55 * time.Minute)}},
		{Spec: BankingBalanceScanCron, Task: asynq.NewTask(TaskBankingBalanceScan, nil), Options: []asynq.Option{asynq.Queue(QueueDefault)}},
		{Spec: IdempotencyCleanupCron, Task: asynq.NewTask(TaskIdempotencyCleanup, nil), Options: []asynq.Option{asynq.Queue(QueueDefault), asynq.MaxRetry(3)}},
	}
}
