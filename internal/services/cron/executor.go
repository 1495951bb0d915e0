package cron

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"vpanel/internal/models"
)

const truncationMarker = "\n... [output truncated]"

// timeoutExitCode is the sentinel exit code recorded for runs that were
// killed after exceeding their timeout.
const timeoutExitCode = -1

// Executor runs job commands as subprocesses and records the outcome.
// Runs of the same job may overlap; scheduled runs and manual "Run Now"
// runs are independent.
type Executor struct {
	store       *Store
	logger      zerolog.Logger
	outputLimit int
	sem         *semaphore.Weighted
	wg          sync.WaitGroup
}

// NewExecutor creates an executor. maxConcurrent <= 0 means no cap on
// simultaneous executions; outputLimit caps captured bytes per stream.
func NewExecutor(store *Store, logger zerolog.Logger, maxConcurrent, outputLimit int) *Executor {
	e := &Executor{
		store:       store,
		logger:      logger.With().Str("component", "cron-executor").Logger(),
		outputLimit: outputLimit,
	}
	if maxConcurrent > 0 {
		e.sem = semaphore.NewWeighted(int64(maxConcurrent))
	}
	return e
}

// Dispatch launches the job asynchronously. Used by the scheduler loop and
// the manual run endpoint; neither blocks on execution.
func (e *Executor) Dispatch(job models.CronJob) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		if _, err := e.Execute(context.Background(), job); err != nil {
			e.logger.Error().Err(err).Str("job", job.ID).Msg("execution aborted")
		}
	}()
}

// Execute runs the job's command under its configured user with a timeout,
// capturing stdout/stderr. The log row is created before launch and
// finalized exactly once on any completion path.
func (e *Executor) Execute(ctx context.Context, job models.CronJob) (*models.CronJobLog, error) {
	if e.sem != nil {
		if err := e.sem.Acquire(ctx, 1); err != nil {
			return nil, err
		}
		defer e.sem.Release(1)
	}

	startedAt := time.Now()
	l, err := e.store.StartLog(job.ID, startedAt)
	if err != nil {
		return nil, err
	}

	stdout := &limitBuffer{limit: e.outputLimit}
	stderr := &limitBuffer{limit: e.outputLimit}

	cmd := shellCommand(job.Command)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	var status string
	var exitCode int
	var runErr error
	if err := configureCommand(cmd, job.User); err != nil {
		status, exitCode, runErr = models.StatusFailed, -1, err
	} else {
		status, exitCode, runErr = e.run(cmd, e.timeoutFor(job))
	}

	endedAt := time.Now()
	l.EndedAt = &endedAt
	l.Duration = endedAt.Sub(startedAt).Milliseconds()
	l.Status = status
	l.ExitCode = exitCode
	l.Output = stdout.String()
	l.Error = stderr.String()
	if runErr != nil && !errors.As(runErr, new(*exec.ExitError)) {
		if l.Error != "" {
			l.Error += "\n"
		}
		l.Error += runErr.Error()
	}

	if err := e.store.FinalizeLog(l); err != nil {
		e.logger.Error().Err(err).Str("job", job.ID).Msg("failed to persist run result")
		return l, err
	}

	e.logger.Info().
		Str("job", job.ID).
		Str("status", status).
		Int("exit_code", exitCode).
		Int64("duration_ms", l.Duration).
		Msg("cron job finished")
	return l, nil
}

func (e *Executor) timeoutFor(job models.CronJob) time.Duration {
	if job.Timeout > 0 {
		return time.Duration(job.Timeout) * time.Second
	}
	return time.Hour
}

// run starts the command and waits for exit or timeout. On timeout the
// whole process group is killed so no children are left behind.
func (e *Executor) run(cmd *exec.Cmd, timeout time.Duration) (string, int, error) {
	if err := cmd.Start(); err != nil {
		return models.StatusFailed, -1, err
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		if err == nil {
			return models.StatusSuccess, 0, nil
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return models.StatusFailed, exitErr.ExitCode(), err
		}
		return models.StatusFailed, -1, err
	case <-timer.C:
		killProcessGroup(cmd)
		<-done
		return models.StatusTimeout, timeoutExitCode, nil
	}
}

// Drain blocks until all in-flight runs finish or the context expires.
// Called during shutdown to time-box outstanding executions.
func (e *Executor) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// limitBuffer caps captured output at limit bytes, appending a marker when
// anything was discarded. Writes never fail so the subprocess is never
// blocked on a full capture buffer.
type limitBuffer struct {
	buf       bytes.Buffer
	limit     int
	truncated bool
}

func (b *limitBuffer) Write(p []byte) (int, error) {
	n := len(p)
	if b.limit > 0 {
		remain := b.limit - b.buf.Len()
		if remain <= 0 {
			b.truncated = true
			return n, nil
		}
		if len(p) > remain {
			p = p[:remain]
			b.truncated = true
		}
	}
	b.buf.Write(p)
	return n, nil
}

func (b *limitBuffer) String() string {
	if b.truncated {
		return b.buf.String() + truncationMarker
	}
	return b.buf.String()
}
