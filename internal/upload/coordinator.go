package upload

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/danmuck/rosctl/internal/observability"
	"github.com/danmuck/rosctl/internal/protocol/session"
	"github.com/danmuck/rosctl/internal/protocol/word"
	"github.com/danmuck/rosctl/internal/remote"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type Mode string

const (
	ModeDirect  Mode = "direct"
	ModeChunked Mode = "chunked"
)

// Result is the outcome of one upload.
type Result struct {
	OpID   string
	Router string
	Name   string
	Mode   Mode
	Size   int
	Parts  int
	OK     bool
	Reason string
	Err    error
	// Leftovers names temporary objects that need manual cleanup.
	Leftovers []string
	// Warnings lists reconcile discrepancies after a successful upload.
	Warnings []string
	// Attempts is the completion poll attempt that observed the script.
	Attempts int
	Duration time.Duration
}

type Config struct {
	// Router labels logs, metrics and in-flight keys.
	Router           string
	ChunkSize        int
	Policy           string
	CompletionPolicy session.RetryPolicy
	ReconcilePolicy  session.RetryPolicy
	Sleeper          session.Sleeper
	Clock            remote.ClockReader
	Inflight         *Inflight
}

func (c Config) withDefaults() Config {
	if c.ChunkSize <= 0 {
		c.ChunkSize = DefaultChunkSize
	}
	if c.Policy == "" {
		c.Policy = remote.DefaultPolicy
	}
	if c.CompletionPolicy.MaxAttempts <= 0 {
		c.CompletionPolicy = session.CompletionPolicy()
	}
	if c.ReconcilePolicy.MaxAttempts <= 0 {
		c.ReconcilePolicy = session.RetryPolicy{MaxAttempts: 5, Interval: time.Second}
	}
	if c.Sleeper == nil {
		c.Sleeper = session.TimerSleeper{}
	}
	if c.Inflight == nil {
		c.Inflight = NewInflight()
	}
	return c
}

// Coordinator uploads scripts to one router, staging oversized content as
// parts that the device reassembles through its own scheduler.
type Coordinator struct {
	dialer session.Dialer
	repo   *remote.Repository
	cfg    Config
	logger zerolog.Logger
}

func NewCoordinator(dialer session.Dialer, repo *remote.Repository, cfg Config) *Coordinator {
	cfg = cfg.withDefaults()
	if repo == nil {
		repo = remote.NewRepository(dialer, remote.Options{Sleeper: cfg.Sleeper})
	}
	return &Coordinator{
		dialer: dialer,
		repo:   repo,
		cfg:    cfg,
		logger: log.With().Str("component", "upload").Str("router", cfg.Router).Logger(),
	}
}

func (c *Coordinator) Router() string {
	return c.cfg.Router
}

func (c *Coordinator) Inflight() *Inflight {
	return c.cfg.Inflight
}

// Upload replaces the script name with content. Small content is removed,
// created and verified directly; larger content takes the staged path.
func (c *Coordinator) Upload(ctx context.Context, name, content string) Result {
	start := time.Now()
	res := Result{OpID: uuid.NewString(), Router: c.cfg.Router, Name: name, Mode: ModeDirect}
	logger := c.logger.With().Str("op", res.OpID).Str("script", name).Logger()

	err := c.upload(ctx, logger, name, content, &res)
	res.Duration = time.Since(start)
	if err != nil {
		res.Err = err
		res.Reason = err.Error()
		if len(res.Leftovers) > 0 {
			res.Reason += "; clean up manually: " + strings.Join(res.Leftovers, ", ")
			logger.Warn().Strs("leftovers", res.Leftovers).Msg("manual cleanup recommended")
		}
		logger.Error().Err(err).Str("mode", string(res.Mode)).Dur("duration", res.Duration).Msg("upload failed")
	} else {
		res.OK = true
		logger.Info().Str("mode", string(res.Mode)).Int("bytes", res.Size).Int("parts", res.Parts).Dur("duration", res.Duration).Msg("upload complete")
	}
	observability.RecordUpload(c.cfg.Router, string(res.Mode), res.OK, res.Parts, res.Duration)
	return res
}

func (c *Coordinator) upload(ctx context.Context, logger zerolog.Logger, name, content string, res *Result) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	content = word.FilterASCII(remote.NormalizeNewlines(content))
	res.Size = len(content)
	if NeedsChunking(name, content, c.cfg.ChunkSize) {
		res.Mode = ModeChunked
	}

	release, err := c.cfg.Inflight.Acquire(ctx, PendingUpload{
		OpID:      res.OpID,
		Router:    c.cfg.Router,
		Name:      name,
		Phase:     PhaseQueued,
		StartedAt: time.Now(),
	})
	if err != nil {
		return err
	}
	defer release()

	c.mark(name, PhaseConnect)
	conn, err := c.dialer.Dial(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	if res.Mode == ModeDirect {
		c.mark(name, PhaseDirect)
		err = c.uploadDirect(ctx, conn, name, content)
	} else {
		err = c.uploadChunked(ctx, logger, conn, name, content, res)
	}
	if err != nil {
		c.cfg.Inflight.MarkError(c.cfg.Router, name, err.Error())
	}
	return err
}

func (c *Coordinator) uploadDirect(ctx context.Context, conn session.Conn, name, content string) error {
	if err := c.repo.Remove(ctx, conn, remote.Scripts, name); err != nil {
		return err
	}
	return c.repo.CreateScript(ctx, conn, name, content, c.cfg.Policy)
}

func (c *Coordinator) uploadChunked(ctx context.Context, logger zerolog.Logger, conn session.Conn, name, content string, res *Result) error {
	plan, err := NewPlan(name, content, c.cfg.ChunkSize, c.cfg.Policy)
	if err != nil {
		return err
	}
	res.Parts = len(plan.Parts)
	logger.Info().Int("bytes", len(content)).Int("parts", len(plan.Parts)).Msg("chunked upload planned")

	c.mark(name, PhaseStaging)
	for i, part := range plan.Parts {
		res.Leftovers = plan.PartNames()[:i+1]
		if err := c.stage(ctx, conn, part.Name, part.Content); err != nil {
			return fmt.Errorf("stage part %d/%d: %w", i+1, len(plan.Parts), err)
		}
		logger.Debug().Str("part", part.Name).Int("bytes", len(part.Content)).Msg("part staged")
	}

	c.mark(name, PhaseCombine)
	res.Leftovers = append(plan.PartNames(), plan.CombineName)
	if err := c.stage(ctx, conn, plan.CombineName, plan.Combine); err != nil {
		return fmt.Errorf("stage combine: %w", err)
	}

	c.mark(name, PhaseSchedule)
	res.Leftovers = plan.Transients()
	if err := c.repo.Remove(ctx, conn, remote.Schedules, plan.ScheduleName); err != nil {
		return fmt.Errorf("%w: remove stale schedule: %w", remote.ErrScheduling, err)
	}
	// An unreadable clock must fail before the previous version is touched.
	if _, err := c.cfg.Clock.Now(ctx, conn); err != nil {
		return err
	}
	// The previous version must be gone before the schedule fires so that
	// completion polling observes the reassembled script.
	if err := c.repo.Remove(ctx, conn, remote.Scripts, name); err != nil {
		return fmt.Errorf("remove previous %q: %w", name, err)
	}
	// Removal may have polled for a while; the start time is taken afresh.
	startTime, err := c.cfg.Clock.Now(ctx, conn)
	if err != nil {
		return err
	}
	err = c.repo.CreateSchedule(ctx, conn, remote.Schedule{
		Name:      plan.ScheduleName,
		OnEvent:   ScheduleCommand(name),
		StartTime: startTime,
		Interval:  "0s",
		Policy:    c.cfg.Policy,
	})
	if err != nil {
		return err
	}
	logger.Info().Str("schedule", plan.ScheduleName).Str("start_time", startTime).Msg("combine scheduled")

	c.mark(name, PhaseAwait)
	attempt, ok, err := session.Poll(ctx, c.cfg.CompletionPolicy, c.cfg.Sleeper, func(attempt int) (bool, error) {
		present, err := c.repo.ExistsFresh(ctx, remote.Scripts, name)
		if err != nil {
			logger.Warn().Err(err).Int("attempt", attempt).Msg("completion check failed")
			return false, nil
		}
		return present, nil
	})
	res.Attempts = attempt
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %q not assembled after %d attempts", remote.ErrTimeout, name, attempt)
	}
	res.Leftovers = nil

	c.mark(name, PhaseReconcile)
	res.Warnings = c.reconcile(ctx, logger, plan)
	return nil
}

// stage removes any stale copy, creates and verifies one script.
func (c *Coordinator) stage(ctx context.Context, conn session.Conn, name, content string) error {
	if err := c.repo.Remove(ctx, conn, remote.Scripts, name); err != nil {
		return err
	}
	return c.repo.CreateScript(ctx, conn, name, content, c.cfg.Policy)
}

// reconcile waits briefly for the device to drop every temporary object and
// reports what is left. It never fails the upload.
func (c *Coordinator) reconcile(ctx context.Context, logger zerolog.Logger, plan Plan) []string {
	var (
		remaining []string
		checked   bool
		lastErr   error
	)
	_, _, err := session.Poll(ctx, c.cfg.ReconcilePolicy, c.cfg.Sleeper, func(int) (bool, error) {
		left, err := c.remaining(ctx, plan)
		if err != nil {
			logger.Debug().Err(err).Msg("reconcile check failed")
			lastErr = err
			return false, nil
		}
		checked = true
		remaining = left
		return len(left) == 0, nil
	})
	var warnings []string
	if err != nil {
		warnings = append(warnings, "reconcile interrupted: "+err.Error())
	}
	if !checked && lastErr != nil {
		warnings = append(warnings, "temporary objects not checked: "+lastErr.Error())
	}
	for _, name := range remaining {
		warnings = append(warnings, "temporary object still present: "+name)
	}
	if len(warnings) > 0 {
		logger.Warn().Strs("warnings", warnings).Msg("reconcile found leftovers")
	}
	return warnings
}

func (c *Coordinator) remaining(ctx context.Context, plan Plan) ([]string, error) {
	conn, err := c.dialer.Dial(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	var left []string
	for _, name := range append(plan.PartNames(), plan.CombineName) {
		ok, err := c.repo.Exists(ctx, conn, remote.Scripts, name)
		if err != nil {
			return nil, err
		}
		if ok {
			left = append(left, name)
		}
	}
	ok, err := c.repo.Exists(ctx, conn, remote.Schedules, plan.ScheduleName)
	if err != nil {
		return nil, err
	}
	if ok {
		left = append(left, plan.ScheduleName)
	}
	return left, nil
}

func (c *Coordinator) mark(name string, phase Phase) {
	c.cfg.Inflight.MarkPhase(c.cfg.Router, name, phase, time.Now())
}
