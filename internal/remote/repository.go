package remote

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/danmuck/rosctl/internal/protocol"
	"github.com/danmuck/rosctl/internal/protocol/session"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DefaultPolicy is the script policy attached to every created object.
const DefaultPolicy = "read,write,policy,test"

// Options tunes delete confirmation.
type Options struct {
	DeletePolicy session.RetryPolicy
	Sleeper      session.Sleeper
}

func (o Options) withDefaults() Options {
	if o.DeletePolicy.MaxAttempts <= 0 {
		o.DeletePolicy = session.DeletePolicy()
	}
	if o.Sleeper == nil {
		o.Sleeper = session.TimerSleeper{}
	}
	return o
}

// Repository runs existence, create and delete operations against the
// script and scheduler collections. Every check is a live round trip.
type Repository struct {
	dialer session.Dialer
	opts   Options
	logger zerolog.Logger
}

func NewRepository(dialer session.Dialer, opts Options) *Repository {
	return &Repository{
		dialer: dialer,
		opts:   opts.withDefaults(),
		logger: log.With().Str("component", "remote").Logger(),
	}
}

// Dialer returns the dialer used for fresh confirmation sessions.
func (r *Repository) Dialer() session.Dialer {
	return r.dialer
}

func (r *Repository) Exists(ctx context.Context, conn session.Conn, coll Collection, name string) (bool, error) {
	_, err := r.ResolveID(ctx, conn, coll, name)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return false, err
}

// ResolveID returns the device-assigned .id of name, or ErrNotFound.
func (r *Repository) ResolveID(ctx context.Context, conn session.Conn, coll Collection, name string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", ErrNameRequired
	}
	resp, err := conn.Execute(ctx,
		coll.command("print"),
		protocol.Query("name", name),
		protocol.Proplist(".id", "name"),
	)
	if err != nil {
		return "", err
	}
	for _, row := range resp.Rows {
		if row["name"] == name {
			return row[".id"], nil
		}
	}
	return "", ErrNotFound
}

// Remove deletes name when present and confirms the deletion on fresh
// sessions. An absent object is a success.
func (r *Repository) Remove(ctx context.Context, conn session.Conn, coll Collection, name string) error {
	id, err := r.ResolveID(ctx, conn, coll, name)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if _, err := conn.Execute(ctx, coll.command("remove"), protocol.ID(id)); err != nil {
		return fmt.Errorf("remove %s %q: %w", coll, name, err)
	}

	var lastErr error
	attempt, ok, err := session.Poll(ctx, r.opts.DeletePolicy, r.opts.Sleeper, func(attempt int) (bool, error) {
		present, err := r.ExistsFresh(ctx, coll, name)
		if err != nil {
			lastErr = err
			r.logger.Warn().Err(err).Str("collection", coll.String()).Str("name", name).Int("attempt", attempt).Msg("delete confirmation attempt failed")
			return false, nil
		}
		return !present, nil
	})
	if err != nil {
		return err
	}
	if !ok {
		if lastErr != nil {
			return fmt.Errorf("%w: %s %q not confirmed deleted after %d attempts: %w", ErrTimeout, coll, name, attempt, lastErr)
		}
		return fmt.Errorf("%w: %s %q still present after %d attempts", ErrTimeout, coll, name, attempt)
	}
	r.logger.Debug().Str("collection", coll.String()).Str("name", name).Int("attempt", attempt).Msg("deletion confirmed")
	return nil
}

// ExistsFresh checks existence on a new session that is closed afterwards.
func (r *Repository) ExistsFresh(ctx context.Context, coll Collection, name string) (bool, error) {
	conn, err := r.dialer.Dial(ctx)
	if err != nil {
		return false, err
	}
	defer conn.Close()
	return r.Exists(ctx, conn, coll, name)
}

// CreateScript adds a script after normalizing line endings to LF and
// verifies it exists afterwards.
func (r *Repository) CreateScript(ctx context.Context, conn session.Conn, name, content, policy string) error {
	if strings.TrimSpace(name) == "" {
		return ErrNameRequired
	}
	if policy == "" {
		policy = DefaultPolicy
	}
	_, err := conn.Execute(ctx,
		Scripts.command("add"),
		protocol.Attr("name", name),
		protocol.Attr("source", NormalizeNewlines(content)),
		protocol.Attr("policy", policy),
	)
	if err != nil {
		return fmt.Errorf("add script %q: %w", name, err)
	}
	return r.verify(ctx, conn, Scripts, name)
}

// Schedule is a scheduler entry to create.
type Schedule struct {
	Name      string
	OnEvent   string
	StartTime string
	// Interval "0s" makes the schedule one-shot.
	Interval string
	Policy   string
}

func (r *Repository) CreateSchedule(ctx context.Context, conn session.Conn, s Schedule) error {
	if strings.TrimSpace(s.Name) == "" {
		return ErrNameRequired
	}
	if s.Interval == "" {
		s.Interval = "0s"
	}
	if s.Policy == "" {
		s.Policy = DefaultPolicy
	}
	words := []string{
		Schedules.command("add"),
		protocol.Attr("name", s.Name),
		protocol.Attr("on-event", s.OnEvent),
	}
	if s.StartTime != "" {
		words = append(words, protocol.Attr("start-time", s.StartTime))
	}
	words = append(words, protocol.Attr("interval", s.Interval), protocol.Attr("policy", s.Policy))
	if _, err := conn.Execute(ctx, words...); err != nil {
		return fmt.Errorf("%w: add schedule %q: %w", ErrScheduling, s.Name, err)
	}
	return r.verify(ctx, conn, Schedules, s.Name)
}

func (r *Repository) verify(ctx context.Context, conn session.Conn, coll Collection, name string) error {
	ok, err := r.Exists(ctx, conn, coll, name)
	if err != nil {
		return fmt.Errorf("verify %s %q: %w", coll, name, err)
	}
	if !ok {
		return fmt.Errorf("%w: %s %q missing after add", ErrVerification, coll, name)
	}
	return nil
}

// NormalizeNewlines converts CRLF and lone CR to LF.
func NormalizeNewlines(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}
