package remote

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/danmuck/rosctl/internal/protocol/session"
)

// DefaultScheduleDelay is the lead time added to the device clock.
const DefaultScheduleDelay = 5

const secondsPerDay = 24 * 60 * 60

// ClockReader reads the device wall clock for scheduling.
type ClockReader struct {
	// DelaySeconds is added to the device time; zero means DefaultScheduleDelay.
	DelaySeconds int
}

// Now returns the device time plus the schedule delay as HH:MM:SS.
func (c ClockReader) Now(ctx context.Context, conn session.Conn) (string, error) {
	resp, err := conn.Execute(ctx, "/system/clock/print")
	if err != nil {
		return "", fmt.Errorf("%w: read clock: %w", ErrScheduling, err)
	}
	var raw string
	for _, row := range resp.Rows {
		if t, ok := row.Get("time"); ok {
			raw = t
			break
		}
	}
	if raw == "" {
		return "", fmt.Errorf("%w: clock reply has no time", ErrScheduling)
	}
	delay := c.DelaySeconds
	if delay <= 0 {
		delay = DefaultScheduleDelay
	}
	return AddSeconds(raw, delay)
}

// AddSeconds adds n seconds to an HH:MM:SS time of day, wrapping at
// midnight.
func AddSeconds(clock string, n int) (string, error) {
	secs, err := parseClock(clock)
	if err != nil {
		return "", err
	}
	secs = ((secs+n)%secondsPerDay + secondsPerDay) % secondsPerDay
	return fmt.Sprintf("%02d:%02d:%02d", secs/3600, secs/60%60, secs%60), nil
}

func parseClock(clock string) (int, error) {
	parts := strings.Split(strings.TrimSpace(clock), ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("%w: malformed clock %q", ErrScheduling, clock)
	}
	limits := [3]int{24, 60, 60}
	var fields [3]int
	for i, p := range parts {
		v, err := strconv.Atoi(p)
		if err != nil || v < 0 || v >= limits[i] || len(p) == 0 || len(p) > 2 {
			return 0, fmt.Errorf("%w: malformed clock %q", ErrScheduling, clock)
		}
		fields[i] = v
	}
	return fields[0]*3600 + fields[1]*60 + fields[2], nil
}
