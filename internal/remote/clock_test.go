package remote

import (
	"context"
	"errors"
	"testing"

	"github.com/danmuck/rosctl/internal/protocol/session"
	"github.com/danmuck/rosctl/internal/testutil/fakeros"
	"github.com/danmuck/rosctl/internal/testutil/testlog"
)

func TestAddSeconds(t *testing.T) {
	testlog.Start(t)
	cases := []struct {
		in   string
		n    int
		want string
	}{
		{"12:00:00", 5, "12:00:05"},
		{"12:00:58", 5, "12:01:03"},
		{"12:59:59", 5, "13:00:04"},
		{"23:59:57", 5, "00:00:02"},
		{"00:00:00", 0, "00:00:00"},
		{" 7:3:9", 1, "07:03:10"},
	}
	for _, tc := range cases {
		got, err := AddSeconds(tc.in, tc.n)
		if err != nil {
			t.Fatalf("AddSeconds(%q): %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("AddSeconds(%q, %d)=%q want %q", tc.in, tc.n, got, tc.want)
		}
	}
	for _, bad := range []string{"", "12:00", "24:00:00", "12:60:00", "aa:bb:cc", "12:00:00:00", "123:00:00"} {
		if _, err := AddSeconds(bad, 5); !errors.Is(err, ErrScheduling) {
			t.Fatalf("AddSeconds(%q) expected scheduling error, got %v", bad, err)
		}
	}
}

func TestClockReaderNow(t *testing.T) {
	testlog.Start(t)
	_, _, conn, _ := newFakeRepo(t, fakeros.Options{ClockTime: "23:59:57"}, session.RetryPolicy{})
	got, err := ClockReader{}.Now(context.Background(), conn)
	if err != nil {
		t.Fatalf("now: %v", err)
	}
	if got != "00:00:02" {
		t.Fatalf("unexpected execution time=%q", got)
	}

	_, _, conn, _ = newFakeRepo(t, fakeros.Options{OmitClock: true}, session.RetryPolicy{})
	if _, err := (ClockReader{}).Now(context.Background(), conn); !errors.Is(err, ErrScheduling) {
		t.Fatalf("expected scheduling error, got %v", err)
	}
}
