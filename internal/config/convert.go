package config

import (
	"time"

	"github.com/danmuck/rosctl/internal/protocol/session"
	"github.com/danmuck/rosctl/internal/remote"
	"github.com/danmuck/rosctl/internal/upload"
)

func (r Router) Endpoint() session.Endpoint {
	return session.Endpoint{
		Name:     r.Name,
		Host:     r.Host,
		Port:     r.Port,
		Username: r.Username,
		Password: r.Password,
	}
}

// SessionConfig returns transport settings with every timeout set to timeout.
func (r Router) SessionConfig(timeout time.Duration) session.Config {
	cfg := session.DefaultConfig().WithTimeout(timeout)
	cfg.TLS = session.TLSConfig{
		Enabled:            r.TLS,
		CAFile:             r.TLSCAFile,
		InsecureSkipVerify: r.TLSInsecureSkipVerify,
	}
	return cfg
}

func (u Upload) DeletePolicy() session.RetryPolicy {
	return session.RetryPolicy{MaxAttempts: u.DeleteAttempts, Interval: u.DeleteInterval}
}

func (u Upload) CompletionPolicy() session.RetryPolicy {
	return session.RetryPolicy{MaxAttempts: u.CompletionAttempts, Interval: u.CompletionInterval}
}

// CoordinatorConfig maps upload settings onto a coordinator for router.
func (u Upload) CoordinatorConfig(router string, inflight *upload.Inflight) upload.Config {
	return upload.Config{
		Router:           router,
		ChunkSize:        u.ChunkSize,
		Policy:           u.Policy,
		CompletionPolicy: u.CompletionPolicy(),
		ReconcilePolicy:  session.RetryPolicy{MaxAttempts: 5, Interval: u.CompletionInterval},
		Clock:            remote.ClockReader{DelaySeconds: int(u.ScheduleDelay / time.Second)},
		Inflight:         inflight,
	}
}
