package observability

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/rosctl/internal/auth"
	"github.com/danmuck/rosctl/internal/testutil/testlog"
)

func TestRegisterMetricsAndRecordersAreSafe(t *testing.T) {
	testlog.Start(t)
	RegisterMetrics()
	RegisterMetrics()

	RecordUpload("r1", "chunked", true, 3, 12*time.Second)
	RecordUpload("r1", "direct", false, 0, 40*time.Millisecond)
	RecordHTTPRequest("GET", "/health", 200, 2*time.Millisecond)
}

func TestStatusRouter(t *testing.T) {
	testlog.Start(t)
	RecordUpload("r-status", "direct", true, 0, time.Second)
	r := NewStatusRouter(func() any {
		return []map[string]string{{"name": "Big1", "phase": "await"}}
	}, nil)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("health status=%d", rec.Code)
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	var body struct {
		Inflight []map[string]string `json:"inflight"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if len(body.Inflight) != 1 || body.Inflight[0]["phase"] != "await" {
		t.Fatalf("unexpected status body=%s", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), `rosctl_upload_total{mode="direct",router="r-status",success="true"}`) {
		t.Fatalf("metrics missing upload counter")
	}
}

func TestStatusRouterRequiresToken(t *testing.T) {
	testlog.Start(t)
	r := NewStatusRouter(nil, auth.StaticToken{Token: "s3cret"})

	get := func(path, header string) int {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec.Code
	}

	if code := get("/health", ""); code != http.StatusOK {
		t.Fatalf("health must stay open, got %d", code)
	}
	if code := get("/status", ""); code != http.StatusUnauthorized {
		t.Fatalf("status without token=%d", code)
	}
	if code := get("/metrics", "Bearer wrong"); code != http.StatusUnauthorized {
		t.Fatalf("metrics with wrong token=%d", code)
	}
	if code := get("/status", "Bearer s3cret"); code != http.StatusOK {
		t.Fatalf("status with token=%d", code)
	}
}
