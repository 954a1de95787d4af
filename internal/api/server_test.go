package api

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/uwflow/uwflow/internal/domain"
	"github.com/uwflow/uwflow/internal/metrics"
)

type memStore struct {
	runs []domain.RunRecord
}

func (m *memStore) List(limit int) ([]domain.RunRecord, error) {
	if limit > 0 && limit < len(m.runs) {
		return m.runs[:limit], nil
	}
	return m.runs, nil
}

func (m *memStore) Get(id string) (*domain.RunRecord, error) {
	for i := range m.runs {
		if m.runs[i].ID == id {
			return &m.runs[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s", domain.ErrRunNotFound, id)
}

func newTestServer(store RunStore) *httptest.Server {
	s := NewServer(store, "1.2.3", slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.EnableMetrics()
	return httptest.NewServer(s.Handler())
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return resp.StatusCode, string(body)
}

func TestServer_HealthAndVersion(t *testing.T) {
	ts := newTestServer(nil)
	defer ts.Close()

	if code, body := get(t, ts.URL+"/health"); code != http.StatusOK || !strings.Contains(body, `"ok"`) {
		t.Errorf("/health = %d %s", code, body)
	}
	if code, body := get(t, ts.URL+"/api/version"); code != http.StatusOK || !strings.Contains(body, "1.2.3") {
		t.Errorf("/api/version = %d %s", code, body)
	}
}

func TestServer_Drivers(t *testing.T) {
	ts := newTestServer(nil)
	defer ts.Close()

	code, body := get(t, ts.URL+"/api/drivers")
	if code != http.StatusOK {
		t.Fatalf("/api/drivers = %d", code)
	}
	var list struct {
		Drivers []driverJSON `json:"drivers"`
	}
	if err := json.Unmarshal([]byte(body), &list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(list.Drivers) != 3 || list.Drivers[0].Name != "fv3" || list.Drivers[0].TimeInvariant {
		t.Errorf("drivers = %+v", list.Drivers)
	}

	code, body = get(t, ts.URL+"/api/drivers/orog")
	if code != http.StatusOK || !strings.Contains(body, `"input_config_file"`) {
		t.Errorf("/api/drivers/orog = %d %s", code, body)
	}
	if code, _ := get(t, ts.URL+"/api/drivers/wrf"); code != http.StatusNotFound {
		t.Errorf("/api/drivers/wrf = %d, want 404", code)
	}
}

func TestServer_Runs(t *testing.T) {
	store := &memStore{runs: []domain.RunRecord{
		{ID: "b", Driver: "fv3", Task: "run", Cycle: time.Date(2024, 5, 6, 12, 0, 0, 0, time.UTC), OK: true, Duration: 1500 * time.Millisecond},
		{ID: "a", Driver: "orog", Task: "run", OK: false, ExitCode: 3, Error: "boom"},
	}}
	ts := newTestServer(store)
	defer ts.Close()

	code, body := get(t, ts.URL+"/api/runs?limit=1")
	if code != http.StatusOK {
		t.Fatalf("/api/runs = %d", code)
	}
	var list struct {
		Runs []runJSON `json:"runs"`
	}
	if err := json.Unmarshal([]byte(body), &list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(list.Runs) != 1 {
		t.Fatalf("runs = %+v", list.Runs)
	}
	r := list.Runs[0]
	if r.ID != "b" || r.Cycle != "2024-05-06T12:00:00Z" || r.DurationMS != 1500 {
		t.Errorf("run = %+v", r)
	}

	code, body = get(t, ts.URL+"/api/runs/a")
	if code != http.StatusOK || !strings.Contains(body, `"exit_code":3`) || strings.Contains(body, `"cycle"`) {
		t.Errorf("/api/runs/a = %d %s", code, body)
	}
	if code, _ := get(t, ts.URL+"/api/runs/zzz"); code != http.StatusNotFound {
		t.Errorf("/api/runs/zzz = %d, want 404", code)
	}
	if code, _ := get(t, ts.URL+"/api/runs?limit=x"); code != http.StatusBadRequest {
		t.Errorf("bad limit = %d, want 400", code)
	}
}

func TestServer_NilStore(t *testing.T) {
	ts := newTestServer(nil)
	defer ts.Close()

	if code, body := get(t, ts.URL+"/api/runs"); code != http.StatusOK || !strings.Contains(body, `"runs":[]`) {
		t.Errorf("/api/runs = %d %s", code, body)
	}
	if code, _ := get(t, ts.URL+"/api/runs/a"); code != http.StatusNotFound {
		t.Errorf("/api/runs/a = %d, want 404", code)
	}
}

func TestServer_Metrics(t *testing.T) {
	metrics.Invocations.WithLabelValues("orog", "run", "ok").Add(0)
	ts := newTestServer(nil)
	defer ts.Close()

	code, body := get(t, ts.URL+"/metrics")
	if code != http.StatusOK || !strings.Contains(body, "uwflow_") {
		t.Errorf("/metrics = %d %s", code, body)
	}
}
