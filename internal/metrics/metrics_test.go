package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestInvocations(t *testing.T) {
	c := Invocations.WithLabelValues("orog", "run", "ok")
	before := testutil.ToFloat64(c)
	c.Inc()
	if got := testutil.ToFloat64(c); got != before+1 {
		t.Errorf("invocations = %v, want %v", got, before+1)
	}
}

func TestLastExitCode(t *testing.T) {
	LastExitCode.WithLabelValues("shave").Set(3)
	if got := testutil.ToFloat64(LastExitCode.WithLabelValues("shave")); got != 3 {
		t.Errorf("last exit code = %v, want 3", got)
	}
}

func TestRegistry_Gather(t *testing.T) {
	TaskStates.WithLabelValues("fv3", "ready").Inc()
	Launches.WithLabelValues("fv3", "batch").Inc()
	InvocationDuration.WithLabelValues("fv3", "run").Observe(12)

	families, err := Registry.Gather()
	if err != nil {
		t.Fatalf("Gather() error: %v", err)
	}
	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	for _, want := range []string{
		"uwflow_task_states_total",
		"uwflow_launches_total",
		"uwflow_invocation_duration_seconds",
	} {
		if !names[want] {
			t.Errorf("%s not gathered", want)
		}
	}
	if names["go_goroutines"] {
		t.Error("runtime collectors should not be in the uwflow registry")
	}
}

func TestWriteTextfile(t *testing.T) {
	Invocations.WithLabelValues("orog", "validate", "ok").Inc()
	path := filepath.Join(t.TempDir(), "uwflow.prom")
	if err := WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile() error: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `uwflow_invocations_total{driver="orog",outcome="ok",task="validate"}`) {
		t.Errorf("textfile missing invocation sample:\n%s", data)
	}
}
