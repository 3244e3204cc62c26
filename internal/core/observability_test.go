package core

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"expvar"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"familytree/pkg/domain"
)

func sampleForest() *domain.Forest {
	return domain.BuildForest(domain.RawSnapshot{
		"A": {"name": "A", "surname": "X"},
		"B": {"name": "B", "surname": "X", "parentId": "A"},
		"C": {"name": "C", "surname": "X", "parentId": "missing"},
	})
}

func TestExpvarMetricsRecorder(t *testing.T) {
	rec := NewExpvarMetricsRecorder("")
	if !strings.HasPrefix(rec.Name(), "familytree_metrics_") {
		t.Fatalf("unexpected name %q", rec.Name())
	}
	rec.Observe(context.Background(), OpMoveLeft, true, 2*time.Millisecond)
	rec.Observe(context.Background(), OpMoveLeft, false, 3*time.Millisecond)
	rec.Observe(context.Background(), "", true, time.Second)
	rec.ObserveForest(sampleForest(), time.Millisecond)

	snap := rec.Snapshot()
	if snap.DurationsMS[OpMoveLeft] != 5 {
		t.Fatalf("durations = %v", snap.DurationsMS)
	}
	if snap.Results[OpMoveLeft]["success"] != 1 || snap.Results[OpMoveLeft]["error"] != 1 {
		t.Fatalf("results = %v", snap.Results)
	}
	if len(snap.Results) != 1 {
		t.Fatalf("empty operation should be ignored")
	}
	if snap.Forest.People != 3 || snap.Forest.Roots != 2 || snap.Forest.Demotions != 1 || snap.Forest.Rebuilds != 1 {
		t.Fatalf("forest stats = %#v", snap.Forest)
	}
	published := expvar.Get(rec.Name())
	if published == nil || !strings.Contains(published.String(), `"people":3`) {
		t.Fatalf("expvar not published: %v", published)
	}
}

func TestJSONTracerWritesLines(t *testing.T) {
	var buf bytes.Buffer
	tracer := NewJSONTracer(&buf)
	_, span := tracer.Start(context.Background(), OpRespread)
	span.End(errors.New("boom"))
	span.End(nil)

	entries := tracer.Entries()
	if len(entries) != 1 || entries[0].Status != "error" || entries[0].Error != "boom" {
		t.Fatalf("entries = %#v", entries)
	}
	var line JSONTraceEntry
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decode line: %v", err)
	}
	if line.Operation != OpRespread {
		t.Fatalf("line = %#v", line)
	}
}

func TestJSONAuditRecorder(t *testing.T) {
	var buf bytes.Buffer
	rec := NewJSONAuditRecorder(&buf)
	rec.Record(context.Background(), AuditEntry{
		Operation: OpAddChild,
		Action:    domain.ActionCreate,
		RecordID:  "child_1",
		Status:    AuditStatusSuccess,
		Duration:  1500 * time.Microsecond,
		Timestamp: fixedClock().Now(),
	})
	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if line["action"] != "create" || line["record_id"] != "child_1" || line["duration_ms"] != 1.5 {
		t.Fatalf("line = %v", line)
	}
	if _, ok := line["error"]; ok {
		t.Fatalf("error should be omitted on success")
	}
}

func TestPrometheusMetrics(t *testing.T) {
	m := NewPrometheusMetrics()
	m.Observe(context.Background(), OpAddRoot, true, 10*time.Millisecond)
	m.Observe(context.Background(), OpAddRoot, false, 10*time.Millisecond)
	m.Observe(context.Background(), OpAddRoot, true, 10*time.Millisecond)
	m.ObserveForest(sampleForest(), time.Millisecond)

	if got := testutil.ToFloat64(m.operations.WithLabelValues(OpAddRoot, "success")); got != 2 {
		t.Fatalf("success count = %v", got)
	}
	if got := testutil.ToFloat64(m.people); got != 3 {
		t.Fatalf("people gauge = %v", got)
	}
	if got := testutil.ToFloat64(m.demotions); got != 1 {
		t.Fatalf("demotions gauge = %v", got)
	}
	if n := testutil.CollectAndCount(m.latency); n != 1 {
		t.Fatalf("latency series = %d", n)
	}

	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "familytree_forest_roots 2") {
		t.Fatalf("unexpected exposition: %d %s", rr.Code, rr.Body.String())
	}
	if m.Registry() == nil {
		t.Fatalf("registry missing")
	}
}

func TestNoopSinks(t *testing.T) {
	ctx := context.Background()
	noopLogger{}.Debug("x")
	noopLogger{}.Info("x")
	noopLogger{}.Warn("x")
	noopLogger{}.Error("x")
	noopMetricsRecorder{}.Observe(ctx, "x", true, 0)
	noopForestObserver{}.ObserveForest(sampleForest(), 0)
	noopAuditRecorder{}.Record(ctx, AuditEntry{})
	gotCtx, span := noopTracer{}.Start(ctx, "x")
	span.End(nil)
	if gotCtx != ctx {
		t.Fatalf("noop tracer must return the same context")
	}
	if ClockFunc(nil).Now().Location() != time.UTC {
		t.Fatalf("clock must report UTC")
	}
}
