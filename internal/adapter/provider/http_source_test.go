package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hive-corporation/threatpulse/internal/adapter/resilient"
	"github.com/hive-corporation/threatpulse/internal/core/domain"
	"github.com/hive-corporation/threatpulse/pkg/log"
)

func testClient() *resilient.Client {
	return resilient.New("test", resilient.Config{Timeout: 2 * time.Second}, log.NewNop())
}

func TestHTTPSource_FetchJSON(t *testing.T) {
	var calls int32
	var sinceSeen atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		sinceSeen.Store(r.URL.Query().Get("since"))
		if r.Header.Get("X-API-Key") != "k" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`{"alerts":[{"id":"a1","severity":"high","platform":"x"}],"simulations":[{"topic":"t","threat_level":4,"likelihood_score":0.8}]}`))
	}))
	defer server.Close()

	src := NewHTTPSource("classifier", server.URL, "k", FormatJSON, testClient(), log.NewNop())

	batch, err := src.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(batch.Alerts) != 1 || len(batch.Simulations) != 1 {
		t.Fatalf("Unexpected batch: %+v", batch)
	}
	if got, _ := sinceSeen.Load().(string); got != "" {
		t.Errorf("First fetch should not send since, got %q", got)
	}

	if _, err := src.Fetch(context.Background()); err != nil {
		t.Fatalf("Second fetch failed: %v", err)
	}
	if got, _ := sinceSeen.Load().(string); got == "" {
		t.Error("Second fetch should send since")
	}
	if src.Name() != "classifier" {
		t.Errorf("Unexpected name %q", src.Name())
	}
}

func TestHTTPSource_FetchArray(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"id":"a1"},{"id":"a2"}]`))
	}))
	defer server.Close()

	batch, err := NewHTTPSource("arr", server.URL, "", "", testClient(), log.NewNop()).Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(batch.Alerts) != 2 {
		t.Errorf("Expected 2 alerts, got %d", len(batch.Alerts))
	}
}

func TestHTTPSource_FetchError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	if _, err := NewHTTPSource("bad", server.URL, "", FormatJSON, testClient(), log.NewNop()).Fetch(context.Background()); err == nil {
		t.Fatal("Expected error for 403")
	}
}

func TestParseCSV(t *testing.T) {
	body := strings.Join([]string{
		"# exported alerts",
		"id,date,platform,severity,category,content,entities,confidence,recommendation",
		`a1,2026-03-01T10:00:00Z,twitter,HIGH,,"Acme Holdings, again",Acme;Globex,0.92,Respond publicly`,
		"a2,2026-03-01T11:00:00Z,reddit,low,customer_enquiry,Where is my order",
		"a3,not-a-date,reddit,low,,skipped",
		"short,row",
	}, "\n")

	alerts, err := parseCSV(strings.NewReader(body))
	if err != nil {
		t.Fatalf("parseCSV failed: %v", err)
	}
	if len(alerts) != 2 {
		t.Fatalf("Expected 2 alerts, got %d", len(alerts))
	}

	a := alerts[0]
	if a.Severity != domain.SeverityHigh {
		t.Errorf("Expected high severity, got %s", a.Severity)
	}
	if a.Content != "Acme Holdings, again" {
		t.Errorf("Unexpected content %q", a.Content)
	}
	if len(a.DetectedEntities) != 2 || a.DetectedEntities[1] != "Globex" {
		t.Errorf("Unexpected entities %v", a.DetectedEntities)
	}
	if a.ConfidenceScore == nil || *a.ConfidenceScore != 0.92 {
		t.Errorf("Unexpected confidence %v", a.ConfidenceScore)
	}
	if alerts[1].Category != domain.CategoryCustomerEnquiry || alerts[1].Status != domain.StatusNew {
		t.Errorf("Unexpected second alert %+v", alerts[1])
	}
}
