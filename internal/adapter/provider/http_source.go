package provider

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hive-corporation/threatpulse/internal/adapter/resilient"
	"github.com/hive-corporation/threatpulse/internal/core/domain"
	"github.com/hive-corporation/threatpulse/internal/core/ports"
	"github.com/hive-corporation/threatpulse/pkg/log"
)

// Format selects how an HTTP source body is decoded.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
)

// HTTPSource polls a classification endpoint. JSON bodies are either
// {"alerts": [...], "simulations": [...]} or a bare array of alerts. CSV
// bodies carry one alert per row (see parseCSV).
type HTTPSource struct {
	name   string
	url    string
	apiKey string
	format Format
	client *resilient.Client
	logger log.Logger

	mu    sync.Mutex
	since time.Time
}

func NewHTTPSource(name, rawURL, apiKey string, format Format, client *resilient.Client, logger log.Logger) *HTTPSource {
	if format == "" {
		format = FormatJSON
	}
	return &HTTPSource{
		name:   name,
		url:    rawURL,
		apiKey: apiKey,
		format: format,
		client: client,
		logger: logger,
	}
}

func (s *HTTPSource) Name() string {
	return s.name
}

type httpBatch struct {
	Alerts      []domain.Alert            `json:"alerts"`
	Simulations []domain.ThreatSimulation `json:"simulations"`
}

// Fetch asks for everything newer than the previous successful fetch.
func (s *HTTPSource) Fetch(ctx context.Context) (ports.Batch, error) {
	s.mu.Lock()
	since := s.since
	s.mu.Unlock()

	endpoint, err := url.Parse(s.url)
	if err != nil {
		return ports.Batch{}, fmt.Errorf("invalid url for %s: %w", s.name, err)
	}
	if !since.IsZero() {
		q := endpoint.Query()
		q.Set("since", since.UTC().Format(time.RFC3339))
		endpoint.RawQuery = q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return ports.Batch{}, fmt.Errorf("failed to create request: %w", err)
	}
	if s.apiKey != "" {
		req.Header.Set("X-API-Key", s.apiKey)
	}

	started := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		return ports.Batch{}, fmt.Errorf("failed to fetch %s: %w", s.name, err)
	}
	defer resp.Body.Close()

	var batch ports.Batch
	switch s.format {
	case FormatCSV:
		batch.Alerts, err = parseCSV(resp.Body)
	default:
		batch, err = parseJSON(resp.Body)
	}
	if err != nil {
		return ports.Batch{}, fmt.Errorf("failed to decode %s: %w", s.name, err)
	}

	s.mu.Lock()
	s.since = started
	s.mu.Unlock()

	s.logger.Debugf(ctx, "provider.HTTPSource.Fetch: %s returned %d alerts, %d simulations",
		s.name, len(batch.Alerts), len(batch.Simulations))
	return batch, nil
}

func parseJSON(r io.Reader) (ports.Batch, error) {
	body, err := io.ReadAll(r)
	if err != nil {
		return ports.Batch{}, err
	}
	body = []byte(strings.TrimSpace(string(body)))
	if len(body) == 0 {
		return ports.Batch{}, nil
	}

	if body[0] == '[' {
		var alerts []domain.Alert
		if err := json.Unmarshal(body, &alerts); err != nil {
			return ports.Batch{}, err
		}
		return ports.Batch{Alerts: alerts}, nil
	}

	var hb httpBatch
	if err := json.Unmarshal(body, &hb); err != nil {
		return ports.Batch{}, err
	}
	return ports.Batch{Alerts: hb.Alerts, Simulations: hb.Simulations}, nil
}

// parseCSV reads alert exports with the columns
//
//	0: id, 1: date (RFC3339), 2: platform, 3: severity, 4: category,
//	5: content, 6: entities (";"-separated), 7: confidence, 8: recommendation
//
// Lines starting with '#' are comments. Rows with fewer than six columns or
// an unparseable date are skipped.
func parseCSV(r io.Reader) ([]domain.Alert, error) {
	reader := csv.NewReader(r)
	reader.Comment = '#'
	reader.FieldsPerRecord = -1

	var alerts []domain.Alert

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error reading csv line: %w", err)
		}
		if len(record) < 6 || record[0] == "id" {
			continue
		}

		date, err := time.Parse(time.RFC3339, strings.TrimSpace(record[1]))
		if err != nil {
			continue
		}

		a := domain.Alert{
			ID:       strings.TrimSpace(record[0]),
			Date:     date,
			Platform: strings.TrimSpace(record[2]),
			Severity: domain.Severity(strings.ToLower(strings.TrimSpace(record[3]))),
			Category: strings.TrimSpace(record[4]),
			Content:  record[5],
			Status:   domain.StatusNew,
		}
		if len(record) > 6 && record[6] != "" {
			for _, e := range strings.Split(record[6], ";") {
				if e = strings.TrimSpace(e); e != "" {
					a.DetectedEntities = append(a.DetectedEntities, e)
				}
			}
		}
		if len(record) > 7 {
			if v, err := strconv.ParseFloat(strings.TrimSpace(record[7]), 64); err == nil {
				a.ConfidenceScore = &v
			}
		}
		if len(record) > 8 {
			a.Recommendation = record[8]
		}

		alerts = append(alerts, a)
	}

	return alerts, nil
}
