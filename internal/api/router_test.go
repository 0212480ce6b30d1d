package api_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dvloznov/subzap/internal/api"
	"github.com/dvloznov/subzap/internal/audit"
	"github.com/dvloznov/subzap/internal/domain"
	"github.com/dvloznov/subzap/internal/jobs"
	jobsmem "github.com/dvloznov/subzap/internal/jobs/inmemory"
	"github.com/dvloznov/subzap/internal/ledger"
	"github.com/dvloznov/subzap/internal/ledger/inmemory"
	"github.com/dvloznov/subzap/internal/logger"
	"github.com/dvloznov/subzap/internal/normalize"
	"github.com/dvloznov/subzap/internal/pipeline"
	"github.com/dvloznov/subzap/internal/pricetable"
	"github.com/dvloznov/subzap/internal/recurrence"
	"github.com/shopspring/decimal"
)

// MockPublisher is a mock implementation of jobs.Publisher.
type MockPublisher struct {
	PublishIngestFunc func(ctx context.Context, job *jobs.IngestJob) error
}

func (m *MockPublisher) PublishIngest(ctx context.Context, job *jobs.IngestJob) error {
	if m.PublishIngestFunc != nil {
		return m.PublishIngestFunc(ctx, job)
	}
	return nil
}

func (m *MockPublisher) Close() error { return nil }

type testServer struct {
	*httptest.Server
	store    *inmemory.Store
	jobStore *jobsmem.Store
}

func newTestServer(t *testing.T, publisher jobs.Publisher) *testServer {
	t.Helper()

	store := inmemory.NewStore()
	table := pricetable.NewStatic("2024-03",
		pricetable.Reference{MerchantKey: "Netflix", Plan: "standard", Price: decimal.RequireFromString("649.00")},
	)
	jobStore := jobsmem.NewStore()

	router := api.NewRouter(api.Deps{
		Ingestor:  pipeline.NewIngestor(normalize.New(normalize.Options{}), ledger.NewDeduplicator(store)),
		Ledger:    store,
		Scanner:   pipeline.NewScanner(store, recurrence.New(recurrence.DefaultConfig()), audit.New(table, audit.DefaultThresholds())),
		Publisher: publisher,
		JobStore:  jobStore,
		Log:       logger.NewWithWriter(io.Discard),
	})

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, store: store, jobStore: jobStore}
}

func (s *testServer) do(t *testing.T, method, path, body string, out interface{}) int {
	t.Helper()

	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, s.URL+path, rd)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("%s %s: decode: %v", method, path, err)
		}
	}
	return resp.StatusCode
}

const netflixBatch = `{"candidates": [
	{"description": "UPI/NETFLIX/netflix@icici", "amount": "649.00", "date": "05/01/2024"},
	{"description": "UPI/NETFLIX/netflix@icici", "amount": "649.00", "date": "04/02/2024"},
	{"description": "UPI/NETFLIX/netflix@icici", "amount": "799.00", "date": "06/03/2024"},
	{"description": "UPI/NETFLIX/netflix@icici", "amount": "799.00", "date": "06/03/2024"},
	{"description": "ZOMATO", "amount": "abc", "date": "06/03/2024"}
]}`

func TestHealth(t *testing.T) {
	srv := newTestServer(t, nil)

	var body map[string]string
	if code := srv.do(t, http.MethodGet, "/health", "", &body); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if body["status"] != "healthy" {
		t.Errorf("unexpected body: %v", body)
	}
}

func TestIngestThenQuery(t *testing.T) {
	srv := newTestServer(t, nil)

	var batch pipeline.BatchReport
	if code := srv.do(t, http.MethodPost, "/api/candidates", netflixBatch, &batch); code != http.StatusOK {
		t.Fatalf("POST /api/candidates status = %d", code)
	}
	if batch.Accepted != 3 || batch.Duplicates != 1 || batch.Invalid != 1 {
		t.Errorf("batch counts = %d/%d/%d, want 3/1/1", batch.Accepted, batch.Duplicates, batch.Invalid)
	}
	if batch.Results[4].Outcome != pipeline.OutcomeInvalid || batch.Results[4].Error == "" {
		t.Errorf("invalid candidate not reported: %+v", batch.Results[4])
	}
	for _, res := range batch.Results {
		if res.Outcome == pipeline.OutcomeDuplicate && res.DuplicateOf == nil {
			t.Errorf("duplicate without the record it collided with: %+v", res)
		}
	}

	var list struct {
		Transactions []domain.Transaction `json:"transactions"`
		Count        int                  `json:"count"`
	}
	if code := srv.do(t, http.MethodGet, "/api/transactions?merchant=netflix&from=2024-02-01", "", &list); code != http.StatusOK {
		t.Fatalf("GET /api/transactions status = %d", code)
	}
	if list.Count != 2 {
		t.Fatalf("count = %d, want 2", list.Count)
	}

	var tx domain.Transaction
	if code := srv.do(t, http.MethodGet, "/api/transactions/"+list.Transactions[0].ID, "", &tx); code != http.StatusOK {
		t.Fatalf("GET /api/transactions/{id} status = %d", code)
	}
	if tx.MerchantName != "Netflix" || !tx.Amount.Equal(decimal.RequireFromString("649")) {
		t.Errorf("unexpected transaction: %+v", tx)
	}

	if code := srv.do(t, http.MethodGet, "/api/transactions/missing", "", nil); code != http.StatusNotFound {
		t.Errorf("missing transaction status = %d, want 404", code)
	}
}

func TestSubscriptionsAndFindings(t *testing.T) {
	srv := newTestServer(t, nil)
	if code := srv.do(t, http.MethodPost, "/api/candidates", netflixBatch, nil); code != http.StatusOK {
		t.Fatalf("seed status = %d", code)
	}

	var subs struct {
		Subscriptions []domain.SubscriptionCandidate `json:"subscriptions"`
		Count         int                            `json:"count"`
	}
	if code := srv.do(t, http.MethodGet, "/api/subscriptions?as_of=2024-03-10", "", &subs); code != http.StatusOK {
		t.Fatalf("GET /api/subscriptions status = %d", code)
	}
	if subs.Count != 1 || subs.Subscriptions[0].InferredPeriod != domain.PeriodMonthly {
		t.Fatalf("unexpected subscriptions: %+v", subs)
	}

	var findings struct {
		Findings []domain.AuditFinding `json:"findings"`
		Version  string                `json:"price_table_version"`
	}
	if code := srv.do(t, http.MethodGet, "/api/findings?as_of=2024-03-10&severity=hike", "", &findings); code != http.StatusOK {
		t.Fatalf("GET /api/findings status = %d", code)
	}
	if len(findings.Findings) != 1 || findings.Version != "2024-03" {
		t.Fatalf("unexpected findings: %+v", findings)
	}
	if !findings.Findings[0].DeltaPct.Equal(decimal.RequireFromString("0.2311")) {
		t.Errorf("delta = %s, want 0.2311", findings.Findings[0].DeltaPct)
	}

	if code := srv.do(t, http.MethodGet, "/api/findings?as_of=10-03-2024", "", nil); code != http.StatusBadRequest {
		t.Errorf("bad as_of status = %d, want 400", code)
	}
}

func TestBadRequests(t *testing.T) {
	srv := newTestServer(t, &MockPublisher{})

	tests := []struct {
		method string
		path   string
		body   string
		want   int
	}{
		{http.MethodPost, "/api/candidates", `{"candidates": `, http.StatusBadRequest},
		{http.MethodGet, "/api/transactions?limit=-1", "", http.StatusBadRequest},
		{http.MethodGet, "/api/transactions?from=2024-03-01&to=2024-02-01", "", http.StatusBadRequest},
		{http.MethodPost, "/api/jobs", `{}`, http.StatusBadRequest},
		{http.MethodGet, "/api/jobs?offset=x", "", http.StatusBadRequest},
		{http.MethodGet, "/api/jobs/unknown", "", http.StatusNotFound},
		{http.MethodDelete, "/api/transactions", "", http.StatusMethodNotAllowed},
		{http.MethodGet, "/api/nothing", "", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			if code := srv.do(t, tt.method, tt.path, tt.body, nil); code != tt.want {
				t.Errorf("status = %d, want %d", code, tt.want)
			}
		})
	}
}

func TestJobsRoutes(t *testing.T) {
	var published *jobs.IngestJob
	var srv *testServer
	publisher := &MockPublisher{
		PublishIngestFunc: func(ctx context.Context, job *jobs.IngestJob) error {
			job.JobID = "job-1"
			job.Status = jobs.JobStatusPending
			job.CreatedAt = time.Now().UTC()
			published = job
			return srv.jobStore.SaveJob(ctx, job)
		},
	}
	srv = newTestServer(t, publisher)

	var created map[string]string
	code := srv.do(t, http.MethodPost, "/api/jobs", `{"source_uri": "gs://statements/jan.csv"}`, &created)
	if code != http.StatusAccepted {
		t.Fatalf("POST /api/jobs status = %d", code)
	}
	if created["job_id"] != "job-1" || created["status"] != "pending" {
		t.Errorf("unexpected response: %v", created)
	}
	if published == nil || published.SourceURI != "gs://statements/jan.csv" {
		t.Fatalf("job not published: %+v", published)
	}

	var job jobs.IngestJob
	if code := srv.do(t, http.MethodGet, "/api/jobs/job-1", "", &job); code != http.StatusOK {
		t.Fatalf("GET /api/jobs/{id} status = %d", code)
	}
	if job.SourceURI != "gs://statements/jan.csv" {
		t.Errorf("unexpected job: %+v", job)
	}

	var list struct {
		Jobs  []jobs.IngestJob `json:"jobs"`
		Count int              `json:"count"`
	}
	if code := srv.do(t, http.MethodGet, "/api/jobs?status=pending", "", &list); code != http.StatusOK || list.Count != 1 {
		t.Errorf("GET /api/jobs status = %d count = %d", code, list.Count)
	}
}

func TestJobsRoutes_QueueClosed(t *testing.T) {
	srv := newTestServer(t, &MockPublisher{
		PublishIngestFunc: func(ctx context.Context, job *jobs.IngestJob) error {
			return jobs.ErrQueueClosed
		},
	})

	if code := srv.do(t, http.MethodPost, "/api/jobs", `{"source_uri": "jan.csv"}`, nil); code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", code)
	}
}

func TestJobsRoutes_NotMountedWithoutQueue(t *testing.T) {
	srv := newTestServer(t, nil)

	if code := srv.do(t, http.MethodGet, "/api/jobs", "", nil); code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", code)
	}
}
