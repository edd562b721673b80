package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jamhq/jam/internal/bulkadd"
	"github.com/jamhq/jam/internal/store"
)

// newTestServer builds an httptest.Server with a real SQLiteStore, runner and
// service behind the full route table.
func newTestServer(t *testing.T) (*httptest.Server, *store.SQLiteStore, *bulkadd.Runner) {
	t.Helper()

	st, err := store.NewSQLiteStore(":memory:", 0)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	runner := bulkadd.NewRunner(st, 100, 2)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	runner.Start(ctx)

	svc := bulkadd.NewService(st, st, runner)
	h := NewHandler(st, svc, runner)

	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, st, runner
}

func doRequest(t *testing.T, srv *httptest.Server, method, path string, body []byte) *http.Response {
	t.Helper()
	var req *http.Request
	var err error
	if body != nil {
		req, err = http.NewRequest(method, srv.URL+path, bytes.NewReader(body))
	} else {
		req, err = http.NewRequest(method, srv.URL+path, nil)
	}
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Do request: %v", err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var result map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return result
}

func seedCompanies(t *testing.T, st *store.SQLiteStore, n int) []int64 {
	t.Helper()
	ids := make([]int64, 0, n)
	for i := 0; i < n; i++ {
		c, err := st.CreateCompany(context.Background(), fmt.Sprintf("Company %d", i+1))
		if err != nil {
			t.Fatalf("CreateCompany: %v", err)
		}
		ids = append(ids, c.ID)
	}
	return ids
}

func seedCollection(t *testing.T, st *store.SQLiteStore, name string) *store.Collection {
	t.Helper()
	c, err := st.CreateCollection(context.Background(), name)
	if err != nil {
		t.Fatalf("CreateCollection: %v", err)
	}
	return c
}

func TestHealth(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp := doRequest(t, srv, http.MethodGet, "/api/v1/health", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	result := decodeBody(t, resp)
	if result["status"] != "ok" {
		t.Errorf("status field = %v, want ok", result["status"])
	}
}

func TestListCollections(t *testing.T) {
	srv, st, _ := newTestServer(t)

	seedCollection(t, st, "My List")
	seedCollection(t, st, "Liked Companies List")

	resp := doRequest(t, srv, http.MethodGet, "/api/v1/collections", nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var collections []store.Collection
	if err := json.NewDecoder(resp.Body).Decode(&collections); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(collections) != 2 {
		t.Errorf("len(collections) = %d, want 2", len(collections))
	}
}

func TestGetCollection_NotFound(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp := doRequest(t, srv, http.MethodGet, "/api/v1/collections/11111111-1111-1111-1111-111111111111", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestGetCollection_Pagination(t *testing.T) {
	srv, st, runner := newTestServer(t)

	ids := seedCompanies(t, st, 15)
	col := seedCollection(t, st, "A")
	createBulkAdd(t, srv, runner, col.ID, ids)

	resp := doRequest(t, srv, http.MethodGet, "/api/v1/collections/"+col.ID+"?offset=10&limit=10", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	result := decodeBody(t, resp)

	companies := result["companies"].([]any)
	if len(companies) != 5 {
		t.Errorf("len(companies) = %d, want 5", len(companies))
	}
	if total := result["total"].(float64); total != 15 {
		t.Errorf("total = %v, want 15", total)
	}
}

// createBulkAdd POSTs an explicit-list bulk add and waits for the job to finish.
func createBulkAdd(t *testing.T, srv *httptest.Server, runner *bulkadd.Runner, collectionID string, ids []int64) {
	t.Helper()
	body, _ := json.Marshal(map[string]any{"company_ids": ids})
	resp := doRequest(t, srv, http.MethodPost, "/api/v1/collections/"+collectionID+"/companies", body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("bulk add status = %d, want 202", resp.StatusCode)
	}
	runner.Wait()
}

func TestAddCompanies_Returns202WithJobID(t *testing.T) {
	srv, st, _ := newTestServer(t)

	ids := seedCompanies(t, st, 3)
	col := seedCollection(t, st, "A")

	body, _ := json.Marshal(map[string]any{"company_ids": ids})
	resp := doRequest(t, srv, http.MethodPost, "/api/v1/collections/"+col.ID+"/companies", body)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}
	result := decodeBody(t, resp)
	if result["bulk_add_job_id"] == nil {
		t.Error("response body missing bulk_add_job_id")
	}
}

func TestAddCompanies_EmptyDiffReturnsNullID(t *testing.T) {
	srv, st, runner := newTestServer(t)

	ids := seedCompanies(t, st, 2)
	col := seedCollection(t, st, "A")
	createBulkAdd(t, srv, runner, col.ID, ids)

	// All requested companies are already members.
	body, _ := json.Marshal(map[string]any{"company_ids": ids})
	resp := doRequest(t, srv, http.MethodPost, "/api/v1/collections/"+col.ID+"/companies", body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	result := decodeBody(t, resp)
	if result["bulk_add_job_id"] != nil {
		t.Errorf("bulk_add_job_id = %v, want null", result["bulk_add_job_id"])
	}
}

func TestAddCompanies_InvalidJSON(t *testing.T) {
	srv, st, _ := newTestServer(t)

	col := seedCollection(t, st, "A")

	resp := doRequest(t, srv, http.MethodPost, "/api/v1/collections/"+col.ID+"/companies", []byte("{not json"))
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestAddCompanies_BothSelectorsReturns400(t *testing.T) {
	srv, st, _ := newTestServer(t)

	ids := seedCompanies(t, st, 1)
	col := seedCollection(t, st, "A")
	src := seedCollection(t, st, "B")

	body, _ := json.Marshal(map[string]any{
		"company_ids":          ids,
		"source_collection_id": src.ID,
	})
	resp := doRequest(t, srv, http.MethodPost, "/api/v1/collections/"+col.ID+"/companies", body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestAddCompanies_UnknownCompanyReturns404(t *testing.T) {
	srv, st, _ := newTestServer(t)

	col := seedCollection(t, st, "A")

	body, _ := json.Marshal(map[string]any{"company_ids": []int64{9999}})
	resp := doRequest(t, srv, http.MethodPost, "/api/v1/collections/"+col.ID+"/companies", body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestAddCompanies_UnknownCollectionReturns404(t *testing.T) {
	srv, st, _ := newTestServer(t)

	ids := seedCompanies(t, st, 1)

	body, _ := json.Marshal(map[string]any{"company_ids": ids})
	resp := doRequest(t, srv, http.MethodPost, "/api/v1/collections/11111111-1111-1111-1111-111111111111/companies", body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestGetJob(t *testing.T) {
	srv, st, runner := newTestServer(t)

	ids := seedCompanies(t, st, 3)
	col := seedCollection(t, st, "A")

	body, _ := json.Marshal(map[string]any{"company_ids": ids})
	resp := doRequest(t, srv, http.MethodPost, "/api/v1/collections/"+col.ID+"/companies", body)
	created := decodeBody(t, resp)
	jobID := int64(created["bulk_add_job_id"].(float64))
	runner.Wait()

	getResp := doRequest(t, srv, http.MethodGet, fmt.Sprintf("/api/v1/bulk-add-jobs/%d", jobID), nil)
	if getResp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", getResp.StatusCode)
	}
	result := decodeBody(t, getResp)
	if result["status"] != "completed" {
		t.Errorf("status = %v, want completed", result["status"])
	}
	if result["added"].(float64) != 3 {
		t.Errorf("added = %v, want 3", result["added"])
	}
}

func TestGetJob_InvalidID(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp := doRequest(t, srv, http.MethodGet, "/api/v1/bulk-add-jobs/not-a-number", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestGetJob_NotFound(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp := doRequest(t, srv, http.MethodGet, "/api/v1/bulk-add-jobs/404", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestListJobs(t *testing.T) {
	srv, st, runner := newTestServer(t)

	ids := seedCompanies(t, st, 2)
	colA := seedCollection(t, st, "A")
	colB := seedCollection(t, st, "B")
	createBulkAdd(t, srv, runner, colA.ID, ids)
	createBulkAdd(t, srv, runner, colB.ID, ids)

	resp := doRequest(t, srv, http.MethodGet, "/api/v1/bulk-add-jobs", nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var jobs []map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&jobs); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(jobs) != 2 {
		t.Errorf("len(jobs) = %d, want 2", len(jobs))
	}
}

func TestCancelJob_CompletedReturns409(t *testing.T) {
	srv, st, runner := newTestServer(t)

	ids := seedCompanies(t, st, 1)
	col := seedCollection(t, st, "A")

	body, _ := json.Marshal(map[string]any{"company_ids": ids})
	resp := doRequest(t, srv, http.MethodPost, "/api/v1/collections/"+col.ID+"/companies", body)
	created := decodeBody(t, resp)
	jobID := int64(created["bulk_add_job_id"].(float64))
	runner.Wait()

	cancelResp := doRequest(t, srv, http.MethodPost, fmt.Sprintf("/api/v1/bulk-add-jobs/%d/cancel", jobID), nil)
	cancelResp.Body.Close()
	if cancelResp.StatusCode != http.StatusConflict {
		t.Fatalf("status = %d, want 409", cancelResp.StatusCode)
	}
}

func TestCancelJob_NotFound(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp := doRequest(t, srv, http.MethodPost, "/api/v1/bulk-add-jobs/404/cancel", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestStreamJob_TerminalJobSendsResult(t *testing.T) {
	srv, st, runner := newTestServer(t)

	ids := seedCompanies(t, st, 1)
	col := seedCollection(t, st, "A")

	body, _ := json.Marshal(map[string]any{"company_ids": ids})
	resp := doRequest(t, srv, http.MethodPost, "/api/v1/collections/"+col.ID+"/companies", body)
	created := decodeBody(t, resp)
	jobID := int64(created["bulk_add_job_id"].(float64))
	runner.Wait()

	sseResp := doRequest(t, srv, http.MethodGet, fmt.Sprintf("/api/v1/bulk-add-jobs/%d/sse", jobID), nil)
	defer sseResp.Body.Close()
	if sseResp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", sseResp.StatusCode)
	}
	if ct := sseResp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q, want text/event-stream", ct)
	}

	buf := make([]byte, 4096)
	n, _ := sseResp.Body.Read(buf)
	frame := string(buf[:n])
	if !bytes.Contains([]byte(frame), []byte("event: result")) {
		t.Errorf("frame = %q, want a result event", frame)
	}
	if !bytes.Contains([]byte(frame), []byte(`"status":"completed"`)) {
		t.Errorf("frame = %q, want completed status payload", frame)
	}
}
