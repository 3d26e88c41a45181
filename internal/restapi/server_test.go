package restapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Limbo-corps/LimboDB/internal/engine"
	"github.com/Limbo-corps/LimboDB/pkg/config"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	eng, err := engine.New(t.TempDir())
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	cfg := config.DefaultConfig()
	cfg.RestAPI.Enabled = true
	return NewServer(eng, cfg)
}

func doJSON(t *testing.T, s *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v (body=%s)", err, rec.Body.String())
	}
	return resp
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	rec := doJSON(t, s, http.MethodGet, "/v1/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestCreateAndListDatabases(t *testing.T) {
	s := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/v1/databases", map[string]string{"name": "demo"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, want 201: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, s, http.MethodPost, "/v1/databases", map[string]string{"name": "demo"})
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate create status = %d, want 409", rec.Code)
	}

	rec = doJSON(t, s, http.MethodGet, "/v1/databases", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d, want 200", rec.Code)
	}
	resp := decodeResponse(t, rec)
	names, ok := resp.Data.([]interface{})
	if !ok || len(names) != 1 || names[0] != "demo" {
		t.Errorf("list databases data = %#v, want [demo]", resp.Data)
	}
}

func TestUseAndQueryRoundTrip(t *testing.T) {
	s := newTestServer(t)
	doJSON(t, s, http.MethodPost, "/v1/databases", map[string]string{"name": "demo"})

	rec := doJSON(t, s, http.MethodPost, "/v1/databases/demo/use", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("use status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, s, http.MethodPost, "/v1/databases/demo/query", map[string]string{
		"statement": "CREATE TABLE users (id INT, name VARCHAR, PRIMARY KEY (id))",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("create table status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, s, http.MethodPost, "/v1/databases/demo/query", map[string]string{
		"statement": "INSERT INTO users VALUES (1, alice)",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("insert status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, s, http.MethodPost, "/v1/databases/demo/query", map[string]string{
		"statement": "SELECT * FROM users",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("select status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	resp := decodeResponse(t, rec)
	data, ok := resp.Data.(map[string]interface{})
	if !ok {
		t.Fatalf("select data = %#v, want a map", resp.Data)
	}
	rows, ok := data["rows"].([]interface{})
	if !ok || len(rows) != 1 {
		t.Errorf("select rows = %#v, want 1 row", data["rows"])
	}
}

func TestQueryUnknownDatabase(t *testing.T) {
	s := newTestServer(t)
	rec := doJSON(t, s, http.MethodPost, "/v1/databases/nope/query", map[string]string{
		"statement": "SELECT * FROM t",
	})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404: %s", rec.Code, rec.Body.String())
	}
}

func TestQueryBadStatement(t *testing.T) {
	s := newTestServer(t)
	doJSON(t, s, http.MethodPost, "/v1/databases", map[string]string{"name": "demo"})
	doJSON(t, s, http.MethodPost, "/v1/databases/demo/use", nil)

	rec := doJSON(t, s, http.MethodPost, "/v1/databases/demo/query", map[string]string{
		"statement": "NONSENSE",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400: %s", rec.Code, rec.Body.String())
	}
}
