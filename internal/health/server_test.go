package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func getHealthz(t *testing.T, url string) (int, map[string]string) {
	t.Helper()
	resp, err := http.Get(url + "/healthz")
	if err != nil {
		t.Fatalf("get healthz: %v", err)
	}
	defer resp.Body.Close()

	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return resp.StatusCode, body
}

func TestHealthzAllOK(t *testing.T) {
	srv := httptest.NewServer(Handler(Checker{
		DBPing:  func(context.Context) error { return nil },
		RPCPing: func(context.Context) error { return nil },
	}))
	defer srv.Close()

	code, body := getHealthz(t, srv.URL)
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if body["status"] != "ok" || body["db"] != "ok" || body["rpc"] != "ok" {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestHealthzReportsFailure(t *testing.T) {
	srv := httptest.NewServer(Handler(Checker{
		DBPing:  func(context.Context) error { return nil },
		RPCPing: func(context.Context) error { return errors.New("node down") },
	}))
	defer srv.Close()

	code, body := getHealthz(t, srv.URL)
	if code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", code)
	}
	if body["rpc"] != "fail" || body["db"] != "ok" || body["status"] != "degraded" {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestHealthzSkipsUnsetProbes(t *testing.T) {
	srv := httptest.NewServer(Handler(Checker{}))
	defer srv.Close()

	code, body := getHealthz(t, srv.URL)
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if _, present := body["db"]; present {
		t.Fatalf("db probe should be absent: %v", body)
	}
}
