package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestConfigValidateCommand(t *testing.T) {
	t.Setenv("RWA_PRINCIPALS_GOVERNANCE", "0x00000000000000000000000000000000000000a1")
	t.Setenv("RWA_PRINCIPALS_ORACLE", "0x00000000000000000000000000000000000000a2")
	t.Setenv("RWA_PRINCIPALS_AGENT", "0x00000000000000000000000000000000000000a3")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("RWA_DATABASE_URL", "")
	t.Setenv("REDIS_URL", "")
	t.Setenv("RWA_REDIS_URL", "")

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"config", "validate"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !strings.Contains(out.String(), "journal memory") {
		t.Errorf("output = %q", out.String())
	}
}

func TestConfigValidateReportsProblems(t *testing.T) {
	t.Setenv("RWA_PRINCIPALS_GOVERNANCE", "")
	t.Setenv("RWA_LOG_LEVEL", "loud")

	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"config", "validate"})
	err := cmd.Execute()
	if err == nil || !strings.Contains(err.Error(), "log_level") {
		t.Fatalf("err = %v", err)
	}
}

func TestCORS(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })

	h := cors([]string{"https://app.example.com"})(ok)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/swap", nil)
	req.Header.Set("Origin", "https://app.example.com")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
		t.Errorf("allow origin = %q", got)
	}
	if !strings.Contains(rec.Header().Get("Access-Control-Allow-Headers"), "X-Principal") {
		t.Error("principal header not allowed")
	}

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || rec.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Errorf("foreign origin: status %d, allow %q", rec.Code, rec.Header().Get("Access-Control-Allow-Origin"))
	}
}
