package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/anchorlab/anchorengine/internal/config"
)

func testConfig() config.Config {
	cfg := config.DefaultConfig()
	cfg.Search.Tau = 0.8
	cfg.Search.BeamSize = 1
	cfg.Search.InitSampleCount = 20
	cfg.Search.MaxValidationRounds = 200
	cfg.Sampling.Strategy = "linear"
	cfg.Sampling.CoverageSamples = 500
	cfg.Aggregator.D = 1
	return cfg
}

func TestHandleExplainUpperRightQuadrant(t *testing.T) {
	srv := NewServer(testConfig(), nil)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	body, _ := json.Marshal(ExplainRequest{Features: []int{1, 100}, Label: 1})
	resp, err := http.Post(ts.URL+"/v1/explain", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST /v1/explain: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var out ExplainResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.RunID == "" {
		t.Error("RunID is empty")
	}
	if len(out.Features) != 1 || out.Features[0] != 0 {
		t.Errorf("Features = %v, want [0]", out.Features)
	}
	if !out.IsAnchor {
		t.Error("IsAnchor = false, want true")
	}
}

func TestHandleExplainRejectsEmptyFeatures(t *testing.T) {
	srv := NewServer(testConfig(), nil)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	body, _ := json.Marshal(ExplainRequest{Features: nil, Label: 1})
	resp, err := http.Post(ts.URL+"/v1/explain", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST /v1/explain: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestHandleGlobalPick(t *testing.T) {
	srv := NewServer(testConfig(), nil)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	req := GlobalPickRequest{
		Instances: [][]int{{1, 100}, {1, 1}, {1, 0}},
		Labels:    []int{1, 1, 0},
		D:         2,
	}
	body, _ := json.Marshal(req)
	resp, err := http.Post(ts.URL+"/v1/globalpick", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST /v1/globalpick: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var out GlobalPickResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.PassID == "" {
		t.Error("PassID is empty")
	}
	if len(out.Picks) == 0 {
		t.Error("Picks is empty")
	}
}

func TestHealthEndpoint(t *testing.T) {
	srv := NewServer(testConfig(), nil)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}
