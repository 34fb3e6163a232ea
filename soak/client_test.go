package soak

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"pricefuse/models"
)

func TestClientSnapshot(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/soak/snapshot" {
			t.Errorf("unexpected path %q", r.URL.Path)
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode(soakFixture()[0])
	}))
	defer ts.Close()

	// A trailing slash on the base URL must not produce a double-slash path.
	client := NewClient(ts.URL + "/")

	snap, err := client.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap.Asset != "BTC" {
		t.Errorf("asset = %q, want BTC", snap.Asset)
	}
	if snap.Version != 5 {
		t.Errorf("version = %d, want 5", snap.Version)
	}
	if len(snap.Venues) != 2 {
		t.Errorf("venues = %d, want 2", len(snap.Venues))
	}
}

func TestClientPolicy(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/policy" {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode(models.PolicySnapshot{
			QuorumProfile:       "permissive",
			Policy:              models.QuorumPolicy{MinQuorum: 1, PreferredQuorum: 2, AllowSingleSource: true},
			OutlierThresholdBps: 100,
		})
	}))
	defer ts.Close()

	policy, err := NewClient(ts.URL).Policy(context.Background())
	if err != nil {
		t.Fatalf("policy: %v", err)
	}
	if policy.QuorumProfile != "permissive" {
		t.Errorf("profile = %q, want permissive", policy.QuorumProfile)
	}
	if policy.Policy.PreferredQuorum != 2 {
		t.Errorf("preferred quorum = %d, want 2", policy.Policy.PreferredQuorum)
	}
}

func TestClientReportsUnexpectedStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer ts.Close()

	_, err := NewClient(ts.URL).Snapshot(context.Background())
	if err == nil {
		t.Fatal("expected error for 500 response")
	}
	if !strings.Contains(err.Error(), "unexpected status 500") {
		t.Errorf("error = %v, want status in message", err)
	}
}
