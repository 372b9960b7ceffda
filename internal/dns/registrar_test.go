package dns

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestRegistrar(t *testing.T, handler http.HandlerFunc) *Registrar {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	reg, err := NewRegistrar(srv.URL, "token", "zone-1", "10.0.0.1", "smaapi.dev", WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("new registrar: %v", err)
	}
	return reg
}

func TestRegisterCreatesAddressRecord(t *testing.T) {
	var got recordRequest
	reg := newTestRegistrar(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method %s", r.Method)
		}
		if r.Header.Get("Authorization") != "Bearer token" {
			t.Error("missing bearer token")
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
	})

	fqdn, err := reg.Register(context.Background(), "abc123def0")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if fqdn != "abc123def0.smaapi.dev" {
		t.Fatalf("unexpected fqdn %q", fqdn)
	}
	if got.Type != "A" || got.Content != "10.0.0.1" || got.Name != fqdn {
		t.Fatalf("unexpected record request %+v", got)
	}
}

func TestRegisterProviderFailure(t *testing.T) {
	reg := newTestRegistrar(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "zone locked", http.StatusForbidden)
	})
	if _, err := reg.Register(context.Background(), "abc123def0"); err == nil {
		t.Fatal("expected error from provider failure")
	}
}

func TestDeregisterMissingRecordIsSuccess(t *testing.T) {
	reg := newTestRegistrar(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	if err := reg.Deregister(context.Background(), "abc123def0"); err != nil {
		t.Fatalf("deregister of absent record must succeed: %v", err)
	}
}

func TestDeregisterProviderFailure(t *testing.T) {
	reg := newTestRegistrar(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	if err := reg.Deregister(context.Background(), "abc123def0"); err == nil {
		t.Fatal("expected error from provider failure")
	}
}
