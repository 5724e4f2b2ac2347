package uplink

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker"
)

func TestPostSendsJSON(t *testing.T) {
	var gotBody, gotType, gotMethod string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		gotType = r.Header.Get("Content-Type")
		gotMethod = r.Method
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := New(Config{URL: srv.URL})
	if err := p.Post(context.Background(), []byte(`{"people_count":"3"}`)); err != nil {
		t.Fatalf("Post: %v", err)
	}
	if gotMethod != http.MethodPost {
		t.Errorf("expected POST, got %s", gotMethod)
	}
	if gotType != "application/json" {
		t.Errorf("expected application/json, got %q", gotType)
	}
	if gotBody != `{"people_count":"3"}` {
		t.Errorf("unexpected body %q", gotBody)
	}
}

func TestPostNoURL(t *testing.T) {
	p := New(Config{})
	if err := p.Post(context.Background(), []byte("{}")); !errors.Is(err, ErrNoURL) {
		t.Errorf("expected ErrNoURL, got %v", err)
	}
}

func TestPostServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	p := New(Config{URL: srv.URL})
	if err := p.Post(context.Background(), []byte("{}")); err == nil {
		t.Error("expected error for 500 response")
	}
}

func TestBreakerOpensAfterFailures(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	p := New(Config{URL: srv.URL, Failures: 2, OpenDuration: time.Minute})
	for i := 0; i < 2; i++ {
		if err := p.Post(context.Background(), []byte("{}")); err == nil {
			t.Fatalf("post %d: expected error", i)
		}
	}
	if p.State() != "open" {
		t.Fatalf("expected open breaker, got %s", p.State())
	}

	err := p.Post(context.Background(), []byte("{}"))
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Errorf("expected ErrOpenState, got %v", err)
	}
	if hits.Load() != 2 {
		t.Errorf("expected open breaker to skip the server, got %d hits", hits.Load())
	}
}

func TestSetURL(t *testing.T) {
	var hit atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hit.Store(true)
	}))
	defer srv.Close()

	p := New(Config{URL: DefaultURL})
	p.SetURL(srv.URL)
	if p.URL() != srv.URL {
		t.Fatalf("URL not replaced: %s", p.URL())
	}
	if err := p.Post(context.Background(), []byte("{}")); err != nil {
		t.Fatalf("Post: %v", err)
	}
	if !hit.Load() {
		t.Error("new URL was not used")
	}
}
