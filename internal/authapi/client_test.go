package authapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/sendgate/smtpgw/internal/apierror"
)

func init() {
	// Keep retry tests fast.
	backoffSchedule = []time.Duration{time.Millisecond, time.Millisecond}
}

// authStub serves a scripted sequence of responses and counts calls.
type authStub struct {
	mu        sync.Mutex
	calls     int
	responses []func(w http.ResponseWriter)
}

func (s *authStub) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/validate" {
			t.Errorf("path = %q, want /validate", r.URL.Path)
		}
		var req validateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decoding request: %v", err)
		}

		s.mu.Lock()
		i := s.calls
		s.calls++
		s.mu.Unlock()

		if i >= len(s.responses) {
			i = len(s.responses) - 1
		}
		s.responses[i](w)
	}
}

func (s *authStub) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func respondJSON(status int, body string) func(w http.ResponseWriter) {
	return func(w http.ResponseWriter) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}
}

func TestValidate_Success(t *testing.T) {
	stub := &authStub{responses: []func(w http.ResponseWriter){
		respondJSON(http.StatusOK, `{"api_key":"key-123"}`),
	}}
	srv := httptest.NewServer(stub.handler(t))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, 2, nil)
	key, err := c.Validate(context.Background(), "user", "pass")
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if key != "key-123" {
		t.Errorf("key = %q", key)
	}
	if stub.callCount() != 1 {
		t.Errorf("calls = %d, want 1", stub.callCount())
	}
}

func TestValidate_Classification(t *testing.T) {
	tests := []struct {
		name      string
		responses []func(w http.ResponseWriter)
		wantKind  apierror.Kind
		wantCalls int
	}{
		{
			name:      "401 fails without retry",
			responses: []func(w http.ResponseWriter){respondJSON(http.StatusUnauthorized, `{}`)},
			wantKind:  apierror.KindAuthentication,
			wantCalls: 1,
		},
		{
			name:      "403 fails without retry",
			responses: []func(w http.ResponseWriter){respondJSON(http.StatusForbidden, `{}`)},
			wantKind:  apierror.KindAuthentication,
			wantCalls: 1,
		},
		{
			name:      "empty api_key is a contract violation",
			responses: []func(w http.ResponseWriter){respondJSON(http.StatusOK, `{"api_key":""}`)},
			wantKind:  apierror.KindServer,
			wantCalls: 1,
		},
		{
			name:      "malformed body is a contract violation",
			responses: []func(w http.ResponseWriter){respondJSON(http.StatusOK, `not json`)},
			wantKind:  apierror.KindServer,
			wantCalls: 1,
		},
		{
			name:      "other 4xx fails without retry",
			responses: []func(w http.ResponseWriter){respondJSON(http.StatusNotFound, `{}`)},
			wantKind:  apierror.KindServer,
			wantCalls: 1,
		},
		{
			name: "5xx exhausts retries",
			responses: []func(w http.ResponseWriter){
				respondJSON(http.StatusInternalServerError, `{}`),
				respondJSON(http.StatusBadGateway, `{}`),
				respondJSON(http.StatusInternalServerError, `{}`),
			},
			wantKind:  apierror.KindServer,
			wantCalls: 3,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			stub := &authStub{responses: tc.responses}
			srv := httptest.NewServer(stub.handler(t))
			defer srv.Close()

			c := NewClient(srv.URL, time.Second, 2, nil)
			_, err := c.Validate(context.Background(), "user", "pass")
			if err == nil {
				t.Fatal("expected error")
			}
			if !apierror.IsKind(err, tc.wantKind) {
				t.Errorf("error = %v, want kind %s", err, tc.wantKind)
			}
			if got := stub.callCount(); got != tc.wantCalls {
				t.Errorf("calls = %d, want %d", got, tc.wantCalls)
			}
		})
	}
}

func TestValidate_RecoversAfterTransientError(t *testing.T) {
	stub := &authStub{responses: []func(w http.ResponseWriter){
		respondJSON(http.StatusInternalServerError, `{}`),
		respondJSON(http.StatusOK, `{"api_key":"key-after-retry"}`),
	}}
	srv := httptest.NewServer(stub.handler(t))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, 2, nil)
	key, err := c.Validate(context.Background(), "user", "pass")
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if key != "key-after-retry" {
		t.Errorf("key = %q", key)
	}
	if stub.callCount() != 2 {
		t.Errorf("calls = %d, want 2", stub.callCount())
	}
}

func TestValidate_TransportErrorIsNetwork(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // refuse connections

	c := NewClient(srv.URL, time.Second, 1, nil)
	_, err := c.Validate(context.Background(), "user", "pass")
	if err == nil {
		t.Fatal("expected error")
	}
	if !apierror.IsKind(err, apierror.KindNetwork) {
		t.Errorf("error = %v, want network kind", err)
	}
}

// memCache is a map-backed Cache for tests.
type memCache struct {
	mu   sync.Mutex
	keys map[string]string
}

func (c *memCache) Get(_ context.Context, username, password string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key, ok := c.keys[username+"\x00"+password]
	return key, ok
}

func (c *memCache) Set(_ context.Context, username, password, apiKey string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.keys == nil {
		c.keys = make(map[string]string)
	}
	c.keys[username+"\x00"+password] = apiKey
}

func TestValidate_CacheSkipsUpstream(t *testing.T) {
	stub := &authStub{responses: []func(w http.ResponseWriter){
		respondJSON(http.StatusOK, `{"api_key":"key-xyz"}`),
	}}
	srv := httptest.NewServer(stub.handler(t))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, 0, nil).WithCache(&memCache{})

	for i := 0; i < 3; i++ {
		key, err := c.Validate(context.Background(), "user", "pass")
		if err != nil {
			t.Fatalf("Validate #%d: %v", i, err)
		}
		if key != "key-xyz" {
			t.Errorf("key = %q", key)
		}
	}
	if stub.callCount() != 1 {
		t.Errorf("calls = %d, want 1 (cache should absorb repeats)", stub.callCount())
	}
}
