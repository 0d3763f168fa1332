package subgraph

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeEndpoint serves a fixed users page, optionally failing every request,
// and counts hits.
type fakeEndpoint struct {
	fail bool
	hits atomic.Int64
	user string
}

func (f *fakeEndpoint) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f.hits.Add(1)
		if f.fail {
			http.Error(w, "unavailable", http.StatusBadGateway)
			return
		}
		resp := map[string]any{
			"data": map[string]any{
				"users": []map[string]any{
					{"id": f.user, "nonce": "3", "lastUpdatedAt": "1700000000"},
				},
			},
		}
		json.NewEncoder(w).Encode(resp)
	}
}

func TestExecuteQueryStickyFailover(t *testing.T) {
	primary := &fakeEndpoint{fail: true}
	backup1 := &fakeEndpoint{fail: true}
	backup2 := &fakeEndpoint{user: "0xaaa"}

	servers := make([]*httptest.Server, 3)
	endpoints := make([]Endpoint, 3)
	for i, f := range []*fakeEndpoint{primary, backup1, backup2} {
		servers[i] = httptest.NewServer(f.handler())
		defer servers[i].Close()
		endpoints[i] = Endpoint{URL: servers[i].URL}
	}

	c := NewClient(endpoints, discardLogger())

	users, err := c.FetchUsers(context.Background())
	if err != nil {
		t.Fatalf("first fetch: %v", err)
	}
	if len(users) != 1 || users[0].ID != "0xaaa" || users[0].Nonce != 3 {
		t.Fatalf("users = %+v, want the second backup's data", users)
	}
	if primary.hits.Load() != 1 || backup1.hits.Load() != 1 {
		t.Fatal("failed endpoints should each be tried exactly once")
	}

	// The next call must start at the endpoint that last worked, not walk
	// the failed ones again.
	if _, err := c.FetchUsers(context.Background()); err != nil {
		t.Fatalf("second fetch: %v", err)
	}
	if primary.hits.Load() != 1 || backup1.hits.Load() != 1 {
		t.Fatalf("sticky selection violated: primary=%d backup1=%d hits",
			primary.hits.Load(), backup1.hits.Load())
	}
	if backup2.hits.Load() != 2 {
		t.Fatalf("backup2 hits = %d, want 2", backup2.hits.Load())
	}
}

func TestExecuteQueryAllEndpointsFailed(t *testing.T) {
	a := &fakeEndpoint{fail: true}
	b := &fakeEndpoint{fail: true}

	sa := httptest.NewServer(a.handler())
	defer sa.Close()
	sb := httptest.NewServer(b.handler())
	defer sb.Close()

	c := NewClient([]Endpoint{{URL: sa.URL}, {URL: sb.URL}}, discardLogger())

	_, err := c.FetchUsers(context.Background())
	var allFailed *AllEndpointsFailed
	if !errors.As(err, &allFailed) {
		t.Fatalf("err = %v, want AllEndpointsFailed", err)
	}
	if allFailed.Last == nil {
		t.Fatal("AllEndpointsFailed must carry the last underlying error")
	}
}

func TestExecuteQueryGraphQLErrorCountsAsFailure(t *testing.T) {
	gqlErr := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"errors": []map[string]any{{"message": "field does not exist"}},
		})
	}))
	defer gqlErr.Close()

	good := &fakeEndpoint{user: "0xbbb"}
	goodSrv := httptest.NewServer(good.handler())
	defer goodSrv.Close()

	c := NewClient([]Endpoint{{URL: gqlErr.URL}, {URL: goodSrv.URL}}, discardLogger())

	users, err := c.FetchUsers(context.Background())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(users) != 1 || users[0].ID != "0xbbb" {
		t.Fatalf("users = %+v, want fallback endpoint's data", users)
	}
}

func TestFetchPagedFollowsFullPages(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Variables struct {
				First int `json:"first"`
				Skip  int `json:"skip"`
			} `json:"variables"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		calls.Add(1)

		// First page is full, second is short.
		n := req.Variables.First
		if req.Variables.Skip > 0 {
			n = 1
		}
		users := make([]map[string]any, n)
		for i := range users {
			users[i] = map[string]any{"id": "0xccc", "nonce": "0", "lastUpdatedAt": "1700000000"}
		}
		json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{"users": users},
		})
	}))
	defer srv.Close()

	c := NewClient([]Endpoint{{URL: srv.URL}}, discardLogger())

	users, err := c.FetchUsers(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if calls.Load() != 2 {
		t.Fatalf("calls = %d, want 2 pages", calls.Load())
	}
	if len(users) != pageSize+1 {
		t.Fatalf("users = %d, want %d", len(users), pageSize+1)
	}
}

func TestBearerAuthHeader(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{"users": []map[string]any{}},
		})
	}))
	defer srv.Close()

	c := NewClient([]Endpoint{{URL: srv.URL, APIKey: "sekret"}}, discardLogger())
	if _, err := c.FetchUsers(context.Background()); err != nil {
		t.Fatal(err)
	}
	if gotAuth != "Bearer sekret" {
		t.Fatalf("Authorization = %q, want bearer token", gotAuth)
	}
}
