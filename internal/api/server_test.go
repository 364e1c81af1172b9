package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"tycoon/internal/auth"
	"tycoon/internal/config"
	"tycoon/internal/game"
	"tycoon/internal/store/memory"
)

// fakeSessionService mints "token-<user>" bearer tokens on login and
// resolves them back to identities. The user "boss" carries the banker
// role, everyone else is a player.
func fakeSessionService(t *testing.T) *httptest.Server {
	t.Helper()
	identity := func(user string) auth.Identity {
		role := "player"
		if user == "boss" {
			role = "banker"
		}
		return auth.Identity{UserID: user, Username: user, Role: role}
	}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/v1/sessions":
			var in struct {
				Username string `json:"username"`
				Password string `json:"password"`
			}
			if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.Username == "" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			_ = json.NewEncoder(w).Encode(auth.Session{
				AccessToken: "token-" + in.Username,
				ExpiresIn:   3600,
				Identity:    identity(in.Username),
			})
		case r.Method == http.MethodGet && r.URL.Path == "/v1/sessions/me":
			token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !strings.HasPrefix(token, "token-") {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			_ = json.NewEncoder(w).Encode(identity(strings.TrimPrefix(token, "token-")))
		default:
			http.NotFound(w, r)
		}
	}))
}

// newBareTestServer starts an API server over a fresh world with no
// users registered yet.
func newBareTestServer(t *testing.T) (*httptest.Server, *game.GameStateStore) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	g, err := game.Open(context.Background(), memory.New(), logger, game.Options{
		TurnDuration: time.Minute,
		Seed:         1,
	})
	if err != nil {
		t.Fatalf("open game: %v", err)
	}
	if err := g.SeedDefaults(context.Background()); err != nil {
		t.Fatalf("seed: %v", err)
	}

	sessions := fakeSessionService(t)
	t.Cleanup(sessions.Close)

	cfg := config.APIConfig{Addr: ":0", SessionServiceURL: sessions.URL, InMemory: true}
	srv := New(cfg, logger, auth.NewSessionClient(sessions.URL, "test-key"), g)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, g
}

func newTestServer(t *testing.T) (*httptest.Server, *game.GameStateStore) {
	t.Helper()
	ts, g := newBareTestServer(t)
	ctx := context.Background()
	if err := g.EnsureUser(ctx, "banker", "banker", game.RoleBanker); err != nil {
		t.Fatalf("ensure banker: %v", err)
	}
	if err := g.EnsureUser(ctx, "alice", "alice", game.RolePlayer); err != nil {
		t.Fatalf("ensure alice: %v", err)
	}
	if err := g.EnsureUser(ctx, "bob", "bob", game.RolePlayer); err != nil {
		t.Fatalf("ensure bob: %v", err)
	}
	return ts, g
}

func doJSON(t *testing.T, method, url, token string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func TestHealthz(t *testing.T) {
	ts, _ := newTestServer(t)
	resp, out := doJSON(t, http.MethodGet, ts.URL+"/healthz", "", nil)
	if resp.StatusCode != http.StatusOK || out["ok"] != true {
		t.Fatalf("healthz: status=%d body=%v", resp.StatusCode, out)
	}
}

func TestStateRequiresAuth(t *testing.T) {
	ts, _ := newTestServer(t)
	resp, _ := doJSON(t, http.MethodGet, ts.URL+"/v1/state", "", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status=%d want=401", resp.StatusCode)
	}
	resp, _ = doJSON(t, http.MethodGet, ts.URL+"/v1/state", "bogus", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bad token status=%d want=401", resp.StatusCode)
	}
}

func TestStateSincePolling(t *testing.T) {
	ts, g := newTestServer(t)

	resp, out := doJSON(t, http.MethodGet, ts.URL+"/v1/state", "token-alice", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("state status=%d", resp.StatusCode)
	}
	version := int64(out["version"].(float64))

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/v1/state?since="+strconv.FormatInt(version, 10), nil)
	req.Header.Set("Authorization", "Bearer token-alice")
	resp2, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusNotModified {
		t.Fatalf("unchanged poll status=%d want=304", resp2.StatusCode)
	}

	if err := g.Tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}
	resp3, out3 := doJSON(t, http.MethodGet, ts.URL+"/v1/state?since="+strconv.FormatInt(version, 10), "token-alice", nil)
	if resp3.StatusCode != http.StatusOK {
		t.Fatalf("changed poll status=%d", resp3.StatusCode)
	}
	if int64(out3["version"].(float64)) <= version {
		t.Fatalf("version did not advance")
	}

	// A stale client claiming a version the server never reached (say
	// after the server was reset) gets a full snapshot, not a 304.
	resp4, out4 := doJSON(t, http.MethodGet, ts.URL+"/v1/state?since="+strconv.FormatInt(version+1000, 10), "token-alice", nil)
	if resp4.StatusCode != http.StatusOK {
		t.Fatalf("ahead-of-server poll status=%d want=200", resp4.StatusCode)
	}
	if _, ok := out4["version"]; !ok {
		t.Fatalf("ahead-of-server poll returned no snapshot: %v", out4)
	}
}

func TestLoginBootstrapsBankerRole(t *testing.T) {
	ts, _ := newBareTestServer(t)

	// The first banker can only enter the world through login, carrying
	// the role the session service assigned.
	resp, out := doJSON(t, http.MethodPost, ts.URL+"/v1/auth/login", "", map[string]any{
		"username": "boss", "password": "pw",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("boss login status=%d body=%v", resp.StatusCode, out)
	}
	token, _ := out["access_token"].(string)
	if token == "" {
		t.Fatalf("no access token: %v", out)
	}

	resp, out = doJSON(t, http.MethodPost, ts.URL+"/v1/requests/approve-all", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("banker approve-all status=%d body=%v", resp.StatusCode, out)
	}

	resp, out = doJSON(t, http.MethodPost, ts.URL+"/v1/auth/login", "", map[string]any{
		"username": "alice", "password": "pw",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("alice login status=%d body=%v", resp.StatusCode, out)
	}
	resp, _ = doJSON(t, http.MethodPost, ts.URL+"/v1/requests/approve-all", "token-alice", nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("player approve-all status=%d want=403", resp.StatusCode)
	}
}

func TestTransferEndpoint(t *testing.T) {
	ts, g := newTestServer(t)
	resp, out := doJSON(t, http.MethodPost, ts.URL+"/v1/transfer", "token-alice", map[string]any{
		"to_user_id": "bob", "amount": 250,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("transfer status=%d body=%v", resp.StatusCode, out)
	}
	for _, u := range g.Snapshot().Users {
		if u.ID == "bob" && u.Balance != game.StarterBalance+250 {
			t.Fatalf("bob balance=%d", u.Balance)
		}
	}

	resp, out = doJSON(t, http.MethodPost, ts.URL+"/v1/transfer", "token-alice", map[string]any{
		"to_user_id": "bob", "amount": 1_000_000,
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("overdraw status=%d body=%v", resp.StatusCode, out)
	}
}

func TestRequestWorkflowOverHTTP(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, out := doJSON(t, http.MethodPost, ts.URL+"/v1/requests", "token-alice", map[string]any{
		"type": "loan", "amount": 500,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("submit status=%d body=%v", resp.StatusCode, out)
	}
	requestID, _ := out["request_id"].(string)
	if requestID == "" {
		t.Fatalf("no request id: %v", out)
	}

	// A player cannot resolve.
	resp, _ = doJSON(t, http.MethodPost, ts.URL+"/v1/requests/"+requestID+"/resolve", "token-alice", map[string]any{"approve": true})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("player resolve status=%d want=403", resp.StatusCode)
	}

	resp, out = doJSON(t, http.MethodPost, ts.URL+"/v1/requests/"+requestID+"/resolve", "token-banker", map[string]any{"approve": true})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("banker resolve status=%d body=%v", resp.StatusCode, out)
	}
	if out["status"] != "approved" {
		t.Fatalf("resolve body=%v", out)
	}

	resp, _ = doJSON(t, http.MethodPost, ts.URL+"/v1/requests/"+requestID+"/resolve", "token-banker", map[string]any{"approve": false})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("double resolve status=%d want=409", resp.StatusCode)
	}
}

func TestUnknownFieldsRejected(t *testing.T) {
	ts, _ := newTestServer(t)
	resp, _ := doJSON(t, http.MethodPost, ts.URL+"/v1/transfer", "token-alice", map[string]any{
		"to_user_id": "bob", "amount": 10, "surprise": true,
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("unknown field status=%d want=400", resp.StatusCode)
	}
}
