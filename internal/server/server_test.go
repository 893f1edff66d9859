package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"golang.org/x/crypto/bcrypt"

	"ticketwatch/internal/admission"
	"ticketwatch/internal/client"
	"ticketwatch/internal/database"
	applog "ticketwatch/internal/logger"
	"ticketwatch/internal/matcher"
	"ticketwatch/internal/scanner"
	"ticketwatch/internal/watch"
)

const testAdminKey = "admin-secret"

type testEnv struct {
	srv   *httptest.Server
	key   jwk.Key
	store *database.Memory
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	key, err := jwk.FromRaw([]byte("server-test-secret-key"))
	if err != nil {
		t.Fatalf("error creating key: %v", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(testAdminKey), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("error hashing admin key: %v", err)
	}

	l := applog.NewNop()
	store := database.NewMemory()
	catalog := client.NewFixtures()
	queue := client.NewQueue(filepath.Join(t.TempDir(), "alerts.jsonl"), l)
	engine := matcher.NewEngine(store, catalog, queue, l)

	s := Server{
		Watches: &watch.Service{
			Store:   store,
			Catalog: catalog,
			Checker: engine,
			Policy:  admission.NewPolicy(admission.DefaultFreeMax),
			Tokens:  watch.NewTokens(key, watch.DefaultTokenTTL),
			Logger:  l,
		},
		Scanner:       scanner.New(store, engine, 2, l),
		Logger:        l,
		AuthSecretKey: key,
		AdminKeyHash:  hash,
	}
	srv := httptest.NewServer(s.Router())
	t.Cleanup(srv.Close)
	return &testEnv{srv: srv, key: key, store: store}
}

func (e *testEnv) userToken(t *testing.T, userID string) string {
	t.Helper()
	lt, _, err := IssueUserToken(e.key, userID, time.Hour)
	if err != nil {
		t.Fatalf("IssueUserToken: %v", err)
	}
	return lt
}

// do sends body as JSON and decodes a JSON object response.
func (e *testEnv) do(t *testing.T, method, path, bearer, adminKey string, body any) (int, map[string]any) {
	t.Helper()
	var rb bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&rb).Encode(body); err != nil {
			t.Fatalf("error encoding body: %v", err)
		}
	}
	req, err := http.NewRequest(method, e.srv.URL+path, &rb)
	if err != nil {
		t.Fatalf("error creating request: %v", err)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	if adminKey != "" {
		req.Header.Set(adminKeyHeader, adminKey)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	out := map[string]any{}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

func TestAuthRequired(t *testing.T) {
	e := newTestEnv(t)

	if code, _ := e.do(t, http.MethodGet, "/api/watches", "", "", nil); code != http.StatusUnauthorized {
		t.Fatalf("no token: status %d, want 401", code)
	}
	if code, _ := e.do(t, http.MethodGet, "/api/watches", "not-a-jwt", "", nil); code != http.StatusUnauthorized {
		t.Fatalf("garbage token: status %d, want 401", code)
	}

	other, err := jwk.FromRaw([]byte("some-other-key"))
	if err != nil {
		t.Fatalf("error creating key: %v", err)
	}
	forged, _, err := IssueUserToken(other, "u1", time.Hour)
	if err != nil {
		t.Fatalf("IssueUserToken: %v", err)
	}
	if code, _ := e.do(t, http.MethodGet, "/api/watches", forged, "", nil); code != http.StatusUnauthorized {
		t.Fatalf("forged token: status %d, want 401", code)
	}
}

func TestConfirmationTokenIsNotABearerToken(t *testing.T) {
	e := newTestEnv(t)
	lt := e.userToken(t, "u1")

	code, body := e.do(t, http.MethodPost, "/api/watches/propose", lt, "", map[string]any{"event_name": "fred again"})
	if code != http.StatusOK {
		t.Fatalf("propose: status %d, body %v", code, body)
	}
	confirm, _ := body["token"].(string)
	if confirm == "" {
		t.Fatalf("propose returned no token: %v", body)
	}
	if code, _ = e.do(t, http.MethodGet, "/api/watches", confirm, "", nil); code != http.StatusUnauthorized {
		t.Fatalf("confirmation token as bearer: status %d, want 401", code)
	}
}

func TestWatchLifecycle(t *testing.T) {
	e := newTestEnv(t)
	lt := e.userToken(t, "u1")

	if code, body := e.do(t, http.MethodPost, "/api/users/me", lt, "", map[string]any{"contact": "chat-1"}); code != http.StatusOK || body["tier"] != "free" {
		t.Fatalf("users/me: status %d, body %v", code, body)
	}

	code, body := e.do(t, http.MethodPost, "/api/watches/propose", lt, "", map[string]any{
		"event_name": "fred again",
		"max_price":  "80",
		"quantity":   2,
	})
	if code != http.StatusOK {
		t.Fatalf("propose: status %d, body %v", code, body)
	}
	code, body = e.do(t, http.MethodPost, "/api/watches/confirm", lt, "", map[string]any{"token": body["token"]})
	if code != http.StatusCreated {
		t.Fatalf("confirm: status %d, body %v", code, body)
	}
	watchID, _ := body["watch_id"].(string)
	if watchID == "" {
		t.Fatalf("confirm returned no watch id: %v", body)
	}

	code, body = e.do(t, http.MethodPost, "/api/watches/propose", lt, "", map[string]any{"event_name": "1975"})
	if code != http.StatusForbidden {
		t.Fatalf("second propose: status %d, want 403, body %v", code, body)
	}
	if body["tier"] != "free" || body["active"] != float64(1) || body["limit"] != float64(1) {
		t.Fatalf("unexpected denial body: %v", body)
	}

	code, body = e.do(t, http.MethodGet, "/api/watches", lt, "", nil)
	if ws, _ := body["watches"].([]any); code != http.StatusOK || len(ws) != 1 {
		t.Fatalf("list: status %d, body %v", code, body)
	}

	other := e.userToken(t, "u2")
	if code, _ = e.do(t, http.MethodPost, "/api/watches/"+watchID+"/cancel", other, "", nil); code != http.StatusNotFound {
		t.Fatalf("cancel by other user: status %d, want 404", code)
	}
	code, body = e.do(t, http.MethodPost, "/api/watches/"+watchID+"/cancel", lt, "", nil)
	if code != http.StatusOK || body["status"] != "cancelled" {
		t.Fatalf("cancel: status %d, body %v", code, body)
	}
	if code, _ = e.do(t, http.MethodPost, "/api/watches/"+watchID+"/cancel", lt, "", nil); code != http.StatusOK {
		t.Fatalf("second cancel should be idempotent, status %d", code)
	}
}

func TestDuplicateWatchConflict(t *testing.T) {
	e := newTestEnv(t)
	lt := e.userToken(t, "u1")
	e.do(t, http.MethodPost, "/api/users/me", lt, "", map[string]any{"contact": "chat-1"})

	code, body := e.do(t, http.MethodPost, "/api/admin/users/u1/tier", "", testAdminKey, map[string]any{"tier": "premium"})
	if code != http.StatusOK || body["tier"] != "premium" {
		t.Fatalf("set tier: status %d, body %v", code, body)
	}

	var first string
	for i := 0; i < 2; i++ {
		_, body = e.do(t, http.MethodPost, "/api/watches/propose", lt, "", map[string]any{"event_id": "Z698xZaZeEe11"})
		code, body = e.do(t, http.MethodPost, "/api/watches/confirm", lt, "", map[string]any{"token": body["token"]})
		if i == 0 {
			if code != http.StatusCreated {
				t.Fatalf("confirm: status %d, body %v", code, body)
			}
			first, _ = body["watch_id"].(string)
			continue
		}
		if code != http.StatusConflict || body["existing_watch_id"] != first {
			t.Fatalf("duplicate confirm: status %d, body %v, want 409 with %s", code, body, first)
		}
	}
}

func TestAdminRoutes(t *testing.T) {
	e := newTestEnv(t)

	if code, _ := e.do(t, http.MethodPost, "/api/admin/scan", "", "", nil); code != http.StatusUnauthorized {
		t.Fatalf("scan without key: status %d, want 401", code)
	}
	if code, _ := e.do(t, http.MethodPost, "/api/admin/scan", "", "wrong", nil); code != http.StatusUnauthorized {
		t.Fatalf("scan with wrong key: status %d, want 401", code)
	}
	if code, _ := e.do(t, http.MethodPost, "/api/admin/users/ghost/tier", "", testAdminKey, map[string]any{"tier": "premium"}); code != http.StatusNotFound {
		t.Fatalf("tier of unknown user: status %d, want 404", code)
	}
	if code, _ := e.do(t, http.MethodPost, "/api/admin/users/ghost/tier", "", testAdminKey, map[string]any{"tier": "gold"}); code != http.StatusBadRequest {
		t.Fatalf("unknown tier: status %d, want 400", code)
	}
}

func TestAdminScanAlertsOnce(t *testing.T) {
	e := newTestEnv(t)
	lt := e.userToken(t, "u1")

	_, body := e.do(t, http.MethodPost, "/api/message", lt, "", map[string]any{
		"text":    "Watch for 2 Fred Again tickets under €80",
		"contact": "chat-1",
	})
	if body["intent"] != "watch" {
		t.Fatalf("watch message: %v", body)
	}
	_, body = e.do(t, http.MethodPost, "/api/message", lt, "", map[string]any{"text": "yes", "token": body["token"]})
	if body["watch_id"] == nil {
		t.Fatalf("confirm message: %v", body)
	}

	code, body := e.do(t, http.MethodPost, "/api/admin/scan", "", testAdminKey, nil)
	if code != http.StatusOK {
		t.Fatalf("scan: status %d, body %v", code, body)
	}
	if body["checked"] != float64(1) || body["evaluated"] != float64(1) || body["alerted"] != float64(1) || body["errors"] != float64(0) {
		t.Fatalf("unexpected scan result: %v", body)
	}

	_, body = e.do(t, http.MethodPost, "/api/admin/scan", "", testAdminKey, nil)
	if body["checked"] != float64(0) || body["alerted"] != float64(0) {
		t.Fatalf("second scan should see no active watches: %v", body)
	}

	code, body = e.do(t, http.MethodGet, "/api/admin/alerts?limit=5", "", testAdminKey, nil)
	if as, _ := body["alerts"].([]any); code != http.StatusOK || len(as) != 1 {
		t.Fatalf("alerts: status %d, body %v", code, body)
	}

	_, body = e.do(t, http.MethodGet, "/api/watches?status=alerted", lt, "", nil)
	if ws, _ := body["watches"].([]any); len(ws) != 1 {
		t.Fatalf("alerted watches: %v", body)
	}
}

func TestEventSearchAndStatus(t *testing.T) {
	e := newTestEnv(t)
	lt := e.userToken(t, "u1")

	code, body := e.do(t, http.MethodGet, "/api/events?query=picnic&limit=2", lt, "", nil)
	events, _ := body["events"].([]any)
	if code != http.StatusOK || len(events) != 1 {
		t.Fatalf("search: status %d, body %v", code, body)
	}
	if code, _ = e.do(t, http.MethodGet, "/api/events", lt, "", nil); code != http.StatusBadRequest {
		t.Fatalf("empty query: status %d, want 400", code)
	}

	code, body = e.do(t, http.MethodGet, "/api/watches/status", lt, "", nil)
	if code != http.StatusOK {
		t.Fatalf("status: status %d, body %v", code, body)
	}
	if code, _ = e.do(t, http.MethodGet, "/api/nothing-here", lt, "", nil); code != http.StatusNotFound {
		t.Fatalf("unknown route: status %d, want 404", code)
	}
}
