package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/leadwire/outreach/internal/cache"
	"github.com/leadwire/outreach/internal/dispatch"
	"github.com/leadwire/outreach/internal/drip"
	"github.com/leadwire/outreach/internal/importer"
	"github.com/leadwire/outreach/internal/schedule"
	"github.com/leadwire/outreach/internal/store"
	"github.com/leadwire/outreach/internal/tracker"
	"github.com/leadwire/outreach/internal/transport"
)

type testApp struct {
	srv      *httptest.Server
	messages *store.MessageRepo
}

func newTestApp(t *testing.T, gatewayURL string) *testApp {
	t.Helper()

	db, err := store.Open(filepath.Join(t.TempDir(), "api.db"))
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	messages := store.NewMessageRepo(db)
	contacts := store.NewContactRepo(db)
	templates := store.NewTemplateRepo(db)
	settings := store.NewSettingsRepo(db)

	var correlations cache.CorrelationCache
	var guard cache.TriggerGuard

	registry := transport.NewRegistry()
	gateway := transport.NewGatewayClient(gatewayURL)

	dispatcher := dispatch.NewDispatcher(messages, settings, registry, correlations, time.Second)
	loop, err := dispatch.NewTicker(time.Hour, dispatcher.Tick)
	if err != nil {
		t.Fatalf("creating ticker: %v", err)
	}
	t.Cleanup(func() { loop.Stop() })

	h := NewHandler(
		loop,
		schedule.NewService(messages, contacts, templates),
		drip.NewEngine(messages, settings, contacts, guard),
		tracker.New(messages, correlations),
		importer.New(500),
		contacts, templates, settings, registry, gateway,
	)

	srv := httptest.NewServer(Router(h))
	t.Cleanup(srv.Close)

	return &testApp{srv: srv, messages: messages}
}

func (a *testApp) do(t *testing.T, method, path string, body any) (int, map[string]any) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, a.srv.URL+path, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	var decoded map[string]any
	if resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
			t.Fatalf("%s %s: decoding response: %v", method, path, err)
		}
	}
	return resp.StatusCode, decoded
}

func TestHealth(t *testing.T) {
	t.Parallel()

	app := newTestApp(t, "http://gateway.invalid")

	code, body := app.do(t, http.MethodGet, "/v1/health", nil)
	if code != http.StatusOK || body["ok"] != true {
		t.Fatalf("health: %d %v", code, body)
	}
}

func TestDispatcherLifecycle(t *testing.T) {
	t.Parallel()

	app := newTestApp(t, "http://gateway.invalid")

	code, body := app.do(t, http.MethodGet, "/v1/dispatcher/status", nil)
	if code != http.StatusOK || body["running"] != false {
		t.Fatalf("initial status: %d %v", code, body)
	}

	code, body = app.do(t, http.MethodPost, "/v1/dispatcher/start", nil)
	if code != http.StatusOK || body["running"] != true {
		t.Fatalf("start: %d %v", code, body)
	}

	code, body = app.do(t, http.MethodPost, "/v1/dispatcher/stop", nil)
	if code != http.StatusOK || body["running"] != false {
		t.Fatalf("stop: %d %v", code, body)
	}
}

func TestTemplateEndpoints(t *testing.T) {
	t.Parallel()

	app := newTestApp(t, "http://gateway.invalid")

	code, body := app.do(t, http.MethodPost, "/v1/templates", map[string]any{
		"name": "greeting", "text": "Hi {name}", "images": []string{"img-1"},
	})
	if code != http.StatusCreated {
		t.Fatalf("create: %d %v", code, body)
	}
	id := int64(body["id"].(float64))

	code, body = app.do(t, http.MethodGet, "/v1/templates", nil)
	if code != http.StatusOK {
		t.Fatalf("list: %d %v", code, body)
	}
	if items := body["items"].([]any); len(items) != 1 {
		t.Errorf("items = %v", items)
	}

	code, body = app.do(t, http.MethodPut, fmt.Sprintf("/v1/templates/%d", id), map[string]any{
		"name": "greeting", "text": "Hello {name}",
	})
	if code != http.StatusOK || body["text"] != "Hello {name}" {
		t.Fatalf("update: %d %v", code, body)
	}

	code, _ = app.do(t, http.MethodDelete, fmt.Sprintf("/v1/templates/%d", id), nil)
	if code != http.StatusNoContent {
		t.Fatalf("delete: %d", code)
	}

	code, _ = app.do(t, http.MethodDelete, fmt.Sprintf("/v1/templates/%d", id), nil)
	if code != http.StatusNotFound {
		t.Fatalf("double delete: %d, want 404", code)
	}

	// Validation failure: name required.
	code, _ = app.do(t, http.MethodPost, "/v1/templates", map[string]any{"text": "x"})
	if code != http.StatusBadRequest {
		t.Fatalf("missing name: %d, want 400", code)
	}
}

func TestContactEndpoints(t *testing.T) {
	t.Parallel()

	app := newTestApp(t, "http://gateway.invalid")

	code, body := app.do(t, http.MethodPost, "/v1/contacts", map[string]any{
		"name": "Anna", "phone": "+36 (1) 234-5678",
	})
	if code != http.StatusCreated {
		t.Fatalf("create: %d %v", code, body)
	}
	if body["phone"] != "3612345678" {
		t.Errorf("phone not normalized: %v", body["phone"])
	}
	id := int64(body["id"].(float64))

	code, body = app.do(t, http.MethodGet, "/v1/contacts?q=anna", nil)
	if code != http.StatusOK || body["total"] != float64(1) {
		t.Fatalf("search: %d %v", code, body)
	}

	code, body = app.do(t, http.MethodGet, "/v1/contacts/ids?q=anna", nil)
	if code != http.StatusOK {
		t.Fatalf("ids: %d %v", code, body)
	}
	if ids := body["ids"].([]any); len(ids) != 1 {
		t.Errorf("ids = %v", ids)
	}

	code, body = app.do(t, http.MethodPut, fmt.Sprintf("/v1/contacts/%d", id), map[string]any{
		"name": "Annamari", "phone": "361",
	})
	if code != http.StatusOK || body["name"] != "Annamari" {
		t.Fatalf("update: %d %v", code, body)
	}

	code, _ = app.do(t, http.MethodDelete, fmt.Sprintf("/v1/contacts/%d", id), nil)
	if code != http.StatusNoContent {
		t.Fatalf("delete: %d", code)
	}

	// A contact without any digits in the phone is rejected.
	code, _ = app.do(t, http.MethodPost, "/v1/contacts", map[string]any{
		"name": "Ghost", "phone": "n/a",
	})
	if code != http.StatusBadRequest {
		t.Fatalf("digitless phone: %d, want 400", code)
	}
}

func TestImportEndpoint(t *testing.T) {
	t.Parallel()

	app := newTestApp(t, "http://gateway.invalid")

	code, body := app.do(t, http.MethodPost, "/v1/contacts/import", map[string]any{
		"records": []map[string]any{
			{"name": "A", "phone": "123"},
			{"name": "B", "phone": "123"},
			{"name": "C"},
		},
	})
	if code != http.StatusOK {
		t.Fatalf("import: %d %v", code, body)
	}
	if body["imported"] != float64(1) {
		t.Errorf("imported = %v, want 1", body["imported"])
	}
	if skipped := body["skipped"].([]any); len(skipped) != 2 {
		t.Errorf("skipped = %v", skipped)
	}
}

func TestScheduleCancelFlow(t *testing.T) {
	t.Parallel()

	app := newTestApp(t, "http://gateway.invalid")

	_, contact := app.do(t, http.MethodPost, "/v1/contacts", map[string]any{
		"name": "Anna", "phone": "361",
	})
	contactID := int64(contact["id"].(float64))

	_, tmpl := app.do(t, http.MethodPost, "/v1/templates", map[string]any{
		"name": "greeting", "text": "Hi {name}",
	})
	templateID := int64(tmpl["id"].(float64))

	code, body := app.do(t, http.MethodPost, "/v1/messages/schedule", map[string]any{
		"accountId":  "acc-1",
		"contactIds": []int64{contactID},
		"templateId": templateID,
	})
	if code != http.StatusCreated {
		t.Fatalf("schedule: %d %v", code, body)
	}
	items := body["items"].([]any)
	if len(items) != 1 {
		t.Fatalf("items = %v", items)
	}
	msgID := items[0].(map[string]any)["id"].(string)

	code, body = app.do(t, http.MethodGet, "/v1/messages?accountId=acc-1&status=scheduled", nil)
	if code != http.StatusOK {
		t.Fatalf("list: %d %v", code, body)
	}
	if listed := body["items"].([]any); len(listed) != 1 {
		t.Errorf("listed = %v", listed)
	}

	code, _ = app.do(t, http.MethodGet, "/v1/messages?status=levitating", nil)
	if code != http.StatusBadRequest {
		t.Fatalf("bogus status filter: %d, want 400", code)
	}

	code, body = app.do(t, http.MethodPost, "/v1/messages/cancel", map[string]any{
		"ids": []string{msgID},
	})
	if code != http.StatusOK {
		t.Fatalf("cancel: %d %v", code, body)
	}
	results := body["results"].([]any)
	if first := results[0].(map[string]any); first["ok"] != true {
		t.Errorf("cancel result = %v", first)
	}

	// Second cancel hits a non-cancelable status; reported per id, not
	// as a request failure.
	code, body = app.do(t, http.MethodPost, "/v1/messages/cancel", map[string]any{
		"ids": []string{msgID},
	})
	if code != http.StatusOK {
		t.Fatalf("second cancel: %d %v", code, body)
	}
	results = body["results"].([]any)
	if first := results[0].(map[string]any); first["ok"] != false {
		t.Errorf("second cancel result = %v", first)
	}

	code, body = app.do(t, http.MethodGet, "/v1/messages/stats", nil)
	if code != http.StatusOK {
		t.Fatalf("stats: %d %v", code, body)
	}
	if body["total"] != float64(1) {
		t.Errorf("stats total = %v", body["total"])
	}

	code, body = app.do(t, http.MethodPost, "/v1/messages/delete", map[string]any{
		"ids": []string{msgID},
	})
	if code != http.StatusOK || body["deleted"] != float64(1) {
		t.Fatalf("delete: %d %v", code, body)
	}
}

func TestScheduleValidation(t *testing.T) {
	t.Parallel()

	app := newTestApp(t, "http://gateway.invalid")

	code, _ := app.do(t, http.MethodPost, "/v1/messages/schedule", map[string]any{
		"contactIds": []int64{1},
		"templateId": 1,
	})
	if code != http.StatusBadRequest {
		t.Fatalf("missing accountId: %d, want 400", code)
	}
}

func TestSenderSettingsEndpoints(t *testing.T) {
	t.Parallel()

	app := newTestApp(t, "http://gateway.invalid")

	code, body := app.do(t, http.MethodGet, "/v1/accounts/acc-1/settings", nil)
	if code != http.StatusOK {
		t.Fatalf("defaults: %d %v", code, body)
	}
	if body["workStart"] != "09:00" || body["enabled"] != true {
		t.Errorf("defaults = %v", body)
	}

	code, body = app.do(t, http.MethodPut, "/v1/accounts/acc-1/settings", map[string]any{
		"workStart": "22:00", "workEnd": "06:00",
		"intervalSeconds": 45, "enabled": true, "timezone": "Europe/Budapest",
	})
	if code != http.StatusOK {
		t.Fatalf("put: %d %v", code, body)
	}

	code, body = app.do(t, http.MethodGet, "/v1/accounts/acc-1/settings", nil)
	if code != http.StatusOK || body["workStart"] != "22:00" {
		t.Fatalf("after put: %d %v", code, body)
	}

	code, _ = app.do(t, http.MethodPut, "/v1/accounts/acc-1/settings", map[string]any{
		"workStart": "09:00", "workEnd": "17:00",
		"intervalSeconds": 30, "enabled": true, "timezone": "Mars/Olympus",
	})
	if code != http.StatusBadRequest {
		t.Fatalf("bad timezone: %d, want 400", code)
	}

	code, _ = app.do(t, http.MethodDelete, "/v1/accounts/acc-1", nil)
	if code != http.StatusNoContent {
		t.Fatalf("delete account: %d", code)
	}
}

func TestDripAndSaleFlow(t *testing.T) {
	t.Parallel()

	app := newTestApp(t, "http://gateway.invalid")

	code, body := app.do(t, http.MethodPut, "/v1/drip/settings", map[string]any{
		"enabled": true, "accountId": "acc-1",
		"firstDelayValue": 30, "firstDelayUnit": "minutes",
		"secondDelayValue": 7, "secondDelayUnit": "days",
		"firstText": "thanks for {document}", "secondText": "checking in, {name}",
	})
	if code != http.StatusOK {
		t.Fatalf("put drip: %d %v", code, body)
	}

	sale := map[string]any{
		"triggerId":    "sale-1",
		"customerName": "Anna",
		"phone":        "361",
		"document":     "INV-42",
		"amount":       100.5,
	}

	code, body = app.do(t, http.MethodPost, "/v1/sales", sale)
	if code != http.StatusCreated || body["materialized"] != true {
		t.Fatalf("sale: %d %v", code, body)
	}
	if items := body["items"].([]any); len(items) != 2 {
		t.Errorf("materialized items = %v", items)
	}

	// A replayed sale is acknowledged without creating anything.
	code, body = app.do(t, http.MethodPost, "/v1/sales", sale)
	if code != http.StatusOK || body["materialized"] != false {
		t.Fatalf("duplicate sale: %d %v", code, body)
	}

	msgs, err := app.messages.List(context.Background(), store.MessageFilter{AccountID: "acc-1"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(msgs) != 2 {
		t.Errorf("got %d messages after replay, want 2", len(msgs))
	}

	// Enabling drip without an account to send from is rejected.
	code, _ = app.do(t, http.MethodPut, "/v1/drip/settings", map[string]any{
		"enabled":         true,
		"firstDelayValue": 1, "firstDelayUnit": "days",
		"secondDelayValue": 7, "secondDelayUnit": "days",
	})
	if code != http.StatusBadRequest {
		t.Fatalf("drip without account: %d, want 400", code)
	}
}

func TestDeliveryEventEndpoint(t *testing.T) {
	t.Parallel()

	app := newTestApp(t, "http://gateway.invalid")

	// Unknown provider ids are acknowledged and dropped.
	code, body := app.do(t, http.MethodPost, "/v1/events/delivery", map[string]any{
		"providerMessageId": "ghost", "state": "delivered",
	})
	if code != http.StatusOK || body["ok"] != true {
		t.Fatalf("unknown provider id: %d %v", code, body)
	}

	code, _ = app.do(t, http.MethodPost, "/v1/events/delivery", map[string]any{
		"providerMessageId": "ghost", "state": "teleported",
	})
	if code != http.StatusBadRequest {
		t.Fatalf("bad state: %d, want 400", code)
	}
}

func TestConnectAccountEndpoints(t *testing.T) {
	t.Parallel()

	bridge := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/accounts/acc-1/connect":
			w.WriteHeader(http.StatusOK)
		case r.Method == http.MethodDelete && r.URL.Path == "/accounts/acc-1/connect":
			w.WriteHeader(http.StatusNoContent)
		case r.Method == http.MethodGet && r.URL.Path == "/accounts/acc-1/status":
			_ = json.NewEncoder(w).Encode(map[string]bool{"connected": true})
		default:
			http.NotFound(w, r)
		}
	}))
	defer bridge.Close()

	app := newTestApp(t, bridge.URL)

	code, body := app.do(t, http.MethodPost, "/v1/accounts/acc-1/connect", nil)
	if code != http.StatusOK || body["connected"] != true {
		t.Fatalf("connect: %d %v", code, body)
	}

	code, _ = app.do(t, http.MethodDelete, "/v1/accounts/acc-1/connect", nil)
	if code != http.StatusNoContent {
		t.Fatalf("disconnect: %d", code)
	}
}
