package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"warunglaba/backend/internal/cache"
	"warunglaba/backend/internal/service"
	"warunglaba/backend/internal/store/memory"
)

// newTestAPI builds a full API with an in-memory store, real AuthManager and
// real Service so handler tests exercise the complete request path.
func newTestAPI(t *testing.T) *API {
	t.Helper()

	repo := memory.NewSeeded()
	svc := service.New(repo, cache.NoopReportCache{}, "main-store", time.Minute)
	auth := NewAuthManager("test-secret-key", time.Hour, repo)

	return New(svc, auth, "*")
}

// loginAs logs in through the real endpoint and returns a bearer token.
func loginAs(t *testing.T, api *API, username string, password string) string {
	t.Helper()

	payload, _ := json.Marshal(map[string]string{
		"username": username,
		"password": password,
	})
	req := httptest.NewRequest(http.MethodPost, "/auth/login", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	api.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("login as %s failed: %d (body: %s)", username, rec.Code, rec.Body.String())
	}

	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode login body: %v", err)
	}
	token, _ := body["access_token"].(string)
	if token == "" {
		t.Fatalf("expected access_token in response, got %v", body)
	}
	return token
}

func doJSON(t *testing.T, api *API, method string, path string, token string, payload any) *httptest.ResponseRecorder {
	t.Helper()

	var body *bytes.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, body)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v (raw: %s)", err, rec.Body.String())
	}
	return body
}

func TestHandleHealth(t *testing.T) {
	api := newTestAPI(t)

	rec := doJSON(t, api, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if body := decodeBody(t, rec); body["ok"] != true {
		t.Fatalf("expected ok:true, got %v", body["ok"])
	}
}

func TestHandleLoginInvalidCredentials(t *testing.T) {
	api := newTestAPI(t)

	rec := doJSON(t, api, http.MethodPost, "/auth/login", "", map[string]string{
		"username": "admin",
		"password": "wrongpassword",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["success"] != false {
		t.Fatalf("error body must carry success:false, got %v", body)
	}
}

func TestStockRequiresAuth(t *testing.T) {
	api := newTestAPI(t)

	rec := doJSON(t, api, http.MethodGet, "/stock", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}

	rec = doJSON(t, api, http.MethodGet, "/stock", "not-a-valid-token", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad token, got %d", rec.Code)
	}
}

func TestStockReportResponse(t *testing.T) {
	api := newTestAPI(t)
	token := loginAs(t, api, "cashier", "cashier123")

	rec := doJSON(t, api, http.MethodGet, "/stock", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	body := decodeBody(t, rec)
	items, ok := body["items"].([]any)
	if !ok || len(items) != 6 {
		t.Fatalf("expected 6 sellable report rows, got %v", body["items"])
	}
	row := items[0].(map[string]any)
	if _, exists := row["trend"]; !exists {
		t.Fatalf("report row must carry a trend, got %v", row)
	}
}

func TestStockAdjustFlow(t *testing.T) {
	api := newTestAPI(t)
	token := loginAs(t, api, "cashier", "cashier123")

	rec := doJSON(t, api, http.MethodPost, "/stock/adjust", token, map[string]any{
		"itemId":         "item-tomat",
		"adjustmentType": "decrease",
		"quantity":       5,
		"reason":         "spoilage",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["success"] != true {
		t.Fatalf("expected success:true, got %v", body)
	}
	item := body["item"].(map[string]any)
	if item["current_stock"] != float64(20) {
		t.Fatalf("expected stock 20 after decrease, got %v", item["current_stock"])
	}

	// More than the remaining 20 in stock.
	rec = doJSON(t, api, http.MethodPost, "/stock/adjust", token, map[string]any{
		"itemId":         "item-tomat",
		"adjustmentType": "decrease",
		"quantity":       100,
		"reason":         "theft",
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	if body := decodeBody(t, rec); body["success"] != false {
		t.Fatalf("conflict body must carry success:false, got %v", body)
	}

	rec = doJSON(t, api, http.MethodPost, "/stock/adjust", token, map[string]any{
		"itemId":         "item-tomat",
		"adjustmentType": "decrease",
		"quantity":       1,
		"reason":         "felt-like-it",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown reason, got %d", rec.Code)
	}
}

func TestStockAdjustRejectsUnknownFields(t *testing.T) {
	api := newTestAPI(t)
	token := loginAs(t, api, "cashier", "cashier123")

	rec := doJSON(t, api, http.MethodPost, "/stock/adjust", token, map[string]any{
		"itemId":         "item-tomat",
		"adjustmentType": "decrease",
		"quantity":       1,
		"reason":         "spoilage",
		"bogus":          true,
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown field, got %d", rec.Code)
	}
}

func TestAdjustPreview(t *testing.T) {
	api := newTestAPI(t)
	token := loginAs(t, api, "cashier", "cashier123")

	rec := doJSON(t, api, http.MethodGet, "/stock/adjust/preview?itemId=item-tomat&quantity=10", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	// 10 units from the seeded 11000 batch.
	if body["cost"] != float64(110000) {
		t.Fatalf("expected cost 110000, got %v", body["cost"])
	}
}

func TestItemsGroupedAndFiltered(t *testing.T) {
	api := newTestAPI(t)
	token := loginAs(t, api, "cashier", "cashier123")

	rec := doJSON(t, api, http.MethodGet, "/items?grouped=true", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	items := body["items"].([]any)
	var rice map[string]any
	for _, raw := range items {
		entry := raw.(map[string]any)
		if entry["id"] == "item-beras" {
			rice = entry
		}
	}
	if rice == nil || rice["is_parent"] != true {
		t.Fatalf("expected rice parent grouping, got %v", rice)
	}
	variants := rice["variants"].([]any)
	first := variants[0].(map[string]any)
	if first["display_name"] != "Beras Premium - 5kg" {
		t.Fatalf("expected numeric variant order, first = %v", first["display_name"])
	}

	rec = doJSON(t, api, http.MethodGet, "/items?parentsOnly=true", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body = decodeBody(t, rec)
	parents := body["items"].([]any)
	if len(parents) != 1 {
		t.Fatalf("expected only the rice grouping, got %v", parents)
	}

	rec = doJSON(t, api, http.MethodGet, "/items?sellableOnly=true", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body = decodeBody(t, rec)
	if sellable := body["items"].([]any); len(sellable) != 6 {
		t.Fatalf("expected 6 sellable items, got %d", len(sellable))
	}

	rec = doJSON(t, api, http.MethodGet, "/items?parentsOnly=true&sellableOnly=true", token, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for conflicting filters, got %d", rec.Code)
	}
}

func TestItemGetByID(t *testing.T) {
	api := newTestAPI(t)
	token := loginAs(t, api, "cashier", "cashier123")

	rec := doJSON(t, api, http.MethodGet, "/items/item-tomat", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	rec = doJSON(t, api, http.MethodGet, "/items/item-nope", token, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestItemCreateForbiddenForCashier(t *testing.T) {
	api := newTestAPI(t)
	token := loginAs(t, api, "cashier", "cashier123")

	rec := doJSON(t, api, http.MethodPost, "/items", token, map[string]any{
		"name":       "Gula Pasir",
		"category":   "grocery",
		"unit":       "kg",
		"sell_price": 18000,
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestItemCreateAsAdmin(t *testing.T) {
	api := newTestAPI(t)
	token := loginAs(t, api, "admin", "admin123")

	rec := doJSON(t, api, http.MethodPost, "/items", token, map[string]any{
		"name":       "Gula Pasir",
		"category":   "grocery",
		"unit":       "kg",
		"sell_price": 18000,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	item := body["item"].(map[string]any)
	if item["name"] != "Gula Pasir" || item["active"] != true {
		t.Fatalf("unexpected created item %v", item)
	}
}

func TestSalesFlow(t *testing.T) {
	api := newTestAPI(t)
	token := loginAs(t, api, "cashier", "cashier123")

	rec := doJSON(t, api, http.MethodPost, "/sales", token, map[string]any{
		"item_id":  "item-tomat",
		"quantity": 2,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	sale := body["sale"].(map[string]any)
	if sale["total"] != float64(32000) {
		t.Fatalf("expected total 32000 at the current price, got %v", sale["total"])
	}
	if sale["cost_of_goods"] != float64(22000) {
		t.Fatalf("expected cogs 22000, got %v", sale["cost_of_goods"])
	}
}

func TestProfitReportDefaultsPeriod(t *testing.T) {
	api := newTestAPI(t)
	token := loginAs(t, api, "cashier", "cashier123")

	rec := doJSON(t, api, http.MethodGet, "/profit", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["periodDays"] != float64(30) {
		t.Fatalf("expected default 30-day period, got %v", body["periodDays"])
	}
	// No sales yet, so no positive margin and no break-even point.
	if value, exists := body["breakEvenSales"]; !exists || value != nil {
		t.Fatalf("expected breakEvenSales to be null, got %v (present=%v)", value, exists)
	}
}

func TestExpensesDailyCost(t *testing.T) {
	api := newTestAPI(t)
	token := loginAs(t, api, "cashier", "cashier123")

	rec := doJSON(t, api, http.MethodGet, "/expenses/daily-cost", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	// Seeded 900000 monthly and 70000 weekly.
	if body["fixedDailyCost"] != float64(30000) {
		t.Fatalf("expected fixed daily 30000, got %v", body["fixedDailyCost"])
	}
	if body["variableDailyCost"] != float64(10000) {
		t.Fatalf("expected variable daily 10000, got %v", body["variableDailyCost"])
	}
	if body["dailyOperatingCost"] != float64(40000) {
		t.Fatalf("expected total daily 40000, got %v", body["dailyOperatingCost"])
	}
}

func TestExpenseDeactivateAdminOnly(t *testing.T) {
	api := newTestAPI(t)
	cashierToken := loginAs(t, api, "cashier", "cashier123")
	adminToken := loginAs(t, api, "admin", "admin123")

	rec := doJSON(t, api, http.MethodDelete, "/expenses/exp-sewa", cashierToken, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for cashier, got %d", rec.Code)
	}

	rec = doJSON(t, api, http.MethodDelete, "/expenses/exp-sewa", adminToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for admin, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	expense := body["expense"].(map[string]any)
	if expense["active"] != false {
		t.Fatalf("expected expense to be deactivated, got %v", expense)
	}
}

func TestAuditLogsAdminOnly(t *testing.T) {
	api := newTestAPI(t)
	cashierToken := loginAs(t, api, "cashier", "cashier123")
	adminToken := loginAs(t, api, "admin", "admin123")

	rec := doJSON(t, api, http.MethodGet, "/audit-logs", cashierToken, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for cashier, got %d", rec.Code)
	}

	rec = doJSON(t, api, http.MethodGet, "/audit-logs", adminToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for admin, got %d", rec.Code)
	}
}

func TestBatchesReceiveAndList(t *testing.T) {
	api := newTestAPI(t)
	token := loginAs(t, api, "cashier", "cashier123")

	rec := doJSON(t, api, http.MethodPost, "/batches", token, map[string]any{
		"item_id":   "item-tomat",
		"quantity":  10,
		"unit_cost": 12000,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, api, http.MethodGet, "/batches?itemId=item-tomat", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	batches := body["batches"].([]any)
	if len(batches) != 2 {
		t.Fatalf("expected seeded batch plus the new receipt, got %d", len(batches))
	}
}
