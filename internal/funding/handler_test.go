package funding

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestRouter(t *testing.T) (*gin.Engine, *memoryRepository) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	repo := newMemoryRepository()
	handler := NewHandler(newTestService(repo), zap.NewNop())

	router := gin.New()
	handler.RegisterRoutes(router.Group("/api/funding"))
	return router, repo
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHandlerIssueAndSell(t *testing.T) {
	router, repo := newTestRouter(t)
	projectID := repo.addProject("Ridge", decimal.Zero, 0)

	rec := doJSON(t, router, http.MethodPost, "/api/funding/issue", map[string]any{
		"project_id": projectID,
		"quantity":   100,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "pending", decodeBody(t, rec)["verification_status"])

	rec = doJSON(t, router, http.MethodPost, "/api/funding/sell", map[string]any{
		"project_id": projectID,
		"quantity":   40,
		"amount":     "1000",
		"buyer_info": map[string]string{"company": "Acme"},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, float64(60), decodeBody(t, rec)["remaining_credits"])

	rec = doJSON(t, router, http.MethodPost, "/api/funding/sell", map[string]any{
		"project_id": projectID,
		"quantity":   61,
		"amount":     1525,
	})
	require.Equal(t, http.StatusConflict, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "INSUFFICIENT_CREDITS", body["code"])
	details := body["details"].(map[string]any)
	assert.Equal(t, float64(61), details["requested"])
	assert.Equal(t, float64(60), details["available"])

	rec = doJSON(t, router, http.MethodGet, "/api/funding/"+projectID.String()+"/balance", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(60), decodeBody(t, rec)["available_credits"])
}

func TestHandlerValidationErrors(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/funding/sell", map[string]any{"quantity": 0})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "INVALID_ARGUMENT", body["code"])
	details := body["details"].(map[string]any)
	assert.Contains(t, details, "project_id")
	assert.Contains(t, details, "quantity")

	rec = doJSON(t, router, http.MethodGet, "/api/funding/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/api/funding/campaigns?project_id=nope", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerNotFound(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/api/funding/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/api/funding/verify", map[string]any{
		"credit_id":         uuid.New(),
		"verification_body": "Verra",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", decodeBody(t, rec)["code"])

	rec = doJSON(t, router, http.MethodGet, "/api/funding/campaigns/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlerCampaignFlow(t *testing.T) {
	router, repo := newTestRouter(t)
	projectID := repo.addProject("Ridge", decimal.Zero, 0)

	rec := doJSON(t, router, http.MethodPost, "/api/funding/campaigns", map[string]any{
		"project_id":    projectID,
		"campaign_name": "Spring Planting",
		"target_amount": 0.5,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	campaign := decodeBody(t, rec)["campaign"].(map[string]any)
	campaignID := campaign["id"].(string)

	rec = doJSON(t, router, http.MethodPost, "/api/funding/donate", map[string]any{
		"project_id":  projectID,
		"amount":      "0.25",
		"campaign_id": campaignID,
		"donor_name":  "Grace",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Regexp(t, `^DON-`, decodeBody(t, rec)["receipt_number"])

	rec = doJSON(t, router, http.MethodGet, "/api/funding/campaigns/"+campaignID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	progress := decodeBody(t, rec)["campaign"].(map[string]any)
	assert.Equal(t, "50", progress["progress_percentage"])
	assert.Equal(t, "Ridge", progress["project_name"])

	rec = doJSON(t, router, http.MethodGet, "/api/funding/campaigns?project_id="+projectID.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody(t, rec)["campaigns"], 1)

	rec = doJSON(t, router, http.MethodGet, "/api/funding/"+projectID.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	funding := decodeBody(t, rec)
	assert.Len(t, funding["transactions"], 1)
	summary := funding["summary"].(map[string]any)
	assert.Equal(t, "0.25", summary["total_donations"])
}

func TestHandlerVerifyTwiceIsInvalidState(t *testing.T) {
	router, repo := newTestRouter(t)
	projectID := repo.addProject("Ridge", decimal.Zero, 0)

	rec := doJSON(t, router, http.MethodPost, "/api/funding/issue", map[string]any{
		"project_id": projectID,
		"quantity":   5,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	creditID := decodeBody(t, rec)["credit_id"]

	verify := map[string]any{"credit_id": creditID, "verification_body": "Gold Standard"}
	rec = doJSON(t, router, http.MethodPost, "/api/funding/verify", verify)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "verified", decodeBody(t, rec)["verification_status"])

	rec = doJSON(t, router, http.MethodPost, "/api/funding/verify", verify)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestHandlerMarketPricing(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/api/funding/market-pricing", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, decodeBody(t, rec), "pricing_data")
}
