package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eveiljuice/multi-model-ai-assistant-sub001/internal/auth"
	"github.com/eveiljuice/multi-model-ai-assistant-sub001/internal/billing"
	"github.com/eveiljuice/multi-model-ai-assistant-sub001/internal/ledger"
	"github.com/eveiljuice/multi-model-ai-assistant-sub001/internal/models"
	"github.com/eveiljuice/multi-model-ai-assistant-sub001/internal/orchestrator"
	"github.com/eveiljuice/multi-model-ai-assistant-sub001/internal/storage"
)

var testSecret = []byte("test-secret")

const testServiceKey = "svc-key-for-tests"

type fakeTurns struct {
	result       *orchestrator.TurnResult
	err          error
	multi        *orchestrator.MultiQueryResult
	lastReq      orchestrator.TurnRequest
	multiQuery   string
	multiHistory []models.ConversationMessage
}

func (f *fakeTurns) RunTurn(_ context.Context, req orchestrator.TurnRequest) (*orchestrator.TurnResult, error) {
	f.lastReq = req
	return f.result, f.err
}

func (f *fakeTurns) MultiQuery(_ context.Context, message string, history []models.ConversationMessage) (*orchestrator.MultiQueryResult, error) {
	f.multiQuery = message
	f.multiHistory = history
	return f.multi, f.err
}

type fakeCatalog struct {
	agents []models.Agent
}

func (f *fakeCatalog) List(context.Context) ([]models.Agent, error) {
	return f.agents, nil
}

type fakeCredits struct {
	eligibility  *models.AgentEligibility
	balance      int
	balanceErr   error
	transactions []models.CreditTransaction
	trial        *storage.GrantOutcome
}

func (f *fakeCredits) CheckEligibility(context.Context, uuid.UUID, uuid.UUID) (*models.AgentEligibility, error) {
	return f.eligibility, nil
}

func (f *fakeCredits) Balance(context.Context, uuid.UUID) (int, error) {
	return f.balance, f.balanceErr
}

func (f *fakeCredits) Transactions(context.Context, uuid.UUID, int, int) ([]models.CreditTransaction, error) {
	return f.transactions, nil
}

func (f *fakeCredits) GrantTrial(context.Context, uuid.UUID) (*storage.GrantOutcome, error) {
	return f.trial, nil
}

type fakeBilling struct {
	checkoutURL string
	checkoutErr error
	outcome     *storage.GrantOutcome
	eventErr    error
	lastEvent   billing.BillingEvent
}

func (f *fakeBilling) CreateCheckoutSession(context.Context, uuid.UUID, string) (string, error) {
	return f.checkoutURL, f.checkoutErr
}

func (f *fakeBilling) HandleEvent(_ context.Context, event billing.BillingEvent) (*storage.GrantOutcome, error) {
	f.lastEvent = event
	return f.outcome, f.eventErr
}

type fakeUsageList struct {
	records []models.UsageRecord
}

func (f *fakeUsageList) ListByUser(context.Context, uuid.UUID, int) ([]models.UsageRecord, error) {
	return f.records, nil
}

type fixture struct {
	mux     *http.ServeMux
	turns   *fakeTurns
	credits *fakeCredits
	billing *fakeBilling
	userID  uuid.UUID
	token   string
}

func newTestRouter(t *testing.T) *fixture {
	t.Helper()

	turns := &fakeTurns{
		result: &orchestrator.TurnResult{
			State:     orchestrator.StateAnswered,
			RequestID: uuid.New(),
			Response:  &models.AIResponse{Content: "answer", Provider: models.ProviderOpenAI},
			Deduct:    &ledger.DeductResult{Success: true, NewBalance: 8},
		},
		multi: &orchestrator.MultiQueryResult{
			Best: &models.AIResponse{Content: "best answer"},
		},
	}
	credits := &fakeCredits{
		eligibility: &models.AgentEligibility{CanUse: true, Required: 2, Available: 10},
		balance:     10,
		trial:       &storage.GrantOutcome{NewBalance: 5},
	}
	billingFake := &fakeBilling{
		checkoutURL: "https://checkout.stripe.com/pay/cs_test",
		outcome:     &storage.GrantOutcome{NewBalance: 150},
	}

	healthChecks := map[string]func(context.Context) error{
		"database": func(context.Context) error { return nil },
		"redis":    nil,
	}
	handlers := NewHandlers(turns, &fakeCatalog{}, credits, billingFake, &fakeUsageList{}, healthChecks, nil)

	keyHash, err := auth.HashServiceKey(testServiceKey)
	require.NoError(t, err)

	mux := http.NewServeMux()
	RegisterRoutes(mux, handlers, testSecret, keyHash)

	userID := uuid.New()
	token, _, err := auth.GenerateSessionToken(userID, testSecret)
	require.NoError(t, err)

	return &fixture{mux: mux, turns: turns, credits: credits, billing: billingFake, userID: userID, token: token}
}

func (f *fixture) request(t *testing.T, method, path string, body interface{}, authed bool) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if authed {
		req.Header.Set("Authorization", "Bearer "+f.token)
	}

	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, req)
	return rec
}

func TestGenerate_Answered(t *testing.T) {
	f := newTestRouter(t)
	agentID := uuid.New()

	rec := f.request(t, http.MethodPost, "/v1/agents/"+agentID.String()+"/generate",
		map[string]string{"message": "write a haiku"}, true)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, agentID, f.turns.lastReq.AgentID)
	assert.Equal(t, f.userID, f.turns.lastReq.UserID)

	var resp generateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, orchestrator.StateAnswered, resp.State)
	assert.Equal(t, "answer", resp.Content)
	require.NotNil(t, resp.NewBalance)
	assert.Equal(t, 8, *resp.NewBalance)
}

func TestGenerate_PaywallMapsTo402(t *testing.T) {
	f := newTestRouter(t)
	f.turns.result = &orchestrator.TurnResult{
		State: orchestrator.StatePaywall,
		Eligibility: &models.AgentEligibility{
			Required:  2,
			Available: 1,
			Blockers:  []string{models.BlockerInsufficientCredits},
		},
	}

	rec := f.request(t, http.MethodPost, "/v1/agents/"+uuid.NewString()+"/generate",
		map[string]string{"message": "hello"}, true)

	assert.Equal(t, http.StatusPaymentRequired, rec.Code)
}

func TestGenerate_CreditErrorMapsTo503(t *testing.T) {
	f := newTestRouter(t)
	f.turns.result = &orchestrator.TurnResult{State: orchestrator.StateCreditError}

	rec := f.request(t, http.MethodPost, "/v1/agents/"+uuid.NewString()+"/generate",
		map[string]string{"message": "hello"}, true)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestGenerate_UnknownAgentMapsTo404(t *testing.T) {
	f := newTestRouter(t)
	f.turns.result = nil
	f.turns.err = storage.ErrAgentNotFound

	rec := f.request(t, http.MethodPost, "/v1/agents/"+uuid.NewString()+"/generate",
		map[string]string{"message": "hello"}, true)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGenerate_RequiresAuth(t *testing.T) {
	f := newTestRouter(t)

	rec := f.request(t, http.MethodPost, "/v1/agents/"+uuid.NewString()+"/generate",
		map[string]string{"message": "hello"}, false)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGenerate_ValidatesInput(t *testing.T) {
	f := newTestRouter(t)

	rec := f.request(t, http.MethodPost, "/v1/agents/not-a-uuid/generate",
		map[string]string{"message": "hello"}, true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.request(t, http.MethodPost, "/v1/agents/"+uuid.NewString()+"/generate",
		map[string]string{}, true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestQuery(t *testing.T) {
	f := newTestRouter(t)

	rec := f.request(t, http.MethodPost, "/v1/query", queryRequest{
		Query: "compare databases",
		History: []models.ConversationMessage{
			{Role: models.RoleUser, Content: "we run postgres today"},
			{Role: models.RoleAssistant, Content: "noted"},
		},
	}, true)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "compare databases", f.turns.multiQuery)
	require.Len(t, f.turns.multiHistory, 2)
	assert.Equal(t, "we run postgres today", f.turns.multiHistory[0].Content)

	var resp orchestrator.MultiQueryResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "best answer", resp.Best.Content)
}

func TestEligibility(t *testing.T) {
	f := newTestRouter(t)

	rec := f.request(t, http.MethodGet, "/v1/agents/"+uuid.NewString()+"/eligibility", nil, true)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp models.AgentEligibility
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.CanUse)
}

func TestBalanceAndTransactions(t *testing.T) {
	f := newTestRouter(t)
	f.credits.transactions = []models.CreditTransaction{
		{ID: uuid.New(), Amount: -2, Type: models.TransactionUsage},
	}

	rec := f.request(t, http.MethodGet, "/v1/credits/balance", nil, true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"balance":10`)

	rec = f.request(t, http.MethodGet, "/v1/credits/transactions?limit=10", nil, true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"usage"`)
}

func TestTrialGrant(t *testing.T) {
	f := newTestRouter(t)

	rec := f.request(t, http.MethodPost, "/v1/credits/trial", nil, true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"granted":true`)

	f.credits.trial = &storage.GrantOutcome{Replayed: true, NewBalance: 5}
	rec = f.request(t, http.MethodPost, "/v1/credits/trial", nil, true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"granted":false`)
}

func TestCheckout(t *testing.T) {
	f := newTestRouter(t)

	rec := f.request(t, http.MethodPost, "/v1/billing/checkout", map[string]string{"pack_id": "starter"}, true)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "checkout.stripe.com")
}

func TestCheckout_UnknownPackMapsTo400(t *testing.T) {
	f := newTestRouter(t)
	f.billing.checkoutURL = ""
	f.billing.checkoutErr = fmt.Errorf("%w: %q", billing.ErrUnknownPack, "bogus")

	rec := f.request(t, http.MethodPost, "/v1/billing/checkout", map[string]string{"pack_id": "bogus"}, true)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBillingEvents_ServiceKeyRequired(t *testing.T) {
	f := newTestRouter(t)
	event := billing.BillingEvent{
		ID:      "evt_1",
		Type:    billing.EventCheckoutCompleted,
		UserID:  uuid.New(),
		Credits: 150,
	}
	body, err := json.Marshal(event)
	require.NoError(t, err)

	// No key.
	req := httptest.NewRequest(http.MethodPost, "/internal/billing/events", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Wrong key.
	req = httptest.NewRequest(http.MethodPost, "/internal/billing/events", bytes.NewReader(body))
	req.Header.Set("X-Service-Key", "wrong")
	rec = httptest.NewRecorder()
	f.mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// Correct key.
	req = httptest.NewRequest(http.MethodPost, "/internal/billing/events", bytes.NewReader(body))
	req.Header.Set("X-Service-Key", testServiceKey)
	rec = httptest.NewRecorder()
	f.mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "evt_1", f.billing.lastEvent.ID)
}

func TestHealth(t *testing.T) {
	f := newTestRouter(t)

	rec := f.request(t, http.MethodGet, "/health", nil, false)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"healthy"`)
	assert.Contains(t, rec.Body.String(), `"redis":"disabled"`)
}

func TestHealth_UnhealthyComponent(t *testing.T) {
	handlers := NewHandlers(&fakeTurns{}, &fakeCatalog{}, &fakeCredits{}, &fakeBilling{}, &fakeUsageList{},
		map[string]func(context.Context) error{
			"database": func(context.Context) error { return fmt.Errorf("connection refused") },
		}, nil)

	mux := http.NewServeMux()
	RegisterRoutes(mux, handlers, testSecret, "")

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "connection refused")
}

func TestListPacks(t *testing.T) {
	f := newTestRouter(t)

	rec := f.request(t, http.MethodGet, "/v1/billing/packs", nil, false)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"starter"`)
}
