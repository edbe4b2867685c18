// Package httpapi exposes the assistant over HTTP: agent turns,
// multi-provider queries, the credit ledger and billing intake. Handlers
// translate between wire shapes and the services; policy lives below.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/eveiljuice/multi-model-ai-assistant-sub001/internal/billing"
	"github.com/eveiljuice/multi-model-ai-assistant-sub001/internal/middleware"
	"github.com/eveiljuice/multi-model-ai-assistant-sub001/internal/models"
	"github.com/eveiljuice/multi-model-ai-assistant-sub001/internal/orchestrator"
	"github.com/eveiljuice/multi-model-ai-assistant-sub001/internal/storage"
	"github.com/eveiljuice/multi-model-ai-assistant-sub001/internal/utils"
)

// TurnRunner runs agent turns and multi-provider queries.
type TurnRunner interface {
	RunTurn(ctx context.Context, req orchestrator.TurnRequest) (*orchestrator.TurnResult, error)
	MultiQuery(ctx context.Context, message string, history []models.ConversationMessage) (*orchestrator.MultiQueryResult, error)
}

// CreditAPI is the ledger surface the HTTP layer reads and grants from.
type CreditAPI interface {
	CheckEligibility(ctx context.Context, userID, agentID uuid.UUID) (*models.AgentEligibility, error)
	Balance(ctx context.Context, userID uuid.UUID) (int, error)
	Transactions(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.CreditTransaction, error)
	GrantTrial(ctx context.Context, userID uuid.UUID) (*storage.GrantOutcome, error)
}

// AgentCatalog lists the enabled agents.
type AgentCatalog interface {
	List(ctx context.Context) ([]models.Agent, error)
}

// BillingAPI sells credit packs and applies settled payments.
type BillingAPI interface {
	CreateCheckoutSession(ctx context.Context, userID uuid.UUID, packID string) (string, error)
	HandleEvent(ctx context.Context, event billing.BillingEvent) (*storage.GrantOutcome, error)
}

// UsageAPI reads the audit trail.
type UsageAPI interface {
	ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]models.UsageRecord, error)
}

// Handlers holds every endpoint's dependencies.
type Handlers struct {
	turns   TurnRunner
	agents  AgentCatalog
	credits CreditAPI
	billing BillingAPI
	usage   UsageAPI
	health  map[string]func(context.Context) error
	logger  *utils.Logger
}

// NewHandlers wires the endpoint set. healthChecks maps a component name
// to its probe; nil disables the component's check.
func NewHandlers(
	turns TurnRunner,
	agents AgentCatalog,
	credits CreditAPI,
	billingSvc BillingAPI,
	usage UsageAPI,
	healthChecks map[string]func(context.Context) error,
	logger *utils.Logger,
) *Handlers {
	if logger == nil {
		logger = utils.NewLogger("httpapi")
	}
	return &Handlers{
		turns:   turns,
		agents:  agents,
		credits: credits,
		billing: billingSvc,
		usage:   usage,
		health:  healthChecks,
		logger:  logger,
	}
}

type generateRequest struct {
	Message       string                       `json:"message"`
	History       []models.ConversationMessage `json:"history,omitempty"`
	Model         string                       `json:"model,omitempty"`
	CorrelationID string                       `json:"correlation_id,omitempty"`
	SkipDeduction bool                         `json:"skip_deduction,omitempty"`
}

type generateResponse struct {
	State       orchestrator.TurnState   `json:"state"`
	RequestID   uuid.UUID                `json:"request_id"`
	Content     string                   `json:"content,omitempty"`
	Response    *models.AIResponse       `json:"response,omitempty"`
	Eligibility *models.AgentEligibility `json:"eligibility,omitempty"`
	NewBalance  *int                     `json:"new_balance,omitempty"`
}

// HandleGenerate runs one agent turn for the authenticated user.
func (h *Handlers) HandleGenerate(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		utils.RespondWithError(w, http.StatusUnauthorized, "Missing user identity")
		return
	}

	agentID, err := uuid.Parse(r.PathValue("agentID"))
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid agent id")
		return
	}

	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Message == "" {
		utils.RespondWithError(w, http.StatusBadRequest, "Message is required")
		return
	}

	result, err := h.turns.RunTurn(r.Context(), orchestrator.TurnRequest{
		AgentID:       agentID,
		UserID:        userID,
		Message:       req.Message,
		History:       req.History,
		Model:         req.Model,
		CorrelationID: req.CorrelationID,
		SkipDeduction: req.SkipDeduction,
	})
	if err != nil {
		respondWithMappedError(w, h.logger, err)
		return
	}

	resp := generateResponse{
		State:       result.State,
		RequestID:   result.RequestID,
		Response:    result.Response,
		Eligibility: result.Eligibility,
	}
	if result.Response != nil {
		resp.Content = result.Response.Content
	}
	if result.Deduct != nil && result.Deduct.Success {
		resp.NewBalance = &result.Deduct.NewBalance
	}

	utils.RespondWithJSON(w, statusForState(result.State), resp)
}

// HandleEligibility returns a point-in-time eligibility view. It never
// reserves anything; the answer can be stale by the time a turn runs.
func (h *Handlers) HandleEligibility(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		utils.RespondWithError(w, http.StatusUnauthorized, "Missing user identity")
		return
	}

	agentID, err := uuid.Parse(r.PathValue("agentID"))
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid agent id")
		return
	}

	eligibility, err := h.credits.CheckEligibility(r.Context(), userID, agentID)
	if err != nil {
		respondWithMappedError(w, h.logger, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, eligibility)
}

type queryRequest struct {
	Query   string                       `json:"query"`
	History []models.ConversationMessage `json:"history,omitempty"`
}

// HandleQuery fans the same question out to every available provider.
func (h *Handlers) HandleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Query == "" {
		utils.RespondWithError(w, http.StatusBadRequest, "Query is required")
		return
	}

	result, err := h.turns.MultiQuery(r.Context(), req.Query, req.History)
	if err != nil {
		respondWithMappedError(w, h.logger, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, result)
}

// HandleListAgents returns the enabled agent catalog.
func (h *Handlers) HandleListAgents(w http.ResponseWriter, r *http.Request) {
	agents, err := h.agents.List(r.Context())
	if err != nil {
		respondWithMappedError(w, h.logger, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, map[string]interface{}{"agents": agents})
}

// HandleBalance returns the authenticated user's credit balance. Users
// with no ledger history read as zero, not as an error.
func (h *Handlers) HandleBalance(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		utils.RespondWithError(w, http.StatusUnauthorized, "Missing user identity")
		return
	}

	balance, err := h.credits.Balance(r.Context(), userID)
	if err != nil {
		respondWithMappedError(w, h.logger, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, map[string]interface{}{
		"user_id": userID,
		"balance": balance,
	})
}

// HandleTransactions returns the user's ledger history, newest first.
func (h *Handlers) HandleTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		utils.RespondWithError(w, http.StatusUnauthorized, "Missing user identity")
		return
	}

	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)

	transactions, err := h.credits.Transactions(r.Context(), userID, limit, offset)
	if err != nil {
		respondWithMappedError(w, h.logger, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, map[string]interface{}{
		"transactions": transactions,
	})
}

// HandleTrialGrant grants the signup trial credits. Idempotent per user.
func (h *Handlers) HandleTrialGrant(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		utils.RespondWithError(w, http.StatusUnauthorized, "Missing user identity")
		return
	}

	outcome, err := h.credits.GrantTrial(r.Context(), userID)
	if err != nil {
		respondWithMappedError(w, h.logger, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, map[string]interface{}{
		"granted": !outcome.Replayed,
		"balance": outcome.NewBalance,
	})
}

// HandleUsage returns the user's recent request history.
func (h *Handlers) HandleUsage(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		utils.RespondWithError(w, http.StatusUnauthorized, "Missing user identity")
		return
	}

	records, err := h.usage.ListByUser(r.Context(), userID, queryInt(r, "limit", 50))
	if err != nil {
		respondWithMappedError(w, h.logger, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, map[string]interface{}{"records": records})
}

type checkoutRequest struct {
	PackID string `json:"pack_id"`
}

// HandleCheckout opens a Stripe Checkout session for a credit pack.
func (h *Handlers) HandleCheckout(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		utils.RespondWithError(w, http.StatusUnauthorized, "Missing user identity")
		return
	}

	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	url, err := h.billing.CreateCheckoutSession(r.Context(), userID, req.PackID)
	if err != nil {
		respondWithMappedError(w, h.logger, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, map[string]string{"checkout_url": url})
}

// HandleListPacks returns the purchasable credit packs.
func (h *Handlers) HandleListPacks(w http.ResponseWriter, _ *http.Request) {
	utils.RespondWithJSON(w, http.StatusOK, map[string]interface{}{"packs": billing.Packs})
}

// HandleBillingEvent applies a settled payment event. The route sits
// behind the service key middleware; only the payment edge calls it.
func (h *Handlers) HandleBillingEvent(w http.ResponseWriter, r *http.Request) {
	var event billing.BillingEvent
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	outcome, err := h.billing.HandleEvent(r.Context(), event)
	if err != nil {
		respondWithMappedError(w, h.logger, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, map[string]interface{}{
		"applied": !outcome.Replayed,
		"balance": outcome.NewBalance,
	})
}

// HandleHealth probes each wired component and reports per-component
// status. Any failing probe turns the overall status unhealthy.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	components := make(map[string]string, len(h.health))
	for name, check := range h.health {
		if check == nil {
			components[name] = "disabled"
			continue
		}
		if err := check(r.Context()); err != nil {
			components[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		components[name] = "ok"
	}

	overall := "healthy"
	if status != http.StatusOK {
		overall = "unhealthy"
	}
	utils.RespondWithJSON(w, status, map[string]interface{}{
		"status":     overall,
		"components": components,
	})
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	val, err := strconv.Atoi(raw)
	if err != nil || val < 0 {
		return fallback
	}
	return val
}
