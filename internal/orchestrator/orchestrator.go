// Package orchestrator runs one conversational turn end to end: resolve
// the agent, charge credits, call the provider gateway with fallback,
// and queue the audit record. It owns the turn state machine; payment
// and provider mechanics live in their own packages.
package orchestrator

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/eveiljuice/multi-model-ai-assistant-sub001/internal/ledger"
	"github.com/eveiljuice/multi-model-ai-assistant-sub001/internal/models"
	"github.com/eveiljuice/multi-model-ai-assistant-sub001/internal/providers"
	"github.com/eveiljuice/multi-model-ai-assistant-sub001/internal/utils"
)

// TurnState is the terminal state of one turn.
type TurnState string

const (
	// StateAnswered means credits were charged and a provider answered.
	StateAnswered TurnState = "answered"

	// StatePaywall means the user cannot afford the agent; nothing was
	// charged and no provider was called.
	StatePaywall TurnState = "paywall"

	// StateCreditError means the ledger itself failed; nothing was
	// charged and no provider was called.
	StateCreditError TurnState = "credit_error"

	// StateFallback means credits were charged but every provider
	// failed; the user gets an apology and keeps nothing pending. By
	// policy the charge stands: the ledger records what was attempted,
	// not what succeeded.
	StateFallback TurnState = "fallback"
)

// TurnRequest describes one user message to one agent.
type TurnRequest struct {
	AgentID       uuid.UUID                    `json:"agent_id"`
	UserID        uuid.UUID                    `json:"user_id"`
	Message       string                       `json:"message"`
	History       []models.ConversationMessage `json:"history,omitempty"`
	Model         string                       `json:"model,omitempty"`
	CorrelationID string                       `json:"correlation_id,omitempty"`

	// SkipDeduction bypasses the charge for trusted internal callers.
	// The flag is honored as-is and logged; abuse is an operator
	// problem, not a runtime one.
	SkipDeduction bool `json:"skip_deduction,omitempty"`
}

// TurnResult is the outcome handed back to the HTTP layer.
type TurnResult struct {
	State       TurnState                `json:"state"`
	Response    *models.AIResponse       `json:"response,omitempty"`
	Eligibility *models.AgentEligibility `json:"eligibility,omitempty"`
	Deduct      *ledger.DeductResult     `json:"deduct,omitempty"`
	RequestID   uuid.UUID                `json:"request_id"`
}

// AgentStore resolves agents.
type AgentStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Agent, error)
}

// CreditLedger is the slice of the ledger service the orchestrator uses.
type CreditLedger interface {
	CheckEligibility(ctx context.Context, userID, agentID uuid.UUID) (*models.AgentEligibility, error)
	Deduct(ctx context.Context, userID uuid.UUID, agent *models.Agent, idempotencyKey string) (*ledger.DeductResult, error)
}

// Gateway is the provider gateway surface the orchestrator calls.
type Gateway interface {
	Call(ctx context.Context, provider models.ProviderName, req providers.ChatRequest) (*models.AIResponse, error)
	CallWithFallback(ctx context.Context, candidates []models.ProviderName, req providers.ChatRequest) (*models.AIResponse, error)
	Available() []models.ProviderName
}

// UsageSink receives audit records; writes happen asynchronously.
type UsageSink interface {
	Enqueue(ctx context.Context, record *models.UsageRecord) error
}

// Notifier pushes ops alerts. Fire and forget.
type Notifier interface {
	NotifyAsync(message string)
}

// Orchestrator coordinates one turn.
type Orchestrator struct {
	agents   AgentStore
	credits  CreditLedger
	gateway  Gateway
	usage    UsageSink
	notifier Notifier
	logger   *utils.Logger
}

func New(agents AgentStore, credits CreditLedger, gateway Gateway, usage UsageSink, notifier Notifier, logger *utils.Logger) *Orchestrator {
	if logger == nil {
		logger = utils.NewLogger("orchestrator")
	}
	return &Orchestrator{
		agents:   agents,
		credits:  credits,
		gateway:  gateway,
		usage:    usage,
		notifier: notifier,
		logger:   logger,
	}
}

// RunTurn executes the check, charge, invoke sequence. The charge comes
// strictly before the provider call; a provider failure after a charge
// lands in StateFallback with the charge kept.
func (o *Orchestrator) RunTurn(ctx context.Context, req TurnRequest) (*TurnResult, error) {
	requestID := uuid.New()
	if req.CorrelationID == "" {
		req.CorrelationID = ledger.NewCorrelationID()
	}
	log := o.logger.With("request_id", requestID, "user", req.UserID, "agent", req.AgentID)

	agent, err := o.agents.GetByID(ctx, req.AgentID)
	if err != nil {
		return nil, err
	}

	result := &TurnResult{RequestID: requestID}
	idempotencyKey := ledger.IdempotencyKey("usage", req.UserID.String(), req.CorrelationID)

	if req.SkipDeduction {
		log.Info("deduction skipped by trusted caller")
	} else {
		eligibility, err := o.credits.CheckEligibility(ctx, req.UserID, req.AgentID)
		if err != nil {
			log.Error("eligibility check failed", "error", err)
			result.State = StateCreditError
			return result, nil
		}
		result.Eligibility = eligibility
		if !eligibility.CanUse {
			result.State = StatePaywall
			return result, nil
		}

		deduct, err := o.credits.Deduct(ctx, req.UserID, agent, idempotencyKey)
		if err != nil {
			log.Error("deduct failed", "error", err)
			result.State = StateCreditError
			return result, nil
		}
		result.Deduct = deduct
		if !deduct.Success {
			// Lost the race between check and charge.
			result.State = StatePaywall
			result.Eligibility = &models.AgentEligibility{
				Required:  deduct.CreditsCost,
				Available: deduct.NewBalance,
				Blockers:  []string{deduct.Blocker},
			}
			return result, nil
		}
	}

	chatReq := providers.ChatRequest{
		Model:    agent.Model,
		Messages: buildMessages(agent, req),
	}
	if req.Model != "" {
		chatReq.Model = req.Model
	}

	response, err := o.gateway.CallWithFallback(ctx, candidateOrder(agent.Provider), chatReq)
	if err != nil {
		log.Error("all providers failed", "error", err)
		if o.notifier != nil {
			o.notifier.NotifyAsync(fmt.Sprintf("turn %s: all providers failed for agent %s", requestID, agent.Slug))
		}
		result.State = StateFallback
		result.Response = fallbackResponse(req.Message)
		o.recordUsage(ctx, requestID, req, agent, idempotencyKey, result.Response, err)
		return result, nil
	}

	result.State = StateAnswered
	result.Response = response
	o.recordUsage(ctx, requestID, req, agent, idempotencyKey, response, nil)
	return result, nil
}

// candidateOrder puts the agent's home provider first, then the rest in
// default order.
func candidateOrder(primary models.ProviderName) []models.ProviderName {
	order := []models.ProviderName{primary}
	for _, p := range models.AllProviders() {
		if p != primary {
			order = append(order, p)
		}
	}
	return order
}

// buildMessages assembles system prompt, trimmed history and the new
// user message into the normalized chat shape.
func buildMessages(agent *models.Agent, req TurnRequest) []models.ChatMessage {
	messages := make([]models.ChatMessage, 0, len(req.History)+2)
	if agent.SystemPrompt != "" {
		messages = append(messages, models.ChatMessage{Role: models.RoleSystem, Content: agent.SystemPrompt})
	}
	messages = append(messages, historyMessages(req.History)...)
	return append(messages, models.ChatMessage{Role: models.RoleUser, Content: req.Message})
}

// historyMessages filters prior turns down to user and assistant
// messages. Client-supplied system messages and unknown roles are
// dropped so history cannot smuggle in prompt overrides.
func historyMessages(history []models.ConversationMessage) []models.ChatMessage {
	messages := make([]models.ChatMessage, 0, len(history))
	for _, m := range history {
		if !m.Role.Valid() || m.Role == models.RoleSystem {
			continue
		}
		messages = append(messages, models.ChatMessage{Role: m.Role, Content: m.Content})
	}
	return messages
}

const fallbackQueryPreview = 120

func fallbackResponse(query string) *models.AIResponse {
	if len(query) > fallbackQueryPreview {
		query = query[:fallbackQueryPreview] + "..."
	}
	return &models.AIResponse{
		Content: fmt.Sprintf(
			"I'm sorry, I couldn't reach any AI provider to answer %q. Please try again in a few minutes.",
			query),
		Confidence: 0.10,
	}
}

func (o *Orchestrator) recordUsage(ctx context.Context, requestID uuid.UUID, req TurnRequest, agent *models.Agent, idempotencyKey string, response *models.AIResponse, callErr error) {
	if o.usage == nil {
		return
	}

	record := &models.UsageRecord{
		RequestID:      requestID,
		UserID:         req.UserID,
		AgentID:        &agent.ID,
		IdempotencyKey: idempotencyKey,
		Provider:       response.Provider,
		Model:          response.Model,
		Tokens:         response.Tokens,
		ResponseTimeMS: response.ResponseTimeMS,
		StatusCode:     200,
	}
	if callErr != nil {
		record.StatusCode = 502
		record.ErrorMessage = callErr.Error()
	}

	if err := o.usage.Enqueue(ctx, record); err != nil {
		o.logger.Error("usage record enqueue failed", "request_id", requestID, "error", err)
	}
}
