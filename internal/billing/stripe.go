// Package billing sells credit packs through Stripe Checkout and turns
// confirmed payment events into ledger grants. Webhook signature
// verification happens at the edge; this service receives normalized
// events on a service-key protected endpoint and is idempotent per
// event id.
package billing

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v72"
	"github.com/stripe/stripe-go/v72/client"

	"github.com/eveiljuice/multi-model-ai-assistant-sub001/internal/ledger"
	"github.com/eveiljuice/multi-model-ai-assistant-sub001/internal/models"
	"github.com/eveiljuice/multi-model-ai-assistant-sub001/internal/storage"
	"github.com/eveiljuice/multi-model-ai-assistant-sub001/internal/utils"
)

// Event types accepted on the intake endpoint.
const (
	EventCheckoutCompleted = "checkout.session.completed"
	EventInvoicePaid       = "invoice.paid"
)

// ErrUnknownPack is returned for a checkout request with a bad pack id.
var ErrUnknownPack = fmt.Errorf("unknown credit pack")

// ErrUnknownEventType is returned for unmapped billing events.
var ErrUnknownEventType = fmt.Errorf("unknown billing event type")

// CreditPack is a purchasable bundle.
type CreditPack struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Credits     int    `json:"credits"`
	AmountCents int64  `json:"amount_cents"`
}

// Packs is the catalog shown at checkout.
var Packs = []CreditPack{
	{ID: "starter", Name: "Starter pack", Credits: 50, AmountCents: 499},
	{ID: "regular", Name: "Regular pack", Credits: 150, AmountCents: 1199},
	{ID: "power", Name: "Power pack", Credits: 500, AmountCents: 2999},
}

// PackByID resolves a pack from the catalog.
func PackByID(id string) (CreditPack, error) {
	for _, pack := range Packs {
		if pack.ID == id {
			return pack, nil
		}
	}
	return CreditPack{}, fmt.Errorf("%w: %q", ErrUnknownPack, id)
}

// BillingEvent is one normalized payment confirmation.
type BillingEvent struct {
	ID      string    `json:"id"`
	Type    string    `json:"type"`
	UserID  uuid.UUID `json:"user_id"`
	Credits int       `json:"credits"`
	PackID  string    `json:"pack_id,omitempty"`
}

// Grantor is the ledger surface billing needs.
type Grantor interface {
	AddCredits(ctx context.Context, userID uuid.UUID, amount int, txType models.TransactionType, idempotencyKey, description string) (*storage.GrantOutcome, error)
}

// Service wraps the Stripe client and the ledger grantor.
type Service struct {
	client     *client.API
	grantor    Grantor
	successURL string
	cancelURL  string
	logger     *utils.Logger
}

// NewService initializes the Stripe client. An empty API key disables
// checkout creation but event intake still works, which keeps dev
// environments functional without Stripe credentials.
func NewService(apiKey, successURL, cancelURL string, grantor Grantor, logger *utils.Logger) *Service {
	if logger == nil {
		logger = utils.NewLogger("billing")
	}

	var api *client.API
	if apiKey != "" {
		api = &client.API{}
		api.Init(apiKey, nil)
	}

	return &Service{
		client:     api,
		grantor:    grantor,
		successURL: successURL,
		cancelURL:  cancelURL,
		logger:     logger,
	}
}

// CreateCheckoutSession opens a Stripe Checkout session for one pack and
// returns the redirect URL.
func (s *Service) CreateCheckoutSession(ctx context.Context, userID uuid.UUID, packID string) (string, error) {
	if s.client == nil {
		return "", fmt.Errorf("stripe is not configured")
	}

	pack, err := PackByID(packID)
	if err != nil {
		return "", err
	}

	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(s.successURL),
		CancelURL:  stripe.String(s.cancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(string(stripe.CurrencyUSD)),
					UnitAmount: stripe.Int64(pack.AmountCents),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(pack.Name),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
	}
	params.Context = ctx
	params.AddMetadata("user_id", userID.String())
	params.AddMetadata("pack_id", pack.ID)
	params.AddMetadata("credits", fmt.Sprintf("%d", pack.Credits))

	session, err := s.client.CheckoutSessions.New(params)
	if err != nil {
		return "", fmt.Errorf("create checkout session: %w", err)
	}

	s.logger.Info("checkout session created", "user", userID, "pack", pack.ID, "session", session.ID)
	return session.URL, nil
}

// HandleEvent applies a confirmed payment to the ledger. The key
// "stripe:<event-id>" makes duplicate webhook deliveries no-ops.
func (s *Service) HandleEvent(ctx context.Context, event BillingEvent) (*storage.GrantOutcome, error) {
	if event.ID == "" {
		return nil, fmt.Errorf("billing event id is required")
	}
	if event.Credits <= 0 {
		return nil, fmt.Errorf("billing event credits must be positive, got %d", event.Credits)
	}

	var txType models.TransactionType
	var description string
	switch event.Type {
	case EventCheckoutCompleted:
		txType = models.TransactionPurchase
		description = fmt.Sprintf("credit pack purchase (%s)", event.PackID)
	case EventInvoicePaid:
		txType = models.TransactionSubscription
		description = "subscription renewal"
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEventType, event.Type)
	}

	outcome, err := s.grantor.AddCredits(ctx, event.UserID, event.Credits, txType,
		ledger.IdempotencyKey("stripe", event.ID), description)
	if err != nil {
		return nil, fmt.Errorf("apply billing event %s: %w", event.ID, err)
	}

	if outcome.Replayed {
		s.logger.Info("duplicate billing event ignored", "event", event.ID)
	} else {
		s.logger.Info("billing event applied", "event", event.ID, "user", event.UserID, "credits", event.Credits)
	}
	return outcome, nil
}
