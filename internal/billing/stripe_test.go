package billing

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eveiljuice/multi-model-ai-assistant-sub001/internal/models"
	"github.com/eveiljuice/multi-model-ai-assistant-sub001/internal/storage"
)

type fakeGrantor struct {
	granted map[string]int // idempotency key -> amount
	byKey   map[string]*storage.GrantOutcome
	lastTyp models.TransactionType
}

func newFakeGrantor() *fakeGrantor {
	return &fakeGrantor{
		granted: make(map[string]int),
		byKey:   make(map[string]*storage.GrantOutcome),
	}
}

func (f *fakeGrantor) AddCredits(_ context.Context, userID uuid.UUID, amount int, txType models.TransactionType, key, _ string) (*storage.GrantOutcome, error) {
	f.lastTyp = txType
	if prior, ok := f.byKey[key]; ok {
		replay := *prior
		replay.Replayed = true
		return &replay, nil
	}

	f.granted[key] = amount
	outcome := &storage.GrantOutcome{
		NewBalance: amount,
		Transaction: &models.CreditTransaction{
			ID:             uuid.New(),
			UserID:         userID,
			Amount:         amount,
			Type:           txType,
			IdempotencyKey: key,
			BalanceAfter:   amount,
		},
	}
	f.byKey[key] = outcome
	return outcome, nil
}

func TestPackByID(t *testing.T) {
	pack, err := PackByID("starter")
	require.NoError(t, err)
	assert.Equal(t, 50, pack.Credits)

	_, err = PackByID("nonexistent")
	assert.ErrorIs(t, err, ErrUnknownPack)
}

func TestHandleEvent_CheckoutCompleted(t *testing.T) {
	grantor := newFakeGrantor()
	svc := NewService("", "", "", grantor, nil)
	userID := uuid.New()

	outcome, err := svc.HandleEvent(context.Background(), BillingEvent{
		ID:      "evt_1",
		Type:    EventCheckoutCompleted,
		UserID:  userID,
		Credits: 150,
		PackID:  "regular",
	})
	require.NoError(t, err)

	assert.False(t, outcome.Replayed)
	assert.Equal(t, 150, grantor.granted["stripe:evt_1"])
	assert.Equal(t, models.TransactionPurchase, grantor.lastTyp)
}

func TestHandleEvent_InvoicePaid(t *testing.T) {
	grantor := newFakeGrantor()
	svc := NewService("", "", "", grantor, nil)

	_, err := svc.HandleEvent(context.Background(), BillingEvent{
		ID:      "evt_2",
		Type:    EventInvoicePaid,
		UserID:  uuid.New(),
		Credits: 100,
	})
	require.NoError(t, err)
	assert.Equal(t, models.TransactionSubscription, grantor.lastTyp)
}

func TestHandleEvent_DuplicateDeliveryIsNoop(t *testing.T) {
	grantor := newFakeGrantor()
	svc := NewService("", "", "", grantor, nil)
	event := BillingEvent{
		ID:      "evt_3",
		Type:    EventCheckoutCompleted,
		UserID:  uuid.New(),
		Credits: 50,
		PackID:  "starter",
	}

	first, err := svc.HandleEvent(context.Background(), event)
	require.NoError(t, err)
	assert.False(t, first.Replayed)

	second, err := svc.HandleEvent(context.Background(), event)
	require.NoError(t, err)
	assert.True(t, second.Replayed)
	assert.Len(t, grantor.granted, 1)
}

func TestHandleEvent_Validation(t *testing.T) {
	svc := NewService("", "", "", newFakeGrantor(), nil)
	ctx := context.Background()

	_, err := svc.HandleEvent(ctx, BillingEvent{Type: EventInvoicePaid, UserID: uuid.New(), Credits: 10})
	assert.Error(t, err, "missing event id")

	_, err = svc.HandleEvent(ctx, BillingEvent{ID: "evt_4", Type: EventInvoicePaid, UserID: uuid.New()})
	assert.Error(t, err, "zero credits")

	_, err = svc.HandleEvent(ctx, BillingEvent{ID: "evt_5", Type: "payment_intent.created", UserID: uuid.New(), Credits: 10})
	assert.ErrorIs(t, err, ErrUnknownEventType)
}

func TestCreateCheckoutSession_UnconfiguredStripe(t *testing.T) {
	svc := NewService("", "", "", newFakeGrantor(), nil)

	_, err := svc.CreateCheckoutSession(context.Background(), uuid.New(), "starter")
	assert.Error(t, err)
}
