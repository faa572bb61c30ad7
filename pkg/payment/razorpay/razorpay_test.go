package razorpay

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"storefront/pkg/payment"
)

type mockLinks struct {
	mock.Mock
}

func (m *mockLinks) Create(data map[string]interface{}, extraHeaders map[string]string) (map[string]interface{}, error) {
	args := m.Called(data)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]interface{}), args.Error(1)
}

func (m *mockLinks) Fetch(id string, queryParams map[string]interface{}, extraHeaders map[string]string) (map[string]interface{}, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]interface{}), args.Error(1)
}

func TestGateway_CreateSession(t *testing.T) {
	links := new(mockLinks)
	g := newGateway(links, Config{CallbackURL: "https://shop.test/purchase-success"})

	links.On("Create", mock.MatchedBy(func(data map[string]interface{}) bool {
		notes := data["notes"].(map[string]interface{})
		return data["amount"] == int64(20250) &&
			data["currency"] == "PHP" &&
			data["callback_url"] == "https://shop.test/purchase-success" &&
			notes["owner_user_id"] == "user-1"
	})).Return(map[string]interface{}{
		"id":        "plink_123",
		"short_url": "https://rzp.io/i/abc",
		"status":    "created",
	}, nil).Once()

	session, err := g.CreateSession(context.Background(), payment.SessionRequest{
		Lines:    []payment.LineItem{{Ref: "p1", Quantity: 2, UnitPrice: 10000}},
		Amount:   20250,
		Currency: "PHP",
		Metadata: map[string]string{"owner_user_id": "user-1"},
	})

	require.NoError(t, err)
	assert.Equal(t, "plink_123", session.ID)
	assert.Equal(t, "https://rzp.io/i/abc", session.RedirectURL)
	links.AssertExpectations(t)
}

func TestGateway_CreateSession_UpstreamError(t *testing.T) {
	links := new(mockLinks)
	g := newGateway(links, Config{})

	links.On("Create", mock.Anything).Return(nil, errors.New("server error")).Once()

	_, err := g.CreateSession(context.Background(), payment.SessionRequest{Amount: 100, Currency: "PHP"})
	require.Error(t, err)
	assert.ErrorIs(t, err, payment.ErrGatewayUnavailable)
}

func TestGateway_RetrieveStatus(t *testing.T) {
	links := new(mockLinks)
	g := newGateway(links, Config{})

	links.On("Fetch", "plink_paid").Return(map[string]interface{}{
		"id":          "plink_paid",
		"status":      "paid",
		"amount":      float64(20250),
		"amount_paid": float64(20250),
		"notes": map[string]interface{}{
			"owner_user_id": "user-1",
			"coupon_code":   "GIFT10",
		},
	}, nil).Once()
	links.On("Fetch", "plink_open").Return(map[string]interface{}{
		"id":     "plink_open",
		"status": "created",
		"amount": float64(500),
		"notes":  []interface{}{},
	}, nil).Once()

	status, err := g.RetrieveStatus(context.Background(), "plink_paid")
	require.NoError(t, err)
	assert.True(t, status.Paid)
	assert.Equal(t, int64(20250), status.AmountTotal)
	assert.Equal(t, "GIFT10", status.Metadata["coupon_code"])

	status, err = g.RetrieveStatus(context.Background(), "plink_open")
	require.NoError(t, err)
	assert.False(t, status.Paid)
	assert.Equal(t, int64(500), status.AmountTotal)
	assert.Empty(t, status.Metadata)
	links.AssertExpectations(t)
}

func TestGateway_RetrieveStatus_NotFound(t *testing.T) {
	links := new(mockLinks)
	g := newGateway(links, Config{})

	links.On("Fetch", "plink_forged").Return(nil, errors.New("The id provided does not exist")).Once()

	_, err := g.RetrieveStatus(context.Background(), "plink_forged")
	assert.ErrorIs(t, err, payment.ErrSessionNotFound)

	_, err = g.RetrieveStatus(context.Background(), "")
	assert.ErrorIs(t, err, payment.ErrSessionNotFound)
}

func TestGateway_Timeout(t *testing.T) {
	links := new(mockLinks)
	g := newGateway(links, Config{Timeout: 20 * time.Millisecond})

	links.On("Fetch", "plink_slow").After(200*time.Millisecond).Return(map[string]interface{}{"status": "paid"}, nil).Once()

	start := time.Now()
	_, err := g.RetrieveStatus(context.Background(), "plink_slow")
	assert.ErrorIs(t, err, payment.ErrGatewayUnavailable)
	assert.Less(t, time.Since(start), 150*time.Millisecond)
}
