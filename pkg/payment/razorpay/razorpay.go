// Package razorpay adapts Razorpay Payment Links to payment.CardGateway.
//
// A payment link is a hosted page: the customer is redirected to short_url,
// pays by card and is sent back to the configured callback URL. The link's
// notes carry checkout metadata until finalization.
package razorpay

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
	razorpay "github.com/razorpay/razorpay-go"

	"storefront/pkg/payment"
)

// linkAPI is the subset of the Razorpay payment link resource we use.
type linkAPI interface {
	Create(data map[string]interface{}, extraHeaders map[string]string) (map[string]interface{}, error)
	Fetch(paymentLinkID string, queryParams map[string]interface{}, extraHeaders map[string]string) (map[string]interface{}, error)
}

// Config holds Razorpay credentials and redirect settings.
type Config struct {
	KeyID       string
	KeySecret   string
	CallbackURL string
	Timeout     time.Duration
}

// Gateway implements payment.CardGateway.
type Gateway struct {
	links       linkAPI
	callbackURL string
	timeout     time.Duration
}

var _ payment.CardGateway = (*Gateway)(nil)

// NewGateway creates a Gateway talking to the Razorpay API.
func NewGateway(cfg Config) *Gateway {
	client := razorpay.NewClient(cfg.KeyID, cfg.KeySecret)
	return newGateway(client.PaymentLink, cfg)
}

func newGateway(links linkAPI, cfg Config) *Gateway {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Gateway{
		links:       links,
		callbackURL: cfg.CallbackURL,
		timeout:     timeout,
	}
}

// CreateSession creates a payment link for the priced cart.
func (g *Gateway) CreateSession(ctx context.Context, req payment.SessionRequest) (*payment.Session, error) {
	notes := make(map[string]interface{}, len(req.Metadata))
	for k, v := range req.Metadata {
		notes[k] = v
	}
	data := map[string]interface{}{
		"amount":          req.Amount,
		"currency":        req.Currency,
		"accept_partial":  false,
		"description":     describe(req.Lines),
		"notes":           notes,
		"callback_url":    g.callbackURL,
		"callback_method": "get",
	}

	body, err := g.call(ctx, func() (map[string]interface{}, error) {
		return g.links.Create(data, nil)
	})
	if err != nil {
		return nil, errors.Wrap(err, "create payment link")
	}

	id, _ := body["id"].(string)
	url, _ := body["short_url"].(string)
	if id == "" || url == "" {
		return nil, errors.Wrap(payment.ErrGatewayUnavailable, "payment link response without id or short_url")
	}
	return &payment.Session{ID: id, RedirectURL: url}, nil
}

// RetrieveStatus fetches the payment link. It is safe to call repeatedly.
func (g *Gateway) RetrieveStatus(ctx context.Context, sessionID string) (*payment.SessionStatus, error) {
	if sessionID == "" {
		return nil, payment.ErrSessionNotFound
	}
	body, err := g.call(ctx, func() (map[string]interface{}, error) {
		return g.links.Fetch(sessionID, nil, nil)
	})
	if err != nil {
		return nil, errors.Wrapf(err, "fetch payment link %s", sessionID)
	}

	status, _ := body["status"].(string)
	amount := toInt64(body["amount_paid"])
	if amount == 0 {
		amount = toInt64(body["amount"])
	}
	return &payment.SessionStatus{
		Paid:        status == "paid",
		AmountTotal: amount,
		Metadata:    toNotes(body["notes"]),
	}, nil
}

// call runs fn with a caller-visible deadline. The SDK is not context aware,
// so a timed-out call is abandoned rather than interrupted.
func (g *Gateway) call(ctx context.Context, fn func() (map[string]interface{}, error)) (map[string]interface{}, error) {
	ctx, cancel := context.WithTimeout(ctx, payment.Deadline(ctx, g.timeout))
	defer cancel()

	type result struct {
		body map[string]interface{}
		err  error
	}
	done := make(chan result, 1)
	go func() {
		body, err := fn()
		done <- result{body: body, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, errors.Wrap(payment.ErrGatewayUnavailable, ctx.Err().Error())
	case r := <-done:
		if r.err != nil {
			return nil, classify(r.err)
		}
		return r.body, nil
	}
}

// classify maps SDK errors onto the gateway error taxonomy. The SDK surfaces
// API errors as plain messages, so this matches on their text.
func classify(err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "does not exist"),
		strings.Contains(msg, "not found"),
		strings.Contains(msg, "is not a valid id"):
		return errors.Wrap(payment.ErrSessionNotFound, err.Error())
	default:
		return errors.Wrap(payment.ErrGatewayUnavailable, err.Error())
	}
}

func describe(lines []payment.LineItem) string {
	items := 0
	for _, l := range lines {
		items += l.Quantity
	}
	if items == 1 {
		return "Order of 1 item"
	}
	return fmt.Sprintf("Order of %d items", items)
}

func toInt64(v interface{}) int64 {
	switch n := v.(type) {
	case float64:
		return int64(n)
	case int64:
		return n
	case int:
		return int64(n)
	case json.Number:
		i, _ := n.Int64()
		return i
	case string:
		i, _ := strconv.ParseInt(n, 10, 64)
		return i
	}
	return 0
}

// toNotes flattens the notes object. Razorpay returns an empty JSON array
// when a link has no notes.
func toNotes(v interface{}) map[string]string {
	out := map[string]string{}
	m, ok := v.(map[string]interface{})
	if !ok {
		return out
	}
	for k, val := range m {
		switch s := val.(type) {
		case string:
			out[k] = s
		case nil:
		default:
			out[k] = fmt.Sprint(s)
		}
	}
	return out
}
