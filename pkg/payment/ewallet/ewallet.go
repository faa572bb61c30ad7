// Package ewallet adapts an e-wallet charges API to payment.WalletGateway.
package ewallet

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/gofiber/fiber/v2"

	"storefront/pkg/payment"
)

// Config holds wallet API credentials and redirect settings.
type Config struct {
	BaseURL     string
	SecretKey   string
	ChannelCode string
	SuccessURL  string
	FailureURL  string
	Timeout     time.Duration
}

// Gateway implements payment.WalletGateway over the charges endpoint.
type Gateway struct {
	cfg Config
}

var _ payment.WalletGateway = (*Gateway)(nil)

// NewGateway creates a new wallet Gateway.
func NewGateway(cfg Config) *Gateway {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Gateway{cfg: cfg}
}

type channelProperties struct {
	MobileNumber       string `json:"mobile_number,omitempty"`
	SuccessRedirectURL string `json:"success_redirect_url"`
	FailureRedirectURL string `json:"failure_redirect_url"`
}

type chargeRequest struct {
	ReferenceID       string            `json:"reference_id"`
	Currency          string            `json:"currency"`
	Amount            int64             `json:"amount"`
	CheckoutMethod    string            `json:"checkout_method"`
	ChannelCode       string            `json:"channel_code"`
	ChannelProperties channelProperties `json:"channel_properties"`
}

type chargeResponse struct {
	ID          string `json:"id"`
	ReferenceID string `json:"reference_id"`
	Status      string `json:"status"`
	Actions     struct {
		DesktopWebCheckoutURL string `json:"desktop_web_checkout_url"`
		MobileWebCheckoutURL  string `json:"mobile_web_checkout_url"`
	} `json:"actions"`
	ErrorCode string `json:"error_code"`
	Message   string `json:"message"`
}

// CreateCharge creates a one-time wallet charge and returns the checkout
// URL the customer must visit to approve it.
func (g *Gateway) CreateCharge(ctx context.Context, req payment.ChargeRequest) (*payment.Charge, error) {
	timeout := payment.Deadline(ctx, g.cfg.Timeout)
	if timeout <= 0 {
		return nil, errors.Wrap(payment.ErrGatewayUnavailable, "deadline exceeded before charge")
	}

	body := chargeRequest{
		ReferenceID:    req.ReferenceID,
		Currency:       req.Currency,
		Amount:         req.Amount,
		CheckoutMethod: "ONE_TIME_PAYMENT",
		ChannelCode:    g.cfg.ChannelCode,
		ChannelProperties: channelProperties{
			MobileNumber:       req.ContactHandle,
			SuccessRedirectURL: g.cfg.SuccessURL,
			FailureRedirectURL: g.cfg.FailureURL,
		},
	}

	agent := fiber.Post(g.cfg.BaseURL + "/ewallets/charges")
	agent.BasicAuth(g.cfg.SecretKey, "")
	agent.JSON(body)
	agent.Timeout(timeout)
	if err := agent.Parse(); err != nil {
		return nil, errors.Wrap(payment.ErrGatewayUnavailable, err.Error())
	}

	var resp chargeResponse
	code, _, errs := agent.Struct(&resp)
	if len(errs) > 0 {
		return nil, errors.Wrap(payment.ErrGatewayUnavailable, errs[0].Error())
	}
	if code >= fiber.StatusInternalServerError {
		return nil, errors.Wrapf(payment.ErrGatewayUnavailable, "charge failed: %d %s %s", code, resp.ErrorCode, resp.Message)
	}
	if code >= fiber.StatusBadRequest {
		return nil, errors.Wrapf(payment.ErrChargeRejected, "%d %s %s", code, resp.ErrorCode, resp.Message)
	}

	url := resp.Actions.MobileWebCheckoutURL
	if url == "" {
		url = resp.Actions.DesktopWebCheckoutURL
	}
	return &payment.Charge{
		ID:          resp.ID,
		RedirectURL: url,
		Status:      normalize(resp.Status),
	}, nil
}

type callbackPayload struct {
	Event string `json:"event"`
	Data  struct {
		ID          string `json:"id"`
		ReferenceID string `json:"reference_id"`
		Status      string `json:"status"`
	} `json:"data"`
}

// ParseCallback decodes a charge status callback.
func ParseCallback(body []byte) (*payment.CallbackEvent, error) {
	var p callbackPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, errors.Wrap(err, "decode wallet callback")
	}
	if p.Data.ReferenceID == "" {
		return nil, errors.New("wallet callback without reference_id")
	}
	return &payment.CallbackEvent{
		ReferenceID: p.Data.ReferenceID,
		Status:      normalize(p.Data.Status),
	}, nil
}

func normalize(status string) payment.ChargeStatus {
	switch strings.ToUpper(status) {
	case "SUCCEEDED":
		return payment.ChargeCompleted
	case "FAILED", "VOIDED":
		return payment.ChargeFailed
	default:
		return payment.ChargePending
	}
}
