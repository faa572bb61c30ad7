package services

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"storefront/internal/models"
	"storefront/internal/repositories"
	"storefront/pkg/payment"
	"storefront/pkg/rabbitmq"
)

// CouponLedger is the coupon ledger as seen by checkout.
type CouponLedger interface {
	couponFinder
	Deactivate(ctx context.Context, ownerUserID, code string) (bool, error)
	GrantLoyaltyCoupon(ctx context.Context, ownerUserID string, pct int, ttl time.Duration) (*models.Coupon, error)
}

// EventPublisher publishes order lifecycle events.
type EventPublisher interface {
	PublishOrderEvent(event rabbitmq.OrderEvent) error
}

type noopPublisher struct{}

func (noopPublisher) PublishOrderEvent(rabbitmq.OrderEvent) error { return nil }

// CheckoutConfig holds checkout settings.
type CheckoutConfig struct {
	Currency          string
	LoyaltyThreshold  int64 // minor units of subtotal
	LoyaltyPercentage int
	LoyaltyTTL        time.Duration
	// FinalizeTimeout bounds one shared finalize run. Zero means
	// defaultFinalizeTimeout.
	FinalizeTimeout time.Duration
}

const defaultFinalizeTimeout = 30 * time.Second

// LineRequest is a client-supplied cart line. Prices always come from the
// catalog.
type LineRequest struct {
	ProductRef string `json:"product_ref" validate:"required"`
	Quantity   int    `json:"quantity" validate:"required,min=1"`
}

// StartCheckoutRequest starts a checkout on one payment rail.
type StartCheckoutRequest struct {
	OwnerUserID    string
	Lines          []LineRequest
	CouponCode     string
	PaymentMethod  models.PaymentMethod
	ContactHandle  string
	IdempotencyKey string
}

// CheckoutResult is either a settled order (cod, zero total) or a redirect
// to the payment provider.
type CheckoutResult struct {
	Order       *models.Order
	RedirectURL string
	SessionID   string
	ReferenceID string
	Quote       *Quote
}

// CheckoutService orchestrates pricing, payment and order creation. Every
// rail converges on an order keyed by its external payment reference.
type CheckoutService struct {
	orders  repositories.OrderRepository
	coupons CouponLedger
	pricing *PricingEngine
	catalog repositories.ProductRepository
	carts   repositories.CartRepository
	card    payment.CardGateway
	wallet  payment.WalletGateway
	events  EventPublisher
	cfg     CheckoutConfig
	logger  *zap.Logger
	now     func() time.Time

	finalizing singleflight.Group
}

// NewCheckoutService creates a new CheckoutService. events may be nil.
func NewCheckoutService(
	orders repositories.OrderRepository,
	coupons CouponLedger,
	catalog repositories.ProductRepository,
	carts repositories.CartRepository,
	card payment.CardGateway,
	wallet payment.WalletGateway,
	events EventPublisher,
	cfg CheckoutConfig,
	logger *zap.Logger,
) *CheckoutService {
	if events == nil {
		events = noopPublisher{}
	}
	return &CheckoutService{
		orders:  orders,
		coupons: coupons,
		pricing: NewPricingEngine(coupons),
		catalog: catalog,
		carts:   carts,
		card:    card,
		wallet:  wallet,
		events:  events,
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
	}
}

// Quote prices a cart without side effects.
func (s *CheckoutService) Quote(ctx context.Context, ownerUserID string, lines []LineRequest, couponCode string) (*Quote, error) {
	cart, err := s.resolveLines(ctx, ownerUserID, lines)
	if err != nil {
		return nil, err
	}
	return s.pricing.Price(ctx, ownerUserID, cart, couponCode)
}

// StartCheckout prices the cart and starts payment on the requested rail.
func (s *CheckoutService) StartCheckout(ctx context.Context, req StartCheckoutRequest) (*CheckoutResult, error) {
	if !req.PaymentMethod.Valid() {
		return nil, errors.Wrapf(ErrUnsupportedPaymentMethod, "%q", req.PaymentMethod)
	}

	cart, err := s.resolveLines(ctx, req.OwnerUserID, req.Lines)
	if err != nil {
		return nil, err
	}
	quote, err := s.pricing.Price(ctx, req.OwnerUserID, cart, req.CouponCode)
	if err != nil {
		return nil, err
	}
	if quote.CouponIgnored {
		s.logger.Info("Coupon not applicable, checking out without discount",
			zap.String("owner_user_id", req.OwnerUserID),
			zap.String("coupon_code", req.CouponCode),
		)
	}

	switch {
	case req.PaymentMethod == models.PaymentMethodCOD:
		return s.checkoutCOD(ctx, req, quote)
	case quote.Total == 0:
		return s.checkoutFree(ctx, req, quote)
	case req.PaymentMethod == models.PaymentMethodCard:
		return s.checkoutCard(ctx, req, quote)
	default:
		return s.checkoutWallet(ctx, req, quote)
	}
}

func (s *CheckoutService) checkoutCOD(ctx context.Context, req StartCheckoutRequest, quote *Quote) (*CheckoutResult, error) {
	key := req.IdempotencyKey
	if key == "" {
		key = uuid.New().String()
	}
	ref := "cod_" + req.OwnerUserID + "_" + key

	order, err := s.createPaidOrder(ctx, newOrder(req.OwnerUserID, quote, models.PaymentMethodCOD, models.PaymentStatusPaid, ref))
	if err != nil {
		return nil, err
	}
	return &CheckoutResult{Order: order, Quote: quote}, nil
}

// checkoutFree settles a fully discounted cart without a provider, which
// cannot charge a zero amount.
func (s *CheckoutService) checkoutFree(ctx context.Context, req StartCheckoutRequest, quote *Quote) (*CheckoutResult, error) {
	ref := "free_" + req.OwnerUserID + "_" + uuid.New().String()
	if req.IdempotencyKey != "" {
		ref = "free_" + req.OwnerUserID + "_" + req.IdempotencyKey
	}
	order, err := s.createPaidOrder(ctx, newOrder(req.OwnerUserID, quote, req.PaymentMethod, models.PaymentStatusPaid, ref))
	if err != nil {
		return nil, err
	}
	return &CheckoutResult{Order: order, Quote: quote}, nil
}

func (s *CheckoutService) checkoutCard(ctx context.Context, req StartCheckoutRequest, quote *Quote) (*CheckoutResult, error) {
	md, err := encodeIntent(&models.PendingIntent{
		OwnerUserID:        req.OwnerUserID,
		CouponCode:         quote.CouponCode,
		DiscountPercentage: quote.DiscountPercentage,
		Lines:              quote.Lines,
		CreatedAt:          s.now(),
	})
	if err != nil {
		return nil, err
	}

	items := make([]payment.LineItem, len(quote.Lines))
	for i, l := range quote.Lines {
		items[i] = payment.LineItem{Ref: l.ProductRef, Quantity: l.Quantity, UnitPrice: l.UnitPrice}
	}
	session, err := s.card.CreateSession(ctx, payment.SessionRequest{
		Lines:    items,
		Amount:   quote.Total,
		Currency: s.cfg.Currency,
		Metadata: md,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create card session")
	}

	s.logger.Info("Card checkout started",
		zap.String("owner_user_id", req.OwnerUserID),
		zap.String("session_id", session.ID),
		zap.Int64("total", quote.Total),
	)
	return &CheckoutResult{RedirectURL: session.RedirectURL, SessionID: session.ID, Quote: quote}, nil
}

// checkoutWallet records a pending anchor order before charging, so a
// completion callback that beats the charge response still finds it.
func (s *CheckoutService) checkoutWallet(ctx context.Context, req StartCheckoutRequest, quote *Quote) (*CheckoutResult, error) {
	ref := "wallet_" + uuid.New().String()
	anchor := newOrder(req.OwnerUserID, quote, models.PaymentMethodWallet, models.PaymentStatusPending, ref)
	if err := s.orders.Create(ctx, anchor); err != nil {
		return nil, errors.Wrap(err, "create wallet anchor order")
	}

	charge, err := s.wallet.CreateCharge(ctx, payment.ChargeRequest{
		Amount:        quote.Total,
		Currency:      s.cfg.Currency,
		ContactHandle: req.ContactHandle,
		ReferenceID:   ref,
	})
	if err != nil {
		if _, terr := s.orders.TransitionStatus(context.WithoutCancel(ctx), ref,
			[]models.PaymentStatus{models.PaymentStatusPending}, models.PaymentStatusCancelled); terr != nil {
			s.logger.Error("Cancel wallet anchor failed", zap.String("ref", ref), zap.Error(terr))
		}
		return nil, errors.Wrap(err, "create wallet charge")
	}

	s.logger.Info("Wallet checkout started",
		zap.String("owner_user_id", req.OwnerUserID),
		zap.String("reference_id", ref),
		zap.String("charge_id", charge.ID),
		zap.Int64("total", quote.Total),
	)

	res := &CheckoutResult{RedirectURL: charge.RedirectURL, ReferenceID: ref, Quote: quote}
	if charge.Status == payment.ChargeCompleted {
		if err := s.markPaid(ctx, anchor); err != nil {
			return nil, err
		}
		order, err := s.orders.FindByExternalRef(ctx, ref)
		if err != nil {
			return nil, errors.Wrap(err, "reload wallet order")
		}
		res.Order = order
	}
	return res, nil
}

// FinalizeSession turns a paid card session into an order. Repeated and
// concurrent calls for the same session return the same order.
func (s *CheckoutService) FinalizeSession(ctx context.Context, callerUserID, sessionID string) (*models.Order, error) {
	if sessionID == "" {
		return nil, ErrSessionNotFound
	}
	// The flight outlives the caller that started it: other callers may be
	// waiting on it, so it runs detached under its own deadline.
	ch := s.finalizing.DoChan(callerUserID+"|"+sessionID, func() (interface{}, error) {
		timeout := s.cfg.FinalizeTimeout
		if timeout <= 0 {
			timeout = defaultFinalizeTimeout
		}
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
		defer cancel()
		return s.finalize(fctx, callerUserID, sessionID)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*models.Order), nil
	}
}

func (s *CheckoutService) finalize(ctx context.Context, callerUserID, sessionID string) (*models.Order, error) {
	status, err := s.card.RetrieveStatus(ctx, sessionID)
	if err != nil {
		return nil, errors.Wrap(err, "retrieve card session")
	}
	if !status.Paid {
		return nil, ErrPaymentIncomplete
	}

	existing, err := s.orders.FindByExternalRef(ctx, sessionID)
	switch {
	case err == nil:
		if existing.OwnerUserID != callerUserID {
			return nil, ErrSessionNotFound
		}
		return existing, nil
	case !errors.Is(err, repositories.ErrNotFound):
		return nil, errors.Wrap(err, "find order by session")
	}

	intent, err := decodeIntent(sessionID, status.Metadata)
	if err != nil {
		return nil, err
	}
	if intent.OwnerUserID != callerUserID {
		return nil, ErrSessionNotFound
	}

	subtotal, err := subtotalOf(intent.Lines)
	if err != nil {
		return nil, errors.Wrap(ErrSessionNotFound, err.Error())
	}
	discount, total := applyDiscount(subtotal, intent.DiscountPercentage)
	if status.AmountTotal != 0 && status.AmountTotal != total {
		s.logger.Warn("Card session amount differs from recomputed total",
			zap.String("session_id", sessionID),
			zap.Int64("gateway_amount", status.AmountTotal),
			zap.Int64("total", total),
		)
	}

	order := newOrder(intent.OwnerUserID, &Quote{
		Lines:              intent.Lines,
		Subtotal:           subtotal,
		Discount:           discount,
		Total:              total,
		CouponCode:         intent.CouponCode,
		DiscountPercentage: intent.DiscountPercentage,
	}, models.PaymentMethodCard, models.PaymentStatusPaid, sessionID)
	return s.createPaidOrder(ctx, order)
}

// HandleWalletCallback applies a wallet status callback. Unknown references
// and stale events are acknowledged without effect; only storage failures
// are returned.
func (s *CheckoutService) HandleWalletCallback(ctx context.Context, ev payment.CallbackEvent) error {
	order, err := s.orders.FindByExternalRef(ctx, ev.ReferenceID)
	if errors.Is(err, repositories.ErrNotFound) {
		s.logger.Warn("Wallet callback for unknown reference", zap.String("reference_id", ev.ReferenceID))
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "find wallet order")
	}
	if order.PaymentMethod != models.PaymentMethodWallet {
		s.logger.Warn("Wallet callback for non-wallet order",
			zap.String("reference_id", ev.ReferenceID),
			zap.String("payment_method", string(order.PaymentMethod)),
		)
		return nil
	}

	switch ev.Status {
	case payment.ChargeCompleted:
		return s.markPaid(ctx, order)
	case payment.ChargeFailed:
		if order.PaymentStatus != models.PaymentStatusPending {
			return nil
		}
		changed, err := s.orders.TransitionStatus(ctx, order.ExternalPaymentRef,
			[]models.PaymentStatus{models.PaymentStatusPending}, models.PaymentStatusCancelled)
		if err != nil {
			return errors.Wrap(err, "cancel wallet order")
		}
		if changed {
			order.PaymentStatus = models.PaymentStatusCancelled
			s.publish(rabbitmq.EventOrderCancelled, order)
		}
	}
	return nil
}

// markPaid moves a wallet order to paid. Only the caller that performs the
// transition runs the settlement side effects.
func (s *CheckoutService) markPaid(ctx context.Context, order *models.Order) error {
	if order.PaymentStatus == models.PaymentStatusPaid {
		return nil
	}
	changed, err := s.orders.TransitionStatus(ctx, order.ExternalPaymentRef,
		[]models.PaymentStatus{models.PaymentStatusPending, models.PaymentStatusCancelled}, models.PaymentStatusPaid)
	if err != nil {
		return errors.Wrap(err, "mark wallet order paid")
	}
	if !changed {
		return nil
	}
	order.PaymentStatus = models.PaymentStatusPaid
	s.settle(ctx, order)
	return nil
}

// createPaidOrder inserts a paid order and settles it. A duplicate external
// reference means another request already did both, so the stored order is
// returned as is.
func (s *CheckoutService) createPaidOrder(ctx context.Context, order *models.Order) (*models.Order, error) {
	err := s.orders.Create(ctx, order)
	if errors.Is(err, repositories.ErrDuplicateExternalRef) {
		existing, ferr := s.orders.FindByExternalRef(ctx, order.ExternalPaymentRef)
		if ferr != nil {
			return nil, errors.Wrap(ferr, "load existing order")
		}
		if existing.OwnerUserID != order.OwnerUserID {
			return nil, ErrSessionNotFound
		}
		return existing, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "create order")
	}

	s.settle(ctx, order)
	return order, nil
}

// settle runs the post-payment side effects. The payment is already
// recorded, so failures are logged and never returned.
func (s *CheckoutService) settle(ctx context.Context, order *models.Order) {
	ctx = context.WithoutCancel(ctx)
	log := s.logger.With(
		zap.String("order_id", order.ID),
		zap.String("owner_user_id", order.OwnerUserID),
	)

	if order.CouponCode != "" {
		consumed, err := s.coupons.Deactivate(ctx, order.OwnerUserID, order.CouponCode)
		switch {
		case err != nil:
			log.Error("Coupon not consumed", zap.String("coupon_code", order.CouponCode),
				zap.Error(errors.Wrap(ErrCouponApplyFailed, err.Error())))
		case !consumed:
			log.Info("Coupon already consumed", zap.String("coupon_code", order.CouponCode))
		}
	}

	if s.cfg.LoyaltyThreshold > 0 && order.Subtotal >= s.cfg.LoyaltyThreshold {
		if _, err := s.coupons.GrantLoyaltyCoupon(ctx, order.OwnerUserID, s.cfg.LoyaltyPercentage, s.cfg.LoyaltyTTL); err != nil {
			log.Error("Loyalty coupon not granted", zap.Error(err))
		}
	}

	s.publish(rabbitmq.EventOrderPaid, order)
	log.Info("Order paid",
		zap.String("external_payment_ref", order.ExternalPaymentRef),
		zap.String("payment_method", string(order.PaymentMethod)),
		zap.Int64("total", order.TotalAmount),
	)
}

func (s *CheckoutService) publish(eventType string, order *models.Order) {
	err := s.events.PublishOrderEvent(rabbitmq.OrderEvent{
		Type:               eventType,
		OrderID:            order.ID,
		OwnerUserID:        order.OwnerUserID,
		ExternalPaymentRef: order.ExternalPaymentRef,
		PaymentMethod:      string(order.PaymentMethod),
		Total:              order.TotalAmount,
		CouponCode:         order.CouponCode,
		OccurredAt:         s.now(),
	})
	if err != nil {
		s.logger.Warn("Order event not published",
			zap.String("type", eventType),
			zap.String("order_id", order.ID),
			zap.Error(err),
		)
	}
}

// resolveLines prices request lines from the catalog, or reads the owner's
// stored cart when the request has none.
func (s *CheckoutService) resolveLines(ctx context.Context, ownerUserID string, lines []LineRequest) ([]models.CartLine, error) {
	if len(lines) == 0 {
		cart, err := s.carts.GetLines(ctx, ownerUserID)
		if err != nil {
			return nil, err
		}
		if len(cart) == 0 {
			return nil, ErrEmptyCart
		}
		return cart, nil
	}

	ids := make([]string, 0, len(lines))
	for _, l := range lines {
		if l.Quantity < 1 {
			return nil, &InvalidLineItemError{ProductRef: l.ProductRef, Reason: "quantity must be at least 1"}
		}
		ids = append(ids, l.ProductRef)
	}
	products, err := s.catalog.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	prices := make(map[string]int64, len(products))
	for _, p := range products {
		prices[p.ID] = p.Price
	}

	cart := make([]models.CartLine, len(lines))
	for i, l := range lines {
		price, ok := prices[l.ProductRef]
		if !ok {
			return nil, &InvalidLineItemError{ProductRef: l.ProductRef, Reason: "unknown product"}
		}
		cart[i] = models.CartLine{ProductRef: l.ProductRef, UnitPrice: price, Quantity: l.Quantity}
	}
	return cart, nil
}

func newOrder(ownerUserID string, q *Quote, method models.PaymentMethod, status models.PaymentStatus, ref string) *models.Order {
	lines := make([]models.OrderLine, len(q.Lines))
	for i, l := range q.Lines {
		lines[i] = models.OrderLine{ProductRef: l.ProductRef, Quantity: l.Quantity, UnitPrice: l.UnitPrice}
	}
	return &models.Order{
		ID:                 uuid.New().String(),
		OwnerUserID:        ownerUserID,
		Lines:              lines,
		Subtotal:           q.Subtotal,
		Discount:           q.Discount,
		TotalAmount:        q.Total,
		CouponCode:         q.CouponCode,
		PaymentMethod:      method,
		PaymentStatus:      status,
		ExternalPaymentRef: ref,
	}
}
