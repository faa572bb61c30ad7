package services

import (
	"encoding/json"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/go-faster/errors"

	"storefront/internal/models"
)

// Card session metadata is capped at 15 keys of 256 characters each.
const (
	maxNoteLen   = 256
	maxCartParts = 10

	noteOwner       = "owner_user_id"
	noteCoupon      = "coupon_code"
	noteDiscountPct = "discount_pct"
	noteCreatedAt   = "created_at"
	noteCartParts   = "cart_parts"
	noteCartPrefix  = "cart_"
)

type intentLine struct {
	Ref   string `json:"r"`
	Price int64  `json:"p"`
	Qty   int    `json:"q"`
}

// encodeIntent flattens a pending intent into session metadata. The cart is
// serialized once and split across cart_N notes.
func encodeIntent(in *models.PendingIntent) (map[string]string, error) {
	if len(in.OwnerUserID) > maxNoteLen || len(in.CouponCode) > maxNoteLen {
		return nil, errors.Wrap(ErrCartTooLarge, "owner or coupon does not fit")
	}

	lines := make([]intentLine, len(in.Lines))
	for i, l := range in.Lines {
		lines[i] = intentLine{Ref: l.ProductRef, Price: l.UnitPrice, Qty: l.Quantity}
	}
	cart, err := json.Marshal(lines)
	if err != nil {
		return nil, errors.Wrap(err, "encode cart")
	}

	chunks := splitNotes(cart)
	if len(chunks) > maxCartParts {
		return nil, errors.Wrapf(ErrCartTooLarge, "%d bytes", len(cart))
	}
	parts := len(chunks)

	md := map[string]string{
		noteOwner:       in.OwnerUserID,
		noteDiscountPct: strconv.Itoa(in.DiscountPercentage),
		noteCreatedAt:   in.CreatedAt.UTC().Format(time.RFC3339),
		noteCartParts:   strconv.Itoa(parts),
	}
	if in.CouponCode != "" {
		md[noteCoupon] = in.CouponCode
	}
	for i, chunk := range chunks {
		md[noteCartPrefix+strconv.Itoa(i)] = chunk
	}
	return md, nil
}

// splitNotes cuts b into pieces of at most maxNoteLen bytes. Cuts never fall
// inside a multi-byte rune, since each note is re-encoded as a string.
func splitNotes(b []byte) []string {
	var chunks []string
	for start := 0; start < len(b); {
		end := start + maxNoteLen
		if end >= len(b) {
			end = len(b)
		} else {
			for end > start && !utf8.RuneStart(b[end]) {
				end--
			}
		}
		chunks = append(chunks, string(b[start:end]))
		start = end
	}
	return chunks
}

// decodeIntent rebuilds a pending intent from session metadata. Metadata we
// did not write is reported as ErrSessionNotFound.
func decodeIntent(sessionID string, md map[string]string) (*models.PendingIntent, error) {
	owner := md[noteOwner]
	if owner == "" {
		return nil, errors.Wrap(ErrSessionNotFound, "metadata without owner")
	}

	pct, err := strconv.Atoi(md[noteDiscountPct])
	if err != nil || pct < 0 || pct > 100 {
		return nil, errors.Wrap(ErrSessionNotFound, "malformed discount")
	}

	parts, err := strconv.Atoi(md[noteCartParts])
	if err != nil || parts < 1 || parts > maxCartParts {
		return nil, errors.Wrap(ErrSessionNotFound, "malformed cart parts")
	}
	var cart []byte
	for i := 0; i < parts; i++ {
		chunk, ok := md[noteCartPrefix+strconv.Itoa(i)]
		if !ok {
			return nil, errors.Wrapf(ErrSessionNotFound, "missing cart part %d", i)
		}
		cart = append(cart, chunk...)
	}
	if !utf8.Valid(cart) {
		return nil, errors.Wrap(ErrSessionNotFound, "cart is not valid UTF-8")
	}
	var lines []intentLine
	if err := json.Unmarshal(cart, &lines); err != nil {
		return nil, errors.Wrap(ErrSessionNotFound, "malformed cart")
	}

	createdAt, _ := time.Parse(time.RFC3339, md[noteCreatedAt])

	out := &models.PendingIntent{
		ExternalRef:        sessionID,
		OwnerUserID:        owner,
		CouponCode:         md[noteCoupon],
		DiscountPercentage: pct,
		CreatedAt:          createdAt,
		Lines:              make([]models.CartLine, len(lines)),
	}
	for i, l := range lines {
		out.Lines[i] = models.CartLine{ProductRef: l.Ref, UnitPrice: l.Price, Quantity: l.Qty}
	}
	return out, nil
}
