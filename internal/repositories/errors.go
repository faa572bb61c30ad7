package repositories

import (
	"strings"

	"github.com/go-faster/errors"
	"gorm.io/gorm"
)

var (
	// ErrNotFound is returned when a looked-up record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicateExternalRef is returned when an order with the same external
	// payment reference already exists.
	ErrDuplicateExternalRef = errors.New("order with this external payment reference already exists")
)

// isDuplicateKey reports whether err is a unique constraint violation. Drivers
// that do not translate errors are matched on their message.
func isDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value")
}
