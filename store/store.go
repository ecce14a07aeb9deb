// Package store persists payment records. Every status write is a
// compare-and-update so concurrent verify and webhook paths cannot regress a
// completed payment.
package store

import (
	"context"
	"errors"
	"time"

	"payment-gateway/models"
)

var (
	ErrNotFound           = errors.New("payment not found")
	ErrDuplicateReference = errors.New("payment reference already exists")
	// ErrStatusConflict means the record's current status is one the update
	// was told to leave alone.
	ErrStatusConflict = errors.New("payment status changed concurrently")
)

// Update lists the mutable fields of a record; nil fields are left as is.
type Update struct {
	Status            *models.Status
	ProviderReference *string
	AuthorizationURL  *string
	Error             *string
	PaidAt            *time.Time
	VerifiedAt        *time.Time
	// ExpectNot rejects the update with ErrStatusConflict when the stored
	// status is any of these.
	ExpectNot []models.Status
}

// PaymentStore is implemented by the memory, Postgres and MongoDB backends.
type PaymentStore interface {
	// Create inserts rec, returning ErrDuplicateReference when its reference
	// is taken.
	Create(ctx context.Context, rec *models.PaymentRecord) error
	FindByID(ctx context.Context, id string) (*models.PaymentRecord, error)
	FindByReference(ctx context.Context, reference string) (*models.PaymentRecord, error)
	// Update applies u atomically and returns the resulting record.
	Update(ctx context.Context, id string, u Update) (*models.PaymentRecord, error)
	// List returns newest first, plus the total count matching filter.
	List(ctx context.Context, filter models.ListFilter, limit, skip int) ([]*models.PaymentRecord, int64, error)
	Close(ctx context.Context) error
}

// StatusOf is shorthand for building an Update.
func StatusOf(s models.Status) *models.Status { return &s }

func blocked(current models.Status, expectNot []models.Status) bool {
	for _, s := range expectNot {
		if s == current {
			return true
		}
	}
	return false
}

// apply copies u's non-nil fields onto rec.
func apply(rec *models.PaymentRecord, u Update, now time.Time) {
	if u.Status != nil {
		rec.Status = *u.Status
	}
	if u.ProviderReference != nil {
		v := *u.ProviderReference
		rec.ProviderReference = &v
	}
	if u.AuthorizationURL != nil {
		v := *u.AuthorizationURL
		rec.AuthorizationURL = &v
	}
	if u.Error != nil {
		v := *u.Error
		rec.Error = &v
	}
	if u.PaidAt != nil {
		v := *u.PaidAt
		rec.PaidAt = &v
	}
	if u.VerifiedAt != nil {
		v := *u.VerifiedAt
		rec.VerifiedAt = &v
	}
	rec.UpdatedAt = now
}
