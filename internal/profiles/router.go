package profiles

import (
	"context"
	"errors"

	"github.com/shifohub/patient-comms/internal/phone"
	"github.com/shifohub/patient-comms/pkg/logging"
)

type routerStore interface {
	FindByRole(ctx context.Context, accountID, role string) (*ProfileRecord, error)
	FindGlobalAdmin(ctx context.Context) (*ProfileRecord, error)
}

// DoctorRouter resolves the clinician responsible for a patient. Resolution
// order: account admin, account doctor, any admin at all, and finally the
// fixed default contact. It never returns an empty contact.
type DoctorRouter struct {
	store          routerStore
	defaultContact string
	logger         *logging.Logger
}

// NewDoctorRouter builds the router. defaultContact is the value of last
// resort shown when no admin profile exists anywhere.
func NewDoctorRouter(store routerStore, defaultContact string, logger *logging.Logger) *DoctorRouter {
	if store == nil {
		panic("profiles: router store cannot be nil")
	}
	if defaultContact == "" {
		panic("profiles: default contact cannot be empty")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &DoctorRouter{store: store, defaultContact: defaultContact, logger: logger}
}

// Resolve returns the contact for the clinician responsible for the given
// account scope. accountID may be empty for legacy records.
func (r *DoctorRouter) Resolve(ctx context.Context, accountID string) Contact {
	if accountID != "" {
		for _, role := range []string{RoleAdmin, RoleDoctor} {
			rec, err := r.store.FindByRole(ctx, accountID, role)
			if err == nil {
				return contactFor(rec)
			}
			if !errors.Is(err, ErrNotFound) {
				r.logger.Error("doctor lookup failed", "error", err, "account_id", accountID, "role", role)
			}
		}
	}

	rec, err := r.store.FindGlobalAdmin(ctx)
	if err == nil {
		r.logger.Warn("doctor routing fell back to global admin", "account_id", accountID)
		return contactFor(rec)
	}
	if !errors.Is(err, ErrNotFound) {
		r.logger.Error("global admin lookup failed", "error", err)
	}

	r.logger.Warn("doctor routing fell back to default contact", "account_id", accountID)
	return Contact{Name: "Clinic", Link: r.defaultContact}
}

func contactFor(rec *ProfileRecord) Contact {
	if rec.ChatHandle != "" {
		return Contact{Name: rec.FullName, Link: "https://t.me/" + rec.ChatHandle}
	}
	return Contact{Name: rec.FullName, Link: "tel:+" + phone.Canonical(rec.Phone)}
}
