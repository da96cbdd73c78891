package otp

import (
	"context"
	"errors"
	"fmt"

	"github.com/shifohub/patient-comms/internal/patients"
	"github.com/shifohub/patient-comms/internal/phone"
	"github.com/shifohub/patient-comms/internal/profiles"
)

type profileFinder interface {
	FindByPhoneVariants(ctx context.Context, variants []string) (*profiles.ProfileRecord, error)
}

type patientFinder interface {
	FindByPhoneVariants(ctx context.Context, variants []string) (*patients.PatientRecord, error)
}

// StoreResolver resolves a phone number against the clinician profile
// collection first and falls back to the patient collection. Staff log in
// to the clinic app with the same flow patients use.
type StoreResolver struct {
	profiles profileFinder
	patients patientFinder
}

// NewStoreResolver builds the two-collection resolver.
func NewStoreResolver(profileStore profileFinder, patientStore patientFinder) *StoreResolver {
	if profileStore == nil || patientStore == nil {
		panic("otp: nil resolver store")
	}
	return &StoreResolver{profiles: profileStore, patients: patientStore}
}

// Resolve returns the owning record's id and bound chat identity.
func (r *StoreResolver) Resolve(ctx context.Context, phoneNumber string) (Subject, error) {
	variants := phone.Variants(phoneNumber)
	if len(variants) == 0 {
		return Subject{}, E(CodeInvalidArgument, "phone number is required")
	}

	prof, err := r.profiles.FindByPhoneVariants(ctx, variants)
	if err == nil {
		return Subject{UserID: prof.ID, ChatID: parseChatID(prof.ChatID)}, nil
	}
	if !errors.Is(err, profiles.ErrNotFound) {
		return Subject{}, fmt.Errorf("otp: profile lookup: %w", err)
	}

	pat, err := r.patients.FindByPhoneVariants(ctx, variants)
	if err == nil {
		return Subject{UserID: pat.ID, ChatID: parseChatID(pat.ChatID)}, nil
	}
	if !errors.Is(err, patients.ErrNotFound) {
		return Subject{}, fmt.Errorf("otp: patient lookup: %w", err)
	}

	return Subject{}, E(CodeNotFound, "no account found for this phone number")
}
