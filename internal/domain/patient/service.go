// Package patient looks up or registers the patient behind a walk-in
// appointment, keyed by normalized phone number.
package patient

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/nyaruka/phonenumbers"

	"github.com/clinicdesk/clinicdesk/internal/platform/apperror"
)

type Service struct {
	repo   Repository
	region string
}

// NewService returns a service that parses local numbers as belonging to
// region (ISO 3166 alpha-2, e.g. "PH").
func NewService(repo Repository, region string) *Service {
	return &Service{repo: repo, region: strings.ToUpper(region)}
}

// NormalizePhone returns phone in E.164 form.
func (s *Service) NormalizePhone(phone string) (string, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return "", apperror.Validation("phone", "is required")
	}
	num, err := phonenumbers.Parse(phone, s.region)
	if err != nil || !phonenumbers.IsValidNumber(num) {
		return "", apperror.Validation("phone", "is not a valid phone number")
	}
	return phonenumbers.Format(num, phonenumbers.E164), nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return s.repo.GetByID(ctx, id)
}

// FindOrCreate returns the patient registered under req.Phone, registering
// one when none exists. It runs in the caller's transaction.
func (s *Service) FindOrCreate(ctx context.Context, req Request) (*Patient, error) {
	name := strings.TrimSpace(req.FullName)
	if name == "" {
		return nil, apperror.Validation("full_name", "is required")
	}
	phone, err := s.NormalizePhone(req.Phone)
	if err != nil {
		return nil, err
	}

	existing, err := s.repo.GetByPhone(ctx, phone)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, apperror.ErrNotFound) {
		return nil, err
	}

	p := &Patient{FullName: name, Phone: phone, Email: req.Email}
	created, err := s.repo.Create(ctx, p)
	if err != nil {
		return nil, err
	}
	if !created {
		// registered concurrently between the lookup and the insert
		return s.repo.GetByPhone(ctx, phone)
	}
	return p, nil
}
