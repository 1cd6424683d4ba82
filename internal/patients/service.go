package patients

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"
)

var (
	ErrNotFound        = errors.New("patient not found")
	ErrDuplicatePhone  = errors.New("phone number already registered")
	ErrInvalidArgument = errors.New("invalid argument")
)

var e164 = regexp.MustCompile(`^\+[1-9][0-9]{7,14}$`)

// Repository is the persistence contract for patients.
// Create and Update must return ErrDuplicatePhone on a phone collision and
// leave the store unchanged.
type Repository interface {
	Create(ctx context.Context, p Patient) (Patient, error)
	Get(ctx context.Context, id int64) (Patient, error)
	List(ctx context.Context) ([]Patient, error)
	Update(ctx context.Context, p Patient) (Patient, error)
	Delete(ctx context.Context, id int64) error
}

// CallStore is the slice of the call store the admin surface needs.
type CallStore interface {
	CountByPatient(ctx context.Context) (map[int64]int, error)
	// DeleteByPatient removes a patient's calls with their transcripts and events.
	DeleteByPatient(ctx context.Context, patientID int64) error
}

// Service is the administrative surface for patient records.
type Service struct {
	repo  Repository
	calls CallStore
	clock func() time.Time
}

func NewService(repo Repository, calls CallStore) *Service {
	return &Service{repo: repo, calls: calls, clock: time.Now}
}

func (s *Service) Create(ctx context.Context, req CreateRequest) (Patient, error) {
	p := Patient{
		Name:            strings.TrimSpace(req.Name),
		Phone:           NormalizePhone(req.Phone),
		Age:             req.Age,
		Language:        normalizeLanguage(req.Language),
		CustomQuestions: strings.TrimSpace(req.CustomQuestions),
		PatientType:     normalizeType(req.PatientType),
		CreatedAt:       s.clock().UTC(),
	}
	if err := validate(p); err != nil {
		return Patient{}, err
	}
	return s.repo.Create(ctx, p)
}

func (s *Service) Get(ctx context.Context, id int64) (Patient, error) {
	if id <= 0 {
		return Patient{}, ErrNotFound
	}
	return s.repo.Get(ctx, id)
}

// List returns all patients, newest first, with their call counts.
func (s *Service) List(ctx context.Context) ([]Listing, error) {
	rows, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	counts := map[int64]int{}
	if s.calls != nil {
		if counts, err = s.calls.CountByPatient(ctx); err != nil {
			return nil, err
		}
	}
	out := make([]Listing, 0, len(rows))
	for _, p := range rows {
		out = append(out, Listing{Patient: p, CallCount: counts[p.ID]})
	}
	return out, nil
}

func (s *Service) Update(ctx context.Context, id int64, req UpdateRequest) (Patient, error) {
	p, err := s.Get(ctx, id)
	if err != nil {
		return Patient{}, err
	}
	if req.Name != nil {
		p.Name = strings.TrimSpace(*req.Name)
	}
	if req.Phone != nil {
		p.Phone = NormalizePhone(*req.Phone)
	}
	if req.Age != nil {
		p.Age = req.Age
	}
	if req.Language != nil {
		p.Language = normalizeLanguage(*req.Language)
	}
	if req.CustomQuestions != nil {
		p.CustomQuestions = strings.TrimSpace(*req.CustomQuestions)
	}
	if req.PatientType != nil {
		p.PatientType = normalizeType(*req.PatientType)
	}
	if err := validate(p); err != nil {
		return Patient{}, err
	}
	return s.repo.Update(ctx, p)
}

// Delete removes a patient together with every call, transcript and event
// that belongs to them.
func (s *Service) Delete(ctx context.Context, id int64) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if s.calls != nil {
		if err := s.calls.DeleteByPatient(ctx, id); err != nil {
			return err
		}
	}
	return s.repo.Delete(ctx, id)
}

// NormalizePhone strips common formatting characters from a phone number.
func NormalizePhone(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '(', ')', '.':
			return -1
		}
		return r
	}, strings.TrimSpace(s))
}

func validate(p Patient) error {
	if p.Name == "" {
		return ErrInvalidArgument
	}
	if !e164.MatchString(p.Phone) {
		return ErrInvalidArgument
	}
	if p.Age != nil && (*p.Age < 0 || *p.Age > 150) {
		return ErrInvalidArgument
	}
	if p.Language != LanguageEnglish && p.Language != LanguageHindi {
		return ErrInvalidArgument
	}
	if p.PatientType != TypeOPD && p.PatientType != TypeDischarged {
		return ErrInvalidArgument
	}
	return nil
}

func normalizeLanguage(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return LanguageEnglish
	}
	return s
}

func normalizeType(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return TypeOPD
	}
	return s
}
