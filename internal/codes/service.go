package codes

import (
	"context"
	"errors"
	"log/slog"

	"github.com/summitsafety/academy/internal/catalog"
	"github.com/summitsafety/academy/internal/enrollment"
)

// RepositoryPort defines data access methods for access codes.
type RepositoryPort interface {
	Insert(ctx context.Context, code AccessCode) error
	GetByCode(ctx context.Context, code string) (*AccessCode, error)
	ListByCompany(ctx context.Context, companyID string) ([]AccessCode, error)
	Redeem(ctx context.Context, code, userID string) (*AccessCode, error)
	Reactivate(ctx context.Context, code string) error
	Revoke(ctx context.Context, code string) error
}

// CompanyReader resolves the company that owns a code pool.
type CompanyReader interface {
	GetCompany(ctx context.Context, id string) (*catalog.Company, error)
	RecordCodesIssued(ctx context.Context, companyID string, count int) error
}

// Enroller grants the enrollment a successful redemption pays for.
type Enroller interface {
	RegisterDirect(ctx context.Context, input enrollment.DirectInput) (*enrollment.Record, error)
}

const (
	maxGenerateQuantity = 50
	// collision re-draws before giving up; with an 8-char suffix over a
	// 32-symbol alphabet hitting this means the RNG is broken.
	maxDrawAttempts = 5
)

// Service generates and redeems corporate access codes. Each company's code
// pool is an independent partition; there is no cross-company invariant.
type Service struct {
	logger    *slog.Logger
	repo      RepositoryPort
	companies CompanyReader
	enroller  Enroller
}

// NewService builds Service instance.
func NewService(logger *slog.Logger, repo RepositoryPort, companies CompanyReader, enroller Enroller) *Service {
	return &Service{logger: logger, repo: repo, companies: companies, enroller: enroller}
}

// GenerateCodes cuts a batch of unique codes for a company. Quantity is
// bounded to keep a typo from minting thousands of tokens.
func (s *Service) GenerateCodes(ctx context.Context, companyID string, quantity int) ([]AccessCode, error) {
	if quantity < 1 || quantity > maxGenerateQuantity {
		return nil, ErrInvalidQuantity
	}

	company, err := s.companies.GetCompany(ctx, companyID)
	if err != nil {
		return nil, err
	}

	out := make([]AccessCode, 0, quantity)
	for i := 0; i < quantity; i++ {
		code, err := s.insertFresh(ctx, company)
		if err != nil {
			return nil, err
		}
		out = append(out, *code)
	}

	if err := s.companies.RecordCodesIssued(ctx, companyID, quantity); err != nil {
		s.logger.Error("record codes issued", slog.Any("error", err), slog.String("company_id", companyID))
	}
	return out, nil
}

func (s *Service) insertFresh(ctx context.Context, company *catalog.Company) (*AccessCode, error) {
	for attempt := 0; attempt < maxDrawAttempts; attempt++ {
		raw, err := newCode(company.ShortCode)
		if err != nil {
			return nil, err
		}
		code := AccessCode{
			Code:      raw,
			CompanyID: company.ID,
			CourseID:  company.CourseID,
			Status:    StatusActive,
		}
		err = s.repo.Insert(ctx, code)
		if errors.Is(err, ErrCodeCollision) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return &code, nil
	}
	return nil, ErrCodeCollision
}

// RedemptionResult reports what a redeemed code granted.
type RedemptionResult struct {
	Code      AccessCode
	CompanyID string
	CourseID  string
}

// RedeemCode consumes a code for a user and grants the company's course
// enrollment. The guarded status update makes concurrent attempts on the same
// code settle to exactly one winner; if the follow-up enrollment fails the
// code goes back to the pool so the user can retry.
func (s *Service) RedeemCode(ctx context.Context, code, userID, email string) (*RedemptionResult, error) {
	if code == "" {
		return nil, ErrCodeNotFound
	}

	redeemed, err := s.repo.Redeem(ctx, code, userID)
	if err != nil {
		return nil, err
	}

	if _, err := s.enroller.RegisterDirect(ctx, enrollment.DirectInput{
		UserID:   userID,
		CourseID: redeemed.CourseID,
		Email:    email,
	}); err != nil {
		if reErr := s.repo.Reactivate(ctx, code); reErr != nil {
			s.logger.Error("reactivate code after failed enrollment", slog.Any("error", reErr), slog.String("code", code))
		}
		return nil, err
	}

	return &RedemptionResult{
		Code:      *redeemed,
		CompanyID: redeemed.CompanyID,
		CourseID:  redeemed.CourseID,
	}, nil
}

// RevokeCode withdraws an unredeemed code.
func (s *Service) RevokeCode(ctx context.Context, code string) error {
	return s.repo.Revoke(ctx, code)
}

// ListByCompany returns all codes cut for a company.
func (s *Service) ListByCompany(ctx context.Context, companyID string) ([]AccessCode, error) {
	return s.repo.ListByCompany(ctx, companyID)
}
