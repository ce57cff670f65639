// Package identity runs the KYC upgrade flow: an external document check
// followed by a tier change on the holder's limits.
package identity

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/walletcore-backend/internal/audit"
	"github.com/angelmondragon/walletcore-backend/pkg/db/models"
	"github.com/angelmondragon/walletcore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/walletcore-backend/pkg/errors"
	"github.com/angelmondragon/walletcore-backend/pkg/logger"
)

type limitSetter interface {
	Get(ctx context.Context, userID uuid.UUID) (*models.UserLimits, error)
	SetKYCLevel(ctx context.Context, userID uuid.UUID, level enums.KYCLevel) (enums.KYCLevel, error)
}

type profileStore interface {
	UpdateRiskFlags(ctx context.Context, userID uuid.UUID, flags []string, verifiedAt time.Time) error
}

// UpgradeInput requests a KYC verification for a holder.
type UpgradeInput struct {
	UserID       uuid.UUID
	IDNumber     string
	PersonalData PersonalData
	IPAddress    string
}

// Outcome reports what the upgrade did. Previous equals Level when the
// verified tier was not above the current one.
type Outcome struct {
	Verified  bool
	Previous  enums.KYCLevel
	Level     enums.KYCLevel
	RiskFlags []string
}

type Service struct {
	verifier Verifier
	limits   limitSetter
	profiles profileStore
	auditor  audit.Recorder
	logg     *logger.Logger
	now      func() time.Time
}

type ServiceParams struct {
	Verifier Verifier
	Limits   limitSetter
	Profiles profileStore
	Auditor  audit.Recorder
	Logger   *logger.Logger
	Now      func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Verifier == nil {
		return nil, errors.New("identity verifier required")
	}
	if params.Limits == nil {
		return nil, errors.New("limits service required")
	}
	if params.Profiles == nil {
		return nil, errors.New("profile store required")
	}
	if params.Auditor == nil {
		return nil, errors.New("audit recorder required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		verifier: params.Verifier,
		limits:   params.Limits,
		profiles: params.Profiles,
		auditor:  params.Auditor,
		logg:     params.Logger,
		now:      now,
	}, nil
}

// Upgrade verifies the holder and raises their tier. A negative answer or an
// unreachable verifier leaves the KYC state untouched. Tiers never go down
// through this path.
func (s *Service) Upgrade(ctx context.Context, input UpgradeInput) (*Outcome, error) {
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	idNumber := strings.TrimSpace(input.IDNumber)
	if idNumber == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "id number required")
	}
	if strings.TrimSpace(input.PersonalData.FullName) == "" || strings.TrimSpace(input.PersonalData.DateOfBirth) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "full name and date of birth required")
	}

	current, err := s.currentLevel(ctx, input.UserID)
	if err != nil {
		return nil, err
	}

	result, err := s.verifier.Verify(ctx, idNumber, input.PersonalData)
	if err != nil {
		if s.logg != nil {
			s.logg.Error(s.logg.WithUserID(ctx, input.UserID.String()), "identity verifier unavailable", err)
		}
		s.recordFailure(ctx, input, current, "verifier_unavailable")
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "identity verification unavailable")
	}
	if !result.Verified || result.KYCLevel == enums.KYCLevelUnverified {
		s.recordFailure(ctx, input, current, "not_verified")
		return &Outcome{Verified: false, Previous: current, Level: current}, nil
	}

	outcome := &Outcome{Verified: true, Previous: current, Level: current, RiskFlags: result.RiskFlags}
	if result.KYCLevel > current {
		previous, err := s.limits.SetKYCLevel(ctx, input.UserID, result.KYCLevel)
		if err != nil {
			return nil, err
		}
		outcome.Previous = previous
		outcome.Level = result.KYCLevel
	}

	flags := result.RiskFlags
	if flags == nil {
		flags = []string{}
	}
	if err := s.profiles.UpdateRiskFlags(ctx, input.UserID, flags, s.now().UTC()); err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update risk flags")
		}
		if s.logg != nil {
			s.logg.Warn(s.logg.WithUserID(ctx, input.UserID.String()), "verified holder has no customer profile")
		}
	}

	userID := input.UserID
	s.auditor.Record(ctx, audit.Event{
		UserID:     &userID,
		Action:     enums.AuditActionKYCLevelChanged,
		EntityType: enums.AuditEntityUserLimits,
		EntityID:   userID.String(),
		OldValues:  map[string]any{"kyc_level": int(outcome.Previous)},
		NewValues:  map[string]any{"kyc_level": int(outcome.Level), "risk_flags": flags},
		IPAddress:  input.IPAddress,
	})
	return outcome, nil
}

func (s *Service) currentLevel(ctx context.Context, userID uuid.UUID) (enums.KYCLevel, error) {
	row, err := s.limits.Get(ctx, userID)
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
			return enums.KYCLevelUnverified, nil
		}
		return 0, err
	}
	return row.KYCLevel, nil
}

func (s *Service) recordFailure(ctx context.Context, input UpgradeInput, current enums.KYCLevel, reason string) {
	userID := input.UserID
	s.auditor.Record(ctx, audit.Event{
		UserID:     &userID,
		Action:     enums.AuditActionKYCVerificationFailed,
		EntityType: enums.AuditEntityCustomerProfile,
		EntityID:   userID.String(),
		NewValues:  map[string]any{"reason": reason, "kyc_level": int(current)},
		IPAddress:  input.IPAddress,
	})
}
