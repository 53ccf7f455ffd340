package service

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/citeflex/citeledger/internal/audit/domain"
	"github.com/citeflex/citeledger/internal/clock"
	userdomain "github.com/citeflex/citeledger/internal/user/domain"
	"github.com/citeflex/citeledger/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	AuditSvc auditdomain.Service
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	auditSvc auditdomain.Service
}

func NewService(p Params) userdomain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("user.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		auditSvc: p.AuditSvc,
	}
}

func (s *Service) Create(ctx context.Context, req userdomain.CreateRequest) (*userdomain.User, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, userdomain.ErrInvalidEmail
	}

	tier := req.Tier
	if tier == "" {
		tier = userdomain.TierFree
	}
	if !tier.Valid() {
		return nil, userdomain.ErrInvalidTier
	}

	region := strings.TrimSpace(req.Region)
	if region == "" {
		region = "us-east-1"
	}

	now := s.clock.Now()
	user := userdomain.User{
		ID:        s.genID.Generate(),
		Email:     email,
		Tier:      tier,
		Region:    region,
		Status:    userdomain.StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, userdomain.ErrAlreadyExists
		}
		return nil, err
	}
	return &user, nil
}

func (s *Service) GetByID(ctx context.Context, id snowflake.ID) (*userdomain.User, error) {
	if id == 0 {
		return nil, userdomain.ErrInvalidUser
	}

	var user userdomain.User
	err := s.db.WithContext(ctx).
		Where("id = ? AND status = ?", id, userdomain.StatusActive).
		First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, userdomain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *Service) Tombstone(ctx context.Context, id snowflake.ID) error {
	if id == 0 {
		return userdomain.ErrInvalidUser
	}

	now := s.clock.Now()
	result := s.db.WithContext(ctx).Exec(
		`UPDATE users SET status = ?, tombstoned_at = ?, updated_at = ? WHERE id = ? AND status = ?`,
		userdomain.StatusTombstoned,
		now,
		now,
		id,
		userdomain.StatusActive,
	)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return userdomain.ErrNotFound
	}

	if _, err := s.auditSvc.Record(ctx, auditdomain.RecordRequest{
		Action:       auditdomain.ActionUserTombstone,
		ResourceType: "user",
		ResourceID:   id.String(),
		Outcome:      auditdomain.OutcomeSuccess,
		Severity:     auditdomain.SeverityHigh,
		Actor:        id.String(),
	}); err != nil {
		s.log.Warn("failed to audit user tombstone", zap.Error(err))
	}
	return nil
}
