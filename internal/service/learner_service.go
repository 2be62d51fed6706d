package service

import (
	"context"
	"errors"
	"log"
	"time"

	"go_4_curriculum_keep/internal/config"
	"go_4_curriculum_keep/internal/model"
	"go_4_curriculum_keep/internal/repository"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type LearnerService interface {
	Register(ctx context.Context, req *model.RegisterRequest) (*model.LearnerResponse, error)
	Login(ctx context.Context, req *model.LoginRequest) (*model.LoginResponse, error)
	GetLearner(ctx context.Context, learnerID uuid.UUID) (*model.LearnerResponse, error)
	DeleteLearner(ctx context.Context, learnerID uuid.UUID) error
}

type learnerService struct {
	db          *gorm.DB
	cfg         *config.Config
	learnerRepo repository.LearnerRepository
	progRepo    repository.ProgressRepository
	subRepo     repository.SubmissionRepository
	valRepo     repository.ValidationRepository
	summaryRepo repository.SummaryRepository
	commentRepo repository.CommentRepository
}

func NewLearnerService(
	db *gorm.DB,
	cfg *config.Config,
	learnerRepo repository.LearnerRepository,
	progRepo repository.ProgressRepository,
	subRepo repository.SubmissionRepository,
	valRepo repository.ValidationRepository,
	summaryRepo repository.SummaryRepository,
	commentRepo repository.CommentRepository,
) LearnerService {
	return &learnerService{
		db:          db,
		cfg:         cfg,
		learnerRepo: learnerRepo,
		progRepo:    progRepo,
		subRepo:     subRepo,
		valRepo:     valRepo,
		summaryRepo: summaryRepo,
		commentRepo: commentRepo,
	}
}

func (s *learnerService) Register(ctx context.Context, req *model.RegisterRequest) (*model.LearnerResponse, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		log.Printf("Error hashing password: %v", err)
		return nil, model.ErrInternalServer
	}

	learner := &model.Learner{
		LearnerID:    uuid.New(),
		Name:         req.Name,
		Email:        req.Email,
		PasswordHash: string(hash),
		IsActive:     true,
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.learnerRepo.Create(ctx, tx, learner)
	})
	if err != nil {
		if errors.Is(err, model.ErrConflict) {
			return nil, model.NewAppError("CONFLICT", "このメールアドレスは既に登録されています", "email", model.ErrConflict)
		}
		log.Printf("Transaction failed for Register: %v", err)
		return nil, model.ErrInternalServer
	}

	return toLearnerResponse(learner), nil
}

func (s *learnerService) Login(ctx context.Context, req *model.LoginRequest) (*model.LoginResponse, error) {
	learner, err := s.learnerRepo.FindByEmail(ctx, s.db, req.Email)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			// メールの存在有無を区別させない
			return nil, model.NewAppError("FORBIDDEN", "メールアドレスまたはパスワードが違います", "", model.ErrForbidden)
		}
		return nil, model.ErrInternalServer
	}
	if !learner.IsActive {
		return nil, model.NewAppError("FORBIDDEN", "このアカウントは無効化されています", "", model.ErrForbidden)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(learner.PasswordHash), []byte(req.Password)); err != nil {
		return nil, model.NewAppError("FORBIDDEN", "メールアドレスまたはパスワードが違います", "", model.ErrForbidden)
	}

	now := time.Now()
	claims := jwt.RegisteredClaims{
		Issuer:    s.cfg.App.Name,
		Subject:   learner.LearnerID.String(),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.JWT.AccessTokenTTL)),
		IssuedAt:  jwt.NewNumericDate(now),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.cfg.JWT.SecretKey))
	if err != nil {
		log.Printf("Error signing access token: %v", err)
		return nil, model.ErrInternalServer
	}

	return &model.LoginResponse{AccessToken: signed}, nil
}

func (s *learnerService) GetLearner(ctx context.Context, learnerID uuid.UUID) (*model.LearnerResponse, error) {
	learner, err := s.learnerRepo.FindByID(ctx, s.db, learnerID)
	if err != nil {
		return nil, err
	}
	return toLearnerResponse(learner), nil
}

// DeleteLearner は学習者とそのインスタンス層のデータを一括で削除します。
// テンプレート層 (タスク・依存・学習目標) と共有コメントには触れません。
func (s *learnerService) DeleteLearner(ctx context.Context, learnerID uuid.UUID) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.learnerRepo.FindByID(ctx, tx, learnerID); err != nil {
			return err
		}
		// validations は submissions 経由で消すため先に処理する
		if err := s.valRepo.DeleteByLearner(ctx, tx, learnerID); err != nil {
			return model.ErrInternalServer
		}
		if err := s.subRepo.DeleteByLearner(ctx, tx, learnerID); err != nil {
			return model.ErrInternalServer
		}
		if err := s.progRepo.DeleteByLearner(ctx, tx, learnerID); err != nil {
			return model.ErrInternalServer
		}
		if err := s.summaryRepo.DeleteByLearner(ctx, tx, learnerID); err != nil {
			return model.ErrInternalServer
		}
		if err := s.commentRepo.DeletePrivateByLearner(ctx, tx, learnerID); err != nil {
			return model.ErrInternalServer
		}
		return s.learnerRepo.Delete(ctx, tx, learnerID)
	})
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return err
		}
		log.Printf("Transaction failed for DeleteLearner: %v", err)
		return model.ErrInternalServer
	}
	return nil
}

func toLearnerResponse(l *model.Learner) *model.LearnerResponse {
	return &model.LearnerResponse{
		LearnerID: l.LearnerID,
		Name:      l.Name,
		Email:     l.Email,
		IsActive:  l.IsActive,
		CreatedAt: l.CreatedAt,
	}
}
