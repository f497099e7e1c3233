package service

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/orgpulse/orgpulse_server/config"
	"github.com/orgpulse/orgpulse_server/internal/model/dto"
	"github.com/orgpulse/orgpulse_server/internal/pkg/jwt"
	"github.com/orgpulse/orgpulse_server/internal/repository"
)

var ErrAuthFailed = errors.New("租户认证失败")

type AuthService struct {
	tenants *repository.TenantRepository
	cfg     *config.Config
}

func NewAuthService(tenants *repository.TenantRepository, cfg *config.Config) *AuthService {
	return &AuthService{tenants: tenants, cfg: cfg}
}

// Token 用租户 API Key 换取访问令牌
func (s *AuthService) Token(req *dto.TokenRequest) (*dto.TokenResponse, error) {
	tenant, err := s.tenants.GetByID(req.TenantID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAuthFailed
		}
		return nil, err
	}
	if !tenant.IsActive || tenant.APIKeyHash == "" {
		return nil, ErrAuthFailed
	}

	if err := bcrypt.CompareHashAndPassword([]byte(tenant.APIKeyHash), []byte(req.APIKey)); err != nil {
		return nil, ErrAuthFailed
	}

	token, err := jwt.GenerateToken(tenant.ID, s.cfg.JWT.Secret, s.cfg.JWT.ExpireHours)
	if err != nil {
		return nil, err
	}

	return &dto.TokenResponse{
		Token:     token,
		ExpiresIn: s.cfg.JWT.ExpireHours * 3600,
	}, nil
}

// HashAPIKey 生成 API Key 的 bcrypt 哈希，供租户初始化使用
func HashAPIKey(apiKey string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(apiKey), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
