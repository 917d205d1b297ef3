package utils

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"recognition-review-backend/pkg/models"
)

const tokenTypeAccess = "access"

// JWTService JWT服务
type JWTService struct {
	secretKey []byte
	ttl       time.Duration
}

// NewJWTService 创建JWT服务
func NewJWTService(secretKey string, ttl time.Duration) *JWTService {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &JWTService{
		secretKey: []byte(secretKey),
		ttl:       ttl,
	}
}

// GenerateAccessToken 为审核人或组织干部签发访问令牌
func (j *JWTService) GenerateAccessToken(actor *models.Actor) (string, int64, error) {
	if actor == nil || actor.ID == "" {
		return "", 0, fmt.Errorf("actor id is required")
	}
	now := time.Now()
	expiry := now.Add(j.ttl)

	claims := &models.TokenClaims{
		ActorID:   actor.ID,
		Name:      actor.Name,
		Role:      actor.Role,
		OwnerKind: actor.Owner.Kind,
		OwnerID:   actor.Owner.ID,
		Type:      tokenTypeAccess,
		Exp:       expiry.Unix(),
		Iat:       now.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(j.secretKey)
	if err != nil {
		return "", 0, fmt.Errorf("failed to generate access token: %w", err)
	}

	return tokenString, expiry.Unix(), nil
}

// ValidateToken 验证令牌
func (j *JWTService) ValidateToken(tokenString string) (*models.TokenClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &models.TokenClaims{}, func(token *jwt.Token) (interface{}, error) {
		// 验证签名方法
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return j.secretKey, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	claims, ok := token.Claims.(*models.TokenClaims)
	if !ok {
		return nil, fmt.Errorf("invalid token claims")
	}
	if claims.Type != tokenTypeAccess {
		return nil, fmt.Errorf("invalid token type: %s", claims.Type)
	}
	if claims.ActorID == "" {
		return nil, fmt.Errorf("token has no actor")
	}
	if time.Now().Unix() > claims.Exp {
		return nil, fmt.Errorf("token expired")
	}

	return claims, nil
}
