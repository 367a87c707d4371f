package utils

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenTTL время жизни токена, 3 дня
const TokenTTL = 72 * time.Hour

// Claims содержимое токена
type Claims struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// RoleLookup возвращает текущую роль пользователя из хранилища
type RoleLookup func(ctx context.Context, userID uuid.UUID) (string, error)

// JWTService отвечает за создание и валидацию JWT токенов
type JWTService struct {
	secretKey  []byte
	ttl        time.Duration
	now        func() time.Time
	roleLookup RoleLookup
}

// NewJWTService создаёт новый экземпляр JWTService
func NewJWTService(secretKey string) *JWTService {
	return &JWTService{secretKey: []byte(secretKey), ttl: TokenTTL, now: time.Now}
}

// GenerateToken создаёт JWT токен пользователя с его ролью
func (s *JWTService) GenerateToken(userID uuid.UUID, role string) (string, error) {
	now := s.now()
	claims := Claims{
		UserID: userID.String(),
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secretKey)
}

// ValidateToken проверяет подпись и срок действия токена
func (s *JWTService) ValidateToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return s.secretKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("невалидный токен")
	}
	return claims, nil
}

// ExtractUserID возвращает ID пользователя и роль из токена
func (s *JWTService) ExtractUserID(tokenString string) (uuid.UUID, string, error) {
	claims, err := s.ValidateToken(tokenString)
	if err != nil {
		return uuid.Nil, "", err
	}

	userID, err := uuid.Parse(claims.UserID)
	if err != nil {
		return uuid.Nil, "", fmt.Errorf("неверный ID пользователя в токене: %w", err)
	}
	return userID, claims.Role, nil
}

// SetRoleLookup подключает проверку роли по хранилищу
func (s *JWTService) SetRoleLookup(fn RoleLookup) {
	s.roleLookup = fn
}

// ResolveRole сверяет роль из токена с хранилищем. Без RoleLookup роль из
// токена возвращается как есть.
func (s *JWTService) ResolveRole(ctx context.Context, userID uuid.UUID, tokenRole string) (string, error) {
	if s.roleLookup == nil {
		return tokenRole, nil
	}
	return s.roleLookup(ctx, userID)
}
