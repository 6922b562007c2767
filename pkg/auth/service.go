// Package auth provides account registration, password login and JWT
// validation for the HTTP API.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	apperrors "hireprep-server/pkg/errors"
	"hireprep-server/pkg/store"
)

// bcryptCost is the cost factor for bcrypt hashing (10-14 recommended for production)
const bcryptCost = 12

// dummyHash is compared against on unknown accounts so login latency
// does not reveal whether an email exists.
const dummyHash = "$2a$12$dummy.hash.for.timing.attack.prevention"

// Claims represents JWT claims
type Claims struct {
	UserID string `json:"user_id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

// LoginResult carries the authenticated account and its session token.
type LoginResult struct {
	User      *store.User `json:"user"`
	Token     string      `json:"token"`
	ExpiresAt int64       `json:"expires_at"`
	TokenType string      `json:"token_type"`
}

// Service authenticates users against the account store.
type Service struct {
	store       *store.UserStore
	secretKey   []byte
	issuer      string
	tokenExpiry time.Duration
	logger      *logrus.Entry
}

// NewService creates an authentication service. An empty secret generates
// a random key that will not persist across restarts.
func NewService(users *store.UserStore, secretKey, issuer string, tokenExpiry time.Duration, logger *logrus.Logger) *Service {
	entry := logger.WithField("component", "auth")

	var secret []byte
	if secretKey != "" {
		secret = []byte(secretKey)
	} else {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			entry.WithError(err).Error("Failed to generate JWT secret")
		}
		entry.Warning("No JWT secret provided, using generated key")
	}

	return &Service{
		store:       users,
		secretKey:   secret,
		issuer:      issuer,
		tokenExpiry: tokenExpiry,
		logger:      entry,
	}
}

// Register creates an account with a bcrypt-hashed password. A duplicate
// email yields ErrAlreadyExists.
func (s *Service) Register(ctx context.Context, name, email, password string) (*store.User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return nil, apperrors.ErrInvalidInput
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		s.logger.WithError(err).WithField("email", email).Error("Failed to hash password")
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user, err := s.store.CreateUser(ctx, name, email, string(hashed))
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"user_id": user.ID,
		"email":   email,
	}).Info("User registered")

	return user, nil
}

// Login verifies the password and issues a JWT for the account.
func (s *Service) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	email = strings.TrimSpace(strings.ToLower(email))

	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		// Burn a bcrypt comparison to keep response time consistent
		_ = bcrypt.CompareHashAndPassword([]byte(dummyHash), []byte(password))
		return nil, apperrors.ErrUnauthenticated
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		s.logger.WithField("email", email).Warn("Failed login attempt - invalid password")
		return nil, apperrors.ErrUnauthenticated
	}

	token, expiresAt, err := s.generateToken(user)
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"user_id": user.ID,
		"email":   email,
	}).Info("User login successful")

	return &LoginResult{
		User:      user,
		Token:     token,
		ExpiresAt: expiresAt,
		TokenType: "Bearer",
	}, nil
}

// ValidateToken validates a JWT and returns its claims. A "Bearer " prefix
// is tolerated.
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	tokenString = strings.TrimPrefix(tokenString, "Bearer ")

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secretKey, nil
	})
	if err != nil {
		return nil, err
	}

	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	claims, ok := token.Claims.(*Claims)
	if !ok {
		return nil, fmt.Errorf("invalid token claims")
	}

	if claims.Issuer != s.issuer {
		return nil, fmt.Errorf("invalid issuer")
	}

	return claims, nil
}

func (s *Service) generateToken(user *store.User) (string, int64, error) {
	now := time.Now()
	expiresAt := now.Add(s.tokenExpiry)

	claims := &Claims{
		UserID: strconv.FormatInt(user.ID, 10),
		Name:   user.Name,
		Email:  user.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   strconv.FormatInt(user.ID, 10),
			Audience:  []string{"hireprep-api"},
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			NotBefore: jwt.NewNumericDate(now),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        s.generateJTI(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secretKey)
	if err != nil {
		return "", 0, err
	}
	return signed, expiresAt.Unix(), nil
}

func (s *Service) generateJTI() string {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		s.logger.WithError(err).Error("Failed to generate JWT ID")
	}
	return hex.EncodeToString(bytes)
}
