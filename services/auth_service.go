package services

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"coursequiz/models"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const tokenTTL = 24 * time.Hour

type AuthService struct {
	db                   *gorm.DB
	jwtSecret            []byte
	instructorSignupCode string
}

// NewAuthService builds the account service. Instructor accounts can only
// be registered with instructorSignupCode; an empty code disables
// instructor sign-up.
func NewAuthService(db *gorm.DB, jwtSecret, instructorSignupCode string) *AuthService {
	return &AuthService{db: db, jwtSecret: []byte(jwtSecret), instructorSignupCode: instructorSignupCode}
}

type RegisterRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Name     string `json:"name" binding:"required"`
	Password string `json:"password" binding:"required,min=8"`
	Role     string `json:"role" binding:"omitempty,oneof=instructor student"`

	// SignupCode is required when Role is instructor.
	SignupCode string `json:"signup_code"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type AuthResponse struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

// Claims carries the authenticated user into request handling.
type Claims struct {
	UserID uint   `json:"user_id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

func (s *AuthService) Register(ctx context.Context, req *RegisterRequest) (*AuthResponse, error) {
	role := req.Role
	if role == "" {
		role = models.RoleStudent
	}
	if role == models.RoleInstructor && !s.validSignupCode(req.SignupCode) {
		return nil, forbidden("instructor sign-up requires a valid signup code")
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))

	var existing models.User
	err := s.db.WithContext(ctx).Where("email = ?", email).First(&existing).Error
	if err == nil {
		return nil, validation("email %s is already registered", email)
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fatal("failed to look up user", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fatal("failed to hash password", err)
	}

	user := models.User{
		Email:        email,
		Name:         req.Name,
		PasswordHash: string(hash),
		Role:         role,
	}
	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		return nil, fatal("failed to create user", err)
	}

	token, err := s.IssueToken(&user)
	if err != nil {
		return nil, err
	}
	return &AuthResponse{Token: token, User: &user}, nil
}

func (s *AuthService) validSignupCode(code string) bool {
	if s.instructorSignupCode == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(code), []byte(s.instructorSignupCode)) == 1
}

func (s *AuthService) Login(ctx context.Context, req *LoginRequest) (*AuthResponse, error) {
	var user models.User
	err := s.db.WithContext(ctx).Where("email = ?", strings.ToLower(strings.TrimSpace(req.Email))).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, forbidden("invalid credentials")
	}
	if err != nil {
		return nil, fatal("failed to look up user", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, forbidden("invalid credentials")
	}

	token, err := s.IssueToken(&user)
	if err != nil {
		return nil, err
	}
	return &AuthResponse{Token: token, User: &user}, nil
}

func (s *AuthService) GetProfile(ctx context.Context, userID uint) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).First(&user, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFound("user %d not found", userID)
	}
	if err != nil {
		return nil, fatal("failed to load user", err)
	}
	return &user, nil
}

func (s *AuthService) IssueToken(user *models.User) (string, error) {
	return IssueToken(s.jwtSecret, user.ID, user.Role, time.Now())
}

// IssueToken signs an HS256 token for the user.
func IssueToken(secret []byte, userID uint, role string, now time.Time) (string, error) {
	claims := &Claims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   fmt.Sprint(userID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", fatal("failed to sign token", err)
	}
	return token, nil
}

// ParseToken validates an HS256 token and returns its claims.
func ParseToken(secret []byte, tokenStr string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}
