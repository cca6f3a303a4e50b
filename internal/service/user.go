package service

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/d60-Lab/social-feed/internal/model"
	"github.com/d60-Lab/social-feed/internal/repository"
	"github.com/d60-Lab/social-feed/pkg/feederr"
)

// UserService 注册/登录/资料读取；资料读取带三个冗余计数器
type UserService struct {
	users     repository.UserRepository
	jwtSecret []byte
	tokenTTL  time.Duration
}

func NewUserService(users repository.UserRepository, jwtSecret string, tokenTTL time.Duration) *UserService {
	if tokenTTL <= 0 {
		tokenTTL = 24 * time.Hour
	}
	return &UserService{users: users, jwtSecret: []byte(jwtSecret), tokenTTL: tokenTTL}
}

// Register 创建用户，密码 bcrypt 入库
func (s *UserService) Register(ctx context.Context, username, email, password string) (string, error) {
	if username == "" || email == "" || password == "" {
		return "", feederr.Invalid("username, email and password are required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	u := &model.User{
		ID:       uuid.New().String(),
		Username: username,
		Email:    email,
		Password: string(hash),
	}
	if err := s.users.Create(ctx, u); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return "", feederr.Invalid("username or email already taken")
		}
		return "", feederr.FromDB("create user", err)
	}
	return u.ID, nil
}

// Login 校验密码并签发 JWT
func (s *UserService) Login(ctx context.Context, email, password string) (string, error) {
	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", feederr.Forbidden("invalid credentials")
		}
		return "", feederr.FromDB("load user", err)
	}
	if u.DeactivatedAt != nil {
		return "", feederr.Forbidden("account deactivated")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(password)); err != nil {
		return "", feederr.Forbidden("invalid credentials")
	}

	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   u.ID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
	})
	return token.SignedString(s.jwtSecret)
}

// Profile 用户公开资料
type Profile struct {
	ID             string `json:"id"`
	Username       string `json:"username"`
	Bio            string `json:"bio"`
	ImageURL       string `json:"image_url"`
	PostsCount     int64  `json:"posts_count"`
	FollowersCount int64  `json:"followers_count"`
	FollowingCount int64  `json:"following_count"`
}

// Get 读取资料；计数器读的是冗余值，不做实时重算
func (s *UserService) Get(ctx context.Context, id string) (*Profile, error) {
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, feederr.FromDB("load user", err)
	}
	return &Profile{
		ID:             u.ID,
		Username:       u.Username,
		Bio:            u.Bio,
		ImageURL:       u.ImageURL,
		PostsCount:     u.PostsCount,
		FollowersCount: u.FollowersCount,
		FollowingCount: u.FollowingCount,
	}, nil
}
