package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"NoteFlow/backend/go/internal/models"
	"NoteFlow/backend/go/internal/user_service/store"

	"github.com/go-redis/redis/v8"
	"github.com/golang-jwt/jwt"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// ErrUsernameTaken 表示注册时用户名已被占用，API 层映射为 409。
var ErrUsernameTaken = errors.New("该用户名已被注册")

// ErrInvalidCredentials 表示用户名或密码错误，API 层映射为 401。
// 两种情况共用同一个错误，避免泄露用户名是否存在。
var ErrInvalidCredentials = errors.New("用户名或密码错误")

// Service 封装了用户注册、登录和会话管理的业务逻辑。
// 登录成功后会在 Redis 里写一份 "session:{userID}" 镜像，
// 登出时删除它，这样已签发但未过期的 JWT 也能立即失效。
type Service struct {
	store     *store.Store
	redis     *redis.Client
	jwtSecret []byte
	tokenTTL  time.Duration
}

// NewService 创建一个新的 Service 实例。
func NewService(s *store.Store, rdb *redis.Client, jwtSecret string, tokenTTLSeconds int) *Service {
	return &Service{
		store:     s,
		redis:     rdb,
		jwtSecret: []byte(jwtSecret),
		tokenTTL:  time.Duration(tokenTTLSeconds) * time.Second,
	}
}

// --- User Registration & Login ---

// Register 处理新用户注册。用户名冲突时返回 ErrUsernameTaken。
func (s *Service) Register(username, password string) (*models.User, error) {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("密码哈希失败: %w", err)
	}

	user := &models.User{
		Username: username,
		Password: string(hashedPassword),
		Status:   models.StatusActive,
	}

	// 不做先查再插：并发注册同名用户时靠唯一索引兜底。
	if err := s.store.CreateUser(user); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrUsernameTaken
		}
		return nil, err
	}
	return user, nil
}

// Login 校验用户名和密码，成功后签发 JWT 并在 Redis 写入会话镜像。
func (s *Service) Login(ctx context.Context, username, password string) (string, *models.User, error) {
	user, err := s.store.GetUserByUsername(username)
	if err != nil {
		return "", nil, err
	}
	if user == nil {
		return "", nil, ErrInvalidCredentials
	}

	if err = bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return "", nil, ErrInvalidCredentials
	}

	token, err := s.generateJWT(user.ID)
	if err != nil {
		return "", nil, err
	}

	if err := s.redis.Set(ctx, sessionKey(user.ID), token, s.tokenTTL).Err(); err != nil {
		return "", nil, fmt.Errorf("写入会话失败: %w", err)
	}

	if err := s.store.TouchLastLogin(user.ID); err != nil {
		// 登录时间只是展示用途，更新失败不阻断登录。
		return token, user, nil
	}
	return token, user, nil
}

// GetUser 按 ID 读取用户资料。
func (s *Service) GetUser(userID uint) (*models.User, error) {
	return s.store.GetUserByID(userID)
}

// Logout 删除用户的 Redis 会话镜像，使当前 JWT 立即失效。
func (s *Service) Logout(ctx context.Context, userID uint) error {
	return s.redis.Del(ctx, sessionKey(userID)).Err()
}

// HasSession 检查用户是否存在有效的会话镜像。
func (s *Service) HasSession(ctx context.Context, userID uint) (bool, error) {
	n, err := s.redis.Exists(ctx, sessionKey(userID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// --- Helpers ---

func sessionKey(userID uint) string {
	return fmt.Sprintf("session:%d", userID)
}

// generateJWT 为指定用户 ID 生成一个新的 JWT。
func (s *Service) generateJWT(userID uint) (string, error) {
	claims := jwt.MapClaims{
		"sub": userID,
		"iss": "NoteFlow_user_service",
		"aud": "NoteFlow_clients",
		"exp": time.Now().Add(s.tokenTTL).Unix(),
		"iat": time.Now().Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	return token.SignedString(s.jwtSecret)
}
