package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/RichardLi88/Waypoint/logging"
	"github.com/RichardLi88/Waypoint/models"
	"github.com/RichardLi88/Waypoint/store"
	"github.com/RichardLi88/Waypoint/utils"
	"go.mongodb.org/mongo-driver/bson"
)

type TokenSettings struct {
	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
}

// AuthService issues access and refresh tokens and keeps one session per
// username.
type AuthService struct {
	db       store.Store
	settings TokenSettings
}

func NewAuthService(db store.Store, settings TokenSettings) *AuthService {
	return &AuthService{db: db, settings: settings}
}

type LoginResult struct {
	Username     string          `json:"username"`
	Role         models.UserRole `json:"role"`
	Name         string          `json:"name"`
	AccessToken  string          `json:"accessToken"`
	RefreshToken string          `json:"-"`
}

func (s *AuthService) RefreshTTL() time.Duration {
	return s.settings.RefreshTTL
}

func (s *AuthService) Login(ctx context.Context, username, password string) (LoginResult, error) {
	if username == "" || password == "" {
		return LoginResult{}, ErrInvalidCredentials
	}
	u, err := findUser(ctx, s.db, bson.M{"username": username})
	if errors.Is(err, ErrUserNotFound) {
		return LoginResult{}, ErrInvalidCredentials
	}
	if err != nil {
		return LoginResult{}, err
	}
	if !utils.CheckPassword(u.Password, password) {
		logging.Logger.Warnf("Event ID: LOGIN_FAILED, Description: Wrong password for %s", username)
		return LoginResult{}, ErrInvalidCredentials
	}

	access, err := utils.GenerateToken([]byte(s.settings.AccessSecret), u.Username, string(u.Role), s.settings.AccessTTL)
	if err != nil {
		return LoginResult{}, fmt.Errorf("sign access token: %w", err)
	}
	refresh, err := utils.GenerateToken([]byte(s.settings.RefreshSecret), u.Username, string(u.Role), s.settings.RefreshTTL)
	if err != nil {
		return LoginResult{}, fmt.Errorf("sign refresh token: %w", err)
	}

	err = s.db.Sessions().UpsertOne(ctx,
		bson.M{"username": u.Username},
		bson.M{"$set": bson.M{"username": u.Username, "refreshToken": refresh}},
	)
	if err != nil {
		return LoginResult{}, fmt.Errorf("store session: %w", err)
	}
	logging.Logger.Infof("Event ID: LOGIN_SUCCEEDED, Description: %s logged in", u.Username)

	return LoginResult{
		Username:     u.Username,
		Role:         u.Role,
		Name:         u.Name,
		AccessToken:  access,
		RefreshToken: refresh,
	}, nil
}

// Refresh issues a new access token for a refresh token that matches a
// stored session. The role is read again from the user.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (string, error) {
	if refreshToken == "" {
		return "", fmt.Errorf("%w: not logged in", ErrUnauthorized)
	}
	var session models.Session
	err := s.db.Sessions().FindOne(ctx, bson.M{"refreshToken": refreshToken}, &session)
	if errors.Is(err, store.ErrNotFound) {
		return "", fmt.Errorf("%w: %w", ErrUnauthorized, ErrSessionNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("find session: %w", err)
	}
	claims, err := utils.ValidateToken([]byte(s.settings.RefreshSecret), refreshToken)
	if err != nil || claims.Username != session.Username {
		return "", fmt.Errorf("%w: invalid refresh token", ErrUnauthorized)
	}

	u, err := findUser(ctx, s.db, bson.M{"username": session.Username})
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}
	return utils.GenerateToken([]byte(s.settings.AccessSecret), u.Username, string(u.Role), s.settings.AccessTTL)
}

func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	if _, err := s.db.Sessions().DeleteOne(ctx, bson.M{"refreshToken": refreshToken}); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// Verify turns an access token into the caller's identity.
func (s *AuthService) Verify(accessToken string) (Identity, error) {
	claims, err := utils.ValidateToken([]byte(s.settings.AccessSecret), accessToken)
	if err != nil {
		return Identity{}, err
	}
	return Identity{Username: claims.Username, Role: NormalizeRole(claims.Role)}, nil
}
