package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"golang.org/x/crypto/bcrypt"

	"github.com/ignatzorin/workdeal-backend/internal/models"
	"github.com/ignatzorin/workdeal-backend/internal/pkg/apperror"
)

func newAuthService(users *mockUserStore) *AuthService {
	tokenManager := NewTokenManager("access-secret", "refresh-secret", time.Minute, time.Hour)
	return NewAuthService(users, tokenManager)
}

func TestRegister_Success(t *testing.T) {
	ctx := context.Background()
	users := new(mockUserStore)
	svc := newAuthService(users)

	users.On("GetByEmail", ctx, "new@example.com").Return(nil, apperror.ErrUserNotFound)
	users.On("Create", ctx, mock.MatchedBy(func(u *models.User) bool {
		return u.Email == "new@example.com" && u.Role == models.RoleClient &&
			u.Tier == models.TierFree && u.PasswordHash != "password123"
	})).Run(func(args mock.Arguments) {
		args.Get(1).(*models.User).ID = uuid.New()
	}).Return(nil)

	res, err := svc.Register(ctx, RegisterInput{
		Email:    "new@example.com",
		Password: "password123",
		Name:     "Иван",
	})

	assert.NoError(t, err)
	assert.NotEmpty(t, res.TokenPair.AccessToken)
	assert.NotEmpty(t, res.TokenPair.RefreshToken)
	users.AssertExpectations(t)
}

func TestRegister_DuplicateEmail(t *testing.T) {
	ctx := context.Background()
	users := new(mockUserStore)
	svc := newAuthService(users)

	users.On("GetByEmail", ctx, "taken@example.com").Return(&models.User{ID: uuid.New()}, nil)

	_, err := svc.Register(ctx, RegisterInput{
		Email:    "taken@example.com",
		Password: "password123",
	})

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "уже зарегистрирован")
	users.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestRegister_ShortPassword(t *testing.T) {
	ctx := context.Background()
	users := new(mockUserStore)
	svc := newAuthService(users)

	_, err := svc.Register(ctx, RegisterInput{
		Email:    "new@example.com",
		Password: "short",
	})

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "не короче 8 символов")
}

func TestRegister_AdminRoleRejected(t *testing.T) {
	ctx := context.Background()
	users := new(mockUserStore)
	svc := newAuthService(users)

	_, err := svc.Register(ctx, RegisterInput{
		Email:    "new@example.com",
		Password: "password123",
		Role:     models.RoleAdmin,
	})

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "недопустимая роль")
}

func TestLogin_WrongPassword(t *testing.T) {
	ctx := context.Background()
	users := new(mockUserStore)
	svc := newAuthService(users)

	hash, _ := bcrypt.GenerateFromPassword([]byte("correct-password"), bcrypt.DefaultCost)
	users.On("GetByEmail", ctx, "user@example.com").Return(&models.User{
		ID:           uuid.New(),
		Email:        "user@example.com",
		PasswordHash: string(hash),
	}, nil)

	_, err := svc.Login(ctx, LoginInput{Email: "user@example.com", Password: "wrong-password"})

	assert.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.ErrCodeUnauthorized))
}

func TestRefresh_IssuesNewPair(t *testing.T) {
	ctx := context.Background()
	users := new(mockUserStore)
	svc := newAuthService(users)

	user := &models.User{ID: uuid.New(), Role: models.RoleDoer}
	pair, err := svc.tokenManager.GeneratePair(user)
	assert.NoError(t, err)

	users.On("GetByID", ctx, user.ID).Return(user, nil)

	newPair, err := svc.Refresh(ctx, pair.RefreshToken)

	assert.NoError(t, err)
	assert.NotEmpty(t, newPair.AccessToken)

	parsedID, role, err := svc.tokenManager.ParseAccess(newPair.AccessToken)
	assert.NoError(t, err)
	assert.Equal(t, user.ID, parsedID)
	assert.Equal(t, models.RoleDoer, role)
}

func TestSetTier_Success(t *testing.T) {
	ctx := context.Background()
	users := new(mockUserStore)
	svc := newAuthService(users)

	userID := uuid.New()
	users.On("GetByID", ctx, userID).Return(&models.User{ID: userID, Tier: models.TierFree}, nil)
	users.On("UpdateTier", ctx, userID, models.TierPro).Return(nil)

	user, err := svc.SetTier(ctx, userID, models.TierPro)

	assert.NoError(t, err)
	assert.Equal(t, models.TierPro, user.Tier)
	users.AssertExpectations(t)
}

func TestSetTier_UnknownTier(t *testing.T) {
	ctx := context.Background()
	users := new(mockUserStore)
	svc := newAuthService(users)

	_, err := svc.SetTier(ctx, uuid.New(), "platinum")

	assert.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.ErrCodeValidation))
	users.AssertNotCalled(t, "UpdateTier", mock.Anything, mock.Anything, mock.Anything)
}

func TestSetTier_SameTierNoop(t *testing.T) {
	ctx := context.Background()
	users := new(mockUserStore)
	svc := newAuthService(users)

	userID := uuid.New()
	users.On("GetByID", ctx, userID).Return(&models.User{ID: userID, Tier: models.TierPro}, nil)

	user, err := svc.SetTier(ctx, userID, models.TierPro)

	assert.NoError(t, err)
	assert.Equal(t, models.TierPro, user.Tier)
	users.AssertNotCalled(t, "UpdateTier", mock.Anything, mock.Anything, mock.Anything)
}

func TestRefresh_InvalidToken(t *testing.T) {
	ctx := context.Background()
	users := new(mockUserStore)
	svc := newAuthService(users)

	_, err := svc.Refresh(ctx, "not-a-jwt")

	assert.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.ErrCodeUnauthorized))
	users.AssertNotCalled(t, "GetByID", mock.Anything, mock.Anything)
}
