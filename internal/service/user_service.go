package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/Troha7/E-store/internal/entity"
	"github.com/Troha7/E-store/internal/repository"
)

const (
	defaultSessionTTL = 24 * time.Hour
	minCityLength     = 4
)

type JwtCustomClaims struct {
	UserID int64           `json:"uid"`
	Name   string          `json:"name"`
	Email  string          `json:"email"`
	Role   entity.UserRole `json:"role"`
	jwt.RegisteredClaims
}

// IsAdmin reports whether the token was issued to an administrator.
func (c *JwtCustomClaims) IsAdmin() bool {
	return c.Role == entity.RoleAdmin
}

type UserService struct {
	repo       UserServiceStore
	sessions   SessionStore
	secret     []byte
	sessionTTL time.Duration
	now        func() time.Time
}

// NewUserService creates a new instance of UserService.
func NewUserService(repo UserServiceStore, sessions SessionStore, secret string, sessionTTL time.Duration) *UserService {
	if sessionTTL <= 0 {
		sessionTTL = defaultSessionTTL
	}
	return &UserService{
		repo:       repo,
		sessions:   sessions,
		secret:     []byte(secret),
		sessionTTL: sessionTTL,
		now:        time.Now,
	}
}

// GetUserByID retrieves a user by ID together with the address, if any.
func (s *UserService) GetUserByID(ctx context.Context, id int64) (*entity.User, error) {
	user, err := s.repo.GetUserByID(ctx, id)
	if err != nil {
		return nil, fail(err, "Error getting user by ID %d", id)
	}
	if err := s.attachAddress(ctx, user); err != nil {
		return nil, fail(err, "Error getting address of user id=%d", id)
	}
	return user, nil
}

func (s *UserService) FindAllUsers(ctx context.Context) ([]entity.User, error) {
	users, err := s.repo.GetUsers(ctx)
	if err != nil {
		return nil, fail(err, "Error getting users")
	}
	for i := range users {
		if err := s.attachAddress(ctx, &users[i]); err != nil {
			return nil, fail(err, "Error getting address of user id=%d", users[i].ID)
		}
	}
	return users, nil
}

// CreateUser stores a user with the plain password replaced by its bcrypt hash. A user
// without a role becomes a USER.
func (s *UserService) CreateUser(ctx context.Context, user *entity.User, password string) (*entity.User, error) {
	if err := validateUser(user, password); err != nil {
		logger.Warn().Err(err).Msg("Invalid user")
		return nil, err
	}

	hash, err := hashPassword(password)
	if err != nil {
		return nil, err
	}

	user.ID = 0
	user.Password = hash
	if user.Role == "" {
		user.Role = entity.RoleUser
	}
	user.Address = nil
	createdUser, err := s.repo.CreateUser(ctx, user)
	if errors.Is(err, repository.ErrDuplicate) {
		logger.Warn().Msgf("User %s already exists", user.Username)
		return nil, fmt.Errorf("%w: username or email already taken", ErrConflict)
	}
	if err != nil {
		return nil, fail(err, "Error creating user")
	}

	logger.Info().Msgf("User id=%d have been created", createdUser.ID)
	return createdUser, nil
}

// UpdateUser overwrites the user's profile. An empty password keeps the stored hash and an
// empty role keeps the stored role.
func (s *UserService) UpdateUser(ctx context.Context, id int64, user *entity.User, password string) (*entity.User, error) {
	logger.Info().Msgf("Start to update user id=%d", id)

	keepPassword := password == ""
	err := validateProfile(user)
	if err == nil && !keepPassword {
		err = validatePassword(password)
	}
	if err != nil {
		logger.Warn().Err(err).Msg("Invalid user")
		return nil, err
	}

	var updated *entity.User
	err = s.repo.RunInTx(ctx, func(ctx context.Context) error {
		stored, err := s.repo.GetUserByID(ctx, id)
		if err != nil {
			return err
		}

		user.ID = id
		user.Password = stored.Password
		if !keepPassword {
			if user.Password, err = hashPassword(password); err != nil {
				return err
			}
		}
		if user.Role == "" {
			user.Role = stored.Role
		}
		user.Address = nil

		updated, err = s.repo.UpdateUser(ctx, user)
		if err != nil {
			return err
		}
		return s.attachAddress(ctx, updated)
	})
	if errors.Is(err, repository.ErrDuplicate) {
		logger.Warn().Msgf("User %s already exists", user.Username)
		return nil, fmt.Errorf("%w: username or email already taken", ErrConflict)
	}
	if err != nil {
		return nil, fail(err, "Error updating user id=%d", id)
	}

	logger.Info().Msgf("User id=%d have been updated", id)
	return updated, nil
}

// DeleteUser removes the user with the orders and address that belong to it.
func (s *UserService) DeleteUser(ctx context.Context, id int64) error {
	logger.Info().Msgf("Start to delete user by id=%d", id)

	if err := s.repo.DeleteUser(ctx, id); err != nil {
		return fail(err, "Error deleting user id=%d", id)
	}

	logger.Info().Msgf("User id=%d has been deleted", id)
	return nil
}

// AddAddress sets the user's address, replacing the previous one.
func (s *UserService) AddAddress(ctx context.Context, userID int64, address *entity.Address) (*entity.User, error) {
	logger.Info().Msgf("Start to add address to user id=%d", userID)

	if err := validateAddress(address); err != nil {
		logger.Warn().Err(err).Msg("Invalid address")
		return nil, err
	}

	var user *entity.User
	err := s.repo.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		if user, err = s.repo.GetUserByID(ctx, userID); err != nil {
			return err
		}

		address.ID = 0
		address.UserID = userID
		user.Address, err = s.repo.SaveAddress(ctx, address)
		return err
	})
	if err != nil {
		return nil, fail(err, "Error adding address to user id=%d", userID)
	}

	logger.Info().Msgf("Address id=%d has been saved for user id=%d", user.Address.ID, userID)
	return user, nil
}

func (s *UserService) FindAddressByUserID(ctx context.Context, userID int64) (*entity.Address, error) {
	address, err := s.repo.GetAddressByUserID(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fail(fmt.Errorf("%w: address of user id=%d wasn't found", ErrEntityNotFound, userID), "Address of user id=%d wasn't found", userID)
	}
	if err != nil {
		return nil, fail(err, "Error getting address of user id=%d", userID)
	}
	return address, nil
}

// EnsureAdmin makes sure an ADMIN account with this email exists, creating it or promoting
// the existing user.
func (s *UserService) EnsureAdmin(ctx context.Context, username, email, password string) (*entity.User, error) {
	user, err := s.repo.GetUserByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		return s.CreateUser(ctx, &entity.User{Username: username, Email: email, Role: entity.RoleAdmin}, password)
	}
	if err != nil {
		return nil, fail(err, "Error getting user by email %s", email)
	}
	if user.Role == entity.RoleAdmin {
		return user, nil
	}

	logger.Info().Msgf("Promoting user id=%d to %s", user.ID, entity.RoleAdmin)
	user.Role = entity.RoleAdmin
	promoted, err := s.repo.UpdateUser(ctx, user)
	if err != nil {
		return nil, fail(err, "Error promoting user id=%d", user.ID)
	}
	return promoted, nil
}

// Login checks the credentials and returns a signed HS256 token. The token is also stored as
// the user's session, keyed by email.
func (s *UserService) Login(ctx context.Context, email, password string) (string, error) {
	user, err := s.repo.GetUserByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		logger.Warn().Msgf("Login attempt for unknown email %s", email)
		return "", fmt.Errorf("%w: invalid email or password", ErrUnauthorized)
	}
	if err != nil {
		return "", fail(err, "Error getting user by email %s", email)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		logger.Warn().Msgf("Wrong password for %s", email)
		return "", fmt.Errorf("%w: invalid email or password", ErrUnauthorized)
	}

	// After validation, generate JWT token
	claims := &JwtCustomClaims{
		UserID: user.ID,
		Name:   user.Username,
		Email:  user.Email,
		Role:   user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.Username,
			IssuedAt:  jwt.NewNumericDate(s.now()),
			ExpiresAt: jwt.NewNumericDate(s.now().Add(s.sessionTTL)),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		logger.Error().Err(err).Msg("Error signing token")
		return "", err
	}

	if s.sessions != nil {
		if err := s.sessions.Set(ctx, email, token, s.sessionTTL); err != nil {
			logger.Error().Err(err).Msgf("Error storing session of %s", email)
			return "", fmt.Errorf("%w: %w", ErrStorageFailure, err)
		}
	}

	logger.Info().Msgf("User %s logged in", user.Username)
	return token, nil
}

// ValidateSession reports whether token is the live session of email.
func (s *UserService) ValidateSession(ctx context.Context, email, token string) error {
	if s.sessions == nil {
		return fmt.Errorf("%w: sessions are disabled", ErrUnauthorized)
	}

	stored, err := s.sessions.Get(ctx, email)
	if err != nil {
		logger.Error().Err(err).Msgf("Error getting session of %s", email)
		return fmt.Errorf("%w: %w", ErrStorageFailure, err)
	}
	if stored == "" {
		return fmt.Errorf("%w: session not found", ErrUnauthorized)
	}
	if stored != token {
		return fmt.Errorf("%w: session token mismatch", ErrUnauthorized)
	}
	return nil
}

// ValidateToken verifies the token signature and expiry, then checks that it is still the
// live session of the user it was issued to.
func (s *UserService) ValidateToken(ctx context.Context, token string) (*JwtCustomClaims, error) {
	claims := &JwtCustomClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		logger.Warn().Err(err).Msg("Invalid token")
		return nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}

	if err := s.ValidateSession(ctx, claims.Email, token); err != nil {
		return nil, err
	}
	return claims, nil
}

func (s *UserService) attachAddress(ctx context.Context, user *entity.User) error {
	address, err := s.repo.GetAddressByUserID(ctx, user.ID)
	if errors.Is(err, repository.ErrNotFound) {
		user.Address = nil
		return nil
	}
	if err != nil {
		return err
	}
	user.Address = address
	return nil
}

func hashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		logger.Error().Err(err).Msg("Error hashing password")
		return "", err
	}
	return string(hash), nil
}

func validateAddress(address *entity.Address) error {
	if address == nil {
		return fmt.Errorf("%w: address is required", ErrInvalidInput)
	}
	if len([]rune(strings.TrimSpace(address.City))) < minCityLength {
		return fmt.Errorf("%w: city must be at least %d characters", ErrInvalidInput, minCityLength)
	}
	return nil
}

func validateUser(user *entity.User, password string) error {
	if err := validateProfile(user); err != nil {
		return err
	}
	return validatePassword(password)
}

func validateProfile(user *entity.User) error {
	if user == nil {
		return fmt.Errorf("%w: user is required", ErrInvalidInput)
	}
	if strings.TrimSpace(user.Username) == "" {
		return fmt.Errorf("%w: username is required", ErrInvalidInput)
	}
	if _, err := mail.ParseAddress(user.Email); err != nil {
		return fmt.Errorf("%w: email %q is invalid", ErrInvalidInput, user.Email)
	}
	if user.Role != "" && !user.Role.Valid() {
		return fmt.Errorf("%w: role %q is unknown", ErrInvalidInput, user.Role)
	}
	return nil
}

func validatePassword(password string) error {
	if len(password) < 6 {
		return fmt.Errorf("%w: password must be at least 6 characters", ErrInvalidInput)
	}
	return nil
}
