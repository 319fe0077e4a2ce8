package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/adelegard/TouchrServer/model"
	"github.com/adelegard/TouchrServer/utils"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// RoleAdmin gates the admin API.
const RoleAdmin = "admin"

// TokenIssuer signs a session token for a user.
type TokenIssuer func(userID uuid.UUID) (string, error)

type Credentials struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type Session struct {
	User  model.User `json:"user"`
	Token string     `json:"token"`
}

// AccountService handles sign-up, login, roles and account deletion.
type AccountService struct {
	db         *gorm.DB
	issueToken TokenIssuer
}

func NewAccountService(db *gorm.DB, issueToken TokenIssuer) *AccountService {
	return &AccountService{db: db, issueToken: issueToken}
}

func (s *AccountService) session(user *model.User) (*Session, error) {
	token, err := s.issueToken(user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to issue token: %w", err)
	}
	return &Session{User: *user, Token: token}, nil
}

func checkCredentials(c Credentials) error {
	if strings.TrimSpace(c.Username) == "" {
		return invalidInput("Username has not been provided")
	}
	if c.Password == "" {
		return invalidInput("Password has not been provided")
	}
	return nil
}

// Signup creates an account and logs it in.
func (s *AccountService) Signup(ctx context.Context, c Credentials) (*Session, error) {
	if err := checkCredentials(c); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(c.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &model.User{Username: strings.TrimSpace(c.Username), PasswordHash: string(hash)}
	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		if isDuplicate(err) {
			return nil, conflict("username %s is already taken", user.Username)
		}
		return nil, persistence(err, "failed to create user")
	}
	return s.session(user)
}

func (s *AccountService) authenticate(ctx context.Context, c Credentials) (*model.User, error) {
	if err := checkCredentials(c); err != nil {
		return nil, err
	}

	var user model.User
	err := s.db.WithContext(ctx).Where("username = ?", strings.TrimSpace(c.Username)).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notAuthorized("invalid credentials")
		}
		return nil, persistence(err, "failed to lookup user")
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(c.Password)) != nil {
		return nil, notAuthorized("invalid credentials")
	}
	return &user, nil
}

// Login exchanges credentials for a session.
func (s *AccountService) Login(ctx context.Context, c Credentials) (*Session, error) {
	user, err := s.authenticate(ctx, c)
	if err != nil {
		return nil, err
	}
	return s.session(user)
}

func (s *AccountService) GetUser(ctx context.Context, userID uuid.UUID) (*model.User, error) {
	var user model.User
	if err := s.db.WithContext(ctx).First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound("user not found with id: %s", userID)
		}
		return nil, persistence(err, "failed to lookup user")
	}
	return &user, nil
}

// InitDefaultRoles creates the built-in roles that do not exist yet and
// grants admin to adminUsernames. Unknown usernames are skipped.
func (s *AccountService) InitDefaultRoles(ctx context.Context, adminUsernames ...string) error {
	for _, name := range []string{RoleAdmin} {
		role := model.Role{Name: name}
		if err := s.db.WithContext(ctx).Where(model.Role{Name: name}).FirstOrCreate(&role).Error; err != nil {
			return fmt.Errorf("failed to create role %s: %w", name, err)
		}
	}

	for _, username := range adminUsernames {
		err := s.GiveRole(ctx, username, RoleAdmin)
		if errors.Is(err, ErrNotFound) {
			utils.Log.WithField("username", username).Warn("bootstrap admin has not signed up yet")
			continue
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// GiveRole grants an existing role to the user named username.
// Callers are expected to hold the admin role.
func (s *AccountService) GiveRole(ctx context.Context, username, roleName string) error {
	username = strings.TrimSpace(username)
	roleName = strings.TrimSpace(roleName)
	if username == "" {
		return invalidInput("Username has not been provided")
	}
	if roleName == "" {
		return invalidInput("Role has not been provided")
	}

	var user model.User
	if err := s.db.WithContext(ctx).Where("username = ?", username).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return notFound("user not found: %s", username)
		}
		return persistence(err, "failed to lookup user")
	}

	var role model.Role
	if err := s.db.WithContext(ctx).Where("name = ?", roleName).First(&role).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return notFound("role not found: %s", roleName)
		}
		return persistence(err, "failed to lookup role")
	}

	grant := model.UserRole{UserID: user.ID, RoleID: role.ID}
	err := s.db.WithContext(ctx).
		Where(model.UserRole{UserID: user.ID, RoleID: role.ID}).
		FirstOrCreate(&grant).Error
	if err != nil {
		return persistence(err, "failed to grant role")
	}
	utils.Log.WithFields(logrus.Fields{"user_id": user.ID, "role": roleName}).Info("role granted")
	return nil
}

// HasRole reports whether userID holds roleName.
func (s *AccountService) HasRole(ctx context.Context, userID uuid.UUID, roleName string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&model.UserRole{}).
		Joins("JOIN roles ON roles.id = user_roles.role_id").
		Where("user_roles.user_id = ? AND roles.name = ?", userID, roleName).
		Count(&count).Error
	if err != nil {
		return false, persistence(err, "failed to lookup roles")
	}
	return count > 0, nil
}

// teardownPart is one independent deletion of account data.
type teardownPart struct {
	name string
	run  func(db *gorm.DB, userID uuid.UUID) error
}

var teardownParts = []teardownPart{
	{"touches", func(db *gorm.DB, id uuid.UUID) error {
		return db.Where("from_user_id = ? OR to_user_id = ?", id, id).Delete(&model.Touch{}).Error
	}},
	{"friend_requests", func(db *gorm.DB, id uuid.UUID) error {
		return db.Where("requester_id = ? OR target_id = ?", id, id).Delete(&model.FriendRequest{}).Error
	}},
	{"favorites", func(db *gorm.DB, id uuid.UUID) error {
		return db.Where("user_id = ?", id).Delete(&model.UserTouchType{}).Error
	}},
	{"installations", func(db *gorm.DB, id uuid.UUID) error {
		return db.Where("user_id = ?", id).Delete(&model.Installation{}).Error
	}},
	{"notifications", func(db *gorm.DB, id uuid.UUID) error {
		return db.Where("user_id = ?", id).Delete(&model.Notification{}).Error
	}},
	{"roles", func(db *gorm.DB, id uuid.UUID) error {
		return db.Where("user_id = ?", id).Delete(&model.UserRole{}).Error
	}},
	{"user", func(db *gorm.DB, id uuid.UUID) error {
		return db.Delete(&model.User{}, "id = ?", id).Error
	}},
}

// DeleteAccount removes everything that belongs to userID. The parts run
// concurrently and independently; completed parts are not rolled back when
// another fails. Touch types the user created stay in the catalog.
func (s *AccountService) DeleteAccount(ctx context.Context, userID uuid.UUID) error {
	if _, err := s.GetUser(ctx, userID); err != nil {
		return err
	}

	var (
		mu     sync.Mutex
		failed []string
		causes []error
	)
	var g errgroup.Group
	for _, part := range teardownParts {
		g.Go(func() error {
			if err := part.run(s.db.WithContext(ctx), userID); err != nil {
				teardownFailures.WithLabelValues(part.name).Inc()
				utils.Log.WithFields(logrus.Fields{"user_id": userID, "part": part.name}).WithError(err).Error("account teardown step failed")
				mu.Lock()
				failed = append(failed, part.name)
				causes = append(causes, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	if len(failed) > 0 {
		sort.Strings(failed)
		return &Error{
			Kind:    ErrPartialFailure,
			Message: "failed to delete " + strings.Join(failed, ", "),
			Err:     errors.Join(causes...),
		}
	}

	utils.Log.WithField("user_id", userID).Info("account deleted")
	return nil
}
