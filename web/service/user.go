package service

import (
	"context"
	"errors"
	"strings"

	"github.com/marquee-app/marquee/database"
	"github.com/marquee-app/marquee/database/model"
	"github.com/marquee-app/marquee/logger"
	"github.com/marquee-app/marquee/util/crypto"
	"github.com/marquee-app/marquee/web/entity"
)

var (
	ErrEmailRequired      = errors.New("email required")
	ErrPasswordRequired   = errors.New("password required")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidRole        = errors.New("invalid role")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInactiveUser       = errors.New("account disabled")
	ErrTwoFactorRequired  = errors.New("two-factor code required or invalid")
)

// NewUser holds the fields accepted when an account is created.
type NewUser struct {
	Email                 string
	Password              string
	Role                  model.Role
	FirstName             string
	LastName              string
	Age                   *int
	Gender                string
	Country               string
	StateProvince         string
	City                  string
	SubscriptionPlan      string
	SubscriptionStartDate string
	IsActive              bool
	MonthlySpend          *float64
	PrimaryDevice         string
	HouseholdSize         *int
}

// UserUpdate is a partial update: nil fields are left untouched, a non-nil Password is re-hashed.
type UserUpdate struct {
	Email                 *string
	FirstName             *string
	LastName              *string
	Age                   *int
	Gender                *string
	Country               *string
	StateProvince         *string
	City                  *string
	SubscriptionPlan      *string
	SubscriptionStartDate *string
	IsActive              *bool
	MonthlySpend          *float64
	PrimaryDevice         *string
	HouseholdSize         *int
	Role                  *model.Role
	Password              *string
	// Clear lists optional numeric columns to reset to NULL.
	Clear []string
}

var clearableColumns = map[string]bool{
	"age":            true,
	"monthly_spend":  true,
	"household_size": true,
}

type UserService struct{}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validRole(role model.Role) bool {
	return role == model.RoleUser || role == model.RoleAdmin
}

func (s *UserService) CreateUser(ctx context.Context, params NewUser) (*model.User, error) {
	email := normalizeEmail(params.Email)
	if email == "" {
		return nil, ErrEmailRequired
	}
	if params.Password == "" {
		return nil, ErrPasswordRequired
	}
	role := params.Role
	if role == "" {
		role = model.RoleUser
	}
	if !validRole(role) {
		return nil, ErrInvalidRole
	}

	hash, err := crypto.HashPasswordAsBcrypt(params.Password)
	if err != nil {
		return nil, err
	}

	user := &model.User{
		Email:                 email,
		FirstName:             strings.TrimSpace(params.FirstName),
		LastName:              strings.TrimSpace(params.LastName),
		Age:                   params.Age,
		Gender:                params.Gender,
		Country:               params.Country,
		StateProvince:         params.StateProvince,
		City:                  params.City,
		SubscriptionPlan:      params.SubscriptionPlan,
		SubscriptionStartDate: params.SubscriptionStartDate,
		IsActive:              params.IsActive,
		MonthlySpend:          params.MonthlySpend,
		PrimaryDevice:         params.PrimaryDevice,
		HouseholdSize:         params.HouseholdSize,
		Role:                  role,
		PasswordHash:          hash,
	}

	db := database.GetDB().WithContext(ctx)
	if err := db.Create(user).Error; err != nil {
		if database.IsDuplicate(err) {
			return nil, ErrEmailTaken
		}
		return nil, err
	}
	logger.Infof("user %d created (%s, role=%s)", user.Id, user.Email, user.Role)
	return user, nil
}

func (s *UserService) GetUserById(ctx context.Context, id int) (*model.User, error) {
	user := &model.User{}
	err := database.GetDB().WithContext(ctx).
		Where("user_id = ?", id).
		First(user).
		Error
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (s *UserService) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	user := &model.User{}
	err := database.GetDB().WithContext(ctx).
		Where("email = ?", normalizeEmail(email)).
		First(user).
		Error
	if err != nil {
		return nil, err
	}
	return user, nil
}

// CheckUser verifies the credentials and, for accounts with two-factor enabled, the TOTP code.
func (s *UserService) CheckUser(ctx context.Context, email, password, twoFactorCode string) (*model.User, error) {
	user, err := s.GetUserByEmail(ctx, email)
	if database.IsNotFound(err) {
		return nil, ErrInvalidCredentials
	} else if err != nil {
		logger.Warning("check user err:", err)
		return nil, err
	}

	if !crypto.CheckPasswordHash(user.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, ErrInactiveUser
	}
	if user.HasTwoFactor() && !crypto.CheckTwoFactorCode(user.TwoFactorSecret, strings.TrimSpace(twoFactorCode)) {
		return nil, ErrTwoFactorRequired
	}
	return user, nil
}

func (s *UserService) UpdateUser(ctx context.Context, id int, update UserUpdate) (*model.User, error) {
	fields := map[string]any{}

	if update.Email != nil {
		email := normalizeEmail(*update.Email)
		if email == "" {
			return nil, ErrEmailRequired
		}
		fields["email"] = email
	}
	setString := func(column string, v *string) {
		if v != nil {
			fields[column] = strings.TrimSpace(*v)
		}
	}
	setString("first_name", update.FirstName)
	setString("last_name", update.LastName)
	setString("gender", update.Gender)
	setString("country", update.Country)
	setString("state_province", update.StateProvince)
	setString("city", update.City)
	setString("subscription_plan", update.SubscriptionPlan)
	setString("subscription_start_date", update.SubscriptionStartDate)
	setString("primary_device", update.PrimaryDevice)

	if update.Age != nil {
		fields["age"] = *update.Age
	}
	if update.IsActive != nil {
		fields["is_active"] = *update.IsActive
	}
	if update.MonthlySpend != nil {
		fields["monthly_spend"] = *update.MonthlySpend
	}
	if update.HouseholdSize != nil {
		fields["household_size"] = *update.HouseholdSize
	}
	for _, column := range update.Clear {
		if clearableColumns[column] {
			fields[column] = nil
		}
	}
	if update.Role != nil {
		if !validRole(*update.Role) {
			return nil, ErrInvalidRole
		}
		fields["role"] = *update.Role
	}
	if update.Password != nil && *update.Password != "" {
		hash, err := crypto.HashPasswordAsBcrypt(*update.Password)
		if err != nil {
			return nil, err
		}
		fields["password_hash"] = hash
	}

	if len(fields) > 0 {
		err := database.GetDB().WithContext(ctx).
			Model(&model.User{}).
			Where("user_id = ?", id).
			Updates(fields).
			Error
		if database.IsDuplicate(err) {
			return nil, ErrEmailTaken
		} else if err != nil {
			return nil, err
		}
	}
	return s.GetUserById(ctx, id)
}

func (s *UserService) DeleteUser(ctx context.Context, id int) error {
	return database.GetDB().WithContext(ctx).
		Where("user_id = ?", id).
		Delete(&model.User{}).
		Error
}

// ListUsers returns one page of users ordered by id, optionally filtered by q over
// email and names.
func (s *UserService) ListUsers(ctx context.Context, q string, page entity.Page) ([]model.User, entity.Page, error) {
	query := database.GetDB().WithContext(ctx).Model(&model.User{})
	if q = strings.TrimSpace(q); q != "" {
		like := "%" + q + "%"
		query = query.Where("email LIKE ? OR first_name LIKE ? OR last_name LIKE ?", like, like, like)
	}

	var users []model.User
	err := query.Order("user_id ASC").
		Limit(page.Size + 1).
		Offset(page.Offset()).
		Find(&users).
		Error
	if err != nil {
		return nil, page, err
	}
	if len(users) > page.Size {
		users = users[:page.Size]
		page.HasNext = true
	}
	return users, page, nil
}

func (s *UserService) CountUsers(ctx context.Context) (int64, error) {
	var count int64
	err := database.GetDB().WithContext(ctx).Model(&model.User{}).Count(&count).Error
	return count, err
}

func (s *UserService) CountActiveUsers(ctx context.Context) (int64, error) {
	var count int64
	err := database.GetDB().WithContext(ctx).
		Model(&model.User{}).
		Where("is_active = ?", true).
		Count(&count).
		Error
	return count, err
}

// EnsureAdmin creates an active administrator, or promotes and reactivates the existing
// account with that email. A non-empty password replaces the current one.
func (s *UserService) EnsureAdmin(ctx context.Context, email, password string) (*model.User, error) {
	user, err := s.GetUserByEmail(ctx, email)
	if database.IsNotFound(err) {
		return s.CreateUser(ctx, NewUser{
			Email:    email,
			Password: password,
			Role:     model.RoleAdmin,
			IsActive: true,
		})
	} else if err != nil {
		return nil, err
	}

	role, active := model.RoleAdmin, true
	update := UserUpdate{Role: &role, IsActive: &active}
	if password != "" {
		update.Password = &password
	}
	return s.UpdateUser(ctx, user.Id, update)
}

// EnableTwoFactor stores secret for the user once code proves the authenticator app has it.
func (s *UserService) EnableTwoFactor(ctx context.Context, id int, secret, code string) error {
	if !crypto.CheckTwoFactorCode(secret, strings.TrimSpace(code)) {
		return ErrTwoFactorRequired
	}
	return database.GetDB().WithContext(ctx).
		Model(&model.User{}).
		Where("user_id = ?", id).
		Update("two_factor_secret", secret).
		Error
}

// DisableTwoFactor clears the secret; the current code is required.
func (s *UserService) DisableTwoFactor(ctx context.Context, id int, code string) error {
	user, err := s.GetUserById(ctx, id)
	if err != nil {
		return err
	}
	if !crypto.CheckTwoFactorCode(user.TwoFactorSecret, strings.TrimSpace(code)) {
		return ErrTwoFactorRequired
	}
	return database.GetDB().WithContext(ctx).
		Model(&model.User{}).
		Where("user_id = ?", id).
		Update("two_factor_secret", "").
		Error
}
