package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lernio/gatekeeper/internal/flows"
	"gorm.io/gorm"
)

// Account roles, one table each.
const (
	RoleUser          = "USER"
	RoleAdmin         = "ADMIN"
	RoleAdministrator = "ADMINISTRATOR"
)

var (
	ErrAccountNotFound = flows.ErrAccountNotFound
	ErrUnknownRole     = errors.New("unknown account role")
	ErrAccountExists   = errors.New("account already exists")
)

// NewAccount is the input of CreateAccount.
type NewAccount struct {
	Email        string
	FullName     string
	PasswordHash string
	AvatarLink   string
}

// AccountRepository resolves credentials for every role table.
type AccountRepository struct {
	db *gorm.DB
}

func NewAccountRepository(db *gorm.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

func modelFor(role string) (any, error) {
	switch role {
	case RoleUser:
		return &UserModel{}, nil
	case RoleAdmin:
		return &AdminModel{}, nil
	case RoleAdministrator:
		return &AdministratorModel{}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownRole, role)
}

// FindAccount looks up an account by email in the role's table.
func (r *AccountRepository) FindAccount(ctx context.Context, role, email string) (flows.LoginAccount, error) {
	db := r.db.WithContext(ctx).Where("email = ?", email)
	acc := flows.LoginAccount{Role: role}

	var err error
	switch role {
	case RoleUser:
		var m UserModel
		if err = db.First(&m).Error; err == nil {
			acc.ID, acc.Email, acc.FullName, acc.PasswordHash, acc.AvatarLink = m.ID, m.Email, m.FullName, m.Password, m.AvatarLink
		}
	case RoleAdmin:
		var m AdminModel
		if err = db.First(&m).Error; err == nil {
			acc.ID, acc.Email, acc.FullName, acc.PasswordHash, acc.AvatarLink = m.ID, m.Email, m.FullName, m.Password, m.AvatarLink
			acc.MustChangePassword = m.MustChangePassword
		}
	case RoleAdministrator:
		var m AdministratorModel
		if err = db.First(&m).Error; err == nil {
			acc.ID, acc.Email, acc.FullName, acc.PasswordHash, acc.AvatarLink = m.ID, m.Email, m.FullName, m.Password, m.AvatarLink
		}
	default:
		return flows.LoginAccount{}, fmt.Errorf("%w: %q", ErrAccountNotFound, role)
	}
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return flows.LoginAccount{}, ErrAccountNotFound
		}
		return flows.LoginAccount{}, err
	}
	return acc, nil
}

// UpdatePasswordHash replaces the stored hash. For admins it also clears the
// must-change flag set at approval time.
func (r *AccountRepository) UpdatePasswordHash(ctx context.Context, role, email, hash string) error {
	model, err := modelFor(role)
	if err != nil {
		return err
	}
	updates := map[string]any{"password": hash, "updated_at": time.Now().UTC()}
	if role == RoleAdmin {
		updates["must_change_password"] = false
	}

	res := r.db.WithContext(ctx).Model(model).Where("email = ?", email).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// CreateAccount inserts an account into the role's table and returns its ID.
// Admins are normally created by approving a request; this is for seeding.
func (r *AccountRepository) CreateAccount(ctx context.Context, role string, in NewAccount) (string, error) {
	var (
		row any
		id  func() string
	)
	switch role {
	case RoleUser:
		m := &UserModel{Email: in.Email, FullName: in.FullName, Password: in.PasswordHash, AvatarLink: in.AvatarLink}
		row, id = m, func() string { return m.ID }
	case RoleAdmin:
		m := &AdminModel{Email: in.Email, FullName: in.FullName, Password: in.PasswordHash, AvatarLink: in.AvatarLink}
		row, id = m, func() string { return m.ID }
	case RoleAdministrator:
		m := &AdministratorModel{Email: in.Email, FullName: in.FullName, Password: in.PasswordHash, AvatarLink: in.AvatarLink}
		row, id = m, func() string { return m.ID }
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownRole, role)
	}

	if err := r.db.WithContext(ctx).Create(row).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return "", ErrAccountExists
		}
		return "", err
	}
	return id(), nil
}
