package database

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Base is embedded by every table. IDs are UUID strings.
type Base struct {
	ID        string    `json:"id"        gorm:"type:char(36);primaryKey"`
	CreatedAt time.Time `json:"createdAt" gorm:"index"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (b *Base) BeforeCreate(tx *gorm.DB) error {
	if b.ID == "" {
		b.ID = uuid.New().String()
	}
	return nil
}

// AdminRequestModel is one invite request. Email is unique across all
// statuses, so a rejected address cannot file a second request.
type AdminRequestModel struct {
	Base
	Email    string `json:"email"    gorm:"size:191;uniqueIndex;not null"`
	FullName string `json:"fullName" gorm:"size:191;not null"`
	Reason   string `json:"reason"   gorm:"type:text"`
	Status   string `json:"status"   gorm:"size:16;index;not null;default:PENDING"`
}

func (AdminRequestModel) TableName() string { return "admin_requests" }

// AdminModel is an approved admin account.
type AdminModel struct {
	Base
	Email              string `json:"email"              gorm:"size:191;uniqueIndex;not null"`
	FullName           string `json:"fullName"           gorm:"size:191;not null"`
	Password           string `json:"-"                  gorm:"not null"`
	AvatarLink         string `json:"avatarLink"`
	InvitedByID        string `json:"invitedById"        gorm:"type:char(36);index"`
	MustChangePassword bool   `json:"mustChangePassword" gorm:"not null;default:false"`
}

func (AdminModel) TableName() string { return "admins" }

// AdministratorModel is a platform administrator. Administrators review
// admin requests.
type AdministratorModel struct {
	Base
	Email      string `json:"email"      gorm:"size:191;uniqueIndex;not null"`
	FullName   string `json:"fullName"   gorm:"size:191;not null"`
	Password   string `json:"-"          gorm:"not null"`
	AvatarLink string `json:"avatarLink"`
}

func (AdministratorModel) TableName() string { return "administrators" }

// UserModel is a learner account.
type UserModel struct {
	Base
	Email      string `json:"email"      gorm:"size:191;uniqueIndex;not null"`
	FullName   string `json:"fullName"   gorm:"size:191;not null"`
	Password   string `json:"-"          gorm:"not null"`
	AvatarLink string `json:"avatarLink"`
}

func (UserModel) TableName() string { return "users" }
