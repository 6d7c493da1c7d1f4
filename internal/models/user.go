package models

import (
	"strings"
	"time"

	"github.com/plexshare/backend/pkg/expiry"
)

// User is an invited or imported member of the media server and the
// access window they were granted. Email is the reconciliation key against
// the remote directory.
type User struct {
	BaseModel
	ExternalID    *int64        `json:"externalID" gorm:"index"`
	Username      *string       `json:"username" gorm:"type:varchar(255)"`
	Name          string        `json:"name" gorm:"type:varchar(255);not null;default:''"`
	Email         string        `json:"email" gorm:"type:varchar(255);uniqueIndex;not null"`
	AvatarURL     *string       `json:"avatarURL" gorm:"type:text"`
	NeverExpire   bool          `json:"neverExpire" gorm:"not null;default:false"`
	InvitePending bool          `json:"invitePending" gorm:"not null;default:false"`
	ExpiryDate    time.Time     `json:"expiryDate" gorm:"type:date"`
	Status        expiry.Status `json:"status" gorm:"type:varchar(16);not null;default:'expired';index"`
	Sections      []Section     `json:"sections" gorm:"many2many:user_sections;"`
}

func (User) TableName() string {
	return "users"
}

// HasRemoteIdentity reports whether the remote directory knows this user
// as an accepted friend.
func (u *User) HasRemoteIdentity() bool {
	return u.ExternalID != nil
}

// IsIncomplete reports whether any profile field filled by a directory
// import is still missing.
func (u *User) IsIncomplete() bool {
	return blank(u.Username) || strings.TrimSpace(u.Email) == "" || u.ExternalID == nil || blank(u.AvatarURL)
}

// SectionTitles returns the titles of the user's granted sections in
// their stored order.
func (u *User) SectionTitles() []string {
	titles := make([]string, 0, len(u.Sections))
	for _, section := range u.Sections {
		titles = append(titles, section.Title)
	}
	return titles
}

func blank(value *string) bool {
	return value == nil || strings.TrimSpace(*value) == ""
}

// NormalizeEmail is the canonical form used to match users across the
// local store and the remote directory.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
