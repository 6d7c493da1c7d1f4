package services

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/plexshare/backend/internal/models"
	"github.com/plexshare/backend/internal/plex"
	"github.com/plexshare/backend/pkg/expiry"
)

// RemoteMember is a remote user together with the section keys the
// directory reports as shared with them.
type RemoteMember struct {
	plex.RemoteUser
	SharedKeys []string
}

// UserRepair fills the directory-owned profile fields of an incomplete
// local user. Only these fields are ever written by an import commit.
type UserRepair struct {
	UserID     uuid.UUID `json:"userID"`
	Email      string    `json:"email"`
	Username   *string   `json:"username"`
	ExternalID *int64    `json:"externalID"`
	AvatarURL  *string   `json:"avatarURL"`
}

// UserPlan is the outcome of one user reconciliation pass.
type UserPlan struct {
	NewUsers           []models.User `json:"newUsers"`
	UsersNeedingUpdate []UserRepair  `json:"usersNeedingUpdate"`
}

func (p UserPlan) Size() int {
	return len(p.NewUsers) + len(p.UsersNeedingUpdate)
}

// SectionPlan is the outcome of one section reconciliation pass.
type SectionPlan struct {
	NewSections []models.Section `json:"newSections"`
}

// ReconcileUsers diffs remote members and pending invites against the
// local roster. Remote members without an email are skipped. Existing
// users are only scheduled for an update when a directory-owned field is
// missing locally; populated fields are never compared.
func ReconcileUsers(remote []RemoteMember, invites []plex.RemoteInvite, local []models.User, sections []models.Section, today time.Time, defaultExpiryDays int) UserPlan {
	byEmail := make(map[string]*models.User, len(local))
	for i := range local {
		byEmail[models.NormalizeEmail(local[i].Email)] = &local[i]
	}
	seen := map[string]bool{}

	expiryDate, status := expiry.Compute(time.Time{}, false, today, defaultExpiryDays)

	plan := UserPlan{NewUsers: []models.User{}, UsersNeedingUpdate: []UserRepair{}}
	for _, member := range remote {
		email := models.NormalizeEmail(member.Email)
		if email == "" || seen[email] {
			continue
		}
		seen[email] = true

		existing, ok := byEmail[email]
		if !ok {
			plan.NewUsers = append(plan.NewUsers, newImportedUser(member, email, sections, expiryDate, status))
			continue
		}
		if existing.IsIncomplete() {
			plan.UsersNeedingUpdate = append(plan.UsersNeedingUpdate, repairFor(existing.ID, member, email))
		}
	}

	for _, invite := range invites {
		email := models.NormalizeEmail(invite.Email)
		if email == "" || seen[email] {
			continue
		}
		seen[email] = true
		if _, ok := byEmail[email]; ok {
			continue
		}
		plan.NewUsers = append(plan.NewUsers, models.User{
			Email:         email,
			InvitePending: true,
			ExpiryDate:    expiryDate,
			Status:        status,
			Sections:      []models.Section{},
		})
	}

	return plan
}

// NeedsSharedKeys returns the remote users that ReconcileUsers would create,
// so callers only ask the directory for the shares that will be used.
func NeedsSharedKeys(remote []plex.RemoteUser, local []models.User) []plex.RemoteUser {
	known := make(map[string]bool, len(local))
	for _, u := range local {
		known[models.NormalizeEmail(u.Email)] = true
	}
	var out []plex.RemoteUser
	for _, u := range remote {
		email := models.NormalizeEmail(u.Email)
		if email == "" || known[email] {
			continue
		}
		known[email] = true
		out = append(out, u)
	}
	return out
}

// ReconcileSections returns remote sections whose key is not stored yet.
// Local sections missing remotely are kept.
func ReconcileSections(remote []plex.RemoteSection, local []models.Section) SectionPlan {
	known := make(map[string]bool, len(local))
	for _, s := range local {
		known[s.Key] = true
	}

	plan := SectionPlan{NewSections: []models.Section{}}
	for _, s := range remote {
		key := strings.TrimSpace(s.Key)
		if key == "" || known[key] {
			continue
		}
		known[key] = true
		plan.NewSections = append(plan.NewSections, models.Section{Key: key, Title: s.Title})
	}
	return plan
}

func newImportedUser(member RemoteMember, email string, sections []models.Section, expiryDate time.Time, status expiry.Status) models.User {
	shared := make(map[string]bool, len(member.SharedKeys))
	for _, key := range member.SharedKeys {
		shared[key] = true
	}
	granted := []models.Section{}
	for _, s := range sections {
		if shared[s.Key] {
			granted = append(granted, s)
		}
	}

	externalID := member.ExternalID
	return models.User{
		ExternalID: &externalID,
		Username:   optional(member.Username),
		Email:      email,
		AvatarURL:  optional(member.AvatarURL),
		ExpiryDate: expiryDate,
		Status:     status,
		Sections:   granted,
	}
}

func repairFor(id uuid.UUID, member RemoteMember, email string) UserRepair {
	externalID := member.ExternalID
	return UserRepair{
		UserID:     id,
		Email:      email,
		Username:   optional(member.Username),
		ExternalID: &externalID,
		AvatarURL:  optional(member.AvatarURL),
	}
}

func optional(value string) *string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return &value
}
