// Package plex adapts the Plex media server and the plex.tv account API to
// the small Directory capability the access services depend on.
package plex

import "context"

type RemoteUser struct {
	ExternalID int64  `json:"externalID"`
	Username   string `json:"username"`
	Email      string `json:"email"`
	AvatarURL  string `json:"avatarURL"`
}

type RemoteInvite struct {
	Email string `json:"email"`
}

type RemoteSection struct {
	Key   string `json:"key"`
	Title string `json:"title"`
}

// Directory is the remote system of record for library sections and
// friend access. Every method may fail with an apperr external service
// error. GrantAccess is safe to repeat with the same arguments;
// InviteUser and CancelInvite are not.
type Directory interface {
	ListUsers(ctx context.Context) ([]RemoteUser, error)
	ListPendingInvites(ctx context.Context) ([]RemoteInvite, error)
	ListSections(ctx context.Context) ([]RemoteSection, error)
	ListSharedSectionKeys(ctx context.Context, email string) ([]string, error)
	GrantAccess(ctx context.Context, email string, sectionTitles []string, allowSync bool) error
	InviteUser(ctx context.Context, email string, sectionTitles []string, allowSync bool) error
	CancelInvite(ctx context.Context, email string) error
}
