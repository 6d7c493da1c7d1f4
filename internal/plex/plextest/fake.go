// Package plextest provides an in-memory plex.Directory for tests.
package plextest

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/plexshare/backend/internal/plex"
	"github.com/plexshare/backend/pkg/apperr"
)

// Grant records one GrantAccess or InviteUser call.
type Grant struct {
	Email     string
	Titles    []string
	AllowSync bool
}

// Directory is a recording fake. Errors set in the Fail* fields are
// returned by the matching method; FailEmails fails GrantAccess for
// individual addresses.
type Directory struct {
	mu sync.Mutex

	Users    []plex.RemoteUser
	Invites  []plex.RemoteInvite
	Sections []plex.RemoteSection
	Shared   map[string][]string

	FailListUsers    error
	FailListInvites  error
	FailListSections error
	FailShared       error
	FailGrant        error
	FailInvite       error
	FailCancel       error
	FailEmails       map[string]error

	grants    []Grant
	invites   []Grant
	cancelled []string
	calls     map[string]int
}

var _ plex.Directory = (*Directory)(nil)

func New() *Directory {
	return &Directory{
		Shared:     map[string][]string{},
		FailEmails: map[string]error{},
		calls:      map[string]int{},
	}
}

func (d *Directory) record(method string) {
	d.calls[method]++
}

func external(op string, err error) error {
	if err == nil {
		return nil
	}
	if apperr.KindOf(err) == apperr.KindExternalService {
		return err
	}
	return apperr.External(op, err)
}

func (d *Directory) ListUsers(_ context.Context) ([]plex.RemoteUser, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("ListUsers")
	if d.FailListUsers != nil {
		return nil, external("list_users", d.FailListUsers)
	}
	return append([]plex.RemoteUser(nil), d.Users...), nil
}

func (d *Directory) ListPendingInvites(_ context.Context) ([]plex.RemoteInvite, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("ListPendingInvites")
	if d.FailListInvites != nil {
		return nil, external("list_pending_invites", d.FailListInvites)
	}
	return append([]plex.RemoteInvite(nil), d.Invites...), nil
}

func (d *Directory) ListSections(_ context.Context) ([]plex.RemoteSection, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("ListSections")
	if d.FailListSections != nil {
		return nil, external("list_sections", d.FailListSections)
	}
	return append([]plex.RemoteSection(nil), d.Sections...), nil
}

func (d *Directory) ListSharedSectionKeys(ctx context.Context, email string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, external("list_shared_sections", err)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("ListSharedSectionKeys")
	if d.FailShared != nil {
		return nil, external("list_shared_sections", d.FailShared)
	}
	return append([]string{}, d.Shared[strings.ToLower(email)]...), nil
}

func (d *Directory) GrantAccess(_ context.Context, email string, titles []string, allowSync bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("GrantAccess")
	if d.FailGrant != nil {
		return external("grant_access", d.FailGrant)
	}
	if err, ok := d.FailEmails[strings.ToLower(email)]; ok {
		return external("grant_access", err)
	}
	d.grants = append(d.grants, Grant{Email: email, Titles: append([]string(nil), titles...), AllowSync: allowSync})
	return nil
}

func (d *Directory) InviteUser(_ context.Context, email string, titles []string, allowSync bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("InviteUser")
	if d.FailInvite != nil {
		return external("invite_user", d.FailInvite)
	}
	d.invites = append(d.invites, Grant{Email: email, Titles: append([]string(nil), titles...), AllowSync: allowSync})
	return nil
}

func (d *Directory) CancelInvite(_ context.Context, email string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("CancelInvite")
	if d.FailCancel != nil {
		return external("cancel_invite", d.FailCancel)
	}
	d.cancelled = append(d.cancelled, email)
	return nil
}

// Grants returns successful GrantAccess calls in call order.
func (d *Directory) Grants() []Grant {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Grant(nil), d.grants...)
}

// GrantsByEmail returns successful grants keyed by lower-cased email,
// keeping the last grant per address.
func (d *Directory) GrantsByEmail() map[string]Grant {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[string]Grant, len(d.grants))
	for _, g := range d.grants {
		out[strings.ToLower(g.Email)] = g
	}
	return out
}

func (d *Directory) Invited() []Grant {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Grant(nil), d.invites...)
}

func (d *Directory) Cancelled() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := append([]string(nil), d.cancelled...)
	sort.Strings(out)
	return out
}

// Calls reports how many times method was invoked, including failures.
func (d *Directory) Calls(method string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls[method]
}

// TotalCalls counts every remote call made.
func (d *Directory) TotalCalls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	total := 0
	for _, n := range d.calls {
		total += n
	}
	return total
}

// ErrUnavailable is a convenience failure for injecting into Fail* fields.
var ErrUnavailable = errors.New("plex unavailable")
