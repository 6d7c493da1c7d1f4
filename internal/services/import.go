package services

import (
	"context"
	"sync"
	"time"

	"github.com/plexshare/backend/internal/config"
	"github.com/plexshare/backend/internal/models"
	"github.com/plexshare/backend/internal/plex"
	"github.com/plexshare/backend/pkg/apperr"
	"github.com/plexshare/backend/pkg/expiry"
	"github.com/plexshare/backend/pkg/logger"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"
)

const (
	importKindUsers    = "users"
	importKindSections = "sections"

	defaultShareFetchLimit = 4
)

// ImportKindStatus describes one kind of import pass.
type ImportKindStatus struct {
	Running    bool       `json:"running"`
	Pending    int        `json:"pending"`
	PreparedAt *time.Time `json:"preparedAt,omitempty"`
}

type ImportStatus struct {
	Users    ImportKindStatus `json:"users"`
	Sections ImportKindStatus `json:"sections"`
}

// ImportService runs reconciliation passes against the remote directory
// and holds the latest plan of each kind until an operator commits it.
// Concurrent starts of the same kind share one pass.
type ImportService struct {
	DB        *gorm.DB
	Directory plex.Directory
	Settings  *config.SettingsStore
	Access    *AccessService

	// ShareFetchLimit bounds concurrent shared-section lookups.
	ShareFetchLimit int
	Now             func() time.Time

	flight singleflight.Group

	mu          sync.Mutex
	running     map[string]bool
	userPlan    *UserPlan
	userAt      time.Time
	sectionPlan *SectionPlan
	sectionAt   time.Time
}

func NewImportService(db *gorm.DB, directory plex.Directory, settings *config.SettingsStore, access *AccessService) *ImportService {
	return &ImportService{
		DB:              db,
		Directory:       directory,
		Settings:        settings,
		Access:          access,
		ShareFetchLimit: defaultShareFetchLimit,
		Now:             time.Now,
		running:         map[string]bool{},
	}
}

func (s *ImportService) StartUserImport(ctx context.Context) (UserPlan, error) {
	v, err, shared := s.flight.Do(importKindUsers, func() (interface{}, error) {
		s.setRunning(importKindUsers, true)
		defer s.setRunning(importKindUsers, false)

		plan, err := s.reconcileUsers(ctx)

		s.mu.Lock()
		defer s.mu.Unlock()
		if err != nil {
			s.userPlan = nil
			return nil, err
		}
		s.userPlan = &plan
		s.userAt = s.Now().UTC()
		return plan, nil
	})
	if shared {
		logger.Debug("user_import_joined", nil)
	}
	if err != nil {
		return UserPlan{}, err
	}
	return v.(UserPlan), nil
}

func (s *ImportService) reconcileUsers(ctx context.Context) (UserPlan, error) {
	db := s.DB.WithContext(ctx)

	var sections []models.Section
	if err := db.Order("title ASC").Find(&sections).Error; err != nil {
		return UserPlan{}, apperr.Persistence("start_user_import", err)
	}
	if len(sections) == 0 {
		return UserPlan{}, apperr.Validation("start_user_import", "import library sections before importing users")
	}

	var local []models.User
	if err := db.Find(&local).Error; err != nil {
		return UserPlan{}, apperr.Persistence("start_user_import", err)
	}

	remoteUsers, err := s.Directory.ListUsers(ctx)
	if err != nil {
		return UserPlan{}, s.abort("start_user_import", err)
	}
	invites, err := s.Directory.ListPendingInvites(ctx)
	if err != nil {
		return UserPlan{}, s.abort("start_user_import", err)
	}

	shares, err := s.fetchShares(ctx, NeedsSharedKeys(remoteUsers, local))
	if err != nil {
		return UserPlan{}, s.abort("start_user_import", err)
	}

	members := make([]RemoteMember, 0, len(remoteUsers))
	for _, u := range remoteUsers {
		members = append(members, RemoteMember{RemoteUser: u, SharedKeys: shares[models.NormalizeEmail(u.Email)]})
	}

	settings := s.Settings.Current()
	plan := ReconcileUsers(members, invites, local, sections, expiry.DateOf(s.Now()), settings.DefaultExpiryDays)

	logger.Info("user_import_prepared", map[string]interface{}{
		"remote_users":  len(remoteUsers),
		"invites":       len(invites),
		"new_users":     len(plan.NewUsers),
		"updated_users": len(plan.UsersNeedingUpdate),
	})
	return plan, nil
}

// fetchShares looks up shared section keys for each user concurrently.
// The first failure cancels the remaining lookups.
func (s *ImportService) fetchShares(ctx context.Context, users []plex.RemoteUser) (map[string][]string, error) {
	keys := make([][]string, len(users))

	g, gctx := errgroup.WithContext(ctx)
	limit := s.ShareFetchLimit
	if limit <= 0 {
		limit = defaultShareFetchLimit
	}
	g.SetLimit(limit)

	for i, u := range users {
		i, u := i, u
		g.Go(func() error {
			shared, err := s.Directory.ListSharedSectionKeys(gctx, u.Email)
			if err != nil {
				return err
			}
			keys[i] = shared
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[string][]string, len(users))
	for i, u := range users {
		out[models.NormalizeEmail(u.Email)] = keys[i]
	}
	return out, nil
}

func (s *ImportService) StartSectionImport(ctx context.Context) (SectionPlan, error) {
	v, err, _ := s.flight.Do(importKindSections, func() (interface{}, error) {
		s.setRunning(importKindSections, true)
		defer s.setRunning(importKindSections, false)

		plan, err := s.reconcileSections(ctx)

		s.mu.Lock()
		defer s.mu.Unlock()
		if err != nil {
			s.sectionPlan = nil
			return nil, err
		}
		s.sectionPlan = &plan
		s.sectionAt = s.Now().UTC()
		return plan, nil
	})
	if err != nil {
		return SectionPlan{}, err
	}
	return v.(SectionPlan), nil
}

func (s *ImportService) reconcileSections(ctx context.Context) (SectionPlan, error) {
	remote, err := s.Directory.ListSections(ctx)
	if err != nil {
		return SectionPlan{}, s.abort("start_section_import", err)
	}

	var local []models.Section
	if err := s.DB.WithContext(ctx).Find(&local).Error; err != nil {
		return SectionPlan{}, apperr.Persistence("start_section_import", err)
	}

	plan := ReconcileSections(remote, local)
	logger.Info("section_import_prepared", map[string]interface{}{
		"remote_sections": len(remote),
		"new_sections":    len(plan.NewSections),
	})
	return plan, nil
}

// CommitUserImport writes the pending user plan. The plan is kept when the
// commit fails so it can be retried.
func (s *ImportService) CommitUserImport(ctx context.Context) (ImportResult, error) {
	s.mu.Lock()
	plan := s.userPlan
	s.mu.Unlock()
	if plan == nil {
		return ImportResult{}, apperr.Validation("commit_user_import", "no pending user import; start one first")
	}

	result, err := s.Access.ApplyImport(ctx, *plan)
	if err != nil {
		return ImportResult{}, err
	}

	s.mu.Lock()
	if s.userPlan == plan {
		s.userPlan = nil
	}
	s.mu.Unlock()

	logger.Info("user_import_committed", map[string]interface{}{
		"created": result.Created,
		"updated": result.Updated,
	})
	return result, nil
}

func (s *ImportService) CommitSectionImport(ctx context.Context) (int, error) {
	s.mu.Lock()
	plan := s.sectionPlan
	s.mu.Unlock()
	if plan == nil {
		return 0, apperr.Validation("commit_section_import", "no pending section import; start one first")
	}

	created, err := s.Access.ApplySections(ctx, *plan)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	if s.sectionPlan == plan {
		s.sectionPlan = nil
	}
	s.mu.Unlock()

	logger.Info("section_import_committed", map[string]interface{}{
		"created": created,
	})
	return created, nil
}

func (s *ImportService) Status() ImportStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := ImportStatus{
		Users:    ImportKindStatus{Running: s.running[importKindUsers]},
		Sections: ImportKindStatus{Running: s.running[importKindSections]},
	}
	if s.userPlan != nil {
		at := s.userAt
		status.Users.Pending = s.userPlan.Size()
		status.Users.PreparedAt = &at
	}
	if s.sectionPlan != nil {
		at := s.sectionAt
		status.Sections.Pending = len(s.sectionPlan.NewSections)
		status.Sections.PreparedAt = &at
	}
	return status
}

func (s *ImportService) setRunning(kind string, running bool) {
	s.mu.Lock()
	s.running[kind] = running
	s.mu.Unlock()
}

func (s *ImportService) abort(op string, err error) error {
	logger.Error(op+"_aborted", err, nil)
	return asExternal(op, err)
}
