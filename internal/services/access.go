package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/plexshare/backend/internal/config"
	"github.com/plexshare/backend/internal/models"
	"github.com/plexshare/backend/internal/plex"
	"github.com/plexshare/backend/pkg/apperr"
	"github.com/plexshare/backend/pkg/expiry"
	"github.com/plexshare/backend/pkg/logger"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var onKeyConflictDoNothing = clause.OnConflict{
	Columns:   []clause.Column{{Name: "key"}},
	DoNothing: true,
}

// AccessService commits reconciliation results locally and mirrors user
// access grants to the remote directory.
type AccessService struct {
	DB        *gorm.DB
	Directory plex.Directory
	Settings  *config.SettingsStore
	Audit     *AuditService
}

func NewAccessService(db *gorm.DB, directory plex.Directory, settings *config.SettingsStore, audit *AuditService) *AccessService {
	return &AccessService{DB: db, Directory: directory, Settings: settings, Audit: audit}
}

// Grant is the section set pushed for one user.
type Grant struct {
	Titles    []string
	AllowSync bool
	Fallback  bool
}

// AccessReport summarizes one ApplyAccess batch.
type AccessReport struct {
	Pushed  int `json:"pushed"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// ImportResult counts what one user import commit wrote.
type ImportResult struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
}

func (r ImportResult) Total() int {
	return r.Created + r.Updated
}

// GrantFor decides what user should be able to see. Revoked users and
// expired users who do not have never-expire get only the fallback section.
func GrantFor(user models.User, revoke bool, settings config.Settings) Grant {
	if revoke || (user.Status == expiry.StatusExpired && !user.NeverExpire) {
		return Grant{Titles: []string{settings.ExpiredSectionTitle}, Fallback: true}
	}
	return Grant{Titles: user.SectionTitles(), AllowSync: settings.AllowSync}
}

// ApplyImport inserts the new users and repairs the incomplete ones inside
// a single transaction. Nothing is written if any statement fails.
func (a *AccessService) ApplyImport(ctx context.Context, plan UserPlan) (ImportResult, error) {
	var result ImportResult

	err := a.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range plan.NewUsers {
			user := plan.NewUsers[i]
			if err := tx.Omit("Sections.*").Create(&user).Error; err != nil {
				return fmt.Errorf("creating %s: %w", user.Email, err)
			}
			result.Created++
		}

		for _, repair := range plan.UsersNeedingUpdate {
			fields := repairFields(repair)
			if len(fields) == 0 {
				continue
			}
			res := tx.Model(&models.User{}).Where("id = ?", repair.UserID).Updates(fields)
			if res.Error != nil {
				return fmt.Errorf("updating %s: %w", repair.Email, res.Error)
			}
			if res.RowsAffected == 0 {
				return fmt.Errorf("updating %s: %w", repair.Email, gorm.ErrRecordNotFound)
			}
			result.Updated++
		}
		return nil
	})
	if err != nil {
		logger.Error("user_import_commit_failed", err, map[string]interface{}{
			"new_users":     len(plan.NewUsers),
			"updated_users": len(plan.UsersNeedingUpdate),
		})
		return ImportResult{}, apperr.Persistence("commit_user_import", err)
	}

	a.Audit.LogAsync(AuditEntry{
		Actor:        ActorOperator,
		Action:       "import.users_commit",
		ResourceType: "user",
		Details: map[string]interface{}{
			"created": result.Created,
			"updated": result.Updated,
		},
		RequestID: requestIDFrom(ctx),
	})
	return result, nil
}

func repairFields(repair UserRepair) map[string]interface{} {
	fields := map[string]interface{}{}
	if repair.Username != nil {
		fields["username"] = *repair.Username
	}
	if repair.AvatarURL != nil {
		fields["avatar_url"] = *repair.AvatarURL
	}
	if repair.ExternalID != nil {
		fields["external_id"] = *repair.ExternalID
		// An external id means the invite was accepted.
		fields["invite_pending"] = false
	}
	return fields
}

// ApplySections inserts new sections in one transaction. Keys that
// appeared concurrently are left as they are.
func (a *AccessService) ApplySections(ctx context.Context, plan SectionPlan) (int, error) {
	if len(plan.NewSections) == 0 {
		return 0, nil
	}

	var created int64
	err := a.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sections := append([]models.Section(nil), plan.NewSections...)
		res := tx.Clauses(onKeyConflictDoNothing).Create(&sections)
		created = res.RowsAffected
		return res.Error
	})
	if err != nil {
		logger.Error("section_import_commit_failed", err, map[string]interface{}{
			"new_sections": len(plan.NewSections),
		})
		return 0, apperr.Persistence("commit_section_import", err)
	}

	a.Audit.LogAsync(AuditEntry{
		Actor:        ActorOperator,
		Action:       "import.sections_commit",
		ResourceType: "section",
		Details:      map[string]interface{}{"created": created},
		RequestID:    requestIDFrom(ctx),
	})
	return int(created), nil
}

// ApplyAccess pushes the grant for each user that has a remote identity.
// Users without an external id are skipped. By default the first remote
// failure aborts the rest of the batch; with IsolateAccessFailures every
// user is attempted and the failures are joined.
func (a *AccessService) ApplyAccess(ctx context.Context, users []models.User, revoke bool) (AccessReport, error) {
	settings := a.Settings.Current()
	var report AccessReport
	var failures []error

	for i := range users {
		user := users[i]
		if !user.HasRemoteIdentity() {
			report.Skipped++
			continue
		}

		grant := GrantFor(user, revoke, settings)
		if err := a.Directory.GrantAccess(ctx, user.Email, grant.Titles, grant.AllowSync); err != nil {
			report.Failed++
			logger.Error("access_push_failed", err, map[string]interface{}{
				"email":    user.Email,
				"fallback": grant.Fallback,
			})
			if !settings.IsolateAccessFailures {
				return report, asExternal("apply_access", err)
			}
			failures = append(failures, fmt.Errorf("%s: %w", user.Email, err))
			continue
		}

		report.Pushed++
		action := "access.grant"
		if grant.Fallback {
			action = "access.revoke"
		}
		id := user.ID
		a.Audit.LogAsync(AuditEntry{
			Actor:        actorFrom(ctx),
			Action:       action,
			ResourceType: "user",
			ResourceID:   &id,
			Email:        user.Email,
			Details: map[string]interface{}{
				"sections":   grant.Titles,
				"allow_sync": grant.AllowSync,
			},
			RequestID: requestIDFrom(ctx),
		})
	}

	if len(failures) > 0 {
		return report, apperr.External("apply_access", errors.Join(failures...))
	}
	return report, nil
}

type actorKey struct{}

// WithActor records who triggered the work carried by ctx.
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

func actorFrom(ctx context.Context) string {
	if actor, ok := ctx.Value(actorKey{}).(string); ok && actor != "" {
		return actor
	}
	return ActorOperator
}

func asExternal(op string, err error) error {
	if apperr.KindOf(err) == apperr.KindExternalService {
		return err
	}
	return apperr.External(op, err)
}
