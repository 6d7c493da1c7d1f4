package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/plexshare/backend/internal/config"
	"github.com/plexshare/backend/internal/models"
	"github.com/plexshare/backend/internal/plex"
	"github.com/plexshare/backend/pkg/apperr"
	"github.com/plexshare/backend/pkg/expiry"
	"github.com/plexshare/backend/pkg/logger"
	"github.com/plexshare/backend/pkg/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// sortColumns maps the operator-facing sort names, and the column names
// themselves, to sortable columns.
var sortColumns = map[string]string{
	"ID":          "external_id",
	"Name":        "name",
	"Username":    "username",
	"Email":       "email",
	"Expiry Date": "expiry_date",
	"external_id": "external_id",
	"name":        "name",
	"username":    "username",
	"email":       "email",
	"expiry_date": "expiry_date",
	"status":      "status",
}

// SortFields lists the display names accepted by ListQuery.SortField.
func SortFields() []string {
	return []string{"ID", "Name", "Username", "Email", "Expiry Date"}
}

type ListQuery struct {
	SortField      string
	SortDescending bool
	Search         string
	Pagination     utils.PaginationParams
}

type InviteRequest struct {
	Email       string   `json:"email"`
	Name        string   `json:"name"`
	ExpiryDate  string   `json:"expiryDate"`
	NeverExpire bool     `json:"neverExpire"`
	SectionKeys []string `json:"sectionKeys"`
}

// ProfileUpdate lists the profile fields an operator may edit. Nil fields
// are left unchanged.
type ProfileUpdate struct {
	Name        *string `json:"name"`
	ExpiryDate  *string `json:"expiryDate"`
	NeverExpire *bool   `json:"neverExpire"`
}

// UserDirectory is the operator-facing roster. Every mutation leaves the
// local store and the remote directory in the order its flow requires and
// returns the committed row.
type UserDirectory struct {
	DB        *gorm.DB
	Directory plex.Directory
	Settings  *config.SettingsStore
	Access    *AccessService
	Audit     *AuditService
	Now       func() time.Time
}

func NewUserDirectory(db *gorm.DB, directory plex.Directory, settings *config.SettingsStore, access *AccessService, audit *AuditService) *UserDirectory {
	return &UserDirectory{
		DB:        db,
		Directory: directory,
		Settings:  settings,
		Access:    access,
		Audit:     audit,
		Now:       time.Now,
	}
}

func (d *UserDirectory) today() time.Time {
	return expiry.DateOf(d.Now())
}

func (d *UserDirectory) ListFiltered(ctx context.Context, q ListQuery) ([]models.User, int64, error) {
	query := d.DB.WithContext(ctx).Model(&models.User{})

	if term := strings.ToLower(strings.TrimSpace(q.Search)); term != "" {
		like := "%" + term + "%"
		query = query.Where(
			"LOWER(name) LIKE ? OR LOWER(username) LIKE ? OR LOWER(email) LIKE ? OR CAST(expiry_date AS TEXT) LIKE ?",
			like, like, like, like,
		)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, apperr.Persistence("list_users", err)
	}

	if q.SortField != "" {
		column, ok := sortColumns[q.SortField]
		if !ok {
			return nil, 0, apperr.Validation("list_users",
				fmt.Sprintf("unknown sort field %q, expected one of %s", q.SortField, strings.Join(SortFields(), ", ")))
		}
		query = query.Order(clause.OrderByColumn{Column: clause.Column{Name: column}, Desc: q.SortDescending})
	}
	query = query.Order("created_at ASC")

	pagination := q.Pagination
	if pagination.Limit == 0 {
		pagination = utils.NewPagination(1, utils.DefaultPageLimit)
	}

	var users []models.User
	if err := utils.ApplyPagination(query, pagination).Preload("Sections").Find(&users).Error; err != nil {
		return nil, 0, apperr.Persistence("list_users", err)
	}
	return users, total, nil
}

func (d *UserDirectory) Get(ctx context.Context, id uuid.UUID) (models.User, error) {
	return d.load(d.DB.WithContext(ctx), "get_user", id)
}

func (d *UserDirectory) load(db *gorm.DB, op string, id uuid.UUID) (models.User, error) {
	var user models.User
	err := db.Preload("Sections").First(&user, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.User{}, apperr.NotFound(op, "user not found")
	}
	if err != nil {
		return models.User{}, apperr.Persistence(op, err)
	}
	return user, nil
}

// Invite sends the remote invite first and stores the user only once it
// was accepted by the directory.
func (d *UserDirectory) Invite(ctx context.Context, req InviteRequest) (models.User, error) {
	email := models.NormalizeEmail(req.Email)
	if email == "" {
		return models.User{}, apperr.Validation("invite_user", "email is required")
	}
	if !strings.Contains(email, "@") {
		return models.User{}, apperr.Validation("invite_user", "email is not a valid address")
	}

	db := d.DB.WithContext(ctx)

	var existing int64
	if err := db.Model(&models.User{}).Where("email = ?", email).Count(&existing).Error; err != nil {
		return models.User{}, apperr.Persistence("invite_user", err)
	}
	if existing > 0 {
		return models.User{}, apperr.Conflict("invite_user", "a user with this email already exists")
	}

	settings := d.Settings.Current()
	expiryDate, status, err := expiry.ComputeString(req.ExpiryDate, req.NeverExpire, d.today(), settings.DefaultExpiryDays)
	if err != nil {
		return models.User{}, err
	}

	sections, err := sectionsByKey(db, "invite_user", req.SectionKeys)
	if err != nil {
		return models.User{}, err
	}

	user := models.User{
		Name:          strings.TrimSpace(req.Name),
		Email:         email,
		NeverExpire:   req.NeverExpire,
		InvitePending: true,
		ExpiryDate:    expiryDate,
		Status:        status,
		Sections:      sections,
	}

	grant := GrantFor(user, false, settings)
	if err := d.Directory.InviteUser(ctx, email, grant.Titles, grant.AllowSync); err != nil {
		logger.Error("invite_remote_failed", err, map[string]interface{}{"email": email})
		return models.User{}, asExternal("invite_user", err)
	}

	if err := db.Transaction(func(tx *gorm.DB) error {
		return tx.Omit("Sections.*").Create(&user).Error
	}); err != nil {
		logger.Error("invite_store_failed", err, map[string]interface{}{"email": email})
		return models.User{}, &apperr.Error{
			Kind:    apperr.KindPersistence,
			Op:      "invite_user",
			Message: "invite was sent but the user could not be saved locally",
			Err:     err,
		}
	}

	d.audit(ctx, "user.invite", user, map[string]interface{}{"sections": grant.Titles})
	return d.load(db, "invite_user", user.ID)
}

// Uninvite cancels the remote invite or friendship and then deletes the
// local record. A remote failure leaves the record in place.
func (d *UserDirectory) Uninvite(ctx context.Context, id uuid.UUID) error {
	db := d.DB.WithContext(ctx)
	user, err := d.load(db, "uninvite_user", id)
	if err != nil {
		return err
	}

	if user.HasRemoteIdentity() || user.InvitePending {
		if err := d.Directory.CancelInvite(ctx, user.Email); err != nil {
			logger.Error("uninvite_remote_failed", err, map[string]interface{}{"email": user.Email})
			return asExternal("uninvite_user", err)
		}
	}

	if err := d.remove(db, user); err != nil {
		return d.removeFailed("uninvite_user", user, err)
	}

	d.audit(ctx, "user.uninvite", user, nil)
	return nil
}

// Delete moves a remote friend to the fallback section and then deletes
// the local record. A remote failure leaves the record in place.
func (d *UserDirectory) Delete(ctx context.Context, id uuid.UUID) error {
	db := d.DB.WithContext(ctx)
	user, err := d.load(db, "delete_user", id)
	if err != nil {
		return err
	}

	if user.HasRemoteIdentity() {
		if _, err := d.Access.ApplyAccess(ctx, []models.User{user}, true); err != nil {
			return err
		}
	}

	if err := d.remove(db, user); err != nil {
		return d.removeFailed("delete_user", user, err)
	}

	d.audit(ctx, "user.delete", user, nil)
	return nil
}

func (d *UserDirectory) remove(db *gorm.DB, user models.User) error {
	return db.Transaction(func(tx *gorm.DB) error {
		res := tx.Select("Sections").Delete(&user)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}

func (d *UserDirectory) removeFailed(op string, user models.User, err error) error {
	logger.Error(op+"_store_failed", err, map[string]interface{}{"email": user.Email})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.NotFound(op, "user was removed concurrently")
	}
	return &apperr.Error{
		Kind:    apperr.KindPersistence,
		Op:      op,
		Message: "remote access was revoked but the local record could not be deleted",
		Err:     err,
	}
}

// UpdateProfile recomputes the status from the edited expiry, commits it,
// then pushes the user's access to the remote directory.
func (d *UserDirectory) UpdateProfile(ctx context.Context, id uuid.UUID, update ProfileUpdate) (models.User, error) {
	db := d.DB.WithContext(ctx)
	settings := d.Settings.Current()

	err := db.Transaction(func(tx *gorm.DB) error {
		var user models.User
		if err := lockUser(tx, id, &user); err != nil {
			return err
		}

		name := user.Name
		if update.Name != nil {
			name = strings.TrimSpace(*update.Name)
		}
		neverExpire := user.NeverExpire
		if update.NeverExpire != nil {
			neverExpire = *update.NeverExpire
		}
		currentExpiry := user.ExpiryDate
		if update.ExpiryDate != nil {
			parsed, err := expiry.Parse(*update.ExpiryDate)
			if err != nil {
				return err
			}
			currentExpiry = parsed
		}
		expiryDate, status := expiry.Compute(currentExpiry, neverExpire, d.today(), settings.DefaultExpiryDays)

		return tx.Model(&user).Updates(map[string]interface{}{
			"name":         name,
			"never_expire": neverExpire,
			"expiry_date":  expiryDate,
			"status":       status,
		}).Error
	})
	if err != nil {
		return models.User{}, classifyTxError("update_user", err)
	}

	user, err := d.load(db, "update_user", id)
	if err != nil {
		return models.User{}, err
	}
	d.audit(ctx, "user.profile_update", user, map[string]interface{}{
		"expiry_date": user.ExpiryDate.Format(expiry.DateLayout),
		"status":      string(user.Status),
	})
	return user, d.push(ctx, "update_user", user)
}

// UpdateSections replaces the user's sections with the known sections
// matching keys, commits, then pushes the user's access.
func (d *UserDirectory) UpdateSections(ctx context.Context, id uuid.UUID, keys []string) (models.User, error) {
	db := d.DB.WithContext(ctx)

	err := db.Transaction(func(tx *gorm.DB) error {
		var user models.User
		if err := lockUser(tx, id, &user); err != nil {
			return err
		}
		sections, err := sectionsByKey(tx, "update_user_sections", keys)
		if err != nil {
			return err
		}
		return tx.Model(&user).Association("Sections").Replace(sections)
	})
	if err != nil {
		return models.User{}, classifyTxError("update_user_sections", err)
	}

	user, err := d.load(db, "update_user_sections", id)
	if err != nil {
		return models.User{}, err
	}
	d.audit(ctx, "user.sections_update", user, map[string]interface{}{"sections": user.SectionTitles()})
	return user, d.push(ctx, "update_user_sections", user)
}

// push mirrors a committed change. The returned error reports that the
// local change stands while the remote one did not happen.
func (d *UserDirectory) push(ctx context.Context, op string, user models.User) error {
	if !user.HasRemoteIdentity() {
		return nil
	}
	if _, err := d.Access.ApplyAccess(ctx, []models.User{user}, false); err != nil {
		return &apperr.Error{
			Kind:    apperr.KindExternalService,
			Op:      op,
			Message: "saved locally but the remote access update failed",
			Err:     err,
		}
	}
	return nil
}

func (d *UserDirectory) audit(ctx context.Context, action string, user models.User, details map[string]interface{}) {
	id := user.ID
	d.Audit.LogAsync(AuditEntry{
		Actor:        actorFrom(ctx),
		Action:       action,
		ResourceType: "user",
		ResourceID:   &id,
		Email:        user.Email,
		Details:      details,
		RequestID:    requestIDFrom(ctx),
	})
}

// lockUser loads the row for update so concurrent edits of one user
// serialize.
func lockUser(tx *gorm.DB, id uuid.UUID, user *models.User) error {
	return tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(user, "id = ?", id).Error
}

func sectionsByKey(db *gorm.DB, op string, keys []string) ([]models.Section, error) {
	wanted := make([]string, 0, len(keys))
	seen := map[string]bool{}
	for _, key := range keys {
		key = strings.TrimSpace(key)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		wanted = append(wanted, key)
	}
	if len(wanted) == 0 {
		return []models.Section{}, nil
	}

	var sections []models.Section
	if err := db.Where(map[string]interface{}{"key": wanted}).Order("title ASC").Find(&sections).Error; err != nil {
		return nil, apperr.Persistence(op, err)
	}
	if len(sections) != len(wanted) {
		found := map[string]bool{}
		for _, s := range sections {
			found[s.Key] = true
		}
		for _, key := range wanted {
			if !found[key] {
				return nil, apperr.Validation(op, fmt.Sprintf("unknown section key %q", key))
			}
		}
	}
	return sections, nil
}

func classifyTxError(op string, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.NotFound(op, "user not found")
	}
	if apperr.KindOf(err) != apperr.KindInternal {
		return err
	}
	return apperr.Persistence(op, err)
}
