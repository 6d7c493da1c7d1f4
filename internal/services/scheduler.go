package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/plexshare/backend/internal/config"
	"github.com/plexshare/backend/internal/models"
	"github.com/plexshare/backend/pkg/apperr"
	"github.com/plexshare/backend/pkg/expiry"
	"github.com/plexshare/backend/pkg/logger"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	JobUpdateStatus        = "update_status"
	JobDisableExpiredUsers = "disable_expired_users"
)

// JobResult is the outcome of one job in a cycle.
type JobResult struct {
	Job     string        `json:"job"`
	Ran     bool          `json:"ran"`
	Updated int           `json:"updated,omitempty"`
	Access  *AccessReport `json:"access,omitempty"`
	Error   string        `json:"error,omitempty"`
}

type CycleReport struct {
	StartedAt time.Time   `json:"startedAt"`
	Jobs      []JobResult `json:"jobs"`
}

// DailyTasks recomputes user statuses and moves expired users to the
// fallback section on a fixed interval. Job toggles are read from the
// settings store at the start of every cycle.
type DailyTasks struct {
	DB       *gorm.DB
	Settings *config.SettingsStore
	Access   *AccessService
	Interval time.Duration
	Now      func() time.Time

	cycleMu sync.Mutex

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewDailyTasks(db *gorm.DB, settings *config.SettingsStore, access *AccessService, interval time.Duration) *DailyTasks {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	return &DailyTasks{
		DB:       db,
		Settings: settings,
		Access:   access,
		Interval: interval,
		Now:      time.Now,
	}
}

// Start launches the loop: one cycle right away, then one per Interval.
// It reports false when the loop is already running.
func (t *DailyTasks) Start(ctx context.Context) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancel != nil {
		return false
	}

	loopCtx, cancel := context.WithCancel(WithActor(ctx, ActorScheduler))
	done := make(chan struct{})
	t.cancel = cancel
	t.done = done

	go t.loop(loopCtx, done)

	logger.Info("daily_tasks_started", map[string]interface{}{
		"interval": t.Interval.String(),
	})
	return true
}

// Stop ends the loop and waits for an in-progress cycle to finish.
func (t *DailyTasks) Stop() {
	t.mu.Lock()
	cancel, done := t.cancel, t.done
	t.cancel, t.done = nil, nil
	t.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	logger.Info("daily_tasks_stopped", nil)
}

func (t *DailyTasks) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancel != nil
}

func (t *DailyTasks) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(t.Interval)
	defer ticker.Stop()

	for {
		if t.Settings.Current().TasksEnabled() {
			t.safeCycle(ctx)
		} else {
			logger.Info("daily_tasks_skipped", map[string]interface{}{
				"reason": "all tasks disabled",
			})
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Trigger runs one cycle in the background, outside the ticker. The
// returned channel closes once the cycle has finished or panicked.
func (t *DailyTasks) Trigger(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		t.safeCycle(ctx)
	}()
	return done
}

// safeCycle keeps a panicking cycle from ending the loop.
func (t *DailyTasks) safeCycle(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("daily_tasks_cycle_panic", fmt.Errorf("%v", r), nil)
		}
	}()
	t.RunCycle(ctx)
}

// RunCycle runs each enabled job once. A failing job is logged and
// reported; it does not prevent the other job from running.
func (t *DailyTasks) RunCycle(ctx context.Context) CycleReport {
	t.cycleMu.Lock()
	defer t.cycleMu.Unlock()

	settings := t.Settings.Current()
	report := CycleReport{StartedAt: t.Now().UTC(), Jobs: []JobResult{}}

	statusJob := JobResult{Job: JobUpdateStatus}
	if settings.EnableUpdateStatusTask {
		statusJob.Ran = true
		updated, err := t.UpdateStatuses(ctx)
		statusJob.Updated = updated
		if err != nil {
			statusJob.Error = apperr.Message(err)
			logger.Error("update_status_task_failed", err, nil)
		}
	}
	report.Jobs = append(report.Jobs, statusJob)

	disableJob := JobResult{Job: JobDisableExpiredUsers}
	if settings.EnableDisableExpiredUsersTask {
		disableJob.Ran = true
		access, err := t.DisableExpiredUsers(ctx)
		disableJob.Access = &access
		if err != nil {
			disableJob.Error = apperr.Message(err)
			logger.Error("disable_expired_users_task_failed", err, nil)
		}
	}
	report.Jobs = append(report.Jobs, disableJob)

	return report
}

// UpdateStatuses recomputes expiry and status for every user and writes
// the changed rows in one transaction. It returns the number of rows
// changed.
func (t *DailyTasks) UpdateStatuses(ctx context.Context) (int, error) {
	logger.Info("update_status_task_started", nil)

	settings := t.Settings.Current()
	today := expiry.DateOf(t.Now())
	updated := 0

	err := t.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var users []models.User
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Find(&users).Error; err != nil {
			return err
		}

		for _, user := range users {
			expiryDate, status := expiry.Compute(user.ExpiryDate, user.NeverExpire, today, settings.DefaultExpiryDays)
			if status == user.Status && expiryDate.Equal(expiry.DateOf(user.ExpiryDate)) && !user.ExpiryDate.IsZero() {
				continue
			}
			// The write only lands if never_expire still matches what the
			// status was computed from; a concurrent profile edit wins.
			res := tx.Model(&models.User{}).
				Where("id = ? AND never_expire = ?", user.ID, user.NeverExpire).
				Updates(map[string]interface{}{
					"expiry_date": expiryDate,
					"status":      status,
				})
			if res.Error != nil {
				return fmt.Errorf("updating %s: %w", user.Email, res.Error)
			}
			if res.RowsAffected == 0 {
				logger.Warn("update_status_row_changed", map[string]interface{}{
					"email": user.Email,
				})
				continue
			}
			updated++
		}
		return nil
	})
	if err != nil {
		return 0, apperr.Persistence("update_status", err)
	}

	logger.Info("update_status_task_finished", map[string]interface{}{
		"updated": updated,
	})
	return updated, nil
}

// DisableExpiredUsers pushes the fallback grant for every expired user
// without never-expire, as one batch.
func (t *DailyTasks) DisableExpiredUsers(ctx context.Context) (AccessReport, error) {
	logger.Info("disable_expired_users_task_started", nil)

	var users []models.User
	if err := t.DB.WithContext(ctx).
		Preload("Sections").
		Where("status = ? AND never_expire = ?", expiry.StatusExpired, false).
		Find(&users).Error; err != nil {
		return AccessReport{}, apperr.Persistence("disable_expired_users", err)
	}

	report, err := t.Access.ApplyAccess(ctx, users, false)
	if err != nil {
		return report, err
	}

	logger.Info("disable_expired_users_task_finished", map[string]interface{}{
		"pushed":  report.Pushed,
		"skipped": report.Skipped,
	})
	return report, nil
}
