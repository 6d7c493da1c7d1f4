package config

import (
	"strings"
	"sync"
	"sync/atomic"

	"github.com/plexshare/backend/pkg/apperr"
	"github.com/plexshare/backend/pkg/logger"
)

// Settings is an immutable snapshot of the operator-tunable options.
// Components read it through SettingsStore.Current at the start of each
// operation and never mutate it.
type Settings struct {
	DefaultExpiryDays             int    `json:"defaultExpiryDays"`
	ExpiredSectionTitle           string `json:"expiredSectionTitle"`
	AllowSync                     bool   `json:"allowSync"`
	EnableAllTasks                bool   `json:"enableAllTasks"`
	EnableUpdateStatusTask        bool   `json:"enableUpdateStatusTask"`
	EnableDisableExpiredUsersTask bool   `json:"enableDisableExpiredUsersTask"`
	LogLevel                      string `json:"logLevel"`
	IsolateAccessFailures         bool   `json:"isolateAccessFailures"`
}

// SettingsUpdate lists the fields an operator may change. Nil fields keep
// their current value.
type SettingsUpdate struct {
	DefaultExpiryDays             *int    `json:"defaultExpiryDays"`
	ExpiredSectionTitle           *string `json:"expiredSectionTitle"`
	AllowSync                     *bool   `json:"allowSync"`
	EnableAllTasks                *bool   `json:"enableAllTasks"`
	EnableUpdateStatusTask        *bool   `json:"enableUpdateStatusTask"`
	EnableDisableExpiredUsersTask *bool   `json:"enableDisableExpiredUsersTask"`
	LogLevel                      *string `json:"logLevel"`
	IsolateAccessFailures         *bool   `json:"isolateAccessFailures"`
}

func (u SettingsUpdate) IsEmpty() bool {
	return u.DefaultExpiryDays == nil && u.ExpiredSectionTitle == nil && u.AllowSync == nil &&
		u.EnableAllTasks == nil && u.EnableUpdateStatusTask == nil &&
		u.EnableDisableExpiredUsersTask == nil && u.LogLevel == nil && u.IsolateAccessFailures == nil
}

// Merge returns s with the non-nil fields of u applied.
func (s Settings) Merge(u SettingsUpdate) Settings {
	next := s
	if u.DefaultExpiryDays != nil {
		next.DefaultExpiryDays = *u.DefaultExpiryDays
	}
	if u.ExpiredSectionTitle != nil {
		next.ExpiredSectionTitle = strings.TrimSpace(*u.ExpiredSectionTitle)
	}
	if u.AllowSync != nil {
		next.AllowSync = *u.AllowSync
	}
	if u.EnableAllTasks != nil {
		next.EnableAllTasks = *u.EnableAllTasks
	}
	if u.EnableUpdateStatusTask != nil {
		next.EnableUpdateStatusTask = *u.EnableUpdateStatusTask
	}
	if u.EnableDisableExpiredUsersTask != nil {
		next.EnableDisableExpiredUsersTask = *u.EnableDisableExpiredUsersTask
	}
	if u.LogLevel != nil {
		next.LogLevel = strings.ToUpper(strings.TrimSpace(*u.LogLevel))
	}
	if u.IsolateAccessFailures != nil {
		next.IsolateAccessFailures = *u.IsolateAccessFailures
	}
	return next
}

func (s Settings) Validate() error {
	if s.DefaultExpiryDays < 0 {
		return apperr.Validation("apply_settings", "defaultExpiryDays cannot be negative")
	}
	if strings.TrimSpace(s.ExpiredSectionTitle) == "" {
		return apperr.Validation("apply_settings", "expiredSectionTitle is required")
	}
	if _, ok := logger.ParseLevel(s.LogLevel); !ok {
		return apperr.Validation("apply_settings", "unknown logLevel "+s.LogLevel)
	}
	return nil
}

// TasksEnabled reports whether the scheduler should run at all.
func (s Settings) TasksEnabled() bool {
	return s.EnableAllTasks
}

type SettingsListener func(previous, current Settings)

type SettingsStore struct {
	current atomic.Pointer[Settings]

	mu        sync.Mutex
	nextID    int
	listeners map[int]SettingsListener
}

func NewSettingsStore(initial Settings) *SettingsStore {
	s := &SettingsStore{listeners: map[int]SettingsListener{}}
	snapshot := initial
	s.current.Store(&snapshot)
	return s
}

// Current returns the snapshot in effect. The value is a copy.
func (s *SettingsStore) Current() Settings {
	return *s.current.Load()
}

// Apply validates the merged snapshot, installs it and notifies listeners.
// The returned snapshot is the one now in effect.
func (s *SettingsStore) Apply(update SettingsUpdate) (Settings, error) {
	s.mu.Lock()
	previous := s.Current()
	next := previous.Merge(update)
	if err := next.Validate(); err != nil {
		s.mu.Unlock()
		return previous, err
	}
	s.current.Store(&next)
	listeners := make([]SettingsListener, 0, len(s.listeners))
	for _, fn := range s.listeners {
		listeners = append(listeners, fn)
	}
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(previous, next)
	}
	return next, nil
}

// Replace installs a full snapshot, for example one loaded from the
// database at startup.
func (s *SettingsStore) Replace(next Settings) (Settings, error) {
	return s.Apply(SettingsUpdate{
		DefaultExpiryDays:             &next.DefaultExpiryDays,
		ExpiredSectionTitle:           &next.ExpiredSectionTitle,
		AllowSync:                     &next.AllowSync,
		EnableAllTasks:                &next.EnableAllTasks,
		EnableUpdateStatusTask:        &next.EnableUpdateStatusTask,
		EnableDisableExpiredUsersTask: &next.EnableDisableExpiredUsersTask,
		LogLevel:                      &next.LogLevel,
		IsolateAccessFailures:         &next.IsolateAccessFailures,
	})
}

// Subscribe registers fn to run after every successful Apply. The returned
// func removes it.
func (s *SettingsStore) Subscribe(fn SettingsListener) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}
