package models

import (
	"testing"

	"github.com/google/uuid"
)

func strPtr(s string) *string { return &s }

func int64Ptr(v int64) *int64 { return &v }

func TestBaseModel_BeforeCreate(t *testing.T) {
	t.Run("generates UUID if not set", func(t *testing.T) {
		model := &BaseModel{}
		if err := model.BeforeCreate(nil); err != nil {
			t.Fatalf("BeforeCreate returned error: %v", err)
		}
		if model.ID == uuid.Nil {
			t.Error("expected ID to be generated, got nil UUID")
		}
	})

	t.Run("preserves existing UUID", func(t *testing.T) {
		existingID := uuid.New()
		model := &BaseModel{ID: existingID}
		if err := model.BeforeCreate(nil); err != nil {
			t.Fatalf("BeforeCreate returned error: %v", err)
		}
		if model.ID != existingID {
			t.Errorf("expected ID to remain %s, got %s", existingID, model.ID)
		}
	})
}

func TestUser_IsIncomplete(t *testing.T) {
	complete := func() User {
		return User{
			ExternalID: int64Ptr(1),
			Username:   strPtr("a"),
			Email:      "a@x.com",
			AvatarURL:  strPtr("u"),
		}
	}

	tests := []struct {
		name   string
		mutate func(u *User)
		want   bool
	}{
		{name: "all fields populated", mutate: func(u *User) {}, want: false},
		{name: "nil username", mutate: func(u *User) { u.Username = nil }, want: true},
		{name: "empty username", mutate: func(u *User) { u.Username = strPtr(" ") }, want: true},
		{name: "nil external id", mutate: func(u *User) { u.ExternalID = nil }, want: true},
		{name: "nil avatar", mutate: func(u *User) { u.AvatarURL = nil }, want: true},
		{name: "empty email", mutate: func(u *User) { u.Email = "" }, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := complete()
			tt.mutate(&u)
			if got := u.IsIncomplete(); got != tt.want {
				t.Errorf("IsIncomplete() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestUser_SectionTitles(t *testing.T) {
	u := User{Sections: []Section{{Key: "1", Title: "Movies"}, {Key: "2", Title: "TV Shows"}}}
	titles := u.SectionTitles()
	if len(titles) != 2 || titles[0] != "Movies" || titles[1] != "TV Shows" {
		t.Errorf("unexpected titles %v", titles)
	}
	if len((&User{}).SectionTitles()) != 0 {
		t.Error("expected no titles for a user without sections")
	}
}

func TestNormalizeEmail(t *testing.T) {
	if got := NormalizeEmail("  Alice@Example.COM "); got != "alice@example.com" {
		t.Errorf("unexpected normalized email %q", got)
	}
}

func TestTableNames(t *testing.T) {
	if (User{}).TableName() != "users" {
		t.Error("unexpected users table name")
	}
	if (Section{}).TableName() != "sections" {
		t.Error("unexpected sections table name")
	}
	if (AuditLog{}).TableName() != "audit_logs" {
		t.Error("unexpected audit table name")
	}
	if (AppSetting{}).TableName() != "app_settings" {
		t.Error("unexpected settings table name")
	}
}
