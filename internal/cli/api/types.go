package api

import "time"

type Section struct {
	ID    string `json:"id"`
	Key   string `json:"key"`
	Title string `json:"title"`
}

type User struct {
	ID            string    `json:"id"`
	ExternalID    *int64    `json:"externalID"`
	Username      *string   `json:"username"`
	Name          string    `json:"name"`
	Email         string    `json:"email"`
	NeverExpire   bool      `json:"neverExpire"`
	InvitePending bool      `json:"invitePending"`
	ExpiryDate    time.Time `json:"expiryDate"`
	Status        string    `json:"status"`
	Sections      []Section `json:"sections"`
}

type InviteRequest struct {
	Email       string   `json:"email"`
	Name        string   `json:"name,omitempty"`
	ExpiryDate  string   `json:"expiryDate,omitempty"`
	NeverExpire bool     `json:"neverExpire,omitempty"`
	SectionKeys []string `json:"sectionKeys,omitempty"`
}

type UserRepair struct {
	UserID string `json:"userID"`
	Email  string `json:"email"`
}

type UserPlan struct {
	NewUsers           []User       `json:"newUsers"`
	UsersNeedingUpdate []UserRepair `json:"usersNeedingUpdate"`
}

type SectionPlan struct {
	NewSections []Section `json:"newSections"`
}

type ImportKindStatus struct {
	Running    bool       `json:"running"`
	Pending    int        `json:"pending"`
	PreparedAt *time.Time `json:"preparedAt,omitempty"`
}

type ImportStatus struct {
	Users    ImportKindStatus `json:"users"`
	Sections ImportKindStatus `json:"sections"`
}

type AccessReport struct {
	Pushed  int `json:"pushed"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

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

// Settings mirrors the server's settings snapshot.
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
