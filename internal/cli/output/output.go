package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/plexshare/backend/internal/cli/api"
)

// JSON prints v as indented JSON.
func JSON(w io.Writer, v interface{}) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

// UserTable prints users as a human-readable table.
func UserTable(out io.Writer, users []api.User) {
	if len(users) == 0 {
		fmt.Fprintln(out, "No users found.")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tEMAIL\tNAME\tUSERNAME\tEXPIRES\tSTATUS\tSECTIONS")
	for _, u := range users {
		username := "-"
		if u.Username != nil && *u.Username != "" {
			username = *u.Username
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			u.ID, u.Email, dash(u.Name), username, ExpiryLabel(u), StatusLabel(u), SectionTitles(u.Sections))
	}
	w.Flush()
}

func SectionTable(out io.Writer, sections []api.Section) {
	if len(sections) == 0 {
		fmt.Fprintln(out, "No sections found.")
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "KEY\tTITLE")
	for _, s := range sections {
		fmt.Fprintf(w, "%s\t%s\n", s.Key, s.Title)
	}
	w.Flush()
}

func SettingsTable(out io.Writer, s api.Settings) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "defaultExpiryDays:\t%d\n", s.DefaultExpiryDays)
	fmt.Fprintf(w, "expiredSectionTitle:\t%s\n", s.ExpiredSectionTitle)
	fmt.Fprintf(w, "allowSync:\t%v\n", s.AllowSync)
	fmt.Fprintf(w, "enableAllTasks:\t%v\n", s.EnableAllTasks)
	fmt.Fprintf(w, "enableUpdateStatusTask:\t%v\n", s.EnableUpdateStatusTask)
	fmt.Fprintf(w, "enableDisableExpiredUsersTask:\t%v\n", s.EnableDisableExpiredUsersTask)
	fmt.Fprintf(w, "logLevel:\t%s\n", s.LogLevel)
	fmt.Fprintf(w, "isolateAccessFailures:\t%v\n", s.IsolateAccessFailures)
	w.Flush()
}

func CycleTable(out io.Writer, report api.CycleReport) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "JOB\tRAN\tRESULT")
	for _, job := range report.Jobs {
		result := "-"
		switch {
		case job.Error != "":
			result = "error: " + job.Error
		case job.Access != nil:
			result = fmt.Sprintf("%d pushed, %d skipped, %d failed", job.Access.Pushed, job.Access.Skipped, job.Access.Failed)
		case job.Ran:
			result = fmt.Sprintf("%d updated", job.Updated)
		}
		fmt.Fprintf(w, "%s\t%v\t%s\n", job.Job, job.Ran, result)
	}
	w.Flush()
}

// ExpiryLabel shows "never" for never-expiring users and the date otherwise.
func ExpiryLabel(u api.User) string {
	if u.NeverExpire {
		return "never"
	}
	if u.ExpiryDate.IsZero() {
		return "-"
	}
	return u.ExpiryDate.Format("2006-01-02")
}

func StatusLabel(u api.User) string {
	if u.InvitePending {
		return u.Status + " (invited)"
	}
	return u.Status
}

func SectionTitles(sections []api.Section) string {
	if len(sections) == 0 {
		return "-"
	}
	titles := make([]string, 0, len(sections))
	for _, s := range sections {
		titles = append(titles, s.Title)
	}
	return strings.Join(titles, ", ")
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
