package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/plexshare/backend/internal/cli/api"
	"github.com/plexshare/backend/internal/cli/output"
	"github.com/spf13/cobra"
)

type settingKind int

const (
	settingInt settingKind = iota
	settingBool
	settingString
)

var settingKinds = map[string]settingKind{
	"defaultExpiryDays":             settingInt,
	"expiredSectionTitle":           settingString,
	"allowSync":                     settingBool,
	"enableAllTasks":                settingBool,
	"enableUpdateStatusTask":        settingBool,
	"enableDisableExpiredUsersTask": settingBool,
	"logLevel":                      settingString,
	"isolateAccessFailures":         settingBool,
}

// parseAssignments turns key=value arguments into a settings update body.
func parseAssignments(args []string) (map[string]interface{}, error) {
	body := make(map[string]interface{}, len(args))
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok {
			return nil, fmt.Errorf("expected key=value, got %q", arg)
		}
		kind, known := settingKinds[key]
		if !known {
			return nil, fmt.Errorf("unknown setting %q", key)
		}
		switch kind {
		case settingInt:
			n, err := strconv.Atoi(value)
			if err != nil {
				return nil, fmt.Errorf("%s must be a number", key)
			}
			body[key] = n
		case settingBool:
			b, err := strconv.ParseBool(value)
			if err != nil {
				return nil, fmt.Errorf("%s must be true or false", key)
			}
			body[key] = b
		default:
			body[key] = value
		}
	}
	return body, nil
}

func (a *app) settingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change operator settings",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the current settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp api.Response[api.Settings]
			if err := a.client.Get("/settings", nil, &resp); err != nil {
				return fmt.Errorf("loading settings: %w", err)
			}
			if a.flagJSON {
				output.JSON(a.out, resp)
				return nil
			}
			output.SettingsTable(a.out, resp.Data)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set key=value...",
		Short: "Change one or more settings",
		Long: `Change one or more settings.

  plexsharectl settings set defaultExpiryDays=60 allowSync=true
  plexsharectl settings set logLevel=DEBUG`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := parseAssignments(args)
			if err != nil {
				return err
			}
			var resp api.Response[api.Settings]
			if err := a.client.Put("/settings", body, &resp); err != nil {
				return fmt.Errorf("saving settings: %w", err)
			}
			if a.flagJSON {
				output.JSON(a.out, resp)
				return nil
			}
			fmt.Fprintln(a.out, resp.Message)
			output.SettingsTable(a.out, resp.Data)
			return nil
		},
	})
	return cmd
}
