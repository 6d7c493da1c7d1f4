// Package cli implements plexsharectl, the operator command line for the
// plexshare API.
package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/plexshare/backend/internal/cli/api"
	"github.com/plexshare/backend/internal/cli/config"
	"github.com/plexshare/backend/internal/cli/output"
	"github.com/spf13/cobra"
)

type app struct {
	out io.Writer

	flagJSON      bool
	flagServerURL string
	flagToken     string

	cfg    *config.Config
	client *api.Client
}

// NewRootCmd builds the plexsharectl command tree writing to out.
func NewRootCmd(out io.Writer) *cobra.Command {
	a := &app{out: out}

	root := &cobra.Command{
		Use:   "plexsharectl",
		Short: "Manage who can see your Plex libraries",
		Long: `plexsharectl talks to a plexshare server to invite, expire and
remove the people your Plex server is shared with.

Get started:
  plexsharectl login --server http://localhost:8080 --token X
  plexsharectl import sections --commit
  plexsharectl import users --commit
  plexsharectl users list`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			if a.flagServerURL != "" {
				cfg.ServerURL = a.flagServerURL
			}
			if a.flagToken != "" {
				cfg.Token = a.flagToken
			}
			a.cfg = cfg
			a.client = api.NewClient(cfg.ServerURL, cfg.Token)
			return nil
		},
	}
	root.SetOut(out)
	root.SetErr(out)

	root.PersistentFlags().BoolVar(&a.flagJSON, "json", false, "Output as JSON")
	root.PersistentFlags().StringVar(&a.flagServerURL, "server", "", "Override server URL (default: from config or http://localhost:8080)")
	root.PersistentFlags().StringVar(&a.flagToken, "token", "", "Override the operator token")

	root.AddCommand(
		a.loginCmd(),
		a.usersCmd(),
		a.sectionsCmd(),
		a.importCmd(),
		a.tasksCmd(),
		a.settingsCmd(),
	)
	return root
}

func (a *app) loginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Save the server URL and operator token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var health map[string]interface{}
			probe := api.NewClient(a.cfg.ServerURL, a.cfg.Token)
			probe.BaseURL = strings.TrimRight(a.cfg.ServerURL, "/")
			if err := probe.Get("/health", nil, &health); err != nil {
				return fmt.Errorf("reaching %s: %w", a.cfg.ServerURL, err)
			}
			if err := config.Save(a.cfg); err != nil {
				return fmt.Errorf("saving config: %w", err)
			}
			fmt.Fprintf(a.out, "Saved configuration for %s\n", a.cfg.ServerURL)
			return nil
		},
	}
}

// printMessage prints the server's outcome message unless --json is set,
// in which case the whole envelope is printed.
func (a *app) printMessage(envelope interface{}, message string) {
	if a.flagJSON {
		output.JSON(a.out, envelope)
		return
	}
	fmt.Fprintln(a.out, message)
}
