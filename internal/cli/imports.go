package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/plexshare/backend/internal/cli/api"
	"github.com/plexshare/backend/internal/cli/output"
	"github.com/spf13/cobra"
)

func (a *app) sectionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sections",
		Short: "List imported library sections",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp api.Response[[]api.Section]
			if err := a.client.Get("/sections", nil, &resp); err != nil {
				return fmt.Errorf("listing sections: %w", err)
			}
			if a.flagJSON {
				output.JSON(a.out, resp)
				return nil
			}
			output.SectionTable(a.out, resp.Data)
			return nil
		},
	}
}

func (a *app) importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Reconcile users or sections with the Plex server",
		Long: `Reconcile the local roster with the Plex server.

A pass only prepares a plan; nothing is written until it is committed.

  plexsharectl import sections            Preview new sections
  plexsharectl import sections --commit   Preview and write them
  plexsharectl import users --commit      Import users (needs sections first)
  plexsharectl import status              Show pending plans`,
	}
	cmd.AddCommand(
		a.importKindCmd("users", "Import remote friends and pending invites"),
		a.importKindCmd("sections", "Import library sections"),
		a.importStatusCmd(),
	)
	return cmd
}

func (a *app) importKindCmd(kind, short string) *cobra.Command {
	var commit bool
	cmd := &cobra.Command{
		Use:   kind,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var plan api.Response[map[string]any]
			if err := a.client.Post("/imports/"+kind, nil, &plan); err != nil {
				return fmt.Errorf("importing %s: %w", kind, err)
			}
			if !commit {
				a.printMessage(plan, plan.Message)
				return nil
			}

			var result api.Response[map[string]any]
			if err := a.client.Post("/imports/"+kind+"/commit", nil, &result); err != nil {
				return fmt.Errorf("committing %s import: %w", kind, err)
			}
			if a.flagJSON {
				output.JSON(a.out, result)
				return nil
			}
			fmt.Fprintln(a.out, plan.Message)
			fmt.Fprintln(a.out, result.Message)
			return nil
		},
	}
	cmd.Flags().BoolVar(&commit, "commit", false, "Commit the prepared plan")
	return cmd
}

func (a *app) importStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show running imports and pending plans",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp api.Response[api.ImportStatus]
			if err := a.client.Get("/imports", nil, &resp); err != nil {
				return fmt.Errorf("loading import status: %w", err)
			}
			if a.flagJSON {
				output.JSON(a.out, resp)
				return nil
			}
			w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "KIND\tRUNNING\tPENDING")
			fmt.Fprintf(w, "users\t%v\t%d\n", resp.Data.Users.Running, resp.Data.Users.Pending)
			fmt.Fprintf(w, "sections\t%v\t%d\n", resp.Data.Sections.Running, resp.Data.Sections.Pending)
			return w.Flush()
		},
	}
}

func (a *app) tasksCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "Run the daily status and expiry tasks",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Run one task cycle now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp api.Response[api.CycleReport]
			if err := a.client.Post("/tasks/run", nil, &resp); err != nil {
				return fmt.Errorf("running tasks: %w", err)
			}
			if a.flagJSON {
				output.JSON(a.out, resp)
				return nil
			}
			fmt.Fprintln(a.out, resp.Message)
			output.CycleTable(a.out, resp.Data)
			return nil
		},
	})
	return cmd
}
