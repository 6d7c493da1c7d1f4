package cli

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/plexshare/backend/internal/cli/api"
	"github.com/plexshare/backend/internal/cli/output"
	"github.com/spf13/cobra"
)

func (a *app) usersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "List, invite and remove users",
	}
	cmd.AddCommand(
		a.usersListCmd(),
		a.usersInviteCmd(),
		a.usersUpdateCmd(),
		a.usersSectionsCmd(),
		a.usersUninviteCmd(),
		a.usersDeleteCmd(),
	)
	return cmd
}

func (a *app) usersListCmd() *cobra.Command {
	var (
		sort   string
		desc   bool
		search string
		page   int
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List local users",
		Long: `List local users.

  plexsharectl users list --sort "Expiry Date"
  plexsharectl users list --search gmail --desc`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			params := url.Values{}
			if sort != "" {
				params.Set("sort", sort)
			}
			if desc {
				params.Set("desc", "true")
			}
			if search != "" {
				params.Set("search", search)
			}
			if page > 0 {
				params.Set("page", strconv.Itoa(page))
			}
			if limit > 0 {
				params.Set("limit", strconv.Itoa(limit))
			}

			var resp api.Response[[]api.User]
			if err := a.client.Get("/users", params, &resp); err != nil {
				return fmt.Errorf("listing users: %w", err)
			}
			if a.flagJSON {
				output.JSON(a.out, resp)
				return nil
			}
			output.UserTable(a.out, resp.Data)
			if resp.Pagination != nil && resp.Pagination.TotalPages > 1 {
				fmt.Fprintf(a.out, "\nPage %d of %d (%d users)\n", resp.Pagination.Page, resp.Pagination.TotalPages, resp.Pagination.Total)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&sort, "sort", "", "Sort by ID, Name, Username, Email or \"Expiry Date\"")
	cmd.Flags().BoolVar(&desc, "desc", false, "Sort descending")
	cmd.Flags().StringVar(&search, "search", "", "Filter by name, username, email or expiry date")
	cmd.Flags().IntVar(&page, "page", 0, "Page number")
	cmd.Flags().IntVar(&limit, "limit", 0, "Page size")
	return cmd
}

func (a *app) usersInviteCmd() *cobra.Command {
	var req api.InviteRequest
	cmd := &cobra.Command{
		Use:   "invite <email>",
		Short: "Invite someone to the Plex server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Email = args[0]
			var resp api.Response[api.User]
			if err := a.client.Post("/users/invite", req, &resp); err != nil {
				return fmt.Errorf("inviting %s: %w", args[0], err)
			}
			a.printMessage(resp, resp.Message)
			return nil
		},
	}
	cmd.Flags().StringVar(&req.Name, "name", "", "Display name")
	cmd.Flags().StringVar(&req.ExpiryDate, "expiry", "", "Expiry date (YYYY-MM-DD); default is the configured number of days from today")
	cmd.Flags().BoolVar(&req.NeverExpire, "never-expire", false, "Never expire this user")
	cmd.Flags().StringSliceVar(&req.SectionKeys, "section", nil, "Section key to share (repeatable)")
	return cmd
}

func (a *app) usersUpdateCmd() *cobra.Command {
	var (
		name        string
		expiry      string
		neverExpire bool
	)
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Edit a user's name, expiry date or never-expire flag",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]interface{}{}
			if cmd.Flags().Changed("name") {
				body["name"] = name
			}
			if cmd.Flags().Changed("expiry") {
				body["expiryDate"] = expiry
			}
			if cmd.Flags().Changed("never-expire") {
				body["neverExpire"] = neverExpire
			}
			if len(body) == 0 {
				return fmt.Errorf("nothing to update: pass --name, --expiry or --never-expire")
			}

			var resp api.Response[api.User]
			if err := a.client.Put("/users/"+url.PathEscape(args[0]), body, &resp); err != nil {
				return fmt.Errorf("updating user: %w", err)
			}
			a.printMessage(resp, resp.Message)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Display name")
	cmd.Flags().StringVar(&expiry, "expiry", "", "Expiry date (YYYY-MM-DD)")
	cmd.Flags().BoolVar(&neverExpire, "never-expire", false, "Never expire this user")
	return cmd
}

func (a *app) usersSectionsCmd() *cobra.Command {
	var keys []string
	cmd := &cobra.Command{
		Use:   "sections <id>",
		Short: "Replace the sections shared with a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]interface{}{"sectionKeys": keys}
			var resp api.Response[api.User]
			if err := a.client.Put("/users/"+url.PathEscape(args[0])+"/sections", body, &resp); err != nil {
				return fmt.Errorf("updating sections: %w", err)
			}
			a.printMessage(resp, resp.Message)
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&keys, "section", nil, "Section key to share (repeatable); none clears the set")
	return cmd
}

func (a *app) usersUninviteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "uninvite <id>",
		Short: "Cancel a user's invite or friendship and remove them",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp api.Response[any]
			if err := a.client.Post("/users/"+url.PathEscape(args[0])+"/uninvite", nil, &resp); err != nil {
				return fmt.Errorf("uninviting user: %w", err)
			}
			a.printMessage(resp, resp.Message)
			return nil
		},
	}
}

func (a *app) usersDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Move a user to the expired section and remove them",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp api.Response[any]
			if err := a.client.Delete("/users/"+url.PathEscape(args[0]), &resp); err != nil {
				return fmt.Errorf("deleting user: %w", err)
			}
			a.printMessage(resp, resp.Message)
			return nil
		},
	}
}
