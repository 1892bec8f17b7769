package main

import (
	"github.com/spf13/cobra"
)

func newCreateUserCommand(opts *cliOptions) *cobra.Command {
	var name, email, password string
	cmd := &cobra.Command{
		Use:   "create-user",
		Short: "Create a user entity",
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, client, err := dial(opts)
			if err != nil {
				return err
			}
			defer conn.Close()

			ctx, cancel := withTimeout(opts)
			defer cancel()

			resp, err := client.Submit(ctx, "CreateUser", map[string]any{"Name": name, "Email": email, "Password": password})
			if err != nil {
				return err
			}
			return printResult(resp)
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "user display name")
	cmd.Flags().StringVar(&email, "email", "", "user email (unique, lowercase-normalized)")
	cmd.Flags().StringVar(&password, "password", "", "initial password (hashed server-side, never stored in plaintext)")
	cmd.MarkFlagRequired("name")
	return cmd
}

func newCreateGroupCommand(opts *cliOptions) *cobra.Command {
	var name, description string
	cmd := &cobra.Command{
		Use:   "create-group",
		Short: "Create a group entity",
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, client, err := dial(opts)
			if err != nil {
				return err
			}
			defer conn.Close()

			ctx, cancel := withTimeout(opts)
			defer cancel()

			resp, err := client.Submit(ctx, "CreateGroup", map[string]any{"Name": name, "Description": description})
			if err != nil {
				return err
			}
			return printResult(resp)
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "group name")
	cmd.Flags().StringVar(&description, "description", "", "group description")
	cmd.MarkFlagRequired("name")
	return cmd
}

func newCreateRoleCommand(opts *cliOptions) *cobra.Command {
	var name, description string
	cmd := &cobra.Command{
		Use:   "create-role",
		Short: "Create a role entity",
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, client, err := dial(opts)
			if err != nil {
				return err
			}
			defer conn.Close()

			ctx, cancel := withTimeout(opts)
			defer cancel()

			resp, err := client.Submit(ctx, "CreateRole", map[string]any{"Name": name, "Description": description})
			if err != nil {
				return err
			}
			return printResult(resp)
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "role name")
	cmd.Flags().StringVar(&description, "description", "", "role description")
	cmd.MarkFlagRequired("name")
	return cmd
}

func newGetCommand(opts *cliOptions) *cobra.Command {
	var kind string
	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Fetch an entity by id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			conn, client, err := dial(opts)
			if err != nil {
				return err
			}
			defer conn.Close()

			ctx, cancel := withTimeout(opts)
			defer cancel()

			resp, err := client.Submit(ctx, getKind(kind), id)
			if err != nil {
				return err
			}
			return printResult(resp)
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "entity", "entity kind to fetch: user, group, role, or entity (kind-agnostic)")
	return cmd
}

func getKind(kind string) string {
	switch kind {
	case "user":
		return "GetUser"
	case "group":
		return "GetGroup"
	case "role":
		return "GetRole"
	default:
		return "GetEntity"
	}
}

func newUpdateUserCommand(opts *cliOptions) *cobra.Command {
	var name, email, password string
	var active bool
	var setActive bool
	cmd := &cobra.Command{
		Use:   "update-user <id>",
		Short: "Update a user's name, email, password, or active flag",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			update := map[string]any{}
			if cmd.Flags().Changed("name") {
				update["Name"] = name
			}
			if cmd.Flags().Changed("email") {
				update["Email"] = email
			}
			if cmd.Flags().Changed("password") {
				update["Password"] = password
			}
			if setActive {
				update["IsActive"] = active
			}

			conn, client, err := dial(opts)
			if err != nil {
				return err
			}
			defer conn.Close()

			ctx, cancel := withTimeout(opts)
			defer cancel()

			resp, err := client.Submit(ctx, "UpdateUser", map[string]any{"ID": id, "Update": update})
			if err != nil {
				return err
			}
			return printResult(resp)
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "new name")
	cmd.Flags().StringVar(&email, "email", "", "new email")
	cmd.Flags().StringVar(&password, "password", "", "new password (hashed server-side, never stored in plaintext)")
	cmd.Flags().BoolVar(&active, "active", true, "new active flag (requires --set-active)")
	cmd.Flags().BoolVar(&setActive, "set-active", false, "apply --active")
	return cmd
}

func newUpdateGroupCommand(opts *cliOptions) *cobra.Command {
	var name, description string
	cmd := &cobra.Command{
		Use:   "update-group <id>",
		Short: "Update a group's name or description",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			update := map[string]any{}
			if cmd.Flags().Changed("name") {
				update["Name"] = name
			}
			if cmd.Flags().Changed("description") {
				update["Description"] = description
			}

			conn, client, err := dial(opts)
			if err != nil {
				return err
			}
			defer conn.Close()

			ctx, cancel := withTimeout(opts)
			defer cancel()

			resp, err := client.Submit(ctx, "UpdateGroup", map[string]any{"ID": id, "Update": update})
			if err != nil {
				return err
			}
			return printResult(resp)
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "new name")
	cmd.Flags().StringVar(&description, "description", "", "new description")
	return cmd
}

func newUpdateRoleCommand(opts *cliOptions) *cobra.Command {
	var name, description string
	cmd := &cobra.Command{
		Use:   "update-role <id>",
		Short: "Update a role's name or description",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			update := map[string]any{}
			if cmd.Flags().Changed("name") {
				update["Name"] = name
			}
			if cmd.Flags().Changed("description") {
				update["Description"] = description
			}

			conn, client, err := dial(opts)
			if err != nil {
				return err
			}
			defer conn.Close()

			ctx, cancel := withTimeout(opts)
			defer cancel()

			resp, err := client.Submit(ctx, "UpdateRole", map[string]any{"ID": id, "Update": update})
			if err != nil {
				return err
			}
			return printResult(resp)
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "new name")
	cmd.Flags().StringVar(&description, "description", "", "new description")
	return cmd
}

func newDeleteCommand(opts *cliOptions) *cobra.Command {
	var kind string
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an entity and all its incident edges",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			conn, client, err := dial(opts)
			if err != nil {
				return err
			}
			defer conn.Close()

			ctx, cancel := withTimeout(opts)
			defer cancel()

			resp, err := client.Submit(ctx, deleteKind(kind), id)
			if err != nil {
				return err
			}
			return printResult(resp)
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "", "entity kind: user, group, or role (required)")
	cmd.MarkFlagRequired("kind")
	return cmd
}

func deleteKind(kind string) string {
	switch kind {
	case "group":
		return "DeleteGroup"
	case "role":
		return "DeleteRole"
	default:
		return "DeleteUser"
	}
}
