package main

import (
	"github.com/spf13/cobra"
)

// edgeSpec describes one of the eight edge commands spec §6 lists: the
// cobra use string, the two dispatch.Kind names (add/remove), and the
// flag names for the (child, parent) pair since each edge direction uses
// different domain vocabulary (userId/groupId, roleId/groupId, ...).
type edgeSpec struct {
	use         string
	short       string
	addKind     string
	removeKind  string
	childFlag   string
	childHelp   string
	parentFlag  string
	parentHelp  string
}

var edgeSpecs = []edgeSpec{
	{
		use: "user-group", short: "Add or remove a user's group membership",
		addKind: "AddUserToGroup", removeKind: "RemoveUserFromGroup",
		childFlag: "user-id", childHelp: "user id", parentFlag: "group-id", parentHelp: "group id",
	},
	{
		use: "user-role", short: "Add or remove a user's role assignment",
		addKind: "AssignUserToRole", removeKind: "UnassignUserFromRole",
		childFlag: "user-id", childHelp: "user id", parentFlag: "role-id", parentHelp: "role id",
	},
	{
		use: "role-group", short: "Add or remove a role's group placement",
		addKind: "AddRoleToGroup", removeKind: "RemoveRoleFromGroup",
		childFlag: "role-id", childHelp: "role id", parentFlag: "group-id", parentHelp: "group id",
	},
	{
		use: "group-group", short: "Add or remove a group's parent-group containment",
		addKind: "AddGroupToGroup", removeKind: "RemoveGroupFromGroup",
		childFlag: "child-group-id", childHelp: "child group id", parentFlag: "parent-group-id", parentHelp: "parent group id",
	},
}

// newEdgeCommands builds one "add-<edge>"/"remove-<edge>" command pair per
// edgeSpec, e.g. "add-user-group" / "remove-user-group".
func newEdgeCommands(opts *cliOptions) []*cobra.Command {
	var cmds []*cobra.Command
	for _, spec := range edgeSpecs {
		cmds = append(cmds, newEdgeCommand(opts, spec, true), newEdgeCommand(opts, spec, false))
	}
	return cmds
}

func newEdgeCommand(opts *cliOptions, spec edgeSpec, adding bool) *cobra.Command {
	var childID, parentID int64

	verb := "add"
	kind := spec.addKind
	if !adding {
		verb = "remove"
		kind = spec.removeKind
	}

	cmd := &cobra.Command{
		Use:   verb + "-" + spec.use,
		Short: spec.short,
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, client, err := dial(opts)
			if err != nil {
				return err
			}
			defer conn.Close()

			ctx, cancel := withTimeout(opts)
			defer cancel()

			resp, err := client.Submit(ctx, kind, map[string]any{"ChildID": childID, "ParentID": parentID})
			if err != nil {
				return err
			}
			return printResult(resp)
		},
	}
	cmd.Flags().Int64Var(&childID, spec.childFlag, 0, spec.childHelp)
	cmd.Flags().Int64Var(&parentID, spec.parentFlag, 0, spec.parentHelp)
	cmd.MarkFlagRequired(spec.childFlag)
	cmd.MarkFlagRequired(spec.parentFlag)
	return cmd
}
