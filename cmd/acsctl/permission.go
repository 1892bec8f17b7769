package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newAddPermissionCommand(opts *cliOptions) *cobra.Command {
	var entityID int64
	var uri, verb, scheme string
	var grant, deny bool
	var priority int

	cmd := &cobra.Command{
		Use:   "add-permission",
		Short: "Attach a permission to an entity",
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, client, err := dial(opts)
			if err != nil {
				return err
			}
			defer conn.Close()

			ctx, cancel := withTimeout(opts)
			defer cancel()

			resp, err := client.Submit(ctx, "AddPermissionToEntity", map[string]any{
				"EntityID": entityID,
				"Permission": map[string]any{
					"URI":      uri,
					"Verb":     verb,
					"Grant":    grant,
					"Deny":     deny,
					"Scheme":   scheme,
					"Priority": priority,
				},
			})
			if err != nil {
				return err
			}
			return printResult(resp)
		},
	}
	cmd.Flags().Int64Var(&entityID, "entity-id", 0, "entity to attach the permission to")
	cmd.Flags().StringVar(&uri, "uri", "", "URI pattern: literal, glob (*), or template ({param})")
	cmd.Flags().StringVar(&verb, "verb", "", "GET, POST, PUT, DELETE, or PATCH")
	cmd.Flags().StringVar(&scheme, "scheme", "", "authorization scheme tag")
	cmd.Flags().BoolVar(&grant, "grant", false, "grants access when matched")
	cmd.Flags().BoolVar(&deny, "deny", false, "denies access when matched")
	cmd.Flags().IntVar(&priority, "priority", 0, "tie-break priority for HIGHEST_PRIORITY strategy")
	cmd.MarkFlagRequired("entity-id")
	cmd.MarkFlagRequired("uri")
	cmd.MarkFlagRequired("verb")
	return cmd
}

func newRemovePermissionCommand(opts *cliOptions) *cobra.Command {
	var entityID int64
	var uri, verb, scheme string

	cmd := &cobra.Command{
		Use:   "remove-permission",
		Short: "Detach a permission from an entity by (uri, verb, scheme)",
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, client, err := dial(opts)
			if err != nil {
				return err
			}
			defer conn.Close()

			ctx, cancel := withTimeout(opts)
			defer cancel()

			resp, err := client.Submit(ctx, "RemovePermissionFromEntity", map[string]any{
				"EntityID": entityID,
				"Key":      map[string]any{"URI": uri, "Verb": verb, "Scheme": scheme},
			})
			if err != nil {
				return err
			}
			return printResult(resp)
		},
	}
	cmd.Flags().Int64Var(&entityID, "entity-id", 0, "entity the permission is attached to")
	cmd.Flags().StringVar(&uri, "uri", "", "URI pattern, as attached")
	cmd.Flags().StringVar(&verb, "verb", "", "GET, POST, PUT, DELETE, or PATCH")
	cmd.Flags().StringVar(&scheme, "scheme", "", "authorization scheme tag, as attached")
	cmd.MarkFlagRequired("entity-id")
	cmd.MarkFlagRequired("uri")
	cmd.MarkFlagRequired("verb")
	return cmd
}

func newCheckCommand(opts *cliOptions) *cobra.Command {
	var entityID int64
	var uri, verb string
	var attrs []string

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Evaluate whether an entity may perform verb on uri",
		RunE: func(cmd *cobra.Command, args []string) error {
			attributes, err := parseAttrs(attrs)
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

			params := map[string]any{"EntityID": entityID, "URI": uri, "Verb": verb}
			if len(attributes) > 0 {
				params["Attributes"] = attributes
			}

			resp, err := client.Submit(ctx, "CheckPermission", params)
			if err != nil {
				return err
			}
			return printResult(resp)
		},
	}
	cmd.Flags().Int64Var(&entityID, "entity-id", 0, "principal to evaluate")
	cmd.Flags().StringVar(&uri, "uri", "", "request URI")
	cmd.Flags().StringVar(&verb, "verb", "", "GET, POST, PUT, DELETE, or PATCH")
	cmd.Flags().StringSliceVar(&attrs, "attr", nil, "conditional-permission context as key=value (repeatable)")
	cmd.MarkFlagRequired("entity-id")
	cmd.MarkFlagRequired("uri")
	cmd.MarkFlagRequired("verb")
	return cmd
}

func parseAttrs(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok {
			return nil, fmt.Errorf("invalid --attr %q, want key=value", p)
		}
		out[k] = v
	}
	return out, nil
}
