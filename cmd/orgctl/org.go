package main

import (
	"errors"
	"fmt"

	goTenant "github.com/MrEthical07/goTenant"
	"github.com/spf13/cobra"
)

var errNeedsYes = errors.New("this cannot be undone: repeat with --yes")

func newOrgCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "org",
		Short: "List, create, join and administer organizations",
	}
	cmd.AddCommand(
		newOrgListCmd(a),
		newOrgJoinableCmd(a),
		newOrgCreateCmd(a),
		newOrgJoinCmd(a),
		newOrgLeaveCmd(a),
		newOrgMembersCmd(a),
		newOrgRolesCmd(a),
		newOrgKickCmd(a),
	)
	return cmd
}

func newOrgListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List organizations you belong to",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cl, err := a.session(cmd)
			if err != nil {
				return err
			}
			orgs, err := cl.Memberships.ListMine(cmd.Context())
			if err != nil {
				return err
			}
			rows := make(orgRows, 0, len(orgs))
			for _, o := range orgs {
				rows = append(rows, orgRow{
					ID:      string(o.ID),
					Name:    o.Name,
					Members: o.MemberCount,
					Roles:   o.Roles.Tags(),
				})
			}
			return a.print(cmd, rows)
		},
	}
}

func newOrgJoinableCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "joinable",
		Short: "List organizations you can join",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cl, err := a.session(cmd)
			if err != nil {
				return err
			}
			orgs, err := cl.Memberships.ListJoinable(cmd.Context())
			if err != nil {
				return err
			}
			rows := make(orgRows, 0, len(orgs))
			for _, o := range orgs {
				rows = append(rows, orgRow{ID: string(o.ID), Name: o.Name, Members: o.MemberCount})
			}
			return a.print(cmd, rows)
		},
	}
}

func newOrgCreateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "create NAME",
		Short: "Create an organization; you become its admin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cl, err := a.session(cmd)
			if err != nil {
				return err
			}
			org, err := cl.Memberships.Create(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.print(cmd, orgRows{{
				ID:      string(org.ID),
				Name:    org.Name,
				Members: org.MemberCount,
				Roles:   []string{goTenant.RoleMember, goTenant.RoleAdmin},
			}})
		},
	}
}

func newOrgJoinCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "join ORG",
		Short: "Join an organization",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cl, err := a.session(cmd)
			if err != nil {
				return err
			}
			ms, err := cl.Memberships.Join(cmd.Context(), goTenant.ID(args[0]))
			if err != nil {
				return err
			}
			return a.print(cmd, message{Message: fmt.Sprintf("Joined %s as %s", ms.OrgID, ms.Roles)})
		},
	}
}

// The two-step confirmation runs inside one invocation: --yes arms and
// fires it.
func newOrgLeaveCmd(a *app) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "leave ORG",
		Short: "Leave an organization",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cl, err := a.session(cmd)
			if err != nil {
				return err
			}
			orgID := goTenant.ID(args[0])
			if !yes {
				perms, err := cl.Memberships.Permissions(cmd.Context(), orgID)
				if err != nil {
					return err
				}
				if !perms.IsMember {
					return fmt.Errorf("%w: not a member of organization %s", goTenant.ErrNotFound, orgID)
				}
				if !perms.CanLeave {
					return goTenant.ErrLastAdminLeave
				}
				return errNeedsYes
			}
			out, err := cl.Memberships.Leave(cmd.Context(), orgID)
			if err == nil && out == goTenant.LeaveArmed {
				out, err = cl.Memberships.Leave(cmd.Context(), orgID)
			}
			if err != nil {
				return err
			}
			if out != goTenant.LeaveDone {
				return fmt.Errorf("leave of %s did not complete", orgID)
			}
			return a.print(cmd, message{Message: "Left " + args[0]})
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm leaving")
	return cmd
}

func newOrgMembersCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "members ORG",
		Short: "List members with the controls you have over them",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cl, err := a.session(cmd)
			if err != nil {
				return err
			}
			views, err := cl.Memberships.Members(cmd.Context(), goTenant.ID(args[0]))
			if err != nil {
				return err
			}
			me, _ := cl.Session()
			rows := make(memberRows, 0, len(views))
			for _, v := range views {
				ctl := cl.Memberships.MemberControls(me.PrincipalID, v)
				rows = append(rows, memberRow{
					UserID:   string(v.PrincipalID),
					Username: v.Principal.Username,
					FullName: v.Principal.FullName,
					Roles:    v.Roles.Tags(),
					CanEdit:  ctl.CanEditRoles,
					CanKick:  ctl.CanKick,
				})
			}
			return a.print(cmd, rows)
		},
	}
}

// resolveMember finds a member of orgID by user id or username.
func resolveMember(cmd *cobra.Command, cl *goTenant.Client, orgID goTenant.ID, ref string) (goTenant.MemberView, error) {
	views, err := cl.Memberships.Members(cmd.Context(), orgID)
	if err != nil {
		return goTenant.MemberView{}, err
	}
	for _, v := range views {
		if string(v.PrincipalID) == ref || v.Principal.Username == ref {
			return v, nil
		}
	}
	return goTenant.MemberView{}, fmt.Errorf("%s is not a member of %s", ref, orgID)
}

func newOrgRolesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "roles ORG USER [TAG...]",
		Short: "Show a member's roles, or replace them with TAGs",
		Long: `Show a member's roles, or replace them with the given tags.

Without tags the member's current roles are printed together with the tags
already in use in the organization, as suggestions.

Examples:
  orgctl org roles 42 bob
  orgctl org roles 42 bob member ops`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cl, err := a.session(cmd)
			if err != nil {
				return err
			}
			orgID := goTenant.ID(args[0])
			target, err := resolveMember(cmd, cl, orgID, args[1])
			if err != nil {
				return err
			}
			view := roleView{UserID: string(target.PrincipalID), Roles: target.Roles.Tags()}

			if tags := args[2:]; len(tags) > 0 {
				ms, err := cl.Roles.SetRoles(cmd.Context(), orgID, target.PrincipalID, tags)
				if err != nil {
					return err
				}
				view.Roles = ms.Roles.Tags()
			}
			view.Known = cl.Roles.KnownTags(orgID)
			return a.print(cmd, view)
		},
	}
}

func newOrgKickCmd(a *app) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "kick ORG USER",
		Short: "Remove a member from an organization",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cl, err := a.session(cmd)
			if err != nil {
				return err
			}
			orgID := goTenant.ID(args[0])
			target, err := resolveMember(cmd, cl, orgID, args[1])
			if err != nil {
				return err
			}
			if !yes {
				return errNeedsYes
			}
			if err := cl.Roles.RemoveMember(cmd.Context(), orgID, target.PrincipalID); err != nil {
				return err
			}
			return a.print(cmd, message{Message: "Removed " + target.Principal.Username})
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm the removal")
	return cmd
}
