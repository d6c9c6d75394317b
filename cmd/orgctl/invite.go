package main

import (
	"fmt"
	"time"

	goTenant "github.com/MrEthical07/goTenant"
	"github.com/spf13/cobra"
)

func newInviteCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "invite",
		Short: "Create, list, revoke and redeem invite codes",
	}
	cmd.AddCommand(
		newInviteCreateCmd(a),
		newInviteListCmd(a),
		newInviteRevokeCmd(a),
		newInviteRedeemCmd(a),
		newInviteIncomingCmd(a),
	)
	return cmd
}

func inviteRowOf(inv goTenant.Invite, countdown string) inviteRow {
	row := inviteRow{
		ID:      string(inv.ID),
		OrgID:   string(inv.OrgID),
		Code:    inv.Code,
		Uses:    inv.Uses,
		MaxUses: inv.MaxUses,
		Expires: countdown,
	}
	if !inv.Open() {
		row.Target = *inv.TargetUsername
	}
	return row
}

func newInviteCreateCmd(a *app) *cobra.Command {
	var (
		target  string
		maxUses int
		expires time.Duration
	)
	cmd := &cobra.Command{
		Use:   "create ORG",
		Short: "Create an invite code for an organization",
		Long: `Create an invite code for an organization.

Without --target anyone holding the code may redeem it. --max-uses and
--expires fall back to the configured defaults when left at zero.

Examples:
  orgctl invite create 42
  orgctl invite create 42 --target bob --max-uses 1 --expires 30m`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cl, err := a.session(cmd)
			if err != nil {
				return err
			}
			req := goTenant.InviteRequest{TargetUsername: target, MaxUses: maxUses}
			if expires != 0 {
				at := time.Now().Add(expires).UTC()
				req.ExpiresAt = &at
			}
			inv, err := cl.Invites.Create(cmd.Context(), goTenant.ID(args[0]), req)
			if err != nil {
				return err
			}
			return a.print(cmd, inviteRows{inviteRowOf(inv, goTenant.FormatCountdown(inv.ExpiresAt, time.Now()))})
		},
	}
	cmd.Flags().StringVar(&target, "target", "", "username allowed to redeem the code")
	cmd.Flags().IntVar(&maxUses, "max-uses", 0, "number of redemptions (0 uses the default)")
	cmd.Flags().DurationVar(&expires, "expires", 0, "lifetime such as 30m or 24h (0 uses the default)")
	return cmd
}

func newInviteListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list ORG",
		Short: "List an organization's invites with their time left",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cl, err := a.session(cmd)
			if err != nil {
				return err
			}
			views, err := cl.Invites.List(cmd.Context(), goTenant.ID(args[0]))
			if err != nil {
				return err
			}
			rows := make(inviteRows, 0, len(views))
			for _, v := range views {
				rows = append(rows, inviteRowOf(v.Invite, v.Countdown))
			}
			return a.print(cmd, rows)
		},
	}
}

func newInviteRevokeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "revoke ORG INVITE",
		Short: "Revoke an invite",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cl, err := a.session(cmd)
			if err != nil {
				return err
			}
			if err := cl.Invites.Revoke(cmd.Context(), goTenant.ID(args[0]), goTenant.ID(args[1])); err != nil {
				return err
			}
			return a.print(cmd, message{Message: "Revoked " + args[1]})
		},
	}
}

func newInviteRedeemCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "redeem CODE",
		Short: "Join an organization with an invite code",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cl, err := a.session(cmd)
			if err != nil {
				return err
			}
			ms, err := cl.Invites.Redeem(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.print(cmd, message{Message: fmt.Sprintf("Joined %s as %s", ms.OrgID, ms.Roles)})
		},
	}
}

func newInviteIncomingCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "incoming",
		Short: "List invites addressed to you",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cl, err := a.session(cmd)
			if err != nil {
				return err
			}
			invites, err := cl.Invites.ListIncoming(cmd.Context())
			if err != nil {
				return err
			}
			now := time.Now()
			rows := make(inviteRows, 0, len(invites))
			for _, inv := range invites {
				rows = append(rows, inviteRowOf(inv, goTenant.FormatCountdown(inv.ExpiresAt, now)))
			}
			return a.print(cmd, rows)
		},
	}
}
