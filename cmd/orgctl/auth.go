package main

import (
	"errors"
	"fmt"
	"strings"

	goTenant "github.com/MrEthical07/goTenant"
	"github.com/spf13/cobra"
)

func newAuthCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Sign in, sign up and manage the saved session",
	}
	cmd.AddCommand(
		newLoginCmd(a),
		newSignupCmd(a),
		newVerifyCmd(a),
		newResendCmd(a),
		newFederatedCmd(a),
		newForgotCmd(a),
		newResetCmd(a),
		newLogoutCmd(a),
		newWhoamiCmd(a),
	)
	return cmd
}

// probe connects and moves a fresh flow past email collection.
func (a *app) probe(cmd *cobra.Command, email string) (*goTenant.Client, goTenant.AuthSnapshot, error) {
	cl, err := a.connect(cmd)
	if err != nil {
		return nil, goTenant.AuthSnapshot{}, err
	}
	if cl.Authenticated() {
		return nil, goTenant.AuthSnapshot{}, errors.New("already signed in: run 'orgctl auth logout' first")
	}
	if err := cl.Auth.SubmitEmail(cmd.Context(), email); err != nil {
		return nil, goTenant.AuthSnapshot{}, err
	}
	snap := cl.Auth.Snapshot()
	if snap.SocialHint {
		return nil, snap, fmt.Errorf("%s signs in with Google or GitHub: use 'orgctl auth federated'", snap.Email)
	}
	return cl, snap, nil
}

// toVerification signs in with password and expects the backend to ask for
// email verification. done reports that the account was already verified
// and the login went through.
func (a *app) toVerification(cmd *cobra.Command, email, password string) (cl *goTenant.Client, done bool, err error) {
	cl, snap, err := a.probe(cmd, email)
	if err != nil {
		return nil, false, err
	}
	if snap.State != goTenant.StateLogin {
		return nil, false, fmt.Errorf("no account for %s: use 'orgctl auth signup'", snap.Email)
	}
	err = cl.Auth.Login(cmd.Context(), password)
	switch {
	case err == nil:
		return cl, true, nil
	case errors.Is(err, goTenant.ErrEmailNotVerified):
		return cl, false, nil
	default:
		return nil, false, err
	}
}

func (a *app) signedIn(cmd *cobra.Command, cl *goTenant.Client) error {
	p, _ := cl.Profile()
	who := p.Username
	if who == "" {
		who = p.Email
	}
	return a.print(cmd, message{Message: "Signed in as " + who})
}

func newLoginCmd(a *app) *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in with email and password",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cl, snap, err := a.probe(cmd, email)
			if err != nil {
				return err
			}
			if snap.State == goTenant.StateSignup {
				return fmt.Errorf("no account for %s: use 'orgctl auth signup'", snap.Email)
			}
			if err := cl.Auth.Login(cmd.Context(), password); err != nil {
				if errors.Is(err, goTenant.ErrEmailNotVerified) {
					return fmt.Errorf("%s: run 'orgctl auth verify' with the mailed code", goTenant.UserMessage(err))
				}
				return err
			}
			return a.signedIn(cmd, cl)
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "account password")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func newSignupCmd(a *app) *cobra.Command {
	var email, username, name, password string
	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Create an account; a verification code is mailed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cl, snap, err := a.probe(cmd, email)
			if err != nil {
				return err
			}
			if snap.State != goTenant.StateSignup {
				return fmt.Errorf("%s already has an account: use 'orgctl auth login'", snap.Email)
			}
			err = cl.Auth.Signup(cmd.Context(), goTenant.SignupRequest{
				FullName: name,
				Username: username,
				Password: password,
			})
			if err != nil {
				return err
			}
			return a.print(cmd, message{Message: cl.Auth.Snapshot().Notice.Message + " Then run 'orgctl auth verify'."})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&username, "username", "", "public username")
	cmd.Flags().StringVar(&name, "name", "", "full name")
	cmd.Flags().StringVar(&password, "password", "", "account password")
	for _, f := range []string{"email", "username", "name", "password"} {
		_ = cmd.MarkFlagRequired(f)
	}
	return cmd
}

func newVerifyCmd(a *app) *cobra.Command {
	var email, password, code string
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify the account email with the mailed code and sign in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cl, done, err := a.toVerification(cmd, email, password)
			if err != nil {
				return err
			}
			if done {
				return a.signedIn(cmd, cl)
			}
			if err := cl.Auth.Verify(cmd.Context(), strings.TrimSpace(code)); err != nil {
				return err
			}
			// Without a session from verification the flow is back on login.
			if !cl.Authenticated() {
				if err := cl.Auth.Login(cmd.Context(), password); err != nil {
					return err
				}
			}
			return a.signedIn(cmd, cl)
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "account password")
	cmd.Flags().StringVar(&code, "code", "", "4-digit verification code")
	for _, f := range []string{"email", "password", "code"} {
		_ = cmd.MarkFlagRequired(f)
	}
	return cmd
}

func newResendCmd(a *app) *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "resend",
		Short: "Mail a fresh verification code",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cl, done, err := a.toVerification(cmd, email, password)
			if err != nil {
				return err
			}
			if done {
				return a.signedIn(cmd, cl)
			}
			if err := cl.Auth.ResendCode(cmd.Context()); err != nil {
				return err
			}
			return a.print(cmd, message{Message: cl.Auth.Snapshot().Notice.Message})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "account password")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func newFederatedCmd(a *app) *cobra.Command {
	var provider, credential string
	cmd := &cobra.Command{
		Use:   "federated",
		Short: "Sign in with a Google or GitHub credential",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cl, err := a.connect(cmd)
			if err != nil {
				return err
			}
			if cl.Authenticated() {
				return errors.New("already signed in: run 'orgctl auth logout' first")
			}
			if err := cl.Auth.Federated(cmd.Context(), goTenant.Provider(strings.ToLower(provider)), credential); err != nil {
				return err
			}
			return a.signedIn(cmd, cl)
		},
	}
	cmd.Flags().StringVar(&provider, "provider", "", "google or github")
	cmd.Flags().StringVar(&credential, "credential", "", "ID token (google) or authorization code (github)")
	_ = cmd.MarkFlagRequired("provider")
	_ = cmd.MarkFlagRequired("credential")
	return cmd
}

func newForgotCmd(a *app) *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:   "forgot",
		Short: "Request a password reset link",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cl, err := a.connect(cmd)
			if err != nil {
				return err
			}
			if err := cl.Auth.BeginReset(); err != nil {
				return err
			}
			if err := cl.Auth.RequestReset(cmd.Context(), email); err != nil {
				return err
			}
			return a.print(cmd, message{Message: cl.Auth.Snapshot().Notice.Message})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func newResetCmd(a *app) *cobra.Command {
	var code, password string
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Set a new password with the code from a reset link",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cl, err := a.connect(cmd)
			if err != nil {
				return err
			}
			if err := cl.Auth.ResetPassword(cmd.Context(), code, password, password); err != nil {
				return err
			}
			return a.print(cmd, message{Message: cl.Auth.Snapshot().Notice.Message})
		},
	}
	cmd.Flags().StringVar(&code, "code", "", "code carried by the reset link")
	cmd.Flags().StringVar(&password, "password", "", "new password")
	_ = cmd.MarkFlagRequired("code")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func newLogoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the saved session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cl, err := a.connect(cmd)
			if err != nil {
				return err
			}
			if err := cl.Logout(cmd.Context()); err != nil {
				return err
			}
			return a.print(cmd, message{Message: "Signed out"})
		},
	}
}

func newWhoamiCmd(a *app) *cobra.Command {
	var refresh bool
	cmd := &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cl, err := a.session(cmd)
			if err != nil {
				return err
			}
			p, _ := cl.Profile()
			if refresh {
				if p, err = cl.RefreshProfile(cmd.Context()); err != nil {
					return err
				}
			}
			view := profileView{
				ID:       string(p.ID),
				Email:    p.Email,
				Username: p.Username,
				FullName: p.FullName,
				Provider: string(p.AuthProvider),
			}
			if view.Provider == "" {
				view.Provider = string(goTenant.ProviderLocal)
			}
			for _, li := range p.LinkedIdentities {
				view.Linked = append(view.Linked, string(li.Provider))
			}
			return a.print(cmd, view)
		},
	}
	cmd.Flags().BoolVar(&refresh, "refresh", false, "fetch the profile from the backend first")
	return cmd
}
