// Package authcmder provides the login, logout, whoami and signup commands.
package authcmder

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/saamerm/particle/cmd/particle/session"
	"github.com/saamerm/particle/pkg/cliui"
)

const loginLongDesc string = `Log in to the Particle cloud.

The access token is stored in credentials.toml in the .particle/ directory
and reused by every other command until it expires. A stored refresh token
is used to renew an expired access token automatically.

With --create-client a dedicated OAuth client named after cloud.app_name is
created on first login and used for every later login and refresh.

Examples:
  particle login -u me@example.com            Prompt for the password
  echo $PASS | particle login -u me@example.com
  particle login -u me@example.com --create-client`

const loginShortDesc string = "Log in to the Particle cloud"

type loginCommander struct {
	username     string
	createClient bool
}

func NewLoginCmd() *cobra.Command {
	cmder := &loginCommander{}

	cmd := &cobra.Command{
		Use:   "login",
		Short: loginShortDesc,
		Long:  loginLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sess, err := session.FromCommand(cmd)
			if err != nil {
				return err
			}
			return cmder.run(cmd.Context(), sess, newPrompter(cmd.InOrStdin(), cmd.OutOrStdout()), cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&cmder.username, "username", "u", "", "Account username (prompted when empty)")
	cmd.Flags().BoolVar(&cmder.createClient, "create-client", false, "Create a dedicated OAuth client for this installation")

	return cmd
}

func (c *loginCommander) run(ctx context.Context, sess *session.Session, p *prompter, out io.Writer) error {
	username, password, err := credentialsFrom(p, c.username)
	if err != nil {
		return err
	}

	err = cliui.Step(out, "Logging in as "+username, func() error {
		_, err := sess.Cloud.Login(ctx, username, password)
		return err
	})
	if err != nil {
		return session.Describe(err)
	}

	if c.createClient {
		if err := c.installClient(ctx, sess, out, username, password); err != nil {
			return err
		}
	}

	if err := sess.Persist(); err != nil {
		return err
	}

	fmt.Fprintf(out, "\n  %s Logged in as %s\n", cliui.SuccessMark, cliui.HeaderStyle.Render(username))
	fmt.Fprintf(out, "  %s\n\n", cliui.StepStyle.Render("Credentials: "+sess.Creds.GetTarget()))
	return nil
}

// installClient creates an OAuth client once and logs in again through it so
// that the stored refresh token belongs to that client.
func (c *loginCommander) installClient(ctx context.Context, sess *session.Session, out io.Writer, username, password string) error {
	stored, err := sess.Creds.OAuthClient()
	if err != nil {
		return err
	}
	if stored != nil && stored.ID != "" {
		return nil
	}

	appName := sess.Viper.GetString("cloud.app_name")
	err = cliui.Step(out, "Creating OAuth client "+appName, func() error {
		tok := sess.Cloud.Token()
		if err := sess.Cloud.CreateOAuthClient(ctx, tok.Token, appName); err != nil {
			return err
		}
		_, err := sess.Cloud.Login(ctx, username, password)
		return err
	})
	if err != nil {
		return session.Describe(err)
	}

	id, secret := sess.Cloud.OAuthClient()
	return sess.Creds.SetOAuthClient(id, secret)
}

const logoutShortDesc string = "Forget the stored access token"

func NewLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: logoutShortDesc,
		Long: `Forget the stored access token.

The dedicated OAuth client, if one was created, is kept.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sess, err := session.FromCommand(cmd)
			if err != nil {
				return err
			}

			username := sess.Cloud.Username()
			sess.Cloud.Logout()
			if err := sess.Creds.ClearSession(); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if username == "" {
				fmt.Fprintf(out, "\n  %s\n\n", cliui.StepStyle.Render("Nobody was logged in."))
				return nil
			}

			fmt.Fprintf(out, "\n  %s Logged out %s\n\n", cliui.SuccessMark, cliui.HeaderStyle.Render(username))
			return nil
		},
	}
}

func NewWhoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the logged in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sess, err := session.FromCommand(cmd)
			if err != nil {
				return err
			}
			if err := sess.RequireLogin(cmd.Context()); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			name := sess.Cloud.Username()
			if name == "" {
				name = "<unknown user>"
			}
			fmt.Fprintf(out, "%s\n", name)

			if tok := sess.Cloud.Token(); tok != nil && !tok.ExpiresAt.IsZero() {
				fmt.Fprintf(out, "%s\n", cliui.StepStyle.Render("token expires "+tok.ExpiresAt.Local().Format("2006-01-02 15:04:05")))
			}
			return nil
		},
	}
}

const signupLongDesc string = `Create a Particle cloud account and log in to it.

Examples:
  particle signup -u me@example.com`

type signupCommander struct {
	username string
}

func NewSignupCmd() *cobra.Command {
	cmder := &signupCommander{}

	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Create a Particle cloud account",
		Long:  signupLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sess, err := session.FromCommand(cmd)
			if err != nil {
				return err
			}
			return cmder.run(cmd.Context(), sess, newPrompter(cmd.InOrStdin(), cmd.OutOrStdout()), cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&cmder.username, "username", "u", "", "Account username (prompted when empty)")

	return cmd
}

func (c *signupCommander) run(ctx context.Context, sess *session.Session, p *prompter, out io.Writer) error {
	username, password, err := credentialsFrom(p, c.username)
	if err != nil {
		return err
	}

	err = cliui.Step(out, "Creating account "+username, func() error {
		return sess.Cloud.Signup(ctx, username, password)
	})
	if err != nil {
		return session.Describe(err)
	}

	err = cliui.Step(out, "Logging in", func() error {
		_, err := sess.Cloud.Login(ctx, username, password)
		return err
	})
	if err != nil {
		return session.Describe(err)
	}

	if err := sess.Persist(); err != nil {
		return err
	}

	fmt.Fprintf(out, "\n  %s Signed up and logged in as %s\n\n", cliui.SuccessMark, cliui.HeaderStyle.Render(username))
	return nil
}

func credentialsFrom(p *prompter, username string) (string, string, error) {
	var err error
	if username == "" {
		username, err = p.line("Username")
		if err != nil {
			return "", "", err
		}
	}
	if username == "" {
		return "", "", errors.New("username cannot be empty")
	}

	password, err := p.secret("Password")
	if err != nil {
		return "", "", err
	}
	if password == "" {
		return "", "", errors.New("password cannot be empty")
	}

	return username, password, nil
}
