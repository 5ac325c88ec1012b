package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/fleetportal/passreset/internal/client"
	"github.com/fleetportal/passreset/internal/constants"
	"github.com/fleetportal/passreset/internal/session"
)

const (
	flagServer  = "server"
	flagTimeout = "timeout"
	flagCache   = "cache"
	flagVerbose = "verbose"
)

func newApp(out io.Writer, in io.Reader) *cli.App {
	p := newPrompter(out, in)

	return &cli.App{
		Name:    "resetctl",
		Usage:   "reset fleet admin passwords and manage the portal session",
		Version: version,
		Writer:  out,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    flagServer,
				Usage:   "base URL of the password reset API",
				Value:   fmt.Sprintf("http://localhost:%d", constants.DefaultServerPort),
				EnvVars: []string{"RESETCTL_SERVER"},
			},
			&cli.DurationFlag{
				Name:  flagTimeout,
				Usage: "per-request timeout",
				Value: constants.DefaultClientTimeout,
			},
			&cli.StringFlag{
				Name:    flagCache,
				Usage:   "session cache file",
				Value:   defaultCachePath(),
				EnvVars: []string{"RESETCTL_CACHE"},
			},
			&cli.BoolFlag{
				Name:  flagVerbose,
				Usage: "log debug output to stderr",
			},
		},
		Before: func(c *cli.Context) error {
			if c.Bool(flagVerbose) {
				log.Logger = log.Logger.Level(zerolog.DebugLevel)
			}
			return nil
		},
		Commands: []*cli.Command{
			forgotCommand(),
			verifyCommand(),
			resetCommand(p),
			sessionCommand(),
		},
		// main picks the exit status.
		ExitErrHandler: func(*cli.Context, error) {},
	}
}

func apiClient(c *cli.Context) *client.Client {
	return client.New(c.String(flagServer), client.WithTimeout(c.Duration(flagTimeout)))
}

func openGate(c *cli.Context) (*session.Gate, error) {
	cache, err := session.Open(c.String(flagCache))
	if err != nil {
		return nil, err
	}
	return session.NewGate(cache, apiClient(c)), nil
}

func forgotCommand() *cli.Command {
	return &cli.Command{
		Name:  "forgot",
		Usage: "request a reset link for an admin account",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "username", Aliases: []string{"u"}, Required: true},
			&cli.StringFlag{Name: "email", Aliases: []string{"e"}, Required: true},
			&cli.StringFlag{Name: "phone", Aliases: []string{"p"}, Required: true},
		},
		Action: func(c *cli.Context) error {
			msg, err := apiClient(c).ForgotPassword(c.Context, c.String("username"), c.String("email"), c.String("phone"))
			if err != nil {
				return err
			}
			fmt.Fprintln(c.App.Writer, msg)
			return nil
		},
	}
}

func verifyCommand() *cli.Command {
	return &cli.Command{
		Name:      "verify",
		Usage:     "check a reset token",
		ArgsUsage: "TOKEN",
		Action: func(c *cli.Context) error {
			token := c.Args().First()
			if token == "" {
				return cli.Exit("a token is required", 2)
			}

			userID, err := apiClient(c).VerifyToken(c.Context, token)
			if err != nil {
				return err
			}
			fmt.Fprintf(c.App.Writer, "token is valid for user %d\n", userID)
			return nil
		},
	}
}

func resetCommand(p *prompter) *cli.Command {
	return &cli.Command{
		Name:  "reset",
		Usage: "set a new password with a reset token",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "token", Aliases: []string{"t"}, Required: true},
			&cli.Int64Flag{Name: "user-id", Usage: "user the token was issued to; looked up from the token when omitted"},
		},
		Action: func(c *cli.Context) error {
			api := apiClient(c)
			token := c.String("token")

			userID := c.Int64("user-id")
			if userID == 0 {
				id, err := api.VerifyToken(c.Context, token)
				if err != nil {
					return err
				}
				userID = id
			}

			password, err := p.Password("New password: ")
			if err != nil {
				return err
			}
			confirm, err := p.Password("Confirm password: ")
			if err != nil {
				return err
			}

			msg, err := api.UpdatePassword(c.Context, token, userID, password, confirm)
			if err != nil {
				return err
			}
			fmt.Fprintln(c.App.Writer, msg)
			return nil
		},
	}
}

func sessionCommand() *cli.Command {
	return &cli.Command{
		Name:  "session",
		Usage: "manage the cached portal session",
		Subcommands: []*cli.Command{
			{
				Name:  "save",
				Usage: "validate a session token with the server and cache it",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "token", Aliases: []string{"t"}, Required: true},
				},
				Action: func(c *cli.Context) error {
					gate, err := openGate(c)
					if err != nil {
						return err
					}

					token := c.String("token")
					info, err := apiClient(c).Session(c.Context, token)
					if err != nil {
						return err
					}
					if err := gate.Login(session.Admin{Username: info.Username, Token: token}, info.ExpiresAt); err != nil {
						return err
					}
					fmt.Fprintf(c.App.Writer, "logged in as %s until %s\n", info.Username, info.ExpiresAt.Format(time.RFC3339))
					return nil
				},
			},
			{
				Name:  "check",
				Usage: "validate the cached session",
				Action: func(c *cli.Context) error {
					gate, err := openGate(c)
					if err != nil {
						return err
					}
					return checkSession(c, gate)
				},
			},
			{
				Name:  "logout",
				Usage: "drop the cached session and fleet data",
				Action: func(c *cli.Context) error {
					gate, err := openGate(c)
					if err != nil {
						return err
					}
					if err := gate.Logout(); err != nil {
						return err
					}
					fmt.Fprintln(c.App.Writer, "logged out")
					return nil
				},
			},
		},
	}
}

func checkSession(c *cli.Context, gate *session.Gate) error {
	admin, err := gate.Check(c.Context)
	if errors.Is(err, session.ErrNotLoggedIn) {
		return cli.Exit(err.Error(), 1)
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(c.App.Writer, "logged in as %s\n", admin.Username)
	return nil
}

func defaultCachePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "resetctl-session.json"
	}
	return filepath.Join(dir, "fleetportal", "session.json")
}
