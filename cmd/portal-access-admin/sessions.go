package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/redis/go-redis/v9"
	redisadapter "github.com/target/portal-access/internal/adapters/redis"
	domainauth "github.com/target/portal-access/internal/domain/auth"
)

func (c *commandContext) sessionStore(client redis.UniversalClient) *redisadapter.SessionStore {
	if prefix := c.Config.Redis.SessionPrefix; prefix != "" {
		return redisadapter.NewSessionStoreWithPrefix(client, prefix)
	}
	return redisadapter.NewSessionStore(client)
}

func runSessionList(cmdCtx *commandContext, args []string) error {
	fs := flag.NewFlagSet("session-list", flag.ContinueOnError)
	fs.SetOutput(cmdCtx.Out)
	userID := fs.String("user", "", "User ID whose sessions to list (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *userID == "" {
		return errors.New("--user is required")
	}

	ctx, cancel := cmdCtx.commandScope(defaultCommandTimeout)
	defer cancel()

	return cmdCtx.withRedis(ctx, func(client redis.UniversalClient) error {
		sessions, err := cmdCtx.sessionStore(client).ListUser(ctx, *userID)
		if err != nil {
			return fmt.Errorf("list sessions: %w", err)
		}
		return printSessions(cmdCtx.Out, sessions, time.Now())
	})
}

func printSessions(out io.Writer, sessions []domainauth.Session, now time.Time) error {
	if len(sessions) == 0 {
		return writef(out, "no live sessions\n")
	}
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].ExpiresAt.Before(sessions[j].ExpiresAt) })

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	if err := writef(tw, "SESSION\tROLE\tCLINIC\tPROFILE\tEXPIRES IN\n"); err != nil {
		return err
	}
	for _, s := range sessions {
		profile := "incomplete"
		if s.ProfileComplete {
			profile = "complete"
		}
		clinic := s.ClinicID
		if clinic == "" {
			clinic = "-"
		}
		left := s.ExpiresAt.Sub(now).Truncate(time.Second)
		if err := writef(tw, "%s\t%s\t%s\t%s\t%s\n", s.ID, s.Role, clinic, profile, left); err != nil {
			return err
		}
	}
	return tw.Flush()
}

type sessionRevokeOptions struct {
	ID     string
	UserID string
	Yes    bool
}

func parseRevokeFlags(out io.Writer, args []string) (sessionRevokeOptions, error) {
	var opts sessionRevokeOptions
	fs := flag.NewFlagSet("session-revoke", flag.ContinueOnError)
	fs.SetOutput(out)
	fs.StringVar(&opts.ID, "id", "", "Session ID to revoke")
	fs.StringVar(&opts.UserID, "user", "", "Revoke every session of this user instead")
	fs.BoolVar(&opts.Yes, "yes", false, "Skip the confirmation prompt")
	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	if (opts.ID == "") == (opts.UserID == "") {
		return opts, errors.New("exactly one of --id or --user is required")
	}
	return opts, nil
}

func runSessionRevoke(cmdCtx *commandContext, args []string) error {
	opts, err := parseRevokeFlags(cmdCtx.Out, args)
	if err != nil {
		return err
	}
	if !opts.Yes {
		intro := fmt.Sprintf("About to revoke session %s.", opts.ID)
		if opts.UserID != "" {
			intro = fmt.Sprintf("About to revoke every session of user %s.", opts.UserID)
		}
		if err := confirm(cmdCtx, intro); err != nil {
			return err
		}
	}

	ctx, cancel := cmdCtx.commandScope(defaultCommandTimeout)
	defer cancel()

	return cmdCtx.withRedis(ctx, func(client redis.UniversalClient) error {
		store := cmdCtx.sessionStore(client)
		if opts.UserID != "" {
			n, err := store.RevokeUser(ctx, opts.UserID)
			if err != nil {
				return fmt.Errorf("revoke user sessions: %w", err)
			}
			cmdCtx.Logger.InfoContext(ctx, "user sessions revoked", "user_id", opts.UserID, "count", n)
			return writef(cmdCtx.Out, "%d session(s) of user %s revoked\n", n, opts.UserID)
		}
		if err := store.Delete(ctx, opts.ID); err != nil {
			return fmt.Errorf("delete session: %w", err)
		}
		cmdCtx.Logger.InfoContext(ctx, "session revoked", "session_id", opts.ID)
		return writef(cmdCtx.Out, "session %s revoked\n", opts.ID)
	})
}

func confirm(cmdCtx *commandContext, intro string) error {
	if err := writef(cmdCtx.Out, "%s\nContinue? [y/N]: ", intro); err != nil {
		return fmt.Errorf("print confirmation prompt: %w", err)
	}
	resp, err := bufio.NewReader(cmdCtx.In).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("read confirmation: %w", err)
	}
	resp = strings.ToLower(strings.TrimSpace(resp))
	if resp == "y" || resp == "yes" {
		return nil
	}
	return errors.New("aborted by user")
}
