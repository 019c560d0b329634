package main

import (
	"database/sql"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/target/portal-access/internal/adapters/profilepg"
	redisadapter "github.com/target/portal-access/internal/adapters/redis"
	"github.com/target/portal-access/internal/bootstrap"
	"github.com/target/portal-access/internal/domain/access"
	domainauth "github.com/target/portal-access/internal/domain/auth"
)

func runMigrations(cmdCtx *commandContext, args []string) error {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	fs.SetOutput(cmdCtx.Out)
	timeout := fs.Duration("timeout", 5*time.Minute, "Maximum time to wait for migrations")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *timeout <= 0 {
		return errors.New("--timeout must be positive")
	}

	ctx, cancel := cmdCtx.commandScope(*timeout)
	defer cancel()

	return cmdCtx.withDatabase(ctx, func(db *sql.DB) error {
		return bootstrap.RunMigrations(ctx, db, cmdCtx.Logger)
	})
}

type profileShowOptions struct {
	UserID string
	Role   string
}

func runProfileShow(cmdCtx *commandContext, args []string) error {
	var opts profileShowOptions
	fs := flag.NewFlagSet("profile-show", flag.ContinueOnError)
	fs.SetOutput(cmdCtx.Out)
	fs.StringVar(&opts.UserID, "user", "", "User ID (required)")
	fs.StringVar(&opts.Role, "role", string(domainauth.DefaultRole), "Role to evaluate optional fields for")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if opts.UserID == "" {
		return errors.New("--user is required")
	}

	_, gate, err := bootstrap.BuildAccess(cmdCtx.Config)
	if err != nil {
		return err
	}

	ctx, cancel := cmdCtx.commandScope(defaultCommandTimeout)
	defer cancel()

	return cmdCtx.withDatabase(ctx, func(db *sql.DB) error {
		rec, err := profilepg.NewRepo(db).GetProfile(ctx, opts.UserID)
		if err != nil {
			return err
		}
		return printProfile(cmdCtx.Out, rec, gate.Evaluate(rec, domainauth.ResolveRole(opts.Role)))
	})
}

func printProfile(out io.Writer, rec access.ProfileRecord, c access.Completeness) error {
	keys := make([]string, 0, len(rec))
	for k := range rec {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		raw, err := json.Marshal(rec[k])
		if err != nil {
			return fmt.Errorf("encode field %s: %w", k, err)
		}
		if err := writef(out, "  %s = %s\n", k, raw); err != nil {
			return err
		}
	}
	status := "complete"
	if !c.Complete {
		status = "incomplete, missing " + strings.Join(c.Missing, ", ")
	}
	if err := writef(out, "profile: %s\n", status); err != nil {
		return err
	}
	if len(c.OptionalMissing) > 0 {
		return writef(out, "optional missing: %s\n", strings.Join(c.OptionalMissing, ", "))
	}
	return nil
}

// parseAssignments turns key=value arguments into a profile patch. An empty value
// clears the field.
func parseAssignments(args []string) (access.ProfileRecord, error) {
	if len(args) == 0 {
		return nil, errors.New("at least one field=value argument is required")
	}
	patch := make(access.ProfileRecord, len(args))
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid assignment %q, want field=value", arg)
		}
		if value == "" {
			patch[key] = nil
			continue
		}
		patch[key] = value
	}
	return patch, nil
}

func runProfileSet(cmdCtx *commandContext, args []string) error {
	fs := flag.NewFlagSet("profile-set", flag.ContinueOnError)
	fs.SetOutput(cmdCtx.Out)
	userID := fs.String("user", "", "User ID (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *userID == "" {
		return errors.New("--user is required")
	}
	patch, err := parseAssignments(fs.Args())
	if err != nil {
		return err
	}

	ctx, cancel := cmdCtx.commandScope(defaultCommandTimeout)
	defer cancel()

	if err := cmdCtx.withDatabase(ctx, func(db *sql.DB) error {
		return profilepg.NewRepo(db).Upsert(ctx, *userID, patch)
	}); err != nil {
		return err
	}

	// Drop the cached record so the next login re-reads the profile.
	cacheCfg := cmdCtx.Config.Cache
	if cacheCfg.ProfileTTL > 0 {
		if err := cmdCtx.withRedis(ctx, func(client redis.UniversalClient) error {
			return redisadapter.InvalidateProfile(ctx, client, cacheCfg.ProfilePrefix, *userID)
		}); err != nil {
			cmdCtx.Logger.Warn("profile updated but cache invalidation failed", "user_id", *userID, "error", err)
		}
	}
	return writef(cmdCtx.Out, "updated %d field(s) for %s\n", len(patch), *userID)
}
