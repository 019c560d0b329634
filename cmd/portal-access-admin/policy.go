package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/target/portal-access/internal/bootstrap"
	"github.com/target/portal-access/internal/domain/access"
	domainauth "github.com/target/portal-access/internal/domain/auth"
	"github.com/target/portal-access/internal/service"
)

func runPolicyCheck(cmdCtx *commandContext, args []string) error {
	fs := flag.NewFlagSet("policy-check", flag.ContinueOnError)
	fs.SetOutput(cmdCtx.Out)
	if err := fs.Parse(args); err != nil {
		return err
	}

	p, err := bootstrap.LoadPolicy(cmdCtx.Config)
	if err != nil {
		return err
	}
	if _, err := access.NewResolver(p); err != nil {
		return err
	}
	return printPolicy(cmdCtx.Out, p)
}

func printPolicy(out io.Writer, p access.Policy) error {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	rows := [][2]string{
		{"login path", p.LoginPath},
		{"home path", p.HomePath},
		{"profile completion path", p.ProfileCompletionPath},
		{"signed-out path", p.SignedOutPath},
		{"app origin", p.AppOrigin},
		{"auth paths", strings.Join(p.AuthPaths, ", ")},
		{"required profile fields", strings.Join(p.RequiredProfileFields, ", ")},
	}
	for _, row := range rows {
		if err := writef(tw, "%s:\t%s\n", row[0], row[1]); err != nil {
			return err
		}
	}

	if err := writef(tw, "\nprefix\troles\tdefault path\n"); err != nil {
		return err
	}
	prefixes := make([]string, 0, len(p.RoleScopedPrefixes))
	for prefix := range p.RoleScopedPrefixes {
		prefixes = append(prefixes, prefix)
	}
	sort.Strings(prefixes)
	for _, prefix := range prefixes {
		roles := p.RoleScopedPrefixes[prefix]
		names := make([]string, 0, len(roles))
		defaults := make([]string, 0, len(roles))
		for _, r := range roles {
			names = append(names, r.String())
			if d := p.RoleDefaultPaths[r]; d != "" {
				defaults = append(defaults, d)
			}
		}
		if err := writef(tw, "%s\t%s\t%s\n", prefix, strings.Join(names, ","), strings.Join(defaults, ",")); err != nil {
			return err
		}
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	return writef(out, "\npolicy OK\n")
}

type resolveOptions struct {
	Path            string
	Role            string
	UserID          string
	Anonymous       bool
	ProfileComplete bool
	ErrorCode       string
}

func parseResolveFlags(out io.Writer, args []string) (resolveOptions, error) {
	var opts resolveOptions
	fs := flag.NewFlagSet("resolve", flag.ContinueOnError)
	fs.SetOutput(out)
	fs.StringVar(&opts.Path, "path", "", "Request path and query to evaluate (required)")
	fs.StringVar(&opts.Role, "role", string(domainauth.DefaultRole), "Role of the caller's session")
	fs.StringVar(&opts.UserID, "user", "admin-cli", "User ID of the caller's session")
	fs.BoolVar(&opts.Anonymous, "anonymous", false, "Evaluate without a session")
	fs.BoolVar(&opts.ProfileComplete, "profile-complete", true, "Whether the caller's profile is complete")
	fs.StringVar(&opts.ErrorCode, "error", "", "Credential error to simulate: session_expired, invalid_token, invalid_role")
	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	if opts.Path == "" {
		return opts, errors.New("--path is required")
	}
	if !strings.HasPrefix(opts.Path, "/") {
		return opts, fmt.Errorf("--path %q must start with /", opts.Path)
	}
	return opts, nil
}

func runResolve(cmdCtx *commandContext, args []string) error {
	opts, err := parseResolveFlags(cmdCtx.Out, args)
	if err != nil {
		return err
	}
	r, _, err := bootstrap.BuildAccess(cmdCtx.Config)
	if err != nil {
		return err
	}
	svc := service.NewAccessService(service.AccessServiceOptions{
		Resolver:         r,
		DenyUnclassified: cmdCtx.Config.Access.DenyUnclassified,
		Logger:           slog.New(slog.DiscardHandler),
	})

	d := svc.Intercept(cmdCtx.Ctx, service.InterceptInput{
		RequestURI:  opts.Path,
		LoadSession: simulatedSession(opts),
	})
	return printDecision(cmdCtx.Out, opts.Path, d)
}

func simulatedSession(opts resolveOptions) service.SessionLoader {
	return func(context.Context) service.SessionState {
		if opts.ErrorCode != "" {
			return service.SessionState{ErrorCode: opts.ErrorCode}
		}
		if opts.Anonymous {
			return service.SessionState{}
		}
		return service.SessionState{
			Authenticated: true,
			Session: &domainauth.Session{
				ID:              "simulated",
				UserID:          opts.UserID,
				Role:            domainauth.ResolveRole(opts.Role),
				ProfileComplete: opts.ProfileComplete,
			},
		}
	}
}

func printDecision(out io.Writer, path string, d service.Decision) error {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	cls := d.Classification.Kind.String()
	if d.Classification.Prefix != "" {
		cls = fmt.Sprintf("%s (prefix %s)", cls, d.Classification.Prefix)
	}
	outcome := "redirect"
	if d.Allow {
		outcome = "allow"
	}
	lines := [][2]string{
		{"path", path},
		{"classification", cls},
		{"decision", outcome},
		{"destination", d.Result.Path},
		{"reason", string(d.Result.Reason)},
	}
	if d.UnauthorizedRole {
		lines = append(lines, [2]string{"note", "role may not open this path"})
	}
	for _, l := range lines {
		if err := writef(tw, "%s:\t%s\n", l[0], l[1]); err != nil {
			return err
		}
	}
	return tw.Flush()
}
