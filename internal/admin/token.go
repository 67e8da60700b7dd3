package admin

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"restaurant-system/internal/xpkg/auth"
	"restaurant-system/internal/xpkg/config"
	xerrors "restaurant-system/internal/xpkg/errors"
	"restaurant-system/internal/xpkg/logger"
)

// IssueToken prints a bearer token for --user with --role.
func IssueToken(ctx context.Context, mylog logger.Logger, args []string) error {
	return issueToken(mylog, args, os.Stdout)
}

func issueToken(mylog logger.Logger, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("issue-token", flag.ContinueOnError)
	showHelp := fs.Bool("help", false, "Show help")
	configPath := fs.String("config-path", "config.yaml", "path for config yaml")
	user := fs.String("user", "", "user id to put in the token")
	role := fs.String("role", string(auth.RoleCashier), "admin | manager | cashier | courier")

	if err := fs.Parse(args); err != nil {
		return xerrors.ErrParseCmd
	}
	if *showHelp {
		fs.Usage()
		return xerrors.ErrHelp
	}
	if *user == "" {
		return fmt.Errorf("--user is required")
	}
	if auth.Role(*role) == auth.RoleSystem {
		return fmt.Errorf("system tokens are not issued")
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		return err
	}
	tokens, err := auth.NewTokens(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.TokenTTL)
	if err != nil {
		return err
	}
	token, err := tokens.Generate(*user, auth.Role(*role))
	if err != nil {
		return err
	}

	mylog.Action("token_issued").Info("Token issued", "user", *user, "role", *role, "ttl", cfg.Auth.TokenTTL.String())
	_, err = fmt.Fprintln(out, token)
	return err
}
