// licensectl administers the license store directly, without going through
// the HTTP service. It reads the same configuration as licensed, so it must
// be pointed at the same storage backend to see the same licenses.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"github.com/BryanChi/SuperGPT-Website/internal/app"
	"github.com/BryanChi/SuperGPT-Website/internal/auth"
	"github.com/BryanChi/SuperGPT-Website/internal/config"
	"github.com/BryanChi/SuperGPT-Website/internal/infrastructure"
	"github.com/BryanChi/SuperGPT-Website/internal/license"
)

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout, os.Stderr); err != nil {
		var coder interface{ ExitCode() int }
		if errors.As(err, &coder) {
			if msg := err.Error(); msg != "" {
				fmt.Fprintf(os.Stderr, "error: %s\n", msg)
			}
			os.Exit(coder.ExitCode())
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type exitError struct {
	code int
	msg  string
}

func (e *exitError) Error() string { return e.msg }
func (e *exitError) ExitCode() int { return e.code }

func usageErr(format string, args ...any) error {
	return &exitError{code: 2, msg: fmt.Sprintf(format, args...)}
}

// errInconsistent is returned by reconcile after printing a report that
// found problems, so scripts can branch on the exit status.
var errInconsistent = &exitError{code: 3}

type cli struct {
	stdout io.Writer
	stderr io.Writer

	configFile string
	backend    string
	boltPath   string
	redisURL   string
	logLevel   string
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	c := &cli{stdout: stdout, stderr: stderr}

	flagSet := pflag.NewFlagSet("licensectl", pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	flagSet.SetInterspersed(false)
	flagSet.StringVarP(&c.configFile, "config", "c", "", "config file (default: $SGPT_CONFIG_FILE or config.yaml lookup)")
	flagSet.StringVar(&c.backend, "backend", "", "override storage.backend (memory, bbolt, redis)")
	flagSet.StringVar(&c.boltPath, "bolt-path", "", "override storage.bolt_path")
	flagSet.StringVar(&c.redisURL, "redis-url", "", "override storage.redis_url")
	flagSet.StringVar(&c.logLevel, "log-level", "warn", "log level written to stderr")
	flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			c.printHelp(flagSet)
			return nil
		}
		return usageErr("%v", err)
	}
	if help, _ := flagSet.GetBool("help"); help {
		c.printHelp(flagSet)
		return nil
	}

	rest := flagSet.Args()
	if len(rest) == 0 {
		c.printHelp(flagSet)
		return usageErr("missing command")
	}
	command, commandArgs := rest[0], rest[1:]

	// Commands that do not need the store.
	switch command {
	case "checksum":
		return c.checksum(commandArgs)
	case "hash-admin-key":
		return c.hashAdminKey(commandArgs)
	case "help":
		c.printHelp(flagSet)
		return nil
	}

	handlers := map[string]func(context.Context, *app.Services, *config.Config, []string) error{
		"issue":     c.issue,
		"revoke":    c.revoke,
		"verify":    c.verify,
		"get":       c.get,
		"list":      c.list,
		"summary":   c.summary,
		"payments":  c.payments,
		"payment":   c.payment,
		"reconcile": c.reconcile,
	}
	handler, ok := handlers[command]
	if !ok {
		return usageErr("unknown command %q (see licensectl --help)", command)
	}

	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}
	logger := infrastructure.NewLogger(stderr, c.logLevel).With(slog.String("command", command))
	ctx = infrastructure.EnsureTraceID(ctx)

	services, err := app.NewServices(ctx, cfg, logger, nil)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := services.Close(); cerr != nil {
			logger.Warn("Failed to close store", slog.String("error", cerr.Error()))
		}
	}()

	return handler(ctx, services, cfg, commandArgs)
}

func (c *cli) loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if c.configFile != "" {
		cfg, err = config.LoadFrom(c.configFile)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}
	if c.backend != "" {
		cfg.Storage.Backend = c.backend
	}
	if c.boltPath != "" {
		cfg.Storage.BoltPath = c.boltPath
	}
	if c.redisURL != "" {
		cfg.Storage.RedisURL = c.redisURL
	}
	// Seeding belongs to the service; the tool only sees what is stored.
	cfg.Product.SeedDemo = false
	return cfg, nil
}

func (c *cli) issue(ctx context.Context, svc *app.Services, cfg *config.Config, args []string) error {
	fs := pflag.NewFlagSet("issue", pflag.ContinueOnError)
	fs.SetOutput(c.stderr)
	email := fs.String("email", "", "customer email (required)")
	days := fs.Int("days", 0, "validity in days (default: product.admin_term)")
	perpetual := fs.Bool("perpetual", false, "issue a license that never expires")
	if err := fs.Parse(args); err != nil {
		return usageErr("issue: %v", err)
	}
	if strings.TrimSpace(*email) == "" {
		return usageErr("issue: --email is required")
	}
	if *days < 0 {
		return usageErr("issue: --days must be positive")
	}
	if *perpetual && *days > 0 {
		return usageErr("issue: --days and --perpetual are mutually exclusive")
	}

	req := license.IssueRequest{Email: *email, Source: license.SourceAdmin}
	now := svc.Manager.Now()
	switch {
	case *perpetual:
	case *days > 0:
		exp := now.AddDate(0, 0, *days)
		req.ExpiresAt = &exp
	case cfg.Product.AdminTerm > 0:
		exp := now.Add(cfg.Product.AdminTerm)
		req.ExpiresAt = &exp
	}

	lic, err := svc.Manager.Issue(ctx, req)
	if err != nil {
		return err
	}
	return c.printJSON(lic)
}

func (c *cli) revoke(ctx context.Context, svc *app.Services, _ *config.Config, args []string) error {
	key, err := singleArg("revoke", "KEY", args)
	if err != nil {
		return err
	}
	lic, err := svc.Manager.Revoke(ctx, key)
	if err != nil {
		return err
	}
	return c.printJSON(lic)
}

func (c *cli) verify(ctx context.Context, svc *app.Services, _ *config.Config, args []string) error {
	fs := pflag.NewFlagSet("verify", pflag.ContinueOnError)
	fs.SetOutput(c.stderr)
	email := fs.String("email", "", "email the license must belong to")
	if err := fs.Parse(args); err != nil {
		return usageErr("verify: %v", err)
	}
	key, err := singleArg("verify", "KEY", fs.Args())
	if err != nil {
		return err
	}
	result, err := svc.Manager.Verify(ctx, key, *email)
	if err != nil {
		return err
	}
	return c.printJSON(result)
}

func (c *cli) get(ctx context.Context, svc *app.Services, _ *config.Config, args []string) error {
	key, err := singleArg("get", "KEY", args)
	if err != nil {
		return err
	}
	lic, err := svc.Manager.Get(ctx, key)
	if err != nil {
		return err
	}
	return c.printJSON(lic)
}

func (c *cli) list(ctx context.Context, svc *app.Services, _ *config.Config, args []string) error {
	fs := pflag.NewFlagSet("list", pflag.ContinueOnError)
	fs.SetOutput(c.stderr)
	asJSON := fs.Bool("json", false, "print JSON instead of a table")
	status := fs.String("status", "", "only show licenses with this effective status (active, revoked, expired)")
	if err := fs.Parse(args); err != nil {
		return usageErr("list: %v", err)
	}

	licenses, err := svc.Manager.List(ctx)
	if err != nil {
		return err
	}
	now := svc.Manager.Now()
	views := make([]listedLicense, 0, len(licenses))
	for _, lic := range licenses {
		effective := lic.EffectiveStatus(now)
		if *status != "" && string(effective) != *status {
			continue
		}
		views = append(views, listedLicense{License: lic, EffectiveStatus: effective})
	}

	if *asJSON {
		return c.printJSON(views)
	}
	tw := tabwriter.NewWriter(c.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tEMAIL\tSTATUS\tSOURCE\tCREATED\tEXPIRES")
	for _, v := range views {
		expires := "never"
		if v.ExpiresAt != nil {
			expires = v.ExpiresAt.Format(time.DateOnly)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			v.Key, v.Email, v.EffectiveStatus, v.Source, v.CreatedAt.Format(time.DateOnly), expires)
	}
	return tw.Flush()
}

// listedLicense adds the status derived at listing time to the stored record.
type listedLicense struct {
	license.License
	EffectiveStatus license.Status `json:"effectiveStatus"`
}

func (c *cli) summary(ctx context.Context, svc *app.Services, _ *config.Config, args []string) error {
	if len(args) > 0 {
		return usageErr("summary: unexpected argument %q", args[0])
	}
	s, err := svc.Manager.Summary(ctx)
	if err != nil {
		return err
	}
	return c.printJSON(s)
}

func (c *cli) payments(ctx context.Context, svc *app.Services, _ *config.Config, args []string) error {
	if len(args) > 0 {
		return usageErr("payments: unexpected argument %q", args[0])
	}
	payments, err := svc.Payments.ListPayments(ctx)
	if err != nil {
		return err
	}
	if payments == nil {
		payments = []license.Payment{}
	}
	return c.printJSON(payments)
}

func (c *cli) payment(ctx context.Context, svc *app.Services, _ *config.Config, args []string) error {
	txID, err := singleArg("payment", "TRANSACTION_ID", args)
	if err != nil {
		return err
	}
	p, err := svc.Payments.GetPayment(ctx, txID)
	if err != nil {
		return err
	}
	return c.printJSON(p)
}

func (c *cli) reconcile(ctx context.Context, svc *app.Services, _ *config.Config, args []string) error {
	if len(args) > 0 {
		return usageErr("reconcile: unexpected argument %q", args[0])
	}
	report, err := svc.Payments.Reconcile(ctx)
	if err != nil {
		return err
	}
	if err := c.printJSON(report); err != nil {
		return err
	}
	if !report.Consistent() {
		return errInconsistent
	}
	return nil
}

// checksum prints the checksum of each argument. Full keys are checked
// against their own checksum segment instead.
func (c *cli) checksum(args []string) error {
	if len(args) == 0 {
		return usageErr("checksum: expected at least one argument")
	}
	invalid := false
	for _, arg := range args {
		if license.ValidateFormat(arg) {
			ok := license.ValidateChecksum(arg)
			state := "ok"
			if !ok {
				state = "mismatch"
				invalid = true
			}
			fmt.Fprintf(c.stdout, "%s\t%s\n", license.NormalizeKey(arg), state)
			continue
		}
		fmt.Fprintf(c.stdout, "%s\t%s\n", arg, license.Checksum(arg))
	}
	if invalid {
		return &exitError{code: 1, msg: "checksum mismatch"}
	}
	return nil
}

func (c *cli) hashAdminKey(args []string) error {
	secret, err := singleArg("hash-admin-key", "SECRET", args)
	if err != nil {
		return err
	}
	hash, err := auth.HashSecret(secret)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.stdout, hash)
	return nil
}

func singleArg(command, name string, args []string) (string, error) {
	if len(args) != 1 {
		return "", usageErr("%s: expected exactly one %s argument", command, name)
	}
	return args[0], nil
}

func (c *cli) printJSON(v any) error {
	enc := json.NewEncoder(c.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (c *cli) printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(c.stderr, `licensectl: manage %s licenses in the configured store.

Usage:
  licensectl [flags] <command> [args]

Commands:
  issue --email EMAIL [--days N | --perpetual]   issue an admin license
  revoke KEY                                     revoke a license
  verify KEY [--email EMAIL]                     run the verification used by the extension
  get KEY                                        show one license
  list [--status STATUS] [--json]                list licenses
  summary                                        count licenses by effective status
  payments                                       list recorded payments
  payment TRANSACTION_ID                         show one payment
  reconcile                                      cross-check licenses and payments (exit 3 on problems)
  checksum VALUE|KEY...                          compute a checksum or check a key
  hash-admin-key SECRET                          print a bcrypt hash for security.admin_key_hash

Flags:
`, config.AppName)
	flagSet.PrintDefaults()
}
