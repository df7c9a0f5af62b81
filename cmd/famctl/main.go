// famctl drives a family session from the command line: sign in, inspect
// the session and its tenant context, switch institution, sign out. The
// session is persisted through the configured store, so state carries over
// between invocations.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"family-session/internal/app"
	"family-session/internal/config"
	"family-session/internal/logger"
	"family-session/internal/model"
)

type command struct {
	name    string
	summary string
	run     func(ctx context.Context, c *app.Client, args []string) error
}

var commands = []command{
	{name: "login", summary: "sign in with email and password", run: runLogin},
	{name: "status", summary: "show session and tenant state", run: runStatus},
	{name: "whoami", summary: "print the signed-in user", run: runWhoami},
	{name: "associations", summary: "list the user's associations from the backend", run: runAssociations},
	{name: "select", summary: "switch the active association: select <association-id>", run: runSelect},
	{name: "logout", summary: "revoke tokens and clear the persisted session", run: runLogout},
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(argv []string) error {
	flagSet := pflag.NewFlagSet("famctl", pflag.ContinueOnError)
	flagSet.SetInterspersed(false)
	verbose := flagSet.BoolP("verbose", "v", false, "log at debug level")
	baseURL := flagSet.String("api", "", "backend base URL (overrides API_BASE_URL)")
	storeDriver := flagSet.String("store", "", "session store driver: file, memory, redis, postgres (overrides STORE_DRIVER)")
	flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(argv); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			printHelp(flagSet)
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help || flagSet.NArg() == 0 {
		printHelp(flagSet)
		return nil
	}

	if *baseURL != "" {
		os.Setenv("API_BASE_URL", *baseURL)
	}
	if *storeDriver != "" {
		os.Setenv("STORE_DRIVER", *storeDriver)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	level := cfg.LogLevel
	if *verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(logger.NewPlainHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	name, args := flagSet.Arg(0), flagSet.Args()[1:]
	var cmd *command
	for i := range commands {
		if commands[i].name == name {
			cmd = &commands[i]
		}
	}
	if cmd == nil {
		return fmt.Errorf("unknown command %q (run famctl --help)", name)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := app.NewClient(ctx, cfg, app.ClientOptions{})
	if err != nil {
		return err
	}
	defer client.Close()

	return cmd.run(ctx, client, args)
}

func runLogin(ctx context.Context, c *app.Client, args []string) error {
	flagSet := pflag.NewFlagSet("login", pflag.ContinueOnError)
	email := flagSet.StringP("email", "e", "", "account email")
	password := flagSet.StringP("password", "p", "", "account password (default: $FAMCTL_PASSWORD)")
	if err := flagSet.Parse(args); err != nil {
		return err
	}
	if *password == "" {
		*password = os.Getenv("FAMCTL_PASSWORD")
	}
	if strings.TrimSpace(*email) == "" || *password == "" {
		return errors.New("login requires --email and --password")
	}

	ok, err := c.Session.Authenticate(ctx, *email, *password)
	if err != nil {
		if errors.Is(err, model.ErrInvalidCredentials) {
			return errors.New("invalid email or password")
		}
		return err
	}
	if !ok {
		return errors.New("backend accepted the credentials but issued no access token")
	}

	return printJSON(statusView(c))
}

func runStatus(_ context.Context, c *app.Client, _ []string) error {
	return printJSON(statusView(c))
}

func runWhoami(_ context.Context, c *app.Client, _ []string) error {
	user := c.Session.User()
	if user == nil {
		return model.ErrNotAuthenticated
	}
	return printJSON(user)
}

func runAssociations(ctx context.Context, c *app.Client, _ []string) error {
	if !c.Session.IsAuthenticated() {
		return model.ErrNotAuthenticated
	}

	list, err := c.Associations.GetUserAssociations(ctx)
	if err != nil {
		return err
	}

	selectedID := ""
	if selected := c.Tenant.SelectedInstitution(); selected != nil {
		selectedID = selected.ID
	}

	type row struct {
		model.Association
		Selected bool `json:"selected"`
	}
	rows := make([]row, 0, len(list))
	for _, a := range list {
		rows = append(rows, row{Association: a, Selected: a.ID == selectedID})
	}
	return printJSON(rows)
}

func runSelect(ctx context.Context, c *app.Client, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: famctl select <association-id>")
	}
	if err := c.Session.SelectAssociation(ctx, args[0]); err != nil {
		return err
	}
	return printJSON(statusView(c))
}

func runLogout(ctx context.Context, c *app.Client, _ []string) error {
	if err := c.Session.Logout(ctx); err != nil {
		slog.Warn("logout completed with errors", "error", err)
	}
	fmt.Println("logged out")
	return nil
}

type status struct {
	Authenticated bool               `json:"authenticated"`
	User          *model.User        `json:"user,omitempty"`
	ExpiresAt     *time.Time         `json:"tokenExpiresAt,omitempty"`
	Selected      *model.Association `json:"selectedAssociation,omitempty"`
	Institution   *model.Institution `json:"activeInstitution,omitempty"`
	Student       *model.Student     `json:"activeStudent,omitempty"`
	Associations  int                `json:"associations"`
}

func statusView(c *app.Client) status {
	s := status{
		Authenticated: c.Session.IsAuthenticated(),
		User:          c.Session.User(),
		Selected:      c.Tenant.SelectedInstitution(),
		Institution:   c.Tenant.ActiveInstitution(),
		Student:       c.Tenant.ActiveStudent(),
		Associations:  len(c.Tenant.UserAssociations()),
	}
	if exp := c.Tokens.ExpiresAt(); !exp.IsZero() {
		s.ExpiresAt = &exp
	}
	return s
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, "famctl manages a family session against the backend.\n\nUsage:\n  famctl [flags] <command> [args]\n\nCommands:\n")
	for _, cmd := range commands {
		fmt.Fprintf(os.Stderr, "  %-13s %s\n", cmd.name, cmd.summary)
	}
	fmt.Fprintf(os.Stderr, "\nFlags:\n%s", flagSet.FlagUsages())
}
