package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"autodealer/internal/adapters/db"
	"autodealer/internal/adapters/db/file"
	"autodealer/internal/adapters/identity"
	"autodealer/internal/adapters/identity/fake"
	appauth "autodealer/internal/application/auth"
	"autodealer/internal/application/guard"
	"autodealer/internal/config"
	domainauth "autodealer/internal/domain/auth"
	"autodealer/internal/infrastructure/token"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.WarnLevel)

	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand(config.LoadConfig()).ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// cliOptions holds the flags shared by every command
type cliOptions struct {
	cfg     *config.Config
	verbose bool
}

func newRootCommand(cfg *config.Config) *cobra.Command {
	opts := &cliOptions{cfg: cfg}

	cmd := &cobra.Command{
		Use:           "dealerctl",
		Short:         "Manage the storefront session of this machine",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if opts.verbose {
				zerolog.SetGlobalLevel(zerolog.DebugLevel)
			}
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&cfg.Identity.BaseURL, "identity-url", cfg.Identity.BaseURL, "Base URL of the identity service")
	pf.DurationVar(&cfg.Identity.Timeout, "timeout", cfg.Identity.Timeout, "Deadline of each identity exchange")
	pf.StringVar(&cfg.Storage.Dir, "storage-dir", cfg.Storage.Dir, "Directory holding the persisted session")
	pf.StringVar(&cfg.Storage.Key, "storage-key", cfg.Storage.Key, "Key of the persisted session")
	pf.StringVar(&cfg.Guard.RoutesFile, "routes", cfg.Guard.RoutesFile, "YAML route table (built-in table when empty)")
	pf.BoolVarP(&opts.verbose, "verbose", "v", false, "Enable debug logging")

	cmd.AddCommand(newLoginCommand(opts))
	cmd.AddCommand(newLogoutCommand(opts))
	cmd.AddCommand(newStatusCommand(opts))
	cmd.AddCommand(newGuardCommand(opts))
	cmd.AddCommand(newFakeIdentityCommand())
	return cmd
}

// openSession builds the process-wide session store over the file backend and initializes it
func (o *cliOptions) openSession(ctx context.Context) (*appauth.Service, error) {
	store, err := file.NewStore(o.cfg.Storage.Dir)
	if err != nil {
		return nil, err
	}
	client, err := identity.NewClient(o.cfg.Identity.BaseURL, identity.WithTimeout(o.cfg.Identity.Timeout))
	if err != nil {
		return nil, err
	}
	codec, err := token.NewCodecFromConfig(o.cfg.Token)
	if err != nil {
		return nil, err
	}

	svc := appauth.NewService(db.NewSessionRepository(store, o.cfg.Storage.Key), client, codec)
	if err := svc.Init(ctx); err != nil {
		return nil, err
	}
	return svc, nil
}

func newLoginCommand(opts *cliOptions) *cobra.Command {
	var email, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and persist the session",
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				password = os.Getenv("DEALER_PASSWORD")
			}
			if password == "" {
				return errors.New("password is required (--password or DEALER_PASSWORD)")
			}

			svc, err := opts.openSession(cmd.Context())
			if err != nil {
				return err
			}
			defer svc.Dispose()

			if err := svc.Login(cmd.Context(), email, password); err != nil {
				return fmt.Errorf("login failed: %s [%s]", domainauth.Reason(err), domainauth.Code(err))
			}
			current, _ := svc.Current()
			fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s (%s)\n", current.Email, roleName(current.Role))
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "Account e-mail")
	cmd.Flags().StringVar(&password, "password", "", "Account password")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func newLogoutCommand(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and remove the persisted session",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := opts.openSession(cmd.Context())
			if err != nil {
				return err
			}
			defer svc.Dispose()

			svc.Logout(cmd.Context())
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
			return nil
		},
	}
}

func newStatusCommand(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the persisted session",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := opts.openSession(cmd.Context())
			if err != nil {
				return err
			}
			defer svc.Dispose()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "state:   %s\n", svc.State())
			current, ok := svc.Current()
			if !ok {
				return nil
			}
			fmt.Fprintf(out, "email:   %s\n", current.Email)
			fmt.Fprintf(out, "role:    %s\n", roleName(current.Role))
			fmt.Fprintf(out, "user id: %s\n", current.UserID)
			if exp, ok := svc.ExpiresAt(); ok {
				stale := ""
				if svc.IsStale() {
					stale = " (stale)"
				}
				fmt.Fprintf(out, "expires: %s%s\n", exp.Format(time.RFC3339), stale)
			}
			return nil
		},
	}
}

func newGuardCommand(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "guard <path>",
		Short: "Show whether the current session may open a view",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			routes := guard.DefaultRoutes()
			if opts.cfg.Guard.RoutesFile != "" {
				var err error
				if routes, err = guard.LoadRoutes(opts.cfg.Guard.RoutesFile); err != nil {
					return err
				}
			}
			g := guard.New(routes, guard.Policy{LoginPath: opts.cfg.Guard.LoginPath, HomePath: opts.cfg.Guard.HomePath})

			svc, err := opts.openSession(cmd.Context())
			if err != nil {
				return err
			}
			defer svc.Dispose()

			decision := g.Check(svc, args[0])
			line := fmt.Sprintf("%s %s: %s", args[0], g.Requirement(args[0]), decision.Outcome)
			if decision.Target != "" {
				line += " -> " + decision.Target
			}
			fmt.Fprintln(cmd.OutOrStdout(), line)
			return nil
		},
	}
}

func newFakeIdentityCommand() *cobra.Command {
	var (
		addr     string
		users    []string
		tokenTTL time.Duration
		secret   string
		legacy   bool
	)

	cmd := &cobra.Command{
		Use:   "fake-identity",
		Short: "Run an in-memory identity service for local development",
		RunE: func(cmd *cobra.Command, args []string) error {
			srvOpts := []fake.Option{fake.WithTokenTTL(tokenTTL)}
			if secret != "" {
				srvOpts = append(srvOpts, fake.WithSecret([]byte(secret)))
			}
			if legacy {
				srvOpts = append(srvOpts, fake.WithLegacyClaims())
			}
			srv := fake.NewServer(srvOpts...)

			for _, spec := range users {
				email, password, role, err := parseUserSpec(spec)
				if err != nil {
					return err
				}
				if _, err := srv.AddUser(email, password, role, true); err != nil {
					return fmt.Errorf("seed %s: %w", email, err)
				}
			}

			gin.SetMode(gin.ReleaseMode)
			server := &http.Server{Addr: addr, Handler: srv.Handler(), ReadHeaderTimeout: 10 * time.Second}

			ctx := cmd.Context()
			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = server.Shutdown(shutdownCtx)
			}()

			fmt.Fprintf(cmd.OutOrStdout(), "Fake identity service listening on %s with %d user(s)\n", addr, len(users))
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":5000", "Listen address")
	cmd.Flags().StringArrayVar(&users, "user", nil, "Seed a verified account as email:password[:role] (repeatable)")
	cmd.Flags().DurationVar(&tokenTTL, "token-ttl", 15*time.Minute, "Lifetime of issued tokens")
	cmd.Flags().StringVar(&secret, "secret", "", "HS256 signing secret")
	cmd.Flags().BoolVar(&legacy, "legacy-claims", false, "Issue namespaced legacy claim names")
	return cmd
}

// parseUserSpec splits email:password[:role]; role defaults to User
func parseUserSpec(spec string) (string, string, domainauth.Role, error) {
	parts := strings.SplitN(spec, ":", 3)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", "", fmt.Errorf("invalid user %q, expected email:password[:role]", spec)
	}
	role := domainauth.RoleUser
	if len(parts) == 3 && parts[2] != "" {
		role = domainauth.Role(parts[2])
	}
	return parts[0], parts[1], role, nil
}

func roleName(r domainauth.Role) string {
	if r == "" {
		return "no role"
	}
	return string(r)
}
