package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"commandops/internal/app"
	"commandops/internal/config"
	"commandops/internal/domain"
	"commandops/internal/engine/auth"
	"commandops/internal/logging"
	"commandops/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "cmdops",
	Short: "Command Ops CLI",
	Long: `Command Ops organizes work into missions (projects) and quests (tasks).
- Quests move PLANNING -> ACTIVE -> COMPLETED -> ARCHIVED; at most 3 can be active, 4 with an emergency deploy.
- Missions archive only once every quest under them is complete.
- The HTTP API (cmdops serve) authenticates owners with bearer tokens (cmdops token) or API keys (cmdops apikey create).`,
	SilenceUsage: true,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("CMDOPS")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default <workspace>/"+config.FileName+")")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("owner", "", "owner id for owner-scoped commands")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("owner", rootCmd.PersistentFlags().Lookup("owner"))
}

func registerCommands() {
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(apikeyCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(questCmd())
	rootCmd.AddCommand(missionCmd())
	rootCmd.AddCommand(analyticsCmd())
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			if basePath != "" {
				cfg.Server.BasePath = basePath
			}
			if cfg.Auth.JWTSecret == "" {
				return errors.New("a JWT secret is required: set auth.jwt_secret or CMDOPS_JWT_SECRET")
			}
			log := logging.New(cfg.Log.Level, cfg.Log.Format, os.Stderr)
			rt, err := app.Open(ctx, viper.GetString("workspace"), cfg, log)
			if err != nil {
				return err
			}
			defer rt.Close()

			handler, err := server.New(server.Config{
				Engine:   rt.Engine,
				Auth:     rt.Auth,
				Limiter:  rt.Limiter,
				BasePath: cfg.Server.BasePath,
				Logger:   log,
			})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: cfg.Server.Addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := srv.Shutdown(shutdownCtx); err != nil {
					log.Error("shutdown", "error", err)
				}
			}()
			log.Info("serving Command Ops API",
				"addr", cfg.Server.Addr,
				"base_path", cfg.Server.BasePath,
				"schema_version", rt.SchemaVersion,
				"redis", rt.Redis != nil)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	cmd.Flags().StringVar(&basePath, "base-path", "", "API base path (overrides server.base_path)")
	return cmd
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				if viper.GetBool("json") {
					return printJSON(map[string]any{"schema_version": rt.SchemaVersion})
				}
				fmt.Printf("schema at version %d\n", rt.SchemaVersion)
				return nil
			})
		},
	}
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Manage the config file"}
	cfg.AddCommand(configInitCmd())
	cfg.AddCommand(configShowCmd())
	return cfg
}

func configInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := configPath()
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists; use --force to overwrite", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

func configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Auth.JWTSecret != "" {
				cfg.Auth.JWTSecret = "********"
			}
			if cfg.Redis.Password != "" {
				cfg.Redis.Password = "********"
			}
			out, err := yaml.Marshal(cfg)
			if err != nil {
				return err
			}
			fmt.Print(string(out))
			return nil
		},
	}
}

func apikeyCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "apikey", Short: "Manage API keys"}
	cmd.AddCommand(apikeyCreateCmd())
	cmd.AddCommand(apikeyListCmd())
	cmd.AddCommand(apikeyRevokeCmd())
	return cmd
}

func apikeyCreateCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an API key for --owner (the secret is shown once)",
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, err := requireOwner()
			if err != nil {
				return err
			}
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				key, secret, err := rt.Auth.CreateAPIKey(ctx, owner, name)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"id": key.ID, "owner_id": key.OwnerID, "name": key.Name, "key": secret})
				}
				fmt.Printf("id:  %s\nkey: %s\n", key.ID, secret)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "label for the key")
	return cmd
}

func apikeyListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List API keys of --owner",
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, err := requireOwner()
			if err != nil {
				return err
			}
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				keys, err := rt.Auth.Repo.ListAPIKeys(ctx, owner)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(keys)
				}
				tw := newTable(table.Row{"ID", "Name", "Created"})
				for _, k := range keys {
					tw.AppendRow(table.Row{k.ID, k.Name, k.CreatedAt.Format(time.RFC3339)})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func apikeyRevokeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "revoke <id>",
		Short: "Revoke an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				if err := rt.Auth.Repo.DeleteAPIKey(ctx, args[0]); err != nil {
					return err
				}
				fmt.Println("revoked", args[0])
				return nil
			})
		},
	}
}

func tokenCmd() *cobra.Command {
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for --owner",
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, err := requireOwner()
			if err != nil {
				return err
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			svc := auth.Service{JWTSecret: cfg.Auth.JWTSecret}
			token, err := svc.IssueToken(owner, ttl)
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(map[string]any{"token": token, "owner_id": owner})
			}
			fmt.Println(token)
			return nil
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime (0 for no expiry)")
	return cmd
}

func questCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "quest", Short: "Inspect quests"}
	var status, mission string
	var includeArchived bool
	list := &cobra.Command{
		Use:   "list",
		Short: "List quests of --owner in priority order",
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, err := requireOwner()
			if err != nil {
				return err
			}
			f := domain.QuestFilter{IncludeArchived: includeArchived}
			if status != "" {
				s := domain.QuestStatus(strings.ToUpper(status))
				f.Status = &s
			}
			if mission != "" {
				f.MissionID = &mission
			}
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				quests, err := rt.Engine.ListQuests(ctx, owner, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(quests)
				}
				now := time.Now()
				tw := newTable(table.Row{"ID", "P", "Title", "Status", "Critical", "Deadline"})
				for _, q := range quests {
					deadline := ""
					if q.Deadline != nil {
						deadline = q.Deadline.Local().Format("2006-01-02")
					}
					tw.AppendRow(table.Row{q.ID, domain.Priority(q, now), q.Title, q.Status, q.IsCritical, deadline})
				}
				tw.Render()
				return nil
			})
		},
	}
	list.Flags().StringVar(&status, "status", "", "status filter")
	list.Flags().StringVar(&mission, "mission", "", "mission id filter")
	list.Flags().BoolVar(&includeArchived, "include-archived", false, "include archived quests")
	cmd.AddCommand(list)
	return cmd
}

func missionCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "mission", Short: "Inspect missions"}
	var status string
	list := &cobra.Command{
		Use:   "list",
		Short: "List missions of --owner",
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, err := requireOwner()
			if err != nil {
				return err
			}
			var st *domain.MissionStatus
			if status != "" {
				s := domain.MissionStatus(strings.ToUpper(status))
				st = &s
			}
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				missions, err := rt.Engine.ListMissions(ctx, owner, st)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(missions)
				}
				tw := newTable(table.Row{"ID", "Title", "Status", "Quests", "Completed"})
				for _, m := range missions {
					tw.AppendRow(table.Row{m.ID, m.Title, m.Status, m.TotalQuestCount, m.CompletedQuestCount})
				}
				tw.Render()
				return nil
			})
		},
	}
	list.Flags().StringVar(&status, "status", "", "ACTIVE or ARCHIVED")
	cmd.AddCommand(list)
	return cmd
}

func analyticsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "analytics",
		Short: "Show the analytics snapshot of --owner",
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, err := requireOwner()
			if err != nil {
				return err
			}
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				a, err := rt.Engine.Analytics(ctx, owner)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(a)
				}
				tw := newTable(table.Row{"Metric", "Value"})
				tw.AppendRows([]table.Row{
					{"operational load", fmt.Sprintf("%.0f%%", a.OperationalLoad*100)},
					{"active quests", a.ActiveCount},
					{"weekly momentum", a.WeeklyMomentum},
					{"success rate", fmt.Sprintf("%d%%", a.SuccessRate)},
					{"estimate accuracy", fmt.Sprintf("%d%%", a.EstimateAccuracy)},
				})
				tw.Render()
				return nil
			})
		},
	}
}

// --- helpers ---

func configPath() string {
	if p := viper.GetString("config"); p != "" {
		return p
	}
	return config.Path(viper.GetString("workspace"))
}

// loadConfig reads the config file (defaults when the implicit file is
// absent) and applies CMDOPS_ environment overrides.
func loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if viper.GetString("config") != "" {
		cfg, err = config.Load(configPath())
	} else {
		cfg, err = config.LoadOptional(configPath())
	}
	if err != nil {
		return nil, err
	}
	if v := viper.GetString("jwt_secret"); v != "" {
		cfg.Auth.JWTSecret = v
	}
	if v := viper.GetString("redis_addr"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := viper.GetString("database_dsn"); v != "" {
		cfg.Database.DSN = v
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func withRuntime(ctx context.Context, fn func(context.Context, *app.Runtime) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := logging.New(cfg.Log.Level, cfg.Log.Format, os.Stderr)
	rt, err := app.Open(ctx, viper.GetString("workspace"), cfg, log)
	if err != nil {
		return err
	}
	defer rt.Close()
	return fn(ctx, rt)
}

func requireOwner() (string, error) {
	owner := strings.TrimSpace(viper.GetString("owner"))
	if owner == "" {
		return "", errors.New("owner required; pass --owner or set CMDOPS_OWNER")
	}
	return owner, nil
}

func newTable(header table.Row) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(header)
	return tw
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
