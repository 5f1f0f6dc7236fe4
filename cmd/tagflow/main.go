package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"tagflow/internal/app"
	"tagflow/internal/config"
	"tagflow/internal/db"
	"tagflow/internal/domain"
	"tagflow/internal/engine"
	"tagflow/internal/logging"
	"tagflow/internal/metrics"
	"tagflow/internal/repo"
	"tagflow/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "tagflow",
	Short: "Tagflow approval flow CLI",
	Long: `Tagflow drives approved flows to a terminal state and applies their tag policy.
- Process: a Ready flow becomes Complete, its AddTag/DeleteTag policy runs against
  every resource in the flow, logs are marked Complete, participants are notified.
- Cancel: a flow and its logs become cancel with a reason; no tags are touched.
- Records live in the workspace database unless api.base_url points at a record API.
- Tags go to the backend named in tagflow.yml (http, ec2 or dry-run).`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("TAGFLOW")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()
	_ = viper.BindEnv("api.token")
	_ = viper.BindEnv("server.jwt_secret")
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	rootCmd.PersistentFlags().String("config", "", "config file (default <workspace>/tagflow.yml)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
}

func registerCommands() {
	rootCmd.AddCommand(flowCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(seedCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(tokenCmd())
}

func flowCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "flow", Short: "Inspect and drive approval flows"}
	cmd.AddCommand(flowListCmd())
	cmd.AddCommand(flowShowCmd())
	cmd.AddCommand(flowProcessCmd())
	cmd.AddCommand(flowCancelCmd())
	return cmd
}

func flowListCmd() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List approval flows",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStack(cmd.Context(), false, func(ctx context.Context, s *app.Stack) error {
				flows, err := s.Store.ListFlows(ctx, status)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(flows)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Type", "Status", "Policy", "Completed"})
				for _, f := range flows {
					completed := ""
					if f.CompleteDateTime != nil {
						completed = *f.CompleteDateTime
					}
					tw.AppendRow(table.Row{f.ID, f.Name, f.Type, f.Status, f.PolicyID, completed})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "status filter")
	return cmd
}

func flowShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a flow with its participants and logs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withStack(cmd.Context(), false, func(ctx context.Context, s *app.Stack) error {
				flow, err := s.Store.GetFlow(ctx, id)
				if err != nil {
					return err
				}
				participants, err := s.Store.ListParticipants(ctx, id)
				if err != nil {
					return err
				}
				logs, err := s.Store.SearchLogs(ctx, id)
				if err != nil {
					return err
				}
				return printJSONOrTable(struct {
					Flow         domain.ApprovalFlow              `json:"flow"`
					Participants []domain.ApprovalFlowParticipant `json:"participants"`
					Logs         []domain.ApprovalFlowLog         `json:"logs"`
				}{flow, participants, logs})
			})
		},
	}
	return cmd
}

func flowProcessCmd() *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "process <id>",
		Short: "Complete a Ready flow and apply its policy",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withStack(cmd.Context(), dryRun, func(ctx context.Context, s *app.Stack) error {
				flow, err := s.Store.GetFlow(ctx, id)
				if err != nil {
					return err
				}
				res, err := s.Engine.Process(ctx, flow, caller())
				if err != nil {
					return err
				}
				return printResult(res)
			})
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "record tag calls instead of sending them")
	return cmd
}

func flowCancelCmd() *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "cancel <id>",
		Short: "Cancel a flow with a reason",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withStack(cmd.Context(), false, func(ctx context.Context, s *app.Stack) error {
				flow, err := s.Store.GetFlow(ctx, id)
				if err != nil {
					return err
				}
				res, err := s.Engine.Cancel(ctx, flow, reason, caller())
				if err != nil {
					return err
				}
				return printResult(res)
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "cancellation reason")
	return cmd
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "config", Short: "Manage tagflow.yml"}
	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default config into the workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force)", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	cmd.AddCommand(initCmd)
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			cfg.API.Token = redact(cfg.API.Token)
			cfg.Server.JWTSecret = redact(cfg.Server.JWTSecret)
			if viper.GetBool("json") {
				return printJSON(cfg)
			}
			enc := yaml.NewEncoder(os.Stdout)
			enc.SetIndent(2)
			defer enc.Close()
			return enc.Encode(cfg)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate the config",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := loadConfig(); err != nil {
				return err
			}
			fmt.Println("config ok")
			return nil
		},
	})
	return cmd
}

func seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Write a demo dataset into the workspace database",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				summary, err := app.Seed(ctx, r)
				if err != nil {
					return err
				}
				return printJSONOrTable(summary)
			})
		},
	}
}

func logCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "log", Short: "Event log"}
	cmd.AddCommand(logTailCmd())
	return cmd
}

func logTailCmd() *cobra.Command {
	var n int
	var entityKind, entityID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStack(cmd.Context(), false, func(ctx context.Context, s *app.Stack) error {
				events, err := s.Store.LatestEvents(ctx, n, entityKind, entityID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(events)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "TS", "Type", "Entity", "Actor", "Payload"})
				for _, e := range events {
					tw.AppendRow(table.Row{e.ID, e.TS, e.Type, e.EntityKind + "/" + e.EntityID, e.ActorID, e.Payload})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "entity id")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the record API over the workspace database",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.API.BaseURL != "" {
				return fmt.Errorf("serve uses the workspace database; unset api.base_url")
			}
			if cfg.Server.JWTSecret == "" {
				return fmt.Errorf("TAGFLOW_SERVER_JWT_SECRET is required for bearer auth")
			}
			if addr == "" {
				addr = cfg.Server.Addr
			}
			if basePath == "" {
				basePath = cfg.Server.BasePath
			}
			log, err := logging.New(cfg.Log.Level, cfg.Log.Format)
			if err != nil {
				return err
			}
			defer log.Sync()
			if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			s, err := app.Open(ctx, app.Options{Workspace: viper.GetString("workspace"), Config: cfg, Log: log})
			if err != nil {
				return err
			}
			defer s.Close()

			handler, err := server.New(server.Config{
				Repo:     *s.Repo,
				Engine:   &s.Engine,
				BasePath: basePath,
				Auth:     server.AuthConfig{JWTSecret: cfg.Server.JWTSecret, Logger: log},
				Log:      log,
			})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				log.Info("serving record api", zap.String("addr", addr), zap.String("base_path", basePath))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
			g.Go(func() error {
				<-gctx.Done()
				shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				return srv.Shutdown(shutdown)
			})
			fmt.Printf("Serving tagflow record API on http://%s%s (OpenAPI at /openapi.json, metrics at /metrics)\n", addr, basePath)
			return g.Wait()
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default server.addr)")
	cmd.Flags().StringVar(&basePath, "base-path", "", "API base path (default server.base_path)")
	return cmd
}

func tokenCmd() *cobra.Command {
	var subject string
	var perms []string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for the local record API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if subject == "" {
				subject = viper.GetString("actor-id")
			}
			if len(perms) == 0 {
				perms = server.AllPermissions
			}
			tok, err := server.IssueToken(cfg.Server.JWTSecret, subject, perms, ttl)
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(map[string]any{"token": tok, "subject": subject, "permissions": perms})
			}
			fmt.Println(tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "token subject (default --actor-id)")
	cmd.Flags().StringSliceVar(&perms, "perm", nil, "permission to grant (repeatable, default all)")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime (0 for none)")
	return cmd
}

// --- helpers ---

func loadConfig() (*config.Config, error) {
	var cfg *config.Config
	var err error
	if path := viper.GetString("config"); path != "" {
		cfg, err = config.FromFile(path)
	} else {
		cfg, err = config.Load(viper.GetString("workspace"))
	}
	if err != nil {
		return nil, err
	}
	if v := viper.GetString("api.token"); v != "" {
		cfg.API.Token = v
	}
	if v := viper.GetString("server.jwt_secret"); v != "" {
		cfg.Server.JWTSecret = v
	}
	return cfg, nil
}

func withStack(ctx context.Context, dryRun bool, fn func(context.Context, *app.Stack) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	defer log.Sync()
	s, err := app.Open(ctx, app.Options{
		Workspace: viper.GetString("workspace"),
		Config:    cfg,
		Log:       log,
		DryRun:    dryRun,
	})
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(ctx, s)
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	conn, err := app.OpenRepo(ctx, viper.GetString("workspace"))
	if err != nil {
		return err
	}
	defer conn.Close()
	return fn(ctx, repo.New(conn))
}

func caller() engine.Caller {
	return engine.Caller{ID: viper.GetString("actor-id")}
}

func printResult(res engine.Result) error {
	if viper.GetBool("json") {
		return printJSON(res)
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"Flow", "Action", "Status", "Policy", "Applied", "Removed", "Tags+", "Tags-", "Missing", "Logs", "Notified"})
	tw.AppendRow(table.Row{
		res.Flow.ID, res.Action, res.Flow.Status, res.PolicyType,
		res.TagsApplied, res.TagsRemoved, res.ResourceTagsCreated, res.ResourceTagsDeactivated,
		res.MissingResourceTags, res.LogsUpdated, res.Notifications.Notifications,
	})
	tw.Render()
	return nil
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid flow id %q", s)
	}
	return id, nil
}

func redact(s string) string {
	if s == "" {
		return ""
	}
	return "***"
}
