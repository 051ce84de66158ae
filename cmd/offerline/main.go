package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"offerline/internal/app"
	"offerline/internal/config"
	"offerline/internal/domain"
	"offerline/internal/engine"
	"offerline/internal/logger"
	"offerline/internal/repo"
	"offerline/internal/server"
	offerlinesdk "offerline/sdk/go"
)

var rootCmd = &cobra.Command{
	Use:   "offerline",
	Short: "Offerline CLI",
	Long: `Offerline turns a business description into a seven-document offer package.
- Project: one offer under construction, owned by a user.
- Generation: a background run that writes every document in dependency order.
- Documents: market research, customer avatar, big idea, offer, pricing, guarantee and checklist.
- Usage: free accounts need report credits, Pro accounts get a monthly allowance.
- Export: any complete document as a PDF, or the whole package as a ZIP.`,
	SilenceUsage: true,
}

func main() {
	_ = godotenv.Load()
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Println("error:", err)
		stop()
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("OFFERLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("config", "c", config.DefaultPath, "config file")
	rootCmd.PersistentFlags().StringP("workspace", "w", "", "workspace directory (overrides database.workspace)")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().StringP("user", "u", "local-user", "user id to act as")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("user", rootCmd.PersistentFlags().Lookup("user"))
}

func registerCommands() {
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(projectCmd())
	rootCmd.AddCommand(generateCmd())
	rootCmd.AddCommand(usageCmd())
	rootCmd.AddCommand(exportCmd())
	rootCmd.AddCommand(apikeyCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(watchCmd())
}

func configCmd() *cobra.Command {
	cfgCmd := &cobra.Command{Use: "config", Short: "Manage offerline.yml"}
	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := viper.GetString("config")
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			for _, secret := range []*string{&cfg.Auth.JWTSecret, &cfg.LLM.APIKey, &cfg.Billing.SecretKey, &cfg.Billing.WebhookSecret} {
				if *secret != "" {
					*secret = "***"
				}
			}
			return printJSON(cfg)
		},
	}
	cfgCmd.AddCommand(initCmd, showCmd)
	return cfgCmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				cfg := a.Config
				if addr == "" {
					addr = cfg.Server.Addr
				}
				if basePath == "" {
					basePath = cfg.Server.BasePath
				}
				if cfg.Auth.JWTSecret == "" {
					return fmt.Errorf("auth.jwt_secret is required for bearer auth (set OFFERLINE_AUTH_JWT_SECRET)")
				}
				handler, err := server.New(server.Config{
					Engine:   a.Engine,
					Billing:  a.Billing,
					BasePath: basePath,
					Auth: server.AuthConfig{
						JWTSecret: cfg.Auth.JWTSecret,
						DevLogin:  cfg.Auth.DevLogin,
						Log:       a.Log.With("component", "auth"),
					},
					Log: a.Log.With("component", "http"),
				})
				if err != nil {
					return err
				}
				srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
				go func() {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(shutdownCtx)
				}()
				a.Log.Info("serving", "addr", addr, "base_path", basePath)
				fmt.Printf("Serving Offerline API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at %s/docs)\n", addr, basePath, basePath, basePath)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (defaults to server.addr)")
	cmd.Flags().StringVar(&basePath, "base-path", "", "API base path (defaults to server.base_path)")
	return cmd
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				fmt.Println("database is up to date")
				return nil
			})
		},
	}
}

func projectCmd() *cobra.Command {
	prj := &cobra.Command{Use: "project", Short: "Manage projects"}
	prj.AddCommand(projectCreateCmd())
	prj.AddCommand(projectListCmd())
	prj.AddCommand(projectShowCmd())
	return prj
}

func projectCreateCmd() *cobra.Command {
	var name, business, avatar string
	var deep bool
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create project",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if _, err := e.EnsureProfile(ctx, currentUser(), ""); err != nil {
					return err
				}
				p, err := e.CreateProject(ctx, engine.ProjectCreateOptions{
					UserID:              currentUser(),
					Name:                name,
					BusinessDescription: business,
					AvatarDescription:   avatar,
					DeepResearch:        deep,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "project name")
	cmd.Flags().StringVar(&business, "business", "", "business description")
	cmd.Flags().StringVar(&avatar, "avatar", "", "target customer description")
	cmd.Flags().BoolVar(&deep, "deep-research", false, "allow web search while researching")
	return cmd
}

func projectListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListProjects(ctx, currentUser())
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Status", "Updated"})
				for _, p := range items {
					tw.AppendRow(table.Row{p.ID, p.Name, p.Status, p.UpdatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func projectShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <project-id>",
		Short: "Show a project and its documents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.Repo.GetOwnedProject(ctx, currentUser(), args[0])
				if err != nil {
					return err
				}
				docs, err := e.Repo.ListDocuments(ctx, p.ID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"project": p, "documents": docs})
				}
				fmt.Printf("%s  %s  [%s]\n", p.ID, p.Name, p.Status)
				printDocuments(docs)
				return nil
			})
		},
	}
}

func generateCmd() *cobra.Command {
	var projectID, docType string
	var wait bool
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a project's documents in-process",
		Long: `Runs the generation pipeline inside this process. The command returns once the run
has finished. --wait prints each document as it completes; --doc regenerates a single document.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if projectID == "" {
				return fmt.Errorf("--project required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				user := currentUser()
				if _, err := e.EnsureProfile(ctx, user, ""); err != nil {
					return err
				}
				if docType != "" {
					doc, err := e.RegenerateDocument(ctx, user, projectID, docType)
					if err != nil {
						return err
					}
					fmt.Printf("regenerating %s\n", doc.Title)
				} else {
					gen, err := e.StartGeneration(ctx, user, projectID)
					if err != nil {
						return err
					}
					fmt.Printf("generation %s started\n", gen.ID)
				}
				if wait {
					followDocuments(ctx, e, projectID)
				}
				e.Wait()
				p, err := e.Repo.GetProject(ctx, projectID)
				if err != nil {
					return err
				}
				docs, err := e.Repo.ListDocuments(ctx, projectID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"project": p, "documents": docs})
				}
				fmt.Printf("project %s is %s\n", p.ID, p.Status)
				printDocuments(docs)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&projectID, "project", "", "project id")
	cmd.Flags().StringVar(&docType, "doc", "", "regenerate only this document type")
	cmd.Flags().BoolVar(&wait, "wait", false, "print progress while the run is in flight")
	return cmd
}

// followDocuments prints documents as they complete until the project leaves
// the generating state.
func followDocuments(ctx context.Context, e engine.Engine, projectID string) {
	seen := map[string]string{}
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		docs, err := e.Repo.ListDocuments(ctx, projectID)
		if err == nil {
			for _, d := range docs {
				if seen[d.ID] != d.Status {
					seen[d.ID] = d.Status
					if d.Status != domain.DocumentPending {
						fmt.Printf("  %02d %-40s %s\n", d.DocNumber, d.Title, d.Status)
					}
				}
			}
		}
		p, err := e.Repo.GetProject(ctx, projectID)
		if err != nil || p.Status != domain.ProjectGenerating {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func usageCmd() *cobra.Command {
	u := &cobra.Command{Use: "usage", Short: "Inspect generation quota"}
	u.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show remaining generations for --user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				user := currentUser()
				if _, err := e.EnsureProfile(ctx, user, ""); err != nil {
					return err
				}
				limits, err := e.Limiter.GetLimits(ctx, user)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(limits)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"User", "Allowed", "Used", "Remaining", "Unlimited"})
				tw.AppendRow(table.Row{user, limits.Allowed, limits.Used, limits.Remaining, limits.IsUnlimited})
				tw.Render()
				return nil
			})
		},
	})
	return u
}

func exportCmd() *cobra.Command {
	exp := &cobra.Command{Use: "export", Short: "Export documents"}
	var projectID, documentID, outDir string
	pdfCmd := &cobra.Command{
		Use:   "pdf",
		Short: "Export one complete document as PDF",
		RunE: func(cmd *cobra.Command, args []string) error {
			if projectID == "" || documentID == "" {
				return fmt.Errorf("--project and --document required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				out, err := e.ExportDocumentPDF(ctx, currentUser(), projectID, documentID)
				if err != nil {
					return err
				}
				return writeExport(outDir, out)
			})
		},
	}
	zipCmd := &cobra.Command{
		Use:   "zip",
		Short: "Export every complete document as a ZIP of PDFs",
		RunE: func(cmd *cobra.Command, args []string) error {
			if projectID == "" {
				return fmt.Errorf("--project required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				out, err := e.ExportProjectZip(ctx, currentUser(), projectID)
				if err != nil {
					return err
				}
				return writeExport(outDir, out)
			})
		},
	}
	for _, c := range []*cobra.Command{pdfCmd, zipCmd} {
		c.Flags().StringVar(&projectID, "project", "", "project id")
		c.Flags().StringVarP(&outDir, "out", "o", ".", "output directory")
	}
	pdfCmd.Flags().StringVar(&documentID, "document", "", "document id")
	exp.AddCommand(pdfCmd, zipCmd)
	return exp
}

func writeExport(dir string, out engine.Export) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	path := filepath.Join(dir, out.Filename)
	if err := os.WriteFile(path, out.Body, 0o644); err != nil {
		return err
	}
	fmt.Printf("wrote %s (%d bytes)\n", path, len(out.Body))
	return nil
}

func apikeyCmd() *cobra.Command {
	keys := &cobra.Command{Use: "apikey", Short: "Manage API keys"}
	var name string
	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create an API key for --user; the key is shown once",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				user := currentUser()
				if _, err := e.EnsureProfile(ctx, user, ""); err != nil {
					return err
				}
				raw := make([]byte, 24)
				if _, err := rand.Read(raw); err != nil {
					return err
				}
				secret := "ol_" + hex.EncodeToString(raw)
				key := domain.APIKey{
					ID:        uuid.NewString(),
					UserID:    user,
					Name:      name,
					KeyHash:   repo.HashAPIKey(secret),
					CreatedAt: time.Now().UTC().Format(time.RFC3339),
				}
				if err := e.Repo.InsertAPIKey(ctx, key); err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]string{"id": key.ID, "user_id": user, "key": secret})
				}
				fmt.Printf("id:  %s\nkey: %s\n", key.ID, secret)
				return nil
			})
		},
	}
	createCmd.Flags().StringVar(&name, "name", "", "label for the key")
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List API keys for --user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListAPIKeys(ctx, currentUser())
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Created"})
				for _, k := range items {
					tw.AppendRow(table.Row{k.ID, k.Name, k.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	revokeCmd := &cobra.Command{
		Use:   "revoke <id>",
		Short: "Delete an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.Repo.DeleteAPIKey(ctx, args[0])
			})
		},
	}
	keys.AddCommand(createCmd, listCmd, revokeCmd)
	return keys
}

func tokenCmd() *cobra.Command {
	var email string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for --user",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Auth.JWTSecret == "" {
				return fmt.Errorf("auth.jwt_secret is not set")
			}
			token, err := server.SignToken(cfg.Auth.JWTSecret, currentUser(), email, ttl)
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "email claim")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}

func logCmd() *cobra.Command {
	lg := &cobra.Command{Use: "log", Short: "Activity log"}
	var n int
	var projectID, evtType string
	tail := &cobra.Command{
		Use:   "tail",
		Short: "Tail project events",
		RunE: func(cmd *cobra.Command, args []string) error {
			if projectID == "" {
				return fmt.Errorf("--project required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if _, err := e.Repo.GetOwnedProject(ctx, currentUser(), projectID); err != nil {
					return err
				}
				items, err := e.Repo.LatestEvents(ctx, n, projectID, evtType)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"TS", "Type", "Entity", "Payload"})
				for _, evt := range items {
					tw.AppendRow(table.Row{evt.TS, evt.Type, evt.EntityKind + ":" + evt.EntityID, evt.Payload})
				}
				tw.Render()
				return nil
			})
		},
	}
	tail.Flags().IntVar(&n, "n", 20, "number of events")
	tail.Flags().StringVar(&projectID, "project", "", "project id")
	tail.Flags().StringVar(&evtType, "type", "", "event type filter")
	lg.AddCommand(tail)
	return lg
}

func watchCmd() *cobra.Command {
	var baseURL, projectID, token, apiKey string
	var interval, timeout time.Duration
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Poll a running server until a project's generation finishes",
		RunE: func(cmd *cobra.Command, args []string) error {
			if projectID == "" {
				return fmt.Errorf("--project required")
			}
			client := offerlinesdk.New(baseURL)
			client.BearerToken = token
			client.APIKey = apiKey
			ctx := cmd.Context()
			p, err := client.WaitForProject(ctx, projectID, interval, timeout)
			if err != nil {
				return err
			}
			docs, err := client.ListDocuments(ctx, projectID)
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(map[string]any{"project": p, "documents": docs})
			}
			fmt.Printf("project %s is %s\n", p.ID, p.Status)
			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.AppendHeader(table.Row{"#", "Title", "Status"})
			for _, d := range docs {
				tw.AppendRow(table.Row{d.DocNumber, d.Title, d.Status})
			}
			tw.Render()
			return nil
		},
	}
	cmd.Flags().StringVar(&baseURL, "url", "http://127.0.0.1:8080/api", "API base URL")
	cmd.Flags().StringVar(&projectID, "project", "", "project id")
	cmd.Flags().StringVar(&token, "token", os.Getenv("OFFERLINE_TOKEN"), "bearer token")
	cmd.Flags().StringVar(&apiKey, "api-key", os.Getenv("OFFERLINE_API_KEY"), "API key")
	cmd.Flags().DurationVar(&interval, "interval", 3*time.Second, "poll interval")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "give up after")
	return cmd
}

// --- helpers ---

func currentUser() string {
	return strings.TrimSpace(viper.GetString("user"))
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(viper.New(), viper.GetString("config"))
	if err != nil {
		return nil, err
	}
	if ws := viper.GetString("workspace"); ws != "" {
		cfg.Database.Workspace = ws
	}
	return cfg, nil
}

func withApp(ctx context.Context, fn func(context.Context, *app.App) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, err := logger.New(cfg.Log.Mode)
	if err != nil {
		return err
	}
	defer log.Sync()
	a, err := app.Build(cfg, log, app.Options{Migrate: true})
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	return withApp(ctx, func(ctx context.Context, a *app.App) error {
		return fn(ctx, a.Engine)
	})
}

func printDocuments(docs []domain.Document) {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"#", "ID", "Title", "Status", "Updated"})
	for _, d := range docs {
		tw.AppendRow(table.Row{d.DocNumber, d.ID, d.Title, d.Status, d.UpdatedAt})
	}
	tw.Render()
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
