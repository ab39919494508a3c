package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/vaxportal/portal/internal/config"
	"github.com/vaxportal/portal/internal/domain/records"
	"github.com/vaxportal/portal/internal/platform/apiclient"
	"github.com/vaxportal/portal/internal/platform/db"
	"github.com/vaxportal/portal/internal/platform/middleware"
	"github.com/vaxportal/portal/internal/platform/session"
	"github.com/vaxportal/portal/internal/platform/websocket"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "portal-server",
		Short: "Vaccination portal core",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(syncCmd())
	rootCmd.AddCommand(doseCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the portal API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func syncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Fetch public and protected data once and print collection counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := bootstrap()
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			c, err := newCore(ctx, cfg, logger, session.New(), nil)
			if err != nil {
				return err
			}
			defer c.close()

			c.store.FetchPublicData(ctx)
			if cfg.BackendToken != "" {
				p, err := c.sess.SignIn(ctx, cfg.BackendToken)
				if err != nil {
					return fmt.Errorf("sign in with BACKEND_TOKEN: %w", err)
				}
				if p.Role == session.RoleAdmin || p.Role == "" {
					c.store.FetchDirectory(ctx)
				}
			}

			writeSummary(cmd.OutOrStdout(), c.store.Summary())
			return nil
		},
	}
}

func doseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dose",
		Short: "Show the next dose and certificate eligibility for a patient",
		RunE: func(cmd *cobra.Command, args []string) error {
			patientID, _ := cmd.Flags().GetString("patient")
			vaccineID, _ := cmd.Flags().GetString("vaccine")

			cfg, logger, err := bootstrap()
			if err != nil {
				return err
			}
			if cfg.BackendToken == "" {
				return errors.New("BACKEND_TOKEN is required to read vaccination records")
			}
			ctx := cmd.Context()

			c, err := newCore(ctx, cfg, logger, session.New(), nil)
			if err != nil {
				return err
			}
			defer c.close()

			c.store.FetchPublicData(ctx)
			if _, err := c.sess.SignIn(ctx, cfg.BackendToken); err != nil {
				return fmt.Errorf("sign in with BACKEND_TOKEN: %w", err)
			}

			vaccine, ok := c.store.Vaccine(vaccineID)
			if !ok {
				return fmt.Errorf("vaccine %s: %w", vaccineID, records.ErrVaccineNotFound)
			}
			check, doseErr := records.ComputeNextDose(patientID, vaccineID, c.store.PatientVaccinations(patientID), vaccine)
			return writeDoseReport(cmd.OutOrStdout(), vaccine, check, doseErr, c.store.PatientCertificates(patientID))
		},
	}
	cmd.Flags().String("patient", "", "Patient id")
	cmd.Flags().String("vaccine", "", "Vaccine id")
	cmd.MarkFlagRequired("patient")
	cmd.MarkFlagRequired("vaccine")
	return cmd
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the directory cache schema",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			migrator, pool, err := openMigrator(ctx, cmd)
			if err != nil {
				return err
			}
			defer pool.Close()

			count, err := migrator.Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "", "Path to migrations directory (defaults to MIGRATIONS_DIR)")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			migrator, pool, err := openMigrator(ctx, cmd)
			if err != nil {
				return err
			}
			defer pool.Close()

			statuses, err := migrator.Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}
			writeMigrationStatus(cmd.OutOrStdout(), statuses)
			return nil
		},
	}
	statusCmd.Flags().String("dir", "", "Path to migrations directory (defaults to MIGRATIONS_DIR)")
	cmd.AddCommand(statusCmd)

	return cmd
}

func openMigrator(ctx context.Context, cmd *cobra.Command) (*db.Migrator, *pgxpool.Pool, error) {
	cfg, _, err := bootstrap()
	if err != nil {
		return nil, nil, err
	}
	if !cfg.UsesDatabaseCache() {
		return nil, nil, errors.New("CACHE_DATABASE_URL is not set; the directory cache is in memory")
	}
	dir, _ := cmd.Flags().GetString("dir")
	if dir == "" {
		dir = cfg.MigrationsDir
	}

	pool, err := db.NewPool(ctx, cfg.CacheDatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return nil, nil, err
	}
	return db.NewMigrator(pool, dir), pool, nil
}

func runServer() error {
	cfg, logger, err := bootstrap()
	if err != nil {
		return err
	}

	ctx := context.Background()
	sess := session.New()
	hub := websocket.NewHub(logger, topicFilter(sess))

	c, err := newCore(ctx, cfg, logger, sess, hubPublisher{hub: hub})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build record store")
	}
	defer c.close()

	// Runs after the store's listener, so views see the "cleared" events
	// before their protected subscriptions are dropped.
	sess.Subscribe(func(_ context.Context, authenticated bool) {
		if !authenticated {
			hub.DropTopics(protectedTopics...)
		}
	})

	c.store.FetchPublicData(ctx)
	logger.Info().Interface("counts", c.store.Summary().Counts).Msg("public data loaded")

	e := buildServer(cfg, logger, c, hub)

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("backend", cfg.BackendURL).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}

func buildServer(cfg *config.Config, logger zerolog.Logger, c *core, hub *websocket.Hub) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
	}))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.BodyLimit(cfg.BodyLimit, cfg.UploadLimit))
	if cfg.RequestTimeout > 0 {
		e.Use(middleware.RequestTimeout(cfg.RequestTimeout))
	}

	e.GET("/health", func(ec echo.Context) error {
		return ec.JSON(http.StatusOK, map[string]interface{}{
			"status":        "ok",
			"authenticated": c.sess.IsAuthenticated(),
			"ws_clients":    hub.ClientCount(),
		})
	})
	e.GET("/health/db", db.HealthHandler(c.pool))

	api := e.Group("/api/v1")
	session.NewHandler(c.sess).RegisterRoutes(api)
	records.NewHandler(c.store, c.sess).RegisterRoutes(api)
	websocket.NewHandler(hub, cfg.CORSOrigins).RegisterRoutes(api)

	return e
}

// bootstrap loads and validates configuration and builds the process logger.
func bootstrap() (*config.Config, zerolog.Logger, error) {
	logger := newLogger(os.Getenv("ENV") == "development", zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		return nil, logger, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, logger, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, newLogger(cfg.IsDev(), cfg.ZerologLevel()), nil
}

func newLogger(dev bool, level zerolog.Level) zerolog.Logger {
	var out io.Writer = os.Stdout
	if dev {
		out = zerolog.ConsoleWriter{Out: os.Stdout}
	}
	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}

// core is one record store wired to its session, backend and directory cache.
type core struct {
	sess  *session.Session
	store *records.Store
	pool  *pgxpool.Pool
}

func newCore(ctx context.Context, cfg *config.Config, logger zerolog.Logger, sess *session.Session, publisher records.Publisher) (*core, error) {
	var (
		cache records.DirectoryCache
		pool  *pgxpool.Pool
	)
	if cfg.UsesDatabaseCache() {
		p, err := db.NewPool(ctx, cfg.CacheDatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			return nil, fmt.Errorf("directory cache: %w", err)
		}
		pool = p
		cache = db.NewDirectoryCachePG(pool)
		logger.Info().Msg("directory cache: postgres")
	} else {
		cache = db.NewMemoryDirectoryCache()
	}

	client := apiclient.New(cfg.BackendURL, cfg.BackendTimeout,
		apiclient.WithTokenSource(sess),
		apiclient.WithLogger(logger),
	)
	store := records.NewStore(records.NewHTTPBackend(client), cache, publisher, logger)
	sess.Subscribe(store.OnAuthChange)

	return &core{sess: sess, store: store, pool: pool}, nil
}

func (c *core) close() {
	if c.pool != nil {
		c.pool.Close()
	}
}

// protectedTopics are only visible to a signed-in session.
var protectedTopics = []string{
	records.CollectionAppointments,
	records.CollectionCovidTests,
	records.CollectionVaccinations,
	records.CollectionPatients,
	records.CollectionHospitals,
}

func topicFilter(sess *session.Session) websocket.TopicFilter {
	return func(topic string) bool {
		for _, t := range protectedTopics {
			if t == topic {
				return sess.IsAuthenticated()
			}
		}
		return true
	}
}

// hubPublisher forwards store changes to websocket subscribers.
type hubPublisher struct {
	hub *websocket.Hub
}

func (p hubPublisher) Publish(ctx context.Context, ch records.Change) error {
	ev := websocket.Event{
		Type:   ch.Collection + "." + ch.Action,
		Topic:  ch.Collection,
		Action: ch.Action,
		ID:     ch.ID,
	}
	if ch.Data != nil {
		data, err := json.Marshal(ch.Data)
		if err != nil {
			return fmt.Errorf("marshal %s change: %w", ch.Collection, err)
		}
		ev.Data = data
	}
	return p.hub.Publish(ctx, ev)
}

func writeSummary(w io.Writer, s records.Summary) {
	fmt.Fprintf(w, "authenticated: %v\n", s.Authenticated)
	names := make([]string, 0, len(s.Counts))
	for name := range s.Counts {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "%-14s %d\n", name, s.Counts[name])
	}
}

// writeDoseReport prints the next-dose outcome. A dose-limit violation is a
// normal answer, not a command failure.
func writeDoseReport(w io.Writer, vaccine records.Vaccine, check records.DoseCheck, doseErr error, certs []records.Eligibility) error {
	var limit *records.DoseLimitError
	switch {
	case errors.As(doseErr, &limit):
		fmt.Fprintf(w, "%s: not eligible (%s)\n", vaccine.Name, limit.Error())
	case doseErr != nil:
		return doseErr
	default:
		fmt.Fprintf(w, "%s: next dose %d of %d (%d completed)\n",
			vaccine.Name, check.NextDose, check.MaxDoses, check.ExistingDoses)
	}

	if len(certs) == 0 {
		fmt.Fprintln(w, "certificates: none")
		return nil
	}
	fmt.Fprintln(w, "certificates:")
	for _, e := range certs {
		status := "partial"
		if e.FullyVaccinated {
			status = "fully vaccinated"
		}
		fmt.Fprintf(w, "  %-20s %d/%d  %s\n", e.VaccineName, e.CompletedDoses, e.DosesRequired, status)
	}
	return nil
}

func writeMigrationStatus(w io.Writer, statuses []db.MigrationStatus) {
	fmt.Fprintf(w, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
	fmt.Fprintln(w, "---------- ---------------------------------------- ---------- --------------------")
	for _, s := range statuses {
		status := "pending"
		appliedAt := ""
		if s.Applied {
			status = "applied"
			if s.AppliedAt != nil {
				appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
			}
		}
		fmt.Fprintf(w, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
	}
}
