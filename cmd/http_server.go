package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/frahmantamala/attendance-management/internal"
	"github.com/frahmantamala/attendance-management/internal/attendance"
	attendancedb "github.com/frahmantamala/attendance-management/internal/attendance/postgres"
	"github.com/frahmantamala/attendance-management/internal/auth"
	authdb "github.com/frahmantamala/attendance-management/internal/auth/postgres"
	"github.com/frahmantamala/attendance-management/internal/core/events"
	"github.com/frahmantamala/attendance-management/internal/core/locking"
	"github.com/frahmantamala/attendance-management/internal/device"
	devicedb "github.com/frahmantamala/attendance-management/internal/device/postgres"
	"github.com/frahmantamala/attendance-management/internal/employee"
	employeedb "github.com/frahmantamala/attendance-management/internal/employee/postgres"
	"github.com/frahmantamala/attendance-management/internal/policy"
	"github.com/frahmantamala/attendance-management/internal/settings"
	settingsdb "github.com/frahmantamala/attendance-management/internal/settings/postgres"
	"github.com/frahmantamala/attendance-management/internal/transport/rest"
	"github.com/frahmantamala/attendance-management/pkg/logger"

	"github.com/go-chi/chi"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var httpServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start HTTP server",
	Long:  `Start the HTTP server to handle API requests`,
	Run: func(cmd *cobra.Command, args []string) {
		startHTTPServer()
	},
}

type Dependencies struct {
	Config *internal.Config
	GormDB *gorm.DB
	DB     *sqlx.DB
	Router *chi.Mux
	Logger *slog.Logger
}

func startHTTPServer() {
	deps, err := initializeDependencies()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}

	addr := fmt.Sprintf(":%d", deps.Config.Server.Port)
	deps.Logger.Info("starting HTTP server", "address", addr)

	server := &http.Server{
		Addr:              addr,
		Handler:           deps.Router,
		ReadHeaderTimeout: deps.Config.Server.ReadHeaderTimeout,
		ReadTimeout:       deps.Config.Server.ReadTimeout,
		WriteTimeout:      deps.Config.Server.WriteTimeout,
		IdleTimeout:       deps.Config.Server.IdleTimeout,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErrChan := make(chan error, 1)
	go func() {
		serverErrChan <- server.ListenAndServe()
	}()

	select {
	case sig := <-sigChan:
		deps.Logger.Info("received signal, shutting down", "signal", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			deps.Logger.Error("server shutdown error", "error", err)
		}
		if err := deps.DB.Close(); err != nil {
			deps.Logger.Error("database close error", "error", err)
		}
	case err := <-serverErrChan:
		if err != nil && err != http.ErrServerClosed {
			deps.Logger.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}

	deps.Logger.Info("server stopped")
}

func initializeDependencies() (*Dependencies, error) {
	config, err := loadConfig(".")
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger.Init(os.Getenv("APP_ENV"))
	lg := logger.LoggerWrapper()

	gormDB, sqlxDB, err := initDB(config.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	locks := locking.NewKeyedMutex()
	bus := events.NewEventBus(lg)
	registerAuditSubscribers(bus, lg)

	// Repositories
	employeeRepo := employeedb.NewEmployeeRepository(gormDB)
	deviceRepo := devicedb.NewChangeRequestRepository(gormDB)
	attendanceRepo := attendancedb.NewAttendanceRepository(gormDB)
	settingsRepo := settingsdb.NewSettingsRepository(gormDB)
	userRepo := authdb.NewUserRepository(sqlxDB)

	// Services
	employeeService := employee.NewService(employeeRepo, config.Security.BCryptCost, lg)
	settingsService := settings.NewService(settingsRepo, lg)
	deviceService := device.NewService(deviceRepo, employeeService, locks, bus, lg)
	evaluator := policy.NewEvaluator(employeeService, deviceService, settingsService, config.Policy.AllowedNetworks(), lg)
	attendanceService := attendance.NewService(attendanceRepo, evaluator, locks, bus, lg)

	tokenGen := auth.NewJWTTokenGenerator(
		config.Security.AccessTokenSecret,
		config.Security.RefreshTokenSecret,
		config.Security.AccessTokenDuration,
		config.Security.RefreshTokenDuration,
	)
	authService := auth.NewService(userRepo, tokenGen)

	// Handlers
	authHandler := auth.NewHandler(authService)
	attendanceHandler := attendance.NewHandler(attendanceService)
	deviceHandler := device.NewHandler(deviceService)
	employeeHandler := employee.NewHandler(employeeService)
	settingsHandler := settings.NewHandler(settingsService)

	router := chi.NewRouter()
	rest.RegisterAllRoutes(router, sqlxDB.DB, authHandler, attendanceHandler, deviceHandler, employeeHandler, settingsHandler, lg)

	return &Dependencies{
		Config: config,
		GormDB: gormDB,
		DB:     sqlxDB,
		Router: router,
		Logger: lg,
	}, nil
}

// registerAuditSubscribers logs domain events for the audit trail.
func registerAuditSubscribers(bus *events.EventBus, lg *slog.Logger) {
	audit := func(ctx context.Context, event events.Event) error {
		lg.Info("audit event",
			"event_id", event.EventID(),
			"event_type", event.EventType(),
			"payload", event.Payload())
		return nil
	}

	bus.Subscribe(events.TypeAttendanceMarked, audit)
	bus.Subscribe(events.TypeDeviceRequestCreated, audit)
	bus.Subscribe(events.TypeDeviceRequestApproved, audit)
	bus.Subscribe(events.TypeDeviceRequestRejected, audit)
}

// initDB opens one pgx-backed pool shared by gorm and sqlx.
func initDB(cfg internal.DatabaseConfig) (*gorm.DB, *sqlx.DB, error) {
	gormDB, err := gorm.Open(gormpostgres.Open(cfg.Source), &gorm.Config{})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open db connection: %w", err)
	}

	sqlDB, err := gormDB.DB()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to access db pool: %w", err)
	}

	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return gormDB, sqlx.NewDb(sqlDB, "pgx"), nil
}
