package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/authinvite/internal/api"
	"github.com/charlesng35/authinvite/internal/app"
	"github.com/charlesng35/authinvite/internal/app/maintenance"
	iauth "github.com/charlesng35/authinvite/internal/auth"
	"github.com/charlesng35/authinvite/internal/database"
	"github.com/charlesng35/authinvite/internal/middleware"
	"github.com/charlesng35/authinvite/internal/monitoring"
	"github.com/charlesng35/authinvite/internal/security"
	"github.com/charlesng35/authinvite/internal/services"
	"github.com/charlesng35/authinvite/pkg/i18n"
	"github.com/charlesng35/authinvite/pkg/logger"
	"github.com/charlesng35/authinvite/pkg/mail"
)

// runtimeStack bundles long-lived services used by the HTTP server.
type runtimeStack struct {
	DB         *gorm.DB
	Plugin     services.PluginConfig
	SessionSvc *iauth.SessionService
	Events     *services.EventService
	Users      *services.UserService
	Signup     *services.SignupService
	Scheduler  *maintenance.Scheduler
	Jobs       *monitoring.JobTracker
	RateStore  middleware.RateStore
	Router     *gin.Engine
}

// bootstrapRuntime initialises the database, the invitation services,
// background jobs and the HTTP router.
func bootstrapRuntime(cfg *app.Config, log *zap.Logger) (*runtimeStack, error) {
	stack := &runtimeStack{}
	var err error
	success := false

	defer func() {
		if !success {
			stack.Shutdown(context.Background(), log)
		}
	}()

	// enable gin debug mod
	if debug, _ := os.LookupEnv("GIN_DEBUG"); debug != "true" {
		gin.SetMode(gin.ReleaseMode)
	}

	stack.Plugin, err = cfg.PluginConfig()
	if err != nil {
		return nil, err
	}

	stack.DB, err = initialiseDatabase(cfg)
	if err != nil {
		return nil, err
	}

	jwtSvc, err := iauth.NewJWTService(cfg.Auth.JWTServiceConfig())
	if err != nil {
		return nil, fmt.Errorf("initialise jwt service: %w", err)
	}

	stack.SessionSvc, err = iauth.NewSessionService(stack.DB, jwtSvc, cfg.Auth.SessionServiceConfig())
	if err != nil {
		return nil, fmt.Errorf("initialise session service: %w", err)
	}

	stack.Events, err = services.NewEventService(stack.DB)
	if err != nil {
		return nil, fmt.Errorf("initialise event service: %w", err)
	}

	prefs, err := services.NewUserPreferencesService(stack.DB)
	if err != nil {
		return nil, fmt.Errorf("initialise preference service: %w", err)
	}

	stack.Users, err = services.NewUserService(stack.DB, stack.Events, prefs)
	if err != nil {
		return nil, fmt.Errorf("initialise user service: %w", err)
	}

	invitations, err := services.NewInvitationStore(stack.DB)
	if err != nil {
		return nil, fmt.Errorf("initialise invitation store: %w", err)
	}

	validator, err := services.NewInvitationValidator(invitations, stack.Users, stack.Plugin)
	if err != nil {
		return nil, fmt.Errorf("initialise invitation validator: %w", err)
	}

	roles, err := services.NewRoleAssigner(stack.DB)
	if err != nil {
		return nil, fmt.Errorf("initialise role assigner: %w", err)
	}

	usernames, err := services.NewUsernameGenerator(stack.Users, stack.Plugin.UsernamePrefix)
	if err != nil {
		return nil, fmt.Errorf("initialise username generator: %w", err)
	}

	catalog, err := i18n.Load()
	if err != nil {
		return nil, fmt.Errorf("load language catalog: %w", err)
	}

	mailer, err := mail.New(cfg.Email.MailSettings())
	if err != nil {
		return nil, fmt.Errorf("initialise mail transport: %w", err)
	}

	accounts, err := services.NewAccountMailer(mailer, catalog, stack.Plugin.Site)
	if err != nil {
		return nil, fmt.Errorf("initialise account mailer: %w", err)
	}

	stack.Signup, err = services.NewSignupService(stack.DB, stack.Plugin, services.SignupDependencies{
		Validator:   validator,
		Invitations: invitations,
		Users:       stack.Users,
		Roles:       roles,
		Usernames:   usernames,
		Events:      stack.Events,
		Mailer:      accounts,
		Sessions:    stack.SessionSvc,
	})
	if err != nil {
		return nil, fmt.Errorf("initialise signup service: %w", err)
	}

	forms, err := services.NewSignupFormService(validator, stack.Plugin)
	if err != nil {
		return nil, fmt.Errorf("initialise signup form service: %w", err)
	}

	logins, err := services.NewLoginService(stack.Users, validator, stack.SessionSvc, stack.Plugin)
	if err != nil {
		return nil, fmt.Errorf("initialise login service: %w", err)
	}

	schedule, err := services.NewPreferenceDeletionSchedule(prefs)
	if err != nil {
		return nil, fmt.Errorf("initialise deletion schedule: %w", err)
	}

	task, err := maintenance.NewInactiveUserTask(stack.Users, schedule, accounts, stack.Plugin)
	if err != nil {
		return nil, fmt.Errorf("initialise inactive user task: %w", err)
	}

	schedulerOpts := []maintenance.Option{
		maintenance.WithInactiveUserTask(task),
		maintenance.WithLifecycleSchedule(cfg.Invitation.LifecycleSchedule),
		maintenance.WithSessionSchedule(cfg.Maintenance.SessionSchedule),
		maintenance.WithEventSchedule(cfg.Maintenance.EventSchedule),
		maintenance.WithEventRetentionDays(cfg.Maintenance.EventRetentionDays),
	}

	switch store := strings.ToLower(strings.TrimSpace(cfg.Server.RateLimit.Store)); store {
	case "", "memory":
		stack.RateStore = middleware.NewMemoryRateStore(cfg.Server.RateLimit.Window)
	case "database":
		dbStore, err := middleware.NewDatabaseRateStore(stack.DB)
		if err != nil {
			return nil, fmt.Errorf("initialise rate limit store: %w", err)
		}
		stack.RateStore = dbStore
		schedulerOpts = append(schedulerOpts, maintenance.WithRateLimitCleaner(dbStore))
	default:
		return nil, fmt.Errorf("unsupported rate limit store %q", store)
	}

	stack.Jobs = monitoring.NewJobTracker()
	schedulerOpts = append(schedulerOpts, maintenance.WithJobTracker(stack.Jobs))
	stack.Scheduler = maintenance.NewScheduler(stack.SessionSvc, stack.Events, schedulerOpts...)
	if err := stack.Scheduler.Start(); err != nil {
		return nil, fmt.Errorf("start maintenance jobs: %w", err)
	}

	stack.Router, err = api.NewRouter(cfg, api.Services{
		DB:        stack.DB,
		JWT:       jwtSvc,
		Sessions:  stack.SessionSvc,
		Users:     stack.Users,
		Logins:    logins,
		Forms:     forms,
		Signup:    stack.Signup,
		Catalog:   catalog,
		Plugin:    stack.Plugin,
		RateStore: stack.RateStore,
		Jobs:      stack.Jobs,
	})
	if err != nil {
		return nil, fmt.Errorf("build api router: %w", err)
	}

	logAudit(security.NewAuditService(stack.DB, jwtSvc, cfg).Run(context.Background()), log)

	success = true
	return stack, nil
}

func logAudit(result security.Result, log *zap.Logger) {
	for _, check := range result.Checks {
		fields := []zap.Field{zap.String("check", check.ID), zap.String("remediation", check.Remediation)}
		switch check.Status {
		case security.StatusFail:
			log.Error(check.Message, fields...)
		case security.StatusWarn:
			log.Warn(check.Message, fields...)
		}
	}
	log.Info("deployment audit complete",
		zap.Int("pass", result.Summary[string(security.StatusPass)]),
		zap.Int("warn", result.Summary[string(security.StatusWarn)]),
		zap.Int("fail", result.Summary[string(security.StatusFail)]),
	)
}

// Shutdown gracefully stops background jobs and releases resources. The
// inactive user sweep is not repeated on shutdown.
func (s *runtimeStack) Shutdown(ctx context.Context, log *zap.Logger) {
	if s == nil {
		return
	}

	if s.Scheduler != nil {
		stopCtx := s.Scheduler.Stop()
		<-stopCtx.Done()
		if err := s.Scheduler.RunOnce(ctx, false); err != nil {
			log.Warn("maintenance shutdown cleanup failed", zap.Error(err))
		}
	}

	if closer, ok := s.RateStore.(interface{ Close() }); ok {
		closer.Close()
	}

	if s.DB != nil {
		closeDatabase(s.DB, log)
	}
}

func initialiseDatabase(cfg *app.Config) (*gorm.DB, error) {
	dbCfg := convertDatabaseConfig(cfg)
	db, err := database.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := database.AutoMigrateAndSeed(db); err != nil {
		return nil, fmt.Errorf("auto-migrate database: %w", err)
	}

	log := logger.WithModule("database")
	log.Info("database connected", zap.String("driver", dbCfg.Driver))

	return db, nil
}

func convertDatabaseConfig(cfg *app.Config) database.Config {
	dbCfg := database.Config{
		Driver: strings.ToLower(strings.TrimSpace(cfg.Database.Driver)),
		Path:   strings.TrimSpace(cfg.Database.Path),
		DSN:    strings.TrimSpace(cfg.Database.DSN),
	}

	var auth app.DBAuthConfig
	switch dbCfg.Driver {
	case "", "sqlite":
		dbCfg.Driver = "sqlite"
		return dbCfg
	case "postgres", "postgresql":
		dbCfg.Driver = "postgres"
		auth = cfg.Database.Postgres
	case "mysql":
		auth = cfg.Database.MySQL
	default:
		// Leave driver as-is to surface unsupported driver error during open.
		return dbCfg
	}

	dbCfg.Host = strings.TrimSpace(auth.Host)
	dbCfg.Port = auth.Port
	dbCfg.Name = strings.TrimSpace(auth.Database)
	dbCfg.User = strings.TrimSpace(auth.Username)
	dbCfg.Password = strings.TrimSpace(auth.Password)
	return dbCfg
}

func closeDatabase(db *gorm.DB, log *zap.Logger) {
	if db == nil {
		return
	}

	sqlDB, err := db.DB()
	if err != nil {
		log.Warn("failed to obtain underlying sql DB for closing", zap.Error(err))
		return
	}

	if err := sqlDB.Close(); err != nil {
		log.Warn("failed to close database", zap.Error(err))
	}
}
