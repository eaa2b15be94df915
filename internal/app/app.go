package app

import (
	"context"
	"log"
	"net/http"
	"offline_cache_backend/internal/config"
	"offline_cache_backend/internal/controller"
	"offline_cache_backend/internal/repository"
	"offline_cache_backend/internal/service"
	"offline_cache_backend/pkg/database"
	"offline_cache_backend/pkg/logger"
	"offline_cache_backend/pkg/monitoring"
	"offline_cache_backend/pkg/netstatus"
	"offline_cache_backend/pkg/security"
	"offline_cache_backend/pkg/tracing"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type App struct {
	Config   *config.Config
	Router   *gin.Engine
	DB       *gorm.DB
	Redis    *redis.Client
	Prober   *netstatus.Prober
	services *services
}

type repositories struct {
	course            *repository.CourseRepository
	progress          *repository.ProgressRepository
	setting           *repository.SettingRepository
	notificationState *repository.NotificationStateRepository
}

type services struct {
	cache        *service.CacheService
	notification *service.NotificationService
	hub          *service.NotificationHub
	media        *service.MediaService
	syncer       *service.HTTPCourseSyncer
}

type controllers struct {
	cache        *controller.CacheController
	progress     *controller.ProgressController
	notification *controller.NotificationController
	health       *controller.HealthController
}

func (a *App) initRepositories(db *gorm.DB, rdb *redis.Client) *repositories {
	return &repositories{
		course:            repository.NewCourseRepository(db),
		progress:          repository.NewProgressRepository(db),
		setting:           repository.NewSettingRepository(db),
		notificationState: repository.NewNotificationStateRepository(rdb),
	}
}

func (a *App) initServices(repos *repositories, cfg *config.Config, rdb *redis.Client, prober *netstatus.Prober) *services {
	s := &services{}

	s.hub = service.NewNotificationHub(rdb, cfg.Notification.Enabled)
	s.notification = service.NewNotificationService(s.hub, repos.notificationState, cfg)
	s.hub.SetClickRouter(s.notification)
	s.notification.Initialize(context.Background())
	go s.hub.Run()

	s.media = service.NewMediaService(cfg)
	s.syncer = service.NewHTTPCourseSyncer(repos.progress, cfg)

	s.cache = service.NewCacheService(
		repos.course,
		repos.progress,
		repos.setting,
		s.syncer,
		prober,
		s.notification,
		s.media,
		cfg,
	)

	// 恢复在线时自动触发同步
	s.cache.SetupOnlineSync()

	return s
}

func (a *App) initControllers(s *services, db *gorm.DB, prober *netstatus.Prober) *controllers {
	return &controllers{
		cache:        controller.NewCacheController(s.cache),
		progress:     controller.NewProgressController(s.cache),
		notification: controller.NewNotificationController(s.notification, s.hub),
		health:       controller.NewHealthController(db, prober),
	}
}

func (a *App) setupMiddlewares(router *gin.Engine, cfg *config.Config) {
	router.Use(security.CORS(cfg.CORS.AllowedOrigins))
	router.Use(security.Secure())

	maxRequests := cfg.RateLimit.MaxRequests
	if maxRequests <= 0 {
		maxRequests = 1000
	}
	window := time.Duration(cfg.RateLimit.WindowMinutes) * time.Minute
	if window <= 0 {
		window = time.Minute
	}
	router.Use(security.RateLimiter(maxRequests, window))

	if cfg.Tracing.Enabled {
		router.Use(tracing.GinMiddleware())
	}

	router.Use(monitoring.MetricsMiddleware())
}

func (a *App) startBackgroundTasks(s *services) {
	// 周期同步在网络恢复触发之外兜底
	if a.Config.Sync.PeriodicMinutes > 0 {
		go func() {
			ticker := time.NewTicker(time.Duration(a.Config.Sync.PeriodicMinutes) * time.Minute)
			for range ticker.C {
				if _, err := s.cache.SyncWhenOnline(context.Background()); err != nil {
					logger.Log.Error("periodic sync error", zap.Error(err))
				}
			}
		}()
	}
}

func NewApp(cfg *config.Config) *App {
	logger.InitLogger(cfg)
	defer logger.Log.Sync()

	logger.Log.Info("Logger initialized successfully")

	db, err := database.InitDB(cfg)
	if err != nil {
		logger.Log.Fatal("Failed to initialize database", zap.Error(err))
		log.Fatalf("Failed to initialize database: %v", err)
	}

	rdb, err := database.InitRedis(&cfg.Redis)
	if err != nil {
		logger.Log.Fatal("Failed to initialize redis", zap.Error(err))
		log.Fatalf("Failed to initialize redis: %v", err)
	}

	prober := netstatus.NewProber(cfg.Sync.ServerURL, cfg.Sync.ProbeInterval(), cfg.Sync.RequestTimeout())

	app := &App{
		Config: cfg,
		DB:     db,
		Redis:  rdb,
		Prober: prober,
	}

	repos := app.initRepositories(db, rdb)
	services := app.initServices(repos, cfg, rdb, prober)
	app.services = services
	controllers := app.initControllers(services, db, prober)

	monitoring.Init()

	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()
	app.Router = router

	app.setupMiddlewares(router, cfg)

	if cfg.Tracing.Enabled {
		if _, err := tracing.InitTracer("offline-cache", cfg.Tracing.CollectorEndpoint); err != nil {
			logger.Log.Fatal("Failed to initialize tracing", zap.Error(err))
		}
	}

	app.registerRoutes(router, controllers, cfg)

	prober.Start()
	app.startBackgroundTasks(services)

	return app
}

func (a *App) Run() {
	srv := &http.Server{
		Addr:    ":" + a.Config.Server.Port,
		Handler: a.Router,
	}

	go func() {
		log.Printf("Server running on port %s", a.Config.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	// 等待中断信号优雅地关闭服务器（设置5秒的超时时间）
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	a.Prober.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server exiting")
}
