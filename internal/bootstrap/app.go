package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	httpHandler "github.com/Purabsingla/whiteboard/internal/handler/http"
	wsHandler "github.com/Purabsingla/whiteboard/internal/handler/websocket"
	"github.com/Purabsingla/whiteboard/internal/hub"
	gormpersistence "github.com/Purabsingla/whiteboard/internal/infra/persistence/gorm"
	"github.com/Purabsingla/whiteboard/internal/infra/setup"
	"github.com/Purabsingla/whiteboard/internal/middleware"
	"github.com/Purabsingla/whiteboard/internal/service"
	"github.com/Purabsingla/whiteboard/internal/tasks"
	"github.com/Purabsingla/whiteboard/internal/worker"
)

// Config 结构体用于存储从环境变量或文件加载的配置
type Config struct {
	DBUser          string
	DBPassword      string
	DBHost          string
	DBPort          string
	DBName          string
	RedisAddr       string
	RedisPassword   string
	RedisDB         int
	ServerPort      string
	LogLevel        string
	AppEnv          string // 应用环境 (development/production)
	RateLimitMax    int
	RateLimitWindow time.Duration
	RoomTTL         time.Duration // 房间不活跃回收窗口
	SweepInterval   string        // 过期清理任务的调度周期
}

// LoadConfig 从环境变量加载配置
func LoadConfig() (*Config, error) {
	// 优先加载 .env 文件 (如果存在)，忽略错误，允许只使用环境变量
	_ = godotenv.Load()

	cfg := &Config{
		DBUser:        os.Getenv("DB_USER"),
		DBPassword:    os.Getenv("DB_PASSWORD"),
		DBHost:        os.Getenv("DB_HOST"),
		DBPort:        os.Getenv("DB_PORT"),
		DBName:        os.Getenv("DB_NAME"),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		ServerPort:    os.Getenv("SERVER_PORT"),
		LogLevel:      os.Getenv("LOG_LEVEL"),
		AppEnv:        os.Getenv("APP_ENV"),
		// --- 默认值 ---
		RateLimitMax:    100,
		RateLimitWindow: 1 * time.Second,
		RoomTTL:         24 * time.Hour,
		SweepInterval:   "@every 1h",
	}

	redisDBStr := os.Getenv("REDIS_DB")
	cfg.RedisDB, _ = strconv.Atoi(redisDBStr) // 忽略错误，默认为 0

	if hoursStr := os.Getenv("ROOM_TTL_HOURS"); hoursStr != "" {
		hours, err := strconv.Atoi(hoursStr)
		if err != nil || hours <= 0 {
			logrus.Warnf("Invalid ROOM_TTL_HOURS '%s', using default 24", hoursStr)
		} else {
			cfg.RoomTTL = time.Duration(hours) * time.Hour
		}
	}

	if cfg.ServerPort == "" {
		cfg.ServerPort = "5000"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.AppEnv == "" {
		cfg.AppEnv = "development"
	}
	if cfg.RedisAddr == "" {
		return nil, fmt.Errorf("environment variable REDIS_ADDR must be set")
	}

	if _, err := logrus.ParseLevel(cfg.LogLevel); err != nil {
		logrus.Warnf("Invalid LOG_LEVEL '%s', using default 'info'", cfg.LogLevel)
		cfg.LogLevel = "info"
	}

	return cfg, nil
}

// App 结构体包含应用的所有组件和配置
type App struct {
	Config         *Config
	Log            *logrus.Logger
	DB             *gorm.DB
	RedisClient    *redis.Client
	AsynqClient    *asynq.Client
	WorkerServer   *worker.WorkerServer
	Hub            *hub.Hub
	HttpServer     *http.Server
	redisClientOpt asynq.RedisClientOpt
}

// NewApp 创建并初始化应用的所有组件
func NewApp() (*App, error) {
	// 1. 加载配置
	cfg, err := LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return nil, err
	}

	// 2. 初始化 Logger
	log := logrus.New()
	if cfg.AppEnv == "production" {
		log.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, ForceColors: true})
	}
	logLevel, _ := logrus.ParseLevel(cfg.LogLevel) // 已被 LoadConfig 验证
	log.SetLevel(logLevel)
	log.SetOutput(os.Stdout)
	logrus.SetFormatter(log.Formatter)
	logrus.SetLevel(logLevel)
	log.Info("Configuration loaded successfully")

	// 3. 初始化基础设施
	log.Info("Initializing infrastructure...")
	db, err := setup.InitDB(cfg.DBUser, cfg.DBPassword, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		return nil, fmt.Errorf("failed to init DB: %w", err)
	}
	log.Info("Database initialized")

	if err := setup.MigrateDB(db); err != nil {
		return nil, fmt.Errorf("failed to migrate DB: %w", err)
	}
	log.Info("Database migrated")

	redisClient, err := setup.InitRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return nil, fmt.Errorf("failed to init Redis: %w", err)
	}
	log.Info("Redis client initialized")

	redisClientOpt := asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}
	asynqClient := asynq.NewClient(redisClientOpt)
	log.Info("Asynq client initialized")

	// 4. 初始化 Repository
	roomRepo := gormpersistence.NewGormRoomRepository(db)
	log.Info("Repositories initialized")

	// 5. 初始化 Service (共享同一把房间锁)
	roomLocks := service.NewRoomLocker()
	roomService := service.NewRoomService(roomRepo, roomLocks)
	sessionService := service.NewSessionService(roomRepo, roomLocks)
	relayService := service.NewRelayService(roomRepo, roomLocks)
	log.Info("Services initialized")

	// 6. 初始化 Hub
	hubInstance := hub.NewHub(sessionService, relayService)
	log.Info("Hub initialized")

	// 7. 初始化 Handler
	roomHandler := httpHandler.NewRoomHandler(roomService)
	websocketHandler := wsHandler.NewWebSocketHandler(hubInstance)
	log.Info("Handlers initialized")

	// 8. 初始化 Worker Server
	workerServer := worker.NewWorkerServer(redisClientOpt, roomRepo, cfg.RoomTTL, log)
	log.Info("Worker server initialized")

	// 9. 初始化 Gin Engine 和路由
	if cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(log))

	router.Use(func(c *gin.Context) { /* CORS */
		allowedOrigin := os.Getenv("CORS_ALLOWED_ORIGIN")
		if allowedOrigin == "" {
			allowedOrigin = "http://localhost:3000"
		}
		c.Writer.Header().Set("Access-Control-Allow-Origin", allowedOrigin)
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	})

	api := router.Group("/api")
	api.Use(middleware.RateLimit(redisClient, cfg.RateLimitMax, cfg.RateLimitWindow))
	{
		api.POST("/rooms/join", roomHandler.JoinRoom)
		api.GET("/rooms/:roomId", roomHandler.RoomInfo)
	}
	router.GET("/ws", websocketHandler.HandleConnection)
	router.GET("/ping", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"message": "pong"}) })
	log.Info("Router setup complete")

	// 10. 初始化 HTTP Server
	httpServer := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: router,
	}

	app := &App{
		Config:         cfg,
		Log:            log,
		DB:             db,
		RedisClient:    redisClient,
		AsynqClient:    asynqClient,
		WorkerServer:   workerServer,
		Hub:            hubInstance,
		HttpServer:     httpServer,
		redisClientOpt: redisClientOpt,
	}
	log.Info("Application assembled successfully")
	return app, nil
}

// Start 启动应用的所有后台 Goroutine 和 HTTP 服务器
func (a *App) Start() {
	a.Log.Info("Starting application background routines...")
	go a.Hub.Run()
	a.Log.Info("Hub routine started")

	go a.WorkerServer.Start()
	a.Log.Info("Worker server routine started")

	a.registerPeriodicTasks()

	go func() {
		a.Log.Infof("HTTP server starting to listen on %s", a.HttpServer.Addr)
		if err := a.HttpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Log.Fatalf("Failed to start HTTP server: %v", err)
		}
		a.Log.Info("HTTP server stopped listening.")
	}()
}

// registerPeriodicTasks 注册周期性的过期房间清理任务
func (a *App) registerPeriodicTasks() {
	scheduler := asynq.NewScheduler(a.redisClientOpt, &asynq.SchedulerOpts{})

	taskPayload, err := tasks.NewRoomExpirySweepTask()
	if err != nil {
		a.Log.Errorf("Failed to create room expiry sweep task payload: %v", err)
		return
	}
	task := asynq.NewTask(tasks.TypeRoomExpirySweep, taskPayload)

	entryID, err := scheduler.Register(a.Config.SweepInterval, task, asynq.Queue("low"))
	if err != nil {
		a.Log.Errorf("Could not register room expiry sweep task: %v", err)
	} else {
		a.Log.Infof("Room expiry sweep registered with schedule '%s' (EntryID: %s)", a.Config.SweepInterval, entryID)
	}

	go func() {
		a.Log.Info("Asynq scheduler starting...")
		if err := scheduler.Run(); err != nil {
			if !errors.Is(err, asynq.ErrServerClosed) {
				a.Log.Errorf("Asynq scheduler Run() failed: %v", err)
			} else {
				a.Log.Info("Asynq scheduler stopped.")
			}
		}
	}()
}

// Shutdown 优雅地关闭应用
func (a *App) Shutdown() {
	a.Log.Info("Shutting down application...")

	// 1. 优雅关闭 Worker Server
	if a.WorkerServer != nil {
		a.WorkerServer.Shutdown()
	}

	// 2. 优雅关闭 HTTP 服务器
	a.Log.Info("Shutting down HTTP server...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.HttpServer.Shutdown(ctx); err != nil {
		a.Log.Errorf("Error shutting down HTTP server: %v", err)
	} else {
		a.Log.Info("HTTP server shut down gracefully.")
	}

	// 3. 关闭 Asynq Client
	if a.AsynqClient != nil {
		if err := a.AsynqClient.Close(); err != nil {
			a.Log.Errorf("Error closing Asynq client: %v", err)
		}
	}

	// 4. 关闭 Redis 连接
	if a.RedisClient != nil {
		if err := a.RedisClient.Close(); err != nil {
			a.Log.Errorf("Error closing Redis connection: %v", err)
		}
	}

	a.Log.Info("Application shutdown complete.")
}

// LoggerMiddleware 创建一个 Gin 中间件用于记录请求日志
func LoggerMiddleware(log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()
		c.Next()
		latency := time.Since(startTime)
		statusCode := c.Writer.Status()
		path := c.Request.URL.Path
		if c.Request.URL.RawQuery != "" {
			path = path + "?" + c.Request.URL.RawQuery
		}
		errorMessage := c.Errors.ByType(gin.ErrorTypePrivate).String()

		entry := log.WithFields(logrus.Fields{
			"status_code": statusCode,
			"latency_ms":  latency.Milliseconds(),
			"client_ip":   c.ClientIP(),
			"method":      c.Request.Method,
			"path":        path,
		})

		if errorMessage != "" {
			entry.Error(errorMessage)
		} else {
			if statusCode >= 500 {
				entry.Error("Server error")
			} else if statusCode >= 400 {
				entry.Warn("Client error")
			} else {
				entry.Info("Request handled")
			}
		}
	}
}
