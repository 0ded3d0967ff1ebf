package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/fescii/qval-sub002/config"
	database "github.com/fescii/qval-sub002/db"
	"github.com/fescii/qval-sub002/dispatcher"
	"github.com/fescii/qval-sub002/events"
	"github.com/fescii/qval-sub002/generator"
	"github.com/fescii/qval-sub002/handler"
	"github.com/fescii/qval-sub002/pkg/jwt"
	queueClient "github.com/fescii/qval-sub002/queue"
	"github.com/fescii/qval-sub002/relay"
	"github.com/fescii/qval-sub002/repository"
	"github.com/fescii/qval-sub002/snapshot"
)

func main() {
	ctx := context.Background()

	if err := godotenv.Load(); err != nil {
		log.Println("failed to load .env")
	}

	// Load database configuration
	dbCfg, err := config.LoadDatabaseConfig("QVAL_")
	if err != nil {
		log.Fatalf("Failed to load database config: %v", err)
	}

	// Create database connection
	dbConn, err := database.NewConnection(database.Config{
		Host:         dbCfg.Host,
		Port:         dbCfg.Port,
		User:         dbCfg.User,
		Password:     dbCfg.Password,
		DBName:       dbCfg.DBName,
		SSLMode:      dbCfg.SSLMode,
		MaxOpenConns: dbCfg.MaxOpenConns,
		MaxIdleConns: dbCfg.MaxIdleConns,
		MaxLifetime:  dbCfg.MaxLifetime,
	})
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer dbConn.Close()
	log.Println("Database connected successfully")

	// Initialize Redis client
	redisCfg := config.LoadRedisConfig()
	redisClient := redis.NewClient(&redis.Options{
		Addr:     redisCfg.Addr,
		Password: redisCfg.Password,
		DB:       redisCfg.DB,
		PoolSize: redisCfg.PoolSize,
	})
	defer redisClient.Close()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	log.Println("Redis connected successfully")

	// Initialize NATS client
	natsCfg := config.LoadNATSConfig()
	queue, err := queueClient.NewClient(queueClient.Config{
		URL:           natsCfg.URL,
		MaxReconnects: natsCfg.MaxReconnects,
		ReconnectWait: natsCfg.ReconnectWait,
		ClientID:      natsCfg.ClientID,
	})
	if err != nil {
		log.Fatalf("Failed to initialize NATS client: %v", err)
	}
	defer queue.Close()
	log.Println("NATS client initialized successfully")

	if err := queue.CreateStream("ACTIONS", []string{events.SubjectAction, events.SubjectSocket}); err != nil {
		log.Printf("Stream might already exist or error creating: %v", err)
	}

	// Initialize repositories
	entities := repository.NewEntityRepository(dbConn.DB, queue)
	activities := repository.NewActivityRepository(dbConn.DB, redisClient)
	resolver := snapshot.NewResolver(entities)

	pipelineCfg := config.LoadPipelineConfig()

	// Initialize workers
	disp := dispatcher.New(queue, entities, pipelineCfg, ctx)
	if err := disp.Start(); err != nil {
		log.Fatalf("Failed to start action dispatcher: %v", err)
	}

	gen := generator.New(queue, queue, resolver, activities, pipelineCfg, ctx)
	if err := gen.Start(); err != nil {
		log.Fatalf("Failed to start activity generator: %v", err)
	}

	// Initialize websocket relay
	relayCfg := config.LoadRelayConfig()
	var tokens *jwt.Manager
	if relayCfg.JWTSecret != "" {
		tokens = jwt.NewManager(relayCfg.JWTSecret)
	}

	rel := relay.New(queue, queue, tokens, relayCfg, pipelineCfg)
	if err := rel.Start(); err != nil {
		log.Fatalf("Failed to start notification relay: %v", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc(relayCfg.Path, rel.Handler())
	handler.NewActivityHandler(activities, tokens).Register(mux)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	server := &http.Server{
		Addr:    relayCfg.Addr,
		Handler: mux,
	}

	go func() {
		log.Printf("Relay listening on %s%s", relayCfg.Addr, relayCfg.Path)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Relay server failed: %v", err)
		}
	}()

	log.Println("Interaction pipeline started")

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down interaction pipeline...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	server.Shutdown(shutdownCtx)

	disp.Stop()
	gen.Stop()
	rel.Stop()
	queue.Close()
	dbConn.Close()
	redisClient.Close()

	log.Println("Interaction pipeline stopped cleanly")
}
