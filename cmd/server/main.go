package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"studyhall/courses/internal/config"
	"studyhall/courses/internal/content"
	"studyhall/courses/internal/crypto"
	"studyhall/courses/internal/db"
	internalhttp "studyhall/courses/internal/http"
	"studyhall/courses/internal/model"
	"studyhall/courses/internal/progress"
	"studyhall/courses/internal/repository"
	"studyhall/courses/internal/session"
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("dotenv load error: %v", err)
	}
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connection failed: %v", err)
	}
	defer pool.Close()
	if err := db.EnsureSchema(ctx, pool); err != nil {
		log.Fatalf("schema bootstrap failed: %v", err)
	}

	store := repository.NewStore(pool)
	if err := bootstrapAdmin(ctx, cfg, store); err != nil {
		log.Fatalf("admin bootstrap failed: %v", err)
	}

	var sessionStore session.Store = session.NewMemoryStore()
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			cancel()
			log.Fatalf("redis ping failed: %v", err)
		}
		cancel()
		defer func() {
			if err := redisClient.Close(); err != nil {
				log.Printf("redis close error: %v", err)
			}
		}()
		sessionStore = session.NewRedisStore(redisClient)
	}

	sessions := session.NewManager(store, sessionStore, cfg.SessionTTL)
	engine := progress.NewEngine(store, store, cfg.AdvanceWithoutQuiz)
	contentStore, err := content.NewStore(cfg.ContentDir)
	if err != nil {
		log.Fatalf("content store init failed: %v", err)
	}

	server := internalhttp.NewServer(cfg, store, sessions, engine, contentStore)
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Printf("courses http listening on %s", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server error: %v", err)
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}

// bootstrapAdmin creates the configured admin account on first start so a
// fresh deployment is reachable without manual SQL.
func bootstrapAdmin(ctx context.Context, cfg config.Config, store *repository.Store) error {
	if cfg.BootstrapAdminEmail == "" || cfg.BootstrapAdminPassword == "" {
		return nil
	}
	_, err := store.GetAccount(ctx, cfg.BootstrapAdminEmail)
	if err == nil {
		return nil
	}
	if !errors.Is(err, model.ErrNotFound) {
		return err
	}

	hash, err := crypto.HashPassword(cfg.BootstrapAdminPassword)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	if err := store.CreateAccount(ctx, model.Account{
		Email:        cfg.BootstrapAdminEmail,
		PasswordHash: hash,
		Role:         model.RoleAdmin,
		CreatedAt:    now,
		UpdatedAt:    now,
	}); err != nil {
		return err
	}
	log.Printf("bootstrapped admin account %s", cfg.BootstrapAdminEmail)
	return nil
}
