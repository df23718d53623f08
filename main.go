package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	cfg "github.com/example/bookmarkd/internal/config"
	"github.com/gorilla/mux"
	_ "modernc.org/sqlite"
)

type App struct {
	cfg         *cfg.Config
	store       Store
	jwtSecret   []byte
	rateLimiter *RateLimiter
}

func NewApp(c *cfg.Config, store Store) *App {
	return &App{cfg: c, store: store, jwtSecret: []byte(c.JwtSecret), rateLimiter: NewRateLimiter()}
}

// protect chains RequireAuth and RateLimit around a single handler.
func (a *App) protect(h http.HandlerFunc) http.Handler {
	return a.RequireAuth(a.RateLimit(h))
}

func (a *App) routes() *mux.Router {
	r := mux.NewRouter()

	r.Use(SecurityHeaders)
	r.Use(a.Logging)
	r.Use(a.CORS)

	// Health check endpoints (no auth required)
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(200)
		w.Write([]byte(`{"status":"ok"}`))
	}).Methods("GET")
	r.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if p, ok := a.store.(interface{ ping() bool }); ok {
			if !p.ping() {
				w.WriteHeader(503)
				w.Write([]byte(`{"ready":false}`))
				return
			}
		}
		w.WriteHeader(200)
		w.Write([]byte(`{"ready":true}`))
	}).Methods("GET")

	api := r.PathPrefix("/api").Subrouter()

	// Open auth endpoints
	api.HandleFunc("/auth/register", a.HandleRegister).Methods("POST")
	api.HandleFunc("/auth/login", a.HandleLogin).Methods("POST")
	api.HandleFunc("/auth/token/refresh", a.HandleRefresh).Methods("POST")
	api.HandleFunc("/auth/token/verify", a.HandleVerify).Methods("POST")

	// Protected auth endpoints
	api.Handle("/auth/me", a.protect(a.HandleMe)).Methods("GET")
	api.Handle("/auth/logout", a.protect(a.HandleLogout)).Methods("POST")

	// Bookmark resource, access token required throughout
	bookmarks := api.PathPrefix("/bookmarks").Subrouter()
	bookmarks.Use(a.RequireAuth)
	bookmarks.Use(a.RateLimit)

	bookmarks.HandleFunc("/recent", a.HandleRecentBookmarks).Methods("GET")
	bookmarks.HandleFunc("/mine", a.HandleMyBookmarks).Methods("GET")
	bookmarks.HandleFunc("/public", a.HandlePublicBookmarks).Methods("GET")
	bookmarks.HandleFunc("", a.HandleListBookmarks).Methods("GET")
	bookmarks.HandleFunc("", a.HandleCreateBookmark).Methods("POST")
	bookmarks.HandleFunc("/{id:[0-9]+}", a.HandleGetBookmark).Methods("GET")
	bookmarks.HandleFunc("/{id:[0-9]+}", a.HandleUpdateBookmark).Methods("PUT", "PATCH")
	bookmarks.HandleFunc("/{id:[0-9]+}", a.HandleDeleteBookmark).Methods("DELETE")
	bookmarks.HandleFunc("/{id:[0-9]+}/toggle-public", a.HandleTogglePublic).Methods("POST")

	return r
}

func main() {
	c, err := cfg.New()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	var store Store
	switch c.DBAdapter {
	case "sqlite":
		s, err := NewSQLiteStore(c.SQLiteFile)
		if err != nil {
			log.Fatalf("sqlite init: %v", err)
		}
		store = s
	case "postgres":
		dsn, err := c.BuildPostgresDSN()
		if err != nil {
			log.Fatalf("postgres config error: %v", err)
		}
		log.Println("Applying database migrations...")
		if err := ApplyMigrations("./migrations", dsn); err != nil {
			log.Fatalf("migrations failed: %v", err)
		}
		p, err := NewPostgresStore(dsn)
		if err != nil {
			log.Fatalf("postgres init: %v", err)
		}
		store = p
		log.Println("Connected to PostgreSQL database")
	case "memory":
		log.Println("Using in-memory store (not recommended for production)")
		store = NewMemStore()
	default:
		log.Fatalf("unsupported DB_ADAPTER: %s (supported: postgres, sqlite, memory)", c.DBAdapter)
	}

	app := NewApp(c, store)

	// Ledger entries for refresh tokens that have expired on their own
	// can go; run a pruning pass on the same cadence as the token TTL.
	pruneDone := make(chan struct{})
	go func() {
		ticker := time.NewTicker(c.RefreshTokenTTL)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if n, err := store.PruneRevoked(time.Now().Add(-c.RefreshTokenTTL)); err != nil {
					log.Printf("prune revoked tokens: %v", err)
				} else if n > 0 {
					log.Printf("pruned %d expired revocation entries", n)
				}
			case <-pruneDone:
				return
			}
		}
	}()

	srv := &http.Server{Handler: app.routes(), Addr: ":" + c.Port, ReadTimeout: 5 * time.Second, WriteTimeout: 10 * time.Second}

	go func() {
		fmt.Println("Starting bookmarkd on", c.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	close(pruneDone)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if closer, ok := store.(interface{ close() error }); ok {
		_ = closer.close()
	}
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("shutdown failed:%+v", err)
	}
	fmt.Println("Server exited properly")
}
