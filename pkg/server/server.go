package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"time"

	"github.com/NYTimes/gziphandler"
	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/levenlabs/go-lflag"
	"github.com/voltwatch/voltwatch/pkg/common"
	"github.com/voltwatch/voltwatch/pkg/ingest"
	"github.com/voltwatch/voltwatch/pkg/log"
	"github.com/voltwatch/voltwatch/pkg/metrics"
	"github.com/voltwatch/voltwatch/pkg/storage"
	"github.com/voltwatch/voltwatch/pkg/telemetry"
	"github.com/voltwatch/voltwatch/pkg/types"
)

const authTokenCookie = "auth_token"

type contextKey string

const userContextKey contextKey = "user"

// tokenVerifier validates a Google or Apple ID Token and returns the
// email claim, subject, and expiry.
type tokenVerifier func(ctx context.Context, rawIDToken string) (string, string, time.Time, error)

// Server handles the HTTP API for the VoltWatch dashboard. It gates reads
// behind the identity provider, serves stored telemetry with a demo-series
// fallback, and guards the hardware ingestion boundary.
type Server struct {
	storage   storage.Database
	demoCache *telemetry.Cache
	limiter   *ingest.Limiter
	generator *telemetry.Generator
	now       func() time.Time

	listenAddr string
	httpServer *http.Server

	oidcAudiences map[string]string
	oidcVerifiers map[string]tokenVerifier
	bypassAuth    bool
	ingestKey     string
	serverName    string
}

// Configured initializes the Server with dependencies.
// It uses lflag to register command-line flags for configuration.
func Configured(s storage.Database) *Server {
	srv := &Server{
		storage:    s,
		limiter:    ingest.NewLimiter(ingest.DefaultWindow, ingest.DefaultMaxRequests, nil),
		now:        time.Now,
		serverName: "voltwatch",
	}
	revision := os.Getenv("K_REVISION")
	if revision != "" {
		srv.serverName = revision
	}

	// get the port from PORT when running in cloud run
	port := os.Getenv("PORT")
	if port == "" {
		// otherwise default to 8080
		port = "8080"
	}

	listenAddr := lflag.String("http-listen", ":"+port, "HTTP server listen address")
	oidcAudiences := map[string]string{}
	lflag.JSON(&oidcAudiences, "oidc-audiences", oidcAudiences, "JSON map of provider (google/apple) to audience/client ID")
	ingestKey := lflag.String("ingest-api-key", "", "Shared secret for the hardware ingestion endpoint (empty disables ingestion)")
	bypassAuth := lflag.Bool("bypass-auth", false, "Skip identity checks (local development only)")
	demoProfile := lflag.String("demo-profile", "small-panel", "Demo generator profile (small-panel or open-rig)")

	lflag.Do(func() {
		srv.listenAddr = *listenAddr
		srv.ingestKey = *ingestKey

		profile, ok := profileByName(*demoProfile)
		if !ok {
			log.Ctx(context.Background()).Error("unknown demo profile", slog.String("profile", *demoProfile))
			os.Exit(1)
		}
		srv.generator = telemetry.NewGenerator(profile, rand.New(rand.NewSource(time.Now().UnixNano())))
		srv.demoCache = telemetry.NewCache(srv.generator, nil)
		if len(oidcAudiences) > 0 {
			srv.oidcAudiences = make(map[string]string, len(oidcAudiences))
			srv.oidcVerifiers = make(map[string]tokenVerifier, len(oidcAudiences))
			oidcCtx := oidc.ClientContext(context.Background(), common.HTTPClient(10*time.Second))
			for n, a := range oidcAudiences {
				var issuer string
				switch n {
				case "google":
					issuer = "https://accounts.google.com"
				case "apple":
					issuer = "https://appleid.apple.com"
				default:
					log.Ctx(context.Background()).Error("unsupported oidc audience client", slog.String("client", n))
					os.Exit(1)
				}
				provider, err := oidc.NewProvider(oidcCtx, issuer)
				if err != nil {
					log.Ctx(context.Background()).Error("failed to initialize OIDC provider", slog.String("client", n), slog.Any("error", err))
					os.Exit(1)
				}
				verifier := provider.Verifier(&oidc.Config{ClientID: a})
				srv.oidcVerifiers[n] = func(ctx context.Context, rawIDToken string) (string, string, time.Time, error) {
					idToken, err := verifier.Verify(ctx, rawIDToken)
					if err != nil {
						return "", "", time.Time{}, err
					}
					var claims struct {
						Email string `json:"email"`
					}
					if err := idToken.Claims(&claims); err != nil {
						return "", "", time.Time{}, err
					}
					return claims.Email, idToken.Subject, idToken.Expiry, nil
				}
				srv.oidcAudiences[n] = a
			}
		}
		if *bypassAuth && len(srv.oidcAudiences) == 0 {
			srv.bypassAuth = true
		}
	})

	metrics.Init()
	return srv
}

// profileByName resolves a demo-profile flag value to its envelope.
func profileByName(name string) (telemetry.Profile, bool) {
	switch name {
	case "small-panel":
		return telemetry.SmallPanelProfile(), true
	case "open-rig":
		return telemetry.OpenRigProfile(), true
	default:
		return telemetry.Profile{}, false
	}
}

func (s *Server) setupHandler() http.Handler {
	apiMux := http.NewServeMux()
	apiMux.HandleFunc("GET /api/telemetry/latest", s.handleLatest)
	apiMux.HandleFunc("GET /api/telemetry/live", s.handleLive)
	apiMux.HandleFunc("GET /api/telemetry/hourly", s.handleHourly)
	apiMux.HandleFunc("GET /api/telemetry/devices", s.handleDevices)
	apiMux.HandleFunc("POST /api/telemetry/ingest", s.handleIngest)
	apiMux.HandleFunc("POST /api/seed", s.handleSeed)
	apiMux.HandleFunc("GET /api/auth/status", s.handleAuthStatus)
	apiMux.HandleFunc("POST /api/auth/login", s.handleLogin)
	apiMux.HandleFunc("POST /api/auth/logout", s.handleLogout)

	mux := http.NewServeMux()
	mux.Handle("/api/", s.authMiddleware(apiMux))
	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("/healthz", s.handleHealthz)
	return s.revisionMiddleware(gziphandler.GzipHandler(s.securityHeadersMiddleware(mux)))
}

func (s *Server) getUser(r *http.Request) types.User {
	if user, ok := r.Context().Value(userContextKey).(types.User); ok {
		return user
	}
	return types.User{}
}

// Run starts the HTTP server and blocks until the context is canceled or an error occurs.
// It also handles graceful shutdown when the context is done.
func (s *Server) Run(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         s.listenAddr,
		Handler:      s.setupHandler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  15 * time.Second,
	}

	// use a channel to capturing server errors
	errChan := make(chan error, 1)
	go func() {
		defer close(errChan)
		log.Ctx(ctx).InfoContext(ctx, "starting server", slog.String("addr", s.listenAddr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		// Context canceled, shut down gracefully
		log.Ctx(ctx).InfoContext(ctx, "shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	}
}

func writeJSONError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(struct {
		Error string `json:"error"`
	}{Error: msg}); err != nil {
		slog.Warn("failed to write error response", slog.Any("error", err))
		panic(http.ErrAbortHandler)
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		panic(http.ErrAbortHandler)
	}
}

func writeJSONStatus(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		panic(http.ErrAbortHandler)
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("ok")); err != nil {
		panic(http.ErrAbortHandler)
	}
}

func (s *Server) revisionMiddleware(next http.Handler) http.Handler {
	if s.serverName == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Server", s.serverName)
		next.ServeHTTP(w, r)
	})
}
