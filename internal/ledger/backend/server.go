package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/batabung/batabung/internal/auth"
	"github.com/batabung/batabung/internal/ledger/remote"
	"github.com/batabung/batabung/internal/ledger/schema"
	"github.com/batabung/batabung/internal/logger"
)

type ctxKey string

const ownerKey ctxKey = "owner"

// Config holds server configuration.
type Config struct {
	// Addr is the listen address. Default ":8080".
	Addr string
	// Secret verifies bearer tokens.
	Secret []byte
	// AllowedOrigins for CORS. Default any http(s) origin.
	AllowedOrigins []string
	// RequestTimeout bounds each request. Default 60s.
	RequestTimeout time.Duration
	Logger         *zerolog.Logger
}

// DefaultConfig returns the default server configuration.
func DefaultConfig() Config {
	return Config{
		Addr:           ":8080",
		AllowedOrigins: []string{"https://*", "http://*"},
		RequestTimeout: 60 * time.Second,
	}
}

// Server serves the table API.
type Server struct {
	store  *Store
	config Config
	log    zerolog.Logger
	router chi.Router
	http   *http.Server
}

// NewServer builds the router for store.
func NewServer(store *Store, cfg Config) *Server {
	def := DefaultConfig()
	if cfg.Addr == "" {
		cfg.Addr = def.Addr
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = def.AllowedOrigins
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = def.RequestTimeout
	}
	s := &Server{
		store:  store,
		config: cfg,
		log:    logger.OrDefault(cfg.Logger, "backend"),
	}
	s.router = s.routes()
	return s
}

// Handler returns the HTTP handler, mostly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.accessLog)
	r.Use(middleware.Timeout(s.config.RequestTimeout))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.config.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "apikey", "Prefer"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	r.Get("/health", s.handleHealth)

	r.Route("/rest/v1", func(r chi.Router) {
		r.Use(s.authenticate)
		r.Get("/{table}", s.handleSelect)
		r.Post("/{table}", s.handleUpsert)
		r.Delete("/{table}", s.handleDelete)
	})
	return r
}

// Start listens on the configured address until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	s.http = &http.Server{
		Addr:              s.config.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", s.config.Addr).Msg("backend listening")
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	}
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("took", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("request")
	})
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := auth.BearerToken(r.Header.Get("Authorization"))
		if !ok {
			writeError(w, http.StatusUnauthorized, "authorization header required")
			return
		}
		owner, err := auth.VerifyToken(s.config.Secret, token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		ctx := context.WithValue(r.Context(), ownerKey, owner)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func ownerFrom(ctx context.Context) string {
	owner, _ := ctx.Value(ownerKey).(string)
	return owner
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// parseFilter reads a single column=eq.value query parameter.
func parseFilter(r *http.Request) (*Filter, error) {
	var f *Filter
	for col, vals := range r.URL.Query() {
		if len(vals) != 1 || !strings.HasPrefix(vals[0], "eq.") {
			return nil, fmt.Errorf("unsupported filter on %s", col)
		}
		if f != nil {
			return nil, errors.New("only one filter is supported")
		}
		f = &Filter{Column: col, Value: strings.TrimPrefix(vals[0], "eq.")}
	}
	return f, nil
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	owner := ownerFrom(r.Context())
	f, err := parseFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var rows any
	switch chi.URLParam(r, "table") {
	case remote.TableAccounts:
		rows, err = s.store.SelectAccounts(r.Context(), owner, f)
	case remote.TableTransactions:
		rows, err = s.store.SelectTransactions(r.Context(), owner, f)
	default:
		writeError(w, http.StatusNotFound, "unknown table")
		return
	}
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleUpsert(w http.ResponseWriter, r *http.Request) {
	owner := ownerFrom(r.Context())
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()

	var err error
	switch chi.URLParam(r, "table") {
	case remote.TableAccounts:
		var row remote.AccountRow
		if err := dec.Decode(&row); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if verr := validAccountRow(row); verr != nil {
			writeError(w, http.StatusBadRequest, verr.Error())
			return
		}
		err = s.store.UpsertAccount(r.Context(), owner, row)
	case remote.TableTransactions:
		var row remote.TransactionRow
		if err := dec.Decode(&row); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if verr := validTransactionRow(row); verr != nil {
			writeError(w, http.StatusBadRequest, verr.Error())
			return
		}
		err = s.store.UpsertTransaction(r.Context(), owner, row)
	default:
		writeError(w, http.StatusNotFound, "unknown table")
		return
	}
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	owner := ownerFrom(r.Context())
	table := chi.URLParam(r, "table")
	if _, ok := filterable[table]; !ok {
		writeError(w, http.StatusNotFound, "unknown table")
		return
	}
	f, err := parseFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if f == nil || f.Value == "" {
		writeError(w, http.StatusBadRequest, "delete requires a filter")
		return
	}

	n, err := s.store.Delete(r.Context(), owner, table, *f)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.log.Debug().Str("table", table).Str("owner", owner).Int64("rows", n).Msg("deleted")
	w.WriteHeader(http.StatusNoContent)
}

// validAccountRow checks a row with the domain validation rules.
func validAccountRow(row remote.AccountRow) error {
	acc := row.Account()
	acc.SyncStatus = schema.StatusSynced
	return acc.Validate()
}

func validTransactionRow(row remote.TransactionRow) error {
	tx := row.Transaction()
	tx.SyncStatus = schema.StatusSynced
	return tx.Validate()
}

func (s *Server) writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrForbidden):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, ErrReferenced):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, ErrUnknownColumn), errors.Is(err, ErrInvalidRow):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.log.Error().Err(err).Msg("store error")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"message": msg})
}
