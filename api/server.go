// Package api exposes the variant forest over HTTP: public configurator
// queries, a JWT-protected admin surface and static serving of uploaded
// node images. Handlers stay thin; semantics live in store and engine,
// and classified errors are mapped to status codes here.
package api

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/oxhq/varix/auth"
	"github.com/oxhq/varix/db"
	"github.com/oxhq/varix/engine"
	"github.com/oxhq/varix/fault"
	"github.com/oxhq/varix/store"
	"github.com/oxhq/varix/uploads"
)

// Server owns the HTTP facade and everything behind it: the database
// handle, the store, the configurator engine, token auth and the
// uploads directory.
type Server struct {
	config  Config
	log     *zap.Logger
	db      *gorm.DB
	store   *store.Store
	engine  *engine.Engine
	auth    *auth.Manager
	uploads *uploads.Local
	server  *http.Server
}

// NewServer connects and migrates the database, seeds the initial admin
// account if the users table is empty, and wires every route.
func NewServer(config Config, log *zap.Logger) (*Server, error) {
	if log == nil {
		log = zap.NewNop()
	}

	gdb, err := db.Connect(config.DatabaseURL, config.Debug)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	up, err := uploads.NewLocal(config.UploadsDir)
	if err != nil {
		return nil, err
	}

	secret := config.JWTSecret
	if secret == "" {
		secret = randomSecret()
		log.Warn("VARIX_JWT_SECRET not set, using an ephemeral secret; tokens will not survive a restart")
	}

	st := store.New(gdb)
	s := &Server{
		config:  config,
		log:     log,
		db:      gdb,
		store:   st,
		engine:  engine.New(st, uploads.ExistingOnly(up)),
		auth:    auth.NewManager(secret, config.TokenTTL),
		uploads: up,
	}

	if err := s.seedAdmin(context.Background()); err != nil {
		return nil, err
	}

	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", config.Host, config.Port),
		Handler:      s.cors(s.routes()),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s, nil
}

func (s *Server) seedAdmin(ctx context.Context) error {
	hash, err := auth.HashPassword(s.config.InitialAdminPassword)
	if err != nil {
		return err
	}
	created, err := s.store.EnsureAdmin(ctx, s.config.InitialAdminUsername, s.config.InitialAdminEmail, hash)
	if err != nil {
		return fmt.Errorf("seed initial admin: %w", err)
	}
	if created {
		s.log.Info("initial admin account created, password change required on first login",
			zap.String("username", s.config.InitialAdminUsername))
	}
	return nil
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()

	// Health and public forest queries.
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/product-families", s.handleFamilies)
	mux.HandleFunc("GET /api/product-families/{code}/groups", s.handleFamilyGroups)
	mux.HandleFunc("GET /api/product-families/{code}/groups/{group}/max-level", s.handleGroupMaxLevel)
	mux.HandleFunc("GET /api/nodes/suggest-codes", s.handleSuggestCodes)
	mux.HandleFunc("GET /api/nodes/check-code-exists", s.handleCheckCodeExists)
	mux.HandleFunc("GET /api/nodes/autocomplete", s.handleAutocomplete)
	mux.HandleFunc("GET /api/nodes/search", s.handleAdvancedSearch)
	mux.HandleFunc("GET /api/nodes/by-code/{code}/level/{level}/ids", s.handleNodeIDsByCodeLevel)
	mux.HandleFunc("GET /api/nodes/by-id/{id}/children", s.handleChildrenByID)
	mux.HandleFunc("POST /api/nodes/by-path/find-id", s.handleFindNodeByPath)
	mux.HandleFunc("GET /api/code-hints/{id}/{partial}", s.handleCodeHints)
	mux.HandleFunc("GET /api/subsegments", s.handleSubsegments)

	// Single-node lookups share the /api/nodes/{code} grammar with the
	// typecode routes below, so the per-node sub-resources go through one
	// dispatching pattern instead of five conflicting ones.
	mux.HandleFunc("GET /api/nodes/{code}", s.handleNodeByCode)
	mux.HandleFunc("GET /api/nodes/{code}/{action...}", s.handleNodeAction)

	// Typecode resolution. The code segment may contain slashes.
	mux.HandleFunc("GET /api/nodes/decode/{code...}", s.handleDecode)
	mux.HandleFunc("GET /api/nodes/check/{code...}", s.handleCheck)
	mux.HandleFunc("GET /api/nodes/search-code/{code...}", s.handleSearchCode)

	// Configurator resolution.
	mux.HandleFunc("POST /api/options", s.handleOptions)
	mux.HandleFunc("POST /api/options/search", s.handleOptionsSearch)
	mux.HandleFunc("POST /api/derived-group-name", s.handleDerivedGroupName)
	mux.HandleFunc("GET /api/constraints/level/{level}", s.handleConstraintsForLevel)
	mux.HandleFunc("POST /api/constraints/validate", s.handleValidateCode)

	// Successor lookups and KMAT references.
	mux.HandleFunc("GET /api/node/{id}/successor", s.handleNodeSuccessor)
	mux.HandleFunc("POST /api/product/successor", s.handleProductSuccessor)
	mux.HandleFunc("GET /api/kmat-references", s.handleKmatLookup)

	// Authentication.
	mux.HandleFunc("POST /api/auth/login", s.handleLogin)
	mux.HandleFunc("GET /api/auth/me", s.protect(s.handleMe))
	mux.HandleFunc("POST /api/auth/logout", s.protect(s.handleLogout))
	mux.HandleFunc("POST /api/auth/change-password", s.protect(s.handleChangePassword))

	// User administration.
	mux.HandleFunc("GET /api/admin/users", s.protectAdmin(s.handleListUsers))
	mux.HandleFunc("POST /api/admin/users", s.protectAdmin(s.handleCreateUser))
	mux.HandleFunc("PUT /api/admin/users/{id}", s.protectAdmin(s.handleUpdateUser))
	mux.HandleFunc("DELETE /api/admin/users/{id}", s.protectAdmin(s.handleDeleteUser))
	mux.HandleFunc("POST /api/admin/users/{id}/reset-password", s.protectAdmin(s.handleResetPassword))

	// Forest administration.
	mux.HandleFunc("POST /api/admin/families", s.protectAdmin(s.handleCreateFamily))
	mux.HandleFunc("PUT /api/admin/families/{code}", s.protectAdmin(s.handleUpdateFamily))
	mux.HandleFunc("DELETE /api/admin/families/{code}", s.protectAdmin(s.handleDeleteFamily))
	mux.HandleFunc("GET /api/admin/families/{code}/delete-preview", s.protectAdmin(s.handleFamilyDeletePreview))
	mux.HandleFunc("POST /api/nodes", s.protectAdmin(s.handleCreateNode))
	mux.HandleFunc("POST /api/nodes/with-children", s.protectAdmin(s.handleCreateNodeWithChildren))
	mux.HandleFunc("PUT /api/nodes/bulk-update", s.protectAdmin(s.handleBulkUpdate))
	mux.HandleFunc("POST /api/nodes/bulk-filter", s.protectAdmin(s.handleBulkFilter))
	mux.HandleFunc("PUT /api/nodes/{id}", s.protectAdmin(s.handleUpdateNode))
	mux.HandleFunc("DELETE /api/admin/nodes/{id}", s.protectAdmin(s.handleDeleteNode))
	mux.HandleFunc("GET /api/admin/nodes/{id}/delete-preview", s.protectAdmin(s.handleNodeDeletePreview))
	mux.HandleFunc("POST /api/constraints", s.protectAdmin(s.handleCreateConstraint))
	mux.HandleFunc("PUT /api/constraints/{id}", s.protectAdmin(s.handleUpdateConstraint))
	mux.HandleFunc("DELETE /api/constraints/{id}", s.protectAdmin(s.handleDeleteConstraint))
	mux.HandleFunc("GET /api/family-schema-visualization/{code}", s.protectAdmin(s.handleFamilySchema))

	// Successor administration.
	mux.HandleFunc("GET /api/admin/successors", s.protectAdmin(s.handleAllSuccessors))
	mux.HandleFunc("POST /api/admin/successors", s.protectAdmin(s.handleCreateSuccessor))
	mux.HandleFunc("POST /api/admin/successors/bulk", s.protectAdmin(s.handleBulkCreateSuccessors))
	mux.HandleFunc("PUT /api/admin/successors/{id}", s.protectAdmin(s.handleUpdateSuccessor))
	mux.HandleFunc("DELETE /api/admin/successors/{id}", s.protectAdmin(s.handleDeleteSuccessor))
	mux.HandleFunc("POST /api/admin/kmat-references", s.protectAdmin(s.handleUpsertKmat))
	mux.HandleFunc("DELETE /api/admin/kmat-references/{id}", s.protectAdmin(s.handleDeleteKmat))

	// Node media.
	mux.HandleFunc("POST /api/nodes/{id}/upload-image", s.protectAdmin(s.handleUploadImage))
	mux.HandleFunc("DELETE /api/nodes/{id}/images/{file}", s.protectAdmin(s.handleDeleteImage))
	mux.HandleFunc("POST /api/nodes/{id}/links", s.protectAdmin(s.handleAddLink))
	mux.HandleFunc("DELETE /api/nodes/{id}/links", s.protectAdmin(s.handleDeleteLink))

	// Uploaded images are served straight from disk.
	mux.Handle("GET /uploads/", http.StripPrefix("/uploads/", http.FileServer(http.Dir(s.uploads.Dir()))))

	return mux
}

// Handler exposes the routed handler for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start runs the server until SIGINT or SIGTERM, then drains connections
// for up to 30 seconds.
func (s *Server) Start() error {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(stop)

	serverErrors := make(chan error, 1)
	go func() {
		s.log.Info("server listening", zap.String("addr", s.server.Addr))
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrors <- err
		}
	}()

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case sig := <-stop:
		s.log.Info("shutdown signal received", zap.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}

// Close shuts the server and its database down immediately, for tests.
func (s *Server) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		return err
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func randomSecret() string {
	buf := make([]byte, 32)
	rand.Read(buf)
	return hex.EncodeToString(buf)
}

func (s *Server) respond(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.log.Error("encode response", zap.Error(err))
	}
}

func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(err)
	message := faultMessage(err)
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
		message = "internal error"
	}
	s.respond(w, status, map[string]any{
		"error": map[string]any{
			"kind":    string(fault.KindOf(err)),
			"message": message,
		},
	})
}

// statusOf maps an error classification to its HTTP status.
func statusOf(err error) int {
	switch fault.KindOf(err) {
	case fault.Validation, fault.Integrity:
		return http.StatusBadRequest
	case fault.NotFound:
		return http.StatusNotFound
	case fault.Conflict:
		return http.StatusConflict
	case fault.Forbidden:
		return http.StatusForbidden
	case fault.Unauthorized:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// faultMessage strips the kind prefix and wrapped cause from classified
// errors so the client sees only the message.
func faultMessage(err error) string {
	var fe *fault.Error
	if errors.As(err, &fe) {
		return fe.Message
	}
	return err.Error()
}

func decodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fault.Wrap(fault.Validation, "invalid JSON body", err)
	}
	return nil
}

func pathID(r *http.Request, name string) (uint, error) {
	raw := r.PathValue(name)
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0, fault.New(fault.Validation, "invalid %s %q", name, raw)
	}
	return uint(id), nil
}

func pathInt(r *http.Request, name string) (int, error) {
	raw := r.PathValue(name)
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fault.New(fault.Validation, "invalid %s %q", name, raw)
	}
	return n, nil
}

func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fault.New(fault.Validation, "query parameter %q must be an integer", name)
	}
	return n, nil
}

func queryIntOr(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	if n, err := strconv.Atoi(raw); err == nil {
		return n
	}
	return fallback
}

func queryIntPtr(r *http.Request, name string) (*int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return nil, fault.New(fault.Validation, "query parameter %q must be an integer", name)
	}
	return &n, nil
}

func queryUintPtr(r *http.Request, name string) (*uint, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return nil, fault.New(fault.Validation, "query parameter %q must be an id", name)
	}
	u := uint(id)
	return &u, nil
}

// orEmpty keeps empty result sets marshalling as [] instead of null.
func orEmpty[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// nullable turns "" into JSON null for echo fields.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
