package httpserver

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	lineupescrow "github.com/rossfreedman/rally-sub012/contexts/match-operations/lineup-escrow-service"
	escrowdomainerrors "github.com/rossfreedman/rally-sub012/contexts/match-operations/lineup-escrow-service/domain/errors"
	escrowhttp "github.com/rossfreedman/rally-sub012/contexts/match-operations/lineup-escrow-service/transport/http"

	httpSwagger "github.com/swaggo/http-swagger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	_ "github.com/rossfreedman/rally-sub012/internal/platform/httpserver/docs"
)

const tracerName = "internal/platform/httpserver"

type Server struct {
	mux    *http.ServeMux
	logger *slog.Logger
	addr   string
	escrow lineupescrow.Module
}

func New(
	escrow lineupescrow.Module,
	logger *slog.Logger,
	addr string,
) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if addr == "" {
		addr = ":8080"
	}

	s := &Server{
		mux:    http.NewServeMux(),
		logger: logger,
		addr:   addr,
		escrow: escrow,
	}
	s.registerRoutes()
	return s
}

func (s *Server) Start() error {
	s.logger.Info("http server starting",
		"event", "http_server_starting",
		"module", "internal/platform/httpserver",
		"layer", "platform",
		"addr", s.addr,
	)
	return http.ListenAndServe(s.addr, s.traced(s.mux))
}

// traced opens a server span per request. With tracing disabled the global
// tracer is a no-op. Exchange tokens are capability secrets and never enter
// span names or attributes.
func (s *Server) traced(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
		target := maskExchangeToken(r.URL.Path)
		ctx, span := otel.Tracer(tracerName).Start(ctx, r.Method+" "+target,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.method", r.Method),
				attribute.String("http.target", target),
			),
		)
		defer span.End()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func maskExchangeToken(path string) string {
	const marker = "/escrow/exchange/"
	idx := strings.Index(path, marker)
	if idx == -1 {
		return path
	}
	rest := path[idx+len(marker):]
	if slash := strings.IndexByte(rest, '/'); slash != -1 {
		return path[:idx+len(marker)] + "{token}" + rest[slash:]
	}
	return path[:idx+len(marker)] + "{token}"
}

func (s *Server) registerRoutes() {
	s.mux.Handle("/swagger/", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	s.mux.HandleFunc("POST /escrow/sessions", s.handleCreateSession)
	s.mux.HandleFunc("GET /escrow/sessions/{escrow_id}", s.handleGetSession)
	s.mux.HandleFunc("POST /escrow/sessions/{escrow_id}/cancel", s.handleCancelSession)
	s.mux.HandleFunc("GET /escrow/sessions/{escrow_id}/views", s.handleListViews)
	s.mux.HandleFunc("GET /escrow/teams/{team_id}/sessions", s.handleListTeamSessions)
	s.mux.HandleFunc("GET /escrow/exchange/{token}", s.handleFetchExchange)
	s.mux.HandleFunc("POST /escrow/exchange/{token}/submit", s.handleSubmitLineup)
	s.mux.HandleFunc("PUT /escrow/lineups", s.handleSaveLineup)
	s.mux.HandleFunc("GET /escrow/lineups", s.handleListSavedLineups)

	s.mux.HandleFunc("POST /v1/escrow/sessions", s.handleCreateSession)
	s.mux.HandleFunc("GET /v1/escrow/sessions/{escrow_id}", s.handleGetSession)
	s.mux.HandleFunc("POST /v1/escrow/sessions/{escrow_id}/cancel", s.handleCancelSession)
	s.mux.HandleFunc("GET /v1/escrow/sessions/{escrow_id}/views", s.handleListViews)
	s.mux.HandleFunc("GET /v1/escrow/teams/{team_id}/sessions", s.handleListTeamSessions)
	s.mux.HandleFunc("GET /v1/escrow/exchange/{token}", s.handleFetchExchange)
	s.mux.HandleFunc("POST /v1/escrow/exchange/{token}/submit", s.handleSubmitLineup)
	s.mux.HandleFunc("PUT /v1/escrow/lineups", s.handleSaveLineup)
	s.mux.HandleFunc("GET /v1/escrow/lineups", s.handleListSavedLineups)
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get("X-User-Id")
	if userID == "" {
		writeEscrowError(w, http.StatusUnauthorized, "missing_user", "X-User-Id header is required")
		return
	}

	var req escrowhttp.CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeEscrowError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}

	idempotencyKey := r.Header.Get("Idempotency-Key")

	resp, err := s.escrow.Handler.CreateSessionHandler(
		r.Context(),
		userID,
		req,
		idempotencyKey,
	)
	if err != nil {
		writeEscrowDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get("X-User-Id")
	if userID == "" {
		writeEscrowError(w, http.StatusUnauthorized, "missing_user", "X-User-Id header is required")
		return
	}

	escrowID := r.PathValue("escrow_id")
	resp, err := s.escrow.Handler.GetSessionHandler(
		r.Context(),
		escrowID,
		userID,
		resolveTeamIDs(r),
		resolveClientIP(r),
	)
	if err != nil {
		writeEscrowDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCancelSession(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get("X-User-Id")
	if userID == "" {
		writeEscrowError(w, http.StatusUnauthorized, "missing_user", "X-User-Id header is required")
		return
	}

	escrowID := r.PathValue("escrow_id")
	resp, err := s.escrow.Handler.CancelSessionHandler(r.Context(), escrowID, userID)
	if err != nil {
		writeEscrowDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListViews(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get("X-User-Id")
	if userID == "" {
		writeEscrowError(w, http.StatusUnauthorized, "missing_user", "X-User-Id header is required")
		return
	}

	escrowID := r.PathValue("escrow_id")
	resp, err := s.escrow.Handler.ListViewsHandler(r.Context(), escrowID, userID)
	if err != nil {
		writeEscrowDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListTeamSessions(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get("X-User-Id")
	if userID == "" {
		writeEscrowError(w, http.StatusUnauthorized, "missing_user", "X-User-Id header is required")
		return
	}

	query := r.URL.Query() // gorm-postgres-enforcer: allow-raw-sql parses HTTP query parameters only
	limit := 0
	if limitRaw := query.Get("limit"); limitRaw != "" {
		parsed, err := strconv.Atoi(limitRaw)
		if err != nil {
			writeEscrowError(w, http.StatusBadRequest, "invalid_limit", "limit must be an integer")
			return
		}
		limit = parsed
	}

	teamID := r.PathValue("team_id")
	resp, err := s.escrow.Handler.ListTeamSessionsHandler(
		r.Context(),
		teamID,
		userID,
		resolveTeamIDs(r),
		query.Get("cursor"),
		limit,
	)
	if err != nil {
		writeEscrowDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleFetchExchange(w http.ResponseWriter, r *http.Request) {
	token := r.PathValue("token")
	resp, err := s.escrow.Handler.FetchExchangeHandler(r.Context(), token, resolveClientIP(r))
	if err != nil {
		writeEscrowDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSubmitLineup(w http.ResponseWriter, r *http.Request) {
	var req escrowhttp.SubmitLineupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeEscrowError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}

	token := r.PathValue("token")
	resp, err := s.escrow.Handler.SubmitLineupHandler(
		r.Context(),
		token,
		req,
		resolveClientIP(r),
	)
	if err != nil {
		writeEscrowDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSaveLineup(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get("X-User-Id")
	if userID == "" {
		writeEscrowError(w, http.StatusUnauthorized, "missing_user", "X-User-Id header is required")
		return
	}

	var req escrowhttp.SaveLineupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeEscrowError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}

	resp, err := s.escrow.Handler.SaveLineupHandler(r.Context(), userID, req)
	if err != nil {
		writeEscrowDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListSavedLineups(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get("X-User-Id")
	if userID == "" {
		writeEscrowError(w, http.StatusUnauthorized, "missing_user", "X-User-Id header is required")
		return
	}

	query := r.URL.Query() // gorm-postgres-enforcer: allow-raw-sql parses HTTP query parameters only
	resp, err := s.escrow.Handler.ListSavedLineupsHandler(r.Context(), userID, query.Get("team_id"))
	if err != nil {
		writeEscrowDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeEscrowDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, escrowdomainerrors.ErrValidation):
		writeEscrowError(w, http.StatusUnprocessableEntity, "invalid_request", err.Error())
	case errors.Is(err, escrowdomainerrors.ErrInvalidToken):
		writeEscrowError(w, http.StatusNotFound, "invalid_token", err.Error())
	case errors.Is(err, escrowdomainerrors.ErrSessionNotFound):
		writeEscrowError(w, http.StatusNotFound, "session_not_found", err.Error())
	case errors.Is(err, escrowdomainerrors.ErrSavedLineupNotFound):
		writeEscrowError(w, http.StatusNotFound, "saved_lineup_not_found", err.Error())
	case errors.Is(err, escrowdomainerrors.ErrUnauthorized):
		writeEscrowError(w, http.StatusForbidden, "forbidden", err.Error())
	case errors.Is(err, escrowdomainerrors.ErrAlreadySubmitted):
		writeEscrowError(w, http.StatusConflict, "already_submitted", err.Error())
	case errors.Is(err, escrowdomainerrors.ErrAlreadyCancelled):
		writeEscrowError(w, http.StatusConflict, "already_cancelled", err.Error())
	case errors.Is(err, escrowdomainerrors.ErrIdempotencyKeyConflict):
		writeEscrowError(w, http.StatusConflict, "idempotency_conflict", err.Error())
	case errors.Is(err, escrowdomainerrors.ErrExpired):
		writeEscrowError(w, http.StatusGone, "session_expired", err.Error())
	default:
		writeEscrowError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func writeEscrowError(w http.ResponseWriter, status int, code string, message string) {
	writeJSON(w, status, escrowhttp.ErrorResponse{
		Code:    code,
		Message: message,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func resolveClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		return forwarded
	}
	return r.RemoteAddr
}

func resolveTeamIDs(r *http.Request) []string {
	raw := r.Header.Get("X-Team-Ids")
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	teamIDs := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			teamIDs = append(teamIDs, trimmed)
		}
	}
	return teamIDs
}
