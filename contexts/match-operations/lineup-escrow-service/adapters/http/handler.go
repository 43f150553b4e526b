package httpadapter

import (
	"context"
	"log/slog"
	"time"

	application "github.com/rossfreedman/rally-sub012/contexts/match-operations/lineup-escrow-service/application"
	"github.com/rossfreedman/rally-sub012/contexts/match-operations/lineup-escrow-service/application/commands"
	"github.com/rossfreedman/rally-sub012/contexts/match-operations/lineup-escrow-service/application/queries"
	"github.com/rossfreedman/rally-sub012/contexts/match-operations/lineup-escrow-service/domain/entities"
	"github.com/rossfreedman/rally-sub012/contexts/match-operations/lineup-escrow-service/domain/services"
	httptransport "github.com/rossfreedman/rally-sub012/contexts/match-operations/lineup-escrow-service/transport/http"
)

const timeLayout = "2006-01-02T15:04:05Z"

type Handler struct {
	CreateSession    commands.CreateSessionUseCase
	SubmitLineup     commands.SubmitLineupUseCase
	CancelSession    commands.CancelSessionUseCase
	SaveLineup       commands.SaveLineupUseCase
	FetchByToken     queries.FetchByTokenUseCase
	GetSession       queries.GetSessionUseCase
	ListTeamSessions queries.ListTeamSessionsUseCase
	ListViews        queries.ListViewsUseCase
	ListSavedLineups queries.ListSavedLineupsUseCase
	Logger           *slog.Logger
}

// CreateSessionHandler godoc
// @Summary Create a lineup escrow session
// @Description Commits the initiator lineup blind and returns the recipient share link.
// @Tags lineup-escrow
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param X-User-Id header string true "Authenticated user id"
// @Param Idempotency-Key header string false "Idempotency key"
// @Param request body httptransport.CreateSessionRequest true "Session payload"
// @Success 201 {object} httptransport.CreateSessionResponse
// @Failure 401 {object} httptransport.ErrorResponse
// @Failure 404 {object} httptransport.ErrorResponse
// @Failure 409 {object} httptransport.ErrorResponse
// @Failure 422 {object} httptransport.ErrorResponse
// @Failure 500 {object} httptransport.ErrorResponse
// @Router /escrow/sessions [post]
func (h Handler) CreateSessionHandler(
	ctx context.Context,
	userID string,
	req httptransport.CreateSessionRequest,
	idempotencyKey string,
) (httptransport.CreateSessionResponse, error) {
	logger := application.ResolveLogger(h.Logger)
	logger.Info("create session request received",
		"event", "http_create_session_received",
		"module", "match-operations/lineup-escrow-service",
		"layer", "transport",
	)

	result, err := h.CreateSession.Execute(ctx, commands.CreateSessionCommand{
		InitiatorUserID:  userID,
		InitiatorTeamID:  req.TeamID,
		RecipientName:    req.RecipientName,
		RecipientContact: req.RecipientContact,
		ContactType:      req.ContactType,
		RecipientTeamID:  req.RecipientTeamID,
		Lineup:           req.Lineup,
		SavedLineupName:  req.SavedLineupName,
		Subject:          req.Subject,
		MessageBody:      req.MessageBody,
		TTL:              time.Duration(req.TTLSeconds) * time.Second,
		IdempotencyKey:   idempotencyKey,
	})
	if err != nil {
		logger.Error("create session request failed",
			"event", "http_create_session_failed",
			"module", "match-operations/lineup-escrow-service",
			"layer", "transport",
			"error", err.Error(),
		)
		return httptransport.CreateSessionResponse{}, err
	}

	return httptransport.CreateSessionResponse{
		EscrowID:  result.Session.EscrowID,
		Status:    string(result.Session.Status),
		ShareURL:  result.ShareURL,
		ExpiresAt: result.Session.ExpiresAt.UTC().Format(timeLayout),
		Replayed:  result.Replayed,
	}, nil
}

// FetchExchangeHandler godoc
// @Summary Fetch a session by share token
// @Description Returns the token holder's view of the session and records the access.
// @Tags lineup-escrow
// @Accept json
// @Produce json
// @Param token path string true "Share token"
// @Param X-Forwarded-For header string false "Client IP"
// @Success 200 {object} httptransport.ExchangeResponse
// @Failure 404 {object} httptransport.ErrorResponse
// @Failure 500 {object} httptransport.ErrorResponse
// @Router /escrow/exchange/{token} [get]
func (h Handler) FetchExchangeHandler(ctx context.Context, token string, ipAddress string) (httptransport.ExchangeResponse, error) {
	result, err := h.FetchByToken.Execute(ctx, queries.FetchByTokenQuery{
		Token:     token,
		IPAddress: ipAddress,
	})
	if err != nil {
		return httptransport.ExchangeResponse{}, err
	}
	return httptransport.ExchangeResponse{
		Item: mapProjection(result.Projection),
	}, nil
}

// SubmitLineupHandler godoc
// @Summary Submit the responding lineup
// @Description Completes the exchange; on success both lineups are revealed.
// @Tags lineup-escrow
// @Accept json
// @Produce json
// @Param token path string true "Share token"
// @Param X-Forwarded-For header string false "Client IP"
// @Param request body httptransport.SubmitLineupRequest true "Lineup payload"
// @Success 200 {object} httptransport.SubmitLineupResponse
// @Failure 404 {object} httptransport.ErrorResponse
// @Failure 409 {object} httptransport.ErrorResponse
// @Failure 410 {object} httptransport.ErrorResponse
// @Failure 422 {object} httptransport.ErrorResponse
// @Failure 500 {object} httptransport.ErrorResponse
// @Router /escrow/exchange/{token}/submit [post]
func (h Handler) SubmitLineupHandler(
	ctx context.Context,
	token string,
	req httptransport.SubmitLineupRequest,
	ipAddress string,
) (httptransport.SubmitLineupResponse, error) {
	logger := application.ResolveLogger(h.Logger)
	logger.Info("submit lineup request received",
		"event", "http_submit_lineup_received",
		"module", "match-operations/lineup-escrow-service",
		"layer", "transport",
	)

	result, err := h.SubmitLineup.Execute(ctx, commands.SubmitLineupCommand{
		Token:     token,
		Lineup:    req.Lineup,
		IPAddress: ipAddress,
	})
	if err != nil {
		return httptransport.SubmitLineupResponse{}, err
	}
	return httptransport.SubmitLineupResponse{
		Item: mapProjection(result.Projection),
	}, nil
}

// GetSessionHandler godoc
// @Summary Get session details
// @Description Returns the caller's view of one session; parties and linked-team members only.
// @Tags lineup-escrow
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param X-User-Id header string true "Authenticated user id"
// @Param X-Team-Ids header string false "Comma-separated team memberships"
// @Param escrow_id path string true "Session id"
// @Success 200 {object} httptransport.GetSessionResponse
// @Failure 403 {object} httptransport.ErrorResponse
// @Failure 404 {object} httptransport.ErrorResponse
// @Failure 500 {object} httptransport.ErrorResponse
// @Router /escrow/sessions/{escrow_id} [get]
func (h Handler) GetSessionHandler(
	ctx context.Context,
	escrowID string,
	userID string,
	teamIDs []string,
	ipAddress string,
) (httptransport.GetSessionResponse, error) {
	result, err := h.GetSession.Execute(ctx, queries.GetSessionQuery{
		EscrowID: escrowID,
		Viewer: services.ViewerIdentity{
			UserID:    userID,
			TeamIDs:   teamIDs,
			IPAddress: ipAddress,
		},
	})
	if err != nil {
		return httptransport.GetSessionResponse{}, err
	}
	return httptransport.GetSessionResponse{
		Item: mapProjection(result.Projection),
	}, nil
}

// CancelSessionHandler godoc
// @Summary Cancel a pending session
// @Description Withdraws a pending exchange; initiator only.
// @Tags lineup-escrow
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param X-User-Id header string true "Authenticated user id"
// @Param escrow_id path string true "Session id"
// @Success 200 {object} httptransport.CancelSessionResponse
// @Failure 403 {object} httptransport.ErrorResponse
// @Failure 404 {object} httptransport.ErrorResponse
// @Failure 409 {object} httptransport.ErrorResponse
// @Failure 410 {object} httptransport.ErrorResponse
// @Failure 500 {object} httptransport.ErrorResponse
// @Router /escrow/sessions/{escrow_id}/cancel [post]
func (h Handler) CancelSessionHandler(ctx context.Context, escrowID string, userID string) (httptransport.CancelSessionResponse, error) {
	result, err := h.CancelSession.Execute(ctx, commands.CancelSessionCommand{
		EscrowID: escrowID,
		UserID:   userID,
	})
	if err != nil {
		return httptransport.CancelSessionResponse{}, err
	}
	return httptransport.CancelSessionResponse{
		EscrowID: result.Session.EscrowID,
		Status:   string(result.Session.Status),
	}, nil
}

// ListTeamSessionsHandler godoc
// @Summary List a team's sessions
// @Description Returns metadata-only session listings for team members.
// @Tags lineup-escrow
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param X-User-Id header string true "Authenticated user id"
// @Param X-Team-Ids header string false "Comma-separated team memberships"
// @Param team_id path string true "Team id"
// @Param cursor query string false "Cursor token"
// @Param limit query int false "Page size (max 50)"
// @Success 200 {object} httptransport.ListSessionsResponse
// @Failure 403 {object} httptransport.ErrorResponse
// @Failure 500 {object} httptransport.ErrorResponse
// @Router /escrow/teams/{team_id}/sessions [get]
func (h Handler) ListTeamSessionsHandler(
	ctx context.Context,
	teamID string,
	userID string,
	teamIDs []string,
	cursor string,
	limit int,
) (httptransport.ListSessionsResponse, error) {
	result, err := h.ListTeamSessions.Execute(ctx, queries.ListTeamSessionsQuery{
		TeamID: teamID,
		Viewer: services.ViewerIdentity{
			UserID:  userID,
			TeamIDs: teamIDs,
		},
		Cursor: cursor,
		Limit:  limit,
	})
	if err != nil {
		return httptransport.ListSessionsResponse{}, err
	}

	items := make([]httptransport.SessionDTO, 0, len(result.Items))
	for _, projection := range result.Items {
		items = append(items, mapProjection(projection))
	}
	return httptransport.ListSessionsResponse{
		Items:      items,
		NextCursor: result.NextCursor,
	}, nil
}

// ListViewsHandler godoc
// @Summary List a session's access audit trail
// @Description Returns every recorded view of the session; initiator only.
// @Tags lineup-escrow
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param X-User-Id header string true "Authenticated user id"
// @Param escrow_id path string true "Session id"
// @Success 200 {object} httptransport.ListViewsResponse
// @Failure 403 {object} httptransport.ErrorResponse
// @Failure 404 {object} httptransport.ErrorResponse
// @Failure 500 {object} httptransport.ErrorResponse
// @Router /escrow/sessions/{escrow_id}/views [get]
func (h Handler) ListViewsHandler(ctx context.Context, escrowID string, userID string) (httptransport.ListViewsResponse, error) {
	result, err := h.ListViews.Execute(ctx, queries.ListViewsQuery{
		EscrowID: escrowID,
		UserID:   userID,
	})
	if err != nil {
		return httptransport.ListViewsResponse{}, err
	}

	items := make([]httptransport.ViewDTO, 0, len(result.Items))
	for _, view := range result.Items {
		items = append(items, httptransport.ViewDTO{
			ViewID:        view.ViewID,
			ViewerUserID:  view.ViewerUserID,
			ViewerContact: view.ViewerContact,
			ViewedAt:      view.ViewedAt.UTC().Format(timeLayout),
			IPAddress:     view.IPAddress,
		})
	}
	return httptransport.ListViewsResponse{Items: items}, nil
}

// SaveLineupHandler godoc
// @Summary Save a reusable lineup template
// @Description Stores or replaces the caller's named lineup for a team.
// @Tags lineup-escrow
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param X-User-Id header string true "Authenticated user id"
// @Param request body httptransport.SaveLineupRequest true "Lineup template payload"
// @Success 200 {object} httptransport.SaveLineupResponse
// @Failure 422 {object} httptransport.ErrorResponse
// @Failure 500 {object} httptransport.ErrorResponse
// @Router /escrow/lineups [put]
func (h Handler) SaveLineupHandler(ctx context.Context, userID string, req httptransport.SaveLineupRequest) (httptransport.SaveLineupResponse, error) {
	result, err := h.SaveLineup.Execute(ctx, commands.SaveLineupCommand{
		UserID: userID,
		TeamID: req.TeamID,
		Name:   req.Name,
		Lineup: req.Lineup,
	})
	if err != nil {
		return httptransport.SaveLineupResponse{}, err
	}
	return httptransport.SaveLineupResponse{
		Item: mapSavedLineup(result.SavedLineup),
	}, nil
}

// ListSavedLineupsHandler godoc
// @Summary List saved lineup templates
// @Description Returns the caller's active lineup templates for one team.
// @Tags lineup-escrow
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param X-User-Id header string true "Authenticated user id"
// @Param team_id query string true "Team id"
// @Success 200 {object} httptransport.ListSavedLineupsResponse
// @Failure 422 {object} httptransport.ErrorResponse
// @Failure 500 {object} httptransport.ErrorResponse
// @Router /escrow/lineups [get]
func (h Handler) ListSavedLineupsHandler(ctx context.Context, userID string, teamID string) (httptransport.ListSavedLineupsResponse, error) {
	result, err := h.ListSavedLineups.Execute(ctx, queries.ListSavedLineupsQuery{
		UserID: userID,
		TeamID: teamID,
	})
	if err != nil {
		return httptransport.ListSavedLineupsResponse{}, err
	}

	items := make([]httptransport.SavedLineupDTO, 0, len(result.Items))
	for _, saved := range result.Items {
		items = append(items, mapSavedLineup(saved))
	}
	return httptransport.ListSavedLineupsResponse{Items: items}, nil
}

func mapProjection(projection services.SessionProjection) httptransport.SessionDTO {
	dto := httptransport.SessionDTO{
		EscrowID:             projection.EscrowID,
		Status:               string(projection.Status),
		Subject:              projection.Subject,
		MessageBody:          projection.MessageBody,
		RecipientName:        projection.RecipientName,
		ContactType:          string(projection.ContactType),
		RecipientContact:     projection.RecipientContact,
		InitiatorTeamID:      projection.InitiatorTeamID,
		RecipientTeamID:      projection.RecipientTeamID,
		CreatedAt:            projection.CreatedAt.UTC().Format(timeLayout),
		ExpiresAt:            projection.ExpiresAt.UTC().Format(timeLayout),
		InitiatorSubmittedAt: projection.InitiatorSubmittedAt.UTC().Format(timeLayout),
		InitiatorLineup:      projection.InitiatorLineup,
		RecipientLineup:      projection.RecipientLineup,
	}
	if projection.RecipientSubmittedAt != nil {
		dto.RecipientSubmittedAt = projection.RecipientSubmittedAt.UTC().Format(timeLayout)
	}
	return dto
}

func mapSavedLineup(saved entities.SavedLineup) httptransport.SavedLineupDTO {
	return httptransport.SavedLineupDTO{
		Name:      saved.Name,
		TeamID:    saved.TeamID,
		Lineup:    saved.LineupData,
		UpdatedAt: saved.UpdatedAt.UTC().Format(timeLayout),
	}
}
