package commands

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"time"

	application "github.com/rossfreedman/rally-sub012/contexts/match-operations/lineup-escrow-service/application"
	"github.com/rossfreedman/rally-sub012/contexts/match-operations/lineup-escrow-service/domain/entities"
	domainerrors "github.com/rossfreedman/rally-sub012/contexts/match-operations/lineup-escrow-service/domain/errors"
	"github.com/rossfreedman/rally-sub012/contexts/match-operations/lineup-escrow-service/ports"
)

type CreateSessionCommand struct {
	InitiatorUserID  string
	InitiatorTeamID  string
	RecipientName    string
	RecipientContact string
	ContactType      string
	RecipientTeamID  string
	Lineup           []string
	SavedLineupName  string
	Subject          string
	MessageBody      string
	TTL              time.Duration
	IdempotencyKey   string
}

type CreateSessionResult struct {
	Session  entities.EscrowSession
	ShareURL string
	Created  bool
	Replayed bool
}

type CreateSessionUseCase struct {
	Sessions       ports.SessionRepository
	SavedLineups   ports.SavedLineupRepository
	Idempotency    ports.IdempotencyStore
	Tokens         ports.TokenIssuer
	Clock          ports.Clock
	IDGenerator    ports.IDGenerator
	SessionTTL     time.Duration
	IdempotencyTTL time.Duration
	PublicBaseURL  string
	Logger         *slog.Logger
}

// Execute runs the creation workflow in this order:
// 1) idempotency lookup/replay (only when the caller sent a key)
// 2) lineup resolution (inline payload or saved template)
// 3) token mint + domain validation
// 4) atomic session + outbox persistence
// 5) idempotency record write.
func (u CreateSessionUseCase) Execute(ctx context.Context, cmd CreateSessionCommand) (CreateSessionResult, error) {
	logger := application.ResolveLogger(u.Logger)
	now := u.now()

	logger.Info("create session started",
		"event", "create_session_started",
		"module", "match-operations/lineup-escrow-service",
		"layer", "application",
		"initiator_user_id", cmd.InitiatorUserID,
		"initiator_team_id", cmd.InitiatorTeamID,
	)

	idempotencyKey := strings.TrimSpace(cmd.IdempotencyKey)
	requestHash := hashCreateRequest(cmd)
	if idempotencyKey != "" {
		record, found, err := u.Idempotency.Get(ctx, idempotencyKey, now)
		if err != nil {
			logger.Error("idempotency get failed",
				"event", "create_session_idempotency_get_failed",
				"module", "match-operations/lineup-escrow-service",
				"layer", "application",
				"initiator_user_id", cmd.InitiatorUserID,
				"error", err.Error(),
			)
			return CreateSessionResult{}, err
		}
		if found {
			// A reused idempotency key must map to an identical request payload.
			if record.RequestHash != requestHash {
				logger.Warn("idempotency key conflict",
					"event", "create_session_idempotency_conflict",
					"module", "match-operations/lineup-escrow-service",
					"layer", "application",
					"initiator_user_id", cmd.InitiatorUserID,
				)
				return CreateSessionResult{}, domainerrors.ErrIdempotencyKeyConflict
			}
			session, err := u.Sessions.GetSession(ctx, record.EscrowID)
			if err != nil {
				logger.Error("idempotency replay failed to load session",
					"event", "create_session_idempotency_replay_load_failed",
					"module", "match-operations/lineup-escrow-service",
					"layer", "application",
					"session_id", record.EscrowID,
					"error", err.Error(),
				)
				return CreateSessionResult{}, err
			}
			logger.Info("create session replayed from idempotency",
				"event", "create_session_replayed",
				"module", "match-operations/lineup-escrow-service",
				"layer", "application",
				"session_id", session.EscrowID,
			)
			return CreateSessionResult{
				Session:  session,
				ShareURL: application.ShareURL(u.PublicBaseURL, session.Token),
				Replayed: true,
			}, nil
		}
	}

	lineup, err := u.resolveLineup(ctx, cmd)
	if err != nil {
		logger.Warn("create session rejected",
			"event", "create_session_rejected",
			"module", "match-operations/lineup-escrow-service",
			"layer", "application",
			"initiator_user_id", cmd.InitiatorUserID,
			"error", err.Error(),
		)
		return CreateSessionResult{}, err
	}

	contactType, err := entities.ParseContactType(cmd.ContactType)
	if err != nil {
		return CreateSessionResult{}, err
	}

	ttl := cmd.TTL
	if ttl < 0 {
		return CreateSessionResult{}, fmt.Errorf("%w: ttl must not be negative", domainerrors.ErrValidation)
	}
	if ttl == 0 {
		ttl = u.sessionTTL()
	}

	escrowID, err := u.IDGenerator.NewID(ctx)
	if err != nil {
		return CreateSessionResult{}, err
	}
	token, err := u.Tokens.MintToken(ctx)
	if err != nil {
		logger.Error("token mint failed",
			"event", "create_session_token_mint_failed",
			"module", "match-operations/lineup-escrow-service",
			"layer", "application",
			"error", err.Error(),
		)
		return CreateSessionResult{}, err
	}

	session, err := entities.NewEscrowSession(entities.NewSessionInput{
		EscrowID:         escrowID,
		Token:            token,
		InitiatorUserID:  cmd.InitiatorUserID,
		InitiatorTeamID:  cmd.InitiatorTeamID,
		InitiatorLineup:  lineup,
		RecipientName:    cmd.RecipientName,
		RecipientContact: cmd.RecipientContact,
		ContactType:      contactType,
		RecipientTeamID:  cmd.RecipientTeamID,
		Subject:          cmd.Subject,
		MessageBody:      cmd.MessageBody,
		CreatedAt:        now,
		ExpiresAt:        now.Add(ttl),
	})
	if err != nil {
		logger.Warn("create session rejected",
			"event", "create_session_rejected",
			"module", "match-operations/lineup-escrow-service",
			"layer", "application",
			"initiator_user_id", cmd.InitiatorUserID,
			"error", err.Error(),
		)
		return CreateSessionResult{}, err
	}

	eventID, err := u.IDGenerator.NewID(ctx)
	if err != nil {
		return CreateSessionResult{}, err
	}
	event := application.NewSessionEvent(eventID, application.SessionCreatedEventType, entities.SessionStatusPending, session, now)

	// Session row and escrow.created outbox message are committed together by
	// the repository adapter.
	if err := u.Sessions.CreateSessionWithOutbox(ctx, session, event); err != nil {
		logger.Error("create session failed on write transaction",
			"event", "create_session_write_failed",
			"module", "match-operations/lineup-escrow-service",
			"layer", "application",
			"session_id", session.EscrowID,
			"error", err.Error(),
		)
		return CreateSessionResult{}, err
	}

	if idempotencyKey != "" {
		if err := u.Idempotency.Put(ctx, ports.IdempotencyRecord{
			Key:         idempotencyKey,
			RequestHash: requestHash,
			EscrowID:    session.EscrowID,
			ExpiresAt:   now.Add(u.idempotencyTTL()),
		}); err != nil {
			return CreateSessionResult{}, err
		}
	}

	logger.Info("create session completed",
		"event", "lineup_escrow_session_created",
		"module", "match-operations/lineup-escrow-service",
		"layer", "application",
		"session_id", session.EscrowID,
		"initiator_user_id", session.InitiatorUserID,
		"initiator_team_id", session.InitiatorTeamID,
		"recipient_team_id", session.RecipientTeamID,
		"contact_type", session.ContactType,
		"expires_at", session.ExpiresAt,
	)

	return CreateSessionResult{
		Session:  session,
		ShareURL: application.ShareURL(u.PublicBaseURL, session.Token),
		Created:  true,
	}, nil
}

// resolveLineup prefers the inline payload; a saved template name is only
// consulted when no inline lineup was sent.
func (u CreateSessionUseCase) resolveLineup(ctx context.Context, cmd CreateSessionCommand) ([]string, error) {
	savedName := strings.TrimSpace(cmd.SavedLineupName)
	if len(cmd.Lineup) > 0 {
		if savedName != "" {
			return nil, fmt.Errorf("%w: provide either a lineup or a saved lineup name, not both", domainerrors.ErrValidation)
		}
		return cmd.Lineup, nil
	}
	if savedName == "" {
		return nil, fmt.Errorf("%w: a lineup or a saved lineup name is required", domainerrors.ErrValidation)
	}
	saved, err := u.SavedLineups.GetSavedLineup(ctx, cmd.InitiatorUserID, cmd.InitiatorTeamID, savedName)
	if err != nil {
		return nil, err
	}
	return saved.LineupData, nil
}

func (u CreateSessionUseCase) sessionTTL() time.Duration {
	if u.SessionTTL <= 0 {
		return 48 * time.Hour
	}
	return u.SessionTTL
}

func (u CreateSessionUseCase) idempotencyTTL() time.Duration {
	if u.IdempotencyTTL <= 0 {
		return 7 * 24 * time.Hour
	}
	return u.IdempotencyTTL
}

func (u CreateSessionUseCase) now() time.Time {
	if u.Clock == nil {
		return time.Now().UTC()
	}
	return u.Clock.Now().UTC()
}

func hashCreateRequest(cmd CreateSessionCommand) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s|%s|%s|%s|%s|%d",
		cmd.InitiatorUserID,
		cmd.InitiatorTeamID,
		cmd.RecipientContact,
		cmd.ContactType,
		cmd.RecipientTeamID,
		strings.Join(cmd.Lineup, ","),
		cmd.SavedLineupName,
		cmd.TTL,
	)))
	return hex.EncodeToString(sum[:])
}
