package postgresadapter

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/rossfreedman/rally-sub012/contexts/match-operations/lineup-escrow-service/domain/entities"
	domainerrors "github.com/rossfreedman/rally-sub012/contexts/match-operations/lineup-escrow-service/domain/errors"
	"github.com/rossfreedman/rally-sub012/contexts/match-operations/lineup-escrow-service/ports"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	outboxStatusPending = "pending"
	outboxStatusSent    = "sent"
)

type Repository struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewRepository(db *gorm.DB, logger *slog.Logger) *Repository {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{
		db:     db,
		logger: logger,
	}
}

func (r *Repository) GetSessionByToken(ctx context.Context, token string) (entities.EscrowSession, error) {
	var row sessionModel
	err := r.db.WithContext(ctx).
		Where("token = ?", token).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.EscrowSession{}, domainerrors.ErrInvalidToken
		}
		return entities.EscrowSession{}, err
	}
	return row.toEntity()
}

func (r *Repository) GetSession(ctx context.Context, escrowID string) (entities.EscrowSession, error) {
	var row sessionModel
	err := r.db.WithContext(ctx).
		Where("escrow_id = ?", escrowID).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.EscrowSession{}, domainerrors.ErrSessionNotFound
		}
		return entities.EscrowSession{}, err
	}
	return row.toEntity()
}

func (r *Repository) ListSessionsByTeam(ctx context.Context, filter ports.SessionListFilter) ([]entities.EscrowSession, string, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := decodeCursor(filter.Cursor)
	if offset < 0 {
		offset = 0
	}

	var rows []sessionModel
	err := r.db.WithContext(ctx).
		Where("initiator_team_id = ? OR recipient_team_id = ?", filter.TeamID, filter.TeamID).
		Order(clause.OrderByColumn{Column: clause.Column{Name: "created_at"}, Desc: true}).
		Order(clause.OrderByColumn{Column: clause.Column{Name: "escrow_id"}, Desc: false}).
		Offset(offset).
		Limit(limit + 1).
		Find(&rows).
		Error
	if err != nil {
		return nil, "", err
	}

	nextCursor := ""
	if len(rows) > limit {
		nextCursor = encodeCursor(offset + limit)
		rows = rows[:limit]
	}

	items := make([]entities.EscrowSession, 0, len(rows))
	for _, row := range rows {
		session, err := row.toEntity()
		if err != nil {
			return nil, "", err
		}
		items = append(items, session)
	}
	return items, nextCursor, nil
}

func (r *Repository) CreateSessionWithOutbox(ctx context.Context, session entities.EscrowSession, event ports.EscrowEvent) error {
	payload, err := marshalEnvelope(event)
	if err != nil {
		return err
	}
	row, err := sessionModelFromEntity(session)
	if err != nil {
		return err
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&row).Error; err != nil {
			// Token and id collisions are repository bugs, not caller input.
			if isUniqueViolation(err) {
				return domainerrors.ErrRepositoryInvariantBroke
			}
			return err
		}
		return createOutboxRow(tx, event, payload)
	})
}

// CompleteSession is the single-resolution write: the UPDATE applies only
// while the row is still pending, unsubmitted, and inside its deadline, so
// concurrent submissions collapse to exactly one winner.
func (r *Repository) CompleteSession(
	ctx context.Context,
	escrowID string,
	lineup entities.Lineup,
	submittedAt time.Time,
	event ports.EscrowEvent,
) (entities.EscrowSession, error) {
	payload, err := marshalEnvelope(event)
	if err != nil {
		return entities.EscrowSession{}, err
	}
	lineupJSON, err := json.Marshal(lineup)
	if err != nil {
		return entities.EscrowSession{}, err
	}

	at := submittedAt.UTC()
	var updated entities.EscrowSession
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&sessionModel{}).
			Where("escrow_id = ? AND status = ? AND recipient_lineup IS NULL AND expires_at > ?",
				escrowID, string(entities.SessionStatusPending), at).
			Updates(map[string]any{
				"status":                 string(entities.SessionStatusCompleted),
				"recipient_lineup":       lineupJSON,
				"recipient_submitted_at": at,
				"updated_at":             at,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return r.classifyLostRace(tx, escrowID, at)
		}
		if err := createOutboxRow(tx, event, payload); err != nil {
			return err
		}

		var row sessionModel
		if err := tx.Where("escrow_id = ?", escrowID).First(&row).Error; err != nil {
			return err
		}
		updated, err = row.toEntity()
		return err
	})
	if err != nil {
		return entities.EscrowSession{}, err
	}
	return updated, nil
}

func (r *Repository) CancelSession(
	ctx context.Context,
	escrowID string,
	cancelledAt time.Time,
	event ports.EscrowEvent,
) (entities.EscrowSession, error) {
	payload, err := marshalEnvelope(event)
	if err != nil {
		return entities.EscrowSession{}, err
	}

	at := cancelledAt.UTC()
	var updated entities.EscrowSession
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&sessionModel{}).
			Where("escrow_id = ? AND status = ? AND expires_at > ?",
				escrowID, string(entities.SessionStatusPending), at).
			Updates(map[string]any{
				"status":     string(entities.SessionStatusCancelled),
				"updated_at": at,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return r.classifyLostRace(tx, escrowID, at)
		}
		if err := createOutboxRow(tx, event, payload); err != nil {
			return err
		}

		var row sessionModel
		if err := tx.Where("escrow_id = ?", escrowID).First(&row).Error; err != nil {
			return err
		}
		updated, err = row.toEntity()
		return err
	})
	if err != nil {
		return entities.EscrowSession{}, err
	}
	return updated, nil
}

func (r *Repository) ExpireSession(
	ctx context.Context,
	escrowID string,
	expiredAt time.Time,
	event ports.EscrowEvent,
) (bool, error) {
	payload, err := marshalEnvelope(event)
	if err != nil {
		return false, err
	}

	at := expiredAt.UTC()
	applied := false
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&sessionModel{}).
			Where("escrow_id = ? AND status = ? AND expires_at <= ?",
				escrowID, string(entities.SessionStatusPending), at).
			Updates(map[string]any{
				"status":     string(entities.SessionStatusExpired),
				"updated_at": at,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return nil
		}
		applied = true
		return createOutboxRow(tx, event, payload)
	})
	if err != nil {
		return false, err
	}
	return applied, nil
}

func (r *Repository) ListOverdueSessions(ctx context.Context, now time.Time, limit int) ([]entities.EscrowSession, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []sessionModel
	err := r.db.WithContext(ctx).
		Where("status = ? AND expires_at <= ?", string(entities.SessionStatusPending), now.UTC()).
		Order("expires_at ASC").
		Limit(limit).
		Find(&rows).
		Error
	if err != nil {
		return nil, err
	}
	return rowsToEntities(rows)
}

func (r *Repository) ListNotificationDue(ctx context.Context, now time.Time, limit int) ([]entities.EscrowSession, error) {
	if limit <= 0 {
		limit = 100
	}
	at := now.UTC()
	var rows []sessionModel
	err := r.db.WithContext(ctx).
		Where(
			"(status = ? AND recipient_notified = FALSE AND expires_at > ?)"+
				" OR (status = ? AND (initiator_notified = FALSE OR recipient_notified = FALSE))"+
				" OR (status = ? AND initiator_notified = FALSE)",
			string(entities.SessionStatusPending), at,
			string(entities.SessionStatusCompleted),
			string(entities.SessionStatusExpired),
		).
		Order("updated_at ASC").
		Limit(limit).
		Find(&rows).
		Error
	if err != nil {
		return nil, err
	}
	return rowsToEntities(rows)
}

func (r *Repository) MarkNotified(ctx context.Context, escrowID string, party entities.Party, notifiedAt time.Time) (bool, error) {
	var column string
	switch party {
	case entities.PartyInitiator:
		column = "initiator_notified"
	case entities.PartyRecipient:
		column = "recipient_notified"
	default:
		return false, domainerrors.ErrRepositoryInvariantBroke
	}

	result := r.db.WithContext(ctx).
		Model(&sessionModel{}).
		Where("escrow_id = ? AND "+column+" = FALSE", escrowID).
		Updates(map[string]any{
			column:       true,
			"updated_at": notifiedAt.UTC(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	if result.RowsAffected > 0 {
		return true, nil
	}

	var row sessionModel
	if err := r.db.WithContext(ctx).
		Select("escrow_id").
		Where("escrow_id = ?", escrowID).
		First(&row).
		Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, domainerrors.ErrSessionNotFound
		}
		return false, err
	}
	return false, nil
}

func (r *Repository) RecordView(ctx context.Context, view entities.EscrowView) error {
	row := viewModelFromEntity(view)
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		if isUniqueViolation(err) {
			return domainerrors.ErrRepositoryInvariantBroke
		}
		return err
	}
	return nil
}

func (r *Repository) ListViews(ctx context.Context, escrowID string) ([]entities.EscrowView, error) {
	var rows []viewModel
	if err := r.db.WithContext(ctx).
		Where("escrow_id = ?", escrowID).
		Order("viewed_at ASC").
		Find(&rows).
		Error; err != nil {
		return nil, err
	}
	items := make([]entities.EscrowView, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.toEntity())
	}
	return items, nil
}

func (r *Repository) UpsertSavedLineup(ctx context.Context, lineup entities.SavedLineup) error {
	row, err := savedLineupModelFromEntity(lineup)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "user_id"},
				{Name: "team_id"},
				{Name: "name"},
			},
			DoUpdates: clause.AssignmentColumns([]string{"lineup_data", "is_active", "updated_at"}),
		}).
		Create(&row).
		Error
}

func (r *Repository) GetSavedLineup(ctx context.Context, userID, teamID, name string) (entities.SavedLineup, error) {
	var row savedLineupModel
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND team_id = ? AND name = ? AND is_active = TRUE", userID, teamID, name).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.SavedLineup{}, domainerrors.ErrSavedLineupNotFound
		}
		return entities.SavedLineup{}, err
	}
	return row.toEntity()
}

func (r *Repository) ListSavedLineups(ctx context.Context, userID, teamID string) ([]entities.SavedLineup, error) {
	var rows []savedLineupModel
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND team_id = ? AND is_active = TRUE", userID, teamID).
		Order("name ASC").
		Find(&rows).
		Error; err != nil {
		return nil, err
	}
	items := make([]entities.SavedLineup, 0, len(rows))
	for _, row := range rows {
		saved, err := row.toEntity()
		if err != nil {
			return nil, err
		}
		items = append(items, saved)
	}
	return items, nil
}

func (r *Repository) Get(ctx context.Context, key string, now time.Time) (ports.IdempotencyRecord, bool, error) {
	var row idempotencyModel
	err := r.db.WithContext(ctx).
		Where("key = ?", key).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ports.IdempotencyRecord{}, false, nil
		}
		return ports.IdempotencyRecord{}, false, err
	}

	if !row.ExpiresAt.IsZero() && now.UTC().After(row.ExpiresAt.UTC()) {
		if err := r.db.WithContext(ctx).
			Where("key = ?", key).
			Delete(&idempotencyModel{}).
			Error; err != nil {
			return ports.IdempotencyRecord{}, false, err
		}
		return ports.IdempotencyRecord{}, false, nil
	}

	return row.toPort(), true, nil
}

func (r *Repository) Put(ctx context.Context, record ports.IdempotencyRecord) error {
	row := idempotencyModelFromPort(record)
	createResult := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoNothing: true,
		}).
		Create(&row)
	if createResult.Error != nil {
		return createResult.Error
	}
	if createResult.RowsAffected > 0 {
		return nil
	}

	var existing idempotencyModel
	if err := r.db.WithContext(ctx).
		Where("key = ?", record.Key).
		First(&existing).
		Error; err != nil {
		return err
	}
	if existing.RequestHash != record.RequestHash {
		return domainerrors.ErrIdempotencyKeyConflict
	}
	return nil
}

func (r *Repository) ListPendingOutbox(ctx context.Context, limit int) ([]ports.OutboxMessage, error) {
	if limit <= 0 {
		limit = 100
	}

	var rows []outboxModel
	if err := r.db.WithContext(ctx).
		Where("status = ?", outboxStatusPending).
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).
		Error; err != nil {
		return nil, err
	}

	items := make([]ports.OutboxMessage, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.toPort())
	}
	return items, nil
}

func (r *Repository) MarkOutboxSent(ctx context.Context, outboxID string, sentAt time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&outboxModel{}).
		Where("outbox_id = ?", outboxID).
		Updates(map[string]any{
			"status":  outboxStatusSent,
			"sent_at": sentAt.UTC(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domainerrors.ErrRepositoryInvariantBroke
	}
	return nil
}

// classifyLostRace reloads a row whose conditional update matched nothing
// and maps its state to the error the losing writer should see.
func (r *Repository) classifyLostRace(tx *gorm.DB, escrowID string, now time.Time) error {
	var row sessionModel
	if err := tx.Where("escrow_id = ?", escrowID).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domainerrors.ErrSessionNotFound
		}
		return err
	}
	switch entities.SessionStatus(row.Status) {
	case entities.SessionStatusCompleted:
		return domainerrors.ErrAlreadySubmitted
	case entities.SessionStatusCancelled:
		return domainerrors.ErrAlreadyCancelled
	case entities.SessionStatusExpired:
		return domainerrors.ErrExpired
	case entities.SessionStatusPending:
		// Still pending means the deadline condition failed.
		if !now.Before(row.ExpiresAt.UTC()) {
			return domainerrors.ErrExpired
		}
		return domainerrors.ErrRepositoryInvariantBroke
	default:
		return domainerrors.ErrRepositoryInvariantBroke
	}
}

type sessionModel struct {
	EscrowID             string     `gorm:"column:escrow_id;primaryKey"`
	Token                string     `gorm:"column:token"`
	InitiatorUserID      string     `gorm:"column:initiator_user_id"`
	InitiatorTeamID      string     `gorm:"column:initiator_team_id"`
	RecipientName        string     `gorm:"column:recipient_name"`
	RecipientContact     string     `gorm:"column:recipient_contact"`
	ContactType          string     `gorm:"column:contact_type"`
	RecipientTeamID      string     `gorm:"column:recipient_team_id"`
	InitiatorLineup      []byte     `gorm:"column:initiator_lineup"`
	RecipientLineup      []byte     `gorm:"column:recipient_lineup"`
	Status               string     `gorm:"column:status"`
	CreatedAt            time.Time  `gorm:"column:created_at"`
	InitiatorSubmittedAt time.Time  `gorm:"column:initiator_submitted_at"`
	RecipientSubmittedAt *time.Time `gorm:"column:recipient_submitted_at"`
	ExpiresAt            time.Time  `gorm:"column:expires_at"`
	Subject              string     `gorm:"column:subject"`
	MessageBody          string     `gorm:"column:message_body"`
	InitiatorNotified    bool       `gorm:"column:initiator_notified"`
	RecipientNotified    bool       `gorm:"column:recipient_notified"`
	UpdatedAt            time.Time  `gorm:"column:updated_at"`
}

func (sessionModel) TableName() string {
	return "escrow_sessions"
}

func sessionModelFromEntity(session entities.EscrowSession) (sessionModel, error) {
	initiatorLineup, err := json.Marshal(session.InitiatorLineup)
	if err != nil {
		return sessionModel{}, err
	}
	var recipientLineup []byte
	if session.RecipientLineup != nil {
		recipientLineup, err = json.Marshal(session.RecipientLineup)
		if err != nil {
			return sessionModel{}, err
		}
	}
	var recipientSubmittedAt *time.Time
	if session.RecipientSubmittedAt != nil {
		at := session.RecipientSubmittedAt.UTC()
		recipientSubmittedAt = &at
	}
	return sessionModel{
		EscrowID:             session.EscrowID,
		Token:                session.Token,
		InitiatorUserID:      session.InitiatorUserID,
		InitiatorTeamID:      session.InitiatorTeamID,
		RecipientName:        session.RecipientName,
		RecipientContact:     session.RecipientContact,
		ContactType:          string(session.ContactType),
		RecipientTeamID:      session.RecipientTeamID,
		InitiatorLineup:      initiatorLineup,
		RecipientLineup:      recipientLineup,
		Status:               string(session.Status),
		CreatedAt:            session.CreatedAt.UTC(),
		InitiatorSubmittedAt: session.InitiatorSubmittedAt.UTC(),
		RecipientSubmittedAt: recipientSubmittedAt,
		ExpiresAt:            session.ExpiresAt.UTC(),
		Subject:              session.Subject,
		MessageBody:          session.MessageBody,
		InitiatorNotified:    session.InitiatorNotified,
		RecipientNotified:    session.RecipientNotified,
		UpdatedAt:            session.UpdatedAt.UTC(),
	}, nil
}

func (m sessionModel) toEntity() (entities.EscrowSession, error) {
	var initiatorLineup entities.Lineup
	if len(m.InitiatorLineup) > 0 {
		if err := json.Unmarshal(m.InitiatorLineup, &initiatorLineup); err != nil {
			return entities.EscrowSession{}, err
		}
	}
	var recipientLineup entities.Lineup
	if len(m.RecipientLineup) > 0 {
		if err := json.Unmarshal(m.RecipientLineup, &recipientLineup); err != nil {
			return entities.EscrowSession{}, err
		}
	}
	var recipientSubmittedAt *time.Time
	if m.RecipientSubmittedAt != nil {
		at := m.RecipientSubmittedAt.UTC()
		recipientSubmittedAt = &at
	}
	return entities.EscrowSession{
		EscrowID:             m.EscrowID,
		Token:                m.Token,
		InitiatorUserID:      m.InitiatorUserID,
		InitiatorTeamID:      m.InitiatorTeamID,
		RecipientName:        m.RecipientName,
		RecipientContact:     m.RecipientContact,
		ContactType:          entities.ContactType(m.ContactType),
		RecipientTeamID:      m.RecipientTeamID,
		InitiatorLineup:      initiatorLineup,
		RecipientLineup:      recipientLineup,
		Status:               entities.SessionStatus(m.Status),
		CreatedAt:            m.CreatedAt.UTC(),
		InitiatorSubmittedAt: m.InitiatorSubmittedAt.UTC(),
		RecipientSubmittedAt: recipientSubmittedAt,
		ExpiresAt:            m.ExpiresAt.UTC(),
		Subject:              m.Subject,
		MessageBody:          m.MessageBody,
		InitiatorNotified:    m.InitiatorNotified,
		RecipientNotified:    m.RecipientNotified,
		UpdatedAt:            m.UpdatedAt.UTC(),
	}, nil
}

func rowsToEntities(rows []sessionModel) ([]entities.EscrowSession, error) {
	items := make([]entities.EscrowSession, 0, len(rows))
	for _, row := range rows {
		session, err := row.toEntity()
		if err != nil {
			return nil, err
		}
		items = append(items, session)
	}
	return items, nil
}

type viewModel struct {
	ViewID        string    `gorm:"column:view_id;primaryKey"`
	EscrowID      string    `gorm:"column:escrow_id"`
	ViewerUserID  string    `gorm:"column:viewer_user_id"`
	ViewerContact string    `gorm:"column:viewer_contact"`
	ViewedAt      time.Time `gorm:"column:viewed_at"`
	IPAddress     string    `gorm:"column:ip_address"`
}

func (viewModel) TableName() string {
	return "escrow_views"
}

func viewModelFromEntity(view entities.EscrowView) viewModel {
	return viewModel{
		ViewID:        view.ViewID,
		EscrowID:      view.EscrowID,
		ViewerUserID:  view.ViewerUserID,
		ViewerContact: view.ViewerContact,
		ViewedAt:      view.ViewedAt.UTC(),
		IPAddress:     view.IPAddress,
	}
}

func (m viewModel) toEntity() entities.EscrowView {
	return entities.EscrowView{
		ViewID:        m.ViewID,
		EscrowID:      m.EscrowID,
		ViewerUserID:  m.ViewerUserID,
		ViewerContact: m.ViewerContact,
		ViewedAt:      m.ViewedAt.UTC(),
		IPAddress:     m.IPAddress,
	}
}

type savedLineupModel struct {
	UserID     string    `gorm:"column:user_id;primaryKey"`
	TeamID     string    `gorm:"column:team_id;primaryKey"`
	Name       string    `gorm:"column:name;primaryKey"`
	LineupData []byte    `gorm:"column:lineup_data"`
	IsActive   bool      `gorm:"column:is_active"`
	CreatedAt  time.Time `gorm:"column:created_at"`
	UpdatedAt  time.Time `gorm:"column:updated_at"`
}

func (savedLineupModel) TableName() string {
	return "saved_lineups"
}

func savedLineupModelFromEntity(lineup entities.SavedLineup) (savedLineupModel, error) {
	data, err := json.Marshal(lineup.LineupData)
	if err != nil {
		return savedLineupModel{}, err
	}
	return savedLineupModel{
		UserID:     lineup.UserID,
		TeamID:     lineup.TeamID,
		Name:       lineup.Name,
		LineupData: data,
		IsActive:   lineup.IsActive,
		CreatedAt:  lineup.CreatedAt.UTC(),
		UpdatedAt:  lineup.UpdatedAt.UTC(),
	}, nil
}

func (m savedLineupModel) toEntity() (entities.SavedLineup, error) {
	var data entities.Lineup
	if len(m.LineupData) > 0 {
		if err := json.Unmarshal(m.LineupData, &data); err != nil {
			return entities.SavedLineup{}, err
		}
	}
	return entities.SavedLineup{
		UserID:     m.UserID,
		TeamID:     m.TeamID,
		Name:       m.Name,
		LineupData: data,
		IsActive:   m.IsActive,
		CreatedAt:  m.CreatedAt.UTC(),
		UpdatedAt:  m.UpdatedAt.UTC(),
	}, nil
}

type idempotencyModel struct {
	Key         string    `gorm:"column:key;primaryKey"`
	RequestHash string    `gorm:"column:request_hash"`
	EscrowID    string    `gorm:"column:escrow_id"`
	ExpiresAt   time.Time `gorm:"column:expires_at"`
}

func (idempotencyModel) TableName() string {
	return "lineup_escrow_idempotency"
}

func idempotencyModelFromPort(record ports.IdempotencyRecord) idempotencyModel {
	return idempotencyModel{
		Key:         record.Key,
		RequestHash: record.RequestHash,
		EscrowID:    record.EscrowID,
		ExpiresAt:   record.ExpiresAt.UTC(),
	}
}

func (m idempotencyModel) toPort() ports.IdempotencyRecord {
	return ports.IdempotencyRecord{
		Key:         m.Key,
		RequestHash: m.RequestHash,
		EscrowID:    m.EscrowID,
		ExpiresAt:   m.ExpiresAt.UTC(),
	}
}

type outboxModel struct {
	OutboxID     string     `gorm:"column:outbox_id;primaryKey"`
	EventType    string     `gorm:"column:event_type"`
	PartitionKey string     `gorm:"column:partition_key"`
	Payload      []byte     `gorm:"column:payload"`
	Status       string     `gorm:"column:status"`
	CreatedAt    time.Time  `gorm:"column:created_at"`
	SentAt       *time.Time `gorm:"column:sent_at"`
}

func (outboxModel) TableName() string {
	return "lineup_escrow_outbox"
}

func (m outboxModel) toPort() ports.OutboxMessage {
	return ports.OutboxMessage{
		OutboxID:     m.OutboxID,
		EventType:    m.EventType,
		PartitionKey: m.PartitionKey,
		Payload:      append([]byte(nil), m.Payload...),
		CreatedAt:    m.CreatedAt.UTC(),
	}
}

func createOutboxRow(tx *gorm.DB, event ports.EscrowEvent, payload []byte) error {
	row := outboxModel{
		OutboxID:     event.EventID,
		EventType:    event.EventType,
		PartitionKey: event.PartitionKey,
		Payload:      payload,
		Status:       outboxStatusPending,
		CreatedAt:    event.OccurredAt.UTC(),
	}
	if err := tx.Create(&row).Error; err != nil {
		if isUniqueViolation(err) {
			return domainerrors.ErrRepositoryInvariantBroke
		}
		return err
	}
	return nil
}

func marshalEnvelope(event ports.EscrowEvent) ([]byte, error) {
	data, err := json.Marshal(map[string]string{
		"escrow_id":         event.EscrowID,
		"status":            event.Status,
		"initiator_team_id": event.InitiatorTeamID,
		"recipient_team_id": event.RecipientTeamID,
		"expires_at":        event.ExpiresAt.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return nil, err
	}
	envelope := ports.EventEnvelope{
		EventID:       event.EventID,
		EventType:     event.EventType,
		OccurredAt:    event.OccurredAt.UTC(),
		SourceService: "lineup-escrow-service",
		SchemaVersion: 1,
		PartitionKey:  event.PartitionKey,
		Data:          data,
	}
	return json.Marshal(envelope)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func decodeCursor(cursor string) int {
	if strings.TrimSpace(cursor) == "" {
		return 0
	}
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return 0
	}
	index, err := strconv.Atoi(string(raw))
	if err != nil || index < 0 {
		return 0
	}
	return index
}

func encodeCursor(offset int) string {
	return base64.RawURLEncoding.EncodeToString([]byte(strconv.Itoa(offset)))
}
