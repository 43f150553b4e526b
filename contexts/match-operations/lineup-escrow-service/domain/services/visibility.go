package services

import (
	"time"

	"github.com/rossfreedman/rally-sub012/contexts/match-operations/lineup-escrow-service/domain/entities"
)

// ViewerIdentity describes who is asking. UserID/TeamIDs come from the auth
// layer in front of this service; ViaToken marks the capability-token path,
// where the bearer may be anonymous.
type ViewerIdentity struct {
	UserID    string
	TeamIDs   []string
	Contact   string
	IPAddress string
	ViaToken  bool
}

func (v ViewerIdentity) OnTeam(teamID string) bool {
	if teamID == "" {
		return false
	}
	for _, id := range v.TeamIDs {
		if id == teamID {
			return true
		}
	}
	return false
}

// SessionProjection is the visibility-filtered view of a session. A nil
// lineup means the viewer is not entitled to that payload.
type SessionProjection struct {
	EscrowID             string
	Status               entities.SessionStatus
	Subject              string
	MessageBody          string
	RecipientName        string
	ContactType          entities.ContactType
	RecipientContact     string
	InitiatorTeamID      string
	RecipientTeamID      string
	CreatedAt            time.Time
	ExpiresAt            time.Time
	InitiatorSubmittedAt time.Time
	RecipientSubmittedAt *time.Time
	InitiatorLineup      entities.Lineup
	RecipientLineup      entities.Lineup
}

// ProjectSession computes what one viewer may see of one session. It is the
// only place visibility is decided, evaluated fresh per request; callers
// must never serve raw session fields.
//
// While a session is pending, only the initiator sees the committed lineup.
// Both lineups reveal only at completed, and only to the two parties: the
// initiator by user id, the recipient by capability token. Everyone else,
// teammates included, gets metadata.
func ProjectSession(session entities.EscrowSession, viewer ViewerIdentity) SessionProjection {
	projection := SessionProjection{
		EscrowID:             session.EscrowID,
		Status:               session.Status,
		Subject:              session.Subject,
		MessageBody:          session.MessageBody,
		RecipientName:        session.RecipientName,
		ContactType:          session.ContactType,
		InitiatorTeamID:      session.InitiatorTeamID,
		RecipientTeamID:      session.RecipientTeamID,
		CreatedAt:            session.CreatedAt,
		ExpiresAt:            session.ExpiresAt,
		InitiatorSubmittedAt: session.InitiatorSubmittedAt,
		RecipientSubmittedAt: session.RecipientSubmittedAt,
	}

	initiator := session.IsInitiator(viewer.UserID)
	if initiator {
		projection.RecipientContact = session.RecipientContact
		projection.InitiatorLineup = session.InitiatorLineup.Clone()
	}

	if session.Status == entities.SessionStatusCompleted && (initiator || viewer.ViaToken) {
		projection.InitiatorLineup = session.InitiatorLineup.Clone()
		projection.RecipientLineup = session.RecipientLineup.Clone()
	}

	return projection
}
