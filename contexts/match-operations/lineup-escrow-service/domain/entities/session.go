package entities

import (
	"fmt"
	"net/mail"
	"strings"
	"time"

	domainerrors "github.com/rossfreedman/rally-sub012/contexts/match-operations/lineup-escrow-service/domain/errors"
)

type SessionStatus string

const (
	SessionStatusPending   SessionStatus = "pending"
	SessionStatusCompleted SessionStatus = "completed"
	SessionStatusExpired   SessionStatus = "expired"
	SessionStatusCancelled SessionStatus = "cancelled"
)

type ContactType string

const (
	ContactTypeEmail ContactType = "email"
	ContactTypePhone ContactType = "phone"
	ContactTypeOther ContactType = "other"
)

type Party string

const (
	PartyInitiator Party = "initiator"
	PartyRecipient Party = "recipient"
)

// Lineup is an ordered list of roster slots exactly as the captain entered
// them. Order is significant and preserved end to end.
type Lineup []string

func (l Lineup) Clone() Lineup {
	if l == nil {
		return nil
	}
	out := make(Lineup, len(l))
	copy(out, l)
	return out
}

// NormalizeLineup trims each slot and rejects empty lineups or blank slots.
func NormalizeLineup(raw []string) (Lineup, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: lineup must contain at least one slot", domainerrors.ErrValidation)
	}
	out := make(Lineup, 0, len(raw))
	for _, slot := range raw {
		slot = strings.TrimSpace(slot)
		if slot == "" {
			return nil, fmt.Errorf("%w: lineup slots must not be blank", domainerrors.ErrValidation)
		}
		out = append(out, slot)
	}
	return out, nil
}

func ParseContactType(raw string) (ContactType, error) {
	switch ContactType(strings.ToLower(strings.TrimSpace(raw))) {
	case ContactTypeEmail:
		return ContactTypeEmail, nil
	case ContactTypePhone:
		return ContactTypePhone, nil
	case ContactTypeOther:
		return ContactTypeOther, nil
	default:
		return "", fmt.Errorf("%w: contact type %q is not one of email, phone, other", domainerrors.ErrValidation, raw)
	}
}

// EscrowSession is one two-party lineup exchange. The token is the sole
// credential for the recipient side and is minted exactly once at creation.
type EscrowSession struct {
	EscrowID             string
	Token                string
	InitiatorUserID      string
	InitiatorTeamID      string
	RecipientName        string
	RecipientContact     string
	ContactType          ContactType
	RecipientTeamID      string
	InitiatorLineup      Lineup
	RecipientLineup      Lineup
	Status               SessionStatus
	CreatedAt            time.Time
	InitiatorSubmittedAt time.Time
	RecipientSubmittedAt *time.Time
	ExpiresAt            time.Time
	Subject              string
	MessageBody          string
	InitiatorNotified    bool
	RecipientNotified    bool
	UpdatedAt            time.Time
}

// NewSessionInput carries the creation payload into NewEscrowSession.
type NewSessionInput struct {
	EscrowID         string
	Token            string
	InitiatorUserID  string
	InitiatorTeamID  string
	InitiatorLineup  []string
	RecipientName    string
	RecipientContact string
	ContactType      ContactType
	RecipientTeamID  string
	Subject          string
	MessageBody      string
	CreatedAt        time.Time
	ExpiresAt        time.Time
}

func NewEscrowSession(in NewSessionInput) (EscrowSession, error) {
	if strings.TrimSpace(in.EscrowID) == "" || strings.TrimSpace(in.Token) == "" {
		return EscrowSession{}, fmt.Errorf("%w: session id and token are required", domainerrors.ErrValidation)
	}
	if strings.TrimSpace(in.InitiatorUserID) == "" {
		return EscrowSession{}, fmt.Errorf("%w: initiator user id is required", domainerrors.ErrValidation)
	}
	recipientName := strings.TrimSpace(in.RecipientName)
	if recipientName == "" {
		return EscrowSession{}, fmt.Errorf("%w: recipient name is required", domainerrors.ErrValidation)
	}

	lineup, err := NormalizeLineup(in.InitiatorLineup)
	if err != nil {
		return EscrowSession{}, err
	}

	contact, err := normalizeContact(in.RecipientContact, in.ContactType)
	if err != nil {
		return EscrowSession{}, err
	}

	createdAt := in.CreatedAt.UTC()
	expiresAt := in.ExpiresAt.UTC()
	if !expiresAt.After(createdAt) {
		return EscrowSession{}, fmt.Errorf("%w: expiry must be after creation time", domainerrors.ErrValidation)
	}

	return EscrowSession{
		EscrowID:             in.EscrowID,
		Token:                in.Token,
		InitiatorUserID:      in.InitiatorUserID,
		InitiatorTeamID:      strings.TrimSpace(in.InitiatorTeamID),
		RecipientName:        recipientName,
		RecipientContact:     contact,
		ContactType:          in.ContactType,
		RecipientTeamID:      strings.TrimSpace(in.RecipientTeamID),
		InitiatorLineup:      lineup,
		Status:               SessionStatusPending,
		CreatedAt:            createdAt,
		InitiatorSubmittedAt: createdAt,
		ExpiresAt:            expiresAt,
		Subject:              strings.TrimSpace(in.Subject),
		MessageBody:          in.MessageBody,
		UpdatedAt:            createdAt,
	}, nil
}

// Overdue reports whether a still-pending session has passed its deadline.
func (s EscrowSession) Overdue(now time.Time) bool {
	return s.Status == SessionStatusPending && !now.Before(s.ExpiresAt)
}

// Terminal reports whether the session reached a state with no outgoing
// transitions.
func (s EscrowSession) Terminal() bool {
	return s.Status != SessionStatusPending
}

func (s EscrowSession) IsInitiator(userID string) bool {
	return userID != "" && userID == s.InitiatorUserID
}

func normalizeContact(raw string, contactType ContactType) (string, error) {
	contact := strings.TrimSpace(raw)
	if contact == "" {
		return "", fmt.Errorf("%w: recipient contact is required", domainerrors.ErrValidation)
	}

	switch contactType {
	case ContactTypeEmail:
		addr, err := mail.ParseAddress(contact)
		if err != nil {
			return "", fmt.Errorf("%w: recipient contact is not a valid email address", domainerrors.ErrValidation)
		}
		return strings.ToLower(addr.Address), nil
	case ContactTypePhone:
		digits := strings.Map(func(r rune) rune {
			if r >= '0' && r <= '9' {
				return r
			}
			return -1
		}, contact)
		if len(digits) < 7 || len(digits) > 15 {
			return "", fmt.Errorf("%w: recipient contact is not a valid phone number", domainerrors.ErrValidation)
		}
		return contact, nil
	case ContactTypeOther:
		return contact, nil
	default:
		return "", fmt.Errorf("%w: contact type %q is not one of email, phone, other", domainerrors.ErrValidation, contactType)
	}
}
