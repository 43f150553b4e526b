package services

import (
	"fmt"
	"time"

	"github.com/rossfreedman/rally-sub012/contexts/match-operations/lineup-escrow-service/domain/entities"
)

type NotificationKind string

const (
	NotificationKindInvite    NotificationKind = "invite"
	NotificationKindCompleted NotificationKind = "completed"
	NotificationKindExpired   NotificationKind = "expired"
)

// Notification is one owed dispatch. Exactly one of UserID or Contact is
// set: the recipient is addressed by the contact captured at creation, the
// initiator by user id (the notification collaborator resolves the address).
type Notification struct {
	Party   entities.Party
	Kind    NotificationKind
	UserID  string
	Contact string
	Channel entities.ContactType
	Subject string
	Body    string
}

// PendingNotifications derives the dispatches still owed for a session from
// (status, notified flags, now). Each party is notified at most once over a
// session's life; the message matches the state at dispatch time. Overdue
// pending sessions owe nothing until the expired transition lands.
func PendingNotifications(session entities.EscrowSession, now time.Time, shareURL string) []Notification {
	var due []Notification

	switch session.Status {
	case entities.SessionStatusPending:
		if session.Overdue(now) {
			return nil
		}
		if !session.RecipientNotified {
			due = append(due, Notification{
				Party:   entities.PartyRecipient,
				Kind:    NotificationKindInvite,
				Contact: session.RecipientContact,
				Channel: session.ContactType,
				Subject: inviteSubject(session),
				Body:    inviteBody(session, shareURL),
			})
		}
	case entities.SessionStatusCompleted:
		if !session.InitiatorNotified {
			due = append(due, Notification{
				Party:   entities.PartyInitiator,
				Kind:    NotificationKindCompleted,
				UserID:  session.InitiatorUserID,
				Subject: "Lineup exchange completed",
				Body:    fmt.Sprintf("%s submitted a lineup. Both lineups are now visible.", session.RecipientName),
			})
		}
		if !session.RecipientNotified {
			due = append(due, Notification{
				Party:   entities.PartyRecipient,
				Kind:    NotificationKindCompleted,
				Contact: session.RecipientContact,
				Channel: session.ContactType,
				Subject: "Lineup exchange completed",
				Body:    "Both lineups are now visible.",
			})
		}
	case entities.SessionStatusExpired:
		if !session.InitiatorNotified {
			due = append(due, Notification{
				Party:   entities.PartyInitiator,
				Kind:    NotificationKindExpired,
				UserID:  session.InitiatorUserID,
				Subject: "Lineup exchange expired",
				Body:    fmt.Sprintf("Your lineup exchange invitation to %s expired without a response.", session.RecipientName),
			})
		}
	}

	return due
}

func inviteSubject(session entities.EscrowSession) string {
	if session.Subject != "" {
		return session.Subject
	}
	return "Lineup exchange invitation"
}

func inviteBody(session entities.EscrowSession, shareURL string) string {
	if session.MessageBody == "" {
		return fmt.Sprintf("View and respond: %s", shareURL)
	}
	return fmt.Sprintf("%s\n\nView and respond: %s", session.MessageBody, shareURL)
}
