package entities_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rossfreedman/rally-sub012/contexts/match-operations/lineup-escrow-service/domain/entities"
	domainerrors "github.com/rossfreedman/rally-sub012/contexts/match-operations/lineup-escrow-service/domain/errors"
)

func validInput(now time.Time) entities.NewSessionInput {
	return entities.NewSessionInput{
		EscrowID:         "esc-1",
		Token:            "tok-1",
		InitiatorUserID:  "user-init",
		InitiatorTeamID:  " team-home ",
		InitiatorLineup:  []string{" P1 ", "P2"},
		RecipientName:    " Jordan Lee ",
		RecipientContact: "Jordan.Lee@Example.COM",
		ContactType:      entities.ContactTypeEmail,
		RecipientTeamID:  "team-away",
		Subject:          " Thursday match ",
		CreatedAt:        now,
		ExpiresAt:        now.Add(48 * time.Hour),
	}
}

func TestNewEscrowSessionDefaults(t *testing.T) {
	now := time.Date(2026, 3, 10, 18, 0, 0, 0, time.UTC)

	session, err := entities.NewEscrowSession(validInput(now))
	if err != nil {
		t.Fatalf("valid input should build a session: %v", err)
	}
	if session.Status != entities.SessionStatusPending {
		t.Fatalf("new sessions start pending, got %s", session.Status)
	}
	if session.RecipientName != "Jordan Lee" {
		t.Fatalf("recipient name should be trimmed, got %q", session.RecipientName)
	}
	if session.InitiatorTeamID != "team-home" {
		t.Fatalf("team id should be trimmed, got %q", session.InitiatorTeamID)
	}
	if session.RecipientContact != "jordan.lee@example.com" {
		t.Fatalf("email contact should be lowercased, got %q", session.RecipientContact)
	}
	if strings.Join(session.InitiatorLineup, ",") != "P1,P2" {
		t.Fatalf("lineup slots should be trimmed, got %v", session.InitiatorLineup)
	}
	if session.Subject != "Thursday match" {
		t.Fatalf("subject should be trimmed, got %q", session.Subject)
	}
	if !session.InitiatorSubmittedAt.Equal(session.CreatedAt) {
		t.Fatalf("initiator commitment timestamp should equal creation time")
	}
	if session.RecipientSubmittedAt != nil {
		t.Fatalf("recipient submission timestamp must start unset")
	}
}

func TestNewEscrowSessionValidation(t *testing.T) {
	now := time.Now().UTC()

	missingID := validInput(now)
	missingID.EscrowID = " "
	if _, err := entities.NewEscrowSession(missingID); !errors.Is(err, domainerrors.ErrValidation) {
		t.Fatalf("blank escrow id should fail validation, got %v", err)
	}

	missingToken := validInput(now)
	missingToken.Token = ""
	if _, err := entities.NewEscrowSession(missingToken); !errors.Is(err, domainerrors.ErrValidation) {
		t.Fatalf("missing token should fail validation, got %v", err)
	}

	missingInitiator := validInput(now)
	missingInitiator.InitiatorUserID = ""
	if _, err := entities.NewEscrowSession(missingInitiator); !errors.Is(err, domainerrors.ErrValidation) {
		t.Fatalf("missing initiator should fail validation, got %v", err)
	}

	missingName := validInput(now)
	missingName.RecipientName = "  "
	if _, err := entities.NewEscrowSession(missingName); !errors.Is(err, domainerrors.ErrValidation) {
		t.Fatalf("blank recipient name should fail validation, got %v", err)
	}

	missingContact := validInput(now)
	missingContact.RecipientContact = ""
	if _, err := entities.NewEscrowSession(missingContact); !errors.Is(err, domainerrors.ErrValidation) {
		t.Fatalf("missing contact should fail validation, got %v", err)
	}

	badEmail := validInput(now)
	badEmail.RecipientContact = "not an email"
	if _, err := entities.NewEscrowSession(badEmail); !errors.Is(err, domainerrors.ErrValidation) {
		t.Fatalf("malformed email should fail validation, got %v", err)
	}

	expiryBeforeCreation := validInput(now)
	expiryBeforeCreation.ExpiresAt = now.Add(-time.Minute)
	if _, err := entities.NewEscrowSession(expiryBeforeCreation); !errors.Is(err, domainerrors.ErrValidation) {
		t.Fatalf("expiry before creation should fail validation, got %v", err)
	}

	expiryEqualsCreation := validInput(now)
	expiryEqualsCreation.ExpiresAt = now
	if _, err := entities.NewEscrowSession(expiryEqualsCreation); !errors.Is(err, domainerrors.ErrValidation) {
		t.Fatalf("expiry equal to creation should fail validation, got %v", err)
	}
}

func TestNormalizeLineup(t *testing.T) {
	lineup, err := entities.NormalizeLineup([]string{"  P1", "P2  "})
	if err != nil {
		t.Fatalf("trimmable lineup should normalize: %v", err)
	}
	if strings.Join(lineup, ",") != "P1,P2" {
		t.Fatalf("expected trimmed slots, got %v", lineup)
	}

	if _, err := entities.NormalizeLineup(nil); !errors.Is(err, domainerrors.ErrValidation) {
		t.Fatalf("empty lineup should fail validation, got %v", err)
	}
	if _, err := entities.NormalizeLineup([]string{"P1", "   "}); !errors.Is(err, domainerrors.ErrValidation) {
		t.Fatalf("blank slot should fail validation, got %v", err)
	}
}

func TestParseContactType(t *testing.T) {
	parsed, err := entities.ParseContactType("  EMAIL ")
	if err != nil {
		t.Fatalf("email should parse case-insensitively: %v", err)
	}
	if parsed != entities.ContactTypeEmail {
		t.Fatalf("expected email contact type, got %s", parsed)
	}

	if _, err := entities.ParseContactType("phone"); err != nil {
		t.Fatalf("phone should parse: %v", err)
	}
	if _, err := entities.ParseContactType("other"); err != nil {
		t.Fatalf("other should parse: %v", err)
	}
	if _, err := entities.ParseContactType("carrier-pigeon"); !errors.Is(err, domainerrors.ErrValidation) {
		t.Fatalf("unknown contact type should fail validation, got %v", err)
	}
}

func TestPhoneContactDigitBounds(t *testing.T) {
	now := time.Now().UTC()

	formatted := validInput(now)
	formatted.ContactType = entities.ContactTypePhone
	formatted.RecipientContact = "+1 (312) 555-0142"
	session, err := entities.NewEscrowSession(formatted)
	if err != nil {
		t.Fatalf("formatted phone should validate: %v", err)
	}
	if session.RecipientContact != "+1 (312) 555-0142" {
		t.Fatalf("phone formatting should be preserved, got %q", session.RecipientContact)
	}

	tooShort := validInput(now)
	tooShort.ContactType = entities.ContactTypePhone
	tooShort.RecipientContact = "555-012"
	if _, err := entities.NewEscrowSession(tooShort); !errors.Is(err, domainerrors.ErrValidation) {
		t.Fatalf("six digit phone should fail validation, got %v", err)
	}

	tooLong := validInput(now)
	tooLong.ContactType = entities.ContactTypePhone
	tooLong.RecipientContact = "1234567890123456"
	if _, err := entities.NewEscrowSession(tooLong); !errors.Is(err, domainerrors.ErrValidation) {
		t.Fatalf("sixteen digit phone should fail validation, got %v", err)
	}
}

func TestOverdueAndTerminal(t *testing.T) {
	now := time.Now().UTC()
	session, err := entities.NewEscrowSession(validInput(now))
	if err != nil {
		t.Fatalf("valid input should build a session: %v", err)
	}

	if session.Overdue(now.Add(time.Hour)) {
		t.Fatalf("session inside its window must not be overdue")
	}
	if !session.Overdue(session.ExpiresAt) {
		t.Fatalf("session at its deadline is overdue")
	}
	if session.Terminal() {
		t.Fatalf("pending session is not terminal")
	}

	session.Status = entities.SessionStatusCompleted
	if session.Overdue(session.ExpiresAt.Add(time.Hour)) {
		t.Fatalf("resolved session is never overdue")
	}
	if !session.Terminal() {
		t.Fatalf("completed session is terminal")
	}
}

func TestIsInitiator(t *testing.T) {
	session := entities.EscrowSession{InitiatorUserID: "user-init"}
	if !session.IsInitiator("user-init") {
		t.Fatalf("initiator id should match")
	}
	if session.IsInitiator("user-other") {
		t.Fatalf("other users are not the initiator")
	}
	if (entities.EscrowSession{}).IsInitiator("") {
		t.Fatalf("blank ids must never match")
	}
}

func TestLineupClone(t *testing.T) {
	original := entities.Lineup{"P1", "P2"}
	cloned := original.Clone()
	cloned[0] = "changed"
	if original[0] != "P1" {
		t.Fatalf("clone must not share backing storage")
	}
	if (entities.Lineup)(nil).Clone() != nil {
		t.Fatalf("nil lineup clones to nil")
	}
}
