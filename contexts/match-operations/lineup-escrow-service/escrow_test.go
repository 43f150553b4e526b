package lineupescrow_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	lineupescrow "github.com/rossfreedman/rally-sub012/contexts/match-operations/lineup-escrow-service"
	"github.com/rossfreedman/rally-sub012/contexts/match-operations/lineup-escrow-service/domain/entities"
	domainerrors "github.com/rossfreedman/rally-sub012/contexts/match-operations/lineup-escrow-service/domain/errors"
	"github.com/rossfreedman/rally-sub012/contexts/match-operations/lineup-escrow-service/ports"
	httptransport "github.com/rossfreedman/rally-sub012/contexts/match-operations/lineup-escrow-service/transport/http"
)

const timeLayout = "2006-01-02T15:04:05Z"

func createRequest() httptransport.CreateSessionRequest {
	return httptransport.CreateSessionRequest{
		TeamID:           "team-home",
		RecipientName:    "Jordan Lee",
		RecipientContact: "jordan@example.com",
		ContactType:      "email",
		RecipientTeamID:  "team-away",
		Lineup:           []string{"P1", "P2", "P3", "P4"},
	}
}

func tokenFromShareURL(t *testing.T, shareURL string) string {
	t.Helper()
	idx := strings.LastIndex(shareURL, "/")
	if idx == -1 || idx == len(shareURL)-1 {
		t.Fatalf("share url %q has no token segment", shareURL)
	}
	return shareURL[idx+1:]
}

func expiredSeed(now time.Time) entities.EscrowSession {
	return entities.EscrowSession{
		EscrowID:             "esc-overdue",
		Token:                "tok-overdue",
		InitiatorUserID:      "user-init",
		InitiatorTeamID:      "team-home",
		RecipientName:        "Jordan Lee",
		RecipientContact:     "jordan@example.com",
		ContactType:          entities.ContactTypeEmail,
		InitiatorLineup:      entities.Lineup{"P1", "P2", "P3", "P4"},
		Status:               entities.SessionStatusPending,
		CreatedAt:            now.Add(-2 * time.Hour),
		InitiatorSubmittedAt: now.Add(-2 * time.Hour),
		ExpiresAt:            now.Add(-time.Hour),
		UpdatedAt:            now.Add(-2 * time.Hour),
	}
}

func TestCreateAndExchangeLifecycle(t *testing.T) {
	module := lineupescrow.NewInMemoryModule(nil, nil)

	created, err := module.Handler.CreateSessionHandler(context.Background(), "user-init", createRequest(), "")
	if err != nil {
		t.Fatalf("create session should succeed: %v", err)
	}
	if created.Status != string(entities.SessionStatusPending) {
		t.Fatalf("expected pending session, got %s", created.Status)
	}
	if !strings.HasPrefix(created.ShareURL, "http://localhost:8080/escrow/exchange/") {
		t.Fatalf("unexpected share url %q", created.ShareURL)
	}
	if created.Replayed {
		t.Fatalf("fresh create must not be marked replayed")
	}

	expiresAt, err := time.Parse(timeLayout, created.ExpiresAt)
	if err != nil {
		t.Fatalf("expires_at should parse: %v", err)
	}
	if remaining := time.Until(expiresAt); remaining < 47*time.Hour || remaining > 49*time.Hour {
		t.Fatalf("expected default 48h expiry, got %s remaining", remaining)
	}

	token := tokenFromShareURL(t, created.ShareURL)

	fetched, err := module.Handler.FetchExchangeHandler(context.Background(), token, "203.0.113.9")
	if err != nil {
		t.Fatalf("token fetch should succeed: %v", err)
	}
	if fetched.Item.Status != string(entities.SessionStatusPending) {
		t.Fatalf("expected pending status, got %s", fetched.Item.Status)
	}
	if len(fetched.Item.InitiatorLineup) != 0 {
		t.Fatalf("pending token fetch must not reveal the committed lineup")
	}
	if fetched.Item.RecipientContact != "" {
		t.Fatalf("token fetch must not reveal the recipient contact")
	}
	if fetched.Item.RecipientName != "Jordan Lee" {
		t.Fatalf("expected recipient name in metadata, got %q", fetched.Item.RecipientName)
	}

	submitted, err := module.Handler.SubmitLineupHandler(
		context.Background(),
		token,
		httptransport.SubmitLineupRequest{Lineup: []string{"Q1", "Q2", "Q3", "Q4"}},
		"203.0.113.9",
	)
	if err != nil {
		t.Fatalf("submit should succeed: %v", err)
	}
	if submitted.Item.Status != string(entities.SessionStatusCompleted) {
		t.Fatalf("expected completed status, got %s", submitted.Item.Status)
	}
	if strings.Join(submitted.Item.InitiatorLineup, ",") != "P1,P2,P3,P4" {
		t.Fatalf("expected initiator lineup revealed on completion, got %v", submitted.Item.InitiatorLineup)
	}
	if strings.Join(submitted.Item.RecipientLineup, ",") != "Q1,Q2,Q3,Q4" {
		t.Fatalf("expected recipient lineup echoed on completion, got %v", submitted.Item.RecipientLineup)
	}
	if submitted.Item.RecipientSubmittedAt == "" {
		t.Fatalf("expected recipient submission timestamp")
	}

	detail, err := module.Handler.GetSessionHandler(context.Background(), created.EscrowID, "user-init", nil, "198.51.100.7")
	if err != nil {
		t.Fatalf("initiator detail should succeed: %v", err)
	}
	if strings.Join(detail.Item.RecipientLineup, ",") != "Q1,Q2,Q3,Q4" {
		t.Fatalf("initiator should see the recipient lineup after completion, got %v", detail.Item.RecipientLineup)
	}
	if detail.Item.RecipientContact != "jordan@example.com" {
		t.Fatalf("initiator should see the recipient contact, got %q", detail.Item.RecipientContact)
	}
}

func TestCreateSessionTTLOverride(t *testing.T) {
	module := lineupescrow.NewInMemoryModule(nil, nil)

	req := createRequest()
	req.TTLSeconds = 3600
	created, err := module.Handler.CreateSessionHandler(context.Background(), "user-init", req, "")
	if err != nil {
		t.Fatalf("create session should succeed: %v", err)
	}

	expiresAt, err := time.Parse(timeLayout, created.ExpiresAt)
	if err != nil {
		t.Fatalf("expires_at should parse: %v", err)
	}
	if remaining := time.Until(expiresAt); remaining < 55*time.Minute || remaining > 65*time.Minute {
		t.Fatalf("expected one hour expiry, got %s remaining", remaining)
	}
}

func TestFetchExchangeUnknownToken(t *testing.T) {
	module := lineupescrow.NewInMemoryModule(nil, nil)

	_, err := module.Handler.FetchExchangeHandler(context.Background(), "tok-unknown", "")
	if !errors.Is(err, domainerrors.ErrInvalidToken) {
		t.Fatalf("expected invalid token error, got %v", err)
	}
}

func TestSubmitLineupTwice(t *testing.T) {
	module := lineupescrow.NewInMemoryModule(nil, nil)

	created, err := module.Handler.CreateSessionHandler(context.Background(), "user-init", createRequest(), "")
	if err != nil {
		t.Fatalf("create session should succeed: %v", err)
	}
	token := tokenFromShareURL(t, created.ShareURL)

	if _, err := module.Handler.SubmitLineupHandler(
		context.Background(),
		token,
		httptransport.SubmitLineupRequest{Lineup: []string{"Q1", "Q2"}},
		"",
	); err != nil {
		t.Fatalf("first submit should succeed: %v", err)
	}

	_, err = module.Handler.SubmitLineupHandler(
		context.Background(),
		token,
		httptransport.SubmitLineupRequest{Lineup: []string{"R1", "R2"}},
		"",
	)
	if !errors.Is(err, domainerrors.ErrAlreadySubmitted) {
		t.Fatalf("expected already submitted error, got %v", err)
	}
}

func TestParallelSubmitsSingleWinner(t *testing.T) {
	module := lineupescrow.NewInMemoryModule(nil, nil)

	created, err := module.Handler.CreateSessionHandler(context.Background(), "user-init", createRequest(), "")
	if err != nil {
		t.Fatalf("create session should succeed: %v", err)
	}
	token := tokenFromShareURL(t, created.ShareURL)

	const contenders = 8
	lineups := make([][]string, contenders)
	for i := range lineups {
		lineups[i] = []string{fmt.Sprintf("W%d-1", i), fmt.Sprintf("W%d-2", i)}
	}

	results := make([]error, contenders)
	var wg sync.WaitGroup
	wg.Add(contenders)
	for i := 0; i < contenders; i++ {
		go func(i int) {
			defer wg.Done()
			_, results[i] = module.Handler.SubmitLineupHandler(
				context.Background(),
				token,
				httptransport.SubmitLineupRequest{Lineup: lineups[i]},
				"",
			)
		}(i)
	}
	wg.Wait()

	winner := -1
	for i, submitErr := range results {
		switch {
		case submitErr == nil:
			if winner != -1 {
				t.Fatalf("submissions %d and %d both succeeded", winner, i)
			}
			winner = i
		case !errors.Is(submitErr, domainerrors.ErrAlreadySubmitted):
			t.Fatalf("losing submission %d should report already submitted, got %v", i, submitErr)
		}
	}
	if winner == -1 {
		t.Fatalf("exactly one submission should win")
	}

	detail, err := module.Handler.GetSessionHandler(context.Background(), created.EscrowID, "user-init", nil, "")
	if err != nil {
		t.Fatalf("detail fetch should succeed: %v", err)
	}
	if strings.Join(detail.Item.RecipientLineup, ",") != strings.Join(lineups[winner], ",") {
		t.Fatalf("stored lineup should be the winner's, got %v want %v",
			detail.Item.RecipientLineup, lineups[winner])
	}
}

func TestSubmitAfterCancel(t *testing.T) {
	module := lineupescrow.NewInMemoryModule(nil, nil)

	created, err := module.Handler.CreateSessionHandler(context.Background(), "user-init", createRequest(), "")
	if err != nil {
		t.Fatalf("create session should succeed: %v", err)
	}

	cancelled, err := module.Handler.CancelSessionHandler(context.Background(), created.EscrowID, "user-init")
	if err != nil {
		t.Fatalf("cancel should succeed: %v", err)
	}
	if cancelled.Status != string(entities.SessionStatusCancelled) {
		t.Fatalf("expected cancelled status, got %s", cancelled.Status)
	}

	token := tokenFromShareURL(t, created.ShareURL)
	_, err = module.Handler.SubmitLineupHandler(
		context.Background(),
		token,
		httptransport.SubmitLineupRequest{Lineup: []string{"Q1"}},
		"",
	)
	if !errors.Is(err, domainerrors.ErrAlreadyCancelled) {
		t.Fatalf("expected already cancelled error, got %v", err)
	}
}

func TestCancelRequiresInitiator(t *testing.T) {
	module := lineupescrow.NewInMemoryModule(nil, nil)

	created, err := module.Handler.CreateSessionHandler(context.Background(), "user-init", createRequest(), "")
	if err != nil {
		t.Fatalf("create session should succeed: %v", err)
	}

	_, err = module.Handler.CancelSessionHandler(context.Background(), created.EscrowID, "user-other")
	if !errors.Is(err, domainerrors.ErrUnauthorized) {
		t.Fatalf("expected unauthorized error, got %v", err)
	}
}

func TestCancelAfterSubmit(t *testing.T) {
	module := lineupescrow.NewInMemoryModule(nil, nil)

	created, err := module.Handler.CreateSessionHandler(context.Background(), "user-init", createRequest(), "")
	if err != nil {
		t.Fatalf("create session should succeed: %v", err)
	}
	token := tokenFromShareURL(t, created.ShareURL)

	if _, err := module.Handler.SubmitLineupHandler(
		context.Background(),
		token,
		httptransport.SubmitLineupRequest{Lineup: []string{"Q1"}},
		"",
	); err != nil {
		t.Fatalf("submit should succeed: %v", err)
	}

	_, err = module.Handler.CancelSessionHandler(context.Background(), created.EscrowID, "user-init")
	if !errors.Is(err, domainerrors.ErrAlreadySubmitted) {
		t.Fatalf("expected already submitted error, got %v", err)
	}
}

func TestLazyExpiryOnTokenFetch(t *testing.T) {
	now := time.Now().UTC()
	module := lineupescrow.NewInMemoryModule([]entities.EscrowSession{expiredSeed(now)}, nil)

	fetched, err := module.Handler.FetchExchangeHandler(context.Background(), "tok-overdue", "")
	if err != nil {
		t.Fatalf("token fetch should surface the expired state, got error: %v", err)
	}
	if fetched.Item.Status != string(entities.SessionStatusExpired) {
		t.Fatalf("expected expired status, got %s", fetched.Item.Status)
	}
	if len(fetched.Item.InitiatorLineup) != 0 || len(fetched.Item.RecipientLineup) != 0 {
		t.Fatalf("expired session must not reveal lineups")
	}

	detail, err := module.Handler.GetSessionHandler(context.Background(), "esc-overdue", "user-init", nil, "")
	if err != nil {
		t.Fatalf("initiator detail should succeed: %v", err)
	}
	if detail.Item.Status != string(entities.SessionStatusExpired) {
		t.Fatalf("lazy expiry should persist, got status %s", detail.Item.Status)
	}
}

func TestSubmitExpiredSession(t *testing.T) {
	now := time.Now().UTC()
	module := lineupescrow.NewInMemoryModule([]entities.EscrowSession{expiredSeed(now)}, nil)

	_, err := module.Handler.SubmitLineupHandler(
		context.Background(),
		"tok-overdue",
		httptransport.SubmitLineupRequest{Lineup: []string{"Q1"}},
		"",
	)
	if !errors.Is(err, domainerrors.ErrExpired) {
		t.Fatalf("expected expired error, got %v", err)
	}
}

func TestCancelExpiredSession(t *testing.T) {
	now := time.Now().UTC()
	module := lineupescrow.NewInMemoryModule([]entities.EscrowSession{expiredSeed(now)}, nil)

	_, err := module.Handler.CancelSessionHandler(context.Background(), "esc-overdue", "user-init")
	if !errors.Is(err, domainerrors.ErrExpired) {
		t.Fatalf("expected expired error, got %v", err)
	}
}

func TestCreateSessionValidation(t *testing.T) {
	module := lineupescrow.NewInMemoryModule(nil, nil)

	both := createRequest()
	both.SavedLineupName = "weekly"
	if _, err := module.Handler.CreateSessionHandler(context.Background(), "user-init", both, ""); !errors.Is(err, domainerrors.ErrValidation) {
		t.Fatalf("inline lineup plus saved name should fail validation, got %v", err)
	}

	neither := createRequest()
	neither.Lineup = nil
	if _, err := module.Handler.CreateSessionHandler(context.Background(), "user-init", neither, ""); !errors.Is(err, domainerrors.ErrValidation) {
		t.Fatalf("missing lineup should fail validation, got %v", err)
	}

	badContactType := createRequest()
	badContactType.ContactType = "carrier-pigeon"
	if _, err := module.Handler.CreateSessionHandler(context.Background(), "user-init", badContactType, ""); !errors.Is(err, domainerrors.ErrValidation) {
		t.Fatalf("unknown contact type should fail validation, got %v", err)
	}

	badEmail := createRequest()
	badEmail.RecipientContact = "not-an-email"
	if _, err := module.Handler.CreateSessionHandler(context.Background(), "user-init", badEmail, ""); !errors.Is(err, domainerrors.ErrValidation) {
		t.Fatalf("malformed email should fail validation, got %v", err)
	}

	negativeTTL := createRequest()
	negativeTTL.TTLSeconds = -5
	if _, err := module.Handler.CreateSessionHandler(context.Background(), "user-init", negativeTTL, ""); !errors.Is(err, domainerrors.ErrValidation) {
		t.Fatalf("negative ttl should fail validation, got %v", err)
	}

	blankSlot := createRequest()
	blankSlot.Lineup = []string{"P1", "  "}
	if _, err := module.Handler.CreateSessionHandler(context.Background(), "user-init", blankSlot, ""); !errors.Is(err, domainerrors.ErrValidation) {
		t.Fatalf("blank lineup slot should fail validation, got %v", err)
	}
}

func TestCreateSessionIdempotencyReplay(t *testing.T) {
	module := lineupescrow.NewInMemoryModule(nil, nil)

	first, err := module.Handler.CreateSessionHandler(context.Background(), "user-init", createRequest(), "idem-key")
	if err != nil {
		t.Fatalf("first create should succeed: %v", err)
	}

	second, err := module.Handler.CreateSessionHandler(context.Background(), "user-init", createRequest(), "idem-key")
	if err != nil {
		t.Fatalf("second create should replay: %v", err)
	}
	if !second.Replayed {
		t.Fatalf("expected replayed response")
	}
	if second.EscrowID != first.EscrowID {
		t.Fatalf("expected same escrow id, got %s and %s", first.EscrowID, second.EscrowID)
	}
	if second.ShareURL != first.ShareURL {
		t.Fatalf("replay must return the original share url")
	}
}

func TestCreateSessionIdempotencyConflict(t *testing.T) {
	module := lineupescrow.NewInMemoryModule(nil, nil)

	if _, err := module.Handler.CreateSessionHandler(context.Background(), "user-init", createRequest(), "idem-key"); err != nil {
		t.Fatalf("first create should succeed: %v", err)
	}

	altered := createRequest()
	altered.Lineup = []string{"X1", "X2"}
	_, err := module.Handler.CreateSessionHandler(context.Background(), "user-init", altered, "idem-key")
	if !errors.Is(err, domainerrors.ErrIdempotencyKeyConflict) {
		t.Fatalf("expected idempotency conflict, got %v", err)
	}
}

func TestGetSessionVisibilityWhilePending(t *testing.T) {
	module := lineupescrow.NewInMemoryModule(nil, nil)

	created, err := module.Handler.CreateSessionHandler(context.Background(), "user-init", createRequest(), "")
	if err != nil {
		t.Fatalf("create session should succeed: %v", err)
	}

	own, err := module.Handler.GetSessionHandler(context.Background(), created.EscrowID, "user-init", nil, "")
	if err != nil {
		t.Fatalf("initiator detail should succeed: %v", err)
	}
	if strings.Join(own.Item.InitiatorLineup, ",") != "P1,P2,P3,P4" {
		t.Fatalf("initiator should see own committed lineup, got %v", own.Item.InitiatorLineup)
	}
	if own.Item.RecipientContact == "" {
		t.Fatalf("initiator should see the recipient contact")
	}

	teammate, err := module.Handler.GetSessionHandler(context.Background(), created.EscrowID, "user-teammate", []string{"team-home"}, "")
	if err != nil {
		t.Fatalf("teammate detail should succeed: %v", err)
	}
	if len(teammate.Item.InitiatorLineup) != 0 {
		t.Fatalf("teammate must not see the committed lineup while pending")
	}
	if teammate.Item.RecipientContact != "" {
		t.Fatalf("teammate must not see the recipient contact")
	}

	_, err = module.Handler.GetSessionHandler(context.Background(), created.EscrowID, "user-outsider", []string{"team-elsewhere"}, "")
	if !errors.Is(err, domainerrors.ErrUnauthorized) {
		t.Fatalf("expected unauthorized error for outsider, got %v", err)
	}
}

func TestTeammateSeesMetadataAfterCompletion(t *testing.T) {
	module := lineupescrow.NewInMemoryModule(nil, nil)

	created, err := module.Handler.CreateSessionHandler(context.Background(), "user-init", createRequest(), "")
	if err != nil {
		t.Fatalf("create session should succeed: %v", err)
	}
	token := tokenFromShareURL(t, created.ShareURL)
	if _, err := module.Handler.SubmitLineupHandler(
		context.Background(),
		token,
		httptransport.SubmitLineupRequest{Lineup: []string{"Q1"}},
		"",
	); err != nil {
		t.Fatalf("submit should succeed: %v", err)
	}

	teammate, err := module.Handler.GetSessionHandler(context.Background(), created.EscrowID, "user-teammate", []string{"team-away"}, "")
	if err != nil {
		t.Fatalf("linked team member detail should succeed: %v", err)
	}
	if len(teammate.Item.InitiatorLineup) != 0 || len(teammate.Item.RecipientLineup) != 0 {
		t.Fatalf("lineups reveal only to the two parties, teammate got %v / %v",
			teammate.Item.InitiatorLineup, teammate.Item.RecipientLineup)
	}
}

func TestListTeamSessionsPagination(t *testing.T) {
	module := lineupescrow.NewInMemoryModule(nil, nil)

	for _, name := range []string{"First Opponent", "Second Opponent"} {
		req := createRequest()
		req.RecipientName = name
		if _, err := module.Handler.CreateSessionHandler(context.Background(), "user-init", req, ""); err != nil {
			t.Fatalf("create session %q should succeed: %v", name, err)
		}
	}

	firstPage, err := module.Handler.ListTeamSessionsHandler(
		context.Background(),
		"team-home",
		"user-member",
		[]string{"team-home"},
		"",
		1,
	)
	if err != nil {
		t.Fatalf("list first page failed: %v", err)
	}
	if len(firstPage.Items) != 1 {
		t.Fatalf("expected first page size 1, got %d", len(firstPage.Items))
	}
	if firstPage.NextCursor == "" {
		t.Fatalf("expected next cursor on first page")
	}
	if len(firstPage.Items[0].InitiatorLineup) != 0 {
		t.Fatalf("team listings are metadata only")
	}

	secondPage, err := module.Handler.ListTeamSessionsHandler(
		context.Background(),
		"team-home",
		"user-member",
		[]string{"team-home"},
		firstPage.NextCursor,
		1,
	)
	if err != nil {
		t.Fatalf("list second page failed: %v", err)
	}
	if len(secondPage.Items) != 1 {
		t.Fatalf("expected second page size 1, got %d", len(secondPage.Items))
	}
	if secondPage.Items[0].EscrowID == firstPage.Items[0].EscrowID {
		t.Fatalf("expected different session on second page")
	}
}

func TestListTeamSessionsRequiresMembership(t *testing.T) {
	module := lineupescrow.NewInMemoryModule(nil, nil)

	_, err := module.Handler.ListTeamSessionsHandler(
		context.Background(),
		"team-home",
		"user-outsider",
		[]string{"team-elsewhere"},
		"",
		0,
	)
	if !errors.Is(err, domainerrors.ErrUnauthorized) {
		t.Fatalf("expected unauthorized error, got %v", err)
	}
}

func TestViewLedgerRecordsTokenAccess(t *testing.T) {
	module := lineupescrow.NewInMemoryModule(nil, nil)

	created, err := module.Handler.CreateSessionHandler(context.Background(), "user-init", createRequest(), "")
	if err != nil {
		t.Fatalf("create session should succeed: %v", err)
	}
	token := tokenFromShareURL(t, created.ShareURL)

	if _, err := module.Handler.FetchExchangeHandler(context.Background(), token, "203.0.113.9"); err != nil {
		t.Fatalf("token fetch should succeed: %v", err)
	}
	if _, err := module.Handler.SubmitLineupHandler(
		context.Background(),
		token,
		httptransport.SubmitLineupRequest{Lineup: []string{"Q1"}},
		"203.0.113.9",
	); err != nil {
		t.Fatalf("submit should succeed: %v", err)
	}

	views, err := module.Handler.ListViewsHandler(context.Background(), created.EscrowID, "user-init")
	if err != nil {
		t.Fatalf("list views should succeed: %v", err)
	}
	if len(views.Items) != 2 {
		t.Fatalf("expected two recorded views, got %d", len(views.Items))
	}
	for _, view := range views.Items {
		if view.ViewerContact != "jordan@example.com" {
			t.Fatalf("expected recipient contact on token views, got %q", view.ViewerContact)
		}
		if view.IPAddress != "203.0.113.9" {
			t.Fatalf("expected recorded ip, got %q", view.IPAddress)
		}
	}
}

func TestListViewsRequiresInitiator(t *testing.T) {
	module := lineupescrow.NewInMemoryModule(nil, nil)

	created, err := module.Handler.CreateSessionHandler(context.Background(), "user-init", createRequest(), "")
	if err != nil {
		t.Fatalf("create session should succeed: %v", err)
	}

	_, err = module.Handler.ListViewsHandler(context.Background(), created.EscrowID, "user-other")
	if !errors.Is(err, domainerrors.ErrUnauthorized) {
		t.Fatalf("expected unauthorized error, got %v", err)
	}
}

func TestSavedLineupFlow(t *testing.T) {
	module := lineupescrow.NewInMemoryModule(nil, nil)

	saved, err := module.Handler.SaveLineupHandler(context.Background(), "user-init", httptransport.SaveLineupRequest{
		TeamID: "team-home",
		Name:   "weekly",
		Lineup: []string{"S1", "S2", "S3"},
	})
	if err != nil {
		t.Fatalf("save lineup should succeed: %v", err)
	}
	if saved.Item.Name != "weekly" {
		t.Fatalf("expected saved template name, got %q", saved.Item.Name)
	}

	req := createRequest()
	req.Lineup = nil
	req.SavedLineupName = "weekly"
	created, err := module.Handler.CreateSessionHandler(context.Background(), "user-init", req, "")
	if err != nil {
		t.Fatalf("create from saved lineup should succeed: %v", err)
	}

	detail, err := module.Handler.GetSessionHandler(context.Background(), created.EscrowID, "user-init", nil, "")
	if err != nil {
		t.Fatalf("initiator detail should succeed: %v", err)
	}
	if strings.Join(detail.Item.InitiatorLineup, ",") != "S1,S2,S3" {
		t.Fatalf("expected lineup from saved template, got %v", detail.Item.InitiatorLineup)
	}

	listed, err := module.Handler.ListSavedLineupsHandler(context.Background(), "user-init", "team-home")
	if err != nil {
		t.Fatalf("list saved lineups should succeed: %v", err)
	}
	if len(listed.Items) != 1 {
		t.Fatalf("expected one saved template, got %d", len(listed.Items))
	}
}

func TestCreateFromMissingSavedLineup(t *testing.T) {
	module := lineupescrow.NewInMemoryModule(nil, nil)

	req := createRequest()
	req.Lineup = nil
	req.SavedLineupName = "missing"
	_, err := module.Handler.CreateSessionHandler(context.Background(), "user-init", req, "")
	if !errors.Is(err, domainerrors.ErrSavedLineupNotFound) {
		t.Fatalf("expected saved lineup not found, got %v", err)
	}
}

func TestSaveLineupReplacesExisting(t *testing.T) {
	module := lineupescrow.NewInMemoryModule(nil, nil)

	if _, err := module.Handler.SaveLineupHandler(context.Background(), "user-init", httptransport.SaveLineupRequest{
		TeamID: "team-home",
		Name:   "weekly",
		Lineup: []string{"S1"},
	}); err != nil {
		t.Fatalf("first save should succeed: %v", err)
	}

	if _, err := module.Handler.SaveLineupHandler(context.Background(), "user-init", httptransport.SaveLineupRequest{
		TeamID: "team-home",
		Name:   "weekly",
		Lineup: []string{"S1", "S2"},
	}); err != nil {
		t.Fatalf("second save should replace: %v", err)
	}

	listed, err := module.Handler.ListSavedLineupsHandler(context.Background(), "user-init", "team-home")
	if err != nil {
		t.Fatalf("list saved lineups should succeed: %v", err)
	}
	if len(listed.Items) != 1 {
		t.Fatalf("expected one saved template after replace, got %d", len(listed.Items))
	}
	if strings.Join(listed.Items[0].Lineup, ",") != "S1,S2" {
		t.Fatalf("expected replaced lineup data, got %v", listed.Items[0].Lineup)
	}
}

func TestOutboxCarriesLifecycleEvents(t *testing.T) {
	module := lineupescrow.NewInMemoryModule(nil, nil)

	created, err := module.Handler.CreateSessionHandler(context.Background(), "user-init", createRequest(), "")
	if err != nil {
		t.Fatalf("create session should succeed: %v", err)
	}
	token := tokenFromShareURL(t, created.ShareURL)
	if _, err := module.Handler.SubmitLineupHandler(
		context.Background(),
		token,
		httptransport.SubmitLineupRequest{Lineup: []string{"Q1"}},
		"",
	); err != nil {
		t.Fatalf("submit should succeed: %v", err)
	}

	messages := module.Store.OutboxEvents()
	if len(messages) != 2 {
		t.Fatalf("expected two outbox rows, got %d", len(messages))
	}
	if messages[0].EventType != "escrow.created" || messages[1].EventType != "escrow.completed" {
		t.Fatalf("unexpected event types %s, %s", messages[0].EventType, messages[1].EventType)
	}
	for _, message := range messages {
		if message.PartitionKey != created.EscrowID {
			t.Fatalf("expected partition key %s, got %s", created.EscrowID, message.PartitionKey)
		}
		var envelope ports.EventEnvelope
		if err := json.Unmarshal(message.Payload, &envelope); err != nil {
			t.Fatalf("outbox payload should be an envelope: %v", err)
		}
		if envelope.SourceService != "lineup-escrow-service" {
			t.Fatalf("unexpected source service %q", envelope.SourceService)
		}
		if envelope.SchemaVersion != 1 {
			t.Fatalf("unexpected schema version %d", envelope.SchemaVersion)
		}
	}
}
