package lineupescrow

import (
	"log/slog"
	"time"

	httpadapter "github.com/rossfreedman/rally-sub012/contexts/match-operations/lineup-escrow-service/adapters/http"
	"github.com/rossfreedman/rally-sub012/contexts/match-operations/lineup-escrow-service/adapters/memory"
	"github.com/rossfreedman/rally-sub012/contexts/match-operations/lineup-escrow-service/application/commands"
	"github.com/rossfreedman/rally-sub012/contexts/match-operations/lineup-escrow-service/application/queries"
	"github.com/rossfreedman/rally-sub012/contexts/match-operations/lineup-escrow-service/domain/entities"
	"github.com/rossfreedman/rally-sub012/contexts/match-operations/lineup-escrow-service/ports"
)

// Module is the composition surface for the lineup escrow service.
// Runtime wiring should consume Handler; Store is exposed for tests/inspection.
type Module struct {
	Handler httpadapter.Handler
	Store   *memory.Store
}

type Dependencies struct {
	Sessions       ports.SessionRepository
	Views          ports.ViewLedger
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

// NewModule wires the escrow use-cases against explicit ports.
func NewModule(deps Dependencies) Module {
	createSession := commands.CreateSessionUseCase{
		Sessions:       deps.Sessions,
		SavedLineups:   deps.SavedLineups,
		Idempotency:    deps.Idempotency,
		Tokens:         deps.Tokens,
		Clock:          deps.Clock,
		IDGenerator:    deps.IDGenerator,
		SessionTTL:     deps.SessionTTL,
		IdempotencyTTL: deps.IdempotencyTTL,
		PublicBaseURL:  deps.PublicBaseURL,
		Logger:         deps.Logger,
	}
	submitLineup := commands.SubmitLineupUseCase{
		Sessions:    deps.Sessions,
		Views:       deps.Views,
		Clock:       deps.Clock,
		IDGenerator: deps.IDGenerator,
		Logger:      deps.Logger,
	}
	cancelSession := commands.CancelSessionUseCase{
		Sessions:    deps.Sessions,
		Clock:       deps.Clock,
		IDGenerator: deps.IDGenerator,
		Logger:      deps.Logger,
	}
	saveLineup := commands.SaveLineupUseCase{
		SavedLineups: deps.SavedLineups,
		Clock:        deps.Clock,
		Logger:       deps.Logger,
	}
	fetchByToken := queries.FetchByTokenUseCase{
		Sessions:    deps.Sessions,
		Views:       deps.Views,
		Clock:       deps.Clock,
		IDGenerator: deps.IDGenerator,
		Logger:      deps.Logger,
	}
	getSession := queries.GetSessionUseCase{
		Sessions:    deps.Sessions,
		Views:       deps.Views,
		Clock:       deps.Clock,
		IDGenerator: deps.IDGenerator,
		Logger:      deps.Logger,
	}
	listTeamSessions := queries.ListTeamSessionsUseCase{
		Sessions:    deps.Sessions,
		Clock:       deps.Clock,
		IDGenerator: deps.IDGenerator,
		Logger:      deps.Logger,
	}
	listViews := queries.ListViewsUseCase{
		Sessions: deps.Sessions,
		Views:    deps.Views,
		Logger:   deps.Logger,
	}
	listSavedLineups := queries.ListSavedLineupsUseCase{
		SavedLineups: deps.SavedLineups,
		Logger:       deps.Logger,
	}

	handler := httpadapter.Handler{
		CreateSession:    createSession,
		SubmitLineup:     submitLineup,
		CancelSession:    cancelSession,
		SaveLineup:       saveLineup,
		FetchByToken:     fetchByToken,
		GetSession:       getSession,
		ListTeamSessions: listTeamSessions,
		ListViews:        listViews,
		ListSavedLineups: listSavedLineups,
		Logger:           deps.Logger,
	}

	return Module{Handler: handler}
}

// NewInMemoryModule wires the escrow use cases against in-memory adapters
// for local runtime and tests.
func NewInMemoryModule(seedSessions []entities.EscrowSession, logger *slog.Logger) Module {
	store := memory.NewStore(seedSessions, logger)
	module := NewModule(Dependencies{
		Sessions:       store,
		Views:          store,
		SavedLineups:   store,
		Idempotency:    store,
		Tokens:         store,
		Clock:          store,
		IDGenerator:    store,
		SessionTTL:     48 * time.Hour,
		IdempotencyTTL: 7 * 24 * time.Hour,
		PublicBaseURL:  "http://localhost:8080",
		Logger:         logger,
	})
	module.Store = store
	return module
}
