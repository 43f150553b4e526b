package entities

import (
	"fmt"
	"strings"
	"time"

	domainerrors "github.com/rossfreedman/rally-sub012/contexts/match-operations/lineup-escrow-service/domain/errors"
)

// SavedLineup is a named, reusable lineup template keyed by
// (user, team, name). Sessions copy its data at creation time; later edits
// never touch existing sessions.
type SavedLineup struct {
	UserID     string
	TeamID     string
	Name       string
	LineupData Lineup
	IsActive   bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func NewSavedLineup(userID, teamID, name string, data []string, now time.Time) (SavedLineup, error) {
	if strings.TrimSpace(userID) == "" {
		return SavedLineup{}, fmt.Errorf("%w: user id is required", domainerrors.ErrValidation)
	}
	if strings.TrimSpace(teamID) == "" {
		return SavedLineup{}, fmt.Errorf("%w: team id is required", domainerrors.ErrValidation)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return SavedLineup{}, fmt.Errorf("%w: lineup name is required", domainerrors.ErrValidation)
	}
	lineup, err := NormalizeLineup(data)
	if err != nil {
		return SavedLineup{}, err
	}

	now = now.UTC()
	return SavedLineup{
		UserID:     userID,
		TeamID:     teamID,
		Name:       name,
		LineupData: lineup,
		IsActive:   true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}
