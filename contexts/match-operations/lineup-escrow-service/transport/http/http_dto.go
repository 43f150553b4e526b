package httptransport

type CreateSessionRequest struct {
	TeamID           string   `json:"team_id"`
	RecipientName    string   `json:"recipient_name"`
	RecipientContact string   `json:"recipient_contact"`
	ContactType      string   `json:"contact_type"`
	RecipientTeamID  string   `json:"recipient_team_id,omitempty"`
	Lineup           []string `json:"lineup,omitempty"`
	SavedLineupName  string   `json:"saved_lineup_name,omitempty"`
	Subject          string   `json:"subject,omitempty"`
	MessageBody      string   `json:"message_body,omitempty"`
	TTLSeconds       int      `json:"ttl_seconds,omitempty"`
}

type CreateSessionResponse struct {
	EscrowID  string `json:"escrow_id"`
	Status    string `json:"status"`
	ShareURL  string `json:"share_url"`
	ExpiresAt string `json:"expires_at"`
	Replayed  bool   `json:"replayed,omitempty"`
}

// SessionDTO is the visibility-filtered session document. Absent lineups
// mean the caller is not entitled to them, not that they do not exist.
type SessionDTO struct {
	EscrowID             string   `json:"escrow_id"`
	Status               string   `json:"status"`
	Subject              string   `json:"subject,omitempty"`
	MessageBody          string   `json:"message_body,omitempty"`
	RecipientName        string   `json:"recipient_name"`
	ContactType          string   `json:"contact_type"`
	RecipientContact     string   `json:"recipient_contact,omitempty"`
	InitiatorTeamID      string   `json:"initiator_team_id,omitempty"`
	RecipientTeamID      string   `json:"recipient_team_id,omitempty"`
	CreatedAt            string   `json:"created_at"`
	ExpiresAt            string   `json:"expires_at"`
	InitiatorSubmittedAt string   `json:"initiator_submitted_at"`
	RecipientSubmittedAt string   `json:"recipient_submitted_at,omitempty"`
	InitiatorLineup      []string `json:"initiator_lineup,omitempty"`
	RecipientLineup      []string `json:"recipient_lineup,omitempty"`
}

type ExchangeResponse struct {
	Item SessionDTO `json:"item"`
}

type SubmitLineupRequest struct {
	Lineup []string `json:"lineup"`
}

type SubmitLineupResponse struct {
	Item SessionDTO `json:"item"`
}

type GetSessionResponse struct {
	Item SessionDTO `json:"item"`
}

type ListSessionsResponse struct {
	Items      []SessionDTO `json:"items"`
	NextCursor string       `json:"next_cursor,omitempty"`
}

type CancelSessionResponse struct {
	EscrowID string `json:"escrow_id"`
	Status   string `json:"status"`
}

type ViewDTO struct {
	ViewID        string `json:"view_id"`
	ViewerUserID  string `json:"viewer_user_id,omitempty"`
	ViewerContact string `json:"viewer_contact,omitempty"`
	ViewedAt      string `json:"viewed_at"`
	IPAddress     string `json:"ip_address,omitempty"`
}

type ListViewsResponse struct {
	Items []ViewDTO `json:"items"`
}

type SaveLineupRequest struct {
	TeamID string   `json:"team_id"`
	Name   string   `json:"name"`
	Lineup []string `json:"lineup"`
}

type SavedLineupDTO struct {
	Name      string   `json:"name"`
	TeamID    string   `json:"team_id"`
	Lineup    []string `json:"lineup"`
	UpdatedAt string   `json:"updated_at"`
}

type SaveLineupResponse struct {
	Item SavedLineupDTO `json:"item"`
}

type ListSavedLineupsResponse struct {
	Items []SavedLineupDTO `json:"items"`
}

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
