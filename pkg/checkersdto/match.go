package checkersdto

import "time"

// MatchState is the JSON view of the relay's current match.
type MatchState struct {
	ID          string    `json:"id"`
	Status      string    `json:"status"`
	White       string    `json:"white"`
	Black       string    `json:"black"`
	Version     uint64    `json:"version"`
	Snapshots   int       `json:"snapshots"`
	Result      string    `json:"result,omitempty"`
	PDN         string    `json:"pdn,omitempty"`
	Board       []string  `json:"board,omitempty"`
	Turn        string    `json:"turn,omitempty"`
	WhitePieces int       `json:"white_pieces"`
	BlackPieces int       `json:"black_pieces"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Health is served by /healthz.
type Health struct {
	Status string `json:"status"`
	Match  bool   `json:"match"`
}
