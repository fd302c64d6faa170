package matchstore

import (
	"context"
	"time"
)

// Status represents the lifecycle of a relayed match.
type Status string

const (
	StatusActive   Status = "ACTIVE"
	StatusFinished Status = "FINISHED"
)

// Match is stored as JSON under match:<id>. White and Black hold the remote
// addresses of the two sessions.
type Match struct {
	ID        string    `json:"id"`
	Status    Status    `json:"status"`
	White     string    `json:"white"`
	Black     string    `json:"black"`
	Version   uint64    `json:"version"`
	Board     string    `json:"board,omitempty"`
	Snapshots int       `json:"snapshots"`
	Result    string    `json:"result,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (m *Match) clone() *Match {
	if m == nil {
		return nil
	}
	cp := *m
	return &cp
}

// accept applies a snapshot commit to m. Untagged snapshots (version 0)
// always pass and leave the version alone.
func (m *Match) accept(version uint64, board string, now time.Time) bool {
	if version != 0 && version <= m.Version {
		return false
	}
	if version != 0 {
		m.Version = version
	}
	m.Board = board
	m.Snapshots++
	m.UpdatedAt = now
	return true
}

func (m *Match) finish(result string, now time.Time) {
	m.Status = StatusFinished
	m.Result = result
	m.UpdatedAt = now
}

// Store keeps the single current match of a relay.
type Store interface {
	// Open starts a new match and makes it current.
	Open(ctx context.Context, white, black string) (*Match, error)
	// Current returns the current match, or nil when there is none.
	Current(ctx context.Context) (*Match, error)
	// CommitSnapshot records board under version. It reports false when the
	// version is not newer than the committed one.
	CommitSnapshot(ctx context.Context, id string, version uint64, board string) (bool, error)
	// Finish marks the match finished with result (WHITE, BLACK or REMIS).
	Finish(ctx context.Context, id, result string) (*Match, error)
	Close() error
}

var (
	ErrInvalidArgs = errf("invalid arguments")
	ErrMatchGone   = errf("match not found or expired")
	ErrFinished    = errf("match already finished")
)

type staticErr string

func (e staticErr) Error() string { return string(e) }
func errf(s string) error         { return staticErr(s) }
