// Package network stores the undirected social graph and answers
// degree-of-separation queries over it.
package network

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/ziadkadry99/expertroute/internal/apperr"
	"github.com/ziadkadry99/expertroute/internal/db"
	"github.com/ziadkadry99/expertroute/internal/visibility"
)

// Connection is one undirected edge, reported from UserID's side.
type Connection struct {
	UserID    string    `json:"user_id"`
	PeerID    string    `json:"peer_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Store persists connections and runs breadth-first searches bounded by
// maxDepth. Anything farther is reported as visibility.Unreachable.
type Store struct {
	db       *db.DB
	q        db.Querier
	maxDepth int
}

// NewStore creates a Store backed by the given database.
func NewStore(database *db.DB, maxDepth int) *Store {
	return &Store{db: database, q: database, maxDepth: maxDepth}
}

// WithTx returns a Store whose reads run inside tx.
func (s *Store) WithTx(tx *sql.Tx) *Store {
	return &Store{db: s.db, q: tx, maxDepth: s.maxDepth}
}

// MaxDepth returns the search bound.
func (s *Store) MaxDepth() int { return s.maxDepth }

// Connect records an undirected edge between a and b. Connecting an
// existing pair is a no-op.
func (s *Store) Connect(ctx context.Context, a, b string) error {
	if a == "" || b == "" {
		return apperr.Validation("network.Connect", "both user ids are required")
	}
	if a == b {
		return apperr.Validation("network.Connect", "a user cannot connect to themselves")
	}

	now := db.FormatTime(time.Now())
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		for _, pair := range [][2]string{{a, b}, {b, a}} {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO connections (user_id, peer_id, created_at) VALUES (?, ?, ?)
				ON CONFLICT(user_id, peer_id) DO NOTHING`,
				pair[0], pair[1], now,
			); err != nil {
				return fmt.Errorf("inserting connection: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return apperr.StoreUnavailable("network.Connect", err)
	}
	return nil
}

// Disconnect removes the edge between a and b in both directions.
func (s *Store) Disconnect(ctx context.Context, a, b string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM connections
		WHERE (user_id = ? AND peer_id = ?) OR (user_id = ? AND peer_id = ?)`,
		a, b, b, a,
	)
	if err != nil {
		return apperr.StoreUnavailable("network.Disconnect", fmt.Errorf("deleting connection: %w", err))
	}
	return nil
}

// Peers returns the direct connections of userID, ordered by peer id.
func (s *Store) Peers(ctx context.Context, userID string) ([]Connection, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT user_id, peer_id, created_at FROM connections
		WHERE user_id = ? ORDER BY peer_id`, userID)
	if err != nil {
		return nil, apperr.StoreUnavailable("network.Peers", fmt.Errorf("querying peers: %w", err))
	}
	defer rows.Close()

	var out []Connection
	for rows.Next() {
		var (
			c  Connection
			ts string
		)
		if err := rows.Scan(&c.UserID, &c.PeerID, &ts); err != nil {
			return nil, apperr.StoreUnavailable("network.Peers", fmt.Errorf("scanning peer: %w", err))
		}
		c.CreatedAt = db.ParseTime(ts)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.StoreUnavailable("network.Peers", err)
	}
	return out, nil
}

// Degree returns the hop count from one user to another, or Unreachable
// when no path exists within the search bound.
func (s *Store) Degree(ctx context.Context, from, to string) (visibility.Degree, error) {
	if from == to {
		return 0, nil
	}
	found := visibility.Unreachable
	err := s.bfs(ctx, from, func(id string, d int) bool {
		if id == to {
			found = visibility.Degree(d)
			return false
		}
		return true
	})
	if err != nil {
		return visibility.Unreachable, err
	}
	return found, nil
}

// Neighborhood returns every user within the search bound of userID, keyed
// by degree. userID itself is not included.
func (s *Store) Neighborhood(ctx context.Context, userID string) (map[string]visibility.Degree, error) {
	out := make(map[string]visibility.Degree)
	err := s.bfs(ctx, userID, func(id string, d int) bool {
		out[id] = visibility.Degree(d)
		return true
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// DegreesTo resolves the degree of each target from userID with one search.
// Targets outside the search bound map to Unreachable.
func (s *Store) DegreesTo(ctx context.Context, userID string, targets []string) (map[string]visibility.Degree, error) {
	hood, err := s.Neighborhood(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make(map[string]visibility.Degree, len(targets))
	for _, t := range targets {
		switch {
		case t == userID:
			out[t] = 0
		default:
			if d, ok := hood[t]; ok {
				out[t] = d
			} else {
				out[t] = visibility.Unreachable
			}
		}
	}
	return out, nil
}

// bfs expands the graph one frontier at a time, calling visit for every
// newly discovered user. visit returns false to stop early.
func (s *Store) bfs(ctx context.Context, start string, visit func(id string, degree int) bool) error {
	seen := map[string]bool{start: true}
	frontier := []string{start}

	for depth := 1; depth <= s.maxDepth && len(frontier) > 0; depth++ {
		peers, err := s.peersOf(ctx, frontier)
		if err != nil {
			return err
		}
		var next []string
		for _, p := range peers {
			if seen[p] {
				continue
			}
			seen[p] = true
			if !visit(p, depth) {
				return nil
			}
			next = append(next, p)
		}
		frontier = next
	}
	return nil
}

func (s *Store) peersOf(ctx context.Context, users []string) ([]string, error) {
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(users)), ",")
	args := make([]any, len(users))
	for i, u := range users {
		args[i] = u
	}

	rows, err := s.q.QueryContext(ctx,
		"SELECT DISTINCT peer_id FROM connections WHERE user_id IN ("+placeholders+") ORDER BY peer_id",
		args...,
	)
	if err != nil {
		return nil, apperr.StoreUnavailable("network.bfs", fmt.Errorf("expanding frontier: %w", err))
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, apperr.StoreUnavailable("network.bfs", fmt.Errorf("scanning peer: %w", err))
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.StoreUnavailable("network.bfs", err)
	}
	return out, nil
}
