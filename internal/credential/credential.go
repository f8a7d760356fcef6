// Package credential stores the per-protocol secrets adapters need to open
// a session: the bridge's host and application key, the mesh controller's
// fabric id. Issuing credentials (bridge link-button pairing, fabric
// creation) happens elsewhere; adapters only look them up.
package credential

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-lighting/internal/lighting"
)

// ErrNotFound is returned when no credential is stored for a protocol.
var ErrNotFound = errors.New("credential: not found")

// ErrInvalid is returned by Put for a credential without a secret.
var ErrInvalid = errors.New("credential: invalid")

// Credential is the stored session material for one protocol.
type Credential struct {
	Protocol lighting.Protocol
	// Host is the endpoint address. Empty for protocols reached through MQTT.
	Host      string
	Secret    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Store looks credentials up by protocol.
type Store interface {
	Lookup(ctx context.Context, protocol lighting.Protocol) (Credential, error)
	Put(ctx context.Context, c Credential) error
}

// SQLiteStore implements Store using the credentials table.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a credential store over an open, migrated database.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Lookup returns the credential for protocol or ErrNotFound.
func (s *SQLiteStore) Lookup(ctx context.Context, protocol lighting.Protocol) (Credential, error) {
	c := Credential{Protocol: protocol}
	var createdAt, updatedAt string

	err := s.db.QueryRowContext(ctx,
		`SELECT host, secret, created_at, updated_at FROM credentials WHERE protocol = ?`,
		string(protocol),
	).Scan(&c.Host, &c.Secret, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Credential{}, ErrNotFound
		}
		return Credential{}, fmt.Errorf("querying credential: %w", err)
	}

	c.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled
	c.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt) //nolint:errcheck // format is controlled
	return c, nil
}

// Put stores c, replacing any credential for the same protocol.
func (s *SQLiteStore) Put(ctx context.Context, c Credential) error {
	if !c.Protocol.Valid() {
		return fmt.Errorf("%w: unknown protocol %q", ErrInvalid, c.Protocol)
	}
	if c.Secret == "" {
		return fmt.Errorf("%w: secret is required", ErrInvalid)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO credentials (protocol, host, secret, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(protocol) DO UPDATE SET
			host = excluded.host,
			secret = excluded.secret,
			updated_at = excluded.updated_at`,
		string(c.Protocol), c.Host, c.Secret, now, now,
	)
	if err != nil {
		return fmt.Errorf("storing credential: %w", err)
	}
	return nil
}

// Require looks up the credential for protocol and reports absence as a
// connection error wrapping lighting.ErrNoCredential, the form adapters
// return from Connect.
func Require(ctx context.Context, s Store, protocol lighting.Protocol) (Credential, error) {
	c, err := s.Lookup(ctx, protocol)
	if err == nil {
		return c, nil
	}
	if errors.Is(err, ErrNotFound) {
		return Credential{}, &lighting.ConnectionError{Protocol: protocol, Err: lighting.ErrNoCredential}
	}
	return Credential{}, &lighting.ConnectionError{Protocol: protocol, Err: err}
}
