package device

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-lighting/internal/lighting"
)

// Repository is the persistence gateway for devices and rooms.
// Implementations must be safe for concurrent use.
type Repository interface {
	// FindDevice looks a device up by its protocol identity.
	// Returns ErrDeviceNotFound if no such device is stored.
	FindDevice(ctx context.Context, protocol lighting.Protocol, externalID string) (*Device, error)

	// GetByID retrieves a device by its canonical id.
	GetByID(ctx context.Context, id string) (*Device, error)

	// ListDevices retrieves all devices ordered by name.
	ListDevices(ctx context.Context) ([]Device, error)

	// UpsertDevice inserts d, or updates the stored device with the same
	// protocol identity. The stored canonical id is kept; the saved row is
	// returned.
	UpsertDevice(ctx context.Context, d *Device) (*Device, error)

	// UpdateState merges state into the stored state field by field.
	UpdateState(ctx context.Context, id string, state lighting.State) error

	// UpdateOnline records reachability and the time the device was last seen.
	UpdateOnline(ctx context.Context, id string, online bool, lastSeen time.Time) error

	// DeleteDevice removes a device by canonical id.
	DeleteDevice(ctx context.Context, id string) error

	// UpsertRoom creates the named room if missing and returns it.
	UpsertRoom(ctx context.Context, name, archetype string) (*Room, error)

	// ListRooms retrieves all rooms ordered by name.
	ListRooms(ctx context.Context) ([]Room, error)
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
// The db parameter should be an open, migrated SQLite connection.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const deviceColumns = `
		d.id, d.protocol, d.external_id, d.name, d.type, d.room_id,
		COALESCE(r.name, ''), d.capabilities, d.state, d.online,
		d.state_updated_at, d.last_seen, d.created_at, d.updated_at
	FROM devices d
	LEFT JOIN rooms r ON r.id = d.room_id`

// FindDevice looks a device up by (protocol, external id).
func (r *SQLiteRepository) FindDevice(ctx context.Context, protocol lighting.Protocol, externalID string) (*Device, error) {
	query := `SELECT` + deviceColumns + `
		WHERE d.protocol = ? AND d.external_id = ?`

	d, err := scanDevice(r.db.QueryRowContext(ctx, query, string(protocol), externalID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("querying device by external id: %w", err)
	}
	return d, nil
}

// GetByID retrieves a device by its canonical id.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Device, error) {
	query := `SELECT` + deviceColumns + `
		WHERE d.id = ?`

	d, err := scanDevice(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("querying device by id: %w", err)
	}
	return d, nil
}

// ListDevices retrieves all devices.
func (r *SQLiteRepository) ListDevices(ctx context.Context) ([]Device, error) {
	query := `SELECT` + deviceColumns + `
		ORDER BY d.name, d.id`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying devices: %w", err)
	}
	defer rows.Close()

	var devices []Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning device: %w", err)
		}
		devices = append(devices, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating devices: %w", err)
	}
	return devices, nil
}

// UpsertDevice inserts or updates d keyed by (protocol, external id).
func (r *SQLiteRepository) UpsertDevice(ctx context.Context, d *Device) (*Device, error) {
	if err := ValidateDevice(d); err != nil {
		return nil, err
	}

	capsJSON, err := json.Marshal(d.Capabilities)
	if err != nil {
		return nil, fmt.Errorf("marshalling capabilities: %w", err)
	}
	stateJSON, err := json.Marshal(d.State)
	if err != nil {
		return nil, fmt.Errorf("marshalling state: %w", err)
	}

	id := d.ID
	if id == "" {
		id = uuid.NewString()
	}
	now := time.Now().UTC()
	created := d.CreatedAt
	if created.IsZero() {
		created = now
	}

	query := `
		INSERT INTO devices (
			id, protocol, external_id, name, type, room_id,
			capabilities, state, online, state_updated_at, last_seen,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(protocol, external_id) DO UPDATE SET
			name = excluded.name,
			type = excluded.type,
			room_id = COALESCE(excluded.room_id, devices.room_id),
			capabilities = excluded.capabilities,
			state = excluded.state,
			online = excluded.online,
			state_updated_at = excluded.state_updated_at,
			last_seen = COALESCE(excluded.last_seen, devices.last_seen),
			updated_at = excluded.updated_at`

	_, err = r.db.ExecContext(ctx, query,
		id,
		string(d.Protocol),
		d.ExternalID,
		d.Name,
		string(d.Type),
		nullableString(d.RoomID),
		string(capsJSON),
		string(stateJSON),
		boolToInt(d.Online),
		now.Format(time.RFC3339),
		nullableTime(d.LastSeen),
		created.Format(time.RFC3339),
		now.Format(time.RFC3339),
	)
	if err != nil {
		return nil, fmt.Errorf("upserting device: %w", err)
	}

	return r.FindDevice(ctx, d.Protocol, d.ExternalID)
}

// UpdateState merges the given state fields into the device's existing state.
// json_patch keeps every stored key absent from the patch, so unknown fields
// never erase known ones.
func (r *SQLiteRepository) UpdateState(ctx context.Context, id string, state lighting.State) error {
	stateJSON, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshalling state: %w", err)
	}

	now := time.Now().UTC()
	query := `
		UPDATE devices
		SET state = json_patch(COALESCE(state, '{}'), ?),
		    state_updated_at = ?,
		    updated_at = ?
		WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query,
		string(stateJSON),
		now.Format(time.RFC3339),
		now.Format(time.RFC3339),
		id,
	)
	if err != nil {
		return fmt.Errorf("updating device state: %w", err)
	}
	return requireRow(result)
}

// UpdateOnline records reachability and last seen time.
func (r *SQLiteRepository) UpdateOnline(ctx context.Context, id string, online bool, lastSeen time.Time) error {
	now := time.Now().UTC()
	query := `
		UPDATE devices
		SET online = ?, last_seen = ?, updated_at = ?
		WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query,
		boolToInt(online),
		lastSeen.UTC().Format(time.RFC3339),
		now.Format(time.RFC3339),
		id,
	)
	if err != nil {
		return fmt.Errorf("updating device online: %w", err)
	}
	return requireRow(result)
}

// DeleteDevice removes a device by canonical id.
func (r *SQLiteRepository) DeleteDevice(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM devices WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting device: %w", err)
	}
	return requireRow(result)
}

// UpsertRoom creates the named room if it does not exist. A non-empty
// archetype replaces the stored one.
func (r *SQLiteRepository) UpsertRoom(ctx context.Context, name, archetype string) (*Room, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}

	now := time.Now().UTC().Format(time.RFC3339)
	query := `
		INSERT INTO rooms (id, name, slug, archetype, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			archetype = COALESCE(excluded.archetype, rooms.archetype),
			updated_at = excluded.updated_at`

	_, err := r.db.ExecContext(ctx, query,
		uuid.NewString(),
		name,
		GenerateSlug(name),
		nullableString(&archetype),
		now,
		now,
	)
	if err != nil {
		return nil, fmt.Errorf("upserting room: %w", err)
	}

	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, slug, archetype, created_at, updated_at
		FROM rooms WHERE name = ?`, name)
	room, err := scanRoom(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRoomNotFound
		}
		return nil, fmt.Errorf("querying room: %w", err)
	}
	return room, nil
}

// ListRooms retrieves all rooms.
func (r *SQLiteRepository) ListRooms(ctx context.Context) ([]Room, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, slug, archetype, created_at, updated_at
		FROM rooms ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("querying rooms: %w", err)
	}
	defer rows.Close()

	var rooms []Room
	for rows.Next() {
		room, err := scanRoom(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning room: %w", err)
		}
		rooms = append(rooms, *room)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rooms: %w", err)
	}
	return rooms, nil
}

// rowScanner is an interface that sql.Row and sql.Rows both implement.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanDevice(scanner rowScanner) (*Device, error) {
	var d Device
	var protocol, deviceType string
	var roomID, stateUpdatedAt, lastSeen sql.NullString
	var capsJSON, stateJSON string
	var online int
	var createdAt, updatedAt string

	err := scanner.Scan(
		&d.ID,
		&protocol,
		&d.ExternalID,
		&d.Name,
		&deviceType,
		&roomID,
		&d.RoomName,
		&capsJSON,
		&stateJSON,
		&online,
		&stateUpdatedAt,
		&lastSeen,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	d.Protocol = lighting.Protocol(protocol)
	d.Type = lighting.DeviceType(deviceType)
	d.Online = online != 0
	if roomID.Valid {
		d.RoomID = &roomID.String
	}
	d.StateUpdatedAt = parseNullableTime(stateUpdatedAt)
	d.LastSeen = parseNullableTime(lastSeen)

	var parseErr error
	d.CreatedAt, parseErr = time.Parse(time.RFC3339, createdAt)
	if parseErr != nil {
		return nil, fmt.Errorf("parsing created_at: %w", parseErr)
	}
	d.UpdatedAt, parseErr = time.Parse(time.RFC3339, updatedAt)
	if parseErr != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", parseErr)
	}

	if err := json.Unmarshal([]byte(capsJSON), &d.Capabilities); err != nil {
		return nil, fmt.Errorf("unmarshalling capabilities: %w", err)
	}
	if err := json.Unmarshal([]byte(stateJSON), &d.State); err != nil {
		return nil, fmt.Errorf("unmarshalling state: %w", err)
	}
	return &d, nil
}

func scanRoom(scanner rowScanner) (*Room, error) {
	var room Room
	var archetype sql.NullString
	var createdAt, updatedAt string

	if err := scanner.Scan(&room.ID, &room.Name, &room.Slug, &archetype, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	room.Archetype = archetype.String

	var err error
	if room.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if room.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	return &room, nil
}

func requireRow(result sql.Result) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrDeviceNotFound
	}
	return nil
}

// nullableString returns a sql.NullString for optional string pointers.
func nullableString(s *string) sql.NullString {
	if s == nil || *s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// nullableTime returns a sql.NullString for optional time pointers (as RFC3339 strings).
func nullableTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339), Valid: true}
}

func parseNullableTime(s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s.String)
	if err != nil {
		return nil
	}
	return &t
}

// boolToInt converts a boolean to 0/1 for SQLite storage.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
