package audit_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/gray-logic-lighting/internal/audit"
	"github.com/nerrad567/gray-logic-lighting/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-lighting/internal/lighting"
	_ "github.com/nerrad567/gray-logic-lighting/migrations"
)

func newRepo(t *testing.T) *audit.SQLiteRepository {
	t.Helper()
	db, err := database.Open(database.Config{Path: filepath.Join(t.TempDir(), "audit.db"), BusyTimeout: 5})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup
	require.NoError(t, db.Migrate(context.Background()))
	return audit.NewSQLiteRepository(db.DB)
}

func TestCreate_FillsDefaults(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()

	e := &audit.Entry{Action: audit.ActionSync, Subject: "usr-admin"}
	require.NoError(t, repo.Create(ctx, e))

	assert.NotEmpty(t, e.ID)
	assert.Equal(t, audit.OutcomeOK, e.Outcome)
	assert.False(t, e.CreatedAt.IsZero())
}

func TestCreate_RequiresAction(t *testing.T) {
	repo := newRepo(t)

	err := repo.Create(context.Background(), &audit.Entry{DeviceID: "dev-1"})
	assert.ErrorIs(t, err, audit.ErrInvalidEntry)
}

func TestList_RoundTripAndOrder(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 8, 9, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Create(ctx, &audit.Entry{
		Action:    audit.ActionCommission,
		DeviceID:  "dev-1",
		Protocol:  lighting.ProtocolMesh,
		Subject:   "usr-admin",
		Details:   map[string]any{"external_id": "42"},
		CreatedAt: base,
	}))
	require.NoError(t, repo.Create(ctx, &audit.Entry{
		Action:    audit.ActionSetState,
		DeviceID:  "dev-1",
		Protocol:  lighting.ProtocolMesh,
		Subject:   "usr-user",
		Outcome:   audit.OutcomeFailed,
		CreatedAt: base.Add(time.Minute),
	}))

	res, err := repo.List(ctx, audit.Filter{})
	require.NoError(t, err)
	require.Len(t, res.Entries, 2)
	assert.Equal(t, 2, res.Total)
	assert.Equal(t, 50, res.Limit)

	newest := res.Entries[0]
	assert.Equal(t, audit.ActionSetState, newest.Action)
	assert.Equal(t, audit.OutcomeFailed, newest.Outcome)

	oldest := res.Entries[1]
	assert.Equal(t, lighting.ProtocolMesh, oldest.Protocol)
	assert.Equal(t, "42", oldest.Details["external_id"])
	assert.True(t, oldest.CreatedAt.Equal(base))
}

func TestList_Filters(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()

	for _, e := range []audit.Entry{
		{Action: audit.ActionSetState, DeviceID: "dev-1", Subject: "usr-a"},
		{Action: audit.ActionSetState, DeviceID: "dev-2", Subject: "usr-b"},
		{Action: audit.ActionDecommission, DeviceID: "dev-1", Subject: "usr-a"},
		{Action: audit.ActionSync, Subject: "usr-b"},
	} {
		require.NoError(t, repo.Create(ctx, &e))
	}

	tests := []struct {
		name   string
		filter audit.Filter
		want   int
	}{
		{"by action", audit.Filter{Action: audit.ActionSetState}, 2},
		{"by device", audit.Filter{DeviceID: "dev-1"}, 2},
		{"by subject", audit.Filter{Subject: "usr-b"}, 2},
		{"combined", audit.Filter{Action: audit.ActionSetState, Subject: "usr-a"}, 1},
		{"no match", audit.Filter{DeviceID: "dev-9"}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := repo.List(ctx, tt.filter)
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Total)
			assert.Len(t, res.Entries, tt.want)
		})
	}
}

func TestList_Pagination(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()

	for range 5 {
		require.NoError(t, repo.Create(ctx, &audit.Entry{Action: audit.ActionSync}))
	}

	res, err := repo.List(ctx, audit.Filter{Limit: 2, Offset: 4})
	require.NoError(t, err)
	assert.Equal(t, 5, res.Total)
	assert.Len(t, res.Entries, 1)

	res, err = repo.List(ctx, audit.Filter{Limit: 1000, Offset: -3})
	require.NoError(t, err)
	assert.Equal(t, 200, res.Limit)
	assert.Equal(t, 0, res.Offset)
}
