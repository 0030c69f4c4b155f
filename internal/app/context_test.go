package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"portfolio/internal/config"
	"portfolio/internal/db"
	"portfolio/internal/events"
	"portfolio/internal/migrate"
)

func TestOpenMigratesAndSeeds(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	cfg := `master_data:
  leaders: [Bo, Ana]
  departments: [Ops]
`
	require.NoError(t, os.WriteFile(config.Path(dir), []byte(cfg), 0o644))

	ws, err := Open(ctx, dir, "setup", nil)
	require.NoError(t, err)
	require.FileExists(t, db.Path(dir))

	version, err := migrate.Version(ws.DB)
	require.NoError(t, err)
	require.EqualValues(t, 1, version)

	md, err := ws.Engine.Repo.GetMasterData(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"Ana", "Bo"}, md.Leaders)
	require.Equal(t, []string{"Ops"}, md.Departments)
	require.Len(t, md.Statuses, 5)
	require.NoError(t, ws.Close())

	ws, err = Open(ctx, dir, "setup", nil)
	require.NoError(t, err)
	defer ws.Close()
	evs, err := ws.Engine.Repo.LatestEvents(ctx, 10, "", events.MasterDataReplaced)
	require.NoError(t, err)
	require.Len(t, evs, 1, "reopening must not reseed master data")
	require.Equal(t, "setup", evs[0].ActorID)
}

func TestOpenWithoutConfigUsesDefaults(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "fresh")
	ws, err := Open(context.Background(), dir, "", nil)
	require.NoError(t, err)
	defer ws.Close()
	require.Equal(t, "Deleted", ws.Config.Lifecycle.DeletedStatus)
	require.Equal(t, dir, ws.Path)
}

func TestOpenRejectsInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(config.Path(dir), []byte("weights:\n  expected_total: -1\n"), 0o644))
	_, err := Open(context.Background(), dir, "", nil)
	require.ErrorContains(t, err, "load config")
}
