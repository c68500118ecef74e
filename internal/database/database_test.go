package database_test

import (
	"context"
	"path/filepath"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-webgrader/internal/database"
	"github.com/noah-isme/gema-webgrader/internal/models"
)

func TestConnectSQLiteMigratesSchema(t *testing.T) {
	db, err := database.Connect(database.DriverSQLite, filepath.Join(t.TempDir(), "grades.db"))
	require.NoError(t, err)

	require.True(t, db.Migrator().HasTable(&models.GradeRun{}))
	require.True(t, db.Migrator().HasTable(&models.GradeRecord{}))
}

func TestConnectRejectsUnknownDriver(t *testing.T) {
	_, err := database.Connect("mongo", "mongodb://localhost")
	require.Error(t, err)

	_, err = database.Connect(database.DriverSQLite, "")
	require.Error(t, err)
}

func TestConnectRedis(t *testing.T) {
	mini, err := miniredis.Run()
	require.NoError(t, err)
	defer mini.Close()

	client, err := database.ConnectRedis(context.Background(), "redis://"+mini.Addr())
	require.NoError(t, err)
	defer client.Close()

	_, err = database.ConnectRedis(context.Background(), "")
	require.Error(t, err)
}
