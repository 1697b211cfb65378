package setup_test

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"live-session/internal/domain"
	"live-session/internal/infra/setup"
)

func TestInitDBAndMigrate(t *testing.T) {
	db, err := setup.InitDB("sqlite", "file::memory:")
	require.NoError(t, err)

	require.NoError(t, setup.MigrateDB(db))
	assert.True(t, db.Migrator().HasTable(&domain.Report{}))

	// 重复迁移是幂等的
	require.NoError(t, setup.MigrateDB(db))
}

func TestInitDB_Rejects(t *testing.T) {
	_, err := setup.InitDB("postgres", "dsn")
	assert.Error(t, err)

	_, err = setup.InitDB("sqlite", "")
	assert.Error(t, err)

	assert.Error(t, setup.MigrateDB(nil))
}

func TestInitRedis(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := setup.InitRedis(mr.Addr(), "", 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	mr.Close()
	_, err = setup.InitRedis(mr.Addr(), "", 0)
	assert.Error(t, err)

	_, err = setup.InitRedis("", "", 0)
	assert.Error(t, err)
}
