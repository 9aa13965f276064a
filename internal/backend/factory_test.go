package backend

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dompet/internal/config"
	"dompet/internal/core"
	"dompet/internal/timeline"
)

func TestBackendTypeIsValid(t *testing.T) {
	for _, bt := range GetBackendTypes() {
		assert.True(t, bt.IsValid(), bt)
	}
	assert.False(t, BackendType("sheets").IsValid())
	assert.Equal(t, []string{"memory", "sqlite", "remote"}, GetBackendTypeStrings())
}

func TestFromAppConfig(t *testing.T) {
	_, err := FromAppConfig(nil)
	assert.Error(t, err)

	_, err = FromAppConfig(&config.Config{DataBackend: "nope"})
	assert.Error(t, err)

	cfg, err := FromAppConfig(&config.Config{
		DataBackend:     "remote",
		FinanceAPIURL:   "http://localhost:3000",
		FinanceAPIToken: "secret",
		Timezone:        "UTC",
	})
	require.NoError(t, err)
	assert.Equal(t, RemoteBackend, cfg.Type)
	assert.Equal(t, "secret", cfg.FinanceAPIToken)
	assert.NotNil(t, cfg.Generator)
	assert.Equal(t, time.UTC, cfg.Location)
}

func TestConfigValidate(t *testing.T) {
	assert.Error(t, Config{Type: SQLiteBackend}.Validate())
	assert.Error(t, Config{Type: RemoteBackend}.Validate())
	assert.NoError(t, Config{Type: MemoryBackend}.Validate())
}

func exercise(t *testing.T, b Backend) {
	t.Helper()
	ctx := context.Background()

	created, err := b.Create(ctx, core.Transaction{
		Type:        core.Expense,
		Amount:      core.Money{Amount: 42000},
		Description: "Bakso",
	})
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)

	page, err := b.ListTransactions(ctx, core.Expense, 1)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)

	ai, err := b.CreateAIResponse(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, ai.Message)

	list, err := b.ListAIResponses(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	v := timeline.NewView(core.AIResponseRecords(list))
	assert.Equal(t, ai.Record().Key(), v.SelectedDate())

	assert.NoError(t, b.Ping(ctx))
}

func TestCreateMemoryBackend(t *testing.T) {
	res, err := NewFactory(nil).CreateBackend(context.Background(), Config{Type: MemoryBackend})
	require.NoError(t, err)
	assert.Nil(t, res.Cleanup)
	exercise(t, res.Backend)
}

func TestCreateSQLiteBackend(t *testing.T) {
	res, err := NewFactory(nil).CreateBackend(context.Background(), Config{
		Type:         SQLiteBackend,
		SQLiteDBPath: filepath.Join(t.TempDir(), "dompet.db"),
		Location:     time.UTC,
	})
	require.NoError(t, err)
	require.NotNil(t, res.Cleanup)
	t.Cleanup(func() { _ = res.Cleanup() })
	exercise(t, res.Backend)
}

func TestCreateRemoteBackend(t *testing.T) {
	res, err := NewFactory(nil).CreateBackend(context.Background(), Config{
		Type:          RemoteBackend,
		FinanceAPIURL: "http://localhost:3000",
	})
	require.NoError(t, err)
	assert.NotNil(t, res.Backend)

	_, err = NewFactory(nil).CreateBackend(context.Background(), Config{
		Type:          RemoteBackend,
		FinanceAPIURL: "ftp://example.com",
	})
	assert.Error(t, err)
}

func TestCreateInvalidBackend(t *testing.T) {
	_, err := NewFactory(nil).CreateBackend(context.Background(), Config{Type: "sheets"})
	assert.Error(t, err)
}
