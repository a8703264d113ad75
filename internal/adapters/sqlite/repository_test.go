package sqlite

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"candleView/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockLogger implements ports.Logger for testing
type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

// setupTestDB creates a temporary database for testing
func setupTestDB(t *testing.T) (*Repository, string, func()) {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "candleview-test-*")
	require.NoError(t, err)

	dbPath := filepath.Join(tmpDir, "test.db")
	repo, err := NewRepository(Config{
		DBPath: dbPath,
		Logger: &mockLogger{},
	})
	require.NoError(t, err)

	cleanup := func() {
		repo.Close()
		os.RemoveAll(tmpDir)
	}

	return repo, dbPath, cleanup
}

func TestRepository_LoadDefaults(t *testing.T) {
	repo, _, cleanup := setupTestDB(t)
	defer cleanup()

	// A fresh store has no rows; absent values mean defaults, not errors.
	prefs, err := repo.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.Preferences{}, prefs)
}

func TestRepository_SaveAndLoad(t *testing.T) {
	tests := []struct {
		name string
		save func(context.Context, *Repository) error
		want domain.Preferences
	}{
		{
			name: "log scale on",
			save: func(ctx context.Context, r *Repository) error {
				return r.SaveLogScale(ctx, true)
			},
			want: domain.Preferences{LogScale: true},
		},
		{
			name: "time format on",
			save: func(ctx context.Context, r *Repository) error {
				return r.SaveTimeFormat12h(ctx, true)
			},
			want: domain.Preferences{TimeFormat12h: true},
		},
		{
			name: "both toggles",
			save: func(ctx context.Context, r *Repository) error {
				if err := r.SaveLogScale(ctx, true); err != nil {
					return err
				}
				return r.SaveTimeFormat12h(ctx, true)
			},
			want: domain.Preferences{LogScale: true, TimeFormat12h: true},
		},
		{
			name: "overwrite wins",
			save: func(ctx context.Context, r *Repository) error {
				if err := r.SaveLogScale(ctx, true); err != nil {
					return err
				}
				return r.SaveLogScale(ctx, false)
			},
			want: domain.Preferences{LogScale: false},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, _, cleanup := setupTestDB(t)
			defer cleanup()

			ctx := context.Background()
			require.NoError(t, tt.save(ctx, repo))

			got, err := repo.Load(ctx)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRepository_PersistsAcrossReopen(t *testing.T) {
	repo, dbPath, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	require.NoError(t, repo.SaveLogScale(ctx, true))
	require.NoError(t, repo.SaveTimeFormat12h(ctx, true))
	require.NoError(t, repo.Close())

	reopened, err := NewRepository(Config{DBPath: dbPath, Logger: &mockLogger{}})
	require.NoError(t, err)
	defer reopened.Close()

	prefs, err := reopened.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.Preferences{LogScale: true, TimeFormat12h: true}, prefs)
}
