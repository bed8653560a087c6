package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/cppla/teamfeed/config"
	"github.com/cppla/teamfeed/models"
	"github.com/cppla/teamfeed/storage"
	"github.com/cppla/teamfeed/utils"
)

var testCfg config.AppConfig

func TestMain(m *testing.M) {
	testCfg = config.Set(config.AppConfig{JWTSecret: "test-secret", LogLevel: "silent", TimeZone: "UTC"})
	utils.SetRedis(nil)
	os.Exit(m.Run())
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
		TranslateError:                           true,
		NowFunc:                                  func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// every connection to :memory: is a separate database
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(models.All()...))
	return db
}

func newTestBlobs(t *testing.T) *storage.Local {
	t.Helper()
	l, err := storage.NewLocal(t.TempDir())
	require.NoError(t, err)
	return l
}

func createUser(t *testing.T, db *gorm.DB, username string) models.User {
	t.Helper()
	u := models.User{Username: username, Email: username + "@example.com"}
	require.NoError(t, db.Create(&u).Error)
	return u
}

func memUpload(name, contentType, body string) Upload {
	return Upload{
		Name:        name,
		ContentType: contentType,
		Size:        int64(len(body)),
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(strings.NewReader(body)), nil
		},
	}
}

func requireKind(t *testing.T, err error, kind Kind) *Error {
	t.Helper()
	require.Error(t, err)
	var se *Error
	require.True(t, errors.As(err, &se), "expected *store.Error, got %T: %v", err, err)
	require.Equal(t, kind, se.Kind, "error: %v", err)
	return se
}

// failingBlobs fails every Put after the first n.
type failingBlobs struct {
	storage.Storage
	n    int
	puts int
}

func (f *failingBlobs) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	f.puts++
	if f.puts > f.n {
		return fmt.Errorf("disk full")
	}
	return f.Storage.Put(ctx, key, r, size, contentType)
}
