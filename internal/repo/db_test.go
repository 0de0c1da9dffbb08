package repo

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite (no CGO)
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-realtime-chat/internal/config"
	"github.com/tbourn/go-realtime-chat/internal/domain"
)

func newTestDB(t *testing.T, migrate bool) *gorm.DB {
	t.Helper()
	// Unique DB per test to avoid schema leaking across tests.
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_pragma=foreign_keys(1)", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if migrate {
		if err := AutoMigrate(db); err != nil {
			t.Fatalf("automigrate: %v", err)
		}
	}
	return db
}

func seedUser(t *testing.T, db *gorm.DB, name string) *domain.User {
	t.Helper()
	u, err := CreateUser(context.Background(), db, name, strings.ToLower(name)+"@example.com", "hash", domain.RoleUser)
	if err != nil {
		t.Fatalf("seed user %s: %v", name, err)
	}
	return u
}

func TestOpenSQLite(t *testing.T) {
	t.Run("missing parent dir", func(t *testing.T) {
		bad := filepath.Join(t.TempDir(), "missing", "chat.db")
		if db, err := OpenSQLite(bad); !os.IsNotExist(err) || db != nil {
			t.Fatalf("got db=%v err=%v", db, err)
		}
	})

	t.Run("pragmas pool and schema", func(t *testing.T) {
		db, err := OpenSQLite(filepath.Join(t.TempDir(), "chat.db"))
		if err != nil {
			t.Fatalf("OpenSQLite: %v", err)
		}
		sqlDB, _ := db.DB()
		t.Cleanup(func() { _ = sqlDB.Close() })

		var mode string
		var fk int
		if err := db.Raw("PRAGMA journal_mode").Row().Scan(&mode); err != nil || !strings.EqualFold(mode, "wal") {
			t.Fatalf("journal_mode = %q (%v)", mode, err)
		}
		if err := db.Raw("PRAGMA foreign_keys").Row().Scan(&fk); err != nil || fk != 1 {
			t.Fatalf("foreign_keys = %d (%v)", fk, err)
		}
		if got := sqlDB.Stats().MaxOpenConnections; got != sqlitePool.maxOpen {
			t.Fatalf("MaxOpenConnections = %d", got)
		}

		if err := AutoMigrate(db); err != nil {
			t.Fatalf("AutoMigrate: %v", err)
		}
		for _, tbl := range []any{&domain.User{}, &domain.Conversation{}, &domain.Membership{}, &domain.Message{}, &domain.RefreshToken{}} {
			if !db.Migrator().HasTable(tbl) {
				t.Fatalf("no table for %T", tbl)
			}
		}
		if !db.Migrator().HasIndex(&domain.Message{}, "ux_messages_idempotency_key") {
			t.Fatalf("messages lacks the idempotency key index")
		}
	})
}

func TestOpen_Driver(t *testing.T) {
	db, err := Open(config.DBConfig{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "open.db")}, true)
	if err != nil {
		t.Fatalf("Open sqlite: %v", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	if _, err := Open(config.DBConfig{Driver: "oracle"}, false); err == nil || !strings.Contains(err.Error(), "oracle") {
		t.Fatalf("unsupported driver: %v", err)
	}
}

func TestIsUniqueViolation(t *testing.T) {
	for msg, want := range map[string]bool{
		"UNIQUE constraint failed: users.email":                        true,
		"constraint failed: UNIQUE constraint failed (2067)":           true,
		"ERROR: duplicate key value violates unique constraint \"ux\"": true,
		"disk I/O error":                                               false,
	} {
		if got := isUniqueViolation(errors.New(msg)); got != want {
			t.Fatalf("isUniqueViolation(%q) = %v", msg, got)
		}
	}
	if !isUniqueViolation(gorm.ErrDuplicatedKey) || translate(nil) != nil {
		t.Fatalf("gorm.ErrDuplicatedKey or translate(nil)")
	}
}
