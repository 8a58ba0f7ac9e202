package shared

import (
	"database/sql"
	"testing"
)

func TestMigrationRunner(t *testing.T) {
	openMemory := func(t *testing.T) *sql.DB {
		t.Helper()
		db, err := NewDatabase(":memory:")
		if err != nil {
			t.Fatalf("failed to create database: %v", err)
		}
		ConfigureDatabase(db, 1, 1)
		t.Cleanup(func() { db.Close() })
		return db
	}

	t.Run("loadMigrations", func(t *testing.T) {
		migrations, err := loadMigrations()
		if err != nil {
			t.Fatalf("failed to load migrations: %v", err)
		}

		if len(migrations) < 2 {
			t.Fatalf("expected attempt and run migrations, got %d", len(migrations))
		}

		for i := 1; i < len(migrations); i++ {
			if migrations[i].Version <= migrations[i-1].Version {
				t.Errorf("migrations not sorted: version %d comes after %d", migrations[i].Version, migrations[i-1].Version)
			}
		}

		if migrations[0].Name != "create_upload_attempts" {
			t.Errorf("expected first migration name create_upload_attempts, got %q", migrations[0].Name)
		}
	})

	t.Run("RunMigrations And Rollback", func(t *testing.T) {
		db := openMemory(t)

		if err := RunMigrations(db); err != nil {
			t.Fatalf("failed to run migrations: %v", err)
		}

		if _, err := db.Exec("SELECT 1 FROM upload_attempts LIMIT 1"); err != nil {
			t.Errorf("upload_attempts table should exist after migrations: %v", err)
		}
		if _, err := db.Exec("SELECT 1 FROM upload_runs LIMIT 1"); err != nil {
			t.Errorf("upload_runs table should exist after migrations: %v", err)
		}

		version, err := CurrentVersion(db)
		if err != nil {
			t.Fatalf("failed to read version: %v", err)
		}
		if version != 1 {
			t.Errorf("expected version 1, got %d", version)
		}

		if err := RollbackMigration(db); err != nil {
			t.Fatalf("failed to rollback migration: %v", err)
		}

		if _, err := db.Exec("SELECT 1 FROM upload_runs LIMIT 1"); err == nil {
			t.Error("upload_runs table should be gone after rollback")
		}

		version, _ = CurrentVersion(db)
		if version != 0 {
			t.Errorf("expected version 0 after rollback, got %d", version)
		}
	})

	t.Run("Idempotent Migrations", func(t *testing.T) {
		db := openMemory(t)

		if err := RunMigrations(db); err != nil {
			t.Fatalf("failed to run migrations first time: %v", err)
		}
		if err := RunMigrations(db); err != nil {
			t.Fatalf("failed to run migrations second time: %v", err)
		}

		var count int
		if err := db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count); err != nil {
			t.Fatalf("failed to query schema_migrations: %v", err)
		}

		migrations, _ := loadMigrations()
		if count != len(migrations) {
			t.Errorf("expected %d migrations to be applied, got %d", len(migrations), count)
		}
	})

	t.Run("splitStatements drops comments", func(t *testing.T) {
		stmts := splitStatements("-- header\nCREATE TABLE a (id INT); -- trailing\n\nDROP TABLE b;")
		if len(stmts) != 2 {
			t.Fatalf("expected 2 statements, got %d: %q", len(stmts), stmts)
		}
		if stmts[0] != "CREATE TABLE a (id INT)" {
			t.Errorf("unexpected first statement %q", stmts[0])
		}
	})
}
