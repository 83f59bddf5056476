package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// These tests exercise MigrationRunner against a real on-disk SQLite
// database file rather than a mock. Unlike the PostgreSQL driver this
// replaced, SQLite needs no server process to stand up, so a plain
// t.TempDir() file takes the place of a container.

func sqliteTestDSN(t *testing.T) string {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "migrator_test.db")
	return fmt.Sprintf("file:%s?_txlock=immediate", dbPath)
}

func TestMigrationRunnerIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	tempDir := t.TempDir()
	migrations := map[string]string{
		"001_initial.up.sql": `CREATE TABLE users (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    email TEXT UNIQUE NOT NULL,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);`,
		"001_initial.down.sql": `DROP TABLE users;`,
		"002_posts.up.sql": `CREATE TABLE posts (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id INTEGER REFERENCES users(id),
    title TEXT NOT NULL,
    content TEXT,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);`,
		"002_posts.down.sql": `DROP TABLE posts;`,
	}

	for filename, content := range migrations {
		if err := os.WriteFile(filepath.Join(tempDir, filename), []byte(content), 0o644); err != nil {
			t.Fatalf("failed to create migration file %s: %v", filename, err)
		}
	}

	config := &Config{
		DatabaseURL:    sqliteTestDSN(t),
		MigrationsPath: tempDir,
		MigrationTable: "schema_migrations",
	}

	t.Run("successful_migration_runner_creation", func(t *testing.T) {
		runner, err := NewMigrationRunner(config)
		if err != nil {
			t.Fatalf("expected successful creation, got error: %v", err)
		}
		if runner == nil {
			t.Fatal("expected non-nil runner")
		}
		if err := runner.Close(); err != nil {
			t.Logf("cleanup error: %v", err)
		}
	})

	t.Run("full_migration_workflow", func(t *testing.T) {
		config := &Config{
			DatabaseURL:    sqliteTestDSN(t),
			MigrationsPath: tempDir,
			MigrationTable: "schema_migrations",
		}
		runner, err := NewMigrationRunner(config)
		if err != nil {
			t.Fatalf("failed to create runner: %v", err)
		}
		defer func() {
			if err := runner.Close(); err != nil {
				t.Logf("cleanup error: %v", err)
			}
		}()

		if err := runner.Status(); err != nil {
			t.Errorf("initial status failed: %v", err)
		}
		if err := runner.Up(); err != nil {
			t.Errorf("migration up failed: %v", err)
		}
		if err := runner.Status(); err != nil {
			t.Errorf("post-migration status failed: %v", err)
		}
		if err := runner.Version(); err != nil {
			t.Errorf("version check failed: %v", err)
		}
		if err := runner.Down(); err != nil {
			t.Errorf("migration down failed: %v", err)
		}
		if err := runner.Status(); err != nil {
			t.Errorf("post-rollback status failed: %v", err)
		}
	})
}

func TestMigrationRunnerErrorConditions(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	tempDir := t.TempDir()
	migrations := map[string]string{
		"001_test.up.sql":   "CREATE TABLE test (id INTEGER);",
		"001_test.down.sql": "DROP TABLE test;",
	}
	for filename, content := range migrations {
		if err := os.WriteFile(filepath.Join(tempDir, filename), []byte(content), 0o644); err != nil {
			t.Fatalf("failed to create migration file %s: %v", filename, err)
		}
	}

	tests := []struct {
		name          string
		config        *Config
		expectError   bool
		errorContains string
	}{
		{
			name: "unwritable_database_path",
			config: &Config{
				DatabaseURL:    "file:/nonexistent/directory/db.sqlite?_txlock=immediate",
				MigrationsPath: tempDir,
				MigrationTable: "schema_migrations",
			},
			expectError:   true,
			errorContains: "failed to ping database",
		},
		{
			name: "non_existent_migrations_directory",
			config: &Config{
				DatabaseURL:    sqliteTestDSN(t),
				MigrationsPath: "/non/existent/directory",
				MigrationTable: "schema_migrations",
			},
			expectError:   true,
			errorContains: "failed to create migrate instance",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner, err := NewMigrationRunner(tt.config)

			if tt.expectError {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				if tt.errorContains != "" && !strings.Contains(err.Error(), tt.errorContains) {
					t.Errorf("expected error containing %q, got %q", tt.errorContains, err.Error())
				}
				if runner != nil {
					t.Error("expected nil runner when error occurs")
				}
			} else {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if runner == nil {
					t.Fatal("expected non-nil runner when no error")
				}
				if err := runner.Close(); err != nil {
					t.Logf("cleanup error: %v", err)
				}
			}
		})
	}
}

func TestMigrationRunnerWithEmptyOrUnusualDirectories(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	tests := []struct {
		name          string
		setupFunc     func(t *testing.T) *Config
		expectError   bool
		errorContains string
	}{
		{
			name: "empty_migrations_directory",
			setupFunc: func(t *testing.T) *Config {
				return &Config{
					DatabaseURL:    sqliteTestDSN(t),
					MigrationsPath: t.TempDir(),
					MigrationTable: "schema_migrations",
				}
			},
			expectError: false,
		},
		{
			name: "migration_table_with_underscores",
			setupFunc: func(t *testing.T) *Config {
				tempDir := t.TempDir()
				content := "CREATE TABLE test (id INTEGER);"
				if err := os.WriteFile(filepath.Join(tempDir, "001_test.up.sql"), []byte(content), 0o644); err != nil {
					t.Fatalf("failed to create migration file: %v", err)
				}
				return &Config{
					DatabaseURL:    sqliteTestDSN(t),
					MigrationsPath: tempDir,
					MigrationTable: "custom_migration_tracking",
				}
			},
			expectError: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := tt.setupFunc(t)
			runner, err := NewMigrationRunner(config)

			if tt.expectError {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				if tt.errorContains != "" && !strings.Contains(err.Error(), tt.errorContains) {
					t.Errorf("expected error containing %q, got %q", tt.errorContains, err.Error())
				}
				if runner != nil {
					t.Error("expected nil runner when error occurs")
				}
			} else {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if runner == nil {
					t.Fatal("expected non-nil runner when no error")
				}
				if err := runner.Close(); err != nil {
					t.Logf("cleanup error: %v", err)
				}
			}
		})
	}
}

func TestMigrationRunnerSQLErrors(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	t.Run("invalid_sql_syntax", func(t *testing.T) {
		tempDir := t.TempDir()
		invalidSQL := "CREATE INVALID TABLE SYNTAX HERE;"
		if err := os.WriteFile(filepath.Join(tempDir, "001_invalid.up.sql"), []byte(invalidSQL), 0o644); err != nil {
			t.Fatalf("failed to create invalid migration file: %v", err)
		}

		config := &Config{
			DatabaseURL:    sqliteTestDSN(t),
			MigrationsPath: tempDir,
			MigrationTable: "schema_migrations",
		}

		runner, err := NewMigrationRunner(config)
		if err != nil {
			t.Fatalf("failed to create runner: %v", err)
		}
		defer func() {
			if err := runner.Close(); err != nil {
				t.Logf("cleanup error: %v", err)
			}
		}()

		err = runner.Up()
		if err == nil {
			t.Error("expected error due to invalid SQL syntax, got nil")
		}
		if err != nil && !strings.Contains(err.Error(), "migration up failed") {
			t.Errorf("expected migration error, got: %v", err)
		}
	})

	t.Run("foreign_key_constraint_violation", func(t *testing.T) {
		tempDir := t.TempDir()
		migrations := map[string]string{
			"001_setup.up.sql": `CREATE TABLE users (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    email TEXT UNIQUE NOT NULL
);`,
			"001_setup.down.sql": `DROP TABLE users;`,
			"002_posts.up.sql": `PRAGMA foreign_keys = ON;
CREATE TABLE posts (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id INTEGER NOT NULL REFERENCES users(id),
    title TEXT NOT NULL
);

-- This INSERT violates the foreign key because user 999 doesn't exist.
INSERT INTO posts (user_id, title) VALUES (999, 'Test Post');`,
			"002_posts.down.sql": `DROP TABLE posts;`,
		}

		for filename, content := range migrations {
			if err := os.WriteFile(filepath.Join(tempDir, filename), []byte(content), 0o644); err != nil {
				t.Fatalf("failed to create migration file %s: %v", filename, err)
			}
		}

		dsn := sqliteTestDSN(t) + "&_fk=true"
		config := &Config{
			DatabaseURL:    dsn,
			MigrationsPath: tempDir,
			MigrationTable: "schema_migrations",
		}

		runner, err := NewMigrationRunner(config)
		if err != nil {
			t.Fatalf("failed to create runner: %v", err)
		}
		defer func() {
			if err := runner.Close(); err != nil {
				t.Logf("cleanup error: %v", err)
			}
		}()

		err = runner.Up()
		if err == nil {
			t.Error("expected error due to foreign key constraint violation, got nil")
		}
		if err != nil && !strings.Contains(err.Error(), "migration up failed") {
			t.Errorf("expected migration error, got: %v", err)
		}
	})
}

func TestMigrationRunnerIntegrationConcurrency(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	tempDir := t.TempDir()
	migrations := map[string]string{
		"001_test.up.sql":   "CREATE TABLE test (id INTEGER);",
		"001_test.down.sql": "DROP TABLE test;",
	}
	for filename, content := range migrations {
		if err := os.WriteFile(filepath.Join(tempDir, filename), []byte(content), 0o644); err != nil {
			t.Fatalf("failed to create migration file %s: %v", filename, err)
		}
	}

	config := &Config{
		DatabaseURL:    sqliteTestDSN(t),
		MigrationsPath: tempDir,
		MigrationTable: "schema_migrations",
	}

	t.Run("concurrent_status_checks", func(t *testing.T) {
		runner, err := NewMigrationRunner(config)
		if err != nil {
			t.Fatalf("failed to create runner: %v", err)
		}
		defer func() {
			if err := runner.Close(); err != nil {
				t.Logf("cleanup error: %v", err)
			}
		}()

		done := make(chan error, 5)
		for i := 0; i < 5; i++ {
			go func() {
				done <- runner.Status()
			}()
		}
		for i := 0; i < 5; i++ {
			if err := <-done; err != nil {
				t.Errorf("concurrent status check %d failed: %v", i, err)
			}
		}
	})
}

// BenchmarkMigrationRunnerIntegrationOperations benchmarks migration operations
// against a real SQLite file on disk.
func BenchmarkMigrationRunnerIntegrationOperations(b *testing.B) {
	if testing.Short() {
		b.Skip("skipping benchmark in short mode")
	}

	tempDir := b.TempDir()
	migrations := map[string]string{
		"001_test.up.sql":   "CREATE TABLE IF NOT EXISTS benchmark_test (id INTEGER);",
		"001_test.down.sql": "DROP TABLE IF EXISTS benchmark_test;",
	}
	for filename, content := range migrations {
		if err := os.WriteFile(filepath.Join(tempDir, filename), []byte(content), 0o644); err != nil {
			b.Fatalf("failed to create migration file %s: %v", filename, err)
		}
	}

	dbPath := filepath.Join(b.TempDir(), "bench.db")
	config := &Config{
		DatabaseURL:    fmt.Sprintf("file:%s?_txlock=immediate", dbPath),
		MigrationsPath: tempDir,
		MigrationTable: "schema_migrations",
	}

	runner, err := NewMigrationRunner(config)
	if err != nil {
		b.Fatalf("failed to create runner: %v", err)
	}
	defer func() {
		if err := runner.Close(); err != nil {
			b.Logf("cleanup error: %v", err)
		}
	}()

	if err := runner.Up(); err != nil {
		b.Fatalf("failed to apply initial migration: %v", err)
	}

	b.ResetTimer()

	b.Run("Status", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			if err := runner.Status(); err != nil {
				b.Fatalf("status check failed: %v", err)
			}
		}
	})

	b.Run("Version", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			if err := runner.Version(); err != nil {
				b.Fatalf("version check failed: %v", err)
			}
		}
	})
}
