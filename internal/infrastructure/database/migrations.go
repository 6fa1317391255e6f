package database

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"lab-registration/pkg/logger"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type Migration struct {
	ID          string
	Description string
	SQL         string
	AppliedAt   *time.Time
}

// MigrationRunner applies numbered .sql files in order, once each
type MigrationRunner struct {
	db            *gorm.DB
	migrationsDir string
}

func NewMigrationRunner(db *gorm.DB, migrationsDir string) *MigrationRunner {
	return &MigrationRunner{
		db:            db,
		migrationsDir: migrationsDir,
	}
}

func (mr *MigrationRunner) createMigrationsTable() error {
	sql := `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		id VARCHAR(255) PRIMARY KEY,
		description TEXT NOT NULL,
		applied_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	);`

	return mr.db.Exec(sql).Error
}

type appliedMigration struct {
	ID        string
	AppliedAt time.Time
}

func (mr *MigrationRunner) getAppliedMigrations() (map[string]time.Time, error) {
	var rows []appliedMigration
	err := mr.db.Raw("SELECT id, applied_at FROM schema_migrations ORDER BY id").Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	applied := make(map[string]time.Time, len(rows))
	for _, row := range rows {
		applied[row.ID] = row.AppliedAt
	}

	return applied, nil
}

func (mr *MigrationRunner) getMigrationFiles() ([]string, error) {
	var files []string

	err := filepath.WalkDir(mr.migrationsDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if !d.IsDir() && strings.HasSuffix(d.Name(), ".sql") {
			files = append(files, path)
		}

		return nil
	})

	if err != nil {
		return nil, err
	}

	sort.Strings(files)
	return files, nil
}

// readMigrationFile parses "<id>_<words>.sql" into a Migration
func readMigrationFile(filePath string) (*Migration, error) {
	content, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	filename := filepath.Base(filePath)
	parts := strings.SplitN(filename, "_", 2)
	if len(parts) < 2 {
		return nil, fmt.Errorf("invalid migration filename format: %s", filename)
	}

	description := strings.TrimSuffix(parts[1], ".sql")
	description = strings.ReplaceAll(description, "_", " ")

	return &Migration{
		ID:          parts[0],
		Description: description,
		SQL:         string(content),
	}, nil
}

// load returns every migration on disk in order, with AppliedAt set for the
// ones already recorded.
func (mr *MigrationRunner) load() ([]*Migration, error) {
	if err := mr.createMigrationsTable(); err != nil {
		return nil, fmt.Errorf("failed to create migrations table: %w", err)
	}

	applied, err := mr.getAppliedMigrations()
	if err != nil {
		return nil, fmt.Errorf("failed to get applied migrations: %w", err)
	}

	files, err := mr.getMigrationFiles()
	if err != nil {
		return nil, fmt.Errorf("failed to get migration files: %w", err)
	}

	migrations := make([]*Migration, 0, len(files))
	for _, file := range files {
		migration, err := readMigrationFile(file)
		if err != nil {
			return nil, fmt.Errorf("failed to read migration file %s: %w", file, err)
		}
		if appliedAt, ok := applied[migration.ID]; ok {
			migration.AppliedAt = &appliedAt
		}
		migrations = append(migrations, migration)
	}
	return migrations, nil
}

func (mr *MigrationRunner) apply(migration *Migration) error {
	return mr.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec(migration.SQL).Error; err != nil {
			return fmt.Errorf("failed to execute migration %s: %w", migration.ID, err)
		}
		if err := tx.Exec("INSERT INTO schema_migrations (id, description) VALUES (?, ?)",
			migration.ID, migration.Description).Error; err != nil {
			return fmt.Errorf("failed to record migration %s: %w", migration.ID, err)
		}
		return nil
	})
}

// RunMigrations applies pending migrations, each in its own transaction
func (mr *MigrationRunner) RunMigrations() error {
	migrations, err := mr.load()
	if err != nil {
		return err
	}

	applied := 0
	for _, migration := range migrations {
		if migration.AppliedAt != nil {
			continue
		}
		if err := mr.apply(migration); err != nil {
			return err
		}
		logger.WithFields(logrus.Fields{
			"migration":   migration.ID,
			"description": migration.Description,
		}).Info("migration applied")
		applied++
	}

	if applied == 0 {
		logger.Info("Schema is up to date")
	} else {
		logger.Info("Applied %d migrations", applied)
	}
	return nil
}

// GetMigrationStatus lists all migrations on disk with their applied time
func (mr *MigrationRunner) GetMigrationStatus() ([]Migration, error) {
	migrations, err := mr.load()
	if err != nil {
		return nil, err
	}

	status := make([]Migration, 0, len(migrations))
	for _, migration := range migrations {
		status = append(status, *migration)
	}
	return status, nil
}
