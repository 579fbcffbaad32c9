package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/tapis-project/flexserv-deployer/internal/core/deploy"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// =============================================================================
// SQLiteStore
// =============================================================================

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore creates a new SQLite store and runs migrations.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite3", dsn+"?_foreign_keys=on")
	if err != nil {
		return nil, NewStoreError("NewSQLiteStore", "", "failed to open database", ErrConnectionFailed)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, NewStoreError("NewSQLiteStore", "", "failed to ping database", ErrConnectionFailed)
	}

	if err := runMigrations(db.DB); err != nil {
		db.Close()
		return nil, NewStoreError("NewSQLiteStore", "", err.Error(), ErrMigrationFailed)
	}

	return &SQLiteStore{db: db}, nil
}

// runMigrations runs database migrations using embedded SQL files.
func runMigrations(db *sql.DB) error {
	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// =============================================================================
// Deployment Operations
// =============================================================================

// deploymentRow represents a deployment record in the database.
type deploymentRow struct {
	ID             string `db:"id"`
	PodID          string `db:"pod_id"`
	VolumeID       string `db:"volume_id"`
	Tenant         string `db:"tenant"`
	User           string `db:"user"`
	Model          string `db:"model"`
	Backend        string `db:"backend"`
	Image          string `db:"image"`
	PodURL         string `db:"pod_url"`
	Status         string `db:"status"`
	VolumeOrphaned bool   `db:"volume_orphaned"`
	CreatedAt      string `db:"created_at"`
	UpdatedAt      string `db:"updated_at"`
}

func rowToDeployment(row *deploymentRow) (*Deployment, error) {
	createdAt, err := time.Parse(time.RFC3339, row.CreatedAt)
	if err != nil {
		return nil, NewStoreError("rowToDeployment", row.ID, "invalid created_at timestamp", err)
	}
	updatedAt, err := time.Parse(time.RFC3339, row.UpdatedAt)
	if err != nil {
		return nil, NewStoreError("rowToDeployment", row.ID, "invalid updated_at timestamp", err)
	}
	return &Deployment{
		ID:             row.ID,
		PodID:          row.PodID,
		VolumeID:       row.VolumeID,
		Tenant:         row.Tenant,
		User:           row.User,
		Model:          row.Model,
		Backend:        row.Backend,
		Image:          row.Image,
		PodURL:         row.PodURL,
		Status:         deploy.Status(row.Status),
		VolumeOrphaned: row.VolumeOrphaned,
		CreatedAt:      createdAt,
		UpdatedAt:      updatedAt,
	}, nil
}

func deploymentToRow(d *Deployment) map[string]any {
	return map[string]any{
		"id":              d.ID,
		"pod_id":          d.PodID,
		"volume_id":       d.VolumeID,
		"tenant":          d.Tenant,
		"user":            d.User,
		"model":           d.Model,
		"backend":         d.Backend,
		"image":           d.Image,
		"pod_url":         d.PodURL,
		"status":          string(d.Status),
		"volume_orphaned": d.VolumeOrphaned,
		"created_at":      d.CreatedAt.Format(time.RFC3339),
		"updated_at":      d.UpdatedAt.Format(time.RFC3339),
	}
}

func (s *SQLiteStore) CreateDeployment(ctx context.Context, deployment *Deployment) error {
	query := `
		INSERT INTO deployments (
			id, pod_id, volume_id, tenant, user, model, backend,
			image, pod_url, status, volume_orphaned, created_at, updated_at
		) VALUES (
			:id, :pod_id, :volume_id, :tenant, :user, :model, :backend,
			:image, :pod_url, :status, :volume_orphaned, :created_at, :updated_at
		)`

	_, err := s.db.NamedExecContext(ctx, query, deploymentToRow(deployment))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return NewStoreError("CreateDeployment", deployment.ID, "deployment with this ID already exists", ErrDuplicateID)
		}
		return NewStoreError("CreateDeployment", deployment.ID, err.Error(), err)
	}

	return nil
}

func (s *SQLiteStore) GetDeployment(ctx context.Context, id string) (*Deployment, error) {
	query := `SELECT * FROM deployments WHERE id = ?`

	var row deploymentRow
	err := s.db.GetContext(ctx, &row, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NewStoreError("GetDeployment", id, "deployment not found", ErrNotFound)
		}
		return nil, NewStoreError("GetDeployment", id, err.Error(), err)
	}

	return rowToDeployment(&row)
}

func (s *SQLiteStore) GetDeploymentByPodID(ctx context.Context, podID string) (*Deployment, error) {
	query := `SELECT * FROM deployments WHERE pod_id = ?`

	var row deploymentRow
	err := s.db.GetContext(ctx, &row, query, podID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NewStoreError("GetDeploymentByPodID", podID, "deployment not found", ErrNotFound)
		}
		return nil, NewStoreError("GetDeploymentByPodID", podID, err.Error(), err)
	}

	return rowToDeployment(&row)
}

func (s *SQLiteStore) UpdateDeployment(ctx context.Context, deployment *Deployment) error {
	query := `
		UPDATE deployments SET
			pod_id = :pod_id,
			volume_id = :volume_id,
			tenant = :tenant,
			user = :user,
			model = :model,
			backend = :backend,
			image = :image,
			pod_url = :pod_url,
			status = :status,
			volume_orphaned = :volume_orphaned,
			updated_at = :updated_at
		WHERE id = :id`

	result, err := s.db.NamedExecContext(ctx, query, deploymentToRow(deployment))
	if err != nil {
		return NewStoreError("UpdateDeployment", deployment.ID, err.Error(), err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return NewStoreError("UpdateDeployment", deployment.ID, "deployment not found", ErrNotFound)
	}

	return nil
}

func (s *SQLiteStore) DeleteDeployment(ctx context.Context, id string) error {
	query := `DELETE FROM deployments WHERE id = ?`

	result, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return NewStoreError("DeleteDeployment", id, err.Error(), err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return NewStoreError("DeleteDeployment", id, "deployment not found", ErrNotFound)
	}

	return nil
}

func (s *SQLiteStore) ListDeployments(ctx context.Context, opts ListOptions) ([]Deployment, error) {
	opts = opts.Normalize()
	query := `SELECT * FROM deployments ORDER BY created_at DESC LIMIT ? OFFSET ?`

	var rows []deploymentRow
	err := s.db.SelectContext(ctx, &rows, query, opts.Limit, opts.Offset)
	if err != nil {
		return nil, NewStoreError("ListDeployments", "", err.Error(), err)
	}

	return rowsToDeployments(rows)
}

func (s *SQLiteStore) ListDeploymentsByUser(ctx context.Context, user string, opts ListOptions) ([]Deployment, error) {
	opts = opts.Normalize()
	query := `SELECT * FROM deployments WHERE user = ? ORDER BY created_at DESC LIMIT ? OFFSET ?`

	var rows []deploymentRow
	err := s.db.SelectContext(ctx, &rows, query, user, opts.Limit, opts.Offset)
	if err != nil {
		return nil, NewStoreError("ListDeploymentsByUser", "", err.Error(), err)
	}

	return rowsToDeployments(rows)
}

func rowsToDeployments(rows []deploymentRow) ([]Deployment, error) {
	deployments := make([]Deployment, 0, len(rows))
	for _, row := range rows {
		deployment, err := rowToDeployment(&row)
		if err != nil {
			return nil, err
		}
		deployments = append(deployments, *deployment)
	}
	return deployments, nil
}
