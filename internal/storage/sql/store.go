// Package sql implements the audit storage layer over sqlite, postgres
// or mysql.
package sql

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/algosec/algosec-go/internal/storage"
	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// isUniqueViolation checks if an error is a UNIQUE constraint violation.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	// SQLite
	if strings.Contains(errStr, "UNIQUE constraint failed") {
		return true
	}
	// PostgreSQL
	if strings.Contains(errStr, "duplicate key value violates unique constraint") {
		return true
	}
	// MySQL
	if strings.Contains(errStr, "Duplicate entry") {
		return true
	}
	return false
}

// wrapUniqueError converts UNIQUE violations to storage.ErrAlreadyExists.
func wrapUniqueError(err error) error {
	if isUniqueViolation(err) {
		return storage.ErrAlreadyExists
	}
	return err
}

// Store implements the storage.Storage interface using SQL.
type Store struct {
	db *sqlx.DB
}

// New creates a new SQL store and runs pending migrations.
func New(driver, dsn string) (*Store, error) {
	db, err := sqlx.Connect(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	goose.SetBaseFS(embedMigrations)
	if err := goose.SetDialect(driver); err != nil {
		return nil, fmt.Errorf("setting goose dialect: %w", err)
	}
	if err := goose.Up(db.DB, "migrations"); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateFlowRequest inserts a flow request audit record.
func (s *Store) CreateFlowRequest(ctx context.Context, request *storage.FlowRequest) error {
	query := s.db.Rebind(`INSERT INTO flow_requests (id, app_name, flow_name, requestor, status, detail, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	_, err := s.db.ExecContext(ctx, query,
		request.ID, request.AppName, request.FlowName, request.Requestor,
		request.Status, request.Detail, request.CreatedAt)
	return wrapUniqueError(err)
}

// GetFlowRequest fetches a flow request record by ID.
func (s *Store) GetFlowRequest(ctx context.Context, id string) (*storage.FlowRequest, error) {
	var request storage.FlowRequest
	query := s.db.Rebind(`SELECT id, app_name, flow_name, requestor, status, detail, created_at
		FROM flow_requests WHERE id = ?`)
	err := s.db.GetContext(ctx, &request, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &request, nil
}

// ListFlowRequests returns all flow request records, newest first.
func (s *Store) ListFlowRequests(ctx context.Context) ([]*storage.FlowRequest, error) {
	var requests []*storage.FlowRequest
	err := s.db.SelectContext(ctx, &requests,
		`SELECT id, app_name, flow_name, requestor, status, detail, created_at
		FROM flow_requests ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	return requests, nil
}

// UpdateFlowRequestStatus updates the status and detail of a flow
// request record.
func (s *Store) UpdateFlowRequestStatus(ctx context.Context, id, status, detail string) error {
	query := s.db.Rebind(`UPDATE flow_requests SET status = ?, detail = ? WHERE id = ?`)
	result, err := s.db.ExecContext(ctx, query, status, detail, id)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// CreateChangeRequest inserts a change request audit record.
func (s *Store) CreateChangeRequest(ctx context.Context, record *storage.ChangeRequestRecord) error {
	query := s.db.Rebind(`INSERT INTO change_requests (id, subject, requestor, email, ticket_url, traffic_lines, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	_, err := s.db.ExecContext(ctx, query,
		record.ID, record.Subject, record.Requestor, record.Email,
		record.TicketURL, record.TrafficLines, record.CreatedAt)
	return wrapUniqueError(err)
}

// GetChangeRequest fetches a change request record by ID.
func (s *Store) GetChangeRequest(ctx context.Context, id string) (*storage.ChangeRequestRecord, error) {
	var record storage.ChangeRequestRecord
	query := s.db.Rebind(`SELECT id, subject, requestor, email, ticket_url, traffic_lines, created_at
		FROM change_requests WHERE id = ?`)
	err := s.db.GetContext(ctx, &record, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// ListChangeRequests returns all change request records, newest first.
func (s *Store) ListChangeRequests(ctx context.Context) ([]*storage.ChangeRequestRecord, error) {
	var records []*storage.ChangeRequestRecord
	err := s.db.SelectContext(ctx, &records,
		`SELECT id, subject, requestor, email, ticket_url, traffic_lines, created_at
		FROM change_requests ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	return records, nil
}
