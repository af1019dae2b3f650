package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stackshot/crashd/pkg/models"
)

// DB is the subset of pgxpool.Pool the store needs. It is satisfied by
// *pgxpool.Pool and by pgxmock pools in unit tests.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
}

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	db DB
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// --- Crash reports ---

func (s *PostgresStore) CreateCrashReport(ctx context.Context, report *models.CrashReport) error {
	err := s.db.QueryRow(ctx,
		`INSERT INTO crash_reports
		   (bundle_identifier, version, application_name, timestamp, system_version,
		    platform, jailbreak, user_id, username, contact, description, log,
		    group_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		 RETURNING id`,
		report.BundleIdentifier, report.Version, report.ApplicationName,
		report.Timestamp, report.SystemVersion, report.Platform, report.Jailbreak,
		report.UserID, report.Username, report.Contact, report.Description,
		report.Log, report.GroupID, report.CreatedAt, report.UpdatedAt,
	).Scan(&report.ID)
	if err != nil {
		return fmt.Errorf("create crash report: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetCrashReport(ctx context.Context, id int64) (*models.CrashReport, error) {
	var r models.CrashReport
	err := s.db.QueryRow(ctx,
		`SELECT id, bundle_identifier, version, application_name, timestamp,
		        system_version, platform, jailbreak, user_id, username, contact,
		        description, log, group_id, created_at, updated_at
		 FROM crash_reports WHERE id = $1`, id,
	).Scan(&r.ID, &r.BundleIdentifier, &r.Version, &r.ApplicationName, &r.Timestamp,
		&r.SystemVersion, &r.Platform, &r.Jailbreak, &r.UserID, &r.Username,
		&r.Contact, &r.Description, &r.Log, &r.GroupID, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get crash report: %w", err)
	}
	return &r, nil
}

func (s *PostgresStore) GetCrashLog(ctx context.Context, id int64) (string, error) {
	var log string
	err := s.db.QueryRow(ctx,
		`SELECT log FROM crash_reports WHERE id = $1`, id,
	).Scan(&log)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get crash log: %w", err)
	}
	return log, nil
}

// ListCrashReports returns reports matching the filter, newest system
// version first, without log bodies. Each row carries its ledger state,
// with the sparse-table default of pending.
func (s *PostgresStore) ListCrashReports(ctx context.Context, filter CrashFilter) ([]*models.CrashReport, error) {
	conditions := []string{"c.bundle_identifier = $1", "c.version = $2"}
	args := []any{filter.BundleIdentifier, filter.Version}
	if filter.GroupID != nil {
		conditions = append(conditions, fmt.Sprintf("c.group_id = $%d", len(args)+1))
		args = append(args, *filter.GroupID)
	}
	where := strings.Join(conditions, " AND ")

	query := fmt.Sprintf(
		`SELECT c.id, c.bundle_identifier, c.version, c.application_name, c.timestamp,
		        c.system_version, c.platform, c.jailbreak, c.user_id, c.username,
		        c.contact, c.description, c.group_id,
		        COALESCE(s.state, 'pending') AS symbolication_state,
		        c.created_at, c.updated_at
		 FROM crash_reports c
		 LEFT JOIN symbolications s ON s.crash_id = c.id
		 WHERE %s
		 ORDER BY c.system_version DESC, c.timestamp DESC`, where)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list crash reports: %w", err)
	}
	defer rows.Close()

	var reports []*models.CrashReport
	for rows.Next() {
		var r models.CrashReport
		var state string
		if err := rows.Scan(&r.ID, &r.BundleIdentifier, &r.Version, &r.ApplicationName,
			&r.Timestamp, &r.SystemVersion, &r.Platform, &r.Jailbreak, &r.UserID,
			&r.Username, &r.Contact, &r.Description, &r.GroupID, &state,
			&r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan crash report: %w", err)
		}
		r.SymbolicationState = models.SymbolicationState(state)
		reports = append(reports, &r)
	}
	return reports, rows.Err()
}

func (s *PostgresStore) AssignCrashToGroup(ctx context.Context, crashID, groupID int64) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE crash_reports SET group_id = $2, updated_at = NOW() WHERE id = $1`,
		crashID, groupID)
	if err != nil {
		return fmt.Errorf("assign crash to group: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Crash groups ---

// FindOrCreateGroup returns the id of the group with the given signature
// fingerprint, inserting it first if absent. The no-op DO UPDATE makes
// RETURNING yield the existing row on conflict without touching its
// signature fields, so two callers racing on a brand-new signature both
// land in the same group.
func (s *PostgresStore) FindOrCreateGroup(ctx context.Context, group *models.CrashGroup) (int64, error) {
	var id int64
	err := s.db.QueryRow(ctx,
		`INSERT INTO crash_groups
		   (bundle_identifier, version, location, exception, reason, fingerprint,
		    description, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, '', NOW(), NOW())
		 ON CONFLICT (bundle_identifier, version, fingerprint)
		   DO UPDATE SET updated_at = crash_groups.updated_at
		 RETURNING id`,
		group.BundleIdentifier, group.Version, group.Location,
		group.Exception, group.Reason, group.Fingerprint,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("find or create group: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) GetCrashGroup(ctx context.Context, id int64) (*models.CrashGroup, error) {
	var g models.CrashGroup
	err := s.db.QueryRow(ctx,
		`SELECT id, bundle_identifier, version, location, exception, reason,
		        fingerprint, description, created_at, updated_at
		 FROM crash_groups WHERE id = $1`, id,
	).Scan(&g.ID, &g.BundleIdentifier, &g.Version, &g.Location, &g.Exception,
		&g.Reason, &g.Fingerprint, &g.Description, &g.CreatedAt, &g.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get crash group: %w", err)
	}
	return &g, nil
}

func (s *PostgresStore) ListCrashGroups(ctx context.Context, bundleIdentifier, version string) ([]*models.CrashGroupSummary, error) {
	rows, err := s.db.Query(ctx,
		`SELECT g.id, g.bundle_identifier, g.version, g.location, g.exception,
		        g.reason, g.fingerprint, g.description, g.created_at, g.updated_at,
		        COUNT(c.id) AS crash_count
		 FROM crash_groups g
		 LEFT JOIN crash_reports c ON c.group_id = g.id
		 WHERE g.bundle_identifier = $1 AND g.version = $2
		 GROUP BY g.id
		 ORDER BY crash_count DESC, g.id`, bundleIdentifier, version)
	if err != nil {
		return nil, fmt.Errorf("list crash groups: %w", err)
	}
	defer rows.Close()

	var groups []*models.CrashGroupSummary
	for rows.Next() {
		var g models.CrashGroupSummary
		if err := rows.Scan(&g.ID, &g.BundleIdentifier, &g.Version, &g.Location,
			&g.Exception, &g.Reason, &g.Fingerprint, &g.Description,
			&g.CreatedAt, &g.UpdatedAt, &g.CrashCount); err != nil {
			return nil, fmt.Errorf("scan crash group: %w", err)
		}
		groups = append(groups, &g)
	}
	return groups, rows.Err()
}

func (s *PostgresStore) UpdateGroupDescription(ctx context.Context, id int64, description string) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE crash_groups SET description = $2, updated_at = NOW() WHERE id = $1`,
		id, description)
	if err != nil {
		return fmt.Errorf("update group description: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Symbolication ledger ---

// ApplySymbolication overwrites the crash log and upserts the ledger row
// in one transaction. A finalized crash keeps its state; a late submit
// for it only refreshes the log.
func (s *PostgresStore) ApplySymbolication(ctx context.Context, crashID int64, log string) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin symbolication tx: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`UPDATE crash_reports SET log = $2, updated_at = NOW() WHERE id = $1`,
		crashID, log)
	if err != nil {
		return fmt.Errorf("update crash log: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO symbolications (crash_id, state, created_at, updated_at)
		 VALUES ($1, 'needs_review', NOW(), NOW())
		 ON CONFLICT (crash_id) DO UPDATE SET
		   state = CASE WHEN symbolications.state = 'finalized'
		                THEN symbolications.state
		                ELSE 'needs_review' END,
		   updated_at = NOW()`, crashID)
	if err != nil {
		return fmt.Errorf("advance symbolication state: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit symbolication tx: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetSymbolicationState(ctx context.Context, crashID int64) (models.SymbolicationState, error) {
	var state string
	err := s.db.QueryRow(ctx,
		`SELECT COALESCE(s.state, 'pending')
		 FROM crash_reports c
		 LEFT JOIN symbolications s ON s.crash_id = c.id
		 WHERE c.id = $1`, crashID,
	).Scan(&state)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get symbolication state: %w", err)
	}
	return models.SymbolicationState(state), nil
}

func (s *PostgresStore) ListOutstandingCrashIDs(ctx context.Context) ([]int64, error) {
	rows, err := s.db.Query(ctx,
		`SELECT c.id
		 FROM crash_reports c
		 LEFT JOIN symbolications s ON s.crash_id = c.id
		 WHERE s.crash_id IS NULL OR s.state = 'needs_review'
		 ORDER BY c.id`)
	if err != nil {
		return nil, fmt.Errorf("list outstanding crashes: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan crash id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *PostgresStore) FinalizeSymbolication(ctx context.Context, crashID int64) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO symbolications (crash_id, state, created_at, updated_at)
		 VALUES ($1, 'finalized', NOW(), NOW())
		 ON CONFLICT (crash_id) DO UPDATE SET state = 'finalized', updated_at = NOW()`,
		crashID)
	if err != nil {
		if isForeignKeyError(err) {
			return ErrNotFound
		}
		return fmt.Errorf("finalize symbolication: %w", err)
	}
	return nil
}

// --- API Keys ---

func (s *PostgresStore) GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, name, key_hash, key_prefix, scopes, last_used_at, deleted_at, created_at, updated_at
		 FROM api_keys WHERE key_prefix = $1 AND deleted_at IS NULL`, prefix)
	if err != nil {
		return nil, fmt.Errorf("get api key by prefix: %w", err)
	}
	defer rows.Close()

	var keys []*models.APIKey
	for rows.Next() {
		var k models.APIKey
		if err := rows.Scan(&k.ID, &k.Name, &k.KeyHash, &k.KeyPrefix, &k.Scopes,
			&k.LastUsedAt, &k.DeletedAt, &k.CreatedAt, &k.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, &k)
	}
	return keys, rows.Err()
}

func (s *PostgresStore) UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.Exec(ctx,
		`UPDATE api_keys SET last_used_at = NOW(), updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("update api key last used: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateAPIKey(ctx context.Context, key *models.APIKey) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO api_keys (id, name, key_hash, key_prefix, scopes, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		key.ID, key.Name, key.KeyHash, key.KeyPrefix, key.Scopes, key.CreatedAt, key.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create api key: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListAPIKeys(ctx context.Context) ([]*models.APIKey, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, name, key_hash, key_prefix, scopes, last_used_at, deleted_at, created_at, updated_at
		 FROM api_keys WHERE deleted_at IS NULL ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	defer rows.Close()

	var keys []*models.APIKey
	for rows.Next() {
		var k models.APIKey
		if err := rows.Scan(&k.ID, &k.Name, &k.KeyHash, &k.KeyPrefix, &k.Scopes,
			&k.LastUsedAt, &k.DeletedAt, &k.CreatedAt, &k.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, &k)
	}
	return keys, rows.Err()
}

func (s *PostgresStore) RevokeAPIKey(ctx context.Context, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE api_keys SET deleted_at = NOW(), updated_at = NOW()
		 WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}

// isForeignKeyError checks if a pgx error is a foreign key violation.
func isForeignKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23503" // foreign_key_violation
	}
	return false
}
