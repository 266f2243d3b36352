package repository

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/falense/PriceTracker-sub001/internal/models"
)

// SQLitePatternRepository implements PatternRepository. Version activation is
// always "deactivate every other version for the domain, activate exactly
// one", run inside a single transaction — the same replace-then-renumber
// shape used for ordered fallback chains, adapted here to version rows
// instead of ordinal positions.
type SQLitePatternRepository struct {
	db *sql.DB
}

func NewSQLitePatternRepository(db *sql.DB) *SQLitePatternRepository {
	return &SQLitePatternRepository{db: db}
}

func contentDigest(patternJSON string) string {
	sum := sha256.Sum256([]byte(patternJSON))
	return hex.EncodeToString(sum[:])[:16]
}

func (r *SQLitePatternRepository) GetActive(ctx context.Context, domain string) (*models.Pattern, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, domain, pattern_json, last_validated, total_attempts, successful_attempts, success_rate, updated_at
		FROM patterns WHERE domain = ?`, domain)

	var p models.Pattern
	var lastValidated sql.NullString
	var updatedAt string
	err := row.Scan(&p.ID, &p.Domain, &p.PatternJSON, &lastValidated, &p.TotalAttempts, &p.SuccessfulAttempts, &p.SuccessRate, &updatedAt)
	if err != nil {
		return nil, err
	}
	if lastValidated.Valid {
		t, _ := time.Parse(time.RFC3339, lastValidated.String)
		p.LastValidated = &t
	}
	p.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &p, nil
}

func (r *SQLitePatternRepository) PutInitial(ctx context.Context, domain, patternJSON string, changeType models.ChangeType) (*models.PatternVersion, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(time.RFC3339)
	version := &models.PatternVersion{
		ID:            ulid.Make().String(),
		Domain:        domain,
		VersionNumber: 1,
		PatternJSON:   patternJSON,
		ContentDigest: contentDigest(patternJSON),
		IsActive:      true,
		ChangeType:    changeType,
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO pattern_versions (id, domain, version_number, pattern_json, content_digest, is_active, created_at, change_reason, change_type)
		VALUES (?, ?, 1, ?, ?, 1, ?, '', ?)`,
		version.ID, domain, patternJSON, version.ContentDigest, now, string(changeType))
	if err != nil {
		return nil, fmt.Errorf("insert pattern_version: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO patterns (id, domain, pattern_json, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(domain) DO UPDATE SET pattern_json = excluded.pattern_json, updated_at = excluded.updated_at`,
		ulid.Make().String(), domain, patternJSON, now)
	if err != nil {
		return nil, fmt.Errorf("upsert pattern: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	version.CreatedAt, _ = time.Parse(time.RFC3339, now)
	return version, nil
}

func (r *SQLitePatternRepository) Replace(ctx context.Context, domain, patternJSON, changeReason string, changeType models.ChangeType) (*models.PatternVersion, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var maxVersion sql.NullInt64
	if err := tx.QueryRowContext(ctx, `SELECT MAX(version_number) FROM pattern_versions WHERE domain = ?`, domain).Scan(&maxVersion); err != nil {
		return nil, fmt.Errorf("select max version: %w", err)
	}
	nextVersion := int64(1)
	if maxVersion.Valid {
		nextVersion = maxVersion.Int64 + 1
	}

	if _, err := tx.ExecContext(ctx, `UPDATE pattern_versions SET is_active = 0 WHERE domain = ?`, domain); err != nil {
		return nil, fmt.Errorf("deactivate versions: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	version := &models.PatternVersion{
		ID:            ulid.Make().String(),
		Domain:        domain,
		VersionNumber: nextVersion,
		PatternJSON:   patternJSON,
		ContentDigest: contentDigest(patternJSON),
		IsActive:      true,
		ChangeReason:  changeReason,
		ChangeType:    changeType,
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO pattern_versions (id, domain, version_number, pattern_json, content_digest, is_active, created_at, change_reason, change_type)
		VALUES (?, ?, ?, ?, ?, 1, ?, ?, ?)`,
		version.ID, domain, nextVersion, patternJSON, version.ContentDigest, now, changeReason, string(changeType))
	if err != nil {
		return nil, fmt.Errorf("insert pattern_version: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO patterns (id, domain, pattern_json, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(domain) DO UPDATE SET pattern_json = excluded.pattern_json, updated_at = excluded.updated_at`,
		ulid.Make().String(), domain, patternJSON, now)
	if err != nil {
		return nil, fmt.Errorf("upsert pattern: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	version.CreatedAt, _ = time.Parse(time.RFC3339, now)
	return version, nil
}

func (r *SQLitePatternRepository) RecordAttempt(ctx context.Context, domain string, success bool) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	successInc := 0
	if success {
		successInc = 1
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE patterns
		SET total_attempts = total_attempts + 1,
		    successful_attempts = successful_attempts + ?,
		    success_rate = CAST(successful_attempts + ? AS REAL) / (total_attempts + 1),
		    last_validated = ?,
		    updated_at = ?
		WHERE domain = ?`,
		successInc, successInc, time.Now().UTC().Format(time.RFC3339), time.Now().UTC().Format(time.RFC3339), domain)
	if err != nil {
		return fmt.Errorf("update pattern stats: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE pattern_versions
		SET total_attempts = total_attempts + 1,
		    successful_attempts = successful_attempts + ?,
		    success_rate = CAST(successful_attempts + ? AS REAL) / (total_attempts + 1)
		WHERE domain = ? AND is_active = 1`,
		successInc, successInc, domain)
	if err != nil {
		return fmt.Errorf("update pattern_version stats: %w", err)
	}

	return tx.Commit()
}

func (r *SQLitePatternRepository) Rollback(ctx context.Context, domain string, versionNumber int64) (*models.PatternVersion, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM pattern_versions WHERE domain = ? AND version_number = ?`, domain, versionNumber).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check version exists: %w", err)
	}
	if exists == 0 {
		return nil, fmt.Errorf("pattern version %d not found for domain %s", versionNumber, domain)
	}

	if _, err := tx.ExecContext(ctx, `UPDATE pattern_versions SET is_active = 0 WHERE domain = ?`, domain); err != nil {
		return nil, fmt.Errorf("deactivate versions: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE pattern_versions SET is_active = 1, change_type = 'rollback' WHERE domain = ? AND version_number = ?`, domain, versionNumber); err != nil {
		return nil, fmt.Errorf("activate version: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	var patternJSON string
	if err := tx.QueryRowContext(ctx, `SELECT pattern_json FROM pattern_versions WHERE domain = ? AND version_number = ?`, domain, versionNumber).Scan(&patternJSON); err != nil {
		return nil, fmt.Errorf("read reactivated pattern: %w", err)
	}
	_, err = tx.ExecContext(ctx, `UPDATE patterns SET pattern_json = ?, updated_at = ? WHERE domain = ?`, patternJSON, now, domain)
	if err != nil {
		return nil, fmt.Errorf("refresh pattern: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return r.GetActiveVersion(ctx, domain)
}

func (r *SQLitePatternRepository) ListVersions(ctx context.Context, domain string) ([]*models.PatternVersion, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, domain, version_number, pattern_json, content_digest, is_active, created_at, change_reason, change_type, total_attempts, successful_attempts, success_rate
		FROM pattern_versions WHERE domain = ? ORDER BY version_number DESC`, domain)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPatternVersions(rows)
}

func (r *SQLitePatternRepository) GetActiveVersion(ctx context.Context, domain string) (*models.PatternVersion, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, domain, version_number, pattern_json, content_digest, is_active, created_at, change_reason, change_type, total_attempts, successful_attempts, success_rate
		FROM pattern_versions WHERE domain = ? AND is_active = 1`, domain)
	return scanPatternVersion(row)
}

func (r *SQLitePatternRepository) GetVersionByID(ctx context.Context, id string) (*models.PatternVersion, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, domain, version_number, pattern_json, content_digest, is_active, created_at, change_reason, change_type, total_attempts, successful_attempts, success_rate
		FROM pattern_versions WHERE id = ?`, id)
	return scanPatternVersion(row)
}

func (r *SQLitePatternRepository) ListDomainsWithVersions(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT DISTINCT domain FROM pattern_versions`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var domains []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, err
		}
		domains = append(domains, d)
	}
	return domains, rows.Err()
}

func (r *SQLitePatternRepository) ActivateLatest(ctx context.Context, domain string) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var latestID string
	err = tx.QueryRowContext(ctx, `
		SELECT id FROM pattern_versions WHERE domain = ? ORDER BY created_at DESC, version_number DESC LIMIT 1`, domain).Scan(&latestID)
	if err != nil {
		return false, fmt.Errorf("select latest version: %w", err)
	}

	var currentActiveID sql.NullString
	_ = tx.QueryRowContext(ctx, `SELECT id FROM pattern_versions WHERE domain = ? AND is_active = 1`, domain).Scan(&currentActiveID)
	if currentActiveID.Valid && currentActiveID.String == latestID {
		return false, tx.Commit()
	}

	if _, err := tx.ExecContext(ctx, `UPDATE pattern_versions SET is_active = 0 WHERE domain = ?`, domain); err != nil {
		return false, fmt.Errorf("deactivate versions: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE pattern_versions SET is_active = 1 WHERE id = ?`, latestID); err != nil {
		return false, fmt.Errorf("activate latest: %w", err)
	}

	var patternJSON string
	if err := tx.QueryRowContext(ctx, `SELECT pattern_json FROM pattern_versions WHERE id = ?`, latestID).Scan(&patternJSON); err != nil {
		return false, fmt.Errorf("read latest pattern: %w", err)
	}
	_, err = tx.ExecContext(ctx, `UPDATE patterns SET pattern_json = ?, updated_at = ? WHERE domain = ?`,
		patternJSON, time.Now().UTC().Format(time.RFC3339), domain)
	if err != nil {
		return false, fmt.Errorf("refresh pattern: %w", err)
	}

	return true, tx.Commit()
}

func (r *SQLitePatternRepository) SetVersionStats(ctx context.Context, versionID string, total, successful int64) error {
	rate := 0.0
	if total > 0 {
		rate = float64(successful) / float64(total)
	}
	_, err := r.db.ExecContext(ctx, `
		UPDATE pattern_versions SET total_attempts = ?, successful_attempts = ?, success_rate = ? WHERE id = ?`,
		total, successful, rate, versionID)
	return err
}

func (r *SQLitePatternRepository) UnhealthyDomains(ctx context.Context, minAttempts int64, maxSuccessRate float64) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT domain FROM patterns WHERE total_attempts >= ? AND success_rate < ?`, minAttempts, maxSuccessRate)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var domains []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, err
		}
		domains = append(domains, d)
	}
	return domains, rows.Err()
}

func scanPatternVersion(row rowScanner) (*models.PatternVersion, error) {
	var v models.PatternVersion
	var createdAt string
	var changeReason sql.NullString
	var changeType string
	err := row.Scan(&v.ID, &v.Domain, &v.VersionNumber, &v.PatternJSON, &v.ContentDigest, &v.IsActive,
		&createdAt, &changeReason, &changeType, &v.TotalAttempts, &v.SuccessfulAttempts, &v.SuccessRate)
	if err != nil {
		return nil, err
	}
	v.ChangeReason = changeReason.String
	v.ChangeType = models.ChangeType(changeType)
	v.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &v, nil
}

func scanPatternVersions(rows *sql.Rows) ([]*models.PatternVersion, error) {
	var out []*models.PatternVersion
	for rows.Next() {
		v, err := scanPatternVersion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
