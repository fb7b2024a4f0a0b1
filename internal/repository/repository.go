// Package repository persists snapshots, scores and scoring policies.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/DecentralizedGeo/geobeat-sub000/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")

	// ErrConflict reports an attempt to change an immutable record.
	ErrConflict = errors.New("record already exists with different content")
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (*SQLRepository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{db: db, driver: cfg.Driver}
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveSnapshot stores a snapshot keyed by network and content fingerprint.
// Saving the same content twice is a no-op.
func (r *SQLRepository) SaveSnapshot(ctx context.Context, s *domain.NetworkSnapshot) (string, error) {
	if s == nil || s.Network == "" {
		return "", fmt.Errorf("%w: network is required", ErrInvalidInput)
	}
	nodes, err := json.Marshal(s.Nodes)
	if err != nil {
		return "", fmt.Errorf("encode nodes: %w", err)
	}
	fingerprint := s.Fingerprint()

	query := `
		INSERT INTO snapshots (network, fingerprint, captured_at, node_count, nodes, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (network, fingerprint) DO NOTHING
	`
	_, err = r.db.ExecContext(ctx, r.rebind(query),
		s.Network, fingerprint, s.CapturedAt.UTC(), len(s.Nodes), string(nodes), time.Now().UTC(),
	)
	if err != nil {
		return "", err
	}
	return fingerprint, nil
}

// GetSnapshot retrieves a snapshot by network and fingerprint.
func (r *SQLRepository) GetSnapshot(ctx context.Context, network, fingerprint string) (*domain.NetworkSnapshot, error) {
	query := `
		SELECT network, captured_at, nodes
		FROM snapshots
		WHERE network = ? AND fingerprint = ?
	`
	var s domain.NetworkSnapshot
	var nodes string
	err := r.db.QueryRowContext(ctx, r.rebind(query), network, fingerprint).Scan(&s.Network, &s.CapturedAt, &nodes)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	s.CapturedAt = s.CapturedAt.UTC()
	if err := json.Unmarshal([]byte(nodes), &s.Nodes); err != nil {
		return nil, fmt.Errorf("failed to parse snapshot nodes: %w", err)
	}
	return &s, nil
}

// SaveScore stores a composite score. Score IDs are derived from their inputs,
// so saving an existing ID again is a no-op.
func (r *SQLRepository) SaveScore(ctx context.Context, score *domain.CompositeScore) error {
	if score == nil || score.ID == "" || score.Network == "" {
		return fmt.Errorf("%w: score id and network are required", ErrInvalidInput)
	}
	payload, err := json.Marshal(score)
	if err != nil {
		return fmt.Errorf("encode score: %w", err)
	}
	sum := score.Summary()

	query := `
		INSERT INTO scores (
			id, network, policy_id, policy_version, snapshot_fingerprint, captured_at,
			gdi, scale_invariant_gdi, physical, jurisdictional, infrastructure,
			network_size, total_nodes, payload, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING
	`
	_, err = r.db.ExecContext(ctx, r.rebind(query),
		sum.ID, sum.Network, sum.PolicyID, sum.PolicyVersion, score.SnapshotFingerprint, sum.CapturedAt.UTC(),
		sum.GDI, sum.ScaleInvariantGDI, sum.Physical, sum.Jurisdictional, sum.Infrastructure,
		sum.NetworkSize, sum.TotalNodes, string(payload), time.Now().UTC(),
	)
	return err
}

// GetScore retrieves a full score by ID.
func (r *SQLRepository) GetScore(ctx context.Context, scoreID string) (*domain.CompositeScore, error) {
	var payload string
	err := r.db.QueryRowContext(ctx, r.rebind(`SELECT payload FROM scores WHERE id = ?`), scoreID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var score domain.CompositeScore
	if err := json.Unmarshal([]byte(payload), &score); err != nil {
		return nil, fmt.Errorf("failed to parse score %s: %w", scoreID, err)
	}
	return &score, nil
}

// ListScores returns score summaries for a network, newest first. An empty
// policyID matches every policy; limit <= 0 returns every row.
func (r *SQLRepository) ListScores(ctx context.Context, network, policyID string, since time.Time, limit int) ([]*domain.ScoreSummary, error) {
	if network == "" {
		return nil, fmt.Errorf("%w: network is required", ErrInvalidInput)
	}

	var b strings.Builder
	b.WriteString(`
		SELECT id, network, policy_id, policy_version, captured_at,
			   gdi, scale_invariant_gdi, physical, jurisdictional, infrastructure,
			   network_size, total_nodes
		FROM scores
		WHERE network = ? AND captured_at >= ?`)
	args := []any{network, since.UTC()}
	if policyID != "" {
		b.WriteString(" AND policy_id = ?")
		args = append(args, policyID)
	}
	b.WriteString(" ORDER BY captured_at DESC, id")
	if limit > 0 {
		b.WriteString(" LIMIT ?")
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, r.rebind(b.String()), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.ScoreSummary
	for rows.Next() {
		var s domain.ScoreSummary
		if err := rows.Scan(
			&s.ID, &s.Network, &s.PolicyID, &s.PolicyVersion, &s.CapturedAt,
			&s.GDI, &s.ScaleInvariantGDI, &s.Physical, &s.Jurisdictional, &s.Infrastructure,
			&s.NetworkSize, &s.TotalNodes,
		); err != nil {
			return nil, err
		}
		s.CapturedAt = s.CapturedAt.UTC()
		out = append(out, &s)
	}
	return out, rows.Err()
}

// SavePolicy stores a scoring policy. A stored (id, version) is immutable:
// saving identical content again succeeds, different content returns ErrConflict.
func (r *SQLRepository) SavePolicy(ctx context.Context, p *domain.ScoringPolicy) error {
	if p == nil || p.ID == "" || p.Version == "" {
		return fmt.Errorf("%w: policy id and version are required", ErrInvalidInput)
	}
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode policy: %w", err)
	}

	enabled := 0
	if p.Enabled {
		enabled = 1
	}
	now := time.Now().UTC()

	query := `
		INSERT INTO scoring_policies (id, version, name, description, body, enabled, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = r.db.ExecContext(ctx, r.rebind(query),
		p.ID, p.Version, p.Name, p.Description, string(body), enabled, now, now,
	)
	if err == nil {
		return nil
	}
	if !r.isConflict(err) {
		return err
	}

	existing, getErr := r.getPolicy(ctx, p.ID, p.Version, true)
	if getErr != nil {
		return getErr
	}
	if !samePolicyContent(existing, p) {
		return fmt.Errorf("%w: policy %s@%s", ErrConflict, p.ID, p.Version)
	}
	if !existing.Enabled && p.Enabled {
		_, err = r.db.ExecContext(ctx, r.rebind(`
			UPDATE scoring_policies SET enabled = 1, updated_at = ? WHERE id = ? AND version = ?
		`), now, p.ID, p.Version)
		return err
	}
	return nil
}

// GetPolicy retrieves an enabled policy. An empty version selects the most
// recently stored one.
func (r *SQLRepository) GetPolicy(ctx context.Context, policyID, version string) (*domain.ScoringPolicy, error) {
	return r.getPolicy(ctx, policyID, version, false)
}

func (r *SQLRepository) getPolicy(ctx context.Context, policyID, version string, includeDisabled bool) (*domain.ScoringPolicy, error) {
	var b strings.Builder
	b.WriteString(`SELECT body, enabled, created_at, updated_at FROM scoring_policies WHERE id = ?`)
	args := []any{policyID}
	if version != "" {
		b.WriteString(" AND version = ?")
		args = append(args, version)
	}
	if !includeDisabled {
		b.WriteString(" AND enabled = 1")
	}
	b.WriteString(" ORDER BY created_at DESC LIMIT 1")

	var body string
	var enabled int
	var created, updated time.Time
	err := r.db.QueryRowContext(ctx, r.rebind(b.String()), args...).Scan(&body, &enabled, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return decodePolicy(body, enabled, created, updated)
}

// ListPolicies retrieves every enabled policy ordered by id and version.
func (r *SQLRepository) ListPolicies(ctx context.Context) ([]*domain.ScoringPolicy, error) {
	query := `
		SELECT body, enabled, created_at, updated_at
		FROM scoring_policies
		WHERE enabled = 1
		ORDER BY id, version
	`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.ScoringPolicy
	for rows.Next() {
		var body string
		var enabled int
		var created, updated time.Time
		if err := rows.Scan(&body, &enabled, &created, &updated); err != nil {
			return nil, err
		}
		p, err := decodePolicy(body, enabled, created, updated)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// DeletePolicy disables a policy version, or every version when version is empty.
// Scores keep their embedded copy of the policy.
func (r *SQLRepository) DeletePolicy(ctx context.Context, policyID, version string) error {
	query := `UPDATE scoring_policies SET enabled = 0, updated_at = ? WHERE id = ? AND enabled = 1`
	args := []any{time.Now().UTC(), policyID}
	if version != "" {
		query += " AND version = ?"
		args = append(args, version)
	}

	result, err := r.db.ExecContext(ctx, r.rebind(query), args...)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

func (r *SQLRepository) isConflict(err error) bool {
	if r.driver == "postgres" {
		return isPostgresConflict(err)
	}
	return isSQLiteConflict(err)
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}
	var b strings.Builder
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			fmt.Fprintf(&b, "$%d", n)
			n++
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

func decodePolicy(body string, enabled int, created, updated time.Time) (*domain.ScoringPolicy, error) {
	var p domain.ScoringPolicy
	if err := json.Unmarshal([]byte(body), &p); err != nil {
		return nil, fmt.Errorf("failed to parse scoring policy: %w", err)
	}
	p.Enabled = enabled == 1
	p.CreatedAt = created.UTC()
	p.UpdatedAt = updated.UTC()
	return &p, nil
}

// samePolicyContent compares everything except bookkeeping fields.
func samePolicyContent(a, b *domain.ScoringPolicy) bool {
	x, y := *a, *b
	x.Enabled, y.Enabled = true, true
	x.CreatedAt, y.CreatedAt = time.Time{}, time.Time{}
	x.UpdatedAt, y.UpdatedAt = time.Time{}, time.Time{}
	return reflect.DeepEqual(x, y)
}
