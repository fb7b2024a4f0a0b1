package repository

// Schema definitions for the geobeat database.
// Compatible with both SQLite and PostgreSQL.

const schemaSnapshots = `
CREATE TABLE IF NOT EXISTS snapshots (
    network TEXT NOT NULL,
    fingerprint TEXT NOT NULL,
    captured_at TIMESTAMP NOT NULL,
    node_count INTEGER NOT NULL,
    nodes TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    PRIMARY KEY (network, fingerprint)
);

CREATE INDEX IF NOT EXISTS idx_snapshots_captured ON snapshots(network, captured_at);
`

// schemaScores keeps the summary columns used by history queries next to the
// full JSON payload, which is the source of truth for GetScore.
const schemaScores = `
CREATE TABLE IF NOT EXISTS scores (
    id TEXT PRIMARY KEY,
    network TEXT NOT NULL,
    policy_id TEXT NOT NULL,
    policy_version TEXT NOT NULL,
    snapshot_fingerprint TEXT NOT NULL,
    captured_at TIMESTAMP NOT NULL,
    gdi DOUBLE PRECISION NOT NULL,
    scale_invariant_gdi DOUBLE PRECISION NOT NULL,
    physical DOUBLE PRECISION NOT NULL,
    jurisdictional DOUBLE PRECISION NOT NULL,
    infrastructure DOUBLE PRECISION NOT NULL,
    network_size DOUBLE PRECISION NOT NULL,
    total_nodes INTEGER NOT NULL,
    payload TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_scores_network ON scores(network, captured_at);
CREATE INDEX IF NOT EXISTS idx_scores_policy ON scores(network, policy_id, captured_at);
`

// schemaPolicies stores user scoring policies. Rows are never updated in place;
// deletion only clears the enabled flag so historical scores stay explainable.
const schemaPolicies = `
CREATE TABLE IF NOT EXISTS scoring_policies (
    id TEXT NOT NULL,
    version TEXT NOT NULL,
    name TEXT NOT NULL,
    description TEXT,
    body TEXT NOT NULL,
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (id, version)
);

CREATE INDEX IF NOT EXISTS idx_scoring_policies_enabled ON scoring_policies(enabled);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaSnapshots,
		schemaScores,
		schemaPolicies,
	}
}
