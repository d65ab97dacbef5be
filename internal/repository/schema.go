package repository

// Schema definitions for the Harrier database.
// Compatible with both SQLite and PostgreSQL.

const schemaInvestigations = `
CREATE TABLE IF NOT EXISTS investigations (
    id TEXT PRIMARY KEY,
    npi TEXT NOT NULL,
    score INTEGER NOT NULL,
    priority TEXT NOT NULL,
    data_quality REAL NOT NULL,
    anomalies TEXT NOT NULL,
    evidence TEXT NOT NULL,
    temporal_patterns TEXT,
    geographic_patterns TEXT,
    analyzed_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_investigations_npi ON investigations(npi);
CREATE INDEX IF NOT EXISTS idx_investigations_priority ON investigations(priority);
CREATE INDEX IF NOT EXISTS idx_investigations_analyzed ON investigations(npi, analyzed_at);
`

const schemaUtilizationSnapshots = `
CREATE TABLE IF NOT EXISTS utilization_snapshots (
    npi TEXT PRIMARY KEY,
    total_services INTEGER NOT NULL,
    unique_beneficiaries INTEGER NOT NULL,
    total_charges REAL NOT NULL,
    total_payments REAL NOT NULL,
    updated_at TIMESTAMP NOT NULL
);
`

const schemaFinancialEntries = `
CREATE TABLE IF NOT EXISTS financial_entries (
    npi TEXT NOT NULL,
    estimated_fraud REAL NOT NULL DEFAULT 0,
    settlement REAL NOT NULL DEFAULT 0,
    restitution REAL NOT NULL DEFAULT 0,
    notes TEXT,
    investigation_year INTEGER NOT NULL,
    created_at TIMESTAMP NOT NULL,
    PRIMARY KEY (npi, investigation_year)
);

CREATE INDEX IF NOT EXISTS idx_financial_entries_year ON financial_entries(investigation_year);
`

// AllSchemas returns the schemas in creation order.
func AllSchemas() []string {
	return []string{
		schemaInvestigations,
		schemaUtilizationSnapshots,
		schemaFinancialEntries,
	}
}
