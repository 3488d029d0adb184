// ABOUTME: Database schema definitions and migrations
// ABOUTME: Table creation kept portable across Postgres and SQLite
package db

import (
	"database/sql"
)

const schema = `
CREATE TABLE IF NOT EXISTS connections (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	location_id TEXT NOT NULL,
	company_id TEXT,
	access_token TEXT NOT NULL,
	refresh_token TEXT NOT NULL,
	expires_at TIMESTAMP NOT NULL,
	is_active BOOLEAN NOT NULL DEFAULT TRUE,
	last_sync_at TIMESTAMP,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_connections_location ON connections(location_id);

CREATE TABLE IF NOT EXISTS listings (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	city TEXT NOT NULL DEFAULT 'Unbekannt',
	price INTEGER NOT NULL DEFAULT 0,
	rooms REAL NOT NULL DEFAULT 0,
	area_sqm REAL NOT NULL DEFAULT 0,
	status TEXT NOT NULL DEFAULT 'aktiv' CHECK(status IN ('aktiv', 'reserviert', 'verkauft')),
	ai_ready BOOLEAN NOT NULL DEFAULT FALSE,
	description TEXT,
	translated_description TEXT,
	translated_at TIMESTAMP,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_listings_name ON listings(name);

CREATE TABLE IF NOT EXISTS leads (
	id TEXT PRIMARY KEY,
	connection_id TEXT NOT NULL,
	external_id TEXT NOT NULL UNIQUE,
	name TEXT NOT NULL,
	email TEXT,
	phone TEXT,
	source TEXT,
	status TEXT NOT NULL DEFAULT 'neu',
	listing_id TEXT,
	pipeline_stage TEXT,
	reached_viewing BOOLEAN NOT NULL DEFAULT FALSE,
	reached_financing BOOLEAN NOT NULL DEFAULT FALSE,
	reached_notary BOOLEAN NOT NULL DEFAULT FALSE,
	reached_purchase BOOLEAN NOT NULL DEFAULT FALSE,
	quality_score INTEGER NOT NULL DEFAULT 0,
	temperature TEXT,
	summary TEXT,
	last_analyzed_at TIMESTAMP,
	last_message_at TIMESTAMP,
	tags TEXT,
	raw_payload TEXT,
	archived BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL,
	FOREIGN KEY (connection_id) REFERENCES connections(id),
	FOREIGN KEY (listing_id) REFERENCES listings(id)
);

CREATE INDEX IF NOT EXISTS idx_leads_connection ON leads(connection_id);
CREATE INDEX IF NOT EXISTS idx_leads_status ON leads(status);
CREATE INDEX IF NOT EXISTS idx_leads_listing ON leads(listing_id);
CREATE INDEX IF NOT EXISTS idx_leads_email ON leads(email);
CREATE INDEX IF NOT EXISTS idx_leads_phone ON leads(phone);

CREATE TABLE IF NOT EXISTS messages (
	id TEXT PRIMARY KEY,
	lead_id TEXT NOT NULL,
	external_id TEXT NOT NULL UNIQUE,
	conversation_id TEXT,
	direction TEXT NOT NULL CHECK(direction IN ('incoming', 'outgoing')),
	channel TEXT,
	content TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'pending' CHECK(status IN ('pending', 'delivered', 'read', 'failed')),
	from_template BOOLEAN NOT NULL DEFAULT FALSE,
	sent_at TIMESTAMP NOT NULL,
	created_at TIMESTAMP NOT NULL,
	FOREIGN KEY (lead_id) REFERENCES leads(id)
);

CREATE INDEX IF NOT EXISTS idx_messages_lead ON messages(lead_id);
CREATE INDEX IF NOT EXISTS idx_messages_sent_at ON messages(sent_at DESC);

CREATE TABLE IF NOT EXISTS todos (
	id TEXT PRIMARY KEY,
	lead_id TEXT,
	listing_id TEXT,
	external_id TEXT UNIQUE,
	title TEXT NOT NULL,
	description TEXT,
	type TEXT NOT NULL DEFAULT 'nachricht' CHECK(type IN ('nachricht', 'anruf', 'besichtigung', 'finanzierung', 'unterlagen')),
	priority TEXT NOT NULL DEFAULT 'normal' CHECK(priority IN ('normal', 'dringend')),
	source TEXT NOT NULL DEFAULT 'task' CHECK(source IN ('task', 'event', 'manual')),
	due_at TIMESTAMP,
	completed BOOLEAN NOT NULL DEFAULT FALSE,
	completed_at TIMESTAMP,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL,
	FOREIGN KEY (lead_id) REFERENCES leads(id),
	FOREIGN KEY (listing_id) REFERENCES listings(id)
);

CREATE INDEX IF NOT EXISTS idx_todos_lead ON todos(lead_id);
CREATE INDEX IF NOT EXISTS idx_todos_listing ON todos(listing_id);
CREATE INDEX IF NOT EXISTS idx_todos_due ON todos(completed, due_at);

CREATE TABLE IF NOT EXISTS knowledge_entries (
	id TEXT PRIMARY KEY,
	listing_id TEXT,
	question TEXT NOT NULL,
	answer TEXT NOT NULL,
	source TEXT NOT NULL DEFAULT 'manual' CHECK(source IN ('learned', 'manual')),
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL,
	FOREIGN KEY (listing_id) REFERENCES listings(id)
);

CREATE INDEX IF NOT EXISTS idx_knowledge_listing ON knowledge_entries(listing_id);

CREATE TABLE IF NOT EXISTS analysis_jobs (
	id TEXT PRIMARY KEY,
	kind TEXT NOT NULL CHECK(kind IN ('lead_analysis', 'followup_drafts', 'listing_translation')),
	status TEXT NOT NULL DEFAULT 'running' CHECK(status IN ('running', 'completed', 'failed')),
	total_items INTEGER NOT NULL DEFAULT 0,
	analyzed_count INTEGER NOT NULL DEFAULT 0,
	skipped_count INTEGER NOT NULL DEFAULT 0,
	failed_count INTEGER NOT NULL DEFAULT 0,
	batch_size INTEGER NOT NULL DEFAULT 10,
	full_rerun BOOLEAN NOT NULL DEFAULT FALSE,
	claimed_at TIMESTAMP,
	claim_token TEXT,
	last_error TEXT,
	started_at TIMESTAMP NOT NULL,
	completed_at TIMESTAMP,
	updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_analysis_jobs_status ON analysis_jobs(status);

CREATE TABLE IF NOT EXISTS followup_approvals (
	id TEXT PRIMARY KEY,
	lead_id TEXT NOT NULL,
	draft TEXT NOT NULL,
	reasoning TEXT,
	status TEXT NOT NULL DEFAULT 'pending' CHECK(status IN ('pending', 'approved', 'rejected', 'expired', 'sent')),
	expires_at TIMESTAMP NOT NULL,
	decided_at TIMESTAMP,
	sent_at TIMESTAMP,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL,
	FOREIGN KEY (lead_id) REFERENCES leads(id)
);

CREATE INDEX IF NOT EXISTS idx_followup_approvals_lead ON followup_approvals(lead_id);
CREATE INDEX IF NOT EXISTS idx_followup_approvals_status ON followup_approvals(status);

CREATE TABLE IF NOT EXISTS sync_runs (
	id TEXT PRIMARY KEY,
	connection_id TEXT NOT NULL,
	sync_type TEXT NOT NULL,
	status TEXT NOT NULL CHECK(status IN ('success', 'partial', 'failed')),
	counts TEXT,
	error_detail TEXT,
	started_at TIMESTAMP NOT NULL,
	finished_at TIMESTAMP,
	FOREIGN KEY (connection_id) REFERENCES connections(id)
);

CREATE INDEX IF NOT EXISTS idx_sync_runs_connection ON sync_runs(connection_id, started_at DESC);

CREATE TABLE IF NOT EXISTS webhook_events (
	id TEXT PRIMARY KEY,
	event_type TEXT NOT NULL,
	location_id TEXT NOT NULL,
	external_id TEXT,
	received_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_webhook_events_received ON webhook_events(received_at DESC);

CREATE TABLE IF NOT EXISTS prompt_templates (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL UNIQUE,
	template TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);
`

func InitSchema(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}
