// ABOUTME: Lead database operations
// ABOUTME: Upserts keyed on external contact id, stage flags, analysis updates
package db

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/restriden/simpli-immo-sub001/models"
)

const leadColumns = `id, connection_id, external_id, name, email, phone, source, status, listing_id, pipeline_stage, reached_viewing, reached_financing, reached_notary, reached_purchase, quality_score, temperature, summary, last_analyzed_at, last_message_at, tags, raw_payload, archived, created_at, updated_at`

// UpsertLead persists a mapped lead keyed on its external contact id. Contact
// fields are overwritten on conflict; listing assignment, stage flags, and
// analysis fields are left untouched. The struct is refreshed from the stored
// row afterwards so callers see the canonical id and listing assignment.
func UpsertLead(db *sql.DB, lead *models.Lead) error {
	if lead.ExternalID == "" {
		return fmt.Errorf("lead is missing an external id")
	}

	if lead.ID == uuid.Nil {
		lead.ID = uuid.New()
	}
	now := time.Now()
	if lead.CreatedAt.IsZero() {
		lead.CreatedAt = now
	}
	lead.UpdatedAt = now
	if lead.Status == "" {
		lead.Status = models.LeadStatusNew
	}

	var listingID *string
	if lead.ListingID != nil {
		s := lead.ListingID.String()
		listingID = &s
	}

	columns := []string{
		"id", "connection_id", "external_id", "name", "email", "phone", "source", "status",
		"listing_id", "pipeline_stage", "reached_viewing", "reached_financing", "reached_notary",
		"reached_purchase", "quality_score", "temperature", "summary", "last_analyzed_at",
		"last_message_at", "tags", "raw_payload", "archived", "created_at", "updated_at",
	}
	values := []any{
		lead.ID.String(), lead.ConnectionID.String(), lead.ExternalID, lead.Name, lead.Email,
		lead.Phone, lead.Source, lead.Status, listingID, lead.PipelineStage, lead.ReachedViewing,
		lead.ReachedFinancing, lead.ReachedNotary, lead.ReachedPurchase, lead.QualityScore,
		lead.Temperature, lead.Summary, lead.LastAnalyzedAt, lead.LastMessageAt, lead.Tags,
		lead.RawPayload, lead.Archived, lead.CreatedAt, lead.UpdatedAt,
	}
	updateCols := []string{"name", "email", "phone", "source", "status", "tags", "raw_payload", "updated_at"}

	if err := Upsert(db, "leads", columns, values, "external_id", updateCols); err != nil {
		return fmt.Errorf("failed to upsert lead %s: %w", lead.ExternalID, err)
	}

	stored, err := GetLeadByExternalID(db, lead.ExternalID)
	if err != nil {
		return err
	}
	if stored != nil {
		*lead = *stored
	}

	return nil
}

func GetLead(db *sql.DB, id uuid.UUID) (*models.Lead, error) {
	row := db.QueryRow(`SELECT `+leadColumns+` FROM leads WHERE id = $1`, id.String())

	lead, err := scanLead(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return lead, nil
}

func GetLeadByExternalID(db *sql.DB, externalID string) (*models.Lead, error) {
	row := db.QueryRow(`SELECT `+leadColumns+` FROM leads WHERE external_id = $1`, externalID)

	lead, err := scanLead(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return lead, nil
}

// FindLeadByEmailOrPhone is the secondary heuristic match used by pipeline
// sync when an opportunity's contact id is unknown locally.
func FindLeadByEmailOrPhone(db *sql.DB, email, phone string) (*models.Lead, error) {
	if email == "" && phone == "" {
		return nil, nil
	}

	row := db.QueryRow(`
		SELECT `+leadColumns+` FROM leads
		WHERE (email != '' AND email = $1) OR (phone != '' AND phone = $2)
		ORDER BY updated_at DESC LIMIT 1
	`, email, phone)

	lead, err := scanLead(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return lead, nil
}

func FindLeads(db *sql.DB, query, status string, limit int) ([]models.Lead, error) {
	if limit <= 0 {
		limit = 20
	}

	var rows *sql.Rows
	var err error

	if query != "" {
		searchPattern := "%" + strings.ToLower(query) + "%"
		if status != "" {
			rows, err = db.Query(`
				SELECT `+leadColumns+` FROM leads
				WHERE archived = FALSE AND status = $1 AND (LOWER(name) LIKE $2 OR LOWER(email) LIKE $3 OR phone LIKE $4)
				ORDER BY updated_at DESC LIMIT $5
			`, status, searchPattern, searchPattern, searchPattern, limit)
		} else {
			rows, err = db.Query(`
				SELECT `+leadColumns+` FROM leads
				WHERE archived = FALSE AND (LOWER(name) LIKE $1 OR LOWER(email) LIKE $2 OR phone LIKE $3)
				ORDER BY updated_at DESC LIMIT $4
			`, searchPattern, searchPattern, searchPattern, limit)
		}
	} else if status != "" {
		rows, err = db.Query(`
			SELECT `+leadColumns+` FROM leads
			WHERE archived = FALSE AND status = $1
			ORDER BY updated_at DESC LIMIT $2
		`, status, limit)
	} else {
		rows, err = db.Query(`
			SELECT `+leadColumns+` FROM leads
			WHERE archived = FALSE
			ORDER BY updated_at DESC LIMIT $1
		`, limit)
	}

	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectLeads(rows)
}

// ListLeadsByConnection returns all non-archived leads of one connection,
// used by per-contact sync passes.
func ListLeadsByConnection(db *sql.DB, connectionID uuid.UUID) ([]models.Lead, error) {
	rows, err := db.Query(`
		SELECT `+leadColumns+` FROM leads
		WHERE archived = FALSE AND connection_id = $1
		ORDER BY updated_at DESC
	`, connectionID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectLeads(rows)
}

// ListLeadOverviews returns leads joined with listing names and activity
// counts for list views.
func ListLeadOverviews(db *sql.DB, status string, limit int) ([]models.LeadOverview, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT ` + prefixColumns("l", leadColumns) + `,
			COALESCE(o.name, ''),
			(SELECT COUNT(*) FROM messages m WHERE m.lead_id = l.id),
			(SELECT COUNT(*) FROM todos t WHERE t.lead_id = l.id AND t.completed = FALSE)
		FROM leads l
		LEFT JOIN listings o ON o.id = l.listing_id
		WHERE l.archived = FALSE
	`
	var rows *sql.Rows
	var err error
	if status != "" {
		rows, err = db.Query(query+` AND l.status = $1 ORDER BY l.updated_at DESC LIMIT $2`, status, limit)
	} else {
		rows, err = db.Query(query+` ORDER BY l.updated_at DESC LIMIT $1`, limit)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var overviews []models.LeadOverview
	for rows.Next() {
		var ov models.LeadOverview
		ls := newLeadScan(&ov.Lead)
		dest := append(ls.dest(), &ov.ListingName, &ov.MessageCount, &ov.OpenTodoCount)
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		ls.finish()
		overviews = append(overviews, ov)
	}

	return overviews, rows.Err()
}

func AssignLeadListing(db *sql.DB, leadID, listingID uuid.UUID) error {
	_, err := db.Exec(`
		UPDATE leads SET listing_id = $1, updated_at = $2 WHERE id = $3
	`, listingID.String(), time.Now(), leadID.String())

	return err
}

func UpdateLeadStatus(db *sql.DB, leadID uuid.UUID, status string) error {
	_, err := db.Exec(`
		UPDATE leads SET status = $1, updated_at = $2 WHERE id = $3
	`, status, time.Now(), leadID.String())

	return err
}

// UpdateLeadPipelineStage stores the normalized stage and raises the
// reached-stage flags. Flags already true stay true regardless of the
// incoming stage (high-water-mark semantics).
func UpdateLeadPipelineStage(db *sql.DB, leadID uuid.UUID, stage string, flags models.StageFlags) error {
	_, err := db.Exec(`
		UPDATE leads SET
			pipeline_stage = $1,
			reached_viewing = reached_viewing OR $2,
			reached_financing = reached_financing OR $3,
			reached_notary = reached_notary OR $4,
			reached_purchase = reached_purchase OR $5,
			updated_at = $6
		WHERE id = $7
	`, stage, flags.Viewing, flags.Financing, flags.Notary, flags.Purchase, time.Now(), leadID.String())

	return err
}

func UpdateLeadAnalysis(db *sql.DB, leadID uuid.UUID, qualityScore int, temperature, summary string, analyzedAt time.Time) error {
	_, err := db.Exec(`
		UPDATE leads SET quality_score = $1, temperature = $2, summary = $3, last_analyzed_at = $4, updated_at = $5
		WHERE id = $6
	`, qualityScore, temperature, summary, analyzedAt, time.Now(), leadID.String())

	return err
}

// TouchLeadAnalyzed stamps last_analyzed_at without touching the analysis
// fields. Used for skipped leads so they leave the analysis work set.
func TouchLeadAnalyzed(db *sql.DB, leadID uuid.UUID, at time.Time) error {
	_, err := db.Exec(`
		UPDATE leads SET last_analyzed_at = $1, updated_at = $2 WHERE id = $3
	`, at, time.Now(), leadID.String())

	return err
}

// TouchLeadLastMessage advances last_message_at, never moving it backwards.
func TouchLeadLastMessage(db *sql.DB, leadID uuid.UUID, at time.Time) error {
	_, err := db.Exec(`
		UPDATE leads SET last_message_at = $1, updated_at = $2
		WHERE id = $3 AND (last_message_at IS NULL OR last_message_at < $4)
	`, at, time.Now(), leadID.String(), at)

	return err
}

func ArchiveLead(db *sql.DB, leadID uuid.UUID) error {
	_, err := db.Exec(`
		UPDATE leads SET archived = TRUE, updated_at = $1 WHERE id = $2
	`, time.Now(), leadID.String())

	return err
}

// ListLeadsForAnalysis returns the remaining work set for a lead analysis
// run: never-analyzed leads, or with fullRerun every lead not yet touched by
// this run (last_analyzed_at older than the job start).
func ListLeadsForAnalysis(db *sql.DB, jobStartedAt time.Time, fullRerun bool, limit int) ([]models.Lead, error) {
	var rows *sql.Rows
	var err error

	if fullRerun {
		rows, err = db.Query(`
			SELECT `+leadColumns+` FROM leads
			WHERE archived = FALSE AND (last_analyzed_at IS NULL OR last_analyzed_at < $1)
			ORDER BY created_at LIMIT $2
		`, jobStartedAt, limit)
	} else {
		rows, err = db.Query(`
			SELECT `+leadColumns+` FROM leads
			WHERE archived = FALSE AND last_analyzed_at IS NULL
			ORDER BY created_at LIMIT $1
		`, limit)
	}

	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectLeads(rows)
}

func CountLeadsForAnalysis(db *sql.DB, fullRerun bool) (int, error) {
	query := `SELECT COUNT(*) FROM leads WHERE archived = FALSE AND last_analyzed_at IS NULL`
	if fullRerun {
		query = `SELECT COUNT(*) FROM leads WHERE archived = FALSE`
	}

	var count int
	err := db.QueryRow(query).Scan(&count)
	return count, err
}

// ListLeadsForFollowup returns stale leads eligible for a follow-up draft:
// last inbound activity before staleBefore, no pending approval, and no
// approval already created by this run.
func ListLeadsForFollowup(db *sql.DB, staleBefore, jobStartedAt time.Time, limit int) ([]models.Lead, error) {
	rows, err := db.Query(`
		SELECT `+leadColumns+` FROM leads
		WHERE archived = FALSE
			AND last_message_at IS NOT NULL
			AND last_message_at < $1
			AND NOT EXISTS (
				SELECT 1 FROM followup_approvals fa
				WHERE fa.lead_id = leads.id AND (fa.status = 'pending' OR fa.created_at >= $2)
			)
		ORDER BY last_message_at LIMIT $3
	`, staleBefore, jobStartedAt, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectLeads(rows)
}

func CountLeadsForFollowup(db *sql.DB, staleBefore time.Time) (int, error) {
	var count int
	err := db.QueryRow(`
		SELECT COUNT(*) FROM leads
		WHERE archived = FALSE
			AND last_message_at IS NOT NULL
			AND last_message_at < $1
			AND NOT EXISTS (
				SELECT 1 FROM followup_approvals fa
				WHERE fa.lead_id = leads.id AND fa.status = 'pending'
			)
	`, staleBefore).Scan(&count)

	return count, err
}

func CountLeadsByStatus(db *sql.DB) (map[string]int, error) {
	rows, err := db.Query(`
		SELECT status, COUNT(*) FROM leads WHERE archived = FALSE GROUP BY status
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}

	return counts, rows.Err()
}

// CountStageReached totals the sticky milestone flags across active leads.
func CountStageReached(db *sql.DB) (models.StageCounts, error) {
	var c models.StageCounts
	err := db.QueryRow(`
		SELECT COUNT(*),
			COALESCE(SUM(CASE WHEN reached_viewing THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN reached_financing THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN reached_notary THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN reached_purchase THEN 1 ELSE 0 END), 0)
		FROM leads WHERE archived = FALSE
	`).Scan(&c.Total, &c.Viewing, &c.Financing, &c.Notary, &c.Purchase)

	return c, err
}

// CountLeadsByTemperature groups active leads by classified temperature.
// Leads the analyzer has not scored yet land under the empty key.
func CountLeadsByTemperature(db *sql.DB) (map[string]int, error) {
	rows, err := db.Query(`
		SELECT COALESCE(temperature, ''), COUNT(*) FROM leads WHERE archived = FALSE GROUP BY temperature
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var temp string
		var n int
		if err := rows.Scan(&temp, &n); err != nil {
			return nil, err
		}
		counts[temp] += n
	}

	return counts, rows.Err()
}

func collectLeads(rows *sql.Rows) ([]models.Lead, error) {
	var leads []models.Lead
	for rows.Next() {
		lead, err := scanLead(rows)
		if err != nil {
			return nil, err
		}
		leads = append(leads, *lead)
	}
	return leads, rows.Err()
}

// leadScan holds the nullable column targets for one lead row. finish must
// run after a successful Scan to resolve them onto the model.
type leadScan struct {
	lead           *models.Lead
	listingID      sql.NullString
	lastAnalyzedAt sql.NullTime
	lastMessageAt  sql.NullTime
}

func newLeadScan(lead *models.Lead) *leadScan {
	return &leadScan{lead: lead}
}

func (ls *leadScan) dest() []any {
	lead := ls.lead
	return []any{
		&lead.ID, &lead.ConnectionID, &lead.ExternalID, &lead.Name, &lead.Email, &lead.Phone,
		&lead.Source, &lead.Status, &ls.listingID, &lead.PipelineStage, &lead.ReachedViewing,
		&lead.ReachedFinancing, &lead.ReachedNotary, &lead.ReachedPurchase, &lead.QualityScore,
		&lead.Temperature, &lead.Summary, &ls.lastAnalyzedAt, &ls.lastMessageAt, &lead.Tags,
		&lead.RawPayload, &lead.Archived, &lead.CreatedAt, &lead.UpdatedAt,
	}
}

func (ls *leadScan) finish() {
	if ls.listingID.Valid {
		if id, err := uuid.Parse(ls.listingID.String); err == nil {
			ls.lead.ListingID = &id
		}
	}
	if ls.lastAnalyzedAt.Valid {
		t := ls.lastAnalyzedAt.Time
		ls.lead.LastAnalyzedAt = &t
	}
	if ls.lastMessageAt.Valid {
		t := ls.lastMessageAt.Time
		ls.lead.LastMessageAt = &t
	}
}

func scanLead(row rowScanner) (*models.Lead, error) {
	lead := &models.Lead{}
	ls := newLeadScan(lead)
	if err := row.Scan(ls.dest()...); err != nil {
		return nil, err
	}
	ls.finish()
	return lead, nil
}

func prefixColumns(prefix, columns string) string {
	parts := strings.Split(columns, ", ")
	for i, p := range parts {
		parts[i] = prefix + "." + p
	}
	return strings.Join(parts, ", ")
}
