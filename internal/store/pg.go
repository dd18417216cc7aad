package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/vorpalhq/vorpal/internal/models"
)

// PGStore is the Postgres-backed entity store.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (p *PGStore) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// isUniqueViolation maps Postgres unique-constraint errors to ErrConflict.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func isForeignKeyViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23503"
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func marshalJSON(v interface{}) ([]byte, error) {
	if v == nil {
		return []byte("null"), nil
	}
	return json.Marshal(v)
}

func unmarshalMap(raw []byte) (map[string]interface{}, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var out map[string]interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// --- systems ---

const systemColumns = `id, name, description, type, status, risk_tier, autonomy_level,
	owner_id, team_id, version, metadata, documentation, tags, created_at, updated_at`

func (p *PGStore) CreateSystem(ctx context.Context, sys *models.AISystem) (*models.AISystem, error) {
	created := *sys
	if created.ID == "" {
		created.ID = models.NewID()
	}
	now := time.Now().UTC()
	created.CreatedAt = now
	created.UpdatedAt = now

	metadata, err := marshalJSON(created.Metadata)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}
	documentation, err := marshalJSON(created.Documentation)
	if err != nil {
		return nil, fmt.Errorf("marshal documentation: %w", err)
	}

	q := `
		INSERT INTO ai_systems (` + systemColumns + `)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
	`
	_, err = p.db.ExecContext(ctx, q,
		created.ID, created.Name, created.Description, string(created.Type),
		string(created.Status), string(created.RiskTier), created.AutonomyLevel,
		created.OwnerID, created.TeamID, created.Version, metadata, documentation,
		pq.Array(created.Tags), created.CreatedAt, created.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, models.ErrConflict
		}
		return nil, fmt.Errorf("insert system: %w", err)
	}
	return &created, nil
}

func (p *PGStore) GetSystem(ctx context.Context, id string) (*models.AISystem, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT `+systemColumns+` FROM ai_systems WHERE id = $1`, id)
	sys, err := scanSystem(row)
	if err == sql.ErrNoRows {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query system: %w", err)
	}
	return sys, nil
}

func (p *PGStore) ListSystems(ctx context.Context, f SystemFilter) ([]models.AISystem, int, error) {
	var clauses []string
	var args []interface{}
	add := func(clause string, arg interface{}) {
		args = append(args, arg)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}
	if f.Status != "" {
		add("status = $%d", string(f.Status))
	}
	if f.RiskTier != "" {
		add("risk_tier = $%d", string(f.RiskTier))
	}
	if f.Type != "" {
		add("type = $%d", string(f.Type))
	}
	if f.OwnerID != "" {
		add("owner_id = $%d", f.OwnerID)
	}
	if f.Tag != "" {
		add("$%d = ANY(tags)", f.Tag)
	}
	where := ""
	if len(clauses) > 0 {
		where = " WHERE " + strings.Join(clauses, " AND ")
	}

	var total int
	if err := p.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM ai_systems`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count systems: %w", err)
	}

	q := `SELECT ` + systemColumns + ` FROM ai_systems` + where + ` ORDER BY created_at ASC, id ASC`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		q += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if f.Offset > 0 {
		args = append(args, f.Offset)
		q += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list systems: %w", err)
	}
	defer rows.Close()

	systems := make([]models.AISystem, 0)
	for rows.Next() {
		sys, err := scanSystem(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan system: %w", err)
		}
		systems = append(systems, *sys)
	}
	return systems, total, rows.Err()
}

func (p *PGStore) UpdateSystem(ctx context.Context, id string, upd SystemUpdate) (*models.AISystem, error) {
	var sets []string
	var args []interface{}
	set := func(column string, value interface{}) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if upd.Name != nil {
		set("name", *upd.Name)
	}
	if upd.Description != nil {
		set("description", *upd.Description)
	}
	if upd.Status != nil {
		set("status", string(*upd.Status))
	}
	if upd.RiskTier != nil {
		set("risk_tier", string(*upd.RiskTier))
	}
	if upd.AutonomyLevel != nil {
		set("autonomy_level", *upd.AutonomyLevel)
	}
	if upd.OwnerID != nil {
		set("owner_id", *upd.OwnerID)
	}
	if upd.TeamID != nil {
		set("team_id", *upd.TeamID)
	}
	if upd.Version != nil {
		set("version", *upd.Version)
	}
	if upd.Metadata != nil {
		raw, err := marshalJSON(upd.Metadata)
		if err != nil {
			return nil, fmt.Errorf("marshal metadata: %w", err)
		}
		set("metadata", raw)
	}
	if upd.Documentation != nil {
		raw, err := marshalJSON(upd.Documentation)
		if err != nil {
			return nil, fmt.Errorf("marshal documentation: %w", err)
		}
		set("documentation", raw)
	}
	if upd.Tags != nil {
		set("tags", pq.Array(upd.Tags))
	}
	set("updated_at", time.Now().UTC())

	args = append(args, id)
	q := fmt.Sprintf(`UPDATE ai_systems SET %s WHERE id = $%d RETURNING `+systemColumns,
		strings.Join(sets, ", "), len(args))
	row := p.db.QueryRowContext(ctx, q, args...)
	sys, err := scanSystem(row)
	if err == sql.ErrNoRows {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update system: %w", err)
	}
	return sys, nil
}

func (p *PGStore) DeleteSystem(ctx context.Context, id string) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM ai_systems WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete system: %w", err)
	}
	return requireAffected(res)
}

func scanSystem(row rowScanner) (*models.AISystem, error) {
	var (
		sys                     models.AISystem
		description             sql.NullString
		autonomyLevel           sql.NullInt64
		ownerID, teamID, ver    sql.NullString
		metadata, documentation []byte
		tags                    pq.StringArray
	)
	err := row.Scan(
		&sys.ID, &sys.Name, &description, &sys.Type, &sys.Status, &sys.RiskTier,
		&autonomyLevel, &ownerID, &teamID, &ver, &metadata, &documentation,
		&tags, &sys.CreatedAt, &sys.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	sys.Description = description.String
	if autonomyLevel.Valid {
		level := int(autonomyLevel.Int64)
		sys.AutonomyLevel = &level
	}
	sys.OwnerID = ownerID.String
	sys.TeamID = teamID.String
	sys.Version = ver.String
	if sys.Metadata, err = unmarshalMap(metadata); err != nil {
		return nil, fmt.Errorf("unmarshal metadata: %w", err)
	}
	if sys.Documentation, err = unmarshalMap(documentation); err != nil {
		return nil, fmt.Errorf("unmarshal documentation: %w", err)
	}
	sys.Tags = []string(tags)
	sys.CreatedAt = sys.CreatedAt.UTC()
	sys.UpdatedAt = sys.UpdatedAt.UTC()
	return &sys, nil
}

// --- controls ---

const controlColumns = `id, name, description, category, regulation, requirement_text,
	test_guidance, mandatory, applies_to_tiers, created_at, updated_at`

func (p *PGStore) CreateControl(ctx context.Context, c *models.Control) (*models.Control, error) {
	created := *c
	now := time.Now().UTC()
	created.CreatedAt = now
	created.UpdatedAt = now

	q := `
		INSERT INTO controls (` + controlColumns + `)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`
	_, err := p.db.ExecContext(ctx, q,
		created.ID, created.Name, created.Description, string(created.Category),
		created.Regulation, created.RequirementText, created.TestGuidance,
		created.Mandatory, pq.Array(tiersToStrings(created.AppliesToTiers)),
		created.CreatedAt, created.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, models.ErrConflict
		}
		return nil, fmt.Errorf("insert control: %w", err)
	}
	return &created, nil
}

func (p *PGStore) GetControl(ctx context.Context, id string) (*models.Control, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT `+controlColumns+` FROM controls WHERE id = $1`, id)
	c, err := scanControl(row)
	if err == sql.ErrNoRows {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query control: %w", err)
	}
	return c, nil
}

func (p *PGStore) ListControls(ctx context.Context, f ControlFilter) ([]models.Control, int, error) {
	var clauses []string
	var args []interface{}
	add := func(clause string, arg interface{}) {
		args = append(args, arg)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}
	if f.Category != "" {
		add("category = $%d", string(f.Category))
	}
	if f.Regulation != "" {
		add("regulation = $%d", f.Regulation)
	}
	if f.Mandatory != nil {
		add("mandatory = $%d", *f.Mandatory)
	}
	where := ""
	if len(clauses) > 0 {
		where = " WHERE " + strings.Join(clauses, " AND ")
	}

	var total int
	if err := p.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM controls`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count controls: %w", err)
	}

	q := `SELECT ` + controlColumns + ` FROM controls` + where + ` ORDER BY id ASC`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		q += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if f.Offset > 0 {
		args = append(args, f.Offset)
		q += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list controls: %w", err)
	}
	defer rows.Close()

	controls := make([]models.Control, 0)
	for rows.Next() {
		c, err := scanControl(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan control: %w", err)
		}
		controls = append(controls, *c)
	}
	return controls, total, rows.Err()
}

func (p *PGStore) UpdateControl(ctx context.Context, id string, upd ControlUpdate) (*models.Control, error) {
	var sets []string
	var args []interface{}
	set := func(column string, value interface{}) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if upd.Name != nil {
		set("name", *upd.Name)
	}
	if upd.Description != nil {
		set("description", *upd.Description)
	}
	if upd.Category != nil {
		set("category", string(*upd.Category))
	}
	if upd.Regulation != nil {
		set("regulation", *upd.Regulation)
	}
	if upd.RequirementText != nil {
		set("requirement_text", *upd.RequirementText)
	}
	if upd.TestGuidance != nil {
		set("test_guidance", *upd.TestGuidance)
	}
	if upd.Mandatory != nil {
		set("mandatory", *upd.Mandatory)
	}
	if upd.AppliesToTiers != nil {
		set("applies_to_tiers", pq.Array(tiersToStrings(upd.AppliesToTiers)))
	}
	set("updated_at", time.Now().UTC())

	args = append(args, id)
	q := fmt.Sprintf(`UPDATE controls SET %s WHERE id = $%d RETURNING `+controlColumns,
		strings.Join(sets, ", "), len(args))
	row := p.db.QueryRowContext(ctx, q, args...)
	c, err := scanControl(row)
	if err == sql.ErrNoRows {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update control: %w", err)
	}
	return c, nil
}

func (p *PGStore) DeleteControl(ctx context.Context, id string) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM controls WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete control: %w", err)
	}
	return requireAffected(res)
}

func scanControl(row rowScanner) (*models.Control, error) {
	var (
		c                         models.Control
		description, regulation   sql.NullString
		requirementText, guidance sql.NullString
		tiers                     pq.StringArray
	)
	err := row.Scan(
		&c.ID, &c.Name, &description, &c.Category, &regulation,
		&requirementText, &guidance, &c.Mandatory, &tiers,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.Description = description.String
	c.Regulation = regulation.String
	c.RequirementText = requirementText.String
	c.TestGuidance = guidance.String
	c.AppliesToTiers = stringsToTiers(tiers)
	c.CreatedAt = c.CreatedAt.UTC()
	c.UpdatedAt = c.UpdatedAt.UTC()
	return &c, nil
}

func tiersToStrings(tiers []models.RiskTier) []string {
	out := make([]string, len(tiers))
	for i, t := range tiers {
		out[i] = string(t)
	}
	return out
}

func stringsToTiers(strs []string) []models.RiskTier {
	if len(strs) == 0 {
		return nil
	}
	out := make([]models.RiskTier, len(strs))
	for i, s := range strs {
		out[i] = models.RiskTier(s)
	}
	return out
}

// --- system controls ---

const systemControlColumns = `system_id, control_id, status, evidence_required,
	notes, last_updated_by, created_at, updated_at`

func (p *PGStore) AssignControl(ctx context.Context, sc *models.SystemControl) (*models.SystemControl, error) {
	created := *sc
	if created.Status == "" {
		created.Status = models.ControlStatusPending
	}
	now := time.Now().UTC()
	created.CreatedAt = now
	created.UpdatedAt = now

	q := `
		INSERT INTO system_controls (` + systemControlColumns + `)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`
	_, err := p.db.ExecContext(ctx, q,
		created.SystemID, created.ControlID, string(created.Status),
		created.EvidenceRequired, created.Notes, created.LastUpdatedBy,
		created.CreatedAt, created.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, models.ErrConflict
		}
		if isForeignKeyViolation(err) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("assign control: %w", err)
	}
	return &created, nil
}

func (p *PGStore) ListSystemControls(ctx context.Context, systemID string) ([]models.SystemControl, error) {
	if _, err := p.GetSystem(ctx, systemID); err != nil {
		return nil, err
	}
	rows, err := p.db.QueryContext(ctx,
		`SELECT `+systemControlColumns+` FROM system_controls WHERE system_id = $1 ORDER BY control_id ASC`,
		systemID)
	if err != nil {
		return nil, fmt.Errorf("list system controls: %w", err)
	}
	defer rows.Close()

	out := make([]models.SystemControl, 0)
	for rows.Next() {
		sc, err := scanSystemControl(rows)
		if err != nil {
			return nil, fmt.Errorf("scan system control: %w", err)
		}
		out = append(out, *sc)
	}
	return out, rows.Err()
}

func (p *PGStore) UpdateSystemControl(ctx context.Context, systemID, controlID string, upd SystemControlUpdate) (*models.SystemControl, error) {
	var sets []string
	var args []interface{}
	set := func(column string, value interface{}) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if upd.Status != nil {
		set("status", string(*upd.Status))
	}
	if upd.EvidenceRequired != nil {
		set("evidence_required", *upd.EvidenceRequired)
	}
	if upd.Notes != nil {
		set("notes", *upd.Notes)
	}
	if upd.LastUpdatedBy != nil {
		set("last_updated_by", *upd.LastUpdatedBy)
	}
	set("updated_at", time.Now().UTC())

	args = append(args, systemID, controlID)
	q := fmt.Sprintf(
		`UPDATE system_controls SET %s WHERE system_id = $%d AND control_id = $%d RETURNING `+systemControlColumns,
		strings.Join(sets, ", "), len(args)-1, len(args))
	row := p.db.QueryRowContext(ctx, q, args...)
	sc, err := scanSystemControl(row)
	if err == sql.ErrNoRows {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update system control: %w", err)
	}
	return sc, nil
}

func (p *PGStore) UnassignControl(ctx context.Context, systemID, controlID string) error {
	res, err := p.db.ExecContext(ctx,
		`DELETE FROM system_controls WHERE system_id = $1 AND control_id = $2`,
		systemID, controlID)
	if err != nil {
		return fmt.Errorf("unassign control: %w", err)
	}
	return requireAffected(res)
}

func scanSystemControl(row rowScanner) (*models.SystemControl, error) {
	var (
		sc                   models.SystemControl
		notes, lastUpdatedBy sql.NullString
	)
	err := row.Scan(
		&sc.SystemID, &sc.ControlID, &sc.Status, &sc.EvidenceRequired,
		&notes, &lastUpdatedBy, &sc.CreatedAt, &sc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	sc.Notes = notes.String
	sc.LastUpdatedBy = lastUpdatedBy.String
	sc.CreatedAt = sc.CreatedAt.UTC()
	sc.UpdatedAt = sc.UpdatedAt.UTC()
	return &sc, nil
}

// --- policies ---

const policyColumns = `id, name, description, version, enabled, match_criteria,
	rules, default_severity, regulation, pack_name, created_by, metadata,
	created_at, updated_at`

func (p *PGStore) CreatePolicy(ctx context.Context, pol *models.Policy) (*models.Policy, error) {
	created := *pol
	if created.ID == "" {
		created.ID = models.NewID()
	}
	now := time.Now().UTC()
	created.CreatedAt = now
	created.UpdatedAt = now

	criteria, rules, metadata, err := policyJSON(&created)
	if err != nil {
		return nil, err
	}

	q := `
		INSERT INTO policies (` + policyColumns + `)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
	`
	_, err = p.db.ExecContext(ctx, q,
		created.ID, created.Name, created.Description, created.Version,
		created.Enabled, criteria, rules, string(created.DefaultSeverity),
		created.Regulation, created.PackName, created.CreatedBy, metadata,
		created.CreatedAt, created.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, models.ErrConflict
		}
		return nil, fmt.Errorf("insert policy: %w", err)
	}
	return &created, nil
}

func (p *PGStore) GetPolicy(ctx context.Context, id string) (*models.Policy, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT `+policyColumns+` FROM policies WHERE id = $1`, id)
	pol, err := scanPolicy(row)
	if err == sql.ErrNoRows {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query policy: %w", err)
	}
	return pol, nil
}

func (p *PGStore) GetPolicyByName(ctx context.Context, name string) (*models.Policy, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT `+policyColumns+` FROM policies WHERE name = $1`, name)
	pol, err := scanPolicy(row)
	if err == sql.ErrNoRows {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query policy by name: %w", err)
	}
	return pol, nil
}

func (p *PGStore) ListPolicies(ctx context.Context, f PolicyFilter) ([]models.Policy, int, error) {
	var clauses []string
	var args []interface{}
	add := func(clause string, arg interface{}) {
		args = append(args, arg)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}
	if f.Enabled != nil {
		add("enabled = $%d", *f.Enabled)
	}
	if f.PackName != "" {
		add("pack_name = $%d", f.PackName)
	}
	where := ""
	if len(clauses) > 0 {
		where = " WHERE " + strings.Join(clauses, " AND ")
	}

	var total int
	if err := p.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM policies`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count policies: %w", err)
	}

	q := `SELECT ` + policyColumns + ` FROM policies` + where + ` ORDER BY created_at ASC, id ASC`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		q += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if f.Offset > 0 {
		args = append(args, f.Offset)
		q += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list policies: %w", err)
	}
	defer rows.Close()

	policies := make([]models.Policy, 0)
	for rows.Next() {
		pol, err := scanPolicy(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan policy: %w", err)
		}
		policies = append(policies, *pol)
	}
	return policies, total, rows.Err()
}

func (p *PGStore) ListEnabledPolicies(ctx context.Context) ([]models.Policy, error) {
	enabled := true
	policies, _, err := p.ListPolicies(ctx, PolicyFilter{Enabled: &enabled})
	return policies, err
}

func (p *PGStore) UpdatePolicy(ctx context.Context, id string, upd PolicyUpdate) (*models.Policy, error) {
	var sets []string
	var args []interface{}
	set := func(column string, value interface{}) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if upd.Description != nil {
		set("description", *upd.Description)
	}
	if upd.Version != nil {
		set("version", *upd.Version)
	}
	if upd.Enabled != nil {
		set("enabled", *upd.Enabled)
	}
	if upd.MatchCriteria != nil {
		raw, err := marshalJSON(upd.MatchCriteria)
		if err != nil {
			return nil, fmt.Errorf("marshal match criteria: %w", err)
		}
		set("match_criteria", raw)
	}
	if upd.Rules != nil {
		raw, err := marshalJSON(upd.Rules)
		if err != nil {
			return nil, fmt.Errorf("marshal rules: %w", err)
		}
		set("rules", raw)
	}
	if upd.DefaultSeverity != nil {
		set("default_severity", string(*upd.DefaultSeverity))
	}
	if upd.Regulation != nil {
		set("regulation", *upd.Regulation)
	}
	if upd.Metadata != nil {
		raw, err := marshalJSON(upd.Metadata)
		if err != nil {
			return nil, fmt.Errorf("marshal metadata: %w", err)
		}
		set("metadata", raw)
	}
	set("updated_at", time.Now().UTC())

	args = append(args, id)
	q := fmt.Sprintf(`UPDATE policies SET %s WHERE id = $%d RETURNING `+policyColumns,
		strings.Join(sets, ", "), len(args))
	row := p.db.QueryRowContext(ctx, q, args...)
	pol, err := scanPolicy(row)
	if err == sql.ErrNoRows {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update policy: %w", err)
	}
	return pol, nil
}

func (p *PGStore) UpsertPolicyByName(ctx context.Context, pol *models.Policy) (*models.Policy, error) {
	replaced := *pol
	if replaced.ID == "" {
		replaced.ID = models.NewID()
	}
	now := time.Now().UTC()
	replaced.CreatedAt = now
	replaced.UpdatedAt = now

	criteria, rules, metadata, err := policyJSON(&replaced)
	if err != nil {
		return nil, err
	}

	q := `
		INSERT INTO policies (` + policyColumns + `)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		ON CONFLICT (name) DO UPDATE SET
			description = EXCLUDED.description,
			version = EXCLUDED.version,
			enabled = EXCLUDED.enabled,
			match_criteria = EXCLUDED.match_criteria,
			rules = EXCLUDED.rules,
			default_severity = EXCLUDED.default_severity,
			regulation = EXCLUDED.regulation,
			pack_name = EXCLUDED.pack_name,
			created_by = EXCLUDED.created_by,
			metadata = EXCLUDED.metadata,
			updated_at = EXCLUDED.updated_at
		RETURNING ` + policyColumns

	row := p.db.QueryRowContext(ctx, q,
		replaced.ID, replaced.Name, replaced.Description, replaced.Version,
		replaced.Enabled, criteria, rules, string(replaced.DefaultSeverity),
		replaced.Regulation, replaced.PackName, replaced.CreatedBy, metadata,
		replaced.CreatedAt, replaced.UpdatedAt,
	)
	out, err := scanPolicy(row)
	if err != nil {
		return nil, fmt.Errorf("upsert policy: %w", err)
	}
	return out, nil
}

func (p *PGStore) DeletePolicy(ctx context.Context, id string) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM policies WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete policy: %w", err)
	}
	return requireAffected(res)
}

func policyJSON(pol *models.Policy) (criteria, rules, metadata []byte, err error) {
	if criteria, err = marshalJSON(pol.MatchCriteria); err != nil {
		return nil, nil, nil, fmt.Errorf("marshal match criteria: %w", err)
	}
	if pol.Rules == nil {
		rules = []byte("[]")
	} else if rules, err = marshalJSON(pol.Rules); err != nil {
		return nil, nil, nil, fmt.Errorf("marshal rules: %w", err)
	}
	if metadata, err = marshalJSON(pol.Metadata); err != nil {
		return nil, nil, nil, fmt.Errorf("marshal metadata: %w", err)
	}
	return criteria, rules, metadata, nil
}

func scanPolicy(row rowScanner) (*models.Policy, error) {
	var (
		pol                     models.Policy
		description, regulation sql.NullString
		packName, createdBy     sql.NullString
		criteria, rules, meta   []byte
	)
	err := row.Scan(
		&pol.ID, &pol.Name, &description, &pol.Version, &pol.Enabled,
		&criteria, &rules, &pol.DefaultSeverity, &regulation, &packName,
		&createdBy, &meta, &pol.CreatedAt, &pol.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	pol.Description = description.String
	pol.Regulation = regulation.String
	pol.PackName = packName.String
	pol.CreatedBy = createdBy.String
	if len(criteria) > 0 && string(criteria) != "null" {
		if err := json.Unmarshal(criteria, &pol.MatchCriteria); err != nil {
			return nil, fmt.Errorf("unmarshal match criteria: %w", err)
		}
	}
	if len(rules) > 0 && string(rules) != "null" {
		if err := json.Unmarshal(rules, &pol.Rules); err != nil {
			return nil, fmt.Errorf("unmarshal rules: %w", err)
		}
	}
	if pol.Metadata, err = unmarshalMap(meta); err != nil {
		return nil, fmt.Errorf("unmarshal metadata: %w", err)
	}
	pol.CreatedAt = pol.CreatedAt.UTC()
	pol.UpdatedAt = pol.UpdatedAt.UTC()
	return &pol, nil
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return models.ErrNotFound
	}
	return nil
}
