package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// ---------------------------------------------------------------------------
// Users and sessions

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, display_name, email, password_hash, role, is_email_verified, created_at, updated_at
		FROM users WHERE LOWER(email)=LOWER($1)
	`, email).Scan(&user.ID, &user.DisplayName, &user.Email, &user.PasswordHash, &user.Role, &user.IsEmailVerified, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, userID string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, display_name, email, password_hash, role, is_email_verified, created_at, updated_at
		FROM users WHERE id=$1
	`, userID).Scan(&user.ID, &user.DisplayName, &user.Email, &user.PasswordHash, &user.Role, &user.IsEmailVerified, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) CreateUser(ctx context.Context, user User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, display_name, email, password_hash, role, is_email_verified)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, user.ID, user.DisplayName, user.Email, user.PasswordHash, user.Role, user.IsEmailVerified)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateUserPassword(ctx context.Context, userID, passwordHash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE users SET password_hash=$2, updated_at=NOW() WHERE id=$1`, userID, passwordHash)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreatePasswordReset(ctx context.Context, userID, token string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO password_resets (token, user_id, expires_at) VALUES ($1, $2, $3)
	`, token, userID, expiresAt)
	if err != nil {
		return fmt.Errorf("create password reset: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetPasswordReset(ctx context.Context, token string) (string, error) {
	var userID string
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id FROM password_resets
		WHERE token=$1 AND used_at IS NULL AND expires_at > NOW()
	`, token).Scan(&userID)
	if err != nil {
		return "", err
	}
	return userID, nil
}

func (s *PostgresStore) MarkPasswordResetUsed(ctx context.Context, token string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE password_resets SET used_at=NOW() WHERE token=$1`, token)
	if err != nil {
		return fmt.Errorf("mark reset used: %w", err)
	}
	return nil
}

func (s *PostgresStore) SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refresh_sessions (token_hash, user_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token_hash) DO UPDATE SET user_id=EXCLUDED.user_id, expires_at=EXCLUDED.expires_at, revoked_at=NULL
	`, tokenHash, userID, expiresAt)
	if err != nil {
		return fmt.Errorf("save refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) LookupRefreshSession(ctx context.Context, tokenHash string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT u.id, u.display_name, u.email, u.role
		FROM refresh_sessions rs
		JOIN users u ON u.id = rs.user_id
		WHERE rs.token_hash = $1
			AND rs.revoked_at IS NULL
			AND rs.expires_at > NOW()
	`, tokenHash).Scan(&user.ID, &user.DisplayName, &user.Email, &user.Role)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE refresh_sessions SET revoked_at=NOW() WHERE token_hash=$1`, tokenHash)
	if err != nil {
		return fmt.Errorf("revoke refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) RevokeAccessToken(ctx context.Context, jti string, exp time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO revoked_access_tokens (jti, expires_at)
		VALUES ($1, $2)
		ON CONFLICT (jti) DO NOTHING
	`, jti, exp)
	if err != nil {
		return fmt.Errorf("revoke access token: %w", err)
	}
	return nil
}

func (s *PostgresStore) IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error) {
	var revoked bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM revoked_access_tokens WHERE jti=$1)`, jti).Scan(&revoked)
	if err != nil {
		return false, fmt.Errorf("check revoked token: %w", err)
	}
	return revoked, nil
}

// ---------------------------------------------------------------------------
// Projects

// AllProjectIDs lists every project, used to seed the search index at
// startup.
func (s *PostgresStore) AllProjectIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM projects ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list project ids: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan project id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate project ids: %w", err)
	}
	return ids, nil
}

func (s *PostgresStore) ListProjects(ctx context.Context, userID string) ([]Project, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.id, p.name, p.client_name, p.created_at, p.updated_at
		FROM projects p
		JOIN project_members pm ON pm.project_id = p.id
		WHERE pm.user_id = $1
		ORDER BY p.updated_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	items := make([]Project, 0)
	for rows.Next() {
		var item Project
		if err := rows.Scan(&item.ID, &item.Name, &item.ClientName, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate projects: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetProject(ctx context.Context, projectID string) (Project, error) {
	var item Project
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, client_name, created_at, updated_at FROM projects WHERE id=$1
	`, projectID).Scan(&item.ID, &item.Name, &item.ClientName, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return Project{}, err
	}
	return item, nil
}

func (s *PostgresStore) HasProjectAccess(ctx context.Context, projectID, userID string) (bool, error) {
	var ok bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM project_members WHERE project_id=$1 AND user_id=$2)
	`, projectID, userID).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("check project access: %w", err)
	}
	return ok, nil
}

// ---------------------------------------------------------------------------
// Register reads. Child rows are LEFT JOINed to their parent chain so the
// normalizer can drop rows whose parent was deleted.

func (s *PostgresStore) ListProcesses(ctx context.Context, projectID string) ([]Process, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, project_id, code, name, macro_process, owner, stage,
			raci_validacao, raci_validado_por, raci_validado_em,
			descritivo_validacao, descritivo_validado_por, descritivo_validado_em,
			created_at, updated_at
		FROM processes
		WHERE project_id=$1
		ORDER BY macro_process, name
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list processes: %w", err)
	}
	defer rows.Close()

	items := make([]Process, 0)
	for rows.Next() {
		var item Process
		if err := rows.Scan(&item.ID, &item.ProjectID, &item.Code, &item.Name, &item.MacroProcess, &item.Owner, &item.Stage,
			&item.RACIValidation, &item.RACIValidatedBy, &item.RACIValidatedAt,
			&item.DescritivoValidation, &item.DescritivoValidatedBy, &item.DescritivoValidatedAt,
			&item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan process: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate processes: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) ListRisks(ctx context.Context, projectID string) ([]Risk, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.project_id, r.code, r.name, r.owner, r.stage,
			p.id, p.name, p.macro_process,
			r.created_at, r.updated_at
		FROM risks r
		LEFT JOIN processes p ON p.id = r.process_id
		WHERE r.project_id=$1
		ORDER BY r.code, r.name
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list risks: %w", err)
	}
	defer rows.Close()

	items := make([]Risk, 0)
	for rows.Next() {
		var item Risk
		if err := rows.Scan(&item.ID, &item.ProjectID, &item.Code, &item.Name, &item.Owner, &item.Stage,
			&item.ProcessID, &item.ProcessName, &item.MacroProcess,
			&item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan risk: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate risks: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) ListControls(ctx context.Context, projectID string) ([]Control, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.project_id, c.code, c.name, c.owner, c.stage,
			r.id, r.name, p.id, p.name, p.macro_process,
			c.created_at, c.updated_at
		FROM controls c
		LEFT JOIN risks r ON r.id = c.risk_id
		LEFT JOIN processes p ON p.id = r.process_id
		WHERE c.project_id=$1
		ORDER BY c.code, c.name
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list controls: %w", err)
	}
	defer rows.Close()

	items := make([]Control, 0)
	for rows.Next() {
		var item Control
		if err := rows.Scan(&item.ID, &item.ProjectID, &item.Code, &item.Name, &item.Owner, &item.Stage,
			&item.RiskID, &item.RiskName, &item.ProcessID, &item.ProcessName, &item.MacroProcess,
			&item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan control: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate controls: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) ListTests(ctx context.Context, projectID string) ([]TestItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.id, t.project_id, t.code, t.name, t.owner, t.stage, t.evidence_key,
			c.id, c.name, r.id, r.name, p.id, p.name, p.macro_process,
			t.created_at, t.updated_at
		FROM tests t
		LEFT JOIN controls c ON c.id = t.control_id
		LEFT JOIN risks r ON r.id = c.risk_id
		LEFT JOIN processes p ON p.id = r.process_id
		WHERE t.project_id=$1
		ORDER BY t.code, t.name
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list tests: %w", err)
	}
	defer rows.Close()

	items := make([]TestItem, 0)
	for rows.Next() {
		var item TestItem
		if err := rows.Scan(&item.ID, &item.ProjectID, &item.Code, &item.Name, &item.Owner, &item.Stage, &item.EvidenceKey,
			&item.ControlID, &item.ControlName, &item.RiskID, &item.RiskName,
			&item.ProcessID, &item.ProcessName, &item.MacroProcess,
			&item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan test: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tests: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) ListDataItems(ctx context.Context, projectID string) ([]DataItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT d.id, d.project_id, d.code, d.name, d.owner, d.stage,
			p.id, p.name, p.macro_process,
			d.created_at, d.updated_at
		FROM data_items d
		LEFT JOIN processes p ON p.id = d.process_id
		WHERE d.project_id=$1
		ORDER BY d.code, d.name
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list data items: %w", err)
	}
	defer rows.Close()

	items := make([]DataItem, 0)
	for rows.Next() {
		var item DataItem
		if err := rows.Scan(&item.ID, &item.ProjectID, &item.Code, &item.Name, &item.Owner, &item.Stage,
			&item.ProcessID, &item.ProcessName, &item.MacroProcess,
			&item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan data item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate data items: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) SummaryCounts(ctx context.Context, projectID string) (processes, risks, controls int, err error) {
	err = s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM processes WHERE project_id=$1),
			(SELECT COUNT(*) FROM risks WHERE project_id=$1),
			(SELECT COUNT(*) FROM controls WHERE project_id=$1)
	`, projectID).Scan(&processes, &risks, &controls)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("summary counts: %w", err)
	}
	return processes, risks, controls, nil
}

// ---------------------------------------------------------------------------
// Stage writes. Each write targets exactly one record by primary key and
// runs inside a transaction so the actor name is visible to the log
// triggers via a transaction-local setting.

func (s *PostgresStore) updateStage(ctx context.Context, table, id string, stage int, actor string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin stage update: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `SELECT set_config('grc.actor_name', $1, true)`, actor); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("set actor: %w", err)
	}
	result, err := tx.ExecContext(ctx,
		fmt.Sprintf(`UPDATE %s SET stage=$2, updated_at=NOW() WHERE id=$1`, table), id, stage)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("update %s stage: %w", table, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("update %s stage rows: %w", table, err)
	}
	if affected == 0 {
		_ = tx.Rollback()
		return sql.ErrNoRows
	}
	return tx.Commit()
}

func (s *PostgresStore) UpdateProcessStage(ctx context.Context, id string, stage int, actor string) error {
	return s.updateStage(ctx, "processes", id, stage, actor)
}

func (s *PostgresStore) UpdateRiskStage(ctx context.Context, id string, stage int, actor string) error {
	return s.updateStage(ctx, "risks", id, stage, actor)
}

func (s *PostgresStore) UpdateControlStage(ctx context.Context, id string, stage int, actor string) error {
	return s.updateStage(ctx, "controls", id, stage, actor)
}

func (s *PostgresStore) UpdateTestStage(ctx context.Context, id string, stage int, actor string) error {
	return s.updateStage(ctx, "tests", id, stage, actor)
}

func (s *PostgresStore) UpdateDataItemStage(ctx context.Context, id string, stage int, actor string) error {
	return s.updateStage(ctx, "data_items", id, stage, actor)
}

// UpdateProcessValidation writes the tri-state value of one embedded
// deliverable ("raci" or "descritivo") onto the process record. The
// validado_por/validado_em pair is set only for aprovado and cleared
// otherwise; actor feeds the log trigger either way.
func (s *PostgresStore) UpdateProcessValidation(ctx context.Context, processID, field, value string, validatedBy *string, validatedAt *time.Time, actor string) error {
	var query string
	switch field {
	case "raci":
		query = `UPDATE processes SET raci_validacao=$2, raci_validado_por=$3, raci_validado_em=$4, updated_at=NOW() WHERE id=$1`
	case "descritivo":
		query = `UPDATE processes SET descritivo_validacao=$2, descritivo_validado_por=$3, descritivo_validado_em=$4, updated_at=NOW() WHERE id=$1`
	default:
		return fmt.Errorf("unknown validation field %q", field)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin validation update: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `SELECT set_config('grc.actor_name', $1, true)`, actor); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("set actor: %w", err)
	}
	result, err := tx.ExecContext(ctx, query, processID, value, validatedBy, validatedAt)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("update process validation: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("update process validation rows: %w", err)
	}
	if affected == 0 {
		_ = tx.Rollback()
		return sql.ErrNoRows
	}
	return tx.Commit()
}

func (s *PostgresStore) SetTestEvidence(ctx context.Context, testID, objectKey string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE tests SET evidence_key=$2, updated_at=NOW() WHERE id=$1`, testID, objectKey)
	if err != nil {
		return fmt.Errorf("set test evidence: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetTest(ctx context.Context, testID string) (TestItem, error) {
	var item TestItem
	err := s.db.QueryRowContext(ctx, `
		SELECT id, project_id, code, name, owner, stage, evidence_key, created_at, updated_at
		FROM tests WHERE id=$1
	`, testID).Scan(&item.ID, &item.ProjectID, &item.Code, &item.Name, &item.Owner, &item.Stage, &item.EvidenceKey, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return TestItem{}, err
	}
	return item, nil
}

// ---------------------------------------------------------------------------
// Status log

// ProcessStatusLogs reads the per-process change log through the
// get_process_status_logs procedure, the sole audit read path. The
// procedure orders newest first.
func (s *PostgresStore) ProcessStatusLogs(ctx context.Context, processID string) ([]StatusLogEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, process_id, deliverable_type, previous_stage, new_stage, author_name, notes, created_at
		FROM get_process_status_logs($1)
	`, processID)
	if err != nil {
		return nil, fmt.Errorf("read status logs: %w", err)
	}
	defer rows.Close()

	items := make([]StatusLogEntry, 0)
	for rows.Next() {
		var item StatusLogEntry
		if err := rows.Scan(&item.ID, &item.ProcessID, &item.DeliverableType, &item.PreviousStage, &item.NewStage,
			&item.AuthorName, &item.Notes, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan status log: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate status logs: %w", err)
	}
	return items, nil
}
