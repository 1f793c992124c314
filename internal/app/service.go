package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/MaykGomes92/teste-ar-sub000/internal/auth"
	"github.com/MaykGomes92/teste-ar-sub000/internal/authpw"
	"github.com/MaykGomes92/teste-ar-sub000/internal/config"
	"github.com/MaykGomes92/teste-ar-sub000/internal/deliverable"
	"github.com/MaykGomes92/teste-ar-sub000/internal/email"
	"github.com/MaykGomes92/teste-ar-sub000/internal/evidence"
	"github.com/MaykGomes92/teste-ar-sub000/internal/export"
	"github.com/MaykGomes92/teste-ar-sub000/internal/rbac"
	"github.com/MaykGomes92/teste-ar-sub000/internal/search"
	"github.com/MaykGomes92/teste-ar-sub000/internal/store"
	"github.com/MaykGomes92/teste-ar-sub000/internal/util"
)

type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	UserName     string
	Role         string
	JTI          string
	ExpiresAt    time.Time
}

// dataStore is everything the service needs from Postgres. The width
// buys cheap fakes in tests.
type dataStore interface {
	Ping(ctx context.Context) error

	GetUserByEmail(ctx context.Context, email string) (store.User, error)
	GetUserByID(ctx context.Context, id string) (store.User, error)
	CreateUser(ctx context.Context, user store.User) error
	UpdateUserPassword(ctx context.Context, userID, passwordHash string) error
	CreatePasswordReset(ctx context.Context, userID, token string, expiresAt time.Time) error
	GetPasswordReset(ctx context.Context, token string) (string, error)
	MarkPasswordResetUsed(ctx context.Context, token string) error

	SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
	RevokeAccessToken(ctx context.Context, jti string, exp time.Time) error
	IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error)

	ListProjects(ctx context.Context, userID string) ([]store.Project, error)
	GetProject(ctx context.Context, projectID string) (store.Project, error)
	HasProjectAccess(ctx context.Context, projectID, userID string) (bool, error)

	ListProcesses(ctx context.Context, projectID string) ([]store.Process, error)
	ListRisks(ctx context.Context, projectID string) ([]store.Risk, error)
	ListControls(ctx context.Context, projectID string) ([]store.Control, error)
	ListTests(ctx context.Context, projectID string) ([]store.TestItem, error)
	ListDataItems(ctx context.Context, projectID string) ([]store.DataItem, error)
	SummaryCounts(ctx context.Context, projectID string) (int, int, int, error)

	UpdateProcessStage(ctx context.Context, id string, stage int, actor string) error
	UpdateRiskStage(ctx context.Context, id string, stage int, actor string) error
	UpdateControlStage(ctx context.Context, id string, stage int, actor string) error
	UpdateTestStage(ctx context.Context, id string, stage int, actor string) error
	UpdateDataItemStage(ctx context.Context, id string, stage int, actor string) error
	UpdateProcessValidation(ctx context.Context, processID, field, value string, validatedBy *string, validatedAt *time.Time, actor string) error
	ProcessStatusLogs(ctx context.Context, processID string) ([]store.StatusLogEntry, error)

	GetTest(ctx context.Context, testID string) (store.TestItem, error)
	SetTestEvidence(ctx context.Context, testID, objectKey string) error
}

// sessionStore holds refresh tokens. Redis in production, Postgres as
// fallback when Redis is not configured.
type sessionStore interface {
	SaveSession(ctx context.Context, tokenHash string, user store.User, expiresAt time.Time) error
	LookupSession(ctx context.Context, tokenHash string) (store.User, error)
	RevokeSession(ctx context.Context, tokenHash string) error
}

// pgSessions adapts the Postgres refresh_sessions table to sessionStore.
type pgSessions struct {
	store dataStore
}

func (p pgSessions) SaveSession(ctx context.Context, tokenHash string, user store.User, expiresAt time.Time) error {
	return p.store.SaveRefreshSession(ctx, tokenHash, user.ID, expiresAt)
}

func (p pgSessions) LookupSession(ctx context.Context, tokenHash string) (store.User, error) {
	return p.store.LookupRefreshSession(ctx, tokenHash)
}

func (p pgSessions) RevokeSession(ctx context.Context, tokenHash string) error {
	return p.store.RevokeRefreshSession(ctx, tokenHash)
}

type Service struct {
	cfg        config.Config
	store      dataStore
	sessions   sessionStore
	authpw     *authpw.Service
	fetcher    *deliverable.Fetcher
	controller stageController
	search     *search.Service
	evidence   *evidence.Store
	mailer     *email.Service
}

// stageController is the workflow surface the service depends on;
// narrowed to an interface so tests can observe dispatches.
type stageController interface {
	UpdateStage(ctx context.Context, deliverables []deliverable.Deliverable, deliverableID string, newStage int, actor string) (bool, error)
	Logs(ctx context.Context, processID string) []store.StatusLogEntry
}

type Option func(*Service)

func WithSessionStore(sessions sessionStore) Option {
	return func(s *Service) { s.sessions = sessions }
}

func WithSearch(svc *search.Service) Option {
	return func(s *Service) { s.search = svc }
}

func WithEvidence(store *evidence.Store) Option {
	return func(s *Service) { s.evidence = store }
}

func WithMailer(mailer *email.Service) Option {
	return func(s *Service) { s.mailer = mailer }
}

func New(cfg config.Config, dataStore dataStore, fetcher *deliverable.Fetcher, controller stageController, opts ...Option) *Service {
	s := &Service{
		cfg:        cfg,
		store:      dataStore,
		sessions:   pgSessions{store: dataStore},
		authpw:     authpw.NewService(dataStore),
		fetcher:    fetcher,
		controller: controller,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) Can(role string, action rbac.Action) bool {
	return rbac.Can(rbac.Normalize(role), action)
}

// Bootstrap seeds the search index from the register on startup. Errors
// are logged, not fatal; the fallback searcher covers the gap.
func (s *Service) Bootstrap(ctx context.Context, projectIDs []string) {
	if s.search == nil {
		return
	}
	for _, projectID := range projectIDs {
		processes, err := s.store.ListProcesses(ctx, projectID)
		if err != nil {
			log.Printf("bootstrap: list processes for %s: %v", projectID, err)
			continue
		}
		risks, err := s.store.ListRisks(ctx, projectID)
		if err != nil {
			log.Printf("bootstrap: list risks for %s: %v", projectID, err)
			continue
		}
		controls, err := s.store.ListControls(ctx, projectID)
		if err != nil {
			log.Printf("bootstrap: list controls for %s: %v", projectID, err)
			continue
		}

		processRecs := make([]search.Record, 0, len(processes))
		for _, p := range processes {
			processRecs = append(processRecs, search.Record{ID: p.ID, Code: p.Code, Name: p.Name, MacroProcess: p.MacroProcess, ProjectID: p.ProjectID})
		}
		riskRecs := make([]search.Record, 0, len(risks))
		for _, r := range risks {
			riskRecs = append(riskRecs, search.Record{ID: r.ID, Code: r.Code, Name: r.Name, ProjectID: r.ProjectID})
		}
		controlRecs := make([]search.Record, 0, len(controls))
		for _, c := range controls {
			controlRecs = append(controlRecs, search.Record{ID: c.ID, Code: c.Code, Name: c.Name, ProjectID: c.ProjectID})
		}
		s.search.ReindexAll(processRecs, riskRecs, controlRecs)
	}
}

// ---------------------------------------------------------------------------
// Sessions

func (s *Service) SignUp(ctx context.Context, email, password, displayName string) (Session, error) {
	user, err := s.authpw.SignUp(ctx, authpw.SignUpRequest{Email: email, Password: password, DisplayName: displayName})
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) Login(ctx context.Context, email, password string) (Session, error) {
	user, err := s.authpw.SignIn(ctx, email, password)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	jti := util.NewID("")
	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), user.ID, user.DisplayName, user.Role, jti, s.cfg.AccessTTL)
	if err != nil {
		return Session{}, fmt.Errorf("issue access token: %w", err)
	}

	refreshToken := util.NewToken()
	expiresAt := time.Now().Add(s.cfg.RefreshTTL)
	if err := s.sessions.SaveSession(ctx, auth.HashToken(refreshToken), user, expiresAt); err != nil {
		return Session{}, fmt.Errorf("save refresh session: %w", err)
	}

	return Session{
		Token:        token,
		RefreshToken: refreshToken,
		UserID:       user.ID,
		UserName:     user.DisplayName,
		Role:         user.Role,
		JTI:          jti,
		ExpiresAt:    time.Now().Add(s.cfg.AccessTTL),
	}, nil
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	oldHash := auth.HashToken(refreshToken)
	user, err := s.sessions.LookupSession(ctx, oldHash)
	if err != nil {
		return Session{}, fmt.Errorf("lookup refresh session: %w", err)
	}
	// Rotate: the presented token is dead after one use.
	_ = s.sessions.RevokeSession(ctx, oldHash)
	return s.issueSession(ctx, user)
}

func (s *Service) Logout(ctx context.Context, session Session, refreshToken string) error {
	if refreshToken != "" {
		_ = s.sessions.RevokeSession(ctx, auth.HashToken(refreshToken))
	}
	if session.JTI != "" {
		if err := s.store.RevokeAccessToken(ctx, session.JTI, session.ExpiresAt); err != nil {
			return fmt.Errorf("revoke access token: %w", err)
		}
	}
	return nil
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	revoked, err := s.store.IsAccessTokenRevoked(ctx, claims.ID)
	if err != nil {
		return Session{}, fmt.Errorf("check revocation: %w", err)
	}
	if revoked {
		return Session{}, auth.ErrInvalidToken
	}
	var expiresAt time.Time
	if claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Time
	}
	return Session{
		UserID:    claims.Subject,
		UserName:  claims.Name,
		Role:      claims.Role,
		JTI:       claims.ID,
		ExpiresAt: expiresAt,
	}, nil
}

func (s *Service) RequestPasswordReset(ctx context.Context, emailAddr string) error {
	token, err := s.authpw.RequestPasswordReset(ctx, emailAddr)
	if err != nil {
		return err
	}
	if token == "" {
		return nil
	}
	if s.mailer != nil && s.mailer.IsConfigured() {
		if err := s.mailer.SendEmail([]string{emailAddr}, "[GRC] Password reset", "Your reset token: "+token); err != nil {
			log.Printf("reset email to %s failed: %v", emailAddr, err)
		}
	}
	return nil
}

func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	return s.authpw.ResetPassword(ctx, token, newPassword)
}

// ---------------------------------------------------------------------------
// Projects

func (s *Service) Projects(ctx context.Context, userID string) ([]store.Project, error) {
	return s.store.ListProjects(ctx, userID)
}

func (s *Service) requireProjectAccess(ctx context.Context, projectID string, session Session) error {
	if rbac.Normalize(session.Role) == rbac.RoleAdmin {
		return nil
	}
	ok, err := s.store.HasProjectAccess(ctx, projectID, session.UserID)
	if err != nil {
		return fmt.Errorf("check project access: %w", err)
	}
	if !ok {
		return errForbidden("No access to this project")
	}
	return nil
}

// ---------------------------------------------------------------------------
// Dashboard

// DashboardSummary is the header strip of the executive view.
type DashboardSummary struct {
	Processes int `json:"processes"`
	Risks     int `json:"risks"`
	Controls  int `json:"controls"`
}

// DashboardView is the full payload of the executive table.
type DashboardView struct {
	Groups              []deliverable.ProcessGroup `json:"groups"`
	MacroProcessOptions []string                   `json:"macroProcessOptions"`
	ProcessOptions      []string                   `json:"processOptions"`
	Summary             DashboardSummary           `json:"summary"`
	// Partial is true when at least one register query degraded to an
	// empty list; the UI shows one notification for the whole fetch.
	Partial bool `json:"partial"`
}

func (s *Service) Dashboard(ctx context.Context, projectID string, session Session, filters deliverable.Filters) (DashboardView, error) {
	if err := s.requireProjectAccess(ctx, projectID, session); err != nil {
		return DashboardView{}, err
	}

	inputs, partial := s.fetcher.Fetch(ctx, projectID)
	items := deliverable.Normalize(inputs, time.Now())
	groups := deliverable.Group(items)
	filters = filters.Resolve(groups)

	view := DashboardView{
		Groups:              deliverable.Apply(groups, filters),
		MacroProcessOptions: deliverable.MacroProcessOptions(groups),
		ProcessOptions:      deliverable.ProcessOptions(groups, filters.MacroProcess),
		Partial:             partial,
	}

	processes, risks, controls, err := s.store.SummaryCounts(ctx, projectID)
	if err != nil {
		// The table is still worth rendering without the header strip.
		log.Printf("dashboard: summary counts for %s: %v", projectID, err)
	} else {
		view.Summary = DashboardSummary{Processes: processes, Risks: risks, Controls: controls}
	}
	return view, nil
}

// ProcessDeliverables returns the normalized deliverables of a single
// process together with its change history, the payload of the approval
// modal.
func (s *Service) ProcessDeliverables(ctx context.Context, projectID, processID string, session Session) ([]deliverable.Deliverable, []store.StatusLogEntry, error) {
	if err := s.requireProjectAccess(ctx, projectID, session); err != nil {
		return nil, nil, err
	}

	inputs, _ := s.fetcher.Fetch(ctx, projectID)
	items := deliverable.Normalize(inputs, time.Now())

	scoped := make([]deliverable.Deliverable, 0, 8)
	for _, d := range items {
		if d.ProcessID == processID {
			scoped = append(scoped, d)
		}
	}
	logs := s.controller.Logs(ctx, processID)
	return scoped, logs, nil
}

// StageUpdateResult reports the outcome of a stage change plus the
// refreshed history.
type StageUpdateResult struct {
	Applied bool                   `json:"applied"`
	Logs    []store.StatusLogEntry `json:"logs"`
}

func (s *Service) UpdateDeliverableStage(ctx context.Context, projectID, deliverableID string, newStage int, session Session) (StageUpdateResult, error) {
	if err := s.requireProjectAccess(ctx, projectID, session); err != nil {
		return StageUpdateResult{}, err
	}

	inputs, _ := s.fetcher.Fetch(ctx, projectID)
	items := deliverable.Normalize(inputs, time.Now())

	var target *deliverable.Deliverable
	for i := range items {
		if items[i].ID == deliverableID {
			target = &items[i]
			break
		}
	}

	applied, err := s.controller.UpdateStage(ctx, items, deliverableID, newStage, session.UserName)
	if err != nil {
		return StageUpdateResult{}, err
	}
	result := StageUpdateResult{Applied: applied, Logs: []store.StatusLogEntry{}}
	if !applied || target == nil {
		return result, nil
	}

	result.Logs = s.controller.Logs(ctx, target.ProcessID)
	s.notifyStageChange(*target, newStage, session.UserName)
	return result, nil
}

// notifyStageChange emails the process owner when a deliverable reaches
// the client-approval stage. Fire-and-forget.
func (s *Service) notifyStageChange(d deliverable.Deliverable, newStage int, actor string) {
	if newStage != deliverable.StageClientApproval {
		return
	}
	if s.mailer == nil || !s.mailer.IsConfigured() || d.Owner == "" {
		return
	}
	notice := email.StageChangeNotice{
		ProcessName:     d.Process,
		DeliverableCode: d.Code,
		DeliverableType: string(d.Type),
		StageLabel:      deliverable.StageLabel(newStage),
		Actor:           actor,
	}
	go func() {
		if err := s.mailer.SendStageChange([]string{d.Owner}, notice); err != nil {
			log.Printf("stage change notice for %s failed: %v", d.ID, err)
		}
	}()
}

func (s *Service) StatusLog(ctx context.Context, processID string) []store.StatusLogEntry {
	return s.controller.Logs(ctx, processID)
}

// ---------------------------------------------------------------------------
// Export

func (s *Service) ExportDashboard(ctx context.Context, projectID, format string, session Session, filters deliverable.Filters) (*export.Result, error) {
	if err := s.requireProjectAccess(ctx, projectID, session); err != nil {
		return nil, err
	}

	project, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errNotFound("Project")
		}
		return nil, fmt.Errorf("get project: %w", err)
	}

	inputs, _ := s.fetcher.Fetch(ctx, projectID)
	groups := deliverable.Apply(deliverable.Group(deliverable.Normalize(inputs, time.Now())), filters)

	in := export.Input{
		ProjectName: project.Name,
		ClientName:  project.ClientName,
		GeneratedAt: time.Now(),
		Groups:      groups,
	}
	switch format {
	case "pdf":
		return export.PDF(in)
	default:
		return export.CSV(in)
	}
}

// ---------------------------------------------------------------------------
// Evidence

func (s *Service) UploadEvidence(ctx context.Context, testID, filename string, reader io.Reader, size int64, contentType string, session Session) (string, error) {
	if s.evidence == nil {
		return "", domainError(http.StatusServiceUnavailable, "EVIDENCE_UNAVAILABLE", "Evidence storage not configured", nil)
	}
	test, err := s.store.GetTest(ctx, testID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", errNotFound("Test")
		}
		return "", fmt.Errorf("get test: %w", err)
	}
	if err := s.requireProjectAccess(ctx, test.ProjectID, session); err != nil {
		return "", err
	}

	key, err := s.evidence.Upload(ctx, test.ProjectID, testID, filename, reader, size, contentType)
	if err != nil {
		return "", err
	}
	if err := s.store.SetTestEvidence(ctx, testID, key); err != nil {
		return "", err
	}
	return key, nil
}

func (s *Service) EvidenceURL(ctx context.Context, key string) (string, error) {
	if s.evidence == nil {
		return "", domainError(http.StatusServiceUnavailable, "EVIDENCE_UNAVAILABLE", "Evidence storage not configured", nil)
	}
	return s.evidence.PresignedURL(ctx, key, 15*time.Minute)
}

// ---------------------------------------------------------------------------
// Search

func (s *Service) Search(q search.Query) search.Response {
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: q.Text}
	}
	return s.search.Search(q)
}
