package app

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/MaykGomes92/teste-ar-sub000/internal/auth"
	"github.com/MaykGomes92/teste-ar-sub000/internal/config"
	"github.com/MaykGomes92/teste-ar-sub000/internal/deliverable"
	"github.com/MaykGomes92/teste-ar-sub000/internal/store"
	"github.com/MaykGomes92/teste-ar-sub000/internal/workflow"
)

type fakeStore struct {
	getUserByEmailFn          func(context.Context, string) (store.User, error)
	createUserFn              func(context.Context, store.User) error
	lookupRefreshSessionFn    func(context.Context, string) (store.User, error)
	revokeRefreshSessionFn    func(context.Context, string) error
	revokeAccessTokenFn       func(context.Context, string, time.Time) error
	isAccessTokenRevokedFn    func(context.Context, string) (bool, error)
	getProjectFn              func(context.Context, string) (store.Project, error)
	hasProjectAccessFn        func(context.Context, string, string) (bool, error)
	listProcessesFn           func(context.Context, string) ([]store.Process, error)
	listRisksFn               func(context.Context, string) ([]store.Risk, error)
	summaryCountsFn           func(context.Context, string) (int, int, int, error)
	updateProcessStageFn      func(context.Context, string, int, string) error
	updateRiskStageFn         func(context.Context, string, int, string) error
	updateProcessValidationFn func(context.Context, string, string, string, *string, *time.Time, string) error
	processStatusLogsFn       func(context.Context, string) ([]store.StatusLogEntry, error)
	getTestFn                 func(context.Context, string) (store.TestItem, error)
	setTestEvidenceFn         func(context.Context, string, string) error
}

func (f *fakeStore) Ping(context.Context) error { return nil }

func (f *fakeStore) GetUserByEmail(ctx context.Context, email string) (store.User, error) {
	if f.getUserByEmailFn != nil {
		return f.getUserByEmailFn(ctx, email)
	}
	return store.User{}, sql.ErrNoRows
}
func (f *fakeStore) GetUserByID(context.Context, string) (store.User, error) {
	return store.User{}, sql.ErrNoRows
}
func (f *fakeStore) CreateUser(ctx context.Context, user store.User) error {
	if f.createUserFn != nil {
		return f.createUserFn(ctx, user)
	}
	return nil
}
func (f *fakeStore) UpdateUserPassword(context.Context, string, string) error { return nil }
func (f *fakeStore) CreatePasswordReset(context.Context, string, string, time.Time) error {
	return nil
}
func (f *fakeStore) GetPasswordReset(context.Context, string) (string, error) {
	return "", sql.ErrNoRows
}
func (f *fakeStore) MarkPasswordResetUsed(context.Context, string) error { return nil }

func (f *fakeStore) SaveRefreshSession(context.Context, string, string, time.Time) error {
	return nil
}
func (f *fakeStore) LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error) {
	if f.lookupRefreshSessionFn != nil {
		return f.lookupRefreshSessionFn(ctx, tokenHash)
	}
	return store.User{}, sql.ErrNoRows
}
func (f *fakeStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	if f.revokeRefreshSessionFn != nil {
		return f.revokeRefreshSessionFn(ctx, tokenHash)
	}
	return nil
}
func (f *fakeStore) RevokeAccessToken(ctx context.Context, jti string, exp time.Time) error {
	if f.revokeAccessTokenFn != nil {
		return f.revokeAccessTokenFn(ctx, jti, exp)
	}
	return nil
}
func (f *fakeStore) IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error) {
	if f.isAccessTokenRevokedFn != nil {
		return f.isAccessTokenRevokedFn(ctx, jti)
	}
	return false, nil
}

func (f *fakeStore) ListProjects(context.Context, string) ([]store.Project, error) {
	return []store.Project{}, nil
}
func (f *fakeStore) GetProject(ctx context.Context, projectID string) (store.Project, error) {
	if f.getProjectFn != nil {
		return f.getProjectFn(ctx, projectID)
	}
	return store.Project{ID: projectID, Name: "Test Project"}, nil
}
func (f *fakeStore) HasProjectAccess(ctx context.Context, projectID, userID string) (bool, error) {
	if f.hasProjectAccessFn != nil {
		return f.hasProjectAccessFn(ctx, projectID, userID)
	}
	return true, nil
}

func (f *fakeStore) ListProcesses(ctx context.Context, projectID string) ([]store.Process, error) {
	if f.listProcessesFn != nil {
		return f.listProcessesFn(ctx, projectID)
	}
	return []store.Process{}, nil
}
func (f *fakeStore) ListRisks(ctx context.Context, projectID string) ([]store.Risk, error) {
	if f.listRisksFn != nil {
		return f.listRisksFn(ctx, projectID)
	}
	return []store.Risk{}, nil
}
func (f *fakeStore) ListControls(context.Context, string) ([]store.Control, error) {
	return []store.Control{}, nil
}
func (f *fakeStore) ListTests(context.Context, string) ([]store.TestItem, error) {
	return []store.TestItem{}, nil
}
func (f *fakeStore) ListDataItems(context.Context, string) ([]store.DataItem, error) {
	return []store.DataItem{}, nil
}
func (f *fakeStore) SummaryCounts(ctx context.Context, projectID string) (int, int, int, error) {
	if f.summaryCountsFn != nil {
		return f.summaryCountsFn(ctx, projectID)
	}
	return 0, 0, 0, nil
}

func (f *fakeStore) UpdateProcessStage(ctx context.Context, id string, stage int, actor string) error {
	if f.updateProcessStageFn != nil {
		return f.updateProcessStageFn(ctx, id, stage, actor)
	}
	return nil
}
func (f *fakeStore) UpdateRiskStage(ctx context.Context, id string, stage int, actor string) error {
	if f.updateRiskStageFn != nil {
		return f.updateRiskStageFn(ctx, id, stage, actor)
	}
	return nil
}
func (f *fakeStore) UpdateControlStage(context.Context, string, int, string) error  { return nil }
func (f *fakeStore) UpdateTestStage(context.Context, string, int, string) error     { return nil }
func (f *fakeStore) UpdateDataItemStage(context.Context, string, int, string) error { return nil }
func (f *fakeStore) UpdateProcessValidation(ctx context.Context, processID, field, value string, validatedBy *string, validatedAt *time.Time, actor string) error {
	if f.updateProcessValidationFn != nil {
		return f.updateProcessValidationFn(ctx, processID, field, value, validatedBy, validatedAt, actor)
	}
	return nil
}
func (f *fakeStore) ProcessStatusLogs(ctx context.Context, processID string) ([]store.StatusLogEntry, error) {
	if f.processStatusLogsFn != nil {
		return f.processStatusLogsFn(ctx, processID)
	}
	return []store.StatusLogEntry{}, nil
}

func (f *fakeStore) GetTest(ctx context.Context, testID string) (store.TestItem, error) {
	if f.getTestFn != nil {
		return f.getTestFn(ctx, testID)
	}
	return store.TestItem{}, sql.ErrNoRows
}
func (f *fakeStore) SetTestEvidence(ctx context.Context, testID, objectKey string) error {
	if f.setTestEvidenceFn != nil {
		return f.setTestEvidenceFn(ctx, testID, objectKey)
	}
	return nil
}

func testConfig() config.Config {
	return config.Config{
		JWTSecret:    "test-secret",
		AccessTTL:    time.Minute,
		RefreshTTL:   time.Hour,
		FetchTimeout: time.Second,
		CORSOrigin:   "*",
	}
}

func newTestService(fake *fakeStore) *Service {
	fetcher := deliverable.NewFetcher(fake, time.Second)
	controller := workflow.NewController(fake)
	return New(testConfig(), fake, fetcher, controller)
}

func strPtr(s string) *string { return &s }

func testProcess(id, name, macro string) store.Process {
	return store.Process{
		ID:           id,
		ProjectID:    "prj_1",
		Code:         "PR-001",
		Name:         name,
		MacroProcess: macro,
		Owner:        "owner@example.com",
		Stage:        1,
		CreatedAt:    time.Now().Add(-48 * time.Hour),
		UpdatedAt:    time.Now().Add(-24 * time.Hour),
	}
}

func TestDashboard(t *testing.T) {
	fake := &fakeStore{
		listProcessesFn: func(context.Context, string) ([]store.Process, error) {
			return []store.Process{testProcess("proc_1", "Invoicing", "Sales")}, nil
		},
		listRisksFn: func(context.Context, string) ([]store.Risk, error) {
			return []store.Risk{{ID: "risk_1", Name: "Late payment", ProcessID: strPtr("proc_1"), ProcessName: strPtr("Invoicing"), MacroProcess: strPtr("Sales"), Stage: 2}}, nil
		},
		summaryCountsFn: func(context.Context, string) (int, int, int, error) {
			return 1, 1, 0, nil
		},
	}
	svc := newTestService(fake)

	view, err := svc.Dashboard(context.Background(), "prj_1", Session{UserID: "usr_1", Role: "manager"}, deliverable.Filters{})
	if err != nil {
		t.Fatalf("Dashboard: %v", err)
	}
	if view.Partial {
		t.Error("clean fetch must not report partial")
	}
	if len(view.Groups) != 1 {
		t.Fatalf("groups = %d, want 1", len(view.Groups))
	}
	g := view.Groups[0]
	if g.Process == nil || g.Accountability == nil || g.Narrative == nil || g.Risk == nil {
		t.Fatal("group missing expected slots")
	}
	if view.Summary.Processes != 1 || view.Summary.Risks != 1 {
		t.Fatalf("summary = %+v", view.Summary)
	}
	if len(view.MacroProcessOptions) != 1 || view.MacroProcessOptions[0] != "Sales" {
		t.Fatalf("macro options = %v", view.MacroProcessOptions)
	}
}

func TestDashboardAccessDenied(t *testing.T) {
	fake := &fakeStore{
		hasProjectAccessFn: func(context.Context, string, string) (bool, error) {
			return false, nil
		},
	}
	svc := newTestService(fake)

	_, err := svc.Dashboard(context.Background(), "prj_1", Session{UserID: "usr_1", Role: "manager"}, deliverable.Filters{})
	var domainErr *DomainError
	if !errors.As(err, &domainErr) {
		t.Fatalf("expected DomainError, got %v", err)
	}
	if domainErr.Status != 403 {
		t.Fatalf("status = %d, want 403", domainErr.Status)
	}
}

func TestDashboardAdminBypassesMembership(t *testing.T) {
	accessChecked := false
	fake := &fakeStore{
		hasProjectAccessFn: func(context.Context, string, string) (bool, error) {
			accessChecked = true
			return false, nil
		},
	}
	svc := newTestService(fake)

	if _, err := svc.Dashboard(context.Background(), "prj_1", Session{UserID: "usr_1", Role: "admin"}, deliverable.Filters{}); err != nil {
		t.Fatalf("Dashboard as admin: %v", err)
	}
	if accessChecked {
		t.Error("admin must skip the membership check")
	}
}

func TestUpdateDeliverableStageBacked(t *testing.T) {
	var gotID string
	var gotStage int
	fake := &fakeStore{
		listRisksFn: func(context.Context, string) ([]store.Risk, error) {
			return []store.Risk{{ID: "risk_1", Name: "Late payment", ProcessID: strPtr("proc_1"), ProcessName: strPtr("Invoicing")}}, nil
		},
		updateRiskStageFn: func(_ context.Context, id string, stage int, actor string) error {
			gotID, gotStage = id, stage
			if actor != "Alice" {
				t.Errorf("actor = %q", actor)
			}
			return nil
		},
	}
	svc := newTestService(fake)

	result, err := svc.UpdateDeliverableStage(context.Background(), "prj_1", "risk_1", 3, Session{UserID: "usr_1", UserName: "Alice", Role: "manager"})
	if err != nil {
		t.Fatalf("UpdateDeliverableStage: %v", err)
	}
	if !result.Applied {
		t.Fatal("expected applied=true")
	}
	if gotID != "risk_1" || gotStage != 3 {
		t.Fatalf("write = (%q, %d)", gotID, gotStage)
	}
}

func TestUpdateDeliverableStageEmbedded(t *testing.T) {
	var gotProcessID, gotField, gotValue string
	fake := &fakeStore{
		listProcessesFn: func(context.Context, string) ([]store.Process, error) {
			return []store.Process{testProcess("proc_1", "Invoicing", "Sales")}, nil
		},
		updateProcessValidationFn: func(_ context.Context, processID, field, value string, validatedBy *string, validatedAt *time.Time, actor string) error {
			gotProcessID, gotField, gotValue = processID, field, value
			return nil
		},
	}
	svc := newTestService(fake)

	result, err := svc.UpdateDeliverableStage(context.Background(), "prj_1", "proc_1"+deliverable.SuffixRACI, deliverable.StageClientApproval, Session{UserID: "usr_1", UserName: "Alice", Role: "manager"})
	if err != nil {
		t.Fatalf("UpdateDeliverableStage: %v", err)
	}
	if !result.Applied {
		t.Fatal("expected applied=true")
	}
	if gotProcessID != "proc_1" {
		t.Fatalf("processID = %q, the suffix must be stripped before the write", gotProcessID)
	}
	if gotField != "raci" || gotValue != deliverable.ValidationApproved {
		t.Fatalf("write = (%q, %q)", gotField, gotValue)
	}
}

func TestUpdateDeliverableStageUnknownID(t *testing.T) {
	fake := &fakeStore{}
	svc := newTestService(fake)

	result, err := svc.UpdateDeliverableStage(context.Background(), "prj_1", "ghost_1", 2, Session{UserID: "usr_1", Role: "manager"})
	if err != nil {
		t.Fatalf("unknown id must not error: %v", err)
	}
	if result.Applied {
		t.Fatal("unknown id must report applied=false")
	}
}

func TestSessionFromTokenRevoked(t *testing.T) {
	fake := &fakeStore{
		isAccessTokenRevokedFn: func(context.Context, string) (bool, error) {
			return true, nil
		},
	}
	svc := newTestService(fake)

	token, err := auth.IssueToken([]byte(testConfig().JWTSecret), "usr_1", "Alice", "manager", "jti_1", time.Minute)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	if _, err := svc.SessionFromToken(context.Background(), token); !errors.Is(err, auth.ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for revoked jti, got %v", err)
	}
}

func TestRefreshRotatesToken(t *testing.T) {
	var revokedHash string
	fake := &fakeStore{
		lookupRefreshSessionFn: func(_ context.Context, tokenHash string) (store.User, error) {
			return store.User{ID: "usr_1", DisplayName: "Alice", Role: "manager"}, nil
		},
		revokeRefreshSessionFn: func(_ context.Context, tokenHash string) error {
			revokedHash = tokenHash
			return nil
		},
	}
	svc := newTestService(fake)

	session, err := svc.Refresh(context.Background(), "old-refresh-token")
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if revokedHash != auth.HashToken("old-refresh-token") {
		t.Fatal("presented refresh token must be revoked on rotation")
	}
	if session.RefreshToken == "" || session.RefreshToken == "old-refresh-token" {
		t.Fatal("rotation must issue a fresh refresh token")
	}
	if session.Token == "" {
		t.Fatal("rotation must issue a fresh access token")
	}
}

func TestLogoutRevokesBothTokens(t *testing.T) {
	var revokedRefresh, revokedJTI string
	fake := &fakeStore{
		revokeRefreshSessionFn: func(_ context.Context, tokenHash string) error {
			revokedRefresh = tokenHash
			return nil
		},
		revokeAccessTokenFn: func(_ context.Context, jti string, _ time.Time) error {
			revokedJTI = jti
			return nil
		},
	}
	svc := newTestService(fake)

	session := Session{JTI: "jti_1", ExpiresAt: time.Now().Add(time.Minute)}
	if err := svc.Logout(context.Background(), session, "refresh-token"); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if revokedRefresh != auth.HashToken("refresh-token") {
		t.Fatal("refresh token not revoked")
	}
	if revokedJTI != "jti_1" {
		t.Fatal("access token jti not revoked")
	}
}

func TestUploadEvidenceUnconfigured(t *testing.T) {
	svc := newTestService(&fakeStore{})

	_, err := svc.UploadEvidence(context.Background(), "tst_1", "report.pdf", nil, 0, "application/pdf", Session{Role: "manager"})
	var domainErr *DomainError
	if !errors.As(err, &domainErr) {
		t.Fatalf("expected DomainError, got %v", err)
	}
	if domainErr.Status != 503 {
		t.Fatalf("status = %d, want 503", domainErr.Status)
	}
}
