package deliverable

import (
	"testing"
	"time"

	"github.com/MaykGomes92/teste-ar-sub000/internal/store"
)

func strPtr(s string) *string { return &s }

func timePtr(t time.Time) *time.Time { return &t }

func sampleProcess(id, name string) store.Process {
	return store.Process{
		ID:           id,
		ProjectID:    "prj_1",
		Code:         "PR-001",
		Name:         name,
		MacroProcess: "Finance",
		Owner:        "alice@example.com",
		Stage:        1,
		CreatedAt:    time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		UpdatedAt:    time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC),
	}
}

func TestNormalizeEmitsThreePerProcess(t *testing.T) {
	now := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	in := Inputs{Processes: []store.Process{sampleProcess("proc_1", "Invoicing")}}

	items := Normalize(in, now)
	if len(items) != 3 {
		t.Fatalf("expected 3 deliverables, got %d", len(items))
	}

	byType := make(map[Type]Deliverable, 3)
	for _, d := range items {
		byType[d.Type] = d
	}
	if _, ok := byType[TypeProcess]; !ok {
		t.Fatal("missing process deliverable")
	}
	acc, ok := byType[TypeAccountability]
	if !ok {
		t.Fatal("missing accountability deliverable")
	}
	if acc.ID != "proc_1"+SuffixRACI {
		t.Fatalf("accountability id = %q, want %q", acc.ID, "proc_1"+SuffixRACI)
	}
	nar, ok := byType[TypeNarrative]
	if !ok {
		t.Fatal("missing narrative deliverable")
	}
	if nar.ID != "proc_1"+SuffixDescritivo {
		t.Fatalf("narrative id = %q, want %q", nar.ID, "proc_1"+SuffixDescritivo)
	}
}

func TestNormalizeCardinality(t *testing.T) {
	now := time.Now()
	in := Inputs{
		Processes: []store.Process{sampleProcess("proc_1", "Invoicing"), sampleProcess("proc_2", "Payroll")},
		Risks: []store.Risk{
			{ID: "risk_1", Name: "Late payment", ProcessID: strPtr("proc_1"), ProcessName: strPtr("Invoicing")},
		},
		Controls: []store.Control{
			{ID: "ctl_1", Name: "Dual approval", RiskID: strPtr("risk_1"), ProcessID: strPtr("proc_1"), ProcessName: strPtr("Invoicing")},
		},
		Tests: []store.TestItem{
			{ID: "tst_1", Name: "Sample check", ControlID: strPtr("ctl_1"), RiskID: strPtr("risk_1"), ProcessID: strPtr("proc_1"), ProcessName: strPtr("Invoicing")},
		},
		DataItems: []store.DataItem{
			{ID: "dat_1", Name: "Ledger extract", ProcessID: strPtr("proc_2"), ProcessName: strPtr("Payroll")},
		},
	}

	items := Normalize(in, now)
	want := 3*2 + 1 + 1 + 1 + 1
	if len(items) != want {
		t.Fatalf("expected %d deliverables, got %d", want, len(items))
	}
}

func TestNormalizeDropsOrphanedChildren(t *testing.T) {
	now := time.Now()
	in := Inputs{
		Risks: []store.Risk{
			{ID: "risk_orphan", Name: "Orphan"},
			{ID: "risk_ok", Name: "Kept", ProcessID: strPtr("proc_1"), ProcessName: strPtr("Invoicing")},
		},
		Controls: []store.Control{
			// Risk pointer intact but process chain broken.
			{ID: "ctl_orphan", Name: "Orphan", RiskID: strPtr("risk_1")},
		},
		Tests: []store.TestItem{
			{ID: "tst_orphan", Name: "Orphan", ControlID: strPtr("ctl_1"), RiskID: strPtr("risk_1")},
		},
		DataItems: []store.DataItem{
			{ID: "dat_orphan", Name: "Orphan"},
		},
	}

	items := Normalize(in, now)
	if len(items) != 1 {
		t.Fatalf("expected only the intact risk to survive, got %d deliverables", len(items))
	}
	if items[0].ID != "risk_ok" {
		t.Fatalf("survivor = %q, want risk_ok", items[0].ID)
	}
}

func TestNormalizeEmbeddedValidationMapping(t *testing.T) {
	now := time.Now()
	validatedAt := time.Date(2026, 1, 20, 0, 0, 0, 0, time.UTC)

	p := sampleProcess("proc_1", "Invoicing")
	p.RACIValidation = ValidationApproved
	p.RACIValidatedBy = strPtr("Bob")
	p.RACIValidatedAt = timePtr(validatedAt)
	p.DescritivoValidation = ValidationReview

	items := Normalize(Inputs{Processes: []store.Process{p}}, now)

	var acc, nar Deliverable
	for _, d := range items {
		switch d.Type {
		case TypeAccountability:
			acc = d
		case TypeNarrative:
			nar = d
		}
	}

	if acc.Stage != StageClientApproval {
		t.Fatalf("approved accountability stage = %d, want %d", acc.Stage, StageClientApproval)
	}
	if !acc.UpdatedAt.Equal(validatedAt) {
		t.Fatalf("accountability updatedAt = %v, want the validation stamp %v", acc.UpdatedAt, validatedAt)
	}
	if nar.Stage != StageInReview {
		t.Fatalf("review narrative stage = %d, want %d", nar.Stage, StageInReview)
	}
	if !nar.UpdatedAt.Equal(p.UpdatedAt) {
		t.Fatalf("narrative updatedAt = %v, want the process row stamp %v", nar.UpdatedAt, p.UpdatedAt)
	}

	// Absent validation normalizes to pending / not started.
	blank := sampleProcess("proc_2", "Payroll")
	for _, d := range Normalize(Inputs{Processes: []store.Process{blank}}, now) {
		if d.Type == TypeAccountability || d.Type == TypeNarrative {
			if d.Stage != StageNotStarted {
				t.Fatalf("%s with no validation stage = %d, want 0", d.Type, d.Stage)
			}
		}
	}
}

func TestNormalizeClampsStageAndFallsBackCodes(t *testing.T) {
	now := time.Now()
	p := sampleProcess("proc_1", "Invoicing")
	p.Code = ""
	p.Stage = 42

	items := Normalize(Inputs{Processes: []store.Process{p}}, now)
	var proc Deliverable
	for _, d := range items {
		if d.Type == TypeProcess {
			proc = d
		}
	}
	if proc.Stage != StageNotStarted {
		t.Fatalf("out-of-range stage clamped to %d, want 0", proc.Stage)
	}
	if proc.Code != "PR-1" {
		t.Fatalf("fallback code = %q, want PR-1", proc.Code)
	}
}

func TestNormalizeIsStableAcrossRuns(t *testing.T) {
	now := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	in := Inputs{
		Processes: []store.Process{sampleProcess("proc_1", "Invoicing")},
		Risks: []store.Risk{
			{ID: "risk_1", Name: "Late payment", ProcessID: strPtr("proc_1"), ProcessName: strPtr("Invoicing")},
		},
	}

	first := Normalize(in, now)
	second := Normalize(in, now)
	if len(first) != len(second) {
		t.Fatalf("lengths differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("item %d differs between runs: %+v vs %+v", i, first[i], second[i])
		}
	}
}

func TestDaysInStage(t *testing.T) {
	base := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	cases := []struct {
		name    string
		updated time.Time
		want    int
	}{
		{name: "future stamp floors at zero", updated: base.Add(time.Hour), want: 0},
		{name: "same instant", updated: base, want: 0},
		{name: "partial day rounds up", updated: base.Add(-time.Hour), want: 1},
		{name: "exact days", updated: base.Add(-48 * time.Hour), want: 2},
		{name: "just over a day", updated: base.Add(-25 * time.Hour), want: 2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := daysInStage(base, tc.updated); got != tc.want {
				t.Fatalf("daysInStage = %d, want %d", got, tc.want)
			}
		})
	}
}
