package deliverable

import (
	"time"

	"github.com/MaykGomes92/teste-ar-sub000/internal/store"
)

// Inputs holds the raw rows of the five register collections for one
// project, as returned by the fetcher.
type Inputs struct {
	Processes []store.Process
	Risks     []store.Risk
	Controls  []store.Control
	Tests     []store.TestItem
	DataItems []store.DataItem
}

// Normalize projects the raw rows into the flat deliverable list. It is
// a pure function: every process yields exactly three deliverables
// (process, accountability, narrative) regardless of how many of its
// sub-fields are set; every child row that kept its parent chain yields
// exactly one. Child rows whose parent chain is broken are dropped.
func Normalize(in Inputs, now time.Time) []Deliverable {
	out := make([]Deliverable, 0, 3*len(in.Processes)+len(in.Risks)+len(in.Controls)+len(in.Tests)+len(in.DataItems))

	for _, p := range in.Processes {
		out = append(out, processDeliverable(p, now))
		out = append(out, embeddedDeliverable(p, TypeAccountability, now))
		out = append(out, embeddedDeliverable(p, TypeNarrative, now))
	}

	for _, r := range in.Risks {
		if r.ProcessID == nil || r.ProcessName == nil {
			continue
		}
		code := r.Code
		if code == "" {
			code = fallbackCode("RI", r.ID)
		}
		out = append(out, Deliverable{
			ID:           r.ID,
			Type:         TypeRisk,
			Code:         code,
			Name:         r.Name,
			MacroProcess: strOrEmpty(r.MacroProcess),
			Process:      *r.ProcessName,
			ProcessID:    *r.ProcessID,
			Owner:        r.Owner,
			Stage:        clampStage(r.Stage),
			StageLabel:   StageLabel(clampStage(r.Stage)),
			CreatedAt:    r.CreatedAt,
			UpdatedAt:    r.UpdatedAt,
			DaysInStage:  daysInStage(now, r.UpdatedAt),
		})
	}

	for _, c := range in.Controls {
		if c.RiskID == nil || c.ProcessID == nil || c.ProcessName == nil {
			continue
		}
		code := c.Code
		if code == "" {
			code = fallbackCode("KRI", c.ID)
		}
		out = append(out, Deliverable{
			ID:           c.ID,
			Type:         TypeControl,
			Code:         code,
			Name:         c.Name,
			MacroProcess: strOrEmpty(c.MacroProcess),
			Process:      *c.ProcessName,
			ProcessID:    *c.ProcessID,
			Risk:         strOrEmpty(c.RiskName),
			RiskID:       *c.RiskID,
			Owner:        c.Owner,
			Stage:        clampStage(c.Stage),
			StageLabel:   StageLabel(clampStage(c.Stage)),
			CreatedAt:    c.CreatedAt,
			UpdatedAt:    c.UpdatedAt,
			DaysInStage:  daysInStage(now, c.UpdatedAt),
		})
	}

	for _, t := range in.Tests {
		if t.ControlID == nil || t.RiskID == nil || t.ProcessID == nil || t.ProcessName == nil {
			continue
		}
		code := t.Code
		if code == "" {
			code = fallbackCode("TST", t.ID)
		}
		out = append(out, Deliverable{
			ID:           t.ID,
			Type:         TypeTest,
			Code:         code,
			Name:         t.Name,
			MacroProcess: strOrEmpty(t.MacroProcess),
			Process:      *t.ProcessName,
			ProcessID:    *t.ProcessID,
			Risk:         strOrEmpty(t.RiskName),
			RiskID:       *t.RiskID,
			Control:      strOrEmpty(t.ControlName),
			ControlID:    *t.ControlID,
			Owner:        t.Owner,
			Stage:        clampStage(t.Stage),
			StageLabel:   StageLabel(clampStage(t.Stage)),
			CreatedAt:    t.CreatedAt,
			UpdatedAt:    t.UpdatedAt,
			DaysInStage:  daysInStage(now, t.UpdatedAt),
		})
	}

	for _, d := range in.DataItems {
		if d.ProcessID == nil || d.ProcessName == nil {
			continue
		}
		code := d.Code
		if code == "" {
			code = fallbackCode("DAT", d.ID)
		}
		out = append(out, Deliverable{
			ID:           d.ID,
			Type:         TypeData,
			Code:         code,
			Name:         d.Name,
			MacroProcess: strOrEmpty(d.MacroProcess),
			Process:      *d.ProcessName,
			ProcessID:    *d.ProcessID,
			Owner:        d.Owner,
			Stage:        clampStage(d.Stage),
			StageLabel:   StageLabel(clampStage(d.Stage)),
			CreatedAt:    d.CreatedAt,
			UpdatedAt:    d.UpdatedAt,
			DaysInStage:  daysInStage(now, d.UpdatedAt),
		})
	}

	return out
}

func processDeliverable(p store.Process, now time.Time) Deliverable {
	code := p.Code
	if code == "" {
		code = fallbackCode("PR", p.ID)
	}
	stage := clampStage(p.Stage)
	return Deliverable{
		ID:           p.ID,
		Type:         TypeProcess,
		Code:         code,
		Name:         p.Name,
		MacroProcess: p.MacroProcess,
		Process:      p.Name,
		ProcessID:    p.ID,
		Owner:        p.Owner,
		Stage:        stage,
		StageLabel:   StageLabel(stage),
		CreatedAt:    p.CreatedAt,
		UpdatedAt:    p.UpdatedAt,
		DaysInStage:  daysInStage(now, p.UpdatedAt),
	}
}

// embeddedDeliverable synthesizes the accountability or narrative
// deliverable from the process sub-fields. Absent fields normalize to
// pending / stage 0. updatedAt falls back from the validated-at stamp to
// the process row's own updated_at.
func embeddedDeliverable(p store.Process, typ Type, now time.Time) Deliverable {
	var (
		suffix      string
		label       string
		validation  string
		validatedAt *time.Time
	)
	switch typ {
	case TypeAccountability:
		suffix, label = SuffixRACI, "RACI"
		validation, validatedAt = p.RACIValidation, p.RACIValidatedAt
	case TypeNarrative:
		suffix, label = SuffixDescritivo, "DESC"
		validation, validatedAt = p.DescritivoValidation, p.DescritivoValidatedAt
	}

	updatedAt := p.UpdatedAt
	if validatedAt != nil {
		updatedAt = *validatedAt
	}

	stage := StageFromValidation(validation)
	return Deliverable{
		ID:           p.ID + suffix,
		Type:         typ,
		Code:         fallbackCode(label, p.ID),
		Name:         p.Name,
		MacroProcess: p.MacroProcess,
		Process:      p.Name,
		ProcessID:    p.ID,
		Owner:        p.Owner,
		Stage:        stage,
		StageLabel:   StageLabel(stage),
		CreatedAt:    p.CreatedAt,
		UpdatedAt:    updatedAt,
		DaysInStage:  daysInStage(now, updatedAt),
	}
}

func clampStage(stage int) int {
	if stage < StageNotStarted || stage > StageCompleted {
		return StageNotStarted
	}
	return stage
}

func strOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
