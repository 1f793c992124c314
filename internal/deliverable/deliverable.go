// Package deliverable turns the five register collections into the
// uniform view the executive dashboard is built from.
package deliverable

import (
	"strings"
	"time"
)

// Type discriminates the seven deliverable kinds. Accountability and
// narrative have no backing record of their own; they live inside the
// owning process row.
type Type string

const (
	TypeProcess        Type = "process"
	TypeData           Type = "data"
	TypeRisk           Type = "risk"
	TypeControl        Type = "control"
	TypeTest           Type = "test"
	TypeAccountability Type = "accountability"
	TypeNarrative      Type = "narrative"
)

// Stage positions in the approval pipeline.
const (
	StageNotStarted     = 0
	StageInDevelopment  = 1
	StageInReview       = 2
	StageInternalQA     = 3
	StageClientApproval = 4
	StageFinalApproval  = 5
	StageCompleted      = 6
)

var stageLabels = map[int]string{
	StageNotStarted:     "Not Started",
	StageInDevelopment:  "In Development",
	StageInReview:       "In Review",
	StageInternalQA:     "Internal QA Approval",
	StageClientApproval: "Client Approval",
	StageFinalApproval:  "Internal Final Approval",
	StageCompleted:      "Completed",
}

// StageLabel returns the display name for a stage, or empty for values
// outside [0,6].
func StageLabel(stage int) string {
	return stageLabels[stage]
}

// ValidStage reports whether stage is inside the pipeline range.
func ValidStage(stage int) bool {
	return stage >= StageNotStarted && stage <= StageCompleted
}

// Tri-state validation values stored on the process record for the two
// embedded deliverables. The wire names are the product's original
// Portuguese labels and must not be translated.
const (
	ValidationApproved = "aprovado"
	ValidationReview   = "revisao"
	ValidationPending  = "pendente"
)

// Synthetic id suffixes for the embedded deliverables.
const (
	SuffixRACI       = "-raci"
	SuffixDescritivo = "-descritivo"
)

// StageFromValidation compresses the tri-state text onto the stage axis.
// Only 4, 2 and 0 are reachable for embedded deliverables; that loss is
// part of the product contract.
func StageFromValidation(value string) int {
	switch value {
	case ValidationApproved:
		return StageClientApproval
	case ValidationReview:
		return StageInReview
	default:
		return StageNotStarted
	}
}

// ValidationFromStage is the inverse write-side mapping: 4 means
// approved, 2 means review, anything else collapses to pending.
func ValidationFromStage(stage int) string {
	switch stage {
	case StageClientApproval:
		return ValidationApproved
	case StageInReview:
		return ValidationReview
	default:
		return ValidationPending
	}
}

// Deliverable is the uniform projection of one unit of approvable work.
// It is never persisted; it is recomputed from the backing records on
// every fetch.
type Deliverable struct {
	ID           string    `json:"id"`
	Type         Type      `json:"type"`
	Code         string    `json:"code"`
	Name         string    `json:"name"`
	MacroProcess string    `json:"macroProcess"`
	Process      string    `json:"process"`
	ProcessID    string    `json:"processId"`
	Risk         string    `json:"risk,omitempty"`
	RiskID       string    `json:"riskId,omitempty"`
	Control      string    `json:"control,omitempty"`
	ControlID    string    `json:"controlId,omitempty"`
	Owner        string    `json:"owner"`
	Stage        int       `json:"stage"`
	StageLabel   string    `json:"stageLabel"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
	DaysInStage  int       `json:"daysInStage"`
}

// ProcessGroup is one row of the executive table: one slot per
// deliverable type for a single process. Slots are nil when the process
// has no deliverable of that type. The Control slot also feeds the KRI
// column; no separate entity exists for it.
type ProcessGroup struct {
	ProcessID      string       `json:"processId"`
	MacroProcess   string       `json:"macroProcess"`
	ProcessName    string       `json:"processName"`
	Process        *Deliverable `json:"process"`
	Accountability *Deliverable `json:"accountability"`
	Narrative      *Deliverable `json:"narrative"`
	Risk           *Deliverable `json:"risk"`
	Control        *Deliverable `json:"control"`
	Test           *Deliverable `json:"test"`
	DataItem       *Deliverable `json:"dataItem"`
}

// daysInStage is ceil((now - updatedAt) / 1 day), floored at zero.
func daysInStage(now, updatedAt time.Time) int {
	elapsed := now.Sub(updatedAt)
	if elapsed <= 0 {
		return 0
	}
	days := int(elapsed / (24 * time.Hour))
	if elapsed%(24*time.Hour) != 0 {
		days++
	}
	return days
}

// fallbackCode builds a display code from the record id when the backing
// record has none: the label plus the id tail, uppercased.
func fallbackCode(label, id string) string {
	trimmed := id
	if i := strings.IndexByte(trimmed, '_'); i >= 0 {
		trimmed = trimmed[i+1:]
	}
	if len(trimmed) > 6 {
		trimmed = trimmed[:6]
	}
	return label + "-" + strings.ToUpper(trimmed)
}
