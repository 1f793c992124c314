package store

import "time"

type User struct {
	ID              string
	DisplayName     string
	Email           string
	PasswordHash    string
	Role            string
	IsEmailVerified bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type Project struct {
	ID         string
	Name       string
	ClientName string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Process is the top-level register entry. The raci_* and descritivo_*
// columns hold the validation state of the two pseudo-deliverables that
// live inside the process record rather than as rows of their own.
type Process struct {
	ID           string
	ProjectID    string
	Code         string
	Name         string
	MacroProcess string
	Owner        string
	Stage        int
	CreatedAt    time.Time
	UpdatedAt    time.Time

	RACIValidation        string
	RACIValidatedBy       *string
	RACIValidatedAt       *time.Time
	DescritivoValidation  string
	DescritivoValidatedBy *string
	DescritivoValidatedAt *time.Time
}

// Risk is read joined to its parent process; the parent columns are
// nullable so the normalizer can drop rows whose process was deleted.
type Risk struct {
	ID           string
	ProjectID    string
	Code         string
	Name         string
	Owner        string
	Stage        int
	ProcessID    *string
	ProcessName  *string
	MacroProcess *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Control is a KRI record, read joined risk -> process.
type Control struct {
	ID           string
	ProjectID    string
	Code         string
	Name         string
	Owner        string
	Stage        int
	RiskID       *string
	RiskName     *string
	ProcessID    *string
	ProcessName  *string
	MacroProcess *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// TestItem is a control test execution record, read joined
// control -> risk -> process.
type TestItem struct {
	ID           string
	ProjectID    string
	Code         string
	Name         string
	Owner        string
	Stage        int
	ControlID    *string
	ControlName  *string
	RiskID       *string
	RiskName     *string
	ProcessID    *string
	ProcessName  *string
	MacroProcess *string
	EvidenceKey  string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// DataItem is a spreadsheet/data deliverable attached to a process.
type DataItem struct {
	ID           string
	ProjectID    string
	Code         string
	Name         string
	Owner        string
	Stage        int
	ProcessID    *string
	ProcessName  *string
	MacroProcess *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// StatusLogEntry is one row of the append-only per-process change log.
// Rows are inserted by a database trigger on stage writes, never by the
// application, and are immutable once written.
type StatusLogEntry struct {
	ID              int64
	ProcessID       string
	DeliverableType string
	PreviousStage   *int
	NewStage        int
	AuthorName      string
	Notes           string
	CreatedAt       time.Time
}
