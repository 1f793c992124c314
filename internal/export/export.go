// Package export renders the executive dashboard as CSV or PDF.
package export

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/MaykGomes92/teste-ar-sub000/internal/deliverable"
)

// ErrPDFDependencyMissing is returned when no Chromium binary is
// available for PDF rendering.
var ErrPDFDependencyMissing = errors.New("pdf rendering unavailable")

// Result is a rendered export ready to stream to the client.
type Result struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Input is the snapshot of the dashboard to render.
type Input struct {
	ProjectName string
	ClientName  string
	GeneratedAt time.Time
	Groups      []deliverable.ProcessGroup
}

// CSV renders one row per process group, one column pair (stage number
// and label) per deliverable slot.
func CSV(in Input) (*Result, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	header := []string{"Macro Process", "Process"}
	for _, slot := range slotNames {
		header = append(header, slot+" Stage", slot+" Status")
	}
	if err := w.Write(header); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}

	for _, g := range in.Groups {
		row := []string{g.MacroProcess, g.ProcessName}
		for _, slot := range groupSlots(g) {
			if slot == nil {
				row = append(row, "", "")
				continue
			}
			row = append(row, strconv.Itoa(slot.Stage), slot.StageLabel)
		}
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("write csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}

	return &Result{
		Filename:    exportFilename(in, "csv"),
		ContentType: "text/csv; charset=utf-8",
		Data:        buf.Bytes(),
	}, nil
}

// PDF renders the dashboard HTML template through headless Chrome.
func PDF(in Input) (*Result, error) {
	html, err := renderDashboardHTML(in)
	if err != nil {
		return nil, err
	}
	data, err := printToPDF(html)
	if err != nil {
		return nil, err
	}
	return &Result{
		Filename:    exportFilename(in, "pdf"),
		ContentType: "application/pdf",
		Data:        data,
	}, nil
}

var slotNames = []string{"Process", "RACI", "Narrative", "Risk", "KRI", "Test", "Data"}

func groupSlots(g deliverable.ProcessGroup) []*deliverable.Deliverable {
	return []*deliverable.Deliverable{g.Process, g.Accountability, g.Narrative, g.Risk, g.Control, g.Test, g.DataItem}
}

func exportFilename(in Input, ext string) string {
	name := in.ProjectName
	if name == "" {
		name = "dashboard"
	}
	return fmt.Sprintf("%s-%s.%s", name, in.GeneratedAt.Format("2006-01-02"), ext)
}
