package deliverable

import (
	"sort"
	"strconv"
	"strings"
)

// Group folds the flat deliverable list into one row per process. Each
// deliverable lands in the type slot of the group keyed by its
// processId; last write wins if the normalizer ever emitted a duplicate.
func Group(items []Deliverable) []ProcessGroup {
	index := make(map[string]*ProcessGroup)
	order := make([]string, 0)

	for i := range items {
		d := &items[i]
		group, ok := index[d.ProcessID]
		if !ok {
			group = &ProcessGroup{
				ProcessID:    d.ProcessID,
				MacroProcess: d.MacroProcess,
				ProcessName:  d.Process,
			}
			index[d.ProcessID] = group
			order = append(order, d.ProcessID)
		}
		switch d.Type {
		case TypeProcess:
			group.Process = d
			// The process deliverable carries the canonical labels.
			group.MacroProcess = d.MacroProcess
			group.ProcessName = d.Process
		case TypeAccountability:
			group.Accountability = d
		case TypeNarrative:
			group.Narrative = d
		case TypeRisk:
			group.Risk = d
		case TypeControl:
			group.Control = d
		case TypeTest:
			group.Test = d
		case TypeData:
			group.DataItem = d
		}
	}

	out := make([]ProcessGroup, 0, len(order))
	for _, id := range order {
		out = append(out, *index[id])
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].MacroProcess != out[j].MacroProcess {
			return out[i].MacroProcess < out[j].MacroProcess
		}
		return out[i].ProcessName < out[j].ProcessName
	})
	return out
}

// FilterAll is the neutral value for every selector.
const FilterAll = "all"

// Filters are the executive table selectors. Stage is the stringified
// stage number or "all".
type Filters struct {
	Search       string
	MacroProcess string
	Process      string
	Stage        string
}

// Resolve normalizes the selectors against the current data set: empty
// selectors become "all", and a process selection that does not belong
// to the selected macro-process resets to "all" (the behavior the
// process dropdown shows when the macro selector changes).
func (f Filters) Resolve(groups []ProcessGroup) Filters {
	if f.MacroProcess == "" {
		f.MacroProcess = FilterAll
	}
	if f.Process == "" {
		f.Process = FilterAll
	}
	if f.Stage == "" {
		f.Stage = FilterAll
	}
	if f.MacroProcess != FilterAll && f.Process != FilterAll {
		valid := false
		for _, name := range ProcessOptions(groups, f.MacroProcess) {
			if name == f.Process {
				valid = true
				break
			}
		}
		if !valid {
			f.Process = FilterAll
		}
	}
	return f
}

// Apply filters the grouped rows. A row passes the stage selector if ANY
// of its seven slots sits at the requested stage.
func Apply(groups []ProcessGroup, f Filters) []ProcessGroup {
	f = f.Resolve(groups)

	search := strings.ToLower(strings.TrimSpace(f.Search))
	stage := -1
	if f.Stage != FilterAll {
		parsed, err := strconv.Atoi(f.Stage)
		if err == nil {
			stage = parsed
		}
	}

	out := make([]ProcessGroup, 0, len(groups))
	for _, g := range groups {
		if search != "" &&
			!strings.Contains(strings.ToLower(g.ProcessName), search) &&
			!strings.Contains(strings.ToLower(g.MacroProcess), search) {
			continue
		}
		if f.MacroProcess != FilterAll && g.MacroProcess != f.MacroProcess {
			continue
		}
		if f.Process != FilterAll && g.ProcessName != f.Process {
			continue
		}
		if stage >= 0 && !anySlotAtStage(g, stage) {
			continue
		}
		out = append(out, g)
	}
	return out
}

func anySlotAtStage(g ProcessGroup, stage int) bool {
	for _, slot := range slots(g) {
		if slot != nil && slot.Stage == stage {
			return true
		}
	}
	return false
}

func slots(g ProcessGroup) []*Deliverable {
	return []*Deliverable{g.Process, g.Accountability, g.Narrative, g.Risk, g.Control, g.Test, g.DataItem}
}

// MacroProcessOptions derives the macro-process dropdown from the data.
func MacroProcessOptions(groups []ProcessGroup) []string {
	return distinct(groups, func(g ProcessGroup) string { return g.MacroProcess })
}

// ProcessOptions derives the process dropdown, narrowed to the selected
// macro-process. "all" (or empty) restores the full list.
func ProcessOptions(groups []ProcessGroup, macroProcess string) []string {
	if macroProcess == "" || macroProcess == FilterAll {
		return distinct(groups, func(g ProcessGroup) string { return g.ProcessName })
	}
	return distinct(groups, func(g ProcessGroup) string {
		if g.MacroProcess != macroProcess {
			return ""
		}
		return g.ProcessName
	})
}

func distinct(groups []ProcessGroup, pick func(ProcessGroup) string) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0)
	for _, g := range groups {
		value := pick(g)
		if value == "" {
			continue
		}
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	sort.Strings(out)
	return out
}
