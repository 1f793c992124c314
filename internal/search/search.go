package search

// ResultType identifies the kind of register entry in a search result.
type ResultType string

const (
	ResultProcess ResultType = "process"
	ResultRisk    ResultType = "risk"
	ResultControl ResultType = "control"
)

// Result is a single search hit returned to the caller.
type Result struct {
	Type         ResultType `json:"type"`
	ID           string     `json:"id"`
	Code         string     `json:"code"`
	Name         string     `json:"name"`
	MacroProcess string     `json:"macroProcess,omitempty"`
	ProjectID    string     `json:"projectId"`
}

// Query describes a search request.
type Query struct {
	Text       string
	FilterType ResultType // empty = all types
	ProjectID  string
	Limit      int
	Offset     int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// Record is the data pushed into the search index for any register entry.
type Record struct {
	ID           string `json:"id"`
	Code         string `json:"code"`
	Name         string `json:"name"`
	MacroProcess string `json:"macroProcess,omitempty"`
	ProjectID    string `json:"projectId"`
}
