package search

import (
	"encoding/json"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"
)

const (
	idxProcesses = "grc_processes"
	idxRisks     = "grc_risks"
	idxControls  = "grc_controls"
)

// Meili implements Searcher via Meilisearch.
type Meili struct {
	client  meili.ServiceManager
	healthy atomic.Bool
	done    chan struct{}
}

// NewMeili creates a Meilisearch client and configures indexes. The
// caller proceeds with the fallback searcher while it is unhealthy.
func NewMeili(url, apiKey string) *Meili {
	client := meili.New(url, meili.WithAPIKey(apiKey))

	m := &Meili{
		client: client,
		done:   make(chan struct{}),
	}

	if _, err := client.Health(); err != nil {
		log.Printf("search: meilisearch unavailable at %s: %v", url, err)
		m.healthy.Store(false)
	} else {
		m.healthy.Store(true)
		m.configureIndexes()
	}

	go m.healthLoop()
	return m
}

func (m *Meili) configureIndexes() {
	for _, uid := range []string{idxProcesses, idxRisks, idxControls} {
		if _, err := m.client.CreateIndex(&meili.IndexConfig{
			Uid:        uid,
			PrimaryKey: "id",
		}); err != nil {
			log.Printf("search: create index %s (may already exist): %v", uid, err)
		}

		index := m.client.Index(uid)
		filterable := []interface{}{"projectId"}
		if _, err := index.UpdateFilterableAttributes(&filterable); err != nil {
			log.Printf("search: update filterable attrs for %s: %v", uid, err)
		}
		searchable := []string{"name", "code", "macroProcess"}
		if _, err := index.UpdateSearchableAttributes(&searchable); err != nil {
			log.Printf("search: update searchable attrs for %s: %v", uid, err)
		}
	}
}

func (m *Meili) healthLoop() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			_, err := m.client.Health()
			wasHealthy := m.healthy.Load()
			m.healthy.Store(err == nil)
			if err == nil && !wasHealthy {
				log.Println("search: meilisearch recovered, reconfiguring indexes")
				m.configureIndexes()
			}
		}
	}
}

// Close stops the background health monitor.
func (m *Meili) Close() {
	close(m.done)
}

// Healthy reports whether Meilisearch is reachable.
func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

// Search queries the three register indexes (or a filtered subset) and
// merges results.
func (m *Meili) Search(q Query) ([]Result, int, error) {
	if !m.healthy.Load() {
		return nil, 0, fmt.Errorf("meilisearch unhealthy")
	}

	limit := int64(q.Limit)
	if limit == 0 {
		limit = 20
	}

	targetIndexes := []struct {
		uid  string
		rtyp ResultType
	}{
		{idxProcesses, ResultProcess},
		{idxRisks, ResultRisk},
		{idxControls, ResultControl},
	}

	var queries []*meili.SearchRequest
	for _, ti := range targetIndexes {
		if q.FilterType != "" && q.FilterType != ti.rtyp {
			continue
		}
		sr := &meili.SearchRequest{
			IndexUID: ti.uid,
			Query:    q.Text,
			Limit:    limit,
			Offset:   int64(q.Offset),
		}
		if q.ProjectID != "" {
			sr.Filter = []string{fmt.Sprintf("projectId = %q", q.ProjectID)}
		}
		queries = append(queries, sr)
	}

	if len(queries) == 0 {
		return nil, 0, nil
	}

	resp, err := m.client.MultiSearch(&meili.MultiSearchRequest{Queries: queries})
	if err != nil {
		m.healthy.Store(false)
		return nil, 0, fmt.Errorf("meilisearch multi-search: %w", err)
	}

	var results []Result
	total := 0
	for _, sr := range resp.Results {
		total += int(sr.EstimatedTotalHits)
		rtyp := indexToResultType(sr.IndexUID)
		for _, hit := range sr.Hits {
			results = append(results, Result{
				Type:         rtyp,
				ID:           decodeString(hit, "id"),
				Code:         decodeString(hit, "code"),
				Name:         decodeString(hit, "name"),
				MacroProcess: decodeString(hit, "macroProcess"),
				ProjectID:    decodeString(hit, "projectId"),
			})
		}
	}
	return results, total, nil
}

// IndexRecord pushes one register entry into the index for its type.
func (m *Meili) IndexRecord(rtyp ResultType, rec Record) error {
	uid := resultTypeToIndex(rtyp)
	if uid == "" {
		return fmt.Errorf("unknown result type %q", rtyp)
	}
	_, err := m.client.Index(uid).AddDocuments([]Record{rec}, nil)
	return err
}

// IndexRecords bulk-loads one index, used during bootstrap reindexing.
func (m *Meili) IndexRecords(rtyp ResultType, recs []Record) error {
	uid := resultTypeToIndex(rtyp)
	if uid == "" {
		return fmt.Errorf("unknown result type %q", rtyp)
	}
	_, err := m.client.Index(uid).AddDocuments(recs, nil)
	return err
}

func indexToResultType(uid string) ResultType {
	switch uid {
	case idxProcesses:
		return ResultProcess
	case idxRisks:
		return ResultRisk
	case idxControls:
		return ResultControl
	default:
		return ""
	}
}

func resultTypeToIndex(rtyp ResultType) string {
	switch rtyp {
	case ResultProcess:
		return idxProcesses
	case ResultRisk:
		return idxRisks
	case ResultControl:
		return idxControls
	default:
		return ""
	}
}

func decodeString(hit meili.Hit, key string) string {
	raw, ok := hit[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return ""
}
