package search

import (
	"log"
)

// Service is the facade that tries Meilisearch first and falls back to
// Postgres FTS.
type Service struct {
	meili *Meili
	pgfts *PgFTS
}

// NewService creates a search service. meili may be nil when
// Meilisearch is not configured.
func NewService(meili *Meili, pgfts *PgFTS) *Service {
	return &Service{meili: meili, pgfts: pgfts}
}

// Search tries Meilisearch if healthy, otherwise falls back to PG FTS.
func (s *Service) Search(q Query) Response {
	if s.meili != nil && s.meili.Healthy() {
		results, total, err := s.meili.Search(q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		log.Printf("search: meilisearch error, falling back to pgfts: %v", err)
	}

	results, total, err := s.pgfts.Search(q)
	if err != nil {
		log.Printf("search: pgfts error: %v", err)
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

// Index pushes one register entry into the search index
// (fire-and-forget to Meilisearch).
func (s *Service) Index(rtyp ResultType, rec Record) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.IndexRecord(rtyp, rec); err != nil {
			log.Printf("search: index %s %s: %v", rtyp, rec.ID, err)
		}
	}()
}

// ReindexAll bulk-loads the register into Meilisearch. Called during
// bootstrap when Meilisearch is healthy.
func (s *Service) ReindexAll(processes, risks, controls []Record) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	for rtyp, recs := range map[ResultType][]Record{
		ResultProcess: processes,
		ResultRisk:    risks,
		ResultControl: controls,
	} {
		if len(recs) == 0 {
			continue
		}
		if err := s.meili.IndexRecords(rtyp, recs); err != nil {
			log.Printf("search: reindex %s: %v", rtyp, err)
		}
	}
}

func nonNil(results []Result) []Result {
	if results == nil {
		return []Result{}
	}
	return results
}
