// Package lexicalindex adapts a SQLite FTS5 virtual table to the
// query core's ports.LexicalIndex interface. Adapted from
// internal/kb/searcher.go (Searcher.Search/prepareFTSQuery/
// buildSearchSQL), trimmed to the single-table BM25 query the core
// needs; the source/MIME-type filtering and snippet highlighting the
// teacher builds for its knowledge-base browser are dropped since
// retrieval fusion only needs a scored source list. No example-pack
// repo imports a lexical-search library such as blevesearch/bleve;
// FTS5-over-SQLite is the only lexical-search grounding in the corpus.
package lexicalindex

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"github.com/hybridrag/queryengine/internal/query/model"
)

const createTableSQL = `
CREATE VIRTUAL TABLE IF NOT EXISTS chunks_fts USING fts5(
	chunk_id UNINDEXED,
	document_id UNINDEXED,
	document_name UNINDEXED,
	text
);
`

// Adapter performs BM25 keyword search over an FTS5 virtual table.
type Adapter struct {
	db     *sql.DB
	logger zerolog.Logger
}

// Open creates (or attaches to) the FTS5 table at path.
func Open(path string, logger zerolog.Logger) (*Adapter, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if _, err := db.Exec(createTableSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("create fts5 table: %w", err)
	}
	return &Adapter{db: db, logger: logger.With().Str("component", "lexicalindex").Logger()}, nil
}

// Close releases the underlying database handle.
func (a *Adapter) Close() error {
	return a.db.Close()
}

// Index stores or replaces a chunk's searchable text.
func (a *Adapter) Index(ctx context.Context, source model.Source) error {
	_, err := a.db.ExecContext(ctx,
		`DELETE FROM chunks_fts WHERE chunk_id = ?`, source.ChunkID)
	if err != nil {
		return fmt.Errorf("delete existing chunk: %w", err)
	}
	_, err = a.db.ExecContext(ctx,
		`INSERT INTO chunks_fts (chunk_id, document_id, document_name, text) VALUES (?, ?, ?, ?)`,
		source.ChunkID, source.DocumentID, source.DocumentName, source.Text)
	if err != nil {
		return fmt.Errorf("insert chunk: %w", err)
	}
	return nil
}

// prepareQuery builds an FTS5 MATCH expression: AND-joined terms with
// prefix matching on the final term.
func prepareQuery(query string) string {
	terms := strings.Fields(query)
	if len(terms) == 0 {
		return ""
	}
	for i, t := range terms {
		t = strings.ReplaceAll(t, `"`, `""`)
		if i == len(terms)-1 {
			t += "*"
		}
		terms[i] = t
	}
	return strings.Join(terms, " ")
}

// Search implements ports.LexicalIndex. BM25 returns negative scores
// (lower is more relevant); results are normalized to the core's
// higher-is-better scale before being returned.
func (a *Adapter) Search(ctx context.Context, text string, topK int) ([]model.Source, error) {
	ftsQuery := prepareQuery(text)
	if ftsQuery == "" {
		return nil, nil
	}
	if topK <= 0 {
		topK = 10
	}

	rows, err := a.db.QueryContext(ctx, `
		SELECT chunk_id, document_id, document_name, text, bm25(chunks_fts)
		FROM chunks_fts
		WHERE chunks_fts MATCH ?
		ORDER BY bm25(chunks_fts) ASC
		LIMIT ?
	`, ftsQuery, topK)
	if err != nil {
		return nil, fmt.Errorf("fts5 search failed: %w", err)
	}
	defer rows.Close()

	var sources []model.Source
	for rows.Next() {
		var s model.Source
		var bm25Score float64
		if err := rows.Scan(&s.ChunkID, &s.DocumentID, &s.DocumentName, &s.Text, &bm25Score); err != nil {
			a.logger.Warn().Err(err).Msg("scan fts5 row")
			continue
		}
		s.Score = normalizeBM25(bm25Score)
		sources = append(sources, s)
	}
	return sources, rows.Err()
}

// normalizeBM25 maps SQLite's negative BM25 score onto [0, 1), where
// values closer to 1 indicate a stronger match.
func normalizeBM25(score float64) float64 {
	v := -score
	if v < 0 {
		v = 0
	}
	return v / (v + 1)
}
