package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

type PgVectorStore struct {
	db *pgxpool.Pool
}

func NewPgVectorStore(db *pgxpool.Pool) *PgVectorStore {
	return &PgVectorStore{db: db}
}

// EnsureCollection registers the domain collection, create-or-get
// semantics. Chunk rows reference it by domain name.
func (s *PgVectorStore) EnsureCollection(ctx context.Context, domain string) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO knowledge_collections (domain) VALUES ($1)
		 ON CONFLICT (domain) DO NOTHING`,
		domain,
	)
	if err != nil {
		return fmt.Errorf("ensure collection %s: %w", domain, err)
	}
	return nil
}

func (s *PgVectorStore) HasCollection(ctx context.Context, domain string) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM knowledge_collections WHERE domain = $1)", domain,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check collection %s: %w", domain, err)
	}
	return exists, nil
}

func (s *PgVectorStore) Upsert(ctx context.Context, chunks []Chunk) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, c := range chunks {
		id := c.ID
		if id == uuid.Nil {
			id = uuid.New()
		}

		metadata, err := json.Marshal(c.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata for chunk %d: %w", c.ChunkIndex, err)
		}

		embedding := pgvector.NewVector(c.Embedding)

		_, err = tx.Exec(ctx,
			`INSERT INTO knowledge_chunks (id, domain, source_url, chunk_type, chunk_index, content, embedding, quality_score, token_count, metadata)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			 ON CONFLICT (id) DO UPDATE SET content = $6, embedding = $7, quality_score = $8, token_count = $9, metadata = $10`,
			id, c.Domain, c.SourceURL, c.ChunkType, c.ChunkIndex, c.Content, embedding, c.QualityScore, c.TokenCount, metadata,
		)
		if err != nil {
			return fmt.Errorf("upsert chunk %d: %w", c.ChunkIndex, err)
		}
	}

	return tx.Commit(ctx)
}

func (s *PgVectorStore) SimilaritySearch(ctx context.Context, query []float32, opts SearchOptions) ([]SearchResult, error) {
	if opts.TopK <= 0 {
		opts.TopK = 10
	}

	embedding := pgvector.NewVector(query)

	sql := `SELECT id, domain, source_url, chunk_type, content, chunk_index, quality_score, metadata,
	               1 - (embedding <=> $1) AS score
	        FROM knowledge_chunks
	        WHERE domain = $2`
	args := []interface{}{embedding, opts.Domain}

	if len(opts.Metadata) > 0 {
		filter, err := json.Marshal(opts.Metadata)
		if err != nil {
			return nil, fmt.Errorf("marshal metadata filter: %w", err)
		}
		sql += " AND metadata @> $3"
		args = append(args, filter)
	}

	sql += fmt.Sprintf(" ORDER BY embedding <=> $1 LIMIT $%d", len(args)+1)
	args = append(args, opts.TopK)

	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("similarity search: %w", err)
	}
	defer rows.Close()

	return scanResults(rows, opts.MinScore)
}

func (s *PgVectorStore) HybridSearch(ctx context.Context, query string, queryVec []float32, opts SearchOptions) ([]SearchResult, error) {
	if opts.TopK <= 0 {
		opts.TopK = 10
	}

	embedding := pgvector.NewVector(queryVec)

	// Hybrid: combine vector similarity with keyword (FTS) ranking
	rows, err := s.db.Query(ctx,
		`WITH vector_results AS (
			SELECT id, domain, source_url, chunk_type, content, chunk_index, quality_score, metadata,
			       1 - (embedding <=> $1) AS vector_score
			FROM knowledge_chunks
			WHERE domain = $2
			ORDER BY embedding <=> $1
			LIMIT $3 * 2
		),
		keyword_results AS (
			SELECT id, domain, source_url, chunk_type, content, chunk_index, quality_score, metadata,
			       ts_rank(tsv, plainto_tsquery('english', $4)) AS keyword_score
			FROM knowledge_chunks
			WHERE domain = $2 AND tsv @@ plainto_tsquery('english', $4)
			LIMIT $3 * 2
		)
		SELECT COALESCE(v.id, k.id) AS id,
		       COALESCE(v.domain, k.domain) AS domain,
		       COALESCE(v.source_url, k.source_url) AS source_url,
		       COALESCE(v.chunk_type, k.chunk_type) AS chunk_type,
		       COALESCE(v.content, k.content) AS content,
		       COALESCE(v.chunk_index, k.chunk_index) AS chunk_index,
		       COALESCE(v.quality_score, k.quality_score) AS quality_score,
		       COALESCE(v.metadata, k.metadata) AS metadata,
		       (COALESCE(v.vector_score, 0) * 0.7 + COALESCE(k.keyword_score, 0) * 0.3) AS score
		FROM vector_results v
		FULL OUTER JOIN keyword_results k ON v.id = k.id
		ORDER BY score DESC
		LIMIT $3`,
		embedding, opts.Domain, opts.TopK, query,
	)
	if err != nil {
		return nil, fmt.Errorf("hybrid search: %w", err)
	}
	defer rows.Close()

	return scanResults(rows, opts.MinScore)
}

func (s *PgVectorStore) DeleteCollection(ctx context.Context, domain string) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "DELETE FROM knowledge_chunks WHERE domain = $1", domain); err != nil {
		return fmt.Errorf("delete chunks for %s: %w", domain, err)
	}
	if _, err := tx.Exec(ctx, "DELETE FROM knowledge_collections WHERE domain = $1", domain); err != nil {
		return fmt.Errorf("delete collection %s: %w", domain, err)
	}

	return tx.Commit(ctx)
}

type pgRows interface {
	Next() bool
	Scan(dest ...interface{}) error
}

func scanResults(rows pgRows, minScore float64) ([]SearchResult, error) {
	var results []SearchResult
	for rows.Next() {
		var r SearchResult
		var metadata []byte
		if err := rows.Scan(&r.ChunkID, &r.Domain, &r.SourceURL, &r.ChunkType, &r.Content, &r.ChunkIndex, &r.QualityScore, &metadata, &r.Score); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &r.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal metadata: %w", err)
			}
		}
		if minScore > 0 && r.Score < minScore {
			continue
		}
		results = append(results, r)
	}
	return results, nil
}
