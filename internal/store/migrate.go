package store

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/kart-io/chunkflow/internal/model"
	"github.com/kart-io/logger"
)

var extensionStatements = []string{
	`CREATE EXTENSION IF NOT EXISTS vector`,
	`CREATE EXTENSION IF NOT EXISTS pgcrypto`,
}

var schemaStatements = []string{
	addForeignKey("chunks", constraintChunkDocumentFK, "document_id", "documents"),
	addForeignKey("chunk_components", constraintComponentChunkFK, "chunk_id", "chunks"),

	`CREATE INDEX IF NOT EXISTS chunks_embedding_idx ON chunks USING hnsw (embedding vector_cosine_ops)`,
	`CREATE INDEX IF NOT EXISTS chunk_components_embedding_idx ON chunk_components USING hnsw (embedding vector_cosine_ops)`,
	`CREATE INDEX IF NOT EXISTS chunks_tags_idx ON chunks USING GIN (tags)`,

	`CREATE OR REPLACE FUNCTION validate_chunk_tags() RETURNS TRIGGER AS $$
DECLARE
	invalid_tags TEXT[];
BEGIN
	IF NEW.tags IS NOT NULL THEN
		SELECT ARRAY_AGG(DISTINCT t ORDER BY t) INTO invalid_tags
		FROM UNNEST(NEW.tags) AS t
		WHERE NOT EXISTS (SELECT 1 FROM tags WHERE name = t);

		IF invalid_tags IS NOT NULL AND array_length(invalid_tags, 1) > 0 THEN
			RAISE EXCEPTION 'Tags not found in tags table: %', array_to_string(invalid_tags, ', ')
				USING DETAIL = array_to_json(invalid_tags)::text;
		END IF;
	END IF;
	RETURN NEW;
END;
$$ LANGUAGE plpgsql`,

	`DROP TRIGGER IF EXISTS validate_chunk_tags_trigger ON chunks`,
	`CREATE TRIGGER validate_chunk_tags_trigger
BEFORE INSERT OR UPDATE OF tags ON chunks
FOR EACH ROW EXECUTE FUNCTION validate_chunk_tags()`,
}

func addForeignKey(table, name, column, ref string) string {
	return fmt.Sprintf(`DO $$
BEGIN
	IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = '%[2]s') THEN
		ALTER TABLE %[1]s ADD CONSTRAINT %[2]s FOREIGN KEY (%[3]s) REFERENCES %[4]s(id) ON DELETE CASCADE;
	END IF;
END
$$`, table, name, column, ref)
}

// Migrate creates or upgrades the schema: extensions, tables, cascading
// foreign keys, vector and tag indexes, and the tag validation trigger.
// It is safe to run repeatedly.
func Migrate(ctx context.Context, db *gorm.DB) error {
	db = db.WithContext(ctx)

	for _, stmt := range extensionStatements {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("create extension: %w", err)
		}
	}

	if err := db.AutoMigrate(
		&model.Document{},
		&model.Tag{},
		&model.Chunk{},
		&model.ChunkComponent{},
	); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}

	for _, stmt := range schemaStatements {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("migrate schema: %w", err)
		}
	}

	logger.Infow("Database schema migrated", "tables", []string{"documents", "tags", "chunks", "chunk_components"})
	return nil
}
