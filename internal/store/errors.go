package store

import (
	stderrors "errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/kart-io/chunkflow/pkg/errors"
	"github.com/kart-io/chunkflow/pkg/utils/json"
)

// Postgres SQLSTATE codes the store maps to domain errors.
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgRaiseException      = "P0001"
	pgDataException       = "22000"
	pgInvalidTextRep      = "22P02"
)

// Constraint names created by Migrate.
const (
	constraintChunkIndexUnique     = "chunks_document_id_chunk_index_unique"
	constraintComponentIndexUnique = "chunk_components_chunk_id_component_index_unique"
	constraintTagNameUnique        = "tags_name_unique"
	constraintChunkDocumentFK      = "chunks_document_id_fkey"
	constraintComponentChunkFK     = "chunk_components_chunk_id_fkey"
)

const unknownTagMessage = "Tags not found in tags table"

// UnknownTagError reports every tag name that is not in the registry.
type UnknownTagError struct {
	Tags  []string
	errno *errors.Errno
}

// NewUnknownTagError builds an UnknownTagError over the sorted, de-duplicated names.
func NewUnknownTagError(tags []string) *UnknownTagError {
	sorted := sets.List(sets.New(tags...))
	return &UnknownTagError{
		Tags:  sorted,
		errno: errors.ErrUnknownTag.WithMessagef("%s: %s", unknownTagMessage, strings.Join(sorted, ", ")),
	}
}

func (e *UnknownTagError) Error() string {
	return e.errno.Error()
}

// Unwrap exposes the errno so errors.Is(err, errors.ErrUnknownTag) holds.
func (e *UnknownTagError) Unwrap() error {
	return e.errno
}

// translate maps gorm and Postgres errors onto errnos. notFound is returned
// for gorm.ErrRecordNotFound.
func translate(err error, notFound *errors.Errno) error {
	if err == nil {
		return nil
	}
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return notFound
	}
	var errno *errors.Errno
	if stderrors.As(err, &errno) {
		return err
	}

	var pgErr *pgconn.PgError
	if !stderrors.As(err, &pgErr) {
		return errors.ErrDatabase.WithCause(err)
	}

	switch pgErr.Code {
	case pgUniqueViolation:
		switch pgErr.ConstraintName {
		case constraintChunkIndexUnique:
			return errors.ErrDuplicateChunkIndex.WithCause(err)
		case constraintComponentIndexUnique:
			return errors.ErrDuplicateComponentIndex.WithCause(err)
		case constraintTagNameUnique:
			return errors.ErrTagExists.WithCause(err)
		}
		return errors.ErrConflict.WithCause(err)
	case pgForeignKeyViolation:
		switch pgErr.ConstraintName {
		case constraintChunkDocumentFK:
			return errors.ErrDocumentNotFound.WithCause(err)
		case constraintComponentChunkFK:
			return errors.ErrChunkNotFound.WithCause(err)
		}
		return errors.ErrConflict.WithCause(err)
	case pgRaiseException:
		if strings.HasPrefix(pgErr.Message, unknownTagMessage) {
			return NewUnknownTagError(unknownTagsFrom(pgErr))
		}
	case pgDataException, pgInvalidTextRep:
		if strings.Contains(pgErr.Message, "dimensions") || strings.Contains(pgErr.Message, "vector") {
			return errors.ErrInvalidEmbedding.WithCause(err)
		}
		if pgErr.Code == pgInvalidTextRep && strings.Contains(pgErr.Message, "uuid") {
			return notFound
		}
	}
	return errors.ErrDatabase.WithCause(err)
}

// unknownTagsFrom reads the offending names from the trigger exception. The
// detail carries them as a JSON array; the message is the fallback.
func unknownTagsFrom(pgErr *pgconn.PgError) []string {
	var tags []string
	if pgErr.Detail != "" && json.Unmarshal([]byte(pgErr.Detail), &tags) == nil && len(tags) > 0 {
		return tags
	}

	_, list, ok := strings.Cut(pgErr.Message, ":")
	if !ok {
		return nil
	}
	list = strings.Trim(strings.TrimSpace(list), "{}")
	for _, t := range strings.Split(list, ",") {
		t = strings.Trim(strings.TrimSpace(t), `"`)
		if t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}
