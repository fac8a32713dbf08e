package store

import (
	"strings"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"github.com/kart-io/chunkflow/pkg/errors"
)

// NormalizeTags trims names, drops blanks and duplicates, keeping first-seen order.
func NormalizeTags(tags []string) []string {
	if tags == nil {
		return nil
	}
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

func tagArray(tags []string) pq.StringArray {
	if tags == nil {
		return nil
	}
	return pq.StringArray(NormalizeTags(tags))
}

func toVector(embedding []float32, dim int) (pgvector.Vector, error) {
	if len(embedding) != dim {
		return pgvector.Vector{}, errors.ErrInvalidEmbedding.WithMessagef("embedding must have %d dimensions, got %d", dim, len(embedding))
	}
	return pgvector.NewVector(embedding), nil
}

// CheckVector rejects a vector whose length is not dim.
func CheckVector(v pgvector.Vector, dim int) error {
	if n := len(v.Slice()); n != dim {
		return errors.ErrInvalidEmbedding.WithMessagef("embedding must have %d dimensions, got %d", dim, n)
	}
	return nil
}
