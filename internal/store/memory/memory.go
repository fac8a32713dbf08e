// Package memory is an in-process store.Factory for tests. It enforces the
// same constraints as the Postgres store: unique indexes, cascading
// deletes, the tag registry check and status transitions. Similarity is exact cosine, so
// results match the HNSW index only up to its approximate recall.
package memory

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"

	"github.com/kart-io/chunkflow/internal/model"
	"github.com/kart-io/chunkflow/internal/store"
	"github.com/kart-io/chunkflow/pkg/errors"
)

type state struct {
	docs       map[string]*model.Document
	chunks     map[string]*model.Chunk
	components map[string]*model.ChunkComponent
	tags       map[int64]*model.Tag
	order      map[string]int64
	nextTagID  int64
	seq        int64
}

func newState() *state {
	return &state{
		docs:       make(map[string]*model.Document),
		chunks:     make(map[string]*model.Chunk),
		components: make(map[string]*model.ChunkComponent),
		tags:       make(map[int64]*model.Tag),
		order:      make(map[string]int64),
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.docs {
		d := *v
		c.docs[k] = &d
	}
	for k, v := range s.chunks {
		ch := *v
		c.chunks[k] = &ch
	}
	for k, v := range s.components {
		cc := *v
		c.components[k] = &cc
	}
	for k, v := range s.tags {
		t := *v
		c.tags[k] = &t
	}
	for k, v := range s.order {
		c.order[k] = v
	}
	c.nextTagID = s.nextTagID
	c.seq = s.seq
	return c
}

// Store is an in-memory store.Factory.
type Store struct {
	mu  *sync.Mutex
	st  *state
	now func() time.Time
}

var _ store.Factory = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{mu: &sync.Mutex{}, st: newState(), now: time.Now}
}

// Documents implements store.Factory.
func (s *Store) Documents() store.DocumentStore { return &documents{s} }

// Chunks implements store.Factory.
func (s *Store) Chunks() store.ChunkStore { return &chunks{s} }

// Components implements store.Factory.
func (s *Store) Components() store.ComponentStore { return &components{s} }

// Tags implements store.Factory.
func (s *Store) Tags() store.TagStore { return &tags{s} }

// TX runs fn against a copy of the data and publishes the copy only if fn
// succeeds. Transactions are serialized with every other operation, so fn
// must use tx rather than s.
func (s *Store) TX(ctx context.Context, fn func(ctx context.Context, tx store.Factory) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &Store{mu: &sync.Mutex{}, st: s.st.clone(), now: s.now}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	s.st = tx.st
	return nil
}

// DB returns nil: there is no database behind the memory store.
func (s *Store) DB() *gorm.DB { return nil }

// Close implements store.Factory.
func (s *Store) Close() error { return nil }

func (s *Store) lock() *state {
	s.mu.Lock()
	return s.st
}

func (s *Store) unlock() {
	s.mu.Unlock()
}

func (st *state) stamp(id string, t *time.Time, now time.Time) {
	st.seq++
	st.order[id] = st.seq
	if t.IsZero() {
		*t = now
	}
}

// checkTags enforces the registry trigger: every tag must exist.
func (st *state) checkTags(tags []string) error {
	if len(tags) == 0 {
		return nil
	}
	known := make(map[string]struct{}, len(st.tags))
	for _, t := range st.tags {
		known[t.Name] = struct{}{}
	}
	var missing []string
	for _, t := range tags {
		if _, ok := known[t]; !ok {
			missing = append(missing, t)
		}
	}
	if len(missing) > 0 {
		return store.NewUnknownTagError(missing)
	}
	return nil
}

func (st *state) tagByName(name string) *model.Tag {
	for _, t := range st.tags {
		if t.Name == name {
			return t
		}
	}
	return nil
}

// cosine returns the cosine similarity of a and b, or 0 when either is a
// zero vector or their lengths differ.
func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// newer reports whether the row (ta, a) sorts before (tb, b) newest first.
func (st *state) newer(ta time.Time, a string, tb time.Time, b string) bool {
	if !ta.Equal(tb) {
		return ta.After(tb)
	}
	return st.order[a] > st.order[b]
}

type documents struct{ s *Store }

func (d *documents) Create(_ context.Context, doc *model.Document) error {
	st := d.s.lock()
	defer d.s.unlock()

	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	if _, ok := st.docs[doc.ID]; ok {
		return errors.ErrConflict.WithMessagef("document %s already exists", doc.ID)
	}
	if doc.Status == "" {
		doc.Status = model.DocumentStatusPending
	}
	if !doc.Status.IsValid() {
		return errors.ErrInvalidStatus.WithMessagef("unknown status %q", doc.Status)
	}
	st.stamp(doc.ID, &doc.CreatedAt, d.s.now())
	cp := *doc
	st.docs[doc.ID] = &cp
	return nil
}

func (d *documents) Get(_ context.Context, id string) (*model.Document, error) {
	st := d.s.lock()
	defer d.s.unlock()

	doc, ok := st.docs[id]
	if !ok {
		return nil, errors.ErrDocumentNotFound
	}
	cp := *doc
	return &cp, nil
}

func (d *documents) ListByUser(_ context.Context, userID string) ([]*model.Document, error) {
	st := d.s.lock()
	defer d.s.unlock()

	out := []*model.Document{}
	for _, doc := range st.docs {
		if doc.UserID == userID {
			cp := *doc
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return st.newer(out[i].CreatedAt, out[i].ID, out[j].CreatedAt, out[j].ID)
	})
	return out, nil
}

func (d *documents) Delete(_ context.Context, id string) (*store.DeleteResult, error) {
	st := d.s.lock()
	defer d.s.unlock()

	if _, ok := st.docs[id]; !ok {
		return nil, errors.ErrDocumentNotFound
	}
	res := &store.DeleteResult{}
	for cid, c := range st.chunks {
		if c.DocumentID != id {
			continue
		}
		res.Components += st.deleteComponentsOf(cid)
		delete(st.chunks, cid)
		res.Chunks++
	}
	delete(st.docs, id)
	return res, nil
}

func (d *documents) UpdateStatus(_ context.Context, id string, status model.DocumentStatus, errMsg string) (*model.Document, error) {
	st := d.s.lock()
	defer d.s.unlock()

	doc, ok := st.docs[id]
	if !ok {
		return nil, errors.ErrDocumentNotFound
	}
	cp := *doc
	if err := cp.Transition(status, errMsg); err != nil {
		return nil, err
	}
	st.docs[id] = &cp
	out := cp
	return &out, nil
}

func (st *state) deleteComponentsOf(chunkID string) int64 {
	var n int64
	for id, cc := range st.components {
		if cc.ChunkID == chunkID {
			delete(st.components, id)
			n++
		}
	}
	return n
}

type chunks struct{ s *Store }

func (st *state) insertChunk(c *model.Chunk, now time.Time) error {
	if err := store.CheckVector(c.Embedding, model.ChunkEmbeddingDim); err != nil {
		return err
	}
	if _, ok := st.docs[c.DocumentID]; !ok {
		return errors.ErrDocumentNotFound
	}
	if c.Tags != nil {
		c.Tags = store.NormalizeTags(c.Tags)
	}
	if err := st.checkTags(c.Tags); err != nil {
		return err
	}
	if st.chunkAt(c.DocumentID, c.ChunkIndex) != nil {
		return errors.ErrDuplicateChunkIndex.WithMessagef("chunk %d of document %s already exists", c.ChunkIndex, c.DocumentID)
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	st.stamp(c.ID, &c.CreatedAt, now)
	cp := *c
	st.chunks[c.ID] = &cp
	return nil
}

func (st *state) chunkAt(documentID string, index int) *model.Chunk {
	for _, c := range st.chunks {
		if c.DocumentID == documentID && c.ChunkIndex == index {
			return c
		}
	}
	return nil
}

func (c *chunks) Create(_ context.Context, chunk *model.Chunk) error {
	st := c.s.lock()
	defer c.s.unlock()
	return st.insertChunk(chunk, c.s.now())
}

// CreateBulk is atomic: a failing row leaves the store unchanged.
func (c *chunks) CreateBulk(_ context.Context, cs []*model.Chunk) error {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()

	work := c.s.st.clone()
	for _, ch := range cs {
		if err := work.insertChunk(ch, c.s.now()); err != nil {
			return err
		}
	}
	c.s.st = work
	return nil
}

func (c *chunks) CreateBulkIgnoreExisting(_ context.Context, cs []*model.Chunk) (int64, error) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()

	work := c.s.st.clone()
	var inserted int64
	for _, ch := range cs {
		if work.chunkAt(ch.DocumentID, ch.ChunkIndex) != nil {
			continue
		}
		if err := work.insertChunk(ch, c.s.now()); err != nil {
			return 0, err
		}
		inserted++
	}
	c.s.st = work
	return inserted, nil
}

func (c *chunks) Get(_ context.Context, id string) (*model.Chunk, error) {
	st := c.s.lock()
	defer c.s.unlock()

	ch, ok := st.chunks[id]
	if !ok {
		return nil, errors.ErrChunkNotFound
	}
	cp := *ch
	return &cp, nil
}

func (c *chunks) ListByDocument(_ context.Context, documentID string) ([]*model.Chunk, error) {
	st := c.s.lock()
	defer c.s.unlock()

	out := []*model.Chunk{}
	for _, ch := range st.chunks {
		if ch.DocumentID == documentID {
			cp := *ch
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChunkIndex < out[j].ChunkIndex })
	return out, nil
}

func (c *chunks) Update(_ context.Context, id string, patch model.ChunkPatch) (*model.Chunk, error) {
	st := c.s.lock()
	defer c.s.unlock()

	ch, ok := st.chunks[id]
	if !ok {
		return nil, errors.ErrChunkNotFound
	}
	cp := *ch
	if patch.Content != nil {
		cp.Content = *patch.Content
	}
	if patch.Embedding != nil {
		v := pgvector.NewVector(patch.Embedding)
		if err := store.CheckVector(v, model.ChunkEmbeddingDim); err != nil {
			return nil, err
		}
		cp.Embedding = v
	}
	if patch.Tags != nil {
		tags := store.NormalizeTags(*patch.Tags)
		if err := st.checkTags(tags); err != nil {
			return nil, err
		}
		cp.Tags = tags
	}
	st.chunks[id] = &cp
	out := cp
	return &out, nil
}

func (c *chunks) Delete(_ context.Context, id string) error {
	st := c.s.lock()
	defer c.s.unlock()

	if _, ok := st.chunks[id]; !ok {
		return errors.ErrChunkNotFound
	}
	st.deleteComponentsOf(id)
	delete(st.chunks, id)
	return nil
}

func (c *chunks) DeleteByDocument(_ context.Context, documentID string) (int64, error) {
	st := c.s.lock()
	defer c.s.unlock()

	var n int64
	for id, ch := range st.chunks {
		if ch.DocumentID == documentID {
			st.deleteComponentsOf(id)
			delete(st.chunks, id)
			n++
		}
	}
	return n, nil
}

func (c *chunks) GetTags(ctx context.Context, id string) ([]string, error) {
	ch, err := c.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if ch.Tags == nil {
		return []string{}, nil
	}
	return ch.Tags, nil
}

func (c *chunks) SetTags(ctx context.Context, id string, tags []string) (*model.Chunk, error) {
	if tags == nil {
		tags = []string{}
	}
	return c.Update(ctx, id, model.ChunkPatch{Tags: &tags})
}

func (c *chunks) AddTags(ctx context.Context, id string, tags []string) (*model.Chunk, error) {
	cur, err := c.GetTags(ctx, id)
	if err != nil {
		return nil, err
	}
	merged := append(append([]string{}, cur...), tags...)
	return c.Update(ctx, id, model.ChunkPatch{Tags: &merged})
}

func (c *chunks) RemoveTags(ctx context.Context, id string, tags []string) (*model.Chunk, error) {
	cur, err := c.GetTags(ctx, id)
	if err != nil {
		return nil, err
	}
	drop := make(map[string]struct{}, len(tags))
	for _, t := range store.NormalizeTags(tags) {
		drop[t] = struct{}{}
	}
	kept := []string{}
	for _, t := range cur {
		if _, ok := drop[t]; !ok {
			kept = append(kept, t)
		}
	}
	return c.Update(ctx, id, model.ChunkPatch{Tags: &kept})
}

func (c *chunks) SearchSimilar(_ context.Context, q store.SimilarityQuery) ([]*model.ScoredChunk, error) {
	q = q.Normalize()
	if err := store.CheckVector(pgvector.NewVector(q.Embedding), model.ChunkEmbeddingDim); err != nil {
		return nil, err
	}

	st := c.s.lock()
	defer c.s.unlock()
	return st.scoreChunks(q, nil), nil
}

func (c *chunks) SearchSimilarWithDocumentInfo(_ context.Context, q store.SimilarityQuery) ([]*model.ScoredChunkWithDocument, error) {
	q = q.Normalize()
	if err := store.CheckVector(pgvector.NewVector(q.Embedding), model.ChunkEmbeddingDim); err != nil {
		return nil, err
	}

	st := c.s.lock()
	defer c.s.unlock()

	completed := func(ch *model.Chunk) bool {
		doc, ok := st.docs[ch.DocumentID]
		return ok && doc.Status == model.DocumentStatusCompleted
	}
	scored := st.scoreChunks(q, completed)
	out := make([]*model.ScoredChunkWithDocument, 0, len(scored))
	for _, sc := range scored {
		doc := st.docs[sc.DocumentID]
		out = append(out, &model.ScoredChunkWithDocument{ScoredChunk: *sc, Filename: doc.Filename, MimeType: doc.MimeType})
	}
	return out, nil
}

func (st *state) scoreChunks(q store.SimilarityQuery, keep func(*model.Chunk) bool) []*model.ScoredChunk {
	out := []*model.ScoredChunk{}
	for _, ch := range st.chunks {
		if keep != nil && !keep(ch) {
			continue
		}
		sim := cosine(ch.Embedding.Slice(), q.Embedding)
		if sim < q.Threshold {
			continue
		}
		out = append(out, &model.ScoredChunk{Chunk: *ch, Similarity: sim})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Similarity != out[j].Similarity {
			return out[i].Similarity > out[j].Similarity
		}
		return st.newer(out[i].CreatedAt, out[i].ID, out[j].CreatedAt, out[j].ID)
	})
	if len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out
}

func (c *chunks) SearchByTags(_ context.Context, q store.TagQuery) ([]*model.Chunk, error) {
	want := store.NormalizeTags(q.Tags)
	out := []*model.Chunk{}
	if len(want) == 0 {
		return out, nil
	}
	limit := q.Limit
	if limit <= 0 {
		limit = store.DefaultTagSearchLimit
	}

	st := c.s.lock()
	defer c.s.unlock()

	for _, ch := range st.chunks {
		if matchTags(ch.Tags, want, q.MatchAll) {
			cp := *ch
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return st.newer(out[i].CreatedAt, out[i].ID, out[j].CreatedAt, out[j].ID)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func matchTags(have, want []string, all bool) bool {
	set := make(map[string]struct{}, len(have))
	for _, t := range have {
		set[t] = struct{}{}
	}
	for _, t := range want {
		_, ok := set[t]
		if all && !ok {
			return false
		}
		if !all && ok {
			return true
		}
	}
	return all
}

type components struct{ s *Store }

func (st *state) insertComponent(cc *model.ChunkComponent, now time.Time) error {
	if err := store.CheckVector(cc.Embedding, model.ComponentEmbeddingDim); err != nil {
		return err
	}
	if _, ok := st.chunks[cc.ChunkID]; !ok {
		return errors.ErrChunkNotFound
	}
	if st.componentAt(cc.ChunkID, cc.ComponentIndex) != nil {
		return errors.ErrDuplicateComponentIndex.WithMessagef("component %d of chunk %s already exists", cc.ComponentIndex, cc.ChunkID)
	}
	if cc.ID == "" {
		cc.ID = uuid.NewString()
	}
	st.stamp(cc.ID, &cc.CreatedAt, now)
	cp := *cc
	st.components[cc.ID] = &cp
	return nil
}

func (st *state) componentAt(chunkID string, index int) *model.ChunkComponent {
	for _, cc := range st.components {
		if cc.ChunkID == chunkID && cc.ComponentIndex == index {
			return cc
		}
	}
	return nil
}

func (c *components) Create(_ context.Context, cc *model.ChunkComponent) error {
	st := c.s.lock()
	defer c.s.unlock()
	return st.insertComponent(cc, c.s.now())
}

func (c *components) CreateBulk(_ context.Context, cs []*model.ChunkComponent) error {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()

	work := c.s.st.clone()
	for _, cc := range cs {
		if err := work.insertComponent(cc, c.s.now()); err != nil {
			return err
		}
	}
	c.s.st = work
	return nil
}

func (c *components) CreateBulkIgnoreExisting(_ context.Context, cs []*model.ChunkComponent) (int64, error) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()

	work := c.s.st.clone()
	var inserted int64
	for _, cc := range cs {
		if work.componentAt(cc.ChunkID, cc.ComponentIndex) != nil {
			continue
		}
		if err := work.insertComponent(cc, c.s.now()); err != nil {
			return 0, err
		}
		inserted++
	}
	c.s.st = work
	return inserted, nil
}

func (c *components) Get(_ context.Context, id string) (*model.ChunkComponent, error) {
	st := c.s.lock()
	defer c.s.unlock()

	cc, ok := st.components[id]
	if !ok {
		return nil, errors.ErrComponentNotFound
	}
	cp := *cc
	return &cp, nil
}

func (c *components) ListByChunk(_ context.Context, chunkID string) ([]*model.ChunkComponent, error) {
	st := c.s.lock()
	defer c.s.unlock()

	out := []*model.ChunkComponent{}
	for _, cc := range st.components {
		if cc.ChunkID == chunkID {
			cp := *cc
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ComponentIndex < out[j].ComponentIndex })
	return out, nil
}

func (c *components) Update(_ context.Context, id string, patch model.ComponentPatch) (*model.ChunkComponent, error) {
	st := c.s.lock()
	defer c.s.unlock()

	cc, ok := st.components[id]
	if !ok {
		return nil, errors.ErrComponentNotFound
	}
	cp := *cc
	if patch.Content != nil {
		cp.Content = *patch.Content
	}
	if patch.Embedding != nil {
		v := pgvector.NewVector(patch.Embedding)
		if err := store.CheckVector(v, model.ComponentEmbeddingDim); err != nil {
			return nil, err
		}
		cp.Embedding = v
	}
	st.components[id] = &cp
	out := cp
	return &out, nil
}

func (c *components) Delete(_ context.Context, id string) error {
	st := c.s.lock()
	defer c.s.unlock()

	if _, ok := st.components[id]; !ok {
		return errors.ErrComponentNotFound
	}
	delete(st.components, id)
	return nil
}

func (c *components) DeleteByChunk(_ context.Context, chunkID string) (int64, error) {
	st := c.s.lock()
	defer c.s.unlock()
	return st.deleteComponentsOf(chunkID), nil
}

func (c *components) SearchSimilar(_ context.Context, q store.SimilarityQuery) ([]*model.ScoredComponent, error) {
	q = q.Normalize()
	if err := store.CheckVector(pgvector.NewVector(q.Embedding), model.ComponentEmbeddingDim); err != nil {
		return nil, err
	}

	st := c.s.lock()
	defer c.s.unlock()

	out := []*model.ScoredComponent{}
	for _, cc := range st.components {
		sim := cosine(cc.Embedding.Slice(), q.Embedding)
		if sim >= q.Threshold {
			out = append(out, &model.ScoredComponent{ChunkComponent: *cc, Similarity: sim})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Similarity != out[j].Similarity {
			return out[i].Similarity > out[j].Similarity
		}
		return st.newer(out[i].CreatedAt, out[i].ID, out[j].CreatedAt, out[j].ID)
	})
	if len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

type tags struct{ s *Store }

func (t *tags) List(_ context.Context, search string) ([]*model.Tag, error) {
	st := t.s.lock()
	defer t.s.unlock()

	needle := strings.ToLower(strings.TrimSpace(search))
	out := []*model.Tag{}
	for _, tag := range st.tags {
		if needle == "" || strings.Contains(strings.ToLower(tag.Name), needle) {
			cp := *tag
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (t *tags) Get(_ context.Context, id int64) (*model.Tag, error) {
	st := t.s.lock()
	defer t.s.unlock()

	tag, ok := st.tags[id]
	if !ok {
		return nil, errors.ErrTagNotFound
	}
	cp := *tag
	return &cp, nil
}

func (t *tags) GetByName(_ context.Context, name string) (*model.Tag, error) {
	st := t.s.lock()
	defer t.s.unlock()

	tag := st.tagByName(strings.TrimSpace(name))
	if tag == nil {
		return nil, errors.ErrTagNotFound
	}
	cp := *tag
	return &cp, nil
}

func (t *tags) Create(_ context.Context, name string) (*model.Tag, error) {
	st := t.s.lock()
	defer t.s.unlock()

	name = strings.TrimSpace(name)
	if st.tagByName(name) != nil {
		return nil, errors.ErrTagExists.WithMessagef("tag %q already exists", name)
	}
	st.nextTagID++
	tag := &model.Tag{ID: st.nextTagID, Name: name, CreatedAt: t.s.now()}
	st.tags[tag.ID] = tag
	cp := *tag
	return &cp, nil
}

func (t *tags) CreateIfNotExists(ctx context.Context, name string) (*model.Tag, error) {
	tag, err := t.Create(ctx, name)
	if err == nil {
		return tag, nil
	}
	if errors.IsCode(err, errors.ErrTagExists.Code) {
		return t.GetByName(ctx, name)
	}
	return nil, err
}

func (t *tags) Update(_ context.Context, id int64, name string) (*model.Tag, error) {
	st := t.s.lock()
	defer t.s.unlock()

	tag, ok := st.tags[id]
	if !ok {
		return nil, errors.ErrTagNotFound
	}
	name = strings.TrimSpace(name)
	if tag.Name == name {
		cp := *tag
		return &cp, nil
	}
	if st.tagByName(name) != nil {
		return nil, errors.ErrTagExists.WithMessagef("tag %q already exists", name)
	}
	old := tag.Name
	renamed := *tag
	renamed.Name = name
	st.tags[id] = &renamed
	for cid, ch := range st.chunks {
		if !contains(ch.Tags, old) {
			continue
		}
		cp := *ch
		next := make([]string, len(ch.Tags))
		for i, v := range ch.Tags {
			if v == old {
				v = name
			}
			next[i] = v
		}
		cp.Tags = next
		st.chunks[cid] = &cp
	}
	out := renamed
	return &out, nil
}

func (t *tags) Delete(_ context.Context, id int64) error {
	st := t.s.lock()
	defer t.s.unlock()

	tag, ok := st.tags[id]
	if !ok {
		return errors.ErrTagNotFound
	}
	for cid, ch := range st.chunks {
		if !contains(ch.Tags, tag.Name) {
			continue
		}
		cp := *ch
		next := []string{}
		for _, v := range ch.Tags {
			if v != tag.Name {
				next = append(next, v)
			}
		}
		cp.Tags = next
		st.chunks[cid] = &cp
	}
	delete(st.tags, id)
	return nil
}

func (t *tags) Existing(_ context.Context, names []string) ([]string, error) {
	st := t.s.lock()
	defer t.s.unlock()

	out := []string{}
	for _, n := range store.NormalizeTags(names) {
		if st.tagByName(n) != nil {
			out = append(out, n)
		}
	}
	return out, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
