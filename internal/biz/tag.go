package biz

import (
	"context"
	"strings"

	"github.com/kart-io/chunkflow/internal/model"
	"github.com/kart-io/chunkflow/internal/store"
	"github.com/kart-io/chunkflow/pkg/errors"
)

// TagService 标签注册表业务逻辑。
type TagService struct {
	store store.Factory
	cache *SearchCache
}

// NewTagService 创建标签服务。
func NewTagService(store store.Factory, cache *SearchCache) *TagService {
	return &TagService{
		store: store,
		cache: cache,
	}
}

// List 列出标签，search 非空时按名称子串过滤。
func (s *TagService) List(ctx context.Context, search string) ([]*model.Tag, error) {
	return s.store.Tags().List(ctx, strings.TrimSpace(search))
}

// Get 获取标签。
func (s *TagService) Get(ctx context.Context, id int64) (*model.Tag, error) {
	return s.store.Tags().Get(ctx, id)
}

// Create 注册标签，重名返回 ErrTagExists。
func (s *TagService) Create(ctx context.Context, name string) (*model.Tag, error) {
	name, err := tagName(name)
	if err != nil {
		return nil, err
	}
	return s.store.Tags().Create(ctx, name)
}

// Update 重命名标签。分块上的旧名称随之更新，因此清除搜索缓存。
func (s *TagService) Update(ctx context.Context, id int64, name string) (*model.Tag, error) {
	name, err := tagName(name)
	if err != nil {
		return nil, err
	}
	tag, err := s.store.Tags().Update(ctx, id, name)
	if err != nil {
		return nil, err
	}
	s.cache.Invalidate(ctx)
	return tag, nil
}

// Delete 删除标签，并从所有分块上移除该标签。
func (s *TagService) Delete(ctx context.Context, id int64) error {
	if err := s.store.Tags().Delete(ctx, id); err != nil {
		return err
	}
	s.cache.Invalidate(ctx)
	return nil
}

func tagName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.ErrInvalidParam.WithMessage("tag name must not be empty")
	}
	return name, nil
}
