// Package repository 推荐码数据仓库
package repository

import (
	"github.com/smysle/allowance-campaign/internal/database"
	"github.com/smysle/allowance-campaign/internal/database/models"
)

// CodeRepository 推荐码仓库
type CodeRepository struct {
	store *database.Store
}

// NewCodeRepository 创建推荐码仓库
func NewCodeRepository(store *database.Store) *CodeRepository {
	return &CodeRepository{store: store}
}

// All 读取全部推荐码
func (r *CodeRepository) All() models.RefCodes {
	var codes models.RefCodes
	if !r.store.Load(database.CollectionRefCodes, &codes) || codes == nil {
		return models.RefCodes{}
	}
	return codes
}

// SaveAll 覆盖保存全部推荐码
func (r *CodeRepository) SaveAll(codes models.RefCodes) error {
	if codes == nil {
		codes = models.RefCodes{}
	}
	return r.store.Save(database.CollectionRefCodes, codes)
}
