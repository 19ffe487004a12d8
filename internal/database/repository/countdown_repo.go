// Package repository 倒计时覆盖值仓库
package repository

import (
	"github.com/smysle/allowance-campaign/internal/database"
)

// CountdownRepository 倒计时覆盖值仓库
type CountdownRepository struct {
	store *database.Store
}

// NewCountdownRepository 创建倒计时覆盖值仓库
func NewCountdownRepository(store *database.Store) *CountdownRepository {
	return &CountdownRepository{store: store}
}

// Get 读取覆盖值
func (r *CountdownRepository) Get() (int64, bool) {
	return r.store.LoadCountdownOverride()
}

// Set 保存覆盖值
func (r *CountdownRepository) Set(target int64) error {
	return r.store.SaveCountdownOverride(&target)
}

// Clear 删除覆盖值
func (r *CountdownRepository) Clear() error {
	return r.store.SaveCountdownOverride(nil)
}
