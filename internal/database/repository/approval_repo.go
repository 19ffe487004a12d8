// Package repository 授权事件数据仓库
package repository

import (
	"github.com/smysle/allowance-campaign/internal/database"
	"github.com/smysle/allowance-campaign/internal/database/models"
)

// ApprovalRepository 授权事件仓库
type ApprovalRepository struct {
	store *database.Store
}

// NewApprovalRepository 创建授权事件仓库
func NewApprovalRepository(store *database.Store) *ApprovalRepository {
	return &ApprovalRepository{store: store}
}

// Load 读取文件中的全部条目，null 和脏数据原样保留，用于读改写
func (r *ApprovalRepository) Load() []*models.Approval {
	var approvals []*models.Approval
	if !r.store.Load(database.CollectionApprovals, &approvals) {
		return []*models.Approval{}
	}
	return approvals
}

// All 读取有效的授权事件
func (r *ApprovalRepository) All() []*models.Approval {
	all := r.Load()
	valid := make([]*models.Approval, 0, len(all))
	for _, a := range all {
		if a.Valid() {
			valid = append(valid, a)
		}
	}
	return valid
}

// SaveAll 覆盖保存全部授权事件
func (r *ApprovalRepository) SaveAll(approvals []*models.Approval) error {
	if approvals == nil {
		approvals = []*models.Approval{}
	}
	return r.store.Save(database.CollectionApprovals, approvals)
}
