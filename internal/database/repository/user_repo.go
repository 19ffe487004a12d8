// Package repository 用户数据仓库
package repository

import (
	"strings"

	"github.com/smysle/allowance-campaign/internal/database"
	"github.com/smysle/allowance-campaign/internal/database/models"
)

// UserRepository 用户仓库
type UserRepository struct {
	store *database.Store
}

// NewUserRepository 创建用户仓库
func NewUserRepository(store *database.Store) *UserRepository {
	return &UserRepository{store: store}
}

// Load 读取文件中的全部条目，null 和缺少地址的脏数据原样保留
func (r *UserRepository) Load() []*models.User {
	var users []*models.User
	if !r.store.Load(database.CollectionUsers, &users) {
		return []*models.User{}
	}
	return users
}

// All 读取有效用户
func (r *UserRepository) All() []*models.User {
	all := r.Load()
	valid := make([]*models.User, 0, len(all))
	for _, u := range all {
		if u.Valid() {
			valid = append(valid, u)
		}
	}
	return valid
}

// SaveAll 覆盖保存全部用户
func (r *UserRepository) SaveAll(users []*models.User) error {
	if users == nil {
		users = []*models.User{}
	}
	return r.store.Save(database.CollectionUsers, users)
}

// FindByAddress 在列表中按地址查找（不区分大小写）
func FindByAddress(users []*models.User, address string) *models.User {
	lower := strings.ToLower(address)
	for _, u := range users {
		if u.Valid() && u.Key() == lower {
			return u
		}
	}
	return nil
}

// IndexByAddress 按小写地址建立索引，重复地址保留第一条
func IndexByAddress(users []*models.User) map[string]*models.User {
	index := make(map[string]*models.User, len(users))
	for _, u := range users {
		if !u.Valid() {
			continue
		}
		if _, ok := index[u.Key()]; !ok {
			index[u.Key()] = u
		}
	}
	return index
}
