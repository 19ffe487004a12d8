// Package service 管理端授权列表
package service

import (
	"errors"
	"sort"

	"github.com/smysle/allowance-campaign/internal/database"
	"github.com/smysle/allowance-campaign/internal/database/models"
	"github.com/smysle/allowance-campaign/internal/database/repository"
	"github.com/smysle/allowance-campaign/internal/metrics"
	"github.com/smysle/allowance-campaign/pkg/logger"
)

// ApprovalService 管理端授权列表服务
type ApprovalService struct {
	store     *database.Store
	users     *repository.UserRepository
	codes     *repository.CodeRepository
	approvals *repository.ApprovalRepository
}

// NewApprovalService 创建管理端授权列表服务
func NewApprovalService(store *database.Store) *ApprovalService {
	return &ApprovalService{
		store:     store,
		users:     repository.NewUserRepository(store),
		codes:     repository.NewCodeRepository(store),
		approvals: repository.NewApprovalRepository(store),
	}
}

// ReconcileStats 对账修正统计
type ReconcileStats struct {
	Users     int
	Approvals int
	NewCodes  int
}

// List 返回按创建时间倒序的授权事件
// 读取时按当前推荐码表修正事件和用户上缓存的推荐码，有变动的集合会被回写。
// 回写失败时仍返回修正后的列表，错误一并返回供调用方记录。
func (s *ApprovalService) List() ([]models.Approval, error) {
	var (
		list []models.Approval
		errs []error
	)

	_ = s.store.Transact(func() error {
		users := s.users.Load()
		codes := s.codes.All()
		approvals := s.approvals.Load()

		stats := reconcile(users, codes, approvals)

		if stats.Users > 0 {
			errs = append(errs, s.users.SaveAll(users))
		}
		if stats.NewCodes > 0 {
			errs = append(errs, s.codes.SaveAll(codes))
		}
		if stats.Approvals > 0 {
			errs = append(errs, s.approvals.SaveAll(approvals))
		}
		metrics.AddReconciled("users", stats.Users)
		metrics.AddReconciled("approvals", stats.Approvals)
		metrics.AddReconciled("refCodes", stats.NewCodes)

		if stats.Users+stats.Approvals+stats.NewCodes > 0 {
			logger.Info().
				Int("users", stats.Users).
				Int("approvals", stats.Approvals).
				Int("new_codes", stats.NewCodes).
				Msg("授权列表对账已修正")
		}

		list = make([]models.Approval, 0, len(approvals))
		for _, a := range approvals {
			if a.Valid() {
				list = append(list, *a)
			}
		}
		return nil
	})

	sort.SliceStable(list, func(i, j int) bool {
		return list[i].SortTime() > list[j].SortTime()
	})

	return list, errors.Join(errs...)
}

// reconcile 原地修正 users、approvals 上的推荐码字段，必要时为地址补发推荐码
func reconcile(users []*models.User, codes models.RefCodes, approvals []*models.Approval) ReconcileStats {
	var stats ReconcileStats
	userIndex := repository.IndexByAddress(users)
	patchedUsers := make(map[string]bool)

	ensure := func(address string) *string {
		code, created := EnsureCode(address, codes)
		if created {
			stats.NewCodes++
		}
		return models.StrPtr(code)
	}

	for _, event := range approvals {
		if !event.Valid() {
			continue
		}
		code := ensure(event.Address)

		var referrerCode *string
		if event.HasReferrer() {
			referrerCode = ensure(*event.Referrer)
		}

		if user, ok := userIndex[event.Key()]; ok {
			changed := false
			if !models.StrEqual(user.RefCode, code) {
				user.RefCode = code
				changed = true
			}
			if referrerCode != nil && !models.StrEqual(user.ReferrerCode, referrerCode) {
				user.ReferrerCode = referrerCode
				changed = true
			}
			if changed && !patchedUsers[user.Key()] {
				patchedUsers[user.Key()] = true
				stats.Users++
			}
		}

		if !models.StrEqual(event.RefCode, code) || !models.StrEqual(event.ReferrerCode, referrerCode) {
			event.RefCode = code
			event.ReferrerCode = referrerCode
			stats.Approvals++
		}
	}

	return stats
}
