// Package service 推荐排行榜
package service

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/smysle/allowance-campaign/internal/database"
	"github.com/smysle/allowance-campaign/internal/database/repository"
	"github.com/smysle/allowance-campaign/pkg/imggen"
	"github.com/smysle/allowance-campaign/pkg/utils"
)

const (
	DefaultLeaderboardLimit = 10
	MaxLeaderboardLimit     = 50

	leaderboardImageTTL = time.Minute
)

// LeaderboardEntry 排行榜条目
type LeaderboardEntry struct {
	Rank      int    `json:"rank"`
	Address   string `json:"address"`
	Code      string `json:"code,omitempty"`
	Referrals int    `json:"referrals"`
}

// LeaderboardService 推荐排行榜服务
type LeaderboardService struct {
	users     *repository.UserRepository
	codes     *repository.CodeRepository
	approvals *repository.ApprovalRepository
	now       func() time.Time
}

// CampaignStats 活动概况
type CampaignStats struct {
	Users     int `json:"users"`
	Referred  int `json:"referred"`
	Approvals int `json:"approvals"`
	Codes     int `json:"codes"`
}

// NewLeaderboardService 创建推荐排行榜服务
func NewLeaderboardService(store *database.Store) *LeaderboardService {
	return &LeaderboardService{
		users:     repository.NewUserRepository(store),
		codes:     repository.NewCodeRepository(store),
		approvals: repository.NewApprovalRepository(store),
		now:       time.Now,
	}
}

// NormalizeLimit 限制返回条数在 1-50 之间
func NormalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultLeaderboardLimit
	}
	if limit > MaxLeaderboardLimit {
		return MaxLeaderboardLimit
	}
	return limit
}

// Top 按推荐人数倒序返回排行，只读不补发推荐码
func (s *LeaderboardService) Top(limit int) []LeaderboardEntry {
	limit = NormalizeLimit(limit)
	codes := s.codes.All()

	counts := make(map[string]int)
	display := make(map[string]string)
	for _, u := range s.users.All() {
		if !u.HasReferrer() {
			continue
		}
		key := strings.ToLower(*u.Referrer)
		counts[key]++
		if _, ok := display[key]; !ok {
			display[key] = *u.Referrer
		}
	}

	entries := make([]LeaderboardEntry, 0, len(counts))
	for key, n := range counts {
		code, _ := codes.CodeOf(key)
		entries = append(entries, LeaderboardEntry{
			Address:   display[key],
			Code:      code,
			Referrals: n,
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Referrals != entries[j].Referrals {
			return entries[i].Referrals > entries[j].Referrals
		}
		return strings.ToLower(entries[i].Address) < strings.ToLower(entries[j].Address)
	})

	if len(entries) > limit {
		entries = entries[:limit]
	}
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries
}

// Stats 用户、被推荐用户、授权事件和推荐码数量
func (s *LeaderboardService) Stats() CampaignStats {
	users := s.users.All()
	stats := CampaignStats{
		Users:     len(users),
		Approvals: len(s.approvals.All()),
		Codes:     len(s.codes.All()),
	}
	for _, u := range users {
		if u.HasReferrer() {
			stats.Referred++
		}
	}
	return stats
}

// RenderPNG 生成排行榜图片，同一 limit 的结果缓存一分钟
func (s *LeaderboardService) RenderPNG(limit int) ([]byte, error) {
	limit = NormalizeLimit(limit)
	key := fmt.Sprintf("leaderboard:png:%d", limit)

	val, err := utils.CacheGetOrSet(key, leaderboardImageTTL, func() (interface{}, error) {
		entries := s.Top(limit)
		items := make([]imggen.RankData, 0, len(entries))
		for _, e := range entries {
			items = append(items, imggen.RankData{
				Rank:      e.Rank,
				Address:   e.Address,
				Code:      e.Code,
				Referrals: e.Referrals,
			})
		}
		return imggen.GenerateLeaderboard(imggen.LeaderboardConfig{
			Title:       "Top Referrers",
			Subtitle:    fmt.Sprintf("%d wallets ranked by referrals", len(items)),
			Items:       items,
			GeneratedAt: s.now().UTC(),
		})
	})
	if err != nil {
		return nil, err
	}
	return val.([]byte), nil
}
