// Package service 授权登记服务
package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/smysle/allowance-campaign/internal/database"
	"github.com/smysle/allowance-campaign/internal/database/models"
	"github.com/smysle/allowance-campaign/internal/database/repository"
	"github.com/smysle/allowance-campaign/internal/metrics"
	"github.com/smysle/allowance-campaign/pkg/logger"
	"github.com/smysle/allowance-campaign/pkg/utils"
)

// ErrBadAddress 钱包地址格式错误
var ErrBadAddress = errors.New("bad address")

// ApprovalNotifier 新授权通知，实现方不得阻塞调用方
type ApprovalNotifier interface {
	NotifyAsync(approval models.Approval)
}

// RegisterInput 登记请求
type RegisterInput struct {
	Address  string
	TxHash   string
	Referrer string
}

// RegisterResult 登记结果
type RegisterResult struct {
	Code     string
	Approval models.Approval
}

// RegisterService 授权登记服务
type RegisterService struct {
	store     *database.Store
	users     *repository.UserRepository
	codes     *repository.CodeRepository
	approvals *repository.ApprovalRepository
	notifier  ApprovalNotifier

	now   func() time.Time
	newID func() string
}

// NewRegisterService 创建授权登记服务
func NewRegisterService(store *database.Store, notifier ApprovalNotifier) *RegisterService {
	return &RegisterService{
		store:     store,
		users:     repository.NewUserRepository(store),
		codes:     repository.NewCodeRepository(store),
		approvals: repository.NewApprovalRepository(store),
		notifier:  notifier,
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// Register 登记一次授权
// 用户记录原地更新，授权事件每次调用追加一条；通知异步发送
func (s *RegisterService) Register(in RegisterInput) (*RegisterResult, error) {
	if !utils.IsAddress(in.Address) {
		metrics.IncRegistration("bad_address")
		return nil, ErrBadAddress
	}

	// 格式不对的推荐人视为没有推荐人
	referrer := in.Referrer
	if !utils.IsAddress(referrer) {
		referrer = ""
	}

	var result *RegisterResult
	err := s.store.Transact(func() error {
		r, err := s.register(in.Address, in.TxHash, referrer)
		result = r
		return err
	})
	if err != nil {
		metrics.IncRegistration("error")
		return nil, err
	}

	metrics.IncRegistration("ok")
	if s.notifier != nil {
		s.notifier.NotifyAsync(result.Approval)
	}
	return result, nil
}

func (s *RegisterService) register(address, txHash, referrer string) (*RegisterResult, error) {
	users := s.users.Load()
	codes := s.codes.All()
	codesDirty := false
	now := utils.Millis(s.now())

	user := repository.FindByAddress(users, address)
	if user == nil {
		user = &models.User{
			Address:   address,
			CreatedAt: now,
			UpdatedAt: now,
		}
		users = append(users, user)
	}
	if user.CreatedAt == 0 {
		user.CreatedAt = now
	}

	// 推荐关系以第一次成功绑定为准
	refAddress := models.StrVal(user.Referrer)
	if refAddress == "" {
		refAddress = referrer
	}

	code, created := EnsureCode(address, codes)
	codesDirty = codesDirty || created

	var referrerCode string
	if refAddress != "" {
		c, created := EnsureCode(refAddress, codes)
		referrerCode = c
		codesDirty = codesDirty || created
	}

	if txHash != "" {
		user.TxHash = models.StrPtr(txHash)
	}
	user.UpdatedAt = now
	if !user.HasReferrer() && refAddress != "" {
		user.Referrer = models.StrPtr(refAddress)
	}
	if referrerCode != "" {
		user.ReferrerCode = models.StrPtr(referrerCode)
	}
	if models.StrVal(user.RefCode) == "" {
		user.RefCode = models.StrPtr(code)
	}

	if err := s.users.SaveAll(users); err != nil {
		return nil, fmt.Errorf("保存用户失败: %w", err)
	}
	if codesDirty {
		if err := s.codes.SaveAll(codes); err != nil {
			return nil, fmt.Errorf("保存推荐码失败: %w", err)
		}
	}

	approval := models.Approval{
		ID:           s.newID(),
		Address:      address,
		RefCode:      user.RefCode,
		Referrer:     user.Referrer,
		ReferrerCode: models.StrPtr(referrerCode),
		TxHash:       models.StrPtr(txHash),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if approval.ReferrerCode == nil {
		approval.ReferrerCode = user.ReferrerCode
	}

	// 用户已落盘，事件写入失败只记录日志，不影响返回推荐码
	approvals := s.approvals.Load()
	approvals = append(approvals, &approval)
	if err := s.approvals.SaveAll(approvals); err != nil {
		logger.Error().Err(err).Str("address", address).Msg("保存授权事件失败")
	}

	logger.Info().
		Str("address", address).
		Str("code", code).
		Str("referrer", refAddress).
		Bool("new_code", created).
		Msg("登记授权")

	return &RegisterResult{Code: code, Approval: approval}, nil
}
