// Package models 数据模型 - 授权事件
package models

import (
	"encoding/json"
	"strings"
)

// Approval 授权事件，只追加不修改（推荐码字段除外，由管理列表对账修正）
type Approval struct {
	ID           string  `json:"id"`
	Address      string  `json:"address"`
	RefCode      *string `json:"refCode"`
	Referrer     *string `json:"referrer"`
	ReferrerCode *string `json:"referrerCode"`
	TxHash       *string `json:"txHash"`
	CreatedAt    int64   `json:"createdAt"`
	UpdatedAt    int64   `json:"updatedAt"`

	extra map[string]json.RawMessage // 未知字段
	raw   json.RawMessage            // 无法识别的条目，原样写回
}

var approvalFields = jsonFields("id", "address", "refCode", "referrer", "referrerCode", "txHash", "createdAt", "updatedAt")

type approvalJSON Approval

// UnmarshalJSON 解析失败或缺少地址的条目保留原文
func (a *Approval) UnmarshalJSON(data []byte) error {
	var v approvalJSON
	if err := json.Unmarshal(data, &v); err != nil {
		*a = Approval{raw: cloneRaw(data)}
		return nil
	}
	*a = Approval(v)
	a.extra = splitExtra(data, approvalFields)
	if a.Address == "" {
		a.raw = cloneRaw(data)
	}
	return nil
}

// MarshalJSON 未知字段追加在已知字段之后
func (a Approval) MarshalJSON() ([]byte, error) {
	if a.raw != nil {
		return a.raw, nil
	}
	data, err := json.Marshal(approvalJSON(a))
	if err != nil {
		return nil, err
	}
	return joinExtra(data, a.extra)
}

// Valid 是否为可参与对账的事件
func (a *Approval) Valid() bool {
	return a != nil && a.raw == nil && a.Address != ""
}

// SortTime 排序时间，缺少创建时间时使用更新时间
func (a *Approval) SortTime() int64 {
	if a.CreatedAt != 0 {
		return a.CreatedAt
	}
	return a.UpdatedAt
}

// HasReferrer 是否有推荐人
func (a *Approval) HasReferrer() bool {
	return a.Referrer != nil && *a.Referrer != ""
}

// Key 事件所属用户的唯一键
func (a *Approval) Key() string {
	return strings.ToLower(a.Address)
}
