// Package models 数据模型 - 用户
package models

import (
	"encoding/json"
	"strings"
)

// User 用户记录，以小写地址为唯一键
type User struct {
	Address      string  `json:"address"`
	TxHash       *string `json:"txHash"`
	Referrer     *string `json:"referrer"`     // 推荐人地址，首次设置后不再变更
	RefCode      *string `json:"refCode"`      // 自己的推荐码
	ReferrerCode *string `json:"referrerCode"` // 推荐人的推荐码
	CreatedAt    int64   `json:"createdAt"`    // 毫秒时间戳
	UpdatedAt    int64   `json:"updatedAt"`    // 毫秒时间戳

	extra map[string]json.RawMessage
	raw   json.RawMessage
}

var userFields = jsonFields("address", "txHash", "referrer", "refCode", "referrerCode", "createdAt", "updatedAt")

type userJSON User

// UnmarshalJSON 同 Approval，脏数据保留原文
func (u *User) UnmarshalJSON(data []byte) error {
	var v userJSON
	if err := json.Unmarshal(data, &v); err != nil {
		*u = User{raw: cloneRaw(data)}
		return nil
	}
	*u = User(v)
	u.extra = splitExtra(data, userFields)
	if u.Address == "" {
		u.raw = cloneRaw(data)
	}
	return nil
}

// MarshalJSON 未知字段追加在已知字段之后
func (u User) MarshalJSON() ([]byte, error) {
	if u.raw != nil {
		return u.raw, nil
	}
	data, err := json.Marshal(userJSON(u))
	if err != nil {
		return nil, err
	}
	return joinExtra(data, u.extra)
}

// Valid 是否为有效用户记录
func (u *User) Valid() bool {
	return u != nil && u.raw == nil && u.Address != ""
}

// Key 用户唯一键
func (u *User) Key() string {
	return strings.ToLower(u.Address)
}

// HasReferrer 是否已绑定推荐人
func (u *User) HasReferrer() bool {
	return u.Referrer != nil && *u.Referrer != ""
}
