// Package models 数据模型 - 倒计时
package models

// CountdownOverride 管理员设置的倒计时目标
type CountdownOverride struct {
	Target *float64 `json:"target"`
}
