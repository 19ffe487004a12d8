// Package service 推荐码分配
package service

import (
	"github.com/smysle/allowance-campaign/internal/database/models"
	"github.com/smysle/allowance-campaign/pkg/utils"
)

const (
	// 推荐码字符集
	codeChars = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

	codeMinLength = 6
	codeMaxLength = 10
)

// GenerateCode 生成一个不在 existing 中的推荐码，长度在 6-10 之间均匀分布
func GenerateCode(existing models.RefCodes) string {
	length := utils.RandomIntBetween(codeMinLength, codeMaxLength)
	for {
		code := utils.RandomString(codeChars, length)
		if !existing.Has(code) {
			return code
		}
	}
}

// EnsureCode 返回地址已有的推荐码，没有则生成并写入 codes
// created 为 true 表示 codes 有变动，调用方需要持久化
func EnsureCode(address string, codes models.RefCodes) (code string, created bool) {
	if existing, ok := codes.CodeOf(address); ok {
		return existing, false
	}

	code = GenerateCode(codes)
	codes[code] = address
	return code, true
}
