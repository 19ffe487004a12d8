// Package models 数据模型 - 推荐码
package models

import (
	"sort"
	"strings"
)

// RefCodes 推荐码表：推荐码 -> 钱包地址（保留首次出现时的大小写）
type RefCodes map[string]string

// Has 推荐码是否已存在
func (r RefCodes) Has(code string) bool {
	_, ok := r[code]
	return ok
}

// CodeOf 按地址反查推荐码（不区分大小写）
// 数据文件被手工改出同一地址多个码时，取字典序最小的一个
func (r RefCodes) CodeOf(address string) (string, bool) {
	lower := strings.ToLower(address)
	var matches []string
	for code, owner := range r {
		if strings.ToLower(owner) == lower {
			matches = append(matches, code)
		}
	}
	if len(matches) == 0 {
		return "", false
	}
	sort.Strings(matches)
	return matches[0], true
}
