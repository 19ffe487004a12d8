// Package utils 工具函数
package utils

import (
	"crypto/rand"
	"math/big"
	mrand "math/rand"
	"regexp"
	"strings"
	"time"
)

// isoMillisLayout 与浏览器 Date.toISOString 输出一致
const isoMillisLayout = "2006-01-02T15:04:05.000Z07:00"

var addressPattern = regexp.MustCompile(`^0x[a-fA-F0-9]{40}$`)

// IsAddress 判断是否为 0x 开头的 40 位十六进制钱包地址
func IsAddress(s string) bool {
	return addressPattern.MatchString(s)
}

// RandomIndex 返回 [0, n) 内的均匀随机数
func RandomIndex(n int) int {
	num, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return mrand.Intn(n)
	}
	return int(num.Int64())
}

// RandomString 从字符集中均匀抽取字符生成随机字符串
func RandomString(charset string, length int) string {
	result := make([]byte, length)
	for i := range result {
		result[i] = charset[RandomIndex(len(charset))]
	}
	return string(result)
}

// RandomIntBetween 返回 [lo, hi] 内的均匀随机数
func RandomIntBetween(lo, hi int) int {
	return lo + RandomIndex(hi-lo+1)
}

// Millis 转换为毫秒时间戳
func Millis(t time.Time) int64 {
	return t.UnixMilli()
}

// FormatMillisISO 毫秒时间戳格式化为 ISO-8601 (UTC)
func FormatMillisISO(ms int64) string {
	return time.UnixMilli(ms).UTC().Format(isoMillisLayout)
}

// isoLayouts 支持的时间格式，不带时区的按 UTC 处理
var isoLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseISOTime 解析 ISO-8601 时间字符串
func ParseISOTime(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}
	for _, layout := range isoLayouts {
		if t, err := time.ParseInLocation(layout, value, time.UTC); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
