package models

// StrPtr 非空字符串转指针，空字符串返回 nil
func StrPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// StrVal 指针取值，nil 返回空字符串
func StrVal(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

// StrEqual 比较两个可空字符串
func StrEqual(a, b *string) bool {
	return StrVal(a) == StrVal(b) && (a == nil) == (b == nil)
}
