package service

import (
	"strings"
	"testing"

	"github.com/smysle/allowance-campaign/internal/database/models"
)

func TestEnsureCode_Idempotent(t *testing.T) {
	codes := models.RefCodes{}

	first, created := EnsureCode(addrA, codes)
	if !created {
		t.Fatal("first call should mint a code")
	}
	second, created := EnsureCode(strings.ToLower(addrA), codes)
	if created {
		t.Error("second call should not mint a code")
	}
	if first != second {
		t.Errorf("EnsureCode() = %q then %q", first, second)
	}
	if len(codes) != 1 {
		t.Errorf("len(codes) = %d, want 1", len(codes))
	}
	if codes[first] != addrA {
		t.Errorf("codes[%q] = %q, want input-case address", first, codes[first])
	}
}

func TestEnsureCode_ExistingEntry(t *testing.T) {
	codes := models.RefCodes{"Zz9999": addrB, "aaaaaa": addrA}
	code, created := EnsureCode(addrA, codes)
	if created || code != "aaaaaa" {
		t.Errorf("EnsureCode() = %q, %v", code, created)
	}
}

func TestGenerateCode_Format(t *testing.T) {
	codes := models.RefCodes{}
	for i := 0; i < 500; i++ {
		code := GenerateCode(codes)
		if len(code) < codeMinLength || len(code) > codeMaxLength {
			t.Fatalf("code %q length %d out of range", code, len(code))
		}
		for _, c := range code {
			if !strings.ContainsRune(codeChars, c) {
				t.Fatalf("code %q contains %q", code, c)
			}
		}
		if codes.Has(code) {
			t.Fatalf("code %q generated twice", code)
		}
		codes[code] = "0x" + strings.Repeat("0", 40)
	}
}

func TestEnsureCode_UniqueAcrossAddresses(t *testing.T) {
	codes := models.RefCodes{}
	seen := make(map[string]string)
	for i := 0; i < 200; i++ {
		addr := "0x" + strings.Repeat("0", 36) + hex4(i)
		code, _ := EnsureCode(addr, codes)
		if other, ok := seen[code]; ok {
			t.Fatalf("code %q shared by %s and %s", code, other, addr)
		}
		seen[code] = addr
	}
	if len(codes) != 200 {
		t.Errorf("len(codes) = %d, want 200", len(codes))
	}
}

func hex4(i int) string {
	const digits = "0123456789abcdef"
	b := make([]byte, 4)
	for j := 3; j >= 0; j-- {
		b[j] = digits[i%16]
		i /= 16
	}
	return string(b)
}
