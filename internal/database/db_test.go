// Package database JSON 文件存储测试
package database

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/smysle/allowance-campaign/internal/database/models"
)

func TestOpen_SeedsEmptyCollections(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data")
	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open 失败: %v", err)
	}

	expected := map[string]string{
		"users.json":     "[]",
		"ref-codes.json": "{}",
		"approvals.json": "[]",
	}
	for name, content := range expected {
		data, err := os.ReadFile(filepath.Join(s.Dir(), name))
		if err != nil {
			t.Fatalf("%s 未创建: %v", name, err)
		}
		if string(data) != content {
			t.Errorf("%s 初始内容应该是 %s，实际是 %s", name, content, data)
		}
	}
}

func TestOpen_KeepsExistingFiles(t *testing.T) {
	dir := t.TempDir()
	existing := `[{"address":"0x1111111111111111111111111111111111111111"}]`
	if err := os.WriteFile(filepath.Join(dir, "users.json"), []byte(existing), 0644); err != nil {
		t.Fatal(err)
	}

	s, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}

	var users []models.User
	if !s.Load(CollectionUsers, &users) || len(users) != 1 {
		t.Errorf("已有数据不应被覆盖: %+v", users)
	}
}

func TestLoad_Fallbacks(t *testing.T) {
	tests := []struct {
		name    string
		content *string
	}{
		{"文件不存在", nil},
		{"损坏的 JSON", strPtr("{not json")},
		{"类型不匹配", strPtr(`{"a": 1}`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := Open(t.TempDir())
			if err != nil {
				t.Fatal(err)
			}
			path := s.Path(CollectionApprovals)
			if tt.content == nil {
				os.Remove(path)
			} else if err := os.WriteFile(path, []byte(*tt.content), 0644); err != nil {
				t.Fatal(err)
			}

			var approvals []models.Approval
			if s.Load(CollectionApprovals, &approvals) {
				t.Error("Load 应返回 false")
			}
		})
	}
}

func TestSave_OverwritesWholeCollection(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	if err := s.Save(CollectionRefCodes, models.RefCodes{"abc123": "0xA", "def456": "0xB"}); err != nil {
		t.Fatal(err)
	}
	if err := s.Save(CollectionRefCodes, models.RefCodes{"zzz999": "0xC"}); err != nil {
		t.Fatal(err)
	}

	var codes models.RefCodes
	if !s.Load(CollectionRefCodes, &codes) {
		t.Fatal("Load 失败")
	}
	if len(codes) != 1 || codes["zzz999"] != "0xC" {
		t.Errorf("Save 应整体覆盖，实际是 %v", codes)
	}

	entries, _ := os.ReadDir(s.Dir())
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".tmp" {
			t.Errorf("残留临时文件: %s", e.Name())
		}
	}
}

func TestCountdownOverride(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	if _, ok := s.LoadCountdownOverride(); ok {
		t.Error("初始状态不应有覆盖值")
	}

	target := int64(1790000000000)
	if err := s.SaveCountdownOverride(&target); err != nil {
		t.Fatal(err)
	}
	got, ok := s.LoadCountdownOverride()
	if !ok || got != target {
		t.Errorf("LoadCountdownOverride = %d, %v", got, ok)
	}

	if err := s.SaveCountdownOverride(nil); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(s.Dir(), countdownOverrideFile)); !os.IsNotExist(err) {
		t.Error("清除后覆盖值文件应被删除")
	}

	// 重复删除不报错
	if err := s.SaveCountdownOverride(nil); err != nil {
		t.Errorf("重复清除不应报错: %v", err)
	}

	// 非数字 target 视为不存在
	os.WriteFile(filepath.Join(s.Dir(), countdownOverrideFile), []byte(`{"target":"soon"}`), 0644)
	if _, ok := s.LoadCountdownOverride(); ok {
		t.Error("非数字 target 不应被接受")
	}
}

func strPtr(s string) *string { return &s }
