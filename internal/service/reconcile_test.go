package service

import (
	"os"
	"testing"

	"github.com/smysle/allowance-campaign/internal/database"
	"github.com/smysle/allowance-campaign/internal/database/models"
	"github.com/smysle/allowance-campaign/internal/database/repository"
)

func TestReconcile_PatchesDrift(t *testing.T) {
	codes := models.RefCodes{"codeA1": addrA, "codeB1": addrB}
	users := []*models.User{
		{Address: addrA, RefCode: models.StrPtr("stale")},
		{Address: addrB, RefCode: models.StrPtr("codeB1"), Referrer: models.StrPtr(addrA), ReferrerCode: models.StrPtr("old")},
	}
	approvals := []*models.Approval{
		{ID: "1", Address: addrA, RefCode: models.StrPtr("stale"), ReferrerCode: models.StrPtr("junk")},
		{ID: "2", Address: addrB, RefCode: models.StrPtr("codeB1"), Referrer: models.StrPtr(addrA), ReferrerCode: models.StrPtr("codeA1")},
	}

	stats := reconcile(users, codes, approvals)

	if stats.NewCodes != 0 {
		t.Errorf("NewCodes = %d, want 0", stats.NewCodes)
	}
	if stats.Users != 2 {
		t.Errorf("Users = %d, want 2", stats.Users)
	}
	if stats.Approvals != 1 {
		t.Errorf("Approvals = %d, want 1", stats.Approvals)
	}
	if models.StrVal(users[0].RefCode) != "codeA1" {
		t.Errorf("user A refCode = %v", users[0].RefCode)
	}
	if models.StrVal(users[1].ReferrerCode) != "codeA1" {
		t.Errorf("user B referrerCode = %v", users[1].ReferrerCode)
	}
	if models.StrVal(approvals[0].RefCode) != "codeA1" || approvals[0].ReferrerCode != nil {
		t.Errorf("event 1 = %+v", approvals[0])
	}
}

func TestReconcile_MintsMissingCodes(t *testing.T) {
	codes := models.RefCodes{}
	approvals := []*models.Approval{
		{ID: "1", Address: addrB, Referrer: models.StrPtr(addrC)},
	}

	stats := reconcile(nil, codes, approvals)

	if stats.NewCodes != 2 {
		t.Errorf("NewCodes = %d, want 2", stats.NewCodes)
	}
	codeB, _ := codes.CodeOf(addrB)
	codeC, _ := codes.CodeOf(addrC)
	if models.StrVal(approvals[0].RefCode) != codeB || models.StrVal(approvals[0].ReferrerCode) != codeC {
		t.Errorf("event = %+v, codes = %v", approvals[0], codes)
	}
}

func TestReconcile_KeepsUserReferrerCodeWithoutReferrer(t *testing.T) {
	codes := models.RefCodes{"codeA1": addrA}
	users := []*models.User{
		{Address: addrA, RefCode: models.StrPtr("codeA1"), ReferrerCode: models.StrPtr("keepme")},
	}
	approvals := []*models.Approval{{ID: "1", Address: addrA, RefCode: models.StrPtr("codeA1")}}

	stats := reconcile(users, codes, approvals)

	if stats.Users != 0 || stats.Approvals != 0 {
		t.Errorf("stats = %+v, want no changes", stats)
	}
	if models.StrVal(users[0].ReferrerCode) != "keepme" {
		t.Errorf("user referrerCode = %v", users[0].ReferrerCode)
	}
}

func TestApprovalService_List(t *testing.T) {
	store := newTestStore(t)
	users := repository.NewUserRepository(store)
	codes := repository.NewCodeRepository(store)
	approvalRepo := repository.NewApprovalRepository(store)

	if err := codes.SaveAll(models.RefCodes{"codeA1": addrA}); err != nil {
		t.Fatal(err)
	}
	if err := users.SaveAll([]*models.User{{Address: addrA, RefCode: models.StrPtr("drift")}}); err != nil {
		t.Fatal(err)
	}
	if err := approvalRepo.SaveAll([]*models.Approval{
		{ID: "old", Address: addrA, CreatedAt: 1000},
		{ID: "noCreated", Address: addrA, UpdatedAt: 3000},
		{ID: "new", Address: addrA, CreatedAt: 5000},
		{ID: "tie", Address: addrA, CreatedAt: 1000},
	}); err != nil {
		t.Fatal(err)
	}

	list, err := NewApprovalService(store).List()
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}

	want := []string{"new", "noCreated", "old", "tie"}
	if len(list) != len(want) {
		t.Fatalf("len(list) = %d, want %d", len(list), len(want))
	}
	for i, id := range want {
		if list[i].ID != id {
			t.Errorf("list[%d].ID = %q, want %q", i, list[i].ID, id)
		}
		if models.StrVal(list[i].RefCode) != "codeA1" {
			t.Errorf("list[%d].RefCode = %v", i, list[i].RefCode)
		}
	}

	// 修正结果已回写
	if u := users.All()[0]; models.StrVal(u.RefCode) != "codeA1" {
		t.Errorf("persisted user refCode = %v", u.RefCode)
	}
	for _, a := range approvalRepo.All() {
		if models.StrVal(a.RefCode) != "codeA1" {
			t.Errorf("persisted event %s refCode = %v", a.ID, a.RefCode)
		}
	}
}

func TestApprovalService_ListAfterRegister(t *testing.T) {
	svc, store, _ := newTestRegister(t)
	if _, err := svc.Register(RegisterInput{Address: addrA}); err != nil {
		t.Fatal(err)
	}

	list, err := NewApprovalService(store).List()
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].Referrer != nil {
		t.Errorf("list = %+v", list)
	}
}

func TestApprovalService_ListSkipsMalformed(t *testing.T) {
	store := newTestStore(t)
	raw := `[null, {"id":"legacy"}, 42, {"id":"1","address":"` + addrA + `","refCode":"stale"}]`
	if err := os.WriteFile(store.Path(database.CollectionApprovals), []byte(raw), 0644); err != nil {
		t.Fatal(err)
	}

	list, err := NewApprovalService(store).List()
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(list) != 1 || list[0].ID != "1" {
		t.Fatalf("list = %+v", list)
	}
	if models.StrVal(list[0].RefCode) == "stale" {
		t.Error("drifted refCode not patched")
	}

	var onDisk []any
	readJSONFile(t, store.Path(database.CollectionApprovals), &onDisk)
	if len(onDisk) != 4 || onDisk[2] != float64(42) {
		t.Errorf("approvals.json = %v", onDisk)
	}
}
