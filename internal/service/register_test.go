package service

import (
	"encoding/json"
	"errors"
	"os"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/smysle/allowance-campaign/internal/database"
	"github.com/smysle/allowance-campaign/internal/database/models"
	"github.com/smysle/allowance-campaign/internal/database/repository"
)

const (
	addrA = "0xAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA1"
	addrB = "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb2"
	addrC = "0xCcCcCcCcCcCcCcCcCcCcCcCcCcCcCcCcCcCcCcC3"
)

type recordingNotifier struct {
	mu   sync.Mutex
	sent []models.Approval
}

func (n *recordingNotifier) NotifyAsync(a models.Approval) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, a)
}

func newTestRegister(t *testing.T) (*RegisterService, *database.Store, *recordingNotifier) {
	t.Helper()
	store := newTestStore(t)
	n := &recordingNotifier{}
	svc := NewRegisterService(store, n)

	tick := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	svc.now = func() time.Time {
		tick = tick.Add(time.Second)
		return tick
	}
	seq := 0
	svc.newID = func() string {
		seq++
		return fmt.Sprintf("evt-%d", seq)
	}
	return svc, store, n
}

func TestRegisterService_NoReferrer(t *testing.T) {
	svc, store, n := newTestRegister(t)

	res, err := svc.Register(RegisterInput{Address: addrA, TxHash: "0xtx1"})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if len(res.Code) < 6 || len(res.Code) > 10 {
		t.Errorf("code %q has bad length", res.Code)
	}

	users := repository.NewUserRepository(store).All()
	if len(users) != 1 {
		t.Fatalf("len(users) = %d, want 1", len(users))
	}
	u := users[0]
	if u.Referrer != nil || u.ReferrerCode != nil {
		t.Errorf("user should have no referrer: %+v", u)
	}
	if models.StrVal(u.RefCode) != res.Code || models.StrVal(u.TxHash) != "0xtx1" {
		t.Errorf("user = %+v", u)
	}

	approvals := repository.NewApprovalRepository(store).All()
	if len(approvals) != 1 {
		t.Fatalf("len(approvals) = %d, want 1", len(approvals))
	}
	if approvals[0].Referrer != nil || approvals[0].ReferrerCode != nil {
		t.Errorf("approval should have null referrer: %+v", approvals[0])
	}
	if approvals[0].ID != "evt-1" {
		t.Errorf("ID = %q", approvals[0].ID)
	}

	if len(n.sent) != 1 || n.sent[0].Address != addrA {
		t.Errorf("notifications = %+v", n.sent)
	}
}

func TestRegisterService_ReferrerSticks(t *testing.T) {
	svc, store, _ := newTestRegister(t)

	resA, err := svc.Register(RegisterInput{Address: addrA})
	if err != nil {
		t.Fatal(err)
	}
	resB, err := svc.Register(RegisterInput{Address: addrB, Referrer: addrA})
	if err != nil {
		t.Fatal(err)
	}
	if resB.Approval.ReferrerCode == nil || *resB.Approval.ReferrerCode != resA.Code {
		t.Errorf("B referrerCode = %v, want %q", resB.Approval.ReferrerCode, resA.Code)
	}

	// 再次登记换成 C 作为推荐人，推荐关系不变
	again, err := svc.Register(RegisterInput{Address: addrB, Referrer: addrC})
	if err != nil {
		t.Fatal(err)
	}
	if again.Code != resB.Code {
		t.Errorf("B code changed from %q to %q", resB.Code, again.Code)
	}
	if models.StrVal(again.Approval.Referrer) != addrA {
		t.Errorf("event referrer = %v, want %s", again.Approval.Referrer, addrA)
	}

	u := repository.FindByAddress(repository.NewUserRepository(store).All(), addrB)
	if u == nil || models.StrVal(u.Referrer) != addrA || models.StrVal(u.ReferrerCode) != resA.Code {
		t.Errorf("user B = %+v", u)
	}

	codes := repository.NewCodeRepository(store).All()
	if _, ok := codes.CodeOf(addrC); ok {
		t.Error("ignored referrer C must not be given a code")
	}
	if len(repository.NewApprovalRepository(store).All()) != 3 {
		t.Error("every registration appends an approval event")
	}
}

func TestRegisterService_ReferrerMintedWhenUnknown(t *testing.T) {
	svc, store, _ := newTestRegister(t)

	res, err := svc.Register(RegisterInput{Address: addrB, Referrer: addrA})
	if err != nil {
		t.Fatal(err)
	}
	codes := repository.NewCodeRepository(store).All()
	code, ok := codes.CodeOf(addrA)
	if !ok {
		t.Fatal("referrer should receive a code")
	}
	if models.StrVal(res.Approval.ReferrerCode) != code {
		t.Errorf("referrerCode = %v, want %q", res.Approval.ReferrerCode, code)
	}
	if len(codes) != 2 {
		t.Errorf("len(codes) = %d, want 2", len(codes))
	}
}

func TestRegisterService_InvalidReferrerIgnored(t *testing.T) {
	svc, _, _ := newTestRegister(t)

	res, err := svc.Register(RegisterInput{Address: addrA, Referrer: "0x1234"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Approval.Referrer != nil {
		t.Errorf("referrer = %v, want nil", res.Approval.Referrer)
	}

	// 之后提供合法推荐人仍可绑定
	res, err = svc.Register(RegisterInput{Address: addrA, Referrer: addrB})
	if err != nil {
		t.Fatal(err)
	}
	if models.StrVal(res.Approval.Referrer) != addrB {
		t.Errorf("referrer = %v, want %s", res.Approval.Referrer, addrB)
	}
}

func TestRegisterService_CaseInsensitiveAddress(t *testing.T) {
	svc, store, _ := newTestRegister(t)

	first, err := svc.Register(RegisterInput{Address: addrA})
	if err != nil {
		t.Fatal(err)
	}
	second, err := svc.Register(RegisterInput{Address: "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa1"})
	if err != nil {
		t.Fatal(err)
	}
	if first.Code != second.Code {
		t.Errorf("codes differ: %q vs %q", first.Code, second.Code)
	}
	if n := len(repository.NewUserRepository(store).All()); n != 1 {
		t.Errorf("len(users) = %d, want 1", n)
	}
}

func TestRegisterService_BadAddress(t *testing.T) {
	tests := []struct {
		name    string
		address string
	}{
		{"非地址", "not-an-address"},
		{"空", ""},
		{"长度不足", "0x1234"},
		{"非十六进制", "0xZZZZZZZZZZZZZZZZZZZZZZZZZZZZZZZZZZZZZZZZ"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, store, n := newTestRegister(t)
			_, err := svc.Register(RegisterInput{Address: tt.address, Referrer: addrA})
			if !errors.Is(err, ErrBadAddress) {
				t.Fatalf("Register() error = %v, want ErrBadAddress", err)
			}
			if len(repository.NewUserRepository(store).All()) != 0 {
				t.Error("no user should be created")
			}
			if len(repository.NewApprovalRepository(store).All()) != 0 {
				t.Error("no approval should be created")
			}
			if len(repository.NewCodeRepository(store).All()) != 0 {
				t.Error("no code should be minted")
			}
			if len(n.sent) != 0 {
				t.Error("no notification should be sent")
			}
		})
	}
}

func TestRegisterService_ConcurrentRegistrations(t *testing.T) {
	svc, store, _ := newTestRegister(t)
	svc.now = time.Now

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			addr := fmt.Sprintf("0x%040x", i+1)
			if _, err := svc.Register(RegisterInput{Address: addr}); err != nil {
				t.Errorf("Register(%s) error = %v", addr, err)
			}
		}(i)
	}
	wg.Wait()

	if n := len(repository.NewUserRepository(store).All()); n != 20 {
		t.Errorf("len(users) = %d, want 20", n)
	}
	if n := len(repository.NewApprovalRepository(store).All()); n != 20 {
		t.Errorf("len(approvals) = %d, want 20", n)
	}
}

func TestRegisterService_KeepsUnknownEntries(t *testing.T) {
	svc, store, _ := newTestRegister(t)

	legacyApprovals := `[null, {"id":"legacy","address":""}, {"id":"old","address":"` + addrB + `","extra":"keepme"}]`
	legacyUsers := `[{"address":"` + addrB + `","note":"vip"}, {"address":""}]`
	if err := os.WriteFile(store.Path(database.CollectionApprovals), []byte(legacyApprovals), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(store.Path(database.CollectionUsers), []byte(legacyUsers), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := svc.Register(RegisterInput{Address: addrA}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	var approvals []map[string]any
	readJSONFile(t, store.Path(database.CollectionApprovals), &approvals)
	if len(approvals) != 4 {
		t.Fatalf("len(approvals) = %d, want 4", len(approvals))
	}
	if approvals[0] != nil {
		t.Errorf("null entry rewritten as %v", approvals[0])
	}
	if approvals[1]["id"] != "legacy" {
		t.Errorf("legacy entry = %v", approvals[1])
	}
	if approvals[2]["extra"] != "keepme" {
		t.Errorf("unknown field lost: %v", approvals[2])
	}
	if approvals[3]["address"] != addrA {
		t.Errorf("new event = %v", approvals[3])
	}

	var users []map[string]any
	readJSONFile(t, store.Path(database.CollectionUsers), &users)
	if len(users) != 3 || users[0]["note"] != "vip" {
		t.Errorf("users = %v", users)
	}
	if n := len(repository.NewApprovalRepository(store).All()); n != 2 {
		t.Errorf("valid approvals = %d, want 2", n)
	}
}

func readJSONFile(t *testing.T, path string, v any) {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		t.Fatalf("%s: %v", path, err)
	}
}
