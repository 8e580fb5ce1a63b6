package admin

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	"tradecore/internal/domain"
	"tradecore/internal/eventbus"
	"tradecore/internal/ledger"
	"tradecore/internal/repository/memstore"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestTwoEyesWithdrawalFlow(t *testing.T) {
	l := ledger.New(nil)
	repo := memstore.New()
	svc := NewService(l, repo, eventbus.New(), map[domain.Asset]decimal.Decimal{"USDT": dec("1")})
	ctx := context.Background()
	account := domain.AccountID(1)

	if err := l.Credit(account, "USDT", dec("200")); err != nil {
		t.Fatalf("credit: %v", err)
	}

	tx, err := svc.RequestWithdrawal(ctx, 1, account, "USDT", dec("100"), "addr1")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	bal := l.GetBalance(account, "USDT")
	if !bal.Locked.Equal(dec("101")) {
		t.Fatalf("expected 101 locked (amount+fee), got %s", bal.Locked)
	}

	tx, err = svc.ApproveWithdrawal(ctx, tx.ID, "admin-x")
	if err != nil {
		t.Fatalf("first approval: %v", err)
	}
	if tx.Status != domain.TxApprovedPendingSecond {
		t.Fatalf("expected approved_pending_second, got %v", tx.Status)
	}

	_, err = svc.ApproveWithdrawal(ctx, tx.ID, "admin-x")
	if err == nil {
		t.Fatal("expected same-admin second approval to be rejected")
	}
	if kind, _ := domain.KindOf(err); kind != domain.ErrAdminSameApprover {
		t.Errorf("expected ErrAdminSameApprover, got %v", kind)
	}

	tx, err = svc.ApproveWithdrawal(ctx, tx.ID, "admin-y")
	if err != nil {
		t.Fatalf("second approval: %v", err)
	}
	if tx.Status != domain.TxApproved {
		t.Fatalf("expected approved, got %v", tx.Status)
	}

	tx, err = svc.ConfirmBroadcast(ctx, tx.ID)
	if err != nil {
		t.Fatalf("confirm broadcast: %v", err)
	}
	if tx.Status != domain.TxConfirmed {
		t.Fatalf("expected confirmed, got %v", tx.Status)
	}

	bal = l.GetBalance(account, "USDT")
	if !bal.Locked.IsZero() {
		t.Errorf("expected locked fully debited, got %s", bal.Locked)
	}
	if !bal.Available.Equal(dec("99")) {
		t.Errorf("expected available 99 (200-101 locked, then debited not re-credited), got %s", bal.Available)
	}

	entries, err := svc.ListAuditEntries(ctx, func(*domain.AuditLog) bool { return true })
	if err != nil {
		t.Fatalf("list audit: %v", err)
	}
	if len(entries) < 3 {
		t.Errorf("expected at least 3 audit entries (request, 2 approvals), got %d", len(entries))
	}
}

func TestRejectWithdrawalRestoresLockedBalance(t *testing.T) {
	l := ledger.New(nil)
	repo := memstore.New()
	svc := NewService(l, repo, eventbus.New(), map[domain.Asset]decimal.Decimal{"USDT": dec("1")})
	ctx := context.Background()
	account := domain.AccountID(1)
	l.Credit(account, "USDT", dec("200"))

	tx, err := svc.RequestWithdrawal(ctx, 1, account, "USDT", dec("100"), "addr1")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if _, err := svc.ApproveWithdrawal(ctx, tx.ID, "admin-x"); err != nil {
		t.Fatalf("approve: %v", err)
	}

	tx, err = svc.RejectWithdrawal(ctx, tx.ID, "admin-y", "suspicious address")
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if tx.Status != domain.TxRejected {
		t.Fatalf("expected rejected, got %v", tx.Status)
	}

	bal := l.GetBalance(account, "USDT")
	if !bal.Available.Equal(dec("200")) || !bal.Locked.IsZero() {
		t.Errorf("expected full restore, got available=%s locked=%s", bal.Available, bal.Locked)
	}
}

func TestListPendingWithdrawalsExcludesTerminal(t *testing.T) {
	l := ledger.New(nil)
	repo := memstore.New()
	svc := NewService(l, repo, eventbus.New(), nil)
	ctx := context.Background()
	account := domain.AccountID(1)
	l.Credit(account, "USDT", dec("500"))

	pending, _ := svc.RequestWithdrawal(ctx, 1, account, "USDT", dec("10"), "addr1")
	resolved, _ := svc.RequestWithdrawal(ctx, 1, account, "USDT", dec("10"), "addr2")
	svc.ApproveWithdrawal(ctx, resolved.ID, "admin-x")
	svc.ApproveWithdrawal(ctx, resolved.ID, "admin-y")
	svc.ConfirmBroadcast(ctx, resolved.ID)

	list, err := svc.ListPendingWithdrawals(ctx)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(list) != 1 || list[0].ID != pending.ID {
		t.Fatalf("expected only the unresolved withdrawal, got %+v", list)
	}
}
