package model

import (
	"errors"
	"testing"

	"settle/apps/settle/internal/money"
)

func walletWith(t *testing.T, available string) *CreativeWallet {
	t.Helper()
	wallet := NewWallet("creative-1", testNow)
	if err := wallet.Credit(money.MustParse(available), testNow); err != nil {
		t.Fatalf("Credit failed: %v", err)
	}
	return wallet
}

func TestNewWithdrawal(t *testing.T) {
	tests := []struct {
		name    string
		amount  string
		wantErr error
	}{
		{name: "WithinBalance", amount: "20.00"},
		{name: "WholeBalance", amount: "50.00"},
		{name: "OverBalance", amount: "75.00", wantErr: ErrInsufficientBalance},
		{name: "Zero", amount: "0", wantErr: ErrInvalidAmount},
		{name: "Negative", amount: "-1.00", wantErr: ErrInvalidAmount},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			wallet := walletWith(t, "50.00")
			request, err := NewWithdrawal("wr-1", wallet, money.MustParse(test.amount), testNow)
			if test.wantErr != nil {
				if !errors.Is(err, test.wantErr) {
					t.Fatalf("Expected %v, got %v", test.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if request.Status != WithdrawalRequested {
				t.Errorf("Expected requested, got %s", request.Status)
			}
			if wallet.AvailableBalance.String() != "50.00" {
				t.Errorf("Expected request not to reserve funds, available is %s", wallet.AvailableBalance)
			}
		})
	}
}

func TestWithdrawalApprove(t *testing.T) {
	wallet := walletWith(t, "50.00")
	request, err := NewWithdrawal("wr-1", wallet, money.MustParse("30.00"), testNow)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	debited, err := request.Approve(wallet, testNow)
	if err != nil || !debited {
		t.Fatalf("Expected approval to debit, got debited=%v err=%v", debited, err)
	}
	if request.Status != WithdrawalProcessed || request.ProcessedAt == nil {
		t.Errorf("Expected processed with timestamp, got %s", request.Status)
	}
	if wallet.AvailableBalance.String() != "20.00" || wallet.PendingBalance.String() != "30.00" {
		t.Errorf("Expected 20.00 available / 30.00 pending, got %s / %s", wallet.AvailableBalance, wallet.PendingBalance)
	}

	if _, err := request.Approve(wallet, testNow); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Expected approving twice to fail, got %v", err)
	}
}

func TestWithdrawalApproveRejectsWhenBalanceShrank(t *testing.T) {
	wallet := walletWith(t, "50.00")
	request, _ := NewWithdrawal("wr-1", wallet, money.MustParse("40.00"), testNow)

	if err := wallet.Debit(money.MustParse("20.00"), testNow); err != nil {
		t.Fatalf("Debit failed: %v", err)
	}

	debited, err := request.Approve(wallet, testNow)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if debited || request.Status != WithdrawalRejected {
		t.Errorf("Expected rejection without debit, got debited=%v status=%s", debited, request.Status)
	}
	if wallet.AvailableBalance.String() != "30.00" {
		t.Errorf("Expected balance untouched at 30.00, got %s", wallet.AvailableBalance)
	}
}

func TestWalletNeverNegative(t *testing.T) {
	wallet := walletWith(t, "10.00")
	if err := wallet.Debit(money.MustParse("10.01"), testNow); !errors.Is(err, ErrInsufficientBalance) {
		t.Errorf("Expected ErrInsufficientBalance, got %v", err)
	}
	if wallet.AvailableBalance.String() != "10.00" {
		t.Errorf("Expected balance unchanged, got %s", wallet.AvailableBalance)
	}
	if err := wallet.Credit(money.Zero(), testNow); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("Expected zero credit to be rejected, got %v", err)
	}
}

func TestPaymentAdvance(t *testing.T) {
	tests := []struct {
		from PaymentStatus
		to   PaymentStatus
		want bool
	}{
		{from: PaymentInitiated, to: PaymentCreated, want: true},
		{from: PaymentCreated, to: PaymentSucceeded, want: true},
		{from: PaymentCreated, to: PaymentFailed, want: true},
		{from: PaymentFailed, to: PaymentSucceeded, want: true},
		{from: PaymentSucceeded, to: PaymentFailed, want: false},
		{from: PaymentSucceeded, to: PaymentSucceeded, want: false},
		{from: PaymentCreated, to: PaymentInitiated, want: false},
		{from: PaymentCreated, to: "refunded", want: false},
	}

	for _, test := range tests {
		t.Run(string(test.from)+"->"+string(test.to), func(t *testing.T) {
			payment := &PaymentTransaction{Status: test.from}
			if got := payment.Advance(test.to, testNow); got != test.want {
				t.Errorf("Expected %v, got %v", test.want, got)
			}
		})
	}
}
