package status

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tamra-invest/ledger-engine/internal/domain"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name      string
		completed []domain.OperationType
		want      domain.TransactionStatus
	}{
		{
			name:      "no operations",
			completed: nil,
			want:      domain.TransactionStatusInitiated,
		},
		{
			name:      "deposit recorded",
			completed: []domain.OperationType{domain.OpDepositRecorded},
			want:      domain.TransactionStatusUnderReview,
		},
		{
			name:      "deposit released",
			completed: []domain.OperationType{domain.OpDepositRecorded, domain.OpComplianceRelease},
			want:      domain.TransactionStatusAvailable,
		},
		{
			name:      "deposit rejected",
			completed: []domain.OperationType{domain.OpDepositRecorded, domain.OpComplianceReject},
			want:      domain.TransactionStatusFailed,
		},
		{
			name:      "investment lock",
			completed: []domain.OperationType{domain.OpInvestmentLock},
			want:      domain.TransactionStatusLocked,
		},
		{
			name:      "vesting lock",
			completed: []domain.OperationType{domain.OpVestingLock},
			want:      domain.TransactionStatusLocked,
		},
		{
			name:      "vesting released",
			completed: []domain.OperationType{domain.OpVestingRelease},
			want:      domain.TransactionStatusCompleted,
		},
		{
			name:      "vault deposit",
			completed: []domain.OperationType{domain.OpVaultDeposit},
			want:      domain.TransactionStatusCompleted,
		},
		{
			name:      "vault withdrawal",
			completed: []domain.OperationType{domain.OpVaultWithdraw},
			want:      domain.TransactionStatusCompleted,
		},
		{
			name:      "reversal wins over everything",
			completed: []domain.OperationType{domain.OpDepositRecorded, domain.OpComplianceRelease, domain.OpReversal},
			want:      domain.TransactionStatusReversed,
		},
		{
			name:      "reject wins over release",
			completed: []domain.OperationType{domain.OpComplianceRelease, domain.OpComplianceReject},
			want:      domain.TransactionStatusFailed,
		},
		{
			name:      "adjustment alone does not advance the saga",
			completed: []domain.OperationType{domain.OpAdjustment},
			want:      domain.TransactionStatusInitiated,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StatusFor(tt.completed))
		})
	}
}
