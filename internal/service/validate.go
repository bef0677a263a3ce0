package service

import (
	"github.com/ayo6706/ledger-core/internal/domain"
	"github.com/ayo6706/ledger-core/internal/models"
	"github.com/shopspring/decimal"
)

// transferPlan is a validated transfer intent: the balances to write and the
// versions observed when they were computed.
type transferPlan struct {
	sender          *models.Account
	receiver        *models.Account
	amount          decimal.Decimal
	senderBalance   decimal.Decimal
	receiverBalance decimal.Decimal
}

func validateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return models.ErrInvalidAmount
	}
	if err := domain.CheckScale(amount); err != nil {
		return models.ErrInvalidAmount
	}
	return nil
}

// planTransfer applies the checks that need both accounts in hand. Both strategies
// call it after their reads so failures are reported identically.
func planTransfer(sender, receiver *models.Account, amount decimal.Decimal) (*transferPlan, error) {
	if sender.ID == receiver.ID {
		return nil, models.ErrSelfTransfer
	}
	if sender.Balance.LessThan(amount) {
		return nil, &models.InsufficientFundsError{
			AccountID: sender.ID,
			Required:  amount,
			Available: sender.Balance,
		}
	}
	return &transferPlan{
		sender:          sender,
		receiver:        receiver,
		amount:          amount,
		senderBalance:   sender.Balance.Sub(amount),
		receiverBalance: receiver.Balance.Add(amount),
	}, nil
}
