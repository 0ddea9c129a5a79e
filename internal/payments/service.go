// Package payments is the second saga participant. It charges the order
// total and refunds it on compensation.
package payments

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/order-saga/internal/participant"
	"github.com/angelmondragon/order-saga/pkg/db"
	"github.com/angelmondragon/order-saga/pkg/db/models"
	"github.com/angelmondragon/order-saga/pkg/enums"
	pkgerrors "github.com/angelmondragon/order-saga/pkg/errors"
	"github.com/angelmondragon/order-saga/pkg/saga"
)

var messages = participant.Messages{
	Success:        "Payment realized successfully!",
	Failure:        "Fail to realize payment",
	Rollback:       "Rollback executed for payment!",
	RollbackFailed: "Rollback not executed for payment",
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service implements participant.Step for payments.
type Service struct {
	repo      Repository
	tx        txRunner
	minAmount decimal.Decimal
}

var _ participant.Step = (*Service)(nil)

// NewService builds the payment step. Orders below minAmount are refused.
func NewService(repo Repository, tx txRunner, minAmount decimal.Decimal) (*Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("payments repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if minAmount.IsNegative() {
		return nil, fmt.Errorf("minimum amount must not be negative")
	}
	return &Service{repo: repo, tx: tx, minAmount: minAmount}, nil
}

func (s *Service) Source() enums.EventSource {
	return enums.SourcePayment
}

func (s *Service) Messages() participant.Messages {
	return messages
}

// Totals returns Σ quantity × unitValue and Σ quantity over the order lines.
// The amount is exact; it is rounded to cents only when stored.
func Totals(order saga.Order) (decimal.Decimal, int) {
	amount := decimal.Zero
	items := 0
	for _, product := range order.Products {
		line := decimal.NewFromFloat(product.UnitValue).Mul(decimal.NewFromInt(int64(product.Quantity)))
		amount = amount.Add(line)
		items += product.Quantity
	}
	return amount, items
}

// Execute charges the order. The computed totals are written into the
// payload whatever the outcome.
func (s *Service) Execute(ctx context.Context, event saga.Event) participant.Result {
	amount, items := Totals(event.Payload)
	payload := withTotals(event.Payload, amount, items)

	if err := participant.ValidateIdentity(event); err != nil {
		return participant.FailedWith(err, payload)
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		exists, err := repo.Exists(ctx, event.OrderID, event.TransactionID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check payment")
		}
		if exists {
			return participant.DuplicateTransaction()
		}

		payment := &models.Payment{
			OrderID:       event.OrderID,
			TransactionID: event.TransactionID,
			TotalAmount:   amount.Round(2),
			TotalItems:    items,
			Status:        enums.PaymentStatusPending,
		}
		err = repo.Create(ctx, payment)
		if db.IsUniqueViolation(err, "") {
			return participant.DuplicateTransaction()
		}
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payment")
		}

		if amount.LessThan(s.minAmount) {
			return pkgerrors.New(pkgerrors.CodeValidation, "The minimum amount available is "+s.minAmount.String())
		}

		payment.Status = enums.PaymentStatusSuccess
		if err := repo.Save(ctx, payment); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "confirm payment")
		}
		return nil
	})
	if err != nil {
		return participant.FailedWith(err, payload)
	}
	return participant.SucceededWith(payload)
}

// Compensate refunds the payment of the transaction.
func (s *Service) Compensate(ctx context.Context, event saga.Event) participant.Result {
	var refunded *models.Payment
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		payment, err := repo.Find(ctx, event.OrderID, event.TransactionID)
		if db.IsNotFound(err) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "Payment not found by orderId and transactionId")
		}
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment")
		}
		payment.Status = enums.PaymentStatusRefund
		if err := repo.Save(ctx, payment); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "refund payment")
		}
		refunded = payment
		return nil
	})
	if err != nil {
		return participant.Failed(err)
	}
	return participant.SucceededWith(withTotals(event.Payload, refunded.TotalAmount, refunded.TotalItems))
}

func withTotals(order saga.Order, amount decimal.Decimal, items int) saga.Order {
	order.TotalAmount = amount.InexactFloat64()
	order.TotalItems = items
	return order
}
