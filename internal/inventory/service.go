// Package inventory is the last saga participant. It reserves stock for the
// order and puts it back on compensation.
package inventory

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/angelmondragon/order-saga/internal/participant"
	"github.com/angelmondragon/order-saga/pkg/db"
	"github.com/angelmondragon/order-saga/pkg/db/models"
	"github.com/angelmondragon/order-saga/pkg/enums"
	pkgerrors "github.com/angelmondragon/order-saga/pkg/errors"
	"github.com/angelmondragon/order-saga/pkg/saga"
)

var messages = participant.Messages{
	Success:        "Inventory updated successfully!",
	Failure:        "Fail to update inventory",
	Rollback:       "Rollback executed for inventory!",
	RollbackFailed: "Rollback not executed for inventory",
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service implements participant.Step for inventory.
type Service struct {
	repo Repository
	tx   txRunner
}

var _ participant.Step = (*Service)(nil)

// NewService builds the inventory step.
func NewService(repo Repository, tx txRunner) (*Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("inventory repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	return &Service{repo: repo, tx: tx}, nil
}

func (s *Service) Source() enums.EventSource {
	return enums.SourceInventory
}

func (s *Service) Messages() participant.Messages {
	return messages
}

type line struct {
	code     string
	quantity int
}

// Execute decrements the stock of every ordered product, recording the
// previous level of each so that it can be restored.
func (s *Service) Execute(ctx context.Context, event saga.Event) participant.Result {
	lines, err := orderLines(event)
	if err != nil {
		return participant.Failed(err)
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		exists, err := repo.MovementsExist(ctx, event.OrderID, event.TransactionID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check inventory movements")
		}
		if exists {
			return participant.DuplicateTransaction()
		}
		for _, l := range lines {
			if err := reserve(ctx, repo, event, l); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return participant.Failed(err)
	}
	return participant.Succeeded()
}

func reserve(ctx context.Context, repo Repository, event saga.Event, l line) error {
	inv, err := repo.FindByProductCode(ctx, l.code)
	if db.IsNotFound(err) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "Inventory not found by informed product").
			WithDetails(map[string]any{"productCode": l.code})
	}
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load inventory")
	}
	if l.quantity > inv.Available {
		return pkgerrors.New(pkgerrors.CodeInsufficientStock, "Product is out of stock!").
			WithDetails(map[string]any{"productCode": l.code, "available": inv.Available})
	}

	movement := &models.OrderInventory{
		InventoryID:   inv.ID,
		OrderID:       event.OrderID,
		TransactionID: event.TransactionID,
		ProductCode:   l.code,
		OldQuantity:   inv.Available,
		OrderQuantity: l.quantity,
		NewQuantity:   inv.Available - l.quantity,
	}
	err = repo.CreateMovement(ctx, movement)
	if db.IsUniqueViolation(err, "") {
		return participant.DuplicateTransaction()
	}
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record inventory movement")
	}

	inv.Available = movement.NewQuantity
	if err := repo.UpdateAvailable(ctx, inv); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update inventory")
	}
	return nil
}

// Compensate restores every touched inventory to the level it had before
// the forward step.
func (s *Service) Compensate(ctx context.Context, event saga.Event) participant.Result {
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		movements, err := repo.FindMovements(ctx, event.OrderID, event.TransactionID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load inventory movements")
		}
		if len(movements) == 0 {
			return pkgerrors.New(pkgerrors.CodeNotFound, "Inventory movements not found by orderId and transactionId")
		}
		for _, m := range movements {
			inv, err := repo.FindByID(ctx, m.InventoryID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load inventory")
			}
			inv.Available = m.OldQuantity
			if err := repo.UpdateAvailable(ctx, inv); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "restore inventory")
			}
		}
		return nil
	})
	if err != nil {
		return participant.Failed(err)
	}
	return participant.Succeeded()
}

// Available returns the current stock of a product.
func (s *Service) Available(ctx context.Context, code string) (int, error) {
	inv, err := s.repo.FindByProductCode(ctx, code)
	if db.IsNotFound(err) {
		return 0, pkgerrors.New(pkgerrors.CodeNotFound, "Inventory not found by informed product")
	}
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load inventory")
	}
	return inv.Available, nil
}

// SetStock creates or overwrites the stock level of a product.
func (s *Service) SetStock(ctx context.Context, code string, available int) error {
	if code == "" || available < 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "product code and a non-negative quantity are required")
	}
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		inv, err := repo.FindByProductCode(ctx, code)
		if db.IsNotFound(err) {
			return repo.Create(ctx, &models.Inventory{ProductCode: code, Available: available})
		}
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load inventory")
		}
		inv.Available = available
		return repo.UpdateAvailable(ctx, inv)
	})
}

// orderLines merges repeated product codes so each inventory row is moved
// once per transaction.
func orderLines(event saga.Event) ([]line, error) {
	if err := participant.ValidateIdentity(event); err != nil {
		return nil, err
	}
	if len(event.Payload.Products) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "Product list is empty!")
	}
	index := map[string]int{}
	lines := make([]line, 0, len(event.Payload.Products))
	for _, p := range event.Payload.Products {
		if p.ProductCode == "" || p.Quantity <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "Product and a positive quantity must be informed!")
		}
		if i, ok := index[p.ProductCode]; ok {
			lines[i].quantity += p.Quantity
			continue
		}
		index[p.ProductCode] = len(lines)
		lines = append(lines, line{code: p.ProductCode, quantity: p.Quantity})
	}
	return lines, nil
}
