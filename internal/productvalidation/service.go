// Package productvalidation is the first saga participant: it checks that
// every ordered product exists in the catalog.
package productvalidation

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
	Success:        "Products are validated successfully!",
	Failure:        "Fail to validate products",
	Rollback:       "Rollback executed on product validation!",
	RollbackFailed: "Rollback not executed for product validation",
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service implements participant.Step for product validation.
type Service struct {
	repo Repository
	tx   txRunner
}

var _ participant.Step = (*Service)(nil)

// NewService builds the validation step.
func NewService(repo Repository, tx txRunner) (*Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("validation repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	return &Service{repo: repo, tx: tx}, nil
}

func (s *Service) Source() enums.EventSource {
	return enums.SourceProductValidation
}

func (s *Service) Messages() participant.Messages {
	return messages
}

// Execute validates the order lines and records a successful validation.
func (s *Service) Execute(ctx context.Context, event saga.Event) participant.Result {
	if err := checkProductsInformed(event); err != nil {
		return participant.Failed(err)
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		exists, err := repo.ValidationExists(ctx, event.OrderID, event.TransactionID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check validation")
		}
		if exists {
			return participant.DuplicateTransaction()
		}

		for _, product := range event.Payload.Products {
			ok, err := repo.ProductExists(ctx, product.ProductCode)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check product")
			}
			if !ok {
				return pkgerrors.New(pkgerrors.CodeNotFound, "Product does not exists in database!").
					WithDetails(map[string]any{"productCode": product.ProductCode})
			}
		}

		err = repo.CreateValidation(ctx, &models.Validation{
			OrderID:       event.OrderID,
			TransactionID: event.TransactionID,
			Success:       true,
		})
		if db.IsUniqueViolation(err, "") {
			return participant.DuplicateTransaction()
		}
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create validation")
		}
		return nil
	})
	if err != nil {
		return participant.Failed(err)
	}
	return participant.Succeeded()
}

// Compensate marks the validation of the transaction as unsuccessful.
func (s *Service) Compensate(ctx context.Context, event saga.Event) participant.Result {
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		validation, err := repo.FindValidation(ctx, event.OrderID, event.TransactionID)
		if db.IsNotFound(err) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "Validation not found by orderId and transactionId")
		}
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load validation")
		}
		validation.Success = false
		if err := repo.UpdateValidation(ctx, validation); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update validation")
		}
		return nil
	})
	if err != nil {
		return participant.Failed(err)
	}
	return participant.Succeeded()
}

// AddProduct registers a product code in the catalog.
func (s *Service) AddProduct(ctx context.Context, code string) error {
	if code == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "product code is required")
	}
	err := s.repo.CreateProduct(ctx, &models.Product{Code: code})
	if db.IsUniqueViolation(err, "") {
		return pkgerrors.New(pkgerrors.CodeConflict, "product already exists")
	}
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create product")
	}
	return nil
}

func checkProductsInformed(event saga.Event) error {
	if len(event.Payload.Products) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "Product list is empty!")
	}
	if err := participant.ValidateIdentity(event); err != nil {
		return err
	}
	for _, product := range event.Payload.Products {
		if product.ProductCode == "" {
			return pkgerrors.New(pkgerrors.CodeValidation, "Product must be informed!")
		}
	}
	return nil
}
