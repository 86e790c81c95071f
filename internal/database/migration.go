package database

import (
	"fmt"

	"github.com/venturus/cdm-teller/internal/logger"
	"github.com/venturus/cdm-teller/internal/models"
	"go.uber.org/zap"
)

// AutoMigrate creates or updates the table schema.
func AutoMigrate() error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}

	migrationModels := []interface{}{
		// operators
		&models.User{},
		&models.BankAccount{},

		// machines and catalogs
		&models.Device{},
		&models.Concept{},
		&models.Denomination{},

		// deposits
		&models.Transaction{},
		&models.TransactionDetail{},
		&models.BankAPIAudit{},

		// collection workflow
		&models.DisbursementRequest{},
	}

	for _, model := range migrationModels {
		if err := DB.AutoMigrate(model); err != nil {
			logger.Error("migration failed",
				zap.String("model", fmt.Sprintf("%T", model)),
				zap.Error(err),
			)
			return fmt.Errorf("failed to migrate %T: %w", model, err)
		}
	}

	logger.Info("database migration complete", zap.Int("models", len(migrationModels)))
	return nil
}
