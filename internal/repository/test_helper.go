package repository

import (
	"github.com/venturus/cdm-teller/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// SetupTestDB opens an in-memory sqlite database with the full schema.
func SetupTestDB() *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		panic(err)
	}

	err = db.AutoMigrate(
		&models.User{},
		&models.BankAccount{},
		&models.Device{},
		&models.Concept{},
		&models.Denomination{},
		&models.Transaction{},
		&models.TransactionDetail{},
		&models.BankAPIAudit{},
		&models.DisbursementRequest{},
	)
	if err != nil {
		panic(err)
	}

	return db
}

// CleanupTestDB closes the test database.
func CleanupTestDB(db *gorm.DB) {
	if db == nil {
		return
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}
}
