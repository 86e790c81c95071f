package repository

import (
	"sync"

	"gorm.io/gorm"
)

// Manager gives unified, lazily constructed access to every repository.
type Manager struct {
	db *gorm.DB

	userOnce sync.Once
	user     UserRepository

	deviceOnce sync.Once
	device     DeviceRepository

	conceptOnce sync.Once
	concept     ConceptRepository

	denominationOnce sync.Once
	denomination     DenominationRepository

	transactionOnce sync.Once
	transaction     TransactionRepository

	bankAccountOnce sync.Once
	bankAccount     BankAccountRepository

	bankAuditOnce sync.Once
	bankAudit     BankAuditRepository

	disbursementOnce sync.Once
	disbursement     DisbursementRepository
}

// NewManager creates a repository manager.
func NewManager(db *gorm.DB) *Manager {
	return &Manager{db: db}
}

// DB returns the underlying database handle.
func (m *Manager) DB() *gorm.DB {
	return m.db
}

// User returns the user repository.
func (m *Manager) User() UserRepository {
	m.userOnce.Do(func() {
		m.user = NewUserRepository(m.db)
	})
	return m.user
}

// Device returns the device repository.
func (m *Manager) Device() DeviceRepository {
	m.deviceOnce.Do(func() {
		m.device = NewDeviceRepository(m.db)
	})
	return m.device
}

// Concept returns the concept repository.
func (m *Manager) Concept() ConceptRepository {
	m.conceptOnce.Do(func() {
		m.concept = NewConceptRepository(m.db)
	})
	return m.concept
}

// Denomination returns the denomination repository.
func (m *Manager) Denomination() DenominationRepository {
	m.denominationOnce.Do(func() {
		m.denomination = NewDenominationRepository(m.db)
	})
	return m.denomination
}

// Transaction returns the transaction repository.
func (m *Manager) Transaction() TransactionRepository {
	m.transactionOnce.Do(func() {
		m.transaction = NewTransactionRepository(m.db)
	})
	return m.transaction
}

// BankAccount returns the bank account repository.
func (m *Manager) BankAccount() BankAccountRepository {
	m.bankAccountOnce.Do(func() {
		m.bankAccount = NewBankAccountRepository(m.db)
	})
	return m.bankAccount
}

// BankAudit returns the bank audit repository.
func (m *Manager) BankAudit() BankAuditRepository {
	m.bankAuditOnce.Do(func() {
		m.bankAudit = NewBankAuditRepository(m.db)
	})
	return m.bankAudit
}

// Disbursement returns the disbursement repository.
func (m *Manager) Disbursement() DisbursementRepository {
	m.disbursementOnce.Do(func() {
		m.disbursement = NewDisbursementRepository(m.db)
	})
	return m.disbursement
}
