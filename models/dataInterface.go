package models

import (
	"time"

	"bitbucket.org/quartzbooks/ledger_backend/utils"
)

type Identifier interface {
	GetId() int
}

// interface for dataloader result
type Data interface {
	Identifier
	GetDefault(int) Data
}

// key
func (a Account) GetId() int {
	return a.ID
}

func (a Account) GetDefault(id int) Data {
	return Account{
		ID:              id,
		Type:            AccountTypeExpense,
		IsBankAccount:   utils.NewFalse(),
		IsActive:        utils.NewFalse(),
		IsSystemDefault: utils.NewFalse(),
		CreatedAt:       time.Now(),
		UpdatedAt:       time.Now(),
	}
}

func (c Contact) GetId() int {
	return c.ID
}

func (c Contact) GetDefault(id int) Data {
	return Contact{
		ID:        id,
		Type:      ContactTypeCustomer,
		IsActive:  utils.NewFalse(),
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
}

func (t Transaction) GetId() int {
	return t.ID
}

func (t Transaction) GetDefault(id int) Data {
	return Transaction{
		ID:        id,
		Type:      TransactionTypeJournal,
		Status:    TransactionStatusDraft,
		Date:      time.Now(),
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
}

func (lt TransactionLine) GetId() int {
	return lt.ID
}

func (i Invoice) GetId() int {
	return i.ID
}

func (b Bill) GetId() int {
	return b.ID
}

func (i BankFeedItem) GetId() int {
	return i.ID
}

func (s TransactionNumberSeries) GetId() int {
	return s.ID
}

// loader loading more than one model by one id
type RelatedData interface {
	GetReferenceId() int
}

func (lt TransactionLine) GetReferenceId() int {
	return lt.TransactionId
}

func (a ReceivableAllocation) GetReferenceId() int {
	return a.TransactionId
}

func (a PayableAllocation) GetReferenceId() int {
	return a.TransactionId
}
