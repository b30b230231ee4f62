package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"
)

type AccountType string

const (
	AccountTypeAsset     AccountType = "Asset"
	AccountTypeLiability AccountType = "Liability"
	AccountTypeEquity    AccountType = "Equity"
	AccountTypeIncome    AccountType = "Income"
	AccountTypeExpense   AccountType = "Expense"
)

// convert enum to send response
func (t AccountType) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(string(t))), nil
}

// convert input to enum type
func (t *AccountType) UnmarshalJSON(b []byte) error {
	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return errors.New("account type must be string")
	}
	switch str {
	case "Asset":
		*t = AccountTypeAsset
	case "Liability":
		*t = AccountTypeLiability
	case "Equity":
		*t = AccountTypeEquity
	case "Income":
		*t = AccountTypeIncome
	case "Expense":
		*t = AccountTypeExpense
	default:
		return errors.New("invalid account type")
	}
	return nil
}

type TransactionType string

const (
	TransactionTypePayment  TransactionType = "Payment"
	TransactionTypeReceipt  TransactionType = "Receipt"
	TransactionTypeJournal  TransactionType = "Journal"
	TransactionTypeTransfer TransactionType = "Transfer"
)

func (t TransactionType) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(string(t))), nil
}

func (t *TransactionType) UnmarshalJSON(b []byte) error {
	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return errors.New("transaction type must be string")
	}
	switch str {
	case "Payment":
		*t = TransactionTypePayment
	case "Receipt":
		*t = TransactionTypeReceipt
	case "Journal":
		*t = TransactionTypeJournal
	case "Transfer":
		*t = TransactionTypeTransfer
	default:
		return errors.New("invalid transaction type")
	}
	return nil
}

type TransactionStatus string

const (
	TransactionStatusDraft    TransactionStatus = "Draft"
	TransactionStatusPosted   TransactionStatus = "Posted"
	TransactionStatusReversed TransactionStatus = "Reversed"
)

func (s TransactionStatus) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(string(s))), nil
}

func (s *TransactionStatus) UnmarshalJSON(b []byte) error {
	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return errors.New("transaction status must be string")
	}
	switch str {
	case "Draft":
		*s = TransactionStatusDraft
	case "Posted":
		*s = TransactionStatusPosted
	case "Reversed":
		*s = TransactionStatusReversed
	default:
		return errors.New("invalid transaction status")
	}
	return nil
}

type LineDirection string

const (
	LineDirectionDebit  LineDirection = "Debit"
	LineDirectionCredit LineDirection = "Credit"
)

func (d LineDirection) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(string(d))), nil
}

func (d *LineDirection) UnmarshalJSON(b []byte) error {
	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return errors.New("line direction must be string")
	}
	switch str {
	case "Debit":
		*d = LineDirectionDebit
	case "Credit":
		*d = LineDirectionCredit
	default:
		return errors.New("invalid line direction")
	}
	return nil
}

// Opposite returns the inverted direction, used when building reversal lines.
func (d LineDirection) Opposite() LineDirection {
	if d == LineDirectionDebit {
		return LineDirectionCredit
	}
	return LineDirectionDebit
}

type FeedItemStatus string

const (
	FeedItemStatusNew     FeedItemStatus = "New"
	FeedItemStatusMatched FeedItemStatus = "Matched"
	FeedItemStatusCreated FeedItemStatus = "Created"
	FeedItemStatusIgnored FeedItemStatus = "Ignored"
	FeedItemStatusSplit   FeedItemStatus = "Split"
)

func (s FeedItemStatus) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(string(s))), nil
}

func (s *FeedItemStatus) UnmarshalJSON(b []byte) error {
	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return errors.New("feed item status must be string")
	}
	feedItemStatus := map[string]FeedItemStatus{
		"New":     FeedItemStatusNew,
		"Matched": FeedItemStatusMatched,
		"Created": FeedItemStatusCreated,
		"Ignored": FeedItemStatusIgnored,
		"Split":   FeedItemStatusSplit,
	}
	var ok bool
	*s, ok = feedItemStatus[str]
	if !ok {
		return errors.New("invalid feed item status")
	}
	return nil
}

// IsResolved reports whether the item already carries a terminal resolution.
func (s FeedItemStatus) IsResolved() bool {
	return s == FeedItemStatusMatched || s == FeedItemStatusCreated ||
		s == FeedItemStatusIgnored || s == FeedItemStatusSplit
}

type MatchType string

const (
	MatchTypeAuto   MatchType = "Auto"
	MatchTypeManual MatchType = "Manual"
	MatchTypeSplit  MatchType = "Split"
)

func (t MatchType) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(string(t))), nil
}

func (t *MatchType) UnmarshalJSON(b []byte) error {
	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return errors.New("match type must be string")
	}
	switch str {
	case "Auto":
		*t = MatchTypeAuto
	case "Manual":
		*t = MatchTypeManual
	case "Split":
		*t = MatchTypeSplit
	default:
		return errors.New("invalid match type")
	}
	return nil
}

type ContactType string

const (
	ContactTypeCustomer ContactType = "Customer"
	ContactTypeSupplier ContactType = "Supplier"
)

func (t ContactType) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(string(t))), nil
}

func (t *ContactType) UnmarshalJSON(b []byte) error {
	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return errors.New("contact type must be string")
	}
	switch str {
	case "Customer":
		*t = ContactTypeCustomer
	case "Supplier":
		*t = ContactTypeSupplier
	default:
		return errors.New("invalid contact type")
	}
	return nil
}

type InvoiceStatus string

const (
	InvoiceStatusOpen          InvoiceStatus = "Open"
	InvoiceStatusPartiallyPaid InvoiceStatus = "Partially Paid"
	InvoiceStatusPaid          InvoiceStatus = "Paid"
	InvoiceStatusVoid          InvoiceStatus = "Void"
)

func (s InvoiceStatus) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(string(s))), nil
}

func (s *InvoiceStatus) UnmarshalJSON(b []byte) error {
	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return errors.New("invoice status must be string")
	}
	invoiceStatus := map[string]InvoiceStatus{
		"Open":           InvoiceStatusOpen,
		"Partially Paid": InvoiceStatusPartiallyPaid,
		"Paid":           InvoiceStatusPaid,
		"Void":           InvoiceStatusVoid,
	}
	var ok bool
	*s, ok = invoiceStatus[str]
	if !ok {
		return errors.New("invalid invoice status")
	}
	return nil
}

type BillStatus string

const (
	BillStatusOpen          BillStatus = "Open"
	BillStatusPartiallyPaid BillStatus = "Partially Paid"
	BillStatusPaid          BillStatus = "Paid"
	BillStatusVoid          BillStatus = "Void"
)

func (s BillStatus) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(string(s))), nil
}

func (s *BillStatus) UnmarshalJSON(b []byte) error {
	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return errors.New("bill status must be string")
	}
	billStatus := map[string]BillStatus{
		"Open":           BillStatusOpen,
		"Partially Paid": BillStatusPartiallyPaid,
		"Paid":           BillStatusPaid,
		"Void":           BillStatusVoid,
	}
	var ok bool
	*s, ok = billStatus[str]
	if !ok {
		return errors.New("invalid bill status")
	}
	return nil
}

type PaymentTerms string

const (
	PaymentTermsNet15             PaymentTerms = "Net15"
	PaymentTermsNet30             PaymentTerms = "Net30"
	PaymentTermsNet45             PaymentTerms = "Net45"
	PaymentTermsNet60             PaymentTerms = "Net60"
	PaymentTermsDueEndOfMonth     PaymentTerms = "DueMonthEnd"
	PaymentTermsDueEndOfNextMonth PaymentTerms = "DueNextMonthEnd"
	PaymentTermsDueOnReceipt      PaymentTerms = "DueOnReceipt"
	PaymentTermsCustom            PaymentTerms = "Custom"
)

func (p PaymentTerms) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(string(p))), nil
}

func (p *PaymentTerms) UnmarshalJSON(b []byte) error {
	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return errors.New("paymentTerms must be string")
	}

	paymentTerms := map[string]PaymentTerms{
		"Net15":           PaymentTermsNet15,
		"Net30":           PaymentTermsNet30,
		"Net45":           PaymentTermsNet45,
		"Net60":           PaymentTermsNet60,
		"DueMonthEnd":     PaymentTermsDueEndOfMonth,
		"DueNextMonthEnd": PaymentTermsDueEndOfNextMonth,
		"DueOnReceipt":    PaymentTermsDueOnReceipt,
		"Custom":          PaymentTermsCustom,
	}

	var ok bool
	*p, ok = paymentTerms[str]
	if !ok {
		return errors.New("invalid paymentTerms")
	}

	return nil
}

type UserRole string

const (
	UserRoleAdmin UserRole = "A"
	UserRoleOwner UserRole = "O"
	UserRoleUser  UserRole = "U"
)

func (r UserRole) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(string(r))), nil
}

func (r *UserRole) UnmarshalJSON(b []byte) error {
	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return errors.New("user role must be string")
	}

	userRole := map[string]UserRole{
		"A": UserRoleAdmin,
		"O": UserRoleOwner,
		"U": UserRoleUser,
	}

	var ok bool
	*r, ok = userRole[str]
	if !ok {
		return errors.New("invalid user role")
	}
	return nil
}

type PubSubMessageAction string

const (
	PubSubMessageActionCreate PubSubMessageAction = "C"
	PubSubMessageActionUpdate PubSubMessageAction = "U"
	PubSubMessageActionDelete PubSubMessageAction = "D"
)

// convert enum to send response
func (t PubSubMessageAction) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(string(t))), nil
}

// convert input to enum type
func (t *PubSubMessageAction) UnmarshalJSON(b []byte) error {
	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return errors.New("pub sub message action must be string")
	}
	switch str {
	case "C":
		*t = PubSubMessageActionCreate
	case "U":
		*t = PubSubMessageActionUpdate
	case "D":
		*t = PubSubMessageActionDelete
	default:
		return errors.New("invalid pub sub message action")
	}
	return nil
}

type LedgerReferenceType string

const (
	LedgerReferenceTypeTransaction          LedgerReferenceType = "TXN"
	LedgerReferenceTypeInvoice              LedgerReferenceType = "IV"
	LedgerReferenceTypeBill                 LedgerReferenceType = "BL"
	LedgerReferenceTypeReceivableAllocation LedgerReferenceType = "RA"
	LedgerReferenceTypePayableAllocation    LedgerReferenceType = "PA"
	LedgerReferenceTypeBankFeedItem         LedgerReferenceType = "BFI"
	LedgerReferenceTypeBankFeedBatch        LedgerReferenceType = "BFB"
	LedgerReferenceTypeReconciliationMatch  LedgerReferenceType = "RM"
	LedgerReferenceTypeAllocationRule       LedgerReferenceType = "ARL"
	LedgerReferenceTypeAccount              LedgerReferenceType = "AC"
	LedgerReferenceTypeContact              LedgerReferenceType = "CT"
)

func (t LedgerReferenceType) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(string(t))), nil
}

func (t *LedgerReferenceType) UnmarshalJSON(b []byte) error {
	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return errors.New("ledger reference type must be string")
	}

	ledgerReferenceType := map[string]LedgerReferenceType{
		"TXN": LedgerReferenceTypeTransaction,
		"IV":  LedgerReferenceTypeInvoice,
		"BL":  LedgerReferenceTypeBill,
		"RA":  LedgerReferenceTypeReceivableAllocation,
		"PA":  LedgerReferenceTypePayableAllocation,
		"BFI": LedgerReferenceTypeBankFeedItem,
		"BFB": LedgerReferenceTypeBankFeedBatch,
		"RM":  LedgerReferenceTypeReconciliationMatch,
		"ARL": LedgerReferenceTypeAllocationRule,
		"AC":  LedgerReferenceTypeAccount,
		"CT":  LedgerReferenceTypeContact,
	}

	var ok bool
	*t, ok = ledgerReferenceType[str]
	if !ok {
		return errors.New("invalid ledger reference type")
	}

	return nil
}

type MyDateString time.Time

func (t MyDateString) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(time.Time(t).Format("2006-01-02T15:04:05"))), nil
}

// Parse the string into time.Time object
func (t *MyDateString) UnmarshalJSON(b []byte) error {
	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return errors.New("MyDateString must be string")
	}

	// Parse the date string into a time.Time object
	localTime, err := time.Parse("2006-01-02T15:04:05", str)
	if err != nil {
		return errors.New("error parsing datetime")
	}
	*t = MyDateString(localTime)

	return nil
}

func (t *MyDateString) StartOfDayUTCTime(timezone string) error {
	// do nothing if the pointer is nil
	if t == nil {
		return nil
	}

	localTime := time.Time(*t)

	if timezone == "" {
		timezone = "UTC"
	}

	// Load the location for the given timezone
	location, err := time.LoadLocation(timezone)
	if err != nil {
		fmt.Println("Error loading location:", err)
		return err
	}

	// Convert the start of the day local time to the specified timezone
	localTimeInZone := time.Date(
		localTime.Year(), localTime.Month(), localTime.Day(),
		0, 0, 0, 0,
		location,
	)

	// Convert the time to UTC
	utcTime := localTimeInZone.In(time.UTC)
	*t = MyDateString(utcTime)

	return nil
}

func (t *MyDateString) EndOfDayUTCTime(timezone string) error {
	// do nothing if the pointer is nil
	if t == nil {
		return nil
	}

	localTime := time.Time(*t)

	if timezone == "" {
		timezone = "UTC"
	}

	// Load the location for the given timezone
	location, err := time.LoadLocation(timezone)
	if err != nil {
		fmt.Println("Error loading location:", err)
		return err
	}

	// Convert the end of the day local time to the specified timezone
	localTimeInZone := time.Date(
		localTime.Year(), localTime.Month(), localTime.Day(),
		23, 59, 59, 999, // Max nanoseconds
		location,
	)

	// Convert the time to UTC
	utcTime := localTimeInZone.In(time.UTC)
	*t = MyDateString(utcTime)

	return nil
}

func (t *MyDateString) UTCTime(timezone string) error {
	// do nothing if the pointer is nil
	if t == nil {
		return nil
	}

	localTime := time.Time(*t)

	if timezone == "" {
		timezone = "UTC"
	}

	// Load the location for the given timezone
	location, err := time.LoadLocation(timezone)
	if err != nil {
		fmt.Println("Error loading location:", err)
		return err
	}

	localTimeInZone := time.Date(
		localTime.Year(), localTime.Month(), localTime.Day(),
		localTime.Hour(), localTime.Minute(), localTime.Second(), localTime.Nanosecond(),
		location,
	)

	utcTime := localTimeInZone.In(time.UTC)
	*t = MyDateString(utcTime)

	return nil
}
