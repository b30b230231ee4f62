package models

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"time"

	"bitbucket.org/quartzbooks/ledger_backend/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PublishToLedger implements the transactional outbox:
// it writes the message record inside the caller's DB transaction but does NOT publish to Pub/Sub.
// Publishing is performed asynchronously by the outbox dispatcher after commit.
func PublishToLedger(ctx context.Context, db *gorm.DB, companyId string, eventDateTime time.Time, refId int, refType LedgerReferenceType, obj interface{}, oldObj interface{}, msgAction PubSubMessageAction) error {

	var objInByte []byte
	var oldObjInByte []byte
	var err error

	if msgAction == PubSubMessageActionCreate || msgAction == PubSubMessageActionUpdate {
		objInByte, err = ToJSONWithoutField(obj, "MatchedTransaction")
		if err != nil {
			return err
		}
	}
	if msgAction == PubSubMessageActionUpdate || msgAction == PubSubMessageActionDelete {
		oldObjInByte, err = ToJSONWithoutField(oldObj, "MatchedTransaction")
		if err != nil {
			return err
		}
	}

	record := PubSubMessageRecord{
		CompanyId:     companyId,
		EventDateTime: eventDateTime,
		ReferenceId:   refId,
		ReferenceType: refType,
		Action:        msgAction,
		NewObj:        objInByte,
		OldObj:        oldObjInByte,
		IsProcessed:   false,
		PublishStatus: OutboxPublishStatusPending,
		CorrelationId: correlationIdFromContextOrNew(ctx),
	}
	err = db.Create(&record).Error
	if err != nil {
		return err
	}
	return nil
}

func correlationIdFromContextOrNew(ctx context.Context) string {
	if ctx != nil {
		if v, ok := utils.GetCorrelationIdFromContext(ctx); ok && v != "" {
			return v
		}
	}
	return uuid.NewString()
}

// ToJSONWithoutField converts an object to JSON after temporarily removing a specified field
func ToJSONWithoutField(obj interface{}, fieldName string) ([]byte, error) {
	// Get the value of the object
	val := reflect.ValueOf(obj)

	// If the value is an interface, get the concrete value it holds
	if val.Kind() == reflect.Interface {
		val = val.Elem()
	}

	// If the value is not a pointer, create a pointer to it
	if val.Kind() != reflect.Ptr {
		valPtr := reflect.New(val.Type())
		valPtr.Elem().Set(val)
		val = valPtr
	}

	// Dereference the pointer
	val = val.Elem()

	// Ensure the value is a struct
	if val.Kind() != reflect.Struct {
		return nil, fmt.Errorf("expected a struct, got %v", val.Kind())
	}

	// Find the field by name
	field := val.FieldByName(fieldName)
	var err error
	var jsonData []byte
	if field.IsValid() {
		// Store the original value of the field
		originalValue := reflect.New(field.Type()).Elem()
		originalValue.Set(field)

		// Clear the field value
		field.Set(reflect.Zero(field.Type()))

		// Convert the object to JSON
		jsonData, err = json.Marshal(val.Interface())

		// Restore the original value
		field.Set(originalValue)
	} else {
		// Convert the object to JSON
		jsonData, err = json.Marshal(val.Interface())
	}
	if err != nil {
		return nil, err
	}
	return jsonData, nil
}

func calculateDueDate(date time.Time, paymentTerms PaymentTerms, customDays int) *time.Time {
	var dueDate time.Time
	switch terms := paymentTerms; terms {
	case PaymentTermsDueOnReceipt:
		dueDate = date
	case PaymentTermsNet15:
		dueDate = date.AddDate(0, 0, 15)
	case PaymentTermsNet30:
		dueDate = date.AddDate(0, 0, 30)
	case PaymentTermsNet45:
		dueDate = date.AddDate(0, 0, 45)
	case PaymentTermsNet60:
		dueDate = date.AddDate(0, 0, 60)
	case PaymentTermsDueEndOfMonth:
		year, month, _ := date.Date()
		firstOfMonth := time.Date(year, month, 1, 0, 0, 0, 0, date.Location())
		dueDate = firstOfMonth.AddDate(0, 1, -1)
	case PaymentTermsDueEndOfNextMonth:
		year, month, _ := date.Date()
		firstOfNextMonth := time.Date(year, month+1, 1, 0, 0, 0, 0, date.Location())
		dueDate = firstOfNextMonth.AddDate(0, 1, -1)
	case PaymentTermsCustom:
		dueDate = date.AddDate(0, 0, customDays)
	}
	return &dueDate
}

type PeriodLockType string

const (
	ReceivablePeriodLock PeriodLockType = "ReceivablePeriodLock"
	PayablePeriodLock    PeriodLockType = "PayablePeriodLock"
	BankingPeriodLock    PeriodLockType = "BankingPeriodLock"
	AccountantPeriodLock PeriodLockType = "AccountantPeriodLock"
)

func validatePeriodLock(ctx context.Context, date time.Time, companyId string, lockType PeriodLockType) error {
	company, err := GetCompanyById(ctx, companyId)
	if err != nil {
		return err
	}
	var lockDate time.Time
	switch lockType {
	case ReceivablePeriodLock:
		lockDate = company.ReceivableLockDate
	case PayablePeriodLock:
		lockDate = company.PayableLockDate
	case BankingPeriodLock:
		lockDate = company.BankingLockDate
	case AccountantPeriodLock:
		lockDate = company.AccountantLockDate
	default:
		return errors.New("invalid period lock type")
	}
	tDate, err := utils.ConvertToDate(date, company.Timezone)
	if err != nil {
		return err
	}
	lDate, err := utils.ConvertToDate(lockDate, company.Timezone)
	if err != nil {
		return err
	}
	if !tDate.After(lDate) {
		return &PeriodLockedError{Date: tDate, LockDate: lDate, LockType: lockType}
	}
	mDate, err := utils.ConvertToDate(company.MigrationDate, company.Timezone)
	if err != nil {
		return err
	}
	if !tDate.After(mDate) {
		return &PeriodLockedError{Date: tDate, LockDate: mDate, LockType: lockType}
	}
	return nil
}

// ValidatePeriodLock enforces posting locks (period close) server-side.
// This is safe to call from both API mutations and async workers.
func ValidatePeriodLock(ctx context.Context, date time.Time, companyId string, lockType PeriodLockType) error {
	return validatePeriodLock(ctx, date, companyId, lockType)
}

// IsPeriodLocked answers the collaborator form of the same check.
func IsPeriodLocked(ctx context.Context, date time.Time, companyId string, lockType PeriodLockType) (bool, error) {
	err := validatePeriodLock(ctx, date, companyId, lockType)
	if err == nil {
		return false, nil
	}
	var locked *PeriodLockedError
	if errors.As(err, &locked) {
		return true, nil
	}
	return false, err
}

func ParseDateString(dateString string, timezone string) (time.Time, error) {

	// Parse the date string into a time.Time object
	localTime, err := time.Parse("2006-01-02T15:04:05", dateString)
	if err != nil {
		return time.Time{}, err
	}

	if timezone == "" {
		timezone = "UTC"
	}

	// Load the location for the given timezone
	location, err := time.LoadLocation(timezone)
	if err != nil {
		return time.Time{}, err
	}

	// Convert the local time to the specified timezone
	localTimeInZone := time.Date(
		localTime.Year(), localTime.Month(), localTime.Day(),
		localTime.Hour(), localTime.Minute(), localTime.Second(), localTime.Nanosecond(),
		location,
	)

	// Convert the time to UTC
	return localTimeInZone.UTC(), nil
}
