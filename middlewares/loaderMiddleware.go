package middlewares

import (
	"context"
	"reflect"
	"time"

	"bitbucket.org/quartzbooks/ledger_backend/config"
	"bitbucket.org/quartzbooks/ledger_backend/models"
	"github.com/gin-gonic/gin"
	"github.com/graph-gophers/dataloader/v7"
	"gorm.io/gorm"
)

type ctxKey string

const (
	loadersKey = ctxKey("dataloaders")
)

// Loaders batch per-request lookups so list endpoints hydrate related rows
// without N+1 queries. Tenancy comes from the request context via the
// tenant guard.
type Loaders struct {
	AccountLoader         *dataloader.Loader[int, *models.Account]
	ContactLoader         *dataloader.Loader[int, *models.Contact]
	TransactionLoader     *dataloader.Loader[int, *models.Transaction]
	TransactionLineLoader *dataloader.Loader[int, []*models.TransactionLine]

	ReceivableAllocationLoader *dataloader.Loader[int, []*models.ReceivableAllocation]
	PayableAllocationLoader    *dataloader.Loader[int, []*models.PayableAllocation]
}

// NewLoaders instantiates data loaders for the middleware
func NewLoaders(conn *gorm.DB) *Loaders {
	accountReader := &accountReader{db: conn}
	contactReader := &contactReader{db: conn}
	transactionReader := &transactionReader{db: conn}
	transactionLineReader := &transactionLineReader{db: conn}
	receivableAllocationReader := &receivableAllocationReader{db: conn}
	payableAllocationReader := &payableAllocationReader{db: conn}

	return &Loaders{
		AccountLoader:         dataloader.NewBatchedLoader(accountReader.getAccounts, dataloader.WithWait[int, *models.Account](time.Millisecond)),
		ContactLoader:         dataloader.NewBatchedLoader(contactReader.getContacts, dataloader.WithWait[int, *models.Contact](time.Millisecond)),
		TransactionLoader:     dataloader.NewBatchedLoader(transactionReader.getTransactions, dataloader.WithWait[int, *models.Transaction](time.Millisecond)),
		TransactionLineLoader: dataloader.NewBatchedLoader(transactionLineReader.getTransactionLines, dataloader.WithWait[int, []*models.TransactionLine](time.Millisecond)),

		ReceivableAllocationLoader: dataloader.NewBatchedLoader(receivableAllocationReader.getReceivableAllocations, dataloader.WithWait[int, []*models.ReceivableAllocation](time.Millisecond)),
		PayableAllocationLoader:    dataloader.NewBatchedLoader(payableAllocationReader.getPayableAllocations, dataloader.WithWait[int, []*models.PayableAllocation](time.Millisecond)),
	}
}

func LoaderMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		loader := NewLoaders(config.GetDB())
		ctx := context.WithValue(c.Request.Context(), loadersKey, loader)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func For(ctx context.Context) *Loaders {
	return ctx.Value(loadersKey).(*Loaders)
}

// handleError creates array of result with the same error repeated for as many items requested
func handleError[T any](itemsLength int, err error) []*dataloader.Result[T] {
	result := make([]*dataloader.Result[T], itemsLength)
	for i := 0; i < itemsLength; i++ {
		result[i] = &dataloader.Result[T]{Error: err}
	}
	return result
}

// turns results from db into dataloader results
// (T must be a struct)
func generateLoaderResults[T models.Data](results []T, ids []int) []*dataloader.Result[*T] {
	// generate resultMap from results
	resultMap := make(map[int]T)
	var resultZero T
	resultMap[0] = resultZero.GetDefault(0).(T)
	for _, result := range results {
		resultMap[result.GetId()] = result
	}

	loaderResults := make([]*dataloader.Result[*T], 0, len(ids))
	for _, id := range ids {
		data := resultMap[id]
		if reflect.ValueOf(data).IsZero() {
			data = data.GetDefault(id).(T)
		}
		loaderResults = append(loaderResults, &dataloader.Result[*T]{Data: &data})
	}
	return loaderResults
}

// T must be struct
// each id has many related results
func generateLoaderArrayResults[T models.RelatedData](results []T, referenceIds []int) (loaderResults []*dataloader.Result[[]*T]) {
	resultMap := make(map[int][]*T)
	for _, result := range results {
		// creating a new variable every turn, to avoid pointing to the adddress of result
		copy := result
		resultMap[result.GetReferenceId()] = append(resultMap[result.GetReferenceId()], &copy)
	}
	for _, id := range referenceIds {
		resultArray := resultMap[id]
		loaderResults = append(loaderResults, &dataloader.Result[[]*T]{Data: resultArray})
	}
	return loaderResults
}
