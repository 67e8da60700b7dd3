package models

import (
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/shopspring/decimal"
)

// Registrar operation codes carried in the QR payload.
const (
	OperationIncome       = 1
	OperationIncomeReturn = 2
)

func (t ReceiptType) Operation() int {
	if t == ReceiptSale {
		return OperationIncome
	}
	return OperationIncomeReturn
}

// FiscalIDs are the registrar-side identifiers printed on a receipt.
type FiscalIDs struct {
	StorageSerial  string
	DocumentNumber string
	SignNumber     string
}

// MockFiscalIDs stands in for the identifiers a fiscal storage device
// would issue: a 16-digit storage serial, a document counter and a
// 10-digit fiscal sign.
func MockFiscalIDs() FiscalIDs {
	return FiscalIDs{
		StorageSerial:  fmt.Sprintf("%016d", rand.Int64N(1e16)),
		DocumentNumber: fmt.Sprintf("%d", 1+rand.Int64N(999999)),
		SignNumber:     fmt.Sprintf("%010d", rand.Int64N(1e10)),
	}
}

// QRPayload renders the receipt QR string. The same inputs always give
// the same payload.
func QRPayload(issuedAt time.Time, amount decimal.Decimal, ids FiscalIDs, operation int) string {
	return fmt.Sprintf("t=%s&s=%s&fn=%s&i=%s&fp=%s&n=%d",
		issuedAt.UTC().Format("20060102T1504"),
		amount.StringFixed(2),
		ids.StorageSerial,
		ids.DocumentNumber,
		ids.SignNumber,
		operation,
	)
}
