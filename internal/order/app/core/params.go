package core

type OrderParams struct {
	Port          int
	MaxConcurrent int
}

const (
	// in seconds for db response
	WaitTime = 20

	MinCustomerNameLen    = 1
	MaxCustomerNameLen    = 100
	MinDeliveryAddressLen = 5
	MaxDeliveryAddressLen = 500
	MinItems              = 1
	MaxItems              = 50
	MinItemQuantity       = 1
	MaxItemQuantity       = 100
	MaxModifiers          = 20
	MaxNotesLen           = 1000
)
