package checkout

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Kind classifies why a checkout did not produce an order.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindStockUnavailable
	KindGatewayRejected
	KindGatewayTimeout
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindStockUnavailable:
		return "stock_unavailable"
	case KindGatewayRejected:
		return "gateway_rejected"
	case KindGatewayTimeout:
		return "gateway_timeout"
	default:
		return "internal"
	}
}

// Shortage describes one product that could not be served.
type Shortage struct {
	ProductID int64 `json:"product_id"`
	Required  int   `json:"required"`
	Available int   `json:"available"`
}

// Failure is the error PlaceOrder returns for every unsuccessful checkout.
// Details carries the gateway payload for KindGatewayRejected.
type Failure struct {
	Kind      Kind
	Details   json.RawMessage
	Shortages []Shortage
	Err       error
}

func (f *Failure) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("checkout %s: %v", f.Kind, f.Err)
	}
	return "checkout " + f.Kind.String()
}

func (f *Failure) Unwrap() error { return f.Err }

// KindOf returns the failure kind carried by err, KindInternal otherwise.
func KindOf(err error) Kind {
	var f *Failure
	if errors.As(err, &f) {
		return f.Kind
	}
	return KindInternal
}

func fail(kind Kind, err error) *Failure {
	return &Failure{Kind: kind, Err: err}
}
