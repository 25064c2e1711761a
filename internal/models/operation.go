package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// PendingOperation is a durably recorded write intent awaiting delivery
// to the remote backend.
type PendingOperation struct {
	ID         string          `json:"id"`
	Endpoint   string          `json:"endpoint"`
	Method     string          `json:"method"`
	Payload    json.RawMessage `json:"data"`
	RetryCount int             `json:"retries"`
	CreatedAt  time.Time       `json:"timestamp"`
}

// OperationKind classifies a queued operation by the resource and verb
// it targets, so replay can validate the payload against a known schema
// instead of trusting an opaque blob.
type OperationKind int

const (
	KindUnknown OperationKind = iota
	KindSaleCreate
	KindProductCreate
	KindProductUpdate
	KindProductDelete
)

// KindOf maps an endpoint/method pair to its operation kind. Unknown
// combinations are legal; the queue stays generic.
func KindOf(endpoint, method string) OperationKind {
	switch {
	case endpoint == "/sales" && method == http.MethodPost:
		return KindSaleCreate
	case endpoint == "/products" && method == http.MethodPost:
		return KindProductCreate
	case strings.HasPrefix(endpoint, "/products/"):
		switch method {
		case http.MethodPut:
			return KindProductUpdate
		case http.MethodDelete:
			return KindProductDelete
		}
	}
	return KindUnknown
}

// Validate checks the payload against the schema its kind requires. A
// payload that fails here can never replay successfully, so the caller
// should drop the operation rather than burn retries on it.
func (op *PendingOperation) Validate() error {
	switch KindOf(op.Endpoint, op.Method) {
	case KindSaleCreate:
		var sale Sale
		if err := json.Unmarshal(op.Payload, &sale); err != nil {
			return fmt.Errorf("sale payload: %w", err)
		}
		if sale.Total < 0 {
			return errors.New("sale payload: negative total")
		}
	case KindProductCreate, KindProductUpdate:
		var product Product
		if err := json.Unmarshal(op.Payload, &product); err != nil {
			return fmt.Errorf("product payload: %w", err)
		}
		if product.Name == "" {
			return errors.New("product payload: name is required")
		}
	case KindProductDelete:
		// No payload to validate.
	}
	return nil
}
