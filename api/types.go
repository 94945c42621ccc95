package api

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ID accepts both numeric and string identifiers from the backend.
type ID string

func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id: %w", err)
	}
	*id = ID(n.String())
	return nil
}

func (id ID) String() string {
	return string(id)
}

// Package is a purchasable connectivity package.
type Package struct {
	ID          ID      `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Price       float64 `json:"price"`
	Duration    int     `json:"duration,omitempty"` // days
	Speed       string  `json:"speed,omitempty"`
	Quota       string  `json:"quota,omitempty"`
}

type InvoiceStatus string

const (
	InvoicePending InvoiceStatus = "pending"
	InvoicePaid    InvoiceStatus = "paid"
	InvoiceExpired InvoiceStatus = "expired"
)

type Invoice struct {
	ID         ID            `json:"id"`
	Number     string        `json:"invoiceNumber,omitempty"`
	PackageID  ID            `json:"packageId"`
	Amount     float64       `json:"amount"`
	Status     InvoiceStatus `json:"status"`
	PaymentURL string        `json:"paymentUrl,omitempty"`
	CreatedAt  string        `json:"createdAt,omitempty"`
	DueAt      string        `json:"dueAt,omitempty"`
}

// CreateInvoiceRequest is the body of /invoice/create.
type CreateInvoiceRequest struct {
	PackageID     ID     `json:"packageId"`
	PaymentMethod string `json:"paymentMethod,omitempty"`
}

type Notification struct {
	ID        ID     `json:"id"`
	Title     string `json:"title"`
	Body      string `json:"body"`
	IsRead    bool   `json:"isRead"`
	CreatedAt string `json:"createdAt,omitempty"`
}

// PushKeys and PushSubscription follow the browser PushSubscription JSON.
type PushKeys struct {
	P256dh string `json:"p256dh"`
	Auth   string `json:"auth"`
}

type PushSubscription struct {
	Endpoint string   `json:"endpoint"`
	Keys     PushKeys `json:"keys"`
}
