package api

import (
	"context"
	"net/http"
)

func (c *Client) ListPackages(ctx context.Context) ([]Package, error) {
	var out []Package
	if err := c.doJSON(ctx, http.MethodGet, EndpointPackageList, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) FindPackage(ctx context.Context, id string) (*Package, error) {
	var out Package
	if err := c.doJSON(ctx, http.MethodGet, EndpointPackageFind(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CreateInvoice(ctx context.Context, req CreateInvoiceRequest) (*Invoice, error) {
	var out Invoice
	if err := c.doJSON(ctx, http.MethodPost, EndpointInvoiceCreate, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListInvoices(ctx context.Context) ([]Invoice, error) {
	var out []Invoice
	if err := c.doJSON(ctx, http.MethodGet, EndpointInvoiceList, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) FindInvoice(ctx context.Context, id string) (*Invoice, error) {
	var out Invoice
	if err := c.doJSON(ctx, http.MethodGet, EndpointInvoiceFind(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListNotifications(ctx context.Context) ([]Notification, error) {
	var out []Notification
	if err := c.doJSON(ctx, http.MethodGet, EndpointNotificationList, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) MarkNotificationRead(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodPatch, EndpointNotificationRead(id), nil, nil)
}

func (c *Client) MarkAllNotificationsRead(ctx context.Context) error {
	return c.doJSON(ctx, http.MethodPatch, EndpointNotificationReadAll, nil, nil)
}

// RegisterPushSubscription stores a Web Push subscription with the backend.
func (c *Client) RegisterPushSubscription(ctx context.Context, sub PushSubscription) error {
	return c.doJSON(ctx, http.MethodPost, EndpointPushSubscription, sub, nil)
}
