package api

import "net/url"

// Backend endpoint paths
const (
	// Auth
	EndpointLogin   = "/auth/login"
	EndpointLogout  = "/auth/logout"
	EndpointRefresh = "/auth/refresh"

	// Users & verification
	EndpointCreateUser = "/user/create"
	EndpointVerifyOTP  = "/user/verif/confirm"
	EndpointResendOTP  = "/user/verif/send"

	// Packages
	EndpointPackageList = "/package/show"

	// Invoices
	EndpointInvoiceList   = "/invoice/show"
	EndpointInvoiceCreate = "/invoice/create"

	// Notifications
	EndpointNotificationList    = "/v1/notification/show"
	EndpointNotificationReadAll = "/v1/notification/read-all"
	EndpointPushSubscription    = "/v1/notification/push-subscription"
)

func EndpointPackageFind(id string) string {
	return "/package/find/" + url.PathEscape(id)
}

func EndpointInvoiceFind(id string) string {
	return "/invoice/find/" + url.PathEscape(id)
}

func EndpointNotificationRead(id string) string {
	return "/v1/notification/read/" + url.PathEscape(id)
}

// EndpointSocialStart is where the browser is sent to begin a social login.
func EndpointSocialStart(provider string) string {
	return "/auth/" + url.PathEscape(provider)
}

// EndpointSocialCallback exchanges a provider code for a session.
func EndpointSocialCallback(provider string) string {
	return "/auth/" + url.PathEscape(provider) + "/callback"
}
