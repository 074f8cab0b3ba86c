// Package httpapi exposes the engine over HTTP with gin.
//
// Every role gets its own route group under /auth/{role} and its own cookie
// (see middleware.CookieName). Admin request moderation and the test mail
// endpoint are reserved to ADMINISTRATOR. All responses except /health and
// /metrics use the response.Envelope shape.
package httpapi
