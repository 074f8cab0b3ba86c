// Package jwt signs and verifies the session token stored in each role's
// cookie. A token names the account (userId, email, fullName, role) and the
// session it belongs to; the session record itself stays in Redis.
package jwt
