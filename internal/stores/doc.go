// Package stores holds short-lived Redis records that back multi-step flows.
//
// Password reset tokens live at password_reset:{token} as JSON
// {email, stakeholder} with a TTL. password_reset_idx:{role}:{email} names
// the account's live token, so requesting a new link retires the previous
// one. Consume runs as one Lua script so a token can be redeemed once even
// under concurrent submissions.
//
// # What this package must NOT do
//
//   - Generate tokens or decide who may reset a password.
//   - Log token values.
package stores
