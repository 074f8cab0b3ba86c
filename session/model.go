package session

import "time"

// Session is the record stored under session:{role}:{identity}:{sessionId}.
//
// LastActiveAt is written at creation time. TTL refreshes do not rewrite it
// unless the store is asked to via [Store.TouchAndStamp].
type Session struct {
	SessionID    string    `json:"sessionId"`
	Identity     string    `json:"identity"`
	Role         string    `json:"role"`
	Device       string    `json:"device"`
	IP           string    `json:"ip"`
	UserAgent    string    `json:"userAgent"`
	Location     string    `json:"location,omitempty"`
	LoginAt      time.Time `json:"loginAt"`
	LastActiveAt time.Time `json:"lastActiveAt"`

	SchemaVersion uint8 `json:"v"`
}
