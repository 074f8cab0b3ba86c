package httpapi

import (
	"time"

	"github.com/lernio/gatekeeper"
)

type sessionView struct {
	SessionID    string    `json:"sessionId"`
	Device       string    `json:"device"`
	IP           string    `json:"ip"`
	UserAgent    string    `json:"userAgent"`
	Location     string    `json:"location,omitempty"`
	LoginAt      time.Time `json:"loginAt"`
	LastActiveAt time.Time `json:"lastActiveAt"`
	Current      bool      `json:"current"`
}

func toSessionViews(sessions []*gatekeeper.Session, currentID string) []sessionView {
	out := make([]sessionView, 0, len(sessions))
	for _, s := range sessions {
		if s == nil {
			continue
		}
		out = append(out, sessionView{
			SessionID:    s.SessionID,
			Device:       s.Device,
			IP:           s.IP,
			UserAgent:    s.UserAgent,
			Location:     s.Location,
			LoginAt:      s.LoginAt,
			LastActiveAt: s.LastActiveAt,
			Current:      s.SessionID == currentID,
		})
	}
	return out
}

type accountView struct {
	ID                 string `json:"id"`
	Email              string `json:"email"`
	FullName           string `json:"fullName"`
	Role               string `json:"role"`
	AvatarLink         string `json:"avatarLink,omitempty"`
	MustChangePassword bool   `json:"mustChangePassword,omitempty"`
}

func toAccountView(a gatekeeper.Account) accountView {
	return accountView{
		ID:                 a.ID,
		Email:              a.Email,
		FullName:           a.FullName,
		Role:               a.Role,
		AvatarLink:         a.AvatarLink,
		MustChangePassword: a.MustChangePassword,
	}
}

type adminRequestView struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	FullName  string    `json:"fullName"`
	Reason    string    `json:"reason,omitempty"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func toAdminRequestView(r gatekeeper.AdminRequest) adminRequestView {
	return adminRequestView{
		ID:        r.ID,
		Email:     r.Email,
		FullName:  r.FullName,
		Reason:    r.Reason,
		Status:    r.Status,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

type pageView struct {
	Items    []adminRequestView `json:"items"`
	Total    int64              `json:"total"`
	Page     int                `json:"page"`
	PageSize int                `json:"pageSize"`
	HasNext  bool               `json:"hasNextPage"`
}

type countsView struct {
	Pending  int64 `json:"pending"`
	Approved int64 `json:"approved"`
	Rejected int64 `json:"rejected"`
	Total    int64 `json:"total"`
}
