package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lernio/gatekeeper"
	"github.com/lernio/gatekeeper/internal/response"
)

type adminRequestBody struct {
	Email    string `json:"email"`
	FullName string `json:"fullName"`
	Reason   string `json:"reason"`
}

type rejectBody struct {
	Reason string `json:"reason"`
}

type testMailBody struct {
	To string `json:"to"`
}

func (h *Handler) submitAdminRequest(c *gin.Context) {
	var body adminRequestBody
	if !h.bind(c, &body) {
		return
	}
	req, err := h.engine.SubmitAdminRequest(c.Request.Context(), gatekeeper.AdminRequestInput{
		Email:    body.Email,
		FullName: body.FullName,
		Reason:   body.Reason,
	})
	if err != nil {
		h.fail(c, "admin_request.submit", err)
		return
	}
	response.Created(c, toAdminRequestView(*req), "Your request has been submitted")
}

func (h *Handler) listAdminRequests(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.Query("pageSize"))

	res, err := h.engine.ListAdminRequests(c.Request.Context(), gatekeeper.AdminRequestFilter{
		Status:   c.Query("status"),
		Page:     page,
		PageSize: size,
	})
	if err != nil {
		h.fail(c, "admin_request.list", err)
		return
	}

	items := make([]adminRequestView, 0, len(res.Items))
	for _, r := range res.Items {
		items = append(items, toAdminRequestView(r))
	}
	response.OK(c, pageView{
		Items:    items,
		Total:    res.Total,
		Page:     res.Page,
		PageSize: res.PageSize,
		HasNext:  int64(res.Page*res.PageSize) < res.Total,
	})
}

func (h *Handler) adminRequestCounts(c *gin.Context) {
	counts, err := h.engine.AdminRequestCounts(c.Request.Context())
	if err != nil {
		h.fail(c, "admin_request.counts", err)
		return
	}
	response.OK(c, countsView{
		Pending:  counts.Pending,
		Approved: counts.Approved,
		Rejected: counts.Rejected,
		Total:    counts.Total,
	})
}

func (h *Handler) approveAdminRequest(c *gin.Context) {
	res, err := h.engine.ApproveAdminRequest(c.Request.Context(), h.payload(c), c.Param("id"))
	if err != nil {
		h.fail(c, "admin_request.approve", err)
		return
	}
	c.JSON(http.StatusOK, response.Envelope{
		Success: true,
		Data: gin.H{
			"request": toAdminRequestView(res.Request),
			"adminId": res.AdminID,
		},
		Message: "Request approved, the new admin has been emailed a temporary password",
	})
}

func (h *Handler) rejectAdminRequest(c *gin.Context) {
	var body rejectBody
	if c.Request.ContentLength > 0 && !h.bind(c, &body) {
		return
	}
	req, err := h.engine.RejectAdminRequest(c.Request.Context(), h.payload(c), c.Param("id"), body.Reason)
	if err != nil {
		h.fail(c, "admin_request.reject", err)
		return
	}
	c.JSON(http.StatusOK, response.Envelope{
		Success: true,
		Data:    toAdminRequestView(*req),
		Message: "Request rejected",
	})
}

func (h *Handler) sendTestMail(c *gin.Context) {
	var body testMailBody
	if c.Request.ContentLength > 0 && !h.bind(c, &body) {
		return
	}
	if err := h.engine.SendTestMail(c.Request.Context(), h.payload(c), body.To); err != nil {
		h.fail(c, "mail.test", err)
		return
	}
	response.OK(c, gin.H{"sentAt": time.Now().UTC()})
}
