package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/richardliu001/bookmarket-service/internal/model"
	"github.com/richardliu001/bookmarket-service/internal/service"
)

// maxWebhookBody caps the raw event payload read before verification.
const maxWebhookBody = 1 << 20

// Handler binds HTTP requests to the services.
type Handler struct {
	Checkout  *service.CheckoutService
	Webhooks  *service.WebhookService
	Purchases *service.PurchaseService
	Sellers   *service.SellerService
	Balance   *service.BalanceService
	Catalog   *service.CatalogService
}

func RegisterHandlers(r gin.IRouter, h *Handler, authed gin.HandlerFunc) {
	purchase := r.Group("/purchase")
	{
		purchase.POST("/create", authed, h.createCheckout)
		purchase.GET("", authed, h.listPurchases)
		purchase.GET("/balance", authed, h.balance)
	}
	sellers := r.Group("/sellers", authed)
	{
		sellers.POST("/account", h.registerSeller)
		sellers.GET("/account", h.getSeller)
		sellers.POST("/account-link", h.onboardingLink)
		sellers.POST("/dashboard-link", h.dashboardLink)
	}
	books := r.Group("/books")
	{
		books.POST("", authed, h.createBook)
		books.GET("/:id", h.getBook)
		books.PATCH("/:id", authed, h.updateBook)
		books.GET("/:id/purchase", authed, h.getPurchase)
	}
}

type checkoutReq struct {
	BookID uint64 `json:"bookId" binding:"required"`
}

func (h *Handler) createCheckout(c *gin.Context) {
	var req checkoutReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, validation(err))
		return
	}
	res, err := h.Checkout.CreateCheckout(c.Request.Context(), currentUser(c), req.BookID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"checkoutUrl": res.RedirectURL, "sessionId": res.SessionID})
}

// webhook must see the body byte for byte; nothing may bind or rewrite it
// before the signature check.
func (h *Handler) webhook(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody)
	body, err := c.GetRawData()
	if err != nil {
		writeError(c, validation(err))
		return
	}
	if err := h.Webhooks.HandleEvent(c.Request.Context(), body, c.GetHeader("Stripe-Signature")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"received": true})
}

type listReq struct {
	Page  int    `form:"page"`
	Limit int    `form:"limit"`
	Sort  string `form:"sort"`
}

func (h *Handler) listPurchases(c *gin.Context) {
	var req listReq
	if err := c.ShouldBindQuery(&req); err != nil {
		writeError(c, validation(err))
		return
	}
	page, err := h.Purchases.ListPurchases(c.Request.Context(), currentUser(c).ID, req.Page, req.Limit, req.Sort)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *Handler) getPurchase(c *gin.Context) {
	bookID, ok := idParam(c)
	if !ok {
		return
	}
	p, err := h.Purchases.GetPurchase(c.Request.Context(), currentUser(c).ID, bookID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *Handler) balance(c *gin.Context) {
	b, err := h.Balance.GetBalance(c.Request.Context(), currentUser(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

func (h *Handler) registerSeller(c *gin.Context) {
	s, err := h.Sellers.RegisterSeller(c.Request.Context(), currentUser(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, s)
}

func (h *Handler) getSeller(c *gin.Context) {
	s, err := h.Sellers.GetSellerByUserID(c.Request.Context(), currentUser(c).ID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

func (h *Handler) onboardingLink(c *gin.Context) {
	url, err := h.Sellers.CreateOnboardingLink(c.Request.Context(), currentUser(c).ID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": url})
}

func (h *Handler) dashboardLink(c *gin.Context) {
	url, err := h.Sellers.CreateDashboardLink(c.Request.Context(), currentUser(c).ID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": url})
}

func (h *Handler) createBook(c *gin.Context) {
	var req service.NewBook
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, validation(err))
		return
	}
	b, err := h.Catalog.CreateBook(c.Request.Context(), currentUser(c), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, b)
}

func (h *Handler) getBook(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	b, err := h.Catalog.GetPublishedBook(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

func (h *Handler) updateBook(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var req model.BookUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, validation(err))
		return
	}
	b, err := h.Catalog.UpdateBook(c.Request.Context(), currentUser(c), id, req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

func idParam(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		writeError(c, validation(nil))
		return 0, false
	}
	return id, true
}
