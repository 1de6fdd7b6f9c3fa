package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"lendinglibrary/internal/models"
	"lendinglibrary/internal/services"
	"lendinglibrary/internal/session"
)

const sessionKey = "session"

type LibraryHandler struct {
	svc      services.LibraryService
	sessions session.Store
	log      *logrus.Logger
}

func RegisterRoutes(r *gin.Engine, svc services.LibraryService, sessions session.Store, log *logrus.Logger) {
	h := &LibraryHandler{svc: svc, sessions: sessions, log: log}

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	// Anonymous endpoints
	r.POST("/register", h.register)
	r.POST("/login", h.login)

	auth := r.Group("", h.requireSession)
	auth.POST("/logout", h.logout)
	auth.GET("/books", h.searchBooks)
	auth.GET("/books/:id", h.getBook)
	auth.POST("/requests/:id/return", h.markReturned)

	// Admin endpoints
	admin := auth.Group("", requireRole(models.MemberRoleAdmin))
	admin.POST("/books", h.addBook)
	admin.PUT("/books/:id", h.editBook)
	admin.DELETE("/books/:id", h.deleteBook)
	admin.GET("/requests", h.listAllRequests)
	admin.POST("/requests/:id/approve", h.approve)
	admin.POST("/requests/:id/reject", h.reject)

	// Member endpoints
	member := auth.Group("", requireRole(models.MemberRoleMember))
	member.POST("/books/:id/borrow", h.requestBorrow)
	member.GET("/me/requests", h.listMyRequests)
}

// ─── Sessions ─────────────────────────────────────────────────────────────────

func (h *LibraryHandler) requireSession(c *gin.Context) {
	token, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
	if !ok || token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "please login first"})
		return
	}
	s, err := h.sessions.Get(c.Request.Context(), token)
	if err != nil {
		if !errors.Is(err, session.ErrNoSession) {
			h.log.WithError(err).Error("requireSession: session lookup failed")
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "please login first"})
		return
	}
	c.Set(sessionKey, s)
	c.Request = c.Request.WithContext(session.WithSession(c.Request.Context(), s))
	c.Next()
}

func requireRole(role models.MemberRole) gin.HandlerFunc {
	return func(c *gin.Context) {
		if currentSession(c).Role != role {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "not allowed for role " + string(currentSession(c).Role)})
			return
		}
		c.Next()
	}
}

func currentSession(c *gin.Context) session.Session {
	s, _ := c.MustGet(sessionKey).(session.Session)
	return s
}

type credentialsRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *LibraryHandler) register(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	member, err := h.svc.Register(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		h.writeError(c, err)
		return
	}
	h.openSession(c, http.StatusCreated, member)
}

func (h *LibraryHandler) login(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	member, err := h.svc.Authenticate(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		h.writeError(c, err)
		return
	}
	h.openSession(c, http.StatusOK, member)
}

func (h *LibraryHandler) openSession(c *gin.Context, status int, member *models.Member) {
	s := session.New(member, time.Now())
	if err := h.sessions.Save(c.Request.Context(), s); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(status, gin.H{"token": s.Token, "member": member})
}

func (h *LibraryHandler) logout(c *gin.Context) {
	if err := h.sessions.Delete(c.Request.Context(), currentSession(c).Token); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ─── Books ────────────────────────────────────────────────────────────────────

type bookRequest struct {
	Title       string `json:"title" binding:"required"`
	Author      string `json:"author" binding:"required"`
	Category    string `json:"category" binding:"required"`
	TotalCopies int    `json:"total_copies" binding:"required,min=1"`
}

func (h *LibraryHandler) searchBooks(c *gin.Context) {
	books, err := h.svc.SearchBooks(c.Request.Context(), c.Query("q"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, books)
}

func (h *LibraryHandler) getBook(c *gin.Context) {
	id, ok := parseID(c, "book")
	if !ok {
		return
	}
	book, err := h.svc.GetBook(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, book)
}

func (h *LibraryHandler) addBook(c *gin.Context) {
	var req bookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	book, err := h.svc.AddBook(c.Request.Context(), req.Title, req.Author, req.Category, req.TotalCopies)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, book)
}

func (h *LibraryHandler) editBook(c *gin.Context) {
	id, ok := parseID(c, "book")
	if !ok {
		return
	}
	var req bookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	book, err := h.svc.EditBook(c.Request.Context(), id, req.Title, req.Author, req.Category, req.TotalCopies)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, book)
}

func (h *LibraryHandler) deleteBook(c *gin.Context) {
	id, ok := parseID(c, "book")
	if !ok {
		return
	}
	if err := h.svc.DeleteBook(c.Request.Context(), id); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ─── Borrow Requests ──────────────────────────────────────────────────────────

func (h *LibraryHandler) requestBorrow(c *gin.Context) {
	bookID, ok := parseID(c, "book")
	if !ok {
		return
	}
	record, err := h.svc.RequestBorrow(c.Request.Context(), currentSession(c).MemberID, bookID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, record)
}

func (h *LibraryHandler) listMyRequests(c *gin.Context) {
	rows, err := h.svc.ListMemberRequests(c.Request.Context(), currentSession(c).MemberID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rows)
}

func (h *LibraryHandler) listAllRequests(c *gin.Context) {
	rows, err := h.svc.ListAllRequests(c.Request.Context(), models.BorrowStatus(c.Query("status")))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rows)
}

func (h *LibraryHandler) approve(c *gin.Context) {
	id, ok := parseID(c, "request")
	if !ok {
		return
	}
	record, err := h.svc.Approve(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, record)
}

func (h *LibraryHandler) reject(c *gin.Context) {
	id, ok := parseID(c, "request")
	if !ok {
		return
	}
	record, err := h.svc.Reject(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, record)
}

// markReturned lets members return their own loans; admins may return any.
func (h *LibraryHandler) markReturned(c *gin.Context) {
	id, ok := parseID(c, "request")
	if !ok {
		return
	}
	s := currentSession(c)
	if !s.IsAdmin() {
		record, err := h.svc.GetBorrowRecord(c.Request.Context(), id)
		if err != nil {
			h.writeError(c, err)
			return
		}
		if record.MemberID != s.MemberID {
			c.JSON(http.StatusForbidden, gin.H{"error": "request belongs to another member"})
			return
		}
	}
	record, err := h.svc.MarkReturned(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, record)
}

// ─── Helpers ──────────────────────────────────────────────────────────────────

func parseID(c *gin.Context, what string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + what + " id"})
		return 0, false
	}
	return uint(id), true
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrDuplicateEntity),
		errors.Is(err, services.ErrDuplicateRequest),
		errors.Is(err, services.ErrNoAvailableCopies),
		errors.Is(err, services.ErrInvalidTransition):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func (h *LibraryHandler) writeError(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.log.WithError(err).WithField("path", c.FullPath()).Error("request failed")
		c.JSON(status, gin.H{"error": "internal error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
