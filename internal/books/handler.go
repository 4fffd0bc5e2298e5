package books

import (
	"encoding/json"
	"errors"
	"math"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/Vikass76/MonVieuxGrimoire/internal/auth"
	"github.com/Vikass76/MonVieuxGrimoire/internal/images"
	"github.com/Vikass76/MonVieuxGrimoire/pkg/logger"
	"github.com/Vikass76/MonVieuxGrimoire/pkg/models"
)

const topRatedCount = 3

type Handler struct {
	Repo   *Repo
	Images *images.Processor
}

func NewHandler(repo *Repo, proc *images.Processor) *Handler {
	return &Handler{Repo: repo, Images: proc}
}

func (h *Handler) RegisterPublicRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.list)
	rg.GET("/bestrating", h.topRated)
	rg.GET("/:id", h.getByID)
}

func (h *Handler) RegisterProtectedRoutes(rg *gin.RouterGroup) {
	rg.POST("", h.create)
	rg.PUT("/:id", h.update)
	rg.DELETE("/:id", h.delete)
	rg.POST("/:id/rating", h.rate)
}

// bookPayload is the client-supplied part of a book. Year is accepted as a
// JSON number or a numeric string, as form clients send either.
type bookPayload struct {
	Title  string `json:"title"`
	Author string `json:"author"`
	Year   any    `json:"year"`
	Genre  string `json:"genre"`
}

func (p *bookPayload) yearValue() (int, bool) {
	switch v := p.Year.(type) {
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, false
		}
		return int(v), true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		return n, err == nil
	default:
		return 0, false
	}
}

func (p *bookPayload) validate() (title, author, genre string, year int, ok bool) {
	title = strings.TrimSpace(p.Title)
	author = strings.TrimSpace(p.Author)
	genre = strings.TrimSpace(p.Genre)
	year, yearOK := p.yearValue()
	ok = title != "" && author != "" && genre != "" && yearOK
	return
}

func (h *Handler) list(c *gin.Context) {
	out, err := h.Repo.List(c.Request.Context())
	if err != nil {
		logger.Get().Error().Err(err).Msg("list books failed")
		c.JSON(http.StatusInternalServerError, gin.H{"message": "server error"})
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) topRated(c *gin.Context) {
	out, err := h.Repo.TopRated(c.Request.Context(), topRatedCount)
	if err != nil {
		logger.Get().Error().Err(err).Msg("top rated failed")
		c.JSON(http.StatusInternalServerError, gin.H{"message": "server error"})
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) getByID(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid book id"})
		return
	}

	b, err := h.Repo.GetByID(c.Request.Context(), id)
	if err != nil {
		logger.Get().Error().Err(err).Msg("get book failed")
		c.JSON(http.StatusInternalServerError, gin.H{"message": "server error"})
		return
	}
	if b == nil {
		c.JSON(http.StatusNotFound, gin.H{"message": "book not found"})
		return
	}
	c.JSON(http.StatusOK, b)
}

// create expects multipart form data: a "book" field holding JSON and an
// "image" file.
func (h *Handler) create(c *gin.Context) {
	claims := auth.MustGetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "unauthorized"})
		return
	}

	var payload bookPayload
	if err := json.Unmarshal([]byte(c.PostForm("book")), &payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "book field must be valid json"})
		return
	}

	title, author, genre, year, ok := payload.validate()
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"message": "title, author, year, genre and image required"})
		return
	}

	fh, err := c.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "title, author, year, genre and image required"})
		return
	}

	imageURL, ok := h.processUpload(c, fh)
	if !ok {
		return
	}

	b := &models.Book{
		ID:       uuid.NewString(),
		UserID:   claims.UserID,
		Title:    title,
		Author:   author,
		Year:     year,
		Genre:    genre,
		ImageURL: imageURL,
		Ratings:  []models.Rating{},
	}

	if err := h.Repo.Create(c.Request.Context(), b); err != nil {
		logger.Get().Error().Err(err).Msg("create book failed")
		// the record never existed, so the fresh file is an orphan
		h.Images.Remove(imageURL)
		c.JSON(http.StatusInternalServerError, gin.H{"message": "server error"})
		return
	}

	c.JSON(http.StatusCreated, b)
}

// update takes either a plain JSON body or multipart form data with a new
// image. A replaced image's old file is deleted best-effort.
func (h *Handler) update(c *gin.Context) {
	claims := auth.MustGetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "unauthorized"})
		return
	}

	b, stop := h.loadOwnedBook(c, claims.UserID)
	if stop {
		return
	}

	var payload bookPayload
	newImageURL := ""

	if isMultipart(c) {
		if err := json.Unmarshal([]byte(c.PostForm("book")), &payload); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"message": "book field must be valid json"})
			return
		}
		fh, err := c.FormFile("image")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"message": "image file required"})
			return
		}
		url, ok := h.processUpload(c, fh)
		if !ok {
			return
		}
		newImageURL = url
	} else {
		if err := c.ShouldBindJSON(&payload); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"message": "invalid json"})
			return
		}
	}

	title, author, genre, year, ok := payload.validate()
	if !ok {
		if newImageURL != "" {
			h.Images.Remove(newImageURL)
		}
		c.JSON(http.StatusBadRequest, gin.H{"message": "title, author, year and genre required"})
		return
	}

	b.Title = title
	b.Author = author
	b.Year = year
	b.Genre = genre
	if newImageURL != "" {
		h.Images.Remove(b.ImageURL)
		b.ImageURL = newImageURL
	}

	if err := h.Repo.Update(c.Request.Context(), b); err != nil {
		logger.Get().Error().Err(err).Msg("update book failed")
		c.JSON(http.StatusInternalServerError, gin.H{"message": "server error"})
		return
	}

	c.JSON(http.StatusOK, b)
}

func (h *Handler) delete(c *gin.Context) {
	claims := auth.MustGetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "unauthorized"})
		return
	}

	b, stop := h.loadOwnedBook(c, claims.UserID)
	if stop {
		return
	}

	// file first, record second; a failed unlink never blocks the delete
	h.Images.Remove(b.ImageURL)

	if err := h.Repo.Delete(c.Request.Context(), b.ID); err != nil {
		logger.Get().Error().Err(err).Msg("delete book failed")
		c.JSON(http.StatusInternalServerError, gin.H{"message": "server error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "book deleted"})
}

type ratingReq struct {
	Grade  *float64 `json:"grade"`
	Rating *float64 `json:"rating"`
}

func (h *Handler) rate(c *gin.Context) {
	claims := auth.MustGetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "unauthorized"})
		return
	}

	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid book id"})
		return
	}

	b, err := h.Repo.GetByID(c.Request.Context(), id)
	if err != nil {
		logger.Get().Error().Err(err).Msg("get book failed")
		c.JSON(http.StatusInternalServerError, gin.H{"message": "server error"})
		return
	}
	if b == nil {
		c.JSON(http.StatusNotFound, gin.H{"message": "book not found"})
		return
	}

	if b.UserID == claims.UserID {
		c.JSON(http.StatusForbidden, gin.H{"message": "cannot rate your own book"})
		return
	}

	var req ratingReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid json"})
		return
	}
	grade := req.Grade
	if grade == nil {
		grade = req.Rating // legacy client field
	}
	if grade == nil || math.IsNaN(*grade) || math.IsInf(*grade, 0) || *grade < 0 || *grade > 5 {
		c.JSON(http.StatusBadRequest, gin.H{"message": "grade must be between 0 and 5"})
		return
	}

	updated, err := h.Repo.AddRating(c.Request.Context(), id, claims.UserID, *grade)
	if err != nil {
		if errors.Is(err, ErrAlreadyRated) {
			c.JSON(http.StatusBadRequest, gin.H{"message": "you already rated this book"})
			return
		}
		logger.Get().Error().Err(err).Msg("add rating failed")
		c.JSON(http.StatusInternalServerError, gin.H{"message": "server error"})
		return
	}
	if updated == nil {
		c.JSON(http.StatusNotFound, gin.H{"message": "book not found"})
		return
	}

	c.JSON(http.StatusCreated, updated)
}

// loadOwnedBook resolves :id, enforcing existence and ownership. The bool
// result tells the caller a response was already written.
func (h *Handler) loadOwnedBook(c *gin.Context, userID string) (*models.Book, bool) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid book id"})
		return nil, true
	}

	b, err := h.Repo.GetByID(c.Request.Context(), id)
	if err != nil {
		logger.Get().Error().Err(err).Msg("get book failed")
		c.JSON(http.StatusInternalServerError, gin.H{"message": "server error"})
		return nil, true
	}
	if b == nil {
		c.JSON(http.StatusNotFound, gin.H{"message": "book not found"})
		return nil, true
	}
	if b.UserID != userID {
		c.JSON(http.StatusForbidden, gin.H{"message": "not allowed"})
		return nil, true
	}
	return b, false
}

// processUpload runs the image pipeline and writes the error response itself
// on failure.
func (h *Handler) processUpload(c *gin.Context, fh *multipart.FileHeader) (string, bool) {
	url, err := h.Images.Process(c, fh)
	if err != nil {
		switch {
		case errors.Is(err, images.ErrTooLarge):
			c.JSON(http.StatusBadRequest, gin.H{"message": "image exceeds 12 MB"})
		case errors.Is(err, images.ErrBadFormat):
			c.JSON(http.StatusBadRequest, gin.H{"message": "image must be jpeg, png or webp"})
		default:
			logger.Get().Error().Err(err).Msg("image processing failed")
			c.JSON(http.StatusInternalServerError, gin.H{"message": "image processing failed"})
		}
		return "", false
	}
	return url, true
}

func isMultipart(c *gin.Context) bool {
	return strings.HasPrefix(strings.ToLower(c.ContentType()), "multipart/form-data")
}
