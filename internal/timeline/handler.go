package timeline

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"chronozoom/internal/auth"
	"chronozoom/internal/identity"
)

type Handler struct {
	Query  *QueryEngine
	Mutate *MutationEngine
	log    zerolog.Logger
}

func NewHandler(q *QueryEngine, m *MutationEngine, log zerolog.Logger) *Handler {
	registerValidators()
	return &Handler{Query: q, Mutate: m, log: log.With().Str("component", "http").Logger()}
}

var validatorsOnce sync.Once

// registerValidators adds the "title" tag to gin's validator: a collection
// or display name must not be blank or contain the id separator.
func registerValidators() {
	validatorsOnce.Do(func() {
		if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
			_ = v.RegisterValidation("title", func(fl validator.FieldLevel) bool {
				return identity.ValidTitle(fl.Field().String())
			})
		}
	})
}

// RegisterRoutes mounts the API on rg. The identity middleware must run
// before these handlers.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/user", h.getUser)
	rg.PUT("/user", h.putUser)
	rg.DELETE("/user", h.deleteUser)

	rg.GET("/:super/collections", h.getCollections)
	rg.PUT("/:super/:collection", h.putCollection)
	rg.DELETE("/:super/:collection", h.deleteCollection)

	rg.GET("/:super/:collection/timelines", h.getTimelines)
	rg.GET("/:super/:collection/search", h.search)
	rg.GET("/:super/:collection/tours", h.getTours)

	rg.PUT("/:super/:collection/timeline", h.putTimeline)
	rg.DELETE("/:super/:collection/timeline", h.deleteTimeline)
	rg.PUT("/:super/:collection/exhibit", h.putExhibit)
	rg.DELETE("/:super/:collection/exhibit", h.deleteExhibit)
	rg.PUT("/:super/:collection/contentitem", h.putContentItem)
	rg.DELETE("/:super/:collection/contentitem", h.deleteContentItem)
	rg.PUT("/:super/:collection/tour", h.putTour)
	rg.DELETE("/:super/:collection/tour", h.deleteTour)
}

func collectionRef(c *gin.Context) CollectionRef {
	return CollectionRef{SuperCollection: c.Param("super"), Collection: c.Param("collection")}
}

// fail writes err. Domain errors carry their kind; anything else is an
// internal failure and is logged.
func (h *Handler) fail(c *gin.Context, err error) {
	kind := KindOf(err)
	if kind == KindUnknown {
		h.log.Error().Err(err).Str("method", c.Request.Method).Str("path", c.Request.URL.Path).Msg("request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(kind.HTTPStatus(), gin.H{"error": err.Error(), "kind": kind.String()})
}

// bind decodes the JSON body into dst. It reports false after answering
// 400 for a malformed body, and sets empty for a missing one.
func bind(c *gin.Context, dst any) (empty, ok bool) {
	if err := c.ShouldBindJSON(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return true, true
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return false, false
	}
	return false, true
}

// =============================================================================
// Reads
// =============================================================================

func floatParam(c *gin.Context, name string) (*float64, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (h *Handler) parseTimelineQuery(c *gin.Context) (TimelineQuery, error) {
	var tq TimelineQuery
	var err error
	if tq.FromYear, err = floatParam(c, "start"); err != nil {
		return tq, errors.New("start must be a number")
	}
	if tq.ToYear, err = floatParam(c, "end"); err != nil {
		return tq, errors.New("end must be a number")
	}
	if tq.MinSpan, err = floatParam(c, "minspan"); err != nil {
		return tq, errors.New("minspan must be a number")
	}
	if raw := strings.TrimSpace(c.Query("commonAncestor")); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return tq, errors.New("commonAncestor must be an id")
		}
		tq.CommonAncestor = &id
	}
	if raw := strings.TrimSpace(c.Query("maxElements")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return tq, errors.New("maxElements must be a positive integer")
		}
		tq.MaxElements = &n
	}
	return tq, nil
}

func (h *Handler) getTimelines(c *gin.Context) {
	tq, err := h.parseTimelineQuery(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	root, err := h.Query.GetTimelines(c.Request.Context(), auth.CurrentUser(c), collectionRef(c), tq)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, root)
}

func (h *Handler) search(c *gin.Context) {
	results, err := h.Query.Search(c.Request.Context(), collectionRef(c), c.Query("searchTerm"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, results)
}

func (h *Handler) getTours(c *gin.Context) {
	tours, err := h.Query.GetTours(c.Request.Context(), collectionRef(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, tours)
}

func (h *Handler) getCollections(c *gin.Context) {
	colls, err := h.Query.GetCollections(c.Request.Context(), c.Param("super"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, colls)
}

// =============================================================================
// Writes
// =============================================================================

type idReq struct {
	ID uuid.UUID `json:"id" binding:"required"`
}

// bindID reads the {"id": ...} body of a delete request.
func (h *Handler) bindID(c *gin.Context) (uuid.UUID, bool) {
	var req idReq
	empty, ok := bind(c, &req)
	if !ok {
		return uuid.Nil, false
	}
	if empty {
		h.fail(c, newError(KindRequestBodyEmpty, "id required"))
		return uuid.Nil, false
	}
	return req.ID, true
}

func deleted(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

type collectionReq struct {
	Title              string `json:"title" binding:"required,title"`
	Description        string `json:"description"`
	Theme              string `json:"theme"`
	PubliclySearchable *bool  `json:"publicly_searchable"`
}

func (h *Handler) putCollection(c *gin.Context) {
	var req collectionReq
	empty, ok := bind(c, &req)
	if !ok {
		return
	}
	var in *CollectionInput
	if !empty {
		in = &CollectionInput{
			Title:              req.Title,
			Description:        req.Description,
			Theme:              req.Theme,
			PubliclySearchable: req.PubliclySearchable,
		}
	}
	id, err := h.Mutate.PutCollectionName(c.Request.Context(), auth.CurrentUser(c), collectionRef(c), in)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id})
}

func (h *Handler) deleteCollection(c *gin.Context) {
	if err := h.Mutate.DeleteCollection(c.Request.Context(), auth.CurrentUser(c), collectionRef(c)); err != nil {
		h.fail(c, err)
		return
	}
	deleted(c)
}

type timelineReq struct {
	ID               *uuid.UUID `json:"id"`
	ParentTimelineID *uuid.UUID `json:"parent_timeline_id"`
	Title            string     `json:"title" binding:"required,max=200"`
	Regime           string     `json:"regime"`
	FromYear         *float64   `json:"from_year" binding:"required"`
	ToYear           *float64   `json:"to_year" binding:"required"`
}

func (h *Handler) putTimeline(c *gin.Context) {
	var req timelineReq
	empty, ok := bind(c, &req)
	if !ok {
		return
	}
	var in *TimelineInput
	if !empty {
		in = &TimelineInput{
			ID:       req.ID,
			ParentID: req.ParentTimelineID,
			Title:    req.Title,
			Regime:   req.Regime,
			FromYear: *req.FromYear,
			ToYear:   *req.ToYear,
		}
	}
	id, err := h.Mutate.PutTimeline(c.Request.Context(), auth.CurrentUser(c), collectionRef(c), in)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id})
}

func (h *Handler) deleteTimeline(c *gin.Context) {
	id, ok := h.bindID(c)
	if !ok {
		return
	}
	if err := h.Mutate.DeleteTimeline(c.Request.Context(), auth.CurrentUser(c), collectionRef(c), id); err != nil {
		h.fail(c, err)
		return
	}
	deleted(c)
}

type contentItemReq struct {
	ID              *uuid.UUID `json:"id"`
	ParentExhibitID *uuid.UUID `json:"parent_exhibit_id"`
	Title           string     `json:"title" binding:"required,max=200"`
	Caption         string     `json:"caption"`
	MediaType       string     `json:"media_type"`
	Uri             string     `json:"uri" binding:"omitempty,url"`
	MediaSource     string     `json:"media_source"`
	Attribution     string     `json:"attribution"`
	Order           *int       `json:"order" binding:"omitempty,min=0"`
}

func (r *contentItemReq) input() ContentItemInput {
	return ContentItemInput{
		ID:              r.ID,
		ParentExhibitID: r.ParentExhibitID,
		Title:           r.Title,
		Caption:         r.Caption,
		MediaType:       r.MediaType,
		Uri:             r.Uri,
		MediaSource:     r.MediaSource,
		Attribution:     r.Attribution,
		Order:           r.Order,
	}
}

type exhibitReq struct {
	ID               *uuid.UUID       `json:"id"`
	ParentTimelineID *uuid.UUID       `json:"parent_timeline_id"`
	Title            string           `json:"title" binding:"required,max=200"`
	Year             float64          `json:"year"`
	ContentItems     []contentItemReq `json:"content_items" binding:"dive"`
}

func (h *Handler) putExhibit(c *gin.Context) {
	var req exhibitReq
	empty, ok := bind(c, &req)
	if !ok {
		return
	}
	var in *ExhibitInput
	if !empty {
		in = &ExhibitInput{
			ID:               req.ID,
			ParentTimelineID: req.ParentTimelineID,
			Title:            req.Title,
			Year:             req.Year,
			ContentItems:     make([]ContentItemInput, len(req.ContentItems)),
		}
		for i := range req.ContentItems {
			in.ContentItems[i] = req.ContentItems[i].input()
		}
	}
	res, err := h.Mutate.PutExhibit(c.Request.Context(), auth.CurrentUser(c), collectionRef(c), in)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) deleteExhibit(c *gin.Context) {
	id, ok := h.bindID(c)
	if !ok {
		return
	}
	if err := h.Mutate.DeleteExhibit(c.Request.Context(), auth.CurrentUser(c), collectionRef(c), id); err != nil {
		h.fail(c, err)
		return
	}
	deleted(c)
}

func (h *Handler) putContentItem(c *gin.Context) {
	var req contentItemReq
	empty, ok := bind(c, &req)
	if !ok {
		return
	}
	var in *ContentItemInput
	if !empty {
		v := req.input()
		in = &v
	}
	id, err := h.Mutate.PutContentItem(c.Request.Context(), auth.CurrentUser(c), collectionRef(c), in)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id})
}

func (h *Handler) deleteContentItem(c *gin.Context) {
	id, ok := h.bindID(c)
	if !ok {
		return
	}
	if err := h.Mutate.DeleteContentItem(c.Request.Context(), auth.CurrentUser(c), collectionRef(c), id); err != nil {
		h.fail(c, err)
		return
	}
	deleted(c)
}

type bookmarkReq struct {
	Name        string `json:"name" binding:"required"`
	URL         string `json:"url" binding:"required"`
	LapseTime   int    `json:"lapse_time" binding:"min=0"`
	Description string `json:"description"`
}

type tourReq struct {
	ID          *uuid.UUID    `json:"id"`
	Name        string        `json:"name" binding:"required,max=200"`
	Description string        `json:"description"`
	AudioURL    string        `json:"audio_url" binding:"omitempty,url"`
	Category    string        `json:"category"`
	Sequence    int           `json:"sequence"`
	Bookmarks   []bookmarkReq `json:"bookmarks" binding:"dive"`
}

func (h *Handler) putTour(c *gin.Context) {
	var req tourReq
	empty, ok := bind(c, &req)
	if !ok {
		return
	}
	var in *TourInput
	if !empty {
		in = &TourInput{
			ID:          req.ID,
			Name:        req.Name,
			Description: req.Description,
			AudioURL:    req.AudioURL,
			Category:    req.Category,
			Sequence:    req.Sequence,
			Bookmarks:   make([]BookmarkInput, len(req.Bookmarks)),
		}
		for i, bm := range req.Bookmarks {
			in.Bookmarks[i] = BookmarkInput{Name: bm.Name, URL: bm.URL, LapseTime: bm.LapseTime, Description: bm.Description}
		}
	}
	id, err := h.Mutate.PutTour(c.Request.Context(), auth.CurrentUser(c), collectionRef(c), in)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id})
}

func (h *Handler) deleteTour(c *gin.Context) {
	id, ok := h.bindID(c)
	if !ok {
		return
	}
	if err := h.Mutate.DeleteTour(c.Request.Context(), auth.CurrentUser(c), collectionRef(c), id); err != nil {
		h.fail(c, err)
		return
	}
	deleted(c)
}

// =============================================================================
// Users
// =============================================================================

type userReq struct {
	DisplayName string `json:"display_name" binding:"omitempty,title"`
	Email       string `json:"email" binding:"omitempty,email"`
}

func (h *Handler) putUser(c *gin.Context) {
	var req userReq
	empty, ok := bind(c, &req)
	if !ok {
		return
	}
	var in *UserInput
	if !empty {
		in = &UserInput{DisplayName: req.DisplayName, Email: req.Email}
	}
	path, err := h.Mutate.PutUser(c.Request.Context(), auth.CurrentUser(c), in)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"collection": path})
}

func (h *Handler) deleteUser(c *gin.Context) {
	if err := h.Mutate.DeleteUser(c.Request.Context(), auth.CurrentUser(c)); err != nil {
		h.fail(c, err)
		return
	}
	deleted(c)
}

func (h *Handler) getUser(c *gin.Context) {
	u, err := h.Mutate.GetUser(c.Request.Context(), auth.CurrentUser(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}
