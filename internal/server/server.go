// Package server provides the HTTP API.
package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"

	"feedhaven/internal/database"
	"feedhaven/internal/discover"
	"feedhaven/internal/model"
	"feedhaven/internal/reader"
	"feedhaven/internal/rss"
)

// Server is the main HTTP server.
type Server struct {
	db         database.Store
	engine     *rss.Engine
	discoverer *discover.Discoverer
	extractor  *reader.Extractor
	poller     *rss.Poller
	router     chi.Router
}

// New creates a server. poller may be nil to disable scheduled refreshes.
func New(db database.Store, engine *rss.Engine, discoverer *discover.Discoverer, extractor *reader.Extractor, poller *rss.Poller) *Server {
	s := &Server{
		db:         db,
		engine:     engine,
		discoverer: discoverer,
		extractor:  extractor,
		poller:     poller,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))

	r.Route("/api", func(r chi.Router) {
		r.Post("/feeds/discover", s.handleDiscover)
		r.Get("/feeds", s.handleListFeeds)
		r.Post("/feeds", s.handleAddFeed)
		r.Get("/feeds/{feedID}", s.handleGetFeed)
		r.Patch("/feeds/{feedID}", s.handleUpdateFeed)
		r.Delete("/feeds/{feedID}", s.handleDeleteFeed)

		r.Post("/refresh", s.handleRefresh)
		r.Get("/health", s.handleHealth)
		r.Get("/counts", s.handleCounts)

		r.Get("/export-opml", s.handleExportOPML)
		r.Post("/import-opml", s.handleImportOPML)

		r.Get("/articles", s.handleListArticles)
		r.Get("/articles/{articleID}/content", s.handleArticleContent)
		r.Post("/articles/{articleID}/read", s.handleMarkArticle(func(id int64) error { return s.db.SetArticleRead(id, true) }))
		r.Post("/articles/{articleID}/unread", s.handleMarkArticle(func(id int64) error { return s.db.SetArticleRead(id, false) }))
		r.Post("/articles/{articleID}/bookmark", s.handleMarkArticle(func(id int64) error { return s.db.SetArticleBookmarked(id, true) }))
		r.Post("/articles/{articleID}/unbookmark", s.handleMarkArticle(func(id int64) error { return s.db.SetArticleBookmarked(id, false) }))

		r.Get("/categories", s.handleListCategories)
		r.Post("/categories", s.handleCreateCategory)
		r.Patch("/categories/{categoryID}", s.handleUpdateCategory)
		r.Delete("/categories/{categoryID}", s.handleDeleteCategory)
	})

	s.router = r
}

// Router exposes the handler for embedding and tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// Start starts the server and poller.
func (s *Server) Start(addr string) error {
	if s.poller != nil {
		s.poller.Start()
	}
	log.WithField("addr", addr).Info("server starting")
	return http.ListenAndServe(addr, s.router)
}

// Stop stops the poller.
func (s *Server) Stop() {
	if s.poller != nil {
		s.poller.Stop()
	}
}

// --- Feed Handlers ---

func (s *Server) handleDiscover(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.URL == "" {
		respondError(w, http.StatusBadRequest, "url is required")
		return
	}
	result, err := s.discoverer.Discover(r.Context(), discover.NormalizeURL(req.URL))
	if err != nil {
		respondError(w, http.StatusBadGateway, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleListFeeds(w http.ResponseWriter, r *http.Request) {
	feeds, err := s.db.GetFeeds()
	if err != nil {
		s.respondErr(w, err)
		return
	}
	if feeds == nil {
		feeds = []model.Feed{}
	}
	respondJSON(w, http.StatusOK, feeds)
}

func (s *Server) handleAddFeed(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URL        string `json:"url"`
		CategoryID *int64 `json:"categoryId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.URL == "" {
		respondError(w, http.StatusBadRequest, "url is required")
		return
	}
	feed, err := s.engine.AddFeed(r.Context(), req.URL, req.CategoryID)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, feed)
}

func (s *Server) handleGetFeed(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "feedID")
	if !ok {
		return
	}
	feed, err := s.db.GetFeedByID(id)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, feed)
}

func (s *Server) handleUpdateFeed(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "feedID")
	if !ok {
		return
	}
	feed, err := s.db.GetFeedByID(id)
	if err != nil {
		s.respondErr(w, err)
		return
	}

	var req struct {
		Title      *string         `json:"title"`
		SiteURL    *string         `json:"siteUrl"`
		IsActive   *bool           `json:"isActive"`
		CategoryID json.RawMessage `json:"categoryId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Title != nil {
		feed.Title = *req.Title
	}
	if req.SiteURL != nil {
		feed.SiteURL = *req.SiteURL
	}
	if req.IsActive != nil {
		feed.IsActive = *req.IsActive
	}
	// categoryId distinguishes absent (unchanged) from explicit null (clear).
	if len(req.CategoryID) > 0 {
		if string(req.CategoryID) == "null" {
			feed.CategoryID = nil
		} else {
			var catID int64
			if err := json.Unmarshal(req.CategoryID, &catID); err != nil {
				respondError(w, http.StatusBadRequest, "categoryId must be a number or null")
				return
			}
			if _, err := s.db.GetCategoryByID(catID); err != nil {
				s.respondErr(w, err)
				return
			}
			feed.CategoryID = &catID
		}
	}

	if err := s.db.UpdateFeed(feed); err != nil {
		s.respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, feed)
}

func (s *Server) handleDeleteFeed(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "feedID")
	if !ok {
		return
	}
	if err := s.db.DeleteFeed(id); err != nil {
		s.respondErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Sync Handlers ---

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	total, err := s.engine.RefreshAll(r.Context())
	if err != nil {
		s.respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"newArticles": total})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	summary, err := s.engine.Health()
	if err != nil {
		s.respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, summary)
}

func (s *Server) handleCounts(w http.ResponseWriter, r *http.Request) {
	counts, err := s.db.Counts()
	if err != nil {
		s.respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, counts)
}

// --- OPML Handlers ---

func (s *Server) handleExportOPML(w http.ResponseWriter, r *http.Request) {
	data, err := s.engine.ExportOPML()
	if err != nil {
		s.respondErr(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/xml; charset=utf-8")
	w.Header().Set("Content-Disposition", "attachment; filename=feedhaven.opml")
	w.Write(data)
}

func (s *Server) handleImportOPML(w http.ResponseWriter, r *http.Request) {
	body := r.Body
	// Accept either a raw document or a multipart upload named "opml".
	if file, _, err := r.FormFile("opml"); err == nil {
		defer file.Close()
		body = file
	}
	result, err := s.engine.ImportOPML(r.Context(), body)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// --- Article Handlers ---

func (s *Server) handleListArticles(w http.ResponseWriter, r *http.Request) {
	q := database.ArticleQuery{
		UnreadOnly:     r.URL.Query().Get("unread") == "true",
		BookmarkedOnly: r.URL.Query().Get("bookmarked") == "true",
	}
	if v := r.URL.Query().Get("feedId"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid feedId")
			return
		}
		q.FeedID = &id
	}
	if v := r.URL.Query().Get("categoryId"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid categoryId")
			return
		}
		q.CategoryID = &id
	}
	q.Limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	if q.Limit <= 0 || q.Limit > 200 {
		q.Limit = 100
	}
	q.Offset, _ = strconv.Atoi(r.URL.Query().Get("offset"))

	articles, err := s.db.ListArticles(q)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	if articles == nil {
		articles = []model.Article{}
	}
	respondJSON(w, http.StatusOK, articles)
}

func (s *Server) handleMarkArticle(mark func(id int64) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := urlID(w, r, "articleID")
		if !ok {
			return
		}
		if err := mark(id); err != nil {
			s.respondErr(w, err)
			return
		}
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func (s *Server) handleArticleContent(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "articleID")
	if !ok {
		return
	}
	article, err := s.db.GetArticleByID(id)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	if article.URL == "" {
		respondError(w, http.StatusUnprocessableEntity, "article has no source URL")
		return
	}
	view, err := s.extractor.Extract(article.URL)
	if err != nil {
		// Extraction is best-effort; fall back to the stored content.
		log.WithError(err).WithField("url", article.URL).Warn("content extraction failed")
		view = &reader.View{
			URL:     article.URL,
			Title:   article.Title,
			Content: article.Content,
		}
	}
	respondJSON(w, http.StatusOK, view)
}

// --- Category Handlers ---

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	cats, err := s.db.GetCategories()
	if err != nil {
		s.respondErr(w, err)
		return
	}
	if cats == nil {
		cats = []model.Category{}
	}
	respondJSON(w, http.StatusOK, cats)
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	var cat model.Category
	if err := json.NewDecoder(r.Body).Decode(&cat); err != nil || cat.Name == "" {
		respondError(w, http.StatusBadRequest, "name is required")
		return
	}
	id, err := s.db.CreateCategory(&cat)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	cat.ID = id
	respondJSON(w, http.StatusCreated, cat)
}

func (s *Server) handleUpdateCategory(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "categoryID")
	if !ok {
		return
	}
	cat, err := s.db.GetCategoryByID(id)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	var req struct {
		Name  *string `json:"name"`
		Color *string `json:"color"`
		Order *int    `json:"order"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name != nil {
		cat.Name = *req.Name
	}
	if req.Color != nil {
		cat.Color = *req.Color
	}
	if req.Order != nil {
		cat.Order = *req.Order
	}
	if err := s.db.UpdateCategory(cat); err != nil {
		s.respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, cat)
}

func (s *Server) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "categoryID")
	if !ok {
		return
	}
	if err := s.db.DeleteCategory(id); err != nil {
		s.respondErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Helpers ---

func urlID(w http.ResponseWriter, r *http.Request, param string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, param), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}

// respondErr maps the error taxonomy onto HTTP statuses.
func (s *Server) respondErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, rss.ErrConflict):
		respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, rss.ErrInvalidSource):
		respondError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, database.ErrNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	default:
		log.WithError(err).Error("request failed")
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Error("encoding response")
	}
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}
