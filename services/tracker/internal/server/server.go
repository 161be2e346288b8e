package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"booktracker/internal/util"
	"booktracker/pkg/domain"
	"booktracker/services/tracker/internal/app"
)

const (
	maxJSONBytes      = 1 << 20
	multipartMemBytes = 32 << 20
)

// Config wires required dependencies for the HTTP server.
type Config struct {
	App            *app.App
	MaxUploadBytes int64
	TrustedProxies *util.TrustedProxies
}

// Server exposes HTTP endpoints for the book tracker.
type Server struct {
	app            *app.App
	mux            *http.ServeMux
	maxUploadBytes int64
	trusted        *util.TrustedProxies
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, errors.New("server: app is required")
	}
	maxUploadBytes := cfg.MaxUploadBytes
	if maxUploadBytes <= 0 {
		maxUploadBytes = 50 * 1024 * 1024
	}
	s := &Server{
		app:            cfg.App,
		mux:            http.NewServeMux(),
		maxUploadBytes: maxUploadBytes,
		trusted:        cfg.TrustedProxies,
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(util.WithRequestLog("tracker", s.trusted, util.WithSecurityHeaders(s.trusted, util.WithCORS(s.mux))))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)

	// auth
	s.mux.HandleFunc("/register", s.handleRegister)
	s.mux.HandleFunc("/login", s.handleLogin)
	s.mux.Handle("/logout", s.withUser(s.handleLogout))
	s.mux.Handle("/users/me", s.withUser(s.handleMe))

	// books
	s.mux.Handle("/books", s.withUser(s.handleBooks))
	s.mux.HandleFunc("/books/", s.handleBookPath)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type userHandler func(http.ResponseWriter, *http.Request, domain.User)

func (s *Server) withUser(next userHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := s.authenticate(w, r)
		if !ok {
			return
		}
		next(w, r, user)
	})
}

func (s *Server) authenticate(w http.ResponseWriter, r *http.Request) (domain.User, bool) {
	token, ok := bearerToken(r)
	if !ok {
		s.writeAppError(w, r, app.ErrUnauthorized)
		return domain.User{}, false
	}
	user, err := s.app.UserFromToken(token)
	if err != nil {
		s.writeAppError(w, r, err)
		return domain.User{}, false
	}
	return user, true
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	var req app.Registration
	if !decodeJSON(w, r, &req) {
		return
	}
	user, err := s.app.Register(req)
	if err != nil {
		s.audit(r, "register", "failure", "username", req.Username, "reason", err.Error())
		s.writeAppError(w, r, err)
		return
	}
	s.audit(r, "register", "success", "user_id", user.ID)
	writeJSON(w, http.StatusCreated, user)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	token, err := s.app.Login(req.Username, req.Password)
	if err != nil {
		s.audit(r, "login", "failure", "username", req.Username)
		s.writeAppError(w, r, err)
		return
	}
	s.audit(r, "login", "success", "username", req.Username)
	writeJSON(w, http.StatusOK, token)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	token, _ := bearerToken(r)
	if err := s.app.Logout(token); err != nil {
		s.writeAppError(w, r, err)
		return
	}
	s.audit(r, "logout", "success", "user_id", user.ID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "logged_out"})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *Server) handleBooks(w http.ResponseWriter, r *http.Request, user domain.User) {
	switch r.Method {
	case http.MethodPost:
		s.handleCreateBook(w, r, user)
	case http.MethodGet:
		books, err := s.app.ListBooks(user)
		if err != nil {
			s.writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, books)
	default:
		methodNotAllowed(w, http.MethodGet, http.MethodPost)
	}
}

// /books/{id}, /books/{id}/pdf, /books/{id}/progress or /books/{id}/reviews
func (s *Server) handleBookPath(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/books/"), "/")
	parts := strings.Split(path, "/")
	if len(parts) > 2 || parts[0] == "" {
		notFound(w)
		return
	}
	id, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusUnprocessableEntity, codeInvalidRequest, "invalid book id")
		return
	}
	action := ""
	if len(parts) == 2 {
		action = parts[1]
	}

	// The PDF route authenticates only when downloads are private.
	if action == "pdf" {
		s.handleBookPDF(w, r, id)
		return
	}

	user, ok := s.authenticate(w, r)
	if !ok {
		return
	}
	switch action {
	case "":
		s.handleBook(w, r, user, id)
	case "progress":
		s.handleProgress(w, r, user, id)
	case "reviews":
		s.handleReviews(w, r, user, id)
	default:
		notFound(w)
	}
}

func (s *Server) handleBook(w http.ResponseWriter, r *http.Request, user domain.User, id int64) {
	switch r.Method {
	case http.MethodGet:
		book, err := s.app.GetBook(user, id)
		if err != nil {
			s.writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, book)
	case http.MethodPut:
		var req app.BookUpdate
		if !decodeJSON(w, r, &req) {
			return
		}
		book, err := s.app.UpdateBook(user, id, req)
		if err != nil {
			s.writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, book)
	case http.MethodDelete:
		if err := s.app.DeleteBook(r.Context(), user, id); err != nil {
			s.writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	default:
		methodNotAllowed(w, http.MethodGet, http.MethodPut, http.MethodDelete)
	}
}

func (s *Server) handleCreateBook(w http.ResponseWriter, r *http.Request, user domain.User) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		var req app.NewBook
		if !decodeJSON(w, r, &req) {
			return
		}
		book, err := s.app.CreateBook(r.Context(), user, req)
		if err != nil {
			s.writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, book)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "BOOK_FILE_TOO_LARGE", "file too large")
			return
		}
		writeError(w, http.StatusUnprocessableEntity, codeInvalidRequest, "invalid form data")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	req := app.NewBook{
		Title:       r.FormValue("title"),
		Author:      r.FormValue("author"),
		Description: r.FormValue("description"),
	}
	if raw := strings.TrimSpace(r.FormValue("total_pages")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, codeInvalidRequest, "total_pages must be an integer")
			return
		}
		req.TotalPages = n
	}
	file, header, err := r.FormFile("pdf")
	switch {
	case err == nil:
		defer file.Close()
		req.PDF = &app.PDFUpload{Filename: header.Filename, File: file, Size: header.Size}
	case errors.Is(err, http.ErrMissingFile):
	default:
		writeError(w, http.StatusUnprocessableEntity, codeInvalidRequest, "invalid pdf upload")
		return
	}

	book, err := s.app.CreateBook(r.Context(), user, req)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, book)
}

func (s *Server) handleBookPDF(w http.ResponseWriter, r *http.Request, id int64) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	var viewer *domain.User
	if !s.app.PublicPDFDownloads() {
		if _, ok := bearerToken(r); ok {
			user, ok := s.authenticate(w, r)
			if !ok {
				return
			}
			viewer = &user
		}
	}
	rc, filename, err := s.app.OpenBookPDF(r.Context(), viewer, id)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	defer rc.Close()
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": filename}))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		util.LoggerFromContext(r.Context()).Warn("stream pdf failed", "book_id", id, "err", err)
	}
}

type progressRequest struct {
	CurrentPage *int `json:"current_page"`
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request, user domain.User, bookID int64) {
	switch r.Method {
	case http.MethodPost:
		var req progressRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if req.CurrentPage == nil {
			writeError(w, http.StatusUnprocessableEntity, codeInvalidRequest, "current_page is required")
			return
		}
		progress, err := s.app.UpdateProgress(user, bookID, *req.CurrentPage)
		if err != nil {
			s.writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, progress)
	case http.MethodGet:
		progress, err := s.app.GetProgress(user, bookID)
		if err != nil {
			s.writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, progress)
	default:
		methodNotAllowed(w, http.MethodGet, http.MethodPost)
	}
}

type reviewRequest struct {
	Rating *int   `json:"rating"`
	Text   string `json:"text"`
}

func (s *Server) handleReviews(w http.ResponseWriter, r *http.Request, user domain.User, bookID int64) {
	switch r.Method {
	case http.MethodPost:
		var req reviewRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if req.Rating == nil {
			writeError(w, http.StatusUnprocessableEntity, codeInvalidRequest, "rating is required")
			return
		}
		review, err := s.app.CreateReview(user, bookID, app.NewReview{Rating: *req.Rating, Text: req.Text})
		if err != nil {
			s.writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, review)
	case http.MethodGet:
		reviews, err := s.app.ListReviews(user, bookID)
		if err != nil {
			s.writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, reviews)
	default:
		methodNotAllowed(w, http.MethodGet, http.MethodPost)
	}
}

func (s *Server) audit(r *http.Request, event, outcome string, attrs ...any) {
	logAttrs := []any{
		"event", event,
		"outcome", outcome,
		"path", r.URL.Path,
		"method", r.Method,
		"ip", util.ClientIP(r, s.trusted),
	}
	logAttrs = append(logAttrs, attrs...)
	logger := util.LoggerFromContext(r.Context())
	if outcome == "success" {
		logger.Info("security_event", logAttrs...)
		return
	}
	logger.Warn("security_event", logAttrs...)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(io.LimitReader(r.Body, maxJSONBytes)).Decode(dst); err != nil {
		writeError(w, http.StatusUnprocessableEntity, codeInvalidRequest, "invalid JSON body")
		return false
	}
	return true
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if len(authHeader) < len("Bearer ") || !strings.EqualFold(authHeader[:len("Bearer ")], "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(authHeader[len("Bearer "):])
	if token == "" {
		return "", false
	}
	return token, true
}

func logInternal(r *http.Request, err error) {
	logger := util.LoggerFromContext(r.Context())
	logger.Error("request failed", slog.String("path", r.URL.Path), slog.String("method", r.Method), slog.Any("err", err))
}
