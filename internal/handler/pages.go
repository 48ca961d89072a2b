package handler

import (
	"fmt"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/yourorg/taskhub/internal/service"
)

var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html>
<head><title>{{.Title}} - TaskHub</title></head>
<body>
<h1>{{.Title}}</h1>
<p>{{.Body}}</p>
</body>
</html>`))

type pageData struct {
	Title string
	Body  string
}

// PagesHandler serves the minimal server-rendered pages. The guard in front
// of them handles the redirect flow; unauthenticated requests never reach
// these handlers on protected paths.
type PagesHandler struct {
	directory *service.DirectoryService
	logger    *slog.Logger
}

// NewPagesHandler creates a new pages handler
func NewPagesHandler(directory *service.DirectoryService, logger *slog.Logger) *PagesHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &PagesHandler{directory: directory, logger: logger}
}

// Login handles GET /login. redirectTo is echoed into the page so the client
// can return the user where they were headed.
func (h *PagesHandler) Login(w http.ResponseWriter, r *http.Request) {
	redirectTo := r.URL.Query().Get("redirectTo")
	body := "Sign in to continue."
	if redirectTo != "" {
		body = fmt.Sprintf("Sign in to continue to %s.", redirectTo)
	}
	h.render(w, pageData{Title: "Login", Body: body})
}

// Dashboard handles GET /dashboard
func (h *PagesHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	h.render(w, pageData{Title: "Dashboard", Body: "Your tasks at a glance."})
}

// Users handles GET /users
func (h *PagesHandler) Users(w http.ResponseWriter, r *http.Request) {
	h.render(w, pageData{Title: "Users", Body: "Manage the people in your business."})
}

// Invite handles GET /users/invite
func (h *PagesHandler) Invite(w http.ResponseWriter, r *http.Request) {
	h.render(w, pageData{Title: "Invite user", Body: "Invite a new user by email."})
}

// Tasks handles GET /tasks
func (h *PagesHandler) Tasks(w http.ResponseWriter, r *http.Request) {
	h.render(w, pageData{Title: "Tasks", Body: "Recurring tasks and their instances."})
}

// Home handles GET /. The guard in front of /dashboard sends signed-out
// visitors on to the login page from there.
func (h *PagesHandler) Home(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/dashboard", http.StatusFound)
}

func (h *PagesHandler) render(w http.ResponseWriter, data pageData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := pageTemplate.Execute(w, data); err != nil {
		h.logger.Error("failed to render page", slog.String("error", err.Error()))
	}
}
