package site

import (
	"context"
	"crypto/subtle"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"math/rand/v2"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"claude-autorun/logger"
	"claude-autorun/store"

	"github.com/google/uuid"
)

//go:embed web/*.html
var webFS embed.FS

// DefaultCookieName is the session cookie set by the site.
const DefaultCookieName = "autorun_session"

// RoleAdministrator may delete employees.
const RoleAdministrator = "administrator"

// User is a login account.
type User struct {
	Password string `yaml:"password"`
	Role     string `yaml:"role"`
}

// DefaultUsers returns the built-in accounts.
func DefaultUsers() map[string]User {
	return map[string]User{
		"admin": {Password: "password", Role: RoleAdministrator},
		"user":  {Password: "123456", Role: "user"},
	}
}

// Config configures the employee site.
type Config struct {
	Users   map[string]User
	Captcha bool
	// CaptchaKinds restricts the captcha kinds shown; empty allows all.
	CaptchaKinds []string
	SessionTTL   time.Duration
	CookieName   string
}

// Server is the employee management site the automation task drives.
type Server struct {
	store    store.Store
	cfg      Config
	log      logger.Logger
	sessions *sessionStore
	tmpl     *template.Template

	rngMu sync.Mutex
	rng   *rand.Rand
	now   func() time.Time
}

// New creates a site server backed by st.
func New(st store.Store, cfg Config, log logger.Logger) (*Server, error) {
	if len(cfg.Users) == 0 {
		cfg.Users = DefaultUsers()
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 12 * time.Hour
	}
	if cfg.CookieName == "" {
		cfg.CookieName = DefaultCookieName
	}
	for _, k := range cfg.CaptchaKinds {
		if !slices.Contains(CaptchaKinds, k) {
			return nil, fmt.Errorf("unknown captcha kind %q", k)
		}
	}
	tmpl, err := template.ParseFS(webFS, "web/*.html")
	if err != nil {
		return nil, err
	}
	s := &Server{
		store: st,
		cfg:   cfg,
		log:   log,
		tmpl:  tmpl,
		rng:   rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x5eed)),
		now:   time.Now,
	}
	s.sessions = newSessionStore(cfg.SessionTTL, func() time.Time { return s.now() })
	return s, nil
}

// Handler returns the site's routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleHome)
	mux.HandleFunc("GET /login", s.handleLoginPage)
	mux.HandleFunc("POST /login", s.handleLogin)
	mux.HandleFunc("GET /logout", s.handleLogout)
	mux.HandleFunc("GET /dashboard", s.requireLogin(s.handleDashboard))
	mux.HandleFunc("GET /employee/create", s.requireLogin(s.handleCreatePage))
	mux.HandleFunc("POST /employee/create", s.requireLogin(s.handleCreate))
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/employees", s.handleAPIEmployees)
	mux.HandleFunc("GET /api/employees/{id}", s.handleAPIEmployee)
	mux.HandleFunc("DELETE /api/employees/{id}", s.handleAPIDeleteEmployee)
	return mux
}

// Seed inserts the demo employees when the store is empty.
func (s *Server) Seed(ctx context.Context) error {
	n, err := s.store.Count(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	now := s.now()
	seed := []store.Employee{
		{Name: "John Smith", Salary: 150000, Duration: "3 years", Level: "manager", Email: "john.smith@company.com"},
		{Name: "Sarah Chen", Salary: 200000, Duration: "5 years", Level: "cLevel", Email: "sarah.chen@company.com"},
	}
	for i := range seed {
		e := seed[i]
		e.ID = "emp-" + uuid.NewString()[:8]
		e.CreatedBy = "seed"
		e.CreatedAt = now.Add(time.Duration(i) * time.Millisecond)
		if err := s.store.CreateEmployee(ctx, &e); err != nil {
			return err
		}
	}
	s.log.Info("site.seeded", logger.Int("employees", len(seed)))
	return nil
}

type pageData struct {
	Title     string
	User      string
	Message   string
	Error     string
	Captcha   *captcha
	Employees []*store.Employee
	Levels    []levelOption
}

func (s *Server) render(w http.ResponseWriter, name string, data pageData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.tmpl.ExecuteTemplate(w, name, data); err != nil {
		s.log.Error("site.render_failed", logger.String("template", name), logger.Err(err))
	}
}

func (s *Server) currentUser(r *http.Request) string {
	sess, _ := s.sessions.get(r, s.cfg.CookieName)
	return sess.user
}

func (s *Server) requireLogin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.currentUser(r) == "" {
			http.Redirect(w, r, "/login", http.StatusFound)
			return
		}
		next(w, r)
	}
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	data := pageData{Title: "Employee Management", User: s.currentUser(r)}
	if r.URL.Query().Get("message") == "logout" {
		data.Message = "You have been logged out."
	}
	s.render(w, "home.html", data)
}

func (s *Server) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessions.get(r, s.cfg.CookieName)
	if ok && sess.user != "" {
		http.Redirect(w, r, "/dashboard", http.StatusFound)
		return
	}
	token := sess.token
	if !ok {
		token = s.sessions.create()
		s.setCookie(w, token)
	}

	data := pageData{Title: "Login"}
	if s.cfg.Captcha {
		s.rngMu.Lock()
		c := newCaptcha(s.rng, s.cfg.CaptchaKinds)
		s.rngMu.Unlock()
		s.sessions.update(token, func(ss *session) { ss.captcha = c })
		data.Captcha = c
	}
	if r.URL.Query().Get("error") != "" {
		data.Error = "Invalid username, password or captcha."
	}
	s.render(w, "login.html", data)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Redirect(w, r, "/login?error=1", http.StatusFound)
		return
	}
	username := r.PostForm.Get("username")
	password := r.PostForm.Get("password")
	answer := r.PostForm.Get("captcha_answer")

	sess, hasSession := s.sessions.get(r, s.cfg.CookieName)
	ok := s.checkCredentials(username, password)
	if s.cfg.Captcha {
		// A captcha is good for one attempt.
		var expected string
		if hasSession {
			s.sessions.update(sess.token, func(ss *session) {
				if ss.captcha != nil {
					expected = ss.captcha.Answer
				}
				ss.captcha = nil
			})
		}
		ok = ok && expected != "" && expected == strings.TrimSpace(answer)
	}
	if !ok {
		s.log.Warn("site.login_failed", logger.String("username", username))
		http.Redirect(w, r, "/login?error=1", http.StatusFound)
		return
	}

	// Rotate the session token on login.
	if hasSession {
		s.sessions.destroy(sess.token)
	}
	token := s.sessions.create()
	role := s.cfg.Users[username].Role
	s.sessions.update(token, func(ss *session) {
		ss.user = username
		ss.role = role
	})
	s.setCookie(w, token)
	s.log.Info("site.login", logger.String("username", username))
	http.Redirect(w, r, "/dashboard", http.StatusFound)
}

func (s *Server) checkCredentials(username, password string) bool {
	u, ok := s.cfg.Users[username]
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(u.Password), []byte(password)) == 1
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(s.cfg.CookieName); err == nil {
		s.sessions.destroy(c.Value)
	}
	http.SetCookie(w, &http.Cookie{Name: s.cfg.CookieName, Value: "", Path: "/", MaxAge: -1})
	http.Redirect(w, r, "/?message=logout", http.StatusFound)
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	employees, err := s.store.ListEmployees(ctx, store.EmployeeFilter{})
	if err != nil {
		s.log.Error("site.list_failed", logger.Err(err))
		http.Error(w, "failed to list employees", http.StatusInternalServerError)
		return
	}
	data := pageData{Title: "Dashboard", User: s.currentUser(r), Employees: employees}
	if r.URL.Query().Get("success") == "created" {
		data.Message = "Success: employee created."
	}
	s.render(w, "dashboard.html", data)
}

func (s *Server) handleCreatePage(w http.ResponseWriter, r *http.Request) {
	data := pageData{Title: "Add Employee", User: s.currentUser(r), Levels: levels}
	if r.URL.Query().Get("error") != "" {
		data.Error = "Please fill in every field with valid values."
	}
	s.render(w, "create.html", data)
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Redirect(w, r, "/employee/create?error=1", http.StatusFound)
		return
	}
	form, err := parseEmployeeForm(r.PostForm)
	if err != nil {
		s.log.Warn("site.create_rejected", logger.Err(err))
		http.Redirect(w, r, "/employee/create?error=1", http.StatusFound)
		return
	}

	e := &store.Employee{
		ID:        "emp-" + uuid.NewString()[:8],
		Name:      form.Name,
		Salary:    form.Salary,
		Duration:  form.Duration,
		Level:     form.Level,
		Email:     form.Email,
		CreatedBy: s.currentUser(r),
		CreatedAt: s.now(),
	}
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()
	if err := s.store.CreateEmployee(ctx, e); err != nil {
		s.log.Error("site.create_failed", logger.Err(err))
		http.Redirect(w, r, "/employee/create?error=1", http.StatusFound)
		return
	}
	s.log.Info("site.employee_created",
		logger.String("id", e.ID),
		logger.String("email", e.Email),
		logger.String("by", e.CreatedBy),
	)
	http.Redirect(w, r, "/dashboard?success=created", http.StatusFound)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	n, err := s.store.Count(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "employees": n})
}

func (s *Server) handleAPIEmployees(w http.ResponseWriter, r *http.Request) {
	if s.currentUser(r) == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	q := r.URL.Query()
	filter := store.EmployeeFilter{
		Level: q.Get("level"),
		Email: q.Get("email"),
	}
	var err error
	if filter.Limit, err = queryInt(q.Get("limit")); err != nil {
		writeError(w, http.StatusBadRequest, "invalid limit")
		return
	}
	if filter.Offset, err = queryInt(q.Get("offset")); err != nil {
		writeError(w, http.StatusBadRequest, "invalid offset")
		return
	}
	employees, err := s.store.ListEmployees(r.Context(), filter)
	if err != nil {
		s.log.Error("site.list_failed", logger.Err(err))
		writeError(w, http.StatusInternalServerError, "failed to list employees")
		return
	}
	if employees == nil {
		employees = []*store.Employee{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"employees": employees, "total": len(employees)})
}

func (s *Server) handleAPIEmployee(w http.ResponseWriter, r *http.Request) {
	if s.currentUser(r) == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	e, err := s.store.GetEmployee(r.Context(), r.PathValue("id"))
	if err != nil {
		s.log.Error("site.get_failed", logger.Err(err))
		writeError(w, http.StatusInternalServerError, "failed to load employee")
		return
	}
	if e == nil {
		writeError(w, http.StatusNotFound, "employee not found")
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// handleAPIDeleteEmployee removes an employee. Only administrators may
// delete.
func (s *Server) handleAPIDeleteEmployee(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessions.get(r, s.cfg.CookieName)
	if !ok || sess.user == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if sess.role != RoleAdministrator {
		writeError(w, http.StatusForbidden, "administrator role required")
		return
	}
	id := r.PathValue("id")
	err := s.store.DeleteEmployee(r.Context(), id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "employee not found")
		return
	case err != nil:
		s.log.Error("site.delete_failed", logger.String("id", id), logger.Err(err))
		writeError(w, http.StatusInternalServerError, "failed to delete employee")
		return
	}
	s.log.Info("site.employee_deleted", logger.String("id", id), logger.String("by", sess.user))
	w.WriteHeader(http.StatusNoContent)
}

func queryInt(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, errors.New("not a non-negative integer")
	}
	return n, nil
}

func (s *Server) setCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.cfg.CookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(s.cfg.SessionTTL / time.Second),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// ListenAndServe serves the site on addr until ctx is cancelled, then
// shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("site.listening", logger.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.log.Info("site.shutdown")
	return srv.Shutdown(shutdownCtx)
}
