package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"ulift/internal/metrics"
	"ulift/internal/middleware"
	"ulift/internal/models"
	"ulift/internal/pipeline"
	"ulift/internal/roster"
	"ulift/internal/session"
	"ulift/internal/validation"
	"ulift/internal/widgets"
)

// Messages specific to the HTTP surface.
const (
	MsgFileTooLarge    = "file too large"
	BannerBadRequest   = "COULD NOT READ THE FORM, PLEASE TRY AGAIN"
	BannerChatDown     = "CHAT UNAVAILABLE, PLEASE TRY AGAIN"
	maxMultipartMemory = 32 << 20
)

type page struct {
	Title    string
	Form     widgets.View
	Users    []string
	ChatName string
}

// RegisterPageHandler renders the registration form of the caller's instance.
func (s *Server) RegisterPageHandler(w http.ResponseWriter, r *http.Request) {
	inst, ok := s.instance(w, r)
	if !ok {
		return
	}
	s.render(w, r, http.StatusOK, "register.html", page{Title: "Sign up", Form: inst.Form.Snapshot()})
}

// RegisterHandler submits the posted form through the instance's pipeline.
func (s *Server) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	inst, ok := s.instance(w, r)
	if !ok {
		return
	}

	limit := s.cfg.Upload.MaxBytes
	r.Body = http.MaxBytesReader(w, r.Body, 2*limit+maxMultipartMemory)
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		s.log.Info("unreadable registration form",
			zap.String("trace_id", middleware.TraceID(r.Context())), zap.Error(err))
		inst.Form.ShowBanner(BannerBadRequest)
		status := http.StatusBadRequest
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			status = http.StatusRequestEntityTooLarge
		}
		s.renderRegister(w, r, inst, status)
		return
	}
	defer r.MultipartForm.RemoveAll()

	form, err := models.FormFromRequest(r.MultipartForm, limit)
	if err != nil {
		var tooLarge *models.ErrUploadTooLarge
		if errors.As(err, &tooLarge) {
			inst.Form.SetFieldErrors(validation.FieldErrors{tooLarge.Field: MsgFileTooLarge})
			s.renderRegister(w, r, inst, http.StatusRequestEntityTooLarge)
			return
		}
		s.log.Error("reading uploads", zap.Error(err))
		inst.Form.ShowBanner(pipeline.BannerGeneric)
		s.renderRegister(w, r, inst, http.StatusInternalServerError)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.GetAPITimeout())
	defer cancel()
	res, err := inst.Pipeline.Submit(ctx, form)
	if errors.Is(err, pipeline.ErrSubmissionInFlight) {
		// the running attempt owns the values and the redirect
		s.renderRegister(w, r, inst, statusFor(res.State))
		return
	}

	if inst.TakeNavigation() {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}
	s.renderRegister(w, r, inst, statusFor(res.State))
}

func statusFor(st pipeline.State) int {
	switch st {
	case pipeline.Rejected:
		return http.StatusConflict
	case pipeline.PasswordMismatch, pipeline.Invalid, pipeline.APIError:
		return http.StatusUnprocessableEntity
	case pipeline.NetworkError:
		return http.StatusBadGateway
	default:
		return http.StatusOK
	}
}

// LoginPageHandler is where a successful registration lands.
func (s *Server) LoginPageHandler(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusOK, "login.html", page{Title: "Log in"})
}

// ChatPageHandler renders the chat login form and the current roster.
func (s *Server) ChatPageHandler(w http.ResponseWriter, r *http.Request) {
	inst, ok := s.instance(w, r)
	if !ok {
		return
	}
	s.renderChat(w, r, inst, http.StatusOK)
}

// ChatLoginHandler connects the instance to the chat service and logs in.
func (s *Server) ChatLoginHandler(w http.ResponseWriter, r *http.Request) {
	inst, ok := s.instance(w, r)
	if !ok {
		return
	}
	name := strings.TrimSpace(r.FormValue(models.FieldName))
	if name == "" {
		inst.ChatForm.SetFieldErrors(validation.FieldErrors{models.FieldName: validation.MsgNameRequired})
		s.renderChat(w, r, inst, http.StatusUnprocessableEntity)
		return
	}
	inst.ChatForm.ClearFieldErrors()

	chatURL := s.chatURL(r)
	l := inst.Listener(func() *roster.Listener {
		return roster.NewListener(roster.Options{
			URL:      chatURL,
			Logger:   s.log.With(zap.String("instance", inst.ID)),
			OnUpdate: metrics.RecordRosterUpdate,
		})
	})

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.GetAPITimeout())
	defer cancel()
	if err := l.Open(ctx); err != nil {
		s.chatFailed(w, r, inst, err)
		return
	}
	if err := l.Login(ctx, name); err != nil {
		s.chatFailed(w, r, inst, err)
		return
	}
	inst.SetChatName(name)
	inst.ChatForm.HideBanner()
	http.Redirect(w, r, "/chat", http.StatusSeeOther)
}

func (s *Server) chatFailed(w http.ResponseWriter, r *http.Request, inst *session.Instance, err error) {
	s.log.Warn("chat login failed",
		zap.String("trace_id", middleware.TraceID(r.Context())), zap.Error(err))
	inst.ChatForm.ShowBanner(BannerChatDown)
	s.renderChat(w, r, inst, http.StatusBadGateway)
}

type rosterResponse struct {
	Name  string   `json:"name,omitempty"`
	Users []string `json:"users"`
}

// RosterHandler returns the instance's roster as JSON.
func (s *Server) RosterHandler(w http.ResponseWriter, r *http.Request) {
	inst, ok := s.instance(w, r)
	if !ok {
		return
	}
	JSONResponse(w, http.StatusOK, rosterResponse{Name: inst.ChatName(), Users: inst.Roster()})
}

// JSONResponse writes a JSON response.
func JSONResponse(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func (s *Server) instance(w http.ResponseWriter, r *http.Request) (*session.Instance, bool) {
	id, err := session.InstanceID(s.store, w, r)
	if err != nil {
		s.log.Error("session", zap.String("trace_id", middleware.TraceID(r.Context())), zap.Error(err))
		http.Error(w, "session unavailable", http.StatusInternalServerError)
		return nil, false
	}
	return s.registry.Get(id), true
}

func (s *Server) renderRegister(w http.ResponseWriter, r *http.Request, inst *session.Instance, status int) {
	s.render(w, r, status, "register.html", page{Title: "Sign up", Form: inst.Form.Snapshot()})
}

func (s *Server) renderChat(w http.ResponseWriter, r *http.Request, inst *session.Instance, status int) {
	s.render(w, r, status, "chat.html", page{
		Title:    "Chat",
		Form:     inst.ChatForm.Snapshot(),
		Users:    inst.Roster(),
		ChatName: inst.ChatName(),
	})
}

func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, name string, data page) {
	var buf bytes.Buffer
	if err := s.tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		s.log.Error("render", zap.String("template", name),
			zap.String("trace_id", middleware.TraceID(r.Context())), zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	buf.WriteTo(w)
}
