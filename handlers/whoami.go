package handlers

import (
	"net/http"

	"github.com/upb/session-auth/middleware"
	"github.com/upb/session-auth/subject"
	"github.com/upb/session-auth/utils"
	"go.uber.org/zap"
)

// WhoamiResponse describes the current principal
type WhoamiResponse struct {
	Authenticated bool            `json:"authenticated"`
	UserID        string          `json:"user_id,omitempty"`
	Subject       subject.Subject `json:"subject,omitempty"`
}

// HelloHandler serves the demo routes that exercise the request gates
type HelloHandler struct {
	extractor *middleware.Extractor
	logger    *zap.Logger
}

// NewHelloHandler creates a new HelloHandler
func NewHelloHandler(extractor *middleware.Extractor, logger *zap.Logger) *HelloHandler {
	return &HelloHandler{extractor: extractor, logger: logger}
}

// HandlePublic reports the Subject if there is one, without requiring login
func (h *HelloHandler) HandlePublic(w http.ResponseWriter, r *http.Request) {
	h.write(w, r)
}

// HandlePrivate is mounted behind CheckAuthenticated
func (h *HelloHandler) HandlePrivate(w http.ResponseWriter, r *http.Request) {
	if err := utils.WriteOK(w, map[string]string{"message": "authenticated"}); err != nil {
		h.logger.Error("failed to write response", zap.Error(err))
	}
}

// HandleSubject is mounted behind Authenticate and echoes the attached Subject
func (h *HelloHandler) HandleSubject(w http.ResponseWriter, r *http.Request) {
	h.write(w, r)
}

func (h *HelloHandler) write(w http.ResponseWriter, r *http.Request) {
	resp := WhoamiResponse{}
	if s, ok := h.extractor.Subject(r); ok {
		resp.Authenticated = true
		resp.UserID = s.UserID()
		resp.Subject = s
	}
	if err := utils.WriteOK(w, resp); err != nil {
		h.logger.Error("failed to write response", zap.Error(err))
	}
}
