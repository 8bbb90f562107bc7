package routeguard

import (
	"net/http"
	"time"

	"portalgate/internal/auth"
	"portalgate/internal/httputils"
	"portalgate/internal/observability/logging"
)

// Response is the body returned by the route access endpoint
type Response struct {
	Path string `json:"path"`
	Verdict
}

// Handler serves GET /api/auth/route-access?path=/some/page for the UI
type Handler struct {
	guard  *Guard
	logger *logging.Logger
	now    func() time.Time
}

// NewHandler creates the route access handler
func NewHandler(guard *Guard, logger *logging.Logger) *Handler {
	return &Handler{
		guard:  guard,
		logger: logger.WithModule("routeguard"),
		now:    time.Now,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		httputils.WriteError(w, http.StatusBadRequest, "path is required")
		return
	}

	verdict := h.guard.Evaluate(State{User: h.currentUser(r)}, path)

	logging.FromContext(r.Context(), h.logger).Debug("Route access evaluated",
		"path", path,
		"render", verdict.Render,
		"authorized", verdict.Authorized,
	)

	httputils.WriteJSON(w, http.StatusOK, Response{Path: path, Verdict: verdict})
}

// currentUser mirrors the UI's auth state: no token, an undecodable token or
// an expired one all mean nobody is signed in.
func (h *Handler) currentUser(r *http.Request) *User {
	token, ok := auth.ExtractToken(r)
	if !ok {
		return nil
	}
	claims, err := auth.DecodeRole(token)
	if err != nil || claims.ExpiredAt(h.now()) {
		return nil
	}
	return &User{ID: claims.Subject, Role: claims.Role}
}
