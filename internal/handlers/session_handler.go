package handlers

import (
	"net/http"

	"github.com/fleetportal/passreset/internal/auth"
	"github.com/fleetportal/passreset/internal/constants"
	"github.com/fleetportal/passreset/internal/utils"
)

// SessionHandler answers session validation calls from the portal's login
// gate. It runs behind auth.RequireSession.
type SessionHandler struct{}

// NewSessionHandler creates a new SessionHandler
func NewSessionHandler() *SessionHandler {
	return &SessionHandler{}
}

// GetSession returns the username and expiry of the caller's session.
func (h *SessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.GetSession(r)
	if !ok {
		utils.Unauthorized(w, constants.MsgAuthRequired)
		return
	}

	resp := utils.Response{
		Message:  constants.MsgSessionValid,
		Username: claims.Username,
	}
	if claims.ExpiresAt != nil {
		expiresAt := claims.ExpiresAt.Time.UTC()
		resp.ExpiresAt = &expiresAt
	}

	utils.JSON(w, http.StatusOK, resp)
}
