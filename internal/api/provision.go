package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/garden-core/internal/device"
	"github.com/nerrad567/garden-core/internal/provisioning"
)

// provisionRequest is the body for POST /provision.
type provisionRequest struct {
	MAC    string `json:"mac"`
	UserID string `json:"user_id"`
}

// provisionResponse wraps the issued credentials with the history outcome
// so the app can tell the user whether measurements survived the transfer.
type provisionResponse struct {
	*provisioning.Credentials
	History device.TransferResult `json:"history"`
}

// handleProvision registers a device for an owner and issues fresh
// broker credentials.
//
// Re-provisioning for the same owner rotates the secret and preserves
// history; a different owner additionally purges the previous owner's
// measurement and alert history.
func (s *Server) handleProvision(w http.ResponseWriter, r *http.Request) {
	if s.provisioner == nil {
		writeInternalError(w, "provisioning not configured")
		return
	}

	var req provisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	creds, result, err := s.provisioner.Register(r.Context(), req.MAC, req.UserID)
	if err != nil {
		switch {
		case errors.Is(err, provisioning.ErrMissingOwner):
			writeBadRequest(w, "user_id is required")
		case errors.Is(err, device.ErrInvalidMAC):
			writeBadRequest(w, "invalid device identity")
		default:
			s.logger.Error("provisioning failed", "mac", req.MAC, "error", err)
			writeInternalError(w, "provisioning failed")
		}
		return
	}

	writeJSON(w, http.StatusOK, provisionResponse{
		Credentials: creds,
		History:     result,
	})
}
