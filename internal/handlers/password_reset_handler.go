package handlers

import (
	"net/http"

	"github.com/fleetportal/passreset/internal/constants"
	"github.com/fleetportal/passreset/internal/models"
	"github.com/fleetportal/passreset/internal/utils"
)

// PasswordResetHandler handles the forgot-password, verify-token and update
// routes.
type PasswordResetHandler struct {
	resetService PasswordResetServiceInterface
}

// NewPasswordResetHandler creates a new PasswordResetHandler
func NewPasswordResetHandler(resetService PasswordResetServiceInterface) *PasswordResetHandler {
	if resetService == nil {
		panic("resetService cannot be nil")
	}
	return &PasswordResetHandler{resetService: resetService}
}

// ForgotPassword issues a reset token and emails the link. The response
// never carries the token.
func (h *PasswordResetHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req models.ForgotPasswordRequest
	if err := decodeRequest(r, &req, constants.MsgMissingIdentity); err != nil {
		utils.HandleError(w, r, err)
		return
	}

	issue := models.IssueRequest{
		Identity: models.Identity{
			Username: req.Username,
			Email:    req.Email,
			Phone:    req.Phone,
		},
		IPAddress: utils.ClientIP(r),
	}

	if err := h.resetService.Issue(r.Context(), issue); err != nil {
		utils.HandleError(w, r, err)
		return
	}

	utils.Success(w, constants.MsgResetLinkSent)
}

// VerifyToken reports whether the token in the query string can still be
// redeemed, and for which user.
func (h *PasswordResetHandler) VerifyToken(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get(constants.QueryParamToken)

	userID, err := h.resetService.Verify(r.Context(), token)
	if err != nil {
		utils.HandleError(w, r, err)
		return
	}

	utils.JSON(w, http.StatusOK, utils.Response{
		Message: constants.MsgTokenValid,
		UserID:  userID,
	})
}

// UpdatePassword redeems the token and sets the new password.
func (h *PasswordResetHandler) UpdatePassword(w http.ResponseWriter, r *http.Request) {
	var req models.ResetPasswordRequest
	if err := decodeRequest(r, &req, constants.MsgMissingResetFields); err != nil {
		utils.HandleError(w, r, err)
		return
	}

	redeem := models.RedeemRequest{
		Token:           req.Token,
		UserID:          int64(req.UserID),
		NewPassword:     req.NewPassword,
		ConfirmPassword: req.ConfirmPassword,
	}

	if err := h.resetService.Redeem(r.Context(), redeem); err != nil {
		utils.HandleError(w, r, err)
		return
	}

	utils.Success(w, constants.MsgPasswordReset)
}

// decodeRequest decodes and validates a JSON body. Missing fields are
// reported with message and the per-field detail.
func decodeRequest(r *http.Request, v interface{}, message string) error {
	if err := utils.DecodeJSON(r, v); err != nil {
		return err
	}

	if err := utils.ValidateStruct(v); err != nil {
		appErr := utils.ParseError(err)
		details := appErr.Details
		if details == nil && appErr.Field != "" {
			details = map[string]any{appErr.Field: appErr.Message}
		}
		return &utils.AppError{
			Err:        utils.ErrValidation,
			StatusCode: http.StatusBadRequest,
			Message:    message,
			Details:    details,
		}
	}

	return nil
}
