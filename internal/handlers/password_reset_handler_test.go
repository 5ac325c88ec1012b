package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetportal/passreset/internal/constants"
	"github.com/fleetportal/passreset/internal/models"
	"github.com/fleetportal/passreset/internal/utils"
)

// MockPasswordResetService implements PasswordResetServiceInterface
type MockPasswordResetService struct {
	IssueFunc  func(ctx context.Context, req models.IssueRequest) error
	VerifyFunc func(ctx context.Context, token string) (int64, error)
	RedeemFunc func(ctx context.Context, req models.RedeemRequest) error

	IssueCalls  []models.IssueRequest
	RedeemCalls []models.RedeemRequest
}

func (m *MockPasswordResetService) Issue(ctx context.Context, req models.IssueRequest) error {
	m.IssueCalls = append(m.IssueCalls, req)
	if m.IssueFunc != nil {
		return m.IssueFunc(ctx, req)
	}
	return nil
}

func (m *MockPasswordResetService) Verify(ctx context.Context, token string) (int64, error) {
	if m.VerifyFunc != nil {
		return m.VerifyFunc(ctx, token)
	}
	return 1, nil
}

func (m *MockPasswordResetService) Redeem(ctx context.Context, req models.RedeemRequest) error {
	m.RedeemCalls = append(m.RedeemCalls, req)
	if m.RedeemFunc != nil {
		return m.RedeemFunc(ctx, req)
	}
	return nil
}

func decodeResponse(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body), rr.Body.String())
	return body
}

func TestNewPasswordResetHandler_NilService(t *testing.T) {
	assert.Panics(t, func() { NewPasswordResetHandler(nil) })
}

func TestForgotPassword(t *testing.T) {
	tests := []struct {
		name           string
		body           string
		issueErr       error
		expectedStatus int
		expectedCode   string
		expectedMsg    string
		expectIssue    bool
	}{
		{
			name:           "Link sent",
			body:           `{"username":"admin","email":"admin@fleet.test","phone":"5550100"}`,
			expectedStatus: http.StatusOK,
			expectedMsg:    constants.MsgResetLinkSent,
			expectIssue:    true,
		},
		{
			name:           "Missing phone",
			body:           `{"username":"admin","email":"admin@fleet.test"}`,
			expectedStatus: http.StatusBadRequest,
			expectedCode:   constants.CodeValidationError,
			expectedMsg:    constants.MsgMissingIdentity,
		},
		{
			name:           "Malformed JSON",
			body:           `{"username":`,
			expectedStatus: http.StatusBadRequest,
			expectedCode:   constants.CodeValidationError,
			expectedMsg:    constants.MsgMalformedJSON,
		},
		{
			name:           "Unknown field",
			body:           `{"username":"admin","email":"a@b.c","phone":"1","role":"root"}`,
			expectedStatus: http.StatusBadRequest,
			expectedCode:   constants.CodeValidationError,
		},
		{
			name:           "Identity mismatch",
			body:           `{"username":"admin","email":"other@fleet.test","phone":"5550100"}`,
			issueErr:       utils.NewNotFoundError(http.StatusBadRequest, constants.MsgIdentityMismatch),
			expectedStatus: http.StatusBadRequest,
			expectedCode:   constants.CodeNotFound,
			expectedMsg:    constants.MsgIdentityMismatch,
			expectIssue:    true,
		},
		{
			name:           "Delivery failure",
			body:           `{"username":"admin","email":"admin@fleet.test","phone":"5550100"}`,
			issueErr:       utils.NewDeliveryError(assert.AnError),
			expectedStatus: http.StatusInternalServerError,
			expectedCode:   constants.CodeDeliveryFailed,
			expectedMsg:    constants.MsgDeliveryFailed,
			expectIssue:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &MockPasswordResetService{
				IssueFunc: func(ctx context.Context, req models.IssueRequest) error { return tt.issueErr },
			}
			h := NewPasswordResetHandler(svc)

			req := httptest.NewRequest(http.MethodPost, constants.ForgotPasswordPath, strings.NewReader(tt.body))
			req.RemoteAddr = "198.51.100.20:55000"
			rr := httptest.NewRecorder()

			h.ForgotPassword(rr, req)

			assert.Equal(t, tt.expectedStatus, rr.Code)
			body := decodeResponse(t, rr)
			assert.Equal(t, tt.expectedStatus == http.StatusOK, body["success"])
			if tt.expectedCode != "" {
				assert.Equal(t, tt.expectedCode, body["code"])
			}
			if tt.expectedMsg != "" {
				assert.Equal(t, tt.expectedMsg, body["message"])
			}
			assert.NotContains(t, body, "token")

			if !tt.expectIssue {
				assert.Empty(t, svc.IssueCalls)
				return
			}
			require.Len(t, svc.IssueCalls, 1)
			assert.Equal(t, "198.51.100.20", svc.IssueCalls[0].IPAddress)
			assert.Equal(t, "admin", svc.IssueCalls[0].Identity.Username)
		})
	}
}

func TestVerifyToken(t *testing.T) {
	t.Run("Valid token", func(t *testing.T) {
		var seen string
		svc := &MockPasswordResetService{
			VerifyFunc: func(ctx context.Context, token string) (int64, error) {
				seen = token
				return 42, nil
			},
		}
		h := NewPasswordResetHandler(svc)

		req := httptest.NewRequest(http.MethodGet, constants.VerifyResetTokenPath+"?token=abc123", nil)
		rr := httptest.NewRecorder()

		h.VerifyToken(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "abc123", seen)
		body := decodeResponse(t, rr)
		assert.Equal(t, true, body["success"])
		assert.Equal(t, constants.MsgTokenValid, body["message"])
		assert.Equal(t, float64(42), body["userId"])
	})

	t.Run("Invalid or expired token", func(t *testing.T) {
		svc := &MockPasswordResetService{
			VerifyFunc: func(ctx context.Context, token string) (int64, error) {
				return 0, utils.NewInvalidOrExpiredTokenError(constants.MsgResetLinkInvalid)
			},
		}
		h := NewPasswordResetHandler(svc)

		rr := httptest.NewRecorder()
		h.VerifyToken(rr, httptest.NewRequest(http.MethodGet, constants.VerifyResetTokenPath+"?token=nope", nil))

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		body := decodeResponse(t, rr)
		assert.Equal(t, constants.CodeInvalidOrExpiredToken, body["code"])
		assert.Equal(t, constants.MsgResetLinkInvalid, body["message"])
		assert.NotContains(t, body, "userId")
	})

	t.Run("Missing token is passed through", func(t *testing.T) {
		svc := &MockPasswordResetService{
			VerifyFunc: func(ctx context.Context, token string) (int64, error) {
				assert.Empty(t, token)
				return 0, utils.NewBadRequestError(constants.MsgMissingToken)
			},
		}
		h := NewPasswordResetHandler(svc)

		rr := httptest.NewRecorder()
		h.VerifyToken(rr, httptest.NewRequest(http.MethodGet, constants.VerifyResetTokenPath, nil))

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Equal(t, constants.MsgMissingToken, decodeResponse(t, rr)["message"])
	})
}

func TestUpdatePassword(t *testing.T) {
	tests := []struct {
		name           string
		body           string
		redeemErr      error
		expectedStatus int
		expectedCode   string
		expectedMsg    string
		expectedUserID int64
	}{
		{
			name:           "Numeric user id",
			body:           `{"token":"abc","userId":7,"newPassword":"abcd1234","confirmPassword":"abcd1234"}`,
			expectedStatus: http.StatusOK,
			expectedMsg:    constants.MsgPasswordReset,
			expectedUserID: 7,
		},
		{
			name:           "String user id",
			body:           `{"token":"abc","userId":"7","newPassword":"abcd1234","confirmPassword":"abcd1234"}`,
			expectedStatus: http.StatusOK,
			expectedMsg:    constants.MsgPasswordReset,
			expectedUserID: 7,
		},
		{
			name:           "Missing confirm password",
			body:           `{"token":"abc","userId":7,"newPassword":"abcd1234"}`,
			expectedStatus: http.StatusBadRequest,
			expectedCode:   constants.CodeValidationError,
			expectedMsg:    constants.MsgMissingResetFields,
		},
		{
			name:           "Non numeric user id",
			body:           `{"token":"abc","userId":"seven","newPassword":"abcd1234","confirmPassword":"abcd1234"}`,
			expectedStatus: http.StatusBadRequest,
			expectedCode:   constants.CodeValidationError,
		},
		{
			name:           "Passwords differ",
			body:           `{"token":"abc","userId":7,"newPassword":"abcd1234","confirmPassword":"abcd12345"}`,
			redeemErr:      utils.NewPasswordMismatchError(),
			expectedStatus: http.StatusBadRequest,
			expectedCode:   constants.CodePasswordMismatch,
			expectedMsg:    constants.MsgPasswordsDoNotMatch,
			expectedUserID: 7,
		},
		{
			name:           "Token already used",
			body:           `{"token":"abc","userId":7,"newPassword":"abcd1234","confirmPassword":"abcd1234"}`,
			redeemErr:      utils.NewInvalidOrExpiredTokenError(constants.MsgResetTokenInvalid),
			expectedStatus: http.StatusBadRequest,
			expectedCode:   constants.CodeInvalidOrExpiredToken,
			expectedMsg:    constants.MsgResetTokenInvalid,
			expectedUserID: 7,
		},
		{
			name:           "User removed",
			body:           `{"token":"abc","userId":7,"newPassword":"abcd1234","confirmPassword":"abcd1234"}`,
			redeemErr:      utils.NewNotFoundError(http.StatusNotFound, constants.MsgUserNotFound),
			expectedStatus: http.StatusNotFound,
			expectedCode:   constants.CodeNotFound,
			expectedMsg:    constants.MsgUserNotFound,
			expectedUserID: 7,
		},
		{
			name:           "Store failure",
			body:           `{"token":"abc","userId":7,"newPassword":"abcd1234","confirmPassword":"abcd1234"}`,
			redeemErr:      utils.NewInternalServerError(assert.AnError),
			expectedStatus: http.StatusInternalServerError,
			expectedCode:   constants.CodeInternalError,
			expectedMsg:    constants.MsgInternalServerError,
			expectedUserID: 7,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &MockPasswordResetService{
				RedeemFunc: func(ctx context.Context, req models.RedeemRequest) error { return tt.redeemErr },
			}
			h := NewPasswordResetHandler(svc)

			req := httptest.NewRequest(http.MethodPost, constants.UpdatePasswordPath, strings.NewReader(tt.body))
			rr := httptest.NewRecorder()

			h.UpdatePassword(rr, req)

			assert.Equal(t, tt.expectedStatus, rr.Code)
			body := decodeResponse(t, rr)
			if tt.expectedCode != "" {
				assert.Equal(t, tt.expectedCode, body["code"])
			}
			if tt.expectedMsg != "" {
				assert.Equal(t, tt.expectedMsg, body["message"])
			}

			if tt.expectedUserID == 0 {
				assert.Empty(t, svc.RedeemCalls)
				return
			}
			require.Len(t, svc.RedeemCalls, 1)
			assert.Equal(t, tt.expectedUserID, svc.RedeemCalls[0].UserID)
			assert.Equal(t, "abc", svc.RedeemCalls[0].Token)
		})
	}
}
