package utils_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fleetportal/passreset/internal/constants"
	"github.com/fleetportal/passreset/internal/utils"
)

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("Failed to unmarshal response body: %v", err)
	}
	return body
}

func TestJSON(t *testing.T) {
	expires := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	tests := []struct {
		name       string
		statusCode int
		resp       utils.Response
		want       map[string]interface{}
	}{
		{
			name:       "Message only",
			statusCode: http.StatusOK,
			resp:       utils.Response{Message: "done"},
			want:       map[string]interface{}{"success": true, "message": "done"},
		},
		{
			name:       "Flat data fields",
			statusCode: http.StatusOK,
			resp:       utils.Response{Message: "ok", UserID: 7, Username: "admin", ExpiresAt: &expires},
			want: map[string]interface{}{
				"success":   true,
				"message":   "ok",
				"userId":    float64(7),
				"username":  "admin",
				"expiresAt": "2026-01-02T03:04:05Z",
			},
		},
		{
			name:       "Error status flips success",
			statusCode: http.StatusBadRequest,
			resp:       utils.Response{Success: true, Message: "nope"},
			want:       map[string]interface{}{"success": false, "message": "nope"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			utils.JSON(rr, tt.statusCode, tt.resp)

			if rr.Code != tt.statusCode {
				t.Errorf("status = %d, want %d", rr.Code, tt.statusCode)
			}
			if ct := rr.Header().Get(constants.HeaderContentType); ct != constants.ContentTypeJSON {
				t.Errorf("Content-Type = %s", ct)
			}
			body := decodeBody(t, rr)
			if len(body) != len(tt.want) {
				t.Errorf("body = %v, want %v", body, tt.want)
			}
			for k, v := range tt.want {
				if body[k] != v {
					t.Errorf("body[%s] = %v, want %v", k, body[k], v)
				}
			}
		})
	}
}

func TestErrorFromAppError(t *testing.T) {
	rr := httptest.NewRecorder()
	utils.ErrorFromAppError(rr, utils.NewPasswordMismatchError())

	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rr.Code)
	}
	body := decodeBody(t, rr)
	if body["success"] != false {
		t.Errorf("success = %v", body["success"])
	}
	if body["code"] != constants.CodePasswordMismatch {
		t.Errorf("code = %v", body["code"])
	}
	if body["message"] != constants.MsgPasswordsDoNotMatch {
		t.Errorf("message = %v", body["message"])
	}
	details, ok := body["details"].(map[string]interface{})
	if !ok || details["confirmPassword"] == nil {
		t.Errorf("details = %v, want confirmPassword entry", body["details"])
	}
}

func TestHandleErrorHidesInternalDetail(t *testing.T) {
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/forgot-password", nil)

	utils.HandleError(rr, req, errors.New("dial tcp 10.0.0.5:3306: connection refused"))

	if rr.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rr.Code)
	}
	body := decodeBody(t, rr)
	if body["message"] != constants.MsgInternalServerError {
		t.Errorf("message = %v, want generic message", body["message"])
	}
	if body["code"] != constants.CodeInternalError {
		t.Errorf("code = %v", body["code"])
	}
}

func TestConvenienceResponses(t *testing.T) {
	tests := []struct {
		name       string
		write      func(w http.ResponseWriter)
		wantStatus int
		wantCode   string
	}{
		{"unauthorized", func(w http.ResponseWriter) { utils.Unauthorized(w, "") }, http.StatusUnauthorized, constants.CodeUnauthorized},
		{"not found", func(w http.ResponseWriter) { utils.NotFound(w, "") }, http.StatusNotFound, constants.CodeNotFound},
		{"method not allowed", utils.MethodNotAllowed, http.StatusMethodNotAllowed, constants.CodeMethodNotAllowed},
		{"bad request", func(w http.ResponseWriter) { utils.BadRequest(w, "bad", nil) }, http.StatusBadRequest, constants.CodeValidationError},
		{"internal", func(w http.ResponseWriter) { utils.InternalServerError(w, errors.New("x")) }, http.StatusInternalServerError, constants.CodeInternalError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			tt.write(rr)
			if rr.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rr.Code, tt.wantStatus)
			}
			if body := decodeBody(t, rr); body["code"] != tt.wantCode {
				t.Errorf("code = %v, want %s", body["code"], tt.wantCode)
			}
		})
	}
}

func TestSendJSONMarshalFailure(t *testing.T) {
	rr := httptest.NewRecorder()
	utils.SendJSON(rr, http.StatusOK, map[string]interface{}{"bad": make(chan int)})

	if rr.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rr.Code)
	}
}
