package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"

	"github.com/realar/estate/internal/account"
	"github.com/realar/estate/internal/chat"
	"github.com/realar/estate/internal/listing"
	"github.com/realar/estate/internal/logging"
)

const maxBodyBytes = 1 << 20

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

type messageBody struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		logging.Error().Err(err).Msg("api: failed to marshal response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		logging.Debug().Err(err).Msg("api: failed to write response")
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Message: message, Code: code})
}

func codeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthenticated"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusTooManyRequests:
		return "rate_limited"
	default:
		return "internal"
	}
}

// writeServiceError maps service sentinel errors to HTTP responses.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var status int
	var message string
	switch {
	case errors.Is(err, account.ErrInvalidCredentials):
		status, message = http.StatusUnauthorized, "Invalid Credentials!"
	case errors.Is(err, account.ErrUserExists):
		status, message = http.StatusConflict, "User already exists"
	case errors.Is(err, account.ErrUserNotFound):
		status, message = http.StatusNotFound, "User not found"
	case errors.Is(err, account.ErrPostNotFound), errors.Is(err, listing.ErrPostNotFound):
		status, message = http.StatusNotFound, "Post not found"
	case errors.Is(err, chat.ErrChatNotFound):
		status, message = http.StatusNotFound, "Chat not found"
	case errors.Is(err, chat.ErrRecipientNotFound):
		status, message = http.StatusNotFound, "Receiver not found"
	case errors.Is(err, account.ErrForbidden), errors.Is(err, listing.ErrForbidden):
		status, message = http.StatusForbidden, "Not Authorized!"
	case errors.Is(err, chat.ErrNotParticipant):
		status, message = http.StatusForbidden, "Not a participant of this chat"
	case errors.Is(err, chat.ErrSelfChat), errors.Is(err, chat.ErrInvalidMessage), errors.Is(err, listing.ErrInvalidPost):
		status, message = http.StatusBadRequest, err.Error()
	default:
		logging.Error().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg("api: request failed")
		writeError(w, http.StatusInternalServerError, "internal", "Something went wrong")
		return
	}
	writeError(w, status, codeForStatus(status), message)
}

// decodeJSON reads a JSON body into v and validates it. On failure it has
// already written a 400 response.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		msg := "invalid JSON body"
		if errors.Is(err, io.EOF) {
			msg = "request body is empty"
		}
		writeError(w, http.StatusBadRequest, "invalid_body", msg)
		return false
	}
	if err := validate.Struct(v); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", validationMessage(err))
		return false
	}
	return true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
	}
	return strings.Join(parts, "; ")
}
