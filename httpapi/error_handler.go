package httpapi

import (
	"errors"
	"net/http"
)

//ErrorResponse represents an HTTP error. Error is a message the chat client shows to the user.
type ErrorResponse struct {
	Code  int    `json:"code"`
	Error string `json:"error"`
}

//handleError returns a handlerResponse response for the given code
func handleError(code int, err error) *handlerResponse {
	return &handlerResponse{Code: code, Body: &ErrorResponse{Code: code, Error: http.StatusText(code)}, Err: err}
}

//handleErrorMessage returns a handlerResponse with a custom user-facing message
func handleErrorMessage(code int, msg string, err error) *handlerResponse {
	return &handlerResponse{Code: code, Body: &ErrorResponse{Code: code, Error: msg}, Err: err}
}

//notFoundHandler returns a 404 handlerResponse
func notFoundHandler(w http.ResponseWriter, r *http.Request) *handlerResponse {
	return handleError(http.StatusNotFound, errors.New("Could not find handler"))
}
