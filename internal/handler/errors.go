package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"

	"resellhub/internal/service"
	"resellhub/pkg/apierror"
	"resellhub/pkg/response"
)

const maxBodyBytes = 1 << 20

// writeServiceError maps service errors to API errors. Anything unrecognised
// is logged and reported as a 500.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	response.Error(w, toAPIError(r, err))
}

func toAPIError(r *http.Request, err error) *apierror.Error {
	var apiErr *apierror.Error
	switch {
	case errors.As(err, &apiErr):
		return apiErr
	case errors.Is(err, service.ErrInvalidArgument):
		return apierror.BadRequest(err.Error())
	case errors.Is(err, service.ErrInsufficientStock):
		return apierror.InsufficientStock(err.Error())
	case errors.Is(err, service.ErrInsufficientBalance):
		return apierror.InsufficientBalance(err.Error())
	case errors.Is(err, service.ErrBelowMinimum):
		return apierror.New(http.StatusUnprocessableEntity, "BELOW_MINIMUM", err.Error())
	case errors.Is(err, service.ErrAgentNotFound),
		errors.Is(err, service.ErrEntryNotFound),
		errors.Is(err, service.ErrWithdrawalNotFound):
		return apierror.NotFound(err.Error())
	case errors.Is(err, service.ErrAgentMismatch):
		return apierror.Forbidden(err.Error())
	case errors.Is(err, service.ErrAgentExists),
		errors.Is(err, service.ErrDuplicateSale),
		errors.Is(err, service.ErrAlreadyReverted):
		return apierror.Conflict(err.Error())
	case errors.Is(err, service.ErrNotRevertible):
		return apierror.StaleState(err.Error())
	default:
		log.Printf("[Handler] %s %s: %v", r.Method, r.URL.Path, err)
		return apierror.InternalError("")
	}
}

// decodeJSON reads a JSON request body into v.
func decodeJSON(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return apierror.BadRequest(fmt.Sprintf("invalid request body: %v", err))
	}
	return nil
}
