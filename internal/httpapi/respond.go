package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"salesdesk/internal/domain"
)

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return err
	}
	return nil
}

// decodeValid decodes the body and applies the struct's validate tags.
func (a *API) decodeValid(r *http.Request, dest any) error {
	if err := decodeJSON(r, dest); err != nil {
		return err
	}
	if err := a.validate.Struct(dest); err != nil {
		var fields validator.ValidationErrors
		if errors.As(err, &fields) && len(fields) > 0 {
			first := fields[0]
			return fmt.Errorf("%s failed %s validation", strings.ToLower(first.Field()), first.Tag())
		}
		return err
	}
	return nil
}

func parsePositiveLimit(raw string, fallback int, max int) int {
	limit := fallback
	trimmed := strings.TrimSpace(raw)
	if trimmed != "" {
		if parsed, err := strconv.Atoi(trimmed); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if max > 0 && limit > max {
		return max
	}
	return limit
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.Trim(strings.TrimSpace(raw), "/"), 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("invalid id")
	}
	return id, nil
}

func writeMethodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
}

// writeFailure maps errors from the service onto HTTP. Local validation is
// 422 with the offending field. Backend refusals keep their 4xx status and
// carry the backend's message; anything else from the backend is a 502.
func (a *API) writeFailure(w http.ResponseWriter, err error) {
	var ve *domain.ValidationError
	if errors.As(err, &ve) {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error": domain.UserMessage(err),
			"field": ve.Field,
		})
		return
	}

	var remote *domain.RemoteError
	if errors.As(err, &remote) {
		status := http.StatusBadGateway
		if remote.Status >= 400 && remote.Status < 500 {
			status = remote.Status
		}
		a.logger.Warn("backend error", zap.String("op", remote.Op), zap.Int("backend_status", remote.Status), zap.Error(err))
		writeJSON(w, status, map[string]any{"error": remote.Message()})
		return
	}

	var reply *domain.ResponseError
	if errors.As(err, &reply) {
		a.logger.Warn("backend reply unreadable", zap.String("op", reply.Op), zap.Int("backend_status", reply.Status), zap.Error(err))
		writeJSON(w, http.StatusBadGateway, map[string]any{"error": domain.UnreadableResponseMessage})
		return
	}

	switch {
	case errors.Is(err, domain.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, err)
	case errors.Is(err, domain.ErrForbidden):
		writeError(w, http.StatusForbidden, err)
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	// 5xx details stay in the log; 4xx messages are meant for the user.
	msg := err.Error()
	if status >= 500 {
		zap.L().Error("internal error", zap.Int("status", status), zap.Error(err))
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
