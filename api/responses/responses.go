package responses

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	pkgerrors "github.com/angelmondragon/walletcore-backend/pkg/errors"
	"github.com/angelmondragon/walletcore-backend/pkg/logger"
)

type SuccessEnvelope struct {
	Data any `json:"data"`
}

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

// Codes whose own message is safe to show instead of the generic one.
var specificMessages = map[pkgerrors.Code]bool{
	pkgerrors.CodeValidation:    true,
	pkgerrors.CodeNotFound:      true,
	pkgerrors.CodeStateConflict: true,
	pkgerrors.CodeLimitExceeded: true,
}

// Keys that survive for codes which otherwise hide their details. A held
// transaction still tells the caller which reference to follow up on, never
// which rule fired.
var partialDetails = map[pkgerrors.Code][]string{
	pkgerrors.CodeTransactionBlocked: {"reference", "status"},
}

func WriteSuccess(w http.ResponseWriter, data any) {
	WriteSuccessStatus(w, http.StatusOK, data)
}

func WriteSuccessStatus(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, SuccessEnvelope{Data: data})
}

// WriteError renders err as an ErrorEnvelope and logs it: server-side
// failures at error level, rejections at warn.
func WriteError(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, err error) {
	if err == nil {
		err = errors.New("unknown error")
	}
	status, body := Render(err)

	if logg != nil {
		ctx = logg.WithFields(ctx, pkgerrors.LogFields(err))
		if status >= http.StatusInternalServerError {
			logg.Error(ctx, "request.error", err)
		} else {
			logg.Warn(ctx, "request.rejected")
		}
	}
	writeJSON(w, status, body)
}

// Render maps err onto its HTTP status and public envelope. Untyped errors
// become CodeInternal.
func Render(err error) (int, ErrorEnvelope) {
	typed := pkgerrors.As(err)
	if typed == nil {
		typed = pkgerrors.Wrap(pkgerrors.CodeInternal, err, "unexpected error")
	}
	code := typed.Code()
	meta := pkgerrors.MetadataFor(code)

	out := APIError{Code: string(code), Message: meta.PublicMessage}
	if specificMessages[code] && typed.Message() != "" {
		out.Message = typed.Message()
	}
	switch {
	case meta.DetailsAllowed:
		out.Details = typed.Details()
	case len(partialDetails[code]) > 0:
		out.Details = pick(typed.Details(), partialDetails[code])
	}
	return meta.HTTPStatus, ErrorEnvelope{Error: out}
}

func pick(details any, keys []string) any {
	m, ok := details.(map[string]any)
	if !ok {
		return nil
	}
	kept := make(map[string]any, len(keys))
	for _, k := range keys {
		if v, ok := m[k]; ok {
			kept[k] = v
		}
	}
	if len(kept) == 0 {
		return nil
	}
	return kept
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
