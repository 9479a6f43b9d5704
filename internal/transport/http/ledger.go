package httptransport

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"consentis/internal/ledger"
	"consentis/internal/platform/middleware"
	dErrors "consentis/pkg/domain-errors"
	"consentis/pkg/platform/httputil"
	"consentis/pkg/validation"
)

// LedgerCallRequest is the body of a raw transaction call.
type LedgerCallRequest struct {
	Args []string `json:"args"`
}

func (r *LedgerCallRequest) Validate() error {
	return validation.CheckSliceCount("args", len(r.Args), validation.MaxLedgerArgs)
}

// LedgerCallResponse echoes the transaction with its payload. Result is the
// payload itself when it is JSON and a JSON string otherwise.
type LedgerCallResponse struct {
	Transaction string          `json:"transaction"`
	Caller      string          `json:"caller"`
	Result      json.RawMessage `json:"result"`
}

// LedgerHandler exposes any contract transaction by name, for tooling that
// speaks the contract's argument conventions directly.
type LedgerHandler struct {
	ledger ledger.Client
	logger *slog.Logger
}

func NewLedgerHandler(l ledger.Client, logger *slog.Logger) *LedgerHandler {
	return &LedgerHandler{ledger: l, logger: logger}
}

func (h *LedgerHandler) Register(r chi.Router) {
	r.Post("/v1/ledger/{mode}/{transaction}", h.HandleCall)
}

// HandleCall serves POST /v1/ledger/{submit|evaluate}/{transaction}.
func (h *LedgerHandler) HandleCall(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)
	caller := middleware.GetCaller(ctx)
	name := chi.URLParam(r, "transaction")

	var call func(context.Context, string, string, ...string) ([]byte, error)
	switch chi.URLParam(r, "mode") {
	case "submit":
		call = h.ledger.Submit
	case "evaluate":
		call = h.ledger.Evaluate
	default:
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "mode must be submit or evaluate"))
		return
	}

	req := &LedgerCallRequest{}
	if r.ContentLength != 0 {
		var ok bool
		req, ok = httputil.DecodeAndPrepare[LedgerCallRequest](w, r, h.logger, ctx, requestID)
		if !ok {
			return
		}
	}

	out, err := call(ctx, caller, name, req.Args...)
	if err != nil {
		h.logger.WarnContext(ctx, "ledger call failed",
			"transaction", name,
			"caller", caller,
			"error", err,
			"request_id", requestID,
		)
		if !isDomain(err) {
			err = dErrors.Wrap(err, dErrors.CodeInternal, name+" failed")
		}
		httputil.WriteError(w, err)
		return
	}

	result := json.RawMessage(out)
	if len(out) == 0 || !json.Valid(out) {
		result, _ = json.Marshal(string(out))
	}
	httputil.WriteJSON(w, http.StatusOK, LedgerCallResponse{
		Transaction: name,
		Caller:      caller,
		Result:      result,
	})
}

func isDomain(err error) bool {
	var de *dErrors.Error
	return errors.As(err, &de)
}
