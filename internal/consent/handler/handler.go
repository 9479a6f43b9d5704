package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"consentis/contracts/records"
	"consentis/internal/consent/models"
	"consentis/internal/platform/middleware"
	"consentis/internal/policy"
	policystore "consentis/internal/policy/store"
	dErrors "consentis/pkg/domain-errors"
	"consentis/pkg/platform/httputil"
	"consentis/pkg/validation"
)

// Service defines the consent operations exposed over HTTP. caller is the
// MSP id the ledger transactions are submitted as.
type Service interface {
	UpsertPolicy(ctx context.Context, req models.UpsertPolicyRequest) (*models.PolicyResult, error)
	GetPolicy(ctx context.Context, policyHash string) (*policystore.Document, error)
	DeletePolicy(ctx context.Context, policyHash string) error
	GenerateDescriptor(ctx context.Context, req models.DescriptorRequest) (*policy.DescriptorResult, error)

	CreateAnchor(ctx context.Context, caller string, req models.CreateAnchorRequest) (*models.AnchorResult, error)
	ProvisionAnchor(ctx context.Context, caller string, req models.ProvisionAnchorRequest) (*models.AnchorResult, error)
	RevokeAnchor(ctx context.Context, caller string, req models.RevokeAnchorRequest) (string, error)
	ReadAnchor(ctx context.Context, caller, assetID string) (*records.VcAnchor, error)
	ListAnchors(ctx context.Context, caller string) ([]records.VcAnchor, error)
	VerifyAccess(ctx context.Context, caller string, req models.AccessRequest) (*records.AccessDecision, error)
	Precheck(ctx context.Context, caller string, req models.PrecheckRequest) (*models.PrecheckResult, error)

	StoreDID(ctx context.Context, caller string, req models.StoreDIDRequest) (string, error)
	StoreDIDDocument(ctx context.Context, caller string, req models.StoreDIDDocumentRequest) (string, error)
	ReadDID(ctx context.Context, caller, did string) (*records.DID, error)
	RevokeDID(ctx context.Context, caller, did string) (string, error)
	LatestActiveDID(ctx context.Context, caller, creator string) (*records.DID, error)
	ResolveDID(ctx context.Context, caller, did string) (*models.ResolveResult, error)

	DeriveKey(req models.DeriveKeyRequest) (*models.KeyPair, error)
	SignRevocation(req models.SignRevocationRequest) (*models.SignedAction, error)
}

// Handler serves the consent, DID and key routes.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the routes on r. Callers are resolved by the
// middleware.Caller middleware.
func (h *Handler) Register(r chi.Router) {
	r.Post("/v1/policies", h.HandleUpsertPolicy)
	r.Get("/v1/policies/{policyHash}", h.HandleGetPolicy)
	r.Delete("/v1/policies/{policyHash}", h.HandleDeletePolicy)
	r.Post("/v1/descriptors", h.HandleGenerateDescriptor)

	r.Post("/v1/anchors", h.HandleCreateAnchor)
	r.Post("/v1/anchors/provision", h.HandleProvisionAnchor)
	r.Post("/v1/anchors/revoke", h.HandleRevokeAnchor)
	r.Get("/v1/anchors", h.HandleListAnchors)
	r.Get("/v1/anchors/{assetId}", h.HandleReadAnchor)
	r.Post("/v1/access/verify", h.HandleVerifyAccess)
	r.Post("/v1/access/precheck", h.HandlePrecheck)

	r.Post("/v1/dids", h.HandleStoreDID)
	r.Post("/v1/dids/document", h.HandleStoreDIDDocument)
	r.Get("/v1/dids/latest/{creator}", h.HandleLatestActiveDID)
	r.Get("/v1/dids/{did}", h.HandleReadDID)
	r.Post("/v1/dids/{did}/revoke", h.HandleRevokeDID)
	r.Get("/v1/resolve/{did}", h.HandleResolveDID)

	r.Post("/v1/keys/derive", h.HandleDeriveKey)
	r.Post("/v1/keys/sign-revocation", h.HandleSignRevocation)
}

// MessageResponse carries the contract's confirmation text.
type MessageResponse struct {
	Message string `json:"message"`
}

// AnchorListResponse wraps GetAllVcAnchors.
type AnchorListResponse struct {
	Anchors []records.VcAnchor `json:"anchors"`
}

func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, op, requestID string, err error) {
	level := slog.LevelWarn
	if dErrors.HasCode(err, dErrors.CodeInternal) || dErrors.HasCode(err, dErrors.CodeTimeout) {
		level = slog.LevelError
	}
	h.logger.Log(ctx, level, op+" failed", "error", err, "request_id", requestID)
	httputil.WriteError(w, err)
}

// pathParam reads a non-blank path parameter of at most limit bytes.
func pathParam(r *http.Request, name string, limit int) (string, error) {
	v := strings.TrimSpace(chi.URLParam(r, name))
	if v == "" {
		return "", dErrors.New(dErrors.CodeBadRequest, name+" is required")
	}
	if err := validation.CheckStringLength(name, v, limit); err != nil {
		return "", err
	}
	return v, nil
}

// HandleUpsertPolicy canonicalizes and stores a policy. 201 when new, 200
// when the hash already existed.
func (h *Handler) HandleUpsertPolicy(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[models.UpsertPolicyRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	res, err := h.service.UpsertPolicy(ctx, *req)
	if err != nil {
		h.fail(ctx, w, "upsert policy", requestID, err)
		return
	}
	status := http.StatusCreated
	if res.Existed {
		status = http.StatusOK
	}
	httputil.WriteJSON(w, status, res)
}

func (h *Handler) HandleGetPolicy(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)
	hash, err := pathParam(r, "policyHash", 64)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	doc, err := h.service.GetPolicy(ctx, strings.ToLower(hash))
	if err != nil {
		h.fail(ctx, w, "get policy", requestID, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, doc)
}

func (h *Handler) HandleDeletePolicy(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)
	hash, err := pathParam(r, "policyHash", 64)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	if err := h.service.DeletePolicy(ctx, strings.ToLower(hash)); err != nil {
		h.fail(ctx, w, "delete policy", requestID, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandleGenerateDescriptor(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[models.DescriptorRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	res, err := h.service.GenerateDescriptor(ctx, *req)
	if err != nil {
		h.fail(ctx, w, "generate descriptor", requestID, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

// HandleCreateAnchor anchors a stored policy. Only issuers succeed.
func (h *Handler) HandleCreateAnchor(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[models.CreateAnchorRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	res, err := h.service.CreateAnchor(ctx, middleware.GetCaller(ctx), *req)
	if err != nil {
		h.fail(ctx, w, "create anchor", requestID, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, res)
}

func (h *Handler) HandleProvisionAnchor(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[models.ProvisionAnchorRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	res, err := h.service.ProvisionAnchor(ctx, middleware.GetCaller(ctx), *req)
	if err != nil {
		h.fail(ctx, w, "provision anchor", requestID, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, res)
}

func (h *Handler) HandleRevokeAnchor(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[models.RevokeAnchorRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	msg, err := h.service.RevokeAnchor(ctx, middleware.GetCaller(ctx), *req)
	if err != nil {
		h.fail(ctx, w, "revoke anchor", requestID, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, MessageResponse{Message: msg})
}

func (h *Handler) HandleReadAnchor(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)
	assetID, err := pathParam(r, "assetId", validation.MaxAssetIDLength)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	anchor, err := h.service.ReadAnchor(ctx, middleware.GetCaller(ctx), assetID)
	if err != nil {
		h.fail(ctx, w, "read anchor", requestID, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, anchor)
}

func (h *Handler) HandleListAnchors(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	anchors, err := h.service.ListAnchors(ctx, middleware.GetCaller(ctx))
	if err != nil {
		h.fail(ctx, w, "list anchors", requestID, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, AnchorListResponse{Anchors: anchors})
}

// HandleVerifyAccess runs the on-ledger access check. A denial is a 200
// with result=false.
func (h *Handler) HandleVerifyAccess(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[models.AccessRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	decision, err := h.service.VerifyAccess(ctx, middleware.GetCaller(ctx), *req)
	if err != nil {
		h.fail(ctx, w, "verify access", requestID, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, decision)
}

func (h *Handler) HandlePrecheck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[models.PrecheckRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	res, err := h.service.Precheck(ctx, middleware.GetCaller(ctx), *req)
	if err != nil {
		h.fail(ctx, w, "precheck", requestID, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) HandleStoreDID(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[models.StoreDIDRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	msg, err := h.service.StoreDID(ctx, middleware.GetCaller(ctx), *req)
	if err != nil {
		h.fail(ctx, w, "store did", requestID, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, MessageResponse{Message: msg})
}

func (h *Handler) HandleStoreDIDDocument(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[models.StoreDIDDocumentRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	msg, err := h.service.StoreDIDDocument(ctx, middleware.GetCaller(ctx), *req)
	if err != nil {
		h.fail(ctx, w, "store did document", requestID, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, MessageResponse{Message: msg})
}

func (h *Handler) HandleReadDID(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)
	did, err := pathParam(r, "did", validation.MaxDIDLength)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	record, err := h.service.ReadDID(ctx, middleware.GetCaller(ctx), did)
	if err != nil {
		h.fail(ctx, w, "read did", requestID, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, record)
}

func (h *Handler) HandleRevokeDID(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)
	did, err := pathParam(r, "did", validation.MaxDIDLength)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	msg, err := h.service.RevokeDID(ctx, middleware.GetCaller(ctx), did)
	if err != nil {
		h.fail(ctx, w, "revoke did", requestID, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, MessageResponse{Message: msg})
}

func (h *Handler) HandleLatestActiveDID(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)
	creator, err := pathParam(r, "creator", validation.MaxTermLength)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	record, err := h.service.LatestActiveDID(ctx, middleware.GetCaller(ctx), creator)
	if err != nil {
		h.fail(ctx, w, "latest active did", requestID, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, record)
}

// HandleResolveDID returns the DID document itself as the body.
func (h *Handler) HandleResolveDID(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)
	did, err := pathParam(r, "did", validation.MaxDIDLength)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	res, err := h.service.ResolveDID(ctx, middleware.GetCaller(ctx), did)
	if err != nil {
		h.fail(ctx, w, "resolve did", requestID, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res.DIDDocument)
}

func (h *Handler) HandleDeriveKey(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[models.DeriveKeyRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	keys, err := h.service.DeriveKey(*req)
	if err != nil {
		h.fail(ctx, w, "derive key", requestID, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, keys)
}

func (h *Handler) HandleSignRevocation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[models.SignRevocationRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	signed, err := h.service.SignRevocation(*req)
	if err != nil {
		h.fail(ctx, w, "sign revocation", requestID, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, signed)
}
