package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/manacity/address-service/internal/domain"
	"github.com/manacity/address-service/internal/service"
	"github.com/manacity/address-service/pkg/httputil"
	"github.com/manacity/address-service/pkg/middleware"
	"github.com/manacity/address-service/pkg/validator"
)

// AddressHandler handles HTTP requests for address book endpoints.
type AddressHandler struct {
	service *service.AddressService
	logger  *slog.Logger
}

// NewAddressHandler creates a new address HTTP handler.
func NewAddressHandler(svc *service.AddressService, logger *slog.Logger) *AddressHandler {
	return &AddressHandler{service: svc, logger: logger}
}

// --- Request DTOs ---

// LooseNumber decodes a JSON value that should be a finite number. Anything
// else (string, null, non-finite) decodes to nil rather than failing the
// request; coordinates are best-effort data.
type LooseNumber struct {
	Value *float64
}

// UnmarshalJSON implements json.Unmarshaler.
func (n *LooseNumber) UnmarshalJSON(data []byte) error {
	n.Value = nil
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil
	}
	switch v := raw.(type) {
	case float64:
		n.Value = &v
	case string:
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			n.Value = &f
		}
	}
	return nil
}

// CoordsRequest is the optional coordinates pair on address payloads.
type CoordsRequest struct {
	Lat LooseNumber `json:"lat"`
	Lng LooseNumber `json:"lng"`
}

// CreateAddressRequest is the JSON request body for saving an address.
type CreateAddressRequest struct {
	Label     string         `json:"label" validate:"required,min=2,max=120"`
	Line1     string         `json:"line1" validate:"required,min=3,max=200"`
	Line2     string         `json:"line2" validate:"omitempty,max=200"`
	City      string         `json:"city" validate:"required,min=2,max=120"`
	State     string         `json:"state" validate:"required,min=2,max=120"`
	Pincode   string         `json:"pincode" validate:"required,min=3,max=20"`
	Coords    *CoordsRequest `json:"coords"`
	IsDefault bool           `json:"is_default"`
}

// CaptureAddressRequest is the JSON request body for capturing an address
// from checkout shipping details. Nothing is required: sparse payloads are
// tolerated and simply skip the capture.
type CaptureAddressRequest struct {
	ReferenceID string         `json:"reference_id"`
	Label       string         `json:"label" validate:"omitempty,max=120"`
	Name        string         `json:"name" validate:"omitempty,max=120"`
	Line1       string         `json:"line1" validate:"omitempty,max=200"`
	Line2       string         `json:"line2" validate:"omitempty,max=200"`
	City        string         `json:"city" validate:"omitempty,max=120"`
	State       string         `json:"state" validate:"omitempty,max=120"`
	Pincode     string         `json:"pincode" validate:"omitempty,max=20"`
	Coords      *CoordsRequest `json:"coords"`
}

// --- Response envelopes ---

type listResponse struct {
	Items []domain.AddressResponse `json:"items"`
}

type addressResponse struct {
	Address domain.AddressResponse `json:"address"`
}

// --- Handlers ---

// List handles GET /api/v1/addresses
func (h *AddressHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromContext(r.Context())
	if userID == "" {
		writeUnauthorized(w)
		return
	}

	items, err := h.service.List(r.Context(), userID)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, listResponse{Items: items})
}

// Create handles POST /api/v1/addresses
func (h *AddressHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromContext(r.Context())
	if userID == "" {
		writeUnauthorized(w)
		return
	}

	var req CreateAddressRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	address, err := h.service.CreateOrUpdate(r.Context(), userID, toCreateInput(req))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, addressResponse{Address: address.Response()})
}

// SetDefault handles PATCH /api/v1/addresses/{id}/default
func (h *AddressHandler) SetDefault(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromContext(r.Context())
	if userID == "" {
		writeUnauthorized(w)
		return
	}

	addressID := chi.URLParam(r, "id")

	address, err := h.service.SetDefault(r.Context(), userID, addressID)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, addressResponse{Address: address.Response()})
}

// Capture handles POST /api/v1/addresses/capture
func (h *AddressHandler) Capture(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromContext(r.Context())
	if userID == "" {
		writeUnauthorized(w)
		return
	}

	var req CaptureAddressRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	input := service.ShippingInput{
		ReferenceID: req.ReferenceID,
		Label:       req.Label,
		Name:        req.Name,
		Line1:       req.Line1,
		Line2:       req.Line2,
		City:        req.City,
		State:       req.State,
		Pincode:     req.Pincode,
	}
	if req.Coords != nil {
		input.Lat = req.Coords.Lat.Value
		input.Lng = req.Coords.Lng.Value
	}

	address, err := h.service.CaptureFromShipping(r.Context(), userID, input)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	// Nothing captured: the shipping details were too sparse to save.
	if address == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, addressResponse{Address: address.Response()})
}

// --- Helpers ---

func toCreateInput(req CreateAddressRequest) service.CreateAddressInput {
	input := service.CreateAddressInput{
		Label:     req.Label,
		Line1:     req.Line1,
		Line2:     req.Line2,
		City:      req.City,
		State:     req.State,
		Pincode:   req.Pincode,
		IsDefault: req.IsDefault,
	}
	if req.Coords != nil {
		input.Lat = req.Coords.Lat.Value
		input.Lng = req.Coords.Lng.Value
	}
	return input
}

func writeUnauthorized(w http.ResponseWriter) {
	httputil.WriteJSON(w, http.StatusUnauthorized, httputil.Response{
		Error: &httputil.ErrorResponse{Code: "UNAUTHORIZED", Message: "user not authenticated"},
	})
}
