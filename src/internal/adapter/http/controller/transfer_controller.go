package controller

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/api-sage/ledger-transfer-engine/src/internal/adapter/http/models"
	"github.com/api-sage/ledger-transfer-engine/src/internal/commons"
	"github.com/api-sage/ledger-transfer-engine/src/internal/domain"
	"github.com/api-sage/ledger-transfer-engine/src/internal/logger"
	"github.com/api-sage/ledger-transfer-engine/src/internal/usecase/service_interfaces"
)

type TransferController struct {
	service service_interfaces.TransferService
}

func NewTransferController(service service_interfaces.TransferService) *TransferController {
	return &TransferController{service: service}
}

func (c *TransferController) RegisterRoutes(mux *http.ServeMux, authMiddleware func(http.Handler) http.Handler) {
	transfer := http.Handler(http.HandlerFunc(c.transfer))
	status := http.Handler(http.HandlerFunc(c.status))
	if authMiddleware != nil {
		transfer = authMiddleware(transfer)
		status = authMiddleware(status)
	}

	mux.Handle("/transfers", transfer)
	mux.Handle("/transfers/status", status)
}

func (c *TransferController) transfer(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	if r.Method != http.MethodPost {
		response := commons.ErrorResponse[models.TransferResponse]("method not allowed")
		writeJSON(w, http.StatusMethodNotAllowed, response)
		logResponse(r, http.StatusMethodNotAllowed, response, start)
		return
	}

	var req models.TransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logError(r, err, nil)
		response := commons.ErrorResponse[models.TransferResponse]("invalid request body", err.Error())
		writeJSON(w, http.StatusBadRequest, response)
		logResponse(r, http.StatusBadRequest, response, start)
		return
	}
	logRequest(r, req)

	response, err := c.service.Transfer(r.Context(), req)
	status := transferStatusCode(response.Message, err)
	if err != nil {
		logError(r, err, logger.Fields{"message": response.Message})
	}
	writeJSON(w, status, response)
	logResponse(r, status, response, start)
}

func (c *TransferController) status(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	logRequest(r, nil)

	if r.Method != http.MethodGet {
		response := commons.ErrorResponse[models.TransferStatusResponse]("method not allowed")
		writeJSON(w, http.StatusMethodNotAllowed, response)
		logResponse(r, http.StatusMethodNotAllowed, response, start)
		return
	}

	idempotencyKey := r.URL.Query().Get("idempotencyKey")
	sourceAccountID := r.URL.Query().Get("sourceAccountId")

	transferStatus, err := c.service.GetStatus(r.Context(), sourceAccountID, idempotencyKey)
	if err != nil {
		logError(r, err, nil)
		status := http.StatusInternalServerError
		if errors.Is(err, domain.ErrMissingIdempotencyKey) {
			status = http.StatusBadRequest
		}
		response := commons.ErrorResponse[models.TransferStatusResponse]("failed to query transfer status", err.Error())
		writeJSON(w, status, response)
		logResponse(r, status, response, start)
		return
	}

	response := commons.SuccessResponse("Transfer status", models.TransferStatusResponse{
		IdempotencyKey:  idempotencyKey,
		SourceAccountID: sourceAccountID,
		Status:          string(transferStatus),
	})
	writeJSON(w, http.StatusOK, response)
	logResponse(r, http.StatusOK, response, start)
}

func transferStatusCode(message string, err error) int {
	if err == nil {
		return http.StatusOK
	}
	switch message {
	case "validation failed":
		return http.StatusBadRequest
	case "duplicate request", "transfer in progress", "idempotency key conflict":
		return http.StatusConflict
	case "account not found":
		return http.StatusNotFound
	case "Insufficient balance":
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error("http write response failed", err, nil)
	}
}
