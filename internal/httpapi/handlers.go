package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"paygate/internal/payments"
)

type createPaymentRequest struct {
	Reference string          `json:"reference"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
}

type paymentResponse struct {
	PaymentID string          `json:"payment_id"`
	Reference string          `json:"reference"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
	Status    payments.Status `json:"status"`
	Retries   int             `json:"retries"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func toPaymentResponse(p *payments.Payment) paymentResponse {
	return paymentResponse{
		PaymentID: p.ID,
		Reference: p.Reference,
		Amount:    p.Amount,
		Currency:  p.Currency,
		Status:    p.Status,
		Retries:   p.Retries,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}

type listPaymentsResponse struct {
	Payments []paymentResponse `json:"payments"`
	Total    int               `json:"total"`
	Limit    int               `json:"limit"`
	Offset   int               `json:"offset"`
}

type errorBody struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

type errorResponse struct {
	Success bool      `json:"success"`
	Error   errorBody `json:"error"`
}

func (s *server) createPayment(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if key == "" {
		s.writeError(w, r, payments.NewValidationError("Idempotency-Key header is required", "Idempotency-Key"))
		return
	}

	var req createPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, payments.NewValidationError("Invalid request body", ""))
		return
	}

	// The creation flow must not be abandoned mid-write when the client
	// disconnects, or a PENDING payment would be stranded.
	ctx := context.WithoutCancel(r.Context())
	payment, created, err := s.service.CreatePayment(ctx, payments.CreateParams{
		Reference:      req.Reference,
		Amount:         req.Amount,
		Currency:       req.Currency,
		IdempotencyKey: key,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, toPaymentResponse(payment))
}

func (s *server) getPayment(w http.ResponseWriter, r *http.Request) {
	payment, err := s.service.GetPayment(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPaymentResponse(payment))
}

func (s *server) retryPayment(w http.ResponseWriter, r *http.Request) {
	ctx := context.WithoutCancel(r.Context())
	payment, err := s.service.RetryPayment(ctx, r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPaymentResponse(payment))
}

func (s *server) listPayments(w http.ResponseWriter, r *http.Request) {
	params, err := parseListParams(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	page, total, err := s.service.ListPayments(r.Context(), params)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	resp := listPaymentsResponse{
		Payments: make([]paymentResponse, 0, len(page)),
		Total:    total,
		Limit:    params.Limit,
		Offset:   params.Offset,
	}
	for _, payment := range page {
		resp.Payments = append(resp.Payments, toPaymentResponse(payment))
	}
	writeJSON(w, http.StatusOK, resp)
}

func parseListParams(r *http.Request) (payments.ListParams, error) {
	q := r.URL.Query()
	params := payments.ListParams{Limit: payments.DefaultListLimit}

	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 1000 {
			return params, payments.NewValidationError("Limit must be an integer between 1 and 1000", "limit")
		}
		params.Limit = n
	}
	if raw := q.Get("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return params, payments.NewValidationError("Offset must be an integer greater than or equal to 0", "offset")
		}
		params.Offset = n
	}
	params.Status = q.Get("status")
	return params, nil
}

type serviceHealth struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type healthResponse struct {
	Status    string                   `json:"status"`
	Timestamp time.Time                `json:"timestamp"`
	Services  map[string]serviceHealth `json:"services"`
}

func (s *server) healthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	resp := healthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Services:  make(map[string]serviceHealth),
	}
	for name, check := range s.health {
		if err := check(ctx); err != nil {
			resp.Status = "unhealthy"
			resp.Services[name] = serviceHealth{Status: "unhealthy", Error: err.Error()}
			continue
		}
		resp.Services[name] = serviceHealth{Status: "healthy"}
	}

	status := http.StatusOK
	if resp.Status != "healthy" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

func (s *server) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("websocket upgrade")
		return
	}
	s.hub.Register <- conn

	// Drain client frames so closes are noticed and the connection is
	// unregistered.
	go func() {
		defer func() { s.hub.Unregister <- conn }()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (s *server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	domainErr, ok := payments.AsError(err)
	if !ok {
		s.logger.Error().Err(err).Str("path", r.URL.Path).Msg("unhandled error")
		writeInternalError(w)
		return
	}

	status := statusForCode(domainErr.Code)
	if status == http.StatusInternalServerError {
		s.logger.Error().Err(err).Str("path", r.URL.Path).Msg("internal error")
		writeInternalError(w)
		return
	}
	writeJSON(w, status, errorResponse{Error: errorBody{
		Code:    domainErr.Code,
		Message: domainErr.Message,
		Details: domainErr.Details,
	}})
}

func statusForCode(code string) int {
	switch code {
	case payments.CodeValidation:
		return http.StatusBadRequest
	case payments.CodeNotFound:
		return http.StatusNotFound
	case payments.CodeCannotRetry, payments.CodeMaxRetries:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeInternalError hides internal failure detail from clients.
func writeInternalError(w http.ResponseWriter) {
	writeJSON(w, http.StatusInternalServerError, errorResponse{Error: errorBody{
		Code:    "INTERNAL_ERROR",
		Message: "An unexpected error occurred",
	}})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
