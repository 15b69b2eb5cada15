package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"cycle-rental-payments/internal/domain"
	"cycle-rental-payments/internal/domain/model"
	"cycle-rental-payments/internal/domain/ports/adapter"
	"cycle-rental-payments/internal/infra/logging"
	"cycle-rental-payments/internal/usecase"
)

// ----- webhooks -----

func (s *Server) stripeWebhook(w http.ResponseWriter, r *http.Request) {
	s.webhook(w, r, model.MethodStripe)
}

func (s *Server) paypalWebhook(w http.ResponseWriter, r *http.Request) {
	s.webhook(w, r, model.MethodPayPal)
}

// webhook answers providers with 200 or 400 only. The body is read raw since the
// Stripe signature covers the exact bytes.
func (s *Server) webhook(w http.ResponseWriter, r *http.Request, provider model.Provider) {
	ctx := logging.WithProvider(r.Context(), string(provider))
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		webhookError(w, fmt.Errorf("%w: read body: %v", domain.ErrMalformedPayload, err))
		return
	}

	out, err := s.webhookUC.Handle(ctx, provider, adapter.WebhookRequest{Body: body, Header: r.Header})
	if err != nil {
		webhookError(w, err)
		return
	}
	if out.Ignored {
		l := logging.With(ctx, s.log)
		l.Debug().Msg("webhook event ignored")
	}
	writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}

func webhookError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusBadRequest)
	_, _ = io.WriteString(w, "Webhook Error: "+err.Error())
}

// ----- payments -----

type paymentCreateRequest struct {
	Method   model.Method       `json:"paymentMethod"`
	Amount   decimal.Decimal    `json:"amount"`
	Type     model.BusinessType `json:"type"`
	RentalID string             `json:"rentalId,omitempty"`
}

type paymentCreateResponse struct {
	Payment      paymentView `json:"payment"`
	ClientSecret string      `json:"clientSecret,omitempty"`
	ApprovalURL  string      `json:"approvalUrl,omitempty"`
}

type paymentView struct {
	ID          string              `json:"id"`
	UserID      string              `json:"userId"`
	Method      model.Method        `json:"paymentMethod"`
	Amount      string              `json:"amount"`
	Currency    string              `json:"currency"`
	Type        model.BusinessType  `json:"type"`
	ReferenceID string              `json:"referenceId"`
	CaptureID   *string             `json:"captureId,omitempty"`
	Status      model.PaymentStatus `json:"status"`
	State       model.PaymentState  `json:"state,omitempty"`
	RentalID    *string             `json:"rentalId,omitempty"`
	CreatedAt   time.Time           `json:"createdAt"`
	UpdatedAt   time.Time           `json:"updatedAt"`
}

func viewPayment(p *model.Payment, state model.PaymentState) paymentView {
	return paymentView{
		ID:          p.ID,
		UserID:      p.UserID,
		Method:      p.Method,
		Amount:      p.Amount.StringFixed(2),
		Currency:    p.Currency,
		Type:        p.Type,
		ReferenceID: p.ReferenceID,
		CaptureID:   p.CaptureID,
		Status:      p.Status,
		State:       state,
		RentalID:    p.RentalID,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

func (s *Server) createPayment(w http.ResponseWriter, r *http.Request) {
	sess, _ := sessionFrom(r.Context())
	var req paymentCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		s.apiError(w, r, err)
		return
	}

	p, res, err := s.paymentUC.Initiate(r.Context(), usecase.ChargeCommand{
		UserID:      sess.userID,
		Method:      req.Method,
		Amount:      req.Amount,
		Type:        req.Type,
		RentalID:    req.RentalID,
		AuthContext: sess.token,
	})
	if err != nil {
		s.apiError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, paymentCreateResponse{
		Payment:      viewPayment(p, model.StatePending),
		ClientSecret: res.ClientSecret,
		ApprovalURL:  res.ApprovalURL,
	})
}

// capturePayPal is the buyer's return URL; PayPal appends the order id as token.
func (s *Server) capturePayPal(w http.ResponseWriter, r *http.Request) {
	orderID := r.URL.Query().Get("token")
	if orderID == "" {
		writeError(w, http.StatusBadRequest, "missing token", "INVALID_ARGUMENT")
		return
	}
	p, err := s.paymentUC.CapturePayPal(logging.WithReferenceID(r.Context(), orderID), orderID)
	if err != nil {
		s.apiError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewPayment(p, model.StateCaptured))
}

type refundRequest struct {
	ReferenceID string             `json:"referenceId,omitempty"`
	RentalID    string             `json:"rentalId,omitempty"`
	Amount      *decimal.Decimal   `json:"amount,omitempty"`
	Type        model.BusinessType `json:"type,omitempty"`
}

type refundView struct {
	ID          string             `json:"id"`
	PaymentID   string             `json:"paymentId"`
	Amount      string             `json:"amount"`
	Status      model.RefundStatus `json:"status"`
	ReferenceID string             `json:"referenceId"`
	ProviderID  *string            `json:"providerId,omitempty"`
	RentalID    *string            `json:"rentalId,omitempty"`
}

func viewRefund(rf *model.Refund) *refundView {
	if rf == nil {
		return nil
	}
	return &refundView{
		ID:          rf.ID,
		PaymentID:   rf.PaymentID,
		Amount:      rf.Amount.StringFixed(2),
		Status:      rf.Status,
		ReferenceID: rf.ReferenceID,
		ProviderID:  rf.ProviderID,
		RentalID:    rf.RentalID,
	}
}

func (s *Server) refundPayment(w http.ResponseWriter, r *http.Request) {
	sess, _ := sessionFrom(r.Context())
	var req refundRequest
	if err := decodeJSON(r, &req); err != nil {
		s.apiError(w, r, err)
		return
	}
	if req.ReferenceID == "" && req.RentalID == "" {
		writeError(w, http.StatusBadRequest, "referenceId or rentalId is required", "INVALID_ARGUMENT")
		return
	}

	rf, err := s.paymentUC.Refund(r.Context(), usecase.RefundCommand{
		ReferenceID: req.ReferenceID,
		RentalID:    req.RentalID,
		Amount:      req.Amount,
		UserID:      sess.userID,
		Type:        req.Type,
		AuthContext: sess.token,
	})
	if err != nil {
		s.apiError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, viewRefund(rf))
}

func (s *Server) getPayment(w http.ResponseWriter, r *http.Request) {
	sess, _ := sessionFrom(r.Context())
	ref := chi.URLParam(r, "referenceId")
	p, state, err := s.paymentUC.Get(logging.WithReferenceID(r.Context(), ref), ref)
	if errors.Is(err, domain.ErrPaymentNotFound) {
		err = fmt.Errorf("%w: payment %s", domain.ErrNotFound, ref)
	}
	if err != nil {
		s.apiError(w, r, err)
		return
	}
	if p.UserID != sess.userID {
		// Do not reveal other users' payments.
		s.apiError(w, r, domain.ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, viewPayment(p, state))
}

// ----- rentals -----

type returnResponse struct {
	RentalID             string      `json:"rentalId"`
	ActualReturnTime     time.Time   `json:"actualReturnTime"`
	ExtraHours           string      `json:"extraHours"`
	LateFees             string      `json:"lateFees"`
	RefundableDeposit    string      `json:"refundableDeposit"`
	AdditionalPaymentDue string      `json:"additionalPaymentDue"`
	TotalFare            string      `json:"totalFare"`
	PaymentStatus        string      `json:"paymentStatus"`
	DamageStatus         string      `json:"damageStatus"`
	CycleStatus          string      `json:"cycleStatus"`
	Message              string      `json:"message"`
	Refund               *refundView `json:"refund,omitempty"`
	RefundError          string      `json:"refundError,omitempty"`
}

func (s *Server) returnRental(w http.ResponseWriter, r *http.Request) {
	sess, _ := sessionFrom(r.Context())
	res, err := s.returnUC.Return(r.Context(), usecase.ReturnCommand{
		RentalID:    chi.URLParam(r, "rentalId"),
		UserID:      sess.userID,
		AuthContext: sess.token,
	})
	if err != nil {
		s.apiError(w, r, err)
		return
	}

	st := res.Settlement
	out := returnResponse{
		RentalID:             res.Rental.ID,
		ExtraHours:           st.ExtraHours.StringFixed(2),
		LateFees:             st.LateFees.StringFixed(2),
		RefundableDeposit:    st.RefundableDeposit.StringFixed(2),
		AdditionalPaymentDue: st.AdditionalPaymentDue.StringFixed(2),
		TotalFare:            st.TotalFare.StringFixed(2),
		PaymentStatus:        string(res.Rental.PaymentStatus),
		DamageStatus:         string(st.DamageStatus),
		CycleStatus:          string(st.CycleStatus),
		Message:              st.Message,
		Refund:               viewRefund(res.Refund),
	}
	if res.Rental.ActualReturnTime != nil {
		out.ActualReturnTime = *res.Rental.ActualReturnTime
	}
	if res.RefundError != nil {
		out.RefundError = "deposit refund could not be issued; support has been notified"
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// ----- helpers -----

type errorEnvelope struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg, code string) {
	writeJSON(w, status, errorEnvelope{Status: "error", Message: msg, Code: code})
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: invalid request body", domain.ErrInvalidArgument)
	}
	return nil
}

// statusFor maps domain errors onto the internal API's status codes.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrSignatureInvalid):
		return http.StatusBadRequest, "SIGNATURE_INVALID"
	case errors.Is(err, domain.ErrMalformedPayload):
		return http.StatusBadRequest, "MALFORMED_PAYLOAD"
	case errors.Is(err, domain.ErrPaymentNotFound):
		return http.StatusBadRequest, "PAYMENT_NOT_FOUND"
	case errors.Is(err, domain.ErrInvalidArgument),
		errors.Is(err, domain.ErrUnsupportedPaymentMethod),
		errors.Is(err, domain.ErrCaptureMissing):
		return http.StatusBadRequest, "INVALID_ARGUMENT"
	case errors.Is(err, domain.ErrInvalidStateTransition):
		return http.StatusConflict, "INVALID_STATE_TRANSITION"
	case errors.Is(err, domain.ErrRentalAlreadyReturned):
		return http.StatusConflict, "ALREADY_RETURNED"
	case errors.Is(err, domain.ErrRentalNotFound),
		errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND"
	default:
		return http.StatusInternalServerError, "INTERNAL"
	}
}

func (s *Server) apiError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	msg := err.Error()
	l := logging.With(r.Context(), s.log)
	if status >= http.StatusInternalServerError {
		l.Error().Err(err).Msg("request failed")
		msg = "internal error"
	} else {
		l.Warn().Err(err).Str("code", code).Msg("request rejected")
	}
	writeError(w, status, msg, code)
}
