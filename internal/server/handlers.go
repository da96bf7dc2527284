package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"fisbap/internal/correlate"
	"fisbap/internal/errors"
	"fisbap/internal/metrics"
	"fisbap/internal/orchestrate"
	"fisbap/internal/protocol"
	"fisbap/internal/synth"
)

// sellerRequest is the common correlation key on follow-up triggers
type sellerRequest struct {
	TransactionID string `json:"transaction_id" binding:"required"`
	BppID         string `json:"bpp_id"`
	BppURI        string `json:"bpp_uri"`
}

func (r sellerRequest) key() correlate.SellerKey {
	return correlate.SellerKey{
		TransactionID: r.TransactionID,
		BPPID:         r.BppID,
		BPPURI:        r.BppURI,
	}
}

func (s *Server) dispatchAndRespond(c *gin.Context, env *protocol.Envelope) {
	start := time.Now()
	res, err := s.dispatcher.Dispatch(c.Request.Context(), env)
	if err != nil {
		respondError(c, err)
		return
	}
	metrics.OutboundTotal.WithLabelValues(env.Context.Action).Inc()
	metrics.DispatchDuration.WithLabelValues(env.Context.Action).Observe(time.Since(start).Seconds())
	respondDispatch(c, res)
}

type searchRequest struct {
	TransactionID string `json:"transaction_id"`
}

// handleSearch broadcasts a catalog search. A missing transaction id starts
// a fresh conversation.
func (s *Server) handleSearch(c *gin.Context) {
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		respondError(c, errors.Validation("invalid request body"))
		return
	}
	if req.TransactionID == "" {
		req.TransactionID = uuid.NewString()
	}

	env, err := s.synth.Search(req.TransactionID)
	if err != nil {
		respondError(c, err)
		return
	}
	s.dispatchAndRespond(c, env)
}

type selectRequest struct {
	sellerRequest
	Flow       string `json:"flow" binding:"required"`
	Amount     string `json:"amount"`
	PAN        string `json:"pan"`
	Phone      string `json:"phone"`
	Folio      string `json:"folio"`
	ProviderID string `json:"provider_id"`
	ItemID     string `json:"item_id"`
	Cadence    string `json:"frequency"`
	Repeat     int    `json:"repeat"`
	Day        int    `json:"day"`
}

func (s *Server) handleSelect(c *gin.Context) {
	var req selectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, errors.Validation(err.Error()))
		return
	}
	kind, err := synth.ParseFlowKind(req.Flow)
	if err != nil {
		respondError(c, err)
		return
	}

	onSearch, err := s.correlator.OnSearchFor(c.Request.Context(), req.key())
	if err != nil {
		respondError(c, err)
		return
	}

	env, err := s.synth.Select(onSearch, synth.SelectParams{
		Kind:       kind,
		Amount:     req.Amount,
		PAN:        req.PAN,
		Phone:      req.Phone,
		Folio:      req.Folio,
		ProviderID: req.ProviderID,
		ItemID:     req.ItemID,
		Cadence:    req.Cadence,
		Repeat:     req.Repeat,
		Day:        req.Day,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	s.dispatchAndRespond(c, env)
}

type formSubmissionRequest struct {
	sellerRequest
	SelectMessageID string            `json:"message_id_select"`
	FormFields      map[string]string `json:"form_fields"`
}

// handleFormSubmission bridges the seller's KYC form: post the investor
// data to the form host, persist the submission id, and send the follow-up
// select echoing it.
func (s *Server) handleFormSubmission(c *gin.Context) {
	var req formSubmissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, errors.Validation(err.Error()))
		return
	}

	onSelect, err := s.correlator.OnSelectFor(c.Request.Context(), req.key(), req.SelectMessageID)
	if err != nil {
		respondError(c, err)
		return
	}

	formURL, formID, err := formRef(onSelect)
	if err != nil {
		respondError(c, err)
		return
	}

	sub, err := s.kyc.SubmitForm(c.Request.Context(), formURL, req.FormFields)
	if err != nil {
		respondError(c, err)
		return
	}
	if err := s.store.PutSubmission(c.Request.Context(), req.TransactionID, formID, sub.SubmissionID); err != nil {
		respondError(c, err)
		return
	}

	env, err := s.synth.FormSelect(onSelect, sub.SubmissionID)
	if err != nil {
		respondError(c, err)
		return
	}
	s.dispatchAndRespond(c, env)
}

type documentSubmissionRequest struct {
	sellerRequest
	FormFields map[string]string `json:"form_fields"`
}

// handleDocumentSubmission returns a post-order document form (DigiLocker,
// e-sign) to the seller. These forms arrive on a status callback after
// confirm rather than on the quote, so the bridge rides the seller's latest
// on_status: post the investor data to the form host, persist the issued
// submission id, and send the follow-up select echoing it.
func (s *Server) handleDocumentSubmission(c *gin.Context) {
	var req documentSubmissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, errors.Validation(err.Error()))
		return
	}

	onStatus, err := s.correlator.OnStatusFor(c.Request.Context(), req.key())
	if err != nil {
		respondError(c, err)
		return
	}

	formURL, formID, err := formRef(onStatus)
	if err != nil {
		respondError(c, err)
		return
	}

	sub, err := s.kyc.SubmitForm(c.Request.Context(), formURL, req.FormFields)
	if err != nil {
		respondError(c, err)
		return
	}
	if err := s.store.PutSubmission(c.Request.Context(), req.TransactionID, formID, sub.SubmissionID); err != nil {
		respondError(c, err)
		return
	}

	env, err := s.synth.DocumentSelect(onStatus, sub.SubmissionID)
	if err != nil {
		respondError(c, err)
		return
	}
	s.dispatchAndRespond(c, env)
}

type initRequest struct {
	sellerRequest
	SelectMessageID string `json:"message_id_select"`
	Flow            string `json:"flow" binding:"required"`
	PAN             string `json:"pan"`
	Phone           string `json:"phone"`
	Folio           string `json:"folio"`
	IPAddress       string `json:"ip_address"`
	PaymentMode     string `json:"payment_mode"`
	BankCode        string `json:"source_bank_code"`
	BankAccount     string `json:"source_bank_account_number"`
	AccountName     string `json:"source_bank_account_name"`
}

func (s *Server) handleInit(c *gin.Context) {
	var req initRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, errors.Validation(err.Error()))
		return
	}
	kind, err := synth.ParseFlowKind(req.Flow)
	if err != nil {
		respondError(c, err)
		return
	}

	onSelect, err := s.correlator.OnSelectFor(c.Request.Context(), req.key(), req.SelectMessageID)
	if err != nil {
		respondError(c, err)
		return
	}

	env, err := s.synth.Init(onSelect, synth.InitParams{
		Kind:        kind,
		PAN:         req.PAN,
		Phone:       req.Phone,
		Folio:       req.Folio,
		IPAddress:   req.IPAddress,
		PaymentMode: req.PaymentMode,
		BankCode:    req.BankCode,
		BankAccount: req.BankAccount,
		AccountName: req.AccountName,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	s.dispatchAndRespond(c, env)
}

type confirmRequest struct {
	sellerRequest
	InitMessageID string `json:"message_id_init" binding:"required"`
}

func (s *Server) handleConfirm(c *gin.Context) {
	var req confirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, errors.Validation(err.Error()))
		return
	}

	onInit, err := s.correlator.OnInitFor(c.Request.Context(), req.key(), req.InitMessageID)
	if err != nil {
		respondError(c, err)
		return
	}

	env, err := s.synth.Confirm(onInit)
	if err != nil {
		respondError(c, err)
		return
	}
	s.dispatchAndRespond(c, env)
}

type statusRequest struct {
	sellerRequest
	OrderID string `json:"order_id"`
}

// handleStatus polls the order's state. The order id defaults from the
// seller's confirmed order.
func (s *Server) handleStatus(c *gin.Context) {
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, errors.Validation(err.Error()))
		return
	}

	onConfirm, err := s.correlator.LatestOnConfirm(c.Request.Context(), req.key())
	if err != nil {
		respondError(c, err)
		return
	}
	orderID := req.OrderID
	if orderID == "" {
		orderID, err = orderIDFrom(onConfirm)
		if err != nil {
			respondError(c, err)
			return
		}
	}

	env, err := s.synth.Status(req.TransactionID, onConfirm.BPPID, onConfirm.BPPURI, orderID)
	if err != nil {
		respondError(c, err)
		return
	}
	s.dispatchAndRespond(c, env)
}

type cancelRequest struct {
	sellerRequest
	OrderID   string `json:"order_id"`
	IPAddress string `json:"ip_address" binding:"required"`
}

func (s *Server) handleCancel(c *gin.Context) {
	var req cancelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, errors.Validation(err.Error()))
		return
	}

	onConfirm, err := s.correlator.LatestOnConfirm(c.Request.Context(), req.key())
	if err != nil {
		respondError(c, err)
		return
	}
	orderID := req.OrderID
	if orderID == "" {
		orderID, err = orderIDFrom(onConfirm)
		if err != nil {
			respondError(c, err)
			return
		}
	}

	env, err := s.synth.Cancel(req.TransactionID, onConfirm.BPPID, onConfirm.BPPURI, orderID, req.IPAddress)
	if err != nil {
		respondError(c, err)
		return
	}
	s.dispatchAndRespond(c, env)
}

type updateRequest struct {
	sellerRequest
}

// handleUpdate retries a failed payment by re-targeting order.payments from
// the seller's latest on_update, falling back to the on_init terms when no
// update callback exists yet.
func (s *Server) handleUpdate(c *gin.Context) {
	var req updateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, errors.Validation(err.Error()))
		return
	}

	source, err := s.correlator.PaymentSource(c.Request.Context(), req.key())
	if err != nil {
		respondError(c, err)
		return
	}

	// The on_init order has no id yet; a retry is always post-confirm, so
	// the confirmed order supplies it when the source record lacks one
	fallbackOrderID := ""
	if onConfirm, err := s.correlator.LatestOnConfirm(c.Request.Context(), req.key()); err == nil {
		fallbackOrderID, _ = orderIDFrom(onConfirm)
	}

	env, err := s.synth.Update(source, fallbackOrderID)
	if err != nil {
		respondError(c, err)
		return
	}
	s.dispatchAndRespond(c, env)
}

type completeFlowRequest struct {
	TransactionID string            `json:"transaction_id"`
	Flow          string            `json:"flow" binding:"required"`
	ProviderID    string            `json:"provider_id"`
	ItemID        string            `json:"item_id"`
	Amount        string            `json:"amount"`
	PAN           string            `json:"pan"`
	Phone         string            `json:"phone"`
	Folio         string            `json:"folio"`
	Cadence       string            `json:"frequency"`
	Repeat        int               `json:"repeat"`
	Day           int               `json:"day"`
	PaymentMode   string            `json:"payment_mode"`
	BankCode      string            `json:"source_bank_code"`
	BankAccount   string            `json:"source_bank_account_number"`
	AccountName   string            `json:"source_bank_account_name"`
	IPAddress     string            `json:"ip_address"`
	FormFields    map[string]string `json:"form_fields"`
}

func (s *Server) handleCompleteFlow(c *gin.Context) {
	var req completeFlowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, errors.Validation(err.Error()))
		return
	}
	kind, err := synth.ParseFlowKind(req.Flow)
	if err != nil {
		respondError(c, err)
		return
	}
	if req.TransactionID == "" {
		req.TransactionID = uuid.NewString()
	}

	res, err := s.flow.Complete(c.Request.Context(), orchestrate.FlowRequest{
		TransactionID: req.TransactionID,
		Kind:          kind,
		ProviderID:    req.ProviderID,
		ItemID:        req.ItemID,
		Amount:        req.Amount,
		PAN:           req.PAN,
		Phone:         req.Phone,
		Folio:         req.Folio,
		Cadence:       req.Cadence,
		Repeat:        req.Repeat,
		Day:           req.Day,
		PaymentMode:   req.PaymentMode,
		BankCode:      req.BankCode,
		BankAccount:   req.BankAccount,
		AccountName:   req.AccountName,
		IPAddress:     req.IPAddress,
		FormFields:    req.FormFields,
	})
	if err != nil {
		metrics.FlowCompletionsTotal.WithLabelValues("error").Inc()
		respondError(c, err)
		return
	}
	metrics.FlowCompletionsTotal.WithLabelValues("ok").Inc()
	c.JSON(http.StatusOK, res)
}
