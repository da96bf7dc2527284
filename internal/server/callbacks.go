package server

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"fisbap/internal/errors"
	"fisbap/internal/metrics"
	"fisbap/internal/payload"
	"fisbap/pkg/ports"
)

const maxCallbackBytes = 4 << 20

// callbackHandler builds the endpoint for one network callback stage. The
// ingestor decides; the handler only reads the body and relays the verdict.
// Every stored on_search is also denormalized into the catalog, best-effort.
func (s *Server) callbackHandler(stage ports.Stage) gin.HandlerFunc {
	action := string(stage)
	return func(c *gin.Context) {
		raw, err := io.ReadAll(io.LimitReader(c.Request.Body, maxCallbackBytes))
		if err != nil {
			metrics.CallbacksTotal.WithLabelValues(action, "rejected").Inc()
			respondError(c, errors.Validation("unreadable request body"))
			return
		}

		res := s.ingestor.Ingest(c.Request.Context(), action, raw)
		decision := "rejected"
		if res.Record != nil {
			decision = "stored"
		} else if res.Status == http.StatusOK {
			decision = "duplicate"
		}
		metrics.CallbacksTotal.WithLabelValues(action, decision).Inc()

		if res.Record != nil && stage == ports.StageOnSearch && s.catalog != nil {
			if n, err := s.catalog.Import(c.Request.Context(), res.Record.TransactionID, raw); err != nil {
				s.logger.Warn("catalog import failed for %s: %v", res.Record.TransactionID, err)
			} else {
				s.logger.Debug("catalog import: %d plans from %s", n, res.Record.BPPID)
			}
		}

		c.JSON(res.Status, res.Ack)
	}
}

// handleCallbackView returns a stored callback: exact by message_id, else
// the transaction's latest for the stage. on_status additionally answers
// lookups by bare PAN.
func (s *Server) handleCallbackView(c *gin.Context) {
	stage := ports.Stage(c.Param("stage"))
	txn := c.Query("transaction_id")

	if pan := c.Query("pan"); pan != "" {
		rec, err := s.store.Latest(c.Request.Context(), ports.Query{
			Stage: stage, TransactionID: txn, PAN: pan,
		})
		if err != nil {
			respondError(c, err)
			return
		}
		c.Data(http.StatusOK, "application/json", rec.Payload)
		return
	}

	if txn == "" {
		respondError(c, errors.Validation("transaction_id is required"))
		return
	}

	rec, err := s.correlator.Callback(c.Request.Context(), stage, txn, c.Query("message_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json", rec.Payload)
}

func (s *Server) handleState(c *gin.Context) {
	state, err := s.correlator.State(c.Request.Context(), c.Param("transaction_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, state)
}

// handlePAN serves the investor PAN derived from the transaction's latest
// on_status callback.
func (s *Server) handlePAN(c *gin.Context) {
	txn := c.Param("transaction_id")
	rec, err := s.correlator.Callback(c.Request.Context(), ports.StageOnStatus, txn, "")
	if err != nil {
		respondError(c, err)
		return
	}
	if rec.PAN == "" {
		respondError(c, errors.NotFound("pan"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"transaction_id": txn, "pan": rec.PAN})
}

func (s *Server) handleSchemeByISIN(c *gin.Context) {
	match, err := s.catalog.SchemeByISIN(c.Request.Context(), c.Param("isin"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, match)
}

func (s *Server) handleProviders(c *gin.Context) {
	providers, err := s.catalog.Providers(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"providers": providers})
}

// formRef extracts the KYC form location from a stored on_select.
func formRef(rec *ports.Record) (url, id string, err error) {
	doc, err := payload.Parse(string(rec.Stage), rec.Payload)
	if err != nil {
		return "", "", err
	}
	url, err = doc.String("message.order.xinput.form.url")
	if err != nil {
		return "", "", errors.MalformedUpstream(string(rec.Stage), "message.order.xinput.form.url")
	}
	id = doc.StringOr("message.order.xinput.form.id", "")
	return url, id, nil
}

// orderIDFrom extracts the confirmed order id from a stored callback.
func orderIDFrom(rec *ports.Record) (string, error) {
	doc, err := payload.Parse(string(rec.Stage), rec.Payload)
	if err != nil {
		return "", err
	}
	id, err := doc.String("message.order.id")
	if err != nil {
		return "", errors.MalformedUpstream(string(rec.Stage), "message.order.id")
	}
	return id, nil
}
