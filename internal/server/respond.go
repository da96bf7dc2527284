package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"fisbap/internal/dispatch"
	"fisbap/internal/errors"
	"fisbap/internal/metrics"
)

// respondError maps the error taxonomy to HTTP statuses. Internal failures
// get a generic body; everything else surfaces its message and context.
func respondError(c *gin.Context, err error) {
	bapErr := errors.From(err)

	if bapErr.Type == errors.ErrorTypeCorrelation {
		stage, _ := bapErr.Context["stage"].(string)
		metrics.CorrelationMissesTotal.WithLabelValues(stage).Inc()
	}

	status := bapErr.HTTPStatus()
	body := gin.H{"error": string(bapErr.Type), "message": bapErr.Message}
	if status == http.StatusInternalServerError {
		body["message"] = "internal failure"
	}
	if len(bapErr.Context) > 0 && status != http.StatusInternalServerError {
		body["context"] = bapErr.Context
	}
	c.JSON(status, body)
}

// respondDispatch passes the upstream outcome through: status code and body
// exactly as the gateway or seller returned them.
func respondDispatch(c *gin.Context, res *dispatch.Result) {
	if res.RawBody != "" {
		c.Data(res.StatusCode, "text/plain; charset=utf-8", []byte(res.RawBody))
		return
	}
	c.Data(res.StatusCode, "application/json", res.Body)
}
