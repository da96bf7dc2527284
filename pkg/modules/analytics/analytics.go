// Package analytics mirrors protocol traffic to observability sinks: the
// network's analytics collector and, when enabled, Datadog logs. Every push
// is best-effort; the protocol exchange never waits on or fails from a sink.
package analytics

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	datadogapi "github.com/DataDog/datadog-api-client-go/v2/api/datadog"
	"github.com/DataDog/datadog-api-client-go/v2/api/datadogV2"

	"fisbap/internal/logging"
	"fisbap/pkg/config"
	"fisbap/pkg/ports"
)

type analytics struct {
	cfg     config.AnalyticsConfig
	client  *http.Client
	logger  *logging.Logger
	logsAPI *datadogV2.LogsApi
	authCtx context.Context
	service string
}

// New builds the analytics sink. A missing collector URL and disabled
// Datadog yields a working no-op sink.
func New(cfg config.AnalyticsConfig, dd config.DatadogConfig) ports.AnalyticsPort {
	a := &analytics{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logging.NewDefaultLogger("analytics"),
	}
	if a.client.Timeout <= 0 {
		a.client.Timeout = 10 * time.Second
	}

	if dd.Enabled {
		apiCfg := datadogapi.NewConfiguration()
		apiCfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
		if dd.BaseURL != "" {
			apiCfg.Servers = datadogapi.ServerConfigurations{{URL: dd.BaseURL}}
			apiCfg.OperationServers = map[string]datadogapi.ServerConfigurations{
				"LogsApi.SubmitLog": {{URL: dd.BaseURL}},
			}
		}
		apiClient := datadogapi.NewAPIClient(apiCfg)

		authCtx := datadogapi.NewDefaultContext(context.Background())
		authCtx = context.WithValue(authCtx, datadogapi.ContextAPIKeys, map[string]datadogapi.APIKey{
			"apiKeyAuth": {Key: dd.APIKey},
			"appKeyAuth": {Key: dd.AppKey},
		})

		a.logsAPI = datadogV2.NewLogsApi(apiClient)
		a.authCtx = authCtx
		a.service = dd.Service
	}

	return a
}

// Push forwards one message body under a kind label. Sink failures are
// logged and swallowed.
func (a *analytics) Push(ctx context.Context, kind string, body []byte) {
	a.pushCollector(ctx, kind, body)
	a.pushDatadog(kind, body)
}

func (a *analytics) pushCollector(ctx context.Context, kind string, body []byte) {
	if a.cfg.URL == "" {
		return
	}

	var data any
	if err := json.Unmarshal(body, &data); err != nil {
		data = string(body)
	}
	envelope, err := json.Marshal(map[string]any{"type": kind, "data": data})
	if err != nil {
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.URL, bytes.NewReader(envelope))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")
	if a.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+a.cfg.Token)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		a.logger.Warn("analytics push failed: %v", err)
		return
	}
	_ = resp.Body.Close()
	if resp.StatusCode >= 300 {
		a.logger.Warn("analytics collector returned %d for %s", resp.StatusCode, kind)
	}
}

func (a *analytics) pushDatadog(kind string, body []byte) {
	if a.logsAPI == nil {
		return
	}

	item := datadogV2.HTTPLogItem{
		Ddsource: datadogapi.PtrString("fisbap"),
		Ddtags:   datadogapi.PtrString("kind:" + kind),
		Message:  string(body),
		Service:  datadogapi.PtrString(a.service),
	}
	_, _, err := a.logsAPI.SubmitLog(a.authCtx, []datadogV2.HTTPLogItem{item},
		*datadogV2.NewSubmitLogOptionalParameters().WithContentEncoding(datadogV2.CONTENTENCODING_GZIP))
	if err != nil {
		a.logger.Warn("datadog mirror failed for %s: %v", kind, err)
	}
}
