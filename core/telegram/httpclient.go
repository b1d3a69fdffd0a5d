package telegram

import (
	"fmt"
	"net"
	"net/http"
	"time"

	tele "gopkg.in/telebot.v4"

	coreconfig "github.com/m3rciful/paydesk/core/config"
	"github.com/m3rciful/paydesk/core/telegram/netutil"
)

const (
	dialTimeout      = 5 * time.Second
	keepAlive        = 30 * time.Second
	tlsTimeout       = 5 * time.Second
	idleConnTimeout  = 30 * time.Second
	retryAttempts    = 3
	retryBackoffStep = 2 * time.Second
	// Long polling holds getUpdates open, so the client timeout must exceed it.
	requestSlack = 20 * time.Second
)

// BuildPoller selects a webhook or long poller from cfg.
func BuildPoller(cfg *coreconfig.Config) tele.Poller {
	if cfg.Telegram.RunMode == coreconfig.RunModeWebhook {
		return &tele.Webhook{
			Listen:   cfg.Webhook.Address(),
			Endpoint: &tele.WebhookEndpoint{PublicURL: cfg.Webhook.URL},
		}
	}
	return &tele.LongPoller{Timeout: cfg.Telegram.LongPollTimeout()}
}

// BuildHTTPClient returns the Bot API client with transport retries.
func BuildHTTPClient(cfg *coreconfig.Config) *http.Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: dialTimeout, KeepAlive: keepAlive}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       idleConnTimeout,
		TLSHandshakeTimeout:   tlsTimeout,
		ExpectContinueTimeout: time.Second,
	}
	return &http.Client{
		Timeout:   cfg.Telegram.LongPollTimeout() + requestSlack,
		Transport: &retryTransport{base: transport, attempts: retryAttempts, backoff: retryBackoffStep},
	}
}

// retryTransport replays requests that failed before a response arrived.
type retryTransport struct {
	base     http.RoundTripper
	attempts int
	backoff  time.Duration
}

func (t *retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	var lastErr error
	for attempt := 1; attempt <= t.attempts; attempt++ {
		r := req
		if attempt > 1 {
			r = req.Clone(req.Context())
			if req.Body != nil {
				if req.GetBody == nil {
					return nil, lastErr
				}
				body, err := req.GetBody()
				if err != nil {
					return nil, fmt.Errorf("telegram: rewind body: %w", err)
				}
				r.Body = body
			}
		}

		resp, err := t.base.RoundTrip(r)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if attempt == t.attempts || !netutil.ShouldRetry(err) {
			break
		}

		timer := time.NewTimer(t.backoff * time.Duration(attempt))
		select {
		case <-req.Context().Done():
			timer.Stop()
			return nil, req.Context().Err()
		case <-timer.C:
		}
	}
	return nil, lastErr
}
