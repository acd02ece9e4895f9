package push

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/fitos/notify/pkg/logger"
	"github.com/fitos/notify/pkg/metrics"
)

const (
	fcmScope           = "https://www.googleapis.com/auth/firebase.messaging"
	fcmDefaultEndpoint = "https://fcm.googleapis.com/v1/projects/%s/messages:send"

	DefaultAndroidChannel = "fitos_default"
)

// FCMConfig configures the Firebase Cloud Messaging HTTP v1 gateway.
type FCMConfig struct {
	ProjectID       string
	CredentialsFile string
	CredentialsJSON string
	Endpoint        string
	Timeout         time.Duration
	AndroidChannel  string

	// Consecutive failures before the breaker opens, and how long it stays open.
	BreakerFailures    uint32
	BreakerOpenTimeout time.Duration
}

// FCMGateway delivers messages through FCM with a circuit breaker in front.
type FCMGateway struct {
	client   *http.Client
	endpoint string
	channel  string
	breaker  *gobreaker.CircuitBreaker
	log      *zap.Logger
}

// NewFCMGateway authenticates with the service account credentials and
// returns a ready gateway.
func NewFCMGateway(ctx context.Context, cfg FCMConfig) (*FCMGateway, error) {
	raw := []byte(cfg.CredentialsJSON)
	if len(raw) == 0 && cfg.CredentialsFile != "" {
		data, err := os.ReadFile(cfg.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("push: read credentials: %w", err)
		}
		raw = data
	}

	var source oauth2.TokenSource
	if len(raw) > 0 {
		creds, err := google.CredentialsFromJSON(ctx, raw, fcmScope)
		if err != nil {
			return nil, fmt.Errorf("push: parse credentials: %w", err)
		}
		source = creds.TokenSource
		if cfg.ProjectID == "" {
			cfg.ProjectID = creds.ProjectID
		}
	} else {
		creds, err := google.FindDefaultCredentials(ctx, fcmScope)
		if err != nil {
			return nil, fmt.Errorf("push: default credentials: %w", err)
		}
		source = creds.TokenSource
		if cfg.ProjectID == "" {
			cfg.ProjectID = creds.ProjectID
		}
	}

	client := oauth2.NewClient(ctx, source)
	return newFCMGateway(client, cfg)
}

func newFCMGateway(client *http.Client, cfg FCMConfig) (*FCMGateway, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		if cfg.ProjectID == "" {
			return nil, errors.New("push: project id is required")
		}
		endpoint = fmt.Sprintf(fcmDefaultEndpoint, cfg.ProjectID)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client.Timeout = timeout

	channel := cfg.AndroidChannel
	if channel == "" {
		channel = DefaultAndroidChannel
	}

	failures := cfg.BreakerFailures
	if failures == 0 {
		failures = 5
	}
	openTimeout := cfg.BreakerOpenTimeout
	if openTimeout <= 0 {
		openTimeout = 30 * time.Second
	}

	log := logger.WithModule("push")
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "fcm",
		Timeout: openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		IsSuccessful: func(err error) bool {
			// A rejected token says nothing about gateway health.
			return err == nil || errors.Is(err, ErrInvalidToken)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("push gateway breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	return &FCMGateway{
		client:   client,
		endpoint: endpoint,
		channel:  channel,
		breaker:  breaker,
		log:      log,
	}, nil
}

type fcmRequest struct {
	Message fcmMessage `json:"message"`
}

type fcmMessage struct {
	Token        string            `json:"token"`
	Notification fcmNotification   `json:"notification"`
	Data         map[string]string `json:"data,omitempty"`
	Android      *fcmAndroid       `json:"android,omitempty"`
	APNS         *fcmAPNS          `json:"apns,omitempty"`
}

type fcmNotification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

type fcmAndroid struct {
	Priority     string                 `json:"priority"`
	Notification fcmAndroidNotification `json:"notification"`
}

type fcmAndroidNotification struct {
	ChannelID string `json:"channel_id"`
}

type fcmAPNS struct {
	Headers map[string]string `json:"headers"`
	Payload fcmAPNSPayload    `json:"payload"`
}

type fcmAPNSPayload struct {
	APS fcmAPS `json:"aps"`
}

type fcmAPS struct {
	Sound string `json:"sound"`
	Badge int    `json:"badge"`
}

type fcmResponse struct {
	Name string `json:"name"`
}

type fcmErrorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// buildRequest shapes the payload: APNs gets high priority with the default
// sound and a badge, Android gets high priority on the named channel.
func (g *FCMGateway) buildRequest(msg Message) fcmRequest {
	return fcmRequest{Message: fcmMessage{
		Token:        msg.Token,
		Notification: fcmNotification{Title: msg.Title, Body: msg.Body},
		Data:         msg.Data,
		Android: &fcmAndroid{
			Priority:     "high",
			Notification: fcmAndroidNotification{ChannelID: g.channel},
		},
		APNS: &fcmAPNS{
			Headers: map[string]string{"apns-priority": "10"},
			Payload: fcmAPNSPayload{APS: fcmAPS{Sound: "default", Badge: 1}},
		},
	}}
}

// Send submits msg and returns the FCM message name.
func (g *FCMGateway) Send(ctx context.Context, msg Message) (string, error) {
	if msg.Token == "" {
		return "", errors.New("push: device token is required")
	}

	result, err := g.breaker.Execute(func() (interface{}, error) {
		return g.send(ctx, msg)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		metrics.GatewayRequests.WithLabelValues("open").Inc()
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err != nil {
		metrics.GatewayRequests.WithLabelValues("failure").Inc()
		return "", err
	}

	metrics.GatewayRequests.WithLabelValues("success").Inc()
	return result.(string), nil
}

func (g *FCMGateway) send(ctx context.Context, msg Message) (string, error) {
	payload, err := json.Marshal(g.buildRequest(msg))
	if err != nil {
		return "", fmt.Errorf("push: encode message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("push: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("push: submit: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("push: read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr fcmErrorResponse
		_ = json.Unmarshal(body, &apiErr)
		if resp.StatusCode == http.StatusNotFound || apiErr.Error.Status == "UNREGISTERED" {
			return "", ErrInvalidToken
		}
		return "", fmt.Errorf("push: gateway returned %d: %s", resp.StatusCode, apiErr.Error.Message)
	}

	var out fcmResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("push: decode response: %w", err)
	}
	return out.Name, nil
}
