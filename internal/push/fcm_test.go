package push

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestGateway(t *testing.T, handler http.HandlerFunc, cfg FCMConfig) *FCMGateway {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg.Endpoint = srv.URL
	gw, err := newFCMGateway(srv.Client(), cfg)
	require.NoError(t, err)
	return gw
}

func TestFCMGatewayShapesPlatformPayloads(t *testing.T) {
	var (
		captured map[string]any
		method   string
	)
	gw := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		_ = json.NewDecoder(r.Body).Decode(&captured)
		_, _ = w.Write([]byte(`{"name":"projects/fitos/messages/123"}`))
	}, FCMConfig{})

	id, err := gw.Send(context.Background(), Message{
		Token: "device-token",
		Title: "Session starting soon",
		Body:  "Strength with Alex starts in 15 minutes",
		Data:  map[string]string{"appointment_id": "a1"},
	})
	require.NoError(t, err)
	require.Equal(t, "projects/fitos/messages/123", id)
	require.Equal(t, http.MethodPost, method)

	message := captured["message"].(map[string]any)
	require.Equal(t, "device-token", message["token"])
	require.Equal(t, "a1", message["data"].(map[string]any)["appointment_id"])

	android := message["android"].(map[string]any)
	require.Equal(t, "high", android["priority"])
	require.Equal(t, DefaultAndroidChannel, android["notification"].(map[string]any)["channel_id"])

	apns := message["apns"].(map[string]any)
	require.Equal(t, "10", apns["headers"].(map[string]any)["apns-priority"])
	aps := apns["payload"].(map[string]any)["aps"].(map[string]any)
	require.Equal(t, "default", aps["sound"])
	require.EqualValues(t, 1, aps["badge"])
}

func TestFCMGatewayReportsUnregisteredTokens(t *testing.T) {
	gw := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"code":404,"status":"NOT_FOUND","message":"Requested entity was not found."}}`))
	}, FCMConfig{})

	_, err := gw.Send(context.Background(), Message{Token: "stale", Title: "t", Body: "b"})
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestFCMGatewayBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	var calls int32
	gw := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"code":500,"message":"internal"}}`))
	}, FCMConfig{BreakerFailures: 2, BreakerOpenTimeout: time.Minute})

	msg := Message{Token: "t", Title: "t", Body: "b"}
	_, err := gw.Send(context.Background(), msg)
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrUnavailable)
	_, err = gw.Send(context.Background(), msg)
	require.Error(t, err)

	_, err = gw.Send(context.Background(), msg)
	require.ErrorIs(t, err, ErrUnavailable)
	require.EqualValues(t, 2, atomic.LoadInt32(&calls))
}

func TestFCMGatewayRequiresTokenAndProject(t *testing.T) {
	_, err := newFCMGateway(http.DefaultClient, FCMConfig{})
	require.Error(t, err)

	gw, err := newFCMGateway(&http.Client{}, FCMConfig{ProjectID: "fitos"})
	require.NoError(t, err)
	require.Equal(t, "https://fcm.googleapis.com/v1/projects/fitos/messages:send", gw.endpoint)

	_, err = gw.Send(context.Background(), Message{})
	require.Error(t, err)
}

func TestLogGatewayReturnsLocalID(t *testing.T) {
	id, err := NewLogGateway().Send(context.Background(), Message{Token: "x", Title: "t"})
	require.NoError(t, err)
	require.Contains(t, id, "local/")
}
