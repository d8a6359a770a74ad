package api

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/checkout-router/internal/adapters"
	"github.com/ignite/checkout-router/internal/domain"
	"github.com/ignite/checkout-router/internal/feeds"
	"github.com/ignite/checkout-router/internal/pkg/distlock"
)

const passphrase = "ipn-pass"

type recordingSink struct {
	mu     sync.Mutex
	events []*domain.CanonicalEvent
	err    error
}

func (s *recordingSink) Name() string { return "recording" }

func (s *recordingSink) Send(_ context.Context, ev *domain.CanonicalEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, ev)
	return nil
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func newTestServer(t *testing.T, sink *recordingSink, locker distlock.Locker) *httptest.Server {
	t.Helper()
	factory := adapters.NewFactory(map[domain.Platform]adapters.Config{
		domain.PlatformDigistore24: {Secret: passphrase},
		domain.PlatformClickBank:   {Secret: "cb-secret"},
	}, adapters.Deps{})
	h := NewHandlers(Options{Factory: factory, Sink: sink, Locker: locker, DedupeTTL: time.Hour})
	server := httptest.NewServer(SetupRoutes(h, NewHealthChecker(nil, nil, ""), nil))
	t.Cleanup(server.Close)
	return server
}

func postJSON(t *testing.T, url string, body interface{}) *http.Response {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(b))
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, dst interface{}) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(dst))
}

func TestCheckoutURL(t *testing.T) {
	server := newTestServer(t, &recordingSink{}, nil)

	tests := []struct {
		name   string
		body   map[string]interface{}
		status int
		check  func(t *testing.T, resp *http.Response)
	}{
		{
			name: "legacy string",
			body: map[string]interface{}{
				"platform": "clickbank",
				"offer":    map[string]interface{}{"hoplink": "https://endopeak.hop.clickbank.net/?tid=[TRACKING_ID]"},
				"tracking": map[string]interface{}{"user_id": "u1", "gclid": "g1"},
			},
			status: http.StatusOK,
			check: func(t *testing.T, resp *http.Response) {
				var got string
				decodeBody(t, resp, &got)
				assert.Equal(t, "https://endopeak.hop.clickbank.net/?tid=u1&gclid=g1", got)
			},
		},
		{
			name: "rich object",
			body: map[string]interface{}{
				"platform":    "Digistore24",
				"offer":       map[string]interface{}{"hoplink": "https://www.digistore24.com/redir/12345/affname/", "vendor": "acme", "sku": "12345"},
				"tracking":    map[string]interface{}{"user_id": "u1"},
				"return_mode": "rich",
			},
			status: http.StatusOK,
			check: func(t *testing.T, resp *http.Response) {
				var got struct {
					Mode       string                   `json:"mode"`
					PrimaryURL string                   `json:"primary_url"`
					Offers     []domain.NormalizedOffer `json:"offers"`
				}
				decodeBody(t, resp, &got)
				assert.Equal(t, "rich", got.Mode)
				assert.Equal(t, "https://www.digistore24.com/redir/12345/affname/?tid=u1", got.PrimaryURL)
				require.Len(t, got.Offers, 1)
				assert.Equal(t, "digistore24:acme:12345", *got.Offers[0].OfferID)
			},
		},
		{
			name:   "unsupported platform",
			body:   map[string]interface{}{"platform": "paypal", "offer": map[string]interface{}{"hoplink": "https://x.test/"}},
			status: http.StatusBadRequest,
		},
		{
			name:   "no link",
			body:   map[string]interface{}{"platform": "clickbank", "offer": map[string]interface{}{"checkout_url": "adapter:clickbank"}},
			status: http.StatusNotFound,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := postJSON(t, server.URL+"/v1/checkout-url", tt.body)
			assert.Equal(t, tt.status, resp.StatusCode)
			if tt.check != nil {
				tt.check(t, resp)
				return
			}
			resp.Body.Close()
		})
	}
}

func TestCheckoutURL_InvalidJSON(t *testing.T) {
	server := newTestServer(t, &recordingSink{}, nil)
	resp, err := http.Post(server.URL+"/v1/checkout-url", "application/json", strings.NewReader("{"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func signedIPN(event string) url.Values {
	form := url.Values{
		"event":              {event},
		"order_id":           {"ABCD1234"},
		"transaction_id":     {"98765432"},
		"product_id":         {"12345"},
		"transaction_amount": {"37.00"},
		"currency":           {"EUR"},
		"custom":             {"tid_u1"},
	}
	form.Set(adapters.ShaSignField, strings.ToUpper(hex.EncodeToString(adapters.ShaSign(form, passphrase))))
	return form
}

func postForm(t *testing.T, url string, form url.Values) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/x-www-form-urlencoded", strings.NewReader(form.Encode()))
	require.NoError(t, err)
	return resp
}

func TestWebhook_AcceptsAndDedupes(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	sink := &recordingSink{}
	server := newTestServer(t, sink, distlock.NewLocker(client))
	endpoint := server.URL + "/v1/webhooks/digistore24"

	var first webhookResponse
	resp := postForm(t, endpoint, signedIPN("on_payment"))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	decodeBody(t, resp, &first)
	assert.Equal(t, WebhookAccepted, first.Status)
	assert.NotEmpty(t, first.EventID)
	assert.Equal(t, domain.StatusPaid, first.EventStatus)
	assert.True(t, mr.Exists("lock:postback:digistore24:98765432:paid"))

	var replay webhookResponse
	resp = postForm(t, endpoint, signedIPN("on_payment"))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	decodeBody(t, resp, &replay)
	assert.Equal(t, WebhookDuplicate, replay.Status)

	// a refund of the same transaction is a new event
	var refund webhookResponse
	decodeBody(t, postForm(t, endpoint, signedIPN("on_refund")), &refund)
	assert.Equal(t, WebhookAccepted, refund.Status)

	assert.Equal(t, 2, sink.count())
}

func TestWebhook_QueryString(t *testing.T) {
	sink := &recordingSink{}
	server := newTestServer(t, sink, distlock.NewMemoryLocker(nil))

	resp, err := http.Get(server.URL + "/v1/webhooks/digistore24?" + signedIPN("on_payment").Encode())
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, sink.count())
}

func TestWebhook_FormBodyWithRoutingQuery(t *testing.T) {
	sink := &recordingSink{}
	server := newTestServer(t, sink, nil)

	resp := postForm(t, server.URL+"/v1/webhooks/digistore24?src=ds24", signedIPN("on_payment"))
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, sink.count())
}

func TestWebhook_Rejections(t *testing.T) {
	sink := &recordingSink{}
	server := newTestServer(t, sink, nil)

	tampered := signedIPN("on_payment")
	tampered.Set("transaction_amount", "0.01")
	resp := postForm(t, server.URL+"/v1/webhooks/digistore24", tampered)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, err := http.Post(server.URL+"/v1/webhooks/clickbank", "application/json", strings.NewReader(`{"notification":"x","iv":"y"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = postForm(t, server.URL+"/v1/webhooks/paypal", signedIPN("on_payment"))
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	assert.Equal(t, 0, sink.count())
}

func TestWebhook_DeliveryFailureFreesDedupeKey(t *testing.T) {
	sink := &recordingSink{err: errors.New("s3 down")}
	server := newTestServer(t, sink, distlock.NewMemoryLocker(nil))
	endpoint := server.URL + "/v1/webhooks/digistore24"

	resp := postForm(t, endpoint, signedIPN("on_payment"))
	resp.Body.Close()
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	sink.mu.Lock()
	sink.err = nil
	sink.mu.Unlock()

	var retry webhookResponse
	decodeBody(t, postForm(t, endpoint, signedIPN("on_payment")), &retry)
	assert.Equal(t, WebhookAccepted, retry.Status)
	assert.Equal(t, 1, sink.count())
}

func TestWebhookForm(t *testing.T) {
	tests := []struct {
		name        string
		target      string
		contentType string
		body        string
		want        url.Values
	}{
		{"form body only", "/v1/webhooks/digistore24?src=ds24", "application/x-www-form-urlencoded; charset=utf-8", "a=body", url.Values{"a": {"body"}}},
		{"query when body empty", "/v1/webhooks/digistore24?a=query", "", "", url.Values{"a": {"query"}}},
		{"json body", "/v1/webhooks/clickbank?src=cb", "application/json", `{"a":1}`, nil},
		{"nothing", "/v1/webhooks/digistore24", "", "", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, tt.target, nil)
			if tt.contentType != "" {
				r.Header.Set("Content-Type", tt.contentType)
			}
			assert.Equal(t, tt.want, webhookForm(r, []byte(tt.body)))
		})
	}
}

type fakeBucket struct{ err error }

func (f fakeBucket) HeadBucket(context.Context, *s3.HeadBucketInput, ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	return &s3.HeadBucketOutput{}, f.err
}

func TestHealth(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	tests := []struct {
		name   string
		hc     *HealthChecker
		status string
	}{
		{"nothing configured", NewHealthChecker(nil, nil, ""), "healthy"},
		{"all up", NewHealthChecker(client, fakeBucket{}, "postbacks", feeds.NewRuleSource("", feeds.Options{})), "healthy"},
		{"bucket down", NewHealthChecker(client, fakeBucket{err: errors.New("403")}, "postbacks"), "degraded"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			tt.hc.HandleHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
			assert.Equal(t, http.StatusOK, rec.Code)

			var got HealthStatus
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
			assert.Equal(t, tt.status, got.Status)
			assert.Contains(t, got.Checks, "redis")
			assert.Contains(t, got.Checks, "s3")
		})
	}
}

func TestFormatUptime(t *testing.T) {
	assert.Equal(t, "5s", formatUptime(5*time.Second))
	assert.Equal(t, "2m 5s", formatUptime(2*time.Minute+5*time.Second))
	assert.Equal(t, "1d 1h 0m 0s", formatUptime(25*time.Hour))
}
