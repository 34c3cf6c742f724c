package proxy

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/curaview/framegate/creds"
	"github.com/curaview/framegate/gateway"
	"github.com/curaview/framegate/jwks"
	"github.com/curaview/framegate/token"
	"github.com/curaview/framegate/token/tokentest"
)

const (
	testIssuer   = "https://cognito-idp.us-east-1.amazonaws.com/us-east-1_TESTPOOL"
	testClientID = "client-abc"
)

var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

type upstreamCall struct {
	Method        string
	Path          string
	Body          string
	Authorization string
	AmzDate       string
	ContentType   string
	Subject       string
}

// testUpstream records calls and plays back a canned response
type testUpstream struct {
	server *httptest.Server
	calls  int32
	last   atomic.Value
	status int
	body   []byte
}

func newUpstream(status int, body []byte) *testUpstream {
	u := &testUpstream{status: status, body: body}
	u.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&u.calls, 1)
		reqBody, _ := io.ReadAll(r.Body)
		u.last.Store(upstreamCall{
			Method:        r.Method,
			Path:          r.URL.Path,
			Body:          string(reqBody),
			Authorization: r.Header.Get("Authorization"),
			AmzDate:       r.Header.Get("X-Amz-Date"),
			ContentType:   r.Header.Get("Content-Type"),
			Subject:       r.Header.Get("X-Auth-Subject"),
		})
		w.WriteHeader(u.status)
		w.Write(u.body)
	}))
	return u
}

func (u *testUpstream) Calls() int {
	return int(atomic.LoadInt32(&u.calls))
}

func (u *testUpstream) Last() upstreamCall {
	call, _ := u.last.Load().(upstreamCall)
	return call
}

func newHandler(t *testing.T, issuer *tokentest.Issuer, upstreamURL string) http.Handler {
	t.Helper()

	u, err := url.Parse(upstreamURL)
	require.Nil(t, err)

	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	forwarder, err := NewForwarder(Config{
		Region:         "us-east-1",
		UpstreamHost:   u.Host,
		UpstreamScheme: "http",
	}, creds.NewStatic("AKIDEXAMPLE", "wJalrXUtnFEMI/K7MDENG/bPxRfiCYEXAMPLEKEY", ""),
		WithClock(func() time.Time { return testNow }),
		WithLogger(logger))
	require.Nil(t, err)

	clock := func() time.Time { return testNow }
	cache := jwks.New(issuer.URL(), jwks.WithClock(clock))
	validator := token.NewValidator(cache, testIssuer, testClientID, token.WithClock(clock))

	return gateway.New(validator, forwarder, gateway.Config{
		Origins:               []string{"https://*.cloudfront.net"},
		AllowWildcardFallback: true,
	}, logger)
}

func bearer(t *testing.T, issuer *tokentest.Issuer, exp time.Time) string {
	t.Helper()
	return "Bearer " + issuer.Sign(t, jwt.MapClaims{
		"iss": testIssuer,
		"aud": testClientID,
		"sub": "user-123",
		"exp": exp.Unix(),
	})
}

func TestForwardBridgedFrameRequest(t *testing.T) {
	frame := []byte("\xff\x4f\xff\x51encoded-frame-bytes")
	upstream := newUpstream(http.StatusOK, frame)
	defer upstream.server.Close()
	issuer := tokentest.NewIssuer(t)
	defer issuer.Close()

	handler := newHandler(t, issuer, upstream.server.URL)

	req := httptest.NewRequest(http.MethodGet,
		"/datastore/d-1/imageSet/s-1/getImageFrame?imageFrameId=img-1", nil)
	req.Header.Set("Authorization", bearer(t, issuer, testNow.Add(time.Hour)))
	req.Header.Set("Origin", "https://d111.cloudfront.net")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, frame, w.Body.Bytes())
	require.Equal(t, "https://d111.cloudfront.net", w.Header().Get("Access-Control-Allow-Origin"))

	require.Equal(t, 1, upstream.Calls())
	call := upstream.Last()
	require.Equal(t, http.MethodPost, call.Method)
	require.Equal(t, "/datastore/d-1/imageSet/s-1/getImageFrame", call.Path)
	require.Equal(t, `{"imageFrameId":"img-1"}`, call.Body)
	require.Equal(t, "application/json", call.ContentType)
	require.Equal(t, "20240601T120000Z", call.AmzDate)
	require.True(t, strings.HasPrefix(call.Authorization,
		"AWS4-HMAC-SHA256 Credential=AKIDEXAMPLE/20240601/us-east-1/medical-imaging/aws4_request"),
		"unexpected authorization header: %s", call.Authorization)
	require.Equal(t, "user-123", call.Subject)
}

func TestForwardExpiredTokenMakesNoUpstreamCall(t *testing.T) {
	upstream := newUpstream(http.StatusOK, []byte("frame"))
	defer upstream.server.Close()
	issuer := tokentest.NewIssuer(t)
	defer issuer.Close()

	handler := newHandler(t, issuer, upstream.server.URL)

	req := httptest.NewRequest(http.MethodGet,
		"/datastore/d-1/imageSet/s-1/getImageFrame?imageFrameId=img-1", nil)
	req.Header.Set("Authorization", bearer(t, issuer, testNow.Add(-time.Minute)))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Contains(t, w.Body.String(), "Token expired")
	require.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	require.Equal(t, 0, upstream.Calls())
}

func TestForwardUpstreamUnreachable(t *testing.T) {
	upstream := newUpstream(http.StatusOK, nil)
	upstream.server.Close()
	issuer := tokentest.NewIssuer(t)
	defer issuer.Close()

	handler := newHandler(t, issuer, upstream.server.URL)

	req := httptest.NewRequest(http.MethodGet,
		"/datastore/d-1/imageSet/s-1/getImageFrame?imageFrameId=img-1", nil)
	req.Header.Set("Authorization", bearer(t, issuer, testNow.Add(time.Hour)))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadGateway, w.Code)
	require.Contains(t, w.Body.String(), "upstream unreachable")
}

func TestForwardClientDisconnectCancelsUpstream(t *testing.T) {
	started := make(chan struct{})
	canceled := make(chan struct{})
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// The server only watches for client disconnects (and cancels
		// r.Context()) once the request body has been consumed
		io.Copy(io.Discard, r.Body)
		close(started)
		select {
		case <-r.Context().Done():
			close(canceled)
		case <-time.After(5 * time.Second):
		}
	}))
	defer upstream.Close()
	issuer := tokentest.NewIssuer(t)
	defer issuer.Close()

	handler := newHandler(t, issuer, upstream.URL)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req := httptest.NewRequest(http.MethodGet,
		"/datastore/d-1/imageSet/s-1/getImageFrame?imageFrameId=img-1", nil).WithContext(ctx)
	req.Header.Set("Authorization", bearer(t, issuer, testNow.Add(time.Hour)))

	// Drop the client as soon as the upstream call is in flight
	go func() {
		<-started
		cancel()
	}()

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	select {
	case <-canceled:
	case <-time.After(2 * time.Second):
		t.Fatal("upstream call was not canceled when the client disconnected")
	}
}

func TestForwardUpstreamErrorPassedThrough(t *testing.T) {
	upstream := newUpstream(http.StatusConflict, []byte(`{"message":"validation failed"}`))
	defer upstream.server.Close()
	issuer := tokentest.NewIssuer(t)
	defer issuer.Close()

	handler := newHandler(t, issuer, upstream.server.URL)

	req := httptest.NewRequest(http.MethodPost,
		"/datastore/d-1/imageSet/s-1/getImageFrame",
		strings.NewReader(`{"imageFrameId":"img-1"}`))
	req.Header.Set("Authorization", bearer(t, issuer, testNow.Add(time.Hour)))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	require.Equal(t, http.StatusConflict, w.Code)
	require.Equal(t, `{"message":"validation failed"}`, w.Body.String())

	// The POST passed through the bridge unchanged
	call := upstream.Last()
	require.Equal(t, http.MethodPost, call.Method)
	require.Equal(t, `{"imageFrameId":"img-1"}`, call.Body)
}

func TestConfigValidate(t *testing.T) {
	require.Nil(t, (&Config{Region: "us-east-1"}).Validate())
	require.Nil(t, (&Config{UpstreamHost: "localhost:9999"}).Validate())

	err := (&Config{UpstreamScheme: "ftp", Timeout: -time.Second}).Validate()
	require.NotNil(t, err)
	require.Contains(t, err.Error(), "region or upstream host")
	require.Contains(t, err.Error(), "invalid upstream scheme")
	require.Contains(t, err.Error(), "timeout")
}

func TestConfigHost(t *testing.T) {
	cfg := Config{Region: "eu-west-1"}
	require.Equal(t, "runtime-medical-imaging.eu-west-1.amazonaws.com", cfg.Host())

	cfg.UpstreamHost = "override.example.org"
	require.Equal(t, "override.example.org", cfg.Host())
}
