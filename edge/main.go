package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/sirupsen/logrus"

	"github.com/curaview/framegate/creds"
	"github.com/curaview/framegate/gateway"
	"github.com/curaview/framegate/jwks"
	"github.com/curaview/framegate/proxy"
	"github.com/curaview/framegate/token"
)

var logger *logrus.Logger

func init() {
	logger = logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
}

// responseBuffer collects a handler's response so it can be converted
// into an API Gateway proxy response.
type responseBuffer struct {
	status int
	header http.Header
	body   bytes.Buffer
}

func newResponseBuffer() *responseBuffer {
	return &responseBuffer{status: http.StatusOK, header: http.Header{}}
}

func (r *responseBuffer) Header() http.Header { return r.header }

func (r *responseBuffer) WriteHeader(status int) { r.status = status }

func (r *responseBuffer) Write(p []byte) (int, error) { return r.body.Write(p) }

type edgeHandler struct {
	handler http.Handler
}

func (h *edgeHandler) HandleRequest(ctx context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {

	body := []byte(request.Body)
	if request.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(request.Body)
		if err != nil {
			logger.WithError(err).Info("Bad request body")
			return events.APIGatewayProxyResponse{StatusCode: http.StatusBadRequest}, nil
		}
		body = decoded
	}

	query := url.Values{}
	for name, values := range request.MultiValueQueryStringParameters {
		for _, value := range values {
			query.Add(name, value)
		}
	}
	target := url.URL{Path: request.Path, RawQuery: query.Encode()}

	req, err := http.NewRequestWithContext(ctx, request.HTTPMethod, target.String(),
		bytes.NewReader(body))
	if err != nil {
		return events.APIGatewayProxyResponse{StatusCode: http.StatusBadRequest}, nil
	}
	for name, values := range request.MultiValueHeaders {
		for _, value := range values {
			req.Header.Add(name, value)
		}
	}

	buf := newResponseBuffer()
	h.handler.ServeHTTP(buf, req)

	response := events.APIGatewayProxyResponse{
		StatusCode:        buf.status,
		MultiValueHeaders: buf.header,
	}
	if isText(buf.header.Get("Content-Type")) {
		response.Body = buf.body.String()
	} else {
		response.Body = base64.StdEncoding.EncodeToString(buf.body.Bytes())
		response.IsBase64Encoded = true
	}
	return response, nil
}

// isText reports whether a response body can ride the transport without
// base64 encoding.
func isText(contentType string) bool {
	return strings.HasPrefix(contentType, "text/") ||
		strings.HasPrefix(contentType, "application/json")
}

func env(name, fallback string) string {
	if value := os.Getenv(name); value != "" {
		return value
	}
	return fallback
}

func main() {

	logger.Info("coldstart")

	region := env("FRAMEGATE_REGION", "us-east-1")
	poolID := os.Getenv("FRAMEGATE_POOL_ID")
	clientID := os.Getenv("FRAMEGATE_CLIENT_ID")
	if poolID == "" || clientID == "" {
		logger.Fatal("FRAMEGATE_POOL_ID and FRAMEGATE_CLIENT_ID are not set")
	}

	provider, err := creds.NewChain()
	if err != nil {
		logger.WithError(err).Fatal("Credential chain unavailable")
	}

	forwarder, err := proxy.NewForwarder(proxy.Config{
		Region:       region,
		UpstreamHost: os.Getenv("FRAMEGATE_UPSTREAM"),
	}, provider, proxy.WithLogger(logger))
	if err != nil {
		logger.WithError(err).Fatal("Invalid proxy configuration")
	}

	cache := jwks.New(token.URL(region, poolID), jwks.WithLogger(logger))
	validator := token.NewValidator(cache, token.Issuer(region, poolID), clientID,
		token.WithLogger(logger))

	var origins []string
	if raw := os.Getenv("FRAMEGATE_ORIGINS"); raw != "" {
		origins = strings.Split(raw, ",")
	}
	handler := gateway.New(validator, forwarder, gateway.Config{
		Origins:               origins,
		AllowWildcardFallback: true,
	}, logger)

	edge := &edgeHandler{handler: handler}
	lambda.Start(edge.HandleRequest)
}
