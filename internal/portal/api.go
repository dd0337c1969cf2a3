package portal

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"hwtrack-backend/internal/assert"
	"hwtrack-backend/internal/components/telemetry"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/time/rate"
)

var tracer = otel.Tracer("hwtrack.internal.portal")

const report_api_call = "api.call"

// xhrScript issues a GET from inside the page so the browser attaches the
// session cookies. It resolves to {status, text, error}.
const xhrScript = `new Promise((resolve) => {
	const args = %s;
	const xhr = new XMLHttpRequest();
	xhr.open("GET", args.url, true);
	for (const [key, value] of Object.entries(args.headers)) {
		try { xhr.setRequestHeader(key, value); } catch (e) {}
	}
	xhr.onload = () => resolve({status: xhr.status, text: xhr.responseText, error: ""});
	xhr.onerror = () => resolve({status: 0, text: "", error: "network error"});
	xhr.ontimeout = () => resolve({status: 0, text: "", error: "timeout"});
	xhr.timeout = args.timeout;
	xhr.send();
})`

type xhrArgs struct {
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers"`
	Timeout int64             `json:"timeout"`
}

type xhrResult struct {
	Status int    `json:"status"`
	Text   string `json:"text"`
	Error  string `json:"error"`
}

type errorEnvelope struct {
	Status json.RawMessage `json:"STATUS"`
	ErrMsg string          `json:"ERRMSG"`
}

// isErrorStatus accepts both "1" and 1.
func (e errorEnvelope) isErrorStatus() bool {
	return strings.Trim(string(e.Status), `"`) == "1"
}

// DefaultRequestTimeout bounds an in-page request when no timeout is configured.
const DefaultRequestTimeout = 30 * time.Second

type APIOptions struct {
	// RequestsPerSecond bounds outbound calls, defaults to 2.
	RequestsPerSecond float64
	// TimeoutMillis bounds each XHR, 0 means DefaultRequestTimeout.
	TimeoutMillis int64
}

// API performs authenticated calls against the internal endpoints from inside the
// session's page.
type API struct {
	session *Session
	limiter *rate.Limiter
	timeout int64
	tel     telemetry.API
}

func NewAPI(session *Session, opts APIOptions, tel telemetry.API) API {
	assert.NotNil(session)
	assert.NotNil(tel)

	rps := opts.RequestsPerSecond
	if rps <= 0 {
		rps = 2
	}
	timeout := opts.TimeoutMillis
	if timeout <= 0 {
		timeout = DefaultRequestTimeout.Milliseconds()
	}
	return API{
		session: session,
		limiter: rate.NewLimiter(rate.Limit(rps), 2),
		timeout: timeout,
		tel:     telemetry.NewScopedAPI("portal", tel),
	}
}

func (a API) headers(token, referer string) map[string]string {
	headers := map[string]string{
		"X-Requested-With": "XMLHttpRequest",
		"Accept":           "application/json, text/javascript, */*; q=0.01",
		"Content-Type":     "application/x-www-form-urlencoded; charset=UTF-8",
		TokenKey:           token,
	}
	if referer != "" {
		headers["Referer"] = referer
	}
	return headers
}

// Call refreshes the session token and GETs the url inside the page, returning the
// JSON payload.
func (a API) Call(ctx context.Context, url, referer string) (json.RawMessage, error) {
	ctx, span := tracer.Start(ctx, "api:Call")
	defer span.End()
	span.SetAttributes(attribute.String("url", url))

	payload, err := a.call(ctx, url, referer)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "call failed")
		a.tel.ReportDebug(report_api_call, url, err)
		return nil, err
	}
	return payload, nil
}

func (a API) call(ctx context.Context, url, referer string) (json.RawMessage, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNetwork, err)
	}

	token := a.session.Tracker.Refresh(ctx)
	if token == "" {
		a.tel.ReportWarning(report_api_call, ErrSessionTokenUnavailable)
	}

	args, err := json.Marshal(xhrArgs{
		URL:     url,
		Headers: a.headers(token, referer),
		Timeout: a.timeout,
	})
	if err != nil {
		return nil, err
	}

	// the XHR timeout only fires while the page is responsive
	timeout := time.Duration(a.timeout) * time.Millisecond
	evalCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var result xhrResult
	err = a.session.driver.Evaluate(evalCtx, fmt.Sprintf(xhrScript, args), &result)
	if err != nil && ctx.Err() == nil && evalCtx.Err() != nil {
		return nil, fmt.Errorf("%w: request to %s timed out after %s", ErrNetwork, url, timeout)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNetwork, err)
	}
	return decodeResult(result)
}

func decodeResult(result xhrResult) (json.RawMessage, error) {
	if result.Error != "" {
		return nil, fmt.Errorf("%w: %s", ErrNetwork, result.Error)
	}
	if result.Status != 200 {
		return nil, &HttpError{Status: result.Status, Body: truncate(result.Text, maxErrorBody)}
	}

	body := strings.TrimSpace(result.Text)
	if !json.Valid([]byte(body)) {
		return nil, fmt.Errorf("%w: %s", ErrMalformedResponse, truncate(body, maxErrorBody))
	}

	var envelope errorEnvelope
	if err := json.Unmarshal([]byte(body), &envelope); err == nil {
		if envelope.isErrorStatus() && envelope.ErrMsg != "" {
			return nil, &ApiError{Message: envelope.ErrMsg}
		}
	}
	return json.RawMessage(body), nil
}
