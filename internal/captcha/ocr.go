package captcha

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"hwtrack-backend/internal/assert"
	"hwtrack-backend/internal/components/telemetry"
	libtelemetry "hwtrack-backend/lib/telemetry"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"
)

const report_ocr_recognize = "ocr.recognize"

type OcrOptions struct {
	// BaseURL of a ddddocr compatible service exposing POST /classification.
	BaseURL string
	// Charset optionally constrains the characters the service may return.
	Charset string
	Timeout time.Duration
}

type ocrRequest struct {
	Image   string `json:"image"`
	Charset string `json:"charset,omitempty"`
}

type ocrResponse struct {
	Result string `json:"result"`
	Error  string `json:"error"`
}

// OcrClient is a Recognizer backed by an HTTP OCR service.
type OcrClient struct {
	http    *resty.Client
	charset string
	tel     telemetry.API
}

func NewOcrClient(opts OcrOptions, tel telemetry.API) OcrClient {
	assert.NotEmptyStr(opts.BaseURL)
	assert.NotNil(tel)

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	client := resty.New()
	client.SetBaseURL(strings.TrimSuffix(opts.BaseURL, "/"))
	client.SetTimeout(timeout)
	client.SetHeader("Content-Type", "application/json")

	rateLimiter := rate.NewLimiter(5, 5)
	client.OnBeforeRequest(func(c *resty.Client, req *resty.Request) error {
		return rateLimiter.Wait(req.Context())
	})

	scoped := telemetry.NewScopedAPI("ocr", tel)
	telemetry.InstrumentResty(client, scoped)
	libtelemetry.TraceResty(client, "hwtrack.internal.captcha.ocr")

	return OcrClient{http: client, charset: opts.Charset, tel: scoped}
}

func (c OcrClient) Recognize(ctx context.Context, image []byte) (string, error) {
	if len(image) == 0 {
		return "", fmt.Errorf("recognize: empty image")
	}

	var out ocrResponse
	res, err := c.http.R().
		SetContext(ctx).
		SetBody(ocrRequest{
			Image:   base64.StdEncoding.EncodeToString(image),
			Charset: c.charset,
		}).
		SetResult(&out).
		SetError(&out).
		Post("/classification")
	if err != nil {
		c.tel.ReportBroken(report_ocr_recognize, err)
		return "", fmt.Errorf("recognize: %w", err)
	}
	if res.IsError() {
		err = fmt.Errorf("recognize: ocr service responded %s: %s", res.Status(), out.Error)
		c.tel.ReportBroken(report_ocr_recognize, err)
		return "", err
	}
	return strings.TrimSpace(out.Result), nil
}
