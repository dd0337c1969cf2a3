package telemetry

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	report_resty_request  = "resty.request"
	report_resty_response = "resty.response"
)

type exchangeKeyType struct{}

var exchangeKey exchangeKeyType

// exchange tags a request so its response can be matched to it in the logs.
type exchange struct {
	id      uint64
	started time.Time
}

func exchangeOf(ctx context.Context) (exchange, bool) {
	ex, ok := ctx.Value(exchangeKey).(exchange)
	return ex, ok
}

// InstrumentResty reports every request and response of the client at debug level
// and transport errors as broken.
func InstrumentResty(client *resty.Client, tel API) {
	var counter atomic.Uint64

	client.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		ex := exchange{id: counter.Add(1), started: time.Now()}
		req.SetContext(context.WithValue(req.Context(), exchangeKey, ex))
		tel.ReportDebug(report_resty_request, ex.id, req.Method, req.URL)
		return nil
	})

	client.OnAfterResponse(func(_ *resty.Client, res *resty.Response) error {
		ex, ok := exchangeOf(res.Request.Context())
		if !ok {
			return nil
		}
		tel.ReportDebug(report_resty_response, ex.id, time.Since(ex.started).String(), res.Status())
		return nil
	})

	client.OnError(func(req *resty.Request, err error) {
		var elapsed time.Duration
		if ex, ok := exchangeOf(req.Context()); ok {
			elapsed = time.Since(ex.started)
		}
		tel.ReportBroken(report_resty_response, err, req.Method, req.URL, elapsed)
	})
}
