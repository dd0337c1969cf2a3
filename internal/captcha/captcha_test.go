package captcha

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"hwtrack-backend/internal/components/telemetry"

	"github.com/stretchr/testify/require"
)

func fixed(text string, err error) Recognizer {
	return RecognizerFunc(func(context.Context, []byte) (string, error) {
		return text, err
	})
}

func TestEvaluateArithmetic(t *testing.T) {
	cases := []struct {
		input  string
		expect string
		ok     bool
	}{
		{input: "5X8=", expect: "40", ok: true},
		{input: "5x8=?", expect: "40", ok: true},
		{input: "12 - 3 =", expect: "9", ok: true},
		{input: "7+6=", expect: "13", ok: true},
		{input: "9÷3=", expect: "3", ok: true},
		{input: "9/0=", ok: false},
		{input: "ab3d", ok: false},
		{input: "A=B", ok: false},
		{input: "1+2+3=", ok: false},
		{input: "9999X9999=", expect: "99980001", ok: true},
		{input: "99999999999X99999999999=", ok: false},
	}
	for _, test := range cases {
		answer, ok := EvaluateArithmetic(test.input)
		require.Equal(t, test.ok, ok, test.input)
		require.Equal(t, test.expect, answer, test.input)
	}
}

func TestSolverPrimary(t *testing.T) {
	solver := NewSolver(fixed(" ab3d ", nil), fixed("zzzz", nil), &telemetry.MemoryAPI{})
	require.Equal(t, Outcome{Source: SourcePrimary, Text: "ab3d"}, solver.Solve(context.Background(), []byte{1}))
}

func TestSolverArithmetic(t *testing.T) {
	solver := NewSolver(fixed("5X8=", nil), nil, &telemetry.MemoryAPI{})
	require.Equal(t, Outcome{Source: SourcePrimary, Text: "40"}, solver.Solve(context.Background(), []byte{1}))
}

func TestSolverFallback(t *testing.T) {
	mem := &telemetry.MemoryAPI{}
	solver := NewSolver(fixed("", errors.New("service down")), fixed("x-7 q!", nil), mem)

	out := solver.Solve(context.Background(), []byte{1})
	require.Equal(t, Outcome{Source: SourceFallback, Text: "x7q"}, out)
	require.Len(t, mem.Reports("warning"), 1)
}

func TestSolverEmpty(t *testing.T) {
	calls := 0
	counting := RecognizerFunc(func(context.Context, []byte) (string, error) {
		calls++
		return "  ", nil
	})
	solver := NewSolver(counting, fixed("***", nil), &telemetry.MemoryAPI{})

	out := solver.Solve(context.Background(), []byte{1})
	require.True(t, out.Empty())
	require.Equal(t, SourceNone, out.Source)
	require.Equal(t, 1, calls)
}

func TestOcrClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/classification", r.URL.Path)

		var req ocrRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		image, err := base64.StdEncoding.DecodeString(req.Image)
		require.NoError(t, err)
		require.Equal(t, []byte("png"), image)
		require.Equal(t, "0123456789", req.Charset)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"result": " 4821 "}`))
	}))
	defer srv.Close()

	client := NewOcrClient(OcrOptions{BaseURL: srv.URL + "/", Charset: "0123456789"}, &telemetry.MemoryAPI{})
	text, err := client.Recognize(context.Background(), []byte("png"))
	require.NoError(t, err)
	require.Equal(t, "4821", text)

	_, err = client.Recognize(context.Background(), nil)
	require.Error(t, err)
}

func TestOcrClientServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error": "model not loaded"}`))
	}))
	defer srv.Close()

	mem := &telemetry.MemoryAPI{}
	client := NewOcrClient(OcrOptions{BaseURL: srv.URL}, mem)
	_, err := client.Recognize(context.Background(), []byte("png"))
	require.ErrorContains(t, err, "model not loaded")
	require.NotEmpty(t, mem.Reports("broken"))
}
