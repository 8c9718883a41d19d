package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/drawduel/clipscore/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// constModel answers every drawing with the same logit.
type constModel struct {
	logit float32
	err   error
}

func (m constModel) Logit(context.Context, image.Image, string) (float32, error) {
	return m.logit, m.err
}

// brightnessModel derives the logit from the top-left pixel so decode differences show up.
type brightnessModel struct{}

func (brightnessModel) Logit(_ context.Context, img image.Image, topic string) (float32, error) {
	r, _, _, _ := img.At(img.Bounds().Min.X, img.Bounds().Min.Y).RGBA()
	return 15 + float32(r>>8)/16 + float32(len(topic)), nil
}

type stubRater struct {
	res      *service.Result
	err      error
	readyErr error
	topic    string
	image    string
}

func (s *stubRater) Rate(_ context.Context, topic, image string) (*service.Result, error) {
	s.topic, s.image = topic, image
	return s.res, s.err
}

func (s *stubRater) Ready(context.Context) error { return s.readyErr }

func drawing(t *testing.T) string {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 16, 16))
	for i := 0; i < 16; i++ {
		img.Set(i, i, color.NRGBA{R: 200, A: 255})
	}
	img.Set(0, 0, color.NRGBA{R: 128, G: 10, B: 10, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

func newTestRouter(r Rater, token string) *gin.Engine {
	return NewRouter(NewHandler(r, "test", 1<<20, zap.NewNop()), token, zap.NewNop())
}

func postRate(t *testing.T, router http.Handler, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if s, ok := body.(string); ok {
		reader = bytes.NewReader([]byte(s))
	} else {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req, _ := http.NewRequest("POST", "/rate", reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeScore(t *testing.T, w *httptest.ResponseRecorder) int {
	t.Helper()
	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp, 1, w.Body.String())
	score, ok := resp["score"].(float64)
	require.True(t, ok, w.Body.String())
	return int(score)
}

func TestIndex(t *testing.T) {
	router := newTestRouter(&stubRater{}, "")

	req, _ := http.NewRequest("GET", "/", http.NoBody)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Body.String())
	assert.Contains(t, w.Header().Get("Content-Type"), "text/plain")
}

func TestRate(t *testing.T) {
	img := drawing(t)

	t.Run("returns the integer score", func(t *testing.T) {
		router := newTestRouter(service.NewRater(constModel{logit: 27.9}, nil), "")

		w := postRate(t, router, RateRequest{Topic: "Cat", Image: img})

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, 77, decodeScore(t, w))
	})

	t.Run("score is clamped", func(t *testing.T) {
		low := postRate(t, newTestRouter(service.NewRater(constModel{logit: 3}, nil), ""), RateRequest{Topic: "Cat", Image: img})
		high := postRate(t, newTestRouter(service.NewRater(constModel{logit: 90}, nil), ""), RateRequest{Topic: "Cat", Image: img})

		assert.Equal(t, 0, decodeScore(t, low))
		assert.Equal(t, 100, decodeScore(t, high))
	})

	t.Run("data url and bare base64 score the same", func(t *testing.T) {
		router := newTestRouter(service.NewRater(brightnessModel{}, nil), "")

		bare := postRate(t, router, RateRequest{Topic: "Apple", Image: img})
		prefixed := postRate(t, router, RateRequest{Topic: "Apple", Image: "data:image/png;base64," + img})

		require.Equal(t, http.StatusOK, bare.Code)
		require.Equal(t, http.StatusOK, prefixed.Code)
		assert.Equal(t, decodeScore(t, bare), decodeScore(t, prefixed))
		assert.Greater(t, decodeScore(t, bare), 0)
	})

	t.Run("missing fields default to empty strings", func(t *testing.T) {
		stub := &stubRater{res: &service.Result{Score: 12}}
		router := newTestRouter(stub, "")

		w := postRate(t, router, `{}`)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, 12, decodeScore(t, w))
		assert.Equal(t, "", stub.topic)
		assert.Equal(t, "", stub.image)
	})

	t.Run("malformed base64 is rejected", func(t *testing.T) {
		router := newTestRouter(service.NewRater(constModel{logit: 30}, nil), "")

		w := postRate(t, router, RateRequest{Topic: "Sun", Image: "data:image/png;base64,@@@@"})

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "invalid image")
	})

	t.Run("bytes that are not an image are rejected", func(t *testing.T) {
		router := newTestRouter(service.NewRater(constModel{logit: 30}, nil), "")

		w := postRate(t, router, RateRequest{Topic: "Sun", Image: base64.StdEncoding.EncodeToString([]byte("plain text"))})

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("malformed json", func(t *testing.T) {
		router := newTestRouter(&stubRater{}, "")

		w := postRate(t, router, `{"topic":`)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "invalid request body")
	})

	t.Run("body too large", func(t *testing.T) {
		router := NewRouter(NewHandler(&stubRater{}, "test", 64, zap.NewNop()), "", zap.NewNop())

		w := postRate(t, router, RateRequest{Topic: "Sun", Image: strings.Repeat("A", 256)})

		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	})

	t.Run("inference failure", func(t *testing.T) {
		router := newTestRouter(service.NewRater(constModel{err: errors.New("boom")}, nil), "")

		w := postRate(t, router, RateRequest{Topic: "Sun", Image: img})

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.NotContains(t, w.Body.String(), "boom")
	})

	t.Run("inference timeout", func(t *testing.T) {
		router := newTestRouter(&stubRater{err: context.DeadlineExceeded}, "")

		w := postRate(t, router, RateRequest{Topic: "Sun", Image: img})

		assert.Equal(t, http.StatusGatewayTimeout, w.Code)
	})
}

func TestRate_Auth(t *testing.T) {
	img := drawing(t)
	router := newTestRouter(service.NewRater(constModel{logit: 20}, nil), "s3cret")

	send := func(header string) *httptest.ResponseRecorder {
		body, _ := json.Marshal(RateRequest{Topic: "Car", Image: img})
		req, _ := http.NewRequest("POST", "/rate", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusUnauthorized, send("").Code)
	assert.Equal(t, http.StatusUnauthorized, send("Bearer wrong").Code)
	assert.Equal(t, http.StatusUnauthorized, send("s3cret").Code)
	assert.Equal(t, http.StatusOK, send("Bearer s3cret").Code)
}

func TestHealthAndReady(t *testing.T) {
	t.Run("health", func(t *testing.T) {
		router := newTestRouter(&stubRater{}, "")
		req, _ := http.NewRequest("GET", "/health", http.NoBody)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		var status HealthStatus
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
		assert.Equal(t, "healthy", status.Status)
		assert.Equal(t, "test", status.Backend)
	})

	t.Run("ready", func(t *testing.T) {
		router := newTestRouter(&stubRater{}, "")
		req, _ := http.NewRequest("GET", "/ready", http.NoBody)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("not ready", func(t *testing.T) {
		router := newTestRouter(&stubRater{readyErr: errors.New("no sessions")}, "")
		req, _ := http.NewRequest("GET", "/ready", http.NoBody)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Contains(t, w.Body.String(), "no sessions")
	})

	t.Run("metrics", func(t *testing.T) {
		router := newTestRouter(&stubRater{}, "")
		req, _ := http.NewRequest("GET", "/metrics", http.NoBody)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
	})
}
