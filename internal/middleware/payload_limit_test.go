package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLimitedRouter(maxBytes int64) *gin.Engine {
	gin.SetMode(gin.TestMode)
	logger := zerolog.Nop()

	router := gin.New()
	router.Use(PayloadLimitErrorHandler(logger))
	router.Use(PayloadLimit(maxBytes, logger))
	router.POST("/echo", func(c *gin.Context) {
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.Error(err)
			c.Abort()
			return
		}
		c.JSON(http.StatusOK, gin.H{"size": len(body)})
	})
	return router
}

func TestPayloadLimit_AllowsSmallBody(t *testing.T) {
	router := newLimitedRouter(64)

	req := httptest.NewRequest(http.MethodPost, "/echo", strings.NewReader("hello"))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestPayloadLimit_RejectsByContentLength(t *testing.T) {
	router := newLimitedRouter(8)

	body := bytes.Repeat([]byte("x"), 32)
	req := httptest.NewRequest(http.MethodPost, "/echo", bytes.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusRequestEntityTooLarge, w.Code)

	var resp PayloadLimitErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "PAYLOAD_TOO_LARGE", resp.Error)
	assert.Equal(t, int64(8), resp.MaxBytes)
}

func TestPayloadLimit_RejectsChunkedOverflow(t *testing.T) {
	router := newLimitedRouter(8)

	// No Content-Length: force the MaxBytesReader path.
	req := httptest.NewRequest(http.MethodPost, "/echo", strings.NewReader(strings.Repeat("y", 64)))
	req.ContentLength = -1
	req.TransferEncoding = []string{"chunked"}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestPayloadLimit_SkipsEmptyBody(t *testing.T) {
	router := newLimitedRouter(8)

	req := httptest.NewRequest(http.MethodPost, "/echo", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}
