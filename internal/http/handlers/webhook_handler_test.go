package handlers

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func signBody(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestWebhookHandler_MissingSignature(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handler := NewWebhookHandler(nil, nil, nil, "webhook-secret")
	r.POST("/webhooks/provider", handler.HandleProviderEvent)

	req, _ := http.NewRequest("POST", "/webhooks/provider", bytes.NewReader([]byte(`{}`)))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestWebhookHandler_WrongSignature(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handler := NewWebhookHandler(nil, nil, nil, "webhook-secret")
	r.POST("/webhooks/provider", handler.HandleProviderEvent)

	body := []byte(`{"event":"payment.confirmed"}`)
	req, _ := http.NewRequest("POST", "/webhooks/provider", bytes.NewReader(body))
	req.Header.Set("X-Provider-Signature", signBody("other-secret", body))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestWebhookHandler_UnknownEventAcknowledged(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handler := NewWebhookHandler(nil, nil, nil, "webhook-secret")
	r.POST("/webhooks/provider", handler.HandleProviderEvent)

	body := []byte(`{"event":"payment.pending"}`)
	req, _ := http.NewRequest("POST", "/webhooks/provider", bytes.NewReader(body))
	req.Header.Set("X-Provider-Signature", signBody("webhook-secret", body))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ignored")
}

func TestWebhookHandler_MalformedPayload(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handler := NewWebhookHandler(nil, nil, nil, "webhook-secret")
	r.POST("/webhooks/provider", handler.HandleProviderEvent)

	body := []byte(`{not-json`)
	req, _ := http.NewRequest("POST", "/webhooks/provider", bytes.NewReader(body))
	req.Header.Set("X-Provider-Signature", signBody("webhook-secret", body))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
