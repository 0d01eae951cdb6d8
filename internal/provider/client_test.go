package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCapture_SendsIdempotencyKey(t *testing.T) {
	var gotKey, gotAuth string
	var gotPayload map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/captures", r.URL.Path)
		gotKey = r.Header.Get("Idempotency-Key")
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotPayload)
		_ = json.NewEncoder(w).Encode(CaptureResult{
			CaptureID: "cap-1",
			Amount:    45000,
			Status:    "captured",
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-key")
	result, err := client.Capture(context.Background(), "tx-42", 45000, "payment-1")

	assert.NoError(t, err)
	assert.Equal(t, "cap-1", result.CaptureID)
	assert.Equal(t, "captured", result.Status)
	assert.Equal(t, "payment-1", gotKey)
	assert.Equal(t, "Bearer test-key", gotAuth)
	assert.Equal(t, "tx-42", gotPayload["tx_id"])
	assert.Equal(t, float64(45000), gotPayload["amount"])
}

func TestRefund_ProviderError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(map[string]any{"error": "already refunded"})
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-key")
	_, err := client.Refund(context.Background(), "tx-42", 1000, "payment-2")

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "код ответа 409")
}

func TestGetTransaction_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/transactions/tx-42", r.URL.Path)
		_ = json.NewEncoder(w).Encode(TransactionStatus{
			TxID:   "tx-42",
			Status: "confirmed",
			Amount: 54000,
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, "")
	status, err := client.GetTransaction(context.Background(), "tx-42")

	assert.NoError(t, err)
	assert.Equal(t, "confirmed", status.Status)
	assert.Equal(t, float64(54000), status.Amount)
}

func TestClient_RequiresBaseURL(t *testing.T) {
	client := NewClient("", "key")

	_, err := client.Capture(context.Background(), "tx-1", 100, "k")
	assert.Error(t, err)

	_, err = client.Refund(context.Background(), "tx-1", 100, "k")
	assert.Error(t, err)
}
