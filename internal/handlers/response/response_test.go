package response

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/VictorLirio/nimbus-api/internal/domain"
)

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, StatusFor(domain.ErrorCodeNotFound))
	assert.Equal(t, http.StatusConflict, StatusFor(domain.ErrorCodeConflict))
	assert.Equal(t, http.StatusUnprocessableEntity, StatusFor(domain.ErrorCodeInvalidState))
	assert.Equal(t, http.StatusBadRequest, StatusFor(domain.ErrorCodeValidation))
	assert.Equal(t, http.StatusPaymentRequired, StatusFor(domain.ErrorCodeProviderError))
	assert.Equal(t, http.StatusServiceUnavailable, StatusFor(domain.ErrorCodeProviderUnavailable))
	assert.Equal(t, http.StatusInternalServerError, StatusFor(domain.ErrorCodePersistence))
	assert.Equal(t, http.StatusInternalServerError, StatusFor(""))
}

func TestError_HidesInternalDetail(t *testing.T) {
	rec := httptest.NewRecorder()
	Error(rec, zap.NewNop(), errors.New("pq: connection refused to 10.0.0.3"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"code":"INTERNAL","message":"internal error"}`, rec.Body.String())
}

func TestError_CarriesDetails(t *testing.T) {
	rec := httptest.NewRecorder()
	Error(rec, zap.NewNop(), domain.NewSubscriptionNotFound("abc"))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"code":"NOT_FOUND","message":"subscription not found","details":{"subscription_id":"abc"}}`, rec.Body.String())
}

func TestJSON_EncodeFailure(t *testing.T) {
	rec := httptest.NewRecorder()
	JSON(rec, zap.NewNop(), http.StatusOK, map[string]interface{}{"bad": make(chan int)})

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"code":"INTERNAL","message":"internal error"}`, rec.Body.String())
}
