package validation

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/lorrc/backoffice-realtime/internal/core/errors"
)

func TestValidator(t *testing.T) {
	v := NewValidator().
		Required("productId", " ").
		Identifier("variantId", "V 1").
		MinInt64("price", -1, 0).
		OneOf("entityType", "coupon", []string{"product", "voucher"}).
		MaxItems("patterns", 3, 2)

	require.True(t, v.HasErrors())
	errs := v.Errors().Errors
	assert.Len(t, errs, 5)
	assert.Contains(t, errs["price"], "Must be at least 0")

	assert.NoError(t, NewValidator().Required("a", "x").Identifier("b", "product:P1").Err())
}

func TestDecodeAndValidate(t *testing.T) {
	type body struct {
		Price int64 `json:"price"`
	}

	t.Run("decodes", func(t *testing.T) {
		r := httptest.NewRequest("PUT", "/", strings.NewReader(`{"price":120}`))
		got, err := DecodeAndValidate[body](r)
		require.NoError(t, err)
		assert.Equal(t, int64(120), got.Price)
	})

	for name, payload := range map[string]string{
		"empty":         "",
		"malformed":     "{",
		"unknown field": `{"price":1,"discount":2}`,
	} {
		t.Run(name, func(t *testing.T) {
			r := httptest.NewRequest("PUT", "/", strings.NewReader(payload))
			_, err := DecodeAndValidate[body](r)

			var appErr *apperrors.AppError
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, 400, appErr.StatusCode)
		})
	}
}
