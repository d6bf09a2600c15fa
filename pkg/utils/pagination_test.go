package utils

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCursorRoundTrip(t *testing.T) {
	ts := time.Date(2025, 3, 14, 9, 26, 53, 589793000, time.UTC)
	id := uuid.New()

	cursor := EncodeCursor(ts, id)
	require.NotEmpty(t, cursor)

	gotTime, gotID, err := DecodeCursor(cursor)
	require.NoError(t, err)
	assert.True(t, ts.Equal(gotTime))
	assert.Equal(t, id, gotID)
}

func TestEncodeCursorZeroValues(t *testing.T) {
	assert.Empty(t, EncodeCursor(time.Time{}, uuid.New()), "zero time produces empty cursor")
	assert.Empty(t, EncodeCursor(time.Now(), uuid.Nil), "nil UUID produces empty cursor")
}

func TestDecodeCursorEmpty(t *testing.T) {
	gotTime, gotID, err := DecodeCursor("")
	require.NoError(t, err, "empty cursor means start from the beginning")
	assert.True(t, gotTime.IsZero())
	assert.Equal(t, uuid.Nil, gotID)
}

func TestDecodeCursorInvalid(t *testing.T) {
	_, _, err := DecodeCursor("%%%not-base64%%%")
	assert.Error(t, err)

	// Valid base64 but missing the separator.
	_, _, err = DecodeCursor(base64.URLEncoding.EncodeToString([]byte("123456789")))
	assert.Error(t, err)

	// Valid shape but garbage UUID.
	_, _, err = DecodeCursor(base64.URLEncoding.EncodeToString([]byte("123_not-a-uuid")))
	assert.Error(t, err)

	// Valid shape but garbage timestamp.
	_, _, err = DecodeCursor(base64.URLEncoding.EncodeToString([]byte("abc_" + uuid.NewString())))
	assert.Error(t, err)
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, 20, ClampLimit(0, 20, 100), "zero falls back to default")
	assert.Equal(t, 20, ClampLimit(-5, 20, 100), "negative falls back to default")
	assert.Equal(t, 100, ClampLimit(500, 20, 100), "capped at max")
	assert.Equal(t, 42, ClampLimit(42, 20, 100), "in-range passes through")
}
