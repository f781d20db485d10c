package pagination

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEncodeDecodeCursorToken(t *testing.T) {
	createdAt := time.Date(2024, 3, 10, 23, 59, 59, 123456000, time.UTC)

	token := EncodeCursorToken(createdAt, "txn-42")
	assert.NotEmpty(t, token, "Token should not be empty")

	decodedAt, decodedID, err := DecodeCursorToken(token)
	assert.NoError(t, err, "Decoding should not return an error")
	assert.True(t, createdAt.Equal(decodedAt), "Created at should match after decode")
	assert.Equal(t, "txn-42", decodedID)

	// Non-UTC input is normalized.
	loc := time.FixedZone("UTC-5", -5*3600)
	local := createdAt.In(loc)
	decodedAt, _, err = DecodeCursorToken(EncodeCursorToken(local, "txn-42"))
	assert.NoError(t, err)
	assert.True(t, createdAt.Equal(decodedAt))
}

func TestDecodeCursorTokenError(t *testing.T) {
	_, _, err := DecodeCursorToken("this is not base64!")
	assert.Error(t, err, "Should return an error for invalid base64")
	assert.Contains(t, err.Error(), "base64 decode")

	missingSeparator := base64.URLEncoding.EncodeToString([]byte("2024-03-10T00:00:00Z"))
	_, _, err = DecodeCursorToken(missingSeparator)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "split")

	badDate := base64.URLEncoding.EncodeToString([]byte("notadate|txn-1"))
	_, _, err = DecodeCursorToken(badDate)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "created_at parse")
}
