package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"log"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeOmitsEmptyFields(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.FixedZone("WIB", 7*3600))
	out := encode(Fields{Service: "shop-api", OrderID: 42, Step: "checkout"}, now)

	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &m))
	assert.Equal(t, "shop-api", m["service"])
	assert.EqualValues(t, 42, m["order_id"])
	assert.Equal(t, "checkout", m["step"])
	assert.Equal(t, "2024-05-01T03:00:00Z", m["timestamp"])
	assert.NotContains(t, m, "user_id")
	assert.NotContains(t, m, "error")
}

func TestErrAttachesError(t *testing.T) {
	var buf bytes.Buffer
	prev, flags := log.Writer(), log.Flags()
	log.SetOutput(&buf)
	log.SetFlags(0)
	t.Cleanup(func() {
		log.SetOutput(prev)
		log.SetFlags(flags)
	})

	Err(Fields{Service: "relay", Status: "failed"}, errors.New("broker down"))

	var m map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &m))
	assert.Equal(t, "broker down", m["error"])
	assert.Equal(t, "failed", m["status"])
}
