package evidence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestObjectKey(t *testing.T) {
	at := time.Date(2026, 3, 1, 10, 0, 0, 5, time.FixedZone("IST", 19800))
	assert.Equal(t,
		"tickets/RH-20260301-ABC/detection-1772339400000000005.json",
		ObjectKey("RH-20260301-ABC", "detection", at),
	)
}
