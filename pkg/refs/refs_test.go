package refs

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReferences(t *testing.T) {
	assert.Regexp(t, `^DO-[0-9A-F]{8}$`, Order())
	assert.Regexp(t, `^PO-[0-9A-F]{8}$`, Payout())
	assert.NotEqual(t, Order(), Order())
}
