package transports

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/drblury/opflow/transport"
)

func TestAllTransportsRegistered(t *testing.T) {
	assert.Equal(t,
		[]string{"aws", "channel", "kafka", "memory", "nats", "rabbitmq"},
		transport.DefaultRegistry.Names())
}
