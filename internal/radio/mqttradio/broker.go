package mqttradio

import (
	"fmt"

	mochi "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"
)

// StartBroker runs an in-process broker accepting any client on address. It
// lets a gateway act as the air for its own network.
func StartBroker(address string) (*mochi.Server, error) {
	server := mochi.New(nil)

	if err := server.AddHook(&auth.AllowHook{}, nil); err != nil {
		return nil, fmt.Errorf("adding auth hook: %w", err)
	}

	if err := server.AddListener(listeners.NewTCP(listeners.Config{
		ID:      "air",
		Type:    "tcp",
		Address: address,
	})); err != nil {
		return nil, fmt.Errorf("adding listener on %s: %w", address, err)
	}

	if err := server.Serve(); err != nil {
		return nil, fmt.Errorf("starting broker: %w", err)
	}

	return server, nil
}
