package mqtt

import (
	"fmt"

	mqtt "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"
)

// NewBroker creates an embedded broker accepting any client on address, with hook installed.
// The caller starts it with Serve and stops it with Close.
func NewBroker(address string, hook *ReadingHook) (*mqtt.Server, error) {
	server := mqtt.New(&mqtt.Options{InlineClient: true})

	if err := server.AddHook(new(auth.AllowHook), nil); err != nil {
		return nil, fmt.Errorf("failed to add auth hook: %w", err)
	}
	if err := server.AddHook(hook, nil); err != nil {
		return nil, fmt.Errorf("failed to add reading hook: %w", err)
	}

	if address != "" {
		tcp := listeners.NewTCP(listeners.Config{
			ID:      "t1",
			Address: address,
		})
		if err := server.AddListener(tcp); err != nil {
			return nil, fmt.Errorf("failed to add TCP listener: %w", err)
		}
	}

	return server, nil
}
