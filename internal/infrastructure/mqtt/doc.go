// Package mqtt provides MQTT client connectivity for Garden Core.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) for offline detection
//   - The device topic grammar shared with controller firmware
//
// # Architecture
//
// MQTT is the sole transport between the backend and the garden controller
// fleet. Each device publishes under its own subtree and the gateway
// subscribes to the whole realm:
//
//	Controllers ↔ MQTT Broker ↔ Garden Core gateway
//
// # Security Considerations
//
//   - TLS is required for production deployments (cfg.Broker.TLS=true)
//   - Per-device credentials and grants are issued by the provisioning
//     manager; the broker auth plugin reads the same tables
//   - Message payloads are not encrypted beyond TLS transport
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	topics := mqtt.Topics{Realm: "garden"}
//	err = client.Subscribe(topics.All(), 1,
//	    func(topic string, payload []byte) error {
//	        log.Printf("Received: %s = %s", topic, payload)
//	        return nil
//	    })
package mqtt
