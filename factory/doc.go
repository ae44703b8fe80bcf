// Package factory creates filedrop channel implementations.
//
// The factory hides whether a channel is backed by the TCP relay client in
// package real or by the in-memory hub in package testing, so callers such as
// the CLI and the filedrop facade never depend on a concrete implementation.
//
// # Configuration
//
// Defaults can be overridden with environment variables:
//   - FILEDROP_USE_SIMULATION: "true" or "false" to enable simulation mode
//   - FILEDROP_WRITE_TIMEOUT: write timeout in milliseconds (100 to 600000)
//   - FILEDROP_SEGMENT_SIZE: progress segment size in bytes (512 to 4 MiB)
//
// Invalid or out-of-range values are logged and ignored.
//
// # Usage
//
//	f := factory.NewChannelFactory()
//	f.SetRelayAddress("relay.example.com:7420")
//	ch, err := f.CreateChannel(ctx, "alice")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer ch.Close()
//
// Simulated channels created by the same factory share one hub:
//
//	f.SwitchToSimulation()
//	alice, _ := f.CreateChannel(ctx, "alice")
//	bob, _ := f.CreateChannel(ctx, "bob")
//
// For isolated tests, CreateSimulationForTesting returns a fresh hub:
//
//	hub := f.CreateSimulationForTesting(factory.WithSegmentSize(512))
//	ch := hub.Join("alice")
package factory
