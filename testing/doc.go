// Package testing provides an in-memory channel for deterministic testing of
// filedrop.
//
// # Overview
//
// A SimulatedHub is a multi-user room that lives entirely in memory. Each call
// to Join returns a SimulatedChannel implementing interfaces.ProgressChannel.
// Frames broadcast by one member are handed synchronously to every other
// member's receive handler, and joins and leaves are announced the same way.
//
// # Simulation vs Real Implementation
//
//   - Simulation (this package): frames are delivered in-memory and recorded
//     in a delivery log. Used for unit and integration testing.
//
//   - Real (real package): frames travel through a transport.RelayServer over
//     TCP. Used for actual file drops.
//
// Both conform to interfaces.IChannel and are selected by the factory package.
//
// # Usage
//
//	hub := testing.NewSimulatedHub(nil)
//	alice := hub.Join("alice")
//	bob := hub.Join("bob")
//
//	bob.OnReceive(func(sender interfaces.PeerID, frame []byte) {
//	    // sender == alice.SelfID()
//	})
//	_ = alice.Broadcast([]byte{0x00, 'a'})
//
// # Failure Injection
//
// SetBroadcastError makes a member's broadcasts fail, and Disconnect drops a
// member as if its connection broke, firing its disconnect handler.
//
// # Delivery Logs
//
// Each DeliveryRecord holds the sender, the recipient, the frame size, a
// timestamp and whether a receive handler accepted the frame. Use
// GetDeliveryLog to inspect it and ClearDeliveryLog to reset between cases.
//
// # Thread Safety
//
// All methods are safe for concurrent use. Handlers are invoked without any
// hub or channel lock held, so they may call back into the hub.
package testing
