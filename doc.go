// Package filedrop broadcasts files to every participant of a shared channel.
//
// A channel is a room hosted by a relay (see package transport). Each
// participant joins under a display name; a file dropped into the room is
// announced by name and then sent as one zstd-compressed frame to everyone
// present, including the sender itself.
//
// # Getting Started
//
//	options := filedrop.NewOptions()
//	options.DisplayName = "alice"
//	options.RelayAddress = "relay.example.com:7420"
//
//	fd, err := filedrop.New(ctx, options)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer fd.Close()
//
//	fd.OnFileReceived(func(id interfaces.PeerID, sender, name string, data []byte) {
//	    path, err := fd.Save("inbox", id)
//	    ...
//	})
//
//	if err := fd.SendFile("report.pdf"); err != nil {
//	    log.Fatal(err)
//	}
//	fd.Wait(ctx)
//
// # Core Types
//
//   - [FileDrop]: joins a channel and wires it to the peer registry and the
//     transfer coordinator
//   - [Options]: configuration for New
//
// The building blocks live in their own packages: file (transfer
// coordinator), peer (display names), transport (frame codec and relay),
// compression (zstd payloads), factory (channel creation) and history
// (received-file log).
//
// # Sending
//
// Only one send runs at a time; Send returns file.ErrBusy otherwise. Every
// accepted send ends with exactly one SendCompleted callback reporting
// completed, cancelled or failed. CancelSend stops a send that has not yet
// started broadcasting its data.
//
// # Receiving
//
// Each sender has at most one inbound transfer. A new name from the same
// sender replaces the previous transfer. When a sender leaves, its transfer is
// dropped and OnTransferCancelled fires. When the local connection is lost,
// every transfer is dropped and the peer list is cleared.
//
// # Testing
//
// Set Options.Channel to a channel from package testing to run without a
// relay:
//
//	hub := factory.NewChannelFactory().CreateSimulationForTesting()
//	opts := filedrop.NewOptions()
//	opts.Channel = hub.Join("alice")
//	fd, _ := filedrop.New(ctx, opts)
package filedrop
