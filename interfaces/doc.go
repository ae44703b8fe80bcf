// Package interfaces defines the messaging channel abstraction filedrop is
// built on.
//
// The channel is an external multi-user room: every participant has a
// channel-assigned [PeerID], frames broadcast by one participant reach all the
// others, and join/leave events announce membership changes. [IChannel] is the
// narrow contract the file transfer core consumes:
//
//	ch.OnReceive(func(sender interfaces.PeerID, frame []byte) {
//	    _ = coordinator.OnFrameReceived(sender, frame)
//	})
//	ch.OnPeerLeft(coordinator.OnPeerLeft)
//
//	if err := ch.Broadcast(frame); err != nil {
//	    log.Printf("broadcast failed: %v", err)
//	}
//
// Channels that write large frames in segments may also implement
// [ProgressChannel] so senders can display upload progress.
//
// # Implementations
//
//   - testing.SimulatedChannel: in-memory room for deterministic tests
//   - real.RelayChannel: TCP client for transport.RelayServer
//
// The factory package picks between them from a [ChannelConfig].
package interfaces
