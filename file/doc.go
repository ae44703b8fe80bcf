// Package file coordinates file drops over a multi-user channel.
//
// A Coordinator sends one file at a time to every participant and tracks, per
// sender, the file currently being received from each peer.
//
// # Sending
//
// BeginSend broadcasts two frames: the UTF-8 file name, then the Zstandard
// compressed contents. It returns immediately; the outcome arrives through the
// SendCompleted callback.
//
//	coord := file.NewCoordinator(ch)
//	coord.OnProgress(func(current, total int) {
//	    fmt.Printf("\r%d/%d", current, total)
//	})
//	coord.OnSendCompleted(func(outcome file.Outcome, err error) {
//	    fmt.Println(outcome, err)
//	})
//	if err := coord.BeginSend("a.txt", data); errors.Is(err, file.ErrBusy) {
//	    // a previous send is still in flight
//	}
//
// CancelSend is honoured between the two frames. Once the data frame has been
// handed to the channel the send runs to completion.
//
// Every frame the coordinator broadcasts is also delivered to its own
// OnFrameReceived as coming from the local peer, so the sender's upload shows
// up in Transfers like any other.
//
// # Receiving
//
// Frames from the channel go to OnFrameReceived and departures to OnPeerLeft:
//
//	ch.OnReceive(func(sender interfaces.PeerID, frame []byte) {
//	    _ = coord.OnFrameReceived(sender, frame)
//	})
//	ch.OnPeerLeft(coord.OnPeerLeft)
//
// Per sender the transfer moves from announced (name received) to complete
// (data received). A new announcement replaces the previous one. Data without
// an announcement is dropped silently.
//
// # Progress
//
// Channels implementing interfaces.ProgressChannel report segment counts while
// the data frame is written. The coordinator forwards every
// DefaultProgressInterval-th segment and always finishes with (total, total).
// Other channels produce (0, 1) and (1, 1).
//
// # Saving
//
// SaveTo writes a complete transfer into a directory under the announced base
// name. ValidatePath rejects names with ".." components.
package file
