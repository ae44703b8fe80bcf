// Package real provides the production channel for filedrop: a TCP client of
// transport.RelayServer.
//
// This package implements interfaces.ProgressChannel over an actual network
// connection, as opposed to the in-memory hub in the testing package.
//
// # Connecting
//
//	ch, err := real.Connect(ctx, &interfaces.ChannelConfig{
//	    RelayAddress: "relay.example.net:7420",
//	    DisplayName:  "alice",
//	    WriteTimeout: 5000,
//	    SegmentSize:  32 * 1024,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer ch.Close()
//
// Connect retries the dial DialAttempts times, pausing 500ms, then 1s. Use
// ConnectWithSleeper to replace the pause in tests.
//
// # Broadcasting
//
// Frames are sent as relay envelopes written in SegmentSize pieces, each
// under a fresh WriteTimeout deadline. BroadcastWithProgress reports every
// piece, which is how senders display upload progress for a single large
// frame. A failed write drops the connection; the disconnect handler then
// fires and further broadcasts return ErrNotConnected.
//
// # Events
//
// Receive, join and leave handlers run on the channel's read goroutine.
// Members announced before OnPeerJoined is registered are replayed to the new
// handler. Handlers must not call Close.
package real
