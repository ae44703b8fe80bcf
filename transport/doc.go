// Package transport implements the wire formats used by filedrop and the TCP
// relay room that carries them.
//
// # Frames
//
// A filedrop frame is a single discriminator byte followed by the payload:
//
//	byte 0       : kind (0x00 = file name, 0x01 = file data)
//	bytes 1..N   : payload, no length prefix
//
// Frames are built and split with Encode and Decode:
//
//	frame := transport.Encode(transport.PacketFileName, []byte("a.txt"))
//
//	kind, payload, err := transport.Decode(frame)
//	if err != nil {
//	    // only an empty frame fails
//	}
//
// Unknown discriminators are returned as-is; PacketType.IsKnown reports
// whether the receiver understands them.
//
// # Relay Envelopes
//
// Relay clients and the relay server exchange length-prefixed envelopes:
//
//	[4-byte BE length][1-byte type][4-byte BE peer id][payload]
//
// A client opens with Hello carrying its display name and receives Welcome
// with its assigned peer id, followed by one Joined per existing member. Frame
// envelopes sent by a client are fanned out to every other member with the
// peer id replaced by the sender's id. Left announces a departure. Reads are
// bounded by MaxEnvelopeSize.
//
//	server, err := transport.NewRelayServer(":7420")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer server.Close()
//
// WriteEnvelopeSegmented splits a large envelope into fixed-size writes and
// reports each one, which lets clients show upload progress for a single frame.
//
// # Thread Safety
//
// RelayServer guards its member table with a sync.RWMutex and serialises
// writes per member, so frames and membership events for one client are never
// interleaved mid-envelope.
package transport
