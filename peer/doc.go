// Package peer tracks the participants of a filedrop channel.
//
// The Registry is a pure membership map keyed by channel-assigned peer ids. It
// is fed by join and leave events and consulted whenever a display name is
// needed:
//
//	reg := peer.NewRegistry()
//	reg.SetSelf(ch.SelfID(), ch.SelfName())
//	reg.Add(7, "bob")
//
//	reg.Lookup(7)  // "bob"
//	reg.Lookup(99) // "<Unknown>"
//	reg.Label(ch.SelfID()) // "alice (You)"
//
// Lookup never fails: ids that were never registered, or that already left,
// resolve to UnknownName so a label can always be rendered.
//
// For reproducible JoinedAt values in tests, use NewRegistryWithTimeProvider.
package peer
