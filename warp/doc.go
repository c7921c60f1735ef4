// Package warp keeps one structured value in sync between two peers.
//
// A host starts a session without a target and shares its LocalID (or a
// Link) out of band; a client starts with that identity as its target.
// On connect the host sends its current value, after which either side may
// Submit and the last write wins.
//
// Values cross the wire as JSON, so a receiver sees whole numbers as int64
// and every other number as float64 whatever Go type the sender used. A
// host that submits {"count": 0} reads back its own int while the client
// reads int64(0); compare with Equal rather than ==.
//
//	peer := warp.NewTCPPeer(warp.DefaultTCPConfig())
//	sess, err := warp.Start(ctx, peer, map[string]any{"count": int64(0)}, warp.Options[map[string]any]{})
//	if err != nil {
//		return err
//	}
//	defer sess.Close()
package warp
