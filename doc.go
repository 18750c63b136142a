// Package binaryrpc provides a session-aware, reliability-tiered RPC
// framework over WebSocket.
//
// Three subsystems make up the core: a reliable-delivery state machine
// (QoS-0 fire-and-forget, QoS-1 at-least-once, QoS-2 exactly-once), a
// session manager that rebinds a stable logical session across reconnects,
// and a request dispatch pipeline (framing, middleware, RPC registry,
// worker pool).
//
// # Quick start
//
//	app := binaryrpc.New()
//	app.RegisterRPC("echo", func(payload []byte, ctx *rpcregistry.Context) {
//	    ctx.Reply(payload)
//	})
//	if err := app.Run(context.Background(), ":8080"); err != nil {
//	    log.Fatal(err)
//	}
//
// # Protocol format
//
// Every frame on the wire carries a 9-byte header (1-byte type, 8-byte
// big-endian id) followed by an opaque payload. DATA frames carry a
// protocol-encoded ParsedRequest (SimpleText or MsgPack, or a
// user-supplied Protocol implementation); ACK/PREPARE/PREPARE_ACK/COMMIT/
// COMPLETE frames drive the QoS-1/QoS-2 state machines and carry no
// payload.
//
// # Reliability tiers
//
//   - QoSNone: write and forget.
//   - QoSAtLeastOnce: retried until ACK, deduplicated on the receiving side
//     by payload hash within a TTL window.
//   - QoSExactlyOnce: a four-way PREPARE/PREPARE_ACK/COMMIT/COMPLETE
//     handshake guarantees exactly-once delivery end to end.
package binaryrpc
