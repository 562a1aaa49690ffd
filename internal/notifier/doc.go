// Package notifier delivers owner-facing messages (match notifications,
// digests, command replies) through the transport.
//
// Sends are awaited: callers learn whether the message went out. A shared
// token bucket keeps the bot under Telegram's global send rate, a flood
// signal is retried after the server-provided wait, and recipients that
// blocked the bot surface as ErrUndeliverable. Lifecycle events are published
// on the event bus.
package notifier
