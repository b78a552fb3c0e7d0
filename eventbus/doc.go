// Package eventbus provides the Kafka implementation of
// authcore.EventPublisher. Lifecycle events (user.logged-in,
// user.logged-out, user.registered) are JSON-encoded and keyed by event
// type so consumers see per-type ordering.
package eventbus
