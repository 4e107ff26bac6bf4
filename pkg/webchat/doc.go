// Package webchat serves topic-based chat sessions over a single websocket per client.
//
// Ownership model:
//   - ConnectionRegistry owns live connections and creates/destroys each client's session.
//   - Dispatcher routes inbound frames; chat messages are queued per topic and answered by the Streamer.
//   - BackgroundTaskRunner publishes notification events on the bus; NotificationForwarder delivers
//     them to the originating client if it is still connected.
//
// Recommended setup:
//   - Build a Server with NewServer, passing RouterSettings and an agents.Catalog.
//   - Run it; /ws, /api/agents, /api/broadcast, /healthz and /metrics are mounted by the Router.
package webchat
