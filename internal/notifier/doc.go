// Package notifier renders new-record messages and delivers them to every
// configured backend (ServerChan, shoutrrr URLs, Telegram, MQTT, console).
//
// Service is the fan-out: one rate-limited, time-bounded call per backend,
// failures joined. It never retries; the watcher decides what a failure means.
package notifier
