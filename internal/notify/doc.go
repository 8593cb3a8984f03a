// Package notify sends operational status messages to a Telegram chat.
//
// Delivery is best effort: failures are logged and never propagate into
// the pipeline. A notifier built without credentials silently drops
// every message.
package notify
