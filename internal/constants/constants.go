package constants

import "time"

// PollInterval is how often the async generation poller queries job status.
const PollInterval = 5 * time.Second

// PollMaxAttempts bounds the poller. 30 attempts at PollInterval is 2.5 minutes.
const PollMaxAttempts = 30

// TooltipDuration is how long a background notification stays visible.
const TooltipDuration = 5 * time.Second

// StreamErrorMessage prefixes the synthetic assistant message shown when a
// generation fails.
const StreamErrorMessage = "Sorry, I couldn't finish that reply. Please try again."

// ContentTimeoutMessage is shown when async content generation exceeds the poll budget.
const ContentTimeoutMessage = "Content is taking longer than expected to generate. Try reloading in a moment."

// ContentFailedMessage is shown when the generation job reports failure.
const ContentFailedMessage = "Content generation failed. Try reloading later."

// MinEventBusBufferSize is the minimum buffer per subscriber channel.
const MinEventBusBufferSize = 64

// EventBusPublishTimeout is the per-subscriber timeout for critical events.
const EventBusPublishTimeout = 200 * time.Millisecond

// StreamDeltaBuffer sizes the per-generation delta channel.
const StreamDeltaBuffer = 32

// RetryMarkerPrefix namespaces smart-resume markers in the KV store.
const RetryMarkerPrefix = "resume:"

// RetryMarkerAttempted is the stored value of a consumed resume marker.
const RetryMarkerAttempted = "attempted"

// LastSeenPrefix namespaces notification suppression entries in the KV store.
const LastSeenPrefix = "notify:last_seen:"

// HistoryRequestTimeout caps a single history fetch.
const HistoryRequestTimeout = 30 * time.Second

// ContentRequestTimeout caps the first read of an async content item.
const ContentRequestTimeout = 30 * time.Second

// MarkReadTimeout caps a single mark-read call.
const MarkReadTimeout = 10 * time.Second

// SessionIdleTimeout is how long the client may be closed before the next
// start counts as a new session and retry markers are dropped.
const SessionIdleTimeout = 30 * time.Minute
