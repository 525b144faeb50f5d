package core

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/xonecas/tutorline/internal/constants"
)

// Notifier decides when a backgrounded surface shows a transient alert
// for a new assistant reply. The last seen message id is persisted so a
// reload does not alert again for the same message.
type Notifier struct {
	mu sync.Mutex

	key      ThreadKey
	kv       KV
	duration time.Duration
	onChange func(visible bool)

	visible bool
	timer   *time.Timer
	// generation invalidates timers armed before the latest show/clear.
	generation uint64
}

// NewNotifier creates a notifier for one thread. onChange, when set, is
// called whenever tooltip visibility changes; it must not block.
func NewNotifier(key ThreadKey, kv KV, duration time.Duration, onChange func(visible bool)) *Notifier {
	if duration <= 0 {
		duration = constants.TooltipDuration
	}
	return &Notifier{
		key:      key,
		kv:       kv,
		duration: duration,
		onChange: onChange,
	}
}

func (n *Notifier) storageKey() string {
	return constants.LastSeenPrefix + n.key.String()
}

// LastSeen returns the persisted last seen message id.
func (n *Notifier) LastSeen() string {
	v, _, err := n.kv.Get(n.storageKey())
	if err != nil {
		log.Warn().Err(err).Str("thread", n.key.String()).Msg("read last seen failed")
		return ""
	}
	return v
}

const localSeenPrefix = "local:"

// seenID is the id persisted as last seen for m. Locally committed replies
// are keyed by content, because the server stamps its own copy with a
// different time.
func seenID(m Message) (string, bool) {
	if m.Local {
		return localSeenID(m), true
	}
	return m.Identity()
}

func localSeenID(m Message) string {
	name := string(m.Role) + "\x00" + m.Content
	return localSeenPrefix + uuid.NewSHA1(messageNamespace, []byte(name)).String()
}

// sameReply reports whether lastSeen was recorded for a local copy of m.
func sameReply(lastSeen string, m Message) bool {
	return strings.HasPrefix(lastSeen, localSeenPrefix) && !m.Local && lastSeen == localSeenID(m)
}

// Visible reports whether the tooltip is showing.
func (n *Notifier) Visible() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.visible
}

// Evaluate applies the notification rules to snap and reports whether a
// new alert was shown by this call.
func (n *Notifier) Evaluate(snap ThreadSnapshot, foreground bool) bool {
	if foreground {
		n.markSeen(snap)
		return false
	}

	if len(snap.Messages) == 0 || !snap.Unread {
		return false
	}
	latest := snap.Messages[len(snap.Messages)-1]
	if latest.Role != RoleAssistant || !latest.Committed() {
		return false
	}
	id, ok := seenID(latest)
	if !ok {
		// No stable identity: comparing anything else would re-alert on every reload.
		return false
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	last := n.LastSeen()
	if id == last {
		return false
	}
	if sameReply(last, latest) {
		// Server copy of a reply already alerted on.
		if err := n.kv.Set(n.storageKey(), id); err != nil {
			log.Warn().Err(err).Str("thread", n.key.String()).Msg("persist last seen failed")
		}
		return false
	}
	if err := n.kv.Set(n.storageKey(), id); err != nil {
		log.Warn().Err(err).Str("thread", n.key.String()).Msg("persist last seen failed")
	}
	n.showLocked()
	return true
}

// markSeen records the newest message as seen and hides any alert.
func (n *Notifier) markSeen(snap ThreadSnapshot) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if len(snap.Messages) > 0 {
		if id, ok := seenID(snap.Messages[len(snap.Messages)-1]); ok && id != n.LastSeen() {
			if err := n.kv.Set(n.storageKey(), id); err != nil {
				log.Warn().Err(err).Str("thread", n.key.String()).Msg("persist last seen failed")
			}
		}
	}
	n.hideLocked()
}

func (n *Notifier) showLocked() {
	n.generation++
	gen := n.generation
	if n.timer != nil {
		n.timer.Stop()
	}
	n.timer = time.AfterFunc(n.duration, func() {
		n.mu.Lock()
		if n.generation != gen {
			n.mu.Unlock()
			return
		}
		n.hideLocked()
		n.mu.Unlock()
	})
	n.setVisibleLocked(true)
}

func (n *Notifier) hideLocked() {
	n.generation++
	if n.timer != nil {
		n.timer.Stop()
		n.timer = nil
	}
	n.setVisibleLocked(false)
}

func (n *Notifier) setVisibleLocked(v bool) {
	if n.visible == v {
		return
	}
	n.visible = v
	if n.onChange != nil {
		n.onChange(v)
	}
}

// Stop cancels the pending auto-clear without changing persisted state.
func (n *Notifier) Stop() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.generation++
	if n.timer != nil {
		n.timer.Stop()
		n.timer = nil
	}
}
