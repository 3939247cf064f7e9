package realtime

import "strings"

// userUtterance accumulates the transcription of the current user utterance.
type userUtterance struct {
	b strings.Builder
}

func (u *userUtterance) append(s string) string {
	u.b.WriteString(s)
	return u.b.String()
}

// finish returns the final text and resets. The provider's completed
// transcript wins over the accumulated deltas.
func (u *userUtterance) finish(transcript string) string {
	text := strings.TrimSpace(transcript)
	if text == "" {
		text = strings.TrimSpace(u.b.String())
	}
	u.b.Reset()
	return text
}

// assistantUtterance accumulates assistant output from either provider
// family. The first family to deliver a delta owns the utterance; the other
// family's events for the same utterance are dropped, so text that arrives
// twice is neither shown nor persisted twice.
type assistantUtterance struct {
	b      strings.Builder
	active bool
	family Family
	itemID string

	// finished remembers item ids already persisted so a late done from
	// the other family is a no-op.
	finished map[string]struct{}
}

// append adds a delta. It reports false when the delta belongs to another
// family or to an already finished item. A delta for a new item while
// another is still accumulating abandons the old one.
func (a *assistantUtterance) append(f Family, itemID, s string) (string, bool) {
	if a.isFinished(itemID) {
		return "", false
	}
	if a.superseded(itemID) {
		a.abandon()
	}
	if !a.active {
		a.active, a.family, a.itemID = true, f, itemID
	} else if f != a.family {
		return "", false
	}
	a.b.WriteString(s)
	return a.b.String(), true
}

// finish ends the utterance and returns the accumulated text. It returns ""
// when nothing was accumulated or the done event does not own the
// utterance; callers persist nothing in that case.
func (a *assistantUtterance) finish(f Family, itemID string) string {
	if a.isFinished(itemID) {
		return ""
	}
	if !a.active || f != a.family {
		return ""
	}
	if itemID != "" && a.itemID != "" && itemID != a.itemID {
		return ""
	}
	text := a.b.String()
	a.abandon()
	return text
}

// superseded reports whether a delta for itemID starts a new item while
// another one is still accumulating.
func (a *assistantUtterance) superseded(itemID string) bool {
	return a.active && itemID != "" && a.itemID != "" && itemID != a.itemID
}

// abandon ends the current item without returning its text. Later events
// for that item are dropped.
func (a *assistantUtterance) abandon() {
	if a.itemID != "" {
		if a.finished == nil {
			a.finished = make(map[string]struct{})
		}
		a.finished[a.itemID] = struct{}{}
	}
	a.reset()
}

func (a *assistantUtterance) current() string {
	return a.b.String()
}

func (a *assistantUtterance) reset() {
	a.b.Reset()
	a.active = false
	a.itemID = ""
}

func (a *assistantUtterance) isFinished(itemID string) bool {
	if itemID == "" {
		return false
	}
	_, ok := a.finished[itemID]
	return ok
}
