package process

import "j5.nz/beamrt/internal/term"

// Mailbox is a process's message queue together with the "current
// message" scan cursor a receive loop advances while trying clauses
// against successive messages (loop_rec/loop_rec_end/remove_message).
type Mailbox struct {
	messages []term.Term
	cursor   int
}

// Enqueue appends msg to the tail of the mailbox. Messages from the same
// sender are always enqueued in send order; it
// is the caller's responsibility to preserve that by not reordering
// deliveries.
func (m *Mailbox) Enqueue(msg term.Term) {
	m.messages = append(m.messages, msg)
}

// Peek returns the message currently under the scan cursor without
// removing it. ok is false once the cursor has scanned past every
// message currently queued.
func (m *Mailbox) Peek() (msg term.Term, ok bool) {
	if m.cursor >= len(m.messages) {
		return 0, false
	}
	return m.messages[m.cursor], true
}

// Advance moves the scan cursor to the next message, for loop_rec_end
// after the current message failed to match any receive clause.
func (m *Mailbox) Advance() {
	m.cursor++
}

// RemoveCurrent takes the message under the scan cursor out of the
// mailbox, preserving the order of every other message, and resets the
// cursor to the head so the next receive starts scanning from the
// beginning.
func (m *Mailbox) RemoveCurrent() term.Term {
	msg := m.messages[m.cursor]
	m.messages = append(m.messages[:m.cursor], m.messages[m.cursor+1:]...)
	m.cursor = 0
	return msg
}

// ResetCursor rewinds the scan cursor to the head, for a fresh receive
// statement that should consider every queued message again.
func (m *Mailbox) ResetCursor() {
	m.cursor = 0
}

// Len reports how many messages are currently queued.
func (m *Mailbox) Len() int { return len(m.messages) }
