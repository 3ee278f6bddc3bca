package dispatch

import (
	"j5.nz/beamrt/internal/term"
)

// opSend delivers X1 to the process named by X0, depositing the message
// itself back into X0 (send/0's own return value is its message
// argument), and always waking the target via NotifyNewIncomingMessage
// whether or not it happens to be waiting.
func opSend(m *machine) (Result, error) {
	target := m.ctx.X[0]
	msg := m.ctx.X[1]

	if target.Tag() == term.TagLocalPid {
		pid := target.PidIndex()
		if dst, ok := m.host.Registry().Lookup(pid); ok {
			if err := dst.DeliverMessage(msg, m.heap); err != nil {
				return 0, err
			}
			m.host.Scheduler().NotifyNewIncomingMessage(pid)
		}
	} else if target.Tag() == term.TagAtom {
		if resolved, ok := m.host.Registry().Whereis(target.AtomIndex()); ok && resolved.Tag() == term.TagLocalPid {
			pid := resolved.PidIndex()
			if dst, ok := m.host.Registry().Lookup(pid); ok {
				if err := dst.DeliverMessage(msg, m.heap); err != nil {
					return 0, err
				}
				m.host.Scheduler().NotifyNewIncomingMessage(pid)
			}
		}
	}

	m.ctx.X[0] = msg
	return Normal, nil
}

// opLoopRec peeks the message under the mailbox scan cursor into Dst
// without removing it, so the compiled receive clauses can pattern-match
// against it; an empty mailbox jumps to the fail label (conventionally
// back to `wait`).
func opLoopRec(m *machine) (Result, error) {
	failLabel, err := m.operand(0)
	if err != nil {
		return 0, err
	}
	dst, err := m.operand(1)
	if err != nil {
		return 0, err
	}
	msg, ok := m.proc.Mbox.Peek()
	if !ok {
		m.ctx.IP = failLabel.CodePointerOffset()
		return Normal, nil
	}
	if err := m.store(dst, msg); err != nil {
		return 0, err
	}
	m.advance(2)
	return Normal, nil
}

// opLoopRecEnd advances the scan cursor past a message that failed every
// receive clause, then loops back to retry loop_rec against the next one.
func opLoopRecEnd(m *machine) (Result, error) {
	label, err := m.operand(0)
	if err != nil {
		return 0, err
	}
	m.proc.Mbox.Advance()
	m.ctx.IP = label.CodePointerOffset()
	return Normal, nil
}

// opRemoveMessage takes the matched message out of the mailbox for good
// and resets the scan cursor, committing a successful receive clause.
func opRemoveMessage(m *machine) (Result, error) {
	m.proc.Mbox.RemoveCurrent()
	return Normal, nil
}

// opWait suspends the process in the scheduler's infinite-wait set and
// rewinds IP back to the fail label so that, once woken by a delivery,
// the process resumes at the same loop_rec it left off at.
func opWait(m *machine) (Result, error) {
	label, err := m.operand(0)
	if err != nil {
		return 0, err
	}
	m.ctx.IP = label.CodePointerOffset()
	m.host.Scheduler().Suspend(m.proc.Pid)
	return YieldInfiniteWait, nil
}
