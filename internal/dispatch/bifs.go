package dispatch

import (
	"j5.nz/beamrt/internal/code"
	"j5.nz/beamrt/internal/term"
)

// resolveBifCall reads a bif/gc_bif instruction's Import operand (already
// fixed up by the loader to point at an Import box) into a code.MFA.
func (m *machine) resolveBifCall(offset uint64) (code.MFA, error) {
	importBox, err := m.operand(offset)
	if err != nil {
		return code.MFA{}, err
	}
	modAtom, fnAtom, arity := term.ImportFields(importBox, m.heap)
	return code.MFA{Module: modAtom, Function: fnAtom, Arity: int(arity)}, nil
}

// bifCall loads arity arguments starting at argsOffset, invokes mfa
// through the native registry, and stores the result (or jumps/raises on
// failure per jumpOrRaise). jumped reports that IP already points at the
// fail label, so the caller must not advance past its own operands.
func (m *machine) bifCall(mfa code.MFA, argsOffset uint64, failLabel, dst term.Term) (jumped bool, err error) {
	args := make([]term.Term, mfa.Arity)
	for i := range args {
		v, err := m.load(argsOffset + uint64(i))
		if err != nil {
			return false, err
		}
		args[i] = v
	}
	result, err := m.natives.Call(m.host, m.proc, mfa, args)
	if err != nil {
		if _, err := m.jumpOrRaise(failLabel, err); err != nil {
			return false, err
		}
		return true, nil
	}
	if err := m.store(dst, result); err != nil {
		return false, err
	}
	return false, nil
}

func opBif0(m *machine) (Result, error) {
	mfa, err := m.resolveBifCall(0)
	if err != nil {
		return 0, err
	}
	dst, err := m.operand(1)
	if err != nil {
		return 0, err
	}
	jumped, err := m.bifCall(mfa, 0, term.Nil(), dst) // bif0 never takes arguments
	if err != nil {
		return 0, err
	}
	if !jumped {
		m.advance(2)
	}
	return Normal, nil
}

func opBif1(m *machine) (Result, error) {
	failLabel, err := m.operand(0)
	if err != nil {
		return 0, err
	}
	mfa, err := m.resolveBifCall(1)
	if err != nil {
		return 0, err
	}
	dst, err := m.operand(3)
	if err != nil {
		return 0, err
	}
	jumped, err := m.bifCall(mfa, 2, failLabel, dst)
	if err != nil {
		return 0, err
	}
	if !jumped {
		m.advance(4)
	}
	return Normal, nil
}

func opBif2(m *machine) (Result, error) {
	failLabel, err := m.operand(0)
	if err != nil {
		return 0, err
	}
	mfa, err := m.resolveBifCall(1)
	if err != nil {
		return 0, err
	}
	dst, err := m.operand(4)
	if err != nil {
		return 0, err
	}
	jumped, err := m.bifCall(mfa, 2, failLabel, dst)
	if err != nil {
		return 0, err
	}
	if !jumped {
		m.advance(5)
	}
	return Normal, nil
}

// opGcBif1/2/3 add a Live operand ahead of the usual bif layout, recording
// how many X registers are live across the call for a future collector;
// no collector exists yet, so it is simply stored.
func opGcBif1(m *machine) (Result, error) {
	failLabel, err := m.operand(0)
	if err != nil {
		return 0, err
	}
	liveRaw, err := m.operand(1)
	if err != nil {
		return 0, err
	}
	mfa, err := m.resolveBifCall(2)
	if err != nil {
		return 0, err
	}
	dst, err := m.operand(4)
	if err != nil {
		return 0, err
	}
	m.ctx.Live = uint64(liveRaw.SmallSigned())
	jumped, err := m.bifCall(mfa, 3, failLabel, dst)
	if err != nil {
		return 0, err
	}
	if !jumped {
		m.advance(5)
	}
	return Normal, nil
}

func opGcBif2(m *machine) (Result, error) {
	failLabel, err := m.operand(0)
	if err != nil {
		return 0, err
	}
	liveRaw, err := m.operand(1)
	if err != nil {
		return 0, err
	}
	mfa, err := m.resolveBifCall(2)
	if err != nil {
		return 0, err
	}
	dst, err := m.operand(5)
	if err != nil {
		return 0, err
	}
	m.ctx.Live = uint64(liveRaw.SmallSigned())
	jumped, err := m.bifCall(mfa, 3, failLabel, dst)
	if err != nil {
		return 0, err
	}
	if !jumped {
		m.advance(6)
	}
	return Normal, nil
}

func opGcBif3(m *machine) (Result, error) {
	failLabel, err := m.operand(0)
	if err != nil {
		return 0, err
	}
	liveRaw, err := m.operand(1)
	if err != nil {
		return 0, err
	}
	mfa, err := m.resolveBifCall(2)
	if err != nil {
		return 0, err
	}
	dst, err := m.operand(6)
	if err != nil {
		return 0, err
	}
	m.ctx.Live = uint64(liveRaw.SmallSigned())
	jumped, err := m.bifCall(mfa, 3, failLabel, dst)
	if err != nil {
		return 0, err
	}
	if !jumped {
		m.advance(7)
	}
	return Normal, nil
}
