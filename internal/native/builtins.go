package native

import (
	"fmt"

	"j5.nz/beamrt/internal/atomtable"
	"j5.nz/beamrt/internal/bif"
	"j5.nz/beamrt/internal/code"
	"j5.nz/beamrt/internal/process"
	"j5.nz/beamrt/internal/term"
)

// listToSlice walks a proper list on proc's heap into a Go slice, erroring
// on an improper tail.
func listToSlice(list term.Term, proc *process.Process) ([]term.Term, error) {
	var out []term.Term
	cur := list
	for cur.Tag() == term.TagCons {
		ptr := cur.ConsPtr()
		out = append(out, term.FromRaw(proc.Heap.ReadWord(ptr)))
		cur = term.FromRaw(proc.Heap.ReadWord(ptr + term.WordBytes))
	}
	if !cur.IsNil() {
		return nil, fmt.Errorf("native: improper list where a proper list was required")
	}
	return out, nil
}

func biSelf(h Host, proc *process.Process, args []term.Term) (term.Term, error) {
	return term.MakeLocalPid(proc.Pid), nil
}

func biSpawn3(h Host, proc *process.Process, args []term.Term) (term.Term, error) {
	modAtom, funAtom, argList := args[0], args[1], args[2]
	if modAtom.Tag() != term.TagAtom || funAtom.Tag() != term.TagAtom {
		return 0, fmt.Errorf("native: spawn/3 badarg, module and function must be atoms")
	}
	spawnArgs, err := listToSlice(argList, proc)
	if err != nil {
		return 0, fmt.Errorf("native: spawn/3 badarg, %w", err)
	}
	mfa := code.MFA{Module: modAtom.AtomIndex(), Function: funAtom.AtomIndex(), Arity: len(spawnArgs)}

	pid := h.Registry().NextPid()
	child, err := process.New(pid, proc.Pid, mfa, spawnArgs, h.CodeServer())
	if err != nil {
		return 0, fmt.Errorf("native: spawn/3: %w", err)
	}
	// The argument terms still point into the parent's heap; the child
	// must own its arguments outright, same as a delivered message, or
	// they dangle once the parent exits.
	for i, a := range spawnArgs {
		copied, err := process.CopyTerm(a, proc.Heap, child.Heap)
		if err != nil {
			return 0, fmt.Errorf("native: spawn/3 copying argument %d: %w", i, err)
		}
		child.Ctx.X[i] = copied
	}
	h.Registry().Add(child)
	h.Scheduler().Enqueue(pid)
	return term.MakeLocalPid(pid), nil
}

func biRegister2(h Host, proc *process.Process, args []term.Term) (term.Term, error) {
	name, target := args[0], args[1]
	if name.Tag() != term.TagAtom {
		return 0, fmt.Errorf("native: register/2 badarg, name must be an atom")
	}
	if target.Tag() != term.TagLocalPid && target.Tag() != term.TagLocalPort {
		return 0, fmt.Errorf("native: register/2 badarg, target must be a pid or port")
	}
	if err := h.Registry().Register(name.AtomIndex(), target); err != nil {
		return 0, err
	}
	return term.MakeAtom(atomtable.AtomTrue), nil
}

func biUnregister1(h Host, proc *process.Process, args []term.Term) (term.Term, error) {
	name := args[0]
	if name.Tag() != term.TagAtom {
		return 0, fmt.Errorf("native: unregister/1 badarg, name must be an atom")
	}
	h.Registry().Unregister(name.AtomIndex())
	return term.MakeAtom(atomtable.AtomTrue), nil
}

func biWhereis1(h Host, proc *process.Process, args []term.Term) (term.Term, error) {
	name := args[0]
	if name.Tag() != term.TagAtom {
		return 0, fmt.Errorf("native: whereis/1 badarg, name must be an atom")
	}
	if target, ok := h.Registry().Whereis(name.AtomIndex()); ok {
		return target, nil
	}
	return term.MakeAtom(atomtable.AtomUndefined), nil
}

func biProcessFlag2(h Host, proc *process.Process, args []term.Term) (term.Term, error) {
	flag, value := args[0], args[1]
	if flag.Tag() != term.TagAtom {
		return 0, fmt.Errorf("native: process_flag/2 badarg, flag must be an atom")
	}
	atoms := h.Atoms()
	switch flag.AtomIndex() {
	case atomtable.AtomTrapExit:
		old := term.MakeAtom(atomtable.AtomFalse)
		if proc.TrapExit {
			old = term.MakeAtom(atomtable.AtomTrue)
		}
		if value.Tag() != term.TagAtom {
			return 0, fmt.Errorf("native: process_flag(trap_exit, _) badarg")
		}
		proc.TrapExit = value.AtomIndex() == atomtable.AtomTrue
		return old, nil
	default:
		if atoms.Name(flag.AtomIndex()) == "priority" {
			old := priorityAtom(proc.Priority, atoms)
			if value.Tag() != term.TagAtom {
				return 0, fmt.Errorf("native: process_flag(priority, _) badarg")
			}
			p, ok := priorityFromAtom(value.AtomIndex(), atoms)
			if !ok {
				return 0, fmt.Errorf("native: process_flag(priority, _) badarg")
			}
			proc.Priority = p
			return old, nil
		}
		return 0, fmt.Errorf("native: process_flag/2 unsupported flag %q", atoms.Name(flag.AtomIndex()))
	}
}

func priorityAtom(p process.Priority, atoms *atomtable.Table) term.Term {
	switch p {
	case process.PriorityHigh:
		return term.MakeAtom(atoms.Intern("high"))
	case process.PriorityLow:
		return term.MakeAtom(atoms.Intern("low"))
	default:
		return term.MakeAtom(atomtable.AtomNormal)
	}
}

func priorityFromAtom(idx uint64, atoms *atomtable.Table) (process.Priority, bool) {
	switch atoms.Name(idx) {
	case "high":
		return process.PriorityHigh, true
	case "normal":
		return process.PriorityNormal, true
	case "low":
		return process.PriorityLow, true
	default:
		return 0, false
	}
}

func biIsProcessAlive1(h Host, proc *process.Process, args []term.Term) (term.Term, error) {
	target := args[0]
	if target.Tag() != term.TagLocalPid {
		return 0, fmt.Errorf("native: is_process_alive/1 badarg, not a pid")
	}
	if other, ok := h.Registry().Lookup(target.PidIndex()); ok && other.Status != process.StatusExited {
		return term.MakeAtom(atomtable.AtomTrue), nil
	}
	return term.MakeAtom(atomtable.AtomFalse), nil
}

func biMakeFun3(h Host, proc *process.Process, args []term.Term) (term.Term, error) {
	modAtom, funAtom, arity := args[0], args[1], args[2]
	if modAtom.Tag() != term.TagAtom || funAtom.Tag() != term.TagAtom || arity.Tag() != term.TagSmallInt {
		return 0, fmt.Errorf("native: make_fun/3 badarg")
	}
	mfa := code.MFA{Module: modAtom.AtomIndex(), Function: funAtom.AtomIndex(), Arity: int(arity.SmallSigned())}
	result, err := h.CodeServer().LookupMFA(mfa, true)
	if err != nil {
		return 0, fmt.Errorf("native: make_fun/3: %w", err)
	}
	if !result.Found || result.IsNative {
		return 0, fmt.Errorf("native: make_fun/3: %+v not found", mfa)
	}
	return proc.Heap.AllocExport(mfa.Module, mfa.Function, uint64(mfa.Arity), result.CodePtr)
}

func biAdd2(h Host, proc *process.Process, args []term.Term) (term.Term, error) {
	if !isIntegerOnHeap(args[0], proc) || !isIntegerOnHeap(args[1], proc) {
		return 0, fmt.Errorf("native: badarith")
	}
	return bif.Add(args[0], args[1], proc.Heap)
}

func biSub2(h Host, proc *process.Process, args []term.Term) (term.Term, error) {
	if !isIntegerOnHeap(args[0], proc) || !isIntegerOnHeap(args[1], proc) {
		return 0, fmt.Errorf("native: badarith")
	}
	return bif.Sub(args[0], args[1], proc.Heap)
}

func biMul2(h Host, proc *process.Process, args []term.Term) (term.Term, error) {
	if !isIntegerOnHeap(args[0], proc) || !isIntegerOnHeap(args[1], proc) {
		return 0, fmt.Errorf("native: badarith")
	}
	return bif.Mul(args[0], args[1], proc.Heap)
}

func biNeg1(h Host, proc *process.Process, args []term.Term) (term.Term, error) {
	if !isIntegerOnHeap(args[0], proc) {
		return 0, fmt.Errorf("native: badarith")
	}
	return bif.Neg(args[0], proc.Heap)
}

func biDiv2(h Host, proc *process.Process, args []term.Term) (term.Term, error) {
	if !isIntegerOnHeap(args[0], proc) || !isIntegerOnHeap(args[1], proc) {
		return 0, fmt.Errorf("native: badarith")
	}
	v, err := bif.Div(args[0], args[1], proc.Heap)
	if err != nil {
		return 0, fmt.Errorf("native: badarith, %w", err)
	}
	return v, nil
}

func biRem2(h Host, proc *process.Process, args []term.Term) (term.Term, error) {
	if !isIntegerOnHeap(args[0], proc) || !isIntegerOnHeap(args[1], proc) {
		return 0, fmt.Errorf("native: badarith")
	}
	v, err := bif.Rem(args[0], args[1], proc.Heap)
	if err != nil {
		return 0, fmt.Errorf("native: badarith, %w", err)
	}
	return v, nil
}

func isIntegerOnHeap(t term.Term, proc *process.Process) bool {
	if t.Tag() == term.TagSmallInt {
		return true
	}
	if t.Tag() != term.TagBoxed {
		return false
	}
	header := term.FromRaw(proc.Heap.ReadWord(t.BoxedPtr()))
	return header.HeaderBoxType() == term.BoxBigInt
}

// The comparison family: every operator maps the three-way term order to
// a boolean atom. Coercing (==, /=, <, >, =<, >=) and exact (=:=, =/=)
// variants differ only in the exact flag handed to term.Compare.
func cmpBuiltin(exact bool, ok func(term.Ordering) bool) Fn {
	return func(h Host, proc *process.Process, args []term.Term) (term.Term, error) {
		ord := term.Compare(args[0], args[1], exact, proc.Heap, h.Atoms())
		if ok(ord) {
			return term.MakeAtom(atomtable.AtomTrue), nil
		}
		return term.MakeAtom(atomtable.AtomFalse), nil
	}
}
