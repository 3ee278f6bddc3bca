package term

import (
	"fmt"
	"strings"

	"j5.nz/beamrt/internal/atomtable"
)

// Display renders t the way the Erlang shell would: a list of small
// integers all in [32, 126] prints as a quoted string, lists otherwise
// print with comma separators and a "| Tail" suffix for improper lists.
func Display(t Term, h HeapReader, atoms *atomtable.Table) string {
	var b strings.Builder
	display(&b, t, h, atoms)
	return b.String()
}

func display(b *strings.Builder, t Term, h HeapReader, atoms *atomtable.Table) {
	switch t.Tag() {
	case TagSmallInt:
		fmt.Fprintf(b, "%d", t.SmallSigned())
	case TagAtom:
		b.WriteString(displayAtom(atoms.Name(t.AtomIndex())))
	case TagLocalPid:
		fmt.Fprintf(b, "<0.%d.0>", t.PidIndex())
	case TagLocalPort:
		fmt.Fprintf(b, "#Port<0.%d>", t.PortIndex())
	case TagCons:
		displayList(b, t, h, atoms)
	case TagSpecial:
		displaySpecial(b, t)
	case TagBoxed:
		displayBoxed(b, t, h, atoms)
	default:
		fmt.Fprintf(b, "#Term<%#x>", t.Raw())
	}
}

func displayAtom(name string) string {
	if name == "" {
		return "''"
	}
	needsQuote := !isLowerStart(name)
	for _, r := range name {
		if !isAtomBodyRune(r) {
			needsQuote = true
			break
		}
	}
	if !needsQuote {
		return name
	}
	return "'" + strings.ReplaceAll(name, "'", "\\'") + "'"
}

func isLowerStart(s string) bool {
	return len(s) > 0 && s[0] >= 'a' && s[0] <= 'z'
}

func isAtomBodyRune(r rune) bool {
	return r == '_' || r == '@' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}

func displaySpecial(b *strings.Builder, t Term) {
	switch {
	case t.IsNil():
		b.WriteString("[]")
	case t.IsEmptyTuple():
		b.WriteString("{}")
	case t.IsEmptyBinary():
		b.WriteString("<<>>")
	case t.IsRegister():
		switch t.RegisterKind() {
		case RegX:
			fmt.Fprintf(b, "x(%d)", t.RegisterIndex())
		case RegY:
			fmt.Fprintf(b, "y(%d)", t.RegisterIndex())
		default:
			fmt.Fprintf(b, "fp(%d)", t.RegisterIndex())
		}
	case t.IsCatch():
		fmt.Fprintf(b, "#Catch<%d>", t.CatchTarget())
	default:
		fmt.Fprintf(b, "#Special<%#x>", t.Raw())
	}
}

// displayList renders a list, detecting the all-printable-ASCII string
// case first.
func displayList(b *strings.Builder, t Term, h HeapReader, atoms *atomtable.Table) {
	elems, tail := collectListElems(t, h)
	if isPrintableString(elems) {
		b.WriteByte('"')
		for _, e := range elems {
			b.WriteByte(byte(e.SmallSigned()))
		}
		b.WriteByte('"')
		return
	}
	b.WriteByte('[')
	for i, e := range elems {
		if i > 0 {
			b.WriteByte(',')
		}
		display(b, e, h, atoms)
	}
	if !tail.IsNil() {
		b.WriteByte('|')
		display(b, tail, h, atoms)
	}
	b.WriteByte(']')
}

func collectListElems(t Term, h HeapReader) (elems []Term, tail Term) {
	for t.Tag() == TagCons {
		elems = append(elems, consHead(t, h))
		t = consTail(t, h)
	}
	return elems, t
}

func isPrintableString(elems []Term) bool {
	if len(elems) == 0 {
		return false
	}
	for _, e := range elems {
		if e.Tag() != TagSmallInt {
			return false
		}
		v := e.SmallSigned()
		if v < 32 || v > 126 {
			return false
		}
	}
	return true
}

func displayBoxed(b *strings.Builder, t Term, h HeapReader, atoms *atomtable.Table) {
	if t.IsCodePointer() {
		fmt.Fprintf(b, "#CP<%d>", t.CodePointerOffset())
		return
	}
	header := FromRaw(h.ReadWord(t.BoxedPtr()))
	switch header.HeaderBoxType() {
	case BoxTuple:
		displayTuple(b, t, h, atoms)
	case BoxBinary:
		fmt.Fprintf(b, "<<")
		bs := ReadBinaryBytes(t, h)
		for i, by := range bs {
			if i > 0 {
				b.WriteByte(',')
			}
			fmt.Fprintf(b, "%d", by)
		}
		b.WriteString(">>")
	case BoxFloat:
		bits := h.ReadWord(t.BoxedPtr() + WordBytes)
		fmt.Fprintf(b, "%g", Float64FromBits(bits))
	case BoxBigInt:
		fmt.Fprintf(b, "%s", ReadBigInt(t, h).String())
	case BoxClosure:
		fmt.Fprintf(b, "#Fun<%#x>", t.BoxedPtr())
	case BoxExport:
		fmt.Fprintf(b, "#Export<%#x>", t.BoxedPtr())
	case BoxImport:
		fmt.Fprintf(b, "#Import<%#x>", t.BoxedPtr())
	case BoxMap:
		displayMap(b, t, h, atoms)
	case BoxExternalPid:
		fmt.Fprintf(b, "#Pid<%#x>", t.BoxedPtr())
	case BoxExternalPort:
		fmt.Fprintf(b, "#Port<%#x>", t.BoxedPtr())
	case BoxExternalRef:
		fmt.Fprintf(b, "#Ref<%#x>", t.BoxedPtr())
	case BoxBinaryMatchState:
		fmt.Fprintf(b, "#BinMatchState<%#x>", t.BoxedPtr())
	case BoxJumpTable:
		fmt.Fprintf(b, "#JumpTable<%#x>", t.BoxedPtr())
	default:
		fmt.Fprintf(b, "#Box<%#x>", t.BoxedPtr())
	}
}

func displayTuple(b *strings.Builder, t Term, h HeapReader, atoms *atomtable.Table) {
	ar := tupleArity(t, h)
	b.WriteByte('{')
	for i := 0; i < ar; i++ {
		if i > 0 {
			b.WriteByte(',')
		}
		display(b, tupleElem(t, i, h), h, atoms)
	}
	b.WriteByte('}')
}

func displayMap(b *strings.Builder, t Term, h HeapReader, atoms *atomtable.Table) {
	ptr := t.BoxedPtr()
	header := FromRaw(h.ReadWord(ptr))
	n := header.HeaderStorageWords() / 2
	b.WriteString("#{")
	for i := uint64(0); i < n; i++ {
		if i > 0 {
			b.WriteByte(',')
		}
		k := FromRaw(h.ReadWord(ptr + WordBytes + i*2*WordBytes))
		v := FromRaw(h.ReadWord(ptr + WordBytes + i*2*WordBytes + WordBytes))
		display(b, k, h, atoms)
		b.WriteString("=>")
		display(b, v, h, atoms)
	}
	b.WriteString("}")
}
