package loader

import (
	"fmt"
	"os"

	"j5.nz/beamrt/internal/atomtable"
	"j5.nz/beamrt/internal/beamfile"
	"j5.nz/beamrt/internal/code"
	"j5.nz/beamrt/internal/compactterm"
	"j5.nz/beamrt/internal/heap"
	"j5.nz/beamrt/internal/term"
)

// literalHeapWords is the fixed size given to every module's literal
// heap. Literals never move and are never collected while the module
// stays loaded, so a single large bump-allocated arena (never reused
// once a module is replaced) is enough.
const literalHeapWords = 1 << 16

// opcodeMaxR19Ceiling is the dividing line this loader uses to guess
// which compact-term tag numbering a module was compiled with: real
// r19-and-earlier releases report a Code chunk opcode_max at or below
// 158 (genop.tab topped out there for years), while every release since
// has grown past it. A module near the boundary is rare enough that
// getting this wrong only matters for the handful of extended-tag
// opcodes that actually differ between the two numberings.
const opcodeMaxR19Ceiling = 158

// Load reads a .beam file from path, decodes every chunk this runtime
// understands, and returns a fully resolved code.Module ready to install
// into a code.Server.
func Load(path string, atoms *atomtable.Table) (*code.Module, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("loader: %w", err)
	}
	return LoadBytes(data, atoms)
}

// LoadBytes is Load without the filesystem read, split out so tests can
// exercise the loader against in-memory fixtures.
func LoadBytes(data []byte, atoms *atomtable.Table) (*code.Module, error) {
	f, err := beamfile.Parse(data)
	if err != nil {
		return nil, err
	}

	names, err := readAtomChunk(f)
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("loader: module has no atom table")
	}
	globalAtoms := internAtoms(names, atoms)
	moduleAtom := globalAtoms[0]

	lh := heap.New(literalHeapWords * term.WordBytes)

	literalTerms, err := readLitChunk(f, lh, atoms)
	if err != nil {
		return nil, err
	}

	codeChunk, ok := f.Chunk(beamfile.ChunkCode)
	if !ok {
		return nil, fmt.Errorf("loader: module has no Code chunk")
	}
	variant := selectVariant(codeChunk)

	d, err := decodeCode(codeChunk, variant, globalAtoms)
	if err != nil {
		return nil, err
	}
	if err := fixupLabels(d, moduleAtom); err != nil {
		return nil, err
	}
	if err := fixupLiterals(d, literalTerms); err != nil {
		return nil, err
	}

	if impData, ok := f.Chunk(beamfile.ChunkImpT); ok {
		imports, err := parseImpT(impData)
		if err != nil {
			return nil, err
		}
		if err := fixupImports(d, imports, globalAtoms, lh); err != nil {
			return nil, err
		}
	}

	exports := map[code.FuncKey]uint64{}
	if expData, ok := f.Chunk(beamfile.ChunkExpT); ok {
		rows, err := parseExpT(expData)
		if err != nil {
			return nil, err
		}
		exports, err = buildFuncTables(rows, globalAtoms, d.labelOffsets)
		if err != nil {
			return nil, err
		}
	}

	locals := map[code.FuncKey]uint64{}
	if locData, ok := f.Chunk(beamfile.ChunkLocT); ok {
		rows, err := parseLocT(locData)
		if err != nil {
			return nil, err
		}
		locals, err = buildFuncTables(rows, globalAtoms, d.labelOffsets)
		if err != nil {
			return nil, err
		}
	}

	var lambdas []code.Lambda
	if funData, ok := f.Chunk(beamfile.ChunkFunT); ok {
		lambdas, err = parseFunT(funData)
		if err != nil {
			return nil, err
		}
		// FunT rows carry module-local atom indices and raw label ids;
		// make_fun2/call_fun expect resolved atoms and instruction
		// offsets, so rewrite them in place the same way pass 2 rewrites
		// label operands.
		for i := range lambdas {
			off, ok := d.labelOffsets[lambdas[i].Label]
			if !ok {
				return nil, fmt.Errorf("loader: lambda %d references undefined label %d", i, lambdas[i].Label)
			}
			lambdas[i].Label = off
			lambdas[i].Function = resolveModuleAtom(lambdas[i].Function, globalAtoms)
		}
	}

	return &code.Module{
		Name:     moduleAtom,
		Code:     d.words,
		Exports:  exports,
		Locals:   locals,
		Lambdas:  lambdas,
		Literals: lh,
	}, nil
}

func readAtomChunk(f *beamfile.File) ([]string, error) {
	if data, ok := f.Chunk(beamfile.ChunkAtU8); ok {
		return parseAtomChunk(data)
	}
	if data, ok := f.Chunk(beamfile.ChunkAtom); ok {
		return parseAtomChunk(data)
	}
	return nil, nil
}

func readLitChunk(f *beamfile.File, h *heap.Heap, atoms *atomtable.Table) ([]term.Term, error) {
	data, ok := f.Chunk(beamfile.ChunkLitT)
	if !ok {
		return nil, nil
	}
	return parseLitChunk(data, h, atoms)
}

// selectVariant guesses the compact-term extended-tag numbering from the
// Code chunk's header, per the loader's own opcode table rather than
// build-time selection.
func selectVariant(codeChunk []byte) compactterm.Variant {
	if len(codeChunk) < 12 {
		return compactterm.VariantNewer
	}
	opcodeMax := beU32(codeChunk[8:12])
	if opcodeMax <= opcodeMaxR19Ceiling {
		return compactterm.VariantR19
	}
	return compactterm.VariantNewer
}
