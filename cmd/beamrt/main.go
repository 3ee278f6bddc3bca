// Command beamrt is the driver binary: the command-line surface external
// to the VM core (argument parsing, search-path wiring, the initial
// `-s M F A` calls) wired against internal/vm's VM type. None of the
// parsing logic here is part of the core — it only ever calls public VM
// methods.
package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"j5.nz/beamrt/internal/code"
	"j5.nz/beamrt/internal/term"
	"j5.nz/beamrt/internal/vm"
)

var (
	flagSName string
	flagName  string
	flagPA    []string
	flagS     []string
)

func main() {
	root := &cobra.Command{
		Use:           "beamrt [beam-files...]",
		Short:         "a from-scratch BEAM bytecode virtual machine",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          run,
	}
	root.Flags().StringVar(&flagSName, "sname", "", "short node name")
	root.Flags().StringVar(&flagName, "name", "", "long node name")
	root.Flags().StringArrayVar(&flagPA, "pa", nil, "prepend DIR to the module search path (repeatable)")
	root.Flags().StringArrayVar(&flagS, "s", nil, `boot call "Module Function [Arg,Arg,...]" (repeatable)`)

	// pflag reads a single-dash word as a run of one-letter flags, so the
	// erl-style -sname/-name/-pa/-s spellings are rewritten to their
	// double-dash form before parsing.
	args := os.Args[1:]
	for i, a := range args {
		if a == "--" {
			break
		}
		switch a {
		case "-sname", "-name", "-pa", "-s":
			args[i] = "-" + a
		}
	}
	root.SetArgs(args)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "beamrt:", err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	if flagSName != "" && flagName != "" {
		return fmt.Errorf("-sname and -name are mutually exclusive")
	}
	nodeName := flagSName
	if flagName != "" {
		nodeName = flagName
	}

	// -pa prepends, so the last -pa given should be searched first;
	// build the search path in reverse flag order to match.
	searchPath := make([]string, 0, len(flagPA))
	for i := len(flagPA) - 1; i >= 0; i-- {
		searchPath = append(searchPath, flagPA[i])
	}

	machine := vm.New(searchPath)
	if nodeName != "" {
		machine.Log.Info("node starting", "name", nodeName)
	}

	for _, path := range args {
		if _, err := machine.LoadFile(path); err != nil {
			return err
		}
	}

	plainArgs, err := machine.PlainArguments(args)
	if err != nil {
		return fmt.Errorf("building plain arguments: %w", err)
	}

	for _, spec := range flagS {
		mfa, callArgs, err := parseSFlag(machine, spec)
		if err != nil {
			return fmt.Errorf("-s %q: %w", spec, err)
		}
		if _, err := machine.Spawn(mfa, callArgs); err != nil {
			return fmt.Errorf("-s %q: %w", spec, err)
		}
	}

	_ = plainArgs // exposed to spawned code via init-style accessors in a fuller driver

	machine.Run()
	return nil
}

// parseSFlag parses one `-s` value: "Module Function" or
// "Module Function Arg1,Arg2,...", matching real `erl -s`'s
// space-separated module/function with an optional comma-joined argument
// list.
func parseSFlag(m *vm.VM, spec string) (code.MFA, []term.Term, error) {
	fields := strings.Fields(spec)
	if len(fields) < 2 {
		return code.MFA{}, nil, fmt.Errorf("expected \"Module Function [Arg,...]\"")
	}
	atoms := m.Atoms()
	modAtom := atoms.Intern(fields[0])
	funAtom := atoms.Intern(fields[1])

	var callArgs []term.Term
	if len(fields) >= 3 {
		for _, raw := range strings.Split(fields[2], ",") {
			callArgs = append(callArgs, parseSArg(atoms, raw))
		}
	}
	return code.MFA{Module: modAtom, Function: funAtom, Arity: len(callArgs)}, callArgs, nil
}

// parseSArg decodes one comma-separated `-s` argument as a small integer
// if it parses as one, or an atom otherwise — `-s` arguments in practice
// are almost always atoms or small counters, and real `erl` supports no
// richer term syntax on this particular flag either.
func parseSArg(atoms interface {
	Intern(string) uint64
}, raw string) term.Term {
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return term.MakeSmallSigned(n)
	}
	return term.MakeAtom(atoms.Intern(raw))
}
