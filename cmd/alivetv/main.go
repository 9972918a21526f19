// Command alivetv verifies peephole transformations written in the textual
// transformation language: each transformation in the given files is parsed,
// typed, symbolically executed and checked for refinement.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/davecgh/go-spew/spew"
	"github.com/pkg/errors"

	alive "github.com/AbigailBuccaneer/alive2"
	"github.com/AbigailBuccaneer/alive2/z3"
)

func main() {
	if err := run(os.Args[1:]); err == flag.ErrHelp {
		os.Exit(2)
	} else if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("alivetv", flag.ContinueOnError)
	checkEachVar := fs.Bool("check-each-var", false, "also check every named temporary pairwise")
	printQueries := fs.Bool("print-queries", false, "log every solver query")
	printStats := fs.Bool("stats", false, "print aggregate solver statistics on exit")
	verbose := fs.Bool("v", false, "dump the typed IR of failing transformations")
	disableSMT := fs.Bool("disable-smt", false, "answer every solver query with unknown")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		usage()
		return flag.ErrHelp
	}

	z3.PrintQueries(*printQueries)
	if *disableSMT {
		restore := alive.SetSMTQueries(false)
		defer restore()
	}

	alive.Init(z3.NewSession())
	defer alive.Destroy()

	failed := false
	for _, path := range fs.Args() {
		buf, err := os.ReadFile(path)
		if err != nil {
			return errors.Wrapf(err, "reading %s", path)
		}
		transforms, err := alive.Parse(string(buf))
		if err != nil {
			return errors.Wrapf(err, "parsing %s", path)
		}

		for _, t := range transforms {
			t.Print(os.Stdout, alive.PrintOpts{})
			errs := t.Verify(alive.VerifyOpts{CheckEachVar: *checkEachVar})
			if errs.Empty() {
				fmt.Println("Transformation seems to be correct!")
				continue
			}

			failed = true
			fmt.Print(errs)
			fmt.Println("Transformation doesn't verify!")
			if *verbose {
				spew.Fdump(os.Stderr, t.Src, t.Tgt)
			}
		}
	}

	if *printStats {
		z3.PrintStats(os.Stderr)
	}
	if failed {
		return errors.New("transformation doesn't verify")
	}
	return nil
}

func usage() {
	fmt.Fprintln(os.Stderr, `
Alivetv verifies peephole integer transformations.

Usage:

	alivetv [flags] <file>...

Each file holds transformations in the form:

	Name: <name>
	%x = add i8 %a, 0
	ret i8 %x
	=>
	ret i8 %a
`[1:])
}
