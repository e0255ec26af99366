package main

import (
	goflag "flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	flag "github.com/spf13/pflag"
)

// glog registers these on the standard flag set.
var hiddenFlags = []string{
	"alsologtostderr",
	"log_backtrace_at",
	"log_dir",
	"logtostderr",
	"stderrthreshold",
	"vmodule",
}

func initFlags() {
	flag.CommandLine.AddGoFlagSet(goflag.CommandLine)
	for _, f := range hiddenFlags {
		flag.CommandLine.MarkHidden(f)
	}
	flag.Usage = usage
}

func checkFlags(names []string) error {
	var missing []string
	for _, name := range names {
		if f := flag.Lookup(name); f == nil || !f.Changed {
			missing = append(missing, "--"+name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required flags: %s", strings.Join(missing, ", "))
	}
	return nil
}

func printFlag(w io.Writer, kind, name string) {
	f := flag.Lookup(name)
	if f == nil {
		return
	}
	fmt.Fprintf(w, "  --%s\t%s. %s, default %q\n", name, f.Usage, kind, f.DefValue)
}

func usage() {
	w := tabwriter.NewWriter(os.Stderr, 0, 0, 1, ' ', 0)
	defer w.Flush()

	if len(os.Args) == 3 && os.Args[1] == "help" {
		for _, c := range commands {
			if c.name != os.Args[2] {
				continue
			}
			fmt.Fprintf(w, "%s %s FLAGS\n\n%s.\n\nFlags:\n", os.Args[0], c.name, c.short)
			for _, name := range c.required {
				printFlag(w, "Required", name)
			}
			for _, name := range c.optional {
				printFlag(w, "Optional", name)
			}
			return
		}
	}

	fmt.Fprintf(w, "CC25xx flash tool.\n\nUsage:\n  %s <command> [flags]\n\nCommands:\n", os.Args[0])
	for _, c := range commands {
		fmt.Fprintf(w, "  %s\t\t%s\n", c.name, c.short)
	}
	fmt.Fprintf(w, "\nRun \"%s help <command>\" for the flags of one command.\n\nGlobal flags:\n", os.Args[0])
	w.Flush()
	flag.PrintDefaults()
}
