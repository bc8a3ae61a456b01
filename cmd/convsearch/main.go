// Command convsearch searches tiling schedules for a 2-D NCHW convolution and
// inspects what the search found.
//
// Usage:
//
//	convsearch search -preset resnet18-stage1 -max-trials 500 -catalog auto
//	convsearch verify -preset resnet18-stage1 -schedule 'Schedule(vec_h=7, ...)'
//	convsearch best -report report/conv_search.txt
//	convsearch plan -preset resnet18-stage1
//	convsearch profile -target auto
//	convsearch version
//
// Every command accepts -config with a YAML file (see internal/config) and
// the klog flags (-v, -logtostderr, ...). Flags override the file.
package main

import (
	"flag"
	"fmt"
	"os"

	"k8s.io/klog/v2"
)

const version = "v0.1.0"

type command struct {
	name    string
	summary string
	run     func(args []string) error
}

func commands() []command {
	return []command{
		{"search", "run the random schedule search and append winners to the report", runSearch},
		{"verify", "compile one schedule, run it, and check it against the reference", runVerify},
		{"best", "print the fastest schedule recorded in a report", runBest},
		{"plan", "print the loop nests of every stage for one schedule", runPlan},
		{"profile", "print the hardware profile and the catalog it yields", runProfile},
		{"version", "show version", func([]string) error {
			fmt.Printf("convsearch %s\n", version)
			return nil
		}},
	}
}

func main() {
	cmds := commands()
	if len(os.Args) < 2 {
		usage(cmds)
		os.Exit(2)
	}

	name := os.Args[1]
	for _, c := range cmds {
		if c.name != name {
			continue
		}
		err := c.run(os.Args[2:])
		klog.Flush()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	fmt.Fprintf(os.Stderr, "Error: unknown command %q\n\n", name)
	usage(cmds)
	os.Exit(2)
}

func usage(cmds []command) {
	fmt.Fprintf(os.Stderr, "convsearch %s - convolution schedule search\n\n", version)
	fmt.Fprintln(os.Stderr, "Commands:")
	for _, c := range cmds {
		fmt.Fprintf(os.Stderr, "  %-9s %s\n", c.name, c.summary)
	}
	fmt.Fprintln(os.Stderr, "\nRun 'convsearch <command> -h' for the command's flags.")
}

// newFlagSet returns a flag set for one command with the klog flags registered.
func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet("convsearch "+name, flag.ExitOnError)
	klog.InitFlags(fs)
	return fs
}

// setFlags returns the names of the flags given on the command line.
func setFlags(fs *flag.FlagSet) map[string]bool {
	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	return set
}
