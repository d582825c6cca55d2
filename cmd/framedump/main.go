// Command framedump decodes protocol frames given as hex, for reading
// captures and logs.
//
//	framedump 01 01 00 00
//	framedump -format state A0:01:01:6D:48
//	echo "FF E1" | framedump
package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/chaz8081/blegate/internal/protocol"
)

func main() {
	format := flag.String("format", "auto", "frame layout: auto, fixed, variable or state")
	flag.Parse()

	framing, err := protocol.ParseFraming(*format)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	failed := false
	if flag.NArg() > 0 {
		failed = !dump(os.Stdout, strings.Join(flag.Args(), " "), framing)
	} else {
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			line := strings.TrimSpace(sc.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			if !dump(os.Stdout, line, framing) {
				failed = true
			}
		}
		if err := sc.Err(); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}
	if failed {
		os.Exit(1)
	}
}

// dump writes one line for the frame in s and reports whether it decoded.
func dump(w io.Writer, s string, f protocol.Framing) bool {
	b, err := protocol.ParseHex(s)
	if err == nil {
		var desc string
		if desc, err = protocol.Describe(b, f); err == nil {
			fmt.Fprintf(w, "%s  %s\n", protocol.Hex(b), desc)
			return true
		}
	}
	fmt.Fprintf(w, "%s  error: %v\n", s, err)
	return false
}
