// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package spmdcmd provides utilities for implementing SPMD command
// line tools. The main entry point, spmdcmd.Main, configures a
// session according to a common set of flags, and then invokes the
// user's driver code.
//
// An spmdcmd tool follows this form:
//
//	func main() {
//		spmdcmd.Main(func(sess *exec.Session, args []string) error {
//			res, err := sess.Run(context.Background(), example.MatVec, args...)
//			if err != nil {
//				return err
//			}
//			fmt.Println(res.Root())
//			return nil
//		})
//	}
package spmdcmd

import (
	"flag"
	"fmt"
	"net/http"
	_ "net/http/pprof" // Pprof is exposed on the local diagnostic web server.
	"os"
	"sort"
	"strings"

	"github.com/grailbio/base/log"
	"github.com/grailbio/base/status"
	"github.com/grailbio/spmd/exec"
	"github.com/grailbio/spmd/spmdflags"
)

// Main is a convenient entry point for an spmdcmd. Main does not
// return. It parses (global) flags, starts a session accordingly, and
// invokes the provided func with the session and the unparsed
// arguments.
//
// Main starts a diagnostic web server (default address :3333), using
// http.DefaultServeMux, which includes pprof handlers, the session's
// trace, and the status of running programs.
//
// Main shuts the session down after the user func returns. If it
// returns with an error, it is reported and the process exits with
// code 1, otherwise it exits successfully.
func Main(main func(sess *exec.Session, args []string) error) {
	var fl spmdflags.Flags
	spmdflags.RegisterFlags(flag.CommandLine, &fl, "")
	log.AddFlags()
	flag.Parse()
	sess, err := Init(fl)
	if err != nil {
		log.Fatal(err)
	}
	err = main(sess, flag.Args())
	sess.Shutdown()
	if err != nil {
		log.Fatal(err)
	}
	os.Exit(0)
}

// Init starts a session according to the supplied flags.
func Init(fl spmdflags.Flags) (*exec.Session, error) {
	if fl.SystemHelp {
		PrintSystemHelp(fl)
		os.Exit(0)
	}
	options, err := fl.ExecOptions()
	if err != nil {
		return nil, err
	}
	sess := exec.Start(options...)
	DisplayStatus(fl, sess)
	return sess, nil
}

// PrintSystemHelp writes the long system help, followed by the
// registered providers and profiles, to the flags' output.
func PrintSystemHelp(fl spmdflags.Flags) {
	providers, profiles := spmdflags.ProvidersAndProfiles()
	sort.Strings(providers)
	wr := fl.Output()
	fmt.Fprintf(wr, "%s\n\n", spmdflags.SystemHelpLong)
	fmt.Fprintf(wr, "The available providers are: %v\n", strings.Join(providers, ", "))
	var lines []string
	for k, v := range profiles {
		lines = append(lines, fmt.Sprintf("%v is shorthand for: %v\n", k, v))
	}
	sort.Strings(lines)
	for _, line := range lines {
		fmt.Fprint(wr, line)
	}
}

// DisplayStatus arranges for the session's status to be displayed on
// the console and/or a web page depending on the flags. The web page
// is hosted at /debug/status on http.DefaultServeMux.
func DisplayStatus(fl spmdflags.Flags, sess *exec.Session) {
	if fl.ConsoleStatus {
		var console status.Reporter
		go console.Go(os.Stdout, sess.Status())
	}
	if len(fl.HTTPAddress.Address) > 0 {
		sess.HandleDebug(http.DefaultServeMux)
		http.Handle("/debug/status", status.Handler(sess.Status()))
		go func() {
			log.Printf("HTTP Status at: %v", fl.HTTPAddress)
			if err := http.ListenAndServe(fl.HTTPAddress.Address, nil); err != nil {
				log.Error.Printf("failed to start HTTP at %v: %v", fl.HTTPAddress, err)
			}
		}()
	}
}
