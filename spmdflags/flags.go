// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package spmdflags provides flag support for SPMD command line
// applications: the system that hosts the ranks, the group size, and
// diagnostics.
package spmdflags

import (
	"flag"
	"fmt"
	"io"
	"os"
	"os/user"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/grailbio/base/cmdutil"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/status"
	"github.com/grailbio/bigmachine"
	"github.com/grailbio/bigmachine/ec2system"
	"github.com/grailbio/spmd/exec"
)

var (
	mu        sync.Mutex
	providers = map[string]func() Provider{} // protected by mu
	profiles  = map[string]string{}          // protected by mu
)

// Provider represents a system that hosts the ranks of a group,
// configured by setting options via Set.
type Provider interface {
	// Name returns the name of the provider.
	Name() string
	// Set sets an option, specified as key=val.
	Set(string) error
	// ExecOption returns the exec.Option that runs ranks on the
	// system as configured by the currently set options.
	ExecOption() exec.Option
	// DefaultProcs returns the default group size for the system.
	DefaultProcs() int
}

// RegisterSystemProvider registers a constructor for a system
// provider under the provided name. Each flag that selects the
// provider gets its own instance.
func RegisterSystemProvider(name string, provider func() Provider) {
	mu.Lock()
	defer mu.Unlock()
	if _, present := providers[name]; present {
		log.Panicf("system %s is already registered", name)
	}
	providers[name] = provider
}

// RegisterSystemProfile registers a system 'profile', a named
// shorthand for a system and its options. For example an application
// that registers the profile
//   spmdflags.RegisterSystemProfile("big", "ec2:instance=c5.9xlarge")
// accepts
//   -system=big
// as a synonym for
//   -system=ec2:instance=c5.9xlarge
func RegisterSystemProfile(name, profile string) {
	mu.Lock()
	defer mu.Unlock()
	if _, present := providers[name]; present {
		log.Panicf("profile %s is already used as a provider name", name)
	}
	if _, present := profiles[name]; present {
		log.Panicf("profile %s is already registered", name)
	}
	profiles[name] = profile
}

// ProvidersAndProfiles returns the supported providers and profiles.
func ProvidersAndProfiles() ([]string, map[string]string) {
	mu.Lock()
	defer mu.Unlock()
	prv := make([]string, 0, len(providers))
	for k := range providers {
		prv = append(prv, k)
	}
	prf := make(map[string]string, len(profiles))
	for k, v := range profiles {
		prf[k] = v
	}
	return prv, prf
}

// Internal runs every rank in a goroutine of the calling process.
type Internal struct{}

// Name implements Provider.Name.
func (*Internal) Name() string { return "internal" }

// Set implements Provider.Set.
func (*Internal) Set(string) error {
	return fmt.Errorf("the internal system does not support any configuration")
}

// ExecOption implements Provider.ExecOption.
func (*Internal) ExecOption() exec.Option { return exec.Local }

// DefaultProcs implements Provider.DefaultProcs.
func (*Internal) DefaultProcs() int { return runtime.GOMAXPROCS(0) }

// Local runs every rank in a separate process on the local machine.
type Local struct{}

// Name implements Provider.Name.
func (*Local) Name() string { return "local" }

// Set implements Provider.Set.
func (*Local) Set(string) error {
	return fmt.Errorf("the local system does not support any configuration")
}

// ExecOption implements Provider.ExecOption.
func (*Local) ExecOption() exec.Option { return exec.Bigmachine(bigmachine.Local) }

// DefaultProcs implements Provider.DefaultProcs.
func (*Local) DefaultProcs() int { return runtime.GOMAXPROCS(0) }

// EC2 runs every rank on its own AWS EC2 instance.
type EC2 struct {
	System ec2system.System
}

// Name implements Provider.Name.
func (*EC2) Name() string { return "ec2" }

// Set implements Provider.Set.
func (ec2 *EC2) Set(v string) error {
	parts := strings.SplitN(v, "=", 2)
	key, val := parts[0], ""
	if len(parts) == 2 {
		val = parts[1]
	}
	switch key {
	case "dataspace", "rootsize":
		n, err := strconv.ParseUint(val, 10, 32)
		if err != nil {
			return fmt.Errorf("%s: not a size: %q", key, val)
		}
		if key == "dataspace" {
			ec2.System.Dataspace = uint(n)
		} else {
			ec2.System.Diskspace = uint(n)
		}
	case "instance":
		ec2.System.InstanceType = val
	case "profile":
		ec2.System.InstanceProfile = val
	case "ondemand":
		b := true
		if len(parts) == 2 {
			var err error
			if b, err = strconv.ParseBool(val); err != nil {
				return fmt.Errorf("ondemand: not a bool: %q", val)
			}
		}
		ec2.System.OnDemand = b
	default:
		return fmt.Errorf("unsupported option: %v", key)
	}
	return nil
}

// ExecOption implements Provider.ExecOption.
func (ec2 *EC2) ExecOption() exec.Option {
	if ec2.System.Username == "" {
		ec2.System.Username = "unknown"
		if u, err := user.Current(); err == nil {
			ec2.System.Username = u.Username
		} else {
			log.Printf("ec2: get current user: %v", err)
		}
	}
	return exec.Bigmachine(&ec2.System)
}

// DefaultProcs implements Provider.DefaultProcs.
func (*EC2) DefaultProcs() int { return 2 }

func init() {
	RegisterSystemProvider("internal", func() Provider { return new(Internal) })
	RegisterSystemProvider("local", func() Provider { return new(Local) })
	RegisterSystemProvider("ec2", func() Provider { return new(EC2) })
}

// SystemHelpShort is a short explanation of the allowed SystemFlag values.
func SystemHelpShort(prefix string) string {
	const format = `an spmd system is specified as follows: {internal,local,ec2:[key=val,],name}, use -%s for more information.`
	return fmt.Sprintf(format, prefix+"system-help")
}

// SystemHelpLong is a complete explanation of the allowed SystemFlag values.
const SystemHelpLong = `An spmd system is specified as follows:

<system-type>:<options> where options is [key=value,]+

The currently supported systems and their options are as follows:

internal: every rank runs in the calling process, the default.
local: every rank runs in a separate process on this machine.
ec2: every rank runs on its own AWS EC2 instance. The supported options are:
	instance=<AWS instance type> - the AWS instance type, e.g. m5.xlarge
	dataspace=<number> - size of the data volume in GiB
	rootsize=<number> - size of the root volume in GiB
	ondemand[=bool] - use on-demand rather than spot instances
	profile=<arn> - the AWS instance profile to use instead of a default

In addition, an application may register 'profiles' that are shorthand
for the above, e.g. "big" can be configured as a synonym for
ec2:instance=c5.9xlarge,dataspace=200.
`

// SystemFlag represents a flag that selects the system that hosts
// the ranks.
type SystemFlag struct {
	Provider  Provider
	Options   []string
	Specified bool
}

// String implements flag.Value.String
func (sys *SystemFlag) String() string {
	if sys.Provider == nil {
		return ""
	}
	if len(sys.Options) == 0 {
		return sys.Provider.Name()
	}
	return fmt.Sprintf("%v:%v", sys.Provider.Name(), strings.Join(sys.Options, ","))
}

// Set implements flag.Value.Set
func (sys *SystemFlag) Set(v string) error {
	parse := func(s string) (name string, options []string) {
		parts := strings.SplitN(s, ":", 2)
		name = parts[0]
		if len(parts) > 1 {
			options = strings.Split(parts[1], ",")
		}
		return
	}
	name, options := parse(v)
	mu.Lock()
	if profile, ok := profiles[name]; ok {
		var profileOptions []string
		name, profileOptions = parse(profile)
		options = append(profileOptions, options...)
	}
	newProvider, ok := providers[name]
	mu.Unlock()
	if !ok {
		return fmt.Errorf("unsupported system or profile type: %v", name)
	}
	provider := newProvider()
	for _, opt := range options {
		if err := provider.Set(opt); err != nil {
			return err
		}
	}
	sys.Options = options
	sys.Provider = provider
	sys.Specified = true
	return nil
}

// Get implements flag.Value.Get
func (sys *SystemFlag) Get() interface{} {
	return sys.String()
}

// Flags represents all of the flags that can be used to configure
// an SPMD command.
type Flags struct {
	System        SystemFlag
	SystemHelp    bool
	HTTPAddress   cmdutil.NetworkAddressFlag
	ConsoleStatus bool
	Procs         int
	Timeout       time.Duration
	TracePath     string
	fs            *flag.FlagSet
}

// Output returns an appropriate io.Writer for printing out help/usage
// messages as per the underlying flag.Flagset.
func (f *Flags) Output() io.Writer {
	if f.fs == nil {
		return os.Stderr
	}
	if wr := f.fs.Output(); wr != nil {
		return wr
	}
	return os.Stderr
}

// ExecOptions returns the exec.Options that represent the flags'
// values.
func (f *Flags) ExecOptions() ([]exec.Option, error) {
	if f.System.Provider == nil {
		if err := f.System.Set("internal"); err != nil {
			return nil, err
		}
	}
	var st status.Status
	// Ensure bigmachine's group is displayed first.
	_ = st.Group(exec.BigmachineStatusGroup)
	_ = st.Groups()

	options := []exec.Option{exec.Status(&st), f.System.Provider.ExecOption()}
	switch {
	case f.Procs > 0:
		options = append(options, exec.Procs(f.Procs))
	case f.Procs < 0:
		return nil, fmt.Errorf("invalid group size %d", f.Procs)
	default:
		options = append(options, exec.Procs(f.System.Provider.DefaultProcs()))
	}
	if f.Timeout > 0 {
		options = append(options, exec.Timeout(f.Timeout))
	}
	if f.TracePath != "" {
		options = append(options, exec.TracePath(f.TracePath))
	}
	return options, nil
}

// Defaults represents default values for the supported flags.
type Defaults struct {
	System        string
	HTTPAddress   string
	ConsoleStatus bool
	Procs         int
	Timeout       time.Duration
}

// RegisterFlags registers the SPMD command line flags with the
// supplied flag set. The flag names are prefixed with the supplied
// prefix.
func RegisterFlags(fs *flag.FlagSet, f *Flags, prefix string) {
	RegisterFlagsWithDefaults(fs, f, prefix, Defaults{
		System:      "internal",
		HTTPAddress: ":3333",
	})
}

// RegisterFlagsWithDefaults registers the SPMD command line flags
// with the supplied flag set and defaults. The flag names are
// prefixed with the supplied prefix.
func RegisterFlagsWithDefaults(fs *flag.FlagSet, f *Flags, prefix string, defaults Defaults) {
	fs.Var(&f.System, prefix+"system", SystemHelpShort(prefix))
	f.System.Set(defaults.System)
	f.System.Specified = false
	fs.Var(&f.HTTPAddress, prefix+"http", "address of http status server")
	f.HTTPAddress.Set(defaults.HTTPAddress)
	f.HTTPAddress.Specified = false
	fs.BoolVar(&f.ConsoleStatus, prefix+"console-status", defaults.ConsoleStatus, "print status to stdout")
	fs.IntVar(&f.Procs, prefix+"np", defaults.Procs, "number of ranks in the group, 0 requests an appropriate default for the system")
	fs.DurationVar(&f.Timeout, prefix+"timeout", defaults.Timeout, "maximum time a rank waits for its peers in a collective, 0 waits indefinitely")
	fs.StringVar(&f.TracePath, prefix+"trace", "", "path to which a trace of the session is written on exit")
	fs.BoolVar(&f.SystemHelp, prefix+"system-help", false, "provide help on system providers and profiles")
	f.fs = fs
}
