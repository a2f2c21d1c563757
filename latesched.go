// The public face of the simulator for the users of this package.

package latesched

import (
	"flag"

	"github.com/sirupsen/logrus"

	latesched_internal "github.com/late-sched/latesched/internal"
)

type Stats = latesched_internal.Stats
type SchedulerConfig = latesched_internal.SchedulerConfig
type LatesimConfig = latesched_internal.LatesimConfig
type WorkloadConfig = latesched_internal.WorkloadConfig
type NodeConfig = latesched_internal.NodeConfig
type TaskConfig = latesched_internal.TaskConfig

// The instance should be primed w/ the desired default *before* invoking the
// runner, typically from an init(). Its value may be modified via config and
// command line args.
func SetDefaultInstance(instance string) {
	latesched_internal.Instance = instance
}

// Set the config flag default value, typically to
// <default_instance>-config.yaml:
func SetDefaultConfigFile(filePath string) {
	if configFlag := flag.Lookup(latesched_internal.CONFIG_FLAG_NAME); configFlag != nil {
		if err := configFlag.Value.Set(filePath); err == nil {
			configFlag.DefValue = filePath
		}
	}
}

// Update build info: version (semver) and git info. This function should be
// called *before* the runner is invoked, typically from an init() function.
func UpdateBuildInfo(version, gitInfo string) {
	latesched_internal.Version = version
	latesched_internal.GitInfo = gitInfo
}

// Get the instance, which is typically set from the command line or config.
func GetInstance() string {
	return latesched_internal.Instance
}

// Get the hostname, based on OS, config and/or command line arg.
func GetHostname() string {
	return latesched_internal.Hostname
}

// The root logger. Needed only for tests where the logger is captured (see
// testutils/log_collector.go), its actual type is obscured. The only use case
// for calling it is during tests, as follows:
//
//	func TestSomethingWithLogger() {
//		tlc := latesched_testutils.NewTestLogCollect(t, latesched.GetRootLogger(), nil)
//		defer tlc.RestoreLog()
//		// Everything logged via this package's logger will be captured by the
//		// tlc object and it will be displayed in the test output at the end,
//		// if the test fails or if it is run in verbose mode.
//	}
func GetRootLogger() any { return latesched_internal.RootLogger }

// Create new component logger w/ comp=compName field:
func NewCompLogger(comp string) *logrus.Entry {
	return latesched_internal.NewCompLogger(comp)
}

// When logging files, the log file name is derived from the file path
// typically relative to the module root dir. The logger maintains a list of
// prefixes to strip and the following function will add the caller's module
// path to it. The latter is inferred from the caller's file path, going up
// N dirs. Typically the call is made from main.init() so the parameter is 0
// (assuming that main.go is at the root dir of the module).
func AddCallerSrcPathPrefixToLogger(upNDirs int) {
	// skip = 1 below to base the caller's path on the caller of this function.
	latesched_internal.AddCallerSrcPathPrefixToLogger(upNDirs, 1)
}

// Build a new, unstarted scheduler from cfg (nil selects the defaults).
func NewScheduler(cfg *SchedulerConfig) (*Scheduler, error) {
	return latesched_internal.NewScheduler(cfg)
}

type Scheduler = latesched_internal.Scheduler

// The runner is the entry point for a standalone LATE scheduling simulation.
// It loads the config file (overridden by whichever command line flags were
// registered by this package; Run parses them unless the caller already
// did), builds the node pool
// and task list described by the workload, runs the scheduler to completion
// or until a shutdown signal's grace period expires, and returns a value
// suitable for use as the process exit status.
func Run() int { return latesched_internal.Run() }
