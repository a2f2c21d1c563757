package main

import (
	"fmt"
	"os"

	"github.com/late-sched/latesched"
)

const (
	DEFAULT_INSTANCE = "latesim"
)

// Build info, normally populated via -ldflags at build time:
var (
	Version = "dev"
	GitInfo = ""
)

var mainLog = latesched.NewCompLogger(DEFAULT_INSTANCE)

// Customize the framework for this particular instance. This should be done
// before invoking `latesched.Run`, so it is best done via `init()`.
func init() {
	// Add the prefix to strip when logging source file paths for messages
	// from this module, based on the location of this file:
	latesched.AddCallerSrcPathPrefixToLogger(2) // this file is at cmd/latesim

	latesched.SetDefaultInstance(DEFAULT_INSTANCE)
	latesched.SetDefaultConfigFile(fmt.Sprintf("%s-config.yaml", DEFAULT_INSTANCE))
	latesched.UpdateBuildInfo(Version, GitInfo)
}

func main() {
	mainLog.Info("Start")
	os.Exit(latesched.Run())
}
