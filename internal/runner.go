package latesched_internal

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/bgp59/logrusx"
)

// The runner is the main entry point for a LATE scheduling simulation.
//
// It is responsible for loading the configuration, setting up the
// environment, and running the simulation to completion.
//
// The runner creates a logger and a scheduler. It registers the nodes and
// tasks described by the workload section of the config file (or, absent an
// explicit list, a generated workload of the requested size), starts the
// scheduler and waits for it to finish.
//
// Some of the configuration parameters may be overridden via command line
// arguments. The runner parses them itself, unless the main function has
// already done so before calling it.
//
// The runner also handles the shutdown of the simulation. It waits for the
// scheduler to finish before exiting. An early shutdown may be triggered by a
// signal (SIGINT or SIGTERM) and it has a grace period: if the scheduler does
// not finish within the grace period, the runner forcefully terminates.

const (
	CONFIG_FLAG_NAME = "config"
	INSTANCE_DEFAULT = "latesim"
)

var (
	// The hostname, based on OS, config or command line arg.
	Hostname string

	// The instance should be primed w/ the desired default *before* invoking
	// the runner, most likely from an init(). Its value may be modified via
	// config and command line args.
	Instance string = INSTANCE_DEFAULT

	// Build info, normally set via init() by the user of this package.
	Version string
	GitInfo string

	// Components:
	scheduler *Scheduler
	statsSink *StdoutStatsSink
)

// Command line args; they should be defined at package scope since the flags
// are parsed by Run (or earlier by main).
var (
	versionArg = flag.Bool(
		"version",
		false,
		FormatFlagUsage(
			`Print the version and exit`,
		),
	)

	configFileArg = flag.String(
		CONFIG_FLAG_NAME,
		fmt.Sprintf("%s-config.yaml", INSTANCE_DEFAULT),
		`Config file to load`,
	)

	hostnameArg = flag.String(
		"hostname",
		"",
		FormatFlagUsage(
			`Override the the value returned by hostname syscall`,
		),
	)

	instanceArg = flag.String(
		"instance",
		"",
		FormatFlagUsage(
			`Override the "latesim_config.instance" config setting`,
		),
	)

	numNodesArg = flag.Int(
		"num-nodes",
		0,
		FormatFlagUsage(
			`Override the "workload.num_nodes" config setting; 0 means use the config value`,
		),
	)

	numTasksArg = flag.Int(
		"num-tasks",
		0,
		FormatFlagUsage(
			`Override the "workload.num_tasks" config setting; 0 means use the config value`,
		),
	)

	showProgressArg = flag.Bool(
		"show-progress",
		false,
		FormatFlagUsage(
			`Periodically print scheduler stats to stdout while the simulation runs`,
		),
	)
)

func init() {
	logrusx.EnableLoggerArgs()
}

var runnerLog = NewCompLogger("runner")

// Run is the entry point for a LATE scheduling simulation. The return value
// should be used as the process exit status.
func Run() int {
	var (
		err           error
		shutdownTimer *time.Timer
		latesimConfig *LatesimConfig
	)

	if !flag.Parsed() {
		flag.Parse()
	}

	if *versionArg {
		fmt.Fprintf(os.Stderr, "Version: %s, GitInfo: %s\n", Version, GitInfo)
		return 0
	}

	workloadConfig := DefaultWorkloadConfig()
	configFile := *configFileArg
	latesimConfig, err = LoadConfig(configFile, workloadConfig, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config file: %v\n", err)
		return 1
	}

	// Override the config with command line args:
	if *instanceArg != "" {
		latesimConfig.Instance = *instanceArg
	}
	if *numNodesArg > 0 {
		workloadConfig.NumNodes = *numNodesArg
	}
	if *numTasksArg > 0 {
		workloadConfig.NumTasks = *numTasksArg
	}
	logrusx.ApplySetLoggerArgs(latesimConfig.LoggerConfig)

	// Set the logger level and file:
	err = SetLogger(latesimConfig.LoggerConfig)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error setting the logger: %v\n", err)
		return 1
	}

	// Set the globals:
	Instance = latesimConfig.Instance
	if *hostnameArg != "" {
		Hostname = *hostnameArg
	} else {
		Hostname, err = os.Hostname()
		if err != nil {
			runnerLog.Errorf("Error getting hostname: %v", err)
			return 1
		}
		if latesimConfig.UseShortHostname {
			i := strings.Index(Hostname, ".")
			if i > 0 {
				Hostname = Hostname[:i]
			}
		}
	}

	// Create a stopped timer to provide timeout support at shutdown. The
	// shutdown of the various components is performed via `defer` functions,
	// executed in LIFO order, so the timer's stop should be registered 1st.
	if latesimConfig.ShutdownMaxWait > 0 {
		shutdownTimer = time.NewTimer(1 * time.Hour)
		shutdownTimer.Stop()
		defer shutdownTimer.Stop()
	}

	// Scheduler:
	scheduler, err = NewScheduler(latesimConfig.SchedulerConfig)
	if err != nil {
		runnerLog.Fatal(err)
	}

	// Populate the node pool: an explicit list takes precedence over the
	// generated default, clamped to the host's available CPUs so that the
	// simulation does not vastly oversubscribe the machine it runs on.
	if len(workloadConfig.Nodes) > 0 {
		for _, nodeCfg := range workloadConfig.Nodes {
			speedFactor := nodeCfg.SpeedFactor
			if speedFactor <= 0 {
				speedFactor = RandomSpeedFactor()
			}
			if err := scheduler.AddNode(nodeCfg.Id, speedFactor); err != nil {
				runnerLog.Fatal(err)
			}
		}
	} else {
		numNodes := workloadConfig.NumNodes
		if numNodes > AvailableCPUCount {
			runnerLog.Warnf(
				"num_nodes %d clamped to available CPU count %d", numNodes, AvailableCPUCount,
			)
			numNodes = AvailableCPUCount
		}
		for i := 0; i < numNodes; i++ {
			if err := scheduler.AddNode(i, RandomSpeedFactor()); err != nil {
				runnerLog.Fatal(err)
			}
		}
	}

	// Populate the task list: an explicit list takes precedence over the
	// generated default, whose payloads are synthetic, fixed-size buffers.
	if len(workloadConfig.Tasks) > 0 {
		for _, taskCfg := range workloadConfig.Tasks {
			size := taskCfg.DataSizeBytes
			if size <= 0 {
				size = WORKLOAD_CONFIG_TASK_DATA_SIZE_DEFAULT
			}
			if err := scheduler.AddTask(taskCfg.Id, make([]byte, size)); err != nil {
				runnerLog.Fatal(err)
			}
		}
	} else {
		for i := 0; i < workloadConfig.NumTasks; i++ {
			if err := scheduler.AddTask(i, make([]byte, WORKLOAD_CONFIG_TASK_DATA_SIZE_DEFAULT)); err != nil {
				runnerLog.Fatal(err)
			}
		}
	}

	if *showProgressArg {
		statsSink = NewStdoutStatsSink(scheduler, latesimConfig.SchedulerConfig.TickInterval*10)
		statsSink.Start()
		defer statsSink.Shutdown()
	}

	if err := scheduler.Start(); err != nil {
		runnerLog.Fatal(err)
	}

	// Log instance, hostname and the simulation host's environment, useful
	// for dashboard variable selection and for explaining away a run whose
	// timings look off because it shared the box with something else:
	runnerLog.Infof(
		"Instance: %s, Hostname: %s, nodes: %d, tasks: %d, os: %s, uptime_since: %s, clktck: %d",
		Instance, Hostname, scheduler.NumNodes(), workloadConfig.NumTasks,
		OsRelease["pretty_name"], BootTime.Format(time.RFC3339), Clktck,
	)

	// Block until either the scheduler finishes on its own, or a signal
	// requests an early shutdown:
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	doneCh := make(chan struct{})
	go func() {
		scheduler.Join()
		close(doneCh)
	}()

	select {
	case <-doneCh:
		logCompletion()
		return 0
	case sig := <-sigChan:
		if latesimConfig.ShutdownMaxWait == 0 {
			runnerLog.Fatalf("%s signal received, force exit", sig)
		}
		runnerLog.Warnf("%s signal received, shutting down", sig)
	}

	if shutdownTimer != nil {
		shutdownTimer.Reset(latesimConfig.ShutdownMaxWait)
		select {
		case <-doneCh:
			logCompletion()
		case <-shutdownTimer.C:
			runnerLog.Fatalf("shutdown timed out after %s, force exit", latesimConfig.ShutdownMaxWait)
		}
	} else {
		<-doneCh
	}

	return 0
}

// logCompletion reports the final scheduler stats plus this process's own
// CPU time, so a caller can sanity-check the simulation's overhead against
// the workload it just ran.
func logCompletion() {
	stats := scheduler.Stats()
	cpuTime, err := GetMyCpuTime()
	if err != nil {
		runnerLog.Infof(
			"simulation completed: tasks=%d/%d speculative=%d stragglers=%d",
			stats.TasksCompleted, stats.TotalTasks, stats.SpeculativeTasks, stats.StragglersDetected,
		)
		return
	}
	runnerLog.Infof(
		"simulation completed: tasks=%d/%d speculative=%d stragglers=%d cpu_time=%.3fs",
		stats.TasksCompleted, stats.TotalTasks, stats.SpeculativeTasks, stats.StragglersDetected, cpuTime,
	)
}
