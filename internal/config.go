// Simulator configuration.

// The configuration is loaded from a YAML file, with the following
// structure:
//
//  latesim_config:
//    instance: latesim
//    use_short_hostname: false
//    shutdown_max_wait: 5s
//    log_config:
//      ...
//    scheduler_config:
//      ...
//  workload:
//    num_nodes: 4
//    nodes:
//      - id: 0
//        speed_factor: 1.2
//    num_tasks: 20
//    tasks:
//      - id: 0
//        data_size_bytes: 4096
//
// The "latesim_config" section maps to the LatesimConfig structure, defined
// in this package. The "workload" section maps to WorkloadConfig and
// describes the nodes and tasks to register with the scheduler before
// Start(); either list may be omitted in favor of the Num* count, in which
// case entries are generated with a random speed factor / a default payload
// size respectively.

package latesched_internal

import (
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	LATESIM_CONFIG_SECTION_NAME = "latesim_config"
	WORKLOAD_SECTION_NAME       = "workload"

	LATESIM_CONFIG_USE_SHORT_HOSTNAME_DEFAULT = false
	LATESIM_CONFIG_SHUTDOWN_MAX_WAIT_DEFAULT  = 5 * time.Second

	WORKLOAD_CONFIG_NUM_NODES_DEFAULT      = 4
	WORKLOAD_CONFIG_NUM_TASKS_DEFAULT      = 20
	WORKLOAD_CONFIG_TASK_DATA_SIZE_DEFAULT = 4096
)

type LatesimConfig struct {
	// The instance name, default "latesim". It may be overridden by
	// --instance command line arg.
	Instance string `yaml:"instance"`

	// Whether to use short hostname or not as the value logged for the
	// simulation host. Typically the hostname is determined from the
	// hostname system call and if the flag below is in effect, it is
	// stripped of domain part.
	UseShortHostname bool `yaml:"use_short_hostname"`

	// How long to wait for a graceful shutdown. A negative value signifies
	// indefinite wait and 0 stands for no wait at all (exit abruptly).
	ShutdownMaxWait time.Duration `yaml:"shutdown_max_wait"`

	LoggerConfig    *LoggerConfig    `yaml:"log_config"`
	SchedulerConfig *SchedulerConfig `yaml:"scheduler_config"`
}

func DefaultLatesimConfig() *LatesimConfig {
	return &LatesimConfig{
		Instance:         Instance,
		UseShortHostname: LATESIM_CONFIG_USE_SHORT_HOSTNAME_DEFAULT,
		ShutdownMaxWait:  LATESIM_CONFIG_SHUTDOWN_MAX_WAIT_DEFAULT,
		LoggerConfig:     DefaultLoggerConfig(),
		SchedulerConfig:  DefaultSchedulerConfig(),
	}
}

type NodeConfig struct {
	Id int `yaml:"id"`
	// 0 means: generate via RandomSpeedFactor().
	SpeedFactor float64 `yaml:"speed_factor"`
}

type TaskConfig struct {
	Id            int `yaml:"id"`
	DataSizeBytes int `yaml:"data_size_bytes"`
}

type WorkloadConfig struct {
	// If Nodes is empty, NumNodes nodes (at most the available CPU count, see
	// runner.go) are generated with a random speed factor each:
	NumNodes int          `yaml:"num_nodes"`
	Nodes    []NodeConfig `yaml:"nodes"`

	// If Tasks is empty, NumTasks tasks are generated with a
	// WORKLOAD_CONFIG_TASK_DATA_SIZE_DEFAULT payload each:
	NumTasks int          `yaml:"num_tasks"`
	Tasks    []TaskConfig `yaml:"tasks"`
}

func DefaultWorkloadConfig() *WorkloadConfig {
	return &WorkloadConfig{
		NumNodes: WORKLOAD_CONFIG_NUM_NODES_DEFAULT,
		NumTasks: WORKLOAD_CONFIG_NUM_TASKS_DEFAULT,
	}
}

// LoadConfig loads the configuration from the specified YAML file (or
// buffer, for testing) as follows:
//   - the latesim_config section is returned as a *LatesimConfig structure
//   - the workload section is loaded into workloadConfig, which is expected
//     to have been primed with default values (see DefaultWorkloadConfig).
func LoadConfig(cfgFile string, workloadConfig *WorkloadConfig, buf []byte) (*LatesimConfig, error) {
	if buf == nil {
		// Normal case, buf is pre-populated only for testing.
		f, err := os.Open(cfgFile)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		buf, err = io.ReadAll(f)
		if err != nil {
			return nil, fmt.Errorf("file: %q: %v", cfgFile, err)
		}
	}

	docNode := yaml.Node{}
	err := yaml.Unmarshal(buf, &docNode)
	if err != nil {
		return nil, fmt.Errorf("file: %q: %v", cfgFile, err)
	}

	latesimConfig := DefaultLatesimConfig()
	if docNode.Kind == yaml.DocumentNode && len(docNode.Content) > 0 {
		rootNode := docNode.Content[0]
		if rootNode.Kind != yaml.MappingNode {
			return nil, fmt.Errorf("file: %q: invalid YAML root node %q", cfgFile, rootNode.Tag)
		}
		var toCfg any = nil
		for _, n := range rootNode.Content {
			if n.Kind == yaml.ScalarNode {
				toCfg = nil
				switch n.Value {
				case LATESIM_CONFIG_SECTION_NAME:
					toCfg = latesimConfig
				case WORKLOAD_SECTION_NAME:
					// workloadConfig is a *WorkloadConfig and may itself be
					// nil (callers not interested in the workload section
					// pass nil); assigning it to the toCfg any unconditionally
					// would box a non-nil interface around a nil pointer, so
					// the toCfg != nil check below would wrongly pass and
					// Decode would be handed a nil target.
					if workloadConfig != nil {
						toCfg = workloadConfig
					}
				}
				continue
			}
			if n.Kind == yaml.MappingNode && toCfg != nil {
				if err = n.Decode(toCfg); err != nil {
					return nil, fmt.Errorf("file: %q: %v", cfgFile, err)
				}
			}
			toCfg = nil
		}
	}

	return latesimConfig, nil
}
