// Display scheduler progress at stdout, on a timer, instead of (or in
// addition to) whatever other reporting a caller of this package may want to
// do with Scheduler.Stats(). Modelled on the teacher's StdoutMetricsQueue:
// same buffer-pool-backed render-then-write loop, driven by a ticker instead
// of a channel since there is nothing to queue, only a snapshot to poll.

package latesched_internal

import (
	"bytes"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/docker/go-units"
)

const (
	STDOUT_STATS_SINK_BUF_POOL_MAX_SIZE = 4
)

type StdoutStatsSink struct {
	scheduler *Scheduler
	interval  time.Duration
	bufPool   *ReadFileBufPool
	doneCh    chan struct{}
	wg        *sync.WaitGroup
	firstUse  bool
}

func NewStdoutStatsSink(scheduler *Scheduler, interval time.Duration) *StdoutStatsSink {
	if interval <= 0 {
		interval = SCHEDULER_CONFIG_TICK_INTERVAL_DEFAULT
	}
	return &StdoutStatsSink{
		scheduler: scheduler,
		interval:  interval,
		bufPool:   NewBufPool(STDOUT_STATS_SINK_BUF_POOL_MAX_SIZE),
		doneCh:    make(chan struct{}),
		wg:        &sync.WaitGroup{},
		firstUse:  true,
	}
}

func (sink *StdoutStatsSink) Start() {
	sink.wg.Add(1)
	go sink.loop()
}

func (sink *StdoutStatsSink) loop() {
	defer sink.wg.Done()

	ticker := time.NewTicker(sink.interval)
	defer ticker.Stop()

	for {
		select {
		case <-sink.doneCh:
			sink.render(sink.scheduler.Stats()) // final snapshot
			return
		case <-ticker.C:
			sink.render(sink.scheduler.Stats())
		}
	}
}

func (sink *StdoutStatsSink) render(stats *Stats) {
	if sink.firstUse {
		os.Stdout.WriteString("\n# Scheduler progress will be displayed to stdout\n\n")
		sink.firstUse = false
	}

	buf := sink.bufPool.GetBuf()
	defer sink.bufPool.ReturnBuf(buf)

	fmt.Fprintf(
		buf,
		"tasks: %d/%d done, speculative: %d (stragglers: %d), processed: %s\n",
		stats.TasksCompleted, stats.TotalTasks,
		stats.SpeculativeTasks, stats.StragglersDetected,
		units.BytesSize(float64(stats.BytesProcessed)),
	)
	os.Stdout.Write(buf.Bytes())
}

// Shutdown renders one last snapshot and waits for the render loop to exit.
func (sink *StdoutStatsSink) Shutdown() {
	close(sink.doneCh)
	sink.wg.Wait()
}
