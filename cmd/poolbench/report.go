package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/tahsin716/forkjoin"
)

// report is what a benchmark run prints.
type report struct {
	Command    string         `json:"command"`
	Tasks      uint64         `json:"tasks"`
	Elapsed    time.Duration  `json:"elapsed_ns"`
	Throughput float64        `json:"tasks_per_second"`
	Stats      forkjoin.Stats `json:"stats"`
}

func newReport(command string, tasks uint64, elapsed time.Duration, stats forkjoin.Stats) report {
	r := report{
		Command: command,
		Tasks:   tasks,
		Elapsed: elapsed,
		Stats:   stats,
	}
	if elapsed > 0 {
		r.Throughput = float64(tasks) / elapsed.Seconds()
	}
	return r
}

func (r report) write(w io.Writer, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	}

	s := r.Stats
	fmt.Fprintln(w)
	fmt.Fprintf(w, "%s\n", strings.ToUpper(r.Command))
	fmt.Fprintln(w, strings.Repeat("─", 50))
	fmt.Fprintf(w, "Tasks:      %d in %s (%.0f/s)\n", r.Tasks, r.Elapsed.Round(time.Microsecond), r.Throughput)
	fmt.Fprintf(w, "Workers:    %d\n", s.NumWorkers)
	fmt.Fprintf(w, "Scheduled:  %d\n", s.Scheduled)
	fmt.Fprintf(w, "Completed:  %d\n", s.Completed)
	fmt.Fprintf(w, "Stolen:     %d\n", s.Stolen)
	fmt.Fprintf(w, "Inline:     %d\n", s.InlineExecuted)
	fmt.Fprintf(w, "Failed:     %d\n", s.Failed)
	fmt.Fprintf(w, "Parks:      %d\n", s.Parks)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "PER WORKER")
	fmt.Fprintln(w, strings.Repeat("─", 50))
	fmt.Fprintf(w, "%-6s %12s %10s %8s %8s\n", "ID", "EXECUTED", "STOLEN", "FAILED", "PARKS")
	for _, ws := range s.WorkerStats {
		fmt.Fprintf(w, "%-6d %12d %10d %8d %8d\n", ws.WorkerID, ws.TasksExecuted, ws.TasksStolen, ws.TasksFailed, ws.Parks)
	}
	return nil
}
