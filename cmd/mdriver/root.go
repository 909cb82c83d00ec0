package main

import (
	"fmt"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/spf13/cobra"
	"github.com/vkngwrapper/segheap/heap"
	"github.com/vkngwrapper/segheap/internal/trace"
	"github.com/vkngwrapper/segheap/memutils"
	"github.com/vkngwrapper/segheap/memutils/freelist"
	"golang.org/x/exp/slog"
)

var (
	policyName   string
	chunkSize    int
	heapLimit    int
	validateEach bool
	verbose      bool
	jsonOut      bool
)

var rootCmd = &cobra.Command{
	Use:   "mdriver <trace>...",
	Short: "Replay allocation traces against a segregated-fit heap",
	Long: `mdriver replays allocation traces against a fresh heap per trace file. Every
payload is filled and checked, live payloads are checked for overlap, and the
heap's utilization is reported once the trace completes.

Example:
  mdriver traces/*.rep
  mdriver --policy single --validate traces/realloc.rep
  mdriver --json traces/short.rep`,
	Args:          cobra.MinimumNArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTraces(args)
	},
}

func init() {
	rootCmd.Flags().StringVar(&policyName, "policy", "graduated", "Free-list policy: single or graduated")
	rootCmd.Flags().IntVar(&chunkSize, "chunk", heap.DefaultChunkSize, "Minimum number of bytes to grow the heap by")
	rootCmd.Flags().IntVar(&heapLimit, "limit", 0, "Maximum heap size in bytes (0 for the default)")
	rootCmd.Flags().BoolVar(&validateEach, "validate", false, "Validate the heap after every operation")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Log every heap operation")
	rootCmd.Flags().BoolVar(&jsonOut, "json", false, "Print the final heap map of each trace as JSON")
}

func execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func runTraces(paths []string) error {
	policy, ok := freelist.PolicyByName(policyName)
	if !ok {
		return errors.Newf("unknown policy %q", policyName)
	}

	logger := newLogger()
	failures := 0
	for _, path := range paths {
		err := runTrace(logger, policy, path)
		if err != nil {
			logger.Error("trace failed", slog.String("Trace", path), slog.Any("error", err))
			failures++
		}
	}

	if failures > 0 {
		return errors.Newf("%d of %d traces failed", failures, len(paths))
	}
	return nil
}

func runTrace(logger *slog.Logger, policy freelist.FreeListPolicy, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	parsed, err := trace.Parse(file)
	if err != nil {
		return err
	}

	h, err := heap.New(logger.With(slog.String("Trace", path)), heap.CreateOptions{
		Policy:      policy,
		ChunkSize:   chunkSize,
		MaxHeapSize: heapLimit,
	})
	if err != nil {
		return err
	}

	result, err := trace.Replay(h, parsed, trace.ReplayOptions{
		Validate: validateEach,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	err = h.CheckHeap(false)
	if err != nil {
		return err
	}

	err = h.CheckCorruption()
	if err != nil {
		return err
	}

	var stats memutils.Statistics
	h.AddStatistics(&stats)
	fmt.Printf("%s\t%s\tops=%d\theap=%d\tfree=%d\tutil=%.1f%%\n",
		path, policy, result.Ops, result.HeapBytes, stats.FreeBytes, 100*result.Utilization())

	if jsonOut {
		writer := jwriter.NewWriter()
		h.PrintDetailedMap(&writer)
		if err := writer.Error(); err != nil {
			return err
		}
		fmt.Println(string(writer.Bytes()))
	}

	return nil
}
