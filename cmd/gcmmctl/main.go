// The gcmmctl tool builds a heap from a gcmm.toml-shaped configuration,
// drives a synthetic allocation workload against it through the mock
// binding, and prints a few overall statistics. Run "gcmmctl help" for a
// list of commands.
package main

import (
	"fmt"
	"math/rand"
	"os"
	"text/tabwriter"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"golang.org/x/gcmm"
	"golang.org/x/gcmm/address"
	"golang.org/x/gcmm/alloc"
	"golang.org/x/gcmm/slot"
	"golang.org/x/gcmm/vm"
	"golang.org/x/gcmm/vm/mock"
)

var log = logrus.StandardLogger()

func main() {
	root := &cobra.Command{
		Use:   "gcmmctl",
		Short: "build and drive a gcmm heap from the command line",
	}
	root.AddCommand(newPlansCmd())
	root.AddCommand(newRunCmd())
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newPlansCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "plans",
		Short: "list the plan kinds a config file's plan field accepts",
		Run: func(cmd *cobra.Command, args []string) {
			for _, name := range []string{"nogc", "semispace", "gencopy", "immix", "marksweep", "markcompact", "compressor", "stickyimmix"} {
				fmt.Println(name)
			}
		},
	}
}

func newRunCmd() *cobra.Command {
	var (
		configPath string
		planName   string
		heapMB     int
		objects    int
		objSize    int
		threads    int
		seed       int64
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "build a heap and run a synthetic allocation workload against it",
		RunE: func(cmd *cobra.Command, args []string) error {
			b := gcmm.NewBuilder()
			if configPath != "" {
				if err := b.LoadConfigFile(configPath); err != nil {
					return err
				}
			}
			if planName != "" && !b.SetOption("plan", planName) {
				return fmt.Errorf("gcmmctl: unrecognized plan %q", planName)
			}
			if heapMB > 0 && !b.SetFixedHeapSize(uintptr(heapMB)<<20) {
				return fmt.Errorf("gcmmctl: invalid heap size %dMB", heapMB)
			}
			if threads > 0 {
				b.SetOption("threads", fmt.Sprint(threads))
			}

			model := mock.ObjectModel{}
			binding := &mock.Binding{}
			m, err := gcmm.Init(b, model, binding, binding)
			if err != nil {
				return fmt.Errorf("gcmmctl: init: %w", err)
			}

			tls := vm.TLS(1)
			mu := m.BindMutator(tls)
			rng := rand.New(rand.NewSource(seed))

			log.WithFields(logrus.Fields{"objects": objects, "objSize": objSize}).Info("running workload")
			var roots []address.ObjectReference
			for i := 0; i < objects; i++ {
				nSlots := objSize / 8
				if nSlots < 0 {
					nSlots = 0
				}
				size := mock.ObjectSize(nSlots)
				addr := m.Alloc(tls, mu, size, 8, 0, alloc.Default)
				if addr.IsZero() {
					log.Error("allocation failed")
					continue
				}
				obj := mock.AllocateObject(addr, nSlots)
				m.PostAlloc(obj, size, alloc.Default)
				if rng.Intn(4) != 0 {
					roots = append(roots, obj)
				}
			}
			rootsBase := m.Alloc(tls, mu, uintptr(8*len(roots)), 8, 0, alloc.Immortal)
			for i, obj := range roots {
				s := slot.Simple{At: rootsBase.Add(uintptr(8 * i))}
				s.Store(obj)
				binding.AddRoot(s)
			}
			m.HandleUserCollectionRequest(tls)
			printStats(m)
			return nil
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "gcmm.toml config file")
	cmd.Flags().StringVar(&planName, "plan", "", "plan kind, overrides the config file")
	cmd.Flags().IntVar(&heapMB, "heap-mb", 0, "fixed heap size in MB, overrides the config file")
	cmd.Flags().IntVar(&objects, "objects", 1000, "number of objects to allocate")
	cmd.Flags().IntVar(&objSize, "obj-size", 32, "payload bytes per object, rounded down to a slot count")
	cmd.Flags().IntVar(&threads, "threads", 0, "GC worker count, overrides the config file")
	cmd.Flags().Int64Var(&seed, "seed", 1, "PRNG seed for which allocations are kept live")
	return cmd
}

func printStats(m *gcmm.MMTk) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "used bytes\t%d\n", m.UsedBytes())
	fmt.Fprintf(w, "free bytes\t%d\n", m.FreeBytes())
	fmt.Fprintf(w, "total bytes\t%d\n", m.TotalBytes())
	w.Flush()
}
