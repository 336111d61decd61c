// Package gcmm is the toolkit's external API: Builder configures a heap
// before anything is mapped, MMTk.Init wires together the Plan and spaces
// a configuration selects, and the resulting MMTk is what a binding drives
// mutator allocation and collection cycles through. Everything under
// address/, alloc/, barrier/, mmapper/, mutator/, pageresource/, plan/,
// scheduler/, sft/, sidemetadata/, slot/, space/ and vmmap/ is internal
// machinery this package assembles; vm is the only other package a
// binding needs to know about, for the traits it must implement.
package gcmm

import (
	"strconv"

	"golang.org/x/gcmm/plan"
	"golang.org/x/gcmm/vm"
)

// ErrorKind re-exports vm.ErrorKind under this package's name, since a
// binding's OutOfMemory callback is declared in terms of vm.ErrorKind but
// every other piece of this package's surface lives under gcmm.
type ErrorKind = vm.ErrorKind

const (
	HeapOutOfMemory = vm.HeapOutOfMemory
	MmapOutOfMemory = vm.MmapOutOfMemory
)

// Builder accumulates the options a binding sets (either one call at a
// time via SetOption, matching a C ABI's string-keyed option table, or in
// bulk via LoadConfigFile) before Init maps anything. A Builder is not
// reusable across two Init calls that should be independent: build one
// per heap.
type Builder struct {
	cfg     plan.Config
	threads int

	ignoreSystemGC   bool
	noFinalizer      bool
	noReferenceTypes bool
}

// NewBuilder returns a Builder seeded with plan.DefaultConfig.
func NewBuilder() *Builder {
	return &Builder{cfg: plan.DefaultConfig(), threads: 1}
}

// SetOption sets a single named option, the per-call form a binding uses
// when it only wants to override a handful of defaults. It returns false
// (changing nothing) for an unrecognized name or a value that fails to
// parse or validate, so a binding can fail initialization loudly rather
// than silently running with an ignored option.
func (b *Builder) SetOption(name, value string) bool {
	switch name {
	case "plan":
		if _, err := (plan.Config{Plan: value}).KindOf(); err != nil {
			return false
		}
		b.cfg.Plan = value
		return true
	case "threads":
		n, err := strconv.Atoi(value)
		if err != nil || n < 1 {
			return false
		}
		b.threads = n
		return true
	case "stress_factor":
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil || n < 0 {
			return false
		}
		b.cfg.StressFactor = n
		return true
	case "ignore_system_gc":
		v, err := strconv.ParseBool(value)
		if err != nil {
			return false
		}
		b.ignoreSystemGC = v
		return true
	case "no_finalizer":
		v, err := strconv.ParseBool(value)
		if err != nil {
			return false
		}
		b.noFinalizer = v
		return true
	case "no_reference_types":
		v, err := strconv.ParseBool(value)
		if err != nil {
			return false
		}
		b.noReferenceTypes = v
		return true
	default:
		return false
	}
}

// SetFixedHeapSize overrides the configured heap size directly, the
// programmatic alternative to the "heap_size_mb" config-file field.
func (b *Builder) SetFixedHeapSize(bytes uintptr) bool {
	if bytes == 0 {
		return false
	}
	b.cfg.HeapSizeMB = int(bytes / (1 << 20))
	return true
}

// LoadConfigFile replaces the Builder's plan/heap/nursery/stress settings
// with those in a gcmm.toml file, validating the plan name the same way
// SetOption("plan", ...) does.
func (b *Builder) LoadConfigFile(path string) error {
	cfg, err := plan.LoadConfig(path)
	if err != nil {
		return err
	}
	b.cfg = cfg
	return nil
}
