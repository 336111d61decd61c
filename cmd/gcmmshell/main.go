// The gcmmshell tool is an interactive, readline-driven shell for poking
// at a live gcmm heap: allocate objects, link them into each other,
// root or unroot them, and trigger a collection, observing the effects
// on addresses and liveness one command at a time. It plays the role
// the teacher's ogle eval loop plays for a live traced process, but
// against an in-process mock binding rather than a ptraced one.
package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/chzyer/readline"

	"golang.org/x/gcmm"
	"golang.org/x/gcmm/address"
	"golang.org/x/gcmm/alloc"
	"golang.org/x/gcmm/mutator"
	"golang.org/x/gcmm/slot"
	"golang.org/x/gcmm/vm"
	"golang.org/x/gcmm/vm/mock"
)

const helpText = `Commands:
  alloc <slots>        allocate an object with <slots> reference fields, print its handle
  link <h1> <i> <h2>   store h2's reference into h1's slot i
  root <h>             add h as a GC root, tracked through future moves
  unroot <h>           stop rooting h
  gc                   trigger a collection
  stat                 print used/free/total bytes
  objs                 list live handles and their current address
  help                 print this message
  quit                 exit
`

// session tracks handle -> current reference. Rooted handles are kept
// accurate across a moving GC by re-reading their root slot afterward;
// unrooted handles are a snapshot only valid until the next collection.
type session struct {
	mmtk    *gcmm.MMTk
	tls     vm.TLS
	mu      *mutator.Mutator
	binding *mock.Binding

	nextHandle int
	objects    map[int]address.ObjectReference
	rootSlots  map[int]slot.Simple
}

func main() {
	b := gcmm.NewBuilder()
	b.SetOption("plan", "semispace")
	b.SetFixedHeapSize(4 << 20)

	model := mock.ObjectModel{}
	binding := &mock.Binding{}
	m, err := gcmm.Init(b, model, binding, binding)
	if err != nil {
		fmt.Println("gcmmshell: init:", err)
		return
	}
	tls := vm.TLS(1)
	mu := m.BindMutator(tls)

	s := &session{
		mmtk:      m,
		tls:       tls,
		mu:        mu,
		binding:   binding,
		objects:   make(map[int]address.ObjectReference),
		rootSlots: make(map[int]slot.Simple),
	}

	rl, err := readline.New("gcmm> ")
	if err != nil {
		fmt.Println("gcmmshell:", err)
		return
	}
	defer rl.Close()

	fmt.Print(helpText)
	for {
		line, err := rl.Readline()
		if err != nil {
			return
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		if fields[0] == "quit" || fields[0] == "exit" {
			return
		}
		if err := s.dispatch(fields); err != nil {
			fmt.Println("error:", err)
		}
	}
}

func (s *session) dispatch(fields []string) error {
	switch fields[0] {
	case "help":
		fmt.Print(helpText)
	case "alloc":
		if len(fields) != 2 {
			return fmt.Errorf("usage: alloc <slots>")
		}
		n, err := strconv.Atoi(fields[1])
		if err != nil {
			return err
		}
		return s.alloc(n)
	case "link":
		if len(fields) != 4 {
			return fmt.Errorf("usage: link <h1> <i> <h2>")
		}
		h1, err := strconv.Atoi(fields[1])
		if err != nil {
			return err
		}
		i, err := strconv.Atoi(fields[2])
		if err != nil {
			return err
		}
		h2, err := strconv.Atoi(fields[3])
		if err != nil {
			return err
		}
		return s.link(h1, i, h2)
	case "root":
		if len(fields) != 2 {
			return fmt.Errorf("usage: root <h>")
		}
		h, err := strconv.Atoi(fields[1])
		if err != nil {
			return err
		}
		return s.root(h)
	case "unroot":
		if len(fields) != 2 {
			return fmt.Errorf("usage: unroot <h>")
		}
		h, err := strconv.Atoi(fields[1])
		if err != nil {
			return err
		}
		s.unroot(h)
	case "gc":
		s.mmtk.HandleUserCollectionRequest(s.tls)
		s.refreshRooted()
		fmt.Println("collection complete")
	case "stat":
		fmt.Printf("used=%d free=%d total=%d\n", s.mmtk.UsedBytes(), s.mmtk.FreeBytes(), s.mmtk.TotalBytes())
	case "objs":
		for h, ref := range s.objects {
			fmt.Printf("%d: %s live=%v\n", h, ref.String(), s.mmtk.IsLiveObject(ref))
		}
	default:
		return fmt.Errorf("unknown command %q, try help", fields[0])
	}
	return nil
}

func (s *session) alloc(nSlots int) error {
	size := mock.ObjectSize(nSlots)
	addr := s.mmtk.Alloc(s.tls, s.mu, size, 8, 0, alloc.Default)
	if addr.IsZero() {
		return fmt.Errorf("allocation failed")
	}
	obj := mock.AllocateObject(addr, nSlots)
	s.mmtk.PostAlloc(obj, size, alloc.Default)
	h := s.nextHandle
	s.nextHandle++
	s.objects[h] = obj
	fmt.Printf("%d: %s\n", h, obj.String())
	return nil
}

func (s *session) link(h1, i, h2 int) error {
	ref1, ok := s.objects[h1]
	if !ok {
		return fmt.Errorf("no such handle %d", h1)
	}
	ref2, ok := s.objects[h2]
	if !ok {
		return fmt.Errorf("no such handle %d", h2)
	}
	mock.SlotAt(ref1, i).Store(ref2)
	return nil
}

func (s *session) root(h int) error {
	ref, ok := s.objects[h]
	if !ok {
		return fmt.Errorf("no such handle %d", h)
	}
	if _, already := s.rootSlots[h]; already {
		return nil
	}
	addr := s.mmtk.Alloc(s.tls, s.mu, 8, 8, 0, alloc.Immortal)
	sl := slot.Simple{At: addr}
	sl.Store(ref)
	s.rootSlots[h] = sl
	s.binding.AddRoot(sl)
	return nil
}

func (s *session) unroot(h int) {
	delete(s.rootSlots, h)
	s.binding.ClearRoots()
	for _, sl := range s.rootSlots {
		s.binding.AddRoot(sl)
	}
}

// refreshRooted re-reads every rooted handle's current reference from its
// root slot, which the collection's trace may have overwritten with a
// forwarded address.
func (s *session) refreshRooted() {
	for h, sl := range s.rootSlots {
		if ref, ok := sl.Load(); ok {
			s.objects[h] = ref
		}
	}
}
