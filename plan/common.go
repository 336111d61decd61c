package plan

import (
	"golang.org/x/gcmm/alloc"
	"golang.org/x/gcmm/mutator"
	"golang.org/x/gcmm/space"
)

// CommonPlan is the space set every concrete plan shares regardless of its
// collection strategy: an ImmortalSpace for objects the binding promises
// never die (class metadata, interned constants) and a LargeObjectSpace
// for allocations past the normal cell-size ceiling. Every concrete plan
// in this package embeds CommonPlan alongside its own moving/non-moving
// spaces, mirroring the source's Plan/CommonPlan split.
type CommonPlan struct {
	BasePlan

	Immortal *space.ImmortalSpace
	Los      *space.LargeObjectSpace
}

func NewCommonPlan(base BasePlan, immortal *space.ImmortalSpace, los *space.LargeObjectSpace) CommonPlan {
	return CommonPlan{BasePlan: base, Immortal: immortal, Los: los}
}

// Prepare/Release reset and sweep the two shared spaces; every concrete
// plan's own Prepare/Release calls these in addition to its own spaces'.
func (c *CommonPlan) Prepare() {
	c.Los.Prepare()
}

func (c *CommonPlan) Release() {
	c.Immortal.Release()
	c.Los.Release()
}

// BindMutator installs the Immortal and Los allocators every plan exposes
// identically, regardless of which moving collector it otherwise runs.
func (c *CommonPlan) BindMutator(m *mutator.Mutator) {
	m.BindAllocator(alloc.SelectorImmortal, alloc.NewBumpAllocator(c.Immortal))
	m.BindAllocator(alloc.SelectorLOS, alloc.NewLOSAllocator(c.Los))
}

// commonAllocatorMapping is the Semantic->Selector pair every plan
// contributes on top of its own Default mapping.
func commonAllocatorMapping() alloc.AllocatorMapping {
	return alloc.AllocatorMapping{
		alloc.Immortal: alloc.SelectorImmortal,
		alloc.Los:      alloc.SelectorLOS,
		alloc.Code:     alloc.SelectorImmortal,
		alloc.ReadOnly: alloc.SelectorImmortal,
	}
}

// commonPagesReserved lets CollectionRequired account for the shared
// spaces; concrete plans add their own moving spaces' page counts on top.
func (c *CommonPlan) commonPagesReserved() int {
	return c.Immortal.ReservedPages() + c.Los.ReservedPages()
}
