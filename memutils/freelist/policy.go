package freelist

// FreeListPolicy decides how free blocks are split between exact-size small bins and the size-ordered
// tree, and whether allocated blocks keep their footers. A heap picks its policy at construction and
// never changes it.
type FreeListPolicy interface {
	// SmallClassIndex returns the bin that holds free blocks of exactly size bytes, or -1 if blocks of
	// that size belong in the tree
	SmallClassIndex(size uint32) int
	// SmallClassCount is the number of small bins
	SmallClassCount() int
	// SmallClassSize is the block size held by bin index
	SmallClassSize(index int) uint32
	// OmitAllocatedFooters reports whether allocated blocks drop their footer and heads cache the
	// allocation state of the preceding block instead
	OmitAllocatedFooters() bool
	String() string
}

// SingleListPolicy keeps one small bin for minimum-sized blocks and places everything else in the tree.
// Every block carries a footer.
type SingleListPolicy struct{}

var _ FreeListPolicy = SingleListPolicy{}

func (p SingleListPolicy) SmallClassIndex(size uint32) int {
	if size == 16 {
		return 0
	}
	return -1
}

func (p SingleListPolicy) SmallClassCount() int { return 1 }

func (p SingleListPolicy) SmallClassSize(index int) uint32 {
	if index != 0 {
		panic("invalid small class index")
	}
	return 16
}

func (p SingleListPolicy) OmitAllocatedFooters() bool { return false }

func (p SingleListPolicy) String() string { return "Single" }

const (
	graduatedClassCount = 5
	graduatedMinSize    = 16
	graduatedStep       = 8
)

// GraduatedPolicy keeps five small bins, one per block size from 16 to 48 bytes, and places larger
// blocks in the tree. Allocated blocks omit their footer.
type GraduatedPolicy struct{}

var _ FreeListPolicy = GraduatedPolicy{}

func (p GraduatedPolicy) SmallClassIndex(size uint32) int {
	if size < graduatedMinSize || size%graduatedStep != 0 {
		return -1
	}

	index := int((size - graduatedMinSize) / graduatedStep)
	if index >= graduatedClassCount {
		return -1
	}
	return index
}

func (p GraduatedPolicy) SmallClassCount() int { return graduatedClassCount }

func (p GraduatedPolicy) SmallClassSize(index int) uint32 {
	if index < 0 || index >= graduatedClassCount {
		panic("invalid small class index")
	}
	return graduatedMinSize + uint32(index)*graduatedStep
}

func (p GraduatedPolicy) OmitAllocatedFooters() bool { return true }

func (p GraduatedPolicy) String() string { return "Graduated" }

// PolicyByName returns the policy whose String matches name, or false if there is none
func PolicyByName(name string) (FreeListPolicy, bool) {
	switch name {
	case "single", "Single":
		return SingleListPolicy{}, true
	case "graduated", "Graduated":
		return GraduatedPolicy{}, true
	}
	return nil, false
}
