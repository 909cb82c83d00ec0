package freelist_test

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/segheap/memutils/block"
	"github.com/vkngwrapper/segheap/memutils/freelist"
)

type testMemory []byte

func (m testMemory) Bytes() []byte { return m }

type fixture struct {
	codec block.Codec
	index *freelist.Index
	next  uint32
}

func newFixture(policy freelist.FreeListPolicy) *fixture {
	mem := make(testMemory, 1<<18)
	codec := block.NewCodec(mem, policy.OmitAllocatedFooters())
	return &fixture{
		codec: codec,
		index: freelist.NewIndex(codec, policy),
		next:  block.Alignment,
	}
}

// block lays out a new free block after the previous one. The blocks are never coalesced, so physical
// neighbours being free does not matter here.
func (f *fixture) block(size uint32) uint32 {
	bp := f.next
	f.codec.Mark(bp, size, false, true)
	f.next += size
	return bp
}

func (f *fixture) insert(sizes ...uint32) []uint32 {
	var blocks []uint32
	for _, size := range sizes {
		bp := f.block(size)
		f.index.Insert(bp)
		blocks = append(blocks, bp)
	}
	return blocks
}

func (f *fixture) members(t *testing.T) map[uint32]struct{} {
	members := make(map[uint32]struct{})
	err := f.index.Validate(func(bp uint32) error {
		_, duplicate := members[bp]
		require.False(t, duplicate, "block %d visited twice", bp)
		members[bp] = struct{}{}
		return nil
	})
	require.NoError(t, err)
	return members
}

func (f *fixture) drainSizes(t *testing.T, request uint32) []uint32 {
	var sizes []uint32
	for {
		bp := f.index.FindBestFit(request)
		if bp == 0 {
			break
		}
		sizes = append(sizes, f.codec.SizeOf(bp))
		f.members(t)
	}
	require.Equal(t, 0, f.index.Count())
	require.Equal(t, 0, f.index.FreeBytes())
	return sizes
}

func TestIndexPolicyMismatch(t *testing.T) {
	codec := block.NewCodec(make(testMemory, 64), false)
	require.Panics(t, func() {
		freelist.NewIndex(codec, freelist.GraduatedPolicy{})
	})
}

func TestIndexSmallBinsAreLIFO(t *testing.T) {
	f := newFixture(freelist.GraduatedPolicy{})
	blocks := f.insert(24, 24, 24)
	require.Equal(t, 3, f.index.Count())
	require.Equal(t, 72, f.index.FreeBytes())

	require.Equal(t, blocks[2], f.index.FindBestFit(24))
	f.index.Remove(blocks[0])
	require.Len(t, f.members(t), 1)
	require.Equal(t, blocks[1], f.index.FindBestFit(24))
	require.Equal(t, uint32(0), f.index.FindBestFit(24))
}

func TestIndexSmallRequestFallsThrough(t *testing.T) {
	f := newFixture(freelist.GraduatedPolicy{})
	blocks := f.insert(200, 40)

	require.Equal(t, blocks[1], f.index.FindBestFit(16))
	require.Equal(t, blocks[0], f.index.FindBestFit(16))
	require.Equal(t, uint32(0), f.index.FindBestFit(16))
}

func TestIndexSinglePolicyTreeHoldsLargerBlocks(t *testing.T) {
	f := newFixture(freelist.SingleListPolicy{})
	blocks := f.insert(24, 16, 32)

	require.Equal(t, blocks[1], f.index.FindBestFit(16))
	require.Equal(t, blocks[0], f.index.FindBestFit(16))
	require.Equal(t, blocks[2], f.index.FindBestFit(24))
	require.Equal(t, 0, f.index.Count())
}

func TestIndexTreeRemoval(t *testing.T) {
	testCases := []struct {
		name   string
		sizes  []uint32
		remove int
	}{
		{name: "Leaf", sizes: []uint32{200, 120, 280}, remove: 1},
		{name: "RootOnly", sizes: []uint32{200}, remove: 0},
		{name: "OnlyLeftChild", sizes: []uint32{200, 120, 80}, remove: 1},
		{name: "OnlyRightChild", sizes: []uint32{200, 120, 160, 136}, remove: 1},
		{name: "RightChildWithoutLeft", sizes: []uint32{200, 120, 280, 320}, remove: 0},
		{name: "LeftmostOfRightSubtree", sizes: []uint32{200, 120, 280, 240, 224, 232, 320}, remove: 0},
		{name: "LeftmostDeepInSubtree", sizes: []uint32{400, 200, 120, 280, 240, 224, 232, 256, 320}, remove: 1},
		{name: "ChainHeadPromotion", sizes: []uint32{200, 120, 280, 200}, remove: 3},
		{name: "ChainHeadPromotionAtLeaf", sizes: []uint32{200, 120, 280, 120, 120}, remove: 4},
		{name: "ChainLinkInMiddle", sizes: []uint32{200, 200, 200, 120}, remove: 1},
		{name: "ChainLinkAtTail", sizes: []uint32{200, 280, 280, 280}, remove: 1},
	}

	for _, policy := range []freelist.FreeListPolicy{freelist.SingleListPolicy{}, freelist.GraduatedPolicy{}} {
		for _, testCase := range testCases {
			t.Run(policy.String()+"/"+testCase.name, func(t *testing.T) {
				f := newFixture(policy)
				blocks := f.insert(testCase.sizes...)
				require.Len(t, f.members(t), len(blocks))

				f.index.Remove(blocks[testCase.remove])
				members := f.members(t)
				require.Len(t, members, len(blocks)-1)
				require.NotContains(t, members, blocks[testCase.remove])

				var expected []uint32
				for index, size := range testCase.sizes {
					if index != testCase.remove {
						expected = append(expected, size)
					}
				}
				sort.Slice(expected, func(i, j int) bool { return expected[i] < expected[j] })

				require.Equal(t, expected, f.drainSizes(t, 56))
			})
		}
	}
}

func TestIndexChainIsLIFO(t *testing.T) {
	f := newFixture(freelist.GraduatedPolicy{})
	blocks := f.insert(200, 120, 200, 280, 200)

	require.Equal(t, blocks[4], f.index.FindBestFit(200))
	require.Equal(t, blocks[2], f.index.FindBestFit(192))
	require.Equal(t, blocks[0], f.index.FindBestFit(200))
	require.Equal(t, blocks[3], f.index.FindBestFit(200))
	require.Equal(t, uint32(0), f.index.FindBestFit(200))
	require.Len(t, f.members(t), 1)
}

func TestIndexBestFitMatchesOracle(t *testing.T) {
	for _, policy := range []freelist.FreeListPolicy{freelist.SingleListPolicy{}, freelist.GraduatedPolicy{}} {
		t.Run(policy.String(), func(t *testing.T) {
			rng := rand.New(rand.NewSource(7))
			f := newFixture(policy)

			var pool []uint32
			for len(pool) < 400 {
				pool = append(pool, f.block(uint32(2+rng.Intn(60))*block.Alignment))
			}

			indexed := make(map[uint32]struct{})
			for step := 0; step < 5000; step++ {
				switch op := rng.Intn(10); {
				case op < 5:
					bp := pool[rng.Intn(len(pool))]
					if _, ok := indexed[bp]; ok {
						continue
					}
					f.index.Insert(bp)
					indexed[bp] = struct{}{}
				case op < 9:
					request := uint32(2+rng.Intn(64)) * block.Alignment
					var best uint32
					for bp := range indexed {
						size := f.codec.SizeOf(bp)
						if size >= request && (best == 0 || size < best) {
							best = size
						}
					}

					bp := f.index.FindBestFit(request)
					if best == 0 {
						require.Equal(t, uint32(0), bp, "step %d: request %d", step, request)
						continue
					}
					require.Contains(t, indexed, bp)
					require.Equal(t, best, f.codec.SizeOf(bp), "step %d: request %d", step, request)
					delete(indexed, bp)
				default:
					for bp := range indexed {
						f.index.Remove(bp)
						delete(indexed, bp)
						break
					}
				}

				members := f.members(t)
				require.Len(t, members, len(indexed))
			}
		})
	}
}

func TestIndexResetLinksAndClear(t *testing.T) {
	f := newFixture(freelist.GraduatedPolicy{})
	blocks := f.insert(200, 120, 280, 16, 16)

	f.index.Clear()
	require.Equal(t, 0, f.index.Count())
	require.Equal(t, 0, f.index.FreeBytes())
	require.Empty(t, f.members(t))

	for _, bp := range blocks {
		f.index.ResetLinks(bp)
		require.Equal(t, uint32(0), f.codec.Prev(bp))
		require.Equal(t, uint32(0), f.codec.Next(bp))
	}
	require.Equal(t, uint32(0), f.codec.Left(blocks[0]))
	require.Equal(t, uint32(0), f.codec.Right(blocks[0]))
}

func TestIndexValidateDetectsCorruption(t *testing.T) {
	f := newFixture(freelist.GraduatedPolicy{})
	blocks := f.insert(200, 120, 280)

	f.codec.SetPrev(blocks[1], blocks[2])
	require.Error(t, f.index.Validate(nil))
	f.codec.SetPrev(blocks[1], blocks[0])
	require.NoError(t, f.index.Validate(nil))

	f.codec.Mark(blocks[2], 280, true, true)
	require.Error(t, f.index.Validate(nil))
}

func TestPolicyClasses(t *testing.T) {
	graduated := freelist.GraduatedPolicy{}
	require.Equal(t, 0, graduated.SmallClassIndex(16))
	require.Equal(t, 4, graduated.SmallClassIndex(48))
	require.Equal(t, -1, graduated.SmallClassIndex(56))
	for index := 0; index < graduated.SmallClassCount(); index++ {
		require.Equal(t, index, graduated.SmallClassIndex(graduated.SmallClassSize(index)))
	}

	single := freelist.SingleListPolicy{}
	require.Equal(t, 0, single.SmallClassIndex(16))
	require.Equal(t, -1, single.SmallClassIndex(24))

	policy, ok := freelist.PolicyByName("single")
	require.True(t, ok)
	require.Equal(t, single, policy)
	_, ok = freelist.PolicyByName("buddy")
	require.False(t, ok)
}
