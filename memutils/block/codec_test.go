package block_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/segheap/memutils/block"
)

type testMemory []byte

func (m testMemory) Bytes() []byte { return m }

func TestPack(t *testing.T) {
	require.Equal(t, uint32(0x19), block.Pack(24, true, false))
	require.Equal(t, uint32(0x1A), block.Pack(24, false, true))
	require.Equal(t, uint32(0x3), block.Pack(0, true, true))
	require.Equal(t, uint32(0x10), block.Pack(17, false, false))
}

func TestCodecMarkWithFooters(t *testing.T) {
	codec := block.NewCodec(make(testMemory, 64), false)

	codec.Mark(8, 24, true, true)
	require.Equal(t, uint32(24), codec.SizeOf(8))
	require.True(t, codec.IsAllocated(8))
	require.True(t, codec.HasFooter(8))
	require.Equal(t, uint32(24), codec.FooterOf(8))
	require.Equal(t, codec.Word(codec.HeaderOf(8)), codec.Word(codec.FooterOf(8)))
	// prevAllocated is not stored when footers are present
	require.Equal(t, block.Pack(24, true, false), codec.Word(4))

	codec.Mark(32, 16, false, true)
	require.Equal(t, uint32(32), codec.NextBlock(8))
	require.Equal(t, uint32(8), codec.PrevBlock(32))
	require.True(t, codec.IsPrevAllocated(32))
	require.False(t, codec.IsAllocated(32))
	require.Equal(t, uint32(16), codec.PayloadSize(32)+codec.Overhead())

	codec.Mark(8, 24, false, true)
	require.False(t, codec.IsPrevAllocated(32))
}

func TestCodecMarkFooterless(t *testing.T) {
	mem := make(testMemory, 64)
	codec := block.NewCodec(mem, true)

	codec.Mark(8, 24, true, true)
	require.False(t, codec.HasFooter(8))
	require.Equal(t, uint32(0), codec.Word(24), "allocated blocks must not write a footer")
	require.True(t, codec.IsPrevAllocated(8))

	codec.Mark(32, 16, false, true)
	require.True(t, codec.HasFooter(32))
	require.Equal(t, block.Pack(16, false, true), codec.Word(codec.FooterOf(32)))

	codec.SetPrevAllocated(32, false)
	require.False(t, codec.IsPrevAllocated(32))
	require.Equal(t, codec.Word(codec.HeaderOf(32)), codec.Word(codec.FooterOf(32)))

	// epilogue: header only
	codec.Mark(48, 0, true, false)
	codec.SetPrevAllocated(48, true)
	require.Equal(t, block.Pack(0, true, true), codec.Word(44))
	require.False(t, codec.HasFooter(48))
}

func TestCodecAdjustedSize(t *testing.T) {
	withFooters := block.NewCodec(make(testMemory, 0), false)
	footerless := block.NewCodec(make(testMemory, 0), true)

	testCases := []struct {
		request    int
		footers    uint32
		footerless uint32
	}{
		{request: 1, footers: 16, footerless: 16},
		{request: 8, footers: 16, footerless: 16},
		{request: 9, footers: 24, footerless: 16},
		{request: 12, footers: 24, footerless: 16},
		{request: 13, footers: 24, footerless: 24},
		{request: 50, footers: 64, footerless: 56},
		{request: 100, footers: 112, footerless: 104},
		{request: 200, footers: 208, footerless: 208},
		{request: 390, footers: 400, footerless: 400},
	}

	for _, testCase := range testCases {
		size, ok := withFooters.AdjustedSize(testCase.request)
		require.True(t, ok)
		require.Equal(t, testCase.footers, size, "request %d with footers", testCase.request)

		size, ok = footerless.AdjustedSize(testCase.request)
		require.True(t, ok)
		require.Equal(t, testCase.footerless, size, "request %d footerless", testCase.request)
	}

	_, ok := withFooters.AdjustedSize(0)
	require.False(t, ok)
	_, ok = withFooters.AdjustedSize(int(block.MaxBlockSize))
	require.False(t, ok)
}

func TestCodecLinks(t *testing.T) {
	codec := block.NewCodec(make(testMemory, 64), false)
	codec.Mark(16, 32, false, true)

	codec.SetPrev(16, 48)
	codec.SetNext(16, 8)
	codec.SetLeft(16, 24)
	codec.SetRight(16, 40)
	require.Equal(t, uint32(48), codec.Prev(16))
	require.Equal(t, uint32(8), codec.Next(16))
	require.Equal(t, uint32(24), codec.Left(16))
	require.Equal(t, uint32(40), codec.Right(16))

	codec.ClearLinks(16, 2)
	require.Equal(t, uint32(0), codec.Prev(16))
	require.Equal(t, uint32(0), codec.Next(16))
	require.Equal(t, uint32(24), codec.Left(16))

	codec.ClearLinks(16, 4)
	require.Equal(t, uint32(0), codec.Right(16))
	require.Equal(t, uint32(32), codec.SizeOf(16), "links must not disturb the boundary tags")
}

func TestCodecContains(t *testing.T) {
	codec := block.NewCodec(make(testMemory, 64), false)
	require.False(t, codec.Contains(0))
	require.False(t, codec.Contains(12))
	require.True(t, codec.Contains(8))
	require.True(t, codec.Contains(48))
	require.False(t, codec.Contains(56))
}
