package afpacket

import (
	"fmt"
)

const (
	tpacketAlignment = 16 // TPACKET_ALIGNMENT
	tpacketHdrLen    = 52 // TPACKET3_HDRLEN, rounded
	targetBlockSize  = 1 << 20
)

// recomputeSize derives a PACKET_MMAP ring geometry close to bufferMB.
//
// The kernel requires frameSize to be a multiple of TPACKET_ALIGNMENT and
// blockSize to be a multiple of both pageSize and frameSize. Frames that fit
// in a page are rounded to a power of two so they divide the page; larger
// frames are rounded up to whole pages. At least one block is always returned.
func recomputeSize(bufferMB, snapLen, pageSize int) (frameSize, blockSize, numBlocks int, err error) {
	if bufferMB <= 0 {
		return 0, 0, 0, fmt.Errorf("buffer size must be positive, got %d MB", bufferMB)
	}
	if snapLen <= 0 {
		return 0, 0, 0, fmt.Errorf("snaplen must be positive, got %d", snapLen)
	}
	if pageSize <= 0 || pageSize&(pageSize-1) != 0 || pageSize%tpacketAlignment != 0 {
		return 0, 0, 0, fmt.Errorf("page size must be a power of two multiple of %d, got %d", tpacketAlignment, pageSize)
	}

	frameSize = alignUp(tpacketHdrLen+snapLen, tpacketAlignment)
	if frameSize <= pageSize {
		frameSize = nextPow2(frameSize)
	} else {
		frameSize = alignUp(frameSize, pageSize)
	}

	framesPerBlock := targetBlockSize / frameSize
	if framesPerBlock < 1 {
		framesPerBlock = 1
	}
	blockSize = framesPerBlock * frameSize
	if blockSize < pageSize {
		blockSize = pageSize
	}

	numBlocks = bufferMB * 1024 * 1024 / blockSize
	if numBlocks < 1 {
		numBlocks = 1
	}
	return frameSize, blockSize, numBlocks, nil
}

func alignUp(n, align int) int {
	return (n + align - 1) / align * align
}

func nextPow2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}
