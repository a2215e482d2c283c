// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package audio

// OGG media container writer, based on Pion WebRTC project.

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"io"
)

const (
	pageHeaderTypeContinuationOfStream = 0x00
	pageHeaderTypeBeginningOfStream    = 0x02
	pageHeaderTypeEndOfStream          = 0x04
	defaultPreSkip                     = 3840 // RFC 7845 §5.1 recommends 80ms pre-skip (3840 samples at 48kHz)
	idPageSignature                    = "OpusHead"
	commentPageSignature               = "OpusTags"
	pageHeaderSignature                = "OggS"
	pageHeaderSize                     = 27
)

var errSinkClosed = errors.New("audio: ogg sink closed")

// OggSink writes received Opus packets into an OGG container. It satisfies
// Sink and is used by the CLI client to save the remote audio stream.
type OggSink struct {
	stream                  io.Writer
	sampleRate              uint32
	channelCount            uint16
	serial                  uint32
	pageIndex               uint32
	checksumTable           *[256]uint32
	previousGranulePosition uint64
	lastPayloadSize         int
}

var _ Sink = (*OggSink)(nil)

// NewOggSink creates an OGG Opus sink writing to out. sampleRate and
// channelCount describe the original stream and are recorded in the OpusHead
// header; granule positions always advance in 48kHz units per RFC 7845.
func NewOggSink(out io.Writer, sampleRate int, channelCount int) (*OggSink, error) {
	if out == nil {
		return nil, errSinkClosed
	}

	var serial uint32
	if err := binary.Read(rand.Reader, binary.LittleEndian, &serial); err != nil {
		return nil, err
	}

	sink := &OggSink{
		stream:        out,
		sampleRate:    uint32(sampleRate),
		channelCount:  uint16(channelCount),
		serial:        serial,
		checksumTable: generateChecksumTable(),
	}

	if err := sink.writeHeaders(); err != nil {
		return nil, err
	}

	return sink, nil
}

func (w *OggSink) writeHeaders() error {
	// ID Header (RFC 7845 §5.1)
	oggIDHeader := make([]byte, 19)

	copy(oggIDHeader[0:], idPageSignature)
	oggIDHeader[8] = 1                                              // Version
	oggIDHeader[9] = uint8(w.channelCount)                          // Channel count
	binary.LittleEndian.PutUint16(oggIDHeader[10:], defaultPreSkip) // pre-skip
	binary.LittleEndian.PutUint32(oggIDHeader[12:], w.sampleRate)   // original sample rate
	binary.LittleEndian.PutUint16(oggIDHeader[16:], 0)              // output gain
	oggIDHeader[18] = 0                                             // channel map 0 = one stream: mono or stereo

	data := w.createPage(oggIDHeader, pageHeaderTypeBeginningOfStream, 0, w.pageIndex)
	if err := w.writeToStream(data); err != nil {
		return err
	}
	w.pageIndex++

	// Comment Header (RFC 7845 §5.2)
	oggCommentHeader := make([]byte, 23)
	copy(oggCommentHeader[0:], commentPageSignature)
	binary.LittleEndian.PutUint32(oggCommentHeader[8:], 7)  // Vendor Length
	copy(oggCommentHeader[12:], "voxlate")                  // Vendor name
	binary.LittleEndian.PutUint32(oggCommentHeader[19:], 0) // User Comment List Length

	data = w.createPage(oggCommentHeader, pageHeaderTypeContinuationOfStream, 0, w.pageIndex)
	if err := w.writeToStream(data); err != nil {
		return err
	}
	w.pageIndex++

	return nil
}

func (w *OggSink) createPage(payload []uint8, headerType uint8, granulePos uint64, pageIndex uint32) []byte {
	w.lastPayloadSize = len(payload)
	nSegments := (len(payload) / 255) + 1

	page := make([]byte, pageHeaderSize+w.lastPayloadSize+nSegments)

	copy(page[0:], pageHeaderSignature)                 // 'OggS'
	page[4] = 0                                         // Version
	page[5] = headerType                                // Header type
	binary.LittleEndian.PutUint64(page[6:], granulePos) // Granule position
	binary.LittleEndian.PutUint32(page[14:], w.serial)  // Bitstream serial number
	binary.LittleEndian.PutUint32(page[18:], pageIndex) // Page sequence number
	page[26] = uint8(nSegments)                         // Number of segments

	// Fill segment table
	for i := 0; i < nSegments-1; i++ {
		page[pageHeaderSize+i] = 255
	}
	page[pageHeaderSize+nSegments-1] = uint8(len(payload) % 255)

	copy(page[pageHeaderSize+nSegments:], payload)

	var checksum uint32
	for index := range page {
		checksum = (checksum << 8) ^ w.checksumTable[byte(checksum>>24)^page[index]]
	}
	binary.LittleEndian.PutUint32(page[22:], checksum)

	return page
}

// WriteFrame appends a single Opus packet to the container.
func (w *OggSink) WriteFrame(opus []byte) error {
	if len(opus) == 0 {
		return nil
	}
	w.previousGranulePosition += granuleIncrement(opus)
	data := w.createPage(opus, pageHeaderTypeContinuationOfStream, w.previousGranulePosition, w.pageIndex)
	w.pageIndex++
	return w.writeToStream(data)
}

// SeekReaderAt combines Seeker and ReaderAt interfaces.
type SeekReaderAt interface {
	io.Seeker
	io.ReaderAt
}

// Close finalizes the OGG stream and closes the underlying writer if possible.
func (w *OggSink) Close() error {
	defer func() {
		w.stream = nil
	}()

	// Try to update the last page with EOS flag
	if sr, ok := w.stream.(SeekReaderAt); ok {
		pageOffset, err := sr.Seek(-1*int64(w.lastPayloadSize+pageHeaderSize+1), 2)
		if err != nil {
			return err
		}

		payload := make([]byte, w.lastPayloadSize)
		if _, err := sr.ReadAt(payload, pageOffset+pageHeaderSize+1); err != nil {
			return err
		}

		data := w.createPage(payload, pageHeaderTypeEndOfStream, w.previousGranulePosition, w.pageIndex-1)
		if err := w.writeToStream(data); err != nil {
			return err
		}
	}

	if closer, ok := w.stream.(io.Closer); ok {
		return closer.Close()
	}

	return nil
}

func (w *OggSink) writeToStream(p []byte) error {
	if w.stream == nil {
		return errSinkClosed
	}
	_, err := w.stream.Write(p)
	return err
}

// granuleIncrement computes the 48kHz sample count a packet contributes,
// from the TOC byte (RFC 6716 §3.1): config number selects the frame
// duration, the frame code selects how many frames the packet carries.
func granuleIncrement(packet []byte) uint64 {
	toc := packet[0]
	config := toc >> 3

	// Samples per frame at 48kHz by configuration number.
	var samples uint64
	switch {
	case config <= 11:
		// SILK-only: 10, 20, 40, 60 ms.
		samples = []uint64{480, 960, 1920, 2880}[config&0x03]
	case config <= 15:
		// Hybrid: 10, 20 ms.
		samples = []uint64{480, 960}[config&0x01]
	default:
		// CELT-only: 2.5, 5, 10, 20 ms.
		samples = []uint64{120, 240, 480, 960}[config&0x03]
	}

	var frames uint64
	switch toc & 0x03 {
	case 0:
		frames = 1
	case 1, 2:
		frames = 2
	case 3:
		if len(packet) < 2 {
			frames = 1
		} else {
			frames = uint64(packet[1] & 0x3F)
		}
	}

	return frames * samples
}

func generateChecksumTable() *[256]uint32 {
	var table [256]uint32
	const poly = 0x04c11db7

	for i := range table {
		r := uint32(i) << 24
		for j := 0; j < 8; j++ {
			if (r & 0x80000000) != 0 {
				r = (r << 1) ^ poly
			} else {
				r <<= 1
			}
			table[i] = r & 0xffffffff
		}
	}
	return &table
}
