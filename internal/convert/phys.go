package convert

import (
	"bytes"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"math"
)

// The stdlib png encoder never writes a physical-resolution chunk, so the
// pHYs chunk is spliced in by hand right after IHDR.

var pngSignature = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

const (
	pngIHDRLen     = 13
	physUnitMeter  = 1
	metersPerInch  = 0.0254
	physChunkType  = "pHYs"
	physDataLength = 9
)

// stampDPI inserts a pHYs chunk declaring the given dots-per-inch.
func stampDPI(data []byte, dpi int) ([]byte, error) {
	if !bytes.HasPrefix(data, pngSignature) {
		return nil, errors.New("convert: stamp dpi: not a png stream")
	}
	// signature + IHDR (length, type, 13 data bytes, crc)
	ihdrEnd := len(pngSignature) + 8 + pngIHDRLen + 4
	if len(data) < ihdrEnd {
		return nil, errors.New("convert: stamp dpi: truncated png stream")
	}

	ppm := uint32(math.Round(float64(dpi) / metersPerInch))
	chunk := make([]byte, 8+physDataLength+4)
	binary.BigEndian.PutUint32(chunk[0:4], physDataLength)
	copy(chunk[4:8], physChunkType)
	binary.BigEndian.PutUint32(chunk[8:12], ppm)
	binary.BigEndian.PutUint32(chunk[12:16], ppm)
	chunk[16] = physUnitMeter
	binary.BigEndian.PutUint32(chunk[17:21], crc32.ChecksumIEEE(chunk[4:17]))

	out := make([]byte, 0, len(data)+len(chunk))
	out = append(out, data[:ihdrEnd]...)
	out = append(out, chunk...)
	out = append(out, data[ihdrEnd:]...)
	return out, nil
}

// readDPI walks the chunk stream looking for pHYs and converts its
// pixels-per-meter back to dots-per-inch.
func readDPI(data []byte) (int, bool) {
	if !bytes.HasPrefix(data, pngSignature) {
		return 0, false
	}
	offset := len(pngSignature)
	for offset+8 <= len(data) {
		length := int(binary.BigEndian.Uint32(data[offset : offset+4]))
		chunkType := string(data[offset+4 : offset+8])
		dataStart := offset + 8
		if dataStart+length+4 > len(data) {
			return 0, false
		}
		if chunkType == physChunkType && length == physDataLength {
			if data[dataStart+8] != physUnitMeter {
				return 0, false
			}
			ppm := binary.BigEndian.Uint32(data[dataStart : dataStart+4])
			return int(math.Round(float64(ppm) * metersPerInch)), true
		}
		if chunkType == "IEND" {
			break
		}
		offset = dataStart + length + 4
	}
	return 0, false
}
