package integrity

import (
	"hash/crc32"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChecksumMatchesStdlibIEEE(t *testing.T) {
	data := []byte{0xAA, 0xBB, 0xCC, 0x00, 0x01, 0x02, 0x03}
	assert.Equal(t, crc32.ChecksumIEEE(data), Checksum(data, 0))
}

func TestChecksumEmpty(t *testing.T) {
	assert.Equal(t, uint32(0), Checksum(nil, 0))
}

func TestChecksumContinuation(t *testing.T) {
	b1 := []byte{0x01, 0x02, 0x03, 0x04, 0x05}
	b2 := []byte{0x06, 0x07, 0x08, 0x09, 0x0A, 0x0B}

	whole := Checksum(append(append([]byte{}, b1...), b2...), 0)

	c1 := Checksum(b1, 0)
	c2 := Checksum(b2, c1)

	assert.Equal(t, whole, c2)
}

func TestChecksumFoldOverShards(t *testing.T) {
	data := make([]byte, 97)
	for i := range data {
		data[i] = byte(i * 7)
	}
	want := Checksum(data, 0)

	for _, shardSize := range []int{1, 2, 3, 16, 64, 97, 200} {
		var crc uint32
		for i := 0; i < len(data); i += shardSize {
			end := i + shardSize
			if end > len(data) {
				end = len(data)
			}
			crc = Checksum(data[i:end], crc)
		}
		assert.Equalf(t, want, crc, "shard size %d", shardSize)
	}
}
