package metadata

import (
	"encoding/binary"
	"os"
	"time"
)

// createTestM4A writes a minimal M4A file: an ftyp box and a moov box holding
// a version 0 mvhd with the given creation time and duration.
func createTestM4A(path string, creationTime time.Time, durationSeconds uint32) error {
	ftyp := []byte{
		0x00, 0x00, 0x00, 0x14, // size: 20 bytes
		'f', 't', 'y', 'p',
		'M', '4', 'A', ' ', // major brand
		0x00, 0x00, 0x00, 0x00, // minor version
		'M', '4', 'A', ' ', // compatible brand
	}

	macTime := uint32(creationTime.Sub(macEpoch).Seconds())

	mvhdData := make([]byte, 100)
	binary.BigEndian.PutUint32(mvhdData[4:8], macTime)                // creation time
	binary.BigEndian.PutUint32(mvhdData[8:12], macTime)               // modification time
	binary.BigEndian.PutUint32(mvhdData[12:16], 1000)                 // timescale (milliseconds)
	binary.BigEndian.PutUint32(mvhdData[16:20], durationSeconds*1000) // duration in timescale units
	binary.BigEndian.PutUint32(mvhdData[20:24], 0x00010000)           // rate (1.0)

	return os.WriteFile(path, concat(ftyp, box("moov", box("mvhd", mvhdData))), 0644)
}

// createTestM4AV1 writes a moov-first M4A with a version 1 mvhd preceded by
// an unrelated box.
func createTestM4AV1(path string, durationMs uint64) error {
	mvhdData := make([]byte, 112)
	mvhdData[0] = 1
	binary.BigEndian.PutUint32(mvhdData[20:24], 1000)
	binary.BigEndian.PutUint64(mvhdData[24:32], durationMs)

	moov := box("moov", concat(box("trak", make([]byte, 12)), box("mvhd", mvhdData)))
	ftyp := box("ftyp", []byte("isom\x00\x00\x02\x00isomiso2"))
	mdat := box("mdat", make([]byte, 64))

	return os.WriteFile(path, concat(moov, ftyp, mdat), 0644)
}

// createInvalidM4A writes a box structure with an unknown brand.
func createInvalidM4A(path string) error {
	ftyp := []byte{
		0x00, 0x00, 0x00, 0x14, // size: 20 bytes
		'f', 't', 'y', 'p',
		'X', 'X', 'X', 'X', // invalid brand
		0x00, 0x00, 0x00, 0x00,
		'X', 'X', 'X', 'X',
	}
	return os.WriteFile(path, ftyp, 0644)
}

// createTestWAV writes a 16-bit PCM header with a LIST chunk before the data.
func createTestWAV(path string, sampleRate, channels uint32, seconds float64) error {
	byteRate := sampleRate * channels * 2
	dataSize := uint32(float64(byteRate) * seconds)

	fmtChunk := make([]byte, 16)
	binary.LittleEndian.PutUint16(fmtChunk[0:2], 1) // PCM
	binary.LittleEndian.PutUint16(fmtChunk[2:4], uint16(channels))
	binary.LittleEndian.PutUint32(fmtChunk[4:8], sampleRate)
	binary.LittleEndian.PutUint32(fmtChunk[8:12], byteRate)
	binary.LittleEndian.PutUint16(fmtChunk[12:14], uint16(channels*2))
	binary.LittleEndian.PutUint16(fmtChunk[14:16], 16)

	body := concat(
		[]byte("WAVE"),
		chunk("fmt ", fmtChunk),
		chunk("LIST", []byte("INFOabc")), // odd size, padded
		chunk("data", make([]byte, dataSize)),
	)
	return os.WriteFile(path, concat([]byte("RIFF"), le32(uint32(len(body))), body), 0644)
}

// createTestFLAC writes the magic, a padding block and a STREAMINFO block.
func createTestFLAC(path string, sampleRate uint32, totalSamples uint64, id3 bool) error {
	info := make([]byte, 34)
	info[10] = byte(sampleRate >> 12)
	info[11] = byte(sampleRate >> 4)
	info[12] = byte(sampleRate<<4) | 0x02 // channels bits
	info[13] = 0xf0 | byte(totalSamples>>32)&0x0f
	binary.BigEndian.PutUint32(info[14:18], uint32(totalSamples))

	var out []byte
	if id3 {
		out = append(out, 'I', 'D', '3', 4, 0, 0, 0, 0, 0, 5)
		out = append(out, make([]byte, 5)...)
	}
	out = append(out, []byte("fLaC")...)
	out = append(out, 0x01, 0x00, 0x00, 0x04) // PADDING, 4 bytes
	out = append(out, make([]byte, 4)...)
	out = append(out, 0x80, 0x00, 0x00, 34) // last block: STREAMINFO
	out = append(out, info...)
	return os.WriteFile(path, out, 0644)
}

func box(kind string, payload []byte) []byte {
	b := make([]byte, 8, 8+len(payload))
	binary.BigEndian.PutUint32(b[0:4], uint32(8+len(payload)))
	copy(b[4:8], kind)
	return append(b, payload...)
}

func chunk(id string, payload []byte) []byte {
	b := concat([]byte(id), le32(uint32(len(payload))), payload)
	if len(payload)%2 == 1 {
		b = append(b, 0)
	}
	return b
}

func le32(v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b
}

func concat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}
