package metadata

import (
	"encoding/binary"
	"io"
	"os"
	"time"
)

// ExtractWAV computes duration from the fmt and data chunks of a RIFF/WAVE file.
func ExtractWAV(path string) (*AudioMetadata, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	return parseWAV(f, info.Size())
}

func parseWAV(r io.ReadSeeker, fileSize int64) (*AudioMetadata, error) {
	var riff [12]byte
	if _, err := io.ReadFull(r, riff[:]); err != nil {
		return nil, ErrInvalidFormat
	}
	if string(riff[0:4]) != "RIFF" || string(riff[8:12]) != "WAVE" {
		return nil, ErrInvalidFormat
	}

	var byteRate uint32
	pos := int64(12)
	for {
		var hdr [8]byte
		if _, err := io.ReadFull(r, hdr[:]); err != nil {
			return nil, ErrInvalidFormat
		}
		pos += 8
		id := string(hdr[0:4])
		size := int64(binary.LittleEndian.Uint32(hdr[4:8]))

		switch id {
		case "fmt ":
			if size < 16 {
				return nil, ErrInvalidFormat
			}
			var fmtChunk [16]byte
			if _, err := io.ReadFull(r, fmtChunk[:]); err != nil {
				return nil, ErrInvalidFormat
			}
			byteRate = binary.LittleEndian.Uint32(fmtChunk[8:12])
			if _, err := r.Seek(size-16+size%2, io.SeekCurrent); err != nil {
				return nil, err
			}
		case "data":
			if byteRate == 0 {
				return nil, ErrInvalidFormat
			}
			// Writers that stream set the size to the maximum; trust the file instead.
			if avail := fileSize - pos; size > avail {
				size = avail
			}
			d := time.Duration(float64(size) / float64(byteRate) * float64(time.Second))
			return &AudioMetadata{Duration: d}, nil
		default:
			if _, err := r.Seek(size+size%2, io.SeekCurrent); err != nil {
				return nil, err
			}
		}
		pos += size + size%2
	}
}
