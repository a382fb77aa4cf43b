package metadata

import (
	"encoding/binary"
	"io"
	"os"
	"time"
)

const flacStreamInfo = 0

// ExtractFLAC reads sample rate and sample count from the STREAMINFO block.
func ExtractFLAC(path string) (*AudioMetadata, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return parseFLAC(f)
}

func parseFLAC(r io.ReadSeeker) (*AudioMetadata, error) {
	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return nil, ErrInvalidFormat
	}

	// Some taggers prepend an ID3v2 block.
	if string(magic[0:3]) == "ID3" {
		var rest [6]byte
		if _, err := io.ReadFull(r, rest[:]); err != nil {
			return nil, ErrInvalidFormat
		}
		// Syncsafe size: 7 bits per byte.
		size := int64(rest[2]&0x7f)<<21 | int64(rest[3]&0x7f)<<14 | int64(rest[4]&0x7f)<<7 | int64(rest[5]&0x7f)
		if _, err := r.Seek(10+size, io.SeekStart); err != nil {
			return nil, err
		}
		if _, err := io.ReadFull(r, magic[:]); err != nil {
			return nil, ErrInvalidFormat
		}
	}
	if string(magic[:]) != "fLaC" {
		return nil, ErrInvalidFormat
	}

	for {
		var hdr [4]byte
		if _, err := io.ReadFull(r, hdr[:]); err != nil {
			return nil, ErrInvalidFormat
		}
		last := hdr[0]&0x80 != 0
		blockType := hdr[0] & 0x7f
		length := int64(hdr[1])<<16 | int64(hdr[2])<<8 | int64(hdr[3])

		if blockType == flacStreamInfo {
			if length < 18 {
				return nil, ErrInvalidFormat
			}
			var info [18]byte
			if _, err := io.ReadFull(r, info[:]); err != nil {
				return nil, ErrInvalidFormat
			}
			// Bytes 10-17: 20 bits sample rate, 3 bits channels, 5 bits
			// bits-per-sample, 36 bits total samples.
			sampleRate := uint64(info[10])<<12 | uint64(info[11])<<4 | uint64(info[12])>>4
			total := uint64(info[13]&0x0f)<<32 | uint64(binary.BigEndian.Uint32(info[14:18]))
			if sampleRate == 0 {
				return nil, ErrInvalidFormat
			}
			d := time.Duration(float64(total) / float64(sampleRate) * float64(time.Second))
			return &AudioMetadata{Duration: d}, nil
		}

		if last {
			return nil, ErrInvalidFormat
		}
		if _, err := r.Seek(length, io.SeekCurrent); err != nil {
			return nil, err
		}
	}
}
