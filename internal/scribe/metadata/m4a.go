package metadata

import (
	"encoding/binary"
	"io"
	"os"
	"time"
)

// macEpoch is the zero point of MP4 timestamps.
var macEpoch = time.Date(1904, 1, 1, 0, 0, 0, 0, time.UTC)

var m4aBrands = map[string]bool{"M4A ": true, "M4B ": true, "mp41": true, "mp42": true, "isom": true, "iso2": true}

// ExtractM4A reads creation time and duration from the mvhd box of an
// M4A/MP4 file.
func ExtractM4A(path string) (*AudioMetadata, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return parseM4A(f)
}

func parseM4A(r io.ReadSeeker) (*AudioMetadata, error) {
	meta := &AudioMetadata{}
	var foundFtyp, foundMoov bool

	// ISO base media files are a sequence of boxes, each a size and a type.
boxes:
	for {
		payload, boxType, err := readBoxHeader(r)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		switch boxType {
		case "ftyp":
			if err := validateFtyp(r, payload); err != nil {
				return nil, err
			}
			foundFtyp = true
		case "moov":
			start, err := r.Seek(0, io.SeekCurrent)
			if err != nil {
				return nil, err
			}
			if err := parseMoov(r, payload, meta); err != nil {
				return nil, err
			}
			foundMoov = true
			if payload < 0 {
				break boxes
			}
			if _, err := r.Seek(start+payload, io.SeekStart); err != nil {
				return nil, err
			}
		default:
			if payload < 0 {
				// Box runs to end of file.
				break boxes
			}
			if _, err := r.Seek(payload, io.SeekCurrent); err != nil {
				return nil, err
			}
		}
		if foundFtyp && foundMoov {
			break
		}
	}

	if !foundFtyp || !foundMoov {
		return nil, ErrInvalidFormat
	}

	return meta, nil
}

// readBoxHeader returns the payload length and the box type. A payload length
// of -1 means the box extends to the end of the file.
func readBoxHeader(r io.Reader) (int64, string, error) {
	var header [8]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return 0, "", err
	}

	size := int64(binary.BigEndian.Uint32(header[0:4]))
	boxType := string(header[4:8])

	switch size {
	case 0:
		return -1, boxType, nil
	case 1:
		var ext [8]byte
		if _, err := io.ReadFull(r, ext[:]); err != nil {
			return 0, "", err
		}
		large := int64(binary.BigEndian.Uint64(ext[:]))
		if large < 16 {
			return 0, "", ErrInvalidFormat
		}
		return large - 16, boxType, nil
	}
	if size < 8 {
		return 0, "", ErrInvalidFormat
	}
	return size - 8, boxType, nil
}

func validateFtyp(r io.ReadSeeker, remaining int64) error {
	if remaining < 4 {
		return ErrInvalidFormat
	}
	brand := make([]byte, 4)
	if _, err := io.ReadFull(r, brand); err != nil {
		return err
	}
	if !m4aBrands[string(brand)] {
		return ErrInvalidFormat
	}

	if _, err := r.Seek(remaining-4, io.SeekCurrent); err != nil {
		return err
	}
	return nil
}

// parseMoov scans the children of a moov box for mvhd.
func parseMoov(r io.ReadSeeker, remaining int64, meta *AudioMetadata) error {
	start, err := r.Seek(0, io.SeekCurrent)
	if err != nil {
		return err
	}
	end := start + remaining

	for {
		pos, err := r.Seek(0, io.SeekCurrent)
		if err != nil {
			return err
		}
		if remaining >= 0 && pos >= end {
			return nil
		}

		payload, boxType, err := readBoxHeader(r)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		if boxType == "mvhd" {
			return parseMvhd(r, meta)
		}
		if payload < 0 {
			return nil
		}
		if _, err := r.Seek(payload, io.SeekCurrent); err != nil {
			return err
		}
	}
}

func parseMvhd(r io.Reader, meta *AudioMetadata) error {
	// Version (1 byte) + flags (3 bytes)
	var versionFlags [4]byte
	if _, err := io.ReadFull(r, versionFlags[:]); err != nil {
		return err
	}

	var created, timescale, duration uint64
	switch versionFlags[0] {
	case 0:
		// creation, modification, timescale, duration: 32 bits each
		var buf [16]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return err
		}
		created = uint64(binary.BigEndian.Uint32(buf[0:4]))
		timescale = uint64(binary.BigEndian.Uint32(buf[8:12]))
		duration = uint64(binary.BigEndian.Uint32(buf[12:16]))
	case 1:
		// 64-bit creation and modification, 32-bit timescale, 64-bit duration
		var buf [28]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return err
		}
		created = binary.BigEndian.Uint64(buf[0:8])
		timescale = uint64(binary.BigEndian.Uint32(buf[16:20]))
		duration = binary.BigEndian.Uint64(buf[20:28])
	default:
		return ErrInvalidFormat
	}

	meta.CreationTime = macEpoch.Add(time.Duration(created) * time.Second)
	if timescale > 0 {
		meta.Duration = time.Duration(float64(duration) / float64(timescale) * float64(time.Second))
	}
	return nil
}
