package symbol

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

// Binary format:
//   [4]  magic "SREG"
//   [4]  version (currently 1)
//   [4]  symbol count
//   per symbol:
//     [4]  id
//     [2]  exchange length, [N] exchange bytes
//     [2]  symbol length, [N] symbol bytes
//     [1]  instrument type
//     [1]  flags: 0x01 has strike, 0x02 has expiry, 0x04 has option type
//     [8]  strike (if flag set)
//     [8]  expiry ns (if flag set)
//     [1]  option type (if flag set)

const (
	magic           uint32 = 0x47455253 // "SREG" little-endian byte order
	formatVersion   uint32 = 1
	flagStrike      uint8  = 0x01
	flagExpiry      uint8  = 0x02
	flagOptionType  uint8  = 0x04
	headerByteCount        = 12
)

// Serialize encodes the registry's symbols (not its equivalence links,
// which are process-local hints rather than durable state) into the
// binary wire format.
func (r *Registry) Serialize() []byte {
	r.mu.RLock()
	defer r.mu.RUnlock()

	buf := new(bytes.Buffer)
	buf.Grow(headerByteCount + len(r.byID)*48)

	var hdr [headerByteCount]byte
	binary.LittleEndian.PutUint32(hdr[0:4], magic)
	binary.LittleEndian.PutUint32(hdr[4:8], formatVersion)
	binary.LittleEndian.PutUint32(hdr[8:12], uint32(len(r.byID)))
	buf.Write(hdr[:])

	for _, info := range r.byID {
		writeSymbol(buf, info)
	}
	return buf.Bytes()
}

func writeSymbol(buf *bytes.Buffer, info Info) {
	var u32 [4]byte
	binary.LittleEndian.PutUint32(u32[:], info.ID)
	buf.Write(u32[:])

	writeString(buf, info.Exchange)
	writeString(buf, info.Symbol)
	buf.WriteByte(byte(info.Type))

	var flags uint8
	if info.Strike != nil {
		flags |= flagStrike
	}
	if info.ExpiryNs != nil {
		flags |= flagExpiry
	}
	if info.OptionType != nil {
		flags |= flagOptionType
	}
	buf.WriteByte(flags)

	if info.Strike != nil {
		var i64 [8]byte
		binary.LittleEndian.PutUint64(i64[:], uint64(*info.Strike))
		buf.Write(i64[:])
	}
	if info.ExpiryNs != nil {
		var i64 [8]byte
		binary.LittleEndian.PutUint64(i64[:], uint64(*info.ExpiryNs))
		buf.Write(i64[:])
	}
	if info.OptionType != nil {
		buf.WriteByte(byte(*info.OptionType))
	}
}

func writeString(buf *bytes.Buffer, s string) {
	var u16 [2]byte
	binary.LittleEndian.PutUint16(u16[:], uint16(len(s)))
	buf.Write(u16[:])
	buf.WriteString(s)
}

// Deserialize replaces the registry's contents with the symbols
// decoded from data, validating the magic and version first.
func (r *Registry) Deserialize(data []byte) error {
	if len(data) < headerByteCount {
		return &FormatError{Reason: "blob shorter than header"}
	}

	gotMagic := binary.LittleEndian.Uint32(data[0:4])
	if gotMagic != magic {
		return &FormatError{Reason: fmt.Sprintf("bad magic 0x%08x", gotMagic)}
	}
	version := binary.LittleEndian.Uint32(data[4:8])
	if version != formatVersion {
		return &FormatError{Reason: fmt.Sprintf("unsupported version %d", version)}
	}
	count := binary.LittleEndian.Uint32(data[8:12])

	rd := bytes.NewReader(data[headerByteCount:])

	byKey := make(map[string]uint32, count)
	byID := make(map[uint32]Info, count)
	var maxID uint32

	for i := uint32(0); i < count; i++ {
		info, err := readSymbol(rd)
		if err != nil {
			return fmt.Errorf("symbol: decode entry %d: %w", i, err)
		}
		byKey[key(info.Exchange, info.Symbol)] = info.ID
		byID[info.ID] = info
		if info.ID > maxID {
			maxID = info.ID
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.byKey = byKey
	r.byID = byID
	r.equivalents = make(map[uint32][]uint32)
	r.nextID = maxID + 1
	return nil
}

func readSymbol(rd *bytes.Reader) (Info, error) {
	var info Info

	var u32 [4]byte
	if _, err := io.ReadFull(rd, u32[:]); err != nil {
		return Info{}, err
	}
	info.ID = binary.LittleEndian.Uint32(u32[:])

	exchange, err := readString(rd)
	if err != nil {
		return Info{}, err
	}
	info.Exchange = exchange

	sym, err := readString(rd)
	if err != nil {
		return Info{}, err
	}
	info.Symbol = sym

	typ, err := rd.ReadByte()
	if err != nil {
		return Info{}, err
	}
	info.Type = InstrumentType(typ)

	flags, err := rd.ReadByte()
	if err != nil {
		return Info{}, err
	}

	if flags&flagStrike != 0 {
		var i64 [8]byte
		if _, err := io.ReadFull(rd, i64[:]); err != nil {
			return Info{}, err
		}
		v := int64(binary.LittleEndian.Uint64(i64[:]))
		info.Strike = &v
	}
	if flags&flagExpiry != 0 {
		var i64 [8]byte
		if _, err := io.ReadFull(rd, i64[:]); err != nil {
			return Info{}, err
		}
		v := int64(binary.LittleEndian.Uint64(i64[:]))
		info.ExpiryNs = &v
	}
	if flags&flagOptionType != 0 {
		b, err := rd.ReadByte()
		if err != nil {
			return Info{}, err
		}
		ot := OptionType(b)
		info.OptionType = &ot
	}

	return info, nil
}

func readString(rd *bytes.Reader) (string, error) {
	var u16 [2]byte
	if _, err := io.ReadFull(rd, u16[:]); err != nil {
		return "", err
	}
	n := binary.LittleEndian.Uint16(u16[:])
	buf := make([]byte, n)
	if _, err := io.ReadFull(rd, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

// SaveToFile serializes the registry and writes it atomically to path.
func (r *Registry) SaveToFile(path string) error {
	data := r.Serialize()
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("symbol: write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("symbol: rename %s to %s: %w", tmp, path, err)
	}
	return nil
}

// LoadFromFile reads and deserializes a registry file written by
// SaveToFile.
func (r *Registry) LoadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("symbol: read %s: %w", path, err)
	}
	return r.Deserialize(data)
}
