package floxfmt

import "encoding/binary"

// Encode/Decode pairs below marshal each wire struct to/from its exact
// byte layout using manual field-by-field encoding/binary calls, rather
// than reflection-based binary.Write — on-disk frame headers are 12 bytes
// and break natural alignment, so a struct cast is not portable; the
// segment headers and records are laid out explicitly instead, the same
// way the teacher hand-encodes each ITCH field.

func (h *SegmentHeader) Encode(buf []byte) {
	_ = buf[:SegmentHeaderSize]
	binary.LittleEndian.PutUint32(buf[0:4], h.Magic)
	binary.LittleEndian.PutUint16(buf[4:6], h.Version)
	buf[6] = h.Flags
	buf[7] = h.ExchangeID
	binary.LittleEndian.PutUint64(buf[8:16], uint64(h.CreatedNs))
	binary.LittleEndian.PutUint64(buf[16:24], uint64(h.FirstEventNs))
	binary.LittleEndian.PutUint64(buf[24:32], uint64(h.LastEventNs))
	binary.LittleEndian.PutUint32(buf[32:36], h.EventCount)
	binary.LittleEndian.PutUint32(buf[36:40], h.SymbolCount)
	binary.LittleEndian.PutUint64(buf[40:48], h.IndexOffset)
	buf[48] = h.Compression
	for i := 49; i < 64; i++ {
		buf[i] = 0
	}
}

func DecodeSegmentHeader(buf []byte) SegmentHeader {
	_ = buf[:SegmentHeaderSize]
	var h SegmentHeader
	h.Magic = binary.LittleEndian.Uint32(buf[0:4])
	h.Version = binary.LittleEndian.Uint16(buf[4:6])
	h.Flags = buf[6]
	h.ExchangeID = buf[7]
	h.CreatedNs = int64(binary.LittleEndian.Uint64(buf[8:16]))
	h.FirstEventNs = int64(binary.LittleEndian.Uint64(buf[16:24]))
	h.LastEventNs = int64(binary.LittleEndian.Uint64(buf[24:32]))
	h.EventCount = binary.LittleEndian.Uint32(buf[32:36])
	h.SymbolCount = binary.LittleEndian.Uint32(buf[36:40])
	h.IndexOffset = binary.LittleEndian.Uint64(buf[40:48])
	h.Compression = buf[48]
	return h
}

func (f *FrameHeader) Encode(buf []byte) {
	_ = buf[:FrameHeaderSize]
	binary.LittleEndian.PutUint32(buf[0:4], f.Size)
	binary.LittleEndian.PutUint32(buf[4:8], f.CRC32)
	buf[8] = f.Kind
	buf[9] = f.RecVersion
	binary.LittleEndian.PutUint16(buf[10:12], f.Flags)
}

func DecodeFrameHeader(buf []byte) FrameHeader {
	_ = buf[:FrameHeaderSize]
	return FrameHeader{
		Size:       binary.LittleEndian.Uint32(buf[0:4]),
		CRC32:      binary.LittleEndian.Uint32(buf[4:8]),
		Kind:       buf[8],
		RecVersion: buf[9],
		Flags:      binary.LittleEndian.Uint16(buf[10:12]),
	}
}

func (t *TradeRecord) Encode(buf []byte) {
	_ = buf[:TradeRecordSize]
	binary.LittleEndian.PutUint64(buf[0:8], uint64(t.ExchangeTsNs))
	binary.LittleEndian.PutUint64(buf[8:16], uint64(t.RecvTsNs))
	binary.LittleEndian.PutUint64(buf[16:24], uint64(t.PriceRaw))
	binary.LittleEndian.PutUint64(buf[24:32], uint64(t.QtyRaw))
	binary.LittleEndian.PutUint64(buf[32:40], t.TradeID)
	binary.LittleEndian.PutUint32(buf[40:44], t.SymbolID)
	buf[44] = t.Side
	buf[45] = t.Instrument
	binary.LittleEndian.PutUint16(buf[46:48], t.ExchangeID)
}

func DecodeTradeRecord(buf []byte) TradeRecord {
	_ = buf[:TradeRecordSize]
	return TradeRecord{
		ExchangeTsNs: int64(binary.LittleEndian.Uint64(buf[0:8])),
		RecvTsNs:     int64(binary.LittleEndian.Uint64(buf[8:16])),
		PriceRaw:     int64(binary.LittleEndian.Uint64(buf[16:24])),
		QtyRaw:       int64(binary.LittleEndian.Uint64(buf[24:32])),
		TradeID:      binary.LittleEndian.Uint64(buf[32:40]),
		SymbolID:     binary.LittleEndian.Uint32(buf[40:44]),
		Side:         buf[44],
		Instrument:   buf[45],
		ExchangeID:   binary.LittleEndian.Uint16(buf[46:48]),
	}
}

func (l *BookLevel) Encode(buf []byte) {
	_ = buf[:BookLevelSize]
	binary.LittleEndian.PutUint64(buf[0:8], uint64(l.PriceRaw))
	binary.LittleEndian.PutUint64(buf[8:16], uint64(l.QtyRaw))
}

func DecodeBookLevel(buf []byte) BookLevel {
	_ = buf[:BookLevelSize]
	return BookLevel{
		PriceRaw: int64(binary.LittleEndian.Uint64(buf[0:8])),
		QtyRaw:   int64(binary.LittleEndian.Uint64(buf[8:16])),
	}
}

func (h *BookRecordHeader) Encode(buf []byte) {
	_ = buf[:BookRecordHeaderSize]
	binary.LittleEndian.PutUint64(buf[0:8], uint64(h.ExchangeTsNs))
	binary.LittleEndian.PutUint64(buf[8:16], uint64(h.RecvTsNs))
	binary.LittleEndian.PutUint64(buf[16:24], uint64(h.Seq))
	binary.LittleEndian.PutUint32(buf[24:28], h.SymbolID)
	binary.LittleEndian.PutUint16(buf[28:30], h.BidCount)
	binary.LittleEndian.PutUint16(buf[30:32], h.AskCount)
	buf[32] = h.Type
	buf[33] = h.Instrument
	binary.LittleEndian.PutUint16(buf[34:36], h.ExchangeID)
	binary.LittleEndian.PutUint32(buf[36:40], 0)
}

func DecodeBookRecordHeader(buf []byte) BookRecordHeader {
	_ = buf[:BookRecordHeaderSize]
	return BookRecordHeader{
		ExchangeTsNs: int64(binary.LittleEndian.Uint64(buf[0:8])),
		RecvTsNs:     int64(binary.LittleEndian.Uint64(buf[8:16])),
		Seq:          int64(binary.LittleEndian.Uint64(buf[16:24])),
		SymbolID:     binary.LittleEndian.Uint32(buf[24:28]),
		BidCount:     binary.LittleEndian.Uint16(buf[28:30]),
		AskCount:     binary.LittleEndian.Uint16(buf[30:32]),
		Type:         buf[32],
		Instrument:   buf[33],
		ExchangeID:   binary.LittleEndian.Uint16(buf[34:36]),
	}
}

func (b *CompressedBlockHeader) Encode(buf []byte) {
	_ = buf[:CompressedBlockHeaderSize]
	binary.LittleEndian.PutUint32(buf[0:4], b.Magic)
	binary.LittleEndian.PutUint32(buf[4:8], b.CompressedSize)
	binary.LittleEndian.PutUint32(buf[8:12], b.OriginalSize)
	binary.LittleEndian.PutUint16(buf[12:14], b.EventCount)
	binary.LittleEndian.PutUint16(buf[14:16], b.Flags)
}

func DecodeCompressedBlockHeader(buf []byte) CompressedBlockHeader {
	_ = buf[:CompressedBlockHeaderSize]
	return CompressedBlockHeader{
		Magic:          binary.LittleEndian.Uint32(buf[0:4]),
		CompressedSize: binary.LittleEndian.Uint32(buf[4:8]),
		OriginalSize:   binary.LittleEndian.Uint32(buf[8:12]),
		EventCount:     binary.LittleEndian.Uint16(buf[12:14]),
		Flags:          binary.LittleEndian.Uint16(buf[14:16]),
	}
}

func (e *IndexEntry) Encode(buf []byte) {
	_ = buf[:IndexEntrySize]
	binary.LittleEndian.PutUint64(buf[0:8], uint64(e.TimestampNs))
	binary.LittleEndian.PutUint64(buf[8:16], e.FileOffset)
}

func DecodeIndexEntry(buf []byte) IndexEntry {
	_ = buf[:IndexEntrySize]
	return IndexEntry{
		TimestampNs: int64(binary.LittleEndian.Uint64(buf[0:8])),
		FileOffset:  binary.LittleEndian.Uint64(buf[8:16]),
	}
}

func (h *SegmentIndexHeader) Encode(buf []byte) {
	_ = buf[:SegmentIndexHeaderSize]
	binary.LittleEndian.PutUint32(buf[0:4], h.Magic)
	binary.LittleEndian.PutUint16(buf[4:6], h.Version)
	binary.LittleEndian.PutUint16(buf[6:8], h.Interval)
	binary.LittleEndian.PutUint32(buf[8:12], h.EntryCount)
	binary.LittleEndian.PutUint32(buf[12:16], h.CRC32)
	binary.LittleEndian.PutUint64(buf[16:24], uint64(h.FirstTsNs))
	binary.LittleEndian.PutUint64(buf[24:32], uint64(h.LastTsNs))
}

func DecodeSegmentIndexHeader(buf []byte) SegmentIndexHeader {
	_ = buf[:SegmentIndexHeaderSize]
	return SegmentIndexHeader{
		Magic:      binary.LittleEndian.Uint32(buf[0:4]),
		Version:    binary.LittleEndian.Uint16(buf[4:6]),
		Interval:   binary.LittleEndian.Uint16(buf[6:8]),
		EntryCount: binary.LittleEndian.Uint32(buf[8:12]),
		CRC32:      binary.LittleEndian.Uint32(buf[12:16]),
		FirstTsNs:  int64(binary.LittleEndian.Uint64(buf[16:24])),
		LastTsNs:   int64(binary.LittleEndian.Uint64(buf[24:32])),
	}
}

func (h *GlobalIndexHeader) Encode(buf []byte) {
	_ = buf[:GlobalIndexHeaderSize]
	binary.LittleEndian.PutUint32(buf[0:4], h.Magic)
	binary.LittleEndian.PutUint16(buf[4:6], h.Version)
	binary.LittleEndian.PutUint16(buf[6:8], h.Flags)
	binary.LittleEndian.PutUint64(buf[8:16], uint64(h.CreatedNs))
	binary.LittleEndian.PutUint64(buf[16:24], uint64(h.FirstEventNs))
	binary.LittleEndian.PutUint64(buf[24:32], uint64(h.LastEventNs))
	binary.LittleEndian.PutUint32(buf[32:36], h.SegmentCount)
	binary.LittleEndian.PutUint32(buf[36:40], h.CRC32)
	binary.LittleEndian.PutUint64(buf[40:48], h.TotalEvents)
	binary.LittleEndian.PutUint64(buf[48:56], h.StringTableOffset)
	for i := 56; i < 64; i++ {
		buf[i] = 0
	}
}

func DecodeGlobalIndexHeader(buf []byte) GlobalIndexHeader {
	_ = buf[:GlobalIndexHeaderSize]
	return GlobalIndexHeader{
		Magic:             binary.LittleEndian.Uint32(buf[0:4]),
		Version:           binary.LittleEndian.Uint16(buf[4:6]),
		Flags:             binary.LittleEndian.Uint16(buf[6:8]),
		CreatedNs:         int64(binary.LittleEndian.Uint64(buf[8:16])),
		FirstEventNs:      int64(binary.LittleEndian.Uint64(buf[16:24])),
		LastEventNs:       int64(binary.LittleEndian.Uint64(buf[24:32])),
		SegmentCount:      binary.LittleEndian.Uint32(buf[32:36]),
		CRC32:             binary.LittleEndian.Uint32(buf[36:40]),
		TotalEvents:       binary.LittleEndian.Uint64(buf[40:48]),
		StringTableOffset: binary.LittleEndian.Uint64(buf[48:56]),
	}
}

func (s *GlobalIndexSegment) Encode(buf []byte) {
	_ = buf[:GlobalIndexSegmentSize]
	binary.LittleEndian.PutUint64(buf[0:8], uint64(s.FirstEventNs))
	binary.LittleEndian.PutUint64(buf[8:16], uint64(s.LastEventNs))
	binary.LittleEndian.PutUint32(buf[16:20], s.EventCount)
	binary.LittleEndian.PutUint32(buf[20:24], s.Flags)
	binary.LittleEndian.PutUint64(buf[24:32], s.FileSize)
	binary.LittleEndian.PutUint64(buf[32:40], s.FilenameOffset)
	binary.LittleEndian.PutUint64(buf[40:48], 0)
}

func DecodeGlobalIndexSegment(buf []byte) GlobalIndexSegment {
	_ = buf[:GlobalIndexSegmentSize]
	return GlobalIndexSegment{
		FirstEventNs:   int64(binary.LittleEndian.Uint64(buf[0:8])),
		LastEventNs:    int64(binary.LittleEndian.Uint64(buf[8:16])),
		EventCount:     binary.LittleEndian.Uint32(buf[16:20]),
		Flags:          binary.LittleEndian.Uint32(buf[20:24]),
		FileSize:       binary.LittleEndian.Uint64(buf[24:32]),
		FilenameOffset: binary.LittleEndian.Uint64(buf[32:40]),
	}
}
