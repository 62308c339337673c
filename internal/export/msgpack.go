package export

import (
	"errors"
	"fmt"
	"io"

	"auditlog/internal/record"

	"github.com/vmihailenco/msgpack/v5"
)

// MsgPack writes a stream of MessagePack arrays: the header first, then one
// array of strings per record.
type MsgPack struct{}

// Write implements Writer.
func (MsgPack) Write(w io.Writer, d record.Dataset) error {
	if len(d) == 0 {
		return ErrEmptyDataset
	}
	enc := msgpack.NewEncoder(w)
	header := d.Header()
	if err := encodeRow(enc, header); err != nil {
		return err
	}
	for _, r := range d {
		if err := encodeRow(enc, r.Row(header)); err != nil {
			return err
		}
	}
	return nil
}

func encodeRow(enc *msgpack.Encoder, row []string) error {
	if err := enc.EncodeArrayLen(len(row)); err != nil {
		return err
	}
	for _, v := range row {
		if err := enc.EncodeString(v); err != nil {
			return err
		}
	}
	return nil
}

// ReadMsgPack decodes a stream written by MsgPack.
func ReadMsgPack(r io.Reader) (header []string, rows [][]string, err error) {
	dec := msgpack.NewDecoder(r)
	header, err = decodeRow(dec)
	if err != nil {
		return nil, nil, fmt.Errorf("msgpack: header: %w", err)
	}
	for {
		row, err := decodeRow(dec)
		if errors.Is(err, io.EOF) {
			return header, rows, nil
		}
		if err != nil {
			return nil, nil, fmt.Errorf("msgpack: row %d: %w", len(rows), err)
		}
		if len(row) != len(header) {
			return nil, nil, fmt.Errorf("msgpack: row %d has %d values, header has %d", len(rows), len(row), len(header))
		}
		rows = append(rows, row)
	}
}

func decodeRow(dec *msgpack.Decoder) ([]string, error) {
	n, err := dec.DecodeArrayLen()
	if err != nil {
		return nil, err
	}
	row := make([]string, n)
	for i := range row {
		if row[i], err = dec.DecodeString(); err != nil {
			return nil, err
		}
	}
	return row, nil
}
