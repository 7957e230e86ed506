// Package wire serializes a DatabaseTableUpdate for transport to a
// subscriber and compresses the result. Three codecs cover the usual
// speed/ratio tradeoffs, each a fixed choice of algorithm: no runtime
// policy selection (that belongs to a storage-tier compaction layer,
// out of scope here), and a stable envelope instead of raw bytes.
package wire

import (
	"bytes"
	"encoding/gob"
	"io"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/mantisdb/livequery/dberror"
	"github.com/mantisdb/livequery/rel"
	"github.com/mantisdb/livequery/storage"
)

func init() {
	gob.Register(int(0))
	gob.Register(int64(0))
	gob.Register(uint8(0))
	gob.Register(float64(0))
	gob.Register(string(""))
	gob.Register(bool(false))
}

// envelope is the wire shape of a storage.DatabaseTableUpdate: the same
// fields, in a form gob can marshal without reaching into unexported
// storage internals.
type envelope struct {
	TableID   uint32
	TableName string
	Ops       []envelopeOp
}

type envelopeOp struct {
	OpType uint8
	Values []any
}

func toEnvelope(u storage.DatabaseTableUpdate) envelope {
	ops := make([]envelopeOp, len(u.Ops))
	for i, op := range u.Ops {
		ops[i] = envelopeOp{OpType: uint8(op.OpType), Values: op.Row.Values}
	}
	return envelope{TableID: uint32(u.TableID), TableName: u.TableName, Ops: ops}
}

func (e envelope) toUpdate() storage.DatabaseTableUpdate {
	ops := make([]storage.TableOp, len(e.Ops))
	for i, op := range e.Ops {
		ops[i] = storage.TableOp{OpType: storage.OpType(op.OpType), Row: rel.Row{Values: op.Values}}
	}
	return storage.DatabaseTableUpdate{TableID: rel.TableID(e.TableID), TableName: e.TableName, Ops: ops}
}

func marshal(u storage.DatabaseTableUpdate) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(toEnvelope(u)); err != nil {
		return nil, dberror.Wrap(err, "wire: marshal envelope")
	}
	return buf.Bytes(), nil
}

func unmarshal(data []byte) (storage.DatabaseTableUpdate, error) {
	var e envelope
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&e); err != nil {
		return storage.DatabaseTableUpdate{}, dberror.Wrap(err, "wire: unmarshal envelope")
	}
	return e.toUpdate(), nil
}

// Codec encodes a DatabaseTableUpdate for transport and decodes it back
// on the other end.
type Codec interface {
	Encode(u storage.DatabaseTableUpdate) ([]byte, error)
	Decode(data []byte) (storage.DatabaseTableUpdate, error)
	Name() string
}

// LZ4Codec favors encode/decode speed over ratio — the right default
// for a hot dispatch path where every commit potentially re-serializes
// for many subscribers.
type LZ4Codec struct{}

func (LZ4Codec) Name() string { return "lz4" }

func (LZ4Codec) Encode(u storage.DatabaseTableUpdate) ([]byte, error) {
	payload, err := marshal(u)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	w := lz4.NewWriter(&buf)
	if _, err := w.Write(payload); err != nil {
		return nil, dberror.Wrap(err, "wire: lz4 compress")
	}
	if err := w.Close(); err != nil {
		return nil, dberror.Wrap(err, "wire: lz4 close")
	}
	return buf.Bytes(), nil
}

func (LZ4Codec) Decode(data []byte) (storage.DatabaseTableUpdate, error) {
	r := lz4.NewReader(bytes.NewReader(data))
	payload, err := io.ReadAll(r)
	if err != nil {
		return storage.DatabaseTableUpdate{}, dberror.Wrap(err, "wire: lz4 decompress")
	}
	return unmarshal(payload)
}

// SnappyCodec favors decode speed, at a worse ratio than LZ4 — a fit
// for subscribers on a trusted, low-latency link where CPU on the
// receiving end is the scarcer resource.
type SnappyCodec struct{}

func (SnappyCodec) Name() string { return "snappy" }

func (SnappyCodec) Encode(u storage.DatabaseTableUpdate) ([]byte, error) {
	payload, err := marshal(u)
	if err != nil {
		return nil, err
	}
	return snappy.Encode(nil, payload), nil
}

func (SnappyCodec) Decode(data []byte) (storage.DatabaseTableUpdate, error) {
	payload, err := snappy.Decode(nil, data)
	if err != nil {
		return storage.DatabaseTableUpdate{}, dberror.Wrap(err, "wire: snappy decompress")
	}
	return unmarshal(payload)
}

// ZSTDCodec favors ratio over speed — the right choice for a
// subscriber on a metered or high-latency link, where shaving bytes
// off a large initial snapshot matters more than CPU.
type ZSTDCodec struct {
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// NewZSTDCodec builds a ZSTDCodec with fresh, reusable encoder/decoder
// state — constructing these is not free, so unlike LZ4Codec and
// SnappyCodec (which are stateless and zero-value usable), a ZSTDCodec
// must be built once and reused.
func NewZSTDCodec() (*ZSTDCodec, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, dberror.Wrap(err, "wire: create zstd encoder")
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, dberror.Wrap(err, "wire: create zstd decoder")
	}
	return &ZSTDCodec{encoder: enc, decoder: dec}, nil
}

func (c *ZSTDCodec) Name() string { return "zstd" }

func (c *ZSTDCodec) Encode(u storage.DatabaseTableUpdate) ([]byte, error) {
	payload, err := marshal(u)
	if err != nil {
		return nil, err
	}
	return c.encoder.EncodeAll(payload, nil), nil
}

func (c *ZSTDCodec) Decode(data []byte) (storage.DatabaseTableUpdate, error) {
	payload, err := c.decoder.DecodeAll(data, nil)
	if err != nil {
		return storage.DatabaseTableUpdate{}, dberror.Wrap(err, "wire: zstd decompress")
	}
	return unmarshal(payload)
}

// ByName resolves a codec by its configured name, for config.Config's
// wire.codec setting.
func ByName(name string) (Codec, error) {
	switch name {
	case "lz4":
		return LZ4Codec{}, nil
	case "snappy":
		return SnappyCodec{}, nil
	case "zstd":
		return NewZSTDCodec()
	default:
		return nil, dberror.Wrapf(dberror.ErrStorageRead, "wire: unknown codec %q", name)
	}
}
