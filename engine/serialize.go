package engine

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/dchest/siphash"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/kilnwasm/kiln"
	"github.com/kilnwasm/kiln/compiler"
	"github.com/kilnwasm/kiln/errors"
	"github.com/kilnwasm/kiln/wasm"
)

// Serialized artifacts start with a fixed header that is validated in
// full before the payload is touched:
//
//	"KILN"  magic
//	u8      engine ID
//	u16 LE  ABI version
//	u64 LE  feature hash (siphash-2-4 of the feature bits)
//	u8+str  target triple, length prefixed
//
// The payload is a msgpack envelope with the module metadata and the
// compiled code.

var serialMagic = []byte("KILN")

// Keys for the feature hash. Fixed so artifacts hash identically
// across processes.
const (
	hashKey0 uint64 = 0x6b696c6e7761736d
	hashKey1 uint64 = 0x6172746966616374
)

type envelope struct {
	Module   *wasm.Module      `msgpack:"module"`
	Compiled *compiler.Module  `msgpack:"compiled"`
	Features compiler.Features `msgpack:"features"`
}

func featureHash(f compiler.Features) uint64 {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], uint32(f))
	return siphash.Hash(hashKey0, hashKey1, b[:])
}

// Serialize encodes the artifact for storage. The result can be
// loaded by any engine with a matching target and feature set,
// including a headless one.
func (a *Artifact) Serialize() ([]byte, error) {
	if !a.alive() {
		return nil, errors.Closed("artifact")
	}
	var buf bytes.Buffer
	buf.Write(serialMagic)
	buf.WriteByte(byte(a.engineID))

	var abi [2]byte
	binary.LittleEndian.PutUint16(abi[:], kiln.ABIVersion)
	buf.Write(abi[:])

	var fh [8]byte
	binary.LittleEndian.PutUint64(fh[:], featureHash(a.cfg.Features))
	buf.Write(fh[:])

	triple := a.cfg.Target.Triple()
	buf.WriteByte(byte(len(triple)))
	buf.WriteString(triple)

	payload, err := msgpack.Marshal(&envelope{
		Module:   a.module,
		Compiled: a.compiled,
		Features: a.cfg.Features,
	})
	if err != nil {
		return nil, errors.Serialize(err)
	}
	buf.Write(payload)
	return buf.Bytes(), nil
}

// deserialize validates the header against the loading engine and
// decodes the payload. Every header mismatch is reported before any
// payload bytes are read.
func deserialize(e Engine, data []byte, cfg compiler.Config) (*Artifact, error) {
	const headerMin = 4 + 1 + 2 + 8 + 1
	if len(data) < headerMin {
		return nil, errors.Deserialize(fmt.Sprintf("artifact truncated: %d bytes", len(data)), nil)
	}
	if !bytes.Equal(data[:4], serialMagic) {
		return nil, errors.Deserialize("bad magic: not a serialized artifact", nil)
	}
	id := kiln.EngineID(data[4])
	// The header records the producing engine. The headless engine
	// exists to load what the universal engine produced, so it accepts
	// both ids.
	if id != e.ID() && !(e.ID() == kiln.EngineHeadless && id == kiln.EngineUniversal) {
		return nil, errors.Incompatible(
			"artifact was produced by engine %d, loading engine is %d", id, e.ID())
	}
	abi := binary.LittleEndian.Uint16(data[5:7])
	if abi != kiln.ABIVersion {
		return nil, errors.Incompatible(
			"artifact ABI version %d, runtime supports %d", abi, kiln.ABIVersion)
	}
	fh := binary.LittleEndian.Uint64(data[7:15])
	if fh != featureHash(e.Features()) {
		return nil, errors.Incompatible("artifact feature set does not match the engine")
	}
	tlen := int(data[15])
	if len(data) < headerMin+tlen {
		return nil, errors.Deserialize("artifact truncated in target triple", nil)
	}
	triple := string(data[16 : 16+tlen])
	if triple != e.Target().Triple() {
		return nil, errors.Incompatible(
			"artifact targets %s, engine targets %s", triple, e.Target().Triple())
	}

	var env envelope
	if err := msgpack.Unmarshal(data[16+tlen:], &env); err != nil {
		return nil, errors.Deserialize("decoding compiled artifact", err)
	}
	if env.Module == nil || env.Compiled == nil {
		return nil, errors.Deserialize("artifact payload is incomplete", nil)
	}
	cfg.Target = e.Target()
	cfg.Features = env.Features
	return newArtifact(id, cfg, env.Module, env.Compiled), nil
}
