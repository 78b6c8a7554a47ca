package plugin

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// bytecodeMagic is the 4-byte preamble of a valid plugin bytecode file.
var bytecodeMagic = [4]byte{'F', 'Z', 'B', 0x01}

// BytecodeMeta is the metadata record following the magic preamble. The
// constant pool, function descriptors, and instruction stream that follow
// it are opaque to the core; nothing past the header is interpreted.
type BytecodeMeta struct {
	PluginID     string
	PluginVer    string
	CompiledAt   int64
	CompilerVer  string
}

// ParseBytecodeHeader validates the magic preamble and decodes the
// metadata record from a plugin.fzb file, without interpreting anything
// past it. manifestID must match the embedded plugin id.
func ParseBytecodeHeader(r io.Reader, manifestID string) (*BytecodeMeta, error) {
	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return nil, fmt.Errorf("plugin: read bytecode magic: %w", err)
	}
	if !bytes.Equal(magic[:], bytecodeMagic[:]) {
		return nil, fmt.Errorf("plugin: bad bytecode magic %x", magic)
	}

	meta, err := readMetaRecord(r)
	if err != nil {
		return nil, fmt.Errorf("plugin: read bytecode metadata: %w", err)
	}

	if meta.PluginID != manifestID {
		return nil, fmt.Errorf("plugin: bytecode plugin id %q does not match manifest id %q", meta.PluginID, manifestID)
	}

	return meta, nil
}

// readMetaRecord decodes three length-prefixed strings followed by an
// 8-byte compiled-at timestamp: plugin id, plugin version, compiler
// version, then the timestamp.
func readMetaRecord(r io.Reader) (*BytecodeMeta, error) {
	id, err := readLPString(r)
	if err != nil {
		return nil, err
	}
	ver, err := readLPString(r)
	if err != nil {
		return nil, err
	}
	compilerVer, err := readLPString(r)
	if err != nil {
		return nil, err
	}

	var compiledAt int64
	if err := binary.Read(r, binary.LittleEndian, &compiledAt); err != nil {
		return nil, fmt.Errorf("read compiled_at: %w", err)
	}

	return &BytecodeMeta{
		PluginID:    id,
		PluginVer:   ver,
		CompiledAt:  compiledAt,
		CompilerVer: compilerVer,
	}, nil
}

func readLPString(r io.Reader) (string, error) {
	var length uint16
	if err := binary.Read(r, binary.LittleEndian, &length); err != nil {
		return "", fmt.Errorf("read string length: %w", err)
	}
	buf := make([]byte, length)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", fmt.Errorf("read string body: %w", err)
	}
	return string(buf), nil
}
