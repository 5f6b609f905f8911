package nnue

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// Weight file format constants
const (
	MagicNumber = 0x4E4E4343 // "CCNN"
	Version     = 1
)

// ErrBadWeights reports a weight file that does not describe this network.
var ErrBadWeights = errors.New("bad network weights")

// FileHeader is the header of the weight file.
type FileHeader struct {
	Magic      uint32
	Version    uint32
	HiddenSize uint32
}

var zstdMagic = []byte{0x28, 0xB5, 0x2F, 0xFD}

// Load reads a network from r.
// File format, little-endian:
//   - Header: Magic, Version, HiddenSize (uint32 each)
//   - FeatureWeights: InputSize * HiddenSize * int16
//   - FeatureBias: HiddenSize * int16
//   - OutputWeights: 2 * HiddenSize * int16
//   - OutputBias: int32
func Load(r io.Reader) (*Network, error) {
	var header FileHeader
	if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
		return nil, fmt.Errorf("%w: read header: %v", ErrBadWeights, err)
	}
	if header.Magic != MagicNumber {
		return nil, fmt.Errorf("%w: magic %#x, want %#x", ErrBadWeights, header.Magic, MagicNumber)
	}
	if header.Version != Version {
		return nil, fmt.Errorf("%w: version %d, want %d", ErrBadWeights, header.Version, Version)
	}
	if header.HiddenSize != HiddenSize {
		return nil, fmt.Errorf("%w: hidden size %d, want %d", ErrBadWeights, header.HiddenSize, HiddenSize)
	}

	n := &Network{}
	if err := binary.Read(r, binary.LittleEndian, n); err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrBadWeights, err)
	}
	return n, nil
}

// Save writes n in the format read by Load.
func (n *Network) Save(w io.Writer) error {
	header := FileHeader{Magic: MagicNumber, Version: Version, HiddenSize: HiddenSize}
	if err := binary.Write(w, binary.LittleEndian, &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, n); err != nil {
		return fmt.Errorf("write body: %w", err)
	}
	return nil
}

// LoadFile reads a network from path. Zstandard-compressed files are
// recognised by their frame magic and decompressed on the fly.
func LoadFile(path string) (*Network, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open weights: %w", err)
	}
	defer f.Close()

	br := bufio.NewReader(f)
	head, _ := br.Peek(len(zstdMagic))
	if !bytes.Equal(head, zstdMagic) {
		return Load(br)
	}

	dec, err := zstd.NewReader(br)
	if err != nil {
		return nil, fmt.Errorf("zstd reader: %w", err)
	}
	defer dec.Close()
	return Load(dec)
}

// SaveFile writes n to path, zstd-compressed when path ends in ".zst".
func (n *Network) SaveFile(path string) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create weights: %w", err)
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	bw := bufio.NewWriter(f)
	if !strings.HasSuffix(path, ".zst") {
		if err := n.Save(bw); err != nil {
			return err
		}
		return bw.Flush()
	}

	enc, err := zstd.NewWriter(bw)
	if err != nil {
		return fmt.Errorf("zstd writer: %w", err)
	}
	if err := n.Save(enc); err != nil {
		enc.Close()
		return err
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("zstd close: %w", err)
	}
	return bw.Flush()
}
