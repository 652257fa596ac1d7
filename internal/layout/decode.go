package layout

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

var (
	// ErrLayoutMismatch is returned when data cannot be read with the layout.
	ErrLayoutMismatch = errors.New("account data does not match layout")
	// ErrUninitialized is returned for accounts whose status marks them unused.
	ErrUninitialized = fmt.Errorf("%w: account not initialized", ErrLayoutMismatch)
)

// PoolFields are the values read from one pool account.
type PoolFields struct {
	Layout    string
	MintA     string
	MintB     string
	VaultA    string
	VaultB    string
	LPMint    *string
	DecimalsA *uint8
	DecimalsB *uint8
}

// Decode reads pool fields from raw account data.
func Decode(data []byte, l Layout) (*PoolFields, error) {
	if len(data) < l.Size {
		return nil, fmt.Errorf("%w: %s needs %d bytes, got %d", ErrLayoutMismatch, l.Name, l.Size, len(data))
	}

	r := &reader{dec: bin.NewBinDecoder(data[:l.Size])}

	status, err := r.readUint(l.Status.Offset, l.Status.Width)
	if err != nil {
		return nil, err
	}
	if status == l.Status.Uninitialized {
		return nil, fmt.Errorf("%w (%s)", ErrUninitialized, l.Name)
	}

	out := &PoolFields{Layout: l.Name}
	for _, f := range []struct {
		offset uint
		dst    *string
	}{
		{l.MintAOffset, &out.MintA},
		{l.MintBOffset, &out.MintB},
		{l.VaultAOffset, &out.VaultA},
		{l.VaultBOffset, &out.VaultB},
	} {
		if *f.dst, err = r.pubkey(f.offset); err != nil {
			return nil, err
		}
	}

	if l.LPMintOffset != nil {
		lp, err := r.pubkey(*l.LPMintOffset)
		if err != nil {
			return nil, err
		}
		out.LPMint = &lp
	}
	if out.DecimalsA, err = r.decimals(l.DecimalsAOffset); err != nil {
		return nil, err
	}
	if out.DecimalsB, err = r.decimals(l.DecimalsBOffset); err != nil {
		return nil, err
	}

	return out, nil
}

// DecodeBase64 decodes a base64 account payload before reading it.
func DecodeBase64(data string, l Layout) (*PoolFields, error) {
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid base64: %v", ErrLayoutMismatch, err)
	}
	return Decode(raw, l)
}

type reader struct {
	dec *bin.Decoder
}

func (r *reader) seek(offset uint) error {
	if err := r.dec.SetPosition(offset); err != nil {
		return fmt.Errorf("%w: offset %d: %v", ErrLayoutMismatch, offset, err)
	}
	return nil
}

func (r *reader) readUint(offset uint, width int) (uint64, error) {
	if err := r.seek(offset); err != nil {
		return 0, err
	}
	switch width {
	case 1:
		v, err := r.dec.ReadUint8()
		if err != nil {
			return 0, fmt.Errorf("%w: read u8 at %d: %v", ErrLayoutMismatch, offset, err)
		}
		return uint64(v), nil
	case 8:
		v, err := r.dec.ReadUint64(binary.LittleEndian)
		if err != nil {
			return 0, fmt.Errorf("%w: read u64 at %d: %v", ErrLayoutMismatch, offset, err)
		}
		return v, nil
	default:
		return 0, fmt.Errorf("%w: unsupported field width %d", ErrLayoutMismatch, width)
	}
}

func (r *reader) pubkey(offset uint) (string, error) {
	if err := r.seek(offset); err != nil {
		return "", err
	}
	b, err := r.dec.ReadNBytes(solana.PublicKeyLength)
	if err != nil {
		return "", fmt.Errorf("%w: read pubkey at %d: %v", ErrLayoutMismatch, offset, err)
	}
	return solana.PublicKeyFromBytes(b).String(), nil
}

func (r *reader) decimals(offset *uint) (*uint8, error) {
	if offset == nil {
		return nil, nil
	}
	v, err := r.readUint(*offset, 8)
	if err != nil {
		return nil, err
	}
	if v > math.MaxUint8 {
		return nil, fmt.Errorf("%w: decimals %d out of range", ErrLayoutMismatch, v)
	}
	d := uint8(v)
	return &d, nil
}
