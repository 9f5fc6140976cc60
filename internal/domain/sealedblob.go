package domain

import "encoding/binary"

// SealedNonceSize is the fixed GCM nonce length (96 bits) per spec.md §6.
const SealedNonceSize = 12

// SealedBlob is ciphertext produced by the pepper vault: the ciphertext
// (with its 16-byte GCM tag appended by the AEAD), the nonce used to
// produce it, and the pepper version that can decrypt it again. Immutable.
type SealedBlob struct {
	Ciphertext    []byte
	Nonce         [SealedNonceSize]byte
	PepperVersion int16
}

// MarshalBinary renders the wire format from spec.md §6:
// version:i16 big-endian || nonce:12B || ciphertext-with-tag.
func (s SealedBlob) MarshalBinary() []byte {
	out := make([]byte, 2+SealedNonceSize+len(s.Ciphertext))
	binary.BigEndian.PutUint16(out[0:2], uint16(s.PepperVersion))
	copy(out[2:2+SealedNonceSize], s.Nonce[:])
	copy(out[2+SealedNonceSize:], s.Ciphertext)
	return out
}

// UnmarshalSealedBlob parses the wire format produced by MarshalBinary.
func UnmarshalSealedBlob(b []byte) (SealedBlob, error) {
	if len(b) < 2+SealedNonceSize {
		return SealedBlob{}, ErrInvalidSize
	}
	var sb SealedBlob
	sb.PepperVersion = int16(binary.BigEndian.Uint16(b[0:2]))
	copy(sb.Nonce[:], b[2:2+SealedNonceSize])
	ct := b[2+SealedNonceSize:]
	sb.Ciphertext = make([]byte, len(ct))
	copy(sb.Ciphertext, ct)
	return sb, nil
}
