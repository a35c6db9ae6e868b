package escrow

import (
	"crypto/sha256"
	"encoding/base32"
	"errors"
	"fmt"
	"strings"

	"github.com/sigurn/crc16"
)

// ErrInvalidContractID rejects malformed contract identifiers before any
// network call is made.
var ErrInvalidContractID = errors.New("escrow: invalid contract id")

const (
	contractIDLength = 56
	contractIDPrefix = 'C'
	base32Alphabet   = "ABCDEFGHIJKLMNOPQRSTUVWXYZ234567"

	// contractVersionByte is the strkey version byte that base32-encodes to a
	// leading 'C'.
	contractVersionByte = 0x10
)

var checksumTable = crc16.MakeTable(crc16.CRC16_XMODEM)

// ValidateContractID checks the fixed-prefix, fixed-length, uppercase base32
// contract address format. This is the single consolidated validator; every
// fetch path calls it before touching the network.
func ValidateContractID(id string) error {
	if len(id) != contractIDLength {
		return fmt.Errorf("%w: must be %d characters, got %d", ErrInvalidContractID, contractIDLength, len(id))
	}
	if id[0] != contractIDPrefix {
		return fmt.Errorf("%w: must start with %q", ErrInvalidContractID, string(contractIDPrefix))
	}
	for i := 1; i < len(id); i++ {
		if !strings.ContainsRune(base32Alphabet, rune(id[i])) {
			return fmt.Errorf("%w: character %q at position %d is outside the base32 alphabet", ErrInvalidContractID, string(id[i]), i)
		}
	}
	return nil
}

// AssetContractID deterministically derives the token contract id for a
// fungible asset identified by code and issuer on the given network. The
// derivation hashes the network passphrase with the canonical asset name so
// the same asset maps to the same contract on each network.
func AssetContractID(code, issuer, passphrase string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	issuer = strings.TrimSpace(issuer)
	if code == "" || issuer == "" {
		return "", fmt.Errorf("escrow: asset code and issuer required to derive a token contract")
	}
	networkID := sha256.Sum256([]byte(passphrase))
	preimage := sha256.New()
	preimage.Write(networkID[:])
	preimage.Write([]byte("asset:"))
	preimage.Write([]byte(code))
	preimage.Write([]byte{':'})
	preimage.Write([]byte(issuer))
	var digest [32]byte
	copy(digest[:], preimage.Sum(nil))
	return encodeContractID(digest), nil
}

// encodeContractID strkey-encodes a 32-byte contract hash: version byte,
// payload, CRC16-XModem checksum (little-endian), base32 without padding.
func encodeContractID(payload [32]byte) string {
	data := make([]byte, 0, 35)
	data = append(data, contractVersionByte)
	data = append(data, payload[:]...)
	sum := crc16.Checksum(data, checksumTable)
	data = append(data, byte(sum&0xff), byte(sum>>8))
	return base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(data)
}
