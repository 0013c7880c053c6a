package wallet

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"

	"github.com/mr-tron/base58"
)

// systemProgramID is the native system program (all-zero key).
var systemProgramID = make([]byte, 32)

// transferInstructionIndex selects SystemProgram::Transfer.
const transferInstructionIndex = 2

// appendCompactU16 writes the Solana compact-u16 length prefix.
func appendCompactU16(buf []byte, n int) []byte {
	for {
		if n < 0x80 {
			return append(buf, byte(n))
		}
		buf = append(buf, byte(n&0x7f)|0x80)
		n >>= 7
	}
}

// buildTransferMessage serializes a legacy message moving lamports from
// the fee payer to the recipient.
func buildTransferMessage(from, to []byte, recentBlockhash string, lamports uint64) ([]byte, error) {
	blockhash, err := base58.Decode(recentBlockhash)
	if err != nil {
		return nil, fmt.Errorf("decoding blockhash: %w", err)
	}
	if len(blockhash) != 32 {
		return nil, fmt.Errorf("blockhash must be 32 bytes, got %d", len(blockhash))
	}

	var msg []byte
	// Header: one required signature, no readonly signed accounts, one
	// readonly unsigned account (the system program).
	msg = append(msg, 1, 0, 1)

	msg = appendCompactU16(msg, 3)
	msg = append(msg, from...)
	msg = append(msg, to...)
	msg = append(msg, systemProgramID...)

	msg = append(msg, blockhash...)

	data := make([]byte, 12)
	binary.LittleEndian.PutUint32(data, transferInstructionIndex)
	binary.LittleEndian.PutUint64(data[4:], lamports)

	msg = appendCompactU16(msg, 1)
	msg = append(msg, 2) // program id index
	msg = appendCompactU16(msg, 2)
	msg = append(msg, 0, 1) // from, to
	msg = appendCompactU16(msg, len(data))
	msg = append(msg, data...)

	return msg, nil
}

// encodeTransaction wraps a signed message as a base64 wire transaction.
func encodeTransaction(signature, message []byte) string {
	var tx []byte
	tx = appendCompactU16(tx, 1)
	tx = append(tx, signature...)
	tx = append(tx, message...)
	return base64.StdEncoding.EncodeToString(tx)
}
