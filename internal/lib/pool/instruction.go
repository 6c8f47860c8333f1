package pool

import (
	"encoding/binary"
	"fmt"

	"github.com/algorand/go-algorand-sdk/v2/encoding/msgpack"
	"github.com/algorand/go-algorand-sdk/v2/types"
	mapset "github.com/deckarep/golang-set"
	"github.com/google/uuid"
	"golang.org/x/crypto/ed25519"
)

// Kind is the discriminator byte of an instruction.
type Kind uint8

const (
	KindSetup Kind = iota
	KindActivateBuffer
	KindMergeBuffer
	KindDeposit
	KindInitiateWithdrawal
	KindFinalizeWithdrawal
)

var kindNames = [...]string{"setup", "activate_buffer", "merge_buffer", "deposit", "initiate_withdrawal", "finalize_withdrawal"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// payloadSize is the exact payload length for each kind.
func (k Kind) payloadSize() (int, bool) {
	switch k {
	case KindSetup:
		return len(types.ZeroAddress), true
	case KindActivateBuffer, KindMergeBuffer:
		return 0, true
	case KindDeposit, KindFinalizeWithdrawal:
		return 8, true
	case KindInitiateWithdrawal:
		return 16, true
	}
	return 0, false
}

// Instruction is a decoded operation request.
type Instruction struct {
	Kind   Kind
	Agent  types.Address // setup
	Amount uint64        // deposit, initiate withdrawal
	Nonce  uint64        // initiate/finalize withdrawal
}

// Encode serializes ix as discriminator byte followed by its little-endian payload.
func (ix Instruction) Encode() []byte {
	size, _ := ix.Kind.payloadSize()
	data := make([]byte, 1, 1+size)
	data[0] = byte(ix.Kind)
	switch ix.Kind {
	case KindSetup:
		data = append(data, ix.Agent[:]...)
	case KindDeposit:
		data = binary.LittleEndian.AppendUint64(data, ix.Amount)
	case KindInitiateWithdrawal:
		data = binary.LittleEndian.AppendUint64(data, ix.Amount)
		data = binary.LittleEndian.AppendUint64(data, ix.Nonce)
	case KindFinalizeWithdrawal:
		data = binary.LittleEndian.AppendUint64(data, ix.Nonce)
	}
	return data
}

func DecodeInstruction(data []byte) (Instruction, error) {
	if len(data) == 0 {
		return Instruction{}, fmt.Errorf("%w: empty", ErrInvalidInstruction)
	}
	ix := Instruction{Kind: Kind(data[0])}
	size, known := ix.Kind.payloadSize()
	if !known {
		return Instruction{}, fmt.Errorf("%w: unknown discriminator %d", ErrInvalidInstruction, data[0])
	}
	payload := data[1:]
	if len(payload) != size {
		return Instruction{}, fmt.Errorf("%w: %s payload is %d bytes, expected %d", ErrInvalidInstruction, ix.Kind, len(payload), size)
	}
	switch ix.Kind {
	case KindSetup:
		copy(ix.Agent[:], payload)
	case KindDeposit:
		ix.Amount = binary.LittleEndian.Uint64(payload)
	case KindInitiateWithdrawal:
		ix.Amount = binary.LittleEndian.Uint64(payload[0:8])
		ix.Nonce = binary.LittleEndian.Uint64(payload[8:16])
	case KindFinalizeWithdrawal:
		ix.Nonce = binary.LittleEndian.Uint64(payload)
	}
	return ix, nil
}

// Signature is an ed25519 signature by Signer over a request's SigningBytes.
type Signature struct {
	Signer types.Address `codec:"sgnr"`
	Sig    []byte        `codec:"sig"`
}

// Request carries an encoded instruction and the signatures authorizing it.
// Caller is the depositor, withdrawer or initializer depending on the instruction;
// Mint is only used by setup. Lease is signed along with the instruction and the ledger
// accepts each (caller, lease) pair once, so a signed request can't be replayed.
type Request struct {
	Data       []byte        `codec:"data"`
	Caller     types.Address `codec:"caller"`
	Mint       types.Address `codec:"mint"`
	Lease      uuid.UUID     `codec:"lease"`
	Signatures []Signature   `codec:"sigs"`
}

func NewRequest(ix Instruction, caller types.Address) *Request {
	return &Request{Data: ix.Encode(), Caller: caller, Lease: uuid.New()}
}

var requestDomain = []byte("LSTREQ")

type requestBody struct {
	Data   []byte        `codec:"data"`
	Caller types.Address `codec:"caller"`
	Mint   types.Address `codec:"mint"`
	Lease  [16]byte      `codec:"lease"`
}

// SigningBytes is the message each signer signs.
func (r *Request) SigningBytes() []byte {
	body := msgpack.Encode(requestBody{Data: r.Data, Caller: r.Caller, Mint: r.Mint, Lease: r.Lease})
	return append(append([]byte{}, requestDomain...), body...)
}

// Sign adds a signature by sk. The signer's address is its public key.
func (r *Request) Sign(sk ed25519.PrivateKey) {
	var signer types.Address
	copy(signer[:], sk.Public().(ed25519.PublicKey))
	r.Signatures = append(r.Signatures, Signature{
		Signer: signer,
		Sig:    ed25519.Sign(sk, r.SigningBytes()),
	})
}

// Signers verifies every signature and returns the set of signing addresses.
// A single bad signature rejects the whole request.
func (r *Request) Signers() (mapset.Set, error) {
	signers := mapset.NewSet()
	msg := r.SigningBytes()
	for _, sig := range r.Signatures {
		if !ed25519.Verify(ed25519.PublicKey(sig.Signer[:]), msg, sig.Sig) {
			return nil, fmt.Errorf("%w: signer %s", ErrInvalidSignature, sig.Signer)
		}
		signers.Add(sig.Signer)
	}
	return signers, nil
}
