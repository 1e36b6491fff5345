package testutils

import (
	"context"
	"crypto/ecdsa"
	"encoding/binary"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient/simulated"
	"github.com/ethereum/go-ethereum/params"
	"github.com/stretchr/testify/require"
)

// errorSelector is the 4-byte selector of Error(string).
var errorSelector = []byte{0x08, 0xc3, 0x79, 0xa0}

// Chain is an in-process chain with one funded account.
type Chain struct {
	Backend *simulated.Backend
	// Client mines a block after every accepted transaction, like an anvil
	// node in automine mode.
	Client simulated.Client
	Key    *ecdsa.PrivateKey
	From   common.Address
}

type autoMineClient struct {
	simulated.Client
	backend *simulated.Backend
}

func (c *autoMineClient) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	if err := c.Client.SendTransaction(ctx, tx); err != nil {
		return err
	}
	c.backend.Commit()
	return nil
}

// NewSimulatedChain starts a simulated chain that is closed with the test.
func NewSimulatedChain(t *testing.T) *Chain {
	t.Helper()

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	from := crypto.PubkeyToAddress(key.PublicKey)

	balance := new(big.Int).Mul(big.NewInt(1000), big.NewInt(params.Ether))
	backend := simulated.NewBackend(types.GenesisAlloc{
		from: {Balance: balance},
	})
	t.Cleanup(func() { _ = backend.Close() })

	return &Chain{
		Backend: backend,
		Client:  &autoMineClient{Client: backend.Client(), backend: backend},
		Key:     key,
		From:    from,
	}
}

// RevertingBytecode returns creation code for a contract whose every call
// reverts with Error(reason).
func RevertingBytecode(reason string) []byte {
	payload := append([]byte{}, errorSelector...)
	payload = append(payload, common.LeftPadBytes(big.NewInt(32).Bytes(), 32)...)
	payload = append(payload, common.LeftPadBytes(big.NewInt(int64(len(reason))).Bytes(), 32)...)
	payload = append(payload, common.RightPadBytes([]byte(reason), (len(reason)+31)/32*32)...)
	size := len(payload)
	if rem := len(payload) % 32; rem != 0 {
		payload = append(payload, make([]byte, 32-rem)...)
	}

	var runtime []byte
	for offset := 0; offset < len(payload); offset += 32 {
		runtime = append(runtime, byte(vm.PUSH32))
		runtime = append(runtime, payload[offset:offset+32]...)
		runtime = append(runtime, push2(offset)...)
		runtime = append(runtime, byte(vm.MSTORE))
	}
	runtime = append(runtime, push2(size)...)
	runtime = append(runtime, byte(vm.PUSH1), 0x00, byte(vm.REVERT))

	return creationCode(runtime)
}

// SucceedingBytecode returns creation code for a contract that accepts every
// call and returns nothing.
func SucceedingBytecode() []byte {
	return creationCode([]byte{byte(vm.STOP)})
}

// FaultingBytecode returns creation code for a contract whose every call hits
// the INVALID opcode, a failure that is not a revert.
func FaultingBytecode() []byte {
	return creationCode([]byte{byte(vm.INVALID)})
}

// creationCode prefixes runtime with a constructor that copies it to memory
// and returns it.
func creationCode(runtime []byte) []byte {
	const initLen = 14
	code := push2(len(runtime))
	code = append(code, byte(vm.PUSH1), initLen)
	code = append(code, byte(vm.PUSH1), 0x00)
	code = append(code, byte(vm.CODECOPY))
	code = append(code, push2(len(runtime))...)
	code = append(code, byte(vm.PUSH1), 0x00)
	code = append(code, byte(vm.RETURN))
	return append(code, runtime...)
}

func push2(v int) []byte {
	out := []byte{byte(vm.PUSH2), 0, 0}
	binary.BigEndian.PutUint16(out[1:], uint16(v))
	return out
}
