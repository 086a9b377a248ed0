// Package chaintest provides an in-memory ContractCaller for tests.
package chaintest

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// ErrReverted is returned for calls with no registered handler.
var ErrReverted = errors.New("execution reverted")

// HandlerFunc receives the unpacked call arguments and returns output values to pack.
type HandlerFunc func(args []interface{}) ([]interface{}, error)

type handlerKey struct {
	to       common.Address
	selector [4]byte
}

type handler struct {
	method abi.Method
	fn     HandlerFunc
}

// Caller dispatches eth_call payloads by contract address and method selector.
type Caller struct {
	mu       sync.RWMutex
	handlers map[handlerKey]handler
	calls    atomic.Int64
}

func NewCaller() *Caller {
	return &Caller{handlers: make(map[handlerKey]handler)}
}

// Handle registers fn for method on the contract at to.
func (c *Caller) Handle(to common.Address, parsed abi.ABI, method string, fn HandlerFunc) {
	m, ok := parsed.Methods[method]
	if !ok {
		panic(fmt.Sprintf("chaintest: method %s not in abi", method))
	}
	var selector [4]byte
	copy(selector[:], m.ID)

	c.mu.Lock()
	c.handlers[handlerKey{to: to, selector: selector}] = handler{method: m, fn: fn}
	c.mu.Unlock()
}

// Return registers a fixed result for method on the contract at to.
func (c *Caller) Return(to common.Address, parsed abi.ABI, method string, outputs ...interface{}) {
	c.Handle(to, parsed, method, func([]interface{}) ([]interface{}, error) {
		return outputs, nil
	})
}

// Fail registers a fixed error for method on the contract at to.
func (c *Caller) Fail(to common.Address, parsed abi.ABI, method string, err error) {
	c.Handle(to, parsed, method, func([]interface{}) ([]interface{}, error) {
		return nil, err
	})
}

// Calls reports how many eth_calls were made.
func (c *Caller) Calls() int64 {
	return c.calls.Load()
}

func (c *Caller) CallContract(ctx context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	c.calls.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if msg.To == nil || len(msg.Data) < 4 {
		return nil, ErrReverted
	}

	var selector [4]byte
	copy(selector[:], msg.Data[:4])

	c.mu.RLock()
	h, ok := c.handlers[handlerKey{to: *msg.To, selector: selector}]
	c.mu.RUnlock()
	if !ok {
		return nil, ErrReverted
	}

	args, err := h.method.Inputs.Unpack(msg.Data[4:])
	if err != nil {
		return nil, fmt.Errorf("chaintest: unpack %s: %w", h.method.Name, err)
	}
	outputs, err := h.fn(args)
	if err != nil {
		return nil, err
	}
	return h.method.Outputs.Pack(outputs...)
}
