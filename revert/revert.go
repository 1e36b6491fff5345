// Package revert extracts revert reasons from node errors and asserts on them.
package revert

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
)

var (
	// ErrNoRevert is returned by Expect when the call succeeded.
	ErrNoRevert = errors.New("expected revert, but call succeeded")
	// ErrNotReverted is returned by Expect when the call failed for a reason
	// other than an EVM revert (connection refused, bad params, ...).
	ErrNotReverted = errors.New("call failed without a revert")
)

// ExecutionRevertedRegexp matches the revert messages of the common execution
// clients and local dev nodes.
var ExecutionRevertedRegexp = regexp.MustCompile(`(?i)(execution reverted|VM execution error|VM Exception while processing transaction)`)

var reasonRegexps = []*regexp.Regexp{
	// geth, anvil: "execution reverted: REASON", possibly followed by more
	// lines of node output
	regexp.MustCompile(`(?i)execution reverted: ([^\n]+)`),
	// hardhat: "... reverted with reason string 'REASON'"
	regexp.MustCompile(`reverted with reason string '(.*)'`),
}

// MismatchError reports a revert with an unexpected reason.
type MismatchError struct {
	Want string
	Got  string
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("expected revert %q, got %q", e.Want, e.Got)
}

// Reason returns the revert reason carried by err and whether err is a revert
// at all. A revert without a reason string yields ("", true).
func Reason(err error) (string, bool) {
	if err == nil {
		return "", false
	}

	var dataErr rpc.DataError
	if errors.As(err, &dataErr) {
		if reason, ok := reasonFromData(dataErr.ErrorData()); ok {
			return reason, true
		}
	}

	msg := err.Error()
	for _, re := range reasonRegexps {
		if m := re.FindStringSubmatch(msg); m != nil {
			return strings.TrimSpace(m[1]), true
		}
	}
	if ExecutionRevertedRegexp.MatchString(msg) {
		return "", true
	}
	return "", false
}

func reasonFromData(data interface{}) (string, bool) {
	encoded, ok := data.(string)
	if !ok {
		return "", false
	}
	raw, err := hexutil.Decode(encoded)
	if err != nil || len(raw) == 0 {
		return "", false
	}
	reason, err := abi.UnpackRevert(raw)
	if err != nil {
		if len(raw) >= 4 {
			return fmt.Sprintf("custom error %s", hexutil.Encode(raw[:4])), true
		}
		return "", false
	}
	return reason, true
}

// Expect treats a revert with exactly the wanted reason as success. A
// successful call, a different reason, or a non-revert failure is an error.
func Expect(err error, want string) error {
	if err == nil {
		return ErrNoRevert
	}
	reason, ok := Reason(err)
	if !ok {
		return fmt.Errorf("%w: %w", ErrNotReverted, err)
	}
	if reason != want {
		return &MismatchError{Want: want, Got: reason}
	}
	return nil
}
