// Package scenario describes contract interactions to run against the fork
// and the outcome each one must produce.
package scenario

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/michaelpento.lv/forkarb/flashloan"
	"github.com/michaelpento.lv/forkarb/utils/math"
	"gopkg.in/yaml.v2"
)

// Mode selects how executeTrade is invoked.
type Mode string

const (
	// ModeCall runs executeTrade through eth_call.
	ModeCall Mode = "call"
	// ModeSend signs and sends executeTrade as a transaction.
	ModeSend Mode = "send"
)

const (
	DefaultContract = "FlashLoanArb"
	DefaultDecimals = 18

	// UniswapV2WETHDAIPair is the mainnet WETH/DAI pair the flash loan is
	// borrowed from.
	UniswapV2WETHDAIPair = "0xA478c2975Ab1Ea89e8196811F51A7B7Ade33eB11"
	// InsufficientOutputAmount is the UniswapV2Pair revert raised when the
	// repayment swap cannot cover the loan.
	InsufficientOutputAmount = "UniswapV2: INSUFFICIENT_OUTPUT_AMOUNT"
)

// Scenario is one executeTrade invocation and its expected outcome.
type Scenario struct {
	Name     string `yaml:"name"`
	Contract string `yaml:"contract"`
	Pair     string `yaml:"pair"`
	// BorrowAmount is a decimal string scaled by Decimals ("10" is 10e18).
	BorrowAmount string `yaml:"borrow_amount"`
	Decimals     *uint8 `yaml:"decimals,omitempty"`
	Mode         Mode   `yaml:"mode"`
	// ExpectRevert is the exact revert reason required. Empty means the
	// invocation must succeed.
	ExpectRevert string `yaml:"expect_revert"`
	// GasLimit is used in send mode. Zero estimates gas, so a reverting
	// trade fails before a transaction is mined.
	GasLimit uint64 `yaml:"gas_limit"`
}

type scenarioFile struct {
	Scenarios []Scenario `yaml:"scenarios"`
}

// FlashLoanRevert borrows 10 WETH-denominated units from the WETH/DAI pair.
// With no price difference to exploit the repayment leg must revert.
func FlashLoanRevert() Scenario {
	decimals := uint8(DefaultDecimals)
	return Scenario{
		Name:         "flash loan arbitrage reverts without profit",
		Contract:     DefaultContract,
		Pair:         UniswapV2WETHDAIPair,
		BorrowAmount: "10",
		Decimals:     &decimals,
		Mode:         ModeCall,
		ExpectRevert: InsufficientOutputAmount,
	}
}

// Load reads scenarios from a YAML file holding either a single scenario or
// a "scenarios" list.
func Load(path string) ([]Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return Parse(data, strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)))
}

// Parse decodes scenarios from YAML. Unnamed scenarios are named after
// fallbackName.
func Parse(data []byte, fallbackName string) ([]Scenario, error) {
	var file scenarioFile
	if err := yaml.UnmarshalStrict(data, &file); err != nil || len(file.Scenarios) == 0 {
		var single Scenario
		if err := yaml.UnmarshalStrict(data, &single); err != nil {
			return nil, fmt.Errorf("failed to decode scenario: %w", err)
		}
		file.Scenarios = []Scenario{single}
	}

	for i := range file.Scenarios {
		sc := &file.Scenarios[i]
		if sc.Name == "" {
			sc.Name = fallbackName
			if len(file.Scenarios) > 1 {
				sc.Name = fmt.Sprintf("%s#%d", fallbackName, i+1)
			}
		}
		sc.applyDefaults()
		if err := sc.Validate(); err != nil {
			return nil, fmt.Errorf("scenario %q: %w", sc.Name, err)
		}
	}
	return file.Scenarios, nil
}

func (s *Scenario) applyDefaults() {
	if s.Contract == "" {
		s.Contract = DefaultContract
	}
	if s.Mode == "" {
		s.Mode = ModeCall
	}
	if s.Decimals == nil {
		decimals := uint8(DefaultDecimals)
		s.Decimals = &decimals
	}
}

func (s Scenario) decimals() uint8 {
	if s.Decimals == nil {
		return DefaultDecimals
	}
	return *s.Decimals
}

func (s Scenario) Validate() error {
	var errs []error

	if s.Name == "" {
		errs = append(errs, errors.New("name is required"))
	}
	if !common.IsHexAddress(s.Pair) {
		errs = append(errs, fmt.Errorf("pair %q is not an address", s.Pair))
	}
	if _, err := math.ParseUnits(s.BorrowAmount, s.decimals()); err != nil {
		errs = append(errs, fmt.Errorf("borrow_amount: %w", err))
	}
	switch s.Mode {
	case ModeCall, ModeSend, "":
	default:
		errs = append(errs, fmt.Errorf("unknown mode %q", s.Mode))
	}

	return errors.Join(errs...)
}

// Params converts the scenario into executeTrade arguments.
func (s Scenario) Params() (flashloan.TradeParams, error) {
	if !common.IsHexAddress(s.Pair) {
		return flashloan.TradeParams{}, fmt.Errorf("pair %q is not an address", s.Pair)
	}
	amount, err := math.ParseUnits(s.BorrowAmount, s.decimals())
	if err != nil {
		return flashloan.TradeParams{}, fmt.Errorf("invalid borrow amount: %w", err)
	}
	params := flashloan.TradeParams{
		Pair:         common.HexToAddress(s.Pair),
		BorrowAmount: amount,
	}
	return params, params.Validate()
}
