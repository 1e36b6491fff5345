package contracts

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Artifact is a compiled contract: ABI plus creation bytecode.
type Artifact struct {
	ContractName    string
	ABI             abi.ABI
	Bytecode        []byte
	CompilerVersion string
}

// rawArtifact covers both the hardhat layout (bytecode as a hex string) and
// the foundry layout (bytecode.object, metadata.compiler.version).
type rawArtifact struct {
	ContractName string          `json:"contractName"`
	ABI          json.RawMessage `json:"abi"`
	Bytecode     json.RawMessage `json:"bytecode"`
	Metadata     json.RawMessage `json:"metadata"`
}

type foundryBytecode struct {
	Object string `json:"object"`
}

type compilerMetadata struct {
	Compiler struct {
		Version string `json:"version"`
	} `json:"compiler"`
}

// hardhat writes <Name>.dbg.json next to each artifact, pointing at the
// build-info file that records the solc version.
type debugFile struct {
	BuildInfo string `json:"buildInfo"`
}

type buildInfo struct {
	SolcVersion string `json:"solcVersion"`
}

// ParseArtifact decodes an artifact document.
func ParseArtifact(data []byte) (*Artifact, error) {
	var raw rawArtifact
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode artifact: %w", err)
	}
	if len(raw.ABI) == 0 {
		return nil, errors.New("artifact has no abi")
	}

	parsedABI, err := abi.JSON(bytes.NewReader(raw.ABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse artifact abi: %w", err)
	}

	code, err := decodeBytecode(raw.Bytecode)
	if err != nil {
		return nil, err
	}

	return &Artifact{
		ContractName:    raw.ContractName,
		ABI:             parsedABI,
		Bytecode:        code,
		CompilerVersion: compilerVersion(raw.Metadata),
	}, nil
}

func decodeBytecode(raw json.RawMessage) ([]byte, error) {
	var hex string
	if err := json.Unmarshal(raw, &hex); err != nil {
		var nested foundryBytecode
		if err := json.Unmarshal(raw, &nested); err != nil {
			return nil, errors.New("artifact bytecode is neither a string nor an object")
		}
		hex = nested.Object
	}
	if hex == "" || hex == "0x" {
		return nil, errors.New("artifact has empty bytecode (abstract contract or interface?)")
	}
	if strings.Contains(hex, "__") {
		return nil, errors.New("artifact bytecode has unlinked library references")
	}
	if !strings.HasPrefix(hex, "0x") {
		hex = "0x" + hex
	}
	code, err := hexutil.Decode(hex)
	if err != nil {
		return nil, fmt.Errorf("invalid artifact bytecode: %w", err)
	}
	return code, nil
}

// compilerVersion reads metadata.compiler.version; metadata may be an object
// or a JSON document embedded as a string.
func compilerVersion(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var embedded string
	if err := json.Unmarshal(raw, &embedded); err == nil {
		raw = json.RawMessage(embedded)
	}
	var meta compilerMetadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		return ""
	}
	return meta.Compiler.Version
}

// LoadArtifact reads an artifact from disk. When the artifact itself does not
// record the compiler version, the hardhat debug file is consulted.
func LoadArtifact(path string) (*Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact: %w", err)
	}
	art, err := ParseArtifact(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if art.ContractName == "" {
		art.ContractName = strings.TrimSuffix(filepath.Base(path), ".json")
	}
	if art.CompilerVersion == "" {
		version, err := hardhatSolcVersion(path)
		if err != nil {
			return nil, err
		}
		art.CompilerVersion = version
	}
	return art, nil
}

func hardhatSolcVersion(artifactPath string) (string, error) {
	dbgPath := strings.TrimSuffix(artifactPath, ".json") + ".dbg.json"
	data, err := os.ReadFile(dbgPath)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", dbgPath, err)
	}

	var dbg debugFile
	if err := json.Unmarshal(data, &dbg); err != nil || dbg.BuildInfo == "" {
		return "", nil
	}

	infoPath := filepath.Join(filepath.Dir(dbgPath), dbg.BuildInfo)
	data, err = os.ReadFile(infoPath)
	if err != nil {
		return "", fmt.Errorf("failed to read build info: %w", err)
	}
	var info buildInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return "", fmt.Errorf("failed to decode build info: %w", err)
	}
	return info.SolcVersion, nil
}

// CheckCompiler verifies the artifact was built with the pinned solc version.
// Artifacts that do not record a version pass.
func (a *Artifact) CheckCompiler(pin string) error {
	if a.CompilerVersion == "" || pin == "" {
		return nil
	}
	version := strings.TrimPrefix(a.CompilerVersion, "v")
	if version == pin || strings.HasPrefix(version, pin+"+") {
		return nil
	}
	return fmt.Errorf("artifact %s compiled with solc %s, expected %s", a.ContractName, a.CompilerVersion, pin)
}
