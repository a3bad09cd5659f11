package chain

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// orderBookV4ABI is the minimal slice of IOrderBookV4's interface this
// bridge needs: the three events it watches. Trimmed from the full
// contract ABI rather than embedding the generated JSON wholesale,
// since nothing else in the contract is ever called.
const orderBookV4ABI = `[
  {
    "type": "event",
    "name": "ClearV2",
    "inputs": [
      {"name": "sender", "type": "address", "indexed": false},
      {"name": "alice", "type": "tuple", "indexed": false, "components": [
        {"name": "owner", "type": "address"},
        {"name": "evaluable", "type": "tuple", "components": [
          {"name": "interpreter", "type": "address"},
          {"name": "store", "type": "address"},
          {"name": "bytecode", "type": "bytes"}
        ]},
        {"name": "validInputs", "type": "tuple[]", "components": [
          {"name": "token", "type": "address"},
          {"name": "decimals", "type": "uint8"},
          {"name": "vaultId", "type": "uint256"}
        ]},
        {"name": "validOutputs", "type": "tuple[]", "components": [
          {"name": "token", "type": "address"},
          {"name": "decimals", "type": "uint8"},
          {"name": "vaultId", "type": "uint256"}
        ]},
        {"name": "nonce", "type": "bytes32"}
      ]},
      {"name": "bob", "type": "tuple", "indexed": false, "components": [
        {"name": "owner", "type": "address"},
        {"name": "evaluable", "type": "tuple", "components": [
          {"name": "interpreter", "type": "address"},
          {"name": "store", "type": "address"},
          {"name": "bytecode", "type": "bytes"}
        ]},
        {"name": "validInputs", "type": "tuple[]", "components": [
          {"name": "token", "type": "address"},
          {"name": "decimals", "type": "uint8"},
          {"name": "vaultId", "type": "uint256"}
        ]},
        {"name": "validOutputs", "type": "tuple[]", "components": [
          {"name": "token", "type": "address"},
          {"name": "decimals", "type": "uint8"},
          {"name": "vaultId", "type": "uint256"}
        ]},
        {"name": "nonce", "type": "bytes32"}
      ]},
      {"name": "clearConfig", "type": "tuple", "indexed": false, "components": [
        {"name": "aliceInputIOIndex", "type": "uint256"},
        {"name": "aliceOutputIOIndex", "type": "uint256"},
        {"name": "bobInputIOIndex", "type": "uint256"},
        {"name": "bobOutputIOIndex", "type": "uint256"},
        {"name": "aliceBountyVaultId", "type": "uint256"},
        {"name": "bobBountyVaultId", "type": "uint256"}
      ]}
    ],
    "anonymous": false
  },
  {
    "type": "event",
    "name": "AfterClear",
    "inputs": [
      {"name": "sender", "type": "address", "indexed": false},
      {"name": "clearStateChange", "type": "tuple", "indexed": false, "components": [
        {"name": "aliceOutput", "type": "uint256"},
        {"name": "bobOutput", "type": "uint256"},
        {"name": "aliceInput", "type": "uint256"},
        {"name": "bobInput", "type": "uint256"}
      ]}
    ],
    "anonymous": false
  },
  {
    "type": "event",
    "name": "TakeOrderV2",
    "inputs": [
      {"name": "sender", "type": "address", "indexed": false},
      {"name": "config", "type": "tuple", "indexed": false, "components": [
        {"name": "order", "type": "tuple", "components": [
          {"name": "owner", "type": "address"},
          {"name": "evaluable", "type": "tuple", "components": [
            {"name": "interpreter", "type": "address"},
            {"name": "store", "type": "address"},
            {"name": "bytecode", "type": "bytes"}
          ]},
          {"name": "validInputs", "type": "tuple[]", "components": [
            {"name": "token", "type": "address"},
            {"name": "decimals", "type": "uint8"},
            {"name": "vaultId", "type": "uint256"}
          ]},
          {"name": "validOutputs", "type": "tuple[]", "components": [
            {"name": "token", "type": "address"},
            {"name": "decimals", "type": "uint8"},
            {"name": "vaultId", "type": "uint256"}
          ]},
          {"name": "nonce", "type": "bytes32"}
        ]},
        {"name": "inputIOIndex", "type": "uint256"},
        {"name": "outputIOIndex", "type": "uint256"},
        {"name": "signedContext", "type": "tuple[]", "components": [
          {"name": "signer", "type": "address"},
          {"name": "context", "type": "uint256[]"},
          {"name": "signature", "type": "bytes"}
        ]}
      ]},
      {"name": "input", "type": "uint256"},
      {"name": "output", "type": "uint256"}
    ],
    "anonymous": false
  }
]`

// erc20SymbolABI is the single-method slice of IERC20 the symbol
// resolver needs.
const erc20SymbolABI = `[
  {"type":"function","name":"symbol","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]}
]`

// ParsedOrderBookABI is the decoded ABI for ClearV2, AfterClear, and
// TakeOrderV2, shared by every EventSource and ChainReader
// implementation.
var ParsedOrderBookABI = mustParseABI(orderBookV4ABI)

// ParsedERC20ABI is the decoded ABI for ERC20's symbol() accessor.
var ParsedERC20ABI = mustParseABI(erc20SymbolABI)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(fmt.Sprintf("chain: invalid embedded ABI: %v", err))
	}
	return parsed
}

// ClearV2Signature, AfterClearSignature, and TakeOrderV2Signature are
// the topic0 values an EventSource filters logs by.
var (
	ClearV2Signature     = ParsedOrderBookABI.Events["ClearV2"].ID
	AfterClearSignature  = ParsedOrderBookABI.Events["AfterClear"].ID
	TakeOrderV2Signature = ParsedOrderBookABI.Events["TakeOrderV2"].ID
)
