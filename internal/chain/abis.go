package chain

import (
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const erc20ABIJSON = `[
	{"name":"transfer","type":"function","inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
	{"name":"transferFrom","type":"function","inputs":[{"name":"from","type":"address"},{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
	{"name":"balanceOf","type":"function","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"name":"allowance","type":"function","stateMutability":"view","inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"outputs":[{"name":"","type":"uint256"}]}
]`

const erc721ABIJSON = `[
	{"name":"transferFrom","type":"function","inputs":[{"name":"from","type":"address"},{"name":"to","type":"address"},{"name":"tokenId","type":"uint256"}],"outputs":[]},
	{"name":"ownerOf","type":"function","stateMutability":"view","inputs":[{"name":"tokenId","type":"uint256"}],"outputs":[{"name":"","type":"address"}]},
	{"name":"isApprovedForAll","type":"function","stateMutability":"view","inputs":[{"name":"owner","type":"address"},{"name":"operator","type":"address"}],"outputs":[{"name":"","type":"bool"}]},
	{"name":"owner","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]}
]`

const erc2981ABIJSON = `[
	{"name":"royaltyInfo","type":"function","stateMutability":"view","inputs":[{"name":"tokenId","type":"uint256"},{"name":"salePrice","type":"uint256"}],"outputs":[{"name":"receiver","type":"address"},{"name":"royaltyAmount","type":"uint256"}]},
	{"name":"supportsInterface","type":"function","stateMutability":"view","inputs":[{"name":"interfaceId","type":"bytes4"}],"outputs":[{"name":"","type":"bool"}]}
]`

const royaltyEngineABIJSON = `[
	{"name":"getRoyaltyView","type":"function","stateMutability":"view","inputs":[{"name":"tokenAddress","type":"address"},{"name":"tokenId","type":"uint256"},{"name":"value","type":"uint256"}],"outputs":[{"name":"recipients","type":"address[]"},{"name":"amounts","type":"uint256[]"}]}
]`

const stakerABIJSON = `[
	{"name":"getUserStakeLevel","type":"function","stateMutability":"view","inputs":[{"name":"user","type":"address"}],"outputs":[{"name":"","type":"uint8"}]}
]`

var (
	abisOnce         sync.Once
	erc20ABI         abi.ABI
	erc721ABI        abi.ABI
	erc2981ABI       abi.ABI
	royaltyEngineABI abi.ABI
	stakerABI        abi.ABI
)

func mustParse(src string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(src))
	if err != nil {
		panic("chain: invalid embedded ABI: " + err.Error())
	}
	return parsed
}

func loadABIs() {
	abisOnce.Do(func() {
		erc20ABI = mustParse(erc20ABIJSON)
		erc721ABI = mustParse(erc721ABIJSON)
		erc2981ABI = mustParse(erc2981ABIJSON)
		royaltyEngineABI = mustParse(royaltyEngineABIJSON)
		stakerABI = mustParse(stakerABIJSON)
	})
}
