package domain

const (
	StandardERC20Or721    = "ERC20/721"
	StandardERC1155Single = "ERC1155_SINGLE"
)

// TransferRecord is a token movement decoded from a single log. Amounts are
// base-10 strings of the raw 256-bit integers.
type TransferRecord struct {
	Standard   string `json:"standard"`
	Contract   string `json:"contract"`
	Operator   string `json:"operator,omitempty"`
	From       string `json:"from"`
	To         string `json:"to"`
	AmountOrID string `json:"amountOrId"`
	Value      string `json:"value,omitempty"`
	LogIndex   uint64 `json:"logIndex"`
}
