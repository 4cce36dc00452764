package domain

// MainClubShares is the club with the largest share mint in a purchase.
type MainClubShares struct {
	ClubID string  `json:"clubId"`
	Amount int64   `json:"amount"`
	Handle *string `json:"handle"`
}

// SecondaryClubShares carries the per-club economics of a bonus mint.
type SecondaryClubShares struct {
	ClubID          string `json:"clubId"`
	Amount          int64  `json:"amount"`
	PacksFromShares int64  `json:"packsFromShares"`
	SharesModulo    int64  `json:"sharesModulo"`
	Influence       int64  `json:"influence"`
}

type ShareBreakdown struct {
	MainClub       *MainClubShares       `json:"mainClub"`
	SecondaryClubs []SecondaryClubShares `json:"secondaryClubs"`
	TotalShares    int64                 `json:"totalShares"`
}

type Influence struct {
	Main      int64 `json:"main"`
	Secondary int64 `json:"secondary"`
	Total     int64 `json:"total"`
}

type PackValidation struct {
	MainSharesModulo          int64 `json:"mainSharesModulo"`
	SecondariesHaveModuloZero bool  `json:"secondariesHaveModuloZero"`
}

// PackSummary is the reconstructed purchase for one transaction, including
// the derived pack count and influence. Money is expressed in whole USDC.
type PackSummary struct {
	Buyer         *string            `json:"buyer"`
	PriceUSDC     *USDC              `json:"priceUSDC"`
	ExtraFeesUSDC USDC               `json:"extraFeesUSDC"`
	Shares        ShareBreakdown     `json:"shares"`
	ClubSMC       *ClubMetadataClaim `json:"clubsmc"`
	IsConsistent  bool               `json:"isConsistent"`

	Packs         int64          `json:"packs"`
	UnitPriceUSDC *USDC          `json:"unitPriceUSDC"`
	Validation    PackValidation `json:"validation"`
	Influence     Influence      `json:"influence"`
}

// TxAnalysis is everything recovered from a single transaction.
type TxAnalysis struct {
	TxHash         string             `json:"txHash"`
	Status         string             `json:"status"`
	BlockNumber    uint64             `json:"blockNumber"`
	To             *string            `json:"to"`
	LogsCount      int                `json:"logsCount"`
	Transfers      []TransferRecord   `json:"transfers"`
	JSONCandidates []PayloadCandidate `json:"jsonCandidates"`
	InputJSONs     []PayloadCandidate `json:"inputJsons"`
	Interesting    []PayloadCandidate `json:"interesting"`
	PackSummary    *PackSummary       `json:"packSummary"`
}
