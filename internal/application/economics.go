package application

import (
	"math/big"
	"sort"
	"strings"

	"packscan/internal/domain"

	"github.com/shopspring/decimal"
)

// DefaultUSDCContract is native USDC on Polygon PoS.
const DefaultUSDCContract = "0x3c499c542cef5e3811e1192ce70d8cc03d5c3359"

// PackRules are the economic constants of a pack.
type PackRules struct {
	USDCContract              string
	USDCDecimals              int32
	SharesPerPackMain         int64
	SharesPerPackSecondary    int64
	InfluenceMainPerPack      int64
	InfluenceSecondaryPerPack int64
}

func DefaultPackRules() PackRules {
	return PackRules{
		USDCContract:              DefaultUSDCContract,
		USDCDecimals:              6,
		SharesPerPackMain:         40,
		SharesPerPackSecondary:    10,
		InfluenceMainPerPack:      40,
		InfluenceSecondaryPerPack: 10,
	}
}

func (r PackRules) withDefaults() PackRules {
	def := DefaultPackRules()
	if strings.TrimSpace(r.USDCContract) == "" {
		r.USDCContract = def.USDCContract
	}
	r.USDCContract = strings.ToLower(r.USDCContract)
	if r.USDCDecimals <= 0 {
		r.USDCDecimals = def.USDCDecimals
	}
	if r.SharesPerPackMain <= 0 {
		r.SharesPerPackMain = def.SharesPerPackMain
	}
	if r.SharesPerPackSecondary <= 0 {
		r.SharesPerPackSecondary = def.SharesPerPackSecondary
	}
	if r.InfluenceMainPerPack <= 0 {
		r.InfluenceMainPerPack = def.InfluenceMainPerPack
	}
	if r.InfluenceSecondaryPerPack <= 0 {
		r.InfluenceSecondaryPerPack = def.InfluenceSecondaryPerPack
	}
	return r
}

// BuildPackSummary reconstructs a purchase from share mints, club metadata
// mints and the transaction's transfers. It returns nil when no share mint
// was found. The main club is the one with the most shares; on a tie the
// first claim wins.
func BuildPackSummary(shares []domain.ShareMintClaim, clubs []domain.ClubMetadataClaim, transfers []domain.TransferRecord, buyer string, rules PackRules) *domain.PackSummary {
	if len(shares) == 0 {
		return nil
	}
	rules = rules.withDefaults()

	mainIdx := 0
	var total int64
	for i, claim := range shares {
		total += claim.Shares
		if claim.Shares > shares[mainIdx].Shares {
			mainIdx = i
		}
	}
	main := shares[mainIdx]

	summary := &domain.PackSummary{
		ExtraFeesUSDC: domain.NewUSDC(decimal.Zero),
		Shares: domain.ShareBreakdown{
			MainClub:       &domain.MainClubShares{ClubID: main.ClubID, Amount: main.Shares},
			SecondaryClubs: make([]domain.SecondaryClubShares, 0, len(shares)-1),
			TotalShares:    total,
		},
	}
	if main.Handle != "" {
		handle := main.Handle
		summary.Shares.MainClub.Handle = &handle
	}

	for i, claim := range shares {
		if i == mainIdx {
			continue
		}
		packs := claim.Shares / rules.SharesPerPackSecondary
		summary.Shares.SecondaryClubs = append(summary.Shares.SecondaryClubs, domain.SecondaryClubShares{
			ClubID:          claim.ClubID,
			Amount:          claim.Shares,
			PacksFromShares: packs,
			SharesModulo:    claim.Shares % rules.SharesPerPackSecondary,
			Influence:       packs * rules.InfluenceSecondaryPerPack,
		})
	}

	for i := range clubs {
		if clubs[i].ClubID == main.ClubID {
			smc := clubs[i]
			summary.ClubSMC = &smc
			summary.IsConsistent = true
			break
		}
	}

	if buyer = strings.ToLower(strings.TrimSpace(buyer)); buyer != "" {
		summary.Buyer = &buyer
		price, fees := splitPayment(transfers, buyer, rules)
		summary.PriceUSDC, summary.ExtraFeesUSDC = domain.USDCPtr(price), domain.NewUSDC(fees)
	}

	enrich(summary, rules)
	return summary
}

// splitPayment treats the largest USDC transfer out of the buyer as the price
// and the sum of the remaining ones as fees.
func splitPayment(transfers []domain.TransferRecord, buyer string, rules PackRules) (*decimal.Decimal, decimal.Decimal) {
	var amounts []decimal.Decimal
	for _, t := range transfers {
		if t.Standard != domain.StandardERC20Or721 || t.Contract != rules.USDCContract || strings.ToLower(t.From) != buyer {
			continue
		}
		amounts = append(amounts, NormalizeTokenAmount(t.AmountOrID, rules.USDCDecimals))
	}
	if len(amounts) == 0 {
		return nil, decimal.Zero
	}
	sort.SliceStable(amounts, func(i, j int) bool { return amounts[i].GreaterThan(amounts[j]) })
	price := amounts[0]
	fees := decimal.Zero
	for _, a := range amounts[1:] {
		fees = fees.Add(a)
	}
	return &price, fees
}

// NormalizeTokenAmount converts a raw base-10 integer into token units.
// Unparseable input is zero.
func NormalizeTokenAmount(raw string, decimals int32) decimal.Decimal {
	value, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(value, -decimals)
}

func enrich(summary *domain.PackSummary, rules PackRules) {
	mainShares := summary.Shares.MainClub.Amount
	summary.Packs = mainShares / rules.SharesPerPackMain
	summary.Validation.MainSharesModulo = mainShares % rules.SharesPerPackMain
	summary.Validation.SecondariesHaveModuloZero = true

	var secondary int64
	for _, s := range summary.Shares.SecondaryClubs {
		secondary += s.Influence
		if s.SharesModulo != 0 {
			summary.Validation.SecondariesHaveModuloZero = false
		}
	}
	summary.Influence = domain.Influence{
		Main:      summary.Packs * rules.InfluenceMainPerPack,
		Secondary: secondary,
	}
	summary.Influence.Total = summary.Influence.Main + summary.Influence.Secondary

	if summary.Packs > 0 && summary.PriceUSDC != nil {
		unit := domain.NewUSDC(summary.PriceUSDC.Div(decimal.NewFromInt(summary.Packs)))
		summary.UnitPriceUSDC = &unit
	}
}
