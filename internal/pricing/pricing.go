// Package pricing computes site-model quotes. All amounts are int64 cents
// and every amount shown to a customer is rounded up, first to the cent and
// then to the DisplayUnit.
package pricing

import (
	"fmt"
	"math"

	"github.com/dustin/go-humanize"

	"github.com/dmitrijs2005/civilforms/internal/common"
)

// ProjectType selects the pricing branch.
type ProjectType string

const (
	TypicalSiteModel ProjectType = "typical-site-model"
	ComplexSiteModel ProjectType = "complex-site-model"
	LineworkOnly     ProjectType = "linework-only"
)

// Labels are the names shown in the quote form.
var Labels = map[ProjectType]string{
	TypicalSiteModel: "Typical Site Model",
	ComplexSiteModel: "Complex Site Model",
	LineworkOnly:     "Linework Only",
}

// Money amounts are in cents, sizes in acres.
const (
	DisplayUnit = 500

	smallProjectFee   = 100_000
	smallProjectAcres = 1.0
	lowBandPerAcre    = 25_000
	lowBandTopAcres   = 5.0
	midBandPerAcre    = 12_000
	midBandTopAcres   = 25.0
	powerCoefficient  = 300.0
	powerExponent     = 0.8
	powerConstant     = 460.0
	lineworkFee       = 75_000
	utilitiesFee      = 50_000
	perStructureFee   = 3_500
	maxStructures     = 10_000
	maxAcres          = 100_000.0
	erosionPercent    = 15
	complexPercent    = 135
	markupNumerator   = 6
	markupDenominator = 5
)

// Input is what the customer fills in.
type Input struct {
	ProjectType       ProjectType `json:"project_type"`
	Acres             float64     `json:"acres"`
	ErosionControl    bool        `json:"erosion_control"`
	Utilities         bool        `json:"utilities"`
	AdvancedUtilities bool        `json:"advanced_utilities"`
	Structures        int         `json:"structures"`
}

// Breakdown lists each priced component. Total is their sum.
type Breakdown struct {
	Base              int64 `json:"base"`
	ErosionControl    int64 `json:"erosion_control"`
	Utilities         int64 `json:"utilities"`
	AdvancedUtilities int64 `json:"advanced_utilities"`
	Total             int64 `json:"total"`
}

// Calculate prices in. Add-ons whose checkbox is off cost nothing, and the
// structure count only matters when advanced utilities are selected.
func Calculate(in Input) (Breakdown, error) {
	if err := validate(in); err != nil {
		return Breakdown{}, err
	}

	var b Breakdown
	b.Base = RoundUp(baseCents(in))
	if in.ErosionControl {
		b.ErosionControl = RoundUp(ceilDiv(b.Base*erosionPercent, 100))
	}
	if in.Utilities {
		b.Utilities = RoundUp(utilitiesFee)
	}
	if in.AdvancedUtilities {
		b.AdvancedUtilities = RoundUp(int64(in.Structures) * perStructureFee)
	}
	b.Total = b.Base + b.ErosionControl + b.Utilities + b.AdvancedUtilities
	return b, nil
}

func validate(in Input) error {
	if _, ok := Labels[in.ProjectType]; !ok {
		return fmt.Errorf("%w: unknown project type %q", common.ErrorValidation, in.ProjectType)
	}
	if in.ProjectType != LineworkOnly {
		if math.IsNaN(in.Acres) || math.IsInf(in.Acres, 0) || in.Acres <= 0 {
			return fmt.Errorf("%w: project size must be a positive number of acres", common.ErrorValidation)
		}
		if in.Acres > maxAcres {
			return fmt.Errorf("%w: project size must be at most %s acres", common.ErrorValidation, humanize.Commaf(maxAcres))
		}
	}
	if in.AdvancedUtilities && (in.Structures <= 0 || in.Structures > maxStructures) {
		return fmt.Errorf("%w: structure count must be between 1 and %d", common.ErrorValidation, maxStructures)
	}
	return nil
}

// baseCents is the marked-up base price before display rounding.
func baseCents(in Input) int64 {
	if in.ProjectType == LineworkOnly {
		return markup(lineworkFee)
	}
	c := TierCents(in.Acres)
	if in.ProjectType == ComplexSiteModel {
		c = ceilDiv(c*complexPercent, 100)
	}
	return markup(c)
}

// TierCents is the size-tiered price before multipliers and markup.
func TierCents(acres float64) int64 {
	switch {
	case acres <= smallProjectAcres:
		return smallProjectFee
	case acres <= lowBandTopAcres:
		return smallProjectFee + ceilCents(float64(lowBandPerAcre)/100*(acres-smallProjectAcres))
	case acres <= midBandTopAcres:
		lowTop := smallProjectFee + lowBandPerAcre*int64(lowBandTopAcres-smallProjectAcres)
		return lowTop + ceilCents(float64(midBandPerAcre)/100*(acres-lowBandTopAcres))
	default:
		return ceilCents(powerCoefficient*math.Pow(acres, powerExponent) + powerConstant)
	}
}

// Tier names the band acres falls in.
func Tier(acres float64) string {
	switch {
	case acres <= smallProjectAcres:
		return "small"
	case acres <= lowBandTopAcres:
		return "low"
	case acres <= midBandTopAcres:
		return "mid"
	default:
		return "large"
	}
}

func markup(c int64) int64 {
	return ceilDiv(c*markupNumerator, markupDenominator)
}

// ceilCents converts dollars to cents, never rounding down. The tolerance
// absorbs float noise such as 1200.0000000001.
func ceilCents(dollars float64) int64 {
	return int64(math.Ceil(dollars*100 - 1e-6))
}

func ceilDiv(a, b int64) int64 {
	return (a + b - 1) / b
}

// RoundUp rounds cents up to the next DisplayUnit.
func RoundUp(cents int64) int64 {
	if cents <= 0 {
		return 0
	}
	return ceilDiv(cents, DisplayUnit) * DisplayUnit
}

// Format renders cents as dollars, e.g. "$1,200" or "$1,202.50".
func Format(cents int64) string {
	dollars, rest := cents/100, cents%100
	if rest == 0 {
		return "$" + humanize.Comma(dollars)
	}
	return fmt.Sprintf("$%s.%02d", humanize.Comma(dollars), rest)
}
