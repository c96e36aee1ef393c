// Mass/charge conversions used when ranking chimeras

package core

// ProtonMass is the mass added per charge when converting neutral masses to m/z.
const ProtonMass = 1.00727646688

// MzFromMass converts a neutral monoisotopic mass to m/z at the given charge.
// Returns 0 for non-positive charges.
func MzFromMass(mass float64, charge int) float64 {
	if charge <= 0 {
		return 0
	}
	return (mass + float64(charge)*ProtonMass) / float64(charge)
}

// MassFromMz converts an m/z at the given charge back to a neutral mass.
func MassFromMz(mz float64, charge int) float64 {
	if charge <= 0 {
		return 0
	}
	return mz*float64(charge) - float64(charge)*ProtonMass
}
