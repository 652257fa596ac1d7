package pricing

import "sort"

// VolumeTier sets the quote volume a drop larger than AboveDrop must exceed.
type VolumeTier struct {
	AboveDrop float64
	MinVolume float64
}

// Thresholds decide whether a price move counts as a dump. Drops are
// fractions (0.3 = 30%).
type Thresholds struct {
	DropFloor          float64
	DefaultVolumeFloor float64
	// VolumeTiers are matched largest drop first.
	VolumeTiers []VolumeTier
}

// DefaultThresholds are the empirically tuned values used in production.
func DefaultThresholds() Thresholds {
	return Thresholds{
		DropFloor:          0.30,
		DefaultVolumeFloor: 0.1,
		VolumeTiers: []VolumeTier{
			{AboveDrop: 0.50, MinVolume: 5},
			{AboveDrop: 0.30, MinVolume: 20},
		},
	}
}

// Sorted returns a copy with tiers ordered by descending drop.
func (t Thresholds) Sorted() Thresholds {
	tiers := append([]VolumeTier(nil), t.VolumeTiers...)
	sort.SliceStable(tiers, func(i, j int) bool { return tiers[i].AboveDrop > tiers[j].AboveDrop })
	t.VolumeTiers = tiers
	return t
}

// Drop is the relative fall from prev to cur.
func Drop(prev, cur float64) float64 {
	return (prev - cur) / prev
}

// IsDump reports whether moving from prev to cur on the given quote volume
// is a dump. Both comparisons are strict.
func (t Thresholds) IsDump(prev, cur, volume float64) bool {
	if !(prev > 0) {
		return false
	}
	drop := Drop(prev, cur)
	if !(drop > t.DropFloor) {
		return false
	}
	return volume > t.volumeFloor(drop)
}

func (t Thresholds) volumeFloor(drop float64) float64 {
	for _, tier := range t.VolumeTiers {
		if drop > tier.AboveDrop {
			return tier.MinVolume
		}
	}
	return t.DefaultVolumeFloor
}
