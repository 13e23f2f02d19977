package strategy

// PassiveRange opens one position around the initial price and never
// touches it again.
type PassiveRange struct {
	rangePct    float64
	tickLower   int
	tickUpper   int
	useExplicit bool

	opened bool
}

// NewPassiveRange builds the passive strategy. With useExplicit the given
// ticks override the percentage width.
func NewPassiveRange(rangePct float64, tickLower, tickUpper int, useExplicit bool) *PassiveRange {
	if rangePct <= 0 {
		rangePct = 0.10
	}
	return &PassiveRange{
		rangePct:    rangePct,
		tickLower:   tickLower,
		tickUpper:   tickUpper,
		useExplicit: useExplicit,
	}
}

func (p *PassiveRange) Name() string {
	return "passive_range"
}

func (p *PassiveRange) OnEvent(snap Snapshot) []Action {
	if p.opened || !snap.Pool.Initialized() {
		return nil
	}
	p.opened = true

	lower, upper := p.tickLower, p.tickUpper
	if !p.useExplicit {
		price := snap.Pool.RawPrice()
		lower = tickFromPrice(price * (1 - p.rangePct))
		upper = tickFromPrice(price * (1 + p.rangePct))
	}
	lower, upper = snapRange(lower, upper, snap.Pool.TickSpacing)

	return []Action{{Kind: Open, TickLower: lower, TickUpper: upper}}
}
