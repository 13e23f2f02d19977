package strategy

// HODL holds the initial token mixture and never provides liquidity. It is
// the benchmark every LP strategy is measured against.
type HODL struct{}

// NewHODL returns the do-nothing baseline.
func NewHODL() *HODL {
	return &HODL{}
}

func (h *HODL) Name() string {
	return "hold"
}

func (h *HODL) OnEvent(Snapshot) []Action {
	return nil
}
