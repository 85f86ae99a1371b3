package protocol

// Buttons is a bit set of held controls.
type Buttons uint8

const (
	ButtonUp Buttons = 1 << iota
	ButtonDown
	ButtonLeft
	ButtonRight
	ButtonRun
	ButtonAttack
	ButtonUse
	ButtonInventory
)

// Has returns true if b contains all of the given buttons.
func (b Buttons) Has(mask Buttons) bool {
	return b&mask == mask
}

// Direction is one of eight facings, clockwise from north.
type Direction uint8

const (
	North Direction = iota
	NorthEast
	East
	SouthEast
	South
	SouthWest
	West
	NorthWest
)

// InputSample is the control state for one simulation tick.
type InputSample struct {
	Tick    uint32
	Buttons Buttons
	Facing  Direction
}

func serializeInputSample(s stream, in *InputSample) error {
	if err := serializeUint(s, &in.Tick, tickBits); err != nil {
		return err
	}
	if err := serializeUint(s, &in.Buttons, buttonBits); err != nil {
		return err
	}
	return serializeUint(s, &in.Facing, directionBits)
}

// Input carries a batch of recent samples. Clients resend unacknowledged
// samples in every batch, so a lost packet costs latency rather than input.
//
// Wire format:
//
//	[Count: 4] then per sample [Tick: 32][Buttons: 8][Facing: 3]
type Input struct {
	Samples []InputSample
}

// Kind returns KindInput.
func (*Input) Kind() Kind { return KindInput }

func (m *Input) serialize(s stream) error {
	return serializeList(s, &m.Samples, sampleCountBits, MaxInputSamples, serializeInputSample)
}
