package enum

// Direction is relative to the monitored entity.
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
	DirectionInternal Direction = "internal"
)

func (t Direction) String() string {
	return string(t)
}
