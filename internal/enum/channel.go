package enum

type Channel string

const (
	ChannelEmail          Channel = "email"
	ChannelTeamsChat      Channel = "teams_chat"
	ChannelTeamsCalls     Channel = "teams_calls"
	ChannelUnigyTurret    Channel = "unigy_turret"
	ChannelBloombergChat  Channel = "bloomberg_chat"
	ChannelBloombergEmail Channel = "bloomberg_email"
)

func (t Channel) String() string {
	return string(t)
}
