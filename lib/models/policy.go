package models

type DeliveryMode string

const (
	ModeImmediate DeliveryMode = "immediate"
	ModeBatched   DeliveryMode = "batched"

	DefaultChannel = "default"
)

func (m DeliveryMode) Valid() bool {
	return m == ModeImmediate || m == ModeBatched
}

// DeliveryPolicy controls how new items of one account are handed to the sinks.
type DeliveryPolicy struct {
	Account      string       `gorm:"primaryKey" json:"account"`
	Mode         DeliveryMode `gorm:"not null;default:immediate" json:"mode"`
	Instructions string       `json:"instructions"`
	Channel      string       `json:"channel"`
}

// DefaultPolicy is what an account gets when nothing has been configured for it.
func DefaultPolicy(account string) DeliveryPolicy {
	return DeliveryPolicy{
		Account: account,
		Mode:    ModeImmediate,
		Channel: DefaultChannel,
	}
}
