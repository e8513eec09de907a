package chainlist

// NetworkID identifies a chain by its canonical EVM chain id.
type NetworkID uint64

// Tracking classifies how much request data a provider collects.
type Tracking string

const (
	TrackingYes     Tracking = "yes"
	TrackingLimited Tracking = "limited"
	TrackingNone    Tracking = "none"
)

// Rpc is one candidate endpoint from the directory.
type Rpc struct {
	URL             string   `yaml:"url" json:"url"`
	Tracking        Tracking `yaml:"tracking,omitempty" json:"tracking,omitempty"`
	TrackingDetails string   `yaml:"trackingDetails,omitempty" json:"trackingDetails,omitempty"`
	IsOpenSource    bool     `yaml:"isOpenSource,omitempty" json:"isOpenSource,omitempty"`
}

// Chain is one entry of the directory.
type Chain struct {
	NetworkID NetworkID `yaml:"networkId" json:"networkId"`
	Name      string    `yaml:"name" json:"name"`
	TVL       float64   `yaml:"tvl" json:"tvl"`
	RPCs      []Rpc     `yaml:"rpcs" json:"rpcs"`
}

// ChainInfo is the read-only summary exposed per network.
type ChainInfo struct {
	NetworkID NetworkID `json:"networkId"`
	Name      string    `json:"name"`
	TVL       float64   `json:"tvl"`
}
