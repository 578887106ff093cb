package config

// MeshConfig configures peer-to-peer networking between sibling runtimes.
type MeshConfig struct {
	// Enabled turns mesh networking on.
	Enabled bool `yaml:"enabled"`

	// Listen is the local address for incoming peer links (host:port).
	// Empty disables listening; the node can still dial out.
	Listen string `yaml:"listen"`

	// BootstrapPeers are addresses dialed at startup.
	BootstrapPeers []string `yaml:"bootstrap_peers"`

	// Capabilities this node advertises to peers (e.g. shell, browser, gpu).
	Capabilities []string `yaml:"capabilities"`
}
