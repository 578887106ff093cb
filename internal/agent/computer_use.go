package agent

// ComputerUseConfig describes the virtual display a computer-use model
// drives; width/height bound the coordinates it may emit.
type ComputerUseConfig struct {
	DisplayWidthPx  int
	DisplayHeightPx int
	DisplayNumber   int
}

// ComputerUseConfigProvider is an optional interface for tools that expose computer-use display config.
type ComputerUseConfigProvider interface {
	ComputerUseConfig() *ComputerUseConfig
}
