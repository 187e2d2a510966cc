package server

type HttpConfig struct {
	Host string `conf:"host"`

	// Port is the port to listen on, the server is disabled if zero
	Port int `conf:"port"`

	H2c bool `conf:"h2c"`
}

// Enabled reports whether the server should be started.
func (c HttpConfig) Enabled() bool {
	return c.Port > 0
}
