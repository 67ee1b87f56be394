package config

import (
	"fmt"
	"strings"
)

var (
	MaxNamespaceTagBytes = 32
)

// Validate checks the settings that would otherwise fail late at start-up.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("DataDir must be set")
	}
	if len(c.Rental.NamespaceTag) > MaxNamespaceTagBytes {
		return fmt.Errorf("rental: NamespaceTag longer than %d bytes", MaxNamespaceTagBytes)
	}
	if _, err := c.RentalRuntime(); err != nil {
		return err
	}
	if c.RPC.RateLimitPerSec < 0 || c.RPC.RateLimitBurst < 0 {
		return fmt.Errorf("rpc: rate limits must not be negative")
	}
	if c.RPC.RateLimitPerSec > 0 && c.RPC.RateLimitBurst == 0 {
		return fmt.Errorf("rpc: RateLimitBurst must be positive when RateLimitPerSec is set")
	}
	if c.GenesisFile != "" && (len(c.Genesis.Accounts) > 0 || len(c.Genesis.Assets) > 0) {
		return fmt.Errorf("genesis: GenesisFile and inline [Genesis] are mutually exclusive")
	}
	for i, module := range c.Rental.Paused {
		if strings.TrimSpace(module) == "" {
			return fmt.Errorf("rental: Paused[%d] is empty", i)
		}
	}
	return nil
}
