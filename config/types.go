package config

// Log controls the structured logger and optional file rotation.
type Log struct {
	Level      string `toml:"Level"`
	Env        string `toml:"Env"`
	File       string `toml:"File"`
	MaxSizeMB  int    `toml:"MaxSizeMB"`
	MaxBackups int    `toml:"MaxBackups"`
	MaxAgeDays int    `toml:"MaxAgeDays"`
}

// Rental captures the escrow program knobs.
type Rental struct {
	// NamespaceTag seeds record address derivation. Empty uses the built-in
	// tag; changing it relocates every record.
	NamespaceTag string `toml:"NamespaceTag"`
	// PayoutMode is "owner" or "escrow".
	PayoutMode string `toml:"PayoutMode"`
	// RecordDeposit is the native amount locked in the record account at
	// listing time, as a decimal string.
	RecordDeposit string   `toml:"RecordDeposit"`
	Paused        []string `toml:"Paused"`
}

// RPC configures the JSON-RPC listener.
type RPC struct {
	// JWTSecretEnv names the environment variable holding the HMAC secret.
	// Mutating methods are open when the variable is unset.
	JWTSecretEnv      string  `toml:"JWTSecretEnv"`
	JWTIssuer         string  `toml:"JWTIssuer"`
	RateLimitPerSec   float64 `toml:"RateLimitPerSec"`
	RateLimitBurst    int     `toml:"RateLimitBurst"`
	ReadHeaderTimeout int     `toml:"ReadHeaderTimeout"`
	ReadTimeout       int     `toml:"ReadTimeout"`
	WriteTimeout      int     `toml:"WriteTimeout"`
	IdleTimeout       int     `toml:"IdleTimeout"`
}

// Telemetry wires the OTLP exporters.
type Telemetry struct {
	Endpoint string `toml:"Endpoint"`
	Insecure bool   `toml:"Insecure"`
	Headers  string `toml:"Headers"`
	Traces   bool   `toml:"Traces"`
	Metrics  bool   `toml:"Metrics"`
}

// GenesisAccount funds an address at genesis.
type GenesisAccount struct {
	Address string `toml:"Address"`
	Balance string `toml:"Balance"`
}

// GenesisAsset mints a single-unit asset at genesis.
type GenesisAsset struct {
	Owner   string `toml:"Owner"`
	Mint    string `toml:"Mint"`
	Account string `toml:"Account"`
}

// Genesis is the inline alternative to GenesisFile.
type Genesis struct {
	Time     string           `toml:"Time"`
	Accounts []GenesisAccount `toml:"Accounts"`
	Assets   []GenesisAsset   `toml:"Assets"`
}
