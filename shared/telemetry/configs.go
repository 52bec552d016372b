package telemetry

// Predefined service configurations
var (
	// PurchaseServiceConfig is the telemetry configuration for the purchase service
	PurchaseServiceConfig = Config{
		ServiceName:    "purchase-service",
		ServiceVersion: "1.0.0",
	}

	// RegistrationServiceConfig is the telemetry configuration for the registration service
	RegistrationServiceConfig = Config{
		ServiceName:    "registration-service",
		ServiceVersion: "1.0.0",
	}
)

// ForService returns the predefined config for serviceName, or a fresh one
func ForService(serviceName string) Config {
	switch serviceName {
	case PurchaseServiceConfig.ServiceName:
		return PurchaseServiceConfig
	case RegistrationServiceConfig.ServiceName:
		return RegistrationServiceConfig
	default:
		return Config{ServiceName: serviceName, ServiceVersion: "1.0.0"}
	}
}

// WithOTLPEndpoint sets the OTLP endpoint for a config
func (c Config) WithOTLPEndpoint(endpoint string) Config {
	c.OTLPEndpoint = endpoint
	return c
}

// WithVersion sets the service version for a config
func (c Config) WithVersion(version string) Config {
	c.ServiceVersion = version
	return c
}
