// Package config handles loading and validating labnode configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overlaying a local .env file (development convenience)
//   - Overriding with LABNODE_* environment variables
//   - Validation of required fields
//   - Default value handling
//
// Security Considerations:
//   - Sensitive values (broker passwords, InfluxDB tokens) should be set via
//     environment variables rather than checked-in YAML
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Node.ID)
package config
