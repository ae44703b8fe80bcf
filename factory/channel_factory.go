package factory

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"sync"

	"github.com/opd-ai/filedrop/interfaces"
	"github.com/opd-ai/filedrop/real"
	"github.com/opd-ai/filedrop/testing"
	"github.com/sirupsen/logrus"
)

// Validation constants for configuration bounds checking.
const (
	// MinWriteTimeout is the minimum allowed write timeout in milliseconds.
	MinWriteTimeout = 100
	// MaxWriteTimeout is the maximum allowed write timeout in milliseconds (10 minutes).
	MaxWriteTimeout = 600000
	// MinSegmentSize is the minimum allowed progress segment size in bytes.
	MinSegmentSize = 512
	// MaxSegmentSize is the maximum allowed progress segment size in bytes (4 MiB).
	MaxSegmentSize = 4 << 20
)

// DefaultRelayAddress is the relay dialled when none is configured.
const DefaultRelayAddress = "127.0.0.1:7420"

// ChannelFactory creates channel implementations based on configuration.
// It is safe for concurrent use; all methods are protected by an internal mutex.
type ChannelFactory struct {
	mu            sync.RWMutex
	defaultConfig *interfaces.ChannelConfig
	hub           *testing.SimulatedHub
}

// TestConfigOption is a functional option for customizing test simulation configuration.
type TestConfigOption func(*interfaces.ChannelConfig)

// NewChannelFactory creates a new factory with default configuration
func NewChannelFactory() *ChannelFactory {
	defaultConfig := createDefaultConfig()
	applyEnvironmentOverrides(defaultConfig)
	logConfigurationInfo(defaultConfig)

	return &ChannelFactory{
		defaultConfig: defaultConfig,
	}
}

// createDefaultConfig initializes the default channel configuration.
//
// Default Value Rationale:
//   - UseSimulation: false - Real relay by default; simulation must be explicitly enabled
//   - WriteTimeout: 5000ms - Long enough for one segment on a slow link
//   - SegmentSize: 32 KiB - Fine-grained progress without excessive syscalls
func createDefaultConfig() *interfaces.ChannelConfig {
	return &interfaces.ChannelConfig{
		UseSimulation: false,
		RelayAddress:  DefaultRelayAddress,
		WriteTimeout:  5000,
		SegmentSize:   32 * 1024,
	}
}

// applyEnvironmentOverrides updates configuration based on environment variables.
// It checks for FILEDROP_* environment variables and overrides defaults if valid values are found.
func applyEnvironmentOverrides(config *interfaces.ChannelConfig) {
	parseSimulationSetting(config)
	parseTimeoutSetting(config)
	parseSegmentSizeSetting(config)
}

// parseSimulationSetting updates UseSimulation from FILEDROP_USE_SIMULATION.
func parseSimulationSetting(config *interfaces.ChannelConfig) {
	if useSimStr := os.Getenv("FILEDROP_USE_SIMULATION"); useSimStr != "" {
		useSim, err := strconv.ParseBool(useSimStr)
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"function":    "parseSimulationSetting",
				"env_var":     "FILEDROP_USE_SIMULATION",
				"value":       useSimStr,
				"error":       err.Error(),
				"using_value": config.UseSimulation,
			}).Warn("Failed to parse FILEDROP_USE_SIMULATION environment variable, using default")
			return
		}
		config.UseSimulation = useSim
	}
}

// parseTimeoutSetting updates WriteTimeout from FILEDROP_WRITE_TIMEOUT. Values
// outside [MinWriteTimeout, MaxWriteTimeout] are ignored with a warning.
func parseTimeoutSetting(config *interfaces.ChannelConfig) {
	if timeoutStr := os.Getenv("FILEDROP_WRITE_TIMEOUT"); timeoutStr != "" {
		timeout, ok := parseBoundedInt("parseTimeoutSetting", "FILEDROP_WRITE_TIMEOUT", timeoutStr,
			MinWriteTimeout, MaxWriteTimeout, config.WriteTimeout)
		if ok {
			config.WriteTimeout = timeout
		}
	}
}

// parseSegmentSizeSetting updates SegmentSize from FILEDROP_SEGMENT_SIZE. Values
// outside [MinSegmentSize, MaxSegmentSize] are ignored with a warning.
func parseSegmentSizeSetting(config *interfaces.ChannelConfig) {
	if sizeStr := os.Getenv("FILEDROP_SEGMENT_SIZE"); sizeStr != "" {
		size, ok := parseBoundedInt("parseSegmentSizeSetting", "FILEDROP_SEGMENT_SIZE", sizeStr,
			MinSegmentSize, MaxSegmentSize, config.SegmentSize)
		if ok {
			config.SegmentSize = size
		}
	}
}

// parseBoundedInt parses value and checks it against [min, max], logging why
// it was rejected otherwise.
func parseBoundedInt(function, envVar, value string, min, max, current int) (int, bool) {
	n, err := strconv.Atoi(value)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function":    function,
			"env_var":     envVar,
			"value":       value,
			"error":       err.Error(),
			"using_value": current,
		}).Warn("Failed to parse environment variable, using default")
		return 0, false
	}
	if n < min || n > max {
		logrus.WithFields(logrus.Fields{
			"function":    function,
			"env_var":     envVar,
			"value":       n,
			"min":         min,
			"max":         max,
			"using_value": current,
		}).Warn("Environment variable out of bounds, using default")
		return 0, false
	}
	return n, true
}

// logConfigurationInfo logs the final configuration settings for debugging purposes.
func logConfigurationInfo(config *interfaces.ChannelConfig) {
	logrus.WithFields(logrus.Fields{
		"function":       "NewChannelFactory",
		"use_simulation": config.UseSimulation,
		"relay_address":  config.RelayAddress,
		"write_timeout":  config.WriteTimeout,
		"segment_size":   config.SegmentSize,
	}).Info("Created channel factory with configuration")
}

// CreateChannel joins a channel as displayName using the factory configuration.
func (f *ChannelFactory) CreateChannel(ctx context.Context, displayName string) (interfaces.IChannel, error) {
	config := f.GetCurrentConfig()
	config.DisplayName = displayName
	return f.CreateChannelWithConfig(ctx, config)
}

// CreateChannelWithConfig joins a channel with a custom configuration. Simulated
// channels created by one factory share a hub, so they can reach each other.
func (f *ChannelFactory) CreateChannelWithConfig(ctx context.Context, config *interfaces.ChannelConfig) (interfaces.IChannel, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid channel config: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"function":       "CreateChannelWithConfig",
		"use_simulation": config.UseSimulation,
		"relay_address":  config.RelayAddress,
		"display_name":   config.DisplayName,
	}).Info("Creating channel implementation")

	if config.UseSimulation {
		return f.simulationHub(config).Join(config.DisplayName), nil
	}

	ch, err := real.Connect(ctx, config)
	if err != nil {
		return nil, err
	}
	return ch, nil
}

// simulationHub returns the factory's shared hub, creating it on first use.
func (f *ChannelFactory) simulationHub(config *interfaces.ChannelConfig) *testing.SimulatedHub {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.hub == nil {
		f.hub = testing.NewSimulatedHub(config)
	}
	return f.hub
}

// WithWriteTimeout sets a custom write timeout in milliseconds for the test configuration.
func WithWriteTimeout(timeoutMs int) TestConfigOption {
	return func(c *interfaces.ChannelConfig) {
		c.WriteTimeout = timeoutMs
	}
}

// WithSegmentSize sets a custom segment size for the test configuration.
func WithSegmentSize(size int) TestConfigOption {
	return func(c *interfaces.ChannelConfig) {
		c.SegmentSize = size
	}
}

// CreateSimulationForTesting creates a standalone hub specifically for testing.
// Default test configuration uses SegmentSize=1024.
func (f *ChannelFactory) CreateSimulationForTesting(opts ...TestConfigOption) *testing.SimulatedHub {
	testConfig := &interfaces.ChannelConfig{
		UseSimulation: true,
		WriteTimeout:  1000,
		SegmentSize:   1024,
	}

	for _, opt := range opts {
		opt(testConfig)
	}

	logrus.WithFields(logrus.Fields{
		"function":     "CreateSimulationForTesting",
		"segment_size": testConfig.SegmentSize,
	}).Info("Creating simulation hub for testing")

	return testing.NewSimulatedHub(testConfig)
}

// SwitchToSimulation switches the configuration to use simulation
func (f *ChannelFactory) SwitchToSimulation() {
	f.mu.Lock()
	defer f.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "SwitchToSimulation",
		"previous": f.defaultConfig.UseSimulation,
	}).Info("Switching factory to simulation mode")

	f.defaultConfig.UseSimulation = true
}

// SwitchToReal switches the configuration to use the relay implementation
func (f *ChannelFactory) SwitchToReal() {
	f.mu.Lock()
	defer f.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "SwitchToReal",
		"previous": f.defaultConfig.UseSimulation,
	}).Info("Switching factory to real mode")

	f.defaultConfig.UseSimulation = false
}

// GetCurrentConfig returns a copy of the current default configuration
func (f *ChannelFactory) GetCurrentConfig() *interfaces.ChannelConfig {
	f.mu.RLock()
	defer f.mu.RUnlock()

	config := *f.defaultConfig
	return &config
}

// IsUsingSimulation returns true if the factory is configured for simulation
func (f *ChannelFactory) IsUsingSimulation() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()

	return f.defaultConfig.UseSimulation
}

// UpdateConfig updates the factory's default configuration. The display name
// is per channel and is not validated here.
func (f *ChannelFactory) UpdateConfig(config *interfaces.ChannelConfig) error {
	if config == nil {
		return fmt.Errorf("config cannot be nil")
	}
	if config.WriteTimeout < MinWriteTimeout || config.WriteTimeout > MaxWriteTimeout {
		return fmt.Errorf("%w: %d not in [%d, %d]", interfaces.ErrInvalidTimeout, config.WriteTimeout, MinWriteTimeout, MaxWriteTimeout)
	}
	if config.SegmentSize < MinSegmentSize || config.SegmentSize > MaxSegmentSize {
		return fmt.Errorf("%w: %d not in [%d, %d]", interfaces.ErrInvalidSegmentSize, config.SegmentSize, MinSegmentSize, MaxSegmentSize)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function":       "UpdateConfig",
		"old_simulation": f.defaultConfig.UseSimulation,
		"new_simulation": config.UseSimulation,
		"old_relay":      f.defaultConfig.RelayAddress,
		"new_relay":      config.RelayAddress,
	}).Info("Updating factory configuration")

	updated := *config
	f.defaultConfig = &updated
	return nil
}

// SetRelayAddress changes the relay dialled by channels created afterwards.
func (f *ChannelFactory) SetRelayAddress(address string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.defaultConfig.RelayAddress = address
}
