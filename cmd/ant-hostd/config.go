package main

import (
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type appConfig struct {
	vendorID      uint16
	productID     uint16
	networkKey    [8]byte
	logFormat     string
	logLevel      string
	metricsAddr   string
	maxChannels   int
	writeTimeout  time.Duration
	responseWait  time.Duration
	consoleEnable bool
}

const defaultNetworkKeyHex = "b9a521fbbd72c345"

func parseFlags() (*appConfig, bool) {
	cfg := &appConfig{}
	vendorID := flag.String("vendor-id", "0x0fcf", "USB vendor id (hex)")
	productID := flag.String("product-id", "0x1009", "USB product id (hex)")
	networkKey := flag.String("network-key", defaultNetworkKeyHex, "ANT network key, 16 hex characters")
	logFormat := flag.String("log-format", "text", "Log format: text|json")
	logLevel := flag.String("log-level", "info", "Log level: debug|info|warn|error")
	metricsAddr := flag.String("metrics-addr", "", "Metrics HTTP listen address (e.g., :9100); empty disables")
	maxChannels := flag.Int("max-channels", 8, "Number of ANT channels to manage")
	writeTimeout := flag.Duration("write-timeout", time.Second, "USB bulk OUT write timeout")
	responseWait := flag.Duration("response-wait", 2*time.Second, "Time to wait for a channel response event")
	consoleEnable := flag.Bool("console", false, "Start an interactive debug console on stdin/stdout")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	setFlags := map[string]struct{}{}
	flag.Visit(func(f *flag.Flag) { setFlags[f.Name] = struct{}{} })

	var err error
	cfg.vendorID, err = parseHex16(*vendorID)
	if err != nil {
		fmt.Printf("configuration error: vendor-id: %v\n", err)
		return nil, *showVersion
	}
	cfg.productID, err = parseHex16(*productID)
	if err != nil {
		fmt.Printf("configuration error: product-id: %v\n", err)
		return nil, *showVersion
	}
	cfg.networkKey, err = parseNetworkKey(*networkKey)
	if err != nil {
		fmt.Printf("configuration error: network-key: %v\n", err)
		return nil, *showVersion
	}
	cfg.logFormat = *logFormat
	cfg.logLevel = *logLevel
	cfg.metricsAddr = *metricsAddr
	cfg.maxChannels = *maxChannels
	cfg.writeTimeout = *writeTimeout
	cfg.responseWait = *responseWait
	cfg.consoleEnable = *consoleEnable

	if err := applyEnvOverrides(cfg, setFlags); err != nil {
		fmt.Printf("environment override error: %v\n", err)
		return nil, *showVersion
	}
	if err := cfg.validate(); err != nil {
		fmt.Printf("configuration error: %v\n", err)
		return nil, *showVersion
	}
	return cfg, *showVersion
}

func (c *appConfig) validate() error {
	if c == nil {
		return errors.New("nil config")
	}
	switch c.logFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log-format: %s", c.logFormat)
	}
	switch c.logLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log-level: %s", c.logLevel)
	}
	if c.maxChannels <= 0 || c.maxChannels > 255 {
		return fmt.Errorf("max-channels must be in 1..255 (got %d)", c.maxChannels)
	}
	if c.writeTimeout <= 0 {
		return fmt.Errorf("write-timeout must be > 0")
	}
	if c.responseWait <= 0 {
		return fmt.Errorf("response-wait must be > 0")
	}
	return nil
}

// applyEnvOverrides maps ANT_HOSTD_* environment variables to config fields
// unless a corresponding flag was explicitly set. Flag wins over env.
func applyEnvOverrides(c *appConfig, set map[string]struct{}) error {
	var firstErr error
	get := func(k string) (string, bool) { v, ok := os.LookupEnv(k); return strings.TrimSpace(v), ok }

	if _, ok := set["vendor-id"]; !ok {
		if v, ok := get("ANT_HOSTD_VENDOR_ID"); ok && v != "" {
			if n, err := parseHex16(v); err == nil {
				c.vendorID = n
			} else if firstErr == nil {
				firstErr = fmt.Errorf("invalid ANT_HOSTD_VENDOR_ID: %w", err)
			}
		}
	}
	if _, ok := set["product-id"]; !ok {
		if v, ok := get("ANT_HOSTD_PRODUCT_ID"); ok && v != "" {
			if n, err := parseHex16(v); err == nil {
				c.productID = n
			} else if firstErr == nil {
				firstErr = fmt.Errorf("invalid ANT_HOSTD_PRODUCT_ID: %w", err)
			}
		}
	}
	if _, ok := set["network-key"]; !ok {
		if v, ok := get("ANT_HOSTD_NETWORK_KEY"); ok && v != "" {
			if k, err := parseNetworkKey(v); err == nil {
				c.networkKey = k
			} else if firstErr == nil {
				firstErr = fmt.Errorf("invalid ANT_HOSTD_NETWORK_KEY: %w", err)
			}
		}
	}
	if _, ok := set["log-format"]; !ok {
		if v, ok := get("ANT_HOSTD_LOG_FORMAT"); ok && v != "" {
			c.logFormat = v
		}
	}
	if _, ok := set["log-level"]; !ok {
		if v, ok := get("ANT_HOSTD_LOG_LEVEL"); ok && v != "" {
			c.logLevel = v
		}
	}
	if _, ok := set["metrics-addr"]; !ok {
		if v, ok := get("ANT_HOSTD_METRICS"); ok {
			c.metricsAddr = v
		}
	}
	if _, ok := set["max-channels"]; !ok {
		if v, ok := get("ANT_HOSTD_MAX_CHANNELS"); ok && v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				c.maxChannels = n
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid ANT_HOSTD_MAX_CHANNELS: %w", err)
			}
		}
	}
	return firstErr
}

func parseHex16(s string) (uint16, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	n, err := strconv.ParseUint(s, 16, 16)
	if err != nil {
		return 0, err
	}
	return uint16(n), nil
}

func parseNetworkKey(s string) ([8]byte, error) {
	var key [8]byte
	b, err := hex.DecodeString(s)
	if err != nil {
		return key, err
	}
	if len(b) != 8 {
		return key, fmt.Errorf("network key must decode to 8 bytes, got %d", len(b))
	}
	copy(key[:], b)
	return key, nil
}
