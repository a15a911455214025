// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel
//
// Licensed under the GNU Affero General Public License v3.0 (AGPL-3.0) (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.gnu.org/licenses/agpl-3.0.en.html
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads the YAML configuration file, expands environment
// variable references and validates the result. It can also watch the file
// and reload on change.
package config

import (
	"fmt"

	"github.com/kadirpekel/advisor/pkg/catalog"
	"github.com/kadirpekel/advisor/pkg/vector"
)

// Config is the root configuration document.
type Config struct {
	Server    ServerConfig          `yaml:"server,omitempty"`
	LLM       LLMConfig             `yaml:"llm"`
	Embedder  EmbedderConfig        `yaml:"embedder"`
	Weaviate  vector.WeaviateConfig `yaml:"weaviate"`
	Mongo     MongoConfig           `yaml:"mongo"`
	Redis     RedisConfig           `yaml:"redis"`
	Session   SessionConfig         `yaml:"session,omitempty"`
	Guards    GuardsConfig          `yaml:"guards,omitempty"`
	Retrieval RetrievalConfig       `yaml:"retrieval,omitempty"`
	WhatsApp  WhatsAppConfig        `yaml:"whatsapp,omitempty"`
	Logging   LoggingConfig         `yaml:"logging,omitempty"`

	// Catalog overrides the built-in product definitions when present.
	Catalog []catalog.Product `yaml:"catalog,omitempty"`
}

func (c *Config) SetDefaults() {
	c.Server.SetDefaults()
	c.LLM.SetDefaults()
	c.Embedder.SetDefaults()
	c.Session.SetDefaults()
	c.Guards.SetDefaults()
	c.Retrieval.SetDefaults()
	c.Logging.SetDefaults()
}

func (c *Config) Validate() error {
	if err := c.LLM.Validate(); err != nil {
		return fmt.Errorf("llm: %w", err)
	}
	if err := c.Embedder.Validate(); err != nil {
		return fmt.Errorf("embedder: %w", err)
	}
	if c.Weaviate.Host == "" {
		return fmt.Errorf("weaviate: host is required")
	}
	if err := c.Mongo.Validate(); err != nil {
		return fmt.Errorf("mongo: %w", err)
	}
	if err := c.Redis.Validate(); err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	if err := c.Retrieval.Validate(); err != nil {
		return fmt.Errorf("retrieval: %w", err)
	}
	return nil
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host string `yaml:"host,omitempty"`
	Port int    `yaml:"port,omitempty"`
}

func (c *ServerConfig) SetDefaults() {
	if c.Host == "" {
		c.Host = "0.0.0.0"
	}
	if c.Port == 0 {
		c.Port = 8000
	}
}

// Addr returns the host:port listen address.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// LLMConfig configures the Azure OpenAI chat deployments. ResponseDeployment
// runs the user-facing synthesis tasks and falls back to Deployment when
// unset.
type LLMConfig struct {
	Endpoint           string  `yaml:"endpoint"`
	APIKey             string  `yaml:"api_key"`
	Deployment         string  `yaml:"deployment"`
	ResponseDeployment string  `yaml:"response_deployment,omitempty"`
	APIVersion         string  `yaml:"api_version,omitempty"`
	Temperature        float64 `yaml:"temperature,omitempty"`
	MaxTokens          int     `yaml:"max_tokens,omitempty"`
}

func (c *LLMConfig) SetDefaults() {
	if c.APIVersion == "" {
		c.APIVersion = "2024-02-15-preview"
	}
	if c.Temperature == 0 {
		c.Temperature = 0.2
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = 1024
	}
	if c.ResponseDeployment == "" {
		c.ResponseDeployment = c.Deployment
	}
}

func (c *LLMConfig) Validate() error {
	if c.Endpoint == "" {
		return fmt.Errorf("endpoint is required")
	}
	if c.APIKey == "" {
		return fmt.Errorf("api_key is required")
	}
	if c.Deployment == "" {
		return fmt.Errorf("deployment is required")
	}
	return nil
}

// EmbedderConfig configures the embedding deployment. Endpoint and APIKey
// fall back to the chat LLM settings when unset.
type EmbedderConfig struct {
	Endpoint   string `yaml:"endpoint,omitempty"`
	APIKey     string `yaml:"api_key,omitempty"`
	Deployment string `yaml:"deployment"`
	APIVersion string `yaml:"api_version,omitempty"`
}

func (c *EmbedderConfig) SetDefaults() {
	if c.APIVersion == "" {
		c.APIVersion = "2024-02-15-preview"
	}
}

func (c *EmbedderConfig) Validate() error {
	if c.Deployment == "" {
		return fmt.Errorf("deployment is required")
	}
	return nil
}

// MongoConfig configures the session store.
type MongoConfig struct {
	URI      string `yaml:"uri"`
	Database string `yaml:"database,omitempty"`
}

func (c *MongoConfig) Validate() error {
	if c.URI == "" {
		return fmt.Errorf("uri is required")
	}
	return nil
}

// RedisConfig configures the session cache and guard store.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db,omitempty"`
}

func (c *RedisConfig) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("addr is required")
	}
	return nil
}

// SessionConfig tunes session lifetime handling.
type SessionConfig struct {
	// IdleThresholdSeconds is how long a session may sit idle before the
	// next message resets its transient state.
	IdleThresholdSeconds int `yaml:"idle_threshold_seconds,omitempty"`

	// CacheTTLSeconds is the Redis TTL for cached session documents.
	CacheTTLSeconds int `yaml:"cache_ttl_seconds,omitempty"`
}

func (c *SessionConfig) SetDefaults() {
	if c.IdleThresholdSeconds == 0 {
		c.IdleThresholdSeconds = 900
	}
	if c.CacheTTLSeconds == 0 {
		c.CacheTTLSeconds = 900
	}
}

// GuardsConfig tunes the rate limiter, deduper, order guard and per-session
// lock.
type GuardsConfig struct {
	RateWindowSeconds int `yaml:"rate_window_seconds,omitempty"`
	RateMaxMessages   int `yaml:"rate_max_messages,omitempty"`
	DedupeTTLSeconds  int `yaml:"dedupe_ttl_seconds,omitempty"`
	OrderTTLSeconds   int `yaml:"order_ttl_seconds,omitempty"`
	LockTTLSeconds    int `yaml:"lock_ttl_seconds,omitempty"`
	LockWaitSeconds   int `yaml:"lock_wait_seconds,omitempty"`
}

func (c *GuardsConfig) SetDefaults() {
	if c.RateWindowSeconds == 0 {
		c.RateWindowSeconds = 60
	}
	if c.RateMaxMessages == 0 {
		c.RateMaxMessages = 10
	}
	if c.DedupeTTLSeconds == 0 {
		c.DedupeTTLSeconds = 86400
	}
	if c.OrderTTLSeconds == 0 {
		c.OrderTTLSeconds = 86400
	}
	if c.LockTTLSeconds == 0 {
		c.LockTTLSeconds = 15
	}
	if c.LockWaitSeconds == 0 {
		c.LockWaitSeconds = 5
	}
}

// RetrievalConfig tunes hybrid search.
type RetrievalConfig struct {
	Alpha        float64 `yaml:"alpha,omitempty"`
	TopK         int     `yaml:"top_k,omitempty"`
	FallbackTopK int     `yaml:"fallback_top_k,omitempty"`
}

func (c *RetrievalConfig) SetDefaults() {
	if c.Alpha == 0 {
		c.Alpha = 0.7
	}
	if c.TopK == 0 {
		c.TopK = 10
	}
	if c.FallbackTopK == 0 {
		c.FallbackTopK = 5
	}
}

func (c *RetrievalConfig) Validate() error {
	if c.Alpha < 0 || c.Alpha > 1 {
		return fmt.Errorf("alpha must be between 0 and 1, got %g", c.Alpha)
	}
	return nil
}

// WhatsAppConfig configures the Meta webhook and Graph API client. The
// webhook routes are only mounted when VerifyToken is set.
type WhatsAppConfig struct {
	VerifyToken   string `yaml:"verify_token,omitempty"`
	AppSecret     string `yaml:"app_secret,omitempty"`
	AccessToken   string `yaml:"access_token,omitempty"`
	PhoneNumberID string `yaml:"phone_number_id,omitempty"`
}

// Enabled reports whether the webhook surface should be mounted.
func (c *WhatsAppConfig) Enabled() bool {
	return c.VerifyToken != ""
}

// LoggingConfig configures slog output.
type LoggingConfig struct {
	Level  string `yaml:"level,omitempty"`
	Format string `yaml:"format,omitempty"`
	File   string `yaml:"file,omitempty"`
}

func (c *LoggingConfig) SetDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
	if c.Format == "" {
		c.Format = "simple"
	}
}
