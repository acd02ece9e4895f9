package app

import (
	"github.com/fitos/notify/internal/broker"
	"github.com/fitos/notify/internal/cache"
	"github.com/fitos/notify/internal/push"
	"github.com/fitos/notify/internal/services"
)

// RedisStoreConfig converts RedisCacheConfig into cache.RedisConfig.
func (c RedisCacheConfig) RedisStoreConfig() cache.RedisConfig {
	return cache.RedisConfig{
		Address:   c.Address,
		Username:  c.Username,
		Password:  c.Password,
		DB:        c.DB,
		TLS:       c.TLS,
		Timeout:   c.Timeout,
		KeyPrefix: c.KeyPrefix,
	}
}

// GatewayConfig converts FCMSettings into push.FCMConfig.
func (c FCMSettings) GatewayConfig() push.FCMConfig {
	return push.FCMConfig{
		ProjectID:          c.ProjectID,
		CredentialsFile:    c.CredentialsFile,
		CredentialsJSON:    c.CredentialsJSON,
		Endpoint:           c.Endpoint,
		Timeout:            c.Timeout,
		AndroidChannel:     c.AndroidChannel,
		BreakerFailures:    c.BreakerFailures,
		BreakerOpenTimeout: c.BreakerOpenTimeout,
	}
}

// PublisherConfig converts BrokerConfig into broker.Config.
func (c BrokerConfig) PublisherConfig() broker.Config {
	return broker.Config{URL: c.URL, Exchange: c.Exchange}
}

// Policy converts RetentionConfig into services.RetentionPolicy.
func (c RetentionConfig) Policy() services.RetentionPolicy {
	return services.RetentionPolicy{
		Logs:          c.Logs,
		Events:        c.Events,
		Notifications: c.Notifications,
	}
}
