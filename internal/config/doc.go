// Package config provides configuration management for webaudit.
package config
