// Package config handles YAML configuration loading with environment variable substitution.
//
// One file configures both pipeline binaries. The connector validates the
// broker/instruments/sessions sections, the receiver the consumer/store/
// database sections; the Redis and queue sections are common to both.
// Configuration files support ${VAR} syntax for environment variable
// interpolation.
package config
