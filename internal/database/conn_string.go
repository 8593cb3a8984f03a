package database

import (
	"fmt"
	"net/url"

	"github.com/hariprasath93/zerodha-liquidity-analysis/internal/config"
)

// BuildConnString assembles the pgx connection URL for a Postgres config.
// Passwords are percent-escaped, and sslmode defaults to prefer when the
// config leaves it empty.
func BuildConnString(cfg config.DBConfig) string {
	mode := cfg.SSLMode
	if mode == "" {
		mode = "prefer"
	}

	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.User, url.QueryEscape(cfg.Password),
		cfg.Host, cfg.Port, cfg.Name, mode)
}
