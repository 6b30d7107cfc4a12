package database

import (
	"net"
	"net/url"
	"strconv"

	"github.com/rickgao/options-data/internal/config"
)

// ApplicationName identifies ledger sessions in pg_stat_activity.
const ApplicationName = "options-collect"

// BuildConnString builds a postgres:// URL for the ledger from config.
// Credentials are escaped by net/url.
func BuildConnString(cfg config.DBConfig) string {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = config.DefaultDBSSLMode
	}

	query := url.Values{
		"sslmode":          {sslMode},
		"application_name": {ApplicationName},
	}

	u := url.URL{
		Scheme:   "postgres",
		Host:     net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Path:     "/" + cfg.Name,
		RawQuery: query.Encode(),
	}
	switch {
	case cfg.User != "" && cfg.Password != "":
		u.User = url.UserPassword(cfg.User, cfg.Password)
	case cfg.User != "":
		u.User = url.User(cfg.User)
	}
	return u.String()
}
