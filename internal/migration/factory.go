package migration

import (
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/agentgraph/internal/database"
)

// NewMigratorFromConfig builds a migrator for the configured database.
// mysql DSNs get multiStatements enabled since the bundled files hold
// several statements each.
func NewMigratorFromConfig(cfg database.Config, logger *zap.Logger) (*DefaultMigrator, error) {
	dbType, err := ParseDatabaseType(cfg.Driver)
	if err != nil {
		return nil, err
	}

	var url string
	switch {
	case cfg.DSN != "":
		url = cfg.DSN
		if dbType == DatabaseTypeMySQL && !strings.Contains(url, "multiStatements") {
			sep := "?"
			if strings.Contains(url, "?") {
				sep = "&"
			}
			url += sep + "multiStatements=true"
		}
	case dbType == DatabaseTypeSQLite:
		name := cfg.Name
		if name == "" {
			name = "agentgraph.db"
		}
		url = BuildDatabaseURL(dbType, "", 0, name, "", "", "")
	default:
		url = BuildDatabaseURL(dbType, cfg.Host, cfg.Port, cfg.Name, cfg.User, cfg.Password, cfg.SSLMode)
	}

	return NewMigrator(&Config{
		DatabaseType: dbType,
		DatabaseURL:  url,
		TableName:    DefaultTableName,
		Logger:       logger,
	})
}

// NewMigratorFromURL builds a migrator from a driver alias and URL.
func NewMigratorFromURL(dbType, dbURL string, logger *zap.Logger) (*DefaultMigrator, error) {
	dt, err := ParseDatabaseType(dbType)
	if err != nil {
		return nil, err
	}
	return NewMigrator(&Config{DatabaseType: dt, DatabaseURL: dbURL, Logger: logger})
}
