package config

import (
	"github.com/JaimeStill/docflow/pkg/broker"
	"github.com/JaimeStill/docflow/pkg/database"
	"github.com/JaimeStill/docflow/pkg/logging"
	"github.com/JaimeStill/docflow/pkg/pagination"
)

var databaseEnv = &database.Env{
	Host:            "DATABASE_HOST",
	Port:            "DATABASE_PORT",
	Name:            "DATABASE_NAME",
	User:            "DATABASE_USER",
	Password:        "DATABASE_PASSWORD",
	SSLMode:         "DATABASE_SSL_MODE",
	MaxOpenConns:    "DATABASE_MAX_OPEN_CONNS",
	MaxIdleConns:    "DATABASE_MAX_IDLE_CONNS",
	ConnMaxLifetime: "DATABASE_CONN_MAX_LIFETIME",
	ConnTimeout:     "DATABASE_CONN_TIMEOUT",
	AutoMigrate:     "DATABASE_AUTO_MIGRATE",
}

var loggingEnv = &logging.Env{
	Level:     "LOGGING_LEVEL",
	Format:    "LOGGING_FORMAT",
	AddSource: "LOGGING_ADD_SOURCE",
}

var brokerEnv = &broker.Env{
	Driver:     "BROKER_DRIVER",
	URL:        "BROKER_URL",
	Stream:     "BROKER_STREAM",
	MaxPayload: "BROKER_MAX_PAYLOAD",
	Prefetch:   "BROKER_PREFETCH",
}

var paginationEnv = &pagination.Env{
	DefaultPageSize: "API_PAGINATION_DEFAULT_PAGE_SIZE",
	MaxPageSize:     "API_PAGINATION_MAX_PAGE_SIZE",
}
