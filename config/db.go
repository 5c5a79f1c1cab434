package config

import (
	"context"

	dbm "github.com/tendermint/tm-db"

	"github.com/gurukamath/silkworm/libs/log"
	"github.com/gurukamath/silkworm/libs/service"
)

// ServiceProvider takes a config and a logger and returns a ready to go Node.
type ServiceProvider func(context.Context, *Config, log.Logger) (service.Service, error)

// DBContext specifies config information for loading a new DB.
type DBContext struct {
	ID     string
	Config *Config
}

// DBProvider takes a DBContext and returns an instantiated DB.
type DBProvider func(*DBContext) (dbm.DB, error)

// DefaultDBProvider returns a database using the backend and directory
// specified in the Config's [store] section.
func DefaultDBProvider(ctx *DBContext) (dbm.DB, error) {
	dbType := dbm.BackendType(ctx.Config.Store.Backend)

	return dbm.NewDB(ctx.ID, dbType, ctx.Config.Store.DBDir())
}
