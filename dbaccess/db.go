package dbaccess

import (
	"github.com/dashpay/dashspv/database"
	"github.com/dashpay/dashspv/database/ldb"
)

// DatabaseContext represents a context in which all database queries run
type DatabaseContext struct {
	db database.Database
	*noTxContext
}

// New creates a new DatabaseContext with database is in the specified `path`
func New(path string) (*DatabaseContext, error) {
	db, err := ldb.NewLevelDB(path)
	if err != nil {
		return nil, err
	}
	return newDatabaseContext(db), nil
}

// NewInMemory creates a new DatabaseContext backed by a database that lives
// in memory only.
func NewInMemory() (*DatabaseContext, error) {
	db, err := ldb.NewMemLevelDB()
	if err != nil {
		return nil, err
	}
	return newDatabaseContext(db), nil
}

func newDatabaseContext(db database.Database) *DatabaseContext {
	databaseContext := &DatabaseContext{db: db}
	databaseContext.noTxContext = &noTxContext{backend: databaseContext}
	return databaseContext
}

// Close closes the DatabaseContext's connection, if it's open
func (ctx *DatabaseContext) Close() error {
	return ctx.db.Close()
}
