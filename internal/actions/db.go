package actions

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/e-m-dev/remedy/internal/models"
	"github.com/jackc/pgx/v5"

	_ "github.com/go-sql-driver/mysql"
)

// DatabaseExecutor runs remediation SQL (VACUUM, kill query, config reload)
// against postgres or mysql.
//
// Config: driver (postgres|mysql), dsn (required), statement (required).
type DatabaseExecutor struct{}

func NewDatabaseExecutor() *DatabaseExecutor {
	return &DatabaseExecutor{}
}

func (e *DatabaseExecutor) Kind() models.ActionKind {
	return models.ActionDatabase
}

func (e *DatabaseExecutor) Execute(ctx context.Context, step models.ActionStep, vars map[string]interface{}) (string, error) {
	driver := stringConfig(step, "driver", "postgres")
	dsn := stringConfig(step, "dsn", "")
	statement := stringConfig(step, "statement", "")

	if dsn == "" {
		return "", fmt.Errorf("db step %q: dsn is required", step.ID)
	}
	if statement == "" {
		return "", fmt.Errorf("db step %q: statement is required", step.ID)
	}

	switch driver {
	case "postgres", "postgresql":
		return e.executePostgres(ctx, dsn, statement)
	case "mysql":
		return e.executeMySQL(ctx, dsn, statement)
	}

	return "", fmt.Errorf("db step %q: unsupported driver %q", step.ID, driver)
}

func (e *DatabaseExecutor) executePostgres(ctx context.Context, dsn, statement string) (string, error) {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return "", fmt.Errorf("failed to connect to postgres: %w", err)
	}
	defer conn.Close(ctx)

	tag, err := conn.Exec(ctx, statement)
	if err != nil {
		return "", fmt.Errorf("statement failed: %w", err)
	}

	return fmt.Sprintf("ok (%d rows affected)", tag.RowsAffected()), nil
}

func (e *DatabaseExecutor) executeMySQL(ctx context.Context, dsn, statement string) (string, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return "", fmt.Errorf("failed to open mysql connection: %w", err)
	}
	defer db.Close()

	result, err := db.ExecContext(ctx, statement)
	if err != nil {
		return "", fmt.Errorf("statement failed: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		rows = -1
	}

	return fmt.Sprintf("ok (%d rows affected)", rows), nil
}
