package resource

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"

	_ "github.com/go-sql-driver/mysql"

	"ptsplit/internal/config"
)

// ErrInvalidName is returned for database names that cannot be quoted safely
var ErrInvalidName = errors.New("invalid database name")

var databaseNamePattern = regexp.MustCompile(`^[A-Za-z0-9_$]{1,64}$`)

// MySQLProvisioner duplicates the canonical test database per worker
type MySQLProvisioner struct {
	db     *sql.DB
	source string
}

// OpenMySQL connects to the database server (without selecting a database)
func OpenMySQL(ctx context.Context, cfg config.DatabaseConfig) (*MySQLProvisioner, error) {
	if !isValidDatabaseName(cfg.Name) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidName, cfg.Name)
	}
	db, err := sql.Open("mysql", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database server: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database server: %w", err)
	}
	return NewMySQLProvisioner(db, cfg.Name), nil
}

// NewMySQLProvisioner wraps an open server connection
func NewMySQLProvisioner(db *sql.DB, source string) *MySQLProvisioner {
	return &MySQLProvisioner{db: db, source: source}
}

// Close closes the server connection
func (p *MySQLProvisioner) Close() error {
	return p.db.Close()
}

// Duplicate creates name as a copy of the source database: schema via
// CREATE TABLE ... LIKE, rows via INSERT ... SELECT. A stale copy with the same
// name is replaced.
func (p *MySQLProvisioner) Duplicate(ctx context.Context, name string) error {
	if !isValidDatabaseName(name) || name == p.source {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}

	tables, err := p.tables(ctx)
	if err != nil {
		return fmt.Errorf("list tables of %s: %w", p.source, err)
	}

	// Session settings must apply to every statement, so stay on one connection.
	conn, err := p.db.Conn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	stmts := []string{
		fmt.Sprintf("DROP DATABASE IF EXISTS `%s`", name),
		fmt.Sprintf("CREATE DATABASE `%s`", name),
		"SET FOREIGN_KEY_CHECKS = 0",
	}
	for _, t := range tables {
		stmts = append(stmts,
			fmt.Sprintf("CREATE TABLE `%s`.`%s` LIKE `%s`.`%s`", name, t, p.source, t),
			fmt.Sprintf("INSERT INTO `%s`.`%s` SELECT * FROM `%s`.`%s`", name, t, p.source, t),
		)
	}
	for _, stmt := range stmts {
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%s: %w", stmt, err)
		}
	}
	_, err = conn.ExecContext(ctx, "SET FOREIGN_KEY_CHECKS = 1")
	return err
}

// Drop removes the database if it exists
func (p *MySQLProvisioner) Drop(ctx context.Context, name string) error {
	if !isValidDatabaseName(name) || name == p.source {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	_, err := p.db.ExecContext(ctx, fmt.Sprintf("DROP DATABASE IF EXISTS `%s`", name))
	return err
}

func (p *MySQLProvisioner) tables(ctx context.Context) ([]string, error) {
	rows, err := p.db.QueryContext(ctx,
		"SELECT TABLE_NAME FROM INFORMATION_SCHEMA.TABLES WHERE TABLE_SCHEMA = ? AND TABLE_TYPE = 'BASE TABLE' ORDER BY TABLE_NAME",
		p.source)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		if !isValidDatabaseName(t) {
			return nil, fmt.Errorf("%w: table %q", ErrInvalidName, t)
		}
		tables = append(tables, t)
	}
	return tables, rows.Err()
}

// isValidDatabaseName only admits unquoted MySQL identifier characters
func isValidDatabaseName(name string) bool {
	return databaseNamePattern.MatchString(name)
}
