package migrations

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	chstore "blinkstream/internal/storage/clickhouse"
)

// RunClickhouseMigrations creates the dsn database if needed, applies the
// embedded schema and returns a connection to that database.
func RunClickhouseMigrations(ctx context.Context, dsn string) (*chstore.Conn, error) {
	dbName, err := databaseFromDSN(dsn)
	if err != nil {
		return nil, err
	}

	files, err := sqlFiles(clickhouseFS, "clickhouse")
	if err != nil {
		return nil, err
	}

	adminConn, err := chstore.NewConnWithDatabase(ctx, dsn, "")
	if err != nil {
		return nil, fmt.Errorf("connect clickhouse admin: %w", err)
	}
	if err := adminConn.Exec(ctx, fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", dbName)); err != nil {
		adminConn.Close()
		return nil, fmt.Errorf("create database %s: %w", dbName, err)
	}
	if err := adminConn.Close(); err != nil {
		return nil, fmt.Errorf("close admin connection: %w", err)
	}

	conn, err := chstore.NewConnWithDatabase(ctx, dsn, dbName)
	if err != nil {
		return nil, fmt.Errorf("connect clickhouse db: %w", err)
	}

	for _, m := range files {
		stmts, err := splitStatements(m.sql)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("split migration %s: %w", m.name, err)
		}
		// The native protocol runs one statement per Exec.
		for _, stmt := range stmts {
			if err := conn.Exec(ctx, stmt); err != nil {
				conn.Close()
				return nil, fmt.Errorf("apply migration %s: %w", m.name, err)
			}
		}
	}

	return conn, nil
}

// splitStatements drops -- comment lines and splits on semicolons.
// Semicolons inside single quoted literals are rejected.
func splitStatements(input string) ([]string, error) {
	inString := false
	for i := 0; i < len(input); i++ {
		switch input[i] {
		case '\'':
			if inString && i+1 < len(input) && input[i+1] == '\'' {
				i++
				continue
			}
			inString = !inString
		case ';':
			if inString {
				return nil, fmt.Errorf("semicolon inside string literal at offset %d", i)
			}
		}
	}

	var kept []string
	for _, line := range strings.Split(input, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}
		kept = append(kept, line)
	}

	var stmts []string
	for _, part := range strings.Split(strings.Join(kept, "\n"), ";") {
		if stmt := strings.TrimSpace(part); stmt != "" {
			stmts = append(stmts, stmt)
		}
	}
	return stmts, nil
}

func databaseFromDSN(dsn string) (string, error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return "", fmt.Errorf("parse clickhouse dsn: %w", err)
	}
	db := strings.TrimPrefix(u.Path, "/")
	if db == "" {
		return "", fmt.Errorf("clickhouse dsn missing database")
	}
	return db, nil
}
